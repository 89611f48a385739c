package versions

import (
	"path/filepath"
	"restaurant_platform/kitchen/schema"
	"testing"
	"time"

	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func openDb(t *testing.T) (*gorm.DB, *gormigrate.Gormigrate) {
	db, err := schema.OpenDb("sqlite://" + filepath.Join(t.TempDir(), "migrations.db"))
	require.NoError(t, err)
	return db, gormigrate.New(db, gormigrate.DefaultOptions, Migrations())
}

func TestMigrationsBuildCurrentSchema(t *testing.T) {
	db, migration := openDb(t)
	require.NoError(t, migration.Migrate())

	for _, model := range schema.AllModels() {
		stmt := &gorm.Statement{DB: db}
		require.NoError(t, stmt.Parse(model))

		require.True(t, db.Migrator().HasTable(stmt.Table), "table %v", stmt.Table)
		for _, field := range stmt.Schema.Fields {
			if field.DBName == "" {
				continue
			}
			assert.True(t, db.Migrator().HasColumn(stmt.Table, field.DBName), "column %v.%v", stmt.Table, field.DBName)
		}
	}
}

func TestDisplayNameBackfill(t *testing.T) {
	db, migration := openDb(t)
	require.NoError(t, migration.MigrateTo("2"))
	assert.False(t, db.Migrator().HasColumn("users", "name"))

	now := time.Now()
	require.NoError(t, db.Exec("INSERT INTO stores (id, is_active, created_at, updated_at) VALUES (1, true, ?, ?)", now, now).Error)
	require.NoError(t, db.Exec(
		"INSERT INTO users (id, store_id, username, email, role, status, created_at, updated_at) VALUES (?, 1, 'cook', 'cook@mail.com', 'Employee', 'Active', ?, ?)",
		uuid.New(), now, now,
	).Error)

	require.NoError(t, migration.Migrate())

	var name string
	require.NoError(t, db.Raw("SELECT name FROM users WHERE username = 'cook'").Scan(&name).Error)
	assert.Equal(t, "cook", name)
}

func TestRollbackCalendarCaches(t *testing.T) {
	db, migration := openDb(t)
	require.NoError(t, migration.MigrateTo("2"))
	require.True(t, db.Migrator().HasTable("weather_daily"))

	require.NoError(t, migration.RollbackTo("1"))
	assert.False(t, db.Migrator().HasTable("weather_daily"))
	assert.False(t, db.Migrator().HasTable("holiday_calendars"))
	assert.False(t, db.Migrator().HasTable("global_calendar_signals"))
	assert.True(t, db.Migrator().HasTable("stores"))
}
