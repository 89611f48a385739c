package versions

import "github.com/go-gormigrate/gormigrate/v2"

// Migrations lists every schema version in the order it is applied.
func Migrations() []*gormigrate.Migration {
	return []*gormigrate.Migration{
		{
			ID:       "1",
			Migrate:  Migration_1_initial_schema,
			Rollback: Rollback_1_initial_schema,
		},
		{
			ID:       "2",
			Migrate:  Migration_2_calendar_caches,
			Rollback: Rollback_2_calendar_caches,
		},
		{
			ID:      "3",
			Migrate: Migration_3_user_display_name,
			// the backfill cannot be undone, the column is kept on rollback
		},
	}
}
