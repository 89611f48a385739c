package seed

import (
	"bytes"
	"path/filepath"
	"restaurant_platform/kitchen/auth"
	"restaurant_platform/kitchen/schema"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const seedYaml = `
school_holidays:
  - name: June Holidays
    start_date: "2024-06-01"
    end_date: "2024-06-30"
stores:
  - company_name: Hawker Co
    store_name: Bugis
    location: 1 Victoria Street
    latitude: 1.3
    longitude: 103.85
    country_code: SG
    manager:
      username: bugis_manager
      password: bugis_password
      name: Bugis Manager
      email: bugis@mail.com
    employees:
      - username: bugis_cook
        password: cook_password
        name: Cook
        email: cook@mail.com
    ingredients:
      - name: Rice
        unit: g
        carbon_footprint: 0.004
      - name: Chicken
        unit: g
        carbon_footprint: 0.0069
    recipes:
      - name: Poached Chicken
        sub_recipe: true
        components:
          - ingredient: Chicken
            quantity: 120
      - name: Chicken Rice
        sellable: true
        components:
          - ingredient: Rice
            quantity: 200
          - recipe: Poached Chicken
            quantity: 1
`

func openDb(t *testing.T) *gorm.DB {
	db, err := schema.OpenDb("sqlite://" + filepath.Join(t.TempDir(), "seed.db"))
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(schema.AllModels()...))
	return db
}

func TestParse(t *testing.T) {
	seed, err := Parse([]byte(seedYaml))
	require.NoError(t, err)

	require.Len(t, seed.Stores, 1)
	store := seed.Stores[0]
	assert.Equal(t, "bugis_manager", store.Manager.Username)
	require.NotNil(t, store.Latitude)
	assert.InDelta(t, 1.3, *store.Latitude, 1e-9)
	require.Len(t, store.Recipes, 2)
	assert.Equal(t, "Poached Chicken", store.Recipes[1].Components[1].Recipe)

	periods := seed.CalendarSchoolHolidays()
	require.Len(t, periods, 1)
	assert.Equal(t, "2024-06-01", periods[0].StartDate)
}

func TestParseRejectsInvalidSeeds(t *testing.T) {
	_, err := Parse([]byte("school_holidays:\n  - name: Backwards\n    start_date: \"2024-06-30\"\n    end_date: \"2024-06-01\"\n"))
	assert.Error(t, err)

	_, err = Parse([]byte("stores:\n  - store_name: Orphan\n"))
	assert.Error(t, err)

	_, err = Parse([]byte("stores: [unterminated"))
	assert.Error(t, err)
}

func TestApplyIsIdempotent(t *testing.T) {
	db := openDb(t)
	userAuth, err := auth.NewBasicIdentityProvider(db, auth.NewAuditLogger(new(bytes.Buffer)), auth.BasicProviderArgs{Secret: []byte("seed-secret")})
	require.NoError(t, err)

	seed, err := Parse([]byte(seedYaml))
	require.NoError(t, err)

	require.NoError(t, seed.Apply(db, userAuth))
	require.NoError(t, seed.Apply(db, userAuth))

	var stores []schema.Store
	require.NoError(t, db.Find(&stores).Error)
	require.Len(t, stores, 1)
	assert.Equal(t, "Bugis", stores[0].StoreName)
	assert.False(t, stores[0].SetupRequired())

	tenant := schema.ForStore(db, stores[0].Id)

	ingredients, err := schema.ListIngredients(tenant, schema.IngredientFilter{})
	require.NoError(t, err)
	assert.Len(t, ingredients, 2)

	sellable := true
	recipes, err := schema.ListRecipes(tenant, schema.RecipeFilter{Sellable: &sellable})
	require.NoError(t, err)
	require.Len(t, recipes, 1)
	assert.Equal(t, "Chicken Rice", recipes[0].Name)

	graph, err := schema.LoadBomGraph(tenant)
	require.NoError(t, err)
	totals := map[uuid.UUID]float64{}
	graph.Expand(recipes[0].Id, 2, totals)
	byName := map[string]float64{}
	for _, ingredient := range ingredients {
		byName[ingredient.Name] = totals[ingredient.Id]
	}
	assert.InDelta(t, 400, byName["Rice"], 1e-9)
	assert.InDelta(t, 240, byName["Chicken"], 1e-9)

	login, err := userAuth.Login("bugis_cook", "cook_password")
	require.NoError(t, err)
	assert.Equal(t, schema.EmployeeRole, login.User.Role)
	assert.Equal(t, stores[0].Id, login.User.StoreId)
}

func TestApplyRejectsUnknownComponent(t *testing.T) {
	db := openDb(t)
	userAuth, err := auth.NewBasicIdentityProvider(db, auth.NewAuditLogger(new(bytes.Buffer)), auth.BasicProviderArgs{Secret: []byte("seed-secret")})
	require.NoError(t, err)

	seed := &Seed{Stores: []Store{{
		StoreName: "Broken",
		Location:  "Nowhere",
		Manager:   Account{Username: "broken_manager", Password: "broken_password", Email: "broken@mail.com"},
		Recipes: []Recipe{{
			Name:       "Mystery",
			Sellable:   true,
			Components: []Component{{Recipe: "Later", Quantity: 1}},
		}},
	}}}

	assert.ErrorContains(t, seed.Apply(db, userAuth), "sub-recipes must be listed first")
}

func TestFailedStoreIsRetried(t *testing.T) {
	db := openDb(t)
	userAuth, err := auth.NewBasicIdentityProvider(db, auth.NewAuditLogger(new(bytes.Buffer)), auth.BasicProviderArgs{Secret: []byte("seed-secret")})
	require.NoError(t, err)

	broken, err := Parse([]byte(strings.Replace(seedYaml, "      - name: Chicken\n", "      - name: Chick\n", 1)))
	require.NoError(t, err)
	assert.ErrorContains(t, broken.Apply(db, userAuth), "unknown ingredient 'Chicken'")

	var count int64
	require.NoError(t, db.Model(&schema.Store{}).Count(&count).Error)
	assert.Zero(t, count)
	require.NoError(t, db.Model(&schema.User{}).Count(&count).Error)
	assert.Zero(t, count)
	require.NoError(t, db.Model(&schema.Ingredient{}).Count(&count).Error)
	assert.Zero(t, count)

	fixed, err := Parse([]byte(seedYaml))
	require.NoError(t, err)
	require.NoError(t, fixed.Apply(db, userAuth))

	var stores []schema.Store
	require.NoError(t, db.Find(&stores).Error)
	require.Len(t, stores, 1)

	recipes, err := schema.ListRecipes(schema.ForStore(db, stores[0].Id), schema.RecipeFilter{})
	require.NoError(t, err)
	assert.Len(t, recipes, 2)
}

func TestStoreProfileIsNormalized(t *testing.T) {
	db := openDb(t)
	userAuth, err := auth.NewBasicIdentityProvider(db, auth.NewAuditLogger(new(bytes.Buffer)), auth.BasicProviderArgs{Secret: []byte("seed-secret")})
	require.NoError(t, err)

	seed, err := Parse([]byte(strings.Replace(seedYaml, "country_code: SG", "country_code: sgp", 1)))
	require.NoError(t, err)
	require.NoError(t, seed.Apply(db, userAuth))

	var store schema.Store
	require.NoError(t, db.First(&store).Error)
	assert.Equal(t, "SG", store.CountryCode)

	invalid := &Seed{Stores: []Store{{
		StoreName:     "Invalid",
		Location:      "Nowhere",
		ContactNumber: "12345",
		CountryCode:   "XX",
		Manager:       Account{Username: "invalid_manager", Password: "invalid_password", Email: "invalid@mail.com"},
	}}}
	err = invalid.Apply(db, userAuth)
	assert.ErrorContains(t, err, "contact_number")
	assert.ErrorContains(t, err, "country_code")

	exists, err := schema.UsernameExists("invalid_manager", db)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestResolveComponent(t *testing.T) {
	_, err := resolveComponent(Component{Quantity: 1}, nil, nil)
	assert.Error(t, err)

	_, err = resolveComponent(Component{Ingredient: "a", Recipe: "b", Quantity: 1}, nil, nil)
	assert.Error(t, err)
}
