package seed

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"restaurant_platform/kitchen/auth"
	"restaurant_platform/kitchen/schema"
	"restaurant_platform/kitchen/services"
	"restaurant_platform/utils/logging"
	"sort"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
	"gorm.io/gorm"
)

type Account struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
	Email    string `yaml:"email"`
}

type Ingredient struct {
	Name            string  `yaml:"name"`
	Unit            string  `yaml:"unit"`
	CarbonFootprint float64 `yaml:"carbon_footprint"`
}

// Component references an ingredient or an earlier recipe of the same store by name.
type Component struct {
	Ingredient string  `yaml:"ingredient"`
	Recipe     string  `yaml:"recipe"`
	Quantity   float64 `yaml:"quantity"`
}

type Recipe struct {
	Name       string      `yaml:"name"`
	SubRecipe  bool        `yaml:"sub_recipe"`
	Sellable   bool        `yaml:"sellable"`
	Components []Component `yaml:"components"`
}

type Store struct {
	CompanyName   string   `yaml:"company_name"`
	StoreName     string   `yaml:"store_name"`
	Location      string   `yaml:"location"`
	Latitude      *float64 `yaml:"latitude"`
	Longitude     *float64 `yaml:"longitude"`
	ContactNumber string   `yaml:"contact_number"`
	CountryCode   string   `yaml:"country_code"`

	Manager     Account      `yaml:"manager"`
	Employees   []Account    `yaml:"employees"`
	Ingredients []Ingredient `yaml:"ingredients"`
	Recipes     []Recipe     `yaml:"recipes"`
}

type SchoolHoliday struct {
	Name      string `yaml:"name"`
	StartDate string `yaml:"start_date"`
	EndDate   string `yaml:"end_date"`
}

type Seed struct {
	SchoolHolidays []SchoolHoliday `yaml:"school_holidays"`
	Stores         []Store         `yaml:"stores"`
}

func Load(path string) (*Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading seed file: %w", err)
	}
	return Parse(data)
}

func Parse(data []byte) (*Seed, error) {
	var seed Seed
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("error parsing seed file: %w", err)
	}

	for _, period := range seed.SchoolHolidays {
		if period.StartDate > period.EndDate {
			return nil, fmt.Errorf("school holiday '%v' ends before it starts", period.Name)
		}
	}
	for _, store := range seed.Stores {
		if store.Manager.Username == "" || store.Manager.Password == "" || store.Manager.Email == "" {
			return nil, fmt.Errorf("store '%v' must have a manager with username, password and email", store.StoreName)
		}
	}

	return &seed, nil
}

func (s *Seed) CalendarSchoolHolidays() []services.SchoolHoliday {
	periods := make([]services.SchoolHoliday, 0, len(s.SchoolHolidays))
	for _, period := range s.SchoolHolidays {
		periods = append(periods, services.SchoolHoliday{
			Name:      period.Name,
			StartDate: period.StartDate,
			EndDate:   period.EndDate,
		})
	}
	return periods
}

// Apply creates every store whose manager does not exist yet. Stores that were
// seeded before are left untouched so the seed can run on every startup. Each
// store is written in its own transaction, so a store that fails to seed
// leaves nothing behind and is retried on the next run.
func (s *Seed) Apply(db *gorm.DB, userAuth *auth.BasicIdentityProvider) error {
	for _, store := range s.Stores {
		exists, err := schema.UsernameExists(store.Manager.Username, db)
		if err != nil {
			return err
		}
		if exists {
			slog.Info("seed store already exists, skipping", logging.Code(logging.SEED), "manager", store.Manager.Username)
			continue
		}

		err = db.Transaction(func(txn *gorm.DB) error {
			return seedStore(txn, userAuth.WithDb(txn), store)
		})
		if err != nil {
			return fmt.Errorf("error seeding store '%v': %w", store.StoreName, err)
		}
	}
	return nil
}

func validationError(fields map[string]string) error {
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)

	problems := make([]string, 0, len(names))
	for _, name := range names {
		problems = append(problems, fmt.Sprintf("%v %v", name, fields[name]))
	}
	return fmt.Errorf("invalid store profile: %v", strings.Join(problems, ", "))
}

func seedStore(txn *gorm.DB, userAuth auth.IdentityProvider, store Store) error {
	profile, fields := services.NormalizeStoreProfile(schema.StoreProfile{
		CompanyName:   store.CompanyName,
		StoreName:     store.StoreName,
		Location:      store.Location,
		Latitude:      store.Latitude,
		Longitude:     store.Longitude,
		ContactNumber: store.ContactNumber,
		CountryCode:   store.CountryCode,
	})
	if len(fields) > 0 {
		return validationError(fields)
	}

	registered, err := userAuth.RegisterManager(auth.Registration(store.Manager))
	if err != nil {
		return err
	}

	tenant := schema.ForStore(txn, registered.Store.Id)

	if _, err := schema.UpdateStore(tenant, profile); err != nil {
		return err
	}

	for _, employee := range store.Employees {
		_, err := userAuth.CreateUser(tenant, auth.NewUser{Registration: auth.Registration(employee), Role: schema.EmployeeRole})
		if err != nil {
			return fmt.Errorf("error creating employee '%v': %w", employee.Username, err)
		}
	}

	ingredients := map[string]uuid.UUID{}
	for _, item := range store.Ingredients {
		ingredient := schema.Ingredient{Name: item.Name, Unit: item.Unit, CarbonFootprint: item.CarbonFootprint}
		if err := schema.CreateIngredient(tenant, &ingredient); err != nil {
			return fmt.Errorf("error creating ingredient '%v': %w", item.Name, err)
		}
		ingredients[item.Name] = ingredient.Id
	}

	recipes := map[string]uuid.UUID{}
	for _, item := range store.Recipes {
		components := make([]schema.Component, 0, len(item.Components))
		for _, line := range item.Components {
			ref, err := resolveComponent(line, ingredients, recipes)
			if err != nil {
				return fmt.Errorf("recipe '%v': %w", item.Name, err)
			}
			components = append(components, schema.Component{Ref: ref, Quantity: line.Quantity})
		}

		recipe := schema.Recipe{Name: item.Name, IsSubRecipe: item.SubRecipe, IsSellable: item.Sellable}
		if err := schema.CreateRecipe(tenant, &recipe, components); err != nil {
			return fmt.Errorf("error creating recipe '%v': %w", item.Name, err)
		}
		recipes[item.Name] = recipe.Id
	}

	slog.Info("seeded store", logging.Code(logging.SEED), "store_id", registered.Store.Id, "ingredients", len(ingredients), "recipes", len(recipes))

	return nil
}

func resolveComponent(line Component, ingredients, recipes map[string]uuid.UUID) (schema.ComponentRef, error) {
	if (line.Ingredient == "") == (line.Recipe == "") {
		return schema.ComponentRef{}, errors.New("component must name exactly one of ingredient or recipe")
	}
	if line.Ingredient != "" {
		id, ok := ingredients[line.Ingredient]
		if !ok {
			return schema.ComponentRef{}, fmt.Errorf("unknown ingredient '%v'", line.Ingredient)
		}
		return schema.IngredientRef(id), nil
	}
	id, ok := recipes[line.Recipe]
	if !ok {
		return schema.ComponentRef{}, fmt.Errorf("unknown recipe '%v', sub-recipes must be listed first", line.Recipe)
	}
	return schema.SubRecipeRef(id), nil
}
