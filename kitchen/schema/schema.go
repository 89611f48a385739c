package schema

import (
	"time"

	"github.com/google/uuid"
)

const (
	EmployeeRole = "Employee"
	ManagerRole  = "Manager"
)

const (
	ActiveStatus   = "Active"
	InactiveStatus = "Inactive"
)

func IsValidRole(role string) bool {
	return role == EmployeeRole || role == ManagerRole
}

func IsValidStatus(status string) bool {
	return status == ActiveStatus || status == InactiveStatus
}

// Store is the tenant boundary, every other tenant table carries its id.
type Store struct {
	Id int64 `gorm:"primaryKey;autoIncrement"`

	CompanyName   string `gorm:"size:200"`
	Uen           string `gorm:"size:50"`
	StoreName     string `gorm:"size:200"`
	Location      string `gorm:"size:500"`
	Latitude      *float64
	Longitude     *float64
	ContactNumber string `gorm:"size:20"`
	CountryCode   string `gorm:"size:3"`
	IsActive      bool   `gorm:"not null"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

// SetupRequired reports whether the store profile still needs to be filled in
// before the store can be used.
func (s *Store) SetupRequired() bool {
	return s.StoreName == "" || s.Location == ""
}

type User struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	StoreId int64  `gorm:"not null;index"`
	Store   *Store `gorm:"constraint:OnDelete:CASCADE"`

	Username string `gorm:"unique;size:50;not null"`
	Name     string `gorm:"size:100"`
	Email    string `gorm:"size:254;not null;index"`
	Password []byte

	Role   string `gorm:"size:20;not null"`
	Status string `gorm:"size:20;not null"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (u *User) IsManager() bool {
	return u.Role == ManagerRole
}

func (u *User) IsActive() bool {
	return u.Status == ActiveStatus
}

type Ingredient struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	StoreId int64  `gorm:"not null;uniqueIndex:idx_ingredient_store_name"`
	Store   *Store `gorm:"constraint:OnDelete:CASCADE"`

	Name            string  `gorm:"size:200;not null;uniqueIndex:idx_ingredient_store_name"`
	Unit            string  `gorm:"size:50;not null"`
	CarbonFootprint float64 `gorm:"not null;check:chk_ingredient_carbon_footprint,carbon_footprint >= 0"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

type Recipe struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	StoreId int64  `gorm:"not null;uniqueIndex:idx_recipe_store_name"`
	Store   *Store `gorm:"constraint:OnDelete:CASCADE"`

	Name        string `gorm:"size:200;not null;uniqueIndex:idx_recipe_store_name"`
	IsSubRecipe bool   `gorm:"not null"`
	IsSellable  bool   `gorm:"not null"`

	Ingredients []RecipeIngredient `gorm:"foreignKey:RecipeId;constraint:OnDelete:CASCADE"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

// RecipeIngredient is one line of a recipe's bill of materials. The two nullable
// references are the persisted form of a ComponentRef, exactly one is set.
type RecipeIngredient struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	RecipeId uuid.UUID `gorm:"type:uuid;not null;index"`
	Position int       `gorm:"not null"`

	IngredientId *uuid.UUID  `gorm:"type:uuid;index;check:chk_recipe_ingredient_ref,(ingredient_id IS NULL) <> (child_recipe_id IS NULL)"`
	Ingredient   *Ingredient `gorm:"foreignKey:IngredientId;constraint:OnDelete:RESTRICT"`

	ChildRecipeId *uuid.UUID `gorm:"type:uuid;index"`
	ChildRecipe   *Recipe    `gorm:"foreignKey:ChildRecipeId;constraint:OnDelete:RESTRICT"`

	Quantity float64 `gorm:"not null;check:chk_recipe_ingredient_quantity,quantity > 0"`
}

func (ri *RecipeIngredient) Ref() ComponentRef {
	if ri.IngredientId != nil {
		return IngredientRef(*ri.IngredientId)
	}
	if ri.ChildRecipeId != nil {
		return SubRecipeRef(*ri.ChildRecipeId)
	}
	return ComponentRef{}
}

type SalesData struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	StoreId int64  `gorm:"not null;uniqueIndex:idx_sales_store_date_recipe"`
	Store   *Store `gorm:"constraint:OnDelete:CASCADE"`

	Date     string    `gorm:"size:10;not null;uniqueIndex:idx_sales_store_date_recipe"`
	RecipeId uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_sales_store_date_recipe"`
	Recipe   *Recipe   `gorm:"constraint:OnDelete:RESTRICT"`
	Quantity int       `gorm:"not null;check:chk_sales_quantity,quantity >= 0"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

// WastageData records waste of either a raw ingredient or a finished recipe.
type WastageData struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	StoreId int64  `gorm:"not null;index:idx_wastage_store_date"`
	Store   *Store `gorm:"constraint:OnDelete:CASCADE"`

	Date string `gorm:"size:10;not null;index:idx_wastage_store_date"`

	IngredientId *uuid.UUID  `gorm:"type:uuid;index;check:chk_wastage_target,(ingredient_id IS NULL) <> (recipe_id IS NULL)"`
	Ingredient   *Ingredient `gorm:"foreignKey:IngredientId;constraint:OnDelete:RESTRICT"`

	RecipeId *uuid.UUID `gorm:"type:uuid;index"`
	Recipe   *Recipe    `gorm:"foreignKey:RecipeId;constraint:OnDelete:RESTRICT"`

	Quantity float64 `gorm:"not null;check:chk_wastage_quantity,quantity > 0"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (w *WastageData) Target() WasteTarget {
	if w.IngredientId != nil {
		return IngredientWaste(*w.IngredientId)
	}
	if w.RecipeId != nil {
		return RecipeWaste(*w.RecipeId)
	}
	return WasteTarget{}
}

const (
	HighConfidence   = "High"
	MediumConfidence = "Medium"
	LowConfidence    = "Low"
)

const (
	ModelSource     = "model"
	HeuristicSource = "heuristic"
)

type ForecastData struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	StoreId int64  `gorm:"not null;index:idx_forecast_store_date"`
	Store   *Store `gorm:"constraint:OnDelete:CASCADE"`

	RecipeId uuid.UUID `gorm:"type:uuid;not null;index"`
	Recipe   *Recipe   `gorm:"constraint:OnDelete:CASCADE"`

	ForecastDate      string  `gorm:"size:10;not null;index:idx_forecast_store_date"`
	PredictedQuantity float64 `gorm:"not null"`
	Confidence        string  `gorm:"size:10;not null"`
	Source            string  `gorm:"size:20;not null"`

	GeneratedAt time.Time
}

// GlobalCalendarSignals is a process wide cache of calendar and weather signals.
type GlobalCalendarSignals struct {
	Date            string `gorm:"size:10;primaryKey"`
	IsHoliday       bool   `gorm:"not null"`
	HolidayName     string `gorm:"size:200"`
	IsSchoolHoliday bool   `gorm:"not null"`
	RainMm          *float64
	WeatherDesc     string `gorm:"size:200"`

	UpdatedAt time.Time
}

func (GlobalCalendarSignals) TableName() string {
	return "global_calendar_signals"
}

type HolidayCalendar struct {
	CountryCode  string `gorm:"size:3;primaryKey"`
	Year         int    `gorm:"primaryKey;autoIncrement:false"`
	HolidaysJson string `gorm:"type:text;not null"`

	FetchedAt time.Time
}

type WeatherDaily struct {
	StoreId int64  `gorm:"primaryKey;autoIncrement:false"`
	Date    string `gorm:"size:10;primaryKey"`

	Temperature *float64
	Humidity    *float64
	RainMm      *float64
	Condition   string `gorm:"size:100"`
	Description string `gorm:"size:200"`

	FetchedAt time.Time
}

func (WeatherDaily) TableName() string {
	return "weather_daily"
}

// AllModels lists every table in migration order.
func AllModels() []interface{} {
	return []interface{}{
		&Store{}, &User{}, &Ingredient{}, &Recipe{}, &RecipeIngredient{},
		&SalesData{}, &WastageData{}, &ForecastData{},
		&GlobalCalendarSignals{}, &HolidayCalendar{}, &WeatherDaily{},
	}
}
