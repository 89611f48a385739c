package versions

import (
	"log"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

func Migration_1_initial_schema(txn *gorm.DB) error {
	log.Println("creating store, catalog and sales tables")

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

	// display names arrive in migration 3
	type User struct {
		Id uuid.UUID `gorm:"type:uuid;primaryKey"`

		StoreId int64  `gorm:"not null;index"`
		Store   *Store `gorm:"constraint:OnDelete:CASCADE"`

		Username string `gorm:"unique;size:50;not null"`
		Email    string `gorm:"size:254;not null;index"`
		Password []byte

		Role   string `gorm:"size:20;not null"`
		Status string `gorm:"size:20;not null"`

		CreatedAt time.Time
		UpdatedAt time.Time
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

		CreatedAt time.Time
		UpdatedAt time.Time
	}

	type RecipeIngredient struct {
		Id uuid.UUID `gorm:"type:uuid;primaryKey"`

		RecipeId uuid.UUID `gorm:"type:uuid;not null;index"`
		Recipe   *Recipe   `gorm:"foreignKey:RecipeId;constraint:OnDelete:CASCADE"`
		Position int       `gorm:"not null"`

		IngredientId *uuid.UUID  `gorm:"type:uuid;index;check:chk_recipe_ingredient_ref,(ingredient_id IS NULL) <> (child_recipe_id IS NULL)"`
		Ingredient   *Ingredient `gorm:"foreignKey:IngredientId;constraint:OnDelete:RESTRICT"`

		ChildRecipeId *uuid.UUID `gorm:"type:uuid;index"`
		ChildRecipe   *Recipe    `gorm:"foreignKey:ChildRecipeId;constraint:OnDelete:RESTRICT"`

		Quantity float64 `gorm:"not null;check:chk_recipe_ingredient_quantity,quantity > 0"`
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

	return txn.Migrator().AutoMigrate(
		&Store{}, &User{}, &Ingredient{}, &Recipe{}, &RecipeIngredient{},
		&SalesData{}, &WastageData{}, &ForecastData{},
	)
}

func Rollback_1_initial_schema(txn *gorm.DB) error {
	return txn.Migrator().DropTable(
		"forecast_data", "wastage_data", "sales_data", "recipe_ingredients",
		"recipes", "ingredients", "users", "stores",
	)
}
