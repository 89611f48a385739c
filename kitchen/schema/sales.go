package schema

import (
	"fmt"

	"github.com/google/uuid"
)

type DateFilter struct {
	StartDate string
	EndDate   string
}

type SalesFilter struct {
	DateFilter
	RecipeId *uuid.UUID
}

func ListSales(t Tenant, filter SalesFilter) ([]SalesData, error) {
	query := t.scoped("sales_data")
	if filter.StartDate != "" {
		query = query.Where("date >= ?", filter.StartDate)
	}
	if filter.EndDate != "" {
		query = query.Where("date <= ?", filter.EndDate)
	}
	if filter.RecipeId != nil {
		query = query.Where("recipe_id = ?", *filter.RecipeId)
	}

	var sales []SalesData
	if result := query.Order("date, recipe_id").Find(&sales); result.Error != nil {
		return nil, translateError("list sales", result.Error, nil)
	}
	return sales, nil
}

func GetSales(t Tenant, id uuid.UUID) (SalesData, error) {
	var sales SalesData
	result := t.scoped("sales_data").First(&sales, "id = ?", id)
	if result.Error != nil {
		return sales, translateError("get sales", result.Error, ErrSalesNotFound)
	}
	return sales, nil
}

func checkRecipeOwned(t Tenant, recipeId uuid.UUID) error {
	var count int64
	result := t.scoped("recipes").Model(&Recipe{}).Where("id = ?", recipeId).Count(&count)
	if result.Error != nil {
		return translateError("check recipe", result.Error, nil)
	}
	if count == 0 {
		return fmt.Errorf("%w: %v", ErrRecipeNotFound, recipeId)
	}
	return nil
}

func findSales(t Tenant, date string, recipeId uuid.UUID) (SalesData, bool, error) {
	var sales SalesData
	result := t.scoped("sales_data").Limit(1).Find(&sales, "date = ? AND recipe_id = ?", date, recipeId)
	if result.Error != nil {
		return sales, false, translateError("find sales", result.Error, nil)
	}
	return sales, result.RowsAffected > 0, nil
}

// CreateSales inserts one row; a second row for the same (date, recipe) is a duplicate.
func CreateSales(t Tenant, sales *SalesData) error {
	sales.Id = uuid.New()
	sales.StoreId = t.storeId

	return t.Transaction(func(txn Tenant) error {
		if err := checkRecipeOwned(txn, sales.RecipeId); err != nil {
			return err
		}
		if _, exists, err := findSales(txn, sales.Date, sales.RecipeId); err != nil {
			return err
		} else if exists {
			return ErrDuplicateKey
		}
		if result := txn.db.Create(sales); result.Error != nil {
			return translateError("create sales", result.Error, nil)
		}
		return nil
	})
}

func UpdateSales(t Tenant, id uuid.UUID, date string, recipeId uuid.UUID, quantity int) (SalesData, error) {
	var sales SalesData
	err := t.Transaction(func(txn Tenant) error {
		var err error
		sales, err = GetSales(txn, id)
		if err != nil {
			return err
		}

		if date != sales.Date || recipeId != sales.RecipeId {
			if err := checkRecipeOwned(txn, recipeId); err != nil {
				return err
			}
			existing, exists, err := findSales(txn, date, recipeId)
			if err != nil {
				return err
			}
			if exists && existing.Id != id {
				return ErrDuplicateKey
			}
		}

		sales.Date = date
		sales.RecipeId = recipeId
		sales.Quantity = quantity
		if result := txn.db.Save(&sales); result.Error != nil {
			return translateError("update sales", result.Error, nil)
		}
		return nil
	})
	return sales, err
}

func DeleteSales(t Tenant, id uuid.UUID) error {
	result := t.scoped("sales_data").Delete(&SalesData{}, "id = ?", id)
	if result.Error != nil {
		return translateError("delete sales", result.Error, nil)
	}
	if result.RowsAffected == 0 {
		return ErrSalesNotFound
	}
	return nil
}

// UpsertSales writes a batch of rows, replacing the quantity of rows that
// already exist for the same (date, recipe). It returns the number of rows written.
func UpsertSales(t Tenant, rows []SalesData) (int, error) {
	written := 0
	err := t.Transaction(func(txn Tenant) error {
		for _, row := range rows {
			if err := checkRecipeOwned(txn, row.RecipeId); err != nil {
				return err
			}

			existing, exists, err := findSales(txn, row.Date, row.RecipeId)
			if err != nil {
				return err
			}

			if exists {
				result := txn.db.Model(&existing).Update("quantity", row.Quantity)
				if result.Error != nil {
					return translateError("update imported sales", result.Error, nil)
				}
			} else {
				row.Id = uuid.New()
				row.StoreId = txn.storeId
				if result := txn.db.Create(&row); result.Error != nil {
					return translateError("create imported sales", result.Error, nil)
				}
			}
			written++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return written, nil
}
