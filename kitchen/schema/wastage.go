package schema

import (
	"fmt"

	"github.com/google/uuid"
)

type WastageFilter struct {
	DateFilter
	IngredientId *uuid.UUID
	RecipeId     *uuid.UUID
}

func ListWastage(t Tenant, filter WastageFilter) ([]WastageData, error) {
	query := t.scoped("wastage_data")
	if filter.StartDate != "" {
		query = query.Where("date >= ?", filter.StartDate)
	}
	if filter.EndDate != "" {
		query = query.Where("date <= ?", filter.EndDate)
	}
	if filter.IngredientId != nil {
		query = query.Where("ingredient_id = ?", *filter.IngredientId)
	}
	if filter.RecipeId != nil {
		query = query.Where("recipe_id = ?", *filter.RecipeId)
	}

	var wastage []WastageData
	if result := query.Order("date, created_at").Find(&wastage); result.Error != nil {
		return nil, translateError("list wastage", result.Error, nil)
	}
	return wastage, nil
}

func GetWastage(t Tenant, id uuid.UUID) (WastageData, error) {
	var wastage WastageData
	result := t.scoped("wastage_data").First(&wastage, "id = ?", id)
	if result.Error != nil {
		return wastage, translateError("get wastage", result.Error, ErrWastageNotFound)
	}
	return wastage, nil
}

func checkWasteTargetOwned(t Tenant, target WasteTarget) error {
	switch target.Kind() {
	case IngredientKind:
		if _, err := GetIngredient(t, target.Id()); err != nil {
			return err
		}
		return nil
	case RecipeKind:
		return checkRecipeOwned(t, target.Id())
	default:
		return ErrInvalidWasteTarget
	}
}

func CreateWastage(t Tenant, date string, target WasteTarget, quantity float64) (WastageData, error) {
	ingredientId, recipeId := target.columns()
	wastage := WastageData{
		Id:           uuid.New(),
		StoreId:      t.storeId,
		Date:         date,
		IngredientId: ingredientId,
		RecipeId:     recipeId,
		Quantity:     quantity,
	}

	err := t.Transaction(func(txn Tenant) error {
		if err := checkWasteTargetOwned(txn, target); err != nil {
			return err
		}
		if result := txn.db.Create(&wastage); result.Error != nil {
			return translateError("create wastage", result.Error, nil)
		}
		return nil
	})
	return wastage, err
}

func UpdateWastage(t Tenant, id uuid.UUID, date string, target WasteTarget, quantity float64) (WastageData, error) {
	var wastage WastageData
	err := t.Transaction(func(txn Tenant) error {
		var err error
		wastage, err = GetWastage(txn, id)
		if err != nil {
			return err
		}
		if err := checkWasteTargetOwned(txn, target); err != nil {
			return err
		}

		wastage.Date = date
		wastage.IngredientId, wastage.RecipeId = target.columns()
		wastage.Quantity = quantity
		if result := txn.db.Save(&wastage); result.Error != nil {
			return translateError("update wastage", result.Error, nil)
		}
		return nil
	})
	return wastage, err
}

func DeleteWastage(t Tenant, id uuid.UUID) error {
	result := t.scoped("wastage_data").Delete(&WastageData{}, "id = ?", id)
	if result.Error != nil {
		return translateError("delete wastage", result.Error, nil)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: %v", ErrWastageNotFound, id)
	}
	return nil
}
