package schema

import (
	"strings"

	"github.com/google/uuid"
)

type IngredientFilter struct {
	Name string
}

func ListIngredients(t Tenant, filter IngredientFilter) ([]Ingredient, error) {
	query := t.scoped("ingredients")
	if filter.Name != "" {
		query = query.Where("LOWER(name) LIKE ?", "%"+strings.ToLower(filter.Name)+"%")
	}

	var ingredients []Ingredient
	if result := query.Order("name").Find(&ingredients); result.Error != nil {
		return nil, translateError("list ingredients", result.Error, nil)
	}
	return ingredients, nil
}

func GetIngredient(t Tenant, id uuid.UUID) (Ingredient, error) {
	var ingredient Ingredient
	result := t.scoped("ingredients").First(&ingredient, "id = ?", id)
	if result.Error != nil {
		return ingredient, translateError("get ingredient", result.Error, ErrIngredientNotFound)
	}
	return ingredient, nil
}

func GetIngredients(t Tenant, ids []uuid.UUID) (map[uuid.UUID]Ingredient, error) {
	out := make(map[uuid.UUID]Ingredient, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var ingredients []Ingredient
	if result := t.scoped("ingredients").Where("id IN ?", ids).Find(&ingredients); result.Error != nil {
		return nil, translateError("get ingredients", result.Error, nil)
	}
	for _, ingredient := range ingredients {
		out[ingredient.Id] = ingredient
	}
	return out, nil
}

// ingredientNameTaken checks (store, name) uniqueness, ignoring the given id.
func ingredientNameTaken(t Tenant, name string, exclude uuid.UUID) (bool, error) {
	var count int64
	result := t.scoped("ingredients").Model(&Ingredient{}).Where("name = ? AND id <> ?", name, exclude).Count(&count)
	if result.Error != nil {
		return false, translateError("check ingredient name", result.Error, nil)
	}
	return count > 0, nil
}

func CreateIngredient(t Tenant, ingredient *Ingredient) error {
	ingredient.Id = uuid.New()
	ingredient.StoreId = t.storeId

	return t.Transaction(func(txn Tenant) error {
		taken, err := ingredientNameTaken(txn, ingredient.Name, ingredient.Id)
		if err != nil {
			return err
		}
		if taken {
			return ErrDuplicateKey
		}
		if result := txn.db.Create(ingredient); result.Error != nil {
			return translateError("create ingredient", result.Error, nil)
		}
		return nil
	})
}

func UpdateIngredient(t Tenant, id uuid.UUID, name, unit string, carbonFootprint float64) (Ingredient, error) {
	var ingredient Ingredient
	err := t.Transaction(func(txn Tenant) error {
		var err error
		ingredient, err = GetIngredient(txn, id)
		if err != nil {
			return err
		}

		if name != ingredient.Name {
			taken, err := ingredientNameTaken(txn, name, id)
			if err != nil {
				return err
			}
			if taken {
				return ErrDuplicateKey
			}
		}

		ingredient.Name = name
		ingredient.Unit = unit
		ingredient.CarbonFootprint = carbonFootprint

		if result := txn.db.Save(&ingredient); result.Error != nil {
			return translateError("update ingredient", result.Error, nil)
		}
		return nil
	})
	return ingredient, err
}

// IngredientReferences counts rows that block deleting an ingredient.
func IngredientReferences(t Tenant, id uuid.UUID) (int64, error) {
	var components int64
	result := t.db.Model(&RecipeIngredient{}).
		Joins("JOIN recipes ON recipes.id = recipe_ingredients.recipe_id").
		Where("recipes.store_id = ? AND recipe_ingredients.ingredient_id = ?", t.storeId, id).
		Count(&components)
	if result.Error != nil {
		return 0, translateError("count ingredient components", result.Error, nil)
	}

	var waste int64
	result = t.scoped("wastage_data").Model(&WastageData{}).Where("ingredient_id = ?", id).Count(&waste)
	if result.Error != nil {
		return 0, translateError("count ingredient wastage", result.Error, nil)
	}

	return components + waste, nil
}

func DeleteIngredient(t Tenant, id uuid.UUID) error {
	return t.Transaction(func(txn Tenant) error {
		if _, err := GetIngredient(txn, id); err != nil {
			return err
		}

		refs, err := IngredientReferences(txn, id)
		if err != nil {
			return err
		}
		if refs > 0 {
			return ErrReferenced
		}

		result := txn.scoped("ingredients").Delete(&Ingredient{}, "id = ?", id)
		if result.Error != nil {
			return translateError("delete ingredient", result.Error, nil)
		}
		return nil
	})
}
