package schema

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type RecipeFilter struct {
	Name      string
	Sellable  *bool
	SubRecipe *bool
}

func orderedComponents(db *gorm.DB) *gorm.DB {
	return db.Order("position")
}

func ListRecipes(t Tenant, filter RecipeFilter) ([]Recipe, error) {
	query := t.scoped("recipes").Preload("Ingredients", orderedComponents)
	if filter.Name != "" {
		query = query.Where("LOWER(name) LIKE ?", "%"+strings.ToLower(filter.Name)+"%")
	}
	if filter.Sellable != nil {
		query = query.Where("is_sellable = ?", *filter.Sellable)
	}
	if filter.SubRecipe != nil {
		query = query.Where("is_sub_recipe = ?", *filter.SubRecipe)
	}

	var recipes []Recipe
	if result := query.Order("name").Find(&recipes); result.Error != nil {
		return nil, translateError("list recipes", result.Error, nil)
	}
	return recipes, nil
}

func GetRecipe(t Tenant, id uuid.UUID) (Recipe, error) {
	var recipe Recipe
	result := t.scoped("recipes").Preload("Ingredients", orderedComponents).First(&recipe, "id = ?", id)
	if result.Error != nil {
		return recipe, translateError("get recipe", result.Error, ErrRecipeNotFound)
	}
	return recipe, nil
}

// RecipeNames maps recipe ids to names for the given ids.
func RecipeNames(t Tenant, ids []uuid.UUID) (map[uuid.UUID]string, error) {
	names := make(map[uuid.UUID]string, len(ids))
	if len(ids) == 0 {
		return names, nil
	}
	var recipes []Recipe
	if result := t.scoped("recipes").Select("id", "name").Where("id IN ?", ids).Find(&recipes); result.Error != nil {
		return nil, translateError("get recipe names", result.Error, nil)
	}
	for _, recipe := range recipes {
		names[recipe.Id] = recipe.Name
	}
	return names, nil
}

func recipeNameTaken(t Tenant, name string, exclude uuid.UUID) (bool, error) {
	var count int64
	result := t.scoped("recipes").Model(&Recipe{}).Where("name = ? AND id <> ?", name, exclude).Count(&count)
	if result.Error != nil {
		return false, translateError("check recipe name", result.Error, nil)
	}
	return count > 0, nil
}

// checkComponentsOwned verifies that every referenced ingredient and sub recipe
// belongs to the tenant.
func checkComponentsOwned(t Tenant, components []Component) error {
	ingredientIds := make([]uuid.UUID, 0)
	recipeIds := make([]uuid.UUID, 0)
	for _, c := range components {
		switch c.Ref.Kind() {
		case IngredientKind:
			ingredientIds = append(ingredientIds, c.Ref.Id())
		case RecipeKind:
			recipeIds = append(recipeIds, c.Ref.Id())
		default:
			return ErrInvalidRef
		}
	}

	ingredients, err := GetIngredients(t, ingredientIds)
	if err != nil {
		return err
	}
	for _, id := range ingredientIds {
		if _, ok := ingredients[id]; !ok {
			return fmt.Errorf("%w: %v", ErrIngredientNotFound, id)
		}
	}

	recipes, err := RecipeNames(t, recipeIds)
	if err != nil {
		return err
	}
	for _, id := range recipeIds {
		if _, ok := recipes[id]; !ok {
			return fmt.Errorf("%w: %v", ErrRecipeNotFound, id)
		}
	}

	return nil
}

func buildComponents(recipeId uuid.UUID, components []Component) []RecipeIngredient {
	rows := make([]RecipeIngredient, 0, len(components))
	for i, c := range components {
		ingredientId, childRecipeId := c.Ref.columns()
		rows = append(rows, RecipeIngredient{
			Id:            uuid.New(),
			RecipeId:      recipeId,
			Position:      i,
			IngredientId:  ingredientId,
			ChildRecipeId: childRecipeId,
			Quantity:      c.Quantity,
		})
	}
	return rows
}

// saveComponents validates ownership and acyclicity, then replaces the recipe's
// component list.
func saveComponents(txn Tenant, recipeId uuid.UUID, components []Component) ([]RecipeIngredient, error) {
	if err := checkComponentsOwned(txn, components); err != nil {
		return nil, err
	}

	graph, err := LoadBomGraph(txn)
	if err != nil {
		return nil, err
	}
	if err := graph.CheckAcyclic(recipeId, components); err != nil {
		return nil, err
	}

	result := txn.db.Where("recipe_id = ?", recipeId).Delete(&RecipeIngredient{})
	if result.Error != nil {
		return nil, translateError("delete recipe components", result.Error, nil)
	}

	rows := buildComponents(recipeId, components)
	if len(rows) > 0 {
		if result := txn.db.Create(&rows); result.Error != nil {
			return nil, translateError("create recipe components", result.Error, nil)
		}
	}
	return rows, nil
}

func CreateRecipe(t Tenant, recipe *Recipe, components []Component) error {
	recipe.Id = uuid.New()
	recipe.StoreId = t.storeId
	recipe.Ingredients = nil

	return t.Transaction(func(txn Tenant) error {
		taken, err := recipeNameTaken(txn, recipe.Name, recipe.Id)
		if err != nil {
			return err
		}
		if taken {
			return ErrDuplicateKey
		}

		if result := txn.db.Create(recipe); result.Error != nil {
			return translateError("create recipe", result.Error, nil)
		}

		rows, err := saveComponents(txn, recipe.Id, components)
		if err != nil {
			return err
		}
		recipe.Ingredients = rows
		return nil
	})
}

type RecipeUpdate struct {
	Name        string
	IsSubRecipe bool
	IsSellable  bool
	Components  []Component
}

func UpdateRecipe(t Tenant, id uuid.UUID, update RecipeUpdate) (Recipe, error) {
	var recipe Recipe
	err := t.Transaction(func(txn Tenant) error {
		var err error
		recipe, err = GetRecipe(txn, id)
		if err != nil {
			return err
		}

		if update.Name != recipe.Name {
			taken, err := recipeNameTaken(txn, update.Name, id)
			if err != nil {
				return err
			}
			if taken {
				return ErrDuplicateKey
			}
		}

		result := txn.db.Model(&Recipe{}).Where("id = ?", id).Updates(map[string]interface{}{
			"name":          update.Name,
			"is_sub_recipe": update.IsSubRecipe,
			"is_sellable":   update.IsSellable,
		})
		if result.Error != nil {
			return translateError("update recipe", result.Error, nil)
		}

		rows, err := saveComponents(txn, id, update.Components)
		if err != nil {
			return err
		}

		recipe.Name = update.Name
		recipe.IsSubRecipe = update.IsSubRecipe
		recipe.IsSellable = update.IsSellable
		recipe.Ingredients = rows
		return nil
	})
	return recipe, err
}

// RecipeReferences counts rows that block deleting a recipe.
func RecipeReferences(t Tenant, id uuid.UUID) (int64, error) {
	var parents int64
	result := t.db.Model(&RecipeIngredient{}).
		Joins("JOIN recipes ON recipes.id = recipe_ingredients.recipe_id").
		Where("recipes.store_id = ? AND recipe_ingredients.child_recipe_id = ?", t.storeId, id).
		Count(&parents)
	if result.Error != nil {
		return 0, translateError("count recipe parents", result.Error, nil)
	}

	var sales int64
	result = t.scoped("sales_data").Model(&SalesData{}).Where("recipe_id = ?", id).Count(&sales)
	if result.Error != nil {
		return 0, translateError("count recipe sales", result.Error, nil)
	}

	var waste int64
	result = t.scoped("wastage_data").Model(&WastageData{}).Where("recipe_id = ?", id).Count(&waste)
	if result.Error != nil {
		return 0, translateError("count recipe wastage", result.Error, nil)
	}

	return parents + sales + waste, nil
}

func DeleteRecipe(t Tenant, id uuid.UUID) error {
	return t.Transaction(func(txn Tenant) error {
		if _, err := GetRecipe(txn, id); err != nil {
			return err
		}

		refs, err := RecipeReferences(txn, id)
		if err != nil {
			return err
		}
		if refs > 0 {
			return ErrReferenced
		}

		if result := txn.db.Where("recipe_id = ?", id).Delete(&RecipeIngredient{}); result.Error != nil {
			return translateError("delete recipe components", result.Error, nil)
		}
		if result := txn.scoped("forecast_data").Delete(&ForecastData{}, "recipe_id = ?", id); result.Error != nil {
			return translateError("delete recipe forecasts", result.Error, nil)
		}
		if result := txn.scoped("recipes").Delete(&Recipe{}, "id = ?", id); result.Error != nil {
			return translateError("delete recipe", result.Error, nil)
		}
		return nil
	})
}
