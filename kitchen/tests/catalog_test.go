package tests

import (
	"fmt"
	"net/http"
	"restaurant_platform/kitchen/services"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIngredientCrud(t *testing.T) {
	env := setupTestEnv(t)
	c := env.newManager(t, "manager")

	flour, err := c.createIngredient("Flour", "g", 0.0012)
	require.NoError(t, err)
	_, err = c.createIngredient("Sugar", "g", 0.002)
	require.NoError(t, err)

	_, err = c.createIngredient("Flour", "kg", 1)
	assert.Equal(t, http.StatusConflict, statusOf(err))

	var found []services.IngredientInfo
	require.NoError(t, c.Get("/ingredients?name=flo").Do(&found))
	require.Len(t, found, 1)
	assert.Equal(t, flour.Id, found[0].Id)

	var updated services.IngredientInfo
	err = c.Put("/ingredients/" + flour.Id.String()).Json(map[string]interface{}{
		"name": "Bread Flour", "unit": "g", "carbon_footprint": 0.0015,
	}).Do(&updated)
	require.NoError(t, err)
	assert.Equal(t, "Bread Flour", updated.Name)
	assert.InDelta(t, 0.0015, updated.CarbonFootprint, 1e-9)

	err = c.Put("/ingredients/" + flour.Id.String()).Json(map[string]interface{}{
		"name": "Sugar", "unit": "g", "carbon_footprint": 0.0015,
	}).Do(nil)
	assert.Equal(t, http.StatusConflict, statusOf(err))

	require.NoError(t, c.Delete("/ingredients/"+flour.Id.String()).Do(nil))
	assert.Equal(t, http.StatusNotFound, statusOf(c.Get("/ingredients/"+flour.Id.String()).Do(nil)))
}

func TestIngredientValidation(t *testing.T) {
	env := setupTestEnv(t)
	c := env.newManager(t, "manager")

	_, err := c.createIngredient("", "g", -1)
	require.Equal(t, http.StatusBadRequest, statusOf(err))
	fields := fieldsOf(err)
	assert.Contains(t, fields, "name")
	assert.Contains(t, fields, "carbon_footprint")

	assert.Equal(t, http.StatusBadRequest, statusOf(c.Get("/ingredients/not-a-uuid").Do(nil)))
}

func TestCatalogIsScopedToStore(t *testing.T) {
	env := setupTestEnv(t)
	a := env.newManager(t, "alice")
	b := env.newManager(t, "bobby")

	butter, err := a.createIngredient("Butter", "g", 0.009)
	require.NoError(t, err)

	// names only need to be unique within a store
	_, err = b.createIngredient("Butter", "g", 0.009)
	require.NoError(t, err)

	assert.Equal(t, http.StatusNotFound, statusOf(b.Get("/ingredients/"+butter.Id.String()).Do(nil)))
	assert.Equal(t, http.StatusNotFound, statusOf(b.Delete("/ingredients/"+butter.Id.String()).Do(nil)))

	_, err = b.createRecipe("Toast", true, ingredientLine(butter.Id, 10))
	assert.Equal(t, http.StatusNotFound, statusOf(err))

	var list []services.IngredientInfo
	require.NoError(t, b.Get("/ingredients").Do(&list))
	require.Len(t, list, 1)
	assert.NotEqual(t, butter.Id, list[0].Id)
}

type burgerFixture struct {
	beef, salt, bun services.IngredientInfo
	patty, burger   services.RecipeInfo
}

func createBurger(t *testing.T, c client) burgerFixture {
	var f burgerFixture
	var err error

	f.beef, err = c.createIngredient("Beef", "g", 0.027)
	require.NoError(t, err)
	f.salt, err = c.createIngredient("Salt", "g", 0)
	require.NoError(t, err)
	f.bun, err = c.createIngredient("Bun", "pcs", 0.1)
	require.NoError(t, err)

	f.patty, err = c.createRecipe("Patty", false, ingredientLine(f.beef.Id, 150), ingredientLine(f.salt.Id, 2))
	require.NoError(t, err)

	f.burger, err = c.createRecipe("Burger", true, ingredientLine(f.bun.Id, 1), subRecipeLine(f.patty.Id, 2))
	require.NoError(t, err)

	return f
}

func TestRecipeComposition(t *testing.T) {
	env := setupTestEnv(t)
	c := env.newManager(t, "manager")
	f := createBurger(t, c)

	var burger services.RecipeInfo
	require.NoError(t, c.Get("/recipes/"+f.burger.Id.String()).Do(&burger))
	assert.True(t, burger.IsSellable)
	require.Len(t, burger.Ingredients, 2)

	assert.Equal(t, "ingredient", burger.Ingredients[0].Kind)
	assert.Equal(t, "Bun", burger.Ingredients[0].Name)
	assert.Nil(t, burger.Ingredients[0].ChildRecipeId)

	assert.Equal(t, "recipe", burger.Ingredients[1].Kind)
	assert.Equal(t, "Patty", burger.Ingredients[1].Name)
	require.NotNil(t, burger.Ingredients[1].ChildRecipeId)
	assert.Equal(t, f.patty.Id, *burger.Ingredients[1].ChildRecipeId)

	var sellable []services.RecipeInfo
	require.NoError(t, c.Get("/recipes?sellable=true").Do(&sellable))
	require.Len(t, sellable, 1)
	assert.Equal(t, "Burger", sellable[0].Name)
}

func TestRecipeCost(t *testing.T) {
	env := setupTestEnv(t)
	c := env.newManager(t, "manager")
	f := createBurger(t, c)

	var cost struct {
		Quantity        float64                          `json:"quantity"`
		Ingredients     []services.IngredientRequirement `json:"ingredients"`
		CarbonFootprint float64                          `json:"carbon_footprint"`
	}
	require.NoError(t, c.Get(fmt.Sprintf("/recipes/%v/cost?quantity=3", f.burger.Id)).Do(&cost))

	byName := map[string]float64{}
	for _, item := range cost.Ingredients {
		byName[item.Name] = item.Quantity
	}
	assert.InDelta(t, 900, byName["Beef"], 1e-9)
	assert.InDelta(t, 12, byName["Salt"], 1e-9)
	assert.InDelta(t, 3, byName["Bun"], 1e-9)
	assert.InDelta(t, 900*0.027+3*0.1, cost.CarbonFootprint, 1e-9)

	assert.Equal(t, http.StatusBadRequest, statusOf(c.Get(fmt.Sprintf("/recipes/%v/cost?quantity=-1", f.burger.Id)).Do(nil)))
}

func TestRecipeComponentMustReferenceExactlyOne(t *testing.T) {
	env := setupTestEnv(t)
	c := env.newManager(t, "manager")
	f := createBurger(t, c)

	both := component{IngredientId: &f.beef.Id, ChildRecipeId: &f.patty.Id, Quantity: 1}
	_, err := c.createRecipe("Broken", true, ingredientLine(f.bun.Id, 1), both)
	require.Equal(t, http.StatusBadRequest, statusOf(err))
	assert.Contains(t, fieldsOf(err), "ingredients[1]")

	_, err = c.createRecipe("Empty", true, component{Quantity: 1})
	require.Equal(t, http.StatusBadRequest, statusOf(err))
	assert.Contains(t, fieldsOf(err), "ingredients[0]")

	_, err = c.createRecipe("Zero", true, ingredientLine(f.bun.Id, 0))
	require.Equal(t, http.StatusBadRequest, statusOf(err))
	assert.Contains(t, fieldsOf(err), "ingredients[0].quantity")
}

func TestRecipeCycleIsRejected(t *testing.T) {
	env := setupTestEnv(t)
	c := env.newManager(t, "manager")
	f := createBurger(t, c)

	update := func(recipe services.RecipeInfo, components ...component) error {
		return c.Put("/recipes/" + recipe.Id.String()).Json(recipeBody{
			Name:        recipe.Name,
			IsSubRecipe: recipe.IsSubRecipe,
			IsSellable:  recipe.IsSellable,
			Ingredients: components,
		}).Do(nil)
	}

	err := update(f.patty, ingredientLine(f.beef.Id, 150), subRecipeLine(f.burger.Id, 1))
	assert.Equal(t, http.StatusConflict, statusOf(err))

	err = update(f.patty, subRecipeLine(f.patty.Id, 1))
	assert.Equal(t, http.StatusConflict, statusOf(err))

	// the rejected update leaves the recipe unchanged
	var patty services.RecipeInfo
	require.NoError(t, c.Get("/recipes/"+f.patty.Id.String()).Do(&patty))
	require.Len(t, patty.Ingredients, 2)
	assert.Equal(t, "Beef", patty.Ingredients[0].Name)
}

func TestReferencedRecordsCannotBeDeleted(t *testing.T) {
	env := setupTestEnv(t)
	c := env.newManager(t, "manager")
	f := createBurger(t, c)

	assert.Equal(t, http.StatusConflict, statusOf(c.Delete("/ingredients/"+f.beef.Id.String()).Do(nil)))
	assert.Equal(t, http.StatusConflict, statusOf(c.Delete("/recipes/"+f.patty.Id.String()).Do(nil)))

	_, err := c.recordSales(isoDate(today()), f.burger.Id, 4)
	require.NoError(t, err)
	assert.Equal(t, http.StatusConflict, statusOf(c.Delete("/recipes/"+f.burger.Id.String()).Do(nil)))

	assert.Equal(t, http.StatusNotFound, statusOf(c.Delete("/recipes/"+uuid.NewString()).Do(nil)))
}
