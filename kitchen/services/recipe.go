package services

import (
	"fmt"
	"log/slog"
	"net/http"
	"restaurant_platform/kitchen/auth"
	"restaurant_platform/kitchen/cache"
	"restaurant_platform/kitchen/schema"
	"restaurant_platform/utils"
	"restaurant_platform/utils/logging"
	"sort"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type RecipeService struct {
	db            *gorm.DB
	userAuth      auth.IdentityProvider
	forecastCache cache.ForecastCache
}

func (s *RecipeService) Routes() chi.Router {
	r := chi.NewRouter()

	r.Use(s.userAuth.AuthMiddleware()...)

	r.Get("/", s.List)
	r.Post("/", s.Create)
	r.Get("/{recipe_id}", s.Get)
	r.Put("/{recipe_id}", s.Update)
	r.Get("/{recipe_id}/cost", s.Cost)
	r.With(auth.ManagerOnly).Delete("/{recipe_id}", s.Delete)

	return r
}

type ComponentInfo struct {
	Kind          string     `json:"kind"`
	IngredientId  *uuid.UUID `json:"ingredient_id,omitempty"`
	ChildRecipeId *uuid.UUID `json:"child_recipe_id,omitempty"`
	Name          string     `json:"name"`
	Unit          string     `json:"unit,omitempty"`
	Quantity      float64    `json:"quantity"`
}

type RecipeInfo struct {
	Id          uuid.UUID       `json:"id"`
	Name        string          `json:"name"`
	IsSubRecipe bool            `json:"is_sub_recipe"`
	IsSellable  bool            `json:"is_sellable"`
	Ingredients []ComponentInfo `json:"ingredients"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// recipeInfos resolves component names for the recipes with two lookups.
func recipeInfos(t schema.Tenant, recipes []schema.Recipe) ([]RecipeInfo, error) {
	ingredientIds := make([]uuid.UUID, 0)
	recipeIds := make([]uuid.UUID, 0)
	for _, recipe := range recipes {
		for _, component := range recipe.Ingredients {
			ref := component.Ref()
			switch ref.Kind() {
			case schema.IngredientKind:
				ingredientIds = append(ingredientIds, ref.Id())
			case schema.RecipeKind:
				recipeIds = append(recipeIds, ref.Id())
			}
		}
	}

	ingredients, err := schema.GetIngredients(t, ingredientIds)
	if err != nil {
		return nil, err
	}
	recipeNames, err := schema.RecipeNames(t, recipeIds)
	if err != nil {
		return nil, err
	}

	infos := make([]RecipeInfo, 0, len(recipes))
	for _, recipe := range recipes {
		components := make([]ComponentInfo, 0, len(recipe.Ingredients))
		for _, component := range recipe.Ingredients {
			ref := component.Ref()
			info := ComponentInfo{
				Kind:          ref.Kind().String(),
				IngredientId:  component.IngredientId,
				ChildRecipeId: component.ChildRecipeId,
				Quantity:      component.Quantity,
			}
			switch ref.Kind() {
			case schema.IngredientKind:
				info.Name = ingredients[ref.Id()].Name
				info.Unit = ingredients[ref.Id()].Unit
			case schema.RecipeKind:
				info.Name = recipeNames[ref.Id()]
			}
			components = append(components, info)
		}

		infos = append(infos, RecipeInfo{
			Id:          recipe.Id,
			Name:        recipe.Name,
			IsSubRecipe: recipe.IsSubRecipe,
			IsSellable:  recipe.IsSellable,
			Ingredients: components,
			CreatedAt:   recipe.CreatedAt,
			UpdatedAt:   recipe.UpdatedAt,
		})
	}
	return infos, nil
}

func (s *RecipeService) List(w http.ResponseWriter, r *http.Request) {
	tenant, ok := requestTenant(s.db, w, r)
	if !ok {
		return
	}

	sellable, err := utils.QueryBool(r, "sellable")
	if err != nil {
		badRequest(w, err)
		return
	}
	subRecipe, err := utils.QueryBool(r, "sub_recipe")
	if err != nil {
		badRequest(w, err)
		return
	}

	recipes, err := schema.ListRecipes(tenant, schema.RecipeFilter{
		Name:      r.URL.Query().Get("name"),
		Sellable:  sellable,
		SubRecipe: subRecipe,
	})
	if err != nil {
		writeError(w, schemaError(err))
		return
	}

	infos, err := recipeInfos(tenant, recipes)
	if err != nil {
		writeError(w, schemaError(err))
		return
	}

	utils.WriteJsonResponse(w, infos)
}

func (s *RecipeService) writeRecipe(w http.ResponseWriter, t schema.Tenant, recipe schema.Recipe, code int) {
	infos, err := recipeInfos(t, []schema.Recipe{recipe})
	if err != nil {
		writeError(w, schemaError(err))
		return
	}
	utils.WriteJson(w, code, infos[0])
}

func (s *RecipeService) Get(w http.ResponseWriter, r *http.Request) {
	tenant, ok := requestTenant(s.db, w, r)
	if !ok {
		return
	}

	recipeId, err := utils.URLParamUUID(r, "recipe_id")
	if err != nil {
		badRequest(w, err)
		return
	}

	recipe, err := schema.GetRecipe(tenant, recipeId)
	if err != nil {
		writeError(w, schemaError(err))
		return
	}

	s.writeRecipe(w, tenant, recipe, http.StatusOK)
}

type componentRequest struct {
	IngredientId  *uuid.UUID `json:"ingredient_id"`
	ChildRecipeId *uuid.UUID `json:"child_recipe_id"`
	Quantity      float64    `json:"quantity" validate:"gt=0"`
}

type recipeRequest struct {
	Name        string             `json:"name" validate:"required,max=200"`
	IsSubRecipe bool               `json:"is_sub_recipe"`
	IsSellable  bool               `json:"is_sellable"`
	Ingredients []componentRequest `json:"ingredients" validate:"dive"`
}

// components validates the request and converts the component list, writing
// a 400 with per field messages on failure.
func (params *recipeRequest) components(w http.ResponseWriter) ([]schema.Component, bool) {
	fields := map[string]string{}
	if err := validate.Struct(params); err != nil {
		fields = fieldErrors(err)
	}

	components := make([]schema.Component, 0, len(params.Ingredients))
	for i, c := range params.Ingredients {
		ref, err := schema.NewComponentRef(c.IngredientId, c.ChildRecipeId)
		if err != nil {
			fields[fmt.Sprintf("ingredients[%d]", i)] = "exactly one of ingredient_id or child_recipe_id must be set"
			continue
		}
		components = append(components, schema.Component{Ref: ref, Quantity: c.Quantity})
	}

	if len(fields) > 0 {
		utils.WriteFieldErrors(w, "validation failed", fields)
		return nil, false
	}
	return components, true
}

func (s *RecipeService) Create(w http.ResponseWriter, r *http.Request) {
	tenant, ok := requestTenant(s.db, w, r)
	if !ok {
		return
	}

	var params recipeRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}
	components, ok := params.components(w)
	if !ok {
		return
	}

	recipe := schema.Recipe{Name: params.Name, IsSubRecipe: params.IsSubRecipe, IsSellable: params.IsSellable}
	if err := schema.CreateRecipe(tenant, &recipe, components); err != nil {
		writeError(w, schemaError(err))
		return
	}

	invalidateForecasts(r.Context(), s.forecastCache, tenant.StoreId())
	slog.Info("created recipe", logging.Code(logging.RECIPE), "store_id", tenant.StoreId(), "recipe_id", recipe.Id)

	s.writeRecipe(w, tenant, recipe, http.StatusCreated)
}

func (s *RecipeService) Update(w http.ResponseWriter, r *http.Request) {
	tenant, ok := requestTenant(s.db, w, r)
	if !ok {
		return
	}

	recipeId, err := utils.URLParamUUID(r, "recipe_id")
	if err != nil {
		badRequest(w, err)
		return
	}

	var params recipeRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}
	components, ok := params.components(w)
	if !ok {
		return
	}

	recipe, err := schema.UpdateRecipe(tenant, recipeId, schema.RecipeUpdate{
		Name:        params.Name,
		IsSubRecipe: params.IsSubRecipe,
		IsSellable:  params.IsSellable,
		Components:  components,
	})
	if err != nil {
		writeError(w, schemaError(err))
		return
	}

	invalidateForecasts(r.Context(), s.forecastCache, tenant.StoreId())
	slog.Info("updated recipe", logging.Code(logging.RECIPE), "store_id", tenant.StoreId(), "recipe_id", recipe.Id)

	s.writeRecipe(w, tenant, recipe, http.StatusOK)
}

func (s *RecipeService) Delete(w http.ResponseWriter, r *http.Request) {
	tenant, ok := requestTenant(s.db, w, r)
	if !ok {
		return
	}

	recipeId, err := utils.URLParamUUID(r, "recipe_id")
	if err != nil {
		badRequest(w, err)
		return
	}

	if err := schema.DeleteRecipe(tenant, recipeId); err != nil {
		writeError(w, schemaError(err))
		return
	}

	invalidateForecasts(r.Context(), s.forecastCache, tenant.StoreId())
	slog.Info("deleted recipe", logging.Code(logging.RECIPE), "store_id", tenant.StoreId(), "recipe_id", recipeId)

	utils.WriteSuccess(w)
}

type IngredientRequirement struct {
	IngredientId    uuid.UUID `json:"ingredient_id"`
	Name            string    `json:"name"`
	Unit            string    `json:"unit"`
	Quantity        float64   `json:"quantity"`
	CarbonFootprint float64   `json:"carbon_footprint"`
}

// ingredientRequirements resolves raw ingredient totals into a list sorted by name.
func ingredientRequirements(t schema.Tenant, totals map[uuid.UUID]float64) ([]IngredientRequirement, float64, error) {
	ids := make([]uuid.UUID, 0, len(totals))
	for id := range totals {
		ids = append(ids, id)
	}

	ingredients, err := schema.GetIngredients(t, ids)
	if err != nil {
		return nil, 0, err
	}

	requirements := make([]IngredientRequirement, 0, len(totals))
	totalFootprint := 0.0
	for id, quantity := range totals {
		ingredient := ingredients[id]
		footprint := quantity * ingredient.CarbonFootprint
		totalFootprint += footprint
		requirements = append(requirements, IngredientRequirement{
			IngredientId:    id,
			Name:            ingredient.Name,
			Unit:            ingredient.Unit,
			Quantity:        quantity,
			CarbonFootprint: footprint,
		})
	}

	sort.Slice(requirements, func(i, j int) bool {
		return requirements[i].Name < requirements[j].Name
	})

	return requirements, totalFootprint, nil
}

type recipeCostResponse struct {
	RecipeId        uuid.UUID               `json:"recipe_id"`
	Quantity        float64                 `json:"quantity"`
	Ingredients     []IngredientRequirement `json:"ingredients"`
	CarbonFootprint float64                 `json:"carbon_footprint"`
}

func (s *RecipeService) Cost(w http.ResponseWriter, r *http.Request) {
	tenant, ok := requestTenant(s.db, w, r)
	if !ok {
		return
	}

	recipeId, err := utils.URLParamUUID(r, "recipe_id")
	if err != nil {
		badRequest(w, err)
		return
	}

	quantity := 1.0
	if value := r.URL.Query().Get("quantity"); value != "" {
		quantity, err = strconv.ParseFloat(value, 64)
		if err != nil || quantity <= 0 {
			badRequest(w, fmt.Errorf("query param quantity must be a positive number, got '%v'", value))
			return
		}
	}

	if _, err := schema.GetRecipe(tenant, recipeId); err != nil {
		writeError(w, schemaError(err))
		return
	}

	graph, err := schema.LoadBomGraph(tenant)
	if err != nil {
		writeError(w, schemaError(err))
		return
	}

	totals := map[uuid.UUID]float64{}
	graph.Expand(recipeId, quantity, totals)

	requirements, footprint, err := ingredientRequirements(tenant, totals)
	if err != nil {
		writeError(w, schemaError(err))
		return
	}

	utils.WriteJsonResponse(w, recipeCostResponse{
		RecipeId:        recipeId,
		Quantity:        quantity,
		Ingredients:     requirements,
		CarbonFootprint: footprint,
	})
}
