package services

import (
	"log/slog"
	"net/http"
	"restaurant_platform/kitchen/auth"
	"restaurant_platform/kitchen/schema"
	"restaurant_platform/utils"
	"restaurant_platform/utils/logging"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type IngredientService struct {
	db       *gorm.DB
	userAuth auth.IdentityProvider
}

func (s *IngredientService) Routes() chi.Router {
	r := chi.NewRouter()

	r.Use(s.userAuth.AuthMiddleware()...)

	r.Get("/", s.List)
	r.Post("/", s.Create)
	r.Get("/{ingredient_id}", s.Get)
	r.Put("/{ingredient_id}", s.Update)
	r.With(auth.ManagerOnly).Delete("/{ingredient_id}", s.Delete)

	return r
}

type IngredientInfo struct {
	Id              uuid.UUID `json:"id"`
	Name            string    `json:"name"`
	Unit            string    `json:"unit"`
	CarbonFootprint float64   `json:"carbon_footprint"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func convertToIngredientInfo(ingredient schema.Ingredient) IngredientInfo {
	return IngredientInfo{
		Id:              ingredient.Id,
		Name:            ingredient.Name,
		Unit:            ingredient.Unit,
		CarbonFootprint: ingredient.CarbonFootprint,
		CreatedAt:       ingredient.CreatedAt,
		UpdatedAt:       ingredient.UpdatedAt,
	}
}

func (s *IngredientService) List(w http.ResponseWriter, r *http.Request) {
	tenant, ok := requestTenant(s.db, w, r)
	if !ok {
		return
	}

	ingredients, err := schema.ListIngredients(tenant, schema.IngredientFilter{Name: r.URL.Query().Get("name")})
	if err != nil {
		writeError(w, schemaError(err))
		return
	}

	infos := make([]IngredientInfo, 0, len(ingredients))
	for _, ingredient := range ingredients {
		infos = append(infos, convertToIngredientInfo(ingredient))
	}

	utils.WriteJsonResponse(w, infos)
}

func (s *IngredientService) Get(w http.ResponseWriter, r *http.Request) {
	tenant, ok := requestTenant(s.db, w, r)
	if !ok {
		return
	}

	ingredientId, err := utils.URLParamUUID(r, "ingredient_id")
	if err != nil {
		badRequest(w, err)
		return
	}

	ingredient, err := schema.GetIngredient(tenant, ingredientId)
	if err != nil {
		writeError(w, schemaError(err))
		return
	}

	utils.WriteJsonResponse(w, convertToIngredientInfo(ingredient))
}

type ingredientRequest struct {
	Name            string  `json:"name" validate:"required,max=200"`
	Unit            string  `json:"unit" validate:"required,max=50"`
	CarbonFootprint float64 `json:"carbon_footprint" validate:"gte=0"`
}

func (s *IngredientService) Create(w http.ResponseWriter, r *http.Request) {
	tenant, ok := requestTenant(s.db, w, r)
	if !ok {
		return
	}

	var params ingredientRequest
	if !parseValidBody(w, r, &params) {
		return
	}

	ingredient := schema.Ingredient{Name: params.Name, Unit: params.Unit, CarbonFootprint: params.CarbonFootprint}
	if err := schema.CreateIngredient(tenant, &ingredient); err != nil {
		writeError(w, schemaError(err))
		return
	}

	slog.Info("created ingredient", logging.Code(logging.INVENTORY), "store_id", tenant.StoreId(), "ingredient_id", ingredient.Id)

	utils.WriteCreated(w, convertToIngredientInfo(ingredient))
}

func (s *IngredientService) Update(w http.ResponseWriter, r *http.Request) {
	tenant, ok := requestTenant(s.db, w, r)
	if !ok {
		return
	}

	ingredientId, err := utils.URLParamUUID(r, "ingredient_id")
	if err != nil {
		badRequest(w, err)
		return
	}

	var params ingredientRequest
	if !parseValidBody(w, r, &params) {
		return
	}

	ingredient, err := schema.UpdateIngredient(tenant, ingredientId, params.Name, params.Unit, params.CarbonFootprint)
	if err != nil {
		writeError(w, schemaError(err))
		return
	}

	utils.WriteJsonResponse(w, convertToIngredientInfo(ingredient))
}

func (s *IngredientService) Delete(w http.ResponseWriter, r *http.Request) {
	tenant, ok := requestTenant(s.db, w, r)
	if !ok {
		return
	}

	ingredientId, err := utils.URLParamUUID(r, "ingredient_id")
	if err != nil {
		badRequest(w, err)
		return
	}

	if err := schema.DeleteIngredient(tenant, ingredientId); err != nil {
		writeError(w, schemaError(err))
		return
	}

	slog.Info("deleted ingredient", logging.Code(logging.INVENTORY), "store_id", tenant.StoreId(), "ingredient_id", ingredientId)

	utils.WriteSuccess(w)
}
