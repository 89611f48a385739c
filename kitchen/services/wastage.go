package services

import (
	"log/slog"
	"net/http"
	"restaurant_platform/kitchen/auth"
	"restaurant_platform/kitchen/schema"
	"restaurant_platform/utils"
	"restaurant_platform/utils/logging"
	"sort"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type WastageService struct {
	db       *gorm.DB
	userAuth auth.IdentityProvider
}

func (s *WastageService) Routes() chi.Router {
	r := chi.NewRouter()

	r.Use(s.userAuth.AuthMiddleware()...)

	r.Get("/", s.List)
	r.Post("/", s.Create)
	r.Get("/trend", s.Trend)
	r.Get("/{wastage_id}", s.Get)
	r.Put("/{wastage_id}", s.Update)
	r.Delete("/{wastage_id}", s.Delete)

	return r
}

type WastageInfo struct {
	Id           uuid.UUID  `json:"id"`
	Date         string     `json:"date"`
	Kind         string     `json:"kind"`
	IngredientId *uuid.UUID `json:"ingredient_id,omitempty"`
	RecipeId     *uuid.UUID `json:"recipe_id,omitempty"`
	Name         string     `json:"name"`
	Quantity     float64    `json:"quantity"`
}

// wasteNames resolves the display name of every waste target in rows.
func wasteNames(t schema.Tenant, rows []schema.WastageData) (map[uuid.UUID]string, error) {
	ingredientIds := make([]uuid.UUID, 0)
	recipeIds := make([]uuid.UUID, 0)
	for _, row := range rows {
		target := row.Target()
		switch target.Kind() {
		case schema.IngredientKind:
			ingredientIds = append(ingredientIds, target.Id())
		case schema.RecipeKind:
			recipeIds = append(recipeIds, target.Id())
		}
	}

	names, err := schema.RecipeNames(t, recipeIds)
	if err != nil {
		return nil, err
	}
	ingredients, err := schema.GetIngredients(t, ingredientIds)
	if err != nil {
		return nil, err
	}
	for id, ingredient := range ingredients {
		names[id] = ingredient.Name
	}
	return names, nil
}

func wastageInfos(t schema.Tenant, rows []schema.WastageData) ([]WastageInfo, error) {
	names, err := wasteNames(t, rows)
	if err != nil {
		return nil, err
	}

	infos := make([]WastageInfo, 0, len(rows))
	for _, row := range rows {
		target := row.Target()
		infos = append(infos, WastageInfo{
			Id:           row.Id,
			Date:         row.Date,
			Kind:         target.Kind().String(),
			IngredientId: row.IngredientId,
			RecipeId:     row.RecipeId,
			Name:         names[target.Id()],
			Quantity:     row.Quantity,
		})
	}
	return infos, nil
}

func (s *WastageService) writeWastage(w http.ResponseWriter, t schema.Tenant, wastage schema.WastageData, code int) {
	infos, err := wastageInfos(t, []schema.WastageData{wastage})
	if err != nil {
		writeError(w, schemaError(err))
		return
	}
	utils.WriteJson(w, code, infos[0])
}

func (s *WastageService) List(w http.ResponseWriter, r *http.Request) {
	tenant, ok := requestTenant(s.db, w, r)
	if !ok {
		return
	}

	dates, err := dateFilter(r)
	if err != nil {
		badRequest(w, err)
		return
	}
	ingredientId, err := utils.QueryUUID(r, "ingredient_id")
	if err != nil {
		badRequest(w, err)
		return
	}
	recipeId, err := utils.QueryUUID(r, "recipe_id")
	if err != nil {
		badRequest(w, err)
		return
	}

	rows, err := schema.ListWastage(tenant, schema.WastageFilter{DateFilter: dates, IngredientId: ingredientId, RecipeId: recipeId})
	if err != nil {
		writeError(w, schemaError(err))
		return
	}

	infos, err := wastageInfos(tenant, rows)
	if err != nil {
		writeError(w, schemaError(err))
		return
	}

	utils.WriteJsonResponse(w, infos)
}

func (s *WastageService) Get(w http.ResponseWriter, r *http.Request) {
	tenant, ok := requestTenant(s.db, w, r)
	if !ok {
		return
	}

	wastageId, err := utils.URLParamUUID(r, "wastage_id")
	if err != nil {
		badRequest(w, err)
		return
	}

	wastage, err := schema.GetWastage(tenant, wastageId)
	if err != nil {
		writeError(w, schemaError(err))
		return
	}

	s.writeWastage(w, tenant, wastage, http.StatusOK)
}

type wastageRequest struct {
	Date         string     `json:"date" validate:"required,datetime=2006-01-02"`
	IngredientId *uuid.UUID `json:"ingredient_id"`
	RecipeId     *uuid.UUID `json:"recipe_id"`
	Quantity     float64    `json:"quantity" validate:"gt=0"`
}

func (params *wastageRequest) target(w http.ResponseWriter) (schema.WasteTarget, bool) {
	fields := map[string]string{}
	if err := validate.Struct(params); err != nil {
		fields = fieldErrors(err)
	}

	target, err := schema.NewWasteTarget(params.IngredientId, params.RecipeId)
	if err != nil {
		fields["ingredient_id"] = "exactly one of ingredient_id or recipe_id must be set"
	}

	if len(fields) > 0 {
		utils.WriteFieldErrors(w, "validation failed", fields)
		return schema.WasteTarget{}, false
	}
	return target, true
}

func (s *WastageService) Create(w http.ResponseWriter, r *http.Request) {
	tenant, ok := requestTenant(s.db, w, r)
	if !ok {
		return
	}

	var params wastageRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}
	target, ok := params.target(w)
	if !ok {
		return
	}

	wastage, err := schema.CreateWastage(tenant, params.Date, target, params.Quantity)
	if err != nil {
		writeError(w, schemaError(err))
		return
	}

	slog.Info("recorded wastage", logging.Code(logging.WASTAGE), "store_id", tenant.StoreId(), "wastage_id", wastage.Id, "kind", target.Kind().String())

	s.writeWastage(w, tenant, wastage, http.StatusCreated)
}

func (s *WastageService) Update(w http.ResponseWriter, r *http.Request) {
	tenant, ok := requestTenant(s.db, w, r)
	if !ok {
		return
	}

	wastageId, err := utils.URLParamUUID(r, "wastage_id")
	if err != nil {
		badRequest(w, err)
		return
	}

	var params wastageRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}
	target, ok := params.target(w)
	if !ok {
		return
	}

	wastage, err := schema.UpdateWastage(tenant, wastageId, params.Date, target, params.Quantity)
	if err != nil {
		writeError(w, schemaError(err))
		return
	}

	s.writeWastage(w, tenant, wastage, http.StatusOK)
}

func (s *WastageService) Delete(w http.ResponseWriter, r *http.Request) {
	tenant, ok := requestTenant(s.db, w, r)
	if !ok {
		return
	}

	wastageId, err := utils.URLParamUUID(r, "wastage_id")
	if err != nil {
		badRequest(w, err)
		return
	}

	if err := schema.DeleteWastage(tenant, wastageId); err != nil {
		writeError(w, schemaError(err))
		return
	}

	utils.WriteSuccess(w)
}

type WastageTrendItem struct {
	Kind            string    `json:"kind"`
	Id              uuid.UUID `json:"id"`
	Name            string    `json:"name"`
	Quantity        float64   `json:"quantity"`
	CarbonFootprint float64   `json:"carbon_footprint"`
}

type WastageTrendDay struct {
	Date            string             `json:"date"`
	TotalQuantity   float64            `json:"total_quantity"`
	CarbonFootprint float64            `json:"carbon_footprint"`
	Items           []WastageTrendItem `json:"items"`
}

func (s *WastageService) Trend(w http.ResponseWriter, r *http.Request) {
	tenant, ok := requestTenant(s.db, w, r)
	if !ok {
		return
	}

	start, end, err := dateRange(r, maxTrendDays)
	if err != nil {
		badRequest(w, err)
		return
	}

	rows, err := schema.ListWastage(tenant, schema.WastageFilter{DateFilter: schema.DateFilter{
		StartDate: start.Format(utils.DateLayout),
		EndDate:   end.Format(utils.DateLayout),
	}})
	if err != nil {
		writeError(w, schemaError(err))
		return
	}

	names, err := wasteNames(tenant, rows)
	if err != nil {
		writeError(w, schemaError(err))
		return
	}

	graph, err := schema.LoadBomGraph(tenant)
	if err != nil {
		writeError(w, schemaError(err))
		return
	}

	ingredients, err := schema.ListIngredients(tenant, schema.IngredientFilter{})
	if err != nil {
		writeError(w, schemaError(err))
		return
	}
	footprints := make(map[uuid.UUID]float64, len(ingredients))
	for _, ingredient := range ingredients {
		footprints[ingredient.Id] = ingredient.CarbonFootprint
	}

	footprint := func(target schema.WasteTarget, quantity float64) float64 {
		if target.Kind() == schema.IngredientKind {
			return quantity * footprints[target.Id()]
		}
		totals := map[uuid.UUID]float64{}
		graph.Expand(target.Id(), quantity, totals)
		sum := 0.0
		for id, amount := range totals {
			sum += amount * footprints[id]
		}
		return sum
	}

	byDate := map[string][]schema.WastageData{}
	for _, row := range rows {
		byDate[row.Date] = append(byDate[row.Date], row)
	}

	days := utils.DaysBetween(start, end)
	trend := make([]WastageTrendDay, 0, len(days))
	for _, day := range days {
		date := day.Format(utils.DateLayout)
		entry := WastageTrendDay{Date: date, Items: []WastageTrendItem{}}
		for _, row := range byDate[date] {
			target := row.Target()
			item := WastageTrendItem{
				Kind:            target.Kind().String(),
				Id:              target.Id(),
				Name:            names[target.Id()],
				Quantity:        row.Quantity,
				CarbonFootprint: footprint(target, row.Quantity),
			}
			entry.TotalQuantity += item.Quantity
			entry.CarbonFootprint += item.CarbonFootprint
			entry.Items = append(entry.Items, item)
		}
		sort.SliceStable(entry.Items, func(i, j int) bool {
			return entry.Items[i].Name < entry.Items[j].Name
		})
		trend = append(trend, entry)
	}

	utils.WriteJsonResponse(w, trend)
}
