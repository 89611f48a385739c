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
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"golang.org/x/text/cases"
	"gorm.io/gorm"
)

const maxTrendDays = 366

type SalesService struct {
	db            *gorm.DB
	userAuth      auth.IdentityProvider
	forecastCache cache.ForecastCache
}

func (s *SalesService) Routes() chi.Router {
	r := chi.NewRouter()

	r.Use(s.userAuth.AuthMiddleware()...)

	r.Get("/", s.List)
	r.Post("/", s.Create)
	r.Get("/trend", s.Trend)
	r.Get("/ingredient-usage", s.IngredientUsage)
	r.Post("/import", s.Import)
	r.Post("/import-by-name", s.ImportByName)
	r.Get("/{sales_id}", s.Get)
	r.Put("/{sales_id}", s.Update)
	r.Delete("/{sales_id}", s.Delete)

	return r
}

// dateRange reads the required start_date and end_date query params.
func dateRange(r *http.Request, maxDays int) (time.Time, time.Time, error) {
	start, ok, err := utils.QueryDate(r, "start_date")
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if !ok {
		return time.Time{}, time.Time{}, fmt.Errorf("query param start_date is required")
	}

	end, ok, err := utils.QueryDate(r, "end_date")
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if !ok {
		return time.Time{}, time.Time{}, fmt.Errorf("query param end_date is required")
	}

	if end.Before(start) {
		return time.Time{}, time.Time{}, fmt.Errorf("end_date must not be before start_date")
	}
	if days := int(end.Sub(start).Hours()/24) + 1; days > maxDays {
		return time.Time{}, time.Time{}, fmt.Errorf("date range of %d days exceeds the maximum of %d days", days, maxDays)
	}

	return start, end, nil
}

// dateFilter reads the optional start_date and end_date query params.
func dateFilter(r *http.Request) (schema.DateFilter, error) {
	var filter schema.DateFilter
	if start, ok, err := utils.QueryDate(r, "start_date"); err != nil {
		return filter, err
	} else if ok {
		filter.StartDate = start.Format(utils.DateLayout)
	}
	if end, ok, err := utils.QueryDate(r, "end_date"); err != nil {
		return filter, err
	} else if ok {
		filter.EndDate = end.Format(utils.DateLayout)
	}
	return filter, nil
}

type SalesInfo struct {
	Id         uuid.UUID `json:"id"`
	Date       string    `json:"date"`
	RecipeId   uuid.UUID `json:"recipe_id"`
	RecipeName string    `json:"recipe_name"`
	Quantity   int       `json:"quantity"`
}

func salesInfos(t schema.Tenant, sales []schema.SalesData) ([]SalesInfo, error) {
	ids := make([]uuid.UUID, 0, len(sales))
	for _, row := range sales {
		ids = append(ids, row.RecipeId)
	}
	names, err := schema.RecipeNames(t, ids)
	if err != nil {
		return nil, err
	}

	infos := make([]SalesInfo, 0, len(sales))
	for _, row := range sales {
		infos = append(infos, SalesInfo{
			Id:         row.Id,
			Date:       row.Date,
			RecipeId:   row.RecipeId,
			RecipeName: names[row.RecipeId],
			Quantity:   row.Quantity,
		})
	}
	return infos, nil
}

func (s *SalesService) writeSales(w http.ResponseWriter, t schema.Tenant, sales schema.SalesData, code int) {
	infos, err := salesInfos(t, []schema.SalesData{sales})
	if err != nil {
		writeError(w, schemaError(err))
		return
	}
	utils.WriteJson(w, code, infos[0])
}

func (s *SalesService) List(w http.ResponseWriter, r *http.Request) {
	tenant, ok := requestTenant(s.db, w, r)
	if !ok {
		return
	}

	dates, err := dateFilter(r)
	if err != nil {
		badRequest(w, err)
		return
	}
	recipeId, err := utils.QueryUUID(r, "recipe_id")
	if err != nil {
		badRequest(w, err)
		return
	}

	sales, err := schema.ListSales(tenant, schema.SalesFilter{DateFilter: dates, RecipeId: recipeId})
	if err != nil {
		writeError(w, schemaError(err))
		return
	}

	infos, err := salesInfos(tenant, sales)
	if err != nil {
		writeError(w, schemaError(err))
		return
	}

	utils.WriteJsonResponse(w, infos)
}

func (s *SalesService) Get(w http.ResponseWriter, r *http.Request) {
	tenant, ok := requestTenant(s.db, w, r)
	if !ok {
		return
	}

	salesId, err := utils.URLParamUUID(r, "sales_id")
	if err != nil {
		badRequest(w, err)
		return
	}

	sales, err := schema.GetSales(tenant, salesId)
	if err != nil {
		writeError(w, schemaError(err))
		return
	}

	s.writeSales(w, tenant, sales, http.StatusOK)
}

type salesRequest struct {
	Date     string    `json:"date" validate:"required,datetime=2006-01-02"`
	RecipeId uuid.UUID `json:"recipe_id" validate:"required"`
	Quantity int       `json:"quantity" validate:"gte=0"`
}

func (s *SalesService) Create(w http.ResponseWriter, r *http.Request) {
	tenant, ok := requestTenant(s.db, w, r)
	if !ok {
		return
	}

	var params salesRequest
	if !parseValidBody(w, r, &params) {
		return
	}

	sales := schema.SalesData{Date: params.Date, RecipeId: params.RecipeId, Quantity: params.Quantity}
	if err := schema.CreateSales(tenant, &sales); err != nil {
		writeError(w, schemaError(err))
		return
	}
	invalidateForecasts(r.Context(), s.forecastCache, tenant.StoreId())

	s.writeSales(w, tenant, sales, http.StatusCreated)
}

func (s *SalesService) Update(w http.ResponseWriter, r *http.Request) {
	tenant, ok := requestTenant(s.db, w, r)
	if !ok {
		return
	}

	salesId, err := utils.URLParamUUID(r, "sales_id")
	if err != nil {
		badRequest(w, err)
		return
	}

	var params salesRequest
	if !parseValidBody(w, r, &params) {
		return
	}

	sales, err := schema.UpdateSales(tenant, salesId, params.Date, params.RecipeId, params.Quantity)
	if err != nil {
		writeError(w, schemaError(err))
		return
	}
	invalidateForecasts(r.Context(), s.forecastCache, tenant.StoreId())

	s.writeSales(w, tenant, sales, http.StatusOK)
}

func (s *SalesService) Delete(w http.ResponseWriter, r *http.Request) {
	tenant, ok := requestTenant(s.db, w, r)
	if !ok {
		return
	}

	salesId, err := utils.URLParamUUID(r, "sales_id")
	if err != nil {
		badRequest(w, err)
		return
	}

	if err := schema.DeleteSales(tenant, salesId); err != nil {
		writeError(w, schemaError(err))
		return
	}
	invalidateForecasts(r.Context(), s.forecastCache, tenant.StoreId())

	utils.WriteSuccess(w)
}

type RecipeQuantity struct {
	RecipeId uuid.UUID `json:"recipe_id"`
	Name     string    `json:"name"`
	Quantity float64   `json:"quantity"`
}

type SalesTrendDay struct {
	Date    string           `json:"date"`
	Total   int              `json:"total"`
	Recipes []RecipeQuantity `json:"recipes"`
}

func (s *SalesService) Trend(w http.ResponseWriter, r *http.Request) {
	tenant, ok := requestTenant(s.db, w, r)
	if !ok {
		return
	}

	start, end, err := dateRange(r, maxTrendDays)
	if err != nil {
		badRequest(w, err)
		return
	}

	sales, err := schema.ListSales(tenant, schema.SalesFilter{DateFilter: schema.DateFilter{
		StartDate: start.Format(utils.DateLayout),
		EndDate:   end.Format(utils.DateLayout),
	}})
	if err != nil {
		writeError(w, schemaError(err))
		return
	}

	infos, err := salesInfos(tenant, sales)
	if err != nil {
		writeError(w, schemaError(err))
		return
	}

	byDate := map[string][]SalesInfo{}
	for _, info := range infos {
		byDate[info.Date] = append(byDate[info.Date], info)
	}

	days := utils.DaysBetween(start, end)
	trend := make([]SalesTrendDay, 0, len(days))
	for _, day := range days {
		date := day.Format(utils.DateLayout)
		entry := SalesTrendDay{Date: date, Recipes: []RecipeQuantity{}}
		for _, info := range byDate[date] {
			entry.Total += info.Quantity
			entry.Recipes = append(entry.Recipes, RecipeQuantity{RecipeId: info.RecipeId, Name: info.RecipeName, Quantity: float64(info.Quantity)})
		}
		sort.Slice(entry.Recipes, func(i, j int) bool {
			return entry.Recipes[i].Name < entry.Recipes[j].Name
		})
		trend = append(trend, entry)
	}

	utils.WriteJsonResponse(w, trend)
}

type ingredientUsageResponse struct {
	Date            string                  `json:"date"`
	Ingredients     []IngredientRequirement `json:"ingredients"`
	CarbonFootprint float64                 `json:"carbon_footprint"`
}

func (s *SalesService) IngredientUsage(w http.ResponseWriter, r *http.Request) {
	tenant, ok := requestTenant(s.db, w, r)
	if !ok {
		return
	}

	date, ok, err := utils.QueryDate(r, "date")
	if err != nil {
		badRequest(w, err)
		return
	}
	if !ok {
		badRequest(w, fmt.Errorf("query param date is required"))
		return
	}
	day := date.Format(utils.DateLayout)

	sales, err := schema.ListSales(tenant, schema.SalesFilter{DateFilter: schema.DateFilter{StartDate: day, EndDate: day}})
	if err != nil {
		writeError(w, schemaError(err))
		return
	}

	graph, err := schema.LoadBomGraph(tenant)
	if err != nil {
		writeError(w, schemaError(err))
		return
	}

	totals := map[uuid.UUID]float64{}
	for _, row := range sales {
		graph.Expand(row.RecipeId, float64(row.Quantity), totals)
	}

	requirements, footprint, err := ingredientRequirements(tenant, totals)
	if err != nil {
		writeError(w, schemaError(err))
		return
	}

	utils.WriteJsonResponse(w, ingredientUsageResponse{Date: day, Ingredients: requirements, CarbonFootprint: footprint})
}

type importRow struct {
	Date     string    `json:"date" validate:"required,datetime=2006-01-02"`
	RecipeId uuid.UUID `json:"recipe_id" validate:"required"`
	Quantity int       `json:"quantity" validate:"gte=0"`
}

type importRequest struct {
	Rows []importRow `json:"rows" validate:"required,min=1,max=10000,dive"`
}

type importResponse struct {
	Imported int `json:"imported"`
}

func (s *SalesService) Import(w http.ResponseWriter, r *http.Request) {
	tenant, ok := requestTenant(s.db, w, r)
	if !ok {
		return
	}

	var params importRequest
	if !parseValidBody(w, r, &params) {
		return
	}

	rows := make([]schema.SalesData, 0, len(params.Rows))
	for _, row := range params.Rows {
		rows = append(rows, schema.SalesData{Date: row.Date, RecipeId: row.RecipeId, Quantity: row.Quantity})
	}

	imported, err := schema.UpsertSales(tenant, rows)
	if err != nil {
		writeError(w, schemaError(err))
		return
	}
	invalidateForecasts(r.Context(), s.forecastCache, tenant.StoreId())

	slog.Info("imported sales", logging.Code(logging.SALES_IMPORT), "store_id", tenant.StoreId(), "rows", imported)

	utils.WriteJsonResponse(w, importResponse{Imported: imported})
}

type importByNameRow struct {
	Date     string `json:"date" validate:"required,datetime=2006-01-02"`
	DishName string `json:"dish_name" validate:"required,max=200"`
	Quantity int    `json:"quantity" validate:"gte=0"`
}

type importByNameRequest struct {
	Rows []importByNameRow `json:"rows" validate:"required,min=1,max=10000,dive"`
}

type importByNameResponse struct {
	Imported  int      `json:"imported"`
	Created   int      `json:"created"`
	NewDishes []string `json:"new_dishes"`
}

// ImportByName imports sales keyed by dish name. Names are matched against
// the store's recipes ignoring case; an unknown name creates one new sellable
// recipe without components.
func (s *SalesService) ImportByName(w http.ResponseWriter, r *http.Request) {
	tenant, ok := requestTenant(s.db, w, r)
	if !ok {
		return
	}

	var params importByNameRequest
	if !parseValidBody(w, r, &params) {
		return
	}

	fold := cases.Fold()
	res := importByNameResponse{NewDishes: []string{}}

	err := tenant.Transaction(func(txn schema.Tenant) error {
		recipes, err := schema.ListRecipes(txn, schema.RecipeFilter{})
		if err != nil {
			return schemaError(err)
		}

		byName := make(map[string]uuid.UUID, len(recipes))
		for _, recipe := range recipes {
			byName[fold.String(recipe.Name)] = recipe.Id
		}

		rows := make([]schema.SalesData, 0, len(params.Rows))
		for i, row := range params.Rows {
			name := strings.TrimSpace(row.DishName)
			if name == "" {
				return CodedError(fmt.Errorf("rows[%d].dish_name must not be blank", i), http.StatusBadRequest)
			}

			key := fold.String(name)
			recipeId, found := byName[key]
			if !found {
				recipe := schema.Recipe{Name: name, IsSellable: true}
				if err := schema.CreateRecipe(txn, &recipe, nil); err != nil {
					return schemaError(err)
				}
				recipeId = recipe.Id
				byName[key] = recipeId
				res.NewDishes = append(res.NewDishes, name)
			}

			rows = append(rows, schema.SalesData{Date: row.Date, RecipeId: recipeId, Quantity: row.Quantity})
		}

		res.Imported, err = schema.UpsertSales(txn, rows)
		if err != nil {
			return schemaError(err)
		}
		return nil
	})
	if err != nil {
		slog.Error("sales import by name failed", logging.Code(logging.SALES_IMPORT), "store_id", tenant.StoreId(), "error", err)
		writeError(w, err)
		return
	}
	res.Created = len(res.NewDishes)
	invalidateForecasts(r.Context(), s.forecastCache, tenant.StoreId())

	slog.Info("imported sales by name", logging.Code(logging.SALES_IMPORT), "store_id", tenant.StoreId(), "rows", res.Imported, "new_dishes", res.Created)

	utils.WriteJsonResponse(w, res)
}
