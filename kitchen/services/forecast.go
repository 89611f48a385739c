package services

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"restaurant_platform/kitchen/auth"
	"restaurant_platform/kitchen/cache"
	"restaurant_platform/kitchen/collaborators"
	"restaurant_platform/kitchen/schema"
	"restaurant_platform/utils"
	"restaurant_platform/utils/logging"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	defaultForecastDays = 7
	maxForecastDays     = 30
	historyDays         = 90

	// weekdays observed at least this often give a Medium confidence heuristic
	minObservedWeeks = 3
)

type ForecastDay struct {
	Date       string           `json:"date"`
	Weekday    string           `json:"weekday"`
	Total      float64          `json:"total"`
	Confidence string           `json:"confidence"`
	Source     string           `json:"source"`
	Recipes    []RecipeQuantity `json:"recipes"`
}

// Forecaster produces per day sales forecasts for a store, preferring the ML
// collaborator and degrading to a weekday average of the recent history.
type Forecaster struct {
	db       *gorm.DB
	model    collaborators.Forecaster
	calendar *Calendar
	cache    cache.ForecastCache
	now      func() time.Time
}

// invalidateForecasts drops the store's cached model forecasts after a write
// that changes their inputs.
func invalidateForecasts(ctx context.Context, forecastCache cache.ForecastCache, storeId int64) {
	if err := forecastCache.InvalidateStore(ctx, storeId); err != nil {
		slog.Warn("unable to invalidate cached forecasts", logging.Code(logging.FORECAST), "store_id", storeId, "error", err)
	}
}

func NewForecaster(db *gorm.DB, model collaborators.Forecaster, calendar *Calendar, forecastCache cache.ForecastCache) *Forecaster {
	return &Forecaster{
		db:       db,
		model:    model,
		calendar: calendar,
		cache:    forecastCache,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (f *Forecaster) tomorrow() time.Time {
	today := f.now().Truncate(24 * time.Hour)
	return today.AddDate(0, 0, 1)
}

type forecastInputs struct {
	start   time.Time
	days    []time.Time
	recipes []schema.Recipe
	names   map[uuid.UUID]string
	history []schema.SalesData
}

func (f *Forecaster) loadInputs(t schema.Tenant, start time.Time, days int) (forecastInputs, error) {
	sellable := true
	recipes, err := schema.ListRecipes(t, schema.RecipeFilter{Sellable: &sellable})
	if err != nil {
		return forecastInputs{}, err
	}

	history, err := schema.ListSales(t, schema.SalesFilter{DateFilter: schema.DateFilter{
		StartDate: start.AddDate(0, 0, -historyDays).Format(utils.DateLayout),
		EndDate:   start.AddDate(0, 0, -1).Format(utils.DateLayout),
	}})
	if err != nil {
		return forecastInputs{}, err
	}

	names := make(map[uuid.UUID]string, len(recipes))
	for _, recipe := range recipes {
		names[recipe.Id] = recipe.Name
	}

	return forecastInputs{
		start:   start,
		days:    utils.DaysBetween(start, start.AddDate(0, 0, days-1)),
		recipes: recipes,
		names:   names,
		history: history,
	}, nil
}

// modelForecast calls the ML collaborator and checks that the answer covers
// exactly the requested days and recipes.
func (f *Forecaster) modelForecast(ctx context.Context, t schema.Tenant, in forecastInputs, signals []CalendarDay) ([]ForecastDay, error) {
	if f.model == nil {
		return nil, fmt.Errorf("%w: no forecasting service configured", collaborators.ErrUpstreamUnavailable)
	}

	req := collaborators.ForecastRequest{
		StoreId:   t.StoreId(),
		StartDate: in.start.Format(utils.DateLayout),
		Days:      len(in.days),
		Recipes:   make([]uuid.UUID, 0, len(in.recipes)),
		History:   make([]collaborators.SalesPoint, 0, len(in.history)),
		Signals:   make([]collaborators.DaySignals, 0, len(signals)),
	}
	for _, recipe := range in.recipes {
		req.Recipes = append(req.Recipes, recipe.Id)
	}
	for _, row := range in.history {
		req.History = append(req.History, collaborators.SalesPoint{Date: row.Date, RecipeId: row.RecipeId, Quantity: row.Quantity})
	}
	for _, day := range signals {
		req.Signals = append(req.Signals, day.Signals())
	}

	res, err := f.model.Forecast(ctx, req)
	if err != nil {
		return nil, err
	}

	byDate := make(map[string]map[uuid.UUID]float64, len(in.days))
	for _, day := range in.days {
		byDate[day.Format(utils.DateLayout)] = map[uuid.UUID]float64{}
	}

	for _, point := range res.Forecasts {
		quantities, ok := byDate[point.Date]
		if !ok {
			return nil, fmt.Errorf("forecast contains unexpected date %v", point.Date)
		}
		if _, ok := in.names[point.RecipeId]; !ok {
			return nil, fmt.Errorf("forecast contains unknown recipe %v", point.RecipeId)
		}
		if math.IsNaN(point.Quantity) || math.IsInf(point.Quantity, 0) || point.Quantity < 0 {
			return nil, fmt.Errorf("forecast contains invalid quantity %v", point.Quantity)
		}
		quantities[point.RecipeId] += point.Quantity
	}

	seen := map[string]bool{}
	for _, point := range res.Forecasts {
		seen[point.Date] = true
	}
	if len(in.recipes) > 0 && len(seen) != len(in.days) {
		return nil, fmt.Errorf("forecast covers %d days, expected %d", len(seen), len(in.days))
	}

	result := make([]ForecastDay, 0, len(in.days))
	for _, day := range in.days {
		result = append(result, buildForecastDay(day, byDate[day.Format(utils.DateLayout)], in.names, schema.HighConfidence, schema.ModelSource))
	}
	return result, nil
}

// heuristicForecast predicts each recipe as its average quantity on the same
// weekday over the days in the history that had any sales.
func heuristicForecast(in forecastInputs) []ForecastDay {
	observed := map[time.Weekday]map[string]bool{}
	sums := map[time.Weekday]map[uuid.UUID]float64{}

	for _, row := range in.history {
		date, err := time.Parse(utils.DateLayout, row.Date)
		if err != nil {
			continue
		}
		weekday := date.Weekday()
		if observed[weekday] == nil {
			observed[weekday] = map[string]bool{}
			sums[weekday] = map[uuid.UUID]float64{}
		}
		observed[weekday][row.Date] = true
		sums[weekday][row.RecipeId] += float64(row.Quantity)
	}

	result := make([]ForecastDay, 0, len(in.days))
	for _, day := range in.days {
		weekday := day.Weekday()
		weeks := len(observed[weekday])

		quantities := map[uuid.UUID]float64{}
		if weeks > 0 {
			for recipeId, sum := range sums[weekday] {
				if _, ok := in.names[recipeId]; ok {
					quantities[recipeId] = math.Round(sum/float64(weeks)*100) / 100
				}
			}
		}

		confidence := schema.LowConfidence
		if weeks >= minObservedWeeks {
			confidence = schema.MediumConfidence
		}

		result = append(result, buildForecastDay(day, quantities, in.names, confidence, schema.HeuristicSource))
	}
	return result
}

func buildForecastDay(day time.Time, quantities map[uuid.UUID]float64, names map[uuid.UUID]string, confidence, source string) ForecastDay {
	entry := ForecastDay{
		Date:       day.Format(utils.DateLayout),
		Weekday:    day.Weekday().String(),
		Confidence: confidence,
		Source:     source,
		Recipes:    make([]RecipeQuantity, 0, len(names)),
	}
	for recipeId, name := range names {
		quantity := quantities[recipeId]
		entry.Total += quantity
		entry.Recipes = append(entry.Recipes, RecipeQuantity{RecipeId: recipeId, Name: name, Quantity: quantity})
	}
	sort.Slice(entry.Recipes, func(i, j int) bool {
		return entry.Recipes[i].Name < entry.Recipes[j].Name
	})
	return entry
}

// Forecast returns exactly days forecasts starting at start. Collaborator
// failures fall back to the heuristic, only database errors are returned.
func (f *Forecaster) Forecast(ctx context.Context, t schema.Tenant, start time.Time, days int) ([]ForecastDay, error) {
	startDate := start.Format(utils.DateLayout)

	var cached []ForecastDay
	if hit, err := f.cache.Get(ctx, t.StoreId(), startDate, days, &cached); err != nil {
		slog.Warn("forecast cache unavailable", logging.Code(logging.FORECAST), "store_id", t.StoreId(), "error", err)
	} else if hit && len(cached) == days {
		return cached, nil
	}

	in, err := f.loadInputs(t, start, days)
	if err != nil {
		return nil, err
	}

	signals, err := f.calendar.Days(ctx, t, start, start.AddDate(0, 0, days-1))
	if err != nil {
		return nil, err
	}

	forecast, err := f.modelForecast(ctx, t, in, signals)
	if err != nil {
		slog.Warn("forecasting service failed, using weekday average", logging.Code(logging.FORECAST), "store_id", t.StoreId(), "error", err)
		forecast = heuristicForecast(in)
	}

	rows := make([]schema.ForecastData, 0)
	for _, day := range forecast {
		for _, recipe := range day.Recipes {
			rows = append(rows, schema.ForecastData{
				RecipeId:          recipe.RecipeId,
				ForecastDate:      day.Date,
				PredictedQuantity: recipe.Quantity,
				Confidence:        day.Confidence,
				Source:            day.Source,
			})
		}
	}
	endDate := start.AddDate(0, 0, days-1).Format(utils.DateLayout)
	if err := schema.ReplaceForecasts(t, startDate, endDate, rows); err != nil {
		return nil, err
	}

	if len(forecast) > 0 && forecast[0].Source == schema.ModelSource {
		if err := f.cache.Set(ctx, t.StoreId(), startDate, days, forecast); err != nil {
			slog.Warn("unable to cache forecast", logging.Code(logging.FORECAST), "store_id", t.StoreId(), "error", err)
		}
	}

	return forecast, nil
}

type ForecastService struct {
	db         *gorm.DB
	userAuth   auth.IdentityProvider
	forecaster *Forecaster
}

func (s *ForecastService) Routes() chi.Router {
	r := chi.NewRouter()

	r.Use(s.userAuth.AuthMiddleware()...)

	r.Get("/", s.Forecast)
	r.Get("/summary", s.Summary)
	r.Get("/tomorrow", s.Tomorrow)
	r.Get("/history", s.History)

	return r
}

func forecastDays(r *http.Request) (int, error) {
	days, err := utils.QueryInt(r, "days", defaultForecastDays)
	if err != nil {
		return 0, err
	}
	if days < 1 || days > maxForecastDays {
		return 0, fmt.Errorf("query param days must be between 1 and %d", maxForecastDays)
	}
	return days, nil
}

func (s *ForecastService) Forecast(w http.ResponseWriter, r *http.Request) {
	tenant, ok := requestTenant(s.db, w, r)
	if !ok {
		return
	}

	days, err := forecastDays(r)
	if err != nil {
		badRequest(w, err)
		return
	}

	forecast, err := s.forecaster.Forecast(r.Context(), tenant, s.forecaster.tomorrow(), days)
	if err != nil {
		writeError(w, schemaError(err))
		return
	}

	utils.WriteJsonResponse(w, forecast)
}

var confidenceRank = map[string]int{
	schema.LowConfidence:    0,
	schema.MediumConfidence: 1,
	schema.HighConfidence:   2,
}

type forecastSummary struct {
	StartDate       string                  `json:"start_date"`
	EndDate         string                  `json:"end_date"`
	Days            int                     `json:"days"`
	Total           float64                 `json:"total"`
	PeakDay         *ForecastDay            `json:"peak_day"`
	Confidence      string                  `json:"confidence"`
	Recipes         []RecipeQuantity        `json:"recipes"`
	Ingredients     []IngredientRequirement `json:"ingredients"`
	CarbonFootprint float64                 `json:"carbon_footprint"`
}

func (s *ForecastService) Summary(w http.ResponseWriter, r *http.Request) {
	tenant, ok := requestTenant(s.db, w, r)
	if !ok {
		return
	}

	days, err := forecastDays(r)
	if err != nil {
		badRequest(w, err)
		return
	}

	forecast, err := s.forecaster.Forecast(r.Context(), tenant, s.forecaster.tomorrow(), days)
	if err != nil {
		writeError(w, schemaError(err))
		return
	}

	summary := forecastSummary{
		StartDate:  forecast[0].Date,
		EndDate:    forecast[len(forecast)-1].Date,
		Days:       len(forecast),
		Confidence: schema.HighConfidence,
		Recipes:    []RecipeQuantity{},
	}

	perRecipe := map[uuid.UUID]*RecipeQuantity{}
	for i, day := range forecast {
		summary.Total += day.Total
		if summary.PeakDay == nil || day.Total > summary.PeakDay.Total {
			summary.PeakDay = &forecast[i]
		}
		if confidenceRank[day.Confidence] < confidenceRank[summary.Confidence] {
			summary.Confidence = day.Confidence
		}
		for _, recipe := range day.Recipes {
			if entry, ok := perRecipe[recipe.RecipeId]; ok {
				entry.Quantity += recipe.Quantity
			} else {
				perRecipe[recipe.RecipeId] = &RecipeQuantity{RecipeId: recipe.RecipeId, Name: recipe.Name, Quantity: recipe.Quantity}
			}
		}
	}

	graph, err := schema.LoadBomGraph(tenant)
	if err != nil {
		writeError(w, schemaError(err))
		return
	}

	totals := map[uuid.UUID]float64{}
	for _, entry := range perRecipe {
		summary.Recipes = append(summary.Recipes, *entry)
		graph.Expand(entry.RecipeId, entry.Quantity, totals)
	}
	sort.Slice(summary.Recipes, func(i, j int) bool {
		if summary.Recipes[i].Quantity != summary.Recipes[j].Quantity {
			return summary.Recipes[i].Quantity > summary.Recipes[j].Quantity
		}
		return summary.Recipes[i].Name < summary.Recipes[j].Name
	})

	summary.Ingredients, summary.CarbonFootprint, err = ingredientRequirements(tenant, totals)
	if err != nil {
		writeError(w, schemaError(err))
		return
	}

	utils.WriteJsonResponse(w, summary)
}

type tomorrowResponse struct {
	Forecast ForecastDay `json:"forecast"`
	Calendar CalendarDay `json:"calendar"`
}

func (s *ForecastService) Tomorrow(w http.ResponseWriter, r *http.Request) {
	tenant, ok := requestTenant(s.db, w, r)
	if !ok {
		return
	}

	tomorrow := s.forecaster.tomorrow()

	forecast, err := s.forecaster.Forecast(r.Context(), tenant, tomorrow, 1)
	if err != nil {
		writeError(w, schemaError(err))
		return
	}

	calendar, err := s.forecaster.calendar.Days(r.Context(), tenant, tomorrow, tomorrow)
	if err != nil {
		writeError(w, schemaError(err))
		return
	}

	utils.WriteJsonResponse(w, tomorrowResponse{Forecast: forecast[0], Calendar: calendar[0]})
}

type StoredForecast struct {
	Date        string    `json:"date"`
	RecipeId    uuid.UUID `json:"recipe_id"`
	Name        string    `json:"name"`
	Quantity    float64   `json:"quantity"`
	Confidence  string    `json:"confidence"`
	Source      string    `json:"source"`
	GeneratedAt time.Time `json:"generated_at"`
}

// History lists the last persisted forecast of every day in the optional range.
func (s *ForecastService) History(w http.ResponseWriter, r *http.Request) {
	tenant, ok := requestTenant(s.db, w, r)
	if !ok {
		return
	}

	dates, err := dateFilter(r)
	if err != nil {
		badRequest(w, err)
		return
	}

	rows, err := schema.ListForecasts(tenant, dates)
	if err != nil {
		writeError(w, schemaError(err))
		return
	}

	ids := make([]uuid.UUID, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.RecipeId)
	}
	names, err := schema.RecipeNames(tenant, ids)
	if err != nil {
		writeError(w, schemaError(err))
		return
	}

	history := make([]StoredForecast, 0, len(rows))
	for _, row := range rows {
		history = append(history, StoredForecast{
			Date:        row.ForecastDate,
			RecipeId:    row.RecipeId,
			Name:        names[row.RecipeId],
			Quantity:    row.PredictedQuantity,
			Confidence:  row.Confidence,
			Source:      row.Source,
			GeneratedAt: row.GeneratedAt,
		})
	}

	utils.WriteJsonResponse(w, history)
}
