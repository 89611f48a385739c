package tests

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"restaurant_platform/kitchen/collaborators"
	"restaurant_platform/kitchen/schema"
	"restaurant_platform/kitchen/services"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// modelStub answers every requested day and recipe with a fixed quantity.
type modelStub struct {
	calls    atomic.Int32
	quantity float64
	last     collaborators.ForecastRequest
	mu       sync.Mutex
}

func (m *modelStub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	m.calls.Add(1)

	var req collaborators.ForecastRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	m.mu.Lock()
	m.last = req
	m.mu.Unlock()

	start, _ := time.Parse("2006-01-02", req.StartDate)
	res := collaborators.ForecastResponse{Forecasts: []collaborators.ForecastPoint{}}
	for i := 0; i < req.Days; i++ {
		for _, recipeId := range req.Recipes {
			res.Forecasts = append(res.Forecasts, collaborators.ForecastPoint{
				Date:     isoDate(start.AddDate(0, 0, i)),
				RecipeId: recipeId,
				Quantity: m.quantity,
			})
		}
	}
	_ = json.NewEncoder(w).Encode(res)
}

func (m *modelStub) lastRequest() collaborators.ForecastRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last
}

type memoryForecastCache struct {
	mu      sync.Mutex
	entries map[string][]byte
}

func newMemoryForecastCache() *memoryForecastCache {
	return &memoryForecastCache{entries: map[string][]byte{}}
}

func (c *memoryForecastCache) key(storeId int64, start string, days int) string {
	return fmt.Sprintf("%d:%v:%d", storeId, start, days)
}

func (c *memoryForecastCache) Get(ctx context.Context, storeId int64, start string, days int, dest interface{}) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	data, ok := c.entries[c.key(storeId, start, days)]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(data, dest)
}

func (c *memoryForecastCache) Set(ctx context.Context, storeId int64, start string, days int, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[c.key(storeId, start, days)] = data
	return nil
}

func (c *memoryForecastCache) InvalidateStore(ctx context.Context, storeId int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	prefix := fmt.Sprintf("%d:", storeId)
	for key := range c.entries {
		if len(key) >= len(prefix) && key[:len(prefix)] == prefix {
			delete(c.entries, key)
		}
	}
	return nil
}

// recordSameWeekday records burger sales on the weeks before tomorrow's weekday.
func recordSameWeekday(t *testing.T, c client, recipeId uuid.UUID, quantities ...int) {
	tomorrow := today().AddDate(0, 0, 1)
	for i, quantity := range quantities {
		_, err := c.recordSales(isoDate(tomorrow.AddDate(0, 0, -7*(i+1))), recipeId, quantity)
		require.NoError(t, err)
	}
}

func assertForecastDates(t *testing.T, forecast []services.ForecastDay, days int) {
	require.Len(t, forecast, days)
	tomorrow := today().AddDate(0, 0, 1)
	for i, day := range forecast {
		assert.Equal(t, isoDate(tomorrow.AddDate(0, 0, i)), day.Date)
		assert.Equal(t, tomorrow.AddDate(0, 0, i).Weekday().String(), day.Weekday)
	}
}

func TestHeuristicForecast(t *testing.T) {
	env := setupTestEnv(t)
	c := env.newManager(t, "manager")
	f := createBurger(t, c)

	recordSameWeekday(t, c, f.burger.Id, 10, 20, 30)

	forecast, err := c.forecast(7)
	require.NoError(t, err)
	assertForecastDates(t, forecast, 7)

	assert.Equal(t, schema.HeuristicSource, forecast[0].Source)
	assert.Equal(t, schema.MediumConfidence, forecast[0].Confidence)
	require.Len(t, forecast[0].Recipes, 1)
	assert.Equal(t, "Burger", forecast[0].Recipes[0].Name)
	assert.InDelta(t, 20, forecast[0].Recipes[0].Quantity, 1e-9)
	assert.InDelta(t, 20, forecast[0].Total, 1e-9)

	for _, day := range forecast[1:] {
		assert.Equal(t, schema.LowConfidence, day.Confidence)
		assert.InDelta(t, 0, day.Total, 1e-9)
	}

	var stored int64
	require.NoError(t, env.db.Model(&schema.ForecastData{}).Where("store_id = ?", c.user.StoreId).Count(&stored).Error)
	assert.Equal(t, int64(7), stored)

	// forecasting again replaces the stored rows
	_, err = c.forecast(7)
	require.NoError(t, err)
	require.NoError(t, env.db.Model(&schema.ForecastData{}).Where("store_id = ?", c.user.StoreId).Count(&stored).Error)
	assert.Equal(t, int64(7), stored)

	var history []services.StoredForecast
	tomorrow := isoDate(today().AddDate(0, 0, 1))
	require.NoError(t, c.Get("/forecast/history?start_date="+tomorrow+"&end_date="+tomorrow).Do(&history))
	require.Len(t, history, 1)
	assert.Equal(t, "Burger", history[0].Name)
	assert.InDelta(t, 20, history[0].Quantity, 1e-9)
	assert.Equal(t, schema.HeuristicSource, history[0].Source)
}

func TestHeuristicForecastWithFewObservations(t *testing.T) {
	env := setupTestEnv(t)
	c := env.newManager(t, "manager")
	f := createBurger(t, c)

	recordSameWeekday(t, c, f.burger.Id, 3, 4)

	forecast, err := c.forecast(1)
	require.NoError(t, err)
	assertForecastDates(t, forecast, 1)
	assert.Equal(t, schema.LowConfidence, forecast[0].Confidence)
	assert.InDelta(t, 3.5, forecast[0].Total, 1e-9)
}

func TestModelForecast(t *testing.T) {
	model := &modelStub{quantity: 5}
	env := setupTestEnv(t, withForecaster(model, time.Second))
	c := env.newManager(t, "manager")
	f := createBurger(t, c)

	recordSameWeekday(t, c, f.burger.Id, 10)

	forecast, err := c.forecast(7)
	require.NoError(t, err)
	assertForecastDates(t, forecast, 7)
	for _, day := range forecast {
		assert.Equal(t, schema.ModelSource, day.Source)
		assert.Equal(t, schema.HighConfidence, day.Confidence)
		assert.InDelta(t, 5, day.Total, 1e-9)
	}

	req := model.lastRequest()
	assert.Equal(t, c.user.StoreId, req.StoreId)
	assert.Equal(t, 7, req.Days)
	assert.Equal(t, []uuid.UUID{f.burger.Id}, req.Recipes)
	require.Len(t, req.History, 1)
	assert.Equal(t, 10, req.History[0].Quantity)
	assert.Len(t, req.Signals, 7)
}

func TestForecastFallsBackWhenModelFails(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "server error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "model not loaded", http.StatusInternalServerError)
			},
		},
		{
			name: "malformed body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte("{not json"))
			},
		},
		{
			name: "unknown recipe",
			handler: func(w http.ResponseWriter, r *http.Request) {
				var req collaborators.ForecastRequest
				_ = json.NewDecoder(r.Body).Decode(&req)
				_ = json.NewEncoder(w).Encode(collaborators.ForecastResponse{Forecasts: []collaborators.ForecastPoint{
					{Date: req.StartDate, RecipeId: uuid.New(), Quantity: 3},
				}})
			},
		},
		{
			name: "negative quantity",
			handler: func(w http.ResponseWriter, r *http.Request) {
				var req collaborators.ForecastRequest
				_ = json.NewDecoder(r.Body).Decode(&req)
				_ = json.NewEncoder(w).Encode(collaborators.ForecastResponse{Forecasts: []collaborators.ForecastPoint{
					{Date: req.StartDate, RecipeId: req.Recipes[0], Quantity: -1},
				}})
			},
		},
		{
			name: "missing days",
			handler: func(w http.ResponseWriter, r *http.Request) {
				var req collaborators.ForecastRequest
				_ = json.NewDecoder(r.Body).Decode(&req)
				_ = json.NewEncoder(w).Encode(collaborators.ForecastResponse{Forecasts: []collaborators.ForecastPoint{
					{Date: req.StartDate, RecipeId: req.Recipes[0], Quantity: 4},
				}})
			},
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			env := setupTestEnv(t, withForecaster(test.handler, time.Second))
			c := env.newManager(t, "manager")
			f := createBurger(t, c)
			recordSameWeekday(t, c, f.burger.Id, 10, 20, 30)

			forecast, err := c.forecast(7)
			require.NoError(t, err)
			assertForecastDates(t, forecast, 7)
			assert.Equal(t, schema.HeuristicSource, forecast[0].Source)
			assert.InDelta(t, 20, forecast[0].Total, 1e-9)
		})
	}
}

func TestForecastFallsBackOnModelTimeout(t *testing.T) {
	slow := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(2 * time.Second):
		case <-r.Context().Done():
		}
	})
	env := setupTestEnv(t, withForecaster(slow, 50*time.Millisecond))
	c := env.newManager(t, "manager")
	createBurger(t, c)

	start := time.Now()
	forecast, err := c.forecast(7)
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)

	assertForecastDates(t, forecast, 7)
	for _, day := range forecast {
		assert.Equal(t, schema.HeuristicSource, day.Source)
		assert.Equal(t, schema.LowConfidence, day.Confidence)
	}
}

func TestModelForecastsAreCached(t *testing.T) {
	model := &modelStub{quantity: 2}
	env := setupTestEnv(t, withForecaster(model, time.Second), withForecastCache(newMemoryForecastCache()))
	c := env.newManager(t, "manager")
	f := createBurger(t, c)

	_, err := c.forecast(7)
	require.NoError(t, err)
	_, err = c.forecast(7)
	require.NoError(t, err)
	assert.Equal(t, int32(1), model.calls.Load())

	// a different horizon is a different entry
	_, err = c.forecast(3)
	require.NoError(t, err)
	assert.Equal(t, int32(2), model.calls.Load())

	// new sales invalidate the store's forecasts
	_, err = c.recordSales(isoDate(today()), f.burger.Id, 9)
	require.NoError(t, err)
	_, err = c.forecast(7)
	require.NoError(t, err)
	assert.Equal(t, int32(3), model.calls.Load())
}

func TestRecipeChangesInvalidateCachedForecasts(t *testing.T) {
	model := &modelStub{quantity: 2}
	env := setupTestEnv(t, withForecaster(model, time.Second), withForecastCache(newMemoryForecastCache()))
	c := env.newManager(t, "manager")
	f := createBurger(t, c)

	forecast, err := c.forecast(7)
	require.NoError(t, err)
	require.Len(t, forecast[0].Recipes, 1)
	assert.Equal(t, int32(1), model.calls.Load())

	fries, err := c.createRecipe("Fries", true, ingredientLine(f.salt.Id, 1))
	require.NoError(t, err)
	forecast, err = c.forecast(7)
	require.NoError(t, err)
	assert.Len(t, forecast[0].Recipes, 2)
	assert.Equal(t, int32(2), model.calls.Load())

	err = c.Put("/recipes/" + fries.Id.String()).Json(recipeBody{
		Name:        "Fries",
		IsSubRecipe: true,
		Ingredients: []component{ingredientLine(f.salt.Id, 1)},
	}).Do(nil)
	require.NoError(t, err)
	forecast, err = c.forecast(7)
	require.NoError(t, err)
	assert.Len(t, forecast[0].Recipes, 1)
	assert.Equal(t, int32(3), model.calls.Load())

	require.NoError(t, c.Delete("/recipes/"+fries.Id.String()).Do(nil))
	_, err = c.forecast(7)
	require.NoError(t, err)
	assert.Equal(t, int32(4), model.calls.Load())
}

func TestForecastSummary(t *testing.T) {
	model := &modelStub{quantity: 5}
	env := setupTestEnv(t, withForecaster(model, time.Second))
	c := env.newManager(t, "manager")
	f := createBurger(t, c)

	var summary struct {
		StartDate       string                           `json:"start_date"`
		EndDate         string                           `json:"end_date"`
		Days            int                              `json:"days"`
		Total           float64                          `json:"total"`
		PeakDay         *services.ForecastDay            `json:"peak_day"`
		Confidence      string                           `json:"confidence"`
		Recipes         []services.RecipeQuantity        `json:"recipes"`
		Ingredients     []services.IngredientRequirement `json:"ingredients"`
		CarbonFootprint float64                          `json:"carbon_footprint"`
	}
	require.NoError(t, c.Get("/forecast/summary?days=7").Do(&summary))

	tomorrow := today().AddDate(0, 0, 1)
	assert.Equal(t, isoDate(tomorrow), summary.StartDate)
	assert.Equal(t, isoDate(tomorrow.AddDate(0, 0, 6)), summary.EndDate)
	assert.Equal(t, 7, summary.Days)
	assert.InDelta(t, 35, summary.Total, 1e-9)
	assert.Equal(t, schema.HighConfidence, summary.Confidence)
	require.NotNil(t, summary.PeakDay)

	require.Len(t, summary.Recipes, 1)
	assert.Equal(t, f.burger.Id, summary.Recipes[0].RecipeId)

	byName := map[string]float64{}
	for _, item := range summary.Ingredients {
		byName[item.Name] = item.Quantity
	}
	assert.InDelta(t, 35*300, byName["Beef"], 1e-6)
	assert.InDelta(t, 35, byName["Bun"], 1e-9)
	assert.InDelta(t, 35*300*0.027+35*0.1, summary.CarbonFootprint, 1e-6)
}

func TestForecastTomorrow(t *testing.T) {
	env := setupTestEnv(t, withSchoolHolidays(services.SchoolHoliday{
		Name:      "Term Break",
		StartDate: isoDate(today()),
		EndDate:   isoDate(today().AddDate(0, 0, 3)),
	}))
	c := env.newManager(t, "manager")
	createBurger(t, c)

	var res struct {
		Forecast services.ForecastDay `json:"forecast"`
		Calendar services.CalendarDay `json:"calendar"`
	}
	require.NoError(t, c.Get("/forecast/tomorrow").Do(&res))

	tomorrow := isoDate(today().AddDate(0, 0, 1))
	assert.Equal(t, tomorrow, res.Forecast.Date)
	assert.Equal(t, tomorrow, res.Calendar.Date)
	assert.True(t, res.Calendar.IsSchoolHoliday)
	assert.Equal(t, "Term Break", res.Calendar.SchoolHolidayName)
}

func TestForecastValidation(t *testing.T) {
	env := setupTestEnv(t)
	c := env.newManager(t, "manager")

	_, err := c.forecast(0)
	assert.Equal(t, http.StatusBadRequest, statusOf(err))
	_, err = c.forecast(31)
	assert.Equal(t, http.StatusBadRequest, statusOf(err))
	assert.Equal(t, http.StatusBadRequest, statusOf(c.Get("/forecast?days=seven").Do(nil)))

	// a store without recipes still gets one entry per day
	forecast, err := c.forecast(30)
	require.NoError(t, err)
	assertForecastDates(t, forecast, 30)
	assert.Empty(t, forecast[0].Recipes)
}
