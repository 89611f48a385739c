package tests

import (
	"encoding/json"
	"net/http"
	"restaurant_platform/kitchen/schema"
	"restaurant_platform/kitchen/services"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreSetup(t *testing.T) {
	env := setupTestEnv(t)
	c := env.newManager(t, "manager")

	var store services.StoreInfo
	require.NoError(t, c.Get("/store").Do(&store))
	assert.True(t, store.SetupRequired)

	lat, lon := 1.3521, 103.8198
	store, err := c.setupStore("SGP", &lat, &lon)
	require.NoError(t, err)
	assert.False(t, store.SetupRequired)
	assert.Equal(t, "SG", store.CountryCode)
	require.NotNil(t, store.Latitude)
	assert.InDelta(t, lat, *store.Latitude, 1e-9)

	fresh := env.newClient()
	login, err := fresh.login("manager", "manager_password")
	require.NoError(t, err)
	assert.False(t, login.StoreSetupRequired)
}

func TestStoreValidation(t *testing.T) {
	env := setupTestEnv(t)
	c := env.newManager(t, "manager")

	_, err := c.setupStore("XX", nil, nil)
	require.Equal(t, http.StatusBadRequest, statusOf(err))
	assert.Contains(t, fieldsOf(err), "country_code")

	lat := 95.0
	_, err = c.setupStore("SG", &lat, nil)
	require.Equal(t, http.StatusBadRequest, statusOf(err))
	fields := fieldsOf(err)
	assert.Contains(t, fields, "latitude")
	assert.Contains(t, fields, "longitude")

	err = c.Put("/store").Json(map[string]interface{}{
		"store_name": "Main Street", "location": "1 Main Street", "contact_number": "12345",
	}).Do(nil)
	require.Equal(t, http.StatusBadRequest, statusOf(err))
	assert.Contains(t, fieldsOf(err), "contact_number")

	var store services.StoreInfo
	require.NoError(t, c.Get("/store").Do(&store))
	assert.True(t, store.SetupRequired)
}

type holidayStub struct {
	calls atomic.Int32
	fail  atomic.Bool
}

func (h *holidayStub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.calls.Add(1)
	if h.fail.Load() {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
		return
	}
	if !strings.HasPrefix(r.URL.Path, "/api/v3/PublicHolidays/") {
		http.NotFound(w, r)
		return
	}
	year := strings.Split(strings.TrimPrefix(r.URL.Path, "/api/v3/PublicHolidays/"), "/")[0]
	_ = json.NewEncoder(w).Encode([]map[string]string{
		{"date": year + "-12-25", "localName": "Christmas Day", "name": "Christmas Day"},
		{"date": year + "-08-09", "localName": "Hari Kebangsaan", "name": "National Day"},
	})
}

type weatherStub struct {
	calls atomic.Int32
	fail  atomic.Bool
}

func (s *weatherStub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.calls.Add(1)
	if s.fail.Load() {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
		return
	}

	start, _ := time.Parse("2006-01-02", r.URL.Query().Get("start_date"))
	end, _ := time.Parse("2006-01-02", r.URL.Query().Get("end_date"))

	var dates []string
	var temps, humidity, rain []float64
	var codes []int
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		dates = append(dates, isoDate(d))
		temps = append(temps, 28.5)
		humidity = append(humidity, 80)
		rain = append(rain, 12.4)
		codes = append(codes, 63)
	}

	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"daily": map[string]interface{}{
			"time":                      dates,
			"temperature_2m_mean":       temps,
			"relative_humidity_2m_mean": humidity,
			"precipitation_sum":         rain,
			"weather_code":              codes,
		},
	})
}

func TestCalendarHolidaysAreCached(t *testing.T) {
	holidays := &holidayStub{}
	env := setupTestEnv(t, withHolidays(holidays))
	c := env.newManager(t, "manager")
	_, err := c.setupStore("SG", nil, nil)
	require.NoError(t, err)

	var day services.CalendarDay
	require.NoError(t, c.Get("/calendar/2024-08-09").Do(&day))
	assert.True(t, day.IsHoliday)
	assert.Equal(t, "National Day", day.HolidayName)
	assert.Equal(t, "Friday", day.Weekday)
	assert.Nil(t, day.Weather)

	require.NoError(t, c.Get("/calendar/2024-08-10").Do(&day))
	assert.False(t, day.IsHoliday)
	assert.Equal(t, int32(1), holidays.calls.Load())

	signals, found, err := schema.GetCalendarSignals(env.db, "2024-08-09")
	require.NoError(t, err)
	require.True(t, found)
	assert.True(t, signals.IsHoliday)
	assert.Equal(t, "National Day", signals.HolidayName)

	// a second store in the same country shares the cached calendar
	other := env.newManager(t, "other")
	_, err = other.setupStore("SG", nil, nil)
	require.NoError(t, err)
	require.NoError(t, other.Get("/calendar/2024-12-25").Do(&day))
	assert.True(t, day.IsHoliday)
	assert.Equal(t, int32(1), holidays.calls.Load())

	// a range crossing into a new year fetches that year once
	var days []services.CalendarDay
	require.NoError(t, c.Get("/calendar/range?start_date=2024-12-24&end_date=2025-01-02").Do(&days))
	require.Len(t, days, 10)
	assert.True(t, days[1].IsHoliday)
	assert.Equal(t, int32(2), holidays.calls.Load())
}

func TestCalendarWeather(t *testing.T) {
	weather := &weatherStub{}
	env := setupTestEnv(t, withWeather(weather))
	c := env.newManager(t, "manager")

	// no coordinates, no weather
	var day services.CalendarDay
	require.NoError(t, c.Get("/calendar/2024-03-01").Do(&day))
	assert.Nil(t, day.Weather)
	assert.Equal(t, int32(0), weather.calls.Load())

	lat, lon := 1.3521, 103.8198
	_, err := c.setupStore("SG", &lat, &lon)
	require.NoError(t, err)

	var days []services.CalendarDay
	require.NoError(t, c.Get("/calendar/range?start_date=2024-03-01&end_date=2024-03-03").Do(&days))
	require.Len(t, days, 3)
	for _, d := range days {
		require.NotNil(t, d.Weather)
		assert.Equal(t, "Rain", d.Weather.Condition)
		require.NotNil(t, d.Weather.RainMm)
		assert.InDelta(t, 12.4, *d.Weather.RainMm, 1e-9)
	}
	assert.Equal(t, int32(1), weather.calls.Load())

	// past days never go stale
	require.NoError(t, c.Get("/calendar/range?start_date=2024-03-01&end_date=2024-03-03").Do(&days))
	assert.Equal(t, int32(1), weather.calls.Load())
}

func TestCalendarDegradesWhenUpstreamFails(t *testing.T) {
	holidays := &holidayStub{}
	holidays.fail.Store(true)
	weather := &weatherStub{}
	weather.fail.Store(true)

	env := setupTestEnv(t, withHolidays(holidays), withWeather(weather))
	c := env.newManager(t, "manager")
	lat, lon := 1.3521, 103.8198
	_, err := c.setupStore("SG", &lat, &lon)
	require.NoError(t, err)

	var day services.CalendarDay
	require.NoError(t, c.Get("/calendar/2024-12-25").Do(&day))
	assert.False(t, day.IsHoliday)
	assert.Nil(t, day.Weather)

	// nothing was cached, so the next request tries again
	holidays.fail.Store(false)
	weather.fail.Store(false)
	require.NoError(t, c.Get("/calendar/2024-12-25").Do(&day))
	assert.True(t, day.IsHoliday)
	assert.NotNil(t, day.Weather)
	assert.Equal(t, int32(2), holidays.calls.Load())
}

func TestCalendarSchoolHolidays(t *testing.T) {
	env := setupTestEnv(t, withSchoolHolidays(services.SchoolHoliday{
		Name: "June Holidays", StartDate: "2024-06-01", EndDate: "2024-06-30",
	}))
	c := env.newManager(t, "manager")

	var days []services.CalendarDay
	require.NoError(t, c.Get("/calendar/range?start_date=2024-05-31&end_date=2024-06-01").Do(&days))
	require.Len(t, days, 2)
	assert.False(t, days[0].IsSchoolHoliday)
	assert.True(t, days[1].IsSchoolHoliday)
	assert.Equal(t, "June Holidays", days[1].SchoolHolidayName)
}

func TestCalendarValidation(t *testing.T) {
	env := setupTestEnv(t)
	c := env.newManager(t, "manager")

	assert.Equal(t, http.StatusBadRequest, statusOf(c.Get("/calendar/2024-02-30").Do(nil)))
	assert.Equal(t, http.StatusBadRequest, statusOf(c.Get("/calendar/range?start_date=2024-01-01&end_date=2024-06-01").Do(nil)))
	anonymous := env.newClient()
	assert.Equal(t, http.StatusUnauthorized, statusOf(anonymous.Get("/calendar/2024-01-01").Do(nil)))
}
