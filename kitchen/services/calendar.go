package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"restaurant_platform/kitchen/auth"
	"restaurant_platform/kitchen/cache"
	"restaurant_platform/kitchen/collaborators"
	"restaurant_platform/kitchen/schema"
	"restaurant_platform/utils"
	"restaurant_platform/utils/logging"
	"time"

	"github.com/go-chi/chi/v5"
	"gorm.io/gorm"
)

const maxCalendarDays = 62

type SchoolHoliday struct {
	Name      string
	StartDate string
	EndDate   string
}

type CalendarConfig struct {
	HolidayTTL     time.Duration
	WeatherTTL     time.Duration
	SchoolHolidays []SchoolHoliday
}

// Calendar assembles per day holiday, school holiday and weather signals. Holiday
// and weather results are read through the HolidayCalendar and WeatherDaily tables.
type Calendar struct {
	db             *gorm.DB
	holidays       collaborators.HolidayProvider
	weather        collaborators.WeatherProvider
	holidayPolicy  cache.Policy
	weatherPolicy  cache.Policy
	schoolHolidays []SchoolHoliday
	now            func() time.Time
}

func NewCalendar(db *gorm.DB, holidays collaborators.HolidayProvider, weather collaborators.WeatherProvider, config CalendarConfig) *Calendar {
	c := &Calendar{
		db:             db,
		holidays:       holidays,
		weather:        weather,
		holidayPolicy:  cache.Policy{TTL: config.HolidayTTL},
		schoolHolidays: config.SchoolHolidays,
		now:            func() time.Time { return time.Now().UTC() },
	}
	// observed weather does not change, only today and later are refreshed
	c.weatherPolicy = cache.Policy{
		TTL: config.WeatherTTL,
		Expires: func(date string) bool {
			return date >= c.now().Format(utils.DateLayout)
		},
	}
	return c
}

type WeatherInfo struct {
	Temperature *float64 `json:"temperature"`
	Humidity    *float64 `json:"humidity"`
	RainMm      *float64 `json:"rain_mm"`
	Condition   string   `json:"condition"`
	Description string   `json:"description"`
}

type CalendarDay struct {
	Date              string       `json:"date"`
	Weekday           string       `json:"weekday"`
	IsHoliday         bool         `json:"is_holiday"`
	HolidayName       string       `json:"holiday_name,omitempty"`
	IsSchoolHoliday   bool         `json:"is_school_holiday"`
	SchoolHolidayName string       `json:"school_holiday_name,omitempty"`
	Weather           *WeatherInfo `json:"weather"`
}

func (d CalendarDay) Signals() collaborators.DaySignals {
	signals := collaborators.DaySignals{
		Date:            d.Date,
		IsHoliday:       d.IsHoliday,
		HolidayName:     d.HolidayName,
		IsSchoolHoliday: d.IsSchoolHoliday,
	}
	if d.Weather != nil {
		signals.RainMm = d.Weather.RainMm
		signals.Temperature = d.Weather.Temperature
		signals.WeatherDesc = d.Weather.Description
	}
	return signals
}

func (c *Calendar) holidayCalendar(ctx context.Context, countryCode string, year int) (map[string]string, error) {
	source := cache.Source[[]collaborators.Holiday]{
		Name:   "holiday_calendar",
		Policy: c.holidayPolicy,
		Now:    c.now,
		Load: func(ctx context.Context, key string) (cache.Entry[[]collaborators.Holiday], bool, error) {
			row, found, err := schema.GetHolidayCalendar(c.db.WithContext(ctx), countryCode, year)
			if err != nil || !found {
				return cache.Entry[[]collaborators.Holiday]{}, false, err
			}
			var holidays []collaborators.Holiday
			if err := json.Unmarshal([]byte(row.HolidaysJson), &holidays); err != nil {
				slog.Warn("discarding corrupt holiday cache entry", logging.Code(logging.CALENDAR), "key", key, "error", err)
				return cache.Entry[[]collaborators.Holiday]{}, false, nil
			}
			return cache.Entry[[]collaborators.Holiday]{Value: holidays, FetchedAt: row.FetchedAt}, true, nil
		},
		Fetch: func(ctx context.Context, key string) ([]collaborators.Holiday, error) {
			if c.holidays == nil {
				return nil, fmt.Errorf("%w: no holiday provider configured", collaborators.ErrUpstreamUnavailable)
			}
			return c.holidays.PublicHolidays(ctx, countryCode, year)
		},
		Save: func(ctx context.Context, key string, entry cache.Entry[[]collaborators.Holiday]) error {
			data, err := json.Marshal(entry.Value)
			if err != nil {
				return err
			}
			return schema.SaveHolidayCalendar(c.db.WithContext(ctx), &schema.HolidayCalendar{
				CountryCode:  countryCode,
				Year:         year,
				HolidaysJson: string(data),
				FetchedAt:    entry.FetchedAt,
			})
		},
	}

	holidays, _, err := source.Get(ctx, fmt.Sprintf("%v:%d", countryCode, year))
	if err != nil {
		return nil, err
	}

	byDate := make(map[string]string, len(holidays))
	for _, holiday := range holidays {
		name := holiday.Name
		if name == "" {
			name = holiday.LocalName
		}
		byDate[holiday.Date] = name
	}
	return byDate, nil
}

// storeWeather returns the cached weather for the store over the range,
// refreshing missing or stale days with a single upstream call.
func (c *Calendar) storeWeather(ctx context.Context, t schema.Tenant, store schema.Store, dates []string) (map[string]schema.WeatherDaily, error) {
	start, end := dates[0], dates[len(dates)-1]

	rows, err := schema.ListWeather(t, start, end)
	if err != nil {
		return nil, err
	}

	byDate := make(map[string]schema.WeatherDaily, len(rows))
	for _, row := range rows {
		byDate[row.Date] = row
	}

	if c.weather == nil || store.Latitude == nil || store.Longitude == nil {
		return byDate, nil
	}

	now := c.now()
	stale := make([]string, 0)
	for _, date := range dates {
		row, found := byDate[date]
		if !found || !c.weatherPolicy.Fresh(date, row.FetchedAt, now) {
			stale = append(stale, date)
		}
	}
	if len(stale) == 0 {
		return byDate, nil
	}

	days, err := c.weather.Daily(ctx, *store.Latitude, *store.Longitude, stale[0], stale[len(stale)-1])
	if err != nil {
		slog.Warn("weather provider unavailable, using cached weather", logging.Code(logging.CALENDAR), "store_id", store.Id, "error", err)
		return byDate, nil
	}

	fetched := make([]schema.WeatherDaily, 0, len(days))
	for _, day := range days {
		if day.Date < start || day.Date > end {
			continue
		}
		row := schema.WeatherDaily{
			Date:        day.Date,
			Temperature: day.Temperature,
			Humidity:    day.Humidity,
			RainMm:      day.RainMm,
			Condition:   day.Condition,
			Description: day.Description,
			FetchedAt:   now,
		}
		fetched = append(fetched, row)
	}

	if err := schema.SaveWeather(t, fetched); err != nil {
		return nil, err
	}
	for _, row := range fetched {
		byDate[row.Date] = row
	}

	return byDate, nil
}

func (c *Calendar) schoolHoliday(date string) (string, bool) {
	for _, period := range c.schoolHolidays {
		if date >= period.StartDate && date <= period.EndDate {
			return period.Name, true
		}
	}
	return "", false
}

// Days returns the signals for every date from start to end inclusive. Upstream
// failures degrade to cached or empty signals, only database errors are returned.
func (c *Calendar) Days(ctx context.Context, t schema.Tenant, start, end time.Time) ([]CalendarDay, error) {
	store, err := schema.GetStore(t)
	if err != nil {
		return nil, err
	}

	days := utils.DaysBetween(start, end)
	dates := make([]string, 0, len(days))
	for _, day := range days {
		dates = append(dates, day.Format(utils.DateLayout))
	}
	if len(dates) == 0 {
		return []CalendarDay{}, nil
	}

	holidays := map[string]string{}
	if store.CountryCode != "" {
		if region, err := regionCode(store.CountryCode); err == nil {
			for year := start.Year(); year <= end.Year(); year++ {
				yearHolidays, err := c.holidayCalendar(ctx, region, year)
				if err != nil {
					return nil, err
				}
				for date, name := range yearHolidays {
					holidays[date] = name
				}
			}
		} else {
			slog.Warn("store has unrecognized country code", logging.Code(logging.CALENDAR), "store_id", store.Id, "country_code", store.CountryCode)
		}
	}

	weather, err := c.storeWeather(ctx, t, store, dates)
	if err != nil {
		return nil, err
	}

	result := make([]CalendarDay, 0, len(days))
	for i, day := range days {
		date := dates[i]
		entry := CalendarDay{Date: date, Weekday: day.Weekday().String()}
		if name, ok := holidays[date]; ok {
			entry.IsHoliday = true
			entry.HolidayName = name
		}
		if name, ok := c.schoolHoliday(date); ok {
			entry.IsSchoolHoliday = true
			entry.SchoolHolidayName = name
		}
		if row, ok := weather[date]; ok {
			entry.Weather = &WeatherInfo{
				Temperature: row.Temperature,
				Humidity:    row.Humidity,
				RainMm:      row.RainMm,
				Condition:   row.Condition,
				Description: row.Description,
			}
		}

		signals := schema.GlobalCalendarSignals{
			Date:            date,
			IsHoliday:       entry.IsHoliday,
			HolidayName:     entry.HolidayName,
			IsSchoolHoliday: entry.IsSchoolHoliday,
		}
		if entry.Weather != nil {
			signals.RainMm = entry.Weather.RainMm
			signals.WeatherDesc = entry.Weather.Description
		}
		if err := schema.SaveCalendarSignals(c.db.WithContext(ctx), &signals); err != nil {
			return nil, err
		}

		result = append(result, entry)
	}

	return result, nil
}

type CalendarService struct {
	db       *gorm.DB
	userAuth auth.IdentityProvider
	calendar *Calendar
}

func (s *CalendarService) Routes() chi.Router {
	r := chi.NewRouter()

	r.Use(s.userAuth.AuthMiddleware()...)

	r.Get("/range", s.Range)
	r.Get("/{date}", s.Day)

	return r
}

func (s *CalendarService) Day(w http.ResponseWriter, r *http.Request) {
	tenant, ok := requestTenant(s.db, w, r)
	if !ok {
		return
	}

	param, err := utils.URLParam(r, "date")
	if err != nil {
		badRequest(w, err)
		return
	}
	date, err := utils.ParseDate(param)
	if err != nil {
		badRequest(w, err)
		return
	}

	days, err := s.calendar.Days(r.Context(), tenant, date, date)
	if err != nil {
		writeError(w, schemaError(err))
		return
	}

	utils.WriteJsonResponse(w, days[0])
}

func (s *CalendarService) Range(w http.ResponseWriter, r *http.Request) {
	tenant, ok := requestTenant(s.db, w, r)
	if !ok {
		return
	}

	start, end, err := dateRange(r, maxCalendarDays)
	if err != nil {
		badRequest(w, err)
		return
	}

	days, err := s.calendar.Days(r.Context(), tenant, start, end)
	if err != nil {
		writeError(w, schemaError(err))
		return
	}

	utils.WriteJsonResponse(w, days)
}
