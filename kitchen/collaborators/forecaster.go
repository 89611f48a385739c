package collaborators

import (
	"context"
	"errors"
	"fmt"
	"restaurant_platform/client"
	"time"

	"github.com/google/uuid"
)

var ErrUpstreamUnavailable = errors.New("upstream service unavailable")

const DefaultForecasterTimeout = 30 * time.Second

type SalesPoint struct {
	Date     string    `json:"date"`
	RecipeId uuid.UUID `json:"recipe_id"`
	Quantity int       `json:"quantity"`
}

type DaySignals struct {
	Date            string   `json:"date"`
	IsHoliday       bool     `json:"is_holiday"`
	HolidayName     string   `json:"holiday_name,omitempty"`
	IsSchoolHoliday bool     `json:"is_school_holiday"`
	RainMm          *float64 `json:"rain_mm,omitempty"`
	Temperature     *float64 `json:"temperature,omitempty"`
	WeatherDesc     string   `json:"weather_desc,omitempty"`
}

type ForecastRequest struct {
	StoreId   int64        `json:"store_id"`
	StartDate string       `json:"start_date"`
	Days      int          `json:"days"`
	Recipes   []uuid.UUID  `json:"recipes"`
	History   []SalesPoint `json:"history"`
	Signals   []DaySignals `json:"signals"`
}

type ForecastPoint struct {
	Date     string    `json:"date"`
	RecipeId uuid.UUID `json:"recipe_id"`
	Quantity float64   `json:"quantity"`
}

type ForecastResponse struct {
	Forecasts []ForecastPoint `json:"forecasts"`
}

type Forecaster interface {
	Forecast(ctx context.Context, req ForecastRequest) (ForecastResponse, error)
}

type MLForecaster struct {
	client.BaseClient
}

// NewMLForecaster creates a client for the forecasting service, a zero timeout
// uses DefaultForecasterTimeout.
func NewMLForecaster(baseUrl string, timeout time.Duration) *MLForecaster {
	if timeout <= 0 {
		timeout = DefaultForecasterTimeout
	}
	return &MLForecaster{BaseClient: client.NewBaseClient(baseUrl, "", timeout)}
}

func (c *MLForecaster) Forecast(ctx context.Context, req ForecastRequest) (ForecastResponse, error) {
	var res ForecastResponse
	if err := c.Post("/forecast").Json(req).Do(ctx, &res); err != nil {
		return ForecastResponse{}, fmt.Errorf("%w: forecast request failed: %v", ErrUpstreamUnavailable, err)
	}
	return res, nil
}
