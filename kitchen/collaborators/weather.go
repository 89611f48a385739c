package collaborators

import (
	"context"
	"fmt"
	"restaurant_platform/client"
	"strconv"
	"time"
)

const providerTimeout = 10 * time.Second

type DailyWeather struct {
	Date        string
	Temperature *float64
	Humidity    *float64
	RainMm      *float64
	Condition   string
	Description string
}

type WeatherProvider interface {
	Daily(ctx context.Context, latitude, longitude float64, start, end string) ([]DailyWeather, error)
}

// OpenMeteo reads daily aggregates from an Open-Meteo compatible api.
type OpenMeteo struct {
	client.BaseClient
}

func NewOpenMeteo(baseUrl string) *OpenMeteo {
	return &OpenMeteo{BaseClient: client.NewBaseClient(baseUrl, "", providerTimeout)}
}

type openMeteoResponse struct {
	Daily struct {
		Time        []string   `json:"time"`
		Temperature []*float64 `json:"temperature_2m_mean"`
		Humidity    []*float64 `json:"relative_humidity_2m_mean"`
		Rain        []*float64 `json:"precipitation_sum"`
		WeatherCode []*int     `json:"weather_code"`
	} `json:"daily"`
}

func at[T any](values []*T, i int) *T {
	if i < len(values) {
		return values[i]
	}
	return nil
}

func (c *OpenMeteo) Daily(ctx context.Context, latitude, longitude float64, start, end string) ([]DailyWeather, error) {
	var res openMeteoResponse
	err := c.Get("/v1/forecast").
		Param("latitude", strconv.FormatFloat(latitude, 'f', 4, 64)).
		Param("longitude", strconv.FormatFloat(longitude, 'f', 4, 64)).
		Param("daily", "temperature_2m_mean,relative_humidity_2m_mean,precipitation_sum,weather_code").
		Param("start_date", start).
		Param("end_date", end).
		Param("timezone", "auto").
		Do(ctx, &res)
	if err != nil {
		return nil, fmt.Errorf("%w: weather request failed: %v", ErrUpstreamUnavailable, err)
	}

	days := make([]DailyWeather, 0, len(res.Daily.Time))
	for i, date := range res.Daily.Time {
		day := DailyWeather{
			Date:        date,
			Temperature: at(res.Daily.Temperature, i),
			Humidity:    at(res.Daily.Humidity, i),
			RainMm:      at(res.Daily.Rain, i),
		}
		if code := at(res.Daily.WeatherCode, i); code != nil {
			day.Condition, day.Description = describeWeatherCode(*code)
		}
		days = append(days, day)
	}
	return days, nil
}

// WMO weather interpretation codes.
func describeWeatherCode(code int) (string, string) {
	switch {
	case code == 0:
		return "Clear", "clear sky"
	case code <= 3:
		return "Clouds", "partly cloudy"
	case code == 45 || code == 48:
		return "Fog", "fog"
	case code >= 51 && code <= 57:
		return "Drizzle", "drizzle"
	case code >= 61 && code <= 67:
		return "Rain", "rain"
	case code >= 71 && code <= 77:
		return "Snow", "snow"
	case code >= 80 && code <= 82:
		return "Rain", "rain showers"
	case code >= 85 && code <= 86:
		return "Snow", "snow showers"
	case code >= 95:
		return "Thunderstorm", "thunderstorm"
	default:
		return "Unknown", fmt.Sprintf("weather code %d", code)
	}
}
