package collaborators

import (
	"context"
	"fmt"
	"restaurant_platform/client"
)

type Holiday struct {
	Date      string `json:"date"`
	LocalName string `json:"localName"`
	Name      string `json:"name"`
}

type HolidayProvider interface {
	PublicHolidays(ctx context.Context, countryCode string, year int) ([]Holiday, error)
}

// NagerDate lists public holidays from a Nager.Date compatible api.
type NagerDate struct {
	client.BaseClient
}

func NewNagerDate(baseUrl string) *NagerDate {
	return &NagerDate{BaseClient: client.NewBaseClient(baseUrl, "", providerTimeout)}
}

func (c *NagerDate) PublicHolidays(ctx context.Context, countryCode string, year int) ([]Holiday, error) {
	var holidays []Holiday
	err := c.Get(fmt.Sprintf("/api/v3/PublicHolidays/%d/%v", year, countryCode)).Do(ctx, &holidays)
	if err != nil {
		return nil, fmt.Errorf("%w: holiday request failed: %v", ErrUpstreamUnavailable, err)
	}
	return holidays, nil
}
