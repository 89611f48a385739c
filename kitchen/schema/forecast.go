package schema

import (
	"time"

	"github.com/google/uuid"
)

// ReplaceForecasts swaps the stored forecasts for the given date range with rows.
func ReplaceForecasts(t Tenant, startDate, endDate string, rows []ForecastData) error {
	return t.Transaction(func(txn Tenant) error {
		result := txn.scoped("forecast_data").
			Where("forecast_date >= ? AND forecast_date <= ?", startDate, endDate).
			Delete(&ForecastData{})
		if result.Error != nil {
			return translateError("delete old forecasts", result.Error, nil)
		}

		if len(rows) == 0 {
			return nil
		}

		now := time.Now().UTC()
		for i := range rows {
			rows[i].Id = uuid.New()
			rows[i].StoreId = txn.storeId
			rows[i].GeneratedAt = now
		}
		if result := txn.db.Create(&rows); result.Error != nil {
			return translateError("save forecasts", result.Error, nil)
		}
		return nil
	})
}

func ListForecasts(t Tenant, filter DateFilter) ([]ForecastData, error) {
	query := t.scoped("forecast_data")
	if filter.StartDate != "" {
		query = query.Where("forecast_date >= ?", filter.StartDate)
	}
	if filter.EndDate != "" {
		query = query.Where("forecast_date <= ?", filter.EndDate)
	}

	var rows []ForecastData
	if result := query.Order("forecast_date").Find(&rows); result.Error != nil {
		return nil, translateError("list forecasts", result.Error, nil)
	}
	return rows, nil
}
