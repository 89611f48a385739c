package schema

import (
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GetHolidayCalendar returns the cached holiday list, ok=false on a cache miss.
func GetHolidayCalendar(db *gorm.DB, countryCode string, year int) (HolidayCalendar, bool, error) {
	var calendar HolidayCalendar
	result := db.Limit(1).Find(&calendar, "country_code = ? AND year = ?", countryCode, year)
	if result.Error != nil {
		return calendar, false, translateError("get holiday calendar", result.Error, nil)
	}
	return calendar, result.RowsAffected > 0, nil
}

func SaveHolidayCalendar(db *gorm.DB, calendar *HolidayCalendar) error {
	result := db.Clauses(clause.OnConflict{UpdateAll: true}).Create(calendar)
	if result.Error != nil {
		return translateError("save holiday calendar", result.Error, nil)
	}
	return nil
}

func SaveWeather(t Tenant, rows []WeatherDaily) error {
	if len(rows) == 0 {
		return nil
	}
	for i := range rows {
		rows[i].StoreId = t.storeId
	}
	result := t.db.Clauses(clause.OnConflict{UpdateAll: true}).Create(&rows)
	if result.Error != nil {
		return translateError("save weather", result.Error, nil)
	}
	return nil
}

func GetCalendarSignals(db *gorm.DB, date string) (GlobalCalendarSignals, bool, error) {
	var signals GlobalCalendarSignals
	result := db.Limit(1).Find(&signals, "date = ?", date)
	if result.Error != nil {
		return signals, false, translateError("get calendar signals", result.Error, nil)
	}
	return signals, result.RowsAffected > 0, nil
}

func SaveCalendarSignals(db *gorm.DB, signals *GlobalCalendarSignals) error {
	result := db.Clauses(clause.OnConflict{UpdateAll: true}).Create(signals)
	if result.Error != nil {
		return translateError("save calendar signals", result.Error, nil)
	}
	return nil
}

func ListWeather(t Tenant, startDate, endDate string) ([]WeatherDaily, error) {
	var rows []WeatherDaily
	result := t.scoped("weather_daily").
		Where("date >= ? AND date <= ?", startDate, endDate).
		Order("date").
		Find(&rows)
	if result.Error != nil {
		return nil, translateError("list weather", result.Error, nil)
	}
	return rows, nil
}
