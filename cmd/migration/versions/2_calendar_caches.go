package versions

import (
	"log"
	"time"

	"gorm.io/gorm"
)

func Migration_2_calendar_caches(txn *gorm.DB) error {
	log.Println("creating holiday, weather and calendar signal caches")

	type GlobalCalendarSignals struct {
		Date            string `gorm:"size:10;primaryKey"`
		IsHoliday       bool   `gorm:"not null"`
		HolidayName     string `gorm:"size:200"`
		IsSchoolHoliday bool   `gorm:"not null"`
		RainMm          *float64
		WeatherDesc     string `gorm:"size:200"`

		UpdatedAt time.Time
	}

	type HolidayCalendar struct {
		CountryCode  string `gorm:"size:3;primaryKey"`
		Year         int    `gorm:"primaryKey;autoIncrement:false"`
		HolidaysJson string `gorm:"type:text;not null"`

		FetchedAt time.Time
	}

	type WeatherDaily struct {
		StoreId int64  `gorm:"primaryKey;autoIncrement:false"`
		Date    string `gorm:"size:10;primaryKey"`

		Temperature *float64
		Humidity    *float64
		RainMm      *float64
		Condition   string `gorm:"size:100"`
		Description string `gorm:"size:200"`

		FetchedAt time.Time
	}

	if err := txn.Table("global_calendar_signals").Migrator().AutoMigrate(&GlobalCalendarSignals{}); err != nil {
		return err
	}
	if err := txn.Migrator().AutoMigrate(&HolidayCalendar{}); err != nil {
		return err
	}
	return txn.Table("weather_daily").Migrator().AutoMigrate(&WeatherDaily{})
}

func Rollback_2_calendar_caches(txn *gorm.DB) error {
	return txn.Migrator().DropTable("weather_daily", "holiday_calendars", "global_calendar_signals")
}
