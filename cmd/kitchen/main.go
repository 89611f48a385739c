package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"restaurant_platform/kitchen/auth"
	"restaurant_platform/kitchen/cache"
	"restaurant_platform/kitchen/collaborators"
	"restaurant_platform/kitchen/schema"
	"restaurant_platform/kitchen/seed"
	"restaurant_platform/kitchen/services"
	"restaurant_platform/utils/logging"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"
	"gorm.io/gorm"
)

/**
 * All variables used by the server are loaded here so that it is clear which
 * settings are exposed and how they flow into the services.
 */
type kitchenEnv struct {
	DatabaseUri string        `env:"DATABASE_URI,required"`
	JwtSecret   string        `env:"JWT_SECRET,required"`
	TokenExpiry time.Duration `env:"ACCESS_TOKEN_EXPIRY" envDefault:"24h"`
	ResetExpiry time.Duration `env:"RESET_TOKEN_EXPIRY" envDefault:"30m"`

	AdminUsername string `env:"ADMIN_USERNAME"`
	AdminEmail    string `env:"ADMIN_MAIL"`
	AdminPassword string `env:"ADMIN_PASSWORD"`

	AllowedOrigins []string `env:"ALLOWED_ORIGINS" envSeparator:"," envDefault:"*"`
	LogDir         string   `env:"LOG_DIR" envDefault:"logs"`
	LogLevel       string   `env:"LOG_LEVEL" envDefault:"info"`

	LoginRateLimit int `env:"LOGIN_RATE_LIMIT" envDefault:"10"`

	MlServiceUrl     string        `env:"ML_SERVICE_URL"`
	MlServiceTimeout time.Duration `env:"ML_SERVICE_TIMEOUT" envDefault:"30s"`
	WeatherApiUrl    string        `env:"WEATHER_API_URL" envDefault:"https://api.open-meteo.com"`
	HolidayApiUrl    string        `env:"HOLIDAY_API_URL" envDefault:"https://date.nager.at"`

	RedisUrl         string        `env:"REDIS_URL"`
	ForecastCacheTtl time.Duration `env:"FORECAST_CACHE_TTL" envDefault:"1h"`
	HolidayCacheTtl  time.Duration `env:"HOLIDAY_CACHE_TTL" envDefault:"720h"`
	WeatherCacheTtl  time.Duration `env:"WEATHER_CACHE_TTL" envDefault:"6h"`
}

func loadEnvFile(envFile string) {
	slog.Info(fmt.Sprintf("loading env from file %v", envFile))
	err := godotenv.Load(envFile)
	if err != nil {
		log.Fatalf("error loading .env file '%v': %v", envFile, err)
	}
}

func loadEnv() kitchenEnv {
	var cfg kitchenEnv
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	if cfg.AdminUsername != "" && (cfg.AdminEmail == "" || cfg.AdminPassword == "") {
		log.Fatal("If ADMIN_USERNAME is specified then ADMIN_MAIL and ADMIN_PASSWORD must be specified as well.")
	}

	return cfg
}

func initLogging(logFile *os.File, level string) {
	log.SetFlags(log.Lshortfile | log.Ltime | log.Ldate)
	log.SetOutput(io.MultiWriter(logFile, os.Stderr))

	logger := logging.NewJsonLogger(io.MultiWriter(logFile, os.Stderr), false, logging.ParseLevel(level))
	slog.SetDefault(logger)

	slog.Info("logging initialized", logging.Code(logging.SYSTEM), "log_file", logFile.Name())
}

func initDb(uri string) *gorm.DB {
	db, err := schema.OpenDb(uri)
	if err != nil {
		log.Fatalf("%v", err)
	}

	if err := db.AutoMigrate(schema.AllModels()...); err != nil {
		log.Fatalf("error migrating db schema: %v", err)
	}

	return db
}

func (cfg *kitchenEnv) upstream() services.Collaborators {
	upstream := services.Collaborators{}
	if cfg.MlServiceUrl != "" {
		upstream.Forecaster = collaborators.NewMLForecaster(cfg.MlServiceUrl, cfg.MlServiceTimeout)
	} else {
		slog.Warn("ML_SERVICE_URL not set, forecasts will use the weekday average", logging.Code(logging.FORECAST))
	}
	if cfg.WeatherApiUrl != "" {
		upstream.Weather = collaborators.NewOpenMeteo(cfg.WeatherApiUrl)
	}
	if cfg.HolidayApiUrl != "" {
		upstream.Holidays = collaborators.NewNagerDate(cfg.HolidayApiUrl)
	}
	return upstream
}

func main() {
	envFile := flag.String("env", "", "File to load env variables from. If not specified will just load them from the environment variables already defined.")
	seedFile := flag.String("seed", "", "Optional yaml file with stores, users, ingredients, recipes and school holidays to create on startup.")
	port := flag.Int("port", 8000, "Port to run server on")

	flag.Parse()

	if *envFile != "" {
		loadEnvFile(*envFile)
	}
	cfg := loadEnv()

	if err := os.MkdirAll(cfg.LogDir, 0777); err != nil {
		log.Fatalf("error creating log dir: %v", err)
	}

	logFile, err := os.OpenFile(filepath.Join(cfg.LogDir, "kitchen.log"), os.O_CREATE|os.O_APPEND|os.O_RDWR, 0666)
	if err != nil {
		log.Fatalf("error opening log file: %v", err)
	}
	defer logFile.Close()

	auditLog, err := os.OpenFile(filepath.Join(cfg.LogDir, "audit.log"), os.O_CREATE|os.O_APPEND|os.O_RDWR, 0666)
	if err != nil {
		log.Fatalf("error opening audit log file: %v", err)
	}
	defer auditLog.Close()

	initLogging(logFile, cfg.LogLevel)

	db := initDb(cfg.DatabaseUri)

	identityProvider, err := auth.NewBasicIdentityProvider(
		db,
		auth.NewAuditLogger(auditLog),
		auth.BasicProviderArgs{
			Secret:        []byte(cfg.JwtSecret),
			TokenExpiry:   cfg.TokenExpiry,
			ResetExpiry:   cfg.ResetExpiry,
			AdminUsername: cfg.AdminUsername,
			AdminEmail:    cfg.AdminEmail,
			AdminPassword: cfg.AdminPassword,
		},
	)
	if err != nil {
		log.Fatalf("error creating identity provider: %v", err)
	}

	calendarConfig := services.CalendarConfig{
		HolidayTTL: cfg.HolidayCacheTtl,
		WeatherTTL: cfg.WeatherCacheTtl,
	}

	if *seedFile != "" {
		data, err := seed.Load(*seedFile)
		if err != nil {
			log.Fatalf("%v", err)
		}
		if err := data.Apply(db, identityProvider); err != nil {
			log.Fatalf("error applying seed file: %v", err)
		}
		calendarConfig.SchoolHolidays = data.CalendarSchoolHolidays()
	}

	forecastCache, err := cache.NewForecastCache(context.Background(), cfg.RedisUrl, cfg.ForecastCacheTtl)
	if err != nil {
		log.Fatalf("error connecting to forecast cache: %v", err)
	}

	kitchen := services.NewKitchen(
		db,
		identityProvider,
		cfg.upstream(),
		forecastCache,
		services.Variables{
			LoginRateLimit: cfg.LoginRateLimit,
			Calendar:       calendarConfig,
		},
	)

	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Mount("/api", kitchen.Routes())

	slog.Info("starting server", logging.Code(logging.SYSTEM), "port", *port)
	err = http.ListenAndServe(fmt.Sprintf(":%d", *port), r)
	if err != nil {
		log.Fatalf("listen and serve returned error: %v", err.Error())
	}
}
