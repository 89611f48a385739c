package services

import (
	"log"
	"net/http"
	"os"
	"restaurant_platform/kitchen/auth"
	"restaurant_platform/kitchen/cache"
	"restaurant_platform/kitchen/collaborators"
	"restaurant_platform/utils"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"gorm.io/gorm"
)

type Kitchen struct {
	auth       AuthService
	user       UserService
	ingredient IngredientService
	recipe     RecipeService
	sales      SalesService
	wastage    WastageService
	store      StoreService
	calendar   CalendarService
	forecast   ForecastService
}

type Collaborators struct {
	Forecaster collaborators.Forecaster
	Holidays   collaborators.HolidayProvider
	Weather    collaborators.WeatherProvider
}

type Variables struct {
	// requests per minute per client ip on login and forgot password
	LoginRateLimit int
	Calendar       CalendarConfig
}

func NewKitchen(
	db *gorm.DB, userAuth auth.IdentityProvider, upstream Collaborators, forecastCache cache.ForecastCache, variables Variables,
) Kitchen {
	if forecastCache == nil {
		forecastCache = cache.NoopForecastCache{}
	}
	rateLimit := variables.LoginRateLimit
	if rateLimit <= 0 {
		rateLimit = 10
	}

	calendar := NewCalendar(db, upstream.Holidays, upstream.Weather, variables.Calendar)

	return Kitchen{
		auth:       AuthService{db: db, userAuth: userAuth, rateLimit: rateLimit},
		user:       UserService{db: db, userAuth: userAuth},
		ingredient: IngredientService{db: db, userAuth: userAuth},
		recipe:     RecipeService{db: db, userAuth: userAuth, forecastCache: forecastCache},
		sales:      SalesService{db: db, userAuth: userAuth, forecastCache: forecastCache},
		wastage:    WastageService{db: db, userAuth: userAuth},
		store:      StoreService{db: db, userAuth: userAuth},
		calendar:   CalendarService{db: db, userAuth: userAuth, calendar: calendar},
		forecast: ForecastService{
			db:         db,
			userAuth:   userAuth,
			forecaster: NewForecaster(db, upstream.Forecaster, calendar, forecastCache),
		},
	}
}

func (k *Kitchen) Routes() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestLogger(&middleware.DefaultLogFormatter{
		Logger: log.New(os.Stderr, "", log.LstdFlags), NoColor: true,
	}))

	r.Mount("/auth", k.auth.Routes())
	r.Mount("/users", k.user.Routes())
	r.Mount("/ingredients", k.ingredient.Routes())
	r.Mount("/recipes", k.recipe.Routes())
	r.Mount("/sales", k.sales.Routes())
	r.Mount("/wastage", k.wastage.Routes())
	r.Mount("/store", k.store.Routes())
	r.Mount("/calendar", k.calendar.Routes())
	r.Mount("/forecast", k.forecast.Routes())

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		utils.WriteSuccess(w)
	})

	return r
}
