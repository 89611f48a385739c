package tests

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"restaurant_platform/kitchen/auth"
	"restaurant_platform/kitchen/cache"
	"restaurant_platform/kitchen/collaborators"
	"restaurant_platform/kitchen/schema"
	"restaurant_platform/kitchen/services"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type resetNotifier struct {
	mu     sync.Mutex
	tokens map[string]string
}

func (n *resetNotifier) SendPasswordReset(ctx context.Context, user schema.User, token string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.tokens[user.Username] = token
	return nil
}

func (n *resetNotifier) token(username string) string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.tokens[username]
}

type testEnv struct {
	kitchen  services.Kitchen
	api      chi.Router
	db       *gorm.DB
	notifier *resetNotifier
}

type envOptions struct {
	forecaster      http.Handler
	forecasterWait  time.Duration
	weather         http.Handler
	holidays        http.Handler
	schoolHolidays  []services.SchoolHoliday
	loginRateLimit  int
	forecastCache   cache.ForecastCache
	weatherCacheTtl time.Duration
	holidayCacheTtl time.Duration
}

type envOption func(*envOptions)

func withForecaster(handler http.Handler, timeout time.Duration) envOption {
	return func(o *envOptions) {
		o.forecaster = handler
		o.forecasterWait = timeout
	}
}

func withWeather(handler http.Handler) envOption {
	return func(o *envOptions) { o.weather = handler }
}

func withHolidays(handler http.Handler) envOption {
	return func(o *envOptions) { o.holidays = handler }
}

func withSchoolHolidays(periods ...services.SchoolHoliday) envOption {
	return func(o *envOptions) { o.schoolHolidays = periods }
}

func withLoginRateLimit(limit int) envOption {
	return func(o *envOptions) { o.loginRateLimit = limit }
}

func withForecastCache(c cache.ForecastCache) envOption {
	return func(o *envOptions) { o.forecastCache = c }
}

func stubServer(t *testing.T, handler http.Handler) string {
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return server.URL
}

func openTestDb(t *testing.T) *gorm.DB {
	db, err := schema.OpenDb("sqlite://" + filepath.Join(t.TempDir(), "kitchen.db"))
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(schema.AllModels()...))
	return db
}

func setupTestEnv(t *testing.T, opts ...envOption) *testEnv {
	options := envOptions{loginRateLimit: 1000, weatherCacheTtl: 6 * time.Hour, holidayCacheTtl: 30 * 24 * time.Hour}
	for _, opt := range opts {
		opt(&options)
	}

	db := openTestDb(t)

	notifier := &resetNotifier{tokens: map[string]string{}}

	userAuth, err := auth.NewBasicIdentityProvider(
		db,
		auth.NewAuditLogger(new(bytes.Buffer)),
		auth.BasicProviderArgs{
			Secret:   []byte("a9c02kd8s7m1xq"),
			Notifier: notifier,
		},
	)
	require.NoError(t, err)

	upstream := services.Collaborators{}
	if options.forecaster != nil {
		upstream.Forecaster = collaborators.NewMLForecaster(stubServer(t, options.forecaster), options.forecasterWait)
	}
	if options.weather != nil {
		upstream.Weather = collaborators.NewOpenMeteo(stubServer(t, options.weather))
	}
	if options.holidays != nil {
		upstream.Holidays = collaborators.NewNagerDate(stubServer(t, options.holidays))
	}

	kitchen := services.NewKitchen(db, userAuth, upstream, options.forecastCache, services.Variables{
		LoginRateLimit: options.loginRateLimit,
		Calendar: services.CalendarConfig{
			HolidayTTL:     options.holidayCacheTtl,
			WeatherTTL:     options.weatherCacheTtl,
			SchoolHolidays: options.schoolHolidays,
		},
	})

	return &testEnv{kitchen: kitchen, api: kitchen.Routes(), db: db, notifier: notifier}
}

func (env *testEnv) newClient() client {
	return client{api: env.api}
}

// newManager registers a new store and returns a client logged in as its manager.
func (env *testEnv) newManager(t *testing.T, username string) client {
	c := env.newClient()
	_, err := c.register(username, username+"@mail.com", username+"_password")
	require.NoError(t, err)
	return c
}

// newEmployee creates an employee in the manager's store and logs in as them.
func (env *testEnv) newEmployee(t *testing.T, manager client, username string) client {
	_, err := manager.addUser(username, username+"@mail.com", username+"_password", schema.EmployeeRole)
	require.NoError(t, err)

	c := env.newClient()
	_, err = c.login(username, username+"_password")
	require.NoError(t, err)
	return c
}

func today() time.Time {
	return time.Now().UTC().Truncate(24 * time.Hour)
}

func isoDate(t time.Time) string {
	return t.Format("2006-01-02")
}
