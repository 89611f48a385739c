package services

import (
	"fmt"
	"log/slog"
	"net/http"
	"restaurant_platform/kitchen/auth"
	"restaurant_platform/kitchen/schema"
	"restaurant_platform/utils"
	"restaurant_platform/utils/logging"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/text/language"
	"gorm.io/gorm"
)

type StoreService struct {
	db       *gorm.DB
	userAuth auth.IdentityProvider
}

func (s *StoreService) Routes() chi.Router {
	r := chi.NewRouter()

	r.Use(s.userAuth.AuthMiddleware()...)

	r.Get("/", s.Get)
	r.With(auth.ManagerOnly).Put("/", s.Update)

	return r
}

// regionCode normalizes an ISO 3166-1 alpha-2 or alpha-3 country code to alpha-2.
func regionCode(countryCode string) (string, error) {
	region, err := language.ParseRegion(strings.TrimSpace(countryCode))
	if err != nil || !region.IsCountry() {
		return "", fmt.Errorf("unknown country code '%v'", countryCode)
	}
	return region.String(), nil
}

type StoreInfo struct {
	Id            int64     `json:"id"`
	CompanyName   string    `json:"company_name"`
	Uen           string    `json:"uen"`
	StoreName     string    `json:"store_name"`
	Location      string    `json:"location"`
	Latitude      *float64  `json:"latitude"`
	Longitude     *float64  `json:"longitude"`
	ContactNumber string    `json:"contact_number"`
	CountryCode   string    `json:"country_code"`
	IsActive      bool      `json:"is_active"`
	SetupRequired bool      `json:"setup_required"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func convertToStoreInfo(store schema.Store) StoreInfo {
	return StoreInfo{
		Id:            store.Id,
		CompanyName:   store.CompanyName,
		Uen:           store.Uen,
		StoreName:     store.StoreName,
		Location:      store.Location,
		Latitude:      store.Latitude,
		Longitude:     store.Longitude,
		ContactNumber: store.ContactNumber,
		CountryCode:   store.CountryCode,
		IsActive:      store.IsActive,
		SetupRequired: store.SetupRequired(),
		UpdatedAt:     store.UpdatedAt,
	}
}

func (s *StoreService) Get(w http.ResponseWriter, r *http.Request) {
	tenant, ok := requestTenant(s.db, w, r)
	if !ok {
		return
	}

	store, err := schema.GetStore(tenant)
	if err != nil {
		writeError(w, schemaError(err))
		return
	}

	utils.WriteJsonResponse(w, convertToStoreInfo(store))
}

type storeRequest struct {
	CompanyName   string   `json:"company_name" validate:"max=200"`
	Uen           string   `json:"uen" validate:"max=50"`
	StoreName     string   `json:"store_name" validate:"required,max=200"`
	Location      string   `json:"location" validate:"required,max=500"`
	Latitude      *float64 `json:"latitude" validate:"required_with=Longitude,omitempty,latitude"`
	Longitude     *float64 `json:"longitude" validate:"required_with=Latitude,omitempty,longitude"`
	ContactNumber string   `json:"contact_number" validate:"omitempty,e164"`
	CountryCode   string   `json:"country_code" validate:"omitempty,iso3166_1_alpha2|iso3166_1_alpha3"`
	IsActive      *bool    `json:"is_active"`
}

// NormalizeStoreProfile applies the store endpoint's validation to a profile
// and rewrites its country code to uppercase alpha-2. Failures are returned
// keyed by json field name.
func NormalizeStoreProfile(profile schema.StoreProfile) (schema.StoreProfile, map[string]string) {
	profile.CountryCode = strings.ToUpper(strings.TrimSpace(profile.CountryCode))

	err := validate.Struct(storeRequest{
		CompanyName:   profile.CompanyName,
		Uen:           profile.Uen,
		StoreName:     profile.StoreName,
		Location:      profile.Location,
		Latitude:      profile.Latitude,
		Longitude:     profile.Longitude,
		ContactNumber: profile.ContactNumber,
		CountryCode:   profile.CountryCode,
		IsActive:      profile.IsActive,
	})
	if err != nil {
		return profile, fieldErrors(err)
	}

	if profile.CountryCode != "" {
		region, err := regionCode(profile.CountryCode)
		if err != nil {
			return profile, map[string]string{"country_code": err.Error()}
		}
		profile.CountryCode = region
	}
	return profile, nil
}

func (s *StoreService) Update(w http.ResponseWriter, r *http.Request) {
	tenant, ok := requestTenant(s.db, w, r)
	if !ok {
		return
	}

	var params storeRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	profile, fields := NormalizeStoreProfile(schema.StoreProfile{
		CompanyName:   params.CompanyName,
		Uen:           params.Uen,
		StoreName:     params.StoreName,
		Location:      params.Location,
		Latitude:      params.Latitude,
		Longitude:     params.Longitude,
		ContactNumber: params.ContactNumber,
		CountryCode:   params.CountryCode,
		IsActive:      params.IsActive,
	})
	if len(fields) > 0 {
		utils.WriteFieldErrors(w, "validation failed", fields)
		return
	}

	store, err := schema.UpdateStore(tenant, profile)
	if err != nil {
		writeError(w, schemaError(err))
		return
	}

	slog.Info("updated store profile", logging.Code(logging.SYSTEM), "store_id", store.Id)

	utils.WriteJsonResponse(w, convertToStoreInfo(store))
}
