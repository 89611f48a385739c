package services

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"reflect"
	"restaurant_platform/kitchen/auth"
	"restaurant_platform/kitchen/schema"
	"restaurant_platform/utils"
	"strings"

	"github.com/go-playground/validator/v10"
	"gorm.io/gorm"
)

type codedError struct {
	err  error
	code int
}

func (e *codedError) Error() string {
	return e.err.Error()
}

func (e *codedError) Unwrap() error {
	return e.err
}

func CodedError(err error, code int) error {
	return &codedError{err: err, code: code}
}

func GetResponseCode(err error) int {
	var cerr *codedError
	if errors.As(err, &cerr) {
		return cerr.code
	}
	slog.Error("non coded error passed to GetResponseCode", "error", err)
	return http.StatusInternalServerError
}

// schemaError attaches the http status matching a data access error.
func schemaError(err error) error {
	var cerr *codedError
	if errors.As(err, &cerr) {
		return err
	}

	switch {
	case errors.Is(err, schema.ErrNotFound):
		return CodedError(err, http.StatusNotFound)
	case errors.Is(err, schema.ErrDuplicateKey):
		return CodedError(err, http.StatusConflict)
	case errors.Is(err, schema.ErrReferenced):
		return CodedError(err, http.StatusConflict)
	case errors.Is(err, schema.ErrRecipeCycle):
		return CodedError(err, http.StatusConflict)
	case errors.Is(err, schema.ErrInvalidRef), errors.Is(err, schema.ErrInvalidWasteTarget):
		return CodedError(err, http.StatusBadRequest)
	default:
		return CodedError(err, http.StatusInternalServerError)
	}
}

// writeError writes err with its response code. Server errors never expose
// internal details.
func writeError(w http.ResponseWriter, err error) {
	code := GetResponseCode(err)
	if code >= http.StatusInternalServerError {
		utils.WriteError(w, "internal server error", code)
		return
	}
	utils.WriteError(w, err.Error(), code)
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

var validate = newValidator()

func describeFieldError(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "gt":
		return fmt.Sprintf("must be greater than %v", fe.Param())
	case "gte":
		return fmt.Sprintf("must be at least %v", fe.Param())
	case "lte":
		return fmt.Sprintf("must be at most %v", fe.Param())
	case "min":
		return fmt.Sprintf("must have a minimum length of %v", fe.Param())
	case "max":
		return fmt.Sprintf("must have a maximum length of %v", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of [%v]", fe.Param())
	case "email":
		return "must be a valid email address"
	case "e164":
		return "must be a phone number in E.164 format"
	case "latitude":
		return "must be a latitude between -90 and 90"
	case "longitude":
		return "must be a longitude between -180 and 180"
	case "iso3166_1_alpha2|iso3166_1_alpha3", "iso3166_1_alpha2", "iso3166_1_alpha3":
		return "must be an ISO 3166-1 alpha-2 or alpha-3 country code"
	case "required_with":
		return fmt.Sprintf("is required when %v is set", strings.ToLower(fe.Param()))
	case "datetime":
		return "must be a date in YYYY-MM-DD format"
	default:
		return fmt.Sprintf("failed the '%v' check", fe.Tag())
	}
}

// fieldErrors converts validator errors to a map of json field path to message.
func fieldErrors(err error) map[string]string {
	fields := map[string]string{}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		fields[""] = err.Error()
		return fields
	}

	for _, fe := range verrs {
		path := fe.Namespace()
		if idx := strings.Index(path, "."); idx >= 0 {
			path = path[idx+1:]
		}
		fields[path] = describeFieldError(fe)
	}
	return fields
}

// parseValidBody decodes the json body into dest and validates it, writing a
// 400 response on failure.
func parseValidBody(w http.ResponseWriter, r *http.Request, dest interface{}) bool {
	if !utils.ParseRequestBody(w, r, dest) {
		return false
	}
	if err := validate.Struct(dest); err != nil {
		utils.WriteFieldErrors(w, "validation failed", fieldErrors(err))
		return false
	}
	return true
}

func requestUser(w http.ResponseWriter, r *http.Request) (schema.User, bool) {
	user, err := auth.UserFromContext(r)
	if err != nil {
		writeError(w, CodedError(err, http.StatusInternalServerError))
		return schema.User{}, false
	}
	return user, true
}

// requestTenant returns the data access capability for the caller's store.
func requestTenant(db *gorm.DB, w http.ResponseWriter, r *http.Request) (schema.Tenant, bool) {
	user, ok := requestUser(w, r)
	if !ok {
		return schema.Tenant{}, false
	}
	return schema.ForStore(db, user.StoreId).WithContext(r.Context()), true
}

func badRequest(w http.ResponseWriter, err error) {
	writeError(w, CodedError(err, http.StatusBadRequest))
}
