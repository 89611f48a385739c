package utils

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

const DateLayout = "2006-01-02"

// MaxRequestBodyBytes bounds every decoded request body, large enough for a
// full sales import.
const MaxRequestBodyBytes = 4 << 20

type errorBody struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

func ParseRequestBody(w http.ResponseWriter, r *http.Request, dest interface{}) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxRequestBodyBytes))
	err := dec.Decode(dest)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			WriteError(w, fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit), http.StatusRequestEntityTooLarge)
			return false
		}
		slog.Error("error parsing request body", "error", err)
		WriteError(w, fmt.Sprintf("error parsing request body: %v", err), http.StatusBadRequest)
		return false
	}
	return true
}

func WriteJson(w http.ResponseWriter, code int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	err := json.NewEncoder(w).Encode(data)
	if err != nil {
		slog.Error("error serializing response body", "error", err)
	}
}

func WriteJsonResponse(w http.ResponseWriter, data interface{}) {
	WriteJson(w, http.StatusOK, data)
}

func WriteCreated(w http.ResponseWriter, data interface{}) {
	WriteJson(w, http.StatusCreated, data)
}

func WriteSuccess(w http.ResponseWriter) {
	WriteJsonResponse(w, struct{}{})
}

func WriteError(w http.ResponseWriter, message string, code int) {
	WriteJson(w, code, errorBody{Error: message})
}

func WriteFieldErrors(w http.ResponseWriter, message string, fields map[string]string) {
	WriteJson(w, http.StatusBadRequest, errorBody{Error: message, Fields: fields})
}

func URLParam(r *http.Request, key string) (string, error) {
	param := chi.URLParam(r, key)
	if len(param) == 0 {
		return "", fmt.Errorf("missing {%v} url parameter", key)
	}
	return param, nil
}

func URLParamUUID(r *http.Request, key string) (uuid.UUID, error) {
	param := chi.URLParam(r, key)

	if len(param) == 0 {
		return uuid.Nil, fmt.Errorf("missing {%v} url parameter", key)
	}

	id, err := uuid.Parse(param)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid uuid '%v' provided: %w", param, err)
	}

	return id, nil
}

func ParseDate(value string) (time.Time, error) {
	date, err := time.Parse(DateLayout, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date '%v', expected format YYYY-MM-DD", value)
	}
	return date, nil
}

// QueryDate returns the date in the given query param, or ok=false if it is absent.
func QueryDate(r *http.Request, key string) (time.Time, bool, error) {
	value := r.URL.Query().Get(key)
	if value == "" {
		return time.Time{}, false, nil
	}
	date, err := ParseDate(value)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("query param %v: %w", key, err)
	}
	return date, true, nil
}

func QueryInt(r *http.Request, key string, defaultValue int) (int, error) {
	value := r.URL.Query().Get(key)
	if value == "" {
		return defaultValue, nil
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("query param %v must be an integer, got '%v'", key, value)
	}
	return i, nil
}

// QueryBool parses an optional boolean query param, returning nil if absent.
func QueryBool(r *http.Request, key string) (*bool, error) {
	value := r.URL.Query().Get(key)
	if value == "" {
		return nil, nil
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return nil, fmt.Errorf("query param %v must be a boolean, got '%v'", key, value)
	}
	return &b, nil
}

func QueryUUID(r *http.Request, key string) (*uuid.UUID, error) {
	value := r.URL.Query().Get(key)
	if value == "" {
		return nil, nil
	}
	id, err := uuid.Parse(value)
	if err != nil {
		return nil, fmt.Errorf("invalid uuid '%v' provided for %v: %w", value, key, err)
	}
	return &id, nil
}

// DaysBetween lists each date from start to end inclusive.
func DaysBetween(start, end time.Time) []time.Time {
	days := make([]time.Time, 0)
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		days = append(days, d)
	}
	return days
}
