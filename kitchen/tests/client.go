package tests

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"restaurant_platform/kitchen/services"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type httpTestRequest struct {
	api http.Handler

	method   string
	endpoint string
	headers  map[string]string
	json     interface{}
	body     io.Reader
}

func newHttpTestRequest(api http.Handler, method, endpoint string) *httpTestRequest {
	return &httpTestRequest{api: api, method: method, endpoint: endpoint}
}

func (r *httpTestRequest) Header(key, value string) *httpTestRequest {
	if r.headers == nil {
		r.headers = make(map[string]string)
	}
	r.headers[key] = value
	return r
}

func (r *httpTestRequest) Auth(token string) *httpTestRequest {
	return r.Header("Authorization", fmt.Sprintf("Bearer %v", token))
}

func (r *httpTestRequest) Json(data interface{}) *httpTestRequest {
	r.json = data
	return r
}

func (r *httpTestRequest) Body(body io.Reader) *httpTestRequest {
	r.body = body
	return r
}

type statusError struct {
	method   string
	endpoint string
	code     int
	body     errorBody
}

type errorBody struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields"`
}

func (e *statusError) Error() string {
	return fmt.Sprintf("%v request to endpoint %v returned status %d, error '%v'", e.method, e.endpoint, e.code, e.body.Error)
}

// statusOf returns the http status carried by err, 200 for nil.
func statusOf(err error) int {
	if err == nil {
		return http.StatusOK
	}
	var serr *statusError
	if errors.As(err, &serr) {
		return serr.code
	}
	return -1
}

func errorBodyOf(err error) errorBody {
	var serr *statusError
	if errors.As(err, &serr) {
		return serr.body
	}
	return errorBody{}
}

func fieldsOf(err error) map[string]string {
	var serr *statusError
	if errors.As(err, &serr) {
		return serr.body.Fields
	}
	return nil
}

// response body will be parsed into result, passing nil indicates that no result is returned.
func (r *httpTestRequest) Do(result interface{}) error {
	if r.json != nil {
		body := new(bytes.Buffer)
		err := json.NewEncoder(body).Encode(r.json)
		if err != nil {
			return fmt.Errorf("error encoding json body for endpoint %v: %w", r.endpoint, err)
		}
		r.body = body
	}

	req := httptest.NewRequest(r.method, r.endpoint, r.body)
	for k, v := range r.headers {
		req.Header.Add(k, v)
	}

	w := httptest.NewRecorder()

	r.api.ServeHTTP(w, req)

	res := w.Result()
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		serr := &statusError{method: r.method, endpoint: r.endpoint, code: res.StatusCode}
		_ = json.NewDecoder(res.Body).Decode(&serr.body)
		return serr
	}

	if result != nil {
		err := json.NewDecoder(res.Body).Decode(result)
		if err != nil {
			return fmt.Errorf("error parsing %v response from endpoint %v: %w", r.method, r.endpoint, err)
		}
	}

	return nil
}

type client struct {
	api       chi.Router
	authToken string
	user      services.UserInfo
}

func (c *client) request(method, endpoint string) *httpTestRequest {
	r := newHttpTestRequest(c.api, method, endpoint)
	if c.authToken != "" {
		return r.Auth(c.authToken)
	}
	return r
}

func (c *client) Get(endpoint string) *httpTestRequest {
	return c.request("GET", endpoint)
}

func (c *client) Post(endpoint string) *httpTestRequest {
	return c.request("POST", endpoint)
}

func (c *client) Put(endpoint string) *httpTestRequest {
	return c.request("PUT", endpoint)
}

func (c *client) Patch(endpoint string) *httpTestRequest {
	return c.request("PATCH", endpoint)
}

func (c *client) Delete(endpoint string) *httpTestRequest {
	return c.request("DELETE", endpoint)
}

type loginResponse struct {
	AccessToken        string            `json:"access_token"`
	TokenType          string            `json:"token_type"`
	User               services.UserInfo `json:"user"`
	StoreSetupRequired bool              `json:"store_setup_required"`
}

func (c *client) register(username, email, password string) (loginResponse, error) {
	var res loginResponse
	err := c.Post("/auth/register").Json(map[string]string{
		"username": username,
		"password": password,
		"name":     username,
		"email":    email,
	}).Do(&res)
	if err != nil {
		return loginResponse{}, err
	}
	c.authToken = res.AccessToken
	c.user = res.User
	return res, nil
}

func (c *client) login(username, password string) (loginResponse, error) {
	var res loginResponse
	err := c.Post("/auth/login").Json(map[string]string{"username": username, "password": password}).Do(&res)
	if err != nil {
		return loginResponse{}, err
	}
	c.authToken = res.AccessToken
	c.user = res.User
	return res, nil
}

func (c *client) addUser(username, email, password, role string) (services.UserInfo, error) {
	var res services.UserInfo
	err := c.Post("/users").Json(map[string]string{
		"username": username,
		"password": password,
		"name":     username,
		"email":    email,
		"role":     role,
	}).Do(&res)
	return res, err
}

func (c *client) setupStore(countryCode string, latitude, longitude *float64) (services.StoreInfo, error) {
	var res services.StoreInfo
	err := c.Put("/store").Json(map[string]interface{}{
		"store_name":   "Main Street",
		"location":     "1 Main Street",
		"country_code": countryCode,
		"latitude":     latitude,
		"longitude":    longitude,
	}).Do(&res)
	return res, err
}

func (c *client) createIngredient(name, unit string, carbonFootprint float64) (services.IngredientInfo, error) {
	var res services.IngredientInfo
	err := c.Post("/ingredients").Json(map[string]interface{}{
		"name":             name,
		"unit":             unit,
		"carbon_footprint": carbonFootprint,
	}).Do(&res)
	return res, err
}

type component struct {
	IngredientId  *uuid.UUID `json:"ingredient_id,omitempty"`
	ChildRecipeId *uuid.UUID `json:"child_recipe_id,omitempty"`
	Quantity      float64    `json:"quantity"`
}

func ingredientLine(id uuid.UUID, quantity float64) component {
	return component{IngredientId: &id, Quantity: quantity}
}

func subRecipeLine(id uuid.UUID, quantity float64) component {
	return component{ChildRecipeId: &id, Quantity: quantity}
}

type recipeBody struct {
	Name        string      `json:"name"`
	IsSubRecipe bool        `json:"is_sub_recipe"`
	IsSellable  bool        `json:"is_sellable"`
	Ingredients []component `json:"ingredients"`
}

func (c *client) createRecipe(name string, sellable bool, components ...component) (services.RecipeInfo, error) {
	var res services.RecipeInfo
	err := c.Post("/recipes").Json(recipeBody{
		Name:        name,
		IsSubRecipe: !sellable,
		IsSellable:  sellable,
		Ingredients: components,
	}).Do(&res)
	return res, err
}

func (c *client) recordSales(day string, recipeId uuid.UUID, quantity int) (services.SalesInfo, error) {
	var res services.SalesInfo
	err := c.Post("/sales").Json(map[string]interface{}{
		"date":      day,
		"recipe_id": recipeId,
		"quantity":  quantity,
	}).Do(&res)
	return res, err
}

func (c *client) forecast(days int) ([]services.ForecastDay, error) {
	var res []services.ForecastDay
	err := c.Get(fmt.Sprintf("/forecast?days=%d", days)).Do(&res)
	return res, err
}
