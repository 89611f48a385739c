package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

var ErrUnexpectedStatus = errors.New("unexpected response status")

type httpRequest struct {
	client      *http.Client
	method      string
	baseUrl     string
	endpoint    string
	headers     map[string]string
	queryParams url.Values
	json        interface{}
	body        io.Reader
}

func newHttpRequest(client *http.Client, method, baseUrl, endpoint string) *httpRequest {
	return &httpRequest{
		client:   client,
		method:   method,
		baseUrl:  baseUrl,
		endpoint: endpoint,
	}
}

func (r *httpRequest) Header(key, value string) *httpRequest {
	if r.headers == nil {
		r.headers = make(map[string]string)
	}
	r.headers[key] = value
	return r
}

func (r *httpRequest) Auth(token string) *httpRequest {
	return r.Header("Authorization", fmt.Sprintf("Bearer %v", token))
}

func (r *httpRequest) Json(data interface{}) *httpRequest {
	r.json = data
	return r
}

func (r *httpRequest) Body(body io.Reader) *httpRequest {
	r.body = body
	return r
}

func (r *httpRequest) Param(key, value string) *httpRequest {
	if r.queryParams == nil {
		r.queryParams = url.Values{}
	}
	r.queryParams.Add(key, value)
	return r
}

func (r *httpRequest) Process(ctx context.Context, resultHandler func(io.Reader) error) error {
	fullEndpoint, err := url.JoinPath(r.baseUrl, r.endpoint)
	if err != nil {
		return fmt.Errorf("error formatting url for endpoint %v: %w", r.endpoint, err)
	}

	if r.json != nil {
		body := new(bytes.Buffer)
		err := json.NewEncoder(body).Encode(r.json)
		if err != nil {
			return fmt.Errorf("error encoding json body for endpoint %v: %w", r.endpoint, err)
		}
		r.body = body
	}

	req, err := http.NewRequestWithContext(ctx, r.method, fullEndpoint, r.body)
	if err != nil {
		return fmt.Errorf("error creating %v request for endpoint %v: %w", r.method, r.endpoint, err)
	}

	if r.json != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range r.headers {
		req.Header.Add(k, v)
	}

	if r.queryParams != nil {
		req.URL.RawQuery = r.queryParams.Encode()
	}

	start := time.Now()

	res, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("error sending %v request to endpoint %v: %w", r.method, r.endpoint, err)
	}
	defer res.Body.Close()

	slog.Debug("upstream client", "method", r.method, "endpoint", r.endpoint, "status", res.StatusCode, "duration", time.Since(start).String())

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		content, err := io.ReadAll(io.LimitReader(res.Body, 4096))
		if err != nil {
			return fmt.Errorf("%v request to endpoint %v returned status %d: %w", r.method, r.endpoint, res.StatusCode, ErrUnexpectedStatus)
		}
		return fmt.Errorf("%v request to endpoint %v returned status %d, content '%v': %w", r.method, r.endpoint, res.StatusCode, string(content), ErrUnexpectedStatus)
	}

	if resultHandler != nil {
		err := resultHandler(res.Body)
		if err != nil {
			return fmt.Errorf("error processing %v response from endpoint %v: %w", r.method, r.endpoint, err)
		}
	}

	return nil
}

func (r *httpRequest) Do(ctx context.Context, result interface{}) error {
	return r.Process(ctx, func(body io.Reader) error {
		if result != nil {
			err := json.NewDecoder(body).Decode(result)
			if err != nil {
				return fmt.Errorf("error parsing %v response from endpoint %v: %w", r.method, r.endpoint, err)
			}
		}
		return nil
	})
}

// BaseClient issues requests against a single base url with a bounded timeout.
type BaseClient struct {
	baseUrl   string
	authToken string
	http      *http.Client
}

func NewBaseClient(baseUrl string, authToken string, timeout time.Duration) BaseClient {
	return BaseClient{baseUrl: baseUrl, authToken: authToken, http: &http.Client{Timeout: timeout}}
}

func (c *BaseClient) BaseUrl() string {
	return c.baseUrl
}

func (c *BaseClient) addAuthHeaders(r *httpRequest) *httpRequest {
	if c.authToken != "" {
		return r.Auth(c.authToken)
	}
	return r
}

func (c *BaseClient) Get(endpoint string) *httpRequest {
	r := newHttpRequest(c.http, "GET", c.baseUrl, endpoint)
	return c.addAuthHeaders(r)
}

func (c *BaseClient) Post(endpoint string) *httpRequest {
	r := newHttpRequest(c.http, "POST", c.baseUrl, endpoint)
	return c.addAuthHeaders(r)
}
