package auth

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"restaurant_platform/kitchen/schema"
	"time"

	"github.com/go-chi/jwtauth/v5"
	"github.com/google/uuid"
)

type JwtManager struct {
	auth   *jwtauth.JWTAuth
	expiry time.Duration
}

func NewJwtManager(secret []byte, expiry time.Duration) *JwtManager {
	return &JwtManager{auth: jwtauth.New("HS256", secret, nil), expiry: expiry}
}

func (m *JwtManager) Verifier() func(http.Handler) http.Handler {
	return jwtauth.Verifier(m.auth)
}

// Authenticator rejects requests whose token is missing, invalid or expired
// with a json 401 body.
func (m *JwtManager) Authenticator() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		hfn := func(w http.ResponseWriter, r *http.Request) {
			token, _, err := jwtauth.FromContext(r.Context())
			if err != nil || token == nil {
				writeAuthError(w, "missing, invalid or expired access token", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		}
		return http.HandlerFunc(hfn)
	}
}

const (
	userIdKey  = "user_id"
	storeIdKey = "store_id"
	roleKey    = "role"
)

func (m *JwtManager) CreateUserJwt(user schema.User) (string, error) {
	claims := map[string]interface{}{
		userIdKey:  user.Id.String(),
		storeIdKey: user.StoreId,
		roleKey:    user.Role,
		"exp":      time.Now().Add(m.expiry),
	}
	_, token, err := m.auth.Encode(claims)
	if err != nil {
		slog.Error("error generating jwt", "error", err)
		return "", fmt.Errorf("error generating access token: %w", err)
	}
	return token, nil
}

func claimsFromContext(r *http.Request) (map[string]interface{}, error) {
	_, claims, err := jwtauth.FromContext(r.Context())
	if err != nil {
		return nil, fmt.Errorf("error retrieving auth claims: %w", err)
	}
	return claims, nil
}

func ValueFromContext(r *http.Request, key string) (string, error) {
	claims, err := claimsFromContext(r)
	if err != nil {
		return "", err
	}

	valueUncasted, ok := claims[key]
	if !ok {
		return "", fmt.Errorf("invalid token: unable to locate key %v in claims", key)
	}

	value, ok := valueUncasted.(string)
	if !ok {
		return "", fmt.Errorf("invalid token: value for key %v has invalid type", key)
	}

	return value, nil
}

func UserIdFromContext(r *http.Request) (uuid.UUID, error) {
	value, err := ValueFromContext(r, userIdKey)
	if err != nil {
		return uuid.Nil, err
	}

	id, err := uuid.Parse(value)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid uuid '%v' provided: %w", value, err)
	}
	return id, nil
}

func StoreIdFromContext(r *http.Request) (int64, error) {
	claims, err := claimsFromContext(r)
	if err != nil {
		return 0, err
	}

	switch v := claims[storeIdKey].(type) {
	case float64:
		return int64(v), nil
	case int64:
		return v, nil
	case json.Number:
		return v.Int64()
	default:
		return 0, fmt.Errorf("invalid token: value for key %v has invalid type", storeIdKey)
	}
}
