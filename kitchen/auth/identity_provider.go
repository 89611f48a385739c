package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"restaurant_platform/kitchen/schema"
	"restaurant_platform/utils"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	ErrInvalidCredentials   = errors.New("invalid username or password")
	ErrGeneratingJwt        = errors.New("error generating jwt")
	ErrUsernameTaken        = errors.New("username is already taken")
	ErrManagerAlreadyExists = errors.New("a manager with this email already exists")
	ErrWrongCurrentPassword = errors.New("current password is incorrect")
	ErrInvalidRole          = errors.New("invalid role")
)

type LoginResult struct {
	User        schema.User
	Store       schema.Store
	AccessToken string
}

type Registration struct {
	Username string
	Password string
	Name     string
	Email    string
}

type NewUser struct {
	Registration
	Role string
}

type IdentityProvider interface {
	AuthMiddleware() chi.Middlewares

	Login(username, password string) (LoginResult, error)

	RegisterManager(args Registration) (LoginResult, error)

	CreateUser(t schema.Tenant, args NewUser) (schema.User, error)

	ChangePassword(userId uuid.UUID, currentPassword, newPassword string) error

	RequestPasswordReset(ctx context.Context, identifier string) error

	ResetPassword(token, newPassword string) error
}

// addInitialManagerToDb creates a store and its first manager if the username
// is not registered yet.
func addInitialManagerToDb(db *gorm.DB, username, email string, password []byte) error {
	err := db.Transaction(func(txn *gorm.DB) error {
		exists, err := schema.UsernameExists(username, txn)
		if err != nil {
			return err
		}
		if exists {
			return nil
		}

		store := schema.Store{}
		if err := schema.CreateStore(txn, &store); err != nil {
			return err
		}

		user := schema.User{
			StoreId:  store.Id,
			Username: username,
			Name:     username,
			Email:    email,
			Password: password,
			Role:     schema.ManagerRole,
			Status:   schema.ActiveStatus,
		}
		return schema.CreateUser(txn, &user)
	})
	if err != nil {
		slog.Error("error adding initial manager", "username", username, "error", err)
		return fmt.Errorf("error adding initial manager to db: %w", err)
	}

	return nil
}

type requestContextKey string

const userRequestContextKey requestContextKey = "user"

func UserFromContext(r *http.Request) (schema.User, error) {
	user, ok := r.Context().Value(userRequestContextKey).(schema.User)
	if !ok {
		return schema.User{}, fmt.Errorf("unable to retrieve user from request context")
	}
	return user, nil
}

func writeAuthError(w http.ResponseWriter, msg string, code int) {
	utils.WriteError(w, msg, code)
}
