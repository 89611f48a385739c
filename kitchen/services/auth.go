package services

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"restaurant_platform/kitchen/auth"
	"restaurant_platform/kitchen/schema"
	"restaurant_platform/utils"
	"restaurant_platform/utils/logging"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const forgotPasswordMessage = "If an account exists, password reset instructions have been sent."

type AuthService struct {
	db        *gorm.DB
	userAuth  auth.IdentityProvider
	rateLimit int
}

func (s *AuthService) Routes() chi.Router {
	r := chi.NewRouter()

	limiter := httprate.LimitByIP(s.rateLimit, time.Minute)

	r.Group(func(r chi.Router) {
		r.With(limiter).Post("/login", s.Login)
		r.Post("/register", s.Register)
		r.With(limiter).Post("/forgot-password", s.ForgotPassword)
		r.Post("/reset-password", s.ResetPassword)
	})

	r.Group(func(r chi.Router) {
		r.Use(s.userAuth.AuthMiddleware()...)

		r.Get("/me", s.Me)
		r.Post("/change-password", s.ChangePassword)
		r.Patch("/profile", s.UpdateProfile)
	})

	return r
}

type UserInfo struct {
	Id       uuid.UUID `json:"id"`
	Username string    `json:"username"`
	Name     string    `json:"name"`
	Email    string    `json:"email"`
	Role     string    `json:"role"`
	Status   string    `json:"status"`
	StoreId  int64     `json:"store_id"`
}

func convertToUserInfo(user schema.User) UserInfo {
	return UserInfo{
		Id:       user.Id,
		Username: user.Username,
		Name:     user.Name,
		Email:    user.Email,
		Role:     user.Role,
		Status:   user.Status,
		StoreId:  user.StoreId,
	}
}

type loginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type loginResponse struct {
	AccessToken        string   `json:"access_token"`
	TokenType          string   `json:"token_type"`
	User               UserInfo `json:"user"`
	StoreSetupRequired bool     `json:"store_setup_required"`
}

func newLoginResponse(login auth.LoginResult) loginResponse {
	return loginResponse{
		AccessToken:        login.AccessToken,
		TokenType:          "bearer",
		User:               convertToUserInfo(login.User),
		StoreSetupRequired: login.Store.SetupRequired(),
	}
}

func (s *AuthService) Login(w http.ResponseWriter, r *http.Request) {
	var params loginRequest
	if !parseValidBody(w, r, &params) {
		return
	}

	login, err := s.userAuth.Login(params.Username, params.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			writeError(w, CodedError(err, http.StatusUnauthorized))
			return
		}
		slog.Error("login failed", logging.Code(logging.AUTH), "error", err)
		writeError(w, CodedError(err, http.StatusInternalServerError))
		return
	}

	utils.WriteJsonResponse(w, newLoginResponse(login))
}

type registerRequest struct {
	Username string `json:"username" validate:"required,min=3,max=50"`
	Password string `json:"password" validate:"required,min=8,max=72"`
	Name     string `json:"name" validate:"required,max=100"`
	Email    string `json:"email" validate:"required,email"`
}

func (s *AuthService) Register(w http.ResponseWriter, r *http.Request) {
	var params registerRequest
	if !parseValidBody(w, r, &params) {
		return
	}

	login, err := s.userAuth.RegisterManager(auth.Registration{
		Username: params.Username,
		Password: params.Password,
		Name:     params.Name,
		Email:    params.Email,
	})
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrUsernameTaken), errors.Is(err, auth.ErrManagerAlreadyExists):
			writeError(w, CodedError(err, http.StatusConflict))
		default:
			slog.Error("manager registration failed", logging.Code(logging.AUTH), "error", err)
			writeError(w, CodedError(err, http.StatusInternalServerError))
		}
		return
	}

	utils.WriteCreated(w, newLoginResponse(login))
}

type forgotPasswordRequest struct {
	Identifier string `json:"identifier" validate:"required"`
}

type messageResponse struct {
	Message string `json:"message"`
}

func (s *AuthService) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var params forgotPasswordRequest
	if !parseValidBody(w, r, &params) {
		return
	}

	if err := s.userAuth.RequestPasswordReset(r.Context(), params.Identifier); err != nil {
		slog.Error("password reset request failed", logging.Code(logging.PASSWORD), "error", err)
	}

	utils.WriteJsonResponse(w, messageResponse{Message: forgotPasswordMessage})
}

type resetPasswordRequest struct {
	Token       string `json:"token" validate:"required"`
	NewPassword string `json:"new_password" validate:"required,min=8,max=72"`
}

func (s *AuthService) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var params resetPasswordRequest
	if !parseValidBody(w, r, &params) {
		return
	}

	if err := s.userAuth.ResetPassword(params.Token, params.NewPassword); err != nil {
		if errors.Is(err, auth.ErrInvalidResetToken) {
			writeError(w, CodedError(err, http.StatusBadRequest))
			return
		}
		slog.Error("password reset failed", logging.Code(logging.PASSWORD), "error", err)
		writeError(w, CodedError(err, http.StatusInternalServerError))
		return
	}

	utils.WriteJsonResponse(w, messageResponse{Message: "Password has been reset."})
}

type meResponse struct {
	User               UserInfo `json:"user"`
	StoreSetupRequired bool     `json:"store_setup_required"`
}

func (s *AuthService) Me(w http.ResponseWriter, r *http.Request) {
	user, ok := requestUser(w, r)
	if !ok {
		return
	}

	store, err := schema.GetStore(schema.ForStore(s.db, user.StoreId).WithContext(r.Context()))
	if err != nil {
		writeError(w, schemaError(err))
		return
	}

	utils.WriteJsonResponse(w, meResponse{User: convertToUserInfo(user), StoreSetupRequired: store.SetupRequired()})
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required,min=8,max=72"`
}

func (s *AuthService) ChangePassword(w http.ResponseWriter, r *http.Request) {
	user, ok := requestUser(w, r)
	if !ok {
		return
	}

	var params changePasswordRequest
	if !parseValidBody(w, r, &params) {
		return
	}

	if err := s.userAuth.ChangePassword(user.Id, params.CurrentPassword, params.NewPassword); err != nil {
		if errors.Is(err, auth.ErrWrongCurrentPassword) {
			writeError(w, CodedError(err, http.StatusBadRequest))
			return
		}
		writeError(w, schemaError(err))
		return
	}

	utils.WriteJsonResponse(w, messageResponse{Message: "Password updated."})
}

type updateProfileRequest struct {
	Name  *string `json:"name" validate:"omitempty,min=1,max=100"`
	Email *string `json:"email" validate:"omitempty,email"`
}

func (s *AuthService) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	user, ok := requestUser(w, r)
	if !ok {
		return
	}

	var params updateProfileRequest
	if !parseValidBody(w, r, &params) {
		return
	}

	updates := map[string]interface{}{}
	if params.Name != nil {
		updates["name"] = *params.Name
	}
	if params.Email != nil && *params.Email != user.Email {
		updates["email"] = *params.Email
	}

	err := s.db.WithContext(r.Context()).Transaction(func(txn *gorm.DB) error {
		if email, ok := updates["email"]; ok && user.IsManager() {
			taken, err := schema.ManagerEmailExists(email.(string), txn)
			if err != nil {
				return schemaError(err)
			}
			if taken {
				return CodedError(auth.ErrManagerAlreadyExists, http.StatusConflict)
			}
		}

		if len(updates) == 0 {
			return nil
		}
		if err := schema.UpdateUserFields(txn, user.Id, updates); err != nil {
			return schemaError(err)
		}
		return nil
	})
	if err != nil {
		writeError(w, err)
		return
	}

	updated, err := schema.GetUser(user.Id, s.db.WithContext(r.Context()))
	if err != nil {
		writeError(w, schemaError(err))
		return
	}

	utils.WriteJsonResponse(w, convertToUserInfo(updated))
}

// UserService lets managers administer the accounts of their own store.
type UserService struct {
	db       *gorm.DB
	userAuth auth.IdentityProvider
}

func (s *UserService) Routes() chi.Router {
	r := chi.NewRouter()

	r.Use(s.userAuth.AuthMiddleware()...)
	r.Use(auth.ManagerOnly)

	r.Get("/", s.List)
	r.Post("/", s.Create)
	r.Patch("/{user_id}", s.Update)

	return r
}

func (s *UserService) List(w http.ResponseWriter, r *http.Request) {
	tenant, ok := requestTenant(s.db, w, r)
	if !ok {
		return
	}

	users, err := schema.ListStoreUsers(tenant)
	if err != nil {
		writeError(w, schemaError(err))
		return
	}

	infos := make([]UserInfo, 0, len(users))
	for _, user := range users {
		infos = append(infos, convertToUserInfo(user))
	}

	utils.WriteJsonResponse(w, infos)
}

type createUserRequest struct {
	Username string `json:"username" validate:"required,min=3,max=50"`
	Password string `json:"password" validate:"required,min=8,max=72"`
	Name     string `json:"name" validate:"required,max=100"`
	Email    string `json:"email" validate:"required,email"`
	Role     string `json:"role" validate:"required,oneof=Employee Manager"`
}

func (s *UserService) Create(w http.ResponseWriter, r *http.Request) {
	tenant, ok := requestTenant(s.db, w, r)
	if !ok {
		return
	}

	var params createUserRequest
	if !parseValidBody(w, r, &params) {
		return
	}

	user, err := s.userAuth.CreateUser(tenant, auth.NewUser{
		Registration: auth.Registration{
			Username: params.Username,
			Password: params.Password,
			Name:     params.Name,
			Email:    params.Email,
		},
		Role: params.Role,
	})
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrUsernameTaken):
			writeError(w, CodedError(err, http.StatusConflict))
		case errors.Is(err, auth.ErrInvalidRole):
			writeError(w, CodedError(err, http.StatusBadRequest))
		default:
			writeError(w, schemaError(err))
		}
		return
	}

	slog.Info("created store user", logging.Code(logging.AUTH), "store_id", tenant.StoreId(), "user_id", user.Id, "role", user.Role)

	utils.WriteCreated(w, convertToUserInfo(user))
}

type updateUserRequest struct {
	Role   *string `json:"role" validate:"omitempty,oneof=Employee Manager"`
	Status *string `json:"status" validate:"omitempty,oneof=Active Inactive"`
}

func (s *UserService) Update(w http.ResponseWriter, r *http.Request) {
	tenant, ok := requestTenant(s.db, w, r)
	if !ok {
		return
	}

	userId, err := utils.URLParamUUID(r, "user_id")
	if err != nil {
		badRequest(w, err)
		return
	}

	var params updateUserRequest
	if !parseValidBody(w, r, &params) {
		return
	}

	updates := map[string]interface{}{}
	if params.Role != nil {
		updates["role"] = *params.Role
	}
	if params.Status != nil {
		updates["status"] = *params.Status
	}

	var updated schema.User
	err = tenant.Transaction(func(txn schema.Tenant) error {
		target, err := schema.GetStoreUser(txn, userId)
		if err != nil {
			return schemaError(err)
		}

		losesManager := (params.Role != nil && *params.Role != schema.ManagerRole) ||
			(params.Status != nil && *params.Status != schema.ActiveStatus)
		if target.IsManager() && target.IsActive() && losesManager {
			managers, err := schema.CountActiveManagers(txn)
			if err != nil {
				return schemaError(err)
			}
			if managers <= 1 {
				return CodedError(fmt.Errorf("store must keep at least one active manager"), http.StatusConflict)
			}
		}

		if len(updates) == 0 {
			updated = target
			return nil
		}

		updated, err = schema.UpdateStoreUser(txn, userId, updates)
		if err != nil {
			return schemaError(err)
		}
		return nil
	})
	if err != nil {
		writeError(w, err)
		return
	}

	utils.WriteJsonResponse(w, convertToUserInfo(updated))
}
