package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"restaurant_platform/kitchen/schema"
	"restaurant_platform/utils/logging"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const passwordCost = 10

type BasicIdentityProvider struct {
	jwtManager   *JwtManager
	resetManager *ResetTokenManager
	notifier     Notifier
	db           *gorm.DB
	auditLog     AuditLogger

	// compared against when a login names an unknown user, so both paths pay for a bcrypt compare
	dummyHash []byte
}

type BasicProviderArgs struct {
	Secret      []byte
	TokenExpiry time.Duration
	ResetExpiry time.Duration
	Notifier    Notifier

	// Optional bootstrap manager, created with its own store on first start.
	AdminUsername string
	AdminEmail    string
	AdminPassword string
}

func NewBasicIdentityProvider(db *gorm.DB, auditLog AuditLogger, args BasicProviderArgs) (*BasicIdentityProvider, error) {
	if args.TokenExpiry == 0 {
		args.TokenExpiry = 24 * time.Hour
	}
	if args.ResetExpiry == 0 {
		args.ResetExpiry = 30 * time.Minute
	}
	if args.Notifier == nil {
		args.Notifier = NewLogNotifier(slog.Default())
	}

	if args.AdminUsername != "" {
		hashedPwd, err := hashPassword(args.AdminPassword)
		if err != nil {
			return nil, fmt.Errorf("error encrypting admin password: %w", err)
		}
		if err := addInitialManagerToDb(db, args.AdminUsername, args.AdminEmail, hashedPwd); err != nil {
			return nil, err
		}
	}

	dummyHash, err := hashPassword(uuid.NewString())
	if err != nil {
		return nil, err
	}

	return &BasicIdentityProvider{
		jwtManager:   NewJwtManager(args.Secret, args.TokenExpiry),
		resetManager: NewResetTokenManager(args.Secret, args.ResetExpiry),
		notifier:     args.Notifier,
		db:           db,
		auditLog:     auditLog,
		dummyHash:    dummyHash,
	}, nil
}

// WithDb returns a provider that runs its queries on db, typically an open
// transaction.
func (auth *BasicIdentityProvider) WithDb(db *gorm.DB) *BasicIdentityProvider {
	bound := *auth
	bound.db = db
	return &bound
}

func hashPassword(password string) ([]byte, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), passwordCost)
	if err != nil {
		return nil, fmt.Errorf("error encrypting password: %w", err)
	}
	return hashed, nil
}

func (auth *BasicIdentityProvider) addUserToContext() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		handler := func(w http.ResponseWriter, r *http.Request) {
			userId, err := UserIdFromContext(r)
			if err != nil {
				writeAuthError(w, err.Error(), http.StatusUnauthorized)
				return
			}

			storeId, err := StoreIdFromContext(r)
			if err != nil {
				writeAuthError(w, err.Error(), http.StatusUnauthorized)
				return
			}

			user, err := schema.GetUser(userId, auth.db.WithContext(r.Context()))
			if err != nil {
				if errors.Is(err, schema.ErrUserNotFound) {
					writeAuthError(w, "user for access token no longer exists", http.StatusUnauthorized)
					return
				}
				writeAuthError(w, "unable to load user for access token", http.StatusInternalServerError)
				return
			}

			if !user.IsActive() {
				writeAuthError(w, "user account is inactive", http.StatusUnauthorized)
				return
			}

			if user.StoreId != storeId {
				writeAuthError(w, "access token does not match user's store", http.StatusUnauthorized)
				return
			}

			reqCtx := context.WithValue(r.Context(), userRequestContextKey, user)
			next.ServeHTTP(w, r.WithContext(reqCtx))
		}

		return http.HandlerFunc(handler)
	}
}

func (auth *BasicIdentityProvider) AuthMiddleware() chi.Middlewares {
	return chi.Middlewares{auth.jwtManager.Verifier(), auth.jwtManager.Authenticator(), auth.addUserToContext(), auth.auditLog.Middleware}
}

func (auth *BasicIdentityProvider) issue(user schema.User) (LoginResult, error) {
	store, err := schema.GetStore(schema.ForStore(auth.db, user.StoreId))
	if err != nil {
		return LoginResult{}, err
	}

	token, err := auth.jwtManager.CreateUserJwt(user)
	if err != nil {
		return LoginResult{}, ErrGeneratingJwt
	}

	return LoginResult{User: user, Store: store, AccessToken: token}, nil
}

func (auth *BasicIdentityProvider) Login(username, password string) (LoginResult, error) {
	user, err := schema.GetUserByUsername(username, auth.db)
	if err != nil {
		if errors.Is(err, schema.ErrUserNotFound) {
			_ = bcrypt.CompareHashAndPassword(auth.dummyHash, []byte(password))
			return LoginResult{}, ErrInvalidCredentials
		}
		return LoginResult{}, err
	}

	if err := bcrypt.CompareHashAndPassword(user.Password, []byte(password)); err != nil {
		return LoginResult{}, ErrInvalidCredentials
	}

	if !user.IsActive() {
		slog.Info("login rejected for inactive user", logging.Code(logging.AUTH), "user_id", user.Id)
		return LoginResult{}, ErrInvalidCredentials
	}

	return auth.issue(user)
}

func (auth *BasicIdentityProvider) RegisterManager(args Registration) (LoginResult, error) {
	hashedPwd, err := hashPassword(args.Password)
	if err != nil {
		return LoginResult{}, err
	}

	user := schema.User{
		Username: args.Username,
		Name:     args.Name,
		Email:    args.Email,
		Password: hashedPwd,
		Role:     schema.ManagerRole,
		Status:   schema.ActiveStatus,
	}

	err = auth.db.Transaction(func(txn *gorm.DB) error {
		taken, err := schema.UsernameExists(args.Username, txn)
		if err != nil {
			return err
		}
		if taken {
			return ErrUsernameTaken
		}

		managerExists, err := schema.ManagerEmailExists(args.Email, txn)
		if err != nil {
			return err
		}
		if managerExists {
			return ErrManagerAlreadyExists
		}

		store := schema.Store{}
		if err := schema.CreateStore(txn, &store); err != nil {
			return err
		}

		user.StoreId = store.Id
		if err := schema.CreateUser(txn, &user); err != nil {
			if errors.Is(err, schema.ErrDuplicateKey) {
				return ErrUsernameTaken
			}
			return err
		}
		return nil
	})
	if err != nil {
		return LoginResult{}, fmt.Errorf("error registering manager: %w", err)
	}

	slog.Info("registered new manager", logging.Code(logging.AUTH), "user_id", user.Id, "store_id", user.StoreId)

	return auth.issue(user)
}

func (auth *BasicIdentityProvider) CreateUser(t schema.Tenant, args NewUser) (schema.User, error) {
	if !schema.IsValidRole(args.Role) {
		return schema.User{}, ErrInvalidRole
	}

	hashedPwd, err := hashPassword(args.Password)
	if err != nil {
		return schema.User{}, err
	}

	user := schema.User{
		Username: args.Username,
		Name:     args.Name,
		Email:    args.Email,
		Password: hashedPwd,
		Role:     args.Role,
		Status:   schema.ActiveStatus,
	}

	err = t.Transaction(func(txn schema.Tenant) error {
		if err := schema.CreateStoreUser(txn, &user); err != nil {
			if errors.Is(err, schema.ErrDuplicateKey) {
				return ErrUsernameTaken
			}
			return err
		}
		return nil
	})
	if err != nil {
		return schema.User{}, fmt.Errorf("error creating user: %w", err)
	}

	return user, nil
}

func (auth *BasicIdentityProvider) ChangePassword(userId uuid.UUID, currentPassword, newPassword string) error {
	user, err := schema.GetUser(userId, auth.db)
	if err != nil {
		return err
	}

	if err := bcrypt.CompareHashAndPassword(user.Password, []byte(currentPassword)); err != nil {
		return ErrWrongCurrentPassword
	}

	hashedPwd, err := hashPassword(newPassword)
	if err != nil {
		return err
	}

	if err := schema.UpdateUserFields(auth.db, user.Id, map[string]interface{}{"password": hashedPwd}); err != nil {
		return fmt.Errorf("error updating password: %w", err)
	}

	slog.Info("password changed", logging.Code(logging.PASSWORD), "user_id", user.Id)
	return nil
}

// RequestPasswordReset sends reset instructions if the identifier names an
// active account. Unknown accounts are not reported to the caller.
func (auth *BasicIdentityProvider) RequestPasswordReset(ctx context.Context, identifier string) error {
	user, err := schema.FindUserByIdentifier(identifier, auth.db.WithContext(ctx))
	if err != nil {
		if errors.Is(err, schema.ErrUserNotFound) {
			slog.Debug("password reset requested for unknown account", logging.Code(logging.PASSWORD))
			return nil
		}
		return err
	}

	if !user.IsActive() {
		return nil
	}

	token, err := auth.resetManager.Issue(user.Id, user.Password)
	if err != nil {
		return err
	}

	if err := auth.notifier.SendPasswordReset(ctx, user, token); err != nil {
		return fmt.Errorf("error sending password reset: %w", err)
	}
	return nil
}

func (auth *BasicIdentityProvider) ResetPassword(token, newPassword string) error {
	userId, fingerprint, err := auth.resetManager.Parse(token)
	if err != nil {
		return err
	}

	user, err := schema.GetUser(userId, auth.db)
	if err != nil {
		if errors.Is(err, schema.ErrUserNotFound) {
			return ErrInvalidResetToken
		}
		return err
	}

	if !user.IsActive() || passwordFingerprint(user.Password) != fingerprint {
		return ErrInvalidResetToken
	}

	hashedPwd, err := hashPassword(newPassword)
	if err != nil {
		return err
	}

	if err := schema.UpdateUserFields(auth.db, user.Id, map[string]interface{}{"password": hashedPwd}); err != nil {
		return fmt.Errorf("error resetting password: %w", err)
	}

	slog.Info("password reset", logging.Code(logging.PASSWORD), "user_id", user.Id)
	return nil
}
