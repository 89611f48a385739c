package schema

import (
	"context"
	"errors"
	"log/slog"

	"gorm.io/gorm"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrStoreNotFound      = wrapNotFound("store not found")
	ErrUserNotFound       = wrapNotFound("user not found")
	ErrIngredientNotFound = wrapNotFound("ingredient not found")
	ErrRecipeNotFound     = wrapNotFound("recipe not found")
	ErrSalesNotFound      = wrapNotFound("sales record not found")
	ErrWastageNotFound    = wrapNotFound("wastage record not found")

	ErrDuplicateKey   = errors.New("record already exists")
	ErrReferenced     = errors.New("record is referenced by other records")
	ErrDbAccessFailed = errors.New("db access failed")
)

type notFoundError struct {
	msg string
}

func wrapNotFound(msg string) error {
	return &notFoundError{msg: msg}
}

func (e *notFoundError) Error() string {
	return e.msg
}

func (e *notFoundError) Unwrap() error {
	return ErrNotFound
}

// Config returns the gorm config every connection must use so that driver
// constraint errors surface as gorm.ErrDuplicatedKey / gorm.ErrForeignKeyViolated.
func Config() *gorm.Config {
	return &gorm.Config{TranslateError: true}
}

// translateError converts a gorm error into one of the schema sentinel errors.
func translateError(action string, err error, notFound error) error {
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound) && notFound != nil:
		return notFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return ErrDuplicateKey
	case errors.Is(err, gorm.ErrForeignKeyViolated):
		return ErrReferenced
	default:
		slog.Error("sql error", "action", action, "error", err)
		return ErrDbAccessFailed
	}
}

// Tenant is the only way to reach tenant scoped tables. It can only be built
// with ForStore, and every query derived from it filters by the store id.
type Tenant struct {
	storeId int64
	db      *gorm.DB
}

func ForStore(db *gorm.DB, storeId int64) Tenant {
	return Tenant{storeId: storeId, db: db}
}

func (t Tenant) StoreId() int64 {
	return t.storeId
}

func (t Tenant) WithContext(ctx context.Context) Tenant {
	return Tenant{storeId: t.storeId, db: t.db.WithContext(ctx)}
}

// scoped returns a fresh query restricted to the tenant's rows of the given table.
func (t Tenant) scoped(table string) *gorm.DB {
	return t.db.Where(table+".store_id = ?", t.storeId)
}

// Transaction runs fn with a tenant bound to a single database transaction.
func (t Tenant) Transaction(fn func(txn Tenant) error) error {
	return t.db.Transaction(func(txn *gorm.DB) error {
		return fn(Tenant{storeId: t.storeId, db: txn})
	})
}
