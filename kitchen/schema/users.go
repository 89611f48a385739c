package schema

import (
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

func GetUser(userId uuid.UUID, db *gorm.DB) (User, error) {
	var user User

	result := db.First(&user, "id = ?", userId)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return user, ErrUserNotFound
		}
		slog.Error("sql error in get user", "user_id", userId, "error", result.Error)
		return user, ErrDbAccessFailed
	}

	return user, nil
}

func GetUserByUsername(username string, db *gorm.DB) (User, error) {
	var user User

	result := db.First(&user, "username = ?", username)
	if result.Error != nil {
		return user, translateError("get user by username", result.Error, ErrUserNotFound)
	}

	return user, nil
}

// FindUserByIdentifier looks a user up by username first, then by email.
func FindUserByIdentifier(identifier string, db *gorm.DB) (User, error) {
	user, err := GetUserByUsername(identifier, db)
	if err == nil || !errors.Is(err, ErrUserNotFound) {
		return user, err
	}

	result := db.Limit(1).Find(&user, "email = ?", identifier)
	if result.Error != nil {
		return user, translateError("get user by email", result.Error, nil)
	}
	if result.RowsAffected == 0 {
		return user, ErrUserNotFound
	}
	return user, nil
}

func UsernameExists(username string, db *gorm.DB) (bool, error) {
	var count int64
	result := db.Model(&User{}).Where("username = ?", username).Count(&count)
	if result.Error != nil {
		return false, translateError("count usernames", result.Error, nil)
	}
	return count > 0, nil
}

func ManagerEmailExists(email string, db *gorm.DB) (bool, error) {
	var count int64
	result := db.Model(&User{}).Where("email = ? AND role = ?", email, ManagerRole).Count(&count)
	if result.Error != nil {
		return false, translateError("count manager emails", result.Error, nil)
	}
	return count > 0, nil
}

func CreateUser(db *gorm.DB, user *User) error {
	if user.Id == uuid.Nil {
		user.Id = uuid.New()
	}
	if result := db.Create(user); result.Error != nil {
		return translateError("create user", result.Error, nil)
	}
	return nil
}

func UpdateUserFields(db *gorm.DB, userId uuid.UUID, updates map[string]interface{}) error {
	result := db.Model(&User{}).Where("id = ?", userId).Updates(updates)
	if result.Error != nil {
		return translateError("update user", result.Error, nil)
	}
	if result.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}

func ListStoreUsers(t Tenant) ([]User, error) {
	var users []User
	result := t.scoped("users").Order("username").Find(&users)
	if result.Error != nil {
		return nil, translateError("list store users", result.Error, nil)
	}
	return users, nil
}

func GetStoreUser(t Tenant, userId uuid.UUID) (User, error) {
	var user User
	result := t.scoped("users").First(&user, "id = ?", userId)
	if result.Error != nil {
		return user, translateError("get store user", result.Error, ErrUserNotFound)
	}
	return user, nil
}

func CreateStoreUser(t Tenant, user *User) error {
	user.StoreId = t.storeId
	return CreateUser(t.db, user)
}

func UpdateStoreUser(t Tenant, userId uuid.UUID, updates map[string]interface{}) (User, error) {
	var user User
	err := t.Transaction(func(txn Tenant) error {
		result := txn.scoped("users").Model(&User{}).Where("id = ?", userId).Updates(updates)
		if result.Error != nil {
			return translateError("update store user", result.Error, nil)
		}
		if result.RowsAffected == 0 {
			return ErrUserNotFound
		}
		var err error
		user, err = GetStoreUser(txn, userId)
		return err
	})
	return user, err
}

func CountActiveManagers(t Tenant) (int64, error) {
	var count int64
	result := t.scoped("users").Model(&User{}).Where("role = ? AND status = ?", ManagerRole, ActiveStatus).Count(&count)
	if result.Error != nil {
		return 0, translateError("count managers", result.Error, nil)
	}
	return count, nil
}
