package schema

import (
	"gorm.io/gorm"
)

// CreateStore registers a new tenant. The id is assigned by the database and
// never changes afterwards.
func CreateStore(txn *gorm.DB, store *Store) error {
	store.Id = 0
	store.IsActive = true
	if result := txn.Create(store); result.Error != nil {
		return translateError("create store", result.Error, nil)
	}
	return nil
}

func GetStore(t Tenant) (Store, error) {
	var store Store
	result := t.db.First(&store, "id = ?", t.storeId)
	if result.Error != nil {
		return store, translateError("get store", result.Error, ErrStoreNotFound)
	}
	return store, nil
}

type StoreProfile struct {
	CompanyName   string
	Uen           string
	StoreName     string
	Location      string
	Latitude      *float64
	Longitude     *float64
	ContactNumber string
	CountryCode   string
	IsActive      *bool
}

func UpdateStore(t Tenant, profile StoreProfile) (Store, error) {
	updates := map[string]interface{}{
		"company_name":   profile.CompanyName,
		"uen":            profile.Uen,
		"store_name":     profile.StoreName,
		"location":       profile.Location,
		"latitude":       profile.Latitude,
		"longitude":      profile.Longitude,
		"contact_number": profile.ContactNumber,
		"country_code":   profile.CountryCode,
	}
	if profile.IsActive != nil {
		updates["is_active"] = *profile.IsActive
	}

	var store Store
	err := t.Transaction(func(txn Tenant) error {
		result := txn.db.Model(&Store{}).Where("id = ?", txn.storeId).Updates(updates)
		if result.Error != nil {
			return translateError("update store", result.Error, nil)
		}
		if result.RowsAffected == 0 {
			return ErrStoreNotFound
		}
		var err error
		store, err = GetStore(txn)
		return err
	})
	return store, err
}
