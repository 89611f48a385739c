package versions

import (
	"log"

	"gorm.io/gorm"
)

// Accounts created before display names existed get their username as name.
func Migration_3_user_display_name(txn *gorm.DB) error {
	type User struct {
		Name string `gorm:"size:100"`
	}

	if !txn.Migrator().HasColumn(&User{}, "Name") {
		if err := txn.Migrator().AddColumn(&User{}, "Name"); err != nil {
			return err
		}
	}

	result := txn.Exec("UPDATE users SET name = username WHERE name IS NULL OR name = ''")
	if result.Error != nil {
		return result.Error
	}

	log.Printf("backfilled display name for %d users", result.RowsAffected)

	return nil
}
