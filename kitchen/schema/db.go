package schema

import (
	"fmt"
	"net/url"
	"strings"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// OpenDb picks the dialect from the uri scheme: postgres:// or postgresql:// for
// postgres, sqlite:// followed by a file path for sqlite.
func OpenDb(uri string) (*gorm.DB, error) {
	parts, err := url.Parse(uri)
	if err != nil {
		return nil, fmt.Errorf("error parsing db uri: %w", err)
	}

	var dialector gorm.Dialector
	switch parts.Scheme {
	case "postgres", "postgresql":
		dialector = postgres.Open(uri)
	case "sqlite":
		path := strings.TrimPrefix(uri, "sqlite://")
		if !strings.Contains(path, "_foreign_keys") {
			if strings.Contains(path, "?") {
				path += "&_foreign_keys=on"
			} else {
				path += "?_foreign_keys=on"
			}
		}
		dialector = sqlite.Open(path)
	default:
		return nil, fmt.Errorf("unsupported db uri scheme '%v'", parts.Scheme)
	}

	db, err := gorm.Open(dialector, Config())
	if err != nil {
		return nil, fmt.Errorf("error opening database connection: %w", err)
	}
	return db, nil
}
