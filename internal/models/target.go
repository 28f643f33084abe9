package models

import (
	"fmt"

	"github.com/dmitrijs2005/vaultsync/internal/common"
)

// DatabaseType enumerates the supported external backend families.
type DatabaseType string

const (
	DatabaseTypeMySQL      DatabaseType = "mysql"
	DatabaseTypePostgreSQL DatabaseType = "postgresql"
	DatabaseTypeMongoDB    DatabaseType = "mongodb"
)

// ParseDatabaseType validates a stored type string.
func ParseDatabaseType(s string) (DatabaseType, error) {
	switch DatabaseType(s) {
	case DatabaseTypeMySQL, DatabaseTypePostgreSQL, DatabaseTypeMongoDB:
		return DatabaseType(s), nil
	default:
		return "", fmt.Errorf("%w: %q", common.ErrUnsupportedProvider, s)
	}
}

// ExternalDatabaseConfig is one configured sync target. Connection details
// are held only as an opaque ciphertext blob; they are never stored or
// logged in plaintext.
type ExternalDatabaseConfig struct {
	BaseModel
	Name                       string       `json:"name"`
	DBType                     DatabaseType `json:"db_type"`
	ConnectionDetailsEncrypted string       `json:"connection_details_encrypted"`
	IsActive                   bool         `json:"is_active"`
}

// ConnectionDetails is the decrypted connection profile of an external
// database. It lives only in memory for the duration of one sync pass.
type ConnectionDetails struct {
	Host         string `json:"host"`
	Port         int    `json:"port"`
	Username     string `json:"username"`
	Password     string `json:"password"`
	DatabaseName string `json:"database_name"`
	SSLEnabled   bool   `json:"ssl_enabled"`
	SSLCert      string `json:"ssl_cert,omitempty"`
}
