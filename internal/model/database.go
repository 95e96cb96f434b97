package model

// DatabaseType represents the backend for the database.
type DatabaseType string

// The supported database backends.
const (
	DatabaseTypeBadger   DatabaseType = "badger"
	DatabaseTypePostgres DatabaseType = "postgres"
)

// IsValid returns whether the backend is supported.
func (typ DatabaseType) IsValid() bool {
	switch typ {
	case DatabaseTypeBadger, DatabaseTypePostgres:
		return true
	}
	return false
}
