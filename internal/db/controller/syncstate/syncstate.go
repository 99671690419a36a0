// Package syncstate provides read and write operations for the informational sync state rows.
package syncstate

import (
	"errors"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/cybercore/ldap-sync/internal/db/models"
)

const (
	nameQueryPattern = "name = ?"
)

// Well known state names written by the orchestrator.
const (
	LastSuccess  = "last_success"
	LastFailure  = "last_failure"
	LastError    = "last_error"
	LastRunID    = "last_run_id"
	LastStrategy = "last_strategy"
	Vendor       = "vendor"
)

var (
	// ErrStateNotFound is returned when a state row does not exist.
	ErrStateNotFound = errors.New("sync state not found")
	// ErrStateNameEmpty is returned when a state name is empty.
	ErrStateNameEmpty = errors.New("sync state name cannot be empty")
	// ErrDBNil is returned when the database connection is nil.
	ErrDBNil = errors.New("database connection is nil")
)

// Get retrieves a state row by its name.
func Get(db *gorm.DB, name string) (*models.SyncState, error) {
	if db == nil {
		return nil, ErrDBNil
	}
	if name == "" {
		return nil, ErrStateNameEmpty
	}

	var state models.SyncState
	result := db.Where(nameQueryPattern, name).First(&state)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrStateNotFound
		}
		return nil, result.Error
	}

	return &state, nil
}

// GetAll retrieves all state rows ordered by name.
func GetAll(db *gorm.DB) ([]models.SyncState, error) {
	if db == nil {
		return nil, ErrDBNil
	}

	var states []models.SyncState
	result := db.Order("name").Find(&states)
	if result.Error != nil {
		return nil, result.Error
	}

	return states, nil
}

// Set creates or overwrites a state row in a single statement.
func Set(db *gorm.DB, name, value string) error {
	if db == nil {
		return ErrDBNil
	}
	if name == "" {
		return ErrStateNameEmpty
	}

	state := models.SyncState{Name: name, Value: value}

	return db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&state).Error
}

// SetMany writes several rows. Failures are logged and the first one is returned.
func SetMany(db *gorm.DB, values map[string]string) error {
	var first error

	for name, value := range values {
		if err := Set(db, name, value); err != nil {
			log.Warn().Err(err).Str("name", name).Msg("failed to record sync state")

			if first == nil {
				first = err
			}
		}
	}

	return first
}

// Delete deletes a state row by name.
func Delete(db *gorm.DB, name string) error {
	if db == nil {
		return ErrDBNil
	}
	if name == "" {
		return ErrStateNameEmpty
	}

	result := db.Where(nameQueryPattern, name).Delete(&models.SyncState{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrStateNotFound
	}

	return nil
}
