package models

import "time"

// SyncState is a named value describing the last runs of the sync engine.
// The cursor itself lives on disk, these rows are informational.
type SyncState struct {
	ID        uint64 `gorm:"primaryKey"`
	Name      string `gorm:"uniqueIndex;size:64;not null"`
	Value     string `gorm:"type:text"`
	UpdatedAt time.Time
}

// TableName implements gorm's tabler.
func (SyncState) TableName() string {
	return "ldap_sync_state"
}
