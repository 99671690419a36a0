// Package models contains the gorm models persisted by the sync engine.
package models
