package models

import "time"

// KVEntry is one durable key-value pair; cart snapshots are stored as JSON values.
type KVEntry struct {
	Key       string    `gorm:"column:entry_key;primaryKey"`
	Value     string    `gorm:"column:entry_value;not null"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName pins the table created by the kv_entries migration.
func (KVEntry) TableName() string {
	return "kv_entries"
}
