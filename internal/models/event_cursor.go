package models

import (
	"time"
)

// EventCursor is the durable per-master position in the trade event
// stream. A restarted worker resumes from here; delivery stays
// at-least-once and the replication ledger dedupes.
type EventCursor struct {
	ID              uint      `gorm:"primarykey" json:"id"`
	MasterAccountID uint      `gorm:"not null;uniqueIndex" json:"master_account_id"`
	LastSequence    int64     `gorm:"not null;default:0" json:"last_sequence"`
	LastEventAt     time.Time `json:"last_event_at"`
	UpdatedAt       time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

func (EventCursor) TableName() string {
	return "event_cursor"
}
