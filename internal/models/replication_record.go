package models

import (
	"time"
)

// Replication record statuses
const (
	ReplicationPending = "PENDING"
	ReplicationApplied = "APPLIED"
	ReplicationFailed  = "FAILED"
)

// Event types carried by replication records
const (
	EventOpen   = "OPEN"
	EventClose  = "CLOSE"
	EventModify = "MODIFY"
)

// ReplicationRecord is a consistency-ledger entry keyed by
// (master_trade_id, event_type, follower_account_id). At most one record
// exists per key; an APPLIED record makes the replication action a no-op
// on replay. FollowerAccountID 0 is the event-level intent row written
// before any fan-out.
type ReplicationRecord struct {
	ID                uint       `gorm:"primarykey" json:"id"`
	MasterTradeID     string     `gorm:"size:64;not null;uniqueIndex:idx_replication_key" json:"master_trade_id"`
	EventType         string     `gorm:"size:10;not null;uniqueIndex:idx_replication_key" json:"event_type"`
	FollowerAccountID uint       `gorm:"not null;uniqueIndex:idx_replication_key" json:"follower_account_id"`
	Status            string     `gorm:"size:10;not null;default:'PENDING';index" json:"status"`
	FollowerTradeID   *uint      `json:"follower_trade_id,omitempty"`
	Attempts          int        `gorm:"default:0" json:"attempts"`
	LastError         string     `gorm:"type:text;default:''" json:"last_error"`
	AppliedAt         *time.Time `json:"applied_at,omitempty"`
	CreatedAt         time.Time  `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt         time.Time  `json:"updated_at" gorm:"autoUpdateTime"`
}

func (ReplicationRecord) TableName() string {
	return "replication_record"
}
