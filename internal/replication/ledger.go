package replication

import (
	"context"
	"errors"
	"fmt"
	"time"

	"copycontrol/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RecordKey identifies one consistency-ledger entry. FollowerAccountID 0
// addresses the event-level intent row.
type RecordKey struct {
	MasterTradeID     string
	EventType         string
	FollowerAccountID uint
}

func (k RecordKey) String() string {
	return fmt.Sprintf("%s/%s/%d", k.MasterTradeID, k.EventType, k.FollowerAccountID)
}

// IntentKey returns the event-level key for a trade event.
func IntentKey(masterTradeID, eventType string) RecordKey {
	return RecordKey{MasterTradeID: masterTradeID, EventType: eventType}
}

// Ledger is the durable exactly-once record of which (master event,
// follower) pairs have been applied. The PENDING write happens before any
// follower-side mutation; APPLIED/FAILED writes happen after.
type Ledger interface {
	Get(ctx context.Context, key RecordKey) (*models.ReplicationRecord, error)
	EnsurePending(ctx context.Context, key RecordKey) (*models.ReplicationRecord, error)
	MarkApplied(ctx context.Context, key RecordKey, followerTradeID *uint) error
	MarkSkipped(ctx context.Context, key RecordKey, reason string) error
	MarkFailed(ctx context.Context, key RecordKey, reason string) error
	RecordAttempt(ctx context.Context, key RecordKey, reason string) error
	PendingIntents(ctx context.Context, olderThan time.Duration) ([]models.ReplicationRecord, error)
	ResetFailed(ctx context.Context, masterTradeID, eventType string) (int64, error)
}

type gormLedger struct {
	db *gorm.DB
}

// NewLedger returns the gorm-backed consistency ledger.
func NewLedger(db *gorm.DB) Ledger {
	return &gormLedger{db: db}
}

func (l *gormLedger) Get(ctx context.Context, key RecordKey) (*models.ReplicationRecord, error) {
	var rec models.ReplicationRecord
	err := l.db.WithContext(ctx).
		Where("master_trade_id = ? AND event_type = ? AND follower_account_id = ?",
			key.MasterTradeID, key.EventType, key.FollowerAccountID).
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ledger get %s: %w", key, err)
	}
	return &rec, nil
}

// EnsurePending inserts a PENDING record if none exists and returns the
// current row. The unique key keeps concurrent writers from creating a
// second record.
func (l *gormLedger) EnsurePending(ctx context.Context, key RecordKey) (*models.ReplicationRecord, error) {
	rec := models.ReplicationRecord{
		MasterTradeID:     key.MasterTradeID,
		EventType:         key.EventType,
		FollowerAccountID: key.FollowerAccountID,
		Status:            models.ReplicationPending,
	}
	err := l.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&rec).Error
	if err != nil {
		return nil, fmt.Errorf("ledger ensure pending %s: %w", key, err)
	}
	return l.mustGet(ctx, key)
}

func (l *gormLedger) mustGet(ctx context.Context, key RecordKey) (*models.ReplicationRecord, error) {
	rec, err := l.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, fmt.Errorf("ledger record %s missing after write", key)
	}
	return rec, nil
}

func (l *gormLedger) MarkApplied(ctx context.Context, key RecordKey, followerTradeID *uint) error {
	now := time.Now().UTC()
	updates := map[string]interface{}{
		"status":     models.ReplicationApplied,
		"applied_at": &now,
	}
	if followerTradeID != nil {
		updates["follower_trade_id"] = *followerTradeID
	}
	return l.update(ctx, key, updates)
}

func (l *gormLedger) MarkSkipped(ctx context.Context, key RecordKey, reason string) error {
	now := time.Now().UTC()
	return l.update(ctx, key, map[string]interface{}{
		"status":     models.ReplicationApplied,
		"applied_at": &now,
		"last_error": reason,
	})
}

func (l *gormLedger) MarkFailed(ctx context.Context, key RecordKey, reason string) error {
	return l.update(ctx, key, map[string]interface{}{
		"status":     models.ReplicationFailed,
		"last_error": reason,
	})
}

func (l *gormLedger) RecordAttempt(ctx context.Context, key RecordKey, reason string) error {
	err := l.db.WithContext(ctx).Model(&models.ReplicationRecord{}).
		Where("master_trade_id = ? AND event_type = ? AND follower_account_id = ?",
			key.MasterTradeID, key.EventType, key.FollowerAccountID).
		Updates(map[string]interface{}{
			"attempts":   gorm.Expr("attempts + 1"),
			"last_error": reason,
		}).Error
	if err != nil {
		return fmt.Errorf("ledger record attempt %s: %w", key, err)
	}
	return nil
}

func (l *gormLedger) update(ctx context.Context, key RecordKey, updates map[string]interface{}) error {
	err := l.db.WithContext(ctx).Model(&models.ReplicationRecord{}).
		Where("master_trade_id = ? AND event_type = ? AND follower_account_id = ?",
			key.MasterTradeID, key.EventType, key.FollowerAccountID).
		Updates(updates).Error
	if err != nil {
		return fmt.Errorf("ledger update %s: %w", key, err)
	}
	return nil
}

// PendingIntents returns event-level intent rows older than the grace
// period, for the recovery sweep to re-drive.
func (l *gormLedger) PendingIntents(ctx context.Context, olderThan time.Duration) ([]models.ReplicationRecord, error) {
	cutoff := time.Now().UTC().Add(-olderThan)
	var recs []models.ReplicationRecord
	err := l.db.WithContext(ctx).
		Where("follower_account_id = 0 AND status = ? AND created_at < ?", models.ReplicationPending, cutoff).
		Order("created_at").
		Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("ledger pending intents: %w", err)
	}
	return recs, nil
}

// ResetFailed flips FAILED rows for an event back to PENDING so the sweep
// re-drives them. Used by the operator requeue endpoint.
func (l *gormLedger) ResetFailed(ctx context.Context, masterTradeID, eventType string) (int64, error) {
	res := l.db.WithContext(ctx).Model(&models.ReplicationRecord{}).
		Where("master_trade_id = ? AND event_type = ? AND status = ?",
			masterTradeID, eventType, models.ReplicationFailed).
		Updates(map[string]interface{}{
			"status":     models.ReplicationPending,
			"attempts":   0,
			"last_error": "",
		})
	if res.Error != nil {
		return 0, fmt.Errorf("ledger reset failed %s/%s: %w", masterTradeID, eventType, res.Error)
	}
	return res.RowsAffected, nil
}
