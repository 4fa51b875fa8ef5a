package replication

import (
	"context"
	"errors"
	"fmt"
	"time"

	"copycontrol/internal/models"

	redis "github.com/redis/go-redis/v9"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CursorStore persists the per-master position in the event stream.
type CursorStore interface {
	Get(ctx context.Context, masterAccountID uint) (*models.EventCursor, error)
	Advance(ctx context.Context, masterAccountID uint, sequence int64, eventAt time.Time) error
}

type gormCursorStore struct {
	db    *gorm.DB
	redis *redis.Client // optional mirror for cheap reads
}

// NewCursorStore returns the gorm-backed cursor store. The redis client
// is optional; when present the latest sequence is mirrored there.
func NewCursorStore(db *gorm.DB, rdb *redis.Client) CursorStore {
	return &gormCursorStore{db: db, redis: rdb}
}

func (s *gormCursorStore) Get(ctx context.Context, masterAccountID uint) (*models.EventCursor, error) {
	var cur models.EventCursor
	err := s.db.WithContext(ctx).
		Where("master_account_id = ?", masterAccountID).
		First(&cur).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load event cursor for account %d: %w", masterAccountID, err)
	}
	return &cur, nil
}

// Advance moves the cursor forward. Sequences never move backwards, so a
// redelivered older event leaves the cursor untouched.
func (s *gormCursorStore) Advance(ctx context.Context, masterAccountID uint, sequence int64, eventAt time.Time) error {
	cur := models.EventCursor{
		MasterAccountID: masterAccountID,
		LastSequence:    sequence,
		LastEventAt:     eventAt,
	}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "master_account_id"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"last_sequence": gorm.Expr("GREATEST(event_cursor.last_sequence, ?)", sequence),
				"last_event_at": eventAt,
			}),
		}).
		Create(&cur).Error
	if err != nil {
		return fmt.Errorf("advance event cursor for account %d: %w", masterAccountID, err)
	}

	if s.redis != nil {
		key := fmt.Sprintf("cursor:%d", masterAccountID)
		if err := s.redis.Set(ctx, key, sequence, 0).Err(); err != nil {
			// Mirror only; the durable cursor already advanced.
			return nil
		}
	}
	return nil
}
