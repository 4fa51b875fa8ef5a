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

// TradeStore reads master trades and owns creation and transition of
// follower replicas.
type TradeStore interface {
	ByExternalID(ctx context.Context, externalID string) (*models.Trade, error)
	CreateReplica(ctx context.Context, trade *models.Trade) error
	Replicas(ctx context.Context, masterTradeID string) ([]models.Trade, error)
	OpenReplicas(ctx context.Context, masterTradeID string) ([]models.Trade, error)
	Close(ctx context.Context, tradeID uint, price float64, at time.Time) error
	UpdateQuantity(ctx context.Context, tradeID uint, quantity float64) error
	ClosedMasterTradesWithOpenReplicas(ctx context.Context) ([]models.Trade, error)
}

// CommissionStore owns commission_entry rows.
type CommissionStore interface {
	// Create inserts the entry unless one already exists for its
	// (master trade, follower trade) pair. Returns false when it existed.
	Create(ctx context.Context, entry *models.CommissionEntry) (bool, error)
}

type gormTradeStore struct {
	db *gorm.DB
}

// NewTradeStore returns the gorm-backed trade store.
func NewTradeStore(db *gorm.DB) TradeStore {
	return &gormTradeStore{db: db}
}

func (s *gormTradeStore) ByExternalID(ctx context.Context, externalID string) (*models.Trade, error) {
	var trade models.Trade
	err := s.db.WithContext(ctx).Where("external_id = ?", externalID).First(&trade).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load trade %s: %w", externalID, err)
	}
	return &trade, nil
}

// CreateReplica inserts a follower trade. Replica external ids are derived
// from (master trade, follower account), so a crash-replayed create finds
// the existing row instead of duplicating it.
func (s *gormTradeStore) CreateReplica(ctx context.Context, trade *models.Trade) error {
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "external_id"}}, DoNothing: true}).
		Create(trade).Error
	if err != nil {
		return fmt.Errorf("create replica %s: %w", trade.ExternalID, err)
	}
	if trade.ID == 0 {
		existing, err := s.ByExternalID(ctx, trade.ExternalID)
		if err != nil {
			return err
		}
		if existing == nil {
			return fmt.Errorf("replica %s missing after insert", trade.ExternalID)
		}
		*trade = *existing
	}
	return nil
}

func (s *gormTradeStore) Replicas(ctx context.Context, masterTradeID string) ([]models.Trade, error) {
	var trades []models.Trade
	err := s.db.WithContext(ctx).
		Where("origin_master_trade_id = ?", masterTradeID).
		Order("id").
		Find(&trades).Error
	if err != nil {
		return nil, fmt.Errorf("list replicas of %s: %w", masterTradeID, err)
	}
	return trades, nil
}

func (s *gormTradeStore) OpenReplicas(ctx context.Context, masterTradeID string) ([]models.Trade, error) {
	var trades []models.Trade
	err := s.db.WithContext(ctx).
		Where("origin_master_trade_id = ? AND status = ?", masterTradeID, models.TradeOpen).
		Order("id").
		Find(&trades).Error
	if err != nil {
		return nil, fmt.Errorf("list open replicas of %s: %w", masterTradeID, err)
	}
	return trades, nil
}

// Close transitions a trade to CLOSED. The status guard makes replays
// no-ops at the store level, independent of the ledger.
func (s *gormTradeStore) Close(ctx context.Context, tradeID uint, price float64, at time.Time) error {
	err := s.db.WithContext(ctx).Model(&models.Trade{}).
		Where("id = ? AND status = ?", tradeID, models.TradeOpen).
		Updates(map[string]interface{}{
			"status":      models.TradeClosed,
			"close_price": price,
			"closed_at":   at,
		}).Error
	if err != nil {
		return fmt.Errorf("close trade %d: %w", tradeID, err)
	}
	return nil
}

func (s *gormTradeStore) UpdateQuantity(ctx context.Context, tradeID uint, quantity float64) error {
	err := s.db.WithContext(ctx).Model(&models.Trade{}).
		Where("id = ? AND status = ?", tradeID, models.TradeOpen).
		Update("quantity", quantity).Error
	if err != nil {
		return fmt.Errorf("update trade %d quantity: %w", tradeID, err)
	}
	return nil
}

// ClosedMasterTradesWithOpenReplicas finds master trades the execution
// subsystem already closed while replicas are still open, so a CLOSE can
// be synthesized even if the live event was missed.
func (s *gormTradeStore) ClosedMasterTradesWithOpenReplicas(ctx context.Context) ([]models.Trade, error) {
	var trades []models.Trade
	err := s.db.WithContext(ctx).
		Where("status = ? AND origin_master_trade_id IS NULL", models.TradeClosed).
		Where("external_id IN (?)",
			s.db.Model(&models.Trade{}).
				Select("origin_master_trade_id").
				Where("status = ? AND origin_master_trade_id IS NOT NULL", models.TradeOpen),
		).
		Find(&trades).Error
	if err != nil {
		return nil, fmt.Errorf("list closed masters with open replicas: %w", err)
	}
	return trades, nil
}

type gormCommissionStore struct {
	db *gorm.DB
}

// NewCommissionStore returns the gorm-backed commission store.
func NewCommissionStore(db *gorm.DB) CommissionStore {
	return &gormCommissionStore{db: db}
}

func (s *gormCommissionStore) Create(ctx context.Context, entry *models.CommissionEntry) (bool, error) {
	res := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "master_trade_id"}, {Name: "follower_trade_id"}},
			DoNothing: true,
		}).
		Create(entry)
	if res.Error != nil {
		return false, fmt.Errorf("create commission entry %s/%d: %w", entry.MasterTradeID, entry.FollowerTradeID, res.Error)
	}
	return res.RowsAffected > 0, nil
}
