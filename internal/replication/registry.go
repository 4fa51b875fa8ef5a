package replication

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"copycontrol/internal/models"

	"gorm.io/gorm"
)

// DefaultMinIncrement applies when a symbol has no symbol_config row.
const DefaultMinIncrement = 0.01

// SubscriptionRegistry resolves which follower accounts copy which master
// trader, plus the per-symbol and process-wide parameters sizing and
// settlement need. The commission cap is always read fresh, never cached.
type SubscriptionRegistry interface {
	ActiveSubscriptions(ctx context.Context, masterTraderID uint) ([]models.CopySubscription, error)
	SubscriptionFor(ctx context.Context, followerAccountID, masterTraderID uint) (*models.CopySubscription, error)
	MasterByAccount(ctx context.Context, tradingAccountID uint) (*models.MasterTrader, error)
	MasterByID(ctx context.Context, masterTraderID uint) (*models.MasterTrader, error)
	MinIncrement(ctx context.Context, symbol string) (float64, error)
	MaxCommissionPct(ctx context.Context) (float64, error)
}

type gormRegistry struct {
	db *gorm.DB
}

// NewRegistry returns the gorm-backed SubscriptionRegistry.
func NewRegistry(db *gorm.DB) SubscriptionRegistry {
	return &gormRegistry{db: db}
}

func (r *gormRegistry) ActiveSubscriptions(ctx context.Context, masterTraderID uint) ([]models.CopySubscription, error) {
	var subs []models.CopySubscription
	err := r.db.WithContext(ctx).
		Where("master_trader_id = ? AND is_active = ?", masterTraderID, true).
		Order("id").
		Find(&subs).Error
	if err != nil {
		return nil, fmt.Errorf("list active subscriptions for master %d: %w", masterTraderID, err)
	}
	return subs, nil
}

func (r *gormRegistry) SubscriptionFor(ctx context.Context, followerAccountID, masterTraderID uint) (*models.CopySubscription, error) {
	var sub models.CopySubscription
	err := r.db.WithContext(ctx).
		Where("follower_account_id = ? AND master_trader_id = ?", followerAccountID, masterTraderID).
		First(&sub).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load subscription follower=%d master=%d: %w", followerAccountID, masterTraderID, err)
	}
	return &sub, nil
}

func (r *gormRegistry) MasterByAccount(ctx context.Context, tradingAccountID uint) (*models.MasterTrader, error) {
	var master models.MasterTrader
	err := r.db.WithContext(ctx).
		Where("trading_account_id = ?", tradingAccountID).
		First(&master).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load master trader by account %d: %w", tradingAccountID, err)
	}
	return &master, nil
}

func (r *gormRegistry) MasterByID(ctx context.Context, masterTraderID uint) (*models.MasterTrader, error) {
	var master models.MasterTrader
	err := r.db.WithContext(ctx).First(&master, masterTraderID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load master trader %d: %w", masterTraderID, err)
	}
	return &master, nil
}

func (r *gormRegistry) MinIncrement(ctx context.Context, symbol string) (float64, error) {
	var cfg models.SymbolConfig
	err := r.db.WithContext(ctx).
		Where("symbol = ?", strings.ToUpper(symbol)).
		First(&cfg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return DefaultMinIncrement, nil
	}
	if err != nil {
		return 0, fmt.Errorf("load symbol config %s: %w", symbol, err)
	}
	if cfg.MinIncrement <= 0 {
		return DefaultMinIncrement, nil
	}
	return cfg.MinIncrement, nil
}

// MaxCommissionPct reads the global commission cap from system_params.
// A missing or out-of-range value is a configuration error: settlement
// defers rather than applying an unbounded commission.
func (r *gormRegistry) MaxCommissionPct(ctx context.Context) (float64, error) {
	var params models.SystemParams
	err := r.db.WithContext(ctx).
		Where("name = ? AND is_active = ?", models.ParamMaxCommissionPct, true).
		First(&params).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, fmt.Errorf("%w: system param %s not set", ErrConfig, models.ParamMaxCommissionPct)
	}
	if err != nil {
		return 0, fmt.Errorf("load system param %s: %w", models.ParamMaxCommissionPct, err)
	}

	raw, ok := params.ParamsConfig["value"]
	if !ok {
		return 0, fmt.Errorf("%w: system param %s has no value", ErrConfig, models.ParamMaxCommissionPct)
	}
	value, ok := raw.(float64)
	if !ok || value <= 0 || value > 100 {
		return 0, fmt.Errorf("%w: system param %s value %v out of range", ErrConfig, models.ParamMaxCommissionPct, raw)
	}
	return value, nil
}
