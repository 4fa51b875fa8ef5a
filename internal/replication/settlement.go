package replication

import (
	"context"
	"fmt"

	"copycontrol/internal/models"

	"github.com/sirupsen/logrus"
)

// PriceSource supplies the prevailing market price for a symbol, backed
// by the external execution collaborator.
type PriceSource interface {
	Price(ctx context.Context, symbol string) (float64, error)
}

// WalletClient issues credit instructions to the external wallet
// collaborator. The reference is an idempotency key; the collaborator is
// assumed to dedupe on it, so a retried credit never double-pays.
type WalletClient interface {
	Credit(ctx context.Context, masterID uint, amount float64, reference string) error
}

// EquitySource reads current account equity from the external account
// collaborator, used for capital-proportional sizing.
type EquitySource interface {
	Equity(ctx context.Context, tradingAccountID uint) (float64, error)
}

// Settler computes and credits the master's commission when a follower
// trade closes. The global cap is read fresh per settlement: lowering it
// immediately reduces commission even for existing subscriptions.
type Settler struct {
	registry    SubscriptionRegistry
	commissions CommissionStore
	wallet      WalletClient
	log         *logrus.Entry
}

// NewSettler builds a Settler.
func NewSettler(registry SubscriptionRegistry, commissions CommissionStore, wallet WalletClient) *Settler {
	return &Settler{
		registry:    registry,
		commissions: commissions,
		wallet:      wallet,
		log:         logrus.WithField("module", "settlement"),
	}
}

// Settle records a CommissionEntry for the closed follower trade and
// issues the wallet credit when the follower profited. Losing trades
// still get an audit entry with amount 0 and no credit call. Settlement
// is idempotent per (master trade, follower trade).
func (s *Settler) Settle(ctx context.Context, trade *models.Trade, masterTradeID string, masterID uint) (*models.CommissionEntry, error) {
	if trade.Status != models.TradeClosed || trade.ClosePrice == nil {
		return nil, fmt.Errorf("%w: trade %d not closed, cannot settle", ErrIntegrity, trade.ID)
	}

	capPct, err := s.registry.MaxCommissionPct(ctx)
	if err != nil {
		return nil, fmt.Errorf("read commission cap: %w", err)
	}

	sub, err := s.registry.SubscriptionFor(ctx, trade.TradingAccountID, masterID)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return nil, fmt.Errorf("%w: no subscription for follower %d under master %d", ErrIntegrity, trade.TradingAccountID, masterID)
	}

	gross := (*trade.ClosePrice - trade.OpenPrice) * trade.Quantity * trade.DirectionSign()

	pct := sub.CommissionSharePct
	if pct > capPct {
		pct = capPct
	}

	amount := 0.0
	if gross > 0 {
		amount = gross * pct / 100
	}

	entry := &models.CommissionEntry{
		MasterTradeID:        masterTradeID,
		FollowerTradeID:      trade.ID,
		MasterID:             masterID,
		GrossFollowerProfit:  gross,
		CommissionPctApplied: pct,
		CommissionAmount:     amount,
	}

	if amount > 0 {
		reference := fmt.Sprintf("commission:%s:%d", masterTradeID, trade.ID)
		if err := s.wallet.Credit(ctx, masterID, amount, reference); err != nil {
			return nil, fmt.Errorf("credit master %d: %w", masterID, err)
		}
	}

	created, err := s.commissions.Create(ctx, entry)
	if err != nil {
		return nil, err
	}
	if !created {
		s.log.WithFields(logrus.Fields{
			"master_trade_id":   masterTradeID,
			"follower_trade_id": trade.ID,
		}).Debug("commission entry already exists, settlement replay ignored")
		return entry, nil
	}

	s.log.WithFields(logrus.Fields{
		"master_trade_id":   masterTradeID,
		"follower_trade_id": trade.ID,
		"gross_profit":      gross,
		"pct_applied":       pct,
		"amount":            amount,
	}).Info("follower trade settled")
	return entry, nil
}
