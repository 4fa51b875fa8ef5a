package replication

import (
	"context"
	"time"

	"copycontrol/internal/models"

	"github.com/sirupsen/logrus"
)

// Sweeper re-drives PENDING event intents that outlived the grace
// period, typically left behind by a crash mid-fan-out or a parked
// CLOSE. Re-driving goes through the coordinator, so it is bounded by
// the same retry policy as live processing.
type Sweeper struct {
	ledger   Ledger
	trades   TradeStore
	registry SubscriptionRegistry
	coord    *Coordinator
	alerts   Alerter
	grace    time.Duration
	log      *logrus.Entry
}

// NewSweeper builds a Sweeper with the given grace period.
func NewSweeper(ledger Ledger, trades TradeStore, registry SubscriptionRegistry, coord *Coordinator, alerts Alerter, grace time.Duration) *Sweeper {
	if grace <= 0 {
		grace = 2 * time.Minute
	}
	return &Sweeper{
		ledger:   ledger,
		trades:   trades,
		registry: registry,
		coord:    coord,
		alerts:   alerts,
		grace:    grace,
		log:      logrus.WithField("module", "sweeper"),
	}
}

// Run performs one sweep pass and returns how many intents were re-driven.
func (s *Sweeper) Run(ctx context.Context) (int, error) {
	intents, err := s.ledger.PendingIntents(ctx, s.grace)
	if err != nil {
		return 0, err
	}

	redriven := 0
	for _, intent := range intents {
		ev, err := s.rebuildEvent(ctx, intent)
		if err != nil {
			key := IntentKey(intent.MasterTradeID, intent.EventType)
			reason := err.Error()
			if mErr := s.ledger.MarkFailed(ctx, key, reason); mErr != nil {
				s.log.Errorf("mark stale intent %s failed: %v", key, mErr)
				continue
			}
			s.alerts.ReplicationFailed(ctx, key, reason)
			continue
		}

		if err := s.coord.HandleEvent(ctx, *ev); err != nil {
			s.log.Errorf("re-drive %s/%s failed: %v", intent.MasterTradeID, intent.EventType, err)
			continue
		}
		redriven++
	}

	if redriven > 0 {
		s.log.WithField("count", redriven).Info("recovery sweep re-drove pending intents")
	}
	return redriven, nil
}

// rebuildEvent reconstructs a trade event from current trade-store
// state, since the original queue message is gone.
func (s *Sweeper) rebuildEvent(ctx context.Context, intent models.ReplicationRecord) (*TradeEvent, error) {
	master, err := s.trades.ByExternalID(ctx, intent.MasterTradeID)
	if err != nil {
		return nil, err
	}
	if master == nil {
		return nil, ErrIntegrity
	}

	trader, err := s.registry.MasterByAccount(ctx, master.TradingAccountID)
	if err != nil {
		return nil, err
	}
	if trader == nil {
		return nil, ErrIntegrity
	}

	price := master.OpenPrice
	if intent.EventType == models.EventClose && master.ClosePrice != nil {
		price = *master.ClosePrice
	}

	return &TradeEvent{
		Type:           intent.EventType,
		TradeID:        intent.MasterTradeID,
		AccountID:      master.TradingAccountID,
		MasterTraderID: trader.ID,
		Symbol:         master.Symbol,
		Side:           master.Side,
		Quantity:       master.Quantity,
		Price:          price,
		Timestamp:      time.Now().UTC(),
	}, nil
}
