package replication

import (
	"context"
	"time"

	"copycontrol/internal/models"

	"github.com/sirupsen/logrus"
)

// Detector turns raw execution-feed messages into normalized trade
// events for the coordinator. It filters to active master traders,
// keeps the durable per-master cursor, and can synthesize CLOSE events
// from trade-store state when the live event was missed.
type Detector struct {
	registry SubscriptionRegistry
	cursors  CursorStore
	trades   TradeStore
	coord    *Coordinator
	log      *logrus.Entry
}

// NewDetector builds a Detector.
func NewDetector(registry SubscriptionRegistry, cursors CursorStore, trades TradeStore, coord *Coordinator) *Detector {
	return &Detector{
		registry: registry,
		cursors:  cursors,
		trades:   trades,
		coord:    coord,
		log:      logrus.WithField("module", "detector"),
	}
}

// HandleMessage processes one queue message. A nil return acks the
// message; an error nacks it back onto the queue, so any failure here
// must be worth redelivering.
func (d *Detector) HandleMessage(ctx context.Context, body []byte) error {
	ev, err := ParseTradeEvent(body)
	if err != nil {
		// Malformed payloads would be redelivered forever; drop them.
		d.log.Warnf("dropping malformed trade event: %v", err)
		return nil
	}

	master, err := d.registry.MasterByAccount(ctx, ev.AccountID)
	if err != nil {
		return err
	}
	if master == nil {
		d.log.WithField("account_id", ev.AccountID).Debug("event for non-master account ignored")
		return nil
	}
	if master.Status != models.MasterTraderActive {
		d.log.WithFields(logrus.Fields{
			"master_trader_id": master.ID,
			"trade_id":         ev.TradeID,
		}).Info("event for suspended master trader ignored")
		return nil
	}

	if ev.Sequence > 0 {
		cur, err := d.cursors.Get(ctx, ev.AccountID)
		if err != nil {
			return err
		}
		if cur != nil && ev.Sequence <= cur.LastSequence {
			d.log.WithFields(logrus.Fields{
				"trade_id": ev.TradeID,
				"sequence": ev.Sequence,
			}).Debug("event at or behind cursor, already consumed")
			return nil
		}
	}

	ev.MasterTraderID = master.ID
	if err := d.coord.HandleEvent(ctx, ev); err != nil {
		return err
	}

	if ev.Sequence > 0 {
		if err := d.cursors.Advance(ctx, ev.AccountID, ev.Sequence, ev.Timestamp); err != nil {
			// Delivery is at-least-once and the ledger dedupes, so a
			// lost cursor write only costs a redundant replay.
			d.log.Warnf("failed to advance cursor for account %d: %v", ev.AccountID, err)
		}
	}
	return nil
}

// ReconcileClosedMasters finds master trades already CLOSED in the trade
// store that still have open replicas and drives a synthesized CLOSE
// through the coordinator. This catches closes that happened while no
// detector was running.
func (d *Detector) ReconcileClosedMasters(ctx context.Context) (int, error) {
	masters, err := d.trades.ClosedMasterTradesWithOpenReplicas(ctx)
	if err != nil {
		return 0, err
	}

	handled := 0
	for _, m := range masters {
		trader, err := d.registry.MasterByAccount(ctx, m.TradingAccountID)
		if err != nil {
			return handled, err
		}
		if trader == nil {
			d.log.WithField("trade_id", m.ExternalID).Warn("closed trade with replicas has no master trader")
			continue
		}

		price := 0.0
		if m.ClosePrice != nil {
			price = *m.ClosePrice
		}
		ts := time.Now().UTC()
		if m.ClosedAt != nil {
			ts = *m.ClosedAt
		}

		ev := TradeEvent{
			Type:           models.EventClose,
			TradeID:        m.ExternalID,
			AccountID:      m.TradingAccountID,
			MasterTraderID: trader.ID,
			Symbol:         m.Symbol,
			Side:           m.Side,
			Quantity:       m.Quantity,
			Price:          price,
			Timestamp:      ts,
		}
		if err := d.coord.HandleEvent(ctx, ev); err != nil {
			d.log.Errorf("reconcile close for %s failed: %v", m.ExternalID, err)
			continue
		}
		handled++
	}
	return handled, nil
}
