package replication

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"copycontrol/internal/models"
	"copycontrol/pkg/utils"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// CoordinatorOptions tunes fan-out concurrency, the retry policy for
// follower legs, and how long a CLOSE waits for its OPEN to settle.
type CoordinatorOptions struct {
	FanOutLimit      int
	Retry            utils.RetryConfig
	OpenWaitTimeout  time.Duration
	OpenPollInterval time.Duration
}

// DefaultCoordinatorOptions returns the production defaults.
func DefaultCoordinatorOptions() CoordinatorOptions {
	return CoordinatorOptions{
		FanOutLimit:      8,
		Retry:            utils.DefaultRetryConfig(),
		OpenWaitTimeout:  15 * time.Second,
		OpenPollInterval: 200 * time.Millisecond,
	}
}

// Coordinator drives the replication state machine. Events for the same
// master trade id are serialized; fan-out across follower subscriptions
// runs in parallel with bounded concurrency. Each leg is isolated: one
// follower's failure never blocks or rolls back the others.
type Coordinator struct {
	registry SubscriptionRegistry
	ledger   Ledger
	trades   TradeStore
	prices   PriceSource
	equity   EquitySource
	settler  *Settler
	alerts   Alerter

	locks *keyMutex
	opts  CoordinatorOptions
	log   *logrus.Entry
}

// NewCoordinator builds a Coordinator.
func NewCoordinator(
	registry SubscriptionRegistry,
	ledger Ledger,
	trades TradeStore,
	prices PriceSource,
	equity EquitySource,
	settler *Settler,
	alerts Alerter,
	opts CoordinatorOptions,
) *Coordinator {
	if opts.FanOutLimit <= 0 {
		opts.FanOutLimit = DefaultCoordinatorOptions().FanOutLimit
	}
	if opts.Retry.MaxAttempts <= 0 {
		opts.Retry = utils.DefaultRetryConfig()
	}
	if opts.OpenWaitTimeout <= 0 {
		opts.OpenWaitTimeout = DefaultCoordinatorOptions().OpenWaitTimeout
	}
	if opts.OpenPollInterval <= 0 {
		opts.OpenPollInterval = DefaultCoordinatorOptions().OpenPollInterval
	}
	return &Coordinator{
		registry: registry,
		ledger:   ledger,
		trades:   trades,
		prices:   prices,
		equity:   equity,
		settler:  settler,
		alerts:   alerts,
		locks:    newKeyMutex(),
		opts:     opts,
		log:      logrus.WithField("module", "coordinator"),
	}
}

// ReplicaExternalID derives the deterministic external id of a follower
// replica, which makes replica creation idempotent at the store level.
func ReplicaExternalID(masterTradeID string, followerAccountID uint) string {
	return fmt.Sprintf("%s-f%d", masterTradeID, followerAccountID)
}

// HandleEvent applies one master trade event. Safe to call any number of
// times with the same event.
func (c *Coordinator) HandleEvent(ctx context.Context, ev TradeEvent) error {
	if ev.MasterTraderID == 0 {
		return fmt.Errorf("event %s has unresolved master trader", ev.TradeID)
	}

	unlock := c.locks.Lock(ev.TradeID)
	defer unlock()

	switch ev.Type {
	case models.EventOpen:
		return c.processOpen(ctx, ev)
	case models.EventClose:
		return c.processClose(ctx, ev)
	case models.EventModify:
		return c.processModify(ctx, ev)
	default:
		return fmt.Errorf("unknown event type %q", ev.Type)
	}
}

func (c *Coordinator) processOpen(ctx context.Context, ev TradeEvent) error {
	intentKey := IntentKey(ev.TradeID, models.EventOpen)
	intent, err := c.ledger.EnsurePending(ctx, intentKey)
	if err != nil {
		return err
	}
	switch intent.Status {
	case models.ReplicationApplied:
		return nil
	case models.ReplicationFailed:
		c.log.WithField("master_trade_id", ev.TradeID).Warn("open replay ignored, event marked failed; requeue to retry")
		return nil
	}

	subs, err := c.registry.ActiveSubscriptions(ctx, ev.MasterTraderID)
	if err != nil {
		return err
	}

	failures := c.fanOut(ctx, len(subs), func(i int) (RecordKey, error) {
		sub := subs[i]
		key := RecordKey{MasterTradeID: ev.TradeID, EventType: models.EventOpen, FollowerAccountID: sub.FollowerAccountID}
		return key, c.openLeg(ctx, ev, sub, key)
	})

	if len(failures) > 0 {
		return c.ledger.MarkFailed(ctx, intentKey, strings.Join(failures, "; "))
	}
	return c.ledger.MarkApplied(ctx, intentKey, nil)
}

func (c *Coordinator) openLeg(ctx context.Context, ev TradeEvent, sub models.CopySubscription, key RecordKey) error {
	err := utils.Retry(ctx, c.opts.Retry, func() error {
		return c.classify(c.openLegOnce(ctx, ev, sub, key))
	})
	return c.finishLeg(ctx, key, err)
}

func (c *Coordinator) openLegOnce(ctx context.Context, ev TradeEvent, sub models.CopySubscription, key RecordKey) error {
	rec, err := c.ledger.EnsurePending(ctx, key)
	if err != nil {
		return err
	}
	if rec.Status != models.ReplicationPending {
		return nil
	}
	_ = c.ledger.RecordAttempt(ctx, key, "")

	minInc, err := c.registry.MinIncrement(ctx, ev.Symbol)
	if err != nil {
		return err
	}

	in := SizingInput{
		MasterQuantity: ev.Quantity,
		SizingMode:     sub.SizingMode,
		RiskRatio:      sub.RiskRatio,
		FixedLotSize:   sub.FixedLotSize,
		MinIncrement:   minInc,
	}
	if sub.SizingMode == models.SizingCapitalProportional {
		if in.FollowerEquity, err = c.equity.Equity(ctx, sub.FollowerAccountID); err != nil {
			return err
		}
		masterAccount := ev.AccountID
		if in.MasterEquity, err = c.equity.Equity(ctx, masterAccount); err != nil {
			return err
		}
	}

	qty, err := ComputeFollowerQuantity(in)
	if err != nil {
		return err
	}
	if qty == 0 {
		// Non-error skip: the ledger marks APPLIED with no follower trade.
		if err := c.ledger.MarkSkipped(ctx, key, "computed quantity rounds to zero"); err != nil {
			return err
		}
		c.log.WithFields(logrus.Fields{
			"master_trade_id":     ev.TradeID,
			"follower_account_id": sub.FollowerAccountID,
		}).Info("subscription skipped, quantity rounds to zero")
		return nil
	}

	ratio := 0.0
	if ev.Quantity > 0 {
		ratio = qty / ev.Quantity
	}
	origin := ev.TradeID
	replica := &models.Trade{
		ExternalID:          ReplicaExternalID(ev.TradeID, sub.FollowerAccountID),
		TradingAccountID:    sub.FollowerAccountID,
		Symbol:              ev.Symbol,
		Side:                ev.Side,
		Quantity:            qty,
		OpenPrice:           ev.Price,
		Status:              models.TradeOpen,
		OriginMasterTradeID: &origin,
		SizingRatio:         ratio,
		OpenedAt:            ev.Timestamp,
	}
	if err := c.trades.CreateReplica(ctx, replica); err != nil {
		return err
	}
	return c.ledger.MarkApplied(ctx, key, &replica.ID)
}

func (c *Coordinator) processClose(ctx context.Context, ev TradeEvent) error {
	intentKey := IntentKey(ev.TradeID, models.EventClose)

	// Ordering: a CLOSE never overtakes its OPEN. Wait for the OPEN
	// intent to reach a terminal state; on timeout park the CLOSE as
	// PENDING for the recovery sweep instead of applying out of order.
	if err := c.waitForOpen(ctx, ev.TradeID); err != nil {
		if errors.Is(err, ErrOpenInFlight) {
			if _, lerr := c.ledger.EnsurePending(ctx, intentKey); lerr != nil {
				return lerr
			}
			c.log.WithField("master_trade_id", ev.TradeID).Warn("close parked, open event still in flight")
			return nil
		}
		return err
	}

	intent, err := c.ledger.EnsurePending(ctx, intentKey)
	if err != nil {
		return err
	}
	switch intent.Status {
	case models.ReplicationApplied:
		// A requeued OPEN can create replicas after this CLOSE already
		// applied. Re-run the fan-out whenever a replica is still open.
		open, err := c.trades.OpenReplicas(ctx, ev.TradeID)
		if err != nil {
			return err
		}
		if len(open) == 0 {
			return nil
		}
	case models.ReplicationFailed:
		c.log.WithField("master_trade_id", ev.TradeID).Warn("close replay ignored, event marked failed; requeue to retry")
		return nil
	}

	// All replicas, not just open ones: an already-closed replica may
	// still be awaiting settlement after a deferred leg.
	replicas, err := c.trades.Replicas(ctx, ev.TradeID)
	if err != nil {
		return err
	}

	var deferredCount int64
	var deferredMu sync.Mutex
	failures := c.fanOut(ctx, len(replicas), func(i int) (RecordKey, error) {
		replica := replicas[i]
		key := RecordKey{MasterTradeID: ev.TradeID, EventType: models.EventClose, FollowerAccountID: replica.TradingAccountID}
		err := c.closeLeg(ctx, ev, replica, key)
		if errors.Is(err, ErrConfig) {
			deferredMu.Lock()
			deferredCount++
			deferredMu.Unlock()
			c.log.WithFields(logrus.Fields{
				"master_trade_id":   ev.TradeID,
				"follower_trade_id": replica.ID,
			}).Warn("settlement deferred on configuration error, leg left pending")
			return key, nil
		}
		return key, err
	})

	if len(failures) > 0 {
		return c.ledger.MarkFailed(ctx, intentKey, strings.Join(failures, "; "))
	}
	if deferredCount > 0 {
		// Leave the intent PENDING; the sweep re-drives once config is fixed.
		return nil
	}
	return c.ledger.MarkApplied(ctx, intentKey, nil)
}

func (c *Coordinator) closeLeg(ctx context.Context, ev TradeEvent, replica models.Trade, key RecordKey) error {
	err := utils.Retry(ctx, c.opts.Retry, func() error {
		return c.classify(c.closeLegOnce(ctx, ev, replica, key))
	})
	if errors.Is(err, ErrConfig) {
		return err // deferred by the caller, not failed
	}
	return c.finishLeg(ctx, key, err)
}

func (c *Coordinator) closeLegOnce(ctx context.Context, ev TradeEvent, replica models.Trade, key RecordKey) error {
	rec, err := c.ledger.EnsurePending(ctx, key)
	if err != nil {
		return err
	}
	if rec.Status == models.ReplicationApplied {
		return nil
	}
	if rec.Status == models.ReplicationFailed {
		return nil
	}
	_ = c.ledger.RecordAttempt(ctx, key, "")

	// Re-read the replica every attempt: an earlier attempt may already
	// have closed the trade, and settlement must use the close price
	// persisted on the row, never one re-fetched from the feed.
	fresh, err := c.trades.ByExternalID(ctx, replica.ExternalID)
	if err != nil {
		return err
	}
	if fresh == nil {
		return fmt.Errorf("%w: replica %s missing from trade store", ErrIntegrity, replica.ExternalID)
	}
	replica = *fresh

	// Idempotent on trade status, not just the ledger: a replayed CLOSE
	// against an already-closed replica only re-verifies settlement.
	if replica.Status == models.TradeOpen {
		price, err := c.closePrice(ctx, ev, replica.Symbol)
		if err != nil {
			return err
		}
		closedAt := ev.Timestamp
		if closedAt.IsZero() {
			closedAt = time.Now().UTC()
		}
		if err := c.trades.Close(ctx, replica.ID, price, closedAt); err != nil {
			return err
		}
		replica.Status = models.TradeClosed
		replica.ClosePrice = &price
		replica.ClosedAt = &closedAt
	}

	if _, err := c.settler.Settle(ctx, &replica, ev.TradeID, ev.MasterTraderID); err != nil {
		return err
	}
	return c.ledger.MarkApplied(ctx, key, &replica.ID)
}

// closePrice asks the execution collaborator for the prevailing price,
// falling back to the event's own price if the feed is unavailable.
func (c *Coordinator) closePrice(ctx context.Context, ev TradeEvent, symbol string) (float64, error) {
	price, err := c.prices.Price(ctx, symbol)
	if err == nil && price > 0 {
		return price, nil
	}
	if ev.Price > 0 {
		return ev.Price, nil
	}
	if err == nil {
		err = fmt.Errorf("no price available for %s", symbol)
	}
	return 0, err
}

func (c *Coordinator) processModify(ctx context.Context, ev TradeEvent) error {
	intentKey := IntentKey(ev.TradeID, models.EventModify)

	if err := c.waitForOpen(ctx, ev.TradeID); err != nil {
		if errors.Is(err, ErrOpenInFlight) {
			if _, lerr := c.ledger.EnsurePending(ctx, intentKey); lerr != nil {
				return lerr
			}
			c.log.WithField("master_trade_id", ev.TradeID).Warn("modify parked, open event still in flight")
			return nil
		}
		return err
	}

	// MODIFY legs are applied unconditionally: setting the quantity to
	// the target value is idempotent, and successive modifies of one
	// trade share the same ledger key.
	if _, err := c.ledger.EnsurePending(ctx, intentKey); err != nil {
		return err
	}

	replicas, err := c.trades.OpenReplicas(ctx, ev.TradeID)
	if err != nil {
		return err
	}

	failures := c.fanOut(ctx, len(replicas), func(i int) (RecordKey, error) {
		replica := replicas[i]
		key := RecordKey{MasterTradeID: ev.TradeID, EventType: models.EventModify, FollowerAccountID: replica.TradingAccountID}
		err := utils.Retry(ctx, c.opts.Retry, func() error {
			return c.classify(c.modifyLegOnce(ctx, ev, replica, key))
		})
		return key, c.finishLeg(ctx, key, err)
	})

	if len(failures) > 0 {
		return c.ledger.MarkFailed(ctx, intentKey, strings.Join(failures, "; "))
	}
	return c.ledger.MarkApplied(ctx, intentKey, nil)
}

func (c *Coordinator) modifyLegOnce(ctx context.Context, ev TradeEvent, replica models.Trade, key RecordKey) error {
	if _, err := c.ledger.EnsurePending(ctx, key); err != nil {
		return err
	}

	if replica.SizingRatio <= 0 {
		return fmt.Errorf("%w: replica %d has no sizing ratio recorded", ErrBusinessSkip, replica.ID)
	}

	minInc, err := c.registry.MinIncrement(ctx, replica.Symbol)
	if err != nil {
		return err
	}

	// The proportion fixed at open time, never current equity.
	newQty := FloorToIncrement(ev.Quantity*replica.SizingRatio, minInc)
	if newQty <= 0 {
		if err := c.ledger.MarkSkipped(ctx, key, "adjusted quantity rounds to zero"); err != nil {
			return err
		}
		return nil
	}

	if newQty != replica.Quantity {
		if err := c.trades.UpdateQuantity(ctx, replica.ID, newQty); err != nil {
			return err
		}
	}
	return c.ledger.MarkApplied(ctx, key, &replica.ID)
}

// waitForOpen blocks until the OPEN intent for tradeID is terminal, up
// to the configured timeout. A missing OPEN intent is fine: the master
// trade may never have been replicated (close-without-open).
func (c *Coordinator) waitForOpen(ctx context.Context, tradeID string) error {
	deadline := time.Now().Add(c.opts.OpenWaitTimeout)
	for {
		rec, err := c.ledger.Get(ctx, IntentKey(tradeID, models.EventOpen))
		if err != nil {
			return err
		}
		if rec == nil || rec.Status != models.ReplicationPending {
			return nil
		}
		if time.Now().After(deadline) {
			return ErrOpenInFlight
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.opts.OpenPollInterval):
		}
	}
}

// fanOut runs n legs with bounded parallelism, collecting failure
// summaries. Legs never cancel each other.
func (c *Coordinator) fanOut(ctx context.Context, n int, leg func(i int) (RecordKey, error)) []string {
	var mu sync.Mutex
	var failures []string

	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(c.opts.FanOutLimit)
	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error {
			key, err := leg(i)
			if err != nil {
				mu.Lock()
				failures = append(failures, fmt.Sprintf("%s: %v", key, err))
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return failures
}

// finishLeg settles a leg's final ledger state after retries. Business
// skips are recorded as applied-with-no-trade; integrity and exhausted
// transient failures are marked FAILED, the latter with an operator alert.
func (c *Coordinator) finishLeg(ctx context.Context, key RecordKey, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrBusinessSkip) {
		if mErr := c.ledger.MarkSkipped(ctx, key, err.Error()); mErr != nil {
			return mErr
		}
		c.log.WithField("key", key.String()).Info("leg skipped on business rule")
		return nil
	}
	reason := err.Error()
	if mErr := c.ledger.MarkFailed(ctx, key, reason); mErr != nil {
		return mErr
	}
	c.alerts.ReplicationFailed(ctx, key, reason)
	return err
}

// classify maps the error taxonomy onto retry behavior: business,
// integrity and config errors never get another attempt.
func (c *Coordinator) classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrBusinessSkip) || errors.Is(err, ErrIntegrity) || errors.Is(err, ErrConfig) {
		return utils.Permanent(err)
	}
	return err
}
