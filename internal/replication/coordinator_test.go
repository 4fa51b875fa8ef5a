package replication

import (
	"context"
	"fmt"
	"testing"
	"time"

	"copycontrol/internal/models"
	"copycontrol/pkg/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type engineFixture struct {
	registry    *memRegistry
	ledger      *memLedger
	trades      *memTradeStore
	commissions *memCommissionStore
	prices      *fakePrices
	equity      *fakeEquity
	wallet      *fakeWallet
	alerts      *fakeAlerter
	coord       *Coordinator
}

func testCoordinatorOptions() CoordinatorOptions {
	return CoordinatorOptions{
		FanOutLimit: 4,
		Retry: utils.RetryConfig{
			MaxAttempts:   3,
			InitialDelay:  time.Millisecond,
			MaxDelay:      5 * time.Millisecond,
			BackoffFactor: 2,
		},
		OpenWaitTimeout:  50 * time.Millisecond,
		OpenPollInterval: 5 * time.Millisecond,
	}
}

func newEngineFixture() *engineFixture {
	f := &engineFixture{
		registry:    newMemRegistry(),
		ledger:      newMemLedger(),
		trades:      newMemTradeStore(),
		commissions: newMemCommissionStore(),
		prices:      newFakePrices(),
		equity:      newFakeEquity(),
		wallet:      &fakeWallet{},
		alerts:      &fakeAlerter{},
	}
	f.registry.masters = []models.MasterTrader{
		{ID: 1, TradingAccountID: 100, DisplayName: "alpha", Status: models.MasterTraderActive},
	}
	settler := NewSettler(f.registry, f.commissions, f.wallet)
	f.coord = NewCoordinator(f.registry, f.ledger, f.trades, f.prices, f.equity, settler, f.alerts, testCoordinatorOptions())
	return f
}

func (f *engineFixture) addSubscription(sub models.CopySubscription) {
	if sub.MasterTraderID == 0 {
		sub.MasterTraderID = 1
	}
	sub.IsActive = true
	f.registry.subs = append(f.registry.subs, sub)
}

func masterEvent(evType, tradeID string, qty, price float64) TradeEvent {
	return TradeEvent{
		Type:           evType,
		TradeID:        tradeID,
		AccountID:      100,
		MasterTraderID: 1,
		Symbol:         "BTCUSD",
		Side:           models.SideLong,
		Quantity:       qty,
		Price:          price,
		Sequence:       1,
		Timestamp:      time.Now().UTC(),
	}
}

func TestOpenFanOutAppliesSizingModes(t *testing.T) {
	f := newEngineFixture()
	f.addSubscription(models.CopySubscription{FollowerAccountID: 201, SizingMode: models.SizingFixedRatio, RiskRatio: 0.5})
	f.addSubscription(models.CopySubscription{FollowerAccountID: 202, SizingMode: models.SizingFixedLot, FixedLotSize: 2})
	f.addSubscription(models.CopySubscription{FollowerAccountID: 203, SizingMode: models.SizingCapitalProportional, RiskRatio: 1})
	f.equity.balances[203] = 5000
	f.equity.balances[100] = 10000

	err := f.coord.HandleEvent(context.Background(), masterEvent(models.EventOpen, "MT-1", 10, 50000))
	require.NoError(t, err)

	replicas, err := f.trades.Replicas(context.Background(), "MT-1")
	require.NoError(t, err)
	require.Len(t, replicas, 3)

	byAccount := make(map[uint]models.Trade)
	for _, r := range replicas {
		byAccount[r.TradingAccountID] = r
	}
	assert.InDelta(t, 5, byAccount[201].Quantity, 1e-9)
	assert.InDelta(t, 2, byAccount[202].Quantity, 1e-9)
	assert.InDelta(t, 5, byAccount[203].Quantity, 1e-9)

	for _, r := range replicas {
		assert.Equal(t, models.TradeOpen, r.Status)
		assert.Equal(t, "BTCUSD", r.Symbol)
		assert.InDelta(t, 50000, r.OpenPrice, 1e-9)
		require.NotNil(t, r.OriginMasterTradeID)
		assert.Equal(t, "MT-1", *r.OriginMasterTradeID)
	}
	assert.InDelta(t, 0.5, byAccount[201].SizingRatio, 1e-9)
	assert.InDelta(t, 0.2, byAccount[202].SizingRatio, 1e-9)

	intent, err := f.ledger.Get(context.Background(), IntentKey("MT-1", models.EventOpen))
	require.NoError(t, err)
	require.NotNil(t, intent)
	assert.Equal(t, models.ReplicationApplied, intent.Status)

	leg, err := f.ledger.Get(context.Background(), RecordKey{MasterTradeID: "MT-1", EventType: models.EventOpen, FollowerAccountID: 201})
	require.NoError(t, err)
	require.NotNil(t, leg)
	assert.Equal(t, models.ReplicationApplied, leg.Status)
	require.NotNil(t, leg.FollowerTradeID)
	assert.Equal(t, byAccount[201].ID, *leg.FollowerTradeID)
}

func TestOpenReplayIsIdempotent(t *testing.T) {
	f := newEngineFixture()
	f.addSubscription(models.CopySubscription{FollowerAccountID: 201, SizingMode: models.SizingFixedRatio, RiskRatio: 1})

	ev := masterEvent(models.EventOpen, "MT-2", 3, 1800)
	require.NoError(t, f.coord.HandleEvent(context.Background(), ev))
	require.NoError(t, f.coord.HandleEvent(context.Background(), ev))
	require.NoError(t, f.coord.HandleEvent(context.Background(), ev))

	replicas, err := f.trades.Replicas(context.Background(), "MT-2")
	require.NoError(t, err)
	assert.Len(t, replicas, 1)
	assert.InDelta(t, 3, replicas[0].Quantity, 1e-9)
}

func TestOpenSkipsWhenQuantityRoundsToZero(t *testing.T) {
	f := newEngineFixture()
	f.addSubscription(models.CopySubscription{FollowerAccountID: 201, SizingMode: models.SizingFixedRatio, RiskRatio: 0.0004})

	err := f.coord.HandleEvent(context.Background(), masterEvent(models.EventOpen, "MT-3", 10, 100))
	require.NoError(t, err)

	replicas, err := f.trades.Replicas(context.Background(), "MT-3")
	require.NoError(t, err)
	assert.Empty(t, replicas)

	leg, err := f.ledger.Get(context.Background(), RecordKey{MasterTradeID: "MT-3", EventType: models.EventOpen, FollowerAccountID: 201})
	require.NoError(t, err)
	require.NotNil(t, leg)
	assert.Equal(t, models.ReplicationApplied, leg.Status)
	assert.Nil(t, leg.FollowerTradeID)
	assert.NotEmpty(t, leg.LastError)

	intent, err := f.ledger.Get(context.Background(), IntentKey("MT-3", models.EventOpen))
	require.NoError(t, err)
	assert.Equal(t, models.ReplicationApplied, intent.Status)
}

func TestOpenLegFailureIsIsolatedAndRecoverable(t *testing.T) {
	f := newEngineFixture()
	f.addSubscription(models.CopySubscription{FollowerAccountID: 201, SizingMode: models.SizingFixedRatio, RiskRatio: 1})
	f.addSubscription(models.CopySubscription{FollowerAccountID: 202, SizingMode: models.SizingFixedRatio, RiskRatio: 1})
	f.trades.failCreates[202] = 10 // outlasts every retry attempt

	ev := masterEvent(models.EventOpen, "MT-4", 5, 200)
	err := f.coord.HandleEvent(context.Background(), ev)
	require.NoError(t, err) // leg failure is recorded, not bubbled

	// The healthy follower is untouched by its neighbor's failure.
	replicas, err := f.trades.Replicas(context.Background(), "MT-4")
	require.NoError(t, err)
	require.Len(t, replicas, 1)
	assert.Equal(t, uint(201), replicas[0].TradingAccountID)

	failedLeg, err := f.ledger.Get(context.Background(), RecordKey{MasterTradeID: "MT-4", EventType: models.EventOpen, FollowerAccountID: 202})
	require.NoError(t, err)
	assert.Equal(t, models.ReplicationFailed, failedLeg.Status)
	assert.NotEmpty(t, failedLeg.LastError)
	assert.Equal(t, 1, f.alerts.count())

	intent, err := f.ledger.Get(context.Background(), IntentKey("MT-4", models.EventOpen))
	require.NoError(t, err)
	assert.Equal(t, models.ReplicationFailed, intent.Status)

	// Operator fixes the store, requeues, and only the failed leg reruns.
	f.trades.failCreates[202] = 0
	n, err := f.ledger.ResetFailed(context.Background(), "MT-4", models.EventOpen)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n) // intent plus the failed leg

	// Requeueing clears the attempt count along with the status.
	reset, err := f.ledger.Get(context.Background(), RecordKey{MasterTradeID: "MT-4", EventType: models.EventOpen, FollowerAccountID: 202})
	require.NoError(t, err)
	assert.Zero(t, reset.Attempts)
	assert.Empty(t, reset.LastError)

	require.NoError(t, f.coord.HandleEvent(context.Background(), ev))

	replicas, err = f.trades.Replicas(context.Background(), "MT-4")
	require.NoError(t, err)
	assert.Len(t, replicas, 2)

	intent, err = f.ledger.Get(context.Background(), IntentKey("MT-4", models.EventOpen))
	require.NoError(t, err)
	assert.Equal(t, models.ReplicationApplied, intent.Status)
	assert.Equal(t, 1, f.alerts.count())
}

func TestCloseSettlesCommission(t *testing.T) {
	f := newEngineFixture()
	f.addSubscription(models.CopySubscription{FollowerAccountID: 201, SizingMode: models.SizingFixedRatio, RiskRatio: 0.5, CommissionSharePct: 20})
	f.registry.setCap(30, nil)
	f.prices.prices["BTCUSD"] = 110

	require.NoError(t, f.coord.HandleEvent(context.Background(), masterEvent(models.EventOpen, "MT-5", 10, 100)))
	require.NoError(t, f.coord.HandleEvent(context.Background(), masterEvent(models.EventClose, "MT-5", 10, 110)))

	replicas, err := f.trades.Replicas(context.Background(), "MT-5")
	require.NoError(t, err)
	require.Len(t, replicas, 1)
	replica := replicas[0]
	assert.Equal(t, models.TradeClosed, replica.Status)
	require.NotNil(t, replica.ClosePrice)
	assert.InDelta(t, 110, *replica.ClosePrice, 1e-9)

	entries := f.commissions.all()
	require.Len(t, entries, 1)
	// (110-100) * 5 lots = 50 gross, 20% share = 10
	assert.InDelta(t, 50, entries[0].GrossFollowerProfit, 1e-9)
	assert.InDelta(t, 20, entries[0].CommissionPctApplied, 1e-9)
	assert.InDelta(t, 10, entries[0].CommissionAmount, 1e-9)

	credits := f.wallet.all()
	require.Len(t, credits, 1)
	assert.Equal(t, uint(1), credits[0].MasterID)
	assert.InDelta(t, 10, credits[0].Amount, 1e-9)
	assert.Equal(t, fmt.Sprintf("commission:MT-5:%d", replica.ID), credits[0].Reference)

	intent, err := f.ledger.Get(context.Background(), IntentKey("MT-5", models.EventClose))
	require.NoError(t, err)
	assert.Equal(t, models.ReplicationApplied, intent.Status)
}

func TestCloseLosingTradeWritesZeroEntryWithoutCredit(t *testing.T) {
	f := newEngineFixture()
	f.addSubscription(models.CopySubscription{FollowerAccountID: 201, SizingMode: models.SizingFixedRatio, RiskRatio: 1, CommissionSharePct: 20})
	f.registry.setCap(30, nil)
	f.prices.prices["BTCUSD"] = 90

	require.NoError(t, f.coord.HandleEvent(context.Background(), masterEvent(models.EventOpen, "MT-6", 4, 100)))
	require.NoError(t, f.coord.HandleEvent(context.Background(), masterEvent(models.EventClose, "MT-6", 4, 90)))

	entries := f.commissions.all()
	require.Len(t, entries, 1)
	assert.InDelta(t, -40, entries[0].GrossFollowerProfit, 1e-9)
	assert.Zero(t, entries[0].CommissionAmount)
	assert.Empty(t, f.wallet.all())
}

func TestCloseAppliesCommissionCapFresh(t *testing.T) {
	f := newEngineFixture()
	f.addSubscription(models.CopySubscription{FollowerAccountID: 201, SizingMode: models.SizingFixedRatio, RiskRatio: 1, CommissionSharePct: 25})
	f.prices.prices["BTCUSD"] = 120

	require.NoError(t, f.coord.HandleEvent(context.Background(), masterEvent(models.EventOpen, "MT-7", 1, 100)))

	// Cap lowered after the subscription was created: the lower value wins.
	f.registry.setCap(10, nil)
	require.NoError(t, f.coord.HandleEvent(context.Background(), masterEvent(models.EventClose, "MT-7", 1, 120)))

	entries := f.commissions.all()
	require.Len(t, entries, 1)
	assert.InDelta(t, 10, entries[0].CommissionPctApplied, 1e-9)
	assert.InDelta(t, 2, entries[0].CommissionAmount, 1e-9)
}

func TestCloseParksWhileOpenStillPending(t *testing.T) {
	f := newEngineFixture()
	f.addSubscription(models.CopySubscription{FollowerAccountID: 201, SizingMode: models.SizingFixedRatio, RiskRatio: 1})

	// Simulate an OPEN stuck mid-flight on another worker.
	_, err := f.ledger.EnsurePending(context.Background(), IntentKey("MT-8", models.EventOpen))
	require.NoError(t, err)

	err = f.coord.HandleEvent(context.Background(), masterEvent(models.EventClose, "MT-8", 1, 100))
	require.NoError(t, err)

	closeIntent, err := f.ledger.Get(context.Background(), IntentKey("MT-8", models.EventClose))
	require.NoError(t, err)
	require.NotNil(t, closeIntent)
	assert.Equal(t, models.ReplicationPending, closeIntent.Status)
	assert.Empty(t, f.commissions.all())
}

func TestCloseDefersSettlementOnMissingCap(t *testing.T) {
	f := newEngineFixture()
	f.addSubscription(models.CopySubscription{FollowerAccountID: 201, SizingMode: models.SizingFixedRatio, RiskRatio: 1, CommissionSharePct: 20})
	f.prices.prices["BTCUSD"] = 110

	require.NoError(t, f.coord.HandleEvent(context.Background(), masterEvent(models.EventOpen, "MT-9", 2, 100)))

	f.registry.setCap(0, fmt.Errorf("%w: max_commission_percentage not configured", ErrConfig))
	require.NoError(t, f.coord.HandleEvent(context.Background(), masterEvent(models.EventClose, "MT-9", 2, 110)))

	// The position is closed, but settlement waited for valid config.
	replicas, err := f.trades.Replicas(context.Background(), "MT-9")
	require.NoError(t, err)
	require.Len(t, replicas, 1)
	assert.Equal(t, models.TradeClosed, replicas[0].Status)
	assert.Empty(t, f.commissions.all())
	assert.Zero(t, f.alerts.count())

	leg, err := f.ledger.Get(context.Background(), RecordKey{MasterTradeID: "MT-9", EventType: models.EventClose, FollowerAccountID: 201})
	require.NoError(t, err)
	assert.Equal(t, models.ReplicationPending, leg.Status)

	intent, err := f.ledger.Get(context.Background(), IntentKey("MT-9", models.EventClose))
	require.NoError(t, err)
	assert.Equal(t, models.ReplicationPending, intent.Status)

	// Config restored: the re-driven close settles without re-closing.
	f.registry.setCap(30, nil)
	require.NoError(t, f.coord.HandleEvent(context.Background(), masterEvent(models.EventClose, "MT-9", 2, 110)))

	entries := f.commissions.all()
	require.Len(t, entries, 1)
	assert.InDelta(t, 4, entries[0].CommissionAmount, 1e-9) // (110-100)*2*20%

	intent, err = f.ledger.Get(context.Background(), IntentKey("MT-9", models.EventClose))
	require.NoError(t, err)
	assert.Equal(t, models.ReplicationApplied, intent.Status)
}

func TestCloseReplayDoesNotSettleTwice(t *testing.T) {
	f := newEngineFixture()
	f.addSubscription(models.CopySubscription{FollowerAccountID: 201, SizingMode: models.SizingFixedRatio, RiskRatio: 1, CommissionSharePct: 20})
	f.registry.setCap(30, nil)
	f.prices.prices["BTCUSD"] = 105

	require.NoError(t, f.coord.HandleEvent(context.Background(), masterEvent(models.EventOpen, "MT-10", 1, 100)))
	closeEv := masterEvent(models.EventClose, "MT-10", 1, 105)
	require.NoError(t, f.coord.HandleEvent(context.Background(), closeEv))
	require.NoError(t, f.coord.HandleEvent(context.Background(), closeEv))

	assert.Len(t, f.commissions.all(), 1)
	assert.Len(t, f.wallet.all(), 1)
}

func TestCloseRetrySettlesAtStoredClosePrice(t *testing.T) {
	f := newEngineFixture()
	f.addSubscription(models.CopySubscription{FollowerAccountID: 201, SizingMode: models.SizingFixedRatio, RiskRatio: 1, CommissionSharePct: 20})
	f.registry.setCap(30, nil)

	require.NoError(t, f.coord.HandleEvent(context.Background(), masterEvent(models.EventOpen, "MT-15", 1, 100)))

	// The market keeps moving between attempts; the commission store
	// fails once after the trade row was already closed at 110.
	f.prices.seq = []float64{110, 150}
	f.commissions.failures = 1

	closeEv := masterEvent(models.EventClose, "MT-15", 1, 0)
	require.NoError(t, f.coord.HandleEvent(context.Background(), closeEv))

	replicas, err := f.trades.Replicas(context.Background(), "MT-15")
	require.NoError(t, err)
	require.Len(t, replicas, 1)
	require.NotNil(t, replicas[0].ClosePrice)
	assert.InDelta(t, 110, *replicas[0].ClosePrice, 1e-9)

	// Settlement reads the persisted close price, not a fresh quote.
	entries := f.commissions.all()
	require.Len(t, entries, 1)
	assert.InDelta(t, 10, entries[0].GrossFollowerProfit, 1e-9)
	assert.InDelta(t, 2, entries[0].CommissionAmount, 1e-9)

	// The retried credit reuses the idempotency reference.
	credits := f.wallet.all()
	require.NotEmpty(t, credits)
	for _, credit := range credits {
		assert.InDelta(t, 2, credit.Amount, 1e-9)
		assert.Equal(t, credits[0].Reference, credit.Reference)
	}

	intent, err := f.ledger.Get(context.Background(), IntentKey("MT-15", models.EventClose))
	require.NoError(t, err)
	assert.Equal(t, models.ReplicationApplied, intent.Status)
}

func TestCloseRerunsForReplicasOpenedAfterApply(t *testing.T) {
	f := newEngineFixture()
	f.addSubscription(models.CopySubscription{FollowerAccountID: 201, SizingMode: models.SizingFixedRatio, RiskRatio: 1, CommissionSharePct: 20})
	f.registry.setCap(30, nil)

	// Every OPEN leg fails, so the CLOSE applies over zero replicas.
	f.trades.failCreates[201] = 10
	openEv := masterEvent(models.EventOpen, "MT-16", 2, 100)
	require.NoError(t, f.coord.HandleEvent(context.Background(), openEv))
	require.NoError(t, f.coord.HandleEvent(context.Background(), masterEvent(models.EventClose, "MT-16", 2, 110)))

	intent, err := f.ledger.Get(context.Background(), IntentKey("MT-16", models.EventClose))
	require.NoError(t, err)
	assert.Equal(t, models.ReplicationApplied, intent.Status)

	// Operator fixes the store and requeues the OPEN; a replica now
	// exists for a trade whose CLOSE already applied.
	f.trades.failCreates[201] = 0
	_, err = f.ledger.ResetFailed(context.Background(), "MT-16", models.EventOpen)
	require.NoError(t, err)
	require.NoError(t, f.coord.HandleEvent(context.Background(), openEv))

	require.NoError(t, f.coord.HandleEvent(context.Background(), masterEvent(models.EventClose, "MT-16", 2, 110)))

	replicas, err := f.trades.Replicas(context.Background(), "MT-16")
	require.NoError(t, err)
	require.Len(t, replicas, 1)
	assert.Equal(t, models.TradeClosed, replicas[0].Status)

	entries := f.commissions.all()
	require.Len(t, entries, 1)
	assert.InDelta(t, 4, entries[0].CommissionAmount, 1e-9) // (110-100)*2*20%
}

func TestModifyScalesByPersistedRatio(t *testing.T) {
	f := newEngineFixture()
	f.addSubscription(models.CopySubscription{FollowerAccountID: 201, SizingMode: models.SizingFixedRatio, RiskRatio: 0.5})

	require.NoError(t, f.coord.HandleEvent(context.Background(), masterEvent(models.EventOpen, "MT-11", 10, 100)))

	require.NoError(t, f.coord.HandleEvent(context.Background(), masterEvent(models.EventModify, "MT-11", 20, 100)))
	replicas, err := f.trades.Replicas(context.Background(), "MT-11")
	require.NoError(t, err)
	require.Len(t, replicas, 1)
	assert.InDelta(t, 10, replicas[0].Quantity, 1e-9)

	// Scale back down; the same ledger key serves every modify.
	require.NoError(t, f.coord.HandleEvent(context.Background(), masterEvent(models.EventModify, "MT-11", 4, 100)))
	replicas, err = f.trades.Replicas(context.Background(), "MT-11")
	require.NoError(t, err)
	assert.InDelta(t, 2, replicas[0].Quantity, 1e-9)

	// Replay of the last modify is a no-op.
	require.NoError(t, f.coord.HandleEvent(context.Background(), masterEvent(models.EventModify, "MT-11", 4, 100)))
	replicas, err = f.trades.Replicas(context.Background(), "MT-11")
	require.NoError(t, err)
	assert.InDelta(t, 2, replicas[0].Quantity, 1e-9)
}

func TestModifyLeavesQuantityWhenAdjustedRoundsToZero(t *testing.T) {
	f := newEngineFixture()
	f.addSubscription(models.CopySubscription{FollowerAccountID: 201, SizingMode: models.SizingFixedRatio, RiskRatio: 0.5})

	require.NoError(t, f.coord.HandleEvent(context.Background(), masterEvent(models.EventOpen, "MT-12", 10, 100)))
	require.NoError(t, f.coord.HandleEvent(context.Background(), masterEvent(models.EventModify, "MT-12", 0.01, 100)))

	replicas, err := f.trades.Replicas(context.Background(), "MT-12")
	require.NoError(t, err)
	require.Len(t, replicas, 1)
	assert.InDelta(t, 5, replicas[0].Quantity, 1e-9)
}

func TestCloseWithoutReplicasApplies(t *testing.T) {
	f := newEngineFixture()

	err := f.coord.HandleEvent(context.Background(), masterEvent(models.EventClose, "MT-13", 1, 100))
	require.NoError(t, err)

	intent, err := f.ledger.Get(context.Background(), IntentKey("MT-13", models.EventClose))
	require.NoError(t, err)
	assert.Equal(t, models.ReplicationApplied, intent.Status)
}

func TestHandleEventRejectsUnresolvedMaster(t *testing.T) {
	f := newEngineFixture()
	ev := masterEvent(models.EventOpen, "MT-14", 1, 100)
	ev.MasterTraderID = 0

	err := f.coord.HandleEvent(context.Background(), ev)
	assert.Error(t, err)
}
