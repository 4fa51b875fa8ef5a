package replication

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"copycontrol/internal/models"
)

// In-memory collaborators for engine tests. They mirror the semantics of
// the gorm-backed implementations, including the unique-key conflict
// behavior the idempotency guarantees lean on.

type memLedger struct {
	mu      sync.Mutex
	records map[RecordKey]*models.ReplicationRecord
	nextID  uint
}

func newMemLedger() *memLedger {
	return &memLedger{records: make(map[RecordKey]*models.ReplicationRecord)}
}

func (l *memLedger) Get(ctx context.Context, key RecordKey) (*models.ReplicationRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	rec, ok := l.records[key]
	if !ok {
		return nil, nil
	}
	cp := *rec
	return &cp, nil
}

func (l *memLedger) EnsurePending(ctx context.Context, key RecordKey) (*models.ReplicationRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	rec, ok := l.records[key]
	if !ok {
		l.nextID++
		rec = &models.ReplicationRecord{
			ID:                l.nextID,
			MasterTradeID:     key.MasterTradeID,
			EventType:         key.EventType,
			FollowerAccountID: key.FollowerAccountID,
			Status:            models.ReplicationPending,
			CreatedAt:         time.Now().UTC(),
		}
		l.records[key] = rec
	}
	cp := *rec
	return &cp, nil
}

func (l *memLedger) MarkApplied(ctx context.Context, key RecordKey, followerTradeID *uint) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	rec, ok := l.records[key]
	if !ok {
		return fmt.Errorf("ledger record %s missing", key)
	}
	now := time.Now().UTC()
	rec.Status = models.ReplicationApplied
	rec.AppliedAt = &now
	if followerTradeID != nil {
		id := *followerTradeID
		rec.FollowerTradeID = &id
	}
	return nil
}

func (l *memLedger) MarkSkipped(ctx context.Context, key RecordKey, reason string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	rec, ok := l.records[key]
	if !ok {
		return fmt.Errorf("ledger record %s missing", key)
	}
	now := time.Now().UTC()
	rec.Status = models.ReplicationApplied
	rec.AppliedAt = &now
	rec.LastError = reason
	return nil
}

func (l *memLedger) MarkFailed(ctx context.Context, key RecordKey, reason string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	rec, ok := l.records[key]
	if !ok {
		return fmt.Errorf("ledger record %s missing", key)
	}
	rec.Status = models.ReplicationFailed
	rec.LastError = reason
	return nil
}

func (l *memLedger) RecordAttempt(ctx context.Context, key RecordKey, reason string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if rec, ok := l.records[key]; ok {
		rec.Attempts++
		rec.LastError = reason
	}
	return nil
}

func (l *memLedger) PendingIntents(ctx context.Context, olderThan time.Duration) ([]models.ReplicationRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	cutoff := time.Now().UTC().Add(-olderThan)
	var out []models.ReplicationRecord
	for _, rec := range l.records {
		if rec.FollowerAccountID == 0 && rec.Status == models.ReplicationPending && rec.CreatedAt.Before(cutoff) {
			out = append(out, *rec)
		}
	}
	return out, nil
}

func (l *memLedger) ResetFailed(ctx context.Context, masterTradeID, eventType string) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var n int64
	for _, rec := range l.records {
		if rec.MasterTradeID == masterTradeID && rec.EventType == eventType && rec.Status == models.ReplicationFailed {
			rec.Status = models.ReplicationPending
			rec.Attempts = 0
			rec.LastError = ""
			n++
		}
	}
	return n, nil
}

// backdateIntent ages a record so PendingIntents picks it up.
func (l *memLedger) backdateIntent(key RecordKey, age time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if rec, ok := l.records[key]; ok {
		rec.CreatedAt = time.Now().UTC().Add(-age)
	}
}

type memTradeStore struct {
	mu     sync.Mutex
	trades map[string]*models.Trade
	nextID uint

	// failCreates[account] makes CreateReplica fail that many times for
	// the follower account, simulating transient store errors.
	failCreates map[uint]int
}

func newMemTradeStore() *memTradeStore {
	return &memTradeStore{
		trades:      make(map[string]*models.Trade),
		failCreates: make(map[uint]int),
	}
}

func (s *memTradeStore) put(t models.Trade) *models.Trade {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	t.ID = s.nextID
	s.trades[t.ExternalID] = &t
	return &t
}

func (s *memTradeStore) ByExternalID(ctx context.Context, externalID string) (*models.Trade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.trades[externalID]
	if !ok {
		return nil, nil
	}
	cp := *t
	return &cp, nil
}

func (s *memTradeStore) CreateReplica(ctx context.Context, trade *models.Trade) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n := s.failCreates[trade.TradingAccountID]; n > 0 {
		s.failCreates[trade.TradingAccountID] = n - 1
		return fmt.Errorf("simulated store error for account %d", trade.TradingAccountID)
	}
	if existing, ok := s.trades[trade.ExternalID]; ok {
		*trade = *existing
		return nil
	}
	s.nextID++
	trade.ID = s.nextID
	cp := *trade
	s.trades[trade.ExternalID] = &cp
	return nil
}

func (s *memTradeStore) Replicas(ctx context.Context, masterTradeID string) ([]models.Trade, error) {
	return s.filter(func(t *models.Trade) bool {
		return t.OriginMasterTradeID != nil && *t.OriginMasterTradeID == masterTradeID
	}), nil
}

func (s *memTradeStore) OpenReplicas(ctx context.Context, masterTradeID string) ([]models.Trade, error) {
	return s.filter(func(t *models.Trade) bool {
		return t.OriginMasterTradeID != nil && *t.OriginMasterTradeID == masterTradeID && t.Status == models.TradeOpen
	}), nil
}

func (s *memTradeStore) filter(keep func(*models.Trade) bool) []models.Trade {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Trade
	for _, t := range s.trades {
		if keep(t) {
			out = append(out, *t)
		}
	}
	return out
}

func (s *memTradeStore) Close(ctx context.Context, tradeID uint, price float64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.trades {
		if t.ID == tradeID && t.Status == models.TradeOpen {
			t.Status = models.TradeClosed
			t.ClosePrice = &price
			t.ClosedAt = &at
		}
	}
	return nil
}

func (s *memTradeStore) UpdateQuantity(ctx context.Context, tradeID uint, quantity float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.trades {
		if t.ID == tradeID && t.Status == models.TradeOpen {
			t.Quantity = quantity
		}
	}
	return nil
}

func (s *memTradeStore) ClosedMasterTradesWithOpenReplicas(ctx context.Context) ([]models.Trade, error) {
	openOrigins := make(map[string]bool)
	for _, t := range s.filter(func(t *models.Trade) bool {
		return t.OriginMasterTradeID != nil && t.Status == models.TradeOpen
	}) {
		openOrigins[*t.OriginMasterTradeID] = true
	}
	return s.filter(func(t *models.Trade) bool {
		return t.OriginMasterTradeID == nil && t.Status == models.TradeClosed && openOrigins[t.ExternalID]
	}), nil
}

type memCommissionStore struct {
	mu      sync.Mutex
	entries map[string]models.CommissionEntry

	// failures makes Create return a transient error that many times.
	failures int
}

func newMemCommissionStore() *memCommissionStore {
	return &memCommissionStore{entries: make(map[string]models.CommissionEntry)}
}

func (s *memCommissionStore) Create(ctx context.Context, entry *models.CommissionEntry) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failures > 0 {
		s.failures--
		return false, fmt.Errorf("simulated commission store error")
	}
	key := fmt.Sprintf("%s/%d", entry.MasterTradeID, entry.FollowerTradeID)
	if _, ok := s.entries[key]; ok {
		return false, nil
	}
	entry.ID = uint(len(s.entries) + 1)
	s.entries[key] = *entry
	return true, nil
}

func (s *memCommissionStore) all() []models.CommissionEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.CommissionEntry
	for _, e := range s.entries {
		out = append(out, e)
	}
	return out
}

type memRegistry struct {
	mu      sync.Mutex
	subs    []models.CopySubscription
	masters []models.MasterTrader
	minIncs map[string]float64
	capPct  float64
	capErr  error
}

func newMemRegistry() *memRegistry {
	return &memRegistry{minIncs: make(map[string]float64), capPct: 30}
}

func (r *memRegistry) ActiveSubscriptions(ctx context.Context, masterTraderID uint) ([]models.CopySubscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.CopySubscription
	for _, s := range r.subs {
		if s.MasterTraderID == masterTraderID && s.IsActive {
			out = append(out, s)
		}
	}
	return out, nil
}

func (r *memRegistry) SubscriptionFor(ctx context.Context, followerAccountID, masterTraderID uint) (*models.CopySubscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.subs {
		if s.FollowerAccountID == followerAccountID && s.MasterTraderID == masterTraderID {
			cp := s
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *memRegistry) MasterByAccount(ctx context.Context, tradingAccountID uint) (*models.MasterTrader, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.masters {
		if m.TradingAccountID == tradingAccountID {
			cp := m
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *memRegistry) MasterByID(ctx context.Context, masterTraderID uint) (*models.MasterTrader, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.masters {
		if m.ID == masterTraderID {
			cp := m
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *memRegistry) MinIncrement(ctx context.Context, symbol string) (float64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if inc, ok := r.minIncs[strings.ToUpper(symbol)]; ok {
		return inc, nil
	}
	return DefaultMinIncrement, nil
}

func (r *memRegistry) MaxCommissionPct(ctx context.Context) (float64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.capErr != nil {
		return 0, r.capErr
	}
	return r.capPct, nil
}

func (r *memRegistry) setCap(pct float64, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.capPct = pct
	r.capErr = err
}

type fakePrices struct {
	mu     sync.Mutex
	prices map[string]float64
	err    error

	// seq, when set, serves one price per call before the map is consulted.
	seq []float64
}

func newFakePrices() *fakePrices {
	return &fakePrices{prices: make(map[string]float64)}
}

func (p *fakePrices) Price(ctx context.Context, symbol string) (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return 0, p.err
	}
	if len(p.seq) > 0 {
		price := p.seq[0]
		p.seq = p.seq[1:]
		return price, nil
	}
	price, ok := p.prices[strings.ToUpper(symbol)]
	if !ok {
		return 0, fmt.Errorf("no price for %s", symbol)
	}
	return price, nil
}

type fakeEquity struct {
	mu       sync.Mutex
	balances map[uint]float64
}

func newFakeEquity() *fakeEquity {
	return &fakeEquity{balances: make(map[uint]float64)}
}

func (e *fakeEquity) Equity(ctx context.Context, tradingAccountID uint) (float64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.balances[tradingAccountID], nil
}

type walletCredit struct {
	MasterID  uint
	Amount    float64
	Reference string
}

type fakeWallet struct {
	mu      sync.Mutex
	credits []walletCredit
}

func (w *fakeWallet) Credit(ctx context.Context, masterID uint, amount float64, reference string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.credits = append(w.credits, walletCredit{MasterID: masterID, Amount: amount, Reference: reference})
	return nil
}

func (w *fakeWallet) all() []walletCredit {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]walletCredit(nil), w.credits...)
}

type fakeAlerter struct {
	mu   sync.Mutex
	keys []RecordKey
}

func (a *fakeAlerter) ReplicationFailed(ctx context.Context, key RecordKey, reason string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.keys = append(a.keys, key)
}

func (a *fakeAlerter) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.keys)
}

type memCursorStore struct {
	mu      sync.Mutex
	cursors map[uint]*models.EventCursor
}

func newMemCursorStore() *memCursorStore {
	return &memCursorStore{cursors: make(map[uint]*models.EventCursor)}
}

func (s *memCursorStore) Get(ctx context.Context, masterAccountID uint) (*models.EventCursor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.cursors[masterAccountID]
	if !ok {
		return nil, nil
	}
	cp := *cur
	return &cp, nil
}

func (s *memCursorStore) Advance(ctx context.Context, masterAccountID uint, sequence int64, eventAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.cursors[masterAccountID]
	if !ok {
		s.cursors[masterAccountID] = &models.EventCursor{
			MasterAccountID: masterAccountID,
			LastSequence:    sequence,
			LastEventAt:     eventAt,
		}
		return nil
	}
	if sequence > cur.LastSequence {
		cur.LastSequence = sequence
	}
	cur.LastEventAt = eventAt
	return nil
}
