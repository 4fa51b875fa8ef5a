package replication

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"copycontrol/internal/models"
)

// TradeEvent is a normalized master trade lifecycle event as handed to
// the coordinator. MasterTraderID is resolved by the detector from the
// event's trading account.
type TradeEvent struct {
	Type           string    `json:"event_type"`
	TradeID        string    `json:"trade_id"`
	AccountID      uint      `json:"account_id"`
	MasterTraderID uint      `json:"-"`
	Symbol         string    `json:"symbol"`
	Side           string    `json:"side"`
	Quantity       float64   `json:"quantity"`
	Price          float64   `json:"price"`
	Sequence       int64     `json:"sequence"`
	Timestamp      time.Time `json:"timestamp"`
}

// ParseTradeEvent decodes a raw queue message and normalizes it. Symbols
// compare case-insensitively everywhere, so they are upper-cased once here.
func ParseTradeEvent(body []byte) (TradeEvent, error) {
	var ev TradeEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return ev, fmt.Errorf("decode trade event: %w", err)
	}

	ev.Type = strings.ToUpper(strings.TrimSpace(ev.Type))
	ev.Symbol = strings.ToUpper(strings.TrimSpace(ev.Symbol))
	ev.Side = strings.ToLower(strings.TrimSpace(ev.Side))

	switch ev.Type {
	case models.EventOpen, models.EventClose, models.EventModify:
	default:
		return ev, fmt.Errorf("unknown event type %q", ev.Type)
	}
	if ev.TradeID == "" {
		return ev, fmt.Errorf("trade event missing trade_id")
	}
	if ev.AccountID == 0 {
		return ev, fmt.Errorf("trade event missing account_id")
	}
	if ev.Type != models.EventClose && ev.Quantity <= 0 {
		return ev, fmt.Errorf("trade event %s has non-positive quantity", ev.TradeID)
	}
	if ev.Side != models.SideLong && ev.Side != models.SideShort {
		return ev, fmt.Errorf("trade event %s has invalid side %q", ev.TradeID, ev.Side)
	}
	return ev, nil
}
