package replication

import (
	"testing"

	"copycontrol/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTradeEventNormalizes(t *testing.T) {
	body := []byte(`{
		"event_type": "open",
		"trade_id": "MT-100",
		"account_id": 42,
		"symbol": "btcusd",
		"side": "LONG",
		"quantity": 1.5,
		"price": 50000,
		"sequence": 3,
		"timestamp": "2026-08-01T12:00:00Z"
	}`)

	ev, err := ParseTradeEvent(body)
	require.NoError(t, err)
	assert.Equal(t, models.EventOpen, ev.Type)
	assert.Equal(t, "BTCUSD", ev.Symbol)
	assert.Equal(t, models.SideLong, ev.Side)
	assert.EqualValues(t, 3, ev.Sequence)
	assert.Zero(t, ev.MasterTraderID)
}

func TestParseTradeEventRejectsBadPayloads(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not json", `{broken`},
		{"unknown event type", `{"event_type":"SPLIT","trade_id":"MT-1","account_id":1,"side":"long","quantity":1}`},
		{"missing trade id", `{"event_type":"OPEN","account_id":1,"side":"long","quantity":1}`},
		{"missing account id", `{"event_type":"OPEN","trade_id":"MT-1","side":"long","quantity":1}`},
		{"zero quantity open", `{"event_type":"OPEN","trade_id":"MT-1","account_id":1,"side":"long","quantity":0}`},
		{"invalid side", `{"event_type":"OPEN","trade_id":"MT-1","account_id":1,"side":"sideways","quantity":1}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseTradeEvent([]byte(tt.body))
			assert.Error(t, err)
		})
	}
}

func TestParseTradeEventCloseAllowsZeroQuantity(t *testing.T) {
	body := []byte(`{"event_type":"CLOSE","trade_id":"MT-1","account_id":1,"side":"long","quantity":0,"price":100}`)
	ev, err := ParseTradeEvent(body)
	require.NoError(t, err)
	assert.Equal(t, models.EventClose, ev.Type)
}

func TestReplicaExternalIDIsDeterministic(t *testing.T) {
	assert.Equal(t, "MT-7-f201", ReplicaExternalID("MT-7", 201))
	assert.Equal(t, ReplicaExternalID("MT-7", 201), ReplicaExternalID("MT-7", 201))
	assert.NotEqual(t, ReplicaExternalID("MT-7", 201), ReplicaExternalID("MT-7", 202))
}
