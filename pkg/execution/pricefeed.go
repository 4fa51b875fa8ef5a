package execution

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

const (
	// Connection states
	StateDisconnected = "disconnected"
	StateConnecting   = "connecting"
	StateConnected    = "connected"

	// Reconnect settings
	maxReconnectAttempts = 10
	reconnectDelay       = 5 * time.Second

	// Cached ticks older than this are considered stale and the feed
	// falls back to the HTTP price endpoint.
	priceCacheTTL = 30 * time.Second
)

// PriceTick is one price update from the execution feed.
type PriceTick struct {
	Symbol    string  `json:"symbol"`
	Price     float64 `json:"price"`
	Timestamp int64   `json:"timestamp"`
}

// PriceFeed keeps a WebSocket subscription to the execution
// collaborator's tick stream and mirrors the latest price per symbol
// into Redis. Price lookups hit the cache first and fall back to the
// HTTP client when the cache is cold or stale.
type PriceFeed struct {
	wsEndpoint string
	fallback   *Client
	rdb        *redis.Client
	stopCh     chan struct{}

	mu     sync.RWMutex
	status string
	conn   *websocket.Conn
}

// NewPriceFeed builds a PriceFeed from EXECUTION_WSS_URL.
func NewPriceFeed(fallback *Client, rdb *redis.Client) *PriceFeed {
	wsEndpoint := os.Getenv("EXECUTION_WSS_URL")
	if wsEndpoint == "" {
		wsEndpoint = "ws://localhost:9100/ticks"
	}
	return &PriceFeed{
		wsEndpoint: wsEndpoint,
		fallback:   fallback,
		rdb:        rdb,
		stopCh:     make(chan struct{}),
		status:     StateDisconnected,
	}
}

// Run maintains the WebSocket connection until Stop is called or the
// context ends. It reconnects with a fixed delay and gives up after
// maxReconnectAttempts consecutive failures.
func (f *PriceFeed) Run(ctx context.Context) {
	reconnectAttempts := 0

	for {
		select {
		case <-f.stopCh:
			return
		case <-ctx.Done():
			return
		default:
		}

		f.setStatus(StateConnecting)

		c, _, err := websocket.DefaultDialer.Dial(f.wsEndpoint, nil)
		if err != nil {
			reconnectAttempts++
			log.WithFields(log.Fields{
				"endpoint": f.wsEndpoint,
				"attempt":  reconnectAttempts,
				"error":    err.Error(),
			}).Error("Failed to connect to execution tick feed")

			if reconnectAttempts >= maxReconnectAttempts {
				log.Error("Max reconnect attempts reached, price feed stopped")
				f.setStatus(StateDisconnected)
				return
			}
			time.Sleep(reconnectDelay)
			continue
		}

		f.mu.Lock()
		f.conn = c
		f.status = StateConnected
		f.mu.Unlock()
		reconnectAttempts = 0

		log.WithField("endpoint", f.wsEndpoint).Info("Connected to execution tick feed")

		f.readTicks(ctx, c)

		f.setStatus(StateDisconnected)
		c.Close()

		select {
		case <-f.stopCh:
			return
		case <-ctx.Done():
			return
		case <-time.After(reconnectDelay):
		}
	}
}

// Stop shuts the feed down. Safe to call once.
func (f *PriceFeed) Stop() {
	close(f.stopCh)
	f.mu.Lock()
	if f.conn != nil {
		f.conn.Close()
	}
	f.mu.Unlock()
}

// Status returns the current connection state.
func (f *PriceFeed) Status() string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.status
}

func (f *PriceFeed) setStatus(s string) {
	f.mu.Lock()
	f.status = s
	f.mu.Unlock()
}

func (f *PriceFeed) readTicks(ctx context.Context, c *websocket.Conn) {
	for {
		select {
		case <-f.stopCh:
			return
		case <-ctx.Done():
			return
		default:
		}

		_, message, err := c.ReadMessage()
		if err != nil {
			log.WithField("error", err.Error()).Warn("Tick feed read error, reconnecting")
			return
		}

		var tick PriceTick
		if err := json.Unmarshal(message, &tick); err != nil {
			log.WithField("error", err.Error()).Warn("Dropping unparseable tick")
			continue
		}
		if tick.Symbol == "" || tick.Price <= 0 {
			continue
		}

		f.cacheTick(ctx, tick)
	}
}

func (f *PriceFeed) cacheTick(ctx context.Context, tick PriceTick) {
	if f.rdb == nil {
		return
	}
	key := priceKey(tick.Symbol)
	if err := f.rdb.Set(ctx, key, tick.Price, priceCacheTTL).Err(); err != nil {
		log.WithFields(log.Fields{
			"symbol": tick.Symbol,
			"error":  err.Error(),
		}).Warn("Failed to cache price tick")
	}
}

// Price returns the most recent cached price for the symbol, falling
// back to the HTTP endpoint when the cache misses.
func (f *PriceFeed) Price(ctx context.Context, symbol string) (float64, error) {
	if f.rdb != nil {
		val, err := f.rdb.Get(ctx, priceKey(symbol)).Float64()
		if err == nil && val > 0 {
			return val, nil
		}
		if err != nil && err != redis.Nil {
			log.WithFields(log.Fields{
				"symbol": symbol,
				"error":  err.Error(),
			}).Warn("Price cache read failed, falling back to HTTP")
		}
	}
	if f.fallback == nil {
		return 0, fmt.Errorf("no cached price for %s and no fallback client", symbol)
	}
	return f.fallback.Price(ctx, symbol)
}

func priceKey(symbol string) string {
	return "price:" + strings.ToUpper(symbol)
}
