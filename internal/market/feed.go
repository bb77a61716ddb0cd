// Package market maintains a live price snapshot from the exchange
// miniTicker WebSocket stream.
package market

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"sync"
	"time"

	"cryptofolio/config"
	"cryptofolio/internal/cache"
	"cryptofolio/internal/events"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// PriceUpdate is a single asset price observation
type PriceUpdate struct {
	AssetID   string    `json:"asset_id"`
	Symbol    string    `json:"symbol"`
	Price     float64   `json:"price"`
	UpdatedAt time.Time `json:"updated_at"`
}

// miniTickerEvent is the wire format of a combined-stream miniTicker message
type miniTickerEvent struct {
	Stream string `json:"stream"`
	Data   struct {
		EventType string `json:"e"`
		EventTime int64  `json:"E"`
		Symbol    string `json:"s"`
		Close     string `json:"c"`
	} `json:"data"`
}

// Feed streams live prices and keeps an in-memory snapshot plus a Redis
// copy for other processes
type Feed struct {
	mu sync.RWMutex

	config   config.MarketConfig
	cache    *cache.CacheService
	eventBus *events.EventBus
	logger   zerolog.Logger

	wsConn     *websocket.Conn
	isRunning  bool
	stopChan   chan struct{}
	reconnects int

	prices map[string]PriceUpdate
}

// NewFeed creates a market data feed
func NewFeed(cfg config.MarketConfig, cacheService *cache.CacheService, eventBus *events.EventBus, logger zerolog.Logger) *Feed {
	return &Feed{
		config:   cfg,
		cache:    cacheService,
		eventBus: eventBus,
		logger:   logger.With().Str("component", "market-feed").Logger(),
		stopChan: make(chan struct{}),
		prices:   make(map[string]PriceUpdate),
	}
}

// Start begins streaming prices
func (f *Feed) Start() error {
	f.mu.Lock()
	if f.isRunning {
		f.mu.Unlock()
		return nil
	}
	f.isRunning = true
	f.mu.Unlock()

	go f.connect()

	f.logger.Info().Strs("symbols", f.config.Symbols).Msg("market feed started")
	return nil
}

// Stop stops the feed
func (f *Feed) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.isRunning {
		return
	}

	f.isRunning = false
	close(f.stopChan)

	if f.wsConn != nil {
		f.wsConn.Close()
	}

	f.logger.Info().Msg("market feed stopped")
}

// IsRunning returns true if the feed is running
func (f *Feed) IsRunning() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.isRunning
}

// GetPrice returns the latest price for an asset, if seen
func (f *Feed) GetPrice(assetID string) (PriceUpdate, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	p, ok := f.prices[strings.ToUpper(assetID)]
	return p, ok
}

// Snapshot returns a copy of all latest prices
func (f *Feed) Snapshot() map[string]PriceUpdate {
	f.mu.RLock()
	defer f.mu.RUnlock()

	result := make(map[string]PriceUpdate, len(f.prices))
	for k, v := range f.prices {
		result[k] = v
	}
	return result
}

// streamURL builds the combined miniTicker stream URL for the configured
// symbols
func (f *Feed) streamURL() string {
	streams := make([]string, 0, len(f.config.Symbols))
	for _, symbol := range f.config.Symbols {
		streams = append(streams, strings.ToLower(symbol)+"@miniTicker")
	}
	return f.config.StreamURL + "/stream?streams=" + strings.Join(streams, "/")
}

// connect establishes the WebSocket connection with exponential backoff
func (f *Feed) connect() {
	wsURL := f.streamURL()
	backoff := time.Second

	for {
		f.mu.RLock()
		if !f.isRunning {
			f.mu.RUnlock()
			return
		}
		f.mu.RUnlock()

		conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
		if err != nil {
			f.logger.Warn().Err(err).Dur("retry_in", backoff).Msg("connection failed")
			select {
			case <-f.stopChan:
				return
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > time.Minute {
				backoff = time.Minute
			}
			f.mu.Lock()
			f.reconnects++
			f.mu.Unlock()
			continue
		}

		f.mu.Lock()
		f.wsConn = conn
		f.mu.Unlock()
		backoff = time.Second

		f.logger.Info().Msg("connected to price stream")

		f.readLoop(conn)

		f.mu.RLock()
		isRunning := f.isRunning
		f.mu.RUnlock()

		if !isRunning {
			return
		}

		f.logger.Warn().Msg("connection lost, reconnecting")
		select {
		case <-f.stopChan:
			return
		case <-time.After(3 * time.Second):
		}
	}
}

// readLoop reads messages from the WebSocket until the connection drops
func (f *Feed) readLoop(conn *websocket.Conn) {
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				f.logger.Info().Msg("connection closed normally")
			} else {
				f.logger.Warn().Err(err).Msg("read error")
			}
			return
		}

		f.handleMessage(message)
	}
}

// handleMessage processes one miniTicker message
func (f *Feed) handleMessage(message []byte) {
	var event miniTickerEvent
	if err := json.Unmarshal(message, &event); err != nil {
		f.logger.Warn().Err(err).Msg("failed to parse stream message")
		return
	}
	if event.Data.EventType != "24hrMiniTicker" {
		return
	}

	price, err := parsePrice(event.Data.Close)
	if err != nil {
		f.logger.Warn().Str("symbol", event.Data.Symbol).Str("close", event.Data.Close).Msg("unparseable price")
		return
	}

	update := PriceUpdate{
		AssetID:   assetIDFromSymbol(event.Data.Symbol),
		Symbol:    event.Data.Symbol,
		Price:     price,
		UpdatedAt: time.UnixMilli(event.Data.EventTime).UTC(),
	}

	f.mu.Lock()
	f.prices[update.AssetID] = update
	f.mu.Unlock()

	f.publish(update)
}

// publish writes the update to Redis and the event bus
func (f *Feed) publish(update PriceUpdate) {
	if f.cache != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := f.cache.SetJSON(ctx, cache.PriceKey(update.AssetID), update, cache.DefaultPriceTTL); err != nil {
			// Cache is best-effort; the in-memory snapshot is the source
			f.logger.Debug().Err(err).Str("asset", update.AssetID).Msg("price cache write failed")
		}
	}

	if f.eventBus != nil {
		f.eventBus.Publish(events.Event{
			Type:      events.EventPriceUpdate,
			Timestamp: update.UpdatedAt,
			Data: map[string]interface{}{
				"asset_id": update.AssetID,
				"symbol":   update.Symbol,
				"price":    update.Price,
			},
		})
	}
}

func parsePrice(s string) (float64, error) {
	return strconv.ParseFloat(s, 64)
}

// assetIDFromSymbol strips the quote currency from a trading pair symbol,
// e.g. BTCUSDT -> BTC
func assetIDFromSymbol(symbol string) string {
	upper := strings.ToUpper(symbol)
	for _, quote := range []string{"USDT", "USDC", "BUSD", "USD"} {
		if strings.HasSuffix(upper, quote) && len(upper) > len(quote) {
			return strings.TrimSuffix(upper, quote)
		}
	}
	return upper
}
