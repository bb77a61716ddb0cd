package market

import (
	"testing"
	"time"

	"cryptofolio/config"
	"cryptofolio/internal/events"

	"github.com/rs/zerolog"
)

func testFeed(symbols ...string) *Feed {
	cfg := config.MarketConfig{
		StreamURL: "wss://stream.example.com:9443",
		Symbols:   symbols,
	}
	return NewFeed(cfg, nil, nil, zerolog.Nop())
}

// ============================================================================
// TEST: Symbol handling
// ============================================================================

func TestAssetIDFromSymbol(t *testing.T) {
	cases := []struct {
		symbol string
		want   string
	}{
		{symbol: "BTCUSDT", want: "BTC"},
		{symbol: "ETHUSDC", want: "ETH"},
		{symbol: "ADABUSD", want: "ADA"},
		{symbol: "SOLUSD", want: "SOL"},
		{symbol: "btcusdt", want: "BTC"},
		// No recognized quote suffix passes through unchanged
		{symbol: "BTCETH", want: "BTCETH"},
		// Symbol that is only the quote currency stays intact
		{symbol: "USDT", want: "USDT"},
	}

	for _, tc := range cases {
		if got := assetIDFromSymbol(tc.symbol); got != tc.want {
			t.Errorf("assetIDFromSymbol(%q) = %q, want %q", tc.symbol, got, tc.want)
		}
	}
}

func TestStreamURL(t *testing.T) {
	feed := testFeed("BTCUSDT", "ETHUSDT")

	want := "wss://stream.example.com:9443/stream?streams=btcusdt@miniTicker/ethusdt@miniTicker"
	if got := feed.streamURL(); got != want {
		t.Errorf("streamURL() = %q, want %q", got, want)
	}
}

// ============================================================================
// TEST: Message handling
// ============================================================================

func TestHandleMessage_UpdatesSnapshot(t *testing.T) {
	feed := testFeed("BTCUSDT")

	msg := []byte(`{"stream":"btcusdt@miniTicker","data":{"e":"24hrMiniTicker","E":1718000000000,"s":"BTCUSDT","c":"67890.12"}}`)
	feed.handleMessage(msg)

	price, ok := feed.GetPrice("BTC")
	if !ok {
		t.Fatal("Expected BTC price after miniTicker message")
	}
	if price.Price != 67890.12 {
		t.Errorf("Expected price 67890.12, got %f", price.Price)
	}
	if price.Symbol != "BTCUSDT" {
		t.Errorf("Expected symbol BTCUSDT, got %s", price.Symbol)
	}
	if !price.UpdatedAt.Equal(time.UnixMilli(1718000000000).UTC()) {
		t.Errorf("Unexpected update time %v", price.UpdatedAt)
	}
}

func TestHandleMessage_IgnoresOtherEventTypes(t *testing.T) {
	feed := testFeed("BTCUSDT")

	feed.handleMessage([]byte(`{"stream":"btcusdt@trade","data":{"e":"trade","s":"BTCUSDT","c":"100"}}`))
	if _, ok := feed.GetPrice("BTC"); ok {
		t.Error("Expected non-miniTicker events to be ignored")
	}
}

func TestHandleMessage_IgnoresMalformedInput(t *testing.T) {
	feed := testFeed("BTCUSDT")

	feed.handleMessage([]byte(`not json`))
	feed.handleMessage([]byte(`{"stream":"btcusdt@miniTicker","data":{"e":"24hrMiniTicker","s":"BTCUSDT","c":"not-a-number"}}`))

	if len(feed.Snapshot()) != 0 {
		t.Error("Expected malformed messages to leave the snapshot empty")
	}
}

func TestHandleMessage_PublishesPriceEvent(t *testing.T) {
	bus := events.NewEventBus()
	var got []events.Event
	bus.Subscribe(events.EventPriceUpdate, func(e events.Event) {
		got = append(got, e)
	})

	feed := NewFeed(config.MarketConfig{Symbols: []string{"ETHUSDT"}}, nil, bus, zerolog.Nop())
	feed.handleMessage([]byte(`{"stream":"ethusdt@miniTicker","data":{"e":"24hrMiniTicker","E":1718000000000,"s":"ETHUSDT","c":"3500.5"}}`))

	if len(got) != 1 {
		t.Fatalf("Expected 1 price event, got %d", len(got))
	}
	if got[0].Data["asset_id"] != "ETH" {
		t.Errorf("Expected asset_id ETH, got %v", got[0].Data["asset_id"])
	}
	if got[0].Data["price"] != 3500.5 {
		t.Errorf("Expected price 3500.5, got %v", got[0].Data["price"])
	}
}

func TestSnapshotIsACopy(t *testing.T) {
	feed := testFeed("BTCUSDT")
	feed.handleMessage([]byte(`{"stream":"btcusdt@miniTicker","data":{"e":"24hrMiniTicker","E":1718000000000,"s":"BTCUSDT","c":"100"}}`))

	snap := feed.Snapshot()
	delete(snap, "BTC")

	if _, ok := feed.GetPrice("BTC"); !ok {
		t.Error("Mutating a snapshot must not affect the feed's state")
	}
}
