// Package news polls configured JSON feeds and keeps a merged, deduplicated
// list of recent crypto news items.
package news

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"cryptofolio/config"
	"cryptofolio/internal/cache"
	"cryptofolio/internal/events"
	"cryptofolio/internal/logging"
)

// Item is a single news article
type Item struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	URL         string    `json:"url"`
	Source      string    `json:"source"`
	PublishedAt time.Time `json:"published_at"`
}

// feedResponse is the wire format expected from a feed endpoint
type feedResponse struct {
	Items []Item `json:"items"`
}

// Aggregator polls feeds on an interval and merges their items
type Aggregator struct {
	mu sync.RWMutex

	config     config.NewsConfig
	cache      *cache.CacheService
	eventBus   *events.EventBus
	logger     *logging.Logger
	httpClient *http.Client

	items     []Item
	isRunning bool
	stopChan  chan struct{}
	wg        sync.WaitGroup
}

// NewAggregator creates a news aggregator
func NewAggregator(cfg config.NewsConfig, cacheService *cache.CacheService, eventBus *events.EventBus) *Aggregator {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 10 * time.Minute
	}
	if cfg.MaxItems <= 0 {
		cfg.MaxItems = 50
	}
	return &Aggregator{
		config:   cfg,
		cache:    cacheService,
		eventBus: eventBus,
		logger:   logging.WithComponent("news"),
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		stopChan: make(chan struct{}),
	}
}

// Start begins the polling loop
func (a *Aggregator) Start() error {
	a.mu.Lock()
	if a.isRunning {
		a.mu.Unlock()
		return fmt.Errorf("news aggregator already running")
	}
	a.isRunning = true
	a.mu.Unlock()

	a.wg.Add(1)
	go a.pollLoop()

	a.logger.Info("news aggregator started",
		"feeds", len(a.config.FeedURLs),
		"interval", a.config.PollInterval.String())
	return nil
}

// Stop stops the polling loop and waits for it to exit
func (a *Aggregator) Stop() {
	a.mu.Lock()
	if !a.isRunning {
		a.mu.Unlock()
		return
	}
	a.isRunning = false
	a.mu.Unlock()

	close(a.stopChan)
	a.wg.Wait()

	a.logger.Info("news aggregator stopped")
}

// Latest returns the current merged item list, newest first
func (a *Aggregator) Latest() []Item {
	a.mu.RLock()
	defer a.mu.RUnlock()

	result := make([]Item, len(a.items))
	copy(result, a.items)
	return result
}

func (a *Aggregator) pollLoop() {
	defer a.wg.Done()

	ticker := time.NewTicker(a.config.PollInterval)
	defer ticker.Stop()

	// First poll immediately
	a.poll()

	for {
		select {
		case <-a.stopChan:
			return
		case <-ticker.C:
			a.poll()
		}
	}
}

// poll fetches every feed, merges and publishes the result. A failing feed
// is logged and skipped; the others still contribute.
func (a *Aggregator) poll() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	seen := make(map[string]bool)
	var merged []Item

	for _, feedURL := range a.config.FeedURLs {
		items, err := a.fetchFeed(ctx, feedURL)
		if err != nil {
			a.logger.Warn("feed fetch failed", "url", feedURL, "error", err)
			continue
		}
		for _, item := range items {
			key := item.ID
			if key == "" {
				key = item.URL
			}
			if seen[key] {
				continue
			}
			seen[key] = true
			merged = append(merged, item)
		}
	}

	if len(merged) == 0 {
		return
	}

	sort.Slice(merged, func(i, j int) bool {
		return merged[i].PublishedAt.After(merged[j].PublishedAt)
	})
	if len(merged) > a.config.MaxItems {
		merged = merged[:a.config.MaxItems]
	}

	a.mu.Lock()
	a.items = merged
	a.mu.Unlock()

	if a.cache != nil {
		if err := a.cache.SetJSON(ctx, cache.NewsKey(), merged, cache.DefaultNewsTTL); err != nil {
			a.logger.Debug("news cache write failed", "error", err)
		}
	}

	if a.eventBus != nil {
		a.eventBus.Publish(events.Event{
			Type:      events.EventNewsUpdate,
			Timestamp: time.Now().UTC(),
			Data: map[string]interface{}{
				"count": len(merged),
			},
		})
	}
}

func (a *Aggregator) fetchFeed(ctx context.Context, feedURL string) ([]Item, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("feed returned status %d", resp.StatusCode)
	}

	var feed feedResponse
	if err := json.NewDecoder(resp.Body).Decode(&feed); err != nil {
		return nil, fmt.Errorf("failed to decode feed: %w", err)
	}

	return feed.Items, nil
}
