// Package portfolio implements portfolio and holding management plus
// valuation against live market prices.
package portfolio

import (
	"context"
	"fmt"
	"time"

	"cryptofolio/internal/database"
	"cryptofolio/internal/events"
	"cryptofolio/internal/logging"
	"cryptofolio/internal/market"

	"github.com/google/uuid"
)

// Error is a typed portfolio error
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e Error) Error() string {
	return e.Message
}

// Error codes
var (
	ErrPortfolioNotFound = Error{Code: "PORTFOLIO_NOT_FOUND", Message: "portfolio not found"}
	ErrHoldingNotFound   = Error{Code: "HOLDING_NOT_FOUND", Message: "holding not found"}
	ErrInvalidQuantity   = Error{Code: "INVALID_QUANTITY", Message: "quantity must be positive"}
)

// PriceSource provides latest prices for valuation
type PriceSource interface {
	GetPrice(assetID string) (market.PriceUpdate, bool)
}

// Service provides portfolio operations
type Service struct {
	repo     *database.Repository
	prices   PriceSource
	eventBus *events.EventBus
	logger   *logging.Logger
}

// NewService creates a portfolio service
func NewService(repo *database.Repository, prices PriceSource, eventBus *events.EventBus) *Service {
	return &Service{
		repo:     repo,
		prices:   prices,
		eventBus: eventBus,
		logger:   logging.WithComponent("portfolio"),
	}
}

// CreatePortfolio creates a new portfolio for a user
func (s *Service) CreatePortfolio(ctx context.Context, userID, name, description string) (*database.Portfolio, error) {
	p := &database.Portfolio{
		ID:          uuid.New().String(),
		UserID:      userID,
		Name:        name,
		Description: description,
	}
	if err := s.repo.CreatePortfolio(ctx, p); err != nil {
		return nil, fmt.Errorf("failed to create portfolio: %w", err)
	}
	s.logger.Info("portfolio created", "portfolio_id", p.ID, "user_id", userID)
	return p, nil
}

// GetPortfolio retrieves a user's portfolio
func (s *Service) GetPortfolio(ctx context.Context, userID, portfolioID string) (*database.Portfolio, error) {
	p, err := s.repo.GetPortfolio(ctx, userID, portfolioID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, ErrPortfolioNotFound
	}
	return p, nil
}

// ListPortfolios retrieves all of a user's portfolios
func (s *Service) ListPortfolios(ctx context.Context, userID string) ([]*database.Portfolio, error) {
	return s.repo.ListPortfolios(ctx, userID)
}

// UpdatePortfolio updates portfolio metadata
func (s *Service) UpdatePortfolio(ctx context.Context, userID, portfolioID, name, description string) (*database.Portfolio, error) {
	if err := s.repo.UpdatePortfolio(ctx, userID, portfolioID, name, description); err != nil {
		return nil, ErrPortfolioNotFound
	}
	return s.repo.GetPortfolio(ctx, userID, portfolioID)
}

// DeletePortfolio removes a portfolio and its holdings
func (s *Service) DeletePortfolio(ctx context.Context, userID, portfolioID string) error {
	if err := s.repo.DeletePortfolio(ctx, userID, portfolioID); err != nil {
		return ErrPortfolioNotFound
	}
	return nil
}

// SetHolding upserts a holding in a user's portfolio
func (s *Service) SetHolding(ctx context.Context, userID, portfolioID, assetID string, quantity, avgBuyPrice float64, notes string) (*database.Holding, error) {
	if quantity <= 0 {
		return nil, ErrInvalidQuantity
	}

	// Ownership check before touching holdings
	p, err := s.repo.GetPortfolio(ctx, userID, portfolioID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, ErrPortfolioNotFound
	}

	h := &database.Holding{
		ID:          uuid.New().String(),
		PortfolioID: portfolioID,
		AssetID:     assetID,
		Quantity:    quantity,
		AvgBuyPrice: avgBuyPrice,
		Notes:       notes,
	}
	if err := s.repo.UpsertHolding(ctx, h); err != nil {
		return nil, fmt.Errorf("failed to upsert holding: %w", err)
	}

	if s.eventBus != nil {
		s.eventBus.Publish(events.Event{
			Type:      events.EventHoldingChanged,
			Timestamp: time.Now().UTC(),
			Data: map[string]interface{}{
				"portfolio_id": portfolioID,
				"asset_id":     assetID,
				"quantity":     quantity,
			},
		})
	}

	return h, nil
}

// ListHoldings retrieves the holdings of a user's portfolio
func (s *Service) ListHoldings(ctx context.Context, userID, portfolioID string) ([]*database.Holding, error) {
	p, err := s.repo.GetPortfolio(ctx, userID, portfolioID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, ErrPortfolioNotFound
	}
	return s.repo.ListHoldings(ctx, portfolioID)
}

// RemoveHolding deletes a holding from a user's portfolio
func (s *Service) RemoveHolding(ctx context.Context, userID, portfolioID, holdingID string) error {
	p, err := s.repo.GetPortfolio(ctx, userID, portfolioID)
	if err != nil {
		return err
	}
	if p == nil {
		return ErrPortfolioNotFound
	}
	if err := s.repo.DeleteHolding(ctx, portfolioID, holdingID); err != nil {
		return ErrHoldingNotFound
	}
	return nil
}

// HoldingValuation is one holding valued at the latest market price
type HoldingValuation struct {
	Holding      *database.Holding `json:"holding"`
	CurrentPrice float64           `json:"current_price"`
	MarketValue  float64           `json:"market_value"`
	CostBasis    float64           `json:"cost_basis"`
	UnrealizedPL float64           `json:"unrealized_pl"`
	PriceKnown   bool              `json:"price_known"`
}

// Valuation is the priced view of a whole portfolio
type Valuation struct {
	Portfolio      *database.Portfolio `json:"portfolio"`
	Holdings       []HoldingValuation  `json:"holdings"`
	TotalValue     float64             `json:"total_value"`
	TotalCostBasis float64             `json:"total_cost_basis"`
	UnrealizedPL   float64             `json:"unrealized_pl"`
	ValuedAt       time.Time           `json:"valued_at"`
}

// Value prices every holding in a portfolio against the latest market
// snapshot. Holdings without a known price contribute zero market value and
// are flagged.
func (s *Service) Value(ctx context.Context, userID, portfolioID string) (*Valuation, error) {
	p, err := s.repo.GetPortfolio(ctx, userID, portfolioID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, ErrPortfolioNotFound
	}

	holdings, err := s.repo.ListHoldings(ctx, portfolioID)
	if err != nil {
		return nil, err
	}

	valuation := &Valuation{
		Portfolio: p,
		Holdings:  make([]HoldingValuation, 0, len(holdings)),
		ValuedAt:  time.Now().UTC(),
	}

	for _, h := range holdings {
		hv := HoldingValuation{
			Holding:   h,
			CostBasis: h.Quantity * h.AvgBuyPrice,
		}
		if s.prices != nil {
			if update, ok := s.prices.GetPrice(h.AssetID); ok {
				hv.CurrentPrice = update.Price
				hv.MarketValue = h.Quantity * update.Price
				hv.UnrealizedPL = hv.MarketValue - hv.CostBasis
				hv.PriceKnown = true
			}
		}
		valuation.Holdings = append(valuation.Holdings, hv)
		valuation.TotalValue += hv.MarketValue
		valuation.TotalCostBasis += hv.CostBasis
	}
	valuation.UnrealizedPL = valuation.TotalValue - valuation.TotalCostBasis

	return valuation, nil
}
