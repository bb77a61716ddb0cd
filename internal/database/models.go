package database

import (
	"time"
)

// Portfolio groups a user's holdings
type Portfolio struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Holding is one asset position inside a portfolio. One row per
// (portfolio, asset); quantity changes are absorbed into the row.
type Holding struct {
	ID          string    `json:"id"`
	PortfolioID string    `json:"portfolio_id"`
	AssetID     string    `json:"asset_id"`
	Quantity    float64   `json:"quantity"`
	AvgBuyPrice float64   `json:"avg_buy_price"`
	Notes       string    `json:"notes,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
