package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// ============================================================================
// PORTFOLIOS
// ============================================================================

// CreatePortfolio inserts a new portfolio
func (r *Repository) CreatePortfolio(ctx context.Context, p *Portfolio) error {
	query := `
		INSERT INTO portfolios (id, user_id, name, description)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at, updated_at
	`
	return r.db.Pool.QueryRow(ctx, query, p.ID, p.UserID, p.Name, p.Description).
		Scan(&p.CreatedAt, &p.UpdatedAt)
}

// GetPortfolio retrieves a user's portfolio by id. Returns (nil, nil) when
// not found or owned by a different user.
func (r *Repository) GetPortfolio(ctx context.Context, userID, portfolioID string) (*Portfolio, error) {
	query := `
		SELECT id, user_id, name, description, created_at, updated_at
		FROM portfolios
		WHERE id = $1 AND user_id = $2
	`
	p := &Portfolio{}
	err := r.db.Pool.QueryRow(ctx, query, portfolioID, userID).Scan(
		&p.ID, &p.UserID, &p.Name, &p.Description, &p.CreatedAt, &p.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

// ListPortfolios retrieves all of a user's portfolios
func (r *Repository) ListPortfolios(ctx context.Context, userID string) ([]*Portfolio, error) {
	query := `
		SELECT id, user_id, name, description, created_at, updated_at
		FROM portfolios
		WHERE user_id = $1
		ORDER BY created_at
	`
	rows, err := r.db.Pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var portfolios []*Portfolio
	for rows.Next() {
		p := &Portfolio{}
		if err := rows.Scan(&p.ID, &p.UserID, &p.Name, &p.Description, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		portfolios = append(portfolios, p)
	}
	return portfolios, rows.Err()
}

// UpdatePortfolio updates name/description of a user's portfolio
func (r *Repository) UpdatePortfolio(ctx context.Context, userID, portfolioID, name, description string) error {
	query := `
		UPDATE portfolios
		SET name = COALESCE(NULLIF($3, ''), name), description = $4
		WHERE id = $1 AND user_id = $2
	`
	tag, err := r.db.Pool.Exec(ctx, query, portfolioID, userID, name, description)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("portfolio %s not found", portfolioID)
	}
	return nil
}

// DeletePortfolio removes a user's portfolio and its holdings (cascade)
func (r *Repository) DeletePortfolio(ctx context.Context, userID, portfolioID string) error {
	query := `DELETE FROM portfolios WHERE id = $1 AND user_id = $2`
	tag, err := r.db.Pool.Exec(ctx, query, portfolioID, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("portfolio %s not found", portfolioID)
	}
	return nil
}

// ============================================================================
// HOLDINGS
// ============================================================================

// UpsertHolding inserts a holding or, when the asset already exists in the
// portfolio, replaces its quantity/price/notes
func (r *Repository) UpsertHolding(ctx context.Context, h *Holding) error {
	query := `
		INSERT INTO holdings (id, portfolio_id, asset_id, quantity, avg_buy_price, notes)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (portfolio_id, asset_id) DO UPDATE
		SET quantity = EXCLUDED.quantity,
		    avg_buy_price = EXCLUDED.avg_buy_price,
		    notes = EXCLUDED.notes
		RETURNING id, created_at, updated_at
	`
	return r.db.Pool.QueryRow(
		ctx, query,
		h.ID, h.PortfolioID, h.AssetID, h.Quantity, h.AvgBuyPrice, h.Notes,
	).Scan(&h.ID, &h.CreatedAt, &h.UpdatedAt)
}

// ListHoldings retrieves all holdings in a portfolio
func (r *Repository) ListHoldings(ctx context.Context, portfolioID string) ([]*Holding, error) {
	query := `
		SELECT id, portfolio_id, asset_id, quantity, avg_buy_price, notes, created_at, updated_at
		FROM holdings
		WHERE portfolio_id = $1
		ORDER BY asset_id
	`
	rows, err := r.db.Pool.Query(ctx, query, portfolioID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var holdings []*Holding
	for rows.Next() {
		h := &Holding{}
		err := rows.Scan(&h.ID, &h.PortfolioID, &h.AssetID, &h.Quantity, &h.AvgBuyPrice, &h.Notes, &h.CreatedAt, &h.UpdatedAt)
		if err != nil {
			return nil, err
		}
		holdings = append(holdings, h)
	}
	return holdings, rows.Err()
}

// GetHolding retrieves a single holding. Returns (nil, nil) when not found.
func (r *Repository) GetHolding(ctx context.Context, portfolioID, holdingID string) (*Holding, error) {
	query := `
		SELECT id, portfolio_id, asset_id, quantity, avg_buy_price, notes, created_at, updated_at
		FROM holdings
		WHERE id = $1 AND portfolio_id = $2
	`
	h := &Holding{}
	err := r.db.Pool.QueryRow(ctx, query, holdingID, portfolioID).Scan(
		&h.ID, &h.PortfolioID, &h.AssetID, &h.Quantity, &h.AvgBuyPrice, &h.Notes, &h.CreatedAt, &h.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return h, nil
}

// DeleteHolding removes a holding from a portfolio
func (r *Repository) DeleteHolding(ctx context.Context, portfolioID, holdingID string) error {
	query := `DELETE FROM holdings WHERE id = $1 AND portfolio_id = $2`
	tag, err := r.db.Pool.Exec(ctx, query, holdingID, portfolioID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("holding %s not found", holdingID)
	}
	return nil
}
