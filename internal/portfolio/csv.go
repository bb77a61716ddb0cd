package portfolio

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// csvHeader is the column layout for holding export/import
var csvHeader = []string{"asset_id", "quantity", "avg_buy_price", "notes"}

// ExportHoldingsCSV writes a portfolio's holdings as CSV
func (s *Service) ExportHoldingsCSV(ctx context.Context, userID, portfolioID string, w io.Writer) error {
	holdings, err := s.ListHoldings(ctx, userID, portfolioID)
	if err != nil {
		return err
	}

	writer := csv.NewWriter(w)
	if err := writer.Write(csvHeader); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for _, h := range holdings {
		record := []string{
			h.AssetID,
			strconv.FormatFloat(h.Quantity, 'f', -1, 64),
			strconv.FormatFloat(h.AvgBuyPrice, 'f', -1, 64),
			h.Notes,
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("failed to write record: %w", err)
		}
	}

	writer.Flush()
	return writer.Error()
}

// ImportResult summarizes a CSV import
type ImportResult struct {
	Imported int      `json:"imported"`
	Skipped  int      `json:"skipped"`
	Errors   []string `json:"errors,omitempty"`
}

// ImportHoldingsCSV reads holdings from CSV and upserts them into a
// portfolio. Rows that fail to parse are skipped and reported; valid rows
// still import.
func (s *Service) ImportHoldingsCSV(ctx context.Context, userID, portfolioID string, r io.Reader) (*ImportResult, error) {
	// Ownership check up front so a bad portfolio fails before any parsing
	p, err := s.repo.GetPortfolio(ctx, userID, portfolioID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, ErrPortfolioNotFound
	}

	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	if len(header) < 3 || !strings.EqualFold(header[0], "asset_id") {
		return nil, fmt.Errorf("unexpected CSV header: %v", header)
	}

	result := &ImportResult{}
	line := 1

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			result.Skipped++
			result.Errors = append(result.Errors, fmt.Sprintf("line %d: %v", line, err))
			continue
		}
		if len(record) < 3 {
			result.Skipped++
			result.Errors = append(result.Errors, fmt.Sprintf("line %d: too few columns", line))
			continue
		}

		assetID := strings.ToUpper(strings.TrimSpace(record[0]))
		quantity, qErr := strconv.ParseFloat(strings.TrimSpace(record[1]), 64)
		avgPrice, pErr := strconv.ParseFloat(strings.TrimSpace(record[2]), 64)
		if assetID == "" || qErr != nil || pErr != nil || quantity <= 0 {
			result.Skipped++
			result.Errors = append(result.Errors, fmt.Sprintf("line %d: invalid values", line))
			continue
		}

		notes := ""
		if len(record) > 3 {
			notes = strings.TrimSpace(record[3])
		}

		if _, err := s.SetHolding(ctx, userID, portfolioID, assetID, quantity, avgPrice, notes); err != nil {
			result.Skipped++
			result.Errors = append(result.Errors, fmt.Sprintf("line %d: %v", line, err))
			continue
		}
		result.Imported++
	}

	s.logger.Info("holdings imported",
		"portfolio_id", portfolioID,
		"imported", result.Imported,
		"skipped", result.Skipped)

	return result, nil
}
