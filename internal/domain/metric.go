package domain

import (
	"github.com/shopspring/decimal"
)

const percentageMultiplier = 100

// PerformanceMetric is the latest summary for one session, recomputed from
// the full trade list after every trade (replace-on-write, never
// incrementally updated).
type PerformanceMetric struct {
	SessionID     string          `json:"session_id"`
	TotalInvested decimal.Decimal `json:"total_invested"`
	TotalValue    decimal.Decimal `json:"total_value"`
	ROIPercent    decimal.Decimal `json:"roi_percent"`
	TotalTrades   int             `json:"total_trades"`
	// WinRate stays nil for buy-only DCA sessions; no position is ever
	// closed, so there is nothing to win or lose yet.
	WinRate *decimal.Decimal `json:"win_rate,omitempty"`
}

// ComputeMetric derives the session metric from its complete trade list,
// valuing the accumulated quantity at the given price.
func ComputeMetric(sessionID string, trades []Trade, price decimal.Decimal) PerformanceMetric {
	totalInvested := decimal.Zero
	totalQuantity := decimal.Zero

	for _, t := range trades {
		if t.Side != SideBuy {
			continue
		}
		totalInvested = totalInvested.Add(t.Cost())
		totalQuantity = totalQuantity.Add(t.Quantity)
	}

	totalValue := totalQuantity.Mul(price)

	roi := decimal.Zero
	if !totalInvested.IsZero() {
		roi = totalValue.Sub(totalInvested).
			Div(totalInvested).
			Mul(decimal.NewFromInt(percentageMultiplier))
	}

	return PerformanceMetric{
		SessionID:     sessionID,
		TotalInvested: totalInvested,
		TotalValue:    totalValue,
		ROIPercent:    roi,
		TotalTrades:   len(trades),
	}
}

// BudgetExhausted reports whether cumulative investment reached the cap.
func (m PerformanceMetric) BudgetExhausted(maxTotalInvestment decimal.Decimal) bool {
	if maxTotalInvestment.IsZero() {
		return false
	}
	return m.TotalInvested.GreaterThanOrEqual(maxTotalInvestment)
}
