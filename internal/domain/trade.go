package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Side is the direction of a trade. DCA only buys.
type Side string

const SideBuy Side = "BUY"

// Trade is an immutable, append-only record of one executed purchase.
type Trade struct {
	ID        string          `json:"id"`
	SessionID string          `json:"session_id"`
	Symbol    string          `json:"symbol"`
	Side      Side            `json:"side"`
	Price     decimal.Decimal `json:"price"`
	Quantity  decimal.Decimal `json:"quantity"`
	// Value is the quote amount spent, excluding fee.
	Value     decimal.Decimal `json:"value"`
	Fee       decimal.Decimal `json:"fee"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewTrade creates a validated buy trade.
func NewTrade(sessionID, symbol string, price, quantity, value, fee decimal.Decimal, at time.Time) (Trade, error) {
	if price.LessThanOrEqual(decimal.Zero) {
		return Trade{}, fmt.Errorf("price must be positive, got %s", price.String())
	}
	if quantity.LessThanOrEqual(decimal.Zero) {
		return Trade{}, fmt.Errorf("quantity must be positive, got %s", quantity.String())
	}
	if fee.LessThan(decimal.Zero) {
		return Trade{}, fmt.Errorf("fee must not be negative, got %s", fee.String())
	}

	return Trade{
		ID:        uuid.New().String(),
		SessionID: sessionID,
		Symbol:    symbol,
		Side:      SideBuy,
		Price:     price,
		Quantity:  quantity,
		Value:     value,
		Fee:       fee,
		Timestamp: at,
	}, nil
}

// Cost returns the total quote amount the trade consumed, fee included.
func (t Trade) Cost() decimal.Decimal {
	return t.Value.Add(t.Fee)
}
