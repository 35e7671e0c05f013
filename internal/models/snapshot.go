package models

import "time"

// OrderSide represents the side of a broker order.
type OrderSide string

const (
	OrderBuy  OrderSide = "BUY"
	OrderSell OrderSide = "SELL"
)

// BrokerPosition is a single open position as reported by the broker, after
// the client has coerced the raw payload into typed fields.
type BrokerPosition struct {
	PositionID   string    `json:"positionId,omitempty"`
	Ticker       string    `json:"ticker"`
	ISIN         string    `json:"isin,omitempty"`
	Name         string    `json:"name,omitempty"`
	Currency     string    `json:"currency"`
	Quantity     float64   `json:"quantity"` // negative for short
	AveragePrice float64   `json:"averagePrice"`
	CurrentPrice float64   `json:"currentPrice"`
	StopPrice    float64   `json:"stopPrice,omitempty"` // 0 when no attached stop
	OpenedAt     time.Time `json:"openedAt,omitempty"`
}

// BrokerOrder is a pending order as reported by the broker. Only stop-type
// orders matter to reconciliation; others are carried for display.
type BrokerOrder struct {
	OrderID   string    `json:"orderId"`
	Ticker    string    `json:"ticker"`
	ISIN      string    `json:"isin,omitempty"`
	Side      OrderSide `json:"side"`
	Type      string    `json:"type"` // STOP, STOP_LIMIT, LIMIT, MARKET
	StopPrice float64   `json:"stopPrice,omitempty"`
	Quantity  float64   `json:"quantity"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"createdAt,omitempty"`
}

// IsOpenStop reports whether the order is a live protective stop.
func (o *BrokerOrder) IsOpenStop() bool {
	if o.Type != "STOP" && o.Type != "STOP_LIMIT" {
		return false
	}
	return o.Status == "" || o.Status == "OPEN" || o.Status == "WORKING" || o.Status == "NEW"
}

// CashTransaction is a deposit or withdrawal reported by the broker.
type CashTransaction struct {
	ID     string  `json:"id"`
	Type   string  `json:"type"` // DEPOSIT, WITHDRAWAL
	Amount float64 `json:"amount"`
	Date   string  `json:"date"` // ISO date
}

// BrokerSnapshot is a point-in-time view of a broker account: positions,
// pending orders, portfolio value and recent cash movements. It is the only
// input the reconciler consumes from a broker client.
type BrokerSnapshot struct {
	AccountID        string            `json:"accountId"`
	Provider         string            `json:"provider"`
	PortfolioValue   float64           `json:"portfolioValue"`
	RootCurrency     string            `json:"rootCurrency"`
	Positions        []BrokerPosition  `json:"positions"`
	Orders           []BrokerOrder     `json:"orders"`
	CashTransactions []CashTransaction `json:"cashTransactions,omitempty"`
	FetchedAt        time.Time         `json:"fetchedAt"`
}
