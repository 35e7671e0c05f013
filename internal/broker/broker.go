// Package broker provides broker integration interfaces and implementations.
package broker

import (
	"context"

	"trading-journal/internal/models"
)

// Client produces a point-in-time snapshot of a broker account. The
// snapshot is the only thing reconciliation ever sees: all payload
// coercion happens inside the client.
type Client interface {
	// Snapshot fetches positions, pending orders, the account portfolio
	// value and any recent cash transactions.
	Snapshot(ctx context.Context) (*models.BrokerSnapshot, error)

	// Provider identifies the broker (trading212, ibkr).
	Provider() string
}
