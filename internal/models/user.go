package models

import (
	"encoding/json"
	"time"
)

// SyncOutcome summarizes the result of the most recent broker sync attempt.
type SyncOutcome string

const (
	SyncOK          SyncOutcome = "ok"
	SyncAuthFailed  SyncOutcome = "auth_failed"
	SyncRateLimited SyncOutcome = "rate_limited"
	SyncNetworkFail SyncOutcome = "network_failed"
	SyncParseFail   SyncOutcome = "parse_failed"
)

// SyncStatus is the persisted last-sync status for a user.
type SyncStatus struct {
	At            time.Time   `json:"at,omitempty"`
	Outcome       SyncOutcome `json:"outcome,omitempty"`
	Error         string      `json:"error,omitempty"`
	CooldownUntil time.Time   `json:"cooldownUntil,omitempty"`
}

// BrokerConfig is a user's broker connection state.
type BrokerConfig struct {
	Provider     string `json:"provider,omitempty"` // trading212, ibkr
	AccountID    string `json:"accountId,omitempty"`
	APIKey       string `json:"apiKey,omitempty"`
	SyncDisabled bool   `json:"syncDisabled,omitempty"`

	LastSync SyncStatus `json:"lastSync,omitempty"`

	// SeenCashTxns tracks broker cash-transaction ids already folded into
	// the ledger, so repeated snapshots cannot double-count them.
	SeenCashTxns map[string]bool `json:"seenCashTxns,omitempty"`
}

// UserState is everything persisted for one user: ledger, journal and
// broker configuration. Unknown JSON fields survive a load/save round-trip
// through Extra.
type UserState struct {
	Username string       `json:"-"`
	Ledger   *UserLedger  `json:"portfolioHistory"`
	Trades   []*Trade     `json:"tradeJournal"`
	Broker   BrokerConfig `json:"brokerConfig,omitempty"`

	Extra map[string]json.RawMessage `json:"-"`
}

// NewUserState returns an initialized state for a user.
func NewUserState(username string) *UserState {
	return &UserState{
		Username: username,
		Ledger:   NewUserLedger(),
	}
}

// OpenTrades returns the user's open trades in creation order. The returned
// slice shares the underlying trades.
func (u *UserState) OpenTrades() []*Trade {
	var open []*Trade
	for _, t := range u.Trades {
		if t.IsOpen() {
			open = append(open, t)
		}
	}
	return open
}

// TradeByID returns the trade with the given id, or nil.
func (u *UserState) TradeByID(id string) *Trade {
	for _, t := range u.Trades {
		if t.ID == id {
			return t
		}
	}
	return nil
}
