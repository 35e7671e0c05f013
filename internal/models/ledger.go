package models

// DateLayout is the ISO date format used for ledger keys and trade dates.
const DateLayout = "2006-01-02"

// LedgerEntry is a single day in the portfolio ledger.
//
// End is nil when the day only records a cash movement. An entry with no end
// value, zero cash and no note is pruned rather than stored.
type LedgerEntry struct {
	End         *float64 `json:"end,omitempty"`
	CashIn      float64  `json:"cashIn,omitempty"`
	CashOut     float64  `json:"cashOut,omitempty"`
	PreBaseline bool     `json:"preBaseline,omitempty"`
	Note        string   `json:"note,omitempty"`
}

// IsEmpty reports whether the entry carries no information worth storing.
func (e *LedgerEntry) IsEmpty() bool {
	return e.End == nil && e.CashIn == 0 && e.CashOut == 0 && e.Note == ""
}

// UserLedger is a user's full portfolio ledger: dated entries keyed by ISO
// date, plus the net-deposit anchor accounting.
type UserLedger struct {
	Entries map[string]*LedgerEntry `json:"entries"`

	// NetDepositsAnchor is the first date counted toward net deposits.
	// Empty means unset: every entry counts.
	NetDepositsAnchor  string  `json:"netDepositsAnchor,omitempty"`
	InitialNetDeposits float64 `json:"initialNetDeposits"`

	// InitialPortfolio and Portfolio are the chronologically first and most
	// recent end values, refreshed on every mutation.
	InitialPortfolio float64 `json:"initialPortfolio"`
	Portfolio        float64 `json:"portfolio"`
}

// NewUserLedger returns an empty ledger.
func NewUserLedger() *UserLedger {
	return &UserLedger{Entries: make(map[string]*LedgerEntry)}
}
