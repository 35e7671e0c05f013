// Package ledger implements the daily portfolio ledger: end-of-day values,
// cash movements, and net-deposit anchor accounting.
//
// The ledger assumes validated input (no NaN, no negative cash); boundary
// validation lives with the caller. All arithmetic is synchronous and
// in-memory.
package ledger

import (
	"math"
	"sort"

	"trading-journal/internal/models"
)

// DayInput is a partial update for one ledger day. Nil fields are left
// untouched; cash fields are additive, End and Note overwrite.
type DayInput struct {
	End     *float64
	CashIn  float64
	CashOut float64
	Note    *string
}

// RecordDay merges in into the entry for date, creating it if needed.
// Entries dated before the net-deposits anchor are tagged preBaseline. If
// the merged result carries no information the entry is pruned. Anchors are
// refreshed on every mutation.
func RecordDay(l *models.UserLedger, date string, in DayInput) {
	if l.Entries == nil {
		l.Entries = make(map[string]*models.LedgerEntry)
	}

	e := l.Entries[date]
	if e == nil {
		e = &models.LedgerEntry{}
		l.Entries[date] = e
	}

	if in.End != nil {
		end := *in.End
		e.End = &end
	}
	e.CashIn += in.CashIn
	e.CashOut += in.CashOut
	if in.Note != nil {
		e.Note = *in.Note
	}
	e.PreBaseline = l.NetDepositsAnchor != "" && date < l.NetDepositsAnchor

	if e.IsEmpty() {
		delete(l.Entries, date)
	}

	RefreshAnchors(l)
}

// RefreshAnchors recomputes InitialPortfolio and Portfolio from the
// chronologically first and last entries carrying an end value. With no
// such entry the previously stored values stand.
func RefreshAnchors(l *models.UserLedger) {
	dates := sortedDates(l)

	var first, last string
	for _, d := range dates {
		if l.Entries[d].End == nil {
			continue
		}
		if first == "" {
			first = d
		}
		last = d
	}
	if first == "" {
		return
	}
	l.InitialPortfolio = *l.Entries[first].End
	l.Portfolio = *l.Entries[last].End
}

// Totals is the result of the net-deposit computation.
type Totals struct {
	Baseline float64
	Total    float64
}

// NetDepositsTotals returns the baseline and the running net-deposit total:
// baseline plus the sum of cashIn-cashOut over all non-preBaseline entries.
// It never fails: a non-finite stored baseline counts as 0.
func NetDepositsTotals(l *models.UserLedger) Totals {
	baseline := l.InitialNetDeposits
	if math.IsNaN(baseline) || math.IsInf(baseline, 0) {
		baseline = 0
	}

	total := baseline
	for date, e := range l.Entries {
		if e.PreBaseline {
			continue
		}
		if l.NetDepositsAnchor != "" && date < l.NetDepositsAnchor {
			continue
		}
		total += e.CashIn - e.CashOut
	}
	return Totals{Baseline: baseline, Total: total}
}

// ResetNetDeposits moves the anchor to date with a fresh baseline. Entries
// before the anchor keep their recorded cash flows for display but are
// flagged pre-baseline so the totals no longer count them.
func ResetNetDeposits(l *models.UserLedger, date string, newTotal float64) {
	l.NetDepositsAnchor = date
	l.InitialNetDeposits = newTotal

	for d, e := range l.Entries {
		e.PreBaseline = d < date
	}

	RefreshAnchors(l)
}

// Day is one dated entry, used by the calendar read model.
type Day struct {
	Date  string
	Entry *models.LedgerEntry
}

// Month groups a month's entries in date order.
type Month struct {
	Month string // "2024-01"
	Days  []Day
}

// ByMonth returns the ledger grouped by year-month, months and days both in
// chronological order.
func ByMonth(l *models.UserLedger) []Month {
	dates := sortedDates(l)

	var months []Month
	for _, d := range dates {
		if len(d) < 7 {
			continue
		}
		ym := d[:7]
		if len(months) == 0 || months[len(months)-1].Month != ym {
			months = append(months, Month{Month: ym})
		}
		m := &months[len(months)-1]
		m.Days = append(m.Days, Day{Date: d, Entry: l.Entries[d]})
	}
	return months
}

func sortedDates(l *models.UserLedger) []string {
	dates := make([]string, 0, len(l.Entries))
	for d := range l.Entries {
		dates = append(dates, d)
	}
	sort.Strings(dates)
	return dates
}
