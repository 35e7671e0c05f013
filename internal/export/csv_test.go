package export

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trading-journal/internal/models"
)

func TestTradesWritesOpenFirstThenClosed(t *testing.T) {
	r := -0.5
	stop := 145.0
	trades := []*models.Trade{
		{
			ID: "closed-1", Symbol: "MSFT", Status: models.TradeClosed,
			Source: models.SourceManual, Direction: models.Long, Currency: "USD",
			Entry: 300, Stop: 290, ClosePrice: 295, SizeUnits: 5,
			OpenDate: "2024-05-01", CloseDate: "2024-05-10",
			RealizedPnLBase: -20, RMultiple: &r,
			RiskAmountBase: 40,
		},
		{
			ID: "open-1", Symbol: "AAPL", Status: models.TradeOpen,
			Source: models.SourceBroker, Direction: models.Long, Currency: "USD",
			Entry: 150, Stop: 145, CurrentStop: &stop, SizeUnits: 10,
			OpenDate: "2024-06-01", StrategyTag: "breakout",
			SetupTags: []string{"gap-up", "volume"},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, Trades(&buf, trades))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "id,symbol,status")
	assert.True(t, strings.HasPrefix(lines[1], "open-1,"), "open trades come first")
	assert.True(t, strings.HasPrefix(lines[2], "closed-1,"))
	assert.Contains(t, lines[1], "gap-up;volume")
	assert.Contains(t, lines[1], "145")
	assert.Contains(t, lines[2], "-0.5000")
}

func TestTradesEmptyJournalHasHeaderOnly(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Trades(&buf, nil))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], "id,symbol")
}
