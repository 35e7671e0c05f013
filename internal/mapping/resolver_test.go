package mapping

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trading-journal/internal/errors"
	"trading-journal/internal/models"
)

func TestSourceKeyOfPrecedence(t *testing.T) {
	tests := []struct {
		name string
		inst Instrument
		want string
	}{
		{
			name: "isin wins",
			inst: Instrument{ISIN: "US0378331005", UID: "AAPL_US_EQ", Ticker: "AAPL", Currency: "USD"},
			want: "TRADING212|ISIN:US0378331005",
		},
		{
			name: "uid when no isin",
			inst: Instrument{UID: "AAPL_US_EQ", Ticker: "AAPL", Currency: "USD"},
			want: "TRADING212|UID:AAPL_US_EQ",
		},
		{
			name: "ticker plus currency as last resort",
			inst: Instrument{Ticker: "aapl", Currency: "usd"},
			want: "TRADING212|TICKER:AAPL|CCY:USD",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SourceKeyOf("trading212", tt.inst))
		})
	}
}

func TestResolveUserBeatsGlobal(t *testing.T) {
	key := "TRADING212|ISIN:US0378331005"
	resolver := NewResolver([]*models.InstrumentMapping{
		{SourceKey: key, Scope: models.ScopeGlobal, CanonicalTicker: "AAPL", Status: models.MappingActive},
		{SourceKey: key, Scope: models.ScopeUser, UserID: "alice", CanonicalTicker: "APPLE_CUSTOM", Status: models.MappingActive},
	})

	inst := Instrument{ISIN: "US0378331005", Ticker: "AAPL_RAW"}

	got := resolver.Resolve("trading212", inst, "alice")
	assert.Equal(t, "APPLE_CUSTOM", got.DisplayTicker)
	assert.Equal(t, models.ScopeUser, got.Scope)

	got = resolver.Resolve("trading212", inst, "bob")
	assert.Equal(t, "AAPL", got.DisplayTicker)
	assert.Equal(t, models.ScopeGlobal, got.Scope)
}

func TestResolveFallsBackToNativeTicker(t *testing.T) {
	resolver := NewResolver(nil)
	got := resolver.Resolve("trading212", Instrument{Ticker: "VODl_EQ", Name: "Vodafone"}, "alice")
	assert.Equal(t, "VODl_EQ", got.DisplayTicker)
	assert.Equal(t, "Vodafone", got.DisplayName)
	assert.Empty(t, got.Scope)
}

func TestResolveIgnoresRetiredMappings(t *testing.T) {
	key := "TRADING212|ISIN:US0378331005"
	resolver := NewResolver([]*models.InstrumentMapping{
		{SourceKey: key, Scope: models.ScopeGlobal, CanonicalTicker: "AAPL", Status: models.MappingRetired},
	})

	got := resolver.Resolve("trading212", Instrument{ISIN: "US0378331005", Ticker: "AAPL_RAW"}, "alice")
	assert.Equal(t, "AAPL_RAW", got.DisplayTicker)
}

func TestPromote(t *testing.T) {
	key := "TRADING212|ISIN:US0378331005"
	user := &models.InstrumentMapping{
		SourceKey: key, Scope: models.ScopeUser, UserID: "alice",
		CanonicalTicker: "AAPL", Status: models.MappingActive,
	}

	t.Run("creates global copy", func(t *testing.T) {
		resolver := NewResolver([]*models.InstrumentMapping{user})
		promoted, err := resolver.Promote(user)
		require.NoError(t, err)
		assert.Equal(t, models.ScopeGlobal, promoted.Scope)
		assert.Equal(t, "AAPL", promoted.CanonicalTicker)
		assert.Empty(t, promoted.UserID)
	})

	t.Run("rejects conflicting global", func(t *testing.T) {
		resolver := NewResolver([]*models.InstrumentMapping{
			user,
			{SourceKey: key, Scope: models.ScopeGlobal, CanonicalTicker: "APPLE", Status: models.MappingActive},
		})
		_, err := resolver.Promote(user)
		assert.ErrorIs(t, err, errors.ErrMappingConflict)
	})

	t.Run("matching global is a no-op", func(t *testing.T) {
		existing := &models.InstrumentMapping{
			SourceKey: key, Scope: models.ScopeGlobal, CanonicalTicker: "AAPL", Status: models.MappingActive,
		}
		resolver := NewResolver([]*models.InstrumentMapping{user, existing})
		promoted, err := resolver.Promote(user)
		require.NoError(t, err)
		assert.Same(t, existing, promoted)
	})
}
