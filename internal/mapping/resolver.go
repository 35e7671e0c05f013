// Package mapping resolves broker-reported instrument identities to
// canonical display tickers, at user or global scope.
package mapping

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"trading-journal/internal/errors"
	"trading-journal/internal/models"
)

// Instrument is the broker-native identity of an instrument, as extracted
// from a snapshot position or order.
type Instrument struct {
	ISIN     string
	UID      string
	Ticker   string
	Currency string
	Name     string
}

// SourceKeyOf derives the deterministic mapping key for an instrument.
// ISIN wins over UID wins over ticker+currency: ISIN is the most stable
// identity a broker can supply.
func SourceKeyOf(source string, inst Instrument) string {
	source = strings.ToUpper(source)
	if isin := strings.ToUpper(strings.TrimSpace(inst.ISIN)); isin != "" {
		return fmt.Sprintf("%s|ISIN:%s", source, isin)
	}
	if uid := strings.TrimSpace(inst.UID); uid != "" {
		return fmt.Sprintf("%s|UID:%s", source, uid)
	}
	return fmt.Sprintf("%s|TICKER:%s|CCY:%s",
		source,
		strings.ToUpper(strings.TrimSpace(inst.Ticker)),
		strings.ToUpper(strings.TrimSpace(inst.Currency)))
}

// Resolution is the outcome of resolving an instrument.
type Resolution struct {
	DisplayTicker string
	DisplayName   string
	// Scope is the winning mapping scope, or "" when the broker-native
	// identity was used as-is.
	Scope models.MappingScope
}

// Resolver resolves instruments against a mapping set.
type Resolver struct {
	mappings []*models.InstrumentMapping
}

// NewResolver creates a resolver over the given mappings.
func NewResolver(mappings []*models.InstrumentMapping) *Resolver {
	return &Resolver{mappings: mappings}
}

// Resolve returns the display ticker/name for an instrument. An active
// user-scope mapping wins over an active global mapping; with neither, the
// broker's native ticker and name are returned unchanged.
func (r *Resolver) Resolve(source string, inst Instrument, userID string) Resolution {
	key := SourceKeyOf(source, inst)

	if m := r.find(key, models.ScopeUser, userID); m != nil {
		return Resolution{DisplayTicker: m.CanonicalTicker, DisplayName: m.CanonicalName, Scope: models.ScopeUser}
	}
	if m := r.find(key, models.ScopeGlobal, ""); m != nil {
		return Resolution{DisplayTicker: m.CanonicalTicker, DisplayName: m.CanonicalName, Scope: models.ScopeGlobal}
	}
	return Resolution{DisplayTicker: inst.Ticker, DisplayName: inst.Name}
}

func (r *Resolver) find(key string, scope models.MappingScope, userID string) *models.InstrumentMapping {
	for _, m := range r.mappings {
		if !m.IsActive() || m.Scope != scope || m.SourceKey != key {
			continue
		}
		if scope == models.ScopeUser && m.UserID != userID {
			continue
		}
		return m
	}
	return nil
}

// Promote copies a user-scope mapping to global scope. It rejects the
// promotion when an active global mapping already binds the same source key
// to a different canonical ticker.
func (r *Resolver) Promote(userMapping *models.InstrumentMapping) (*models.InstrumentMapping, error) {
	if userMapping.Scope != models.ScopeUser {
		return nil, errors.NewValidationError("scope", userMapping.Scope, "only user-scope mappings can be promoted")
	}

	if existing := r.find(userMapping.SourceKey, models.ScopeGlobal, ""); existing != nil {
		if existing.CanonicalTicker != userMapping.CanonicalTicker {
			return nil, errors.Wrapf(errors.ErrMappingConflict,
				"source key %s already maps to %s", userMapping.SourceKey, existing.CanonicalTicker)
		}
		return existing, nil
	}

	promoted := &models.InstrumentMapping{
		ID:              uuid.NewString(),
		Source:          userMapping.Source,
		SourceKey:       userMapping.SourceKey,
		Scope:           models.ScopeGlobal,
		CanonicalTicker: userMapping.CanonicalTicker,
		CanonicalName:   userMapping.CanonicalName,
		Status:          models.MappingActive,
		CreatedAt:       time.Now().UTC(),
	}
	r.mappings = append(r.mappings, promoted)
	return promoted, nil
}

// Mappings returns the resolver's current mapping set, including any
// promotions made through this resolver.
func (r *Resolver) Mappings() []*models.InstrumentMapping {
	return r.mappings
}
