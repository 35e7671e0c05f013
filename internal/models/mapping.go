package models

import "time"

// MappingScope is the visibility of an instrument mapping.
type MappingScope string

const (
	ScopeUser   MappingScope = "user"
	ScopeGlobal MappingScope = "global"
)

// MappingStatus marks whether a mapping is still applied.
type MappingStatus string

const (
	MappingActive  MappingStatus = "active"
	MappingRetired MappingStatus = "retired"
)

// InstrumentMapping maps a broker-reported instrument identity to a
// canonical display ticker, at user or global scope.
type InstrumentMapping struct {
	ID              string        `json:"id"`
	Source          string        `json:"source"`
	SourceKey       string        `json:"sourceKey"`
	Scope           MappingScope  `json:"scope"`
	UserID          string        `json:"userId,omitempty"`
	CanonicalTicker string        `json:"canonicalTicker"`
	CanonicalName   string        `json:"canonicalName,omitempty"`
	Status          MappingStatus `json:"status"`
	CreatedAt       time.Time     `json:"createdAt"`
}

// IsActive reports whether the mapping should be applied.
func (m *InstrumentMapping) IsActive() bool { return m.Status == MappingActive }
