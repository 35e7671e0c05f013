// Package store persists application state as a single JSON document.
//
// The document is the source of truth for every user's ledger, journal and
// broker configuration. Fields this version of the program does not know
// about are preserved byte-for-byte across a load/save cycle, so older and
// newer builds can share one state file.
package store

import (
	"encoding/json"

	"trading-journal/internal/models"
)

// State is the full persisted document.
type State struct {
	Users              map[string]*models.UserState
	InstrumentMappings []*models.InstrumentMapping

	// extra holds top-level document fields we do not model.
	extra map[string]json.RawMessage
}

// NewState returns an empty document.
func NewState() *State {
	return &State{Users: make(map[string]*models.UserState)}
}

// User returns the named user's state, creating it when absent.
func (s *State) User(username string) *models.UserState {
	if s.Users == nil {
		s.Users = make(map[string]*models.UserState)
	}
	u, ok := s.Users[username]
	if !ok {
		u = models.NewUserState(username)
		s.Users[username] = u
	}
	if u.Username == "" {
		u.Username = username
	}
	if u.Ledger == nil {
		u.Ledger = models.NewUserLedger()
	}
	return u
}

// Store is the persistence seam. Update serializes all mutation: the
// callback sees the freshest document and its changes are written back
// atomically before Update returns.
type Store interface {
	Load() (*State, error)
	Save(*State) error
	Update(fn func(*State) error) error
	UpdateUser(username string, fn func(*models.UserState) error) error
}

const (
	keyUsers    = "users"
	keyMappings = "instrumentMappings"
)

// user-level keys we model; everything else rides along in Extra.
var knownUserKeys = map[string]bool{
	"portfolioHistory": true,
	"tradeJournal":     true,
	"brokerConfig":     true,
}

// MarshalJSON writes the document with unknown fields merged back in.
func (s *State) MarshalJSON() ([]byte, error) {
	doc := make(map[string]json.RawMessage, len(s.extra)+2)
	for k, v := range s.extra {
		doc[k] = v
	}

	users := make(map[string]json.RawMessage, len(s.Users))
	for name, u := range s.Users {
		raw, err := marshalUser(u)
		if err != nil {
			return nil, err
		}
		users[name] = raw
	}
	rawUsers, err := json.Marshal(users)
	if err != nil {
		return nil, err
	}
	doc[keyUsers] = rawUsers

	mappings := s.InstrumentMappings
	if mappings == nil {
		mappings = []*models.InstrumentMapping{}
	}
	rawMappings, err := json.Marshal(mappings)
	if err != nil {
		return nil, err
	}
	doc[keyMappings] = rawMappings

	return json.Marshal(doc)
}

// UnmarshalJSON reads the document, keeping unknown top-level and per-user
// fields for the next save.
func (s *State) UnmarshalJSON(data []byte) error {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}

	s.Users = make(map[string]*models.UserState)
	s.InstrumentMappings = nil
	s.extra = nil

	for k, v := range doc {
		switch k {
		case keyUsers:
			var users map[string]json.RawMessage
			if err := json.Unmarshal(v, &users); err != nil {
				return err
			}
			for name, raw := range users {
				u, err := unmarshalUser(name, raw)
				if err != nil {
					return err
				}
				s.Users[name] = u
			}
		case keyMappings:
			if err := json.Unmarshal(v, &s.InstrumentMappings); err != nil {
				return err
			}
		default:
			if s.extra == nil {
				s.extra = make(map[string]json.RawMessage)
			}
			s.extra[k] = v
		}
	}
	return nil
}

// userDoc shadows the modeled part of a user object. UserState itself
// cannot be unmarshaled directly because its unknown fields live alongside
// the known ones in the same object.
type userDoc struct {
	Ledger *models.UserLedger  `json:"portfolioHistory"`
	Trades []*models.Trade     `json:"tradeJournal"`
	Broker models.BrokerConfig `json:"brokerConfig,omitempty"`
}

func marshalUser(u *models.UserState) (json.RawMessage, error) {
	known, err := json.Marshal(userDoc{Ledger: u.Ledger, Trades: u.Trades, Broker: u.Broker})
	if err != nil {
		return nil, err
	}
	if len(u.Extra) == 0 {
		return known, nil
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(known, &obj); err != nil {
		return nil, err
	}
	for k, v := range u.Extra {
		if !knownUserKeys[k] {
			obj[k] = v
		}
	}
	return json.Marshal(obj)
}

func unmarshalUser(name string, raw json.RawMessage) (*models.UserState, error) {
	var doc userDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}

	u := &models.UserState{
		Username: name,
		Ledger:   doc.Ledger,
		Trades:   doc.Trades,
		Broker:   doc.Broker,
	}
	if u.Ledger == nil {
		u.Ledger = models.NewUserLedger()
	}
	if u.Ledger.Entries == nil {
		u.Ledger.Entries = make(map[string]*models.LedgerEntry)
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, err
	}
	for k, v := range obj {
		if knownUserKeys[k] {
			continue
		}
		if u.Extra == nil {
			u.Extra = make(map[string]json.RawMessage)
		}
		u.Extra[k] = v
	}
	return u, nil
}
