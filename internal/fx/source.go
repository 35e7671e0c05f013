package fx

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"trading-journal/internal/errors"
)

// HTTPSource fetches rates from a frankfurter-style endpoint returning
// {"base": "GBP", "rates": {"USD": 1.27, ...}}.
type HTTPSource struct {
	URL    string
	Client *http.Client
}

// NewHTTPSource creates a source for the given endpoint URL.
func NewHTTPSource(url string) *HTTPSource {
	return &HTTPSource{
		URL:    url,
		Client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Fetch retrieves the latest rates for base.
func (s *HTTPSource) Fetch(ctx context.Context, base string) (map[string]float64, error) {
	url := fmt.Sprintf("%s?base=%s", s.URL, base)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := s.Client.Do(req)
	if err != nil {
		return nil, errors.NewBrokerError(errors.BrokerNetwork, 0, "fx rate request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.NewBrokerError(errors.BrokerNetwork, resp.StatusCode, "fx rate request failed", nil)
	}

	var payload struct {
		Base  string             `json:"base"`
		Rates map[string]float64 `json:"rates"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, errors.NewBrokerError(errors.BrokerParse, 0, "fx rate payload", err)
	}
	if len(payload.Rates) == 0 {
		return nil, errors.ErrNoRates
	}
	return payload.Rates, nil
}
