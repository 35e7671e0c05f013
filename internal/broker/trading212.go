package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"trading-journal/internal/errors"
	"trading-journal/internal/models"
)

// DefaultTrading212URL is the production API host.
const DefaultTrading212URL = "https://live.trading212.com"

// Trading212 is a snapshot client for the Trading212 equity API.
type Trading212 struct {
	baseURL   string
	apiKey    string
	accountID string
	client    *http.Client
	log       zerolog.Logger
}

// Trading212Config configures the client.
type Trading212Config struct {
	APIKey    string
	BaseURL   string
	AccountID string
	Timeout   time.Duration
}

// NewTrading212 creates a Trading212 snapshot client.
func NewTrading212(cfg Trading212Config, log zerolog.Logger) *Trading212 {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultTrading212URL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &Trading212{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:    cfg.APIKey,
		accountID: cfg.AccountID,
		client:    &http.Client{Timeout: cfg.Timeout},
		log:       log,
	}
}

// Provider identifies the broker.
func (t *Trading212) Provider() string { return "trading212" }

// Snapshot fetches account value, open positions, pending orders and recent
// cash transactions in one pass. Any malformed payload aborts the whole
// snapshot: a partial snapshot must never reach reconciliation.
func (t *Trading212) Snapshot(ctx context.Context) (*models.BrokerSnapshot, error) {
	account, err := t.getObject(ctx, "/api/v0/equity/account/cash")
	if err != nil {
		return nil, err
	}
	value, ok := portfolioValue(account)
	if !ok {
		return nil, errors.NewBrokerError(errors.BrokerParse, 0, "portfolio value missing from account payload", nil)
	}

	info, err := t.getObject(ctx, "/api/v0/equity/account/info")
	if err != nil {
		return nil, err
	}
	currency := StringField(info, "currencyCode", "currency")
	if currency == "" {
		currency = "GBP"
	}
	accountID := t.accountID
	if accountID == "" {
		accountID = StringField(info, "id", "accountId")
	}

	rawPositions, err := t.getList(ctx, "/api/v0/equity/portfolio")
	if err != nil {
		return nil, err
	}
	positions, err := parsePositions(rawPositions)
	if err != nil {
		return nil, err
	}

	rawOrders, err := t.getList(ctx, "/api/v0/equity/orders")
	if err != nil {
		return nil, err
	}
	orders := parseOrders(rawOrders)

	txns := t.fetchCashTransactions(ctx)

	return &models.BrokerSnapshot{
		AccountID:        accountID,
		Provider:         t.Provider(),
		PortfolioValue:   value,
		RootCurrency:     strings.ToUpper(currency),
		Positions:        positions,
		Orders:           orders,
		CashTransactions: txns,
		FetchedAt:        time.Now().UTC(),
	}, nil
}

// fetchCashTransactions is best effort: the history endpoint is optional
// and its absence must not abort the snapshot.
func (t *Trading212) fetchCashTransactions(ctx context.Context) []models.CashTransaction {
	payload, err := t.getObject(ctx, "/api/v0/history/transactions")
	if err != nil {
		t.log.Debug().Err(err).Msg("cash transaction history unavailable")
		return nil
	}
	items, ok := payload["items"].([]any)
	if !ok {
		return nil
	}

	var txns []models.CashTransaction
	for _, raw := range items {
		obj, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		kind := strings.ToUpper(StringField(obj, "type"))
		if kind != "DEPOSIT" && kind != "WITHDRAWAL" && kind != "WITHDRAW" {
			continue
		}
		if kind == "WITHDRAW" {
			kind = "WITHDRAWAL"
		}
		amount, ok := Field("amount")(obj)
		if !ok {
			continue
		}
		if amount < 0 {
			amount = -amount
		}
		txns = append(txns, models.CashTransaction{
			ID:     StringField(obj, "reference", "id"),
			Type:   kind,
			Amount: amount,
			Date:   isoDate(StringField(obj, "dateTime", "date")),
		})
	}
	return txns
}

func parsePositions(items []any) ([]models.BrokerPosition, error) {
	var positions []models.BrokerPosition
	for _, raw := range items {
		obj, ok := raw.(map[string]any)
		if !ok {
			return nil, errors.NewBrokerError(errors.BrokerParse, 0, "position payload is not an object", nil)
		}
		ticker := StringField(obj, "ticker", "symbol", "instrument")
		if ticker == "" {
			return nil, errors.NewBrokerError(errors.BrokerParse, 0, "position without a ticker", nil)
		}
		qty, ok := positionQuantity(obj)
		if !ok {
			return nil, errors.NewBrokerError(errors.BrokerParse, 0, fmt.Sprintf("position %s without a quantity", ticker), nil)
		}
		avg, _ := positionPrice("averagePrice", "avgPrice", "averagePricePaid")(obj)
		cur, _ := positionPrice("currentPrice", "lastPrice", "price")(obj)
		stop, _ := positionPrice("stopPrice", "stopLoss")(obj)

		positions = append(positions, models.BrokerPosition{
			PositionID:   StringField(obj, "positionId", "id"),
			Ticker:       ticker,
			ISIN:         StringField(obj, "isin"),
			Name:         StringField(obj, "name", "shortName"),
			Currency:     strings.ToUpper(StringField(obj, "currencyCode", "currency")),
			Quantity:     qty,
			AveragePrice: avg,
			CurrentPrice: cur,
			StopPrice:    stop,
			OpenedAt:     parseTime(StringField(obj, "initialFillDate", "createdAt")),
		})
	}
	return positions, nil
}

func parseOrders(items []any) []models.BrokerOrder {
	var orders []models.BrokerOrder
	for _, raw := range items {
		obj, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		stop, _ := Field("stopPrice", "triggerPrice")(obj)
		qty, _ := positionQuantity(obj)
		if qty < 0 {
			qty = -qty
		}
		side := strings.ToUpper(StringField(obj, "side", "direction"))
		if side == "" {
			// Trading212 encodes sells as negative order quantities.
			if raw, ok := positionQuantity(obj); ok && raw < 0 {
				side = string(models.OrderSell)
			} else {
				side = string(models.OrderBuy)
			}
		}
		orders = append(orders, models.BrokerOrder{
			OrderID:   StringField(obj, "id", "orderId"),
			Ticker:    StringField(obj, "ticker", "symbol"),
			ISIN:      StringField(obj, "isin"),
			Side:      models.OrderSide(side),
			Type:      strings.ToUpper(StringField(obj, "type", "orderType")),
			StopPrice: stop,
			Quantity:  qty,
			Status:    strings.ToUpper(StringField(obj, "status")),
			CreatedAt: parseTime(StringField(obj, "creationTime", "createdAt")),
		})
	}
	return orders
}

func (t *Trading212) getObject(ctx context.Context, path string) (map[string]any, error) {
	var out map[string]any
	if err := t.getJSON(ctx, path, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (t *Trading212) getList(ctx context.Context, path string) ([]any, error) {
	var out []any
	if err := t.getJSON(ctx, path, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (t *Trading212) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", t.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return errors.NewBrokerError(errors.BrokerNetwork, 0, path, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return errors.NewBrokerError(errors.BrokerAuth, resp.StatusCode, "credentials rejected", nil)
	case resp.StatusCode == http.StatusTooManyRequests:
		return &errors.BrokerError{
			Kind:       errors.BrokerRateLimit,
			Code:       resp.StatusCode,
			Message:    path,
			RetryAfter: retryAfter(resp),
		}
	case resp.StatusCode >= 500:
		return errors.NewBrokerError(errors.BrokerNetwork, resp.StatusCode, path, nil)
	case resp.StatusCode != http.StatusOK:
		return errors.NewBrokerError(errors.BrokerParse, resp.StatusCode, path, nil)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return errors.NewBrokerError(errors.BrokerNetwork, resp.StatusCode, path, err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return errors.NewBrokerError(errors.BrokerParse, resp.StatusCode, path, err)
	}
	return nil
}

func retryAfter(resp *http.Response) time.Duration {
	raw := resp.Header.Get("Retry-After")
	if raw == "" {
		return 0
	}
	if secs, err := strconv.Atoi(raw); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(raw); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05", models.DateLayout} {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts
		}
	}
	return time.Time{}
}

func isoDate(s string) string {
	if ts := parseTime(s); !ts.IsZero() {
		return ts.Format(models.DateLayout)
	}
	if len(s) >= 10 {
		return s[:10]
	}
	return s
}
