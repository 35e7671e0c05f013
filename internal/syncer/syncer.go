// Package syncer orchestrates scheduled broker synchronization: fetch a
// snapshot, reconcile it into the journal, record the outcome.
package syncer

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"trading-journal/internal/broker"
	"trading-journal/internal/config"
	"trading-journal/internal/errors"
	"trading-journal/internal/fx"
	"trading-journal/internal/models"
	"trading-journal/internal/reconcile"
	"trading-journal/internal/store"
	"trading-journal/pkg/utils"
)

// Rates abstracts the fx rate source so tests can inject fixed tables.
type Rates interface {
	Rates(ctx context.Context) (*fx.RateTable, error)
}

// MarketRecorder receives prices observed in broker snapshots. Each live
// price doubles as a daily-low candidate; the recorder keeps the minimum
// per day, which later seeds stops for positions arriving without one.
type MarketRecorder interface {
	PutQuote(ctx context.Context, symbol string, price float64) error
	PutDailyLow(ctx context.Context, symbol, date string, low float64) error
}

// Syncer runs broker syncs for one user, on demand and on a schedule.
type Syncer struct {
	store    store.Store
	client   broker.Client
	rates    Rates
	recon    *reconcile.Reconciler
	cfg      config.SyncConfig
	username string
	log      zerolog.Logger
	now      func() time.Time
	cron     *cron.Cron
	recorder MarketRecorder
}

// New creates a syncer for username.
func New(st store.Store, client broker.Client, rates Rates, recon *reconcile.Reconciler, cfg config.SyncConfig, username string, log zerolog.Logger) *Syncer {
	return &Syncer{
		store:    st,
		client:   client,
		rates:    rates,
		recon:    recon,
		cfg:      cfg,
		username: username,
		log:      log,
		now:      time.Now,
	}
}

// WithClock overrides the syncer clock. For tests.
func (s *Syncer) WithClock(now func() time.Time) *Syncer {
	s.now = now
	return s
}

// WithMarketRecorder attaches a market data recorder. Nil is fine; prices
// then go unrecorded.
func (s *Syncer) WithMarketRecorder(r MarketRecorder) *Syncer {
	s.recorder = r
	return s
}

// Start begins scheduled syncing. A run that lands inside a cooldown window
// is skipped, not queued: the next scheduled slot tries again.
func (s *Syncer) Start(ctx context.Context) error {
	c := cron.New()
	_, err := c.AddFunc(s.cfg.Schedule, func() {
		if _, err := s.RunOnce(ctx); err != nil {
			if errors.Is(err, errors.ErrSyncCoolingDown) || errors.Is(err, errors.ErrSyncDisabled) {
				s.log.Debug().Err(err).Msg("Scheduled sync skipped")
				return
			}
			s.log.Error().Err(err).Str("user", s.username).Msg("Scheduled sync failed")
		}
	})
	if err != nil {
		return errors.Wrapf(err, "invalid sync schedule %q", s.cfg.Schedule)
	}
	s.cron = c
	c.Start()
	return nil
}

// Stop halts scheduled syncing and waits for a running job to finish.
func (s *Syncer) Stop() {
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
}

// RunOnce performs one full sync. It returns ErrSyncDisabled when the
// user's sync is switched off, ErrSyncCoolingDown inside a rate-limit
// window, and otherwise the outcome of the attempt.
func (s *Syncer) RunOnce(ctx context.Context) (*reconcile.Result, error) {
	state, err := s.store.Load()
	if err != nil {
		return nil, err
	}
	user, ok := state.Users[s.username]
	if !ok {
		return nil, errors.Wrapf(errors.ErrUserNotFound, "user %s", s.username)
	}
	if user.Broker.SyncDisabled {
		return nil, errors.ErrSyncDisabled
	}
	if until := user.Broker.LastSync.CooldownUntil; !until.IsZero() && s.now().Before(until) {
		return nil, errors.Wrapf(errors.ErrSyncCoolingDown, "until %s", until.Format(time.RFC3339))
	}

	snap, fetchErr := s.fetchSnapshot(ctx)
	if fetchErr != nil {
		return nil, s.recordFailure(fetchErr)
	}

	s.recordPrices(ctx, snap)

	rates, err := s.rates.Rates(ctx)
	if err != nil {
		return nil, s.recordFailure(errors.Wrap(err, "fx rates unavailable"))
	}

	var res *reconcile.Result
	err = s.store.UpdateUser(s.username, func(u *models.UserState) error {
		if u.Broker.SyncDisabled {
			return errors.ErrSyncDisabled
		}
		res = s.recon.Run(ctx, u, snap, rates)
		u.Broker.LastSync = models.SyncStatus{At: s.now().UTC(), Outcome: models.SyncOK}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("user", s.username).
		Int("created", res.Created).
		Int("updated", res.Updated).
		Int("closed", res.Closed).
		Int("stops_synced", res.StopsSynced).
		Msg("Broker sync complete")
	return res, nil
}

// fetchSnapshot retries transient network failures with a bounded delay.
// Auth, rate-limit and parse failures surface immediately.
func (s *Syncer) fetchSnapshot(ctx context.Context) (*models.BrokerSnapshot, error) {
	cfg := utils.RetryConfig{
		MaxAttempts:   s.cfg.MaxRetries,
		InitialDelay:  s.cfg.RetryDelay,
		MaxDelay:      s.cfg.RetryDelay,
		BackoffFactor: 1.0,
		ShouldRetry:   errors.IsRetryable,
	}
	return utils.RetryWithResult(ctx, cfg, func() (*models.BrokerSnapshot, error) {
		return s.client.Snapshot(ctx)
	})
}

// recordPrices stores each position's live price as a quote and a daily-low
// candidate. Recording failures only cost stop seeding, so they never fail
// the sync.
func (s *Syncer) recordPrices(ctx context.Context, snap *models.BrokerSnapshot) {
	if s.recorder == nil {
		return
	}
	today := s.now().Format(models.DateLayout)
	for _, pos := range snap.Positions {
		if pos.CurrentPrice <= 0 || pos.Ticker == "" {
			continue
		}
		if err := s.recorder.PutQuote(ctx, pos.Ticker, pos.CurrentPrice); err != nil {
			s.log.Debug().Err(err).Str("symbol", pos.Ticker).Msg("Failed to record quote")
		}
		if err := s.recorder.PutDailyLow(ctx, pos.Ticker, today, pos.CurrentPrice); err != nil {
			s.log.Debug().Err(err).Str("symbol", pos.Ticker).Msg("Failed to record daily low")
		}
	}
}

// recordFailure persists the failed attempt's status and returns the
// original error. Auth failures switch sync off until the user re-enables
// it; rate limits start a cooldown window. The journal and ledger are left
// untouched in every failure mode.
func (s *Syncer) recordFailure(cause error) error {
	status := models.SyncStatus{At: s.now().UTC(), Error: cause.Error()}

	switch errors.BrokerKind(cause) {
	case errors.BrokerAuth:
		status.Outcome = models.SyncAuthFailed
	case errors.BrokerRateLimit:
		status.Outcome = models.SyncRateLimited
		status.CooldownUntil = s.now().Add(s.cooldown(cause))
	case errors.BrokerNetwork:
		status.Outcome = models.SyncNetworkFail
	default:
		status.Outcome = models.SyncParseFail
	}

	err := s.store.UpdateUser(s.username, func(u *models.UserState) error {
		u.Broker.LastSync = status
		if status.Outcome == models.SyncAuthFailed {
			u.Broker.SyncDisabled = true
		}
		return nil
	})
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to persist sync status")
	}

	s.log.Warn().
		Str("user", s.username).
		Str("outcome", string(status.Outcome)).
		Err(cause).
		Msg("Broker sync failed")
	return cause
}

func (s *Syncer) cooldown(cause error) time.Duration {
	d := errors.RetryAfter(cause)
	if d <= 0 {
		d = s.cfg.DefaultCooldown
	}
	if s.cfg.MaxCooldown > 0 && d > s.cfg.MaxCooldown {
		d = s.cfg.MaxCooldown
	}
	return d
}
