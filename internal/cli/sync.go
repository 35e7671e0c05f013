package cli

import (
	"time"

	"github.com/spf13/cobra"

	"trading-journal/internal/errors"
	"trading-journal/internal/mapping"
	"trading-journal/internal/models"
	"trading-journal/internal/reconcile"
	"trading-journal/internal/syncer"
)

func addSyncCommands(rootCmd *cobra.Command, app *App) {
	syncCmd := &cobra.Command{
		Use:   "sync",
		Short: "Broker synchronization",
		Long:  "Pull broker positions, stops and cash movements into the journal and ledger.",
	}

	syncCmd.AddCommand(newSyncRunCmd(app))
	syncCmd.AddCommand(newSyncWatchCmd(app))
	syncCmd.AddCommand(newSyncStatusCmd(app))
	syncCmd.AddCommand(newSyncEnableCmd(app))

	rootCmd.AddCommand(syncCmd)
}

// buildSyncer wires a syncer against the current mapping set. The resolver
// is rebuilt per invocation so mapping edits take effect without a restart.
func buildSyncer(app *App, username string) (*syncer.Syncer, error) {
	if app.Store == nil {
		return nil, errors.ErrNotConfigured
	}
	if app.Broker == nil {
		return nil, errors.Wrap(errors.ErrNotConfigured, "no broker credentials")
	}

	state, err := app.Store.Load()
	if err != nil {
		return nil, err
	}

	var lows reconcile.DailyLowSource
	if app.MarketData != nil {
		lows = app.MarketData
	}
	recon := reconcile.New(mapping.NewResolver(state.InstrumentMappings), lows, app.Logger)
	s := syncer.New(app.Store, app.Broker, app.Rates, recon, app.Config.Sync, username, app.Logger)
	if app.MarketData != nil {
		s.WithMarketRecorder(app.MarketData)
	}
	return s, nil
}

func newSyncRunCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run one sync now",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			username := app.Username(cmd)

			s, err := buildSyncer(app, username)
			if err != nil {
				return err
			}

			res, err := s.RunOnce(cmd.Context())
			if err != nil {
				return err
			}

			if output.IsJSON() {
				return output.JSON(res)
			}
			output.Success("Sync complete")
			output.Printf("  created %d, updated %d, closed %d\n", res.Created, res.Updated, res.Closed)
			output.Printf("  stops synced %d, stale %d\n", res.StopsSynced, res.StopsStale)
			return nil
		},
	}
}

func newSyncWatchCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Sync continuously on the configured schedule",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			username := app.Username(cmd)

			s, err := buildSyncer(app, username)
			if err != nil {
				return err
			}
			if err := s.Start(cmd.Context()); err != nil {
				return err
			}
			defer s.Stop()

			output.Info("Syncing on schedule %s, ctrl-c to stop", app.Config.Sync.Schedule)
			<-cmd.Context().Done()
			return nil
		},
	}
}

func newSyncStatusCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the last sync outcome",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if app.Store == nil {
				return errors.ErrNotConfigured
			}

			state, err := app.Store.Load()
			if err != nil {
				return err
			}
			user, ok := state.Users[app.Username(cmd)]
			if !ok {
				return errors.Wrapf(errors.ErrUserNotFound, "user %s", app.Username(cmd))
			}

			last := user.Broker.LastSync
			if output.IsJSON() {
				return output.JSON(map[string]interface{}{
					"provider":     user.Broker.Provider,
					"syncDisabled": user.Broker.SyncDisabled,
					"lastSync":     last,
				})
			}

			if last.At.IsZero() {
				output.Dim("Never synced")
				return nil
			}
			output.Printf("Last sync: %s\n", last.At.Local().Format(time.RFC1123))
			switch last.Outcome {
			case models.SyncOK:
				output.Success("  outcome: ok")
			default:
				output.Error("  outcome: %s", last.Outcome)
				if last.Error != "" {
					output.Dim("  %s", last.Error)
				}
			}
			if user.Broker.SyncDisabled {
				output.Warning("  sync is disabled; run 'journal sync enable' after fixing credentials")
			}
			if !last.CooldownUntil.IsZero() && time.Now().Before(last.CooldownUntil) {
				output.Warning("  rate-limit cooldown until %s", last.CooldownUntil.Local().Format(time.Kitchen))
			}
			return nil
		},
	}
}

func newSyncEnableCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "enable",
		Short: "Re-enable sync after an auth failure",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if app.Store == nil {
				return errors.ErrNotConfigured
			}

			err := app.Store.UpdateUser(app.Username(cmd), func(u *models.UserState) error {
				u.Broker.SyncDisabled = false
				u.Broker.LastSync.CooldownUntil = time.Time{}
				return nil
			})
			if err != nil {
				return err
			}
			output.Success("Sync enabled")
			return nil
		},
	}
}
