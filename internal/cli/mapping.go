package cli

import (
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"trading-journal/internal/errors"
	"trading-journal/internal/mapping"
	"trading-journal/internal/models"
	"trading-journal/internal/store"
)

func addMappingCommands(rootCmd *cobra.Command, app *App) {
	mappingCmd := &cobra.Command{
		Use:   "mapping",
		Short: "Instrument mappings",
		Long: `Map broker-native instrument identities to canonical tickers.

A user-scope mapping affects only your own journal; promoting it to global
scope makes it the default for everyone without an own mapping.`,
	}

	mappingCmd.AddCommand(newMappingListCmd(app))
	mappingCmd.AddCommand(newMappingSetCmd(app))
	mappingCmd.AddCommand(newMappingPromoteCmd(app))
	mappingCmd.AddCommand(newMappingRetireCmd(app))

	rootCmd.AddCommand(mappingCmd)
}

func newMappingListCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List instrument mappings",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if app.Store == nil {
				return errors.ErrNotConfigured
			}

			state, err := app.Store.Load()
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(state.InstrumentMappings)
			}

			if len(state.InstrumentMappings) == 0 {
				output.Dim("No mappings")
				return nil
			}
			output.Printf("%-42s %-8s %-10s %-10s %-8s\n", "SOURCE KEY", "SCOPE", "USER", "TICKER", "STATUS")
			for _, m := range state.InstrumentMappings {
				output.Printf("%-42s %-8s %-10s %-10s %-8s\n",
					m.SourceKey, m.Scope, m.UserID, m.CanonicalTicker, m.Status)
			}
			return nil
		},
	}
}

func newMappingSetCmd(app *App) *cobra.Command {
	var isin, ticker, currency, canonical, name string
	var global bool

	cmd := &cobra.Command{
		Use:   "set",
		Short: "Create or replace a mapping",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if app.Store == nil {
				return errors.ErrNotConfigured
			}
			if isin == "" && ticker == "" {
				return errors.NewValidationError("instrument", "", "either --isin or --ticker is required")
			}
			if canonical == "" {
				return errors.NewValidationError("canonical", canonical, "canonical ticker is required")
			}

			key := mapping.SourceKeyOf("trading212", mapping.Instrument{
				ISIN: isin, Ticker: ticker, Currency: currency,
			})
			scope := models.ScopeUser
			userID := app.Username(cmd)
			if global {
				scope = models.ScopeGlobal
				userID = ""
			}

			err := app.Store.Update(func(s *store.State) error {
				// Retire any previous active mapping for the same key and
				// scope instead of stacking duplicates.
				for _, m := range s.InstrumentMappings {
					if m.SourceKey == key && m.Scope == scope && m.UserID == userID && m.IsActive() {
						m.Status = models.MappingRetired
					}
				}
				s.InstrumentMappings = append(s.InstrumentMappings, &models.InstrumentMapping{
					ID:              uuid.NewString(),
					Source:          "trading212",
					SourceKey:       key,
					Scope:           scope,
					UserID:          userID,
					CanonicalTicker: canonical,
					CanonicalName:   name,
					Status:          models.MappingActive,
					CreatedAt:       time.Now().UTC(),
				})
				return nil
			})
			if err != nil {
				return err
			}

			output.Success("Mapped %s -> %s (%s)", key, canonical, scope)
			return nil
		},
	}

	cmd.Flags().StringVar(&isin, "isin", "", "instrument ISIN")
	cmd.Flags().StringVar(&ticker, "ticker", "", "broker-native ticker")
	cmd.Flags().StringVar(&currency, "currency", "", "instrument currency, used with --ticker")
	cmd.Flags().StringVar(&canonical, "canonical", "", "canonical ticker to display")
	cmd.Flags().StringVar(&name, "name", "", "canonical instrument name")
	cmd.Flags().BoolVar(&global, "global", false, "create at global scope")
	return cmd
}

func newMappingPromoteCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "promote <source-key>",
		Short: "Promote your mapping to global scope",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if app.Store == nil {
				return errors.ErrNotConfigured
			}
			username := app.Username(cmd)

			err := app.Store.Update(func(s *store.State) error {
				var own *models.InstrumentMapping
				for _, m := range s.InstrumentMappings {
					if m.SourceKey == args[0] && m.Scope == models.ScopeUser && m.UserID == username && m.IsActive() {
						own = m
						break
					}
				}
				if own == nil {
					return errors.NewValidationError("sourceKey", args[0], "no active user mapping for this key")
				}

				resolver := mapping.NewResolver(s.InstrumentMappings)
				promoted, err := resolver.Promote(own)
				if err != nil {
					return err
				}
				// Promote returns the existing global mapping when one
				// already agrees; only a fresh one needs storing.
				exists := false
				for _, m := range s.InstrumentMappings {
					if m == promoted {
						exists = true
						break
					}
				}
				if !exists {
					s.InstrumentMappings = append(s.InstrumentMappings, promoted)
				}
				return nil
			})
			if err != nil {
				return err
			}

			output.Success("Promoted %s to global scope", args[0])
			return nil
		},
	}
}

func newMappingRetireCmd(app *App) *cobra.Command {
	var global bool

	cmd := &cobra.Command{
		Use:   "retire <source-key>",
		Short: "Retire a mapping",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if app.Store == nil {
				return errors.ErrNotConfigured
			}

			scope := models.ScopeUser
			userID := app.Username(cmd)
			if global {
				scope = models.ScopeGlobal
				userID = ""
			}

			retired := 0
			err := app.Store.Update(func(s *store.State) error {
				for _, m := range s.InstrumentMappings {
					if m.SourceKey == args[0] && m.Scope == scope && m.UserID == userID && m.IsActive() {
						m.Status = models.MappingRetired
						retired++
					}
				}
				return nil
			})
			if err != nil {
				return err
			}

			if retired == 0 {
				output.Warning("No active mapping matched %s", args[0])
				return nil
			}
			output.Success("Retired %d mapping(s)", retired)
			return nil
		},
	}

	cmd.Flags().BoolVar(&global, "global", false, "retire the global-scope mapping")
	return cmd
}
