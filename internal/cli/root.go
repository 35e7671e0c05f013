// Package cli provides the command-line interface for the trading journal.
package cli

import (
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"trading-journal/internal/broker"
	"trading-journal/internal/cache"
	"trading-journal/internal/config"
	"trading-journal/internal/fx"
	"trading-journal/internal/marketdata"
	"trading-journal/internal/store"
)

// Version information
const Version = "0.1.0"

// App holds the application dependencies.
type App struct {
	Config     *config.Config
	Logger     zerolog.Logger
	Store      *store.FileStore
	Broker     broker.Client
	Rates      *fx.Service
	MarketData *marketdata.Cache
}

// Username returns the effective user: the --user flag when given, else
// the configured account username.
func (a *App) Username(cmd *cobra.Command) string {
	if user, _ := cmd.Flags().GetString("user"); user != "" {
		return user
	}
	return a.Config.Account.Username
}

// NewRootCmd creates the root command for the CLI.
func NewRootCmd(cfg *config.Config, logger zerolog.Logger) *cobra.Command {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	fileStore, err := store.NewFileStore(cfg.Storage.StatePath)
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to initialize state store, most commands will be unavailable")
	} else {
		app.Store = fileStore
	}

	if cfg.Credentials.Trading212.APIKey != "" {
		app.Broker = broker.NewTrading212(broker.Trading212Config{
			APIKey:  cfg.Credentials.Trading212.APIKey,
			BaseURL: cfg.Credentials.Trading212.BaseURL,
		}, logger)
		logger.Debug().Msg("Trading212 client initialized")
	}

	app.Rates = fx.NewService(
		cfg.Account.BaseCurrency,
		fx.NewHTTPSource(cfg.Fx.SourceURL),
		cfg.Cache.FxTTL,
		cache.SystemClock{},
	)

	md, err := marketdata.Open(cfg.Storage.MarketDataPath, cfg.Cache.QuoteTTL)
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to open market data cache, stop seeding from daily lows disabled")
	} else {
		app.MarketData = md
	}

	rootCmd := &cobra.Command{
		Use:   "journal",
		Short: "Trade journal with broker reconciliation",
		Long: `A trade journal and portfolio ledger for discretionary traders.

Trades are sized from risk, stops are tracked against live broker orders,
and the portfolio ledger keeps net-deposit-adjusted performance. Broker
positions sync in through Trading212.

Use 'journal help <command>' for more information about a command.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if debug, _ := cmd.Flags().GetBool("debug"); debug {
				app.Logger = app.Logger.Level(zerolog.DebugLevel)
			}
			return nil
		},
	}

	rootCmd.PersistentFlags().String("config", "", "config directory (default: ~/.config/trading-journal)")
	rootCmd.PersistentFlags().String("user", "", "act as this user (default: configured account username)")
	rootCmd.PersistentFlags().Bool("json", false, "output in JSON format")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")

	rootCmd.AddCommand(newVersionCmd())
	addJournalCommands(rootCmd, app)
	addLedgerCommands(rootCmd, app)
	addSyncCommands(rootCmd, app)
	addMappingCommands(rootCmd, app)
	addExportCommands(rootCmd, app)

	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			output := NewOutput(cmd)
			if output.IsJSON() {
				output.JSON(map[string]string{"version": Version})
			} else {
				output.Printf("trading-journal v%s\n", Version)
			}
		},
	}
}
