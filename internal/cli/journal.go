package cli

import (
	"strings"
	"time"

	"github.com/spf13/cobra"

	"trading-journal/internal/errors"
	"trading-journal/internal/journal"
	"trading-journal/internal/logging"
	"trading-journal/internal/models"
	"trading-journal/pkg/utils"
)

func addJournalCommands(rootCmd *cobra.Command, app *App) {
	journalCmd := &cobra.Command{
		Use:   "journal",
		Short: "Trade journal",
		Long:  "Open, close, trim and list journal trades.",
	}

	journalCmd.AddCommand(newJournalOpenCmd(app))
	journalCmd.AddCommand(newJournalCloseCmd(app))
	journalCmd.AddCommand(newJournalTrimCmd(app))
	journalCmd.AddCommand(newJournalListCmd(app))

	rootCmd.AddCommand(journalCmd)
}

func newJournalOpenCmd(app *App) *cobra.Command {
	var in journal.OpenInput
	var sizeUnits, riskAmount, riskPct float64
	var setupTags, emotionTags string

	cmd := &cobra.Command{
		Use:   "open",
		Short: "Open a manual trade",
		Long: `Open a manual trade sized from risk.

Exactly one sizing input is needed: --size, --risk (in trade currency) or
--risk-pct (of current portfolio). When several are given, --size wins over
--risk wins over --risk-pct.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if app.Store == nil {
				return errors.ErrNotConfigured
			}

			if cmd.Flags().Changed("size") {
				in.SizeUnits = &sizeUnits
			}
			if cmd.Flags().Changed("risk") {
				in.RiskAmount = &riskAmount
			}
			if cmd.Flags().Changed("risk-pct") {
				in.RiskPct = &riskPct
			}
			in.SetupTags = splitTags(setupTags)
			in.EmotionTags = splitTags(emotionTags)
			if in.Currency == "" {
				in.Currency = app.Config.Account.BaseCurrency
			}

			rates, err := app.Rates.Rates(cmd.Context())
			if err != nil {
				return err
			}

			var trade *models.Trade
			err = app.Store.UpdateUser(app.Username(cmd), func(u *models.UserState) error {
				trade, err = journal.Open(in, u.Ledger.Portfolio, rates, time.Now())
				if err != nil {
					return err
				}
				u.Trades = append(u.Trades, trade)
				return nil
			})
			if err != nil {
				return err
			}

			logging.LogTradeOpened(app.Logger, trade.ID, trade.Symbol, trade.SizeUnits, trade.RiskPct)
			if output.IsJSON() {
				return output.JSON(trade)
			}
			output.Success("Opened %s %s: %.4f units at %.4f, stop %.4f",
				trade.Direction, trade.Symbol, trade.SizeUnits, trade.Entry, trade.Stop)
			output.Printf("  risk: %s (%.2f%% of portfolio)\n",
				utils.FormatMoney(trade.RiskAmountBase, app.Config.Account.BaseCurrency), trade.RiskPct)
			output.Dim("  id: %s", trade.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&in.Symbol, "symbol", "", "instrument symbol")
	cmd.Flags().StringVar(&in.Currency, "currency", "", "trade currency (default: account base currency)")
	cmd.Flags().Float64Var(&in.Entry, "entry", 0, "entry price")
	cmd.Flags().Float64Var(&in.Stop, "stop", 0, "initial stop price")
	cmd.Flags().StringVar(&in.Direction, "direction", "long", "long or short")
	cmd.Flags().Float64Var(&sizeUnits, "size", 0, "position size in units")
	cmd.Flags().Float64Var(&riskAmount, "risk", 0, "risk amount in trade currency")
	cmd.Flags().Float64Var(&riskPct, "risk-pct", 0, "risk as percent of portfolio")
	cmd.Flags().Float64Var(&in.Fees, "fees", 0, "round-trip fees in trade currency")
	cmd.Flags().Float64Var(&in.Slippage, "slippage", 0, "expected exit slippage per unit")
	cmd.Flags().BoolVar(&in.FxFeeEligible, "fx-fee", false, "apply fx conversion fee to guaranteed PnL")
	cmd.Flags().Float64Var(&in.FxFeeRate, "fx-fee-rate", 0.0015, "fx conversion fee rate")
	cmd.Flags().StringVar(&in.TradeType, "type", "", "scalp, day, swing or position")
	cmd.Flags().StringVar(&in.AssetClass, "class", "", "stocks, options, forex, crypto, futures or other")
	cmd.Flags().StringVar(&in.MarketCondition, "market", "", "market condition note")
	cmd.Flags().StringVar(&in.StrategyTag, "strategy", "", "strategy tag")
	cmd.Flags().StringVar(&setupTags, "setup-tags", "", "comma-separated setup tags")
	cmd.Flags().StringVar(&emotionTags, "emotion-tags", "", "comma-separated emotion tags")
	cmd.Flags().StringVar(&in.OpenDate, "date", "", "open date (YYYY-MM-DD, default today)")
	cmd.MarkFlagRequired("symbol")
	cmd.MarkFlagRequired("entry")
	cmd.MarkFlagRequired("stop")

	return cmd
}

func newJournalCloseCmd(app *App) *cobra.Command {
	var price float64
	var date string

	cmd := &cobra.Command{
		Use:   "close <trade-id>",
		Short: "Close an open trade",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if app.Store == nil {
				return errors.ErrNotConfigured
			}
			if date == "" {
				date = time.Now().Format(models.DateLayout)
			}

			rates, err := app.Rates.Rates(cmd.Context())
			if err != nil {
				return err
			}

			var trade *models.Trade
			err = app.Store.UpdateUser(app.Username(cmd), func(u *models.UserState) error {
				trade = findTrade(u, args[0])
				if trade == nil {
					return errors.Wrapf(errors.ErrTradeNotFound, "id %s", args[0])
				}
				return journal.Close(trade, price, date, rates, u.Ledger)
			})
			if err != nil {
				return err
			}

			logging.LogTradeClosed(app.Logger, trade.ID, trade.Symbol, trade.TotalRealizedPnLBase())
			if output.IsJSON() {
				return output.JSON(trade)
			}
			pnl := trade.TotalRealizedPnLBase()
			output.Printf("Closed %s at %.4f: %s\n",
				trade.Symbol, price,
				output.Signed(pnl, utils.FormatMoney(pnl, app.Config.Account.BaseCurrency)))
			output.Printf("  %s\n", utils.FormatRMultiple(trade.RMultiple))
			return nil
		},
	}

	cmd.Flags().Float64Var(&price, "price", 0, "close price")
	cmd.Flags().StringVar(&date, "date", "", "close date (YYYY-MM-DD, default today)")
	cmd.MarkFlagRequired("price")
	return cmd
}

func newJournalTrimCmd(app *App) *cobra.Command {
	var newSize, price float64
	var date string

	cmd := &cobra.Command{
		Use:   "trim <trade-id>",
		Short: "Reduce an open trade to a new size",
		Long:  "Sell part of an open position. The realized portion is recorded as a partial close; fees stay with the final close.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if app.Store == nil {
				return errors.ErrNotConfigured
			}
			if date == "" {
				date = time.Now().Format(models.DateLayout)
			}

			rates, err := app.Rates.Rates(cmd.Context())
			if err != nil {
				return err
			}

			var trade *models.Trade
			err = app.Store.UpdateUser(app.Username(cmd), func(u *models.UserState) error {
				trade = findTrade(u, args[0])
				if trade == nil {
					return errors.Wrapf(errors.ErrTradeNotFound, "id %s", args[0])
				}
				return journal.Trim(trade, newSize, price, date, rates)
			})
			if err != nil {
				return err
			}

			if output.IsJSON() {
				return output.JSON(trade)
			}
			last := trade.PartialCloses[len(trade.PartialCloses)-1]
			output.Success("Trimmed %s to %.4f units", trade.Symbol, trade.SizeUnits)
			output.Printf("  realized %s\n",
				output.Signed(last.PnLBase, utils.FormatMoney(last.PnLBase, app.Config.Account.BaseCurrency)))
			return nil
		},
	}

	cmd.Flags().Float64Var(&newSize, "size", 0, "new position size in units")
	cmd.Flags().Float64Var(&price, "price", 0, "trim price")
	cmd.Flags().StringVar(&date, "date", "", "trim date (YYYY-MM-DD, default today)")
	cmd.MarkFlagRequired("size")
	cmd.MarkFlagRequired("price")
	return cmd
}

func newJournalListCmd(app *App) *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List trades",
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

			if all {
				if output.IsJSON() {
					return output.JSON(user.Trades)
				}
				return printAllTrades(output, app, user.Trades)
			}

			rates, err := app.Rates.Rates(cmd.Context())
			if err != nil {
				return err
			}
			views := journal.ActiveTrades(user.Trades, rates)
			if output.IsJSON() {
				return output.JSON(views)
			}
			return printActiveTrades(output, app, views)
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "include closed trades")
	return cmd
}

func printActiveTrades(output *Output, app *App, views []journal.ActiveTradeView) error {
	if len(views) == 0 {
		output.Dim("No open trades")
		return nil
	}
	base := app.Config.Account.BaseCurrency
	output.Printf("%-10s %-10s %-6s %10s %10s %10s %12s %12s\n",
		"ID", "SYMBOL", "DIR", "UNITS", "ENTRY", "STOP", "UNREALIZED", "GUARANTEED")
	for _, v := range views {
		stop := "-"
		if v.CurrentStop != nil {
			stop = utils.FormatMoney(*v.CurrentStop, "")
			if v.StopStale {
				stop += "?"
			}
		}
		guaranteed := "-"
		if v.GuaranteedBase != nil {
			guaranteed = output.Signed(*v.GuaranteedBase, utils.FormatMoney(*v.GuaranteedBase, base))
		}
		output.Printf("%-10s %-10s %-6s %10.4f %10.4f %10s %12s %12s\n",
			shortID(v.TradeID), v.Symbol, v.Direction, v.SizeUnits, v.Entry, stop,
			output.Signed(v.UnrealizedBase, utils.FormatMoney(v.UnrealizedBase, base)),
			guaranteed)
	}
	return nil
}

func printAllTrades(output *Output, app *App, trades []*models.Trade) error {
	if len(trades) == 0 {
		output.Dim("Journal is empty")
		return nil
	}
	base := app.Config.Account.BaseCurrency
	output.Printf("%-10s %-10s %-7s %-6s %-12s %-12s %12s %8s\n",
		"ID", "SYMBOL", "STATUS", "DIR", "OPENED", "CLOSED", "PNL", "R")
	for _, t := range trades {
		pnl := t.TotalRealizedPnLBase()
		output.Printf("%-10s %-10s %-7s %-6s %-12s %-12s %12s %8s\n",
			shortID(t.ID), t.Symbol, t.Status, t.Direction, t.OpenDate, t.CloseDate,
			output.Signed(pnl, utils.FormatMoney(pnl, base)),
			utils.FormatRMultiple(t.RMultiple))
	}
	return nil
}

// findTrade accepts a full trade id or an unambiguous prefix.
func findTrade(u *models.UserState, id string) *models.Trade {
	if t := u.TradeByID(id); t != nil {
		return t
	}
	var match *models.Trade
	for _, t := range u.Trades {
		if strings.HasPrefix(t.ID, id) {
			if match != nil {
				return nil // ambiguous
			}
			match = t
		}
	}
	return match
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func splitTags(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}
