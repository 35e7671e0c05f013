package cli

import (
	"time"

	"github.com/spf13/cobra"

	"trading-journal/internal/errors"
	"trading-journal/internal/ledger"
	"trading-journal/internal/models"
	"trading-journal/pkg/utils"
)

func addLedgerCommands(rootCmd *cobra.Command, app *App) {
	ledgerCmd := &cobra.Command{
		Use:   "ledger",
		Short: "Portfolio ledger",
		Long:  "Record daily portfolio values and cash movements, and track net-deposit-adjusted performance.",
	}

	ledgerCmd.AddCommand(newLedgerRecordCmd(app))
	ledgerCmd.AddCommand(newLedgerTotalsCmd(app))
	ledgerCmd.AddCommand(newLedgerResetCmd(app))
	ledgerCmd.AddCommand(newLedgerMonthsCmd(app))

	rootCmd.AddCommand(ledgerCmd)
}

func newLedgerRecordCmd(app *App) *cobra.Command {
	var end, cashIn, cashOut float64
	var date, note string

	cmd := &cobra.Command{
		Use:   "record",
		Short: "Record a ledger day",
		Long: `Record an end-of-day portfolio value and cash movements for a date.

Cash amounts add to whatever the date already holds; the end value and note
replace previous ones.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if app.Store == nil {
				return errors.ErrNotConfigured
			}
			if date == "" {
				date = time.Now().Format(models.DateLayout)
			}
			if _, err := time.Parse(models.DateLayout, date); err != nil {
				return errors.NewValidationError("date", date, "must be YYYY-MM-DD")
			}

			in := ledger.DayInput{CashIn: cashIn, CashOut: cashOut}
			if cmd.Flags().Changed("end") {
				in.End = &end
			}
			if cmd.Flags().Changed("note") {
				in.Note = &note
			}

			var led *models.UserLedger
			err := app.Store.UpdateUser(app.Username(cmd), func(u *models.UserState) error {
				ledger.RecordDay(u.Ledger, date, in)
				led = u.Ledger
				return nil
			})
			if err != nil {
				return err
			}

			if output.IsJSON() {
				return output.JSON(led.Entries[date])
			}
			output.Success("Recorded %s", date)
			if entry := led.Entries[date]; entry != nil && entry.End != nil {
				output.Printf("  portfolio: %s\n", utils.FormatMoney(*entry.End, app.Config.Account.BaseCurrency))
			}
			return nil
		},
	}

	cmd.Flags().Float64Var(&end, "end", 0, "end-of-day portfolio value in base currency")
	cmd.Flags().Float64Var(&cashIn, "cash-in", 0, "deposit amount")
	cmd.Flags().Float64Var(&cashOut, "cash-out", 0, "withdrawal amount")
	cmd.Flags().StringVar(&date, "date", "", "date (YYYY-MM-DD, default today)")
	cmd.Flags().StringVar(&note, "note", "", "note for the day")
	return cmd
}

func newLedgerTotalsCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "totals",
		Short: "Show portfolio and net-deposit totals",
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

			totals := ledger.NetDepositsTotals(user.Ledger)
			gain := user.Ledger.Portfolio - user.Ledger.InitialPortfolio - (totals.Total - totals.Baseline)

			if output.IsJSON() {
				return output.JSON(map[string]interface{}{
					"portfolio":           user.Ledger.Portfolio,
					"initialPortfolio":    user.Ledger.InitialPortfolio,
					"netDeposits":         totals.Total,
					"netDepositsBaseline": totals.Baseline,
					"gain":                gain,
				})
			}

			base := app.Config.Account.BaseCurrency
			output.Printf("Portfolio:    %s\n", utils.FormatMoney(user.Ledger.Portfolio, base))
			output.Printf("Net deposits: %s\n", utils.FormatMoney(totals.Total, base))
			output.Printf("Gain:         %s\n", output.Signed(gain, utils.FormatMoney(gain, base)))
			if user.Ledger.NetDepositsAnchor != "" {
				output.Dim("net deposits counted from %s (baseline %s)",
					user.Ledger.NetDepositsAnchor, utils.FormatMoney(totals.Baseline, base))
			}
			return nil
		},
	}
}

func newLedgerResetCmd(app *App) *cobra.Command {
	var date string
	var total float64

	cmd := &cobra.Command{
		Use:   "reset-deposits",
		Short: "Re-anchor net deposit counting",
		Long: `Restate the net deposit total as of a date.

Cash movements before the anchor stop counting; the given total becomes the
baseline they are replaced with. Recorded end-of-day values are unaffected.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if app.Store == nil {
				return errors.ErrNotConfigured
			}
			if date == "" {
				date = time.Now().Format(models.DateLayout)
			}
			if _, err := time.Parse(models.DateLayout, date); err != nil {
				return errors.NewValidationError("date", date, "must be YYYY-MM-DD")
			}

			err := app.Store.UpdateUser(app.Username(cmd), func(u *models.UserState) error {
				ledger.ResetNetDeposits(u.Ledger, date, total)
				return nil
			})
			if err != nil {
				return err
			}

			output.Success("Net deposits re-anchored at %s: %s",
				date, utils.FormatMoney(total, app.Config.Account.BaseCurrency))
			return nil
		},
	}

	cmd.Flags().StringVar(&date, "date", "", "anchor date (YYYY-MM-DD, default today)")
	cmd.Flags().Float64Var(&total, "total", 0, "restated net deposit total")
	cmd.MarkFlagRequired("total")
	return cmd
}

func newLedgerMonthsCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "months",
		Short: "Show the ledger grouped by calendar month",
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

			months := ledger.ByMonth(user.Ledger)
			if output.IsJSON() {
				return output.JSON(months)
			}

			if len(months) == 0 {
				output.Dim("Ledger is empty")
				return nil
			}
			base := app.Config.Account.BaseCurrency
			for _, m := range months {
				output.Info("%s", m.Month)
				for _, d := range m.Days {
					end := "-"
					if d.Entry.End != nil {
						end = utils.FormatMoney(*d.Entry.End, base)
					}
					output.Printf("  %s  end %-14s", d.Date, end)
					if d.Entry.CashIn > 0 {
						output.Printf("  in %s", utils.FormatMoney(d.Entry.CashIn, base))
					}
					if d.Entry.CashOut > 0 {
						output.Printf("  out %s", utils.FormatMoney(d.Entry.CashOut, base))
					}
					if d.Entry.Note != "" {
						output.Printf("  %s", d.Entry.Note)
					}
					output.Println()
				}
			}
			return nil
		},
	}
}
