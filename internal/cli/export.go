package cli

import (
	"os"

	"github.com/spf13/cobra"

	"trading-journal/internal/errors"
	"trading-journal/internal/export"
)

func addExportCommands(rootCmd *cobra.Command, app *App) {
	exportCmd := &cobra.Command{
		Use:   "export",
		Short: "Export journal data",
	}

	exportCmd.AddCommand(newExportTradesCmd(app))
	rootCmd.AddCommand(exportCmd)
}

func newExportTradesCmd(app *App) *cobra.Command {
	var outPath string

	cmd := &cobra.Command{
		Use:   "trades",
		Short: "Export the trade journal as CSV",
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

			w := cmd.OutOrStdout()
			if outPath != "" {
				f, err := os.Create(outPath)
				if err != nil {
					return errors.Wrapf(err, "failed to create %s", outPath)
				}
				defer f.Close()
				w = f
			}

			if err := export.Trades(w, user.Trades); err != nil {
				return err
			}
			if outPath != "" {
				output.Success("Wrote %d trades to %s", len(user.Trades), outPath)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&outPath, "output", "o", "", "write to file instead of stdout")
	return cmd
}
