package cli

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/kirillkom/policy-radar/internal/bootstrap"
)

var statsJSON bool

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show the state of the persisted index",
	Args:  cobra.NoArgs,
	RunE:  runStats,
}

func init() {
	statsCmd.Flags().BoolVar(&statsJSON, "json", false, "output as JSON")
	rootCmd.AddCommand(statsCmd)
}

func runStats(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	app, err := openApp(ctx, bootstrap.Options{WithoutBus: true}, false)
	if err != nil {
		return err
	}
	defer app.Close()

	// A failed load is part of the reported status, not a command error.
	if err := app.Service.Reload(ctx); err != nil {
		slog.Debug("index_load_failed", "error", err)
	}
	status := app.Service.Status()

	if statsJSON {
		output, _ := json.MarshalIndent(status, "", "  ")
		fmt.Fprintln(cmd.OutOrStdout(), string(output))
		return nil
	}
	renderStatus(cmd.OutOrStdout(), status)
	return nil
}
