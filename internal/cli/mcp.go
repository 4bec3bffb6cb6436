package cli

import (
	"log/slog"

	"github.com/spf13/cobra"

	mcpadapter "github.com/kirillkom/policy-radar/internal/adapters/mcp"
	"github.com/kirillkom/policy-radar/internal/bootstrap"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the index as MCP tools over stdio",
	Long: `Start a Model Context Protocol server on stdin/stdout exposing the
policy_query, policy_search and index_stats tools. The server keeps running
when the index cannot be loaded and reports the failure through the tools.`,
	Args: cobra.NoArgs,
	RunE: runMCP,
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}

func runMCP(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	app, err := openApp(ctx, bootstrap.Options{WithoutBus: true}, false)
	if err != nil {
		return err
	}
	defer app.Close()

	if err := app.Service.Reload(ctx); err != nil {
		slog.Warn("index_load_failed", "path", cfg.IndexPath, "error", err)
	}

	server, err := mcpadapter.NewServer(app.Service, app.Service)
	if err != nil {
		return err
	}
	return server.ServeStdio()
}
