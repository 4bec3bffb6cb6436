package cli

import (
	"fmt"
	"log/slog"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/kirillkom/policy-radar/internal/bootstrap"
	"github.com/kirillkom/policy-radar/internal/infrastructure/source/jsonl"
)

var importInput string

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Load JSONL exports into the Postgres document table",
	Long: `Read JSONL exports and upsert every record into Postgres so that
later rebuilds can use --postgres. Existing rows with the same id are replaced.`,
	Args: cobra.NoArgs,
	RunE: runImport,
}

func init() {
	importCmd.Flags().StringVar(&importInput, "input", "", "glob of JSONL exports")
	_ = importCmd.MarkFlagRequired("input")
	rootCmd.AddCommand(importCmd)
}

func runImport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	docs, err := jsonl.New(importInput).Documents(ctx)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", importInput, err)
	}

	db, source, err := bootstrap.OpenPostgresSource(ctx, cfg.PostgresDSN)
	if err != nil {
		return err
	}
	defer db.Close()

	bar := progressbar.NewOptions(len(docs),
		progressbar.OptionSetWriter(cmd.ErrOrStderr()),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionSetDescription("[cyan]Importing[reset]"),
	)

	imported := 0
	for _, doc := range docs {
		if err := source.Upsert(ctx, doc); err != nil {
			slog.Warn("document_import_failed", "doc_id", doc.ID, "error", err)
		} else {
			imported++
		}
		_ = bar.Add(1)
	}
	_ = bar.Finish()

	fmt.Fprintf(cmd.OutOrStdout(), "%s %d of %d documents\n", successLabel("Imported"), imported, len(docs))
	return nil
}
