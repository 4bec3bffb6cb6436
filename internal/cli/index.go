package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/kirillkom/policy-radar/internal/bootstrap"
)

var (
	indexInput     string
	indexPostgres  bool
	indexOutput    string
	indexNoPublish bool
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Rebuild the vector index from the document source",
	Long: `Read every document from the configured source, embed all chunks and
persist a fresh index snapshot. The live index is replaced atomically.

Examples:
  policyrag index --input "exports/*.jsonl"
  policyrag index --postgres --output data/index`,
	Args: cobra.NoArgs,
	RunE: runIndex,
}

func init() {
	indexCmd.Flags().StringVar(&indexInput, "input", "", "glob of JSONL exports (overrides documents_glob)")
	indexCmd.Flags().BoolVar(&indexPostgres, "postgres", false, "read documents from Postgres instead of JSONL")
	indexCmd.Flags().StringVarP(&indexOutput, "output", "o", "", "index directory (overrides index_path)")
	indexCmd.Flags().BoolVar(&indexNoPublish, "no-publish", false, "do not announce the new index on the message bus")
	indexCmd.MarkFlagsMutuallyExclusive("input", "postgres")
	rootCmd.AddCommand(indexCmd)
}

func runIndex(cmd *cobra.Command, args []string) error {
	switch {
	case indexPostgres:
		cfg.DocumentSource = "postgres"
	case indexInput != "":
		cfg.DocumentSource = "jsonl"
		cfg.DocumentsGlob = indexInput
	}
	if indexOutput != "" {
		cfg.IndexPath = indexOutput
	}

	var bar *progressbar.ProgressBar
	progress := func(done, total int) {
		if bar == nil {
			bar = progressbar.NewOptions(total,
				progressbar.OptionSetWriter(os.Stderr),
				progressbar.OptionEnableColorCodes(true),
				progressbar.OptionShowBytes(false),
				progressbar.OptionSetWidth(40),
				progressbar.OptionShowCount(),
				progressbar.OptionSetDescription("[cyan]Embedding[reset]"),
				progressbar.OptionSetTheme(progressbar.Theme{
					Saucer:        "[green]=[reset]",
					SaucerHead:    "[green]>[reset]",
					SaucerPadding: " ",
					BarStart:      "[",
					BarEnd:        "]",
				}),
				progressbar.OptionOnCompletion(func() {
					fmt.Fprintln(os.Stderr)
				}),
			)
		}
		_ = bar.Set(done)
	}

	ctx := cmd.Context()
	app, err := openApp(ctx, bootstrap.Options{Progress: progress, WithoutBus: indexNoPublish}, false)
	if err != nil {
		return err
	}
	defer app.Close()

	source, closeSource, err := app.DocumentSource(ctx)
	if err != nil {
		return fmt.Errorf("failed to open document source: %w", err)
	}
	defer closeSource()

	started := time.Now()
	stats, err := app.Builder.Rebuild(ctx, source)
	if err != nil {
		return fmt.Errorf("index rebuild failed: %w", err)
	}

	renderStats(cmd.OutOrStdout(), stats)
	fmt.Fprintf(cmd.OutOrStdout(), "Saved to %s in %s\n", cfg.IndexPath, formatDuration(time.Since(started)))
	return nil
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	return fmt.Sprintf("%dm%02ds", int(d.Minutes()), int(d.Seconds())%60)
}
