package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kirillkom/policy-radar/internal/bootstrap"
	"github.com/kirillkom/policy-radar/internal/core/domain"
)

var (
	queryText    string
	queryTopK    int
	querySource  string
	queryDocType string
	queryJSON    bool
)

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Answer a question from the indexed documents",
	Long: `Retrieve the most relevant policy excerpts for a question and compose
an answer with numbered citations.

Examples:
  policyrag query -q "What does the hydrogen strategy fund?"
  policyrag query -q "carbon border tax" --doc-type regulation --json`,
	Args: cobra.NoArgs,
	RunE: runQuery,
}

var searchCmd = &cobra.Command{
	Use:   "search",
	Short: "Show raw retrieval results without composing an answer",
	Args:  cobra.NoArgs,
	RunE:  runSearch,
}

func init() {
	for _, cmd := range []*cobra.Command{queryCmd, searchCmd} {
		cmd.Flags().StringVarP(&queryText, "query", "q", "", "question or search text (required)")
		cmd.Flags().IntVarP(&queryTopK, "top-k", "k", 0, "number of results (default from config)")
		cmd.Flags().StringVar(&querySource, "source", "", "only use chunks from this source")
		cmd.Flags().StringVar(&queryDocType, "doc-type", "", "only use chunks of this document type")
		cmd.Flags().BoolVar(&queryJSON, "json", false, "output as JSON")
		_ = cmd.MarkFlagRequired("query")
		rootCmd.AddCommand(cmd)
	}
}

func queryFilter() domain.SearchFilter {
	return domain.SearchFilter{Source: querySource, DocType: queryDocType}
}

func runQuery(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	app, err := openApp(ctx, bootstrap.Options{WithoutBus: true}, true)
	if err != nil {
		return err
	}
	defer app.Close()

	result, err := app.Service.Query(ctx, queryText, queryTopK, queryFilter())
	if err != nil {
		return fmt.Errorf("query failed: %w", err)
	}

	if queryJSON {
		output, _ := json.MarshalIndent(result, "", "  ")
		fmt.Fprintln(cmd.OutOrStdout(), string(output))
		return nil
	}
	renderAnswer(cmd.OutOrStdout(), result)
	return nil
}

func runSearch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	app, err := openApp(ctx, bootstrap.Options{WithoutBus: true}, true)
	if err != nil {
		return err
	}
	defer app.Close()

	results, err := app.Service.Search(ctx, queryText, queryTopK, queryFilter())
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	if queryJSON {
		output, _ := json.MarshalIndent(results, "", "  ")
		fmt.Fprintln(cmd.OutOrStdout(), string(output))
		return nil
	}
	renderResults(cmd.OutOrStdout(), queryText, results)
	return nil
}
