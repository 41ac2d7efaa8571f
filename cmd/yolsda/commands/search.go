package commands

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/54b3r/yolsda-go/internal/assistant"
	"github.com/54b3r/yolsda-go/internal/logging"
	"github.com/54b3r/yolsda-go/internal/rag"
)

// NewSearchCmd constructs the `yolsda search` command, which prints the
// passages retrieval would place in front of the model for a query.
func NewSearchCmd() *cobra.Command {
	var dataDir string
	var k int
	var full bool

	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Show the knowledge base passages retrieved for a query",
		Long: fmt.Sprintf(`Embed the knowledge base and the query, then list the passages whose
similarity exceeds %.1f, best first. No model is called.

Examples:
  yolsda search "financement participatif"
  yolsda search -k 5 --full "statut juridique"`, rag.RelevanceThreshold),
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logging.New()
			ctx := logging.WithLogger(cmd.Context(), log)

			kb, err := buildKnowledgeBase(ctx, log, dataDir)
			if err != nil {
				return fmt.Errorf("search: %w", err)
			}

			results, err := kb.index.Search(ctx, strings.Join(args, " "), k)
			if err != nil {
				return fmt.Errorf("search: %w", err)
			}

			out := cmd.OutOrStdout()
			if len(results) == 0 {
				fmt.Fprintln(out, "no passage above the relevance threshold")
				return nil
			}
			if full {
				fmt.Fprint(out, assistant.BuildContext(results))
				return nil
			}

			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "RANK\tSCORE\tSOURCE\tPASSAGE")
			for i, r := range results {
				fmt.Fprintf(tw, "%d\t%.3f\t%s\t%s\n", i+1, r.Similarity, r.Source, preview(r.Content))
			}
			return tw.Flush()
		},
	}

	addDataFlag(cmd, &dataDir)
	cmd.Flags().IntVarP(&k, "top-k", "k", assistant.DefaultTopK, "Maximum number of passages")
	cmd.Flags().BoolVar(&full, "full", false, "Print the context exactly as sent to the model")

	return cmd
}

// preview collapses the whitespace of s and cuts it to 60 runes.
func preview(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	return rag.Truncate(s, 60)
}
