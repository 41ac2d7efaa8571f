package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/54b3r/yolsda-go/internal/corpus"
)

// NewCorpusCmd constructs the `yolsda corpus` command group.
func NewCorpusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "corpus",
		Short: "Inspect the JSON knowledge base",
	}
	cmd.AddCommand(newCorpusStatsCmd())
	return cmd
}

// newCorpusStatsCmd constructs `yolsda corpus stats`. It reads the data
// directory the way serve does, without embedding anything.
func newCorpusStatsCmd() *cobra.Command {
	var dataDir string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Count records, indexable documents, types and categories",
		Long: `Report what the data directory contains: records per file, how many
yield text for the index, and the distribution of their "type" and
"category" fields. Unreadable files are listed with their error.

Examples:
  yolsda corpus stats
  yolsda corpus stats --data ./corpus --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if dataDir == "" {
				dataDir = dataDirDefault()
			}
			sum, err := corpus.Summarize(cmd.Context(), dataDir)
			if err != nil {
				return fmt.Errorf("corpus stats: %w", err)
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(sum)
			}
			return printSummary(out, sum)
		},
	}

	addDataFlag(cmd, &dataDir)
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the summary as JSON")

	return cmd
}

func printSummary(out io.Writer, sum *corpus.Summary) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)

	fmt.Fprintf(tw, "Directory:\t%s\n", sum.Dir)
	fmt.Fprintf(tw, "Records:\t%d\n", sum.Records)
	fmt.Fprintf(tw, "Documents:\t%d\n", sum.Documents)
	fmt.Fprintf(tw, "Discarded:\t%d\n", sum.Discarded)
	fmt.Fprintf(tw, "Characters:\t%d\n\n", sum.Characters)

	fmt.Fprintln(tw, "FILE\tRECORDS\tDOCUMENTS\tERROR")
	for _, f := range sum.Files {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%s\n", f.Name, f.Records, f.Documents, f.Error)
	}

	for _, group := range []struct {
		title  string
		counts map[string]int
	}{
		{"TYPE", sum.ByType},
		{"CATEGORY", sum.ByCategory},
	} {
		if len(group.counts) == 0 {
			continue
		}
		fmt.Fprintf(tw, "\n%s\tRECORDS\n", group.title)
		for _, c := range corpus.Sorted(group.counts) {
			fmt.Fprintf(tw, "%s\t%d\n", c.Label, c.N)
		}
	}
	return tw.Flush()
}
