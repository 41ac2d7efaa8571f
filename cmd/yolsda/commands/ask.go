package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/54b3r/yolsda-go/internal/logging"
)

// NewAskCmd constructs the `yolsda ask` command, which answers a single
// question from the terminal without storing it.
func NewAskCmd() *cobra.Command {
	var dataDir string

	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask the assistant a question",
		Long: `Index the knowledge base, answer one question, and print the answer
followed by the files that grounded it.

Examples:
  yolsda ask "Comment rédiger un business plan ?"
  yolsda ask --data ./corpus "Quelles aides pour une jeune entreprise ?"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logging.New()
			ctx := logging.WithLogger(cmd.Context(), log)

			kb, err := buildKnowledgeBase(ctx, log, dataDir)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}
			a, _, tracer, err := buildAssistant(ctx, log, kb)
			defer tracer.Flush()
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}

			answer := a.Answer(ctx, strings.Join(args, " "))

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, answer.Text)
			if len(answer.Sources) > 0 {
				fmt.Fprintf(out, "\nSources: %s\n", strings.Join(answer.Sources, ", "))
			}
			return nil
		},
	}

	addDataFlag(cmd, &dataDir)

	return cmd
}
