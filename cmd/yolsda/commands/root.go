// Package commands defines all Cobra CLI commands for the yolsda binary.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/54b3r/yolsda-go/internal/audit"
	"github.com/54b3r/yolsda-go/internal/config"
	"github.com/54b3r/yolsda-go/internal/logging"
)

// configPath holds the --config flag value for YAML config file override.
var configPath string

// envFile holds the --env-file flag value.
var envFile string

// NewRootCmd constructs the root Cobra command that all subcommands attach to.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "yolsda",
		Short: "Yolsda, an entrepreneurship assistant grounded in your own knowledge base",
		Long: `Yolsda answers entrepreneurship questions in French. Each answer is
grounded in the passages of a local JSON knowledge base most similar to the
question, and cites the files they came from.

The model provider is selected via the MODEL_PROVIDER environment variable
or a YAML config file (~/.yolsda/config.yaml).
See 'yolsda --help' for available commands.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			log := logging.New()

			// Env vars always override the env file, which overrides YAML.
			if err := config.LoadDotEnv(envFile, log); err != nil {
				return err
			}
			path, err := config.Load(configPath, log)
			if err != nil {
				return err
			}

			audit.LogCommandStart(cmd.Context(), log, cmd.Name(), path)
			return nil
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file (default: ~/.yolsda/config.yaml)")
	root.PersistentFlags().StringVar(&envFile, "env-file", "", "Path to an env file (default: ./.env)")

	root.AddCommand(
		NewServeCmd(),
		NewAskCmd(),
		NewSearchCmd(),
		NewCorpusCmd(),
		NewVersionCmd(),
	)

	return root
}
