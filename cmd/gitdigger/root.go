package main

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/walteh/gitdigger/cmd/gitdigger/commands"
	"github.com/walteh/gitdigger/cmd/gitdigger/opts"
	"github.com/walteh/gitdigger/pkg/config"
	"gitlab.com/tozd/go/errors"
)

var (
	// Flags
	configFile string
	debug      bool
)

// NewRootCmd creates the root command with all subcommands attached.
func NewRootCmd() *cobra.Command {
	rootOpts := &opts.RootOpts{}

	cmd := &cobra.Command{
		Use:   "gitdigger",
		Short: "Sync repository metadata and clones from git hosting providers",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			setupLogging(cmd)

			cfg, err := config.Load(cmd.Context(), configFile)
			if err != nil {
				return errors.Errorf("loading config: %w", err)
			}
			rootOpts.ConfigPath = configFile
			rootOpts.Config = cfg
			return nil
		},
		SilenceUsage: true,
	}

	addRootFlags(cmd)

	cmd.AddCommand(commands.NewSyncCmd(rootOpts))
	cmd.AddCommand(commands.NewClassifyCmd(rootOpts))
	cmd.AddCommand(commands.NewStateCmd(rootOpts))
	cmd.AddCommand(commands.NewListCmd(rootOpts))

	return cmd
}

// addRootFlags adds shared flags to the root command
func addRootFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().StringVarP(&configFile, "config", "c", ".gitdigger.yaml", "config file path")
	cmd.PersistentFlags().BoolVarP(&debug, "debug", "d", false, "enable debug logging")
}

// setupLogging configures zerolog based on flags and stores the logger on
// the command context so subcommands pick it up via zerolog.Ctx.
func setupLogging(cmd *cobra.Command) {
	level := zerolog.InfoLevel
	if debug {
		level = zerolog.DebugLevel
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(level).With().Timestamp().Logger()
	cmd.SetContext(logger.WithContext(cmd.Context()))
}
