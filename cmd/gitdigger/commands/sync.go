package commands

import (
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	gitdigger "github.com/walteh/gitdigger"
	"github.com/walteh/gitdigger/cmd/gitdigger/opts"
	"github.com/walteh/gitdigger/pkg/clone"
	"github.com/walteh/gitdigger/pkg/log"
	"gitlab.com/tozd/go/errors"
)

// NewSyncCmd creates the sync command
func NewSyncCmd(o *opts.RootOpts) *cobra.Command {
	var (
		doClone   bool
		cloneRoot string
		strict    bool
	)

	cmd := &cobra.Command{
		Use:   "sync <reference>...",
		Short: "Fetch and store metadata for the given repositories",
		Long: `Sync fetches metadata for each repository reference, stores it in the
local state database, and optionally maintains a local clone. Duplicate
references are collapsed and fetched once; individual failures never abort
the rest of the batch.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := zerolog.Ctx(cmd.Context()).With().Str("command", "sync").Logger().WithContext(cmd.Context())

			if doClone {
				o.Config.Clone = true
			}
			if cloneRoot != "" {
				o.Config.CloneDir = cloneRoot
			}

			client, err := gitdigger.New(ctx, o.Config)
			if err != nil {
				return errors.Errorf("building client: %w", err)
			}
			defer client.Close()

			// Structured logs already flow to stderr via the context logger;
			// the reporter only drives the stdout console view.
			reporter := log.New(cmd.OutOrStdout(), zerolog.Disabled)
			reporter.Header("syncing repositories")

			result, err := client.Sync(ctx, parseReferences(args))
			if result != nil {
				for _, synced := range result.Succeeded {
					line := log.RepoLine{
						Identity: synced.Record.Identity.String(),
						Outcome:  log.OutcomeSynced,
						Detail:   synced.ClonePath,
					}
					switch synced.Action {
					case clone.ActionCloned:
						line.Outcome = log.OutcomeCloned
					case clone.ActionUpdated:
						line.Outcome = log.OutcomeUpdated
					case clone.ActionNone:
						line.Outcome = log.OutcomeCurrent
					}
					reporter.RepoDone(ctx, line)
				}
				for _, failure := range result.Failed {
					reporter.RepoDone(ctx, log.RepoLine{
						Identity: failure.Ref.String(),
						Outcome:  log.OutcomeFailed,
						Detail:   failure.Err.Error(),
					})
				}
				reporter.Summary()
			}
			if err != nil {
				return errors.Errorf("syncing repositories: %w", err)
			}
			if strict && result != nil && len(result.Failed) > 0 {
				return errors.Errorf("%d of %d repositories failed",
					len(result.Failed), len(result.Failed)+len(result.Succeeded))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&doClone, "clone", false, "also maintain local clones")
	cmd.Flags().StringVar(&cloneRoot, "root", "", "override the clone root directory")
	cmd.Flags().BoolVar(&strict, "strict", false, "exit non-zero when any repository fails")

	return cmd
}
