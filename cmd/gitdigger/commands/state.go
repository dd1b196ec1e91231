package commands

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/walteh/gitdigger/cmd/gitdigger/opts"
	"github.com/walteh/gitdigger/pkg/ref"
	"github.com/walteh/gitdigger/pkg/state"
	"gitlab.com/tozd/go/errors"
)

// NewStateCmd creates the state command group
func NewStateCmd(o *opts.RootOpts) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "state",
		Short: "Inspect and manage the local sync state database",
	}
	cmd.AddCommand(newStateListCmd(o))
	cmd.AddCommand(newStateRmCmd(o))
	return cmd
}

func newStateListCmd(o *opts.RootOpts) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Show the sync state of every known repository",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := state.Open(o.Config.StatePath)
			if err != nil {
				return errors.Errorf("opening state store: %w", err)
			}
			defer store.Close()

			states, err := store.All(cmd.Context())
			if err != nil {
				return errors.Errorf("listing sync state: %w", err)
			}
			if len(states) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no repositories synced yet")
				return nil
			}

			for _, st := range states {
				line := fmt.Sprintf("%s\tfetched %s", st.Identity, st.LastFetched.Format("2006-01-02 15:04:05"))
				if st.ClonePath != "" {
					line += "\t" + st.ClonePath
				}
				fmt.Fprintln(cmd.OutOrStdout(), line)
				if st.LastError != "" {
					fmt.Fprintln(cmd.OutOrStdout(), color.RedString("  last error: %s", st.LastError))
				}
			}
			return nil
		},
	}
}

// newStateRmCmd removes one repository's state. Sync never deletes state on
// its own; this is the only way history leaves the database.
func newStateRmCmd(o *opts.RootOpts) *cobra.Command {
	return &cobra.Command{
		Use:   "rm <reference>...",
		Short: "Forget the sync state of the given repositories",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := state.Open(o.Config.StatePath)
			if err != nil {
				return errors.Errorf("opening state store: %w", err)
			}
			defer store.Close()

			classifier := &ref.Classifier{
				GenericHosts: o.Config.GenericHosts(),
				DefaultKind:  o.Config.DefaultKind(),
			}

			for _, arg := range args {
				classified := classifier.Classify(parseReference(arg))
				if classified.Kind == ref.Unknown {
					return errors.Errorf("unrecognized reference %q", arg)
				}
				id := classified.Identity()
				if err := store.Delete(cmd.Context(), id); err != nil {
					return errors.Errorf("deleting state for %s: %w", id, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "forgot %s\n", id)
			}
			return nil
		},
	}
}
