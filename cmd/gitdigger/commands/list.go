package commands

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	gitdigger "github.com/walteh/gitdigger"
	"github.com/walteh/gitdigger/cmd/gitdigger/opts"
	"github.com/walteh/gitdigger/pkg/ref"
	"gitlab.com/tozd/go/errors"
)

// NewListCmd creates the list command
func NewListCmd(o *opts.RootOpts) *cobra.Command {
	var providerName string

	cmd := &cobra.Command{
		Use:   "list <owner>",
		Short: "List the repositories a provider knows for an owner",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := zerolog.Ctx(cmd.Context()).With().Str("command", "list").Logger().WithContext(cmd.Context())

			kind, err := ref.ParseKind(providerName)
			if err != nil {
				return errors.Errorf("parsing provider: %w", err)
			}

			client, err := gitdigger.New(ctx, o.Config)
			if err != nil {
				return errors.Errorf("building client: %w", err)
			}
			defer client.Close()

			provider, err := client.Registry.Get(kind)
			if err != nil {
				return err
			}

			it := provider.ListRepositories(ctx, args[0])
			count := 0
			for it.Next(ctx) {
				repo := it.Repo()
				fmt.Fprintf(cmd.OutOrStdout(), "%s/%s\t%s\n", repo.Owner, repo.Name, repo.Description)
				count++
			}
			if err := it.Err(); err != nil {
				return errors.Errorf("listing repositories: %w", err)
			}

			zerolog.Ctx(ctx).Info().Int("repositories", count).Str("owner", args[0]).Msg("listing complete")
			return nil
		},
	}

	cmd.Flags().StringVarP(&providerName, "provider", "p", "github", "provider kind (github, gitlab, generic)")

	return cmd
}
