package commands

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/walteh/gitdigger/cmd/gitdigger/opts"
	"github.com/walteh/gitdigger/pkg/ref"
)

// NewClassifyCmd creates the classify command
func NewClassifyCmd(o *opts.RootOpts) *cobra.Command {
	return &cobra.Command{
		Use:   "classify <reference>...",
		Short: "Show which provider each reference resolves to",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			classifier := &ref.Classifier{
				GenericHosts: o.Config.GenericHosts(),
				DefaultKind:  o.Config.DefaultKind(),
			}

			for _, arg := range args {
				classified := classifier.Classify(parseReference(arg))
				if classified.Kind == ref.Unknown {
					fmt.Fprintf(cmd.OutOrStdout(), "%s\tunknown\n", arg)
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", arg, classified.Identity())
			}
			return nil
		},
	}
}
