package opts

import (
	"github.com/walteh/gitdigger/pkg/config"
)

// RootOpts carries shared state from the root command into subcommands. It
// is populated by the root PersistentPreRunE before any RunE fires.
type RootOpts struct {
	ConfigPath string
	Config     *config.Config
}
