// Package cli implements the runlog command-line tool.
package cli

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"example.com/runlog/internal/config"
	"example.com/runlog/internal/persistence"
)

// Deps are the collaborators the commands use. Zero fields fall back to the real implementations.
type Deps struct {
	Config    config.Config
	Now       func() time.Time
	OpenStore func(context.Context, config.Config) (*persistence.Store, error)
}

func (d Deps) withDefaults() Deps {
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.OpenStore == nil {
		d.OpenStore = persistence.Open
	}
	return d
}

// NewRootCommand builds the runlog command tree.
func NewRootCommand(deps Deps) *cobra.Command {
	deps = deps.withDefaults()

	root := &cobra.Command{
		Use:   "runlog",
		Short: "Personal running log tools",
		Long: `runlog works with the same run store as the API server.

Configuration is read from the environment (STORE_BACKEND, POSTGRES_URL,
SQLITE_PATH, JWT_SECRET, JWT_ISSUER); flags override it per command.`,
		SilenceUsage: true,
	}

	root.AddCommand(newExportCommand(deps), newTokenCommand(deps))
	return root
}

// Execute runs the root command with configuration from the environment.
func Execute() error {
	return NewRootCommand(Deps{Config: config.Load()}).Execute()
}
