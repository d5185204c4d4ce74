package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"example.com/runlog/internal/domain"
	"example.com/runlog/internal/export"
	"example.com/runlog/internal/observability"
)

// ErrNothingToExport is returned when the user has no runs.
var ErrNothingToExport = errors.New("no runs to export")

func newExportCommand(deps Deps) *cobra.Command {
	var (
		userID  string
		dir     string
		backend string
		sortKey string
		order   string
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write a user's runs to runs-<date>.md",
		Long: `Export lists the user's runs, newest first unless --sort is given, and
writes them as a Markdown table to runs-YYYY-MM-DD.md in --dir.
Nothing is written when the user has no runs.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := deps.Config
			if backend != "" {
				cfg.StoreBackend = backend
			}

			spec, err := domain.ParseSortSpec(sortKey, order)
			if err != nil {
				return err
			}

			store, err := deps.OpenStore(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			runs, err := domain.NewService(store.Runs).ListRuns(cmd.Context(), userID, spec)
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				return ErrNothingToExport
			}

			path, err := export.WriteFile(dir, export.Filename(deps.Now()), export.ToMarkdown(runs))
			if err != nil {
				return err
			}
			observability.RecordExport(len(runs))

			_, err = fmt.Fprintf(cmd.OutOrStdout(), "exported %d runs to %s\n", len(runs), path)
			return err
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "owner whose runs are exported")
	cmd.Flags().StringVar(&dir, "dir", ".", "directory to write the export into")
	cmd.Flags().StringVar(&backend, "store", "", "store backend (postgres, sqlite, memory); defaults to STORE_BACKEND")
	cmd.Flags().StringVar(&sortKey, "sort", "", "column to sort by")
	cmd.Flags().StringVar(&order, "order", "", "asc or desc")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}
