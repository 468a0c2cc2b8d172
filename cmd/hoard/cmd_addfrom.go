package main

import (
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/odvcencio/hoard/pkg/fsview"
)

func newAddFromCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add-from <external_dir>",
		Short: "Import every file under an external directory, bucketed by date",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(func(r *openedRepo) error {
				external := fsview.New(afero.NewOsFs(), args[0], r.settings.BlockSizeBytes, "")
				return r.engine.ImportFrom(external)
			})
		},
	}
}
