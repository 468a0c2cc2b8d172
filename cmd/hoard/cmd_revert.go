package main

import (
	"github.com/spf13/cobra"
)

func newRevertCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "revert [paths]...",
		Short: "Discard staged changes, or all staged changes if no paths are given",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(func(r *openedRepo) error {
				return r.engine.Revert(args)
			})
		},
	}
}
