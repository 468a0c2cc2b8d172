package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newAddCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add <paths>...",
		Short: "Stage files for the next commit",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(func(r *openedRepo) error {
				trouble, err := r.engine.Add(args)
				if err != nil {
					return err
				}
				if trouble {
					return nonFatal(fmt.Errorf("some paths already have a pending staged operation and were not staged"))
				}
				return nil
			})
		},
	}
}
