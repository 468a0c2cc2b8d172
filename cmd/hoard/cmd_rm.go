package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newRmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rm <paths>...",
		Short: "Stage files for deletion",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(func(r *openedRepo) error {
				trouble, err := r.engine.Remove(args)
				if err != nil {
					return err
				}
				if trouble {
					return nonFatal(fmt.Errorf("some paths already have a pending staged operation and were not staged for removal"))
				}
				return nil
			})
		},
	}
}
