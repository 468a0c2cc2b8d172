package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newVerifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify [paths]...",
		Short: "Recompute checksums and report any that no longer match the database",
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := openRepo()
			if err != nil {
				return err
			}
			checked, mismatched, err := r.engine.Verify(args)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "checked %d file(s), %d mismatched\n", checked, mismatched)
			if mismatched > 0 {
				return nonFatal(fmt.Errorf("%d file(s) failed checksum verification", mismatched))
			}
			return nil
		},
	}
}
