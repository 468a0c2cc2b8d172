package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/odvcencio/hoard/pkg/meta"
)

func newFindDupsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "find-dups",
		Short: "List groups of tracked files sharing identical content",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := openRepo()
			if err != nil {
				return err
			}
			groups, err := r.engine.FindDups()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			checksums := make([]string, 0, len(groups))
			for cs := range groups {
				checksums = append(checksums, string(cs))
			}
			sort.Strings(checksums)
			for _, cs := range checksums {
				fmt.Fprintf(out, "%s:\n", cs)
				for _, f := range groups[meta.Checksum(cs)] {
					fmt.Fprintf(out, "  %s\n", f)
				}
			}
			return nil
		},
	}
}
