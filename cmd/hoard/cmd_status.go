package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show untracked, modified, deleted, and pending-revert files",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := openRepo()
			if err != nil {
				return err
			}
			report, err := r.engine.Status()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if report.Clean() {
				fmt.Fprintln(out, "nothing to report")
				return nil
			}
			printSection(out, "untracked", report.Untracked)
			printSection(out, "modified", report.Modified)
			printSection(out, "deleted", report.Deleted)
			printSection(out, "to be reverted", report.ToBeReverted)
			return nil
		},
	}
}

func printSection(w io.Writer, label string, files []string) {
	if len(files) == 0 {
		return
	}
	fmt.Fprintf(w, "%s:\n", label)
	for _, f := range files {
		fmt.Fprintf(w, "  %s\n", f)
	}
}
