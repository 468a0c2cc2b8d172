package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newCommitCmd() *cobra.Command {
	var message string
	var auto bool

	c := &cobra.Command{
		Use:   "commit",
		Short: "Record staged changes as a new commit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(func(r *openedRepo) error {
				commit, count, err := r.engine.Commit(message, auto)
				if err != nil {
					return err
				}
				if count == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "nothing to commit")
					return nil
				}
				fmt.Fprintf(cmd.OutOrStdout(), "committed %d change(s) as %s\n", count, commit.UID)
				return nil
			})
		},
	}
	c.Flags().StringVar(&message, "msg", "", "commit message")
	c.Flags().BoolVar(&auto, "auto", false, "automatically stage modified and deleted tracked files first")
	return c
}
