package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newLogCmd() *cobra.Command {
	var count int

	c := &cobra.Command{
		Use:   "log [paths]...",
		Short: "Show commit history, oldest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := openRepo()
			if err != nil {
				return err
			}
			commits, err := r.engine.Log(args, count)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, c := range commits {
				when := time.Unix(int64(c.Timestamp), 0).Format(time.RFC3339)
				fmt.Fprintf(out, "%s  %s  %s (%d change(s))\n", c.UID, when, c.Message, c.OperationCount())
			}
			return nil
		},
	}
	c.Flags().IntVar(&count, "count", 0, "limit the number of commits shown (0 = unlimited)")
	return c
}
