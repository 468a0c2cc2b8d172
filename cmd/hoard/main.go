package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var verbose bool

func main() {
	root := &cobra.Command{
		Use:   "hoard",
		Short: "A content-tracking archive manager",
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "print extra diagnostic detail")

	root.AddCommand(newVersionCmd())
	root.AddCommand(newInitCmd())
	root.AddCommand(newAddCmd())
	root.AddCommand(newAddFromCmd())
	root.AddCommand(newRmCmd())
	root.AddCommand(newRevertCmd())
	root.AddCommand(newCommitCmd())
	root.AddCommand(newStatusCmd())
	root.AddCommand(newVerifyCmd())
	root.AddCommand(newLogCmd())
	root.AddCommand(newFindDupsCmd())
	root.AddCommand(newSyncCmd())
	root.AddCommand(newServerModeCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitCodeFor(err))
	}
}

// exitCodeFor maps an error to a process exit code. Unclassified
// errors are treated as fatal: spec.md's "-1" fatal-error exit code
// cannot be represented portably by os.Exit, so fatal errors exit 2
// instead; non-fatal issues (StatusError{Kind: "nonfatal"}) exit 1;
// success is 0 and never reaches here.
func exitCodeFor(err error) int {
	var statusErr *StatusError
	if errors.As(err, &statusErr) && statusErr.Kind == "nonfatal" {
		return 1
	}
	return 2
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "hoard 0.1.0-dev")
		},
	}
}
