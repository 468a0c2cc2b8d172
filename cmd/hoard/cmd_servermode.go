package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/odvcencio/hoard/internal/config"
	"github.com/odvcencio/hoard/pkg/meta"
	"github.com/odvcencio/hoard/pkg/remote"
	"github.com/odvcencio/hoard/pkg/wire"
)

// newServerModeCmd builds the hidden "_server-mode <path>" subcommand.
// It is never invoked directly by a user; DuplexRemote.Open launches it
// at the far end of an ssh connection (see wire.DialSSH) and speaks the
// wire protocol over its stdin/stdout. Grounded on commands.py's
// leading-underscore _server_mode command.
func newServerModeCmd() *cobra.Command {
	return &cobra.Command{
		Use:    "_server-mode <path>",
		Short:  "Speak the hoard wire protocol over stdin/stdout against the repository at path",
		Args:   cobra.ExactArgs(1),
		Hidden: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			root := args[0]
			fs := afero.NewOsFs()

			settings, err := config.Load(root, ".hoard")
			if err != nil {
				return fmt.Errorf("_server-mode: load config: %w", err)
			}

			db, err := meta.Load(fs, filepath.Join(root, settings.MetadataDir))
			if err != nil {
				return fmt.Errorf("_server-mode: load database: %w", err)
			}

			backend := remote.NewLocalFS(fs, root, settings.MetadataDir, settings.BlockSizeBytes, db)
			conn := wire.NewConnSplit(os.Stdin, os.Stdout)
			return wire.NewServer(backend).Serve(conn)
		},
	}
}
