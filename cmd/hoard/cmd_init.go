package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/odvcencio/hoard/internal/config"
	"github.com/odvcencio/hoard/pkg/meta"
)

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init <name>",
		Short: "Create an empty hoard repository in the current directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]

			cwd, err := os.Getwd()
			if err != nil {
				return fmt.Errorf("getwd: %w", err)
			}

			settings := config.Default()
			metadataDir := filepath.Join(cwd, settings.MetadataDir)
			fs := afero.NewOsFs()

			if ok, _ := afero.DirExists(fs, metadataDir); ok {
				return fmt.Errorf("%s already exists", metadataDir)
			}
			if _, err := meta.Create(fs, metadataDir, name); err != nil {
				return fmt.Errorf("create database: %w", err)
			}
			if err := config.Save(cwd, settings); err != nil {
				return fmt.Errorf("save config: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "initialized empty hoard repository %q in %s\n", name, metadataDir+string(filepath.Separator))
			return nil
		},
	}
}
