package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/odvcencio/hoard/internal/config"
	"github.com/odvcencio/hoard/pkg/fsview"
	"github.com/odvcencio/hoard/pkg/meta"
	"github.com/odvcencio/hoard/pkg/stage"
)

// openedRepo bundles everything a command needs against the repository
// rooted at the current directory's ancestor holding the metadata
// directory.
type openedRepo struct {
	fs          afero.Fs
	root        string
	metadataDir string
	settings    config.Settings
	engine      *stage.Engine
}

// openRepo discovers the repository root above the current directory,
// loads its config and database, and wires a stage.Engine against it.
// Mirrors commands.py's implicit "operate on the repo containing cwd"
// convention, via fsview.GoUpUntil/filesystem.py:go_up_until.
func openRepo() (*openedRepo, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("getwd: %w", err)
	}

	fs := afero.NewOsFs()
	root, err := fsview.GoUpUntil(fs, cwd, ".hoard", 0)
	if err != nil {
		return nil, fmt.Errorf("not a hoard repository (or any parent up to /): %w", err)
	}
	if verbose {
		fmt.Fprintf(os.Stderr, "hoard: repository root %s\n", root)
	}

	settings, err := config.Load(root, ".hoard")
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	metadataDir := filepath.Join(root, settings.MetadataDir)

	db, err := meta.Load(fs, metadataDir)
	if err != nil {
		return nil, fmt.Errorf("load database: %w", err)
	}

	view := fsview.New(fs, root, settings.BlockSizeBytes, settings.MetadataDir)
	engine := stage.New(db, view, settings.AddFromDateFormat)

	return &openedRepo{fs: fs, root: root, metadataDir: metadataDir, settings: settings, engine: engine}, nil
}

// save persists the repository's database back to disk. Every command
// that mutates engine.DB calls this before returning.
func (r *openedRepo) save() error {
	if err := meta.Save(r.fs, r.metadataDir, r.engine.DB); err != nil {
		return fmt.Errorf("save database: %w", err)
	}
	return nil
}

// withRepo opens the repository, runs fn against it, and persists the
// database afterward unless fn itself returned an error.
func withRepo(fn func(r *openedRepo) error) error {
	r, err := openRepo()
	if err != nil {
		return err
	}
	if err := fn(r); err != nil {
		return err
	}
	return r.save()
}
