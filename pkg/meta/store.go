package meta

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/afero"
)

// Load reads and decodes the database file at
// <metadataDir>/database.json.
func Load(fs afero.Fs, metadataDir string) (*Database, error) {
	f, err := fs.Open(filepath.Join(metadataDir, FileName))
	if err != nil {
		return nil, fmt.Errorf("meta: open database: %w", err)
	}
	defer f.Close()
	return Decode(f)
}

// Save persists db atomically: it is encoded to a temp file alongside
// the real database file, then renamed into place. This is the same
// temp-file-then-rename discipline fsview.FileCreate uses for
// working-tree writes; it is reimplemented here directly against afero
// rather than calling into package fsview, since fsview already
// depends on package meta for the Meta type.
func Save(fs afero.Fs, metadataDir string, db *Database) error {
	dest := filepath.Join(metadataDir, FileName)
	tmp := dest + ".tmp"

	f, err := fs.Create(tmp)
	if err != nil {
		return fmt.Errorf("meta: create temp database: %w", err)
	}
	if err := db.Encode(f); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("meta: close temp database: %w", err)
	}

	if err := fs.Rename(tmp, dest); err != nil {
		return fmt.Errorf("meta: rename database into place: %w", err)
	}
	return nil
}

// Create initializes a brand new database file for a repository named
// name, under metadataDir, and immediately persists it.
func Create(fs afero.Fs, metadataDir, name string) (*Database, error) {
	if err := fs.MkdirAll(metadataDir, 0o755); err != nil {
		return nil, fmt.Errorf("meta: mkdir metadata dir: %w", err)
	}
	db := New(name)
	if err := Save(fs, metadataDir, db); err != nil {
		return nil, err
	}
	return db, nil
}
