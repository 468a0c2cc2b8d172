package remote

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"github.com/odvcencio/hoard/pkg/fsview"
	"github.com/odvcencio/hoard/pkg/meta"
	"github.com/odvcencio/hoard/pkg/syncplan"
)

// LocalFS is a Remote backed directly by a filesystem path, used both
// for sync-to-a-local-directory and as the sync engine's view of its
// own repository. Grounded on the reference's remote_localfs.py.
type LocalFS struct {
	fs          afero.Fs
	metadataDir string
	view        *fsview.View
	db          *meta.Database
	resolver    syncplan.ConflictResolver
}

// SetConflictResolver overrides the resolver ExecuteSync uses when it
// finds a file changed on both sides since their common ancestor. Nil
// (the default) falls back to syncplan.PreferNewest.
func (l *LocalFS) SetConflictResolver(r syncplan.ConflictResolver) {
	l.resolver = r
}

// ExecuteSync runs a full two-way sync with peer, treating l as the
// local side.
func (l *LocalFS) ExecuteSync(peer Remote) error {
	return executeSync(l, peer, l.resolver)
}

// NewLocalFS wraps an already-resolved repository: a root directory and
// its metadata subdirectory, with the database already loaded.
func NewLocalFS(fs afero.Fs, root, metadataDir string, blockSize int, db *meta.Database) *LocalFS {
	return &LocalFS{
		fs:          fs,
		metadataDir: metadataDir,
		view:        fsview.New(fs, root, blockSize, metadataDir),
		db:          db,
	}
}

// Open resolves a "file://<path>" URL: it walks up from path looking
// for the metadata directory, the same root-discovery
// fsview.GoUpUntil/remote_localfs.py's RemoteLocalFS.open performs, and
// loads the database found there.
func (l *LocalFS) Open(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("remote: parse url %q: %w", rawURL, err)
	}
	if u.Scheme != "file" {
		return fmt.Errorf("remote: LocalFS.Open expects file:// scheme, got %q", rawURL)
	}
	path := u.Path
	if path == "" {
		path = u.Opaque
	}

	root, err := fsview.GoUpUntil(l.fs, path, ".hoard", 0)
	if err != nil {
		return err
	}
	metadataDir := filepath.Join(root, ".hoard")

	db, err := meta.Load(l.fs, metadataDir)
	if err != nil {
		return fmt.Errorf("remote: load database at %s: %w", metadataDir, err)
	}

	l.metadataDir = metadataDir
	l.view = fsview.New(l.fs, root, fsview.DefaultBlockSize, ".hoard")
	l.db = db
	return nil
}

// Close is a no-op: a local filesystem holds no connection to release.
func (l *LocalFS) Close() error { return nil }

// DB returns the wrapped database, satisfying wire.Backend.
func (l *LocalFS) DB() *meta.Database { return l.db }

// View returns the wrapped working-tree view, satisfying wire.Backend.
func (l *LocalFS) View() *fsview.View { return l.view }

// SaveDB persists the wrapped database, satisfying wire.Backend.
func (l *LocalFS) SaveDB() error {
	return meta.Save(l.fs, l.metadataDir, l.db)
}

// DatabaseGet returns the wrapped database.
func (l *LocalFS) DatabaseGet() *meta.Database {
	return l.db
}

// DatabaseSave persists the wrapped database.
func (l *LocalFS) DatabaseSave() error {
	return l.SaveDB()
}

// ComputeMeta satisfies LocalChecker.
func (l *LocalFS) ComputeMeta(filename string) (meta.Meta, bool, error) {
	return l.view.ComputeMeta(filename)
}

// TrashExists satisfies LocalChecker.
func (l *LocalFS) TrashExists(filename string) bool {
	return l.view.TrashExists(filename)
}

// DBMetaGet satisfies LocalChecker.
func (l *LocalFS) DBMetaGet(filename string) (meta.Meta, error) {
	return l.db.MetaGet(filename)
}

// FileGet streams target's content off disk.
func (l *LocalFS) FileGet(target meta.Meta) (io.ReadCloser, error) {
	return l.view.FileRead(target.Filename)
}

// FileSet writes content to target's path, refusing to overwrite
// untracked content first.
func (l *LocalFS) FileSet(target meta.Meta, content io.Reader) error {
	status, err := checkFileEqual(l, target)
	if err != nil {
		return err
	}
	if status == FileEqual {
		return nil
	}
	return l.view.FileCreate(target, content)
}

// FileDel removes target from disk.
func (l *LocalFS) FileDel(target meta.Meta) error {
	return l.view.FileDel(target.Filename, true)
}

// FileMove renames source to target on disk, refusing to overwrite
// untracked content sitting at target first. If target already holds
// this content, the stale source is deleted instead of moved onto it.
func (l *LocalFS) FileMove(source, target meta.Meta) error {
	status, err := checkFileEqual(l, target)
	if err != nil {
		return err
	}
	if status == FileEqual {
		return l.view.FileDel(source.Filename, true)
	}
	_, err = l.view.Move(source.Filename, target.Filename, true, target.Modtime)
	return err
}

// FileCopy duplicates source to target on disk without round-tripping
// through the caller, refusing to overwrite untracked content sitting at
// target. If target already holds this content, nothing is written.
func (l *LocalFS) FileCopy(source, target meta.Meta) error {
	status, err := checkFileEqual(l, target)
	if err != nil {
		return err
	}
	if status == FileEqual {
		return nil
	}
	r, err := l.view.FileRead(source.Filename)
	if err != nil {
		return err
	}
	defer r.Close()
	return l.view.FileCreate(target, r)
}

var errUnsupportedScheme = errors.New("remote: unsupported url scheme")

// ParseScheme extracts the scheme of a remote URL ("file" or "ssh"),
// used by callers deciding which Remote implementation to construct.
func ParseScheme(rawURL string) (string, error) {
	idx := strings.Index(rawURL, "://")
	if idx < 0 {
		return "", fmt.Errorf("%w: %q", errUnsupportedScheme, rawURL)
	}
	return rawURL[:idx], nil
}
