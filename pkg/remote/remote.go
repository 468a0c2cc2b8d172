// Package remote implements spec.md §4.4's Remote abstraction: the
// small set of operations a sync plan needs against either a local
// directory or a peer reached over the wire protocol, plus the
// overwrite guard that keeps a sync from clobbering untracked work.
// Grounded on the reference's remote.py (Remote, check_file_equal) and
// remote_localfs.py/remote_ssh.py for the two concrete backends.
package remote

import (
	"fmt"
	"io"

	"github.com/odvcencio/hoard/pkg/meta"
)

// Remote is anything a sync plan can read from and write to: a local
// directory (LocalFS) or a peer reached over the wire protocol
// (DuplexRemote, in package remote/duplex.go).
type Remote interface {
	// DatabaseGet returns the remote's current metadata database.
	// Callers mutate the returned object in place; DatabaseSave
	// persists whatever it points to.
	DatabaseGet() *meta.Database
	// DatabaseSave persists the database last returned by DatabaseGet.
	DatabaseSave() error
	// Open connects to the remote addressed by url ("file://path" or
	// "ssh://user@host:path").
	Open(url string) error
	// Close releases any resources Open acquired.
	Close() error

	// FileGet streams target's content from the remote.
	FileGet(target meta.Meta) (io.ReadCloser, error)
	// FileSet writes content to the remote under target's metadata.
	FileSet(target meta.Meta, content io.Reader) error
	// FileDel removes target from the remote.
	FileDel(target meta.Meta) error
	// FileMove renames source to target on the remote.
	FileMove(source, target meta.Meta) error
	// FileCopy duplicates source to target on the remote without
	// transferring bytes back through the caller.
	FileCopy(source, target meta.Meta) error
	// ExecuteSync runs a full two-way sync between this Remote (acting
	// as the local side) and peer, applying a syncplan.Table computed
	// from both databases.
	ExecuteSync(peer Remote) error
}

// Filestatus is the result of an overwrite-safety check: may the
// caller write to target's path without losing the data it holds.
type Filestatus string

const (
	// FileOverwriteOK means target may be safely overwritten: it
	// doesn't exist, the database's record of it matches what is on
	// disk, or it is resumable/reverted state.
	FileOverwriteOK Filestatus = "overwrite_ok"
	// FileEqual means target's computed metadata already equals the
	// incoming metadata; no write is needed at all.
	FileEqual Filestatus = "equal"
)

// ErrWouldOverwrite is returned by checkFileEqual when target holds
// content the database does not know about and the caller must not
// silently destroy it.
var ErrWouldOverwrite = fmt.Errorf("remote: write would overwrite untracked file")

// LocalChecker is the subset of fsview.View and meta.Database checkFileEqual
// needs, named narrowly so both LocalFS and a future in-process test
// double can satisfy it without importing fsview directly here.
type LocalChecker interface {
	ComputeMeta(filename string) (meta.Meta, bool, error)
	TrashExists(filename string) bool
	DBMetaGet(filename string) (meta.Meta, error)
}

// checkFileEqual is the overwrite guard LocalFS's FileSet, FileMove and
// FileCopy run before clobbering a file on the writing side. It mirrors
// remote.py:check_file_equal's five-step decision exactly:
//
//  1. target unreadable on disk -> overwrite is safe (nothing there).
//  2. target's live on-disk metadata already equals incoming -> equal,
//     no write needed.
//  3. a trash entry for target exists -> a previous write was
//     interrupted mid-transfer; resuming it is safe.
//  4. the database's own record for target matches the live on-disk
//     file, or is a pending revert -> overwrite is safe.
//  5. otherwise target holds untracked content -> refuse.
func checkFileEqual(lc LocalChecker, incoming meta.Meta) (Filestatus, error) {
	live, exists, err := lc.ComputeMeta(incoming.Filename)
	if err != nil {
		return "", fmt.Errorf("remote: compute meta for %s: %w", incoming.Filename, err)
	}
	if !exists {
		return FileOverwriteOK, nil
	}
	if live.CheckFSEqual(incoming) {
		return FileEqual, nil
	}
	if lc.TrashExists(incoming.Filename) {
		return FileOverwriteOK, nil
	}
	dbMeta, err := lc.DBMetaGet(incoming.Filename)
	if err == nil {
		if dbMeta.CheckFSEqual(live) || dbMeta.Checksum == meta.ChecksumReverted {
			return FileOverwriteOK, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrWouldOverwrite, incoming.Filename)
}
