// Package syncplan computes what a sync between two repositories needs
// to do before any bytes move: which new files to push or pull, which
// deletions to propagate, which updated files fast-forward cleanly,
// and which updated files conflict and need a resolution. Grounded on
// the reference's remote.py (SyncTable, remote_sync,
// _find_common_commit, _build_process_common_files, detect_move_files,
// _solve_conflicts, _append_commits).
//
// The reference represents all of this with one ambiguous five-list
// SyncTable (copy/delete/merged/move/copy_local) and infers direction
// from which list an entry landed in. This package splits direction
// into the field name itself (Copy vs CopyLocal, DeleteRemote vs
// DeleteLocal) since Go has no equivalent to Python's "just check which
// list it's in" convention at the call site — a deliberate
// clarification of the reference's structure, not a semantic change.
package syncplan

import "github.com/odvcencio/hoard/pkg/meta"

// Direction records which side an update or conflict resolution needs
// to be written to.
type Direction string

const (
	DirectionPush Direction = "push" // local is ahead; write to remote
	DirectionPull Direction = "pull" // remote is ahead; write to local
)

// MergedEntry is one file whose record differs between the two sides
// (including a removal/revert marker the other side does not track),
// resolved to a single winning Meta and a direction to write it.
type MergedEntry struct {
	Filename  string
	Resolved  meta.Meta
	Direction Direction
	Conflict  bool // true if local and remote had each changed since their common ancestor
}

// MovePair is a detected rename: the same content vanished under one
// name and reappeared under another on the same side.
type MovePair struct {
	From, To  meta.Meta
	Direction Direction // which side the rename needs to be replayed on
}

// Table is the complete sync plan for one pass between two
// repositories, the equivalent of remote.py's SyncTable.
type Table struct {
	// Copy holds files to push to the remote: files known only to the
	// local database, and files the remote holds only as a revert
	// marker.
	Copy []meta.Meta
	// CopyLocal holds files to pull to local: files known only to the
	// remote database, and files local holds only as a revert marker.
	CopyLocal []meta.Meta
	// DeleteRemote holds files removed locally that still exist on
	// the remote and need to be deleted there.
	DeleteRemote []meta.Meta
	// DeleteLocal holds files removed on the remote that still exist
	// locally and need to be deleted here.
	DeleteLocal []meta.Meta
	// Merged holds files whose records differ between the two sides,
	// plus removal/revert markers for files the other side does not
	// track, each resolved to a single direction to write.
	Merged []MergedEntry
	// Move holds detected renames to replay on one side.
	Move []MovePair
}

// Done reports whether the plan has no work left to apply, the
// equivalent of remote.py:SyncTable.done().
func (t *Table) Done() bool {
	return len(t.Copy) == 0 && len(t.CopyLocal) == 0 &&
		len(t.DeleteRemote) == 0 && len(t.DeleteLocal) == 0 &&
		len(t.Merged) == 0 && len(t.Move) == 0
}

// OperationCount returns the total number of individual actions the
// plan represents.
func (t *Table) OperationCount() int {
	return len(t.Copy) + len(t.CopyLocal) + len(t.DeleteRemote) + len(t.DeleteLocal) + len(t.Merged) + len(t.Move)
}
