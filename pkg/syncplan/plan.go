package syncplan

import (
	"errors"
	"fmt"

	"github.com/odvcencio/hoard/pkg/meta"
)

// ConflictResolver decides which side wins when the same file has
// changed on both sides since their common ancestor commit. It
// replaces the reference's interactive L/O/X stdin prompt
// (_solve_conflicts) with an injectable decision so callers (cmd/hoard,
// tests) control how conflicts are resolved.
type ConflictResolver interface {
	// Resolve returns the Meta that should win for filename, given
	// both sides' current records. Returning local or remote unchanged
	// is valid; so is returning a synthesized value.
	Resolve(filename string, local, remote meta.Meta) (meta.Meta, error)
}

// PreferLocal always keeps the local side's content, discarding the
// remote change.
type PreferLocal struct{}

func (PreferLocal) Resolve(_ string, local, _ meta.Meta) (meta.Meta, error) { return local, nil }

// PreferRemote always keeps the remote side's content, discarding the
// local change.
type PreferRemote struct{}

func (PreferRemote) Resolve(_ string, _ meta.Meta, remote meta.Meta) (meta.Meta, error) {
	return remote, nil
}

// PreferNewest keeps whichever side has the later modtime, falling
// back to local on an exact tie.
type PreferNewest struct{}

func (PreferNewest) Resolve(_ string, local, remote meta.Meta) (meta.Meta, error) {
	if remote.Modtime > local.Modtime {
		return remote, nil
	}
	return local, nil
}

// ErrUnresolvedConflict is returned by a resolver that refuses to
// decide (e.g. one driving an interactive prompt the user aborted).
var ErrUnresolvedConflict = errors.New("syncplan: conflict not resolved")

// findCommonCommit locates the most recent commit UID common to both
// of a file's flat commit-history lists. It is not a DAG walk: each
// list is just the ordered sequence of commit UIDs that touched this
// file, so the search short-circuits when both histories' last entries
// already agree, otherwise indexes the shorter list and scans the
// longer one in reverse. Mirrors remote.py:_find_common_commit.
func findCommonCommit(a, b []string) (string, bool) {
	if len(a) > 0 && len(b) > 0 && a[len(a)-1] == b[len(b)-1] {
		return a[len(a)-1], true
	}
	short, long := a, b
	if len(short) > len(long) {
		short, long = long, short
	}
	index := make(map[string]struct{}, len(short))
	for _, uid := range short {
		index[uid] = struct{}{}
	}
	for i := len(long) - 1; i >= 0; i-- {
		if _, ok := index[long[i]]; ok {
			return long[i], true
		}
	}
	return "", false
}

// lastUID returns the final entry of a commit-history list, or "" if
// empty.
func lastUID(history []string) string {
	if len(history) == 0 {
		return ""
	}
	return history[len(history)-1]
}

// Build computes the full sync plan between a local and a remote
// database, the equivalent of remote.py:remote_sync's planning phase
// (append_missing_files + _build_process_common_files +
// detect_move_files). It does not touch any filesystem; ExecuteSync
// (package remote) turns the resulting Table into actual file
// operations.
func Build(local, remote *meta.Database, resolver ConflictResolver) (*Table, error) {
	if resolver == nil {
		resolver = PreferNewest{}
	}
	table := &Table{}
	seen := make(map[string]struct{})

	for _, filename := range local.MetaListKeys() {
		seen[filename] = struct{}{}
		lm, err := local.MetaGet(filename)
		if err != nil {
			return nil, err
		}
		rm, err := remote.MetaGet(filename)
		if errors.Is(err, meta.ErrNotFound) {
			if lm.Checksum.Normal() {
				table.Copy = append(table.Copy, lm)
			} else {
				// Missing on remote and marked for deletion/revert: the
				// remote peer never had this file, but still needs to
				// learn the marker. Mirrors remote.py:79-81.
				table.Merged = append(table.Merged, MergedEntry{Filename: filename, Resolved: lm, Direction: DirectionPush})
			}
			continue
		}
		if err != nil {
			return nil, err
		}
		if err := processCommonFile(table, filename, lm, rm, resolver); err != nil {
			return nil, fmt.Errorf("syncplan: %s: %w", filename, err)
		}
	}

	for _, filename := range remote.MetaListKeys() {
		if _, ok := seen[filename]; ok {
			continue
		}
		rm, err := remote.MetaGet(filename)
		if err != nil {
			return nil, err
		}
		if rm.Checksum.Normal() {
			table.CopyLocal = append(table.CopyLocal, rm)
		} else {
			table.Merged = append(table.Merged, MergedEntry{Filename: filename, Resolved: rm, Direction: DirectionPull})
		}
	}

	detectMoveFiles(table)
	return table, nil
}

// processCommonFile decides what to do about a single filename known
// to both databases. Mirrors remote.py:_build_process_common_files's
// per-file branch: the ancestor relationship (fast-forward vs.
// diverged) is decided first, and only the fast-forward arms may take
// the unconditional-delete shortcut; a removed/reverted marker that
// shows up on a diverged file is a conflict like any other content
// mismatch, never a silent delete.
func processCommonFile(table *Table, filename string, lm, rm meta.Meta, resolver ConflictResolver) error {
	if lm.Checksum == rm.Checksum {
		return nil
	}

	commonUID, found := findCommonCommit(lm.LastCommits, rm.LastCommits)
	localAhead := !found || commonUID != lastUID(lm.LastCommits)
	remoteAhead := !found || commonUID != lastUID(rm.LastCommits)

	switch {
	case !localAhead && !remoteAhead:
		// Neither side has a commit past their common ancestor, so a
		// checksum mismatch can only come from a revert marker.
		// Mirrors remote.py:341-358's (0,0) case.
		switch {
		case lm.Checksum == meta.ChecksumReverted && rm.Checksum == meta.ChecksumReverted:
			return nil
		case lm.Checksum == meta.ChecksumReverted:
			table.CopyLocal = append(table.CopyLocal, rm)
		case rm.Checksum == meta.ChecksumReverted:
			table.Copy = append(table.Copy, lm)
		default:
			return conflict(table, filename, lm, rm, resolver)
		}
	case !localAhead && remoteAhead:
		// Fast-forward pull: only the remote side has moved since the
		// ancestor, so a remote deletion is unconditionally applied
		// locally. remote.py:375-377.
		if rm.Checksum == meta.ChecksumRemoved {
			table.DeleteLocal = append(table.DeleteLocal, lm)
			return nil
		}
		table.Merged = append(table.Merged, MergedEntry{Filename: filename, Resolved: rm, Direction: DirectionPull})
	case localAhead && !remoteAhead:
		// Fast-forward push: only the local side has moved since the
		// ancestor, so a local deletion is unconditionally applied on
		// the remote. remote.py:377-379.
		if lm.Checksum == meta.ChecksumRemoved {
			table.DeleteRemote = append(table.DeleteRemote, rm)
			return nil
		}
		table.Merged = append(table.Merged, MergedEntry{Filename: filename, Resolved: lm, Direction: DirectionPush})
	default:
		// Both sides advanced since the common ancestor (or no common
		// ancestor exists at all): a genuine conflict. A removed/
		// reverted sentinel can never equal a real checksum, so it
		// lands here rather than being deleted silently.
		return conflict(table, filename, lm, rm, resolver)
	}
	return nil
}

// conflict hands filename's divergent local/remote Meta to resolver and
// records the outcome as a flagged Merged entry. Mirrors
// remote.py:_solve_conflicts.
func conflict(table *Table, filename string, lm, rm meta.Meta, resolver ConflictResolver) error {
	resolved, err := resolver.Resolve(filename, lm, rm)
	if err != nil {
		return err
	}
	direction := DirectionPush
	if resolved.Checksum == rm.Checksum && resolved.Modtime == rm.Modtime {
		direction = DirectionPull
	}
	table.Merged = append(table.Merged, MergedEntry{
		Filename:  filename,
		Resolved:  resolved,
		Direction: direction,
		Conflict:  true,
	})
	return nil
}

// detectMoveFiles folds a delete+add pair with matching checksums into
// a single rename, so a sync replays a rename instead of a delete
// followed by an unrelated-looking copy. Mirrors
// remote.py:detect_move_files.
func detectMoveFiles(table *Table) {
	table.Copy, table.DeleteRemote = foldMoves(table.Copy, table.DeleteRemote, DirectionPush, &table.Move)
	table.CopyLocal, table.DeleteLocal = foldMoves(table.CopyLocal, table.DeleteLocal, DirectionPull, &table.Move)
}

// foldMoves matches each entry in deletes against adds by checksum; a
// match becomes a Move and is removed from both input slices.
func foldMoves(adds, deletes []meta.Meta, direction Direction, moves *[]MovePair) (remainingAdds, remainingDeletes []meta.Meta) {
	usedAdds := make(map[int]bool)

	for _, del := range deletes {
		matched := false
		for i, add := range adds {
			if usedAdds[i] || add.Checksum != del.Checksum || !add.Checksum.Normal() {
				continue
			}
			*moves = append(*moves, MovePair{From: del, To: add, Direction: direction})
			usedAdds[i] = true
			matched = true
			break
		}
		if !matched {
			remainingDeletes = append(remainingDeletes, del)
		}
	}
	for i, add := range adds {
		if !usedAdds[i] {
			remainingAdds = append(remainingAdds, add)
		}
	}
	return remainingAdds, remainingDeletes
}

// AppendCommits unions commit history: every commit known to source
// but missing from dest is copied over, keyed by UID. Mirrors
// remote.py:_append_commits, run after a sync so both peers end up with
// the same commit log.
func AppendCommits(dest, source *meta.Database) {
	for _, uid := range source.CommitListKeys() {
		if _, err := dest.CommitGet(uid); err == nil {
			continue
		}
		c, err := source.CommitGet(uid)
		if err != nil {
			continue
		}
		dest.CommitAdd(c)
	}
}
