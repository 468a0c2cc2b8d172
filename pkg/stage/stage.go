// Package stage implements spec.md §4.3's staging/commit engine: add,
// remove, revert, and commit of tracked files, plus the supplemental
// read-only commands (status, find-dups, log, verify) and the
// external-directory importer (add-from), all grounded on the
// reference's commands.py.
package stage

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/odvcencio/hoard/pkg/fsview"
	"github.com/odvcencio/hoard/pkg/meta"
)

// ErrOperationPending is returned when add/rm targets a file that
// already has a staged operation. Mirrors commands.py's
// "_staging_exists" guard.
var ErrOperationPending = errors.New("stage: operation already pending")

// Engine binds the metadata store to a working-tree view, exposing the
// staging/commit operations spec.md §4.3 names.
type Engine struct {
	DB   *meta.Database
	View *fsview.View

	// AddFromDateFormat is the Go reference-time layout used to bucket
	// ImportFrom's relocated files, mirroring config.ADD_FROM_DATE_FORMAT.
	AddFromDateFormat string
}

// New returns an Engine over db and view.
func New(db *meta.Database, view *fsview.View, addFromDateFormat string) *Engine {
	if addFromDateFormat == "" {
		addFromDateFormat = "2006-01"
	}
	return &Engine{DB: db, View: view, AddFromDateFormat: addFromDateFormat}
}

// stagingExists mirrors commands.py:_staging_exists: a file has a
// pending operation either via an explicit staged Operation, or
// implicitly because its tracked Meta is marked CHECKSUM_REVERTED.
func (e *Engine) stagingExists(filename string) bool {
	if _, err := e.DB.StagingGet(filename); err == nil {
		return true
	}
	if m, err := e.DB.MetaGet(filename); err == nil {
		return m.Checksum == meta.ChecksumReverted
	}
	return false
}

// Add stages an OpAdd operation for every file found by walking each of
// filenames. Returns true if any individual file could not be staged
// (mirrors commands.py:add's had_trouble boolean return).
func (e *Engine) Add(filenames []string) (bool, error) {
	hadTrouble := false
	for _, abstractFilename := range filenames {
		realFilenames, err := e.View.RecursiveWalkFiles(abstractFilename)
		if err != nil {
			return hadTrouble, err
		}
		for _, realFilename := range realFilenames {
			if e.stagingExists(realFilename) {
				hadTrouble = true
				continue
			}
			if err := e.DB.StagingAdd(meta.Operation{Filename: realFilename, Op: meta.OpAdd}); err != nil {
				return hadTrouble, err
			}
		}
	}
	return hadTrouble, nil
}

// Remove stages an OpDel operation for every file found by walking each
// of filenames, trashes the file on disk, and cleans up directories left
// empty by the removal. Mirrors commands.py:rm.
func (e *Engine) Remove(filenames []string) (bool, error) {
	hadTrouble := false
	pathsAffected := map[string]struct{}{}

	for _, abstractFilename := range filenames {
		metas, err := e.DB.RecursiveWalkFiles(abstractFilename, true)
		if err != nil {
			return hadTrouble, err
		}
		for _, m := range metas {
			realFilename := m.Filename
			if e.stagingExists(realFilename) {
				hadTrouble = true
				continue
			}
			if err := e.DB.StagingAdd(meta.Operation{Filename: realFilename, Op: meta.OpDel}); err != nil {
				return hadTrouble, err
			}
			if err := e.View.TrashAdd(realFilename, true); err != nil {
				return hadTrouble, err
			}
			pathsAffected[filepath.Dir(realFilename)] = struct{}{}
		}
	}

	if err := e.View.RemoveEmptyDirs(pathsAffected); err != nil {
		return hadTrouble, err
	}
	return hadTrouble, nil
}

// revertIfModified mirrors commands.py:revert.revert_if_modified.
func (e *Engine) revertIfModified(filename string) (bool, error) {
	metaDB, err := e.DB.MetaGet(filename)
	if err != nil {
		return false, nil
	}

	if metaDB.Checksum == meta.ChecksumReverted {
		return true, nil
	}

	metaFS := meta.New(metaDB.Filename)
	if _, err := e.View.MetaUpdate(&metaFS); err != nil {
		if errors.Is(err, fsview.ErrNotFound) {
			return true, nil
		}
		return false, err
	}
	if metaDB.CheckFSEqual(metaFS) {
		return false, nil
	}
	return true, nil
}

// Revert clears staged operations for the given filenames (or every
// staged operation, if filenames is empty), restoring trashed deletes
// and marking genuinely divergent files CHECKSUM_REVERTED so a later
// sync restores them from a peer. Mirrors commands.py:revert.
func (e *Engine) Revert(filenames []string) error {
	filenamesSet := map[string]struct{}{}
	for _, abstractFilename := range filenames {
		metas, err := e.DB.RecursiveWalkFiles(abstractFilename, true)
		if err != nil {
			return err
		}
		for _, m := range metas {
			filenamesSet[m.Filename] = struct{}{}
		}
	}

	var toRevert []string
	filenamesDone := map[string]struct{}{}

	for _, op := range e.DB.StagingList() {
		if len(filenamesSet) > 0 {
			if _, ok := filenamesSet[op.Filename]; !ok {
				continue
			}
		}

		switch op.Op {
		case meta.OpAdd:
			modified, err := e.revertIfModified(op.Filename)
			if err != nil {
				return err
			}
			if modified {
				toRevert = append(toRevert, op.Filename)
			}
		case meta.OpDel:
			if err := e.View.TrashRevert(op.Filename); err != nil {
				if errors.Is(err, fsview.ErrNotFound) {
					toRevert = append(toRevert, op.Filename)
				} else {
					return err
				}
			}
		default:
			return fmt.Errorf("stage: revert: unsupported staged operation %q on %s", op.Op, op.Filename)
		}
		filenamesDone[op.Filename] = struct{}{}
	}

	for fn := range filenamesSet {
		if _, done := filenamesDone[fn]; done {
			continue
		}
		modified, err := e.revertIfModified(fn)
		if err != nil {
			return err
		}
		if modified {
			toRevert = append(toRevert, fn)
		}
	}

	e.DB.StagingClear()

	for _, fn := range toRevert {
		m, err := e.DB.MetaGet(fn)
		if err != nil {
			return err
		}
		if m.Checksum == meta.ChecksumReverted {
			m.Checksum = meta.ChecksumNone
		} else {
			m.Checksum = meta.ChecksumReverted
		}
		e.DB.MetaSet(m)
	}
	return nil
}

// fastCheckForMods reports the number of tracked files (removed and
// reverted records excluded) whose on-disk modtime differs from the
// database, whether or not an operation is staged for them; files
// missing from disk are not counted. Mirrors
// commands.py:_fast_check_for_mods.
func (e *Engine) fastCheckForMods() (int, error) {
	errorsN := 0
	for _, m := range e.DB.MetaList("") {
		if !m.Checksum.Normal() && m.Checksum != meta.ChecksumNone {
			continue
		}
		fsModtime, err := e.View.GetModtime(m.Filename)
		if err != nil {
			if errors.Is(err, fsview.ErrNotFound) {
				continue
			}
			return 0, err
		}
		if fsModtime != m.Modtime {
			errorsN++
		}
	}
	return errorsN, nil
}

// FastCheckForMods is the exported form of fastCheckForMods. No command
// in cmd/hoard calls it.
func (e *Engine) FastCheckForMods() (int, error) {
	return e.fastCheckForMods()
}

// commitScanForAuto stages OpDel/OpAdd for every tracked file whose
// on-disk state diverges from the database, used by Commit's --auto
// flag. Mirrors commands.py:_commit_scan_for_auto.
func (e *Engine) commitScanForAuto() error {
	for _, m := range e.DB.MetaList("") {
		if m.Checksum == meta.ChecksumRemoved || m.Checksum == meta.ChecksumReverted {
			continue
		}

		fsModtime, err := e.View.GetModtime(m.Filename)
		missing := errors.Is(err, fsview.ErrNotFound)
		if err != nil && !missing {
			return err
		}

		if missing {
			if err := e.DB.StagingAdd(meta.Operation{Filename: m.Filename, Op: meta.OpDel}); err != nil && !errors.Is(err, meta.ErrStagingConflict) {
				return err
			}
			continue
		}
		if fsModtime != m.Modtime || m.Checksum == meta.ChecksumNone {
			if err := e.DB.StagingAdd(meta.Operation{Filename: m.Filename, Op: meta.OpAdd}); err != nil && !errors.Is(err, meta.ErrStagingConflict) {
				return err
			}
		}
	}
	return nil
}

// newCommitUID returns a time-ordered commit identifier. Grounded on
// spec.md §3's choice of ulid.Make() in place of the reference's UUIDv1.
func newCommitUID() string {
	return ulid.Make().String()
}

// Commit processes every staged operation against the database and
// working tree, producing a new immutable Commit record. If auto is
// true, modified and deleted files are staged automatically first.
// Mirrors commands.py:commit.
func (e *Engine) Commit(message string, auto bool) (meta.Commit, int, error) {
	if auto {
		if err := e.commitScanForAuto(); err != nil {
			return meta.Commit{}, 0, err
		}
	}

	pendingOps := e.DB.StagingList()
	commit := meta.Commit{UID: newCommitUID(), Timestamp: float64(time.Now().UnixNano()) / 1e9, Message: message}
	var pendingAdds []string

	for _, op := range pendingOps {
		switch op.Op {
		case meta.OpAdd:
			m, err := e.DB.MetaGet(op.Filename)
			if err == nil {
				origChecksum := m.Checksum
				fsModtime, gerr := e.View.GetModtime(op.Filename)
				if gerr != nil {
					return meta.Commit{}, 0, gerr
				}
				if m.Modtime == fsModtime && origChecksum != meta.ChecksumRemoved {
					continue
				}
				if _, uerr := e.View.MetaUpdate(&m); uerr != nil {
					return meta.Commit{}, 0, uerr
				}
				if origChecksum != meta.ChecksumRemoved {
					op.Op = meta.OpModify
				}
			} else {
				m = meta.New(op.Filename)
				pendingAdds = append(pendingAdds, op.Filename)
				if _, uerr := e.View.MetaUpdate(&m); uerr != nil {
					return meta.Commit{}, 0, uerr
				}
			}
			m.AddCommit(commit.UID)
			e.DB.MetaSet(m)

		case meta.OpDel:
			m, err := e.DB.MetaGet(op.Filename)
			if err != nil {
				return meta.Commit{}, 0, err
			}
			m.Checksum = meta.ChecksumRemoved
			m.Modtime = time.Now().Unix()
			m.AddCommit(commit.UID)
			e.DB.MetaSet(m)

		default:
			return meta.Commit{}, 0, fmt.Errorf("stage: commit: unsupported staged operation %q on %s", op.Op, op.Filename)
		}

		commit.Affected = append(commit.Affected, meta.Affected{Filename: op.Filename, Op: op.Op, Extra: op.Extra})
	}

	for _, fn := range pendingAdds {
		if err := e.View.FileMakeReadonly(fn); err != nil {
			return meta.Commit{}, 0, err
		}
	}

	e.DB.StagingClear()
	if err := e.View.TrashClear(); err != nil {
		return meta.Commit{}, 0, err
	}

	n := commit.OperationCount()
	if n > 0 {
		e.DB.CommitAdd(commit)
	}
	return commit, n, nil
}

// StatusReport is the structured result of Status, mirroring
// commands.py:status's four file-name buckets.
type StatusReport struct {
	Untracked   []string
	Modified    []string
	Deleted     []string
	ToBeReverted []string
}

// Clean reports whether every bucket is empty.
func (r StatusReport) Clean() bool {
	return len(r.Untracked) == 0 && len(r.Modified) == 0 && len(r.Deleted) == 0 && len(r.ToBeReverted) == 0
}

// Status performs a fast scan comparing the working tree against the
// database by modification time only (no checksum recompute). Mirrors
// commands.py:status.
func (e *Engine) Status() (StatusReport, error) {
	var report StatusReport
	checked := map[string]struct{}{}

	relCurrent, err := e.View.MakeRelative(e.View.Root())
	if err != nil {
		return report, err
	}

	realFilenames, err := e.View.RecursiveWalkFiles(relCurrent)
	if err != nil && !errors.Is(err, fsview.ErrNotFound) {
		return report, err
	}

	for _, realFilename := range realFilenames {
		checked[realFilename] = struct{}{}
		m, err := e.DB.MetaGet(realFilename)
		if err != nil {
			if !e.stagingExists(realFilename) {
				report.Untracked = append(report.Untracked, realFilename)
			}
			continue
		}

		if m.Checksum == meta.ChecksumRemoved {
			if !e.stagingExists(realFilename) {
				report.Untracked = append(report.Untracked, realFilename)
			}
			continue
		}
		if m.Checksum == meta.ChecksumReverted {
			continue
		}

		fsModtime, err := e.View.GetModtime(realFilename)
		if err != nil {
			return report, err
		}
		if m.Modtime != fsModtime {
			report.Modified = append(report.Modified, realFilename)
		}
	}

	for _, m := range e.DB.MetaList(relCurrent) {
		if m.Checksum == meta.ChecksumReverted {
			report.ToBeReverted = append(report.ToBeReverted, m.Filename)
		}
		if e.stagingExists(m.Filename) {
			continue
		}
		if _, ok := checked[m.Filename]; ok {
			continue
		}
		if !m.Checksum.Normal() {
			continue
		}
		report.Deleted = append(report.Deleted, m.Filename)
	}

	return report, nil
}

// FindDups groups tracked filenames under the current path prefix by
// checksum, returning only groups with more than one member. Mirrors
// commands.py:find_dups.
func (e *Engine) FindDups() (map[meta.Checksum][]string, error) {
	relCurrent, err := e.View.MakeRelative(e.View.Root())
	if err != nil {
		return nil, err
	}

	seen := map[meta.Checksum]string{}
	dups := map[meta.Checksum][]string{}

	for _, m := range e.DB.MetaList(relCurrent) {
		if !m.Checksum.Normal() {
			continue
		}
		if first, ok := seen[m.Checksum]; ok {
			if existing, ok := dups[m.Checksum]; ok {
				dups[m.Checksum] = append(existing, m.Filename)
			} else {
				dups[m.Checksum] = []string{first, m.Filename}
			}
		} else {
			seen[m.Checksum] = m.Filename
		}
	}

	for cs := range dups {
		sort.Strings(dups[cs])
	}
	return dups, nil
}

// LogEntry wraps a single commit; Log returns []meta.Commit directly
// and does not use it.
type LogEntry struct {
	Commit meta.Commit
}

// Log returns commits touching any of filenames (all commits, if
// filenames is empty), newest-last, limited to count entries. Mirrors
// commands.py:log.
func (e *Engine) Log(filenames []string, count int) ([]meta.Commit, error) {
	var commitsAffected map[string]struct{}
	if len(filenames) > 0 {
		commitsAffected = map[string]struct{}{}
		for _, abstractFilename := range filenames {
			metas, err := e.DB.RecursiveWalkFiles(abstractFilename, false)
			if err != nil {
				continue
			}
			for _, m := range metas {
				for _, uid := range m.LastCommits {
					commitsAffected[uid] = struct{}{}
				}
			}
		}
	}

	return e.DB.CommitList(meta.SortByTimestamp, count, commitsAffected), nil
}

// Verify recomputes the checksum of every tracked file named by
// filenames (or every tracked file, if filenames is empty), reporting
// how many diverge from the database. Mirrors commands.py:verify.
func (e *Engine) Verify(filenames []string) (checked int, mismatched int, err error) {
	verifyOne := func(m meta.Meta) (bool, error) {
		if !m.Checksum.Normal() {
			return true, nil
		}
		fsM := meta.New(m.Filename)
		if _, err := e.View.MetaUpdate(&fsM); err != nil {
			if errors.Is(err, fsview.ErrNotFound) {
				return false, nil
			}
			return false, err
		}
		return fsM.CheckFSEqual(m), nil
	}

	var batches [][]meta.Meta
	if len(filenames) == 0 {
		batches = append(batches, e.DB.MetaList(""))
	} else {
		for _, abstractFilename := range filenames {
			metas, werr := e.DB.RecursiveWalkFiles(abstractFilename, true)
			if werr != nil {
				return checked, mismatched, werr
			}
			batches = append(batches, metas)
		}
	}

	for _, batch := range batches {
		for _, m := range batch {
			checked++
			ok, verr := verifyOne(m)
			if verr != nil {
				return checked, mismatched, verr
			}
			if !ok {
				mismatched++
			}
		}
	}
	return checked, mismatched, nil
}

// ImportFrom walks every file under externalDir (backed by a second
// fsview.View rooted there), relocates each into the working tree under
// <date-bucket>/<basename>, suffixing "-NNN" on clashes, and stages each
// imported file as an OpAdd. When the existing target has the same
// checksum and modtime as the external file, nothing is imported and
// the external file is deleted. Mirrors commands.py:add_from.
func (e *Engine) ImportFrom(external *fsview.View) error {
	realFilenames, err := external.RecursiveWalkFiles("")
	if err != nil {
		return err
	}

	for _, realFilename := range realFilenames {
		modtime, err := external.GetModtime(realFilename)
		if err != nil {
			return err
		}

		bucket := time.Unix(modtime, 0).UTC().Format(e.AddFromDateFormat)
		targetFile := filepath.ToSlash(filepath.Join(bucket, filepath.Base(realFilename)))

		metaOld := meta.New(realFilename)
		if _, err := external.MetaUpdate(&metaOld); err != nil {
			return err
		}

		targetNoClash := targetFile
		if e.View.FileExists(targetNoClash) {
			metaNew := meta.New(targetNoClash)
			if _, err := e.View.MetaUpdate(&metaNew); err != nil {
				return err
			}
			if metaOld.CheckFSEqual(metaNew) {
				if err := external.FileDel(realFilename, true); err != nil {
					return err
				}
				continue
			}

			loop := 0
			for e.View.FileExists(targetNoClash) {
				targetNoClash = fmt.Sprintf("%s-%03d", targetFile, loop)
				loop++
			}
		}

		rc, err := external.FileRead(realFilename)
		if err != nil {
			return err
		}

		metaNew := metaOld.Copy()
		metaNew.Filename = targetNoClash
		if err := e.View.FileCreate(metaNew, rc); err != nil {
			rc.Close()
			return err
		}
		rc.Close()

		if err := e.DB.StagingAdd(meta.Operation{Filename: metaNew.Filename, Op: meta.OpAdd}); err != nil {
			return err
		}
	}
	return nil
}
