// Package fsview implements spec.md §4.1's Filesystem view: the layer
// that resolves a repository root, walks tracked files, streams
// checksums, and moves files in and out of the trash directory. It is
// built over afero.Fs so the whole component is testable against an
// in-memory tree, following the same atomic temp-file-then-rename
// discipline the teacher's object store uses for its own writes.
package fsview

import (
	"crypto/md5"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/afero"

	"github.com/odvcencio/hoard/pkg/meta"
)

// Sentinel errors, mirroring the reference's SA_FS_Exception hierarchy.
var (
	ErrNotFound     = errors.New("fsview: not found")
	ErrExists       = errors.New("fsview: target exists")
	ErrUnsupported  = errors.New("fsview: unsupported path type")
	ErrChecksum     = errors.New("fsview: checksum mismatch")
	ErrRootNotFound = errors.New("fsview: repository root not found")
)

// DefaultBlockSize is the streaming read/write chunk size, matching
// spec.md §6's build-time default of 1 MiB.
const DefaultBlockSize = 1 << 20

// TrashDir is the name of the staging area used for resumable,
// at-most-once file transfers (spec.md §4.6's crash-safety protocol).
const TrashDir = ".trash"

// View resolves paths against a repository root and performs all
// working-tree I/O through an afero.Fs.
type View struct {
	fs        afero.Fs
	root      string // absolute path to the repository root
	blockSize int
	blacklist string // path prefix excluded from recursive walks (metadata dir)
}

// New returns a View rooted at root, using fs for all I/O. blockSize <=
// 0 falls back to DefaultBlockSize. blacklist names a path prefix (the
// metadata directory) excluded from RecursiveWalkFiles.
func New(fs afero.Fs, root string, blockSize int, blacklist string) *View {
	if blockSize <= 0 {
		blockSize = DefaultBlockSize
	}
	return &View{fs: fs, root: root, blockSize: blockSize, blacklist: blacklist}
}

// Root returns the resolved repository root.
func (v *View) Root() string { return v.root }

// GoUpUntil walks up from start looking for a directory containing
// targetDir, mirroring filesystem.py:Filesystem.go_up_until. It returns
// the directory where targetDir was found.
func GoUpUntil(fs afero.Fs, start, targetDir string, maxLevels int) (string, error) {
	current := filepath.Clean(start)
	if maxLevels <= 0 {
		maxLevels = len(strings.Split(current, string(filepath.Separator)))
	}

	for n := 0; n < maxLevels; n++ {
		candidate := filepath.Join(current, targetDir)
		if ok, err := afero.DirExists(fs, candidate); err == nil && ok {
			return current, nil
		}
		parent := filepath.Dir(current)
		if parent == current {
			break
		}
		current = parent
	}
	return "", fmt.Errorf("%w: %s not found above %s", ErrRootNotFound, targetDir, start)
}

// makeAbsolute resolves a repository-relative path against the root.
func (v *View) makeAbsolute(target string) string {
	return filepath.Join(v.root, target)
}

// MakeRelative converts an absolute (or root-joined) path back to a
// path relative to the repository root, using forward slashes so that
// filenames are portable across platforms in the persisted database.
func (v *View) MakeRelative(raw string) (string, error) {
	abs := raw
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(v.root, abs)
	}
	rel, err := filepath.Rel(v.root, abs)
	if err != nil {
		return "", fmt.Errorf("fsview: make relative %s: %w", raw, err)
	}
	return filepath.ToSlash(rel), nil
}

// isBlacklisted reports whether a relative path falls under the
// metadata directory or the trash staging area, mirroring
// filesystem.py:is_blacklisted.
func (v *View) isBlacklisted(relative string) bool {
	if relative == TrashDir || strings.HasPrefix(relative, TrashDir+"/") {
		return true
	}
	if v.blacklist == "" {
		return false
	}
	return relative == v.blacklist || strings.HasPrefix(relative, v.blacklist+"/")
}

// RecursiveWalkFiles yields every tracked-eligible file under the given
// repository-relative path, descending into directories and skipping
// the metadata directory. Mirrors filesystem.py:recursive_walk_files.
func (v *View) RecursiveWalkFiles(relative string) ([]string, error) {
	if v.isBlacklisted(relative) {
		return nil, nil
	}

	abs := v.makeAbsolute(relative)
	info, err := v.fs.Stat(abs)
	if err != nil {
		if isNotExistErr(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, relative)
		}
		return nil, fmt.Errorf("fsview: stat %s: %w", relative, err)
	}

	if info.Mode().IsRegular() {
		return []string{relative}, nil
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, relative)
	}

	entries, err := afero.ReadDir(v.fs, abs)
	if err != nil {
		return nil, fmt.Errorf("fsview: readdir %s: %w", relative, err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	var out []string
	for _, e := range entries {
		childRel := path_join(relative, e.Name())
		children, err := v.RecursiveWalkFiles(childRel)
		if err != nil {
			return nil, err
		}
		out = append(out, children...)
	}
	return out, nil
}

func path_join(base, name string) string {
	if base == "" || base == "." {
		return name
	}
	return base + "/" + name
}

// GetModtime returns the truncated-to-seconds modification time of a
// repository-relative file, matching filesystem.py:make_time's
// int(timestamp) truncation.
func (v *View) GetModtime(relative string) (int64, error) {
	info, err := v.fs.Stat(v.makeAbsolute(relative))
	if err != nil {
		if isNotExistErr(err) {
			return 0, fmt.Errorf("%w: %s", ErrNotFound, relative)
		}
		return 0, fmt.Errorf("fsview: stat %s: %w", relative, err)
	}
	return info.ModTime().Unix(), nil
}

// checksumFile streams relative's content through MD5 in blockSize
// chunks, mirroring the reference's fixed block-size read loop.
func (v *View) checksumFile(relative string) (meta.Checksum, int64, error) {
	f, err := v.fs.Open(v.makeAbsolute(relative))
	if err != nil {
		if isNotExistErr(err) {
			return "", 0, fmt.Errorf("%w: %s", ErrNotFound, relative)
		}
		return "", 0, fmt.Errorf("fsview: open %s: %w", relative, err)
	}
	defer f.Close()

	h := md5.New()
	buf := make([]byte, v.blockSize)
	var total int64
	for {
		n, rerr := f.Read(buf)
		if n > 0 {
			h.Write(buf[:n])
			total += int64(n)
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return "", 0, fmt.Errorf("fsview: read %s: %w", relative, rerr)
		}
	}
	return meta.Checksum(fmt.Sprintf("%x", h.Sum(nil))), total, nil
}

// MetaUpdate recomputes m's Modtime and Checksum from the file on disk,
// mirroring filesystem.py:meta_update. It returns the number of bytes
// read.
func (v *View) MetaUpdate(m *meta.Meta) (int64, error) {
	modtime, err := v.GetModtime(m.Filename)
	if err != nil {
		return 0, err
	}
	m.Modtime = modtime

	checksum, n, err := v.checksumFile(m.Filename)
	if err != nil {
		return 0, err
	}
	m.Checksum = checksum
	return n, nil
}

// ComputeMeta returns the live on-disk modtime and checksum for a
// repository-relative file, or exists=false if it is absent. Used by
// package remote's overwrite guard to compare incoming sync metadata
// against what is actually on disk right now.
func (v *View) ComputeMeta(relative string) (meta.Meta, bool, error) {
	if !v.FileExists(relative) {
		return meta.Meta{}, false, nil
	}
	m := meta.New(relative)
	if _, err := v.MetaUpdate(&m); err != nil {
		return meta.Meta{}, false, err
	}
	return m, true, nil
}

// MakeDirectories creates a repository-relative directory and any
// missing parents.
func (v *View) MakeDirectories(relative string) error {
	if err := v.fs.MkdirAll(v.makeAbsolute(relative), 0o755); err != nil {
		return fmt.Errorf("fsview: mkdir %s: %w", relative, err)
	}
	return nil
}

// trashPrepare returns the absolute trash-side path for a
// repository-relative file, creating parent directories as needed.
func (v *View) trashPrepare(relative string) (string, error) {
	target := v.makeAbsolute(filepath.Join(TrashDir, relative))
	if err := v.fs.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return "", fmt.Errorf("fsview: mkdir trash dir: %w", err)
	}
	return target, nil
}

// FileCreate writes dataSource to m.Filename via the trash staging
// area, verifying the streamed checksum against m.Checksum (when set)
// before the final atomic rename. Mirrors filesystem.py:file_create.
func (v *View) FileCreate(m meta.Meta, dataSource io.Reader) error {
	dest := v.makeAbsolute(m.Filename)
	if err := v.fs.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("fsview: mkdir %s: %w", m.Filename, err)
	}

	tmp, err := v.trashPrepare(m.Filename)
	if err != nil {
		return err
	}

	var h = md5.New()
	checkChecksum := m.Checksum != meta.ChecksumNone

	out, err := v.fs.Create(tmp)
	if err != nil {
		return fmt.Errorf("fsview: create temp for %s: %w", m.Filename, err)
	}

	buf := make([]byte, v.blockSize)
	var total int64
	for {
		n, rerr := dataSource.Read(buf)
		if n > 0 {
			if checkChecksum {
				h.Write(buf[:n])
			}
			if _, werr := out.Write(buf[:n]); werr != nil {
				out.Close()
				return fmt.Errorf("fsview: write temp for %s: %w", m.Filename, werr)
			}
			total += int64(n)
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			out.Close()
			return fmt.Errorf("fsview: read source for %s: %w", m.Filename, rerr)
		}
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("fsview: close temp for %s: %w", m.Filename, err)
	}

	if err := setModtime(v.fs, tmp, m.Modtime); err != nil {
		return err
	}

	if checkChecksum {
		sum := meta.Checksum(fmt.Sprintf("%x", h.Sum(nil)))
		if sum != m.Checksum {
			return fmt.Errorf("%w: file %s (calc %s, stored %s, size %d)", ErrChecksum, m.Filename, sum, m.Checksum, total)
		}
	}

	if err := v.fs.Rename(tmp, dest); err != nil {
		return fmt.Errorf("fsview: rename %s into place: %w", m.Filename, err)
	}
	return nil
}

// FileExists reports whether a repository-relative path exists.
func (v *View) FileExists(relative string) bool {
	ok, err := afero.Exists(v.fs, v.makeAbsolute(relative))
	return err == nil && ok
}

// FileDel removes a repository-relative file. missingOK suppresses
// ErrNotFound when the file is already gone.
func (v *View) FileDel(relative string, missingOK bool) error {
	err := v.fs.Remove(v.makeAbsolute(relative))
	if err != nil {
		if isNotExistErr(err) {
			if missingOK {
				return nil
			}
			return fmt.Errorf("%w: %s", ErrNotFound, relative)
		}
		return fmt.Errorf("fsview: remove %s: %w", relative, err)
	}
	return nil
}

// FileRead opens a repository-relative file for streaming reads.
func (v *View) FileRead(relative string) (io.ReadCloser, error) {
	f, err := v.fs.Open(v.makeAbsolute(relative))
	if err != nil {
		if isNotExistErr(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, relative)
		}
		return nil, fmt.Errorf("fsview: open %s: %w", relative, err)
	}
	return f, nil
}

// RemoveEmptyDirs ascends from each given repository-relative path,
// removing now-empty directories up to (but excluding) the repository
// root. Mirrors filesystem.py:remove_empty_dirs /
// _recursive_remove_empty_dirs.
func (v *View) RemoveEmptyDirs(candidates map[string]struct{}) error {
	sorted := make([]string, 0, len(candidates))
	for c := range candidates {
		sorted = append(sorted, c)
	}
	sort.Strings(sorted)

	for _, c := range sorted {
		if err := v.recursiveRemoveEmptyDirs(v.makeAbsolute(c)); err != nil {
			return err
		}
	}
	return nil
}

func (v *View) recursiveRemoveEmptyDirs(path string) error {
	for {
		ok, err := afero.Exists(v.fs, path)
		if err != nil {
			return fmt.Errorf("fsview: stat %s: %w", path, err)
		}
		if ok {
			break
		}
		parent := filepath.Dir(path)
		if parent == path || !strings.HasPrefix(path, v.root) || path == v.root {
			return nil
		}
		path = parent
	}

	info, err := v.fs.Stat(path)
	if err != nil {
		return fmt.Errorf("fsview: stat %s: %w", path, err)
	}
	if !info.IsDir() {
		return nil
	}

	for path != v.root {
		entries, err := afero.ReadDir(v.fs, path)
		if err != nil {
			return fmt.Errorf("fsview: readdir %s: %w", path, err)
		}
		if len(entries) > 0 {
			return nil
		}
		if err := v.fs.Remove(path); err != nil {
			return fmt.Errorf("fsview: rmdir %s: %w", path, err)
		}
		path = filepath.Dir(path)
	}
	return nil
}

// Move renames sourceFile to targetFile (or into targetFile if it is a
// directory), optionally creating parent directories, and optionally
// stamping the result with modtime. Returns the resulting
// repository-relative path. Mirrors filesystem.py:move.
func (v *View) Move(sourceFile, targetFile string, createDirs bool, modtime int64) (string, error) {
	source := v.makeAbsolute(sourceFile)
	target := v.makeAbsolute(targetFile)

	targetFull := target
	if isDir, _ := afero.IsDir(v.fs, target); isDir {
		targetFull = filepath.Join(target, filepath.Base(source))
	}

	if ok, _ := afero.Exists(v.fs, targetFull); ok {
		return "", fmt.Errorf("%w: move target %s", ErrExists, targetFull)
	}

	if createDirs {
		if err := v.fs.MkdirAll(filepath.Dir(targetFull), 0o755); err != nil {
			return "", fmt.Errorf("fsview: mkdir for move target: %w", err)
		}
	}

	if err := v.fs.Rename(source, targetFull); err != nil {
		return "", fmt.Errorf("fsview: move %s to %s: %w", sourceFile, targetFile, err)
	}

	if modtime != 0 {
		if err := setModtime(v.fs, targetFull, modtime); err != nil {
			return "", err
		}
	}

	return v.MakeRelative(targetFull)
}

// TrashAdd moves a repository-relative file into the trash directory,
// preserving its relative path under .trash/. missingOK suppresses
// ErrNotFound when the source is already gone.
func (v *View) TrashAdd(relative string, missingOK bool) error {
	source := v.makeAbsolute(relative)
	target, err := v.trashPrepare(relative)
	if err != nil {
		return err
	}

	if err := v.fs.Rename(source, target); err != nil {
		if isNotExistErr(err) {
			if missingOK {
				return nil
			}
			return fmt.Errorf("%w: %s", ErrNotFound, source)
		}
		return fmt.Errorf("fsview: trash add %s: %w", relative, err)
	}
	return nil
}

// TrashExists reports whether relative has a pending trash entry.
func (v *View) TrashExists(relative string) bool {
	target := v.makeAbsolute(filepath.Join(TrashDir, relative))
	ok, err := afero.Exists(v.fs, target)
	return err == nil && ok
}

// TrashRevert moves a file back out of the trash to its working-tree
// location. Mirrors filesystem.py:trash_revert.
func (v *View) TrashRevert(relative string) error {
	source := v.makeAbsolute(filepath.Join(TrashDir, relative))
	target := v.makeAbsolute(relative)

	if err := v.fs.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("fsview: mkdir for trash revert: %w", err)
	}
	if err := v.fs.Rename(source, target); err != nil {
		if isNotExistErr(err) {
			return fmt.Errorf("%w: %s", ErrNotFound, source)
		}
		return fmt.Errorf("fsview: trash revert %s: %w", relative, err)
	}
	return nil
}

// TrashClear deletes the entire trash directory tree. Mirrors
// filesystem.py:trash_clear.
func (v *View) TrashClear() error {
	path := v.makeAbsolute(TrashDir)
	ok, err := afero.Exists(v.fs, path)
	if err != nil {
		return fmt.Errorf("fsview: stat trash dir: %w", err)
	}
	if !ok {
		return nil
	}
	if err := v.fs.RemoveAll(path); err != nil {
		return fmt.Errorf("fsview: clear trash: %w", err)
	}
	return nil
}

// FileMakeReadonly is a documented no-op, carried forward from the
// reference's filesystem.py:file_make_readonly stub. The commit
// algorithm (pkg/stage) calls it for every newly-added file.
func (v *View) FileMakeReadonly(relative string) error {
	return nil
}

func setModtime(fs afero.Fs, path string, modtime int64) error {
	t := time.Unix(modtime, 0)
	if err := fs.Chtimes(path, t, t); err != nil {
		return fmt.Errorf("fsview: set modtime on %s: %w", path, err)
	}
	return nil
}

func isNotExistErr(err error) bool {
	return errors.Is(err, afero.ErrFileNotFound) || strings.Contains(err.Error(), "no such file or directory") || strings.Contains(err.Error(), "file does not exist") || strings.Contains(err.Error(), "cannot find the file")
}
