package fsview

import (
	"bytes"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/spf13/afero"

	"github.com/odvcencio/hoard/pkg/meta"
)

func newTestView(t *testing.T) (*View, afero.Fs) {
	t.Helper()
	fs := afero.NewMemMapFs()
	if err := fs.MkdirAll("/repo", 0o755); err != nil {
		t.Fatalf("mkdir repo: %v", err)
	}
	return New(fs, "/repo", 0, ".hoard"), fs
}

func TestMakeRelative(t *testing.T) {
	v, _ := newTestView(t)
	rel, err := v.MakeRelative("/repo/sub/dir/file.txt")
	if err != nil {
		t.Fatalf("MakeRelative: %v", err)
	}
	if rel != "sub/dir/file.txt" {
		t.Errorf("got %q, want sub/dir/file.txt", rel)
	}
}

func TestFileCreateVerifiesChecksum(t *testing.T) {
	v, _ := newTestView(t)
	data := []byte("hello world")

	// Wrong checksum should be rejected.
	bad := meta.Meta{Filename: "a.txt", Checksum: "deadbeef", Modtime: 1000}
	if err := v.FileCreate(bad, bytes.NewReader(data)); !errors.Is(err, ErrChecksum) {
		t.Fatalf("expected ErrChecksum, got %v", err)
	}

	// Correct checksum should succeed and leave the file readable.
	m := meta.Meta{Filename: "a.txt", Checksum: "5eb63bbbe01eeed093cb22bb8f5acdc3", Modtime: 1000}
	if err := v.FileCreate(m, bytes.NewReader(data)); err != nil {
		t.Fatalf("FileCreate: %v", err)
	}

	rc, err := v.FileRead("a.txt")
	if err != nil {
		t.Fatalf("FileRead: %v", err)
	}
	defer rc.Close()
	got, _ := io.ReadAll(rc)
	if !bytes.Equal(got, data) {
		t.Errorf("content mismatch: got %q", got)
	}
}

func TestFileCreateNoChecksumSkipsVerification(t *testing.T) {
	v, _ := newTestView(t)
	m := meta.Meta{Filename: "b.txt", Checksum: meta.ChecksumNone, Modtime: 500}
	if err := v.FileCreate(m, bytes.NewReader([]byte("anything"))); err != nil {
		t.Fatalf("FileCreate: %v", err)
	}
	if !v.FileExists("b.txt") {
		t.Error("expected b.txt to exist")
	}
}

func TestMetaUpdate(t *testing.T) {
	v, fs := newTestView(t)
	if err := afero.WriteFile(fs, "/repo/c.txt", []byte("hello world"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := fs.Chtimes("/repo/c.txt", time.Unix(42, 0), time.Unix(42, 0)); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	m := meta.New("c.txt")
	n, err := v.MetaUpdate(&m)
	if err != nil {
		t.Fatalf("MetaUpdate: %v", err)
	}
	if n != 11 {
		t.Errorf("got %d bytes, want 11", n)
	}
	if m.Checksum != "5eb63bbbe01eeed093cb22bb8f5acdc3" {
		t.Errorf("got checksum %q", m.Checksum)
	}
	if m.Modtime != 42 {
		t.Errorf("got modtime %d, want 42", m.Modtime)
	}
}

func TestRecursiveWalkFilesSkipsMetadataDir(t *testing.T) {
	v, fs := newTestView(t)
	_ = afero.WriteFile(fs, "/repo/a.txt", []byte("a"), 0o644)
	_ = afero.WriteFile(fs, "/repo/sub/b.txt", []byte("b"), 0o644)
	_ = afero.WriteFile(fs, "/repo/.hoard/database.json", []byte("{}"), 0o644)

	files, err := v.RecursiveWalkFiles("")
	if err != nil {
		t.Fatalf("RecursiveWalkFiles: %v", err)
	}

	want := map[string]bool{"a.txt": true, "sub/b.txt": true}
	if len(files) != len(want) {
		t.Fatalf("got %v, want keys of %v", files, want)
	}
	for _, f := range files {
		if !want[f] {
			t.Errorf("unexpected file %q", f)
		}
	}
}

func TestTrashAddAndRevert(t *testing.T) {
	v, fs := newTestView(t)
	_ = afero.WriteFile(fs, "/repo/d.txt", []byte("d"), 0o644)

	if err := v.TrashAdd("d.txt", false); err != nil {
		t.Fatalf("TrashAdd: %v", err)
	}
	if v.FileExists("d.txt") {
		t.Error("d.txt should no longer exist in working tree")
	}
	if !v.TrashExists("d.txt") {
		t.Error("expected trash entry for d.txt")
	}

	if err := v.TrashRevert("d.txt"); err != nil {
		t.Fatalf("TrashRevert: %v", err)
	}
	if !v.FileExists("d.txt") {
		t.Error("expected d.txt restored")
	}
}

func TestTrashAddMissingOK(t *testing.T) {
	v, _ := newTestView(t)
	if err := v.TrashAdd("missing.txt", true); err != nil {
		t.Fatalf("expected no error with missingOK, got %v", err)
	}
	if err := v.TrashAdd("missing.txt", false); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestTrashClear(t *testing.T) {
	v, fs := newTestView(t)
	_ = afero.WriteFile(fs, "/repo/e.txt", []byte("e"), 0o644)
	if err := v.TrashAdd("e.txt", false); err != nil {
		t.Fatalf("TrashAdd: %v", err)
	}
	if err := v.TrashClear(); err != nil {
		t.Fatalf("TrashClear: %v", err)
	}
	if v.TrashExists("e.txt") {
		t.Error("expected trash cleared")
	}
}

func TestMoveRejectsExistingTarget(t *testing.T) {
	v, fs := newTestView(t)
	_ = afero.WriteFile(fs, "/repo/src.txt", []byte("x"), 0o644)
	_ = afero.WriteFile(fs, "/repo/dst.txt", []byte("y"), 0o644)

	_, err := v.Move("src.txt", "dst.txt", false, 0)
	if !errors.Is(err, ErrExists) {
		t.Fatalf("expected ErrExists, got %v", err)
	}
}

func TestMoveRenamesAndStampsModtime(t *testing.T) {
	v, fs := newTestView(t)
	_ = afero.WriteFile(fs, "/repo/src.txt", []byte("x"), 0o644)

	rel, err := v.Move("src.txt", "nested/dst.txt", true, 999)
	if err != nil {
		t.Fatalf("Move: %v", err)
	}
	if rel != "nested/dst.txt" {
		t.Errorf("got %q", rel)
	}

	info, err := fs.Stat("/repo/nested/dst.txt")
	if err != nil {
		t.Fatalf("stat moved file: %v", err)
	}
	if info.ModTime().Unix() != 999 {
		t.Errorf("got modtime %d, want 999", info.ModTime().Unix())
	}
}

func TestRemoveEmptyDirsAscendsAndStopsAtRoot(t *testing.T) {
	v, fs := newTestView(t)
	if err := fs.MkdirAll("/repo/a/b/c", 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	if err := v.RemoveEmptyDirs(map[string]struct{}{"a/b/c": {}}); err != nil {
		t.Fatalf("RemoveEmptyDirs: %v", err)
	}

	for _, dir := range []string{"/repo/a/b/c", "/repo/a/b", "/repo/a"} {
		if ok, _ := afero.DirExists(fs, dir); ok {
			t.Errorf("expected %s removed", dir)
		}
	}
	if ok, _ := afero.DirExists(fs, "/repo"); !ok {
		t.Error("repo root should survive")
	}
}

func TestGoUpUntil(t *testing.T) {
	fs := afero.NewMemMapFs()
	_ = fs.MkdirAll("/repo/.hoard", 0o755)
	_ = fs.MkdirAll("/repo/sub/deep", 0o755)

	root, err := GoUpUntil(fs, "/repo/sub/deep", ".hoard", 0)
	if err != nil {
		t.Fatalf("GoUpUntil: %v", err)
	}
	if root != "/repo" {
		t.Errorf("got %q, want /repo", root)
	}
}

func TestGoUpUntilNotFound(t *testing.T) {
	fs := afero.NewMemMapFs()
	_ = fs.MkdirAll("/repo/sub", 0o755)

	_, err := GoUpUntil(fs, "/repo/sub", ".hoard", 3)
	if !errors.Is(err, ErrRootNotFound) {
		t.Fatalf("expected ErrRootNotFound, got %v", err)
	}
}
