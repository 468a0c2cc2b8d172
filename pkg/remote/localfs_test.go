package remote

import (
	"io"
	"strings"
	"testing"

	"github.com/spf13/afero"

	"github.com/odvcencio/hoard/pkg/meta"
)

func newTestLocalFS(t *testing.T) (*LocalFS, afero.Fs) {
	t.Helper()
	fs := afero.NewMemMapFs()
	if err := fs.MkdirAll("/repo/.hoard", 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	db, err := meta.Create(fs, "/repo/.hoard", "repo1")
	if err != nil {
		t.Fatalf("create db: %v", err)
	}
	return NewLocalFS(fs, "/repo", "/repo/.hoard", 0, db), fs
}

func TestLocalFSFileSetGetRoundTrip(t *testing.T) {
	lfs, _ := newTestLocalFS(t)
	target := meta.Meta{Filename: "a.txt", Modtime: 100}

	if err := lfs.FileSet(target, strings.NewReader("hello")); err != nil {
		t.Fatalf("file set: %v", err)
	}

	r, err := lfs.FileGet(target)
	if err != nil {
		t.Fatalf("file get: %v", err)
	}
	defer r.Close()
	got, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(got) != "hello" {
		t.Fatalf("got %q", got)
	}
}

func TestLocalFSFileSetRefusesUntrackedOverwrite(t *testing.T) {
	lfs, fs := newTestLocalFS(t)
	if err := afero.WriteFile(fs, "/repo/a.txt", []byte("untracked content"), 0o644); err != nil {
		t.Fatalf("seed file: %v", err)
	}

	target := meta.Meta{Filename: "a.txt", Modtime: 999, Checksum: "somehash"}
	err := lfs.FileSet(target, strings.NewReader("incoming"))
	if err == nil {
		t.Fatal("expected refusal to overwrite untracked content")
	}
}

func TestLocalFSFileSetAllowsResumeViaTrash(t *testing.T) {
	lfs, fs := newTestLocalFS(t)
	if err := afero.WriteFile(fs, "/repo/a.txt", []byte("partial"), 0o644); err != nil {
		t.Fatalf("seed file: %v", err)
	}
	if err := lfs.view.TrashAdd("a.txt", false); err != nil {
		t.Fatalf("trash add: %v", err)
	}
	if err := afero.WriteFile(fs, "/repo/a.txt", []byte("partial-again"), 0o644); err != nil {
		t.Fatalf("reseed file: %v", err)
	}

	target := meta.Meta{Filename: "a.txt", Modtime: 123}
	if err := lfs.FileSet(target, strings.NewReader("final content")); err != nil {
		t.Fatalf("expected resumed write to be allowed: %v", err)
	}
}

func TestLocalFSFileMoveAndCopy(t *testing.T) {
	lfs, _ := newTestLocalFS(t)
	src := meta.Meta{Filename: "a.txt", Modtime: 1}
	if err := lfs.FileSet(src, strings.NewReader("content")); err != nil {
		t.Fatalf("file set: %v", err)
	}

	dstCopy := meta.Meta{Filename: "b.txt", Modtime: 1}
	if err := lfs.FileCopy(src, dstCopy); err != nil {
		t.Fatalf("copy: %v", err)
	}
	if !lfs.view.FileExists("a.txt") || !lfs.view.FileExists("b.txt") {
		t.Fatal("expected both source and copy to exist")
	}

	dstMove := meta.Meta{Filename: "c.txt", Modtime: 1}
	if err := lfs.FileMove(src, dstMove); err != nil {
		t.Fatalf("move: %v", err)
	}
	if lfs.view.FileExists("a.txt") {
		t.Fatal("expected source to be gone after move")
	}
	if !lfs.view.FileExists("c.txt") {
		t.Fatal("expected move target to exist")
	}
}

func TestParseScheme(t *testing.T) {
	got, err := ParseScheme("file:///tmp/repo")
	if err != nil || got != "file" {
		t.Fatalf("got %q, err %v", got, err)
	}
	got2, err := ParseScheme("ssh://user@host:/tmp/repo")
	if err != nil || got2 != "ssh" {
		t.Fatalf("got %q, err %v", got2, err)
	}
	if _, err := ParseScheme("not-a-url"); err == nil {
		t.Fatal("expected error for unscoped url")
	}
}
