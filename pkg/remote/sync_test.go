package remote

import (
	"io"
	"strings"
	"testing"

	"github.com/odvcencio/hoard/pkg/meta"
)

func TestExecuteSyncPushesNewLocalFile(t *testing.T) {
	local, _ := newTestLocalFS(t)
	remoteRepo, _ := newTestLocalFS(t)

	if err := local.FileSet(meta.Meta{Filename: "a.txt", Modtime: 1}, strings.NewReader("hello")); err != nil {
		t.Fatalf("seed local file: %v", err)
	}
	local.db.MetaSet(meta.Meta{Filename: "a.txt", Modtime: 1, Checksum: mustChecksum(t, local, "a.txt")})

	if err := local.ExecuteSync(remoteRepo); err != nil {
		t.Fatalf("execute sync: %v", err)
	}

	if !remoteRepo.view.FileExists("a.txt") {
		t.Fatal("expected a.txt to be pushed to remote")
	}
	r, err := remoteRepo.view.FileRead("a.txt")
	if err != nil {
		t.Fatalf("read pushed file: %v", err)
	}
	defer r.Close()
	got, _ := io.ReadAll(r)
	if string(got) != "hello" {
		t.Fatalf("got %q", got)
	}
	if _, err := remoteRepo.db.MetaGet("a.txt"); err != nil {
		t.Fatalf("expected remote database entry: %v", err)
	}
}

func TestExecuteSyncPullsNewRemoteFile(t *testing.T) {
	local, _ := newTestLocalFS(t)
	remoteRepo, _ := newTestLocalFS(t)

	if err := remoteRepo.FileSet(meta.Meta{Filename: "b.txt", Modtime: 1}, strings.NewReader("world")); err != nil {
		t.Fatalf("seed remote file: %v", err)
	}
	remoteRepo.db.MetaSet(meta.Meta{Filename: "b.txt", Modtime: 1, Checksum: mustChecksum(t, remoteRepo, "b.txt")})

	if err := local.ExecuteSync(remoteRepo); err != nil {
		t.Fatalf("execute sync: %v", err)
	}

	if !local.view.FileExists("b.txt") {
		t.Fatal("expected b.txt to be pulled to local")
	}
	if _, err := local.db.MetaGet("b.txt"); err != nil {
		t.Fatalf("expected local database entry: %v", err)
	}
}

func TestExecuteSyncUnionsCommitHistory(t *testing.T) {
	local, _ := newTestLocalFS(t)
	remoteRepo, _ := newTestLocalFS(t)

	local.db.CommitAdd(meta.Commit{UID: "c1", Timestamp: 1})
	remoteRepo.db.CommitAdd(meta.Commit{UID: "c2", Timestamp: 2})

	if err := local.ExecuteSync(remoteRepo); err != nil {
		t.Fatalf("execute sync: %v", err)
	}

	if _, err := local.db.CommitGet("c2"); err != nil {
		t.Fatalf("expected local to gain c2: %v", err)
	}
	if _, err := remoteRepo.db.CommitGet("c1"); err != nil {
		t.Fatalf("expected remote to gain c1: %v", err)
	}
}

func mustChecksum(t *testing.T, lfs *LocalFS, filename string) meta.Checksum {
	t.Helper()
	m, exists, err := lfs.ComputeMeta(filename)
	if err != nil || !exists {
		t.Fatalf("compute meta for %s: exists=%v err=%v", filename, exists, err)
	}
	return m.Checksum
}
