package meta

import (
	"bytes"
	"errors"
	"reflect"
	"testing"

	"github.com/spf13/afero"
)

func TestMetaMarshalRoundTrip(t *testing.T) {
	m := Meta{Filename: "a.txt", Modtime: 123, Checksum: "abc", LastCommits: []string{"u1", "u2"}}
	raw, err := m.MarshalJSON()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(raw) != `[123,"abc",["u1","u2"]]` {
		t.Fatalf("unexpected array form: %s", raw)
	}

	var got Meta
	if err := got.UnmarshalJSON(raw); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	got.Filename = "a.txt"
	if !reflect.DeepEqual(got, m) {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, m)
	}
}

func TestDatabaseEncodeDecodeRoundTrip(t *testing.T) {
	db := New("repo1")
	db.MetaSet(Meta{Filename: "a.txt", Modtime: 10, Checksum: "deadbeef"})
	if err := db.StagingAdd(Operation{Filename: "a.txt", Op: OpAdd}); err != nil {
		t.Fatalf("staging add: %v", err)
	}
	db.CommitAdd(Commit{UID: "c1", Timestamp: 1.5, Message: "first", Affected: []Affected{{Filename: "a.txt", Op: OpAdd}}})

	var buf bytes.Buffer
	if err := db.Encode(&buf); err != nil {
		t.Fatalf("encode: %v", err)
	}

	got, err := Decode(&buf)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	m, err := got.MetaGet("a.txt")
	if err != nil {
		t.Fatalf("meta get: %v", err)
	}
	if m.Checksum != "deadbeef" || m.Modtime != 10 {
		t.Errorf("meta mismatch: %+v", m)
	}

	c, err := got.CommitGet("c1")
	if err != nil {
		t.Fatalf("commit get: %v", err)
	}
	if c.Message != "first" || len(c.Affected) != 1 {
		t.Errorf("commit mismatch: %+v", c)
	}
}

func TestMetaFindBuildsAndInvalidatesIndex(t *testing.T) {
	db := New("repo1")
	db.MetaSet(Meta{Filename: "a.txt", Checksum: "c1"})
	db.MetaSet(Meta{Filename: "b.txt", Checksum: ChecksumRemoved})

	m, err := db.MetaFind("c1")
	if err != nil {
		t.Fatalf("meta find: %v", err)
	}
	if m.Filename != "a.txt" {
		t.Errorf("got %q, want a.txt", m.Filename)
	}

	if _, err := db.MetaFind(ChecksumRemoved); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for sentinel checksum, got %v", err)
	}

	// Rewriting a.txt's checksum should invalidate the cached index.
	db.MetaSet(Meta{Filename: "a.txt", Checksum: "c2"})
	if _, err := db.MetaFind("c1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected stale checksum not found, got %v", err)
	}
	m2, err := db.MetaFind("c2")
	if err != nil || m2.Filename != "a.txt" {
		t.Fatalf("expected a.txt for new checksum, got %+v, err %v", m2, err)
	}
}

func TestStagingAddRejectsDuplicate(t *testing.T) {
	db := New("repo1")
	if err := db.StagingAdd(Operation{Filename: "a.txt", Op: OpAdd}); err != nil {
		t.Fatalf("first add: %v", err)
	}
	if err := db.StagingAdd(Operation{Filename: "a.txt", Op: OpDel}); !errors.Is(err, ErrStagingConflict) {
		t.Fatalf("expected ErrStagingConflict, got %v", err)
	}
}

func TestRecursiveWalkFilesTombstoneFallthrough(t *testing.T) {
	db := New("repo1")
	db.MetaSet(Meta{Filename: "dir", Checksum: ChecksumRemoved})
	db.MetaSet(Meta{Filename: "dir/inner.txt", Checksum: "cs1"})

	// onlyExisting=false: exact tombstoned match is returned directly.
	got, err := db.RecursiveWalkFiles("dir", false)
	if err != nil {
		t.Fatalf("walk (onlyExisting=false): %v", err)
	}
	if len(got) != 1 || got[0].Filename != "dir" {
		t.Fatalf("expected exact tombstoned match, got %+v", got)
	}

	// onlyExisting=true: exact tombstoned match falls through to the
	// prefix scan and finds the live file below it.
	got2, err := db.RecursiveWalkFiles("dir", true)
	if err != nil {
		t.Fatalf("walk (onlyExisting=true): %v", err)
	}
	if len(got2) != 1 || got2[0].Filename != "dir/inner.txt" {
		t.Fatalf("expected fallthrough to prefix match, got %+v", got2)
	}
}

func TestCommitListSortAndLimit(t *testing.T) {
	db := New("repo1")
	db.CommitAdd(Commit{UID: "c1", Timestamp: 3})
	db.CommitAdd(Commit{UID: "c2", Timestamp: 1})
	db.CommitAdd(Commit{UID: "c3", Timestamp: 2})

	got := db.CommitList(SortByTimestamp, 0, nil)
	if len(got) != 3 || got[0].UID != "c2" || got[1].UID != "c3" || got[2].UID != "c1" {
		t.Fatalf("unexpected sort order: %+v", got)
	}

	limited := db.CommitList(SortByTimestamp, 2, nil)
	if len(limited) != 2 {
		t.Fatalf("expected limit of 2, got %d", len(limited))
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	fs := afero.NewMemMapFs()
	db, err := Create(fs, "/repo/.hoard", "repo1")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	db.MetaSet(Meta{Filename: "a.txt", Checksum: "cs"})
	if err := Save(fs, "/repo/.hoard", db); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := Load(fs, "/repo/.hoard")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.Name != "repo1" {
		t.Errorf("got name %q", got.Name)
	}
	m, err := got.MetaGet("a.txt")
	if err != nil || m.Checksum != "cs" {
		t.Errorf("got meta %+v, err %v", m, err)
	}
}
