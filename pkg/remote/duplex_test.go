package remote

import (
	"io"
	"strings"
	"testing"

	"github.com/odvcencio/hoard/pkg/meta"
	"github.com/odvcencio/hoard/pkg/wire"
)

func TestDuplexRemoteFileSetGet(t *testing.T) {
	serverFS, _ := newTestLocalFS(t)
	clientDuplex, serverDuplex := wire.NewPipePair()
	defer clientDuplex.Close()

	srv := wire.NewServer(serverFS)
	serverConn := wire.NewConn(serverDuplex)
	go srv.Serve(serverConn)

	client := NewDuplexRemote(clientDuplex)
	target := meta.Meta{Filename: "a.txt", Modtime: 100}
	if err := client.FileSet(target, strings.NewReader("content via wire")); err != nil {
		t.Fatalf("file set: %v", err)
	}

	r, err := client.FileGet(target)
	if err != nil {
		t.Fatalf("file get: %v", err)
	}
	defer r.Close()
	got, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(got) != "content via wire" {
		t.Fatalf("got %q", got)
	}
}

func TestDuplexRemoteDatabaseRoundTrip(t *testing.T) {
	serverFS, _ := newTestLocalFS(t)
	serverFS.db.MetaSet(meta.Meta{Filename: "tracked.txt", Checksum: "cs1"})

	clientDuplex, serverDuplex := wire.NewPipePair()
	defer clientDuplex.Close()

	srv := wire.NewServer(serverFS)
	serverConn := wire.NewConn(serverDuplex)
	go srv.Serve(serverConn)

	client := NewDuplexRemote(clientDuplex)
	db := client.DatabaseGet()
	m, err := db.MetaGet("tracked.txt")
	if err != nil || m.Checksum != "cs1" {
		t.Fatalf("got %+v, err %v", m, err)
	}

	db.MetaSet(meta.Meta{Filename: "new.txt", Checksum: "cs2"})
	if err := client.DatabaseSave(); err != nil {
		t.Fatalf("database save: %v", err)
	}
	got, err := serverFS.DB().MetaGet("new.txt")
	if err != nil || got.Checksum != "cs2" {
		t.Fatalf("server db not updated: %+v, err %v", got, err)
	}
}

func TestDuplexRemoteFileDel(t *testing.T) {
	serverFS, _ := newTestLocalFS(t)
	clientDuplex, serverDuplex := wire.NewPipePair()
	defer clientDuplex.Close()

	srv := wire.NewServer(serverFS)
	serverConn := wire.NewConn(serverDuplex)
	go srv.Serve(serverConn)

	client := NewDuplexRemote(clientDuplex)
	target := meta.Meta{Filename: "a.txt", Modtime: 1}
	if err := client.FileSet(target, strings.NewReader("x")); err != nil {
		t.Fatalf("file set: %v", err)
	}
	if err := client.FileDel(target); err != nil {
		t.Fatalf("file del: %v", err)
	}
	if serverFS.view.FileExists("a.txt") {
		t.Fatal("expected file removed on server")
	}
}
