package wire

import (
	"io"
	"strings"
	"testing"

	"github.com/spf13/afero"

	"github.com/odvcencio/hoard/pkg/fsview"
	"github.com/odvcencio/hoard/pkg/meta"
)

// testBackend is a minimal Backend for exercising Server without
// pulling in package remote (which itself imports package wire).
type testBackend struct {
	db   *meta.Database
	view *fsview.View
}

func newTestBackend(t *testing.T) *testBackend {
	t.Helper()
	fs := afero.NewMemMapFs()
	if err := fs.MkdirAll("/repo/.hoard", 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	return &testBackend{
		db:   meta.New("repo1"),
		view: fsview.New(fs, "/repo", 0, ".hoard"),
	}
}

func (b *testBackend) DB() *meta.Database   { return b.db }
func (b *testBackend) View() *fsview.View   { return b.view }
func (b *testBackend) SaveDB() error        { return nil }

func runTestServer(t *testing.T, backend *testBackend, serverSide Duplex) {
	t.Helper()
	srv := NewServer(backend)
	conn := NewConn(serverSide)
	go func() {
		srv.Serve(conn)
	}()
}

func TestServeHelloAndClose(t *testing.T) {
	backend := newTestBackend(t)
	clientDuplex, serverDuplex := NewPipePair()
	runTestServer(t, backend, serverDuplex)
	defer clientDuplex.Close()

	client := NewConn(clientDuplex)
	ack, err := client.Send(CmdHello)
	if err != nil {
		t.Fatalf("hello: %v", err)
	}
	if ack.Version != ProtocolVersion {
		t.Fatalf("got version %q", ack.Version)
	}
	if _, err := client.Send(CmdClose); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestServeSetThenGet(t *testing.T) {
	backend := newTestBackend(t)
	clientDuplex, serverDuplex := NewPipePair()
	runTestServer(t, backend, serverDuplex)
	defer clientDuplex.Close()

	client := NewConn(clientDuplex)
	target := meta.Meta{Filename: "a.txt", Modtime: 100}

	if _, err := client.Send(CmdSet, PackMeta(target)); err != nil {
		t.Fatalf("set request: %v", err)
	}
	if err := client.DataSend(strings.NewReader("hello world")); err != nil {
		t.Fatalf("data send: %v", err)
	}
	if err := client.WaitAck(); err != nil {
		t.Fatalf("set ack: %v", err)
	}

	if _, err := client.Send(CmdGet, PackMeta(target)); err != nil {
		t.Fatalf("get request: %v", err)
	}
	got, err := io.ReadAll(client.DataReceive())
	if err != nil {
		t.Fatalf("data receive: %v", err)
	}
	if string(got) != "hello world" {
		t.Fatalf("got %q, want %q", got, "hello world")
	}
}

func TestServeDel(t *testing.T) {
	backend := newTestBackend(t)
	clientDuplex, serverDuplex := NewPipePair()
	runTestServer(t, backend, serverDuplex)
	defer clientDuplex.Close()

	client := NewConn(clientDuplex)
	target := meta.Meta{Filename: "a.txt"}

	if _, err := client.Send(CmdSet, PackMeta(target)); err != nil {
		t.Fatalf("set request: %v", err)
	}
	if err := client.DataSend(strings.NewReader("x")); err != nil {
		t.Fatalf("data send: %v", err)
	}
	if err := client.WaitAck(); err != nil {
		t.Fatalf("set ack: %v", err)
	}

	if _, err := client.Send(CmdDel, PackMeta(target)); err != nil {
		t.Fatalf("del: %v", err)
	}
	if backend.view.FileExists("a.txt") {
		t.Fatal("expected file to be removed")
	}
}

func TestServeDBGet(t *testing.T) {
	backend := newTestBackend(t)
	backend.db.MetaSet(meta.Meta{Filename: "tracked.txt", Checksum: "cs1"})
	clientDuplex, serverDuplex := NewPipePair()
	runTestServer(t, backend, serverDuplex)
	defer clientDuplex.Close()

	client := NewConn(clientDuplex)
	ack, err := client.Send(CmdDBGet)
	if err != nil {
		t.Fatalf("dbg: %v", err)
	}
	db, err := DatabaseFromAck(ack)
	if err != nil {
		t.Fatalf("decode db: %v", err)
	}
	m, err := db.MetaGet("tracked.txt")
	if err != nil || m.Checksum != "cs1" {
		t.Fatalf("got %+v, err %v", m, err)
	}
}
