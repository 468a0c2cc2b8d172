package remote

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/odvcencio/hoard/pkg/meta"
	"github.com/odvcencio/hoard/pkg/syncplan"
	"github.com/odvcencio/hoard/pkg/wire"
)

// DuplexRemote is a Remote reached over the wire protocol, the
// equivalent of remote_ssh.py:RemoteSSH. It works over any wire.Duplex,
// so the same implementation serves both a real ssh subprocess and an
// in-memory pipe in tests.
type DuplexRemote struct {
	sshBinary string
	path      string
	duplex    wire.Duplex
	conn      *wire.Conn
	db        *meta.Database
	resolver  syncplan.ConflictResolver
}

// SetConflictResolver overrides the resolver ExecuteSync uses when it
// finds a file changed on both sides since their common ancestor. Nil
// (the default) falls back to syncplan.PreferNewest.
func (d *DuplexRemote) SetConflictResolver(r syncplan.ConflictResolver) {
	d.resolver = r
}

// ExecuteSync runs a full two-way sync with peer, treating d as the
// local side.
func (d *DuplexRemote) ExecuteSync(peer Remote) error {
	return executeSync(d, peer, d.resolver)
}

// NewDuplexRemote wraps an already-established wire.Duplex (used by
// tests and by callers that dialed the transport themselves).
func NewDuplexRemote(d wire.Duplex) *DuplexRemote {
	return &DuplexRemote{duplex: d, conn: wire.NewConn(d)}
}

// NewSSHRemote returns a DuplexRemote that dials its transport lazily
// on Open, using sshBinary ("" for the default "ssh").
func NewSSHRemote(sshBinary string) *DuplexRemote {
	return &DuplexRemote{sshBinary: sshBinary}
}

// Open connects to an "ssh://user@host:path" URL and performs the
// hello handshake. The host:path separator is a literal colon, not a
// port, so this is parsed by hand rather than via net/url.
func (d *DuplexRemote) Open(rawURL string) error {
	const prefix = "ssh://"
	if !strings.HasPrefix(rawURL, prefix) {
		return fmt.Errorf("remote: DuplexRemote.Open expects ssh:// scheme, got %q", rawURL)
	}
	rest := strings.TrimPrefix(rawURL, prefix)
	userHost, path, ok := strings.Cut(rest, ":")
	if !ok || userHost == "" || path == "" {
		return fmt.Errorf("remote: malformed ssh url %q, want ssh://user@host:path", rawURL)
	}

	if d.duplex == nil {
		proc, err := wire.DialSSH(d.sshBinary, userHost, path)
		if err != nil {
			return err
		}
		d.duplex = proc
		d.conn = wire.NewConn(proc)
	}

	ack, err := d.conn.Send(wire.CmdHello)
	if err != nil {
		return fmt.Errorf("remote: hello handshake: %w", err)
	}
	if ack.Version != wire.ProtocolVersion {
		return fmt.Errorf("remote: protocol version mismatch: got %q, want %q", ack.Version, wire.ProtocolVersion)
	}
	return nil
}

// Close sends the close command and tears down the transport.
func (d *DuplexRemote) Close() error {
	if d.conn != nil {
		d.conn.Send(wire.CmdClose)
	}
	if d.duplex != nil {
		return d.duplex.Close()
	}
	return nil
}

// DatabaseGet fetches and caches the peer's current database on first
// call; later calls return the same cached pointer so callers can
// mutate it in place before DatabaseSave. The Remote interface leaves
// DatabaseGet error-free, so a transport failure here surfaces as an
// empty, unnamed database rather than a propagated error; callers that
// need to distinguish that case should call Open first and check its
// error.
func (d *DuplexRemote) DatabaseGet() *meta.Database {
	if d.db != nil {
		return d.db
	}
	ack, err := d.conn.Send(wire.CmdDBGet)
	if err != nil {
		return meta.New("")
	}
	db, err := wire.DatabaseFromAck(ack)
	if err != nil {
		return meta.New("")
	}
	d.db = db
	return d.db
}

// DatabaseSave pushes the cached database (as last returned by
// DatabaseGet, and possibly mutated since) to the peer.
func (d *DuplexRemote) DatabaseSave() error {
	if d.db == nil {
		return fmt.Errorf("remote: DatabaseSave called before DatabaseGet")
	}
	var buf bytes.Buffer
	if err := d.db.Encode(&buf); err != nil {
		return err
	}
	var raw any
	if err := json.Unmarshal(buf.Bytes(), &raw); err != nil {
		return fmt.Errorf("remote: re-decode database for transfer: %w", err)
	}
	_, err := d.conn.Send(wire.CmdDBSet, raw)
	return err
}

// FileGet streams target's content from the peer.
func (d *DuplexRemote) FileGet(target meta.Meta) (io.ReadCloser, error) {
	if _, err := d.conn.Send(wire.CmdGet, wire.PackMeta(target)); err != nil {
		return nil, err
	}
	return io.NopCloser(d.conn.DataReceive()), nil
}

// FileSet streams content to the peer under target's metadata.
func (d *DuplexRemote) FileSet(target meta.Meta, content io.Reader) error {
	if _, err := d.conn.Send(wire.CmdSet, wire.PackMeta(target)); err != nil {
		return err
	}
	if err := d.conn.DataSend(content); err != nil {
		return err
	}
	return d.conn.WaitAck()
}

// FileDel removes target on the peer.
func (d *DuplexRemote) FileDel(target meta.Meta) error {
	_, err := d.conn.Send(wire.CmdDel, wire.PackMeta(target))
	return err
}

// FileMove renames source to target on the peer.
func (d *DuplexRemote) FileMove(source, target meta.Meta) error {
	_, err := d.conn.Send(wire.CmdMove, source.Filename, target.Filename)
	return err
}

// FileCopy duplicates source to target on the peer.
func (d *DuplexRemote) FileCopy(source, target meta.Meta) error {
	_, err := d.conn.Send(wire.CmdCopy, source.Filename, target.Filename)
	return err
}
