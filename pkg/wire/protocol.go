// Package wire implements spec.md §4.6's wire protocol: JSON control
// frames terminated by a single NUL byte, length-prefixed raw data
// frames, and the small fixed command set a repository uses to drive a
// remote peer over a duplex byte stream. Grounded byte-for-byte on the
// reference's remote_ssh.py (RemoteConnection / RemoteSSHServer); the
// teacher has no equivalent package since its own remote transport is
// HTTP.
package wire

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/odvcencio/hoard/pkg/meta"
)

// Command is one of the fixed three- to five-character protocol mnemonics.
type Command string

const (
	CmdHello  Command = "hello"
	CmdClose  Command = "close"
	CmdGet    Command = "get"
	CmdSet    Command = "set"
	CmdDel    Command = "del"
	CmdMove   Command = "mov"
	CmdCopy   Command = "cpy"
	CmdDBGet  Command = "dbg"
	CmdDBSet  Command = "dbs"
)

// Status is a control-frame response status. Anything other than OK or
// Done is treated as an error message describing why the request failed.
const (
	StatusOK   = "ok"
	StatusDone = "done"
)

// endMarker terminates every JSON control frame.
const endMarker = 0x00

// MetaPacked is Meta's 3-tuple wire form: [filename, checksum, modtime].
type MetaPacked [3]any

// PackMeta converts a Meta into its wire tuple.
func PackMeta(m meta.Meta) MetaPacked {
	return MetaPacked{m.Filename, string(m.Checksum), m.Modtime}
}

// UnpackMeta converts a wire tuple back into a Meta. It tolerates both
// json.Number and float64 decodings of the modtime field.
func UnpackMeta(raw []any) (meta.Meta, error) {
	if len(raw) != 3 {
		return meta.Meta{}, fmt.Errorf("wire: meta tuple has %d elements, want 3", len(raw))
	}
	filename, ok := raw[0].(string)
	if !ok {
		return meta.Meta{}, fmt.Errorf("wire: meta tuple filename is %T, want string", raw[0])
	}
	checksum, ok := raw[1].(string)
	if !ok {
		return meta.Meta{}, fmt.Errorf("wire: meta tuple checksum is %T, want string", raw[1])
	}
	modtime, err := toInt64(raw[2])
	if err != nil {
		return meta.Meta{}, fmt.Errorf("wire: meta tuple modtime: %w", err)
	}
	return meta.Meta{Filename: filename, Checksum: meta.Checksum(checksum), Modtime: modtime}, nil
}

func toInt64(v any) (int64, error) {
	switch n := v.(type) {
	case json.Number:
		i, err := n.Int64()
		return i, err
	case float64:
		return int64(n), nil
	case int64:
		return n, nil
	default:
		return 0, fmt.Errorf("unsupported numeric type %T", v)
	}
}

// requestFrame is the control frame sent for every command invocation.
type requestFrame struct {
	Cmd    Command `json:"cmd"`
	Params []any   `json:"par"`
}

// ErrConnectionClosed is returned when the peer closes the stream
// (a zero-length read) while waiting for a frame.
var ErrConnectionClosed = errors.New("wire: connection closed")

// ServerError wraps a non-ok/done status string returned by a peer.
type ServerError struct {
	Status string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("wire: remote error: %s", e.Status)
}

// Conn is a framed duplex connection: JSON control frames terminated by
// endMarker, and length-prefixed raw data frames. It directly mirrors
// remote_ssh.py:RemoteConnection's buffering discipline.
type Conn struct {
	r   *bufio.Reader
	w   io.Writer
	buf []byte
}

// NewConn wraps a duplex byte stream.
func NewConn(rw io.ReadWriter) *Conn {
	return &Conn{r: bufio.NewReader(rw), w: rw}
}

// NewConnSplit wraps separate read and write streams, e.g. a
// subprocess's stdout/stdin pair.
func NewConnSplit(r io.Reader, w io.Writer) *Conn {
	return &Conn{r: bufio.NewReader(r), w: w}
}

func (c *Conn) send(data []byte) error {
	if _, err := c.w.Write(data); err != nil {
		return fmt.Errorf("wire: write: %w", err)
	}
	return nil
}

func (c *Conn) sendObject(obj any) error {
	data, err := json.Marshal(obj)
	if err != nil {
		return fmt.Errorf("wire: marshal frame: %w", err)
	}
	data = append(data, endMarker)
	return c.send(data)
}

// waitObject reads up to and including the next endMarker byte and
// JSON-decodes everything before it.
func (c *Conn) waitObject(v any) error {
	raw, err := c.r.ReadBytes(endMarker)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return ErrConnectionClosed
		}
		return fmt.Errorf("wire: read frame: %w", err)
	}
	raw = bytes.TrimSuffix(raw, []byte{endMarker})
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("wire: decode frame: %w", err)
	}
	return nil
}

// waitCount reads exactly n raw bytes (no framing).
func (c *Conn) waitCount(n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(c.r, buf); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, ErrConnectionClosed
		}
		return nil, fmt.Errorf("wire: read %d bytes: %w", n, err)
	}
	return buf, nil
}

// Ack is the shape of every control-frame reply.
type Ack struct {
	Status   string          `json:"status"`
	Version  string          `json:"version,omitempty"`
	Database json.RawMessage `json:"db,omitempty"`
}

// waitForAck reads one control frame and treats any status other than
// ok/done as a ServerError.
func (c *Conn) waitForAck() (Ack, error) {
	var resp Ack
	if err := c.waitObject(&resp); err != nil {
		return Ack{}, err
	}
	if resp.Status == StatusOK || resp.Status == StatusDone {
		return resp, nil
	}
	return Ack{}, &ServerError{Status: resp.Status}
}

// Send issues a command with parameters and waits for its
// acknowledgement frame.
func (c *Conn) Send(cmd Command, params ...any) (Ack, error) {
	if err := c.sendObject(requestFrame{Cmd: cmd, Params: params}); err != nil {
		return Ack{}, err
	}
	return c.waitForAck()
}

// WaitAck blocks for one ack frame, used by callers that issue a
// command and then stream data before the final acknowledgement
// arrives (e.g. a "set" request).
func (c *Conn) WaitAck() error {
	_, err := c.waitForAck()
	return err
}

// DatabaseFromAck decodes the ack's embedded "db" field, produced by a
// database-get response.
func DatabaseFromAck(ack Ack) (*meta.Database, error) {
	return meta.Decode(bytes.NewReader(ack.Database))
}

// sendRaw writes one control frame without waiting for a reply; used by
// SendResponse and DataSend.
func (c *Conn) sendRaw(obj any) error {
	return c.sendObject(obj)
}

// SendResponse is the server-side counterpart to waitForAck: it writes
// an ok/done/error status frame, optionally merged with extra values.
func (c *Conn) SendResponse(extra map[string]any, errStatus string) error {
	out := map[string]any{}
	if errStatus == "" {
		out["status"] = StatusOK
	} else {
		out["status"] = errStatus
	}
	for k, v := range extra {
		out[k] = v
	}
	return c.sendRaw(out)
}

// ReadRequest reads the next incoming command frame (server side).
func (c *Conn) ReadRequest() (Command, []any, error) {
	var req struct {
		Cmd    Command `json:"cmd"`
		Params []any   `json:"par"`
	}
	if err := c.waitObject(&req); err != nil {
		return "", nil, err
	}
	return req.Cmd, req.Params, nil
}

// dataLenFrame is the header preceding every chunk of a data stream.
type dataLenFrame struct {
	Len int `json:"len"`
}

const dataBlockSize = 1 << 20

// DataSend streams r to the peer in dataBlockSize-sized length-prefixed
// chunks, terminated by a zero-length chunk.
func (c *Conn) DataSend(r io.Reader) error {
	buf := make([]byte, dataBlockSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			if serr := c.sendRaw(dataLenFrame{Len: n}); serr != nil {
				return serr
			}
			if werr := c.send(buf[:n]); werr != nil {
				return werr
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("wire: data send read: %w", err)
		}
	}
	return c.sendRaw(dataLenFrame{Len: 0})
}

// DataReceive returns a Reader that yields the incoming length-prefixed
// data stream until a zero-length terminator frame.
func (c *Conn) DataReceive() io.Reader {
	return &dataReader{conn: c}
}

type dataReader struct {
	conn      *Conn
	remaining int
	done      bool
}

func (d *dataReader) Read(p []byte) (int, error) {
	if d.done {
		return 0, io.EOF
	}
	if d.remaining == 0 {
		var header dataLenFrame
		if err := d.conn.waitObject(&header); err != nil {
			return 0, err
		}
		if header.Len == 0 {
			d.done = true
			return 0, io.EOF
		}
		d.remaining = header.Len
	}

	toRead := len(p)
	if toRead > d.remaining {
		toRead = d.remaining
	}
	chunk, err := d.conn.waitCount(toRead)
	if err != nil {
		return 0, err
	}
	n := copy(p, chunk)
	d.remaining -= n
	return n, nil
}
