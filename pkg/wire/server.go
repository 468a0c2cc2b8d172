package wire

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/odvcencio/hoard/pkg/fsview"
	"github.com/odvcencio/hoard/pkg/meta"
)

// ProtocolVersion is exchanged on hello so client and server can refuse
// to talk to an incompatible peer, the same purpose
// remote_ssh.py:RemoteSSHServer's version string serves.
const ProtocolVersion = "hoard-wire-1"

// Backend is what a Server dispatches wire commands against: a
// metadata database and the working-tree view it describes. It is
// satisfied by *remote.LocalFS's underlying fields, kept as a narrow
// interface here so package wire does not need to import package
// remote.
type Backend interface {
	DB() *meta.Database
	View() *fsview.View
	SaveDB() error
}

// Server runs the command-dispatch loop on the serving side of a
// connection, the equivalent of remote_ssh.py:RemoteSSHServer /
// remote_ssh_server. One Server handles exactly one Conn for its
// lifetime (until the peer sends "close" or disconnects).
type Server struct {
	backend Backend
}

// NewServer wraps a backend for serving.
func NewServer(backend Backend) *Server {
	return &Server{backend: backend}
}

// Serve processes requests from conn until the peer closes the
// connection or sends the close command. It returns nil on a graceful
// close, or the error that ended the loop otherwise.
func (s *Server) Serve(conn *Conn) error {
	for {
		cmd, params, err := conn.ReadRequest()
		if err != nil {
			if err == ErrConnectionClosed {
				return nil
			}
			return err
		}

		switch cmd {
		case CmdHello:
			err = conn.SendResponse(map[string]any{"version": ProtocolVersion}, "")
		case CmdClose:
			conn.SendResponse(nil, "")
			return nil
		case CmdGet:
			err = s.handleGet(conn, params)
		case CmdSet:
			err = s.handleSet(conn, params)
		case CmdDel:
			err = s.handleDel(conn, params)
		case CmdMove:
			err = s.handleMove(conn, params)
		case CmdCopy:
			err = s.handleCopy(conn, params)
		case CmdDBGet:
			err = s.handleDBGet(conn)
		case CmdDBSet:
			err = s.handleDBSet(conn, params)
		default:
			err = conn.SendResponse(nil, fmt.Sprintf("unknown command %q", cmd))
		}
		if err != nil {
			return err
		}
	}
}

func paramsToMeta(params []any) (meta.Meta, error) {
	if len(params) != 1 {
		return meta.Meta{}, fmt.Errorf("wire: expected 1 param, got %d", len(params))
	}
	tuple, ok := params[0].([]any)
	if !ok {
		return meta.Meta{}, fmt.Errorf("wire: expected meta tuple, got %T", params[0])
	}
	return UnpackMeta(tuple)
}

func (s *Server) handleGet(conn *Conn, params []any) error {
	m, err := paramsToMeta(params)
	if err != nil {
		return conn.SendResponse(nil, err.Error())
	}
	reader, err := s.backend.View().FileRead(m.Filename)
	if err != nil {
		return conn.SendResponse(nil, err.Error())
	}
	defer reader.Close()
	if err := conn.SendResponse(nil, ""); err != nil {
		return err
	}
	return conn.DataSend(reader)
}

func (s *Server) handleSet(conn *Conn, params []any) error {
	m, err := paramsToMeta(params)
	if err != nil {
		return conn.SendResponse(nil, err.Error())
	}
	if err := conn.SendResponse(nil, ""); err != nil {
		return err
	}
	data := conn.DataReceive()
	if err := s.backend.View().FileCreate(m, data); err != nil {
		return conn.SendResponse(nil, err.Error())
	}
	return conn.SendResponse(nil, "")
}

func (s *Server) handleDel(conn *Conn, params []any) error {
	m, err := paramsToMeta(params)
	if err != nil {
		return conn.SendResponse(nil, err.Error())
	}
	if err := s.backend.View().FileDel(m.Filename, true); err != nil {
		return conn.SendResponse(nil, err.Error())
	}
	return conn.SendResponse(nil, "")
}

func (s *Server) handleMove(conn *Conn, params []any) error {
	if len(params) != 2 {
		return conn.SendResponse(nil, "wire: mov expects 2 params")
	}
	src, ok1 := params[0].(string)
	dst, ok2 := params[1].(string)
	if !ok1 || !ok2 {
		return conn.SendResponse(nil, "wire: mov expects string params")
	}
	if _, err := s.backend.View().Move(src, dst, true, 0); err != nil {
		return conn.SendResponse(nil, err.Error())
	}
	return conn.SendResponse(nil, "")
}

func (s *Server) handleCopy(conn *Conn, params []any) error {
	if len(params) != 2 {
		return conn.SendResponse(nil, "wire: cpy expects 2 params")
	}
	src, ok1 := params[0].(string)
	dst, ok2 := params[1].(string)
	if !ok1 || !ok2 {
		return conn.SendResponse(nil, "wire: cpy expects string params")
	}
	reader, err := s.backend.View().FileRead(src)
	if err != nil {
		return conn.SendResponse(nil, err.Error())
	}
	defer reader.Close()
	m := meta.New(dst)
	if err := s.backend.View().FileCreate(m, reader); err != nil {
		return conn.SendResponse(nil, err.Error())
	}
	return conn.SendResponse(nil, "")
}

func (s *Server) handleDBGet(conn *Conn) error {
	var buf bytes.Buffer
	if err := s.backend.DB().Encode(&buf); err != nil {
		return conn.SendResponse(nil, err.Error())
	}
	return conn.SendResponse(map[string]any{"db": json.RawMessage(buf.Bytes())}, "")
}

func (s *Server) handleDBSet(conn *Conn, params []any) error {
	if len(params) != 1 {
		return conn.SendResponse(nil, "wire: dbs expects 1 param")
	}
	raw, err := json.Marshal(params[0])
	if err != nil {
		return conn.SendResponse(nil, err.Error())
	}
	db, err := meta.Decode(bytes.NewReader(raw))
	if err != nil {
		return conn.SendResponse(nil, err.Error())
	}
	*s.backend.DB() = *db
	if err := s.backend.SaveDB(); err != nil {
		return conn.SendResponse(nil, err.Error())
	}
	return conn.SendResponse(nil, "")
}

var _ io.Closer = (*Conn)(nil)

// Close is a no-op at the framing layer; the underlying Duplex owns the
// transport's lifetime.
func (c *Conn) Close() error { return nil }
