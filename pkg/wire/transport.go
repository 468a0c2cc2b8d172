package wire

import (
	"fmt"
	"io"
	"os/exec"
)

// Duplex is a bidirectional byte stream to a remote peer, plus a Close
// that tears down whatever carries it (a pipe, a subprocess). Grounded
// on remote_ssh.py:RemoteSSH, which drives an ssh subprocess's
// stdin/stdout as its duplex channel.
type Duplex interface {
	io.Reader
	io.Writer
	Close() error
}

// PipeDuplex is an in-memory Duplex built from two io.Pipe halves, used
// to test a client and server against each other without a subprocess.
type PipeDuplex struct {
	r *io.PipeReader
	w *io.PipeWriter
}

// NewPipePair returns two PipeDuplex values wired to each other: writes
// on one arrive as reads on the other.
func NewPipePair() (client Duplex, server Duplex) {
	cr, sw := io.Pipe()
	sr, cw := io.Pipe()
	return &PipeDuplex{r: cr, w: cw}, &PipeDuplex{r: sr, w: sw}
}

func (p *PipeDuplex) Read(b []byte) (int, error)  { return p.r.Read(b) }
func (p *PipeDuplex) Write(b []byte) (int, error) { return p.w.Write(b) }
func (p *PipeDuplex) Close() error {
	p.r.CloseWithError(io.EOF)
	return p.w.Close()
}

// ProcessDuplex is a Duplex backed by a subprocess's stdin/stdout pipes,
// the real transport for a remote reached over ssh. It mirrors
// remote_ssh.py:RemoteSSH.open's
// Popen(ssh_command, user@host, "sarch", "_server_mode", path) launch.
type ProcessDuplex struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.ReadCloser
}

// DialSSH launches `ssh user@host hoard _server-mode path` and returns
// a Duplex over its stdin/stdout. sshBinary lets callers override the
// ssh executable (mainly for tests); pass "" to use "ssh".
func DialSSH(sshBinary, userHost, remotePath string) (*ProcessDuplex, error) {
	if sshBinary == "" {
		sshBinary = "ssh"
	}
	cmd := exec.Command(sshBinary, userHost, "hoard", "_server-mode", remotePath)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("wire: stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("wire: stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("wire: start ssh: %w", err)
	}
	return &ProcessDuplex{cmd: cmd, stdin: stdin, stdout: stdout}, nil
}

func (p *ProcessDuplex) Read(b []byte) (int, error)  { return p.stdout.Read(b) }
func (p *ProcessDuplex) Write(b []byte) (int, error) { return p.stdin.Write(b) }

func (p *ProcessDuplex) Close() error {
	p.stdin.Close()
	p.stdout.Close()
	if p.cmd.Process != nil {
		p.cmd.Process.Kill()
	}
	return p.cmd.Wait()
}
