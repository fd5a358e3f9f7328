// Package transport carries protocol frames between the editor and a Hermes server.
//
// Every Conn reads and writes whole frames. Reads are not interrupted by
// context cancellation once they block; Close unblocks them.
package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"pkt.systems/hermes/internal/logx"
	"pkt.systems/hermes/internal/protocol"
	"pkt.systems/pslog"
)

// ErrUnsupportedKind indicates an unknown transport name.
var ErrUnsupportedKind = errors.New("unsupported transport")

// Conn is a bidirectional frame channel.
type Conn interface {
	protocol.FrameReader
	protocol.FrameWriter
	Close() error
}

// Kind names a transport.
type Kind string

const (
	KindTCP       Kind = "tcp"
	KindSSH       Kind = "ssh"
	KindGRPC      Kind = "grpc"
	KindWebSocket Kind = "websocket"
)

// ParseKind maps a configured name to a Kind.
func ParseKind(name string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(name))); k {
	case KindTCP, KindSSH, KindGRPC, KindWebSocket:
		return k, nil
	case "":
		return KindTCP, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedKind, name)
	}
}

// Options selects and configures a transport.
type Options struct {
	Kind          Kind
	Addr          string
	DialTimeout   time.Duration
	MaxFrameBytes int
	SSH           SSHOptions
}

// SSHOptions configures the ssh transport.
type SSHOptions struct {
	User                  string
	Password              string
	IdentityFile          string
	KnownHosts            string
	InsecureIgnoreHostKey bool
	// AgentSocket is the ssh-agent unix socket; empty disables agent auth.
	AgentSocket string
}

// Dial opens a connection of the requested kind.
func Dial(ctx context.Context, opts Options) (Conn, error) {
	if strings.TrimSpace(opts.Addr) == "" {
		return nil, errors.New("server address is required")
	}
	if opts.MaxFrameBytes <= 0 {
		opts.MaxFrameBytes = protocol.DefaultMaxFrameBytes
	}
	if opts.DialTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.DialTimeout)
		defer cancel()
	}
	log := logx.WithRemote(pslog.Ctx(ctx), string(opts.Kind), opts.Addr)
	log.Debug("transport dial")

	var (
		conn Conn
		err  error
	)
	switch opts.Kind {
	case KindTCP, "":
		conn, err = dialTCP(ctx, opts)
	case KindSSH:
		conn, err = dialSSH(ctx, opts)
	case KindGRPC:
		conn, err = dialGRPC(ctx, opts)
	case KindWebSocket:
		conn, err = dialWebSocket(ctx, opts)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedKind, opts.Kind)
	}
	if err != nil {
		log.Warn("transport dial failed", "err", err)
		return nil, err
	}
	log.Info("transport connected")
	return conn, nil
}

// streamConn frames a byte stream with the newline-delimited codec.
type streamConn struct {
	codec  *protocol.StreamCodec
	closer io.Closer
}

// NewStreamConn frames rw and closes it on Close.
func NewStreamConn(rw io.ReadWriteCloser, maxFrameBytes int) Conn {
	return &streamConn{codec: protocol.NewStreamCodec(rw, maxFrameBytes), closer: rw}
}

func (c *streamConn) ReadFrame(ctx context.Context) (protocol.Frame, error) {
	return c.codec.ReadFrame(ctx)
}

func (c *streamConn) WriteFrame(ctx context.Context, f protocol.Frame) error {
	return c.codec.WriteFrame(ctx, f)
}

func (c *streamConn) Close() error {
	return c.closer.Close()
}

func checkBinarySize(data []byte, max int) error {
	if max > 0 && len(data) > max {
		return fmt.Errorf("%w: %d bytes", protocol.ErrFrameTooLarge, len(data))
	}
	return nil
}
