// Package devserver is an in-memory reference server for the Hermes line
// protocol. It keeps every opened file in memory, tracks one cursor per
// connection and fans edits out to the other viewers of the same file.
package devserver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sort"
	"sync"
	"sync/atomic"

	"pkt.systems/hermes/internal/eventbus"
	"pkt.systems/hermes/internal/logx"
	"pkt.systems/hermes/internal/persist"
	"pkt.systems/hermes/internal/protocol"
	"pkt.systems/hermes/internal/transport"
	"pkt.systems/pslog"
)

// Config configures the dev server. Empty listener addresses are skipped.
type Config struct {
	Root          string
	TCPAddr       string
	SSHAddr       string
	GRPCAddr      string
	WebSocketAddr string
	HostKeyPath   string
	// SSHPassword guards the ssh listener. Empty accepts any password or key.
	SSHPassword   string
	MaxFrameBytes int
}

// Server serves shared files to any number of connections.
type Server struct {
	cfg    Config
	store  *persist.Store
	bus    *eventbus.Bus
	logger pslog.Logger
	nextID atomic.Uint64

	mu      sync.Mutex
	docs    map[string]*document
	clients map[string]*client
}

type document struct {
	lines []string
}

type client struct {
	id      string
	log     pslog.Logger
	writer  *protocol.Writer
	file    string
	rows    int
	cursor  int
	editing bool
	cancel  func()
}

// New constructs a server over the files in cfg.Root.
func New(cfg Config, logger pslog.Logger) (*Server, error) {
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	if cfg.MaxFrameBytes <= 0 {
		cfg.MaxFrameBytes = protocol.DefaultMaxFrameBytes
	}
	store, err := persist.NewStoreWithLogger(cfg.Root, logger)
	if err != nil {
		return nil, err
	}
	return &Server{
		cfg:     cfg,
		store:   store,
		bus:     eventbus.New(logger),
		logger:  logger,
		docs:    make(map[string]*document),
		clients: make(map[string]*client),
	}, nil
}

// ServeConn runs the request loop for one connection until the peer hangs up
// or ctx ends. conn is closed on return.
func (s *Server) ServeConn(ctx context.Context, conn transport.Conn, kind transport.Kind, remote string) error {
	id := fmt.Sprintf("conn-%d", s.nextID.Add(1))
	log := logx.WithRemote(s.logger, string(kind), remote).With("conn", id)
	ctx = logx.ContextWithConnLogger(ctx, log, id)
	c := &client{id: id, log: log, writer: protocol.NewWriter(conn)}

	s.mu.Lock()
	s.clients[id] = c
	s.mu.Unlock()
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer func() {
		stop()
		_ = conn.Close()
		s.disconnect(c)
	}()

	log.Info("devserver conn opened")
	reader := protocol.NewReader(conn)
	for {
		req, err := reader.ReadRequest(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
				log.Info("devserver conn closed")
				return nil
			}
			log.Warn("devserver conn failed", "err", err)
			return err
		}
		if err := s.handle(ctx, c, req); err != nil {
			log.Warn("devserver request failed", "err", err)
			return err
		}
	}
}

// Files returns the names served to ListFiles: files on disk plus documents
// created in memory but not saved yet.
func (s *Server) Files() ([]string, error) {
	names, err := s.store.List()
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := make(map[string]struct{}, len(names))
	for _, name := range names {
		seen[name] = struct{}{}
	}
	for name := range s.docs {
		if _, ok := seen[name]; !ok {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

// Lines returns a copy of the in-memory content of file, if it is open.
func (s *Server) Lines(file string) ([]string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[file]
	if !ok {
		return nil, false
	}
	return append([]string(nil), doc.lines...), true
}

func (s *Server) disconnect(c *client) {
	s.mu.Lock()
	delete(s.clients, c.id)
	cancel := c.cancel
	c.cancel = nil
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// documentLocked returns the in-memory document for name, loading it from the
// store on first use. Callers hold mu.
func (s *Server) documentLocked(name string) (*document, error) {
	if doc, ok := s.docs[name]; ok {
		return doc, nil
	}
	lines, _, err := s.store.Load(name)
	if err != nil {
		return nil, err
	}
	doc := &document{lines: lines}
	s.docs[name] = doc
	return doc, nil
}

// forward relays bus events for the client's file as remote push messages.
func (s *Server) forward(ctx context.Context, c *client, events <-chan eventbus.Event) {
	for ev := range events {
		var msg protocol.Message
		switch ev.Type {
		case eventbus.EventUpdate:
			msg = protocol.RemoteUpdate{Line: ev.Line, Text: ev.Text}
		case eventbus.EventInsert:
			msg = protocol.RemoteInsert{Line: ev.Line, Text: ev.Text}
		case eventbus.EventDelete:
			msg = protocol.RemoteDelete{Line: ev.Line}
		default:
			continue
		}
		if err := c.writer.Send(ctx, msg); err != nil {
			c.log.Debug("devserver push failed", "err", err)
			return
		}
	}
}
