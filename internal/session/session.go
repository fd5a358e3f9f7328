// Package session drives one editing session against a Hermes server.
//
// Two goroutines share a Session: the receiver applies server messages and
// the input actor turns keys into local edits and requests. Both take mu for
// the length of a single operation and never across network I/O. A request
// that needs a reply moves the session to AwaitingServer; the input actor
// then parks on the changed channel until the receiver resolves it, the
// round-trip timeout fires, or the session terminates.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"pkt.systems/hermes/internal/protocol"
	"pkt.systems/hermes/internal/transport"
	"pkt.systems/hermes/internal/window"
	"pkt.systems/pslog"
)

// DefaultRoundTripTimeout bounds how long the input actor waits for a reply.
const DefaultRoundTripTimeout = 30 * time.Second

var (
	// ErrTerminated indicates the session has ended.
	ErrTerminated = errors.New("session terminated")
	// ErrRoundTripTimeout indicates the server did not answer a blocking request in time.
	ErrRoundTripTimeout = errors.New("server did not answer in time")
	// ErrBusy indicates a round trip is already outstanding.
	ErrBusy = errors.New("request already in flight")
	// ErrNotInFileMode indicates a file operation without an open file.
	ErrNotInFileMode = errors.New("no file open")
	// ErrQuit is the termination cause when the user quits.
	ErrQuit = errors.New("quit")
	// ErrTransport wraps receive and send failures.
	ErrTransport = errors.New("connection lost")
)

const (
	statusListing   = "Retrieving file list..."
	statusDirectory = "Press Enter to select a file. Press Ctrl+Q to quit."
	statusOpening   = "Retrieving file contents..."
	statusWelcome   = "Welcome to Hermes. Press Ctrl+O to switch to editing mode."
	statusBrowsing  = "Press Ctrl+O to switch to editing mode. Press Ctrl+Q to quit."
	statusEditing   = "Press Ctrl+O to switch to browsing mode. Press Ctrl+Q to quit."
	statusSaving    = "Saving file on server..."
	statusFetching  = "Retrieving line..."
)

// State is the client protocol state.
type State int

const (
	Uninitialized State = iota
	DirectoryMode
	AwaitingServer
	FileMode
	Terminated
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case DirectoryMode:
		return "directory"
	case AwaitingServer:
		return "awaiting-server"
	case FileMode:
		return "file"
	case Terminated:
		return "terminated"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Options configures a Session.
type Options struct {
	// Rows is the window height requested when opening a file.
	Rows int
	// RoundTripTimeout bounds blocking requests. Zero selects DefaultRoundTripTimeout;
	// a negative value waits forever.
	RoundTripTimeout time.Duration
}

// View is an immutable snapshot for rendering.
type View struct {
	State    State
	Editing  bool
	Files    []string
	Selected int
	File     string
	Window   window.Snapshot
	Status   string
	Err      error
}

// Session is one connection's editor state.
type Session struct {
	conn   transport.Conn
	reader *protocol.Reader
	writer *protocol.Writer
	opts   Options
	log    pslog.Logger

	mu        sync.Mutex
	state     State
	resume    State
	pending   protocol.Command
	editing   bool
	files     []string
	selected  int
	file      string
	buf       *window.Buffer
	backfills int
	status    string
	err       error
	changed   chan struct{}

	updates   chan struct{}
	done      chan struct{}
	startOnce sync.Once
	termOnce  sync.Once
}

// New wraps conn. The logger is taken from ctx.
func New(ctx context.Context, conn transport.Conn, opts Options) *Session {
	if opts.Rows < window.MinCapacity {
		opts.Rows = window.MinCapacity
	}
	if opts.RoundTripTimeout == 0 {
		opts.RoundTripTimeout = DefaultRoundTripTimeout
	}
	return &Session{
		conn:    conn,
		reader:  protocol.NewReader(conn),
		writer:  protocol.NewWriter(conn),
		opts:    opts,
		log:     pslog.Ctx(ctx),
		state:   Uninitialized,
		status:  statusListing,
		changed: make(chan struct{}),
		updates: make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
}

// Start sends the bootstrap request and launches the receiver. It is safe to call more than once.
func (s *Session) Start(ctx context.Context) error {
	var err error
	s.startOnce.Do(func() {
		if err = s.writer.Send(ctx, protocol.ListFiles{}); err != nil {
			err = fmt.Errorf("%w: %w", ErrTransport, err)
			s.Terminate(err)
			return
		}
		go s.receive(ctx)
	})
	return err
}

// WaitReady blocks until the directory listing has arrived.
func (s *Session) WaitReady(ctx context.Context) error {
	return s.waitWhile(ctx, Uninitialized)
}

// State returns the current protocol state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Err returns the termination cause, or nil while the session is live.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Done is closed when the session terminates.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Updates signals that the view changed. Signals coalesce.
func (s *Session) Updates() <-chan struct{} {
	return s.updates
}

// View returns a snapshot of the editor state.
func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := View{
		State:    s.state,
		Editing:  s.editing,
		Files:    append([]string(nil), s.files...),
		Selected: s.selected,
		File:     s.file,
		Status:   s.status,
		Err:      s.err,
	}
	if s.buf != nil {
		v.Window = s.buf.Snapshot()
	}
	return v
}

// Terminate ends the session with cause, closes the connection and releases every waiter.
// Only the first call has an effect.
func (s *Session) Terminate(cause error) {
	if cause == nil {
		cause = ErrTerminated
	}
	s.termOnce.Do(func() {
		s.mu.Lock()
		s.state = Terminated
		s.pending = protocol.CmdNone
		s.err = cause
		if !errors.Is(cause, ErrQuit) {
			s.status = "Error: " + cause.Error()
		}
		s.notifyLocked()
		s.mu.Unlock()
		close(s.done)
		if err := s.conn.Close(); err != nil {
			s.log.Debug("session close", "err", err)
		}
		if errors.Is(cause, ErrQuit) {
			s.log.Info("session closed")
		} else {
			s.log.Warn("session terminated", "err", cause)
		}
	})
}

// notifyLocked wakes parked waiters and the renderer. Callers hold mu.
func (s *Session) notifyLocked() {
	close(s.changed)
	s.changed = make(chan struct{})
	select {
	case s.updates <- struct{}{}:
	default:
	}
}

// terminatedErr wraps the cause so callers can match both ErrTerminated and the cause.
func (s *Session) terminatedErr() error {
	s.mu.Lock()
	cause := s.err
	s.mu.Unlock()
	if cause == nil || errors.Is(cause, ErrTerminated) {
		return ErrTerminated
	}
	return fmt.Errorf("%w: %w", ErrTerminated, cause)
}

// waitWhile parks until the state leaves from.
func (s *Session) waitWhile(ctx context.Context, from State) error {
	var timeout <-chan time.Time
	if s.opts.RoundTripTimeout > 0 {
		timer := time.NewTimer(s.opts.RoundTripTimeout)
		defer timer.Stop()
		timeout = timer.C
	}
	for {
		s.mu.Lock()
		state, changed := s.state, s.changed
		s.mu.Unlock()
		if state == Terminated {
			return s.terminatedErr()
		}
		if state != from {
			return nil
		}
		select {
		case <-changed:
		case <-ctx.Done():
			s.Terminate(ctx.Err())
			return s.terminatedErr()
		case <-timeout:
			s.Terminate(fmt.Errorf("%w (waited %s in %s)", ErrRoundTripTimeout, s.opts.RoundTripTimeout, from))
			return s.terminatedErr()
		}
	}
}

// roundTrip moves to AwaitingServer expecting reply, sends the requests built by
// build and parks until the reply resolves the wait. build runs under mu so that
// local edits and the request they imply are computed atomically; returning
// ok=false cancels the round trip.
func (s *Session) roundTrip(ctx context.Context, reply protocol.Command, status string, build func() ([]protocol.Frameable, bool)) error {
	s.mu.Lock()
	switch s.state {
	case Terminated:
		s.mu.Unlock()
		return s.terminatedErr()
	case AwaitingServer:
		s.mu.Unlock()
		return ErrBusy
	}
	reqs, ok := build()
	if !ok {
		s.mu.Unlock()
		return nil
	}
	s.resume = s.state
	s.state = AwaitingServer
	s.pending = reply
	if status != "" {
		s.status = status
	}
	s.notifyLocked()
	s.mu.Unlock()

	s.log.Trace("session round trip", "reply", reply)
	if err := s.writer.Send(ctx, reqs...); err != nil {
		s.Terminate(fmt.Errorf("%w: %w", ErrTransport, err))
		return s.terminatedErr()
	}
	return s.waitWhile(ctx, AwaitingServer)
}

// resolveLocked ends the outstanding round trip. Callers hold mu.
func (s *Session) resolveLocked() {
	s.pending = protocol.CmdNone
	s.state = s.resume
	if s.state == AwaitingServer || s.state == Uninitialized {
		s.state = FileMode
	}
	s.notifyLocked()
}

// send writes fire-and-forget requests. A failure terminates the session.
func (s *Session) send(ctx context.Context, reqs ...protocol.Frameable) error {
	if len(reqs) == 0 {
		return nil
	}
	if err := s.writer.Send(ctx, reqs...); err != nil {
		s.Terminate(fmt.Errorf("%w: %w", ErrTransport, err))
		return s.terminatedErr()
	}
	return nil
}

func (s *Session) modeStatusLocked() string {
	if s.editing {
		return statusEditing
	}
	return statusBrowsing
}
