package session

import (
	"context"
	"errors"
	"sync"
)

// Display renders views and yields keys.
type Display interface {
	// RenderDirectory draws the file listing with its selection.
	RenderDirectory(v View) error
	// RenderFile draws the window, cursor and mode banner.
	RenderFile(v View) error
	// NextKey blocks for the next key. KeyNone means idle.
	NextKey(ctx context.Context) (Key, error)
}

// Run bootstraps the session and drives d until the user quits or the session
// fails. It returns nil on quit.
//
// Keys are read on their own goroutine so that Ctrl+Q ends the session even
// while the input actor is parked on a round trip. Other keys queue up and are
// handled in the order they were pressed.
func (s *Session) Run(ctx context.Context, d Display) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	if err := s.Start(ctx); err != nil {
		return err
	}

	renderDone := make(chan error, 1)
	go func() {
		renderDone <- s.renderLoop(ctx, d)
	}()
	go func() {
		select {
		case <-s.done:
			cancel()
		case <-ctx.Done():
		}
	}()
	keys := newKeyQueue()
	pumpDone := make(chan struct{})
	go func() {
		defer close(pumpDone)
		s.pumpKeys(ctx, d, keys)
	}()

	err := s.inputLoop(ctx, keys)
	if err != nil {
		s.Terminate(err)
	} else {
		s.Terminate(ErrQuit)
	}
	cancel()
	<-pumpDone
	if rerr := <-renderDone; err == nil && rerr != nil && !errors.Is(rerr, context.Canceled) {
		err = rerr
	}
	if err == nil {
		if cause := s.Err(); cause != nil && !errors.Is(cause, ErrQuit) {
			err = cause
		}
	}
	return err
}

// pumpKeys reads keys until ctx ends. Quit and read failures terminate the
// session at once; everything else is queued for the input actor.
func (s *Session) pumpKeys(ctx context.Context, d Display, q *keyQueue) {
	for {
		key, err := d.NextKey(ctx)
		if err != nil {
			if ctx.Err() == nil {
				s.Terminate(err)
			}
			q.close(err)
			return
		}
		switch key.Kind {
		case KeyNone:
			continue
		case KeyQuit:
			s.Terminate(ErrQuit)
			q.close(nil)
			return
		}
		q.push(key)
	}
}

func (s *Session) inputLoop(ctx context.Context, q *keyQueue) error {
	if err := s.WaitReady(ctx); err != nil {
		return s.finalErr(err)
	}
	for {
		key, err := q.pop(ctx, s.done)
		if err != nil {
			return s.finalErr(err)
		}
		quit, err := s.HandleKey(ctx, key)
		if quit {
			return nil
		}
		if err != nil && !errors.Is(err, ErrBusy) {
			return s.finalErr(err)
		}
	}
}

// keyQueue is an unbounded FIFO between the key reader and the input actor.
type keyQueue struct {
	mu     sync.Mutex
	keys   []Key
	closed bool
	err    error
	ready  chan struct{}
}

func newKeyQueue() *keyQueue {
	return &keyQueue{ready: make(chan struct{}, 1)}
}

func (q *keyQueue) push(k Key) {
	q.mu.Lock()
	q.keys = append(q.keys, k)
	q.mu.Unlock()
	q.wake()
}

// close ends the queue once the keys already queued are drained. A nil err
// reads as ErrQuit.
func (q *keyQueue) close(err error) {
	if err == nil {
		err = ErrQuit
	}
	q.mu.Lock()
	q.closed = true
	q.err = err
	q.mu.Unlock()
	q.wake()
}

func (q *keyQueue) wake() {
	select {
	case q.ready <- struct{}{}:
	default:
	}
}

// pop returns the oldest key, blocking until one arrives, the queue closes,
// ctx ends or done is closed.
func (q *keyQueue) pop(ctx context.Context, done <-chan struct{}) (Key, error) {
	for {
		q.mu.Lock()
		if len(q.keys) > 0 {
			k := q.keys[0]
			q.keys = q.keys[1:]
			q.mu.Unlock()
			return k, nil
		}
		if q.closed {
			err := q.err
			q.mu.Unlock()
			return Key{}, err
		}
		q.mu.Unlock()
		select {
		case <-q.ready:
		case <-ctx.Done():
			return Key{}, ctx.Err()
		case <-done:
			return Key{}, ErrTerminated
		}
	}
}

// finalErr reports the termination cause in place of secondary errors.
func (s *Session) finalErr(err error) error {
	if cause := s.Err(); cause != nil {
		if errors.Is(cause, ErrQuit) {
			return nil
		}
		return cause
	}
	return err
}

func (s *Session) renderLoop(ctx context.Context, d Display) error {
	if err := s.render(d); err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.updates:
			if err := s.render(d); err != nil {
				return err
			}
		}
	}
}

func (s *Session) render(d Display) error {
	v := s.View()
	if v.Window.Capacity == 0 {
		return d.RenderDirectory(v)
	}
	return d.RenderFile(v)
}
