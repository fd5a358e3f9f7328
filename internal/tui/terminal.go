// Package tui is the terminal front end of the Hermes client: raw-mode input,
// key decoding and full-screen rendering of session views.
package tui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"golang.org/x/term"

	"pkt.systems/hermes/internal/session"
)

// ErrNotTerminal indicates stdin is not an interactive terminal.
var ErrNotTerminal = errors.New("stdin is not a terminal")

const resizePoll = 250 * time.Millisecond

// SizeFunc reports the terminal width and height. Zero values select 80x24.
type SizeFunc func() (width, height int)

// Terminal implements session.Display on a character terminal.
type Terminal struct {
	in      io.Reader
	screen  *screen
	theme   Theme
	size    SizeFunc
	restore func() error

	mu     sync.Mutex
	last   *session.View
	width  int
	height int

	keys      chan session.Key
	readErr   error
	startOnce sync.Once
	closeOnce sync.Once
}

// NewTerminal renders to out and decodes keys from in. It does not touch terminal modes.
func NewTerminal(in io.Reader, out io.Writer, theme Theme, size SizeFunc) *Terminal {
	if size == nil {
		size = func() (int, int) { return 0, 0 }
	}
	t := &Terminal{
		in:     in,
		screen: newScreen(out),
		theme:  theme,
		size:   size,
		keys:   make(chan session.Key, 16),
	}
	t.width, t.height = clampSize(size())
	return t
}

// Open puts stdin into raw mode and switches stdout to the alternate screen.
// Close restores both.
func Open(themeName string) (*Terminal, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return nil, ErrNotTerminal
	}
	state, err := term.MakeRaw(fd)
	if err != nil {
		return nil, fmt.Errorf("raw mode: %w", err)
	}
	outFd := int(os.Stdout.Fd())
	t := NewTerminal(os.Stdin, os.Stdout, ThemeForName(themeName), func() (int, int) {
		w, h, err := term.GetSize(outFd)
		if err != nil {
			return 0, 0
		}
		return w, h
	})
	t.restore = func() error { return term.Restore(fd, state) }
	t.screen.EnterAltScreen()
	return t, nil
}

// Close leaves the alternate screen and restores the terminal mode.
func (t *Terminal) Close() error {
	var err error
	t.closeOnce.Do(func() {
		t.screen.ExitAltScreen()
		if t.restore != nil {
			err = t.restore()
		}
	})
	return err
}

// Rows is the window height that fits the terminal below the header.
func (t *Terminal) Rows() int {
	_, h := clampSize(t.size())
	return BodyRows(h)
}

// RenderDirectory implements session.Display.
func (t *Terminal) RenderDirectory(v session.View) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.last = &v
	return t.screen.Render(RenderDirectory(v, t.width, t.height, t.theme))
}

// RenderFile implements session.Display.
func (t *Terminal) RenderFile(v session.View) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.last = &v
	return t.screen.Render(RenderFile(v, t.width, t.height, t.theme))
}

// NextKey implements session.Display. End of input reads as KeyQuit; a resize
// redraws the last view and returns KeyNone.
func (t *Terminal) NextKey(ctx context.Context) (session.Key, error) {
	t.startOnce.Do(func() {
		go func() {
			t.readErr = readKeys(t.in, t.keys)
			close(t.keys)
		}()
	})
	ticker := time.NewTicker(resizePoll)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return session.Key{}, ctx.Err()
		case k, ok := <-t.keys:
			if !ok {
				if t.readErr != nil && !errors.Is(t.readErr, io.EOF) {
					return session.Key{}, fmt.Errorf("read terminal: %w", t.readErr)
				}
				return session.Key{Kind: session.KeyQuit}, nil
			}
			return k, nil
		case <-ticker.C:
			if t.resized() {
				return session.Key{Kind: session.KeyNone}, t.redraw()
			}
		}
	}
}

func (t *Terminal) resized() bool {
	w, h := clampSize(t.size())
	t.mu.Lock()
	defer t.mu.Unlock()
	if w == t.width && h == t.height {
		return false
	}
	t.width, t.height = w, h
	return true
}

func (t *Terminal) redraw() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.last == nil {
		return nil
	}
	v := *t.last
	if v.Window.Capacity == 0 {
		return t.screen.Render(RenderDirectory(v, t.width, t.height, t.theme))
	}
	return t.screen.Render(RenderFile(v, t.width, t.height, t.theme))
}
