package session

import (
	"context"

	"pkt.systems/hermes/internal/protocol"
	"pkt.systems/hermes/internal/window"
)

// KeyKind is a logical key produced by the display.
type KeyKind int

const (
	KeyNone KeyKind = iota
	KeyRune
	KeyUp
	KeyDown
	KeyLeft
	KeyRight
	KeyEnter
	KeyBackspace
	KeyDelete
	KeySave
	KeyToggleEdit
	KeyDeleteLine
	KeyQuit
)

// Key is one logical keystroke. Rune is set for KeyRune.
type Key struct {
	Kind KeyKind
	Rune rune
}

// HandleKey applies one key. It blocks while a round trip it started is outstanding.
// quit reports that the session ended because the user asked to leave.
func (s *Session) HandleKey(ctx context.Context, key Key) (quit bool, err error) {
	if key.Kind == KeyQuit {
		s.Terminate(ErrQuit)
		return true, nil
	}
	s.mu.Lock()
	state := s.state
	s.mu.Unlock()
	switch state {
	case Terminated:
		return false, s.terminatedErr()
	case AwaitingServer:
		return false, ErrBusy
	case DirectoryMode:
		return false, s.handleDirectoryKey(ctx, key)
	case FileMode:
		return false, s.handleFileKey(ctx, key)
	default:
		return false, nil
	}
}

func (s *Session) handleDirectoryKey(ctx context.Context, key Key) error {
	switch key.Kind {
	case KeyUp, KeyDown:
		s.mu.Lock()
		if key.Kind == KeyUp && s.selected > 0 {
			s.selected--
		}
		if key.Kind == KeyDown && s.selected < len(s.files)-1 {
			s.selected++
		}
		s.notifyLocked()
		s.mu.Unlock()
		return nil
	case KeyEnter:
		return s.roundTrip(ctx, protocol.CmdOpenFileInfo, statusOpening, func() ([]protocol.Frameable, bool) {
			if s.state != DirectoryMode || len(s.files) == 0 {
				return nil, false
			}
			s.file = s.files[s.selected]
			s.log.Info("session opening file", "file", s.file, "rows", s.opts.Rows)
			return []protocol.Frameable{protocol.OpenFile{Name: s.file, Rows: s.opts.Rows}}, true
		})
	default:
		return nil
	}
}

func (s *Session) handleFileKey(ctx context.Context, key Key) error {
	switch key.Kind {
	case KeyUp:
		return s.moveVertical(ctx, true)
	case KeyDown:
		return s.moveVertical(ctx, false)
	case KeyLeft, KeyRight:
		s.mu.Lock()
		if key.Kind == KeyLeft {
			s.buf.MoveLeft()
		} else {
			s.buf.MoveRight()
		}
		s.notifyLocked()
		s.mu.Unlock()
		return nil
	case KeyToggleEdit:
		s.mu.Lock()
		s.editing = !s.editing
		s.status = s.modeStatusLocked()
		cur, _ := s.buf.Current()
		req := protocol.SwitchMode{Editing: s.editing, Line: cur.Line}
		s.notifyLocked()
		s.mu.Unlock()
		s.log.Debug("session mode switch", "editing", req.Editing, "line", req.Line)
		return s.send(ctx, req)
	case KeySave:
		return s.roundTrip(ctx, protocol.CmdSaveFileAck, statusSaving, func() ([]protocol.Frameable, bool) {
			return []protocol.Frameable{protocol.SaveFile{}}, true
		})
	case KeyRune, KeyBackspace, KeyDelete, KeyEnter, KeyDeleteLine:
		return s.edit(ctx, key)
	default:
		return nil
	}
}

// moveVertical moves the cursor one line, fetching the next line from the server
// when the cursor is at the window edge and the file continues.
func (s *Session) moveVertical(ctx context.Context, up bool) error {
	s.mu.Lock()
	moved := s.moveLocked(up)
	s.mu.Unlock()
	if !moved {
		reply := protocol.CmdLineBackReply
		if up {
			reply = protocol.CmdLineFrontReply
		}
		err := s.roundTrip(ctx, reply, statusFetching, func() ([]protocol.Frameable, bool) {
			if up && s.buf.HasBefore() {
				return []protocol.Frameable{protocol.FetchFront{Line: s.buf.PrevFrontLine()}}, true
			}
			if !up && s.buf.HasAfter() {
				return []protocol.Frameable{protocol.FetchBack{Line: s.buf.NextBackLine()}}, true
			}
			return nil, false
		})
		if err != nil {
			return err
		}
		s.mu.Lock()
		moved = s.state == FileMode && s.moveLocked(up)
		s.mu.Unlock()
		if !moved {
			return nil
		}
	}
	return s.syncCursor(ctx)
}

func (s *Session) moveLocked(up bool) bool {
	var moved bool
	if up {
		moved = s.buf.MoveUp()
	} else {
		moved = s.buf.MoveDown()
	}
	if moved {
		s.notifyLocked()
	}
	return moved
}

// syncCursor tells the server which line the cursor is on.
func (s *Session) syncCursor(ctx context.Context) error {
	s.mu.Lock()
	cur, ok := s.buf.Current()
	s.mu.Unlock()
	if !ok {
		return nil
	}
	return s.send(ctx, protocol.SetCursor{Line: cur.Line})
}

// edit applies a text edit to the current line. Keys are ignored while browsing.
func (s *Session) edit(ctx context.Context, key Key) error {
	if key.Kind == KeyDeleteLine {
		return s.deleteLine(ctx)
	}
	s.mu.Lock()
	if !s.editing {
		s.mu.Unlock()
		return nil
	}
	var reqs []protocol.Frameable
	switch key.Kind {
	case KeyRune:
		if e, ok := s.buf.InsertRune(key.Rune); ok {
			reqs = append(reqs, protocol.UpdateLine{Text: e.Text})
		}
	case KeyBackspace:
		if e, ok := s.buf.Backspace(); ok {
			reqs = append(reqs, protocol.UpdateLine{Text: e.Text})
		}
	case KeyDelete:
		if e, ok := s.buf.Delete(); ok {
			reqs = append(reqs, protocol.UpdateLine{Text: e.Text})
		}
	case KeyEnter:
		// The server inserts after its cursor line, so the update must precede the insert.
		head, tail := s.buf.SplitCurrent()
		reqs = append(reqs, protocol.UpdateLine{Text: head.Text}, protocol.InsertLine{Text: tail.Text})
	}
	if len(reqs) > 0 {
		s.notifyLocked()
	}
	s.mu.Unlock()
	return s.send(ctx, reqs...)
}

// deleteLine removes the cursor line. When the window falls below capacity
// while the file continues, the replacement line is fetched before returning.
func (s *Session) deleteLine(ctx context.Context) error {
	var deleted bool
	var direct []protocol.Frameable
	err := s.roundTrip(ctx, protocol.CmdLineAppendReply, "", func() ([]protocol.Frameable, bool) {
		if !s.editing {
			return nil, false
		}
		removed, result := s.buf.DeleteCurrent()
		if result == window.DeleteNoop {
			return nil, false
		}
		deleted = true
		s.notifyLocked()
		del := protocol.DeleteLine{Line: removed.Line}
		if result == window.DeleteNeedBackFill {
			return []protocol.Frameable{del, protocol.FetchAppend{Line: s.buf.NextBackLine()}}, true
		}
		direct = []protocol.Frameable{del}
		return nil, false
	})
	if err != nil || !deleted {
		return err
	}
	if err := s.send(ctx, direct...); err != nil {
		return err
	}
	return s.syncCursor(ctx)
}
