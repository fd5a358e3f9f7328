package session

import (
	"context"
	"errors"
	"fmt"
	"io"

	"pkt.systems/hermes/internal/protocol"
	"pkt.systems/hermes/internal/window"
)

// receive reads and applies server messages in arrival order until the
// connection fails or the session ends.
func (s *Session) receive(ctx context.Context) {
	for {
		msg, err := s.reader.ReadMessage(ctx)
		if err != nil {
			select {
			case <-s.done:
				return
			default:
			}
			if errors.Is(err, io.EOF) {
				err = fmt.Errorf("%w: server closed the connection", ErrTransport)
			} else if !errors.Is(err, protocol.ErrDesync) {
				err = fmt.Errorf("%w: %w", ErrTransport, err)
			}
			s.Terminate(err)
			return
		}
		followUps := s.apply(msg)
		if err := s.send(ctx, followUps...); err != nil {
			return
		}
	}
}

// apply folds one message into the session and returns requests the receiver
// must send on its own behalf.
func (s *Session) apply(msg protocol.Message) []protocol.Frameable {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Terminated {
		return nil
	}
	log := s.log
	switch m := msg.(type) {
	case protocol.FileList:
		if s.state != Uninitialized {
			log.Debug("session ignoring repeated file list", "files", len(m.Names))
			return nil
		}
		s.files = m.Names
		s.selected = 0
		s.state = DirectoryMode
		s.status = statusDirectory
		log.Debug("session file list", "files", len(m.Names))
		s.notifyLocked()
	case protocol.FileInfo:
		if !s.expectLocked(protocol.CmdOpenFileInfo) {
			return nil
		}
		s.buf = window.New(s.opts.Rows)
		s.buf.LoadInitial(0, m.Lines, m.Total)
		s.editing = false
		s.status = statusWelcome
		s.resume = FileMode
		log.Info("session file opened", "file", s.file, "total", m.Total, "resident", s.buf.Len())
		s.resolveLocked()
	case protocol.LineFront:
		if !s.expectLocked(protocol.CmdLineFrontReply) {
			return nil
		}
		if err := s.buf.PushFront(window.Entry{Line: m.Line, Text: m.Text}); err != nil {
			log.Warn("session dropped stale line", "line", m.Line, "err", err)
		}
		s.status = s.modeStatusLocked()
		s.resolveLocked()
	case protocol.LineBack:
		if !s.expectLocked(protocol.CmdLineBackReply) {
			return nil
		}
		if err := s.buf.PushBack(window.Entry{Line: m.Line, Text: m.Text}); err != nil {
			log.Warn("session dropped stale line", "line", m.Line, "err", err)
		}
		s.status = s.modeStatusLocked()
		s.resolveLocked()
	case protocol.LineAppend:
		if s.buf == nil {
			return nil
		}
		if _, err := s.buf.AppendBack(window.Entry{Line: m.Line, Text: m.Text}); err != nil {
			log.Warn("session dropped stale line", "line", m.Line, "err", err)
		}
		switch {
		case s.state == AwaitingServer && s.pending == protocol.CmdLineAppendReply:
			s.status = s.modeStatusLocked()
			s.resolveLocked()
		case s.backfills > 0:
			s.backfills--
			s.notifyLocked()
		default:
			log.Debug("session unsolicited append", "line", m.Line)
			s.notifyLocked()
		}
	case protocol.SaveAck:
		if !s.expectLocked(protocol.CmdSaveFileAck) {
			return nil
		}
		s.status = s.modeStatusLocked()
		log.Info("session file saved", "file", s.file)
		s.resolveLocked()
	case protocol.RemoteUpdate:
		if s.buf == nil {
			return nil
		}
		if !s.buf.UpdateContent(m.Line, m.Text) {
			log.Trace("session dropped update for non-resident line", "line", m.Line)
			return nil
		}
		s.notifyLocked()
	case protocol.RemoteInsert:
		if s.buf == nil {
			return nil
		}
		s.buf.InsertAt(m.Line, m.Text)
		s.notifyLocked()
	case protocol.RemoteDelete:
		if s.buf == nil {
			return nil
		}
		_, needBackFill := s.buf.RemoveAt(m.Line)
		s.notifyLocked()
		if needBackFill {
			s.backfills++
			return []protocol.Frameable{protocol.FetchAppend{Line: s.buf.NextBackLine()}}
		}
	case protocol.Unknown:
		log.Debug("session ignoring frame", "command", m.Frame.Command)
	}
	return nil
}

// expectLocked reports whether a reply tagged reply resolves the outstanding round trip.
func (s *Session) expectLocked(reply protocol.Command) bool {
	if s.state == AwaitingServer && s.pending == reply {
		return true
	}
	s.log.Warn("session unexpected reply", "reply", reply, "pending", s.pending, "state", s.state)
	return false
}
