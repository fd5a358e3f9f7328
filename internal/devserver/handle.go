package devserver

import (
	"context"
	"fmt"

	"pkt.systems/hermes/internal/eventbus"
	"pkt.systems/hermes/internal/protocol"
)

// handle applies one request. Replies are computed under mu and written after
// it is released.
func (s *Server) handle(ctx context.Context, c *client, req protocol.Request) error {
	switch r := req.(type) {
	case protocol.ListFiles:
		names, err := s.Files()
		if err != nil {
			return fmt.Errorf("list files: %w", err)
		}
		c.log.Debug("devserver list files", "files", len(names))
		return c.writer.Send(ctx, protocol.FileList{Names: names})
	case protocol.OpenFile:
		return s.open(ctx, c, r)
	case protocol.SaveFile:
		return s.save(ctx, c)
	case protocol.Unknown:
		c.log.Warn("devserver ignoring unknown request", "command", r.Frame.Command)
		return nil
	}

	s.mu.Lock()
	if c.file == "" {
		s.mu.Unlock()
		c.log.Warn("devserver request without open file", "request", fmt.Sprintf("%T", req))
		return nil
	}
	doc := s.docs[c.file]
	var reply protocol.Message
	switch r := req.(type) {
	case protocol.FetchFront:
		reply = fetch(doc, r.Line, func(line int, text string) protocol.Message { return protocol.LineFront{Line: line, Text: text} })
	case protocol.FetchBack:
		reply = fetch(doc, r.Line, func(line int, text string) protocol.Message { return protocol.LineBack{Line: line, Text: text} })
	case protocol.FetchAppend:
		reply = fetch(doc, r.Line, func(line int, text string) protocol.Message { return protocol.LineAppend{Line: line, Text: text} })
	case protocol.SetCursor:
		c.cursor = clampLine(doc, r.Line)
	case protocol.SwitchMode:
		c.editing = r.Editing
		c.cursor = clampLine(doc, r.Line)
		c.log.Info("devserver mode switch", "file", c.file, "editing", r.Editing, "line", r.Line)
	case protocol.UpdateLine:
		line := clampLine(doc, c.cursor)
		doc.lines[line] = r.Text
		s.bus.Publish(eventbus.Event{Type: eventbus.EventUpdate, File: c.file, Origin: c.id, Line: line, Text: r.Text})
	case protocol.InsertLine:
		line := clampLine(doc, c.cursor) + 1
		doc.lines = append(doc.lines, "")
		copy(doc.lines[line+1:], doc.lines[line:])
		doc.lines[line] = r.Text
		s.shiftCursorsLocked(c, line, +1)
		c.cursor = line
		s.bus.Publish(eventbus.Event{Type: eventbus.EventInsert, File: c.file, Origin: c.id, Line: line, Text: r.Text})
	case protocol.DeleteLine:
		if r.Line >= len(doc.lines) || len(doc.lines) <= 1 {
			c.log.Debug("devserver delete ignored", "line", r.Line, "lines", len(doc.lines))
			break
		}
		doc.lines = append(doc.lines[:r.Line], doc.lines[r.Line+1:]...)
		s.shiftCursorsLocked(c, r.Line, -1)
		c.cursor = clampLine(doc, c.cursor)
		s.bus.Publish(eventbus.Event{Type: eventbus.EventDelete, File: c.file, Origin: c.id, Line: r.Line})
	}
	s.mu.Unlock()

	if reply == nil {
		return nil
	}
	return c.writer.Send(ctx, reply)
}

func (s *Server) open(ctx context.Context, c *client, r protocol.OpenFile) error {
	s.mu.Lock()
	doc, err := s.documentLocked(r.Name)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("open %q: %w", r.Name, err)
	}
	previous := c.cancel
	c.file = r.Name
	c.rows = max(r.Rows, 1)
	c.cursor = 0
	c.editing = false
	n := min(c.rows, len(doc.lines))
	info := protocol.FileInfo{Total: len(doc.lines), Lines: append([]string(nil), doc.lines[:n]...)}
	// Subscribing under mu orders the reply before any edit published after it.
	events, cancel := s.bus.Subscribe(r.Name, c.id)
	c.cancel = cancel
	s.mu.Unlock()

	if previous != nil {
		previous()
	}
	c.log.Info("devserver file opened", "file", r.Name, "rows", c.rows, "lines", info.Total)
	if err := c.writer.Send(ctx, info); err != nil {
		return err
	}
	go s.forward(ctx, c, events)
	return nil
}

func (s *Server) save(ctx context.Context, c *client) error {
	s.mu.Lock()
	file := c.file
	if file == "" {
		s.mu.Unlock()
		c.log.Warn("devserver save without open file")
		return nil
	}
	lines := append([]string(nil), s.docs[file].lines...)
	s.mu.Unlock()

	if err := s.store.Save(file, lines); err != nil {
		return fmt.Errorf("save %q: %w", file, err)
	}
	c.log.Info("devserver file saved", "file", file, "lines", len(lines))
	return c.writer.Send(ctx, protocol.SaveAck{})
}

// shiftCursorsLocked keeps the cursors of other viewers on the same text after
// a structural edit at line. Callers hold mu.
func (s *Server) shiftCursorsLocked(origin *client, line, delta int) {
	for _, other := range s.clients {
		if other == origin || other.file != origin.file {
			continue
		}
		switch {
		case delta > 0 && line <= other.cursor:
			other.cursor++
		case delta < 0 && line < other.cursor:
			other.cursor--
		}
		other.cursor = clampLine(s.docs[origin.file], other.cursor)
	}
}

// fetch answers a line request. A line deleted since the client asked is
// answered one past the requested number so the client discards it as stale.
func fetch(doc *document, line int, build func(int, string) protocol.Message) protocol.Message {
	if line >= len(doc.lines) {
		return build(line+1, "")
	}
	return build(line, doc.lines[line])
}

func clampLine(doc *document, line int) int {
	if line >= len(doc.lines) {
		line = len(doc.lines) - 1
	}
	if line < 0 {
		line = 0
	}
	return line
}
