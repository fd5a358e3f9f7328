package tui

import (
	"errors"
	"reflect"
	"strings"
	"testing"

	"pkt.systems/hermes/internal/session"
	"pkt.systems/hermes/internal/window"
)

func fileView(entries []window.Entry, row, col, total int) session.View {
	return session.View{
		State:  session.FileMode,
		File:   "notes.txt",
		Status: "Press Ctrl+O to switch to editing mode. Press Ctrl+Q to quit.",
		Window: window.Snapshot{
			Entries:  entries,
			Row:      row,
			Col:      col,
			Total:    total,
			Capacity: 3,
		},
	}
}

func TestRenderFileLayout(t *testing.T) {
	v := fileView([]window.Entry{{Line: 10, Text: "hello"}, {Line: 11, Text: "wörld"}}, 1, 3, 40)
	out := RenderFile(v, 30, 5, ThemeForName(DefaultTheme))
	if len(out.Lines) != 5 {
		t.Fatalf("expected 5 lines, got %d", len(out.Lines))
	}
	if !strings.Contains(out.Lines[0], "notes.txt") || !strings.Contains(out.Lines[0], "BROWSING") || !strings.Contains(out.Lines[0], "12/40") {
		t.Fatalf("unexpected header %q", out.Lines[0])
	}
	if out.Lines[1] != "hello" || out.Lines[2] != "wörld" {
		t.Fatalf("unexpected body %q", out.Lines[1:3])
	}
	if !strings.Contains(out.Lines[3], "~") {
		t.Fatalf("expected filler row, got %q", out.Lines[3])
	}
	if out.CursorRow != 3 || out.CursorCol != 4 {
		t.Fatalf("unexpected cursor %d,%d", out.CursorRow, out.CursorCol)
	}
	if !strings.Contains(out.Lines[4], "Ctrl+O") {
		t.Fatalf("unexpected status %q", out.Lines[4])
	}
}

func TestRenderIsIdempotent(t *testing.T) {
	v := fileView([]window.Entry{{Line: 0, Text: "a"}, {Line: 1, Text: "b"}}, 0, 1, 2)
	v.Editing = true
	theme := ThemeForName("outrun")
	first := RenderFile(v, 40, 10, theme)
	second := RenderFile(v, 40, 10, theme)
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("file render differs between calls")
	}
	dir := session.View{State: session.DirectoryMode, Files: []string{"a", "b"}, Selected: 1}
	if !reflect.DeepEqual(RenderDirectory(dir, 40, 10, theme), RenderDirectory(dir, 40, 10, theme)) {
		t.Fatalf("directory render differs between calls")
	}
}

func TestRenderFileWideRunes(t *testing.T) {
	v := fileView([]window.Entry{{Line: 0, Text: "日本語"}}, 0, 2, 1)
	out := RenderFile(v, 20, 4, ThemeForName(DefaultTheme))
	if out.CursorCol != 5 {
		t.Fatalf("expected cursor after two wide runes at column 5, got %d", out.CursorCol)
	}
}

func TestRenderFileScrollsLongCursorLine(t *testing.T) {
	long := strings.Repeat("a", 20) + strings.Repeat("b", 10)
	v := fileView([]window.Entry{{Line: 0, Text: long}, {Line: 1, Text: long}}, 0, 30, 2)
	out := RenderFile(v, 10, 4, ThemeForName(DefaultTheme))
	if out.Lines[1] != strings.Repeat("b", 9) {
		t.Fatalf("expected cursor line scrolled to its tail, got %q", out.Lines[1])
	}
	if out.CursorCol != 10 {
		t.Fatalf("expected cursor in last column, got %d", out.CursorCol)
	}
	if out.Lines[2] != strings.Repeat("a", 10) {
		t.Fatalf("expected other lines truncated, got %q", out.Lines[2])
	}
}

func TestRenderFileKeepsCursorRowVisible(t *testing.T) {
	entries := []window.Entry{{Line: 0, Text: "0"}, {Line: 1, Text: "1"}, {Line: 2, Text: "2"}}
	v := fileView(entries, 2, 0, 3)
	out := RenderFile(v, 20, 4, ThemeForName(DefaultTheme))
	if out.Lines[1] != "1" || out.Lines[2] != "2" || out.CursorRow != 3 {
		t.Fatalf("unexpected viewport %q cursor row %d", out.Lines, out.CursorRow)
	}
}

func TestRenderFileSanitizesControls(t *testing.T) {
	v := fileView([]window.Entry{{Line: 0, Text: "a\tb\x1b[2J"}}, 0, 0, 1)
	out := RenderFile(v, 20, 4, ThemeForName(DefaultTheme))
	if out.Lines[1] != "a b [2J" {
		t.Fatalf("unexpected sanitized line %q", out.Lines[1])
	}
}

func TestRenderDirectoryScrollsToSelection(t *testing.T) {
	v := session.View{
		State:    session.DirectoryMode,
		Files:    []string{"a", "b", "c", "d", "e"},
		Selected: 4,
		Status:   "Press Enter to select a file. Press Ctrl+Q to quit.",
	}
	theme := ThemeForName("gruvbox")
	out := RenderDirectory(v, 12, 4, theme)
	if len(out.Lines) != 4 {
		t.Fatalf("expected 4 lines, got %d", len(out.Lines))
	}
	if !strings.HasPrefix(out.Lines[1], "  d") {
		t.Fatalf("unexpected first visible entry %q", out.Lines[1])
	}
	if !strings.Contains(out.Lines[2], "  e") || !strings.HasPrefix(out.Lines[2], ansiBgRGB(theme.SelectedBG)) {
		t.Fatalf("expected highlighted selection, got %q", out.Lines[2])
	}
	if out.CursorRow != 3 || !out.HideCursor {
		t.Fatalf("unexpected cursor %d hidden=%v", out.CursorRow, out.HideCursor)
	}
}

func TestRenderStatusColoursErrors(t *testing.T) {
	theme := ThemeForName(DefaultTheme)
	v := session.View{State: session.Terminated, Status: "Error: boom", Err: errors.New("boom")}
	out := RenderDirectory(v, 20, 4, theme)
	if !strings.HasPrefix(out.Lines[3], ansiFgRGB(theme.ErrorFG)) {
		t.Fatalf("expected error colour, got %q", out.Lines[3])
	}
	v.Err = session.ErrQuit
	out = RenderDirectory(v, 20, 4, theme)
	if !strings.HasPrefix(out.Lines[3], ansiFgRGB(theme.StatusFG)) {
		t.Fatalf("expected status colour on quit, got %q", out.Lines[3])
	}
}

func TestThemeFallback(t *testing.T) {
	if got := ThemeForName("no-such-theme").Name; got != DefaultTheme {
		t.Fatalf("expected fallback to default, got %q", got)
	}
	for _, name := range ThemeNames() {
		if ThemeForName(name).Name != name {
			t.Fatalf("theme %q missing", name)
		}
	}
}
