package tui

import (
	"errors"
	"fmt"
	"strings"

	"github.com/mattn/go-runewidth"

	"pkt.systems/hermes/internal/session"
)

const (
	defaultWidth  = 80
	defaultHeight = 24
)

// Output is one rendered screen. CursorRow and CursorCol are 1-based.
type Output struct {
	Lines      []string
	CursorRow  int
	CursorCol  int
	HideCursor bool
}

// BodyRows is the number of rows left for content on a terminal of the given
// height once the header and status lines are drawn.
func BodyRows(height int) int {
	if height-2 < 1 {
		return 1
	}
	return height - 2
}

// RenderDirectory draws the file listing with the selection highlighted.
func RenderDirectory(v session.View, width, height int, theme Theme) Output {
	width, height = clampSize(width, height)
	rows := BodyRows(height)
	lines := make([]string, 0, height)
	lines = append(lines, renderHeader(" Hermes", fmt.Sprintf("%d files ", len(v.Files)), "", width, theme))

	offset := 0
	if v.Selected >= rows {
		offset = v.Selected - rows + 1
	}
	cursorRow := 2
	for i := 0; i < rows; i++ {
		idx := offset + i
		if idx >= len(v.Files) {
			if len(v.Files) == 0 && i == 0 && v.State != session.Uninitialized {
				lines = append(lines, ansiFgRGB(theme.StatusFG)+fit("  (no files)", width)+ansiReset)
				continue
			}
			lines = append(lines, "")
			continue
		}
		name := fit("  "+sanitize(v.Files[idx]), width)
		if idx == v.Selected {
			lines = append(lines, ansiBgRGB(theme.SelectedBG)+ansiFgRGB(theme.SelectedFG)+name+ansiReset)
			cursorRow = i + 2
			continue
		}
		lines = append(lines, name)
	}
	lines = append(lines, renderStatus(v, width, theme))
	return Output{Lines: lines, CursorRow: cursorRow, CursorCol: 1, HideCursor: true}
}

// RenderFile draws the resident window, the mode banner and the status line.
func RenderFile(v session.View, width, height int, theme Theme) Output {
	width, height = clampSize(width, height)
	rows := BodyRows(height)
	snap := v.Window

	mode, modeColor := "BROWSING", theme.BrowsingFG
	if v.Editing {
		mode, modeColor = "EDITING", theme.EditingFG
	}
	position := ""
	if len(snap.Entries) > 0 {
		position = fmt.Sprintf("  %d/%d ", snap.Entries[snap.Row].Line+1, snap.Total)
	}
	lines := make([]string, 0, height)
	lines = append(lines, renderHeader(" "+sanitize(v.File), mode+position, ansiBold+ansiFgRGB(modeColor), width, theme))

	top := 0
	if snap.Row >= rows {
		top = snap.Row - rows + 1
	}
	cursorRow, cursorCol := 2, 1
	for i := 0; i < rows; i++ {
		idx := top + i
		if idx >= len(snap.Entries) {
			lines = append(lines, ansiFgRGB(theme.StatusFG)+"~"+ansiReset)
			continue
		}
		text := sanitize(snap.Entries[idx].Text)
		if idx != snap.Row {
			lines = append(lines, runewidth.Truncate(text, width, ""))
			continue
		}
		shown, col := scrollToColumn(text, snap.Col, width)
		lines = append(lines, shown)
		cursorRow, cursorCol = i+2, col+1
	}
	lines = append(lines, renderStatus(v, width, theme))
	return Output{
		Lines:      lines,
		CursorRow:  cursorRow,
		CursorCol:  cursorCol,
		HideCursor: v.State == session.Terminated,
	}
}

func renderHeader(left, right, rightStyle string, width int, theme Theme) string {
	base := ansiBgRGB(theme.HeaderBG) + ansiFgRGB(theme.HeaderFG)
	rightWidth := runewidth.StringWidth(right)
	if rightWidth >= width {
		return base + fit(right, width) + ansiReset
	}
	left = fit(left, width-rightWidth)
	var b strings.Builder
	b.WriteString(base)
	b.WriteString(left)
	b.WriteString(rightStyle)
	b.WriteString(right)
	b.WriteString(ansiReset)
	return b.String()
}

func renderStatus(v session.View, width int, theme Theme) string {
	color := theme.StatusFG
	if v.Err != nil && !errors.Is(v.Err, session.ErrQuit) {
		color = theme.ErrorFG
	}
	return ansiFgRGB(color) + runewidth.Truncate(sanitize(v.Status), width, "") + ansiReset
}

// scrollToColumn drops leading runes until the cursor column fits on screen and
// returns the visible text with the cursor's display column.
func scrollToColumn(text string, col, width int) (string, int) {
	runes := []rune(text)
	if col > len(runes) {
		col = len(runes)
	}
	start := 0
	for start < col && runewidth.StringWidth(string(runes[start:col])) >= width {
		start++
	}
	shown := runewidth.Truncate(string(runes[start:]), width, "")
	return shown, runewidth.StringWidth(string(runes[start:col]))
}

func fit(s string, width int) string {
	if width <= 0 {
		return ""
	}
	return runewidth.FillRight(runewidth.Truncate(s, width, ""), width)
}

// sanitize replaces control characters so one line never spans more than one row.
func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f {
			return ' '
		}
		return r
	}, s)
}

func clampSize(width, height int) (int, int) {
	if width <= 0 {
		width = defaultWidth
	}
	if height <= 0 {
		height = defaultHeight
	}
	return width, height
}
