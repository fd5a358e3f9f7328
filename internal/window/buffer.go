package window

import (
	"errors"
	"fmt"
)

// MinCapacity is the smallest window the buffer accepts.
const MinCapacity = 2

var (
	// ErrNotContiguous indicates a pushed entry does not extend the window by exactly one line.
	ErrNotContiguous = errors.New("line breaks window contiguity")
	// ErrInvalidWindow indicates Check found a broken invariant.
	ErrInvalidWindow = errors.New("invalid window")
)

// Entry is one resident line tagged with its absolute position in the remote file.
type Entry struct {
	Line int
	Text string
}

// DeleteResult reports what DeleteCurrent did.
type DeleteResult int

const (
	// DeleteNoop means nothing was removed (file start and end both resident with one line left).
	DeleteNoop DeleteResult = iota
	// DeleteRemoved means the current line was removed and no refill is required.
	DeleteRemoved
	// DeleteNeedBackFill means the window fell below capacity while lines remain after it.
	DeleteNeedBackFill
)

func (r DeleteResult) String() string {
	switch r {
	case DeleteNoop:
		return "noop"
	case DeleteRemoved:
		return "removed"
	case DeleteNeedBackFill:
		return "need-back-fill"
	default:
		return fmt.Sprintf("DeleteResult(%d)", int(r))
	}
}

// Snapshot is an immutable copy of the window state.
type Snapshot struct {
	Entries  []Entry
	Row      int
	Col      int
	Total    int
	Capacity int
}

// Buffer is a fixed-capacity sliding window of contiguous lines from a remote file.
// start is the absolute line number of the front entry; entries are always
// numbered start, start+1, ... so contiguity holds by construction.
type Buffer struct {
	entries  []Entry
	start    int
	capacity int
	total    int
	row      int
	col      int
}

// New returns an empty buffer holding at most capacity lines.
func New(capacity int) *Buffer {
	if capacity < MinCapacity {
		capacity = MinCapacity
	}
	return &Buffer{capacity: capacity}
}

// LoadInitial replaces the window wholesale with lines starting at start.
// total is the remote file's line count.
func (b *Buffer) LoadInitial(start int, lines []string, total int) {
	if start < 0 {
		start = 0
	}
	if len(lines) > b.capacity {
		lines = lines[:b.capacity]
	}
	b.entries = make([]Entry, 0, b.capacity+1)
	for _, text := range lines {
		b.entries = append(b.entries, Entry{Text: text})
	}
	b.start = start
	b.renumber()
	b.total = total
	if end := b.start + len(b.entries); b.total < end {
		b.total = end
	}
	b.row = 0
	b.col = 0
}

// Len returns the number of resident lines.
func (b *Buffer) Len() int {
	return len(b.entries)
}

// Capacity returns the window height.
func (b *Buffer) Capacity() int {
	return b.capacity
}

// Total returns the known line count of the remote file.
func (b *Buffer) Total() int {
	return b.total
}

// Front returns the first resident entry.
func (b *Buffer) Front() (Entry, bool) {
	if len(b.entries) == 0 {
		return Entry{}, false
	}
	return b.entries[0], true
}

// Back returns the last resident entry.
func (b *Buffer) Back() (Entry, bool) {
	if len(b.entries) == 0 {
		return Entry{}, false
	}
	return b.entries[len(b.entries)-1], true
}

// NextBackLine is the line number that would extend the window at the back.
func (b *Buffer) NextBackLine() int {
	return b.start + len(b.entries)
}

// PrevFrontLine is the line number that would extend the window at the front.
func (b *Buffer) PrevFrontLine() int {
	return b.start - 1
}

// HasBefore reports whether the remote file has lines before the window.
func (b *Buffer) HasBefore() bool {
	return b.start > 0
}

// HasAfter reports whether the remote file has lines after the window.
func (b *Buffer) HasAfter() bool {
	return b.NextBackLine() < b.total
}

// Lookup returns the resident entry for line.
func (b *Buffer) Lookup(line int) (Entry, bool) {
	idx := line - b.start
	if idx < 0 || idx >= len(b.entries) {
		return Entry{}, false
	}
	return b.entries[idx], true
}

// PushBack appends e, evicting the front entry when the window is full.
func (b *Buffer) PushBack(e Entry) error {
	if err := b.appendBack(e); err != nil {
		return err
	}
	if len(b.entries) > b.capacity {
		b.evictFront()
	}
	return nil
}

// AppendBack appends e without evicting. A full window leaves e non-resident
// and reports false; the window stays contiguous either way.
func (b *Buffer) AppendBack(e Entry) (bool, error) {
	if len(b.entries) >= b.capacity {
		if len(b.entries) > 0 && e.Line != b.NextBackLine() {
			return false, fmt.Errorf("%w: append %d after %d", ErrNotContiguous, e.Line, b.NextBackLine()-1)
		}
		return false, nil
	}
	if err := b.appendBack(e); err != nil {
		return false, err
	}
	return true, nil
}

// PushFront prepends e, evicting the back entry when the window is full.
func (b *Buffer) PushFront(e Entry) error {
	if len(b.entries) > 0 && e.Line != b.start-1 {
		return fmt.Errorf("%w: prepend %d before %d", ErrNotContiguous, e.Line, b.start)
	}
	if e.Line < 0 {
		return fmt.Errorf("%w: negative line %d", ErrNotContiguous, e.Line)
	}
	b.entries = append([]Entry{e}, b.entries...)
	b.start = e.Line
	if len(b.entries) > 1 {
		b.row++
	}
	if b.total <= e.Line {
		b.total = e.Line + 1
	}
	if len(b.entries) > b.capacity {
		b.entries = b.entries[:len(b.entries)-1]
		b.clampCursor()
	}
	return nil
}

// UpdateContent replaces the text of line. It reports false when line is not resident.
func (b *Buffer) UpdateContent(line int, text string) bool {
	idx := line - b.start
	if idx < 0 || idx >= len(b.entries) {
		return false
	}
	b.entries[idx].Text = text
	if idx == b.row {
		b.clampCol()
	}
	return true
}

// InsertAfterCurrent inserts text as a new line after the cursor line and
// moves the cursor onto it. Following lines are renumbered +1.
func (b *Buffer) InsertAfterCurrent(text string) Entry {
	idx := 0
	if len(b.entries) > 0 {
		idx = b.row + 1
	}
	b.insertIndex(idx, text)
	b.total++
	b.row = idx
	b.col = 0
	b.trim()
	return b.entries[b.row]
}

// SplitCurrent breaks the cursor line at the cursor column. The head stays on
// the current line and the tail becomes a new line after it.
func (b *Buffer) SplitCurrent() (head Entry, tail Entry) {
	if len(b.entries) == 0 {
		tail = b.InsertAfterCurrent("")
		return tail, tail
	}
	runes := []rune(b.entries[b.row].Text)
	col := b.col
	if col > len(runes) {
		col = len(runes)
	}
	b.entries[b.row].Text = string(runes[:col])
	tail = b.InsertAfterCurrent(string(runes[col:]))
	// trim never evicts the line before the cursor while capacity >= MinCapacity.
	head = b.entries[b.row-1]
	return head, tail
}

// DeleteCurrent removes the cursor line and renumbers following lines -1.
func (b *Buffer) DeleteCurrent() (Entry, DeleteResult) {
	if len(b.entries) == 0 || b.total <= 1 {
		return Entry{}, DeleteNoop
	}
	// A lone resident line with nothing after it stays put even when lines
	// precede the window: removing it would leave the cursor on no line.
	if len(b.entries) == 1 && !b.HasAfter() {
		return Entry{}, DeleteNoop
	}
	removed := b.entries[b.row]
	b.entries = append(b.entries[:b.row], b.entries[b.row+1:]...)
	b.renumber()
	b.total--
	b.clampCursor()
	b.col = 0
	if len(b.entries) < b.capacity && b.HasAfter() {
		return removed, DeleteNeedBackFill
	}
	return removed, DeleteRemoved
}

// InsertAt applies a server-side insertion of text at line.
func (b *Buffer) InsertAt(line int, text string) {
	if line < 0 {
		return
	}
	switch {
	case line < b.start:
		b.start++
		b.renumber()
	case line <= b.NextBackLine():
		idx := line - b.start
		b.insertIndex(idx, text)
		if len(b.entries) > 1 && idx <= b.row {
			b.row++
		}
	}
	b.total++
	b.trim()
}

// RemoveAt applies a server-side deletion of line. needBackFill reports that the
// window fell below capacity while lines remain after it.
func (b *Buffer) RemoveAt(line int) (removed bool, needBackFill bool) {
	if line < 0 || line >= b.total {
		return false, false
	}
	switch {
	case line < b.start:
		b.start--
		b.renumber()
		b.total--
		return false, false
	case line >= b.NextBackLine():
		b.total--
		return false, false
	}
	idx := line - b.start
	b.entries = append(b.entries[:idx], b.entries[idx+1:]...)
	b.renumber()
	b.total--
	if idx < b.row {
		b.row--
	}
	b.clampCursor()
	return true, len(b.entries) < b.capacity && b.HasAfter()
}

// Check validates contiguity, capacity and cursor range.
func (b *Buffer) Check() error {
	if len(b.entries) > b.capacity {
		return fmt.Errorf("%w: %d lines exceed capacity %d", ErrInvalidWindow, len(b.entries), b.capacity)
	}
	for i, e := range b.entries {
		if e.Line != b.start+i {
			return fmt.Errorf("%w: entry %d has line %d, want %d", ErrInvalidWindow, i, e.Line, b.start+i)
		}
	}
	if b.NextBackLine() > b.total {
		return fmt.Errorf("%w: window ends at %d beyond total %d", ErrInvalidWindow, b.NextBackLine(), b.total)
	}
	if len(b.entries) > 0 && (b.row < 0 || b.row >= len(b.entries)) {
		return fmt.Errorf("%w: cursor row %d out of range", ErrInvalidWindow, b.row)
	}
	return nil
}

// Snapshot returns a copy of the window for rendering.
func (b *Buffer) Snapshot() Snapshot {
	entries := make([]Entry, len(b.entries))
	copy(entries, b.entries)
	return Snapshot{
		Entries:  entries,
		Row:      b.row,
		Col:      b.col,
		Total:    b.total,
		Capacity: b.capacity,
	}
}

func (b *Buffer) appendBack(e Entry) error {
	if len(b.entries) > 0 && e.Line != b.NextBackLine() {
		return fmt.Errorf("%w: append %d after %d", ErrNotContiguous, e.Line, b.NextBackLine()-1)
	}
	if e.Line < 0 {
		return fmt.Errorf("%w: negative line %d", ErrNotContiguous, e.Line)
	}
	if len(b.entries) == 0 {
		b.start = e.Line
	}
	b.entries = append(b.entries, e)
	if b.total <= e.Line {
		b.total = e.Line + 1
	}
	return nil
}

func (b *Buffer) evictFront() {
	b.entries = b.entries[1:]
	b.start++
	if b.row > 0 {
		b.row--
	}
	b.clampCursor()
}

func (b *Buffer) insertIndex(idx int, text string) {
	b.entries = append(b.entries, Entry{})
	copy(b.entries[idx+1:], b.entries[idx:])
	b.entries[idx] = Entry{Text: text}
	b.renumber()
}

// trim evicts until the window fits, keeping the cursor line resident.
func (b *Buffer) trim() {
	for len(b.entries) > b.capacity {
		if b.row < len(b.entries)-1 {
			b.entries = b.entries[:len(b.entries)-1]
			continue
		}
		b.evictFront()
	}
}

func (b *Buffer) renumber() {
	for i := range b.entries {
		b.entries[i].Line = b.start + i
	}
}

func (b *Buffer) clampCursor() {
	if b.row >= len(b.entries) {
		b.row = len(b.entries) - 1
	}
	if b.row < 0 {
		b.row = 0
	}
	b.clampCol()
}

func (b *Buffer) clampCol() {
	if len(b.entries) == 0 {
		b.col = 0
		return
	}
	n := len([]rune(b.entries[b.row].Text))
	if b.col > n {
		b.col = n
	}
	if b.col < 0 {
		b.col = 0
	}
}
