package window

// Cursor returns the cursor row within the window and the rune column within the line.
func (b *Buffer) Cursor() (row, col int) {
	return b.row, b.col
}

// Current returns the entry under the cursor.
func (b *Buffer) Current() (Entry, bool) {
	if len(b.entries) == 0 {
		return Entry{}, false
	}
	return b.entries[b.row], true
}

// MoveUp moves the cursor one line up. It reports false at the window's top edge.
func (b *Buffer) MoveUp() bool {
	if b.row <= 0 {
		return false
	}
	b.row--
	b.clampCol()
	return true
}

// MoveDown moves the cursor one line down. It reports false at the window's bottom edge.
func (b *Buffer) MoveDown() bool {
	if b.row >= len(b.entries)-1 {
		return false
	}
	b.row++
	b.clampCol()
	return true
}

// MoveLeft moves the cursor one rune left within the current line.
func (b *Buffer) MoveLeft() {
	if b.col > 0 {
		b.col--
	}
}

// MoveRight moves the cursor one rune right within the current line.
func (b *Buffer) MoveRight() {
	if len(b.entries) == 0 {
		return
	}
	if b.col < len([]rune(b.entries[b.row].Text)) {
		b.col++
	}
}

// InsertRune inserts r at the cursor and returns the updated current line.
func (b *Buffer) InsertRune(r rune) (Entry, bool) {
	if len(b.entries) == 0 {
		return Entry{}, false
	}
	buf := []rune(b.entries[b.row].Text)
	b.clampCol()
	buf = append(buf[:b.col], append([]rune{r}, buf[b.col:]...)...)
	b.entries[b.row].Text = string(buf)
	b.col++
	return b.entries[b.row], true
}

// Backspace removes the rune before the cursor. It reports false when nothing changed.
func (b *Buffer) Backspace() (Entry, bool) {
	if len(b.entries) == 0 {
		return Entry{}, false
	}
	b.clampCol()
	if b.col <= 0 {
		return Entry{}, false
	}
	buf := []rune(b.entries[b.row].Text)
	buf = append(buf[:b.col-1], buf[b.col:]...)
	b.entries[b.row].Text = string(buf)
	b.col--
	return b.entries[b.row], true
}

// Delete removes the rune under the cursor. It reports false when nothing changed.
func (b *Buffer) Delete() (Entry, bool) {
	if len(b.entries) == 0 {
		return Entry{}, false
	}
	buf := []rune(b.entries[b.row].Text)
	if b.col < 0 || b.col >= len(buf) {
		return Entry{}, false
	}
	buf = append(buf[:b.col], buf[b.col+1:]...)
	b.entries[b.row].Text = string(buf)
	return b.entries[b.row], true
}
