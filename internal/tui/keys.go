package tui

import (
	"bufio"
	"io"
	"unicode"
	"unicode/utf8"

	"pkt.systems/hermes/internal/session"
)

// readKeys decodes raw terminal input into keys until r fails.
func readKeys(r io.Reader, out chan<- session.Key) error {
	br := bufio.NewReader(r)
	lastWasCR := false
	for {
		b, err := br.ReadByte()
		if err != nil {
			return err
		}
		if lastWasCR {
			lastWasCR = false
			if b == '\n' {
				continue
			}
		}
		switch b {
		case 0x1b:
			if err := readEscape(br, out); err != nil {
				return err
			}
		case '\r':
			out <- session.Key{Kind: session.KeyEnter}
			lastWasCR = true
		case '\n':
			out <- session.Key{Kind: session.KeyEnter}
		case 0x7f, 0x08:
			out <- session.Key{Kind: session.KeyBackspace}
		case 0x13: // Ctrl+S
			out <- session.Key{Kind: session.KeySave}
		case 0x0f: // Ctrl+O
			out <- session.Key{Kind: session.KeyToggleEdit}
		case 0x18: // Ctrl+X
			out <- session.Key{Kind: session.KeyDeleteLine}
		case 0x11, 0x03: // Ctrl+Q, Ctrl+C
			out <- session.Key{Kind: session.KeyQuit}
		case 0x09:
			out <- session.Key{Kind: session.KeyRune, Rune: '\t'}
		default:
			if b < 0x20 {
				continue
			}
			if b < utf8.RuneSelf {
				out <- session.Key{Kind: session.KeyRune, Rune: rune(b)}
				continue
			}
			_ = br.UnreadByte()
			rn, _, err := br.ReadRune()
			if err != nil {
				return err
			}
			if rn == utf8.RuneError {
				continue
			}
			out <- session.Key{Kind: session.KeyRune, Rune: rn}
		}
	}
}

func readEscape(br *bufio.Reader, out chan<- session.Key) error {
	b, err := br.ReadByte()
	if err != nil {
		return err
	}
	switch b {
	case '[':
		return readCSI(br, out)
	case 'O':
		return readSS3(br, out)
	}
	return nil
}

func readCSI(br *bufio.Reader, out chan<- session.Key) error {
	seq := []byte{}
	for {
		b, err := br.ReadByte()
		if err != nil {
			return err
		}
		seq = append(seq, b)
		if b == '~' || unicode.IsLetter(rune(b)) {
			break
		}
		if len(seq) > 8 {
			return nil
		}
	}
	switch string(seq) {
	case "A":
		out <- session.Key{Kind: session.KeyUp}
	case "B":
		out <- session.Key{Kind: session.KeyDown}
	case "C":
		out <- session.Key{Kind: session.KeyRight}
	case "D":
		out <- session.Key{Kind: session.KeyLeft}
	case "3~":
		out <- session.Key{Kind: session.KeyDelete}
	}
	return nil
}

// readSS3 handles arrow keys sent in application cursor mode.
func readSS3(br *bufio.Reader, out chan<- session.Key) error {
	b, err := br.ReadByte()
	if err != nil {
		return err
	}
	switch b {
	case 'A':
		out <- session.Key{Kind: session.KeyUp}
	case 'B':
		out <- session.Key{Kind: session.KeyDown}
	case 'C':
		out <- session.Key{Kind: session.KeyRight}
	case 'D':
		out <- session.Key{Kind: session.KeyLeft}
	}
	return nil
}
