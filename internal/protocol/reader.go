package protocol

import (
	"context"
	"errors"
	"fmt"
	"strconv"
)

// maxListCount bounds the count carried by list and file-info heads.
const maxListCount = 1 << 20

// ErrDesync indicates the peer's frames no longer line up with the protocol.
var ErrDesync = errors.New("protocol desync")

// Reader decodes multi-frame messages from a FrameReader.
type Reader struct {
	frames FrameReader
}

// NewReader wraps fr.
func NewReader(fr FrameReader) *Reader {
	return &Reader{frames: fr}
}

// ReadMessage reads one server message including its follow-up frames.
func (r *Reader) ReadMessage(ctx context.Context) (Message, error) {
	head, err := r.frames.ReadFrame(ctx)
	if err != nil {
		return nil, err
	}
	switch head.Command {
	case CmdFileListEntry:
		n, err := parseCount(head)
		if err != nil {
			return nil, err
		}
		names := make([]string, 0, n)
		for i := 0; i < n; i++ {
			// Names are accepted regardless of tag.
			f, err := r.next(ctx, head.Command)
			if err != nil {
				return nil, err
			}
			names = append(names, f.Payload)
		}
		return FileList{Names: names}, nil
	case CmdOpenFileInfo:
		n, err := parseCount(head)
		if err != nil {
			return nil, err
		}
		totalText, err := r.follow(ctx, head.Command)
		if err != nil {
			return nil, err
		}
		total, err := parseNumber(head.Command, totalText)
		if err != nil {
			return nil, err
		}
		lines := make([]string, 0, n)
		for i := 0; i < n; i++ {
			text, err := r.follow(ctx, head.Command)
			if err != nil {
				return nil, err
			}
			lines = append(lines, text)
		}
		return FileInfo{Total: total, Lines: lines}, nil
	case CmdLineFrontReply, CmdLineBackReply, CmdLineAppendReply, CmdRemoteUpdate, CmdRemoteInsert:
		line, err := parseNumber(head.Command, head.Payload)
		if err != nil {
			return nil, err
		}
		text, err := r.follow(ctx, head.Command)
		if err != nil {
			return nil, err
		}
		switch head.Command {
		case CmdLineFrontReply:
			return LineFront{Line: line, Text: text}, nil
		case CmdLineBackReply:
			return LineBack{Line: line, Text: text}, nil
		case CmdLineAppendReply:
			return LineAppend{Line: line, Text: text}, nil
		case CmdRemoteUpdate:
			return RemoteUpdate{Line: line, Text: text}, nil
		default:
			return RemoteInsert{Line: line, Text: text}, nil
		}
	case CmdRemoteDelete:
		line, err := parseNumber(head.Command, head.Payload)
		if err != nil {
			return nil, err
		}
		return RemoteDelete{Line: line}, nil
	case CmdSaveFileAck:
		return SaveAck{}, nil
	default:
		return Unknown{Frame: head}, nil
	}
}

// ReadRequest reads one client request including its follow-up frames.
func (r *Reader) ReadRequest(ctx context.Context) (Request, error) {
	head, err := r.frames.ReadFrame(ctx)
	if err != nil {
		return nil, err
	}
	switch head.Command {
	case CmdGetFileList:
		return ListFiles{}, nil
	case CmdOpenFileRequest:
		rowsText, err := r.follow(ctx, head.Command)
		if err != nil {
			return nil, err
		}
		rows, err := parseNumber(head.Command, rowsText)
		if err != nil {
			return nil, err
		}
		return OpenFile{Name: head.Payload, Rows: rows}, nil
	case CmdUpdateLineContent:
		return UpdateLine{Text: head.Payload}, nil
	case CmdInsertLine:
		return InsertLine{Text: head.Payload}, nil
	case CmdSaveFile:
		return SaveFile{}, nil
	case CmdPushLineFront, CmdPushLineBack, CmdAddLineBack, CmdSetCursorPos,
		CmdSwitchToBrowsing, CmdSwitchToEditing, CmdDeleteLine:
		line, err := parseNumber(head.Command, head.Payload)
		if err != nil {
			return nil, err
		}
		switch head.Command {
		case CmdPushLineFront:
			return FetchFront{Line: line}, nil
		case CmdPushLineBack:
			return FetchBack{Line: line}, nil
		case CmdAddLineBack:
			return FetchAppend{Line: line}, nil
		case CmdSetCursorPos:
			return SetCursor{Line: line}, nil
		case CmdSwitchToBrowsing:
			return SwitchMode{Line: line}, nil
		case CmdSwitchToEditing:
			return SwitchMode{Editing: true, Line: line}, nil
		default:
			return DeleteLine{Line: line}, nil
		}
	default:
		return Unknown{Frame: head}, nil
	}
}

func (r *Reader) next(ctx context.Context, owner Command) (Frame, error) {
	f, err := r.frames.ReadFrame(ctx)
	if err != nil {
		return Frame{}, fmt.Errorf("%w: follow-up of %s: %w", ErrDesync, owner, err)
	}
	return f, nil
}

// follow reads a follow-up frame, which must be tagged CmdOther.
func (r *Reader) follow(ctx context.Context, owner Command) (string, error) {
	f, err := r.next(ctx, owner)
	if err != nil {
		return "", err
	}
	if f.Command != CmdOther {
		return "", fmt.Errorf("%w: follow-up of %s tagged %s", ErrDesync, owner, f.Command)
	}
	return f.Payload, nil
}

func parseNumber(owner Command, s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: %s carries bad number %q", ErrDesync, owner, s)
	}
	return n, nil
}

func parseCount(head Frame) (int, error) {
	n, err := parseNumber(head.Command, head.Payload)
	if err != nil {
		return 0, err
	}
	if n > maxListCount {
		return 0, fmt.Errorf("%w: %s count %d exceeds %d", ErrDesync, head.Command, n, maxListCount)
	}
	return n, nil
}
