package protocol

import "strconv"

// Message is a decoded server-to-client message.
type Message interface {
	Frames() []Frame
	message()
}

// Request is a decoded client-to-server request.
type Request interface {
	Frames() []Frame
	request()
}

// FileList carries the remote directory listing.
type FileList struct {
	Names []string
}

// FileInfo answers an open request: the remote line count and the first window of lines.
type FileInfo struct {
	Total int
	Lines []string
}

// LineFront answers PushLineFront.
type LineFront struct {
	Line int
	Text string
}

// LineBack answers PushLineBack.
type LineBack struct {
	Line int
	Text string
}

// LineAppend answers AddLineBack.
type LineAppend struct {
	Line int
	Text string
}

// RemoteUpdate is a server-pushed change to a line's text.
type RemoteUpdate struct {
	Line int
	Text string
}

// RemoteInsert is a server-pushed line insertion.
type RemoteInsert struct {
	Line int
	Text string
}

// RemoteDelete is a server-pushed line deletion.
type RemoteDelete struct {
	Line int
}

// SaveAck acknowledges SaveFile.
type SaveAck struct{}

// Unknown wraps a frame with an unhandled tag.
type Unknown struct {
	Frame Frame
}

func (FileList) message()     {}
func (FileInfo) message()     {}
func (LineFront) message()    {}
func (LineBack) message()     {}
func (LineAppend) message()   {}
func (RemoteUpdate) message() {}
func (RemoteInsert) message() {}
func (RemoteDelete) message() {}
func (SaveAck) message()      {}
func (Unknown) message()      {}

func (Unknown) request() {}

func (m FileList) Frames() []Frame {
	frames := make([]Frame, 0, len(m.Names)+1)
	frames = append(frames, Frame{Command: CmdFileListEntry, Payload: strconv.Itoa(len(m.Names))})
	for _, name := range m.Names {
		frames = append(frames, follow(name))
	}
	return frames
}

func (m FileInfo) Frames() []Frame {
	frames := make([]Frame, 0, len(m.Lines)+2)
	frames = append(frames,
		Frame{Command: CmdOpenFileInfo, Payload: strconv.Itoa(len(m.Lines))},
		follow(strconv.Itoa(m.Total)),
	)
	for _, line := range m.Lines {
		frames = append(frames, follow(line))
	}
	return frames
}

func (m LineFront) Frames() []Frame {
	return lineFrames(CmdLineFrontReply, m.Line, m.Text)
}

func (m LineBack) Frames() []Frame {
	return lineFrames(CmdLineBackReply, m.Line, m.Text)
}

func (m LineAppend) Frames() []Frame {
	return lineFrames(CmdLineAppendReply, m.Line, m.Text)
}

func (m RemoteUpdate) Frames() []Frame {
	return lineFrames(CmdRemoteUpdate, m.Line, m.Text)
}

func (m RemoteInsert) Frames() []Frame {
	return lineFrames(CmdRemoteInsert, m.Line, m.Text)
}

func (m RemoteDelete) Frames() []Frame {
	return []Frame{{Command: CmdRemoteDelete, Payload: strconv.Itoa(m.Line)}}
}

func (SaveAck) Frames() []Frame {
	return []Frame{{Command: CmdSaveFileAck}}
}

func (m Unknown) Frames() []Frame {
	return []Frame{m.Frame}
}

// ListFiles asks for the directory listing.
type ListFiles struct{}

// OpenFile asks to open Name with a window of Rows lines.
type OpenFile struct {
	Name string
	Rows int
}

// FetchFront asks for Line to extend the window at the front (PushLineFront).
type FetchFront struct {
	Line int
}

// FetchBack asks for Line to extend the window at the back (PushLineBack).
type FetchBack struct {
	Line int
}

// FetchAppend asks for Line to back-fill the window (AddLineBack).
type FetchAppend struct {
	Line int
}

// UpdateLine replaces the text of the server-side cursor line.
type UpdateLine struct {
	Text string
}

// SetCursor moves the server-side cursor to Line.
type SetCursor struct {
	Line int
}

// SwitchMode reports an edit/browse toggle with the cursor line.
type SwitchMode struct {
	Editing bool
	Line    int
}

// InsertLine inserts Text after the server-side cursor line and moves the cursor onto it.
type InsertLine struct {
	Text string
}

// DeleteLine removes Line.
type DeleteLine struct {
	Line int
}

// SaveFile asks the server to persist the file.
type SaveFile struct{}

func (ListFiles) request()   {}
func (OpenFile) request()    {}
func (FetchFront) request()  {}
func (FetchBack) request()   {}
func (FetchAppend) request() {}
func (UpdateLine) request()  {}
func (SetCursor) request()   {}
func (SwitchMode) request()  {}
func (InsertLine) request()  {}
func (DeleteLine) request()  {}
func (SaveFile) request()    {}

func (ListFiles) Frames() []Frame {
	return []Frame{{Command: CmdGetFileList}}
}

func (r OpenFile) Frames() []Frame {
	return []Frame{
		{Command: CmdOpenFileRequest, Payload: r.Name},
		follow(strconv.Itoa(r.Rows)),
	}
}

func (r FetchFront) Frames() []Frame {
	return []Frame{{Command: CmdPushLineFront, Payload: strconv.Itoa(r.Line)}}
}

func (r FetchBack) Frames() []Frame {
	return []Frame{{Command: CmdPushLineBack, Payload: strconv.Itoa(r.Line)}}
}

func (r FetchAppend) Frames() []Frame {
	return []Frame{{Command: CmdAddLineBack, Payload: strconv.Itoa(r.Line)}}
}

func (r UpdateLine) Frames() []Frame {
	return []Frame{{Command: CmdUpdateLineContent, Payload: r.Text}}
}

func (r SetCursor) Frames() []Frame {
	return []Frame{{Command: CmdSetCursorPos, Payload: strconv.Itoa(r.Line)}}
}

func (r SwitchMode) Frames() []Frame {
	cmd := CmdSwitchToBrowsing
	if r.Editing {
		cmd = CmdSwitchToEditing
	}
	return []Frame{{Command: cmd, Payload: strconv.Itoa(r.Line)}}
}

func (r InsertLine) Frames() []Frame {
	return []Frame{{Command: CmdInsertLine, Payload: r.Text}}
}

func (r DeleteLine) Frames() []Frame {
	return []Frame{{Command: CmdDeleteLine, Payload: strconv.Itoa(r.Line)}}
}

func (SaveFile) Frames() []Frame {
	return []Frame{{Command: CmdSaveFile}}
}

func follow(payload string) Frame {
	return Frame{Command: CmdOther, Payload: payload}
}

func lineFrames(cmd Command, line int, text string) []Frame {
	return []Frame{
		{Command: cmd, Payload: strconv.Itoa(line)},
		follow(text),
	}
}
