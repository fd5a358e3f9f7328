package protocol

import "strconv"

// Command tags a frame. Values are stable across client and server and start
// at 'A' so that stream frames stay printable.
type Command byte

const (
	CmdNone              Command = 0
	CmdGetFileList       Command = 65
	CmdFileListEntry     Command = 66
	CmdOpenFileRequest   Command = 67
	CmdOpenFileInfo      Command = 68
	CmdPushLineFront     Command = 69
	CmdPushLineBack      Command = 70
	CmdUpdateLineContent Command = 71
	CmdSetCursorPos      Command = 72
	CmdSwitchToBrowsing  Command = 73
	CmdSwitchToEditing   Command = 74
	CmdInsertLine        Command = 75
	CmdDeleteLine        Command = 76
	CmdSaveFile          Command = 77
	CmdAddLineBack       Command = 78
	CmdLineFrontReply    Command = 79
	CmdLineBackReply     Command = 80
	CmdLineAppendReply   Command = 81
	CmdSaveFileAck       Command = 82
	CmdRemoteUpdate      Command = 83
	CmdRemoteInsert      Command = 84
	CmdRemoteDelete      Command = 85
	CmdOther             Command = 122
)

var commandNames = map[Command]string{
	CmdNone:              "None",
	CmdGetFileList:       "GetFileList",
	CmdFileListEntry:     "FileListEntry",
	CmdOpenFileRequest:   "OpenFileRequest",
	CmdOpenFileInfo:      "OpenFileInfo",
	CmdPushLineFront:     "PushLineFront",
	CmdPushLineBack:      "PushLineBack",
	CmdUpdateLineContent: "UpdateLineContent",
	CmdSetCursorPos:      "SetCursorPos",
	CmdSwitchToBrowsing:  "SwitchToBrowsing",
	CmdSwitchToEditing:   "SwitchToEditing",
	CmdInsertLine:        "InsertLine",
	CmdDeleteLine:        "DeleteLine",
	CmdSaveFile:          "SaveFile",
	CmdAddLineBack:       "AddLineBack",
	CmdLineFrontReply:    "LineFrontReply",
	CmdLineBackReply:     "LineBackReply",
	CmdLineAppendReply:   "LineAppendReply",
	CmdSaveFileAck:       "SaveFileAck",
	CmdRemoteUpdate:      "RemoteUpdate",
	CmdRemoteInsert:      "RemoteInsert",
	CmdRemoteDelete:      "RemoteDelete",
	CmdOther:             "Other",
}

func (c Command) String() string {
	if name, ok := commandNames[c]; ok {
		return name
	}
	return "Command(" + strconv.Itoa(int(c)) + ")"
}

// Known reports whether c is one of the defined tags.
func (c Command) Known() bool {
	_, ok := commandNames[c]
	return ok
}
