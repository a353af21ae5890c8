package proto

import "strings"

// Sep separates fields within a protocol line.
const Sep = "|"

// Client commands.
const (
	CmdRegister = "REGISTER"
	CmdLogin    = "LOGIN"
	CmdJoinRoom = "JOIN_ROOM"
	CmdMsg      = "MSG"
	CmdGame     = "GAME"
	CmdUpload   = "UPLOAD"
	CmdDownload = "DOWNLOAD"
)

// Server replies. MSG and GAME reuse the command names on the way back out.
const (
	ReplyRegisterSuccess = "REGISTER_SUCCESS"
	ReplyRegisterFail    = "REGISTER_FAIL"
	ReplyLoginSuccess    = "LOGIN_SUCCESS"
	ReplyLoginFail       = "LOGIN_FAIL"
	ReplyRoomJoined      = "ROOM_JOINED"
	ReplyFileNotif       = "FILE_NOTIF"
	ReplyFileData        = "FILE_DATA"
	ReplyUserList        = "USERLIST"
	ReplyUserListAdmin   = "USERLIST_ADMIN"
	ReplyServer          = "SERVER"
)

// fieldCounts maps each command to its fixed number of fields, counting the
// command itself. A line is split on at most fields-1 separators so a
// trailing free-text argument (chat text, game payload, base64 data) keeps
// any separators it contains.
var fieldCounts = map[string]int{
	CmdRegister: 3,
	CmdLogin:    3,
	CmdJoinRoom: 2,
	CmdMsg:      2,
	CmdGame:     2,
	CmdUpload:   3,
	CmdDownload: 2,
}

// Message is one decoded inbound line.
type Message struct {
	Command string
	Args    []string
}

// Parse decodes a protocol line into a command and its arguments.
// Unknown commands and lines with missing arguments report ok=false;
// callers drop those silently.
func Parse(line string) (Message, bool) {
	cmd, _, _ := strings.Cut(line, Sep)
	fields, known := fieldCounts[cmd]
	if !known {
		return Message{}, false
	}
	parts := strings.SplitN(line, Sep, fields)
	if len(parts) < fields {
		return Message{}, false
	}
	return Message{Command: parts[0], Args: parts[1:]}, true
}

// Join assembles fields into a single protocol line.
func Join(fields ...string) string {
	return strings.Join(fields, Sep)
}

// Frame appends the line terminator, yielding the bytes to put on the wire.
func Frame(line string) []byte {
	return append([]byte(line), '\n')
}
