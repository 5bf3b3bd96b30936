// Package wire defines the JSON messages exchanged with the relay.
package wire

import (
	"encoding/json"
	"fmt"

	"colabx-sync/pkg/textop"
)

// Kind is the closed set of message types the relay and its clients speak.
type Kind string

const (
	KindJoin               Kind = "join"
	KindLeave              Kind = "leave"
	KindUserJoined         Kind = "user-joined"
	KindUserLeft           Kind = "user-left"
	KindUsersList          Kind = "users-list"
	KindFileList           Kind = "file-list"
	KindFileCreated        Kind = "file-created"
	KindFileDeleted        Kind = "file-deleted"
	KindFileContent        Kind = "file-content"
	KindRequestFileContent Kind = "request-file-content"
	KindFileOperation      Kind = "file-operation"
	KindCursorPosition     Kind = "cursor-position"
	KindError              Kind = "error"
)

// Known reports whether k is part of the protocol. Unknown kinds are logged
// and dropped by the receiver, never treated as fatal.
func (k Kind) Known() bool {
	switch k {
	case KindJoin, KindLeave, KindUserJoined, KindUserLeft, KindUsersList,
		KindFileList, KindFileCreated, KindFileDeleted, KindFileContent,
		KindRequestFileContent, KindFileOperation, KindCursorPosition,
		KindError:
		return true
	}
	return false
}

// User identifies a participant. Color is assigned once at session start
// and stays stable for the session.
type User struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color"`
}

// Message is the envelope for every relay exchange: one flat object per
// message, with the payload fields relevant to its Type populated and the
// rest omitted.
type Message struct {
	Type     Kind              `json:"type"`
	User     *User             `json:"user,omitempty"`
	Users    []User            `json:"users,omitempty"`
	UserID   string            `json:"userId,omitempty"`
	RoomID   string            `json:"roomId,omitempty"`
	Filename string            `json:"filename,omitempty"`
	Content  string            `json:"content,omitempty"`
	Files    map[string]string `json:"files,omitempty"`
	Op       *textop.Operation `json:"operation,omitempty"`
	Position *textop.Position  `json:"position,omitempty"`
	Error    string            `json:"error,omitempty"`
}

// Decode parses a single relay message. A parse failure or a message with
// no type is an error; an unknown type is not (the caller decides to drop).
func Decode(data []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return Message{}, fmt.Errorf("decode relay message: %w", err)
	}
	if m.Type == "" {
		return Message{}, fmt.Errorf("decode relay message: missing type")
	}
	return m, nil
}

// Encode serializes m for transmission.
func Encode(m Message) ([]byte, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode %s message: %w", m.Type, err)
	}
	return data, nil
}

// Join builds the room-entry announcement sent right after the transport
// opens, and again when the local identity changes mid-connection.
func Join(user User, roomID string) Message {
	u := user
	return Message{Type: KindJoin, User: &u, RoomID: roomID}
}

// Leave builds the deliberate-departure notice.
func Leave(userID, roomID string) Message {
	return Message{Type: KindLeave, UserID: userID, RoomID: roomID}
}

// FileOperation wraps an edit with its routing metadata.
func FileOperation(op textop.Operation, filename, userID, roomID string) Message {
	o := op
	return Message{
		Type:     KindFileOperation,
		Op:       &o,
		Filename: filename,
		UserID:   userID,
		RoomID:   roomID,
	}
}

// CursorPosition reports the local caret location in the active file.
func CursorPosition(pos textop.Position, filename, userID, roomID string) Message {
	p := pos
	return Message{
		Type:     KindCursorPosition,
		Position: &p,
		Filename: filename,
		UserID:   userID,
		RoomID:   roomID,
	}
}

// RequestFileContent asks the relay for the authoritative content of a
// file, used on file switch and on suspected divergence.
func RequestFileContent(filename, userID, roomID string) Message {
	return Message{
		Type:     KindRequestFileContent,
		Filename: filename,
		UserID:   userID,
		RoomID:   roomID,
	}
}

// FileCreated announces a new file and its initial content.
func FileCreated(filename, content, userID, roomID string) Message {
	return Message{
		Type:     KindFileCreated,
		Filename: filename,
		Content:  content,
		UserID:   userID,
		RoomID:   roomID,
	}
}

// FileDeleted announces removal of a file from the shared set.
func FileDeleted(filename, userID, roomID string) Message {
	return Message{
		Type:     KindFileDeleted,
		Filename: filename,
		UserID:   userID,
		RoomID:   roomID,
	}
}
