// Package protocol defines the chat wire envelope and its JSON codec.
//
// Every logical message travels on its own transport stream; the end of the
// stream delimits the message, so no length prefix is written.
package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

const (
	// Version is the envelope version written by this implementation.
	Version = 1

	// MaxMessageSize is the maximum encoded message size (64KB).
	MaxMessageSize = 65536
)

// ErrMessageTooLarge is returned by ReadFrame when a stream carries more
// than MaxMessageSize bytes.
var ErrMessageTooLarge = fmt.Errorf("protocol: message exceeds %d bytes", MaxMessageSize)

// MsgType identifies the purpose of a message.
type MsgType int

const (
	AuthReq MsgType = iota // client authentication request
	AuthOK                 // authentication accepted, carries the token
	AuthBad                // authentication rejected, body holds the reason
	Chat                   // chat text, broadcast or private
	Sys                    // system notice
)

func (t MsgType) String() string {
	switch t {
	case AuthReq:
		return "AUTH_REQ"
	case AuthOK:
		return "AUTH_OK"
	case AuthBad:
		return "AUTH_BAD"
	case Chat:
		return "CHAT"
	case Sys:
		return "SYS"
	default:
		return fmt.Sprintf("MsgType(%d)", int(t))
	}
}

// Valid reports whether t is one of the five known message types.
func (t MsgType) Valid() bool {
	return t >= AuthReq && t <= Sys
}

// Message is the wire envelope. It is a value type: copies never share state.
// An empty To means broadcast; an empty Token means no token.
type Message struct {
	Version int
	Type    MsgType
	Body    string
	To      string
	Token   string
}

// IsPrivate reports whether the message addresses a single recipient.
func (m Message) IsPrivate() bool {
	return m.To != ""
}

// WithToken returns a copy of m carrying token.
func (m Message) WithToken(token string) Message {
	m.Token = token
	return m
}

// NewAuthRequest builds the login message. The username travels in the
// recipient field and the password in the body.
func NewAuthRequest(username, password string) Message {
	return Message{Version: Version, Type: AuthReq, To: username, Body: password}
}

// NewAuthOK builds a successful authentication reply.
func NewAuthOK(body, token string) Message {
	return Message{Version: Version, Type: AuthOK, Body: body, Token: token}
}

// NewAuthBad builds an authentication rejection.
func NewAuthBad(reason string) Message {
	return Message{Version: Version, Type: AuthBad, Body: reason}
}

// NewChat builds a broadcast chat message.
func NewChat(body string) Message {
	return Message{Version: Version, Type: Chat, Body: body}
}

// NewPrivateChat builds a chat message addressed to one user.
func NewPrivateChat(to, body string) Message {
	return Message{Version: Version, Type: Chat, Body: body, To: to}
}

// NewSystem builds a system notice.
func NewSystem(body string) Message {
	return Message{Version: Version, Type: Sys, Body: body}
}

// wireMessage is the JSON shape: {v, t, body, to, token}.
// Pointers distinguish missing fields from zero values on decode.
type wireMessage struct {
	V     *int    `json:"v"`
	T     *int    `json:"t"`
	Body  *string `json:"body"`
	To    *string `json:"to"`
	Token *string `json:"token"`
}

// DecodeError reports bytes that are not a valid envelope.
type DecodeError struct {
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return "protocol: decode: " + e.Reason + ": " + e.Err.Error()
	}
	return "protocol: decode: " + e.Reason
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Encode serializes a message. Empty To and Token are written as null.
func Encode(msg Message) []byte {
	v := msg.Version
	t := int(msg.Type)
	body := msg.Body
	w := wireMessage{V: &v, T: &t, Body: &body}
	if msg.To != "" {
		w.To = &msg.To
	}
	if msg.Token != "" {
		w.Token = &msg.Token
	}
	// wireMessage holds only ints and strings; Marshal cannot fail.
	data, _ := json.Marshal(w)
	return data
}

// Decode parses one envelope. It performs no semantic validation beyond the
// shape of the envelope and the type enum.
func Decode(data []byte) (Message, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return Message{}, &DecodeError{Reason: "empty message"}
	}
	if len(data) > MaxMessageSize {
		return Message{}, &DecodeError{Reason: "message too large", Err: ErrMessageTooLarge}
	}

	var w wireMessage
	if err := json.Unmarshal(data, &w); err != nil {
		return Message{}, &DecodeError{Reason: "malformed envelope", Err: err}
	}
	switch {
	case w.V == nil:
		return Message{}, &DecodeError{Reason: `missing field "v"`}
	case w.T == nil:
		return Message{}, &DecodeError{Reason: `missing field "t"`}
	case w.Body == nil:
		return Message{}, &DecodeError{Reason: `missing field "body"`}
	}
	t := MsgType(*w.T)
	if !t.Valid() {
		return Message{}, &DecodeError{Reason: fmt.Sprintf("unknown message type %d", *w.T)}
	}

	msg := Message{Version: *w.V, Type: t, Body: *w.Body}
	if w.To != nil {
		msg.To = *w.To
	}
	if w.Token != nil {
		msg.Token = *w.Token
	}
	return msg, nil
}

// IsDecodeError reports whether err is (or wraps) a *DecodeError.
func IsDecodeError(err error) bool {
	var de *DecodeError
	return errors.As(err, &de)
}

// WriteMessage encodes msg onto w. The caller finishes the stream.
func WriteMessage(w io.Writer, msg Message) error {
	if _, err := w.Write(Encode(msg)); err != nil {
		return fmt.Errorf("protocol: write: %w", err)
	}
	return nil
}

// ReadFrame reads one whole message from a stream, up to MaxMessageSize bytes.
func ReadFrame(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxMessageSize+1))
	if err != nil {
		return nil, fmt.Errorf("protocol: read: %w", err)
	}
	if len(data) > MaxMessageSize {
		return nil, ErrMessageTooLarge
	}
	return data, nil
}
