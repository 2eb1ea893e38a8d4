// Package wsproto implements the JSON subprotocol layered on top of
// WebSocket frames: a typed {t,u,a,c,m,p} envelope used to carry
// Open/Close/Call/CallResult/CallError messages and correlate
// call/response pairs by uniqueId.
package wsproto

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// MessageType is the envelope's "t" discriminant.
type MessageType int

const (
	Open        MessageType = 0
	Close       MessageType = 1
	Call        MessageType = 2
	CallResult  MessageType = 3
	CallError   MessageType = 4
)

// Message is the decoded form of the wire envelope. Payload is kept
// as json.RawMessage so callers can unmarshal it into whatever shape
// the action expects.
type Message struct {
	Type         MessageType
	UniqueID     string
	Action       string
	ErrorCode    int
	ErrorMessage string
	Payload      json.RawMessage
}

// wireEnvelope mirrors the on-the-wire field names.
type wireEnvelope struct {
	T int             `json:"t"`
	U string          `json:"u"`
	A string          `json:"a,omitempty"`
	C *int            `json:"c,omitempty"`
	M string          `json:"m,omitempty"`
	P json.RawMessage `json:"p,omitempty"`
}

// Decode parses a subprotocol envelope. A "t" outside 0..4 is a
// protocol error; missing fields default to empty strings, "c"
// defaults to -1, and a "p" whose JSON type is neither object nor
// array is treated as absent.
func Decode(data []byte) (Message, error) {
	var w wireEnvelope
	if err := json.Unmarshal(data, &w); err != nil {
		return Message{}, err
	}
	if w.T < 0 || w.T > 4 {
		return Message{}, fmt.Errorf("wsproto: invalid message type %d", w.T)
	}

	msg := Message{
		Type:         MessageType(w.T),
		UniqueID:     w.U,
		Action:       w.A,
		ErrorMessage: w.M,
		ErrorCode:    -1,
	}
	if w.C != nil {
		msg.ErrorCode = *w.C
	}
	if isObjectOrArray(w.P) {
		msg.Payload = w.P
	}
	return msg, nil
}

func isObjectOrArray(raw json.RawMessage) bool {
	for _, b := range raw {
		switch b {
		case ' ', '\t', '\r', '\n':
			continue
		case '{', '[':
			return true
		default:
			return false
		}
	}
	return false
}

// Encode serializes msg back to its wire envelope, omitting fields
// the message type doesn't carry.
func Encode(msg Message) ([]byte, error) {
	w := wireEnvelope{T: int(msg.Type), U: msg.UniqueID}
	switch msg.Type {
	case Call:
		w.A = msg.Action
		w.P = msg.Payload
	case CallResult:
		w.P = msg.Payload
	case CallError:
		w.C = &msg.ErrorCode
		w.M = msg.ErrorMessage
		// p is never written for CallError, even if msg.Payload is set.
	default:
		w.P = msg.Payload
	}
	return json.Marshal(w)
}

// EncodeCall serializes a Call envelope for action with payload.
func EncodeCall(uniqueID, action string, payload json.RawMessage) ([]byte, error) {
	return Encode(Message{Type: Call, UniqueID: uniqueID, Action: action, Payload: payload})
}

// EncodeCallResult serializes a CallResult envelope.
func EncodeCallResult(uniqueID string, payload json.RawMessage) ([]byte, error) {
	return Encode(Message{Type: CallResult, UniqueID: uniqueID, Payload: payload})
}

// EncodeCallError serializes a CallError envelope. payload may be nil;
// it is not placed on the wire, since Encode never writes p for a
// CallError.
func EncodeCallError(uniqueID string, code int, message string, payload json.RawMessage) ([]byte, error) {
	return Encode(Message{Type: CallError, UniqueID: uniqueID, ErrorCode: code, ErrorMessage: message, Payload: payload})
}

// NewUniqueID draws 21 random bytes from a cryptographic source and
// hex-encodes them into a 42-character uniqueId.
func NewUniqueID() string {
	var buf [21]byte
	if _, err := rand.Read(buf[:]); err != nil {
		panic(err) // crypto/rand failing indicates a broken host, not a recoverable condition
	}
	return hex.EncodeToString(buf[:])
}
