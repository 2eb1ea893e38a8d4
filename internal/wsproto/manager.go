package wsproto

import (
	"encoding/json"
	"sync"
)

// ResultFunc is invoked when the matching CallResult arrives.
type ResultFunc func(payload json.RawMessage)

// ErrorFunc is invoked when the matching CallError arrives.
type ErrorFunc func(code int, message string, payload json.RawMessage)

// MessageHandler correlates one outstanding Call with the callbacks
// that should run when its CallResult or CallError arrives.
type MessageHandler struct {
	UniqueID string
	Action   string
	OnResult ResultFunc
	OnError  ErrorFunc
}

// Sender transmits a serialized frame over whatever connection a
// MessageManager is bound to. Implemented by internal/conn.Connection;
// kept as a narrow interface here to avoid a dependency cycle.
type Sender interface {
	SendText(data []byte) error
}

// MessageManager tracks outstanding Call handlers for one connection,
// keyed by uniqueId, and serializes/transmits outbound envelopes
// through the bound Sender.
type MessageManager struct {
	mu       sync.Mutex
	sender   Sender
	handlers map[string]*MessageHandler
}

// NewMessageManager returns a manager bound to sender.
func NewMessageManager(sender Sender) *MessageManager {
	return &MessageManager{sender: sender, handlers: make(map[string]*MessageHandler)}
}

// Bind retargets the manager onto a new connection, used by
// Session.SwitchConnection.
func (m *MessageManager) Bind(sender Sender) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sender = sender
}

// Call serializes and sends a Call envelope, allocating a
// MessageHandler under uniqueId (generating one via NewUniqueID if
// empty) so a later Dispatch of the matching CallResult/CallError
// invokes onResult/onError. Returns the uniqueId used.
func (m *MessageManager) Call(uniqueID, action string, payload json.RawMessage, onResult ResultFunc, onError ErrorFunc) (string, error) {
	if uniqueID == "" {
		uniqueID = NewUniqueID()
	}

	m.mu.Lock()
	m.handlers[uniqueID] = &MessageHandler{UniqueID: uniqueID, Action: action, OnResult: onResult, OnError: onError}
	sender := m.sender
	m.mu.Unlock()

	data, err := EncodeCall(uniqueID, action, payload)
	if err != nil {
		return "", err
	}
	if sender == nil {
		return uniqueID, nil
	}
	return uniqueID, sender.SendText(data)
}

// CallResult serializes and sends a CallResult envelope. It does not
// consult the handler table: the recipient owns that correlation.
func (m *MessageManager) CallResult(uniqueID string, payload json.RawMessage) error {
	data, err := EncodeCallResult(uniqueID, payload)
	if err != nil {
		return err
	}
	return m.send(data)
}

// CallError serializes and sends a CallError envelope.
func (m *MessageManager) CallError(uniqueID string, code int, message string, payload json.RawMessage) error {
	data, err := EncodeCallError(uniqueID, code, message, payload)
	if err != nil {
		return err
	}
	return m.send(data)
}

func (m *MessageManager) send(data []byte) error {
	m.mu.Lock()
	sender := m.sender
	m.mu.Unlock()
	if sender == nil {
		return nil
	}
	return sender.SendText(data)
}

// Dispatch routes a decoded CallResult/CallError message to its
// handler and removes the handler from the table; unmatched
// CallResult/CallError messages (no handler registered under their
// uniqueId) are reported back to the caller so it can log them.
func (m *MessageManager) Dispatch(msg Message) (matched bool) {
	m.mu.Lock()
	h, ok := m.handlers[msg.UniqueID]
	if ok {
		delete(m.handlers, msg.UniqueID)
	}
	m.mu.Unlock()
	if !ok {
		return false
	}

	switch msg.Type {
	case CallResult:
		if h.OnResult != nil {
			h.OnResult(msg.Payload)
		}
	case CallError:
		if h.OnError != nil {
			h.OnError(msg.ErrorCode, msg.ErrorMessage, msg.Payload)
		}
	}
	return true
}

// Pending returns the number of outstanding, unmatched handlers.
// Unmatched handlers persist until a matching CallResult/CallError
// arrives; there is no expiry.
func (m *MessageManager) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.handlers)
}
