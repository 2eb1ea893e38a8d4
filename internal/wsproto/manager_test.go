package wsproto

import (
	"encoding/json"
	"sync"
	"testing"
)

type fakeSender struct {
	mu  sync.Mutex
	out [][]byte
}

func (f *fakeSender) SendText(data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.out = append(f.out, append([]byte(nil), data...))
	return nil
}

func (f *fakeSender) last() []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.out) == 0 {
		return nil
	}
	return f.out[len(f.out)-1]
}

func TestManagerCallDispatchesResult(t *testing.T) {
	sender := &fakeSender{}
	m := NewMessageManager(sender)

	var gotPayload json.RawMessage
	uid, err := m.Call("", "echo", json.RawMessage(`{"x":1}`), func(payload json.RawMessage) {
		gotPayload = payload
	}, nil)
	if err != nil {
		t.Fatalf("Call failed: %v", err)
	}
	if uid == "" {
		t.Fatal("Call returned empty uniqueId")
	}
	if m.Pending() != 1 {
		t.Fatalf("Pending = %d, want 1", m.Pending())
	}

	sent, err := Decode(sender.last())
	if err != nil {
		t.Fatalf("decoding sent frame failed: %v", err)
	}
	if sent.Type != Call || sent.UniqueID != uid {
		t.Fatalf("sent = %+v", sent)
	}

	result := Message{Type: CallResult, UniqueID: uid, Payload: json.RawMessage(`{"ok":true}`)}
	if matched := m.Dispatch(result); !matched {
		t.Fatal("Dispatch reported no match for a registered uniqueId")
	}
	if string(gotPayload) != `{"ok":true}` {
		t.Fatalf("OnResult payload = %s", gotPayload)
	}
	if m.Pending() != 0 {
		t.Fatalf("Pending after dispatch = %d, want 0", m.Pending())
	}
}

func TestManagerCallDispatchesError(t *testing.T) {
	sender := &fakeSender{}
	m := NewMessageManager(sender)

	var gotCode int
	var gotMsg string
	uid, err := m.Call("", "boom", nil, nil, func(code int, message string, payload json.RawMessage) {
		gotCode, gotMsg = code, message
	})
	if err != nil {
		t.Fatalf("Call failed: %v", err)
	}

	m.Dispatch(Message{Type: CallError, UniqueID: uid, ErrorCode: 404, ErrorMessage: "missing"})
	if gotCode != 404 || gotMsg != "missing" {
		t.Fatalf("got code=%d msg=%q", gotCode, gotMsg)
	}
}

func TestManagerDispatchUnmatchedReturnsFalse(t *testing.T) {
	m := NewMessageManager(&fakeSender{})
	if matched := m.Dispatch(Message{Type: CallResult, UniqueID: "nonexistent"}); matched {
		t.Fatal("Dispatch matched a uniqueId that was never registered")
	}
}

func TestManagerBindRetargetsSender(t *testing.T) {
	first := &fakeSender{}
	second := &fakeSender{}
	m := NewMessageManager(first)

	if err := m.CallResult("u1", nil); err != nil {
		t.Fatalf("CallResult failed: %v", err)
	}
	if len(first.out) != 1 {
		t.Fatalf("first sender got %d frames, want 1", len(first.out))
	}

	m.Bind(second)
	if err := m.CallResult("u2", nil); err != nil {
		t.Fatalf("CallResult failed: %v", err)
	}
	if len(first.out) != 1 {
		t.Fatalf("first sender got a frame after Bind, total %d", len(first.out))
	}
	if len(second.out) != 1 {
		t.Fatalf("second sender got %d frames, want 1", len(second.out))
	}
}

func TestManagerCallWithNilSenderDoesNotPanic(t *testing.T) {
	m := NewMessageManager(nil)
	uid, err := m.Call("", "noop", nil, nil, nil)
	if err != nil {
		t.Fatalf("Call with nil sender failed: %v", err)
	}
	if uid == "" {
		t.Fatal("Call returned empty uniqueId")
	}
}
