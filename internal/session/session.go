// Package session implements one logical client's session: identity,
// authorization state, and the connection it is currently bound to.
// The attribute store is the connection's own named-data map rather
// than a separate backing store, and SwitchConnection rebinds a
// session to a new connection without losing that state — the
// WebSocket reconnect case, where a client's identity outlives any
// one socket.
package session

import (
	"sync"

	"github.com/wharfhq/wharf/internal/wsproto"
)

// NamedDataHolder is the narrow slice of Connection a Session needs:
// a per-connection string-keyed attribute map used to reach the bound
// session back from the connection, plus enough transport surface to
// satisfy wsproto.Sender and to disconnect a connection being
// replaced. Kept as an interface here, so this package does not
// import internal/conn.
type NamedDataHolder interface {
	wsproto.Sender
	SetNamedData(key string, value any)
	DeleteNamedData(key string)
	Close() error
}

// SessionDataKey is the named-data key a Connection stores its bound
// Session under.
const SessionDataKey = "session"

// Session is one logical client. Its Connection pointer may be
// retargeted by SwitchConnection as the client reconnects; everything
// else (identity, authorization, message correlation) survives the
// rebind.
type Session struct {
	mu sync.Mutex

	Connection NamedDataHolder
	Messages   *wsproto.MessageManager

	UpdateCount int
	Authorized  bool
	SessionID   string
	Identity    string
	IP          string
}

// New returns a Session with no bound connection. Bind it with
// SwitchConnection once a connection has authenticated.
func New(sessionID, identity, ip string) *Session {
	s := &Session{SessionID: sessionID, Identity: identity, IP: ip}
	s.Messages = wsproto.NewMessageManager(nil)
	return s
}

// BeginUpdate marks the start of a mutation that should be visible to
// readers only once EndUpdate completes; brackets SwitchConnection and
// any other multi-field update.
func (s *Session) BeginUpdate() {
	s.mu.Lock()
}

// EndUpdate closes out a BeginUpdate/EndUpdate bracket and records the
// mutation.
func (s *Session) EndUpdate() {
	s.UpdateCount++
	s.mu.Unlock()
}

// SwitchConnection atomically unbinds the session from its current
// connection (removing its named-data record and closing it) and
// attaches it to newConn, rebinding the message manager so pending
// Call correlation survives the move. A nil oldConnection (first
// bind) skips the disconnect step.
func (s *Session) SwitchConnection(newConn NamedDataHolder) {
	s.BeginUpdate()
	defer s.EndUpdate()

	old := s.Connection
	s.Connection = newConn
	s.Messages.Bind(newConn)
	newConn.SetNamedData(SessionDataKey, s)

	if old != nil && old != newConn {
		old.DeleteNamedData(SessionDataKey)
		old.Close()
	}
}
