package session

import "sync"

// compositeKey is the (session-id, identity) lookup key.
type compositeKey struct {
	sessionID string
	identity  string
}

// Manager indexes Sessions by every lookup the wire protocol needs:
// session-id, identity, ip, bound connection, and the
// (session-id, identity) composite.
type Manager struct {
	mu sync.RWMutex

	bySessionID map[string]*Session
	byIdentity  map[string]*Session
	byIP        map[string]*Session
	byConn      map[NamedDataHolder]*Session
	byComposite map[compositeKey]*Session
}

// NewManager returns an empty session manager.
func NewManager() *Manager {
	return &Manager{
		bySessionID: make(map[string]*Session),
		byIdentity:  make(map[string]*Session),
		byIP:        make(map[string]*Session),
		byConn:      make(map[NamedDataHolder]*Session),
		byComposite: make(map[compositeKey]*Session),
	}
}

// Add registers s under all of its indices.
func (m *Manager) Add(s *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s.SessionID != "" {
		m.bySessionID[s.SessionID] = s
	}
	if s.Identity != "" {
		m.byIdentity[s.Identity] = s
	}
	if s.IP != "" {
		m.byIP[s.IP] = s
	}
	if s.Connection != nil {
		m.byConn[s.Connection] = s
	}
	if s.SessionID != "" && s.Identity != "" {
		m.byComposite[compositeKey{s.SessionID, s.Identity}] = s
	}
}

// Remove drops s from every index.
func (m *Manager) Remove(s *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.bySessionID, s.SessionID)
	delete(m.byIdentity, s.Identity)
	delete(m.byIP, s.IP)
	delete(m.byConn, s.Connection)
	delete(m.byComposite, compositeKey{s.SessionID, s.Identity})
}

// Rebind updates the by-connection index after a SwitchConnection,
// since the map key (the connection pointer) changes.
func (m *Manager) Rebind(old, new NamedDataHolder, s *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if old != nil {
		delete(m.byConn, old)
	}
	if new != nil {
		m.byConn[new] = s
	}
}

func (m *Manager) BySessionID(id string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.bySessionID[id]
	return s, ok
}

func (m *Manager) ByIdentity(identity string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.byIdentity[identity]
	return s, ok
}

func (m *Manager) ByIP(ip string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.byIP[ip]
	return s, ok
}

func (m *Manager) ByConnection(conn NamedDataHolder) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.byConn[conn]
	return s, ok
}

func (m *Manager) ByComposite(sessionID, identity string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.byComposite[compositeKey{sessionID, identity}]
	return s, ok
}
