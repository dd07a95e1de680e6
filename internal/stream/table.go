package stream

// Table maps stream keys to their sessions. It does no locking of its own;
// the Supervisor serializes every access behind its mutex.
type Table struct {
	sessions map[Key]*Session
}

// NewTable returns an empty table.
func NewTable() *Table {
	return &Table{
		sessions: make(map[Key]*Session),
	}
}

// Get returns the session for key, if any.
func (t *Table) Get(key Key) (*Session, bool) {
	s, ok := t.sessions[key]
	return s, ok
}

// Set inserts or replaces the session stored under s.Key.
func (t *Table) Set(s *Session) {
	t.sessions[s.Key] = s
}

// Delete removes key. Deleting an unknown key is a no-op.
func (t *Table) Delete(key Key) {
	delete(t.sessions, key)
}

// Keys returns the keys currently present, in no particular order.
func (t *Table) Keys() []Key {
	keys := make([]Key, 0, len(t.sessions))
	for k := range t.sessions {
		keys = append(keys, k)
	}
	return keys
}

// Len returns the number of sessions.
func (t *Table) Len() int {
	return len(t.sessions)
}
