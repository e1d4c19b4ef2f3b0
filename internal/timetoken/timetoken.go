// Package timetoken holds the event stream cursor used to resume polling
// without gaps.
package timetoken

import (
	"strings"
	"sync"
)

// Cursor is a server issued stream position. Token is opaque and passed back
// to the server verbatim, empty Token means "now". Region is a server routing
// hint returned together with token.
type Cursor struct {
	Token  string
	Region int
}

// IsZero reports whether cursor holds no token.
func (c Cursor) IsZero() bool {
	return c.Token == ""
}

// Manager holds exactly one cursor per connection epoch. The cursor only
// moves forward from successful poll responses, it is discarded when a new
// epoch starts.
type Manager struct {
	mu     sync.Mutex
	epoch  uint64
	cursor Cursor
}

// New creates Manager starting at epoch 1 with no token.
func New() *Manager {
	return &Manager{epoch: 1}
}

// Snapshot returns current cursor and epoch.
func (m *Manager) Snapshot() (Cursor, uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cursor, m.epoch
}

// Cursor returns current cursor.
func (m *Manager) Cursor() Cursor {
	c, _ := m.Snapshot()
	return c
}

// Epoch returns current epoch.
func (m *Manager) Epoch() uint64 {
	_, e := m.Snapshot()
	return e
}

// Update applies cursor received in a response to a request issued during
// epoch. Cursors from a past epoch or older than the held one are ignored.
// Returns true if cursor was applied.
func (m *Manager) Update(epoch uint64, c Cursor) bool {
	if c.Token == "" {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if epoch != m.epoch {
		return false
	}
	if m.cursor.Token != "" && Compare(c.Token, m.cursor.Token) < 0 {
		return false
	}
	m.cursor = c
	return true
}

// Reset discards held cursor and starts a new epoch which is returned.
func (m *Manager) Reset() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.epoch++
	m.cursor = Cursor{}
	return m.epoch
}

// Compare orders two tokens. Tokens are decimal digit strings of arbitrary
// width, so a shorter token is older. Tokens are never converted to numbers.
func Compare(a, b string) int {
	a = strings.TrimLeft(a, "0")
	b = strings.TrimLeft(b, "0")
	if len(a) != len(b) {
		if len(a) < len(b) {
			return -1
		}
		return 1
	}
	return strings.Compare(a, b)
}
