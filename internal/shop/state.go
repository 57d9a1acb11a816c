package shop

import (
	"sync"

	"github.com/shopspring/decimal"
)

// Await says what input the dialog currently expects from a user.
type Await int

const (
	AwaitNone Await = iota
	AwaitHandle
	AwaitAmount
)

// Purchase is the pending order pinned once an amount is accepted and
// consumed when the user reports payment.
type Purchase struct {
	Amount    int64
	Price     decimal.Decimal
	Memo      string
	Recipient string // gift recipient handle without @, empty for self
}

// Session is one user's transient dialog state. Held only in memory:
// in-flight dialogs are lost on restart, which is an accepted risk —
// stale button presses are answered with a retry prompt instead.
type Session struct {
	Await    Await
	Friend   string // resolved recipient handle for a gift in progress
	Purchase *Purchase
}

// StateManager keeps per-user sessions.
type StateManager struct {
	mu       sync.RWMutex
	sessions map[int64]*Session
}

// NewStateManager creates an empty state manager.
func NewStateManager() *StateManager {
	return &StateManager{
		sessions: make(map[int64]*Session),
	}
}

// Get returns a copy of the user's session, zero-valued if none exists.
func (sm *StateManager) Get(userID int64) Session {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	if s, ok := sm.sessions[userID]; ok {
		return *s
	}
	return Session{}
}

// Update applies fn to the user's session, creating it first if needed.
func (sm *StateManager) Update(userID int64, fn func(*Session)) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	s, ok := sm.sessions[userID]
	if !ok {
		s = &Session{}
		sm.sessions[userID] = s
	}
	fn(s)
}

// TakePurchase removes and returns the pending purchase, or nil. The
// take is atomic so a double press on the paid button yields a single
// settlement request.
func (sm *StateManager) TakePurchase(userID int64) *Purchase {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	s, ok := sm.sessions[userID]
	if !ok || s.Purchase == nil {
		return nil
	}
	p := s.Purchase
	s.Purchase = nil
	return p
}

// Clear drops the user's session entirely.
func (sm *StateManager) Clear(userID int64) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	delete(sm.sessions, userID)
}
