package fixture

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// ScopeID identifies one concrete activation of a scope: one session, one
// module load, one class activation, one test call.
type ScopeID string

// NewScopeID mints a fresh scope instance identifier.
func NewScopeID() ScopeID {
	return ScopeID(uuid.NewString())
}

// ScopeSet carries the active scope instance IDs in effect for one test
// item. Function is unique per item; the rest are shared across items in
// the same class/module/session.
type ScopeSet struct {
	Session  ScopeID
	Module   ScopeID
	Class    ScopeID
	Function ScopeID
}

// For returns the scope instance ID owning values of the given scope.
func (s ScopeSet) For(scope Scope) ScopeID {
	switch scope {
	case ScopeSession:
		return s.Session
	case ScopeModule:
		return s.Module
	case ScopeClass:
		return s.Class
	default:
		return s.Function
	}
}

// Key is the cache key of a fixture instance. The invariant is at most one
// live instance per key at any time; all items whose ScopeSet maps to the
// same key reuse the instance without re-running setup.
type Key struct {
	Name     string
	Scope    Scope
	Instance ScopeID
}

func (k Key) String() string {
	return fmt.Sprintf("%s@%s:%s", k.Name, k.Scope, k.Instance)
}

// KeyFor computes the cache key of a def under the given active scopes.
func KeyFor(def *FixtureDef, scopes ScopeSet) Key {
	return Key{Name: def.Name, Scope: def.Scope, Instance: scopes.For(def.Scope)}
}

// Ledger is the control-plane view of fixture instances: which keys are
// live in a worker and how many not-yet-finished items still need each
// scope instance. Engines consult it to order teardowns after the last
// dependent item, even under parallel execution.
type Ledger struct {
	mu      sync.Mutex
	pending map[ScopeID]int
	live    map[Key]bool
	byScope map[ScopeID][]Key // setup order per scope instance
}

func NewLedger() *Ledger {
	return &Ledger{
		pending: make(map[ScopeID]int),
		live:    make(map[Key]bool),
		byScope: make(map[ScopeID][]Key),
	}
}

// Expect records that one more item will run under the scope instance.
func (l *Ledger) Expect(id ScopeID) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pending[id]++
}

// MarkLive records that a fixture instance was materialized in a worker.
// Re-marking an already live key is a no-op, matching the reuse contract.
func (l *Ledger) MarkLive(key Key) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.live[key] {
		l.live[key] = true
		l.byScope[key.Instance] = append(l.byScope[key.Instance], key)
	}
}

// Live reports whether an instance exists for the key.
func (l *Ledger) Live(key Key) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.live[key]
}

// Release records that an item depending on the scope instance finished.
// When the last dependent is gone it returns the live keys owned by the
// instance in reverse setup order, ready for teardown, and forgets them.
func (l *Ledger) Release(id ScopeID) []Key {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.pending[id]--
	if l.pending[id] > 0 {
		return nil
	}
	delete(l.pending, id)

	keys := l.byScope[id]
	delete(l.byScope, id)
	out := make([]Key, 0, len(keys))
	for i := len(keys) - 1; i >= 0; i-- {
		delete(l.live, keys[i])
		out = append(out, keys[i])
	}
	return out
}
