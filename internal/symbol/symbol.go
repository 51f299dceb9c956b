// Package symbol provides a process-wide intern table for model identifiers.
//
// A Symbol is a cheap, comparable handle onto an interned string: two
// Symbols compare equal iff the strings they were interned from are equal,
// and Symbol's hash agrees with the string's hash so a Symbol can stand in
// for its text in any hash-based container without re-hashing the text.
package symbol

import (
	"hash/fnv"
	"sync"
)

// Symbol is an interned identifier. The zero Symbol is not valid; obtain
// one through Intern.
type Symbol struct {
	name string
}

// String returns the interned text.
func (s Symbol) String() string {
	return s.name
}

// Hash returns a hash of the Symbol that agrees with the hash of its
// underlying string: two Symbols with equal Strings produce equal Hash
// values, and (bar collisions) unequal Symbols produce different ones.
func (s Symbol) Hash() uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(s.name))
	return h.Sum64()
}

// IsZero reports whether s is the zero Symbol (never returned by Intern).
func (s Symbol) IsZero() bool {
	return s.name == ""
}

var (
	mu   sync.Mutex
	pool = make(map[string]Symbol)
)

// Intern returns the Symbol for name, allocating one on first use. The
// intern pool is append-only and process-wide: once a name is interned it
// is never evicted, and repeated calls with the same name return the same
// Symbol value. Safe for concurrent use; lookups of already-interned names
// take the same lock as insertion, kept deliberately simple since the
// intern pool is not a hot path relative to graph construction.
func Intern(name string) Symbol {
	mu.Lock()
	defer mu.Unlock()
	if s, ok := pool[name]; ok {
		return s
	}
	s := Symbol{name: name}
	pool[name] = s
	return s
}

// Count returns the number of distinct Symbols interned so far. Exposed for
// diagnostics and tests; not part of the hot path.
func Count() int {
	mu.Lock()
	defer mu.Unlock()
	return len(pool)
}
