package session

import "sync"

// OutputKey identifies one entry in the output registry: a data
// specifier plus an optional destination node-id. Dest is -1 for a
// broadcast (no destination) session.
type OutputKey struct {
	Spec DataSpecifier
	Dest int16
}

// BroadcastKey returns the registry key for a broadcast output session.
func BroadcastKey(spec DataSpecifier) OutputKey {
	return OutputKey{Spec: spec, Dest: -1}
}

// UnicastKey returns the registry key for a unicast output session bound
// to dest.
func UnicastKey(spec DataSpecifier, dest uint8) OutputKey {
	return OutputKey{Spec: spec, Dest: int16(dest)}
}

// OutputSession is the minimal shape the registry needs from a
// transport-layer output session: its own address, for introspection,
// and nothing else — lifecycle is driven by the finalizer the registry
// hands to the factory, not by a method on this interface.
type OutputSession interface {
	DataSpecifier() DataSpecifier
}

// OutputRegistry is the output-session half of the session router: a map
// from (data-specifier, destination) to the one OutputSession serving
// it, created lazily and removed by a finalizer closure on close.
type OutputRegistry struct {
	mu      sync.Mutex
	entries map[OutputKey]OutputSession
}

// NewOutputRegistry constructs an empty registry.
func NewOutputRegistry() *OutputRegistry {
	return &OutputRegistry{entries: make(map[OutputKey]OutputSession)}
}

// GetOrCreate returns the existing session for key, or calls factory to
// build one and installs it. factory receives a finalize closure that,
// when called, removes the entry — idempotently, so a session can call
// it from its own Close without tracking whether it already ran.
func (r *OutputRegistry) GetOrCreate(key OutputKey, factory func(finalize func()) OutputSession) OutputSession {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.entries[key]; ok {
		return s
	}
	var once sync.Once
	finalize := func() {
		once.Do(func() {
			r.mu.Lock()
			delete(r.entries, key)
			r.mu.Unlock()
		})
	}
	s := factory(finalize)
	r.entries[key] = s
	return s
}

// Lookup returns the session registered under key, if any.
func (r *OutputRegistry) Lookup(key OutputKey) (OutputSession, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.entries[key]
	return s, ok
}

// Len reports the number of live output sessions, for diagnostics.
func (r *OutputRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
