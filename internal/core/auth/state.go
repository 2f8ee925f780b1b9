package auth

import "sync"

// State tracks whether the identity provider has produced a usable identity.
// The resilient storage layer polls Ready before touching the remote store
// and invalidates cached collection handles whenever the state flips.
type State struct {
	mu    sync.Mutex
	ready bool
	subs  []func(ready bool)
}

func NewState() *State {
	return &State{}
}

// Ready reports whether an authenticated identity is currently available.
func (s *State) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ready
}

// SetReady updates the readiness flag and notifies subscribers on change.
func (s *State) SetReady(ready bool) {
	s.mu.Lock()
	if s.ready == ready {
		s.mu.Unlock()
		return
	}
	s.ready = ready
	subs := make([]func(bool), len(s.subs))
	copy(subs, s.subs)
	s.mu.Unlock()

	for _, sub := range subs {
		sub(ready)
	}
}

// OnChange registers a callback invoked on every readiness transition.
func (s *State) OnChange(cb func(ready bool)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs = append(s.subs, cb)
}
