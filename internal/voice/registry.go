package voice

import (
	"fmt"
	"sort"
	"sync"
)

// Registry maps call ids to live sessions. It is the only state shared
// between sessions; every access goes through mu.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
	}
}

// Register adds a session under callID.
//
// A second session claiming a call id that is still live is rejected with
// ErrCallInUse and the existing entry is left in place. Overwriting would
// orphan the first session: its playback would be unreachable and its close
// would remove the newcomer's entry.
func (r *Registry) Register(callID string, s *Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.sessions[callID]; ok {
		if existing == s {
			return nil
		}
		return fmt.Errorf("%w: %s (session %s)", ErrCallInUse, callID, existing.ID)
	}
	r.sessions[callID] = s
	return nil
}

func (r *Registry) Lookup(callID string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[callID]
	return s, ok
}

// Remove deletes callID. Unknown ids are ignored.
func (r *Registry) Remove(callID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, callID)
}

// Sessions returns a snapshot of live sessions ordered by call id.
func (r *Registry) Sessions() []*Session {
	r.mu.RLock()
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].CallID() < out[j].CallID() })
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
