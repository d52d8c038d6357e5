// Package tracker keeps this process's notion of "already handled",
// decoupled from server-side seen flags. A backend may re-list a message
// whose server-side mark lagged; the tracker guarantees it is still
// classified at most once per process lifetime.
package tracker

import "sync"

// SeenSet is a monotone set of processed message ids. Mark is idempotent
// and ids are never evicted; mailbox ids are assumed non-reused.
type SeenSet struct {
	mu  sync.Mutex
	ids map[string]struct{}
}

func New() *SeenSet {
	return &SeenSet{ids: make(map[string]struct{})}
}

// IsNew reports whether id has not been marked yet.
func (s *SeenSet) IsNew(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.ids[id]
	return !ok
}

func (s *SeenSet) Mark(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ids[id] = struct{}{}
}

// Preload seeds the set, typically from a journal at startup.
func (s *SeenSet) Preload(ids []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		s.ids[id] = struct{}{}
	}
}

func (s *SeenSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ids)
}
