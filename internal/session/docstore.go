package session

import "sync"

// DocumentStore is the ordered filename -> content mapping a session holds
// for its room. It is the single source of truth for what should be on
// screen; the editor surface is a view over it, not the other way around.
type DocumentStore struct {
	mu    sync.RWMutex
	order []string
	files map[string]string
}

// NewDocumentStore returns an empty store.
func NewDocumentStore() *DocumentStore {
	return &DocumentStore{files: make(map[string]string)}
}

// Get returns the content for filename and whether it exists.
func (s *DocumentStore) Get(filename string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	content, ok := s.files[filename]
	return content, ok
}

// Set stores content for filename, preserving the position of an existing
// file and appending a new one.
func (s *DocumentStore) Set(filename, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.files[filename]; !exists {
		s.order = append(s.order, filename)
	}
	s.files[filename] = content
}

// Delete removes filename from the set. It reports whether the file was
// present.
func (s *DocumentStore) Delete(filename string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.files[filename]; !exists {
		return false
	}
	delete(s.files, filename)
	for i, name := range s.order {
		if name == filename {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return true
}

// List returns the filenames in insertion order.
func (s *DocumentStore) List() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// ReplaceAll swaps the whole set for files, used when the relay sends a
// full resync after join. Iteration order of the incoming map is not
// meaningful, so names are kept sorted by prior position first, then new
// names appended in map order.
func (s *DocumentStore) ReplaceAll(files map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	order := make([]string, 0, len(files))
	for _, name := range s.order {
		if _, ok := files[name]; ok {
			order = append(order, name)
		}
	}
	seen := make(map[string]bool, len(order))
	for _, name := range order {
		seen[name] = true
	}
	for name := range files {
		if !seen[name] {
			order = append(order, name)
		}
	}

	s.order = order
	s.files = make(map[string]string, len(files))
	for name, content := range files {
		s.files[name] = content
	}
}

// All returns a copy of the whole mapping, for snapshotting.
func (s *DocumentStore) All() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]string, len(s.files))
	for name, content := range s.files {
		out[name] = content
	}
	return out
}

// Len returns the number of files in the set.
func (s *DocumentStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.files)
}
