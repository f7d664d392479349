package persona

import "strings"

// Store 人设目录的只读视图，HTTP 与终端共用。
type Store interface {
	List() []Persona
	FindByID(id string) (Persona, bool)
}

// MemoryStore keeps the catalog in display order plus an id index. The catalog is fixed
// for the lifetime of the process.
type MemoryStore struct {
	items []Persona
	byID  map[string]int
}

// NewMemoryStore indexes items; ids are matched case-insensitively and the first entry
// wins on a duplicate.
func NewMemoryStore(items []Persona) *MemoryStore {
	s := &MemoryStore{
		items: append([]Persona(nil), items...),
		byID:  make(map[string]int, len(items)),
	}
	for i, p := range s.items {
		key := indexKey(p.ID)
		if _, dup := s.byID[key]; !dup {
			s.byID[key] = i
		}
	}
	return s
}

func indexKey(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}

// List returns a copy of the catalog in display order.
func (s *MemoryStore) List() []Persona {
	return append([]Persona(nil), s.items...)
}

// FindByID resolves "fitness", "Fitness" and " fitness " alike.
func (s *MemoryStore) FindByID(id string) (Persona, bool) {
	i, ok := s.byID[indexKey(id)]
	if !ok {
		return Persona{}, false
	}
	return s.items[i], true
}
