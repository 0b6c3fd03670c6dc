package domain

// RoleSet is a set of role ids with insertion-order iteration, so serialized
// role lists are deterministic.
type RoleSet struct {
	ids   []string
	index map[string]struct{}
}

func NewRoleSet() *RoleSet {
	return &RoleSet{index: make(map[string]struct{})}
}

func (s *RoleSet) Add(id string) {
	if _, ok := s.index[id]; ok {
		return
	}
	s.index[id] = struct{}{}
	s.ids = append(s.ids, id)
}

func (s *RoleSet) Remove(id string) {
	if _, ok := s.index[id]; !ok {
		return
	}
	delete(s.index, id)
	for i, v := range s.ids {
		if v == id {
			s.ids = append(s.ids[:i], s.ids[i+1:]...)
			break
		}
	}
}

func (s *RoleSet) Has(id string) bool {
	_, ok := s.index[id]
	return ok
}

// Values returns the ids in insertion order. The slice is a copy.
func (s *RoleSet) Values() []string {
	out := make([]string, len(s.ids))
	copy(out, s.ids)
	return out
}

func (s *RoleSet) Len() int {
	return len(s.ids)
}
