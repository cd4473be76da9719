package service

// NotifiedSet tracks the threat-record identifiers already forwarded to the
// webhook during this session. It grows monotonically and is reset only by
// process restart. The set is owned by exactly one Pipeline and mutated only
// under the pipeline's lock, so it carries no locking of its own.
type NotifiedSet struct {
	ids map[string]struct{}
}

func NewNotifiedSet() *NotifiedSet {
	return &NotifiedSet{ids: make(map[string]struct{})}
}

// MarkIfNew records id and reports whether it was previously unseen. An id
// is marked before any delivery attempt is made, which is what pins the
// at-most-once contract: a failed send never comes back for a second try.
func (s *NotifiedSet) MarkIfNew(id string) bool {
	if _, seen := s.ids[id]; seen {
		return false
	}
	s.ids[id] = struct{}{}
	return true
}

func (s *NotifiedSet) Len() int {
	return len(s.ids)
}
