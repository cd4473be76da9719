package service

import (
	"sync"

	"github.com/ampdefend/ampdefend/internal/core/domain"
)

// alertFlags is the user-applied state of one alert, kept apart from the
// derived view so a recomputation can never clobber it.
type alertFlags struct {
	read      bool
	dismissed bool
}

// AlertStore holds the current alert list and the per-alert read/dismissed
// flags. The list is replaced wholesale on every snapshot; the flags are
// merged back in by identifier, so recomputation never resets a user action.
// Flags for identifiers that left the list are dropped, matching the
// merge-against-previous-list semantics the dashboard had.
type AlertStore struct {
	mu    sync.Mutex
	flags map[string]alertFlags
	view  []domain.Alert
}

func NewAlertStore() *AlertStore {
	return &AlertStore{flags: make(map[string]alertFlags)}
}

// Replace installs a freshly computed alert list, carrying forward the
// read/dismissed flags of any alert that survives by identifier. All other
// fields come from the fresh computation: data freshness wins everywhere
// except user-applied status.
func (s *AlertStore) Replace(computed []domain.Alert) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := make(map[string]alertFlags, len(computed))
	for i := range computed {
		if f, ok := s.flags[computed[i].ID]; ok {
			computed[i].Read = f.read
			computed[i].Dismissed = f.dismissed
			kept[computed[i].ID] = f
		}
	}
	s.flags = kept
	s.view = computed
}

// MarkAsRead sets read on exactly the matching alert; unknown ids are a
// silent no-op.
func (s *AlertStore) MarkAsRead(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.view {
		if s.view[i].ID == id {
			s.view[i].Read = true
			s.setFlags(id, s.view[i])
			return
		}
	}
}

// MarkAllAsRead sets read on every non-dismissed alert.
func (s *AlertStore) MarkAllAsRead() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.view {
		if s.view[i].Dismissed {
			continue
		}
		s.view[i].Read = true
		s.setFlags(s.view[i].ID, s.view[i])
	}
}

// Dismiss hides the alert from consumers. The entry stays in the internal
// list so a later recomputation still sees dismissed=true.
func (s *AlertStore) Dismiss(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.view {
		if s.view[i].ID == id {
			s.view[i].Dismissed = true
			s.setFlags(id, s.view[i])
			return
		}
	}
}

// ClearAll discards the entire list and all flag history. The next snapshot
// rebuilds from scratch with every flag reset, unlike Dismiss which keeps
// its mark across recomputations.
func (s *AlertStore) ClearAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flags = make(map[string]alertFlags)
	s.view = nil
}

// Visible returns the alerts consumers see: everything not dismissed.
func (s *AlertStore) Visible() []domain.Alert {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Alert, 0, len(s.view))
	for _, a := range s.view {
		if !a.Dismissed {
			out = append(out, a)
		}
	}
	return out
}

// UnreadCount counts alerts that are neither read nor dismissed.
func (s *AlertStore) UnreadCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, a := range s.view {
		if !a.Read && !a.Dismissed {
			n++
		}
	}
	return n
}

// caller must hold s.mu.
func (s *AlertStore) setFlags(id string, a domain.Alert) {
	s.flags[id] = alertFlags{read: a.Read, dismissed: a.Dismissed}
}
