package shapes

import (
	"sync"

	"github.com/woozymasta/geoshapes/internal/geo"
)

// Selection is the transient active shape and the position its info popup
// is anchored at. It is never persisted.
type Selection struct {
	ID     int64      `json:"id"`
	Anchor geo.LatLng `json:"anchor"`
}

// selector holds at most one selection.
type selector struct {
	mu     sync.Mutex
	active *Selection
}

func (s *selector) set(sel Selection) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = &sel
}

// ClearSelection drops the active shape, if any.
func (s *selector) ClearSelection() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = nil
}

// Selection returns the active shape.
func (s *selector) Selection() (Selection, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == nil {
		return Selection{}, false
	}
	return *s.active, true
}
