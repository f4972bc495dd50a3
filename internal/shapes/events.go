package shapes

import (
	"sync"

	"github.com/woozymasta/geoshapes/internal/geo"
)

// PathChange is emitted by the rendering side when a shape's path was edited.
type PathChange struct {
	ShapeID int64    `json:"id"`
	Path    geo.Path `json:"path"`
}

// EditFeed delivers path changes to subscribers. Emit calls subscribers
// synchronously in subscription order.
type EditFeed struct {
	mu   sync.RWMutex
	next int
	subs map[int]func(PathChange)
	ids  []int
}

// NewEditFeed returns an empty feed.
func NewEditFeed() *EditFeed {
	return &EditFeed{subs: make(map[int]func(PathChange))}
}

// Subscribe registers fn and returns a function removing it again.
func (f *EditFeed) Subscribe(fn func(PathChange)) (unsubscribe func()) {
	f.mu.Lock()
	defer f.mu.Unlock()

	id := f.next
	f.next++
	f.subs[id] = fn
	f.ids = append(f.ids, id)

	var once sync.Once
	return func() {
		once.Do(func() {
			f.mu.Lock()
			defer f.mu.Unlock()
			delete(f.subs, id)
			for i, v := range f.ids {
				if v == id {
					f.ids = append(f.ids[:i], f.ids[i+1:]...)
					break
				}
			}
		})
	}
}

// Emit delivers ev to every subscriber.
func (f *EditFeed) Emit(ev PathChange) {
	f.mu.RLock()
	fns := make([]func(PathChange), 0, len(f.ids))
	for _, id := range f.ids {
		fns = append(fns, f.subs[id])
	}
	f.mu.RUnlock()

	for _, fn := range fns {
		fn(ev)
	}
}

// attachment keeps exactly one feed subscription per controller.
type attachment struct {
	mu     sync.Mutex
	detach func()
}

func (a *attachment) attach(feed *EditFeed, fn func(PathChange)) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.detach != nil {
		a.detach()
	}
	a.detach = feed.Subscribe(fn)
}

func (a *attachment) Detach() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.detach != nil {
		a.detach()
		a.detach = nil
	}
}
