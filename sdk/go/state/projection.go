package state

import "sync"

// Projection is a normalized cache of one entity kind. The list view and the
// selected detail are both read from the same map entry, so an update through
// Apply or Upsert is visible in both at once.
type Projection[K comparable, V any] struct {
	key func(V) K

	mu       sync.RWMutex
	order    []K
	items    map[K]V
	selected K
	hasSel   bool
}

func NewProjection[K comparable, V any](key func(V) K) *Projection[K, V] {
	return &Projection[K, V]{key: key, items: map[K]V{}}
}

// Load replaces the cache contents. The selection survives if its entity is
// still present.
func (p *Projection[K, V]) Load(items []V) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.order = p.order[:0]
	p.items = make(map[K]V, len(items))
	for _, v := range items {
		id := p.key(v)
		if _, dup := p.items[id]; !dup {
			p.order = append(p.order, id)
		}
		p.items[id] = v
	}
	if p.hasSel {
		if _, ok := p.items[p.selected]; !ok {
			p.hasSel = false
		}
	}
}

// List returns the cached entities in load/insert order.
func (p *Projection[K, V]) List() []V {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]V, 0, len(p.order))
	for _, id := range p.order {
		out = append(out, p.items[id])
	}
	return out
}

func (p *Projection[K, V]) Get(id K) (V, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	v, ok := p.items[id]
	return v, ok
}

func (p *Projection[K, V]) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.order)
}

// Select marks id as the detail entity. Unknown ids are ignored.
func (p *Projection[K, V]) Select(id K) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.items[id]; !ok {
		return false
	}
	p.selected, p.hasSel = id, true
	return true
}

func (p *Projection[K, V]) ClearSelection() {
	p.mu.Lock()
	p.hasSel = false
	p.mu.Unlock()
}

// Selected returns the detail entity, if one is selected.
func (p *Projection[K, V]) Selected() (V, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if !p.hasSel {
		var zero V
		return zero, false
	}
	return p.items[p.selected], true
}

// SelectedID returns the selected key.
func (p *Projection[K, V]) SelectedID() (K, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.selected, p.hasSel
}

// Upsert stores v, appending it to the list when new.
func (p *Projection[K, V]) Upsert(v V) {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := p.key(v)
	if _, ok := p.items[id]; !ok {
		p.order = append(p.order, id)
	}
	p.items[id] = v
}

// Apply replaces the entity keyed id with fn's result. It reports false, and
// changes nothing, when id is not cached.
func (p *Projection[K, V]) Apply(id K, fn func(V) V) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	v, ok := p.items[id]
	if !ok {
		return false
	}
	p.items[id] = fn(v)
	return true
}

// ApplyAll runs fn over every cached entity.
func (p *Projection[K, V]) ApplyAll(fn func(V) V) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for id, v := range p.items {
		p.items[id] = fn(v)
	}
}

// Remove drops id and clears the selection if it pointed at id.
func (p *Projection[K, V]) Remove(id K) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.items[id]; !ok {
		return
	}
	delete(p.items, id)
	for i, k := range p.order {
		if k == id {
			p.order = append(p.order[:i:i], p.order[i+1:]...)
			break
		}
	}
	if p.hasSel && p.selected == id {
		p.hasSel = false
	}
}
