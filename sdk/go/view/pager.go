package view

import "sync"

// PageCount is ceil(n/size); an empty collection has no pages.
func PageCount(n, size int) int {
	if size <= 0 {
		size = ListPageSize
	}
	if n <= 0 {
		return 0
	}
	return (n + size - 1) / size
}

// Paginate returns the 1-based page of items. Out of range pages are empty.
func Paginate[T any](items []T, page, size int) []T {
	if size <= 0 {
		size = ListPageSize
	}
	if page < 1 {
		return []T{}
	}
	start := (page - 1) * size
	if start >= len(items) {
		return []T{}
	}
	end := min(start+size, len(items))
	out := make([]T, end-start)
	copy(out, items[start:end])
	return out
}

// Pager keeps a filtered, paginated view of one collection in step with its
// items and query.
type Pager[T any] struct {
	keys func(T) []string
	size int

	mu       sync.Mutex
	items    []T
	query    string
	filtered []T
	page     int
}

func NewPager[T any](size int, keys func(T) []string) *Pager[T] {
	if size <= 0 {
		size = ListPageSize
	}
	return &Pager[T]{keys: keys, size: size, page: 1}
}

// SetItems replaces the collection. The current page is kept when it still
// exists and clamped to the last page otherwise. The page never drops
// below 1, so an empty collection sits on an empty page 1.
func (p *Pager[T]) SetItems(items []T) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.items = items
	p.refilter()
	p.page = p.clamp(p.page)
}

// SetQuery changes the filter text and returns to page 1.
func (p *Pager[T]) SetQuery(q string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.query = q
	p.refilter()
	p.page = 1
}

// SetPage moves to page n, clamped to the valid range.
func (p *Pager[T]) SetPage(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.page = p.clamp(n)
}

func (p *Pager[T]) clamp(n int) int {
	return max(1, min(n, PageCount(len(p.filtered), p.size)))
}

func (p *Pager[T]) refilter() {
	p.filtered = Filter(p.items, p.query, p.keys)
}

func (p *Pager[T]) Page() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.page
}

func (p *Pager[T]) Pages() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return PageCount(len(p.filtered), p.size)
}

// Total is the number of items matching the query.
func (p *Pager[T]) Total() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.filtered)
}

// Items returns the current page.
func (p *Pager[T]) Items() []T {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Paginate(p.filtered, p.page, p.size)
}
