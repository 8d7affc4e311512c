package state

import (
	"sort"
	"sync"
	"time"
)

type NoticeLevel string

const (
	NoticeInfo    NoticeLevel = "info"
	NoticeSuccess NoticeLevel = "success"
	NoticeError   NoticeLevel = "error"
)

// Notice is a transient message for the user.
type Notice struct {
	Level NoticeLevel
	Text  string
	At    time.Time
}

// Page holds the UI state of one screen: which mutations are in flight, the
// pending notices and the open dialog. In-flight keys are named per action
// and entity ("save:task:4"), so unrelated mutations do not block each other.
type Page struct {
	Now func() time.Time

	mu       sync.Mutex
	inflight map[string]struct{}
	notices  []Notice
	dialog   string
}

func NewPage() *Page {
	return &Page{Now: time.Now, inflight: map[string]struct{}{}}
}

// Begin marks key in flight. It returns false if key already is.
func (p *Page) Begin(key string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.inflight == nil {
		p.inflight = map[string]struct{}{}
	}
	if _, busy := p.inflight[key]; busy {
		return false
	}
	p.inflight[key] = struct{}{}
	return true
}

func (p *Page) End(key string) {
	p.mu.Lock()
	delete(p.inflight, key)
	p.mu.Unlock()
}

func (p *Page) Busy(key string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, busy := p.inflight[key]
	return busy
}

// InFlight lists the busy keys, sorted.
func (p *Page) InFlight() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	keys := make([]string, 0, len(p.inflight))
	for k := range p.inflight {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (p *Page) Notify(level NoticeLevel, text string) {
	now := time.Now
	if p.Now != nil {
		now = p.Now
	}
	p.mu.Lock()
	p.notices = append(p.notices, Notice{Level: level, Text: text, At: now()})
	p.mu.Unlock()
}

// Notices returns and clears the pending notices.
func (p *Page) Notices() []Notice {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := p.notices
	p.notices = nil
	return out
}

func (p *Page) OpenDialog(name string) {
	p.mu.Lock()
	p.dialog = name
	p.mu.Unlock()
}

func (p *Page) CloseDialog() {
	p.mu.Lock()
	p.dialog = ""
	p.mu.Unlock()
}

// Dialog is the open dialog's name, or "".
func (p *Page) Dialog() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dialog
}
