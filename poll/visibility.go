package poll

import "sync"

// Visibility reports whether the dashboard is in front of the user.
type Visibility interface {
	Visible() bool
	// Watch calls fn with the new value on every change until cancel is called.
	Watch(fn func(visible bool)) (cancel func())
}

var _ Visibility = (*Page)(nil)

type pageWatcher struct {
	fn func(bool)
}

// Page is an in-process Visibility driven by SetVisible.
type Page struct {
	lock     sync.Mutex
	visible  bool
	watchers []*pageWatcher
}

func NewPage(visible bool) *Page {
	return &Page{visible: visible}
}

func (p *Page) Visible() bool {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.visible
}

// SetVisible records the new state and notifies watchers if it changed.
func (p *Page) SetVisible(visible bool) {
	p.lock.Lock()
	if p.visible == visible {
		p.lock.Unlock()
		return
	}
	p.visible = visible
	watchers := append([]*pageWatcher(nil), p.watchers...)
	p.lock.Unlock()

	for _, w := range watchers {
		w.fn(visible)
	}
}

func (p *Page) Watch(fn func(visible bool)) (cancel func()) {
	w := &pageWatcher{fn: fn}
	p.lock.Lock()
	p.watchers = append(p.watchers, w)
	p.lock.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			p.lock.Lock()
			defer p.lock.Unlock()
			for i, existing := range p.watchers {
				if existing == w {
					p.watchers = append(p.watchers[:i:i], p.watchers[i+1:]...)
					return
				}
			}
		})
	}
}

// Watchers returns the number of active watches.
func (p *Page) Watchers() int {
	p.lock.Lock()
	defer p.lock.Unlock()
	return len(p.watchers)
}
