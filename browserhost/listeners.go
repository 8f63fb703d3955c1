package browserhost

import (
	"slices"
	"sync"

	"github.com/hazyhaar/regdetect/lifecycle"
)

// listeners holds the subscriptions of one host. Callbacks run outside the
// lock, in subscription order.
type listeners struct {
	mu       sync.Mutex
	next     int
	mutation map[int]func()
	load     map[int]func()
	nav      map[int]func(lifecycle.Navigation)
}

func newListeners() *listeners {
	return &listeners{
		mutation: make(map[int]func()),
		load:     make(map[int]func()),
		nav:      make(map[int]func(lifecycle.Navigation)),
	}
}

func subscribe[F any](l *listeners, m map[int]F, fn F) func() {
	l.mu.Lock()
	id := l.next
	l.next++
	m[id] = fn
	l.mu.Unlock()
	return func() {
		l.mu.Lock()
		delete(m, id)
		l.mu.Unlock()
	}
}

func snapshot[F any](l *listeners, m map[int]F) []F {
	l.mu.Lock()
	defer l.mu.Unlock()
	ids := make([]int, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	out := make([]F, len(ids))
	for i, id := range ids {
		out[i] = m[id]
	}
	return out
}

func (l *listeners) OnMutation(fn func()) func() { return subscribe(l, l.mutation, fn) }
func (l *listeners) OnLoad(fn func()) func()     { return subscribe(l, l.load, fn) }
func (l *listeners) OnNavigation(fn func(lifecycle.Navigation)) func() {
	return subscribe(l, l.nav, fn)
}

func (l *listeners) mutated() {
	for _, fn := range snapshot(l, l.mutation) {
		fn()
	}
}

func (l *listeners) loaded() {
	for _, fn := range snapshot(l, l.load) {
		fn()
	}
}

func (l *listeners) navigated(n lifecycle.Navigation) {
	for _, fn := range snapshot(l, l.nav) {
		fn(n)
	}
}
