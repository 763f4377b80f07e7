// Package screen models the load state of a screen's remote data.
package screen

import "sync"

type State int

const (
	Idle State = iota
	Loading
	Error
	Loaded
)

func (s State) String() string {
	switch s {
	case Loading:
		return "loading"
	case Error:
		return "error"
	case Loaded:
		return "loaded"
	default:
		return "idle"
	}
}

// Ticket identifies one load attempt.
type Ticket uint64

// Snapshot is a consistent view of a Loadable. Err is only set in the
// Error state. Value keeps the last loaded value across reloads.
type Snapshot[T any] struct {
	State State
	Value T
	Err   error
}

// Loadable tracks one piece of remote data. The zero value is idle and
// ready to use.
//
// Overlapping loads are not cancelled: whichever response resolves last
// wins. Loading stays set until every outstanding ticket has settled.
type Loadable[T any] struct {
	mu      sync.Mutex
	next    Ticket
	pending map[Ticket]struct{}
	state   State
	value   T
	err     error
}

func (l *Loadable[T]) Begin() Ticket {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.pending == nil {
		l.pending = map[Ticket]struct{}{}
	}
	l.next++
	l.pending[l.next] = struct{}{}
	l.state = Loading
	l.err = nil
	return l.next
}

// Resolve stores value. Unknown or already settled tickets are ignored.
func (l *Loadable[T]) Resolve(t Ticket, value T) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.settle(t) {
		return
	}
	l.value = value
	l.err = nil
	if len(l.pending) == 0 {
		l.state = Loaded
	}
}

// Fail records err. Outstanding loads keep the state at Loading and the
// error is dropped, so an error is never shown next to a spinner.
func (l *Loadable[T]) Fail(t Ticket, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.settle(t) {
		return
	}
	if len(l.pending) > 0 {
		return
	}
	l.state = Error
	l.err = err
}

func (l *Loadable[T]) settle(t Ticket) bool {
	if _, ok := l.pending[t]; !ok {
		return false
	}
	delete(l.pending, t)
	return true
}

func (l *Loadable[T]) Snapshot() Snapshot[T] {
	l.mu.Lock()
	defer l.mu.Unlock()
	return Snapshot[T]{State: l.state, Value: l.value, Err: l.err}
}
