package screen

import (
	"errors"
	"sync"
	"testing"
)

func TestLoadable_ZeroValueIsIdle(t *testing.T) {
	var l Loadable[[]string]
	snap := l.Snapshot()
	if snap.State != Idle || snap.Err != nil || snap.Value != nil {
		t.Fatalf("unexpected zero snapshot %+v", snap)
	}
}

func TestLoadable_ResolveAndFail(t *testing.T) {
	var l Loadable[int]

	ticket := l.Begin()
	if got := l.Snapshot().State; got != Loading {
		t.Fatalf("expected loading, got %s", got)
	}
	l.Resolve(ticket, 7)
	snap := l.Snapshot()
	if snap.State != Loaded || snap.Value != 7 {
		t.Fatalf("unexpected snapshot %+v", snap)
	}

	boom := errors.New("boom")
	ticket = l.Begin()
	l.Fail(ticket, boom)
	snap = l.Snapshot()
	if snap.State != Error || !errors.Is(snap.Err, boom) {
		t.Fatalf("expected error state, got %+v", snap)
	}
	if snap.Value != 7 {
		t.Fatalf("expected last value kept, got %d", snap.Value)
	}

	l.Resolve(l.Begin(), 8)
	if snap := l.Snapshot(); snap.State != Loaded || snap.Err != nil {
		t.Fatalf("expected error cleared on reload, got %+v", snap)
	}
}

func TestLoadable_LastResponseWins(t *testing.T) {
	var l Loadable[string]

	first := l.Begin()
	second := l.Begin()

	l.Resolve(second, "second")
	if got := l.Snapshot().State; got != Loading {
		t.Fatalf("expected loading while a ticket is outstanding, got %s", got)
	}
	l.Resolve(first, "first")

	snap := l.Snapshot()
	if snap.State != Loaded || snap.Value != "first" {
		t.Fatalf("expected the later response to win, got %+v", snap)
	}
}

func TestLoadable_ErrorNeverWhileLoading(t *testing.T) {
	var l Loadable[string]

	first := l.Begin()
	second := l.Begin()

	l.Fail(first, errors.New("timeout"))
	snap := l.Snapshot()
	if snap.State != Loading || snap.Err != nil {
		t.Fatalf("expected loading without error, got %+v", snap)
	}

	l.Resolve(second, "ok")
	if snap := l.Snapshot(); snap.State != Loaded || snap.Value != "ok" {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
}

func TestLoadable_IgnoresSettledTickets(t *testing.T) {
	var l Loadable[int]

	ticket := l.Begin()
	l.Resolve(ticket, 1)
	l.Fail(ticket, errors.New("late"))
	l.Resolve(Ticket(99), 5)

	snap := l.Snapshot()
	if snap.State != Loaded || snap.Value != 1 {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
}

func TestLoadable_ConcurrentUse(t *testing.T) {
	var l Loadable[int]
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			ticket := l.Begin()
			l.Resolve(ticket, n)
		}(i)
	}
	wg.Wait()

	if got := l.Snapshot().State; got != Loaded {
		t.Fatalf("expected loaded after all loads settle, got %s", got)
	}
}
