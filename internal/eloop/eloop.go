// Package eloop provides the timer/event-loop abstraction the protocol
// state machine is built against: add_timeout and delete_timeouts,
// rendered as a goroutine fed by channels instead of a callback-keyed C
// event loop (spec.md §9 DESIGN NOTES). It has no fd-readable
// registration; socket readers run in their own goroutines and hand work
// to the loop through Post.
package eloop

import (
	"sync"
	"time"
)

// Tag identifies the purpose of a scheduled timer, replacing the source's
// function-pointer timer key.
type Tag int

const (
	TagDiscover Tag = iota
	TagRequest
	TagRenew
	TagRebind
	TagExpire
	TagFallback
	TagIPv4LL
	TagArp
	TagNakRestart
	TagReleaseDelay
)

func (t Tag) String() string {
	switch t {
	case TagDiscover:
		return "discover"
	case TagRequest:
		return "request"
	case TagRenew:
		return "renew"
	case TagRebind:
		return "rebind"
	case TagExpire:
		return "expire"
	case TagFallback:
		return "fallback"
	case TagIPv4LL:
		return "ipv4ll"
	case TagArp:
		return "arp"
	case TagNakRestart:
		return "nak_restart"
	case TagReleaseDelay:
		return "release_delay"
	default:
		return "unknown"
	}
}

// key is (interface, tag): the event loop keys timers on this pair, per
// spec.md §9's "tagged enum values" design note.
type key struct {
	iface string
	tag   Tag
}

// Loop is a single-threaded cooperative event loop: one goroutine drains
// a work channel that timers and readable-fd notifications post into, so
// callbacks never race each other (spec.md §5).
type Loop struct {
	mu      sync.Mutex
	timers  map[key]*time.Timer
	work    chan func()
	closeCh chan struct{}
	once    sync.Once
}

// New starts a Loop's dispatch goroutine. Call Close to stop it.
func New() *Loop {
	l := &Loop{
		timers:  make(map[key]*time.Timer),
		work:    make(chan func(), 64),
		closeCh: make(chan struct{}),
	}
	go l.run()
	return l
}

func (l *Loop) run() {
	for {
		select {
		case fn := <-l.work:
			fn()
		case <-l.closeCh:
			return
		}
	}
}

// Post enqueues fn to run on the loop goroutine, preserving single-
// threaded access to interface state from any caller goroutine (e.g. a
// raw-socket reader or a UDP listener).
func (l *Loop) Post(fn func()) {
	select {
	case l.work <- fn:
	case <-l.closeCh:
	}
}

// AddTimeout schedules cb to run on the loop goroutine after d, replacing
// any existing timer for the same (iface, tag) key first — scheduling is
// idempotent (spec.md §5).
func (l *Loop) AddTimeout(iface string, tag Tag, d time.Duration, cb func()) {
	k := key{iface, tag}

	l.mu.Lock()
	if existing, ok := l.timers[k]; ok {
		existing.Stop()
	}
	var t *time.Timer
	t = time.AfterFunc(d, func() {
		l.Post(func() {
			// Run cb only if t is still the timer scheduled for k, so a
			// delete or replacement made after t fired still cancels it.
			l.mu.Lock()
			live := l.timers[k] == t
			if live {
				delete(l.timers, k)
			}
			l.mu.Unlock()
			if live {
				cb()
			}
		})
	})
	l.timers[k] = t
	l.mu.Unlock()
}

// DeleteTimeouts cancels the timer for (iface, tag), if one is scheduled.
// DeleteAllTimeouts cancels every timer owned by iface.
func (l *Loop) DeleteTimeouts(iface string, tag Tag) {
	k := key{iface, tag}
	l.mu.Lock()
	if t, ok := l.timers[k]; ok {
		t.Stop()
		delete(l.timers, k)
	}
	l.mu.Unlock()
}

// DeleteAllTimeouts cancels every timer belonging to iface, used by
// drop(reason) and close to guarantee no stale callback fires afterward.
func (l *Loop) DeleteAllTimeouts(iface string) {
	l.mu.Lock()
	for k, t := range l.timers {
		if k.iface == iface {
			t.Stop()
			delete(l.timers, k)
		}
	}
	l.mu.Unlock()
}

// Close stops the dispatch goroutine and cancels every outstanding timer.
func (l *Loop) Close() {
	l.once.Do(func() {
		l.mu.Lock()
		for k, t := range l.timers {
			t.Stop()
			delete(l.timers, k)
		}
		l.mu.Unlock()
		close(l.closeCh)
	})
}
