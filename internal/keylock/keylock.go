// Package keylock provides a FIFO lock keyed by string.
//
// Holders of different keys never wait on each other. Holders of the same key
// are granted the lock strictly in the order their tickets were reserved, so a
// caller can fix the order of work at arrival time (Reserve) and block for its
// turn later (Wait), possibly on another goroutine.
//
// Usage:
//
//	t := locks.Reserve(identityID) // in arrival order
//	go func() {
//	    t.Wait()
//	    defer t.Release()
//	    // ... exclusive section for identityID ...
//	}()
package keylock

import "sync"

// Locker is a set of FIFO locks indexed by key. The zero value is ready to use.
type Locker struct {
	mu     sync.Mutex
	queues map[string][]*Ticket
}

// New returns an empty Locker.
func New() *Locker { return &Locker{} }

// Ticket is one reservation on a key. The ticket at the head of its key's
// queue holds the lock.
type Ticket struct {
	l        *Locker
	key      string
	granted  chan struct{}
	released bool
}

// Reserve enqueues a ticket for key without blocking. If no other ticket is
// queued for key the returned ticket already holds the lock.
func (l *Locker) Reserve(key string) *Ticket {
	t := &Ticket{l: l, key: key, granted: make(chan struct{})}

	l.mu.Lock()
	if l.queues == nil {
		l.queues = make(map[string][]*Ticket)
	}
	q := append(l.queues[key], t)
	l.queues[key] = q
	if len(q) == 1 {
		close(t.granted)
	}
	l.mu.Unlock()
	return t
}

// Lock reserves a ticket for key and waits for it.
func (l *Locker) Lock(key string) *Ticket {
	t := l.Reserve(key)
	t.Wait()
	return t
}

// Len returns the number of keys with at least one queued ticket.
func (l *Locker) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.queues)
}

// Key returns the key the ticket was reserved for.
func (t *Ticket) Key() string { return t.key }

// Wait blocks until the ticket holds the lock.
func (t *Ticket) Wait() { <-t.granted }

// Granted reports, without blocking, whether the ticket holds the lock.
func (t *Ticket) Granted() bool {
	select {
	case <-t.granted:
		return true
	default:
		return false
	}
}

// Release gives up the ticket. If it held the lock the next ticket for the
// same key is granted. Releasing a ticket that is still waiting withdraws it
// from the queue. Release is idempotent.
func (t *Ticket) Release() {
	l := t.l
	l.mu.Lock()
	defer l.mu.Unlock()
	if t.released {
		return
	}
	t.released = true

	q := l.queues[t.key]
	idx := -1
	for i, other := range q {
		if other == t {
			idx = i
			break
		}
	}
	if idx < 0 {
		return
	}
	q = append(q[:idx], q[idx+1:]...)
	if len(q) == 0 {
		delete(l.queues, t.key)
		return
	}
	l.queues[t.key] = q
	if idx == 0 {
		close(q[0].granted)
	}
}
