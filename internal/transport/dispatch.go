// Package transport holds what the long-running chat transports share: a
// bounded dispatcher that keeps each identity's events in arrival order while
// different identities are processed concurrently.
package transport

import (
	"context"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/tbourn/go-feedback-bot/internal/services"
)

// Job is one inbound event whose slot in its identity's queue is reserved.
type Job interface {
	Run(ctx context.Context) (services.Reply, error)
}

// Scheduler reserves identity slots without blocking.
type Scheduler interface {
	Schedule(identifier, text string) Job
}

// SchedulerFunc adapts a function to Scheduler.
type SchedulerFunc func(identifier, text string) Job

// Schedule calls f.
func (f SchedulerFunc) Schedule(identifier, text string) Job { return f(identifier, text) }

// ForConversation exposes a ConversationService as a Scheduler.
func ForConversation(svc *services.ConversationService) Scheduler {
	return SchedulerFunc(func(identifier, text string) Job {
		return svc.Schedule(identifier, text)
	})
}

// Deliver receives the outcome of one event.
type Deliver func(reply services.Reply, err error)

// Dispatcher runs jobs on at most workers goroutines.
//
// Submit must be called from a single receive loop: the slot is reserved
// before Submit returns, so same-identity events run and are delivered in the
// order they were submitted regardless of which worker picks them up.
type Dispatcher struct {
	sched Scheduler
	ctx   context.Context
	g     errgroup.Group

	mu   sync.Mutex
	last map[string]chan struct{} // delivery of the newest job per identity
}

// NewDispatcher returns a dispatcher bound to ctx. Jobs already submitted run
// to completion even after ctx is cancelled.
func NewDispatcher(ctx context.Context, sched Scheduler, workers int) *Dispatcher {
	if workers < 1 {
		workers = 1
	}
	d := &Dispatcher{sched: sched, ctx: ctx, last: make(map[string]chan struct{})}
	d.g.SetLimit(workers)
	return d
}

// Submit reserves the identity slot and hands the job to a worker, blocking
// while all workers are busy.
func (d *Dispatcher) Submit(identifier, text string, deliver Deliver) {
	job := d.sched.Schedule(identifier, text)

	key := strings.TrimSpace(identifier)
	done := make(chan struct{})
	d.mu.Lock()
	prev := d.last[key]
	d.last[key] = done
	d.mu.Unlock()

	d.g.Go(func() error {
		reply, err := job.Run(d.ctx)
		if prev != nil {
			<-prev
		}
		deliver(reply, err)
		close(done)

		d.mu.Lock()
		if d.last[key] == done {
			delete(d.last, key)
		}
		d.mu.Unlock()
		return nil
	})
}

// Wait blocks until every submitted job has been delivered.
func (d *Dispatcher) Wait() {
	_ = d.g.Wait()
}
