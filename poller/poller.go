// Package poller runs repeating fetches whose results are applied strictly in
// issue order.
package poller

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

var (
	// ErrStopped is returned when a poller is used after Stop.
	ErrStopped = errors.New("poller: stopped")
	// ErrAlreadyStarted is returned by a second Start.
	ErrAlreadyStarted = errors.New("poller: already started")
)

// Poll outcome labels reported to an Observer.
const (
	OutcomeOK       = "ok"
	OutcomeError    = "error"
	OutcomeCanceled = "canceled"
)

// Observer receives poll accounting. *client.Metrics satisfies it.
type Observer interface {
	ObservePoll(source, outcome string)
	ObserveStale(source string)
}

// Result is the outcome of one fetch.
type Result[T any] struct {
	Seq   uint64
	Value T
	Err   error
	At    time.Time
	// Stale marks a result that arrived after a newer one had been applied.
	Stale bool
}

// Ok reports whether the fetch succeeded.
func (r Result[T]) Ok() bool {
	return r.Err == nil
}

// Options configures a Poller.
type Options[T any] struct {
	Name     string
	Interval time.Duration
	Fetch    func(ctx context.Context) (T, error)
	// Apply is called under the poller lock for every result that is newer
	// than the last applied one. It must not call back into the poller.
	Apply    func(Result[T])
	Observer Observer
}

// Poller fetches one source on a fixed interval. Every fetch gets a sequence
// number when it is issued; a result is applied only if no later-issued fetch
// has been applied already.
type Poller[T any] struct {
	opts     Options[T]
	seq      atomic.Uint64
	inflight sync.WaitGroup

	mu      sync.Mutex // guards everything below
	applied uint64
	last    Result[T]
	good    Result[T]
	hasGood bool
	started bool
	stopped bool
	cancel  context.CancelFunc
}

// New builds a poller. Interval must be positive and Fetch non-nil.
func New[T any](opts Options[T]) (*Poller[T], error) {
	if opts.Fetch == nil {
		return nil, errors.New("poller: fetch func is required")
	}
	if opts.Interval <= 0 {
		return nil, errors.New("poller: interval must be positive")
	}
	if opts.Name == "" {
		opts.Name = "poll"
	}
	return &Poller[T]{opts: opts}, nil
}

// Start fetches immediately and then once per interval until Stop or until
// ctx is done. Ticks never wait for earlier ticks to finish.
func (p *Poller[T]) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return ErrStopped
	}
	if p.started {
		p.mu.Unlock()
		return ErrAlreadyStarted
	}
	p.started = true
	pollCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.inflight.Add(1)
	p.mu.Unlock()

	go p.loop(pollCtx)
	return nil
}

// Refresh performs one out-of-band fetch through the same sequencing and
// returns its result. A result superseded in flight comes back with Stale set.
func (p *Poller[T]) Refresh(ctx context.Context) Result[T] {
	if p.isStopped() {
		return Result[T]{Err: ErrStopped, At: time.Now()}
	}
	seq := p.seq.Add(1)
	value, err := p.opts.Fetch(ctx)
	return p.deliver(Result[T]{Seq: seq, Value: value, Err: err, At: time.Now()})
}

// Stop cancels the timer and any in-flight tick, then waits for them to
// return. Nothing is applied after Stop begins.
func (p *Poller[T]) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	cancel := p.cancel
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	p.inflight.Wait()
}

// Last returns the most recently applied result, which may be an error.
func (p *Poller[T]) Last() (Result[T], bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.last, p.applied > 0
}

// Value returns the most recently applied successful result.
func (p *Poller[T]) Value() (Result[T], bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.good, p.hasGood
}

func (p *Poller[T]) loop(ctx context.Context) {
	defer p.inflight.Done()

	ticker := time.NewTicker(p.opts.Interval)
	defer ticker.Stop()

	p.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.tick(ctx)
		}
	}
}

func (p *Poller[T]) tick(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	seq := p.seq.Add(1)
	p.inflight.Add(1)
	go func() {
		defer p.inflight.Done()
		value, err := p.opts.Fetch(ctx)
		p.deliver(Result[T]{Seq: seq, Value: value, Err: err, At: time.Now()})
	}()
}

func (p *Poller[T]) deliver(res Result[T]) Result[T] {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stopped {
		return res
	}
	if res.Err != nil && errors.Is(res.Err, context.Canceled) {
		p.observePoll(OutcomeCanceled)
		return res
	}
	if res.Seq <= p.applied {
		res.Stale = true
		if p.opts.Observer != nil {
			p.opts.Observer.ObserveStale(p.opts.Name)
		}
		slog.Debug("discarding stale poll result",
			slog.String("source", p.opts.Name),
			slog.Uint64("seq", res.Seq),
			slog.Uint64("applied", p.applied),
		)
		return res
	}

	p.applied = res.Seq
	p.last = res
	if res.Err == nil {
		p.good = res
		p.hasGood = true
		p.observePoll(OutcomeOK)
	} else {
		p.observePoll(OutcomeError)
		slog.Warn("poll failed",
			slog.String("source", p.opts.Name),
			slog.Uint64("seq", res.Seq),
			slog.Any("error", res.Err),
		)
	}

	if p.opts.Apply != nil {
		p.opts.Apply(res)
	}
	return res
}

func (p *Poller[T]) observePoll(outcome string) {
	if p.opts.Observer != nil {
		p.opts.Observer.ObservePoll(p.opts.Name, outcome)
	}
}

func (p *Poller[T]) isStopped() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stopped
}
