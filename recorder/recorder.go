// Package recorder appends scraping task status transitions to local files.
package recorder

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aluiziolira/go-admin-console/models"
)

var (
	// ErrRecorderClosed is returned when Process is called after shutdown.
	ErrRecorderClosed = errors.New("recorder: closed")
	// ErrRecorderCloseTimeout is returned when workers do not drain in time.
	ErrRecorderCloseTimeout = errors.New("recorder: close timed out")
)

// drainTimeout bounds how long Close waits for pending writes.
var drainTimeout = 10 * time.Second

// OutputWriter is a sink for task observations.
type OutputWriter interface {
	Write(observations []*models.TaskObservation) error
	Close() error
	Validate() error
}

// Recorder keeps one observation per task status transition and hands
// them to a writer in batches.
type Recorder struct {
	writer    OutputWriter
	obsCh     chan *models.TaskObservation
	batchSize int

	wg sync.WaitGroup

	lastStatus map[string]models.TaskStatus
	seenMu     sync.Mutex

	stats stats

	mu     sync.Mutex // guards closed/err
	closed bool
	err    error

	closeOnce    sync.Once
	shutdown     chan struct{}
	shutdownOnce sync.Once
}

// New builds a recorder with a modest in-memory buffer. batchSize <= 0
// means one write per observation.
func New(writer OutputWriter, batchSize int) *Recorder {
	if batchSize <= 0 {
		batchSize = 1
	}
	return &Recorder{
		writer:     writer,
		obsCh:      make(chan *models.TaskObservation, 256),
		batchSize:  batchSize,
		lastStatus: make(map[string]models.TaskStatus),
		stats:      newStats(),
		shutdown:   make(chan struct{}),
	}
}

// Start launches worker goroutines. One worker keeps file order equal to
// observation order.
func (r *Recorder) Start(workers int) {
	if workers <= 0 {
		workers = 1
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.mu.Unlock()

	for i := 0; i < workers; i++ {
		r.wg.Add(1)
		go r.worker()
	}
}

// ObserveSnapshot records every task in snap whose status differs from the
// last one recorded for it.
func (r *Recorder) ObserveSnapshot(seq uint64, at time.Time, snap *models.StatusSnapshot) error {
	if snap == nil {
		return nil
	}
	observations := make([]*models.TaskObservation, 0, len(snap.ActiveTasks))
	for _, task := range snap.ActiveTasks {
		observations = append(observations, &models.TaskObservation{
			Seq:        seq,
			ObservedAt: at,
			Task:       task,
		})
	}
	return r.Process(observations...)
}

// Process enqueues observations. Repeats of a task's current status are
// dropped here, before any worker sees them.
func (r *Recorder) Process(observations ...*models.TaskObservation) error {
	if len(observations) == 0 {
		return nil
	}

	closed, err := r.state()
	if err != nil {
		return err
	}
	if closed {
		return ErrRecorderClosed
	}

	for _, obs := range observations {
		if err := r.admit(obs); err != nil {
			return err
		}
	}
	return nil
}

// Close drains pending observations and closes the worker pool. The
// writer itself is left open for the caller.
func (r *Recorder) Close() error {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
	}
	r.mu.Unlock()

	r.closeOnce.Do(func() {
		close(r.obsCh)
	})

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(drainTimeout):
		r.signalShutdown()
		return ErrRecorderCloseTimeout
	}
	r.signalShutdown()
	return r.Err()
}

// Err returns the first error encountered while writing.
func (r *Recorder) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Stats returns a snapshot of the internal counters.
func (r *Recorder) Stats() Stats {
	return r.stats.snapshot()
}

// StartStatsReporting emits periodic progress logs until Close.
func (r *Recorder) StartStatsReporting(interval time.Duration) {
	if interval <= 0 {
		return
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				s := r.Stats()
				slog.Info("recorder progress",
					slog.Int64("recorded", s.Recorded),
					slog.Any("skipped", s.Skipped),
				)
			case <-r.shutdown:
				return
			}
		}
	}()
}

func (r *Recorder) worker() {
	defer r.wg.Done()

	batch := make([]*models.TaskObservation, 0, r.batchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := r.writer.Write(batch); err != nil {
			return err
		}
		r.stats.addRecorded(len(batch))
		batch = batch[:0]
		return nil
	}

	for obs := range r.obsCh {
		batch = append(batch, obs)
		if len(batch) >= r.batchSize {
			if err := flush(); err != nil {
				r.setErr(fmt.Errorf("write batch: %w", err))
				return
			}
		}
	}

	if err := flush(); err != nil {
		r.setErr(fmt.Errorf("write batch: %w", err))
	}
}

// admit enqueues obs when it changes its task's status. The status is only
// remembered once the observation is queued, so a rejected one is retried
// on the next snapshot.
func (r *Recorder) admit(obs *models.TaskObservation) error {
	if obs == nil || obs.Task.TaskID == "" {
		r.stats.addSkipped("invalid_record")
		return nil
	}

	r.seenMu.Lock()
	defer r.seenMu.Unlock()
	if prev, ok := r.lastStatus[obs.Task.TaskID]; ok && prev == obs.Task.Status {
		r.stats.addSkipped("unchanged_status")
		return nil
	}
	if err := r.enqueue(obs); err != nil {
		return err
	}
	r.lastStatus[obs.Task.TaskID] = obs.Task.Status
	return nil
}

func (r *Recorder) enqueue(obs *models.TaskObservation) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = ErrRecorderClosed
		}
	}()

	select {
	case <-r.shutdown:
		return ErrRecorderClosed
	default:
	}

	select {
	case <-r.shutdown:
		return ErrRecorderClosed
	case r.obsCh <- obs:
		return nil
	}
}

func (r *Recorder) setErr(err error) {
	if err == nil {
		return
	}

	r.mu.Lock()
	if r.err != nil {
		r.mu.Unlock()
		return
	}
	r.err = err
	r.closed = true
	r.mu.Unlock()

	r.signalShutdown()
	r.closeOnce.Do(func() {
		close(r.obsCh)
	})
}

func (r *Recorder) state() (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed, r.err
}

func (r *Recorder) signalShutdown() {
	r.shutdownOnce.Do(func() {
		close(r.shutdown)
	})
}

// Stats counts recorded and skipped observations.
type Stats struct {
	Recorded int64          `json:"recorded"`
	Skipped  map[string]int `json:"skipped"`
}

type stats struct {
	mu       sync.Mutex
	recorded int64
	skipped  map[string]int
}

func newStats() stats {
	return stats{skipped: make(map[string]int)}
}

func (s *stats) addRecorded(n int) {
	s.mu.Lock()
	s.recorded += int64(n)
	s.mu.Unlock()
}

func (s *stats) addSkipped(kind string) {
	s.mu.Lock()
	s.skipped[kind]++
	s.mu.Unlock()
}

func (s *stats) snapshot() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	skipped := make(map[string]int, len(s.skipped))
	for k, v := range s.skipped {
		skipped[k] = v
	}
	return Stats{Recorded: s.recorded, Skipped: skipped}
}
