package recorder

import (
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/aluiziolira/go-admin-console/models"
)

type mockWriter struct {
	mu          sync.Mutex
	batches     [][]*models.TaskObservation
	closed      bool
	validateErr error
}

func (mw *mockWriter) Write(observations []*models.TaskObservation) error {
	mw.mu.Lock()
	defer mw.mu.Unlock()
	copyBatch := make([]*models.TaskObservation, len(observations))
	copy(copyBatch, observations)
	mw.batches = append(mw.batches, copyBatch)
	return nil
}

func (mw *mockWriter) Close() error {
	mw.mu.Lock()
	mw.closed = true
	mw.mu.Unlock()
	return nil
}

func (mw *mockWriter) Validate() error {
	return mw.validateErr
}

func (mw *mockWriter) written() []*models.TaskObservation {
	mw.mu.Lock()
	defer mw.mu.Unlock()
	var all []*models.TaskObservation
	for _, batch := range mw.batches {
		all = append(all, batch...)
	}
	return all
}

func (mw *mockWriter) batchSizes() []int {
	mw.mu.Lock()
	defer mw.mu.Unlock()
	sizes := make([]int, 0, len(mw.batches))
	for _, batch := range mw.batches {
		sizes = append(sizes, len(batch))
	}
	return sizes
}

type blockingWriter struct {
	blockCh chan struct{}
}

func (bw *blockingWriter) Write([]*models.TaskObservation) error {
	<-bw.blockCh
	return nil
}

func (bw *blockingWriter) Close() error    { return nil }
func (bw *blockingWriter) Validate() error { return nil }

type failingWriter struct{}

func (failingWriter) Write([]*models.TaskObservation) error { return errors.New("disk full") }
func (failingWriter) Close() error                          { return nil }
func (failingWriter) Validate() error                       { return nil }

func observation(seq uint64, id string, status models.TaskStatus) *models.TaskObservation {
	return &models.TaskObservation{
		Seq:        seq,
		ObservedAt: time.Date(2025, 1, 2, 10, 0, int(seq), 0, time.UTC),
		Task:       models.ScrapingTask{TaskID: id, Status: status},
	}
}

func TestRecorderKeepsOnlyTransitions(t *testing.T) {
	writer := &mockWriter{}
	r := New(writer, 8)
	r.Start(1)

	err := r.Process(
		observation(1, "ab12", models.TaskPending),
		observation(2, "ab12", models.TaskPending),
		observation(3, "ab12", models.TaskRunning),
		observation(4, "", models.TaskRunning),
		observation(5, "cd34", models.TaskRunning),
		observation(6, "ab12", models.TaskRunning),
		observation(7, "ab12", models.TaskCompleted),
	)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if err := r.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	written := writer.written()
	var seqs []uint64
	for _, obs := range written {
		seqs = append(seqs, obs.Seq)
	}
	want := []uint64{1, 3, 5, 7}
	if len(seqs) != len(want) {
		t.Fatalf("written seqs=%v, want %v", seqs, want)
	}
	for i := range want {
		if seqs[i] != want[i] {
			t.Fatalf("written seqs=%v, want %v", seqs, want)
		}
	}

	stats := r.Stats()
	if stats.Recorded != 4 {
		t.Fatalf("recorded=%d, want 4", stats.Recorded)
	}
	if stats.Skipped["unchanged_status"] != 2 || stats.Skipped["invalid_record"] != 1 {
		t.Fatalf("skipped=%v", stats.Skipped)
	}
}

func TestRecorderObserveSnapshot(t *testing.T) {
	writer := &mockWriter{}
	r := New(writer, 4)
	r.Start(1)

	at := time.Now()
	snap := &models.StatusSnapshot{
		ActiveTasks: []models.ScrapingTask{
			{TaskID: "a", Status: models.TaskRunning},
			{TaskID: "b", Status: models.TaskPending},
		},
		TotalActive: 2,
	}
	if err := r.ObserveSnapshot(1, at, snap); err != nil {
		t.Fatalf("observe: %v", err)
	}
	if err := r.ObserveSnapshot(2, at, snap); err != nil {
		t.Fatalf("observe repeat: %v", err)
	}
	if err := r.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	if got := len(writer.written()); got != 2 {
		t.Fatalf("written=%d, want 2", got)
	}
}

func TestRecorderBatchFlushThreshold(t *testing.T) {
	writer := &mockWriter{}
	r := New(writer, 64)
	r.Start(1)

	for i := 0; i < 65; i++ {
		if err := r.Process(observation(uint64(i+1), "task-"+strconv.Itoa(i), models.TaskRunning)); err != nil {
			t.Fatalf("process: %v", err)
		}
	}
	if err := r.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	sizes := writer.batchSizes()
	if len(sizes) != 2 || sizes[0] != 64 || sizes[1] != 1 {
		t.Fatalf("batch sizes = %v, want [64 1]", sizes)
	}
}

func TestRecorderRejectsAfterClose(t *testing.T) {
	r := New(&mockWriter{}, 1)
	r.Start(1)
	if err := r.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := r.Process(observation(1, "a", models.TaskRunning)); !errors.Is(err, ErrRecorderClosed) {
		t.Fatalf("expected ErrRecorderClosed, got %v", err)
	}
}

func TestRecorderForgetsRejectedTransition(t *testing.T) {
	writer := &mockWriter{}
	r := New(writer, 1)
	r.signalShutdown()

	if err := r.admit(observation(1, "a", models.TaskRunning)); !errors.Is(err, ErrRecorderClosed) {
		t.Fatalf("expected ErrRecorderClosed, got %v", err)
	}
	r.seenMu.Lock()
	_, seen := r.lastStatus["a"]
	r.seenMu.Unlock()
	if seen {
		t.Fatalf("rejected observation must not mark the status as recorded")
	}
}

func TestRecorderSurfacesWriteError(t *testing.T) {
	r := New(failingWriter{}, 1)
	r.Start(1)
	if err := r.Process(observation(1, "a", models.TaskRunning)); err != nil {
		t.Fatalf("process: %v", err)
	}
	if err := r.Close(); err == nil {
		t.Fatalf("expected write error from close")
	}
}

func TestRecorderCloseTimeout(t *testing.T) {
	writer := &blockingWriter{blockCh: make(chan struct{})}
	r := New(writer, 1)
	r.Start(1)

	if err := r.Process(observation(1, "blocked", models.TaskRunning)); err != nil {
		t.Fatalf("process: %v", err)
	}

	previousTimeout := drainTimeout
	drainTimeout = 25 * time.Millisecond
	t.Cleanup(func() {
		drainTimeout = previousTimeout
		close(writer.blockCh)
	})

	if err := r.Close(); !errors.Is(err, ErrRecorderCloseTimeout) {
		t.Fatalf("expected close timeout error, got %v", err)
	}
}
