// Package console holds the operator-facing state and actions for the
// observatory admin API: target selection, task start/stop, status polling
// and LLM model management.
package console

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aluiziolira/go-admin-console/client"
	"github.com/aluiziolira/go-admin-console/config"
	"github.com/aluiziolira/go-admin-console/models"
	"github.com/aluiziolira/go-admin-console/parser"
	"github.com/aluiziolira/go-admin-console/poller"
	lru "github.com/hashicorp/golang-lru/v2"
)

var (
	// ErrCanceled is returned when the operator declines a confirmation.
	ErrCanceled = errors.New("console: action canceled")
	// ErrModelNotReady is returned by a pipeline run while the model is not ready.
	ErrModelNotReady = errors.New("console: llm model is not ready")
	// ErrMounted is returned by a second Mount.
	ErrMounted = errors.New("console: already mounted")
)

// Poll source names.
const (
	SourceScraping = "scraping"
	SourceLLM      = "llm"
)

// API is the admin API surface the console drives. *client.Client implements it.
type API interface {
	AvailableTargets(ctx context.Context) (*models.Targets, error)
	StartScraping(ctx context.Context, req *models.StartRequest) (*models.StartResponse, error)
	ScrapingStatus(ctx context.Context) (*models.StatusSnapshot, error)
	StopScraping(ctx context.Context, taskID string) (*models.StopAck, error)
	TaskDetail(ctx context.Context, taskID string) (*models.TaskDetail, error)
	TaskLogs(ctx context.Context, taskID string, tail int) (*models.TaskLogs, error)
	DeleteTask(ctx context.Context, taskID string) (*models.DeleteAck, error)
	LLMStatus(ctx context.Context) (*models.LLMStatus, error)
	DownloadModel(ctx context.Context) (*models.DownloadAck, error)
	RunPipeline(ctx context.Context, req *models.PipelineRequest) (*models.PipelineBTask, error)
}

// ActionLog persists operator actions.
type ActionLog interface {
	Record(ctx context.Context, entry models.ActionEntry) error
}

// Metrics receives poll and action accounting. *client.Metrics implements it.
type Metrics interface {
	poller.Observer
	IncAction(action, outcome string)
}

// Options wires a Console.
type Options struct {
	Config   *config.Config
	API      API
	Prompter Prompter
	Journal  ActionLog
	Metrics  Metrics
}

// Console is the headless admin console. It is safe for concurrent use.
type Console struct {
	cfg      *config.Config
	api      API
	prompter Prompter
	journal  ActionLog
	metrics  Metrics

	scraping  *poller.Poller[*models.StatusSnapshot]
	llm       *poller.Poller[*models.LLMStatus]
	scheduler *poller.Scheduler
	recent    *lru.Cache[string, models.ScrapingTask]

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex // guards the display state below
	mounted bool
	closed  bool
	state   State
	form    Form
	busy    busyState

	subMu     sync.Mutex
	subs      map[int]func(State)
	nextSubID int
}

// New builds a console. Nothing is fetched until Mount or an explicit call.
func New(opts Options) (*Console, error) {
	if opts.Config == nil {
		return nil, errors.New("console: config is required")
	}
	if opts.API == nil {
		return nil, errors.New("console: api is required")
	}
	if opts.Prompter == nil {
		opts.Prompter = NopPrompter{}
	}
	if opts.Metrics == nil {
		opts.Metrics = (*client.Metrics)(nil)
	}

	size := opts.Config.RecentTasks
	if size <= 0 {
		size = config.DefaultConfig().RecentTasks
	}
	recent, err := lru.New[string, models.ScrapingTask](size)
	if err != nil {
		return nil, fmt.Errorf("recent task cache: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Console{
		cfg:       opts.Config,
		api:       opts.API,
		prompter:  opts.Prompter,
		journal:   opts.Journal,
		metrics:   opts.Metrics,
		scheduler: poller.NewScheduler(),
		recent:    recent,
		ctx:       ctx,
		cancel:    cancel,
		subs:      make(map[int]func(State)),
	}
	c.form = c.defaultForm()
	c.busy = busyState{stopping: map[string]struct{}{}, deleting: map[string]struct{}{}}

	c.scraping, err = poller.New(poller.Options[*models.StatusSnapshot]{
		Name:     SourceScraping,
		Interval: opts.Config.ScrapingPollInterval,
		Fetch:    opts.API.ScrapingStatus,
		Apply:    c.applyScraping,
		Observer: opts.Metrics,
	})
	if err != nil {
		cancel()
		return nil, fmt.Errorf("scraping poller: %w", err)
	}
	c.llm, err = poller.New(poller.Options[*models.LLMStatus]{
		Name:     SourceLLM,
		Interval: opts.Config.LLMPollInterval,
		Fetch:    opts.API.LLMStatus,
		Apply:    c.applyLLM,
		Observer: opts.Metrics,
	})
	if err != nil {
		cancel()
		return nil, fmt.Errorf("llm poller: %w", err)
	}
	return c, nil
}

// Mount fetches the available targets once and starts both pollers. Each
// poller fetches immediately. A targets failure is shown in state and does
// not prevent polling.
func (c *Console) Mount(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return poller.ErrStopped
	}
	if c.mounted {
		c.mu.Unlock()
		return ErrMounted
	}
	c.mounted = true
	c.mu.Unlock()

	if _, err := c.ListAvailableTargets(ctx); err != nil {
		slog.Warn("failed to fetch available targets", slog.Any("error", err))
	}
	if err := c.scraping.Start(ctx); err != nil {
		return fmt.Errorf("start scraping poller: %w", err)
	}
	if err := c.llm.Start(ctx); err != nil {
		c.scraping.Stop()
		return fmt.Errorf("start llm poller: %w", err)
	}
	slog.Info("console mounted",
		slog.Duration("scraping_interval", c.cfg.ScrapingPollInterval),
		slog.Duration("llm_interval", c.cfg.LLMPollInterval),
	)
	return nil
}

// Close stops both pollers and any pending follow-up check. No state
// changes are published after Close returns.
func (c *Console) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.cancel()
	c.scheduler.Stop()
	c.scraping.Stop()
	c.llm.Stop()
	return nil
}

// ListAvailableTargets fetches the spiders and countries the backend
// accepts and stores them in state.
func (c *Console) ListAvailableTargets(ctx context.Context) (*models.Targets, error) {
	targets, err := c.api.AvailableTargets(ctx)
	if err != nil {
		c.update(func(s *State) { s.TargetsErr = client.Detail(err) })
		return nil, err
	}

	normalized := &models.Targets{
		Spiders:   parser.NormalizeList(targets.Spiders, parser.NormalizeSpider),
		Countries: parser.NormalizeList(targets.Countries, parser.NormalizeCountry),
	}
	c.update(func(s *State) {
		s.Targets = normalized
		s.TargetsErr = ""
	})
	return normalized, nil
}

// RefreshStatus performs an out-of-band status poll. A successful applied
// response replaces the displayed task list entirely.
func (c *Console) RefreshStatus(ctx context.Context) (*models.StatusSnapshot, error) {
	res := c.scraping.Refresh(ctx)
	return res.Value, res.Err
}

// CheckLLMStatus performs an out-of-band LLM status poll.
func (c *Console) CheckLLMStatus(ctx context.Context) (*models.LLMStatus, error) {
	res := c.llm.Refresh(ctx)
	return res.Value, res.Err
}

// State returns the current display snapshot.
func (c *Console) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Recent returns tasks seen in any applied status response, newest first.
func (c *Console) Recent() []models.ScrapingTask {
	values := c.recent.Values()
	out := make([]models.ScrapingTask, 0, len(values))
	for i := len(values) - 1; i >= 0; i-- {
		out = append(out, values[i])
	}
	return out
}

// Subscribe registers fn to receive every published state. Scraping
// results arrive in poll order. fn must not block on console actions.
func (c *Console) Subscribe(fn func(State)) (unsubscribe func()) {
	c.subMu.Lock()
	id := c.nextSubID
	c.nextSubID++
	c.subs[id] = fn
	c.subMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.subMu.Lock()
			delete(c.subs, id)
			c.subMu.Unlock()
		})
	}
}

func (c *Console) applyScraping(res poller.Result[*models.StatusSnapshot]) {
	if res.Err == nil && res.Value != nil {
		for _, task := range res.Value.ActiveTasks {
			c.recent.Add(task.TaskID, task)
		}
	}
	c.update(func(s *State) {
		if res.Err != nil {
			s.ScrapingErr = client.Detail(res.Err)
			return
		}
		s.Scraping = res.Value
		s.ScrapingSeq = res.Seq
		s.ScrapingAt = res.At
		s.ScrapingErr = ""
	})
}

func (c *Console) applyLLM(res poller.Result[*models.LLMStatus]) {
	c.update(func(s *State) {
		if res.Err != nil {
			s.LLMErr = client.Detail(res.Err)
			return
		}
		s.LLM = res.Value
		s.LLMSeq = res.Seq
		s.LLMErr = ""
	})
}

// update mutates state under the lock and publishes the result outside it.
func (c *Console) update(mutate func(*State)) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	mutate(&c.state)
	c.state.UpdatedAt = time.Now()
	snap := c.snapshotLocked()
	c.mu.Unlock()

	c.publish(snap)
}

func (c *Console) snapshotLocked() State {
	snap := c.state
	snap.Form = c.form.clone()
	snap.Busy = c.busy.snapshot()
	snap.Recent = c.Recent()
	return snap
}

func (c *Console) publish(snap State) {
	c.subMu.Lock()
	subs := make([]func(State), 0, len(c.subs))
	for _, fn := range c.subs {
		subs = append(subs, fn)
	}
	c.subMu.Unlock()

	for _, fn := range subs {
		fn(snap)
	}
}
