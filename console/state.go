package console

import (
	"slices"
	"time"

	"github.com/aluiziolira/go-admin-console/models"
)

// Form is the pending start request being edited by the operator.
type Form struct {
	Spiders   []string `json:"spiders"`
	Countries []string `json:"countries"`
	MaxJobs   int      `json:"max_jobs"`
	MaxPages  int      `json:"max_pages"`
}

func (f Form) clone() Form {
	f.Spiders = slices.Clone(f.Spiders)
	f.Countries = slices.Clone(f.Countries)
	return f
}

// Busy flags actions that are waiting on the backend.
type Busy struct {
	Starting        bool     `json:"starting"`
	Stopping        []string `json:"stopping,omitempty"`
	Deleting        []string `json:"deleting,omitempty"`
	Downloading     bool     `json:"downloading"`
	RunningPipeline bool     `json:"running_pipeline"`
}

// State is an immutable snapshot of what the console displays. Pointer
// fields are shared with later snapshots and must not be modified.
type State struct {
	Targets    *models.Targets `json:"targets,omitempty"`
	TargetsErr string          `json:"targets_error,omitempty"`

	Scraping    *models.StatusSnapshot `json:"scraping,omitempty"`
	ScrapingSeq uint64                 `json:"scraping_seq"`
	ScrapingAt  time.Time              `json:"scraping_at,omitempty"`
	ScrapingErr string                 `json:"scraping_error,omitempty"`

	LLM    *models.LLMStatus `json:"llm,omitempty"`
	LLMSeq uint64            `json:"llm_seq"`
	LLMErr string            `json:"llm_error,omitempty"`

	Form   Form                  `json:"form"`
	Busy   Busy                  `json:"busy"`
	Recent []models.ScrapingTask `json:"recent,omitempty"`

	UpdatedAt time.Time `json:"updated_at"`
}

// ActiveTasks returns the task list of the last applied status response.
func (s State) ActiveTasks() []models.ScrapingTask {
	if s.Scraping == nil {
		return nil
	}
	return s.Scraping.ActiveTasks
}

// ModelReady reports whether the last applied LLM status says ready.
func (s State) ModelReady() bool {
	return s.LLM != nil && s.LLM.Ready
}

// busyState is the mutable form of Busy kept under the console lock.
type busyState struct {
	starting        bool
	stopping        map[string]struct{}
	deleting        map[string]struct{}
	downloading     bool
	runningPipeline bool
}

func (b *busyState) snapshot() Busy {
	return Busy{
		Starting:        b.starting,
		Stopping:        sortedKeys(b.stopping),
		Deleting:        sortedKeys(b.deleting),
		Downloading:     b.downloading,
		RunningPipeline: b.runningPipeline,
	}
}

func sortedKeys(m map[string]struct{}) []string {
	if len(m) == 0 {
		return nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
