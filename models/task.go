// Package models defines the admin API payloads consumed by the console.
package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// TaskStatus is the lifecycle state the backend reports for a scraping task.
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskRunning   TaskStatus = "running"
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
	TaskStopped   TaskStatus = "stopped"
)

// Terminal reports whether the task can no longer change state.
func (s TaskStatus) Terminal() bool {
	switch s {
	case TaskCompleted, TaskFailed, TaskStopped:
		return true
	default:
		return false
	}
}

// UnmarshalJSON lowercases the wire value; the Celery backend reports RUNNING/PENDING.
func (s *TaskStatus) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("task status: %w", err)
	}
	*s = TaskStatus(strings.ToLower(strings.TrimSpace(raw)))
	return nil
}

// Timestamp accepts both RFC 3339 and the naive isoformat() strings the backend emits.
type Timestamp struct {
	time.Time
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05",
}

// ParseTimestamp parses any of the supported layouts.
func ParseTimestamp(value string) (Timestamp, error) {
	value = strings.TrimSpace(value)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return Timestamp{Time: t}, nil
		}
	}
	return Timestamp{}, fmt.Errorf("unsupported timestamp %q", value)
}

func (ts *Timestamp) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return nil
	}
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("timestamp: %w", err)
	}
	if raw == "" {
		return nil
	}
	parsed, err := ParseTimestamp(raw)
	if err != nil {
		return err
	}
	*ts = parsed
	return nil
}

func (ts Timestamp) MarshalJSON() ([]byte, error) {
	if ts.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(ts.Format(time.RFC3339Nano))
}

// ScrapingTask is one scraping job owned by the external runner.
type ScrapingTask struct {
	TaskID      string     `json:"task_id"`
	Status      TaskStatus `json:"status"`
	Spiders     []string   `json:"spiders"`
	Countries   []string   `json:"countries"`
	MaxJobs     int        `json:"max_jobs"`
	MaxPages    int        `json:"max_pages"`
	StartedAt   *Timestamp `json:"started_at,omitempty"`
	CompletedAt *Timestamp `json:"completed_at,omitempty"`
	PID         *int       `json:"pid,omitempty"`
	Error       string     `json:"error,omitempty"`
	JobsScraped int        `json:"jobs_scraped,omitempty"`
	Errors      int        `json:"errors,omitempty"`
}

// UnmarshalJSON also lifts the nested "config" object the subprocess runner reports.
func (t *ScrapingTask) UnmarshalJSON(data []byte) error {
	type alias ScrapingTask
	aux := struct {
		*alias
		Config *StartRequest `json:"config"`
	}{alias: (*alias)(t)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if aux.Config == nil {
		return nil
	}
	if len(t.Spiders) == 0 {
		t.Spiders = aux.Config.Spiders
	}
	if len(t.Countries) == 0 {
		t.Countries = aux.Config.Countries
	}
	if t.MaxJobs == 0 {
		t.MaxJobs = aux.Config.MaxJobs
	}
	if t.MaxPages == 0 {
		t.MaxPages = aux.Config.MaxPages
	}
	return nil
}

// SystemStatus is the backend's self-reported health.
type SystemStatus string

const (
	SystemOperational SystemStatus = "operational"
	SystemUnavailable SystemStatus = "unavailable"
	SystemError       SystemStatus = "error"
)

// Operational reports whether the backend can accept new work.
func (s SystemStatus) Operational() bool {
	return s == SystemOperational
}

// StatusSnapshot is one /scraping/status response.
type StatusSnapshot struct {
	ActiveTasks  []ScrapingTask `json:"active_tasks"`
	TotalActive  int            `json:"total_active"`
	SystemStatus SystemStatus   `json:"system_status"`
}

// TaskObservation records a task state as seen by one applied poll.
type TaskObservation struct {
	Seq        uint64       `json:"seq"`
	ObservedAt time.Time    `json:"observed_at"`
	Task       ScrapingTask `json:"task"`
}

// TaskDetail is the per-task view of the Celery-backed router.
type TaskDetail struct {
	TaskID   string          `json:"task_id"`
	Status   TaskStatus      `json:"status"`
	Progress int             `json:"progress"`
	Result   json.RawMessage `json:"result,omitempty"`
	Error    string          `json:"error,omitempty"`
}

// TaskLogs is the tail of a task's log file.
type TaskLogs struct {
	TaskID  string `json:"task_id"`
	LogFile string `json:"log_file"`
	Lines   int    `json:"lines"`
	Tail    int    `json:"tail"`
	Content string `json:"content"`
}
