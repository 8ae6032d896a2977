package models

import (
	"encoding/json"
	"time"
)

// Targets lists the spiders and countries the backend accepts.
type Targets struct {
	Spiders   []string `json:"spiders"`
	Countries []string `json:"countries"`
}

// HasSpider reports whether name is an accepted spider.
func (t Targets) HasSpider(name string) bool {
	return contains(t.Spiders, name)
}

// HasCountry reports whether code is an accepted country.
func (t Targets) HasCountry(code string) bool {
	return contains(t.Countries, code)
}

func contains(values []string, want string) bool {
	for _, v := range values {
		if v == want {
			return true
		}
	}
	return false
}

// StartRequest is the body of POST /scraping/start.
type StartRequest struct {
	Spiders   []string `json:"spiders"`
	Countries []string `json:"countries"`
	MaxJobs   int      `json:"max_jobs,omitempty"`
	MaxPages  int      `json:"max_pages,omitempty"`
}

// StartResponse acknowledges a start request. The subprocess router returns a
// single task_id, the Celery router one id per spider/country pair.
type StartResponse struct {
	TaskIDs []string   `json:"task_ids,omitempty"`
	TaskID  string     `json:"task_id,omitempty"`
	Status  TaskStatus `json:"status"`
	Message string     `json:"message"`
}

// IDs returns every task id in the acknowledgment.
func (r StartResponse) IDs() []string {
	ids := make([]string, 0, len(r.TaskIDs)+1)
	if r.TaskID != "" {
		ids = append(ids, r.TaskID)
	}
	for _, id := range r.TaskIDs {
		if id != "" && id != r.TaskID {
			ids = append(ids, id)
		}
	}
	return ids
}

// StopAck acknowledges a stop request.
type StopAck struct {
	Message string     `json:"message"`
	TaskID  string     `json:"task_id,omitempty"`
	Status  TaskStatus `json:"status,omitempty"`
}

// DeleteAck acknowledges removal of a finished task.
type DeleteAck struct {
	Message string `json:"message"`
}

// LLMStatus reflects the external model download state.
type LLMStatus struct {
	ModelName  string          `json:"model_name"`
	Downloaded bool            `json:"downloaded"`
	SizeGB     float64         `json:"size_gb"`
	Ready      bool            `json:"ready"`
	ModelInfo  json.RawMessage `json:"model_info,omitempty"`
}

const (
	DownloadStarted  = "downloading"
	DownloadExisting = "already_downloaded"
)

// DownloadAck acknowledges a model download request.
type DownloadAck struct {
	Status    string  `json:"status"`
	Message   string  `json:"message"`
	ModelName string  `json:"model_name"`
	SizeGB    float64 `json:"size_gb,omitempty"`
}

// PipelineRequest is the body of POST /llm/run-pipeline-b.
type PipelineRequest struct {
	Limit   int    `json:"limit"`
	Country string `json:"country,omitempty"`
	Model   string `json:"model"`
}

// PipelineBTask is the fire-and-forget descriptor returned by a pipeline run.
type PipelineBTask struct {
	TaskID  string `json:"task_id"`
	Status  string `json:"status"`
	Message string `json:"message"`
	Limit   int    `json:"limit"`
	Country string `json:"country,omitempty"`
	Model   string `json:"model"`
}

// ActionEntry is one operator action as kept in the journal.
type ActionEntry struct {
	ID      int64     `json:"id,omitempty"`
	At      time.Time `json:"at"`
	Action  string    `json:"action"`
	Target  string    `json:"target"`
	Outcome string    `json:"outcome"`
	Detail  string    `json:"detail,omitempty"`
}
