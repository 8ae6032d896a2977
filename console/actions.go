package console

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aluiziolira/go-admin-console/client"
	"github.com/aluiziolira/go-admin-console/models"
	"github.com/aluiziolira/go-admin-console/parser"
	"github.com/c2h5oh/datasize"
)

// Action names used in the journal and metrics.
const (
	ActionStart    = "start"
	ActionStop     = "stop"
	ActionDelete   = "delete"
	ActionDownload = "download"
	ActionRun      = "run_pipeline"
)

// Action outcomes.
const (
	OutcomeOK       = "ok"
	OutcomeFailed   = "failed"
	OutcomeInvalid  = "invalid"
	OutcomeCanceled = "canceled"
	OutcomeBlocked  = "blocked"
)

const (
	defaultLogTail    = 100
	followUpLLMStatus = "llm-status-followup"
)

// StartTask submits a scraping start request. Empty selections and
// out-of-range bounds are rejected with an alert and no request is sent.
// On success the form is cleared and a status refresh completes before the
// success alert.
func (c *Console) StartTask(ctx context.Context, spiders, countries []string, maxJobs, maxPages int) (*models.StartResponse, error) {
	req := &models.StartRequest{
		Spiders:   parser.NormalizeList(spiders, parser.NormalizeSpider),
		Countries: parser.NormalizeList(countries, parser.NormalizeCountry),
		MaxJobs:   maxJobs,
		MaxPages:  maxPages,
	}
	target := startTarget(req)

	if err := parser.ValidateStart(req); err != nil {
		c.alert(validationAlert(err))
		c.record(ctx, ActionStart, target, OutcomeInvalid, err.Error())
		return nil, err
	}

	c.setBusy(func(b *busyState) { b.starting = true })
	defer c.setBusy(func(b *busyState) { b.starting = false })

	resp, err := c.api.StartScraping(ctx, req)
	if err != nil {
		c.alert("Failed to start scraping: " + client.Detail(err))
		c.record(ctx, ActionStart, target, OutcomeFailed, client.Detail(err))
		return nil, err
	}

	c.ResetForm()
	if _, err := c.RefreshStatus(ctx); err != nil {
		slog.Warn("status refresh after start failed", slog.Any("error", err))
	}

	ids := resp.IDs()
	slog.Info("scraping started",
		slog.String("target", target),
		slog.Any("task_ids", ids),
	)
	c.alert(fmt.Sprintf("Scraping started (%s)", strings.Join(ids, ", ")))
	c.record(ctx, ActionStart, target, OutcomeOK, strings.Join(ids, ","))
	return resp, nil
}

// StopTask asks the backend to stop a task after the operator confirms.
func (c *Console) StopTask(ctx context.Context, taskID string) (*models.StopAck, error) {
	if err := parser.ValidateTaskID(taskID); err != nil {
		c.alert(validationAlert(err))
		c.record(ctx, ActionStop, taskID, OutcomeInvalid, err.Error())
		return nil, err
	}
	if !c.confirm(ctx, fmt.Sprintf("Stop task %s?", taskID)) {
		c.record(ctx, ActionStop, taskID, OutcomeCanceled, "")
		return nil, ErrCanceled
	}

	c.setBusy(func(b *busyState) { b.stopping[taskID] = struct{}{} })
	defer c.setBusy(func(b *busyState) { delete(b.stopping, taskID) })

	ack, err := c.api.StopScraping(ctx, taskID)
	if err != nil {
		c.alert("Failed to stop task: " + client.Detail(err))
		c.record(ctx, ActionStop, taskID, OutcomeFailed, client.Detail(err))
		return nil, err
	}

	if _, err := c.RefreshStatus(ctx); err != nil {
		slog.Warn("status refresh after stop failed", slog.String("task_id", taskID), slog.Any("error", err))
	}
	c.alert("Task stopped")
	c.record(ctx, ActionStop, taskID, OutcomeOK, ack.Message)
	return ack, nil
}

// DeleteTask removes a finished task after the operator confirms.
func (c *Console) DeleteTask(ctx context.Context, taskID string) (*models.DeleteAck, error) {
	if err := parser.ValidateTaskID(taskID); err != nil {
		c.alert(validationAlert(err))
		c.record(ctx, ActionDelete, taskID, OutcomeInvalid, err.Error())
		return nil, err
	}
	if !c.confirm(ctx, fmt.Sprintf("Delete task %s?", taskID)) {
		c.record(ctx, ActionDelete, taskID, OutcomeCanceled, "")
		return nil, ErrCanceled
	}

	c.setBusy(func(b *busyState) { b.deleting[taskID] = struct{}{} })
	defer c.setBusy(func(b *busyState) { delete(b.deleting, taskID) })

	ack, err := c.api.DeleteTask(ctx, taskID)
	if err != nil {
		c.alert("Failed to delete task: " + client.Detail(err))
		c.record(ctx, ActionDelete, taskID, OutcomeFailed, client.Detail(err))
		return nil, err
	}

	c.recent.Remove(taskID)
	if _, err := c.RefreshStatus(ctx); err != nil {
		slog.Warn("status refresh after delete failed", slog.String("task_id", taskID), slog.Any("error", err))
	}
	c.alert(ack.Message)
	c.record(ctx, ActionDelete, taskID, OutcomeOK, ack.Message)
	return ack, nil
}

// TaskDetail fetches one task's detailed state.
func (c *Console) TaskDetail(ctx context.Context, taskID string) (*models.TaskDetail, error) {
	if err := parser.ValidateTaskID(taskID); err != nil {
		return nil, err
	}
	return c.api.TaskDetail(ctx, taskID)
}

// TaskLogs fetches the last tail log lines of a task; tail <= 0 means 100.
func (c *Console) TaskLogs(ctx context.Context, taskID string, tail int) (*models.TaskLogs, error) {
	if err := parser.ValidateTaskID(taskID); err != nil {
		return nil, err
	}
	if tail <= 0 {
		tail = defaultLogTail
	}
	return c.api.TaskLogs(ctx, taskID, tail)
}

// DownloadModel triggers the model download after the operator confirms.
// The LLM status is checked again once, after the follow-up delay.
func (c *Console) DownloadModel(ctx context.Context) (*models.DownloadAck, error) {
	model, size := c.modelDescription()
	if !c.confirm(ctx, fmt.Sprintf("Download %s (%s)? This can take several minutes.", model, size)) {
		c.record(ctx, ActionDownload, model, OutcomeCanceled, "")
		return nil, ErrCanceled
	}

	c.setBusy(func(b *busyState) { b.downloading = true })
	defer c.setBusy(func(b *busyState) { b.downloading = false })

	ack, err := c.api.DownloadModel(ctx)
	if err != nil {
		c.alert("Failed to download model: " + client.Detail(err))
		c.record(ctx, ActionDownload, model, OutcomeFailed, client.Detail(err))
		return nil, err
	}

	c.scheduler.After(followUpLLMStatus, c.cfg.DownloadFollowUpDelay, func() {
		if _, err := c.CheckLLMStatus(c.ctx); err != nil {
			slog.Warn("follow-up llm status check failed", slog.Any("error", err))
		}
	})

	c.alert(ack.Message)
	c.record(ctx, ActionDownload, model, OutcomeOK, ack.Status)
	return ack, nil
}

// RunExtractionPipeline enqueues an LLM extraction run. It is refused
// without a request while the last known model status is not ready. An
// empty model selects the configured default.
func (c *Console) RunExtractionPipeline(ctx context.Context, limit int, country, model string) (*models.PipelineBTask, error) {
	if strings.TrimSpace(model) == "" {
		model = c.cfg.DefaultModel
	}
	req := &models.PipelineRequest{
		Limit:   limit,
		Country: parser.NormalizeCountry(country),
		Model:   strings.TrimSpace(model),
	}
	target := req.Model
	if req.Country != "" {
		target += "/" + req.Country
	}

	if err := parser.ValidatePipeline(req); err != nil {
		c.alert(validationAlert(err))
		c.record(ctx, ActionRun, target, OutcomeInvalid, err.Error())
		return nil, err
	}
	if !c.State().ModelReady() {
		c.alert("The LLM model is not ready. Download it first.")
		c.record(ctx, ActionRun, target, OutcomeBlocked, ErrModelNotReady.Error())
		return nil, ErrModelNotReady
	}

	c.setBusy(func(b *busyState) { b.runningPipeline = true })
	defer c.setBusy(func(b *busyState) { b.runningPipeline = false })

	task, err := c.api.RunPipeline(ctx, req)
	if err != nil {
		c.alert("Failed to start extraction pipeline: " + client.Detail(err))
		c.record(ctx, ActionRun, target, OutcomeFailed, client.Detail(err))
		return nil, err
	}

	c.alert(fmt.Sprintf("Extraction pipeline started: %s\nTask ID: %s", task.Message, task.TaskID))
	c.record(ctx, ActionRun, target, OutcomeOK, task.TaskID)
	return task, nil
}

// PendingFollowUps reports how many delayed checks are scheduled.
func (c *Console) PendingFollowUps() int {
	return c.scheduler.Pending()
}

func (c *Console) modelDescription() (string, string) {
	state := c.State()
	model := c.cfg.DefaultModel
	if state.LLM == nil || state.LLM.SizeGB <= 0 {
		return model, "size unknown"
	}
	if state.LLM.ModelName != "" {
		model = state.LLM.ModelName
	}
	size := datasize.ByteSize(state.LLM.SizeGB * float64(datasize.GB))
	return model, size.HumanReadable()
}

func (c *Console) setBusy(mutate func(*busyState)) {
	c.mu.Lock()
	mutate(&c.busy)
	c.state.UpdatedAt = time.Now()
	snap := c.snapshotLocked()
	c.mu.Unlock()

	c.publish(snap)
}

func (c *Console) record(ctx context.Context, action, target, outcome, detail string) {
	c.metrics.IncAction(action, outcome)
	if c.journal == nil {
		return
	}
	entry := models.ActionEntry{
		At:      time.Now().UTC(),
		Action:  action,
		Target:  target,
		Outcome: outcome,
		Detail:  detail,
	}
	if err := c.journal.Record(context.WithoutCancel(ctx), entry); err != nil {
		slog.Warn("failed to journal action",
			slog.String("action", action),
			slog.String("outcome", outcome),
			slog.Any("error", err),
		)
	}
}

func startTarget(req *models.StartRequest) string {
	return strings.Join(req.Spiders, ",") + " x " + strings.Join(req.Countries, ",")
}

func validationAlert(err error) string {
	var verr *parser.ValidationError
	if !errors.As(err, &verr) {
		return err.Error()
	}
	switch verr.Field {
	case "spiders":
		return "Select at least one spider"
	case "countries":
		return "Select at least one country"
	case "limit":
		return "Limit must be greater than 0"
	default:
		return verr.Error()
	}
}
