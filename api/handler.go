package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/aluiziolira/go-admin-console/client"
	"github.com/aluiziolira/go-admin-console/config"
	"github.com/aluiziolira/go-admin-console/console"
	"github.com/aluiziolira/go-admin-console/models"
	"github.com/aluiziolira/go-admin-console/parser"
	"github.com/gin-gonic/gin"
)

// Service is the console surface served over HTTP. *console.Console implements it.
type Service interface {
	State() console.State
	ListAvailableTargets(ctx context.Context) (*models.Targets, error)
	StartTask(ctx context.Context, spiders, countries []string, maxJobs, maxPages int) (*models.StartResponse, error)
	RefreshStatus(ctx context.Context) (*models.StatusSnapshot, error)
	StopTask(ctx context.Context, taskID string) (*models.StopAck, error)
	TaskDetail(ctx context.Context, taskID string) (*models.TaskDetail, error)
	TaskLogs(ctx context.Context, taskID string, tail int) (*models.TaskLogs, error)
	DeleteTask(ctx context.Context, taskID string) (*models.DeleteAck, error)
	CheckLLMStatus(ctx context.Context) (*models.LLMStatus, error)
	DownloadModel(ctx context.Context) (*models.DownloadAck, error)
	RunExtractionPipeline(ctx context.Context, limit int, country, model string) (*models.PipelineBTask, error)
}

// History reads the action journal.
type History interface {
	Recent(ctx context.Context, limit int) ([]models.ActionEntry, error)
}

type Handler struct {
	svc     Service
	history History
	cfg     *config.Config
}

func NewHandler(svc Service, history History, cfg *config.Config) *Handler {
	return &Handler{
		svc:     svc,
		history: history,
		cfg:     cfg,
	}
}

// StartBody is the JSON body of POST /console/scraping/start. Omitted
// bounds take the configured form defaults.
type StartBody struct {
	Spiders   []string `json:"spiders"`
	Countries []string `json:"countries"`
	MaxJobs   *int     `json:"max_jobs"`
	MaxPages  *int     `json:"max_pages"`
}

// RunBody is the JSON body of POST /console/llm/run.
type RunBody struct {
	Limit   int    `json:"limit"`
	Country string `json:"country"`
	Model   string `json:"model"`
}

func (h *Handler) handleState(c *gin.Context) {
	c.JSON(http.StatusOK, h.svc.State())
}

func (h *Handler) handleTargets(c *gin.Context) {
	targets, err := h.svc.ListAvailableTargets(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, targets)
}

func (h *Handler) handleStart(c *gin.Context) {
	var body StartBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	maxJobs := h.cfg.DefaultMaxJobs
	if body.MaxJobs != nil {
		maxJobs = *body.MaxJobs
	}
	maxPages := h.cfg.DefaultMaxPages
	if body.MaxPages != nil {
		maxPages = *body.MaxPages
	}

	resp, err := h.svc.StartTask(c.Request.Context(), body.Spiders, body.Countries, maxJobs, maxPages)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, resp)
}

func (h *Handler) handleRefresh(c *gin.Context) {
	snap, err := h.svc.RefreshStatus(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (h *Handler) handleStop(c *gin.Context) {
	ack, err := h.svc.StopTask(confirmed(c), c.Param("taskId"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, ack)
}

func (h *Handler) handleTaskDetail(c *gin.Context) {
	detail, err := h.svc.TaskDetail(c.Request.Context(), c.Param("taskId"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, detail)
}

func (h *Handler) handleDeleteTask(c *gin.Context) {
	ack, err := h.svc.DeleteTask(confirmed(c), c.Param("taskId"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, ack)
}

func (h *Handler) handleTaskLogs(c *gin.Context) {
	tail, err := queryInt(c, "tail")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "tail must be an integer"})
		return
	}
	logs, err := h.svc.TaskLogs(c.Request.Context(), c.Param("taskId"), tail)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, logs)
}

func (h *Handler) handleLLMStatus(c *gin.Context) {
	status, err := h.svc.CheckLLMStatus(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

func (h *Handler) handleDownload(c *gin.Context) {
	ack, err := h.svc.DownloadModel(confirmed(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, ack)
}

func (h *Handler) handleRunPipeline(c *gin.Context) {
	var body RunBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	task, err := h.svc.RunExtractionPipeline(c.Request.Context(), body.Limit, body.Country, body.Model)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, task)
}

func (h *Handler) handleJournal(c *gin.Context) {
	if h.history == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "journal is disabled"})
		return
	}
	limit, err := queryInt(c, "limit")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be an integer"})
		return
	}
	entries, err := h.history.Recent(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read journal", "details": err.Error()})
		return
	}
	c.JSON(http.StatusOK, entries)
}

// confirmed answers the console's confirmation prompt from ?confirm=.
// Anything other than a true value declines.
func confirmed(c *gin.Context) context.Context {
	ok, _ := strconv.ParseBool(c.Query("confirm"))
	return console.WithConfirmation(c.Request.Context(), ok)
}

func queryInt(c *gin.Context, key string) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return 0, nil
	}
	return strconv.Atoi(raw)
}

func writeError(c *gin.Context, err error) {
	var verr *parser.ValidationError
	var notFound client.ErrNotFound
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, gin.H{"error": verr.Error(), "field": verr.Field})
	case errors.Is(err, console.ErrCanceled):
		c.JSON(http.StatusPreconditionFailed, gin.H{"error": "confirmation required; repeat with ?confirm=true"})
	case errors.Is(err, console.ErrModelNotReady):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.As(err, &notFound):
		c.JSON(http.StatusNotFound, gin.H{"error": client.Detail(err)})
	default:
		c.JSON(http.StatusBadGateway, gin.H{"error": client.Detail(err), "type": client.ErrorTypeLabel(err)})
	}
}
