// Package client talks to the observatory admin API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/aluiziolira/go-admin-console/config"
	"github.com/aluiziolira/go-admin-console/models"
	"github.com/gocolly/colly/v2"
	"github.com/lithammer/shortuuid/v4"
)

const adminPrefix = "/api/admin"

// Endpoint labels used in logs and metrics.
const (
	EndpointAvailable      = "available"
	EndpointScrapingStart  = "scraping_start"
	EndpointScrapingStatus = "scraping_status"
	EndpointScrapingStop   = "scraping_stop"
	EndpointScrapingTask   = "scraping_task"
	EndpointScrapingLogs   = "scraping_logs"
	EndpointScrapingDelete = "scraping_delete"
	EndpointLLMStatus      = "llm_status"
	EndpointLLMDownload    = "llm_download"
	EndpointLLMRun         = "llm_run"
)

const (
	ctxEndpoint = "endpoint"
	ctxStart    = "start"
	ctxResponse = "response"
)

// Client is a typed admin API client built on a synchronous colly collector.
type Client struct {
	cfg       *config.Config
	baseURL   string
	collector *colly.Collector
	Metrics   *Metrics
}

// New builds a client configured from cfg.
func New(cfg *config.Config) (*Client, error) {
	parsed, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if parsed.Host == "" {
		return nil, fmt.Errorf("base url must include a host")
	}

	collector := colly.NewCollector(
		colly.AllowURLRevisit(),
		colly.ParseHTTPErrorResponse(),
		colly.IgnoreRobotsTxt(),
		colly.UserAgent(cfg.UserAgent),
	)
	collector.MaxBodySize = int(cfg.MaxResponseSize)
	collector.SetRequestTimeout(cfg.Timeout)
	collector.WithTransport(&http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.Timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        16,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	})

	if err := collector.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: cfg.Parallelism,
	}); err != nil {
		return nil, fmt.Errorf("configure request limits: %w", err)
	}

	c := &Client{
		cfg:       cfg,
		baseURL:   strings.TrimSuffix(cfg.BaseURL, "/") + adminPrefix,
		collector: collector,
		Metrics:   NewMetrics(),
	}
	c.configureHandlers()
	return c, nil
}

// WithTransport swaps the HTTP transport, e.g. for a mock in tests.
func (c *Client) WithTransport(rt http.RoundTripper) {
	c.collector.WithTransport(rt)
}

// AvailableTargets lists the spiders and countries the backend accepts.
func (c *Client) AvailableTargets(ctx context.Context) (*models.Targets, error) {
	var out models.Targets
	if err := c.do(ctx, EndpointAvailable, http.MethodGet, "/available", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// StartScraping submits a scraping start request.
func (c *Client) StartScraping(ctx context.Context, req *models.StartRequest) (*models.StartResponse, error) {
	var out models.StartResponse
	if err := c.do(ctx, EndpointScrapingStart, http.MethodPost, "/scraping/start", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ScrapingStatus fetches the active task list and system status.
func (c *Client) ScrapingStatus(ctx context.Context) (*models.StatusSnapshot, error) {
	var out models.StatusSnapshot
	if err := c.do(ctx, EndpointScrapingStatus, http.MethodGet, "/scraping/status", nil, &out); err != nil {
		return nil, err
	}
	if out.ActiveTasks == nil {
		out.ActiveTasks = []models.ScrapingTask{}
	}
	return &out, nil
}

// StopScraping asks the backend to stop a running task.
func (c *Client) StopScraping(ctx context.Context, taskID string) (*models.StopAck, error) {
	var out models.StopAck
	path := "/scraping/stop/" + url.PathEscape(taskID)
	if err := c.do(ctx, EndpointScrapingStop, http.MethodPost, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// TaskDetail fetches the detailed state of one task.
func (c *Client) TaskDetail(ctx context.Context, taskID string) (*models.TaskDetail, error) {
	var out models.TaskDetail
	path := "/scraping/task/" + url.PathEscape(taskID)
	if err := c.do(ctx, EndpointScrapingTask, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// TaskLogs fetches the last tail lines of a task's log.
func (c *Client) TaskLogs(ctx context.Context, taskID string, tail int) (*models.TaskLogs, error) {
	var out models.TaskLogs
	path := "/scraping/logs/" + url.PathEscape(taskID)
	if tail > 0 {
		path += "?tail=" + strconv.Itoa(tail)
	}
	if err := c.do(ctx, EndpointScrapingLogs, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteTask removes a finished task from the backend's list.
func (c *Client) DeleteTask(ctx context.Context, taskID string) (*models.DeleteAck, error) {
	var out models.DeleteAck
	path := "/scraping/tasks/" + url.PathEscape(taskID)
	if err := c.do(ctx, EndpointScrapingDelete, http.MethodDelete, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// LLMStatus fetches the model download state.
func (c *Client) LLMStatus(ctx context.Context) (*models.LLMStatus, error) {
	var out models.LLMStatus
	if err := c.do(ctx, EndpointLLMStatus, http.MethodGet, "/llm/status", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DownloadModel triggers the asynchronous model download.
func (c *Client) DownloadModel(ctx context.Context) (*models.DownloadAck, error) {
	var out models.DownloadAck
	if err := c.do(ctx, EndpointLLMDownload, http.MethodPost, "/llm/download-gemma", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// RunPipeline enqueues an LLM extraction run.
func (c *Client) RunPipeline(ctx context.Context, req *models.PipelineRequest) (*models.PipelineBTask, error) {
	var out models.PipelineBTask
	if err := c.do(ctx, EndpointLLMRun, http.MethodPost, "/llm/run-pipeline-b", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) configureHandlers() {
	c.collector.OnRequest(func(r *colly.Request) {
		r.Ctx.Put(ctxStart, time.Now())
		c.Metrics.IncRequest(r.Ctx.Get(ctxEndpoint))
	})

	c.collector.OnResponse(func(r *colly.Response) {
		r.Ctx.Put(ctxResponse, r)
		if start, ok := r.Ctx.GetAny(ctxStart).(time.Time); ok {
			c.Metrics.ObserveDuration(r.Ctx.Get(ctxEndpoint), time.Since(start))
		}
	})

	c.collector.OnError(func(r *colly.Response, err error) {
		if r != nil && r.Ctx != nil {
			r.Ctx.Put(ctxResponse, r)
		}
	})
}

// do issues one request. The collector call runs on its own goroutine so a
// cancelled ctx returns immediately; its late response is dropped.
func (c *Client) do(ctx context.Context, endpoint, method, path string, in, out any) error {
	if ctx == nil {
		ctx = context.Background()
	}
	requestID := shortuuid.New()
	if err := ctx.Err(); err != nil {
		return c.fail(endpoint, requestID, classifyError(err, 0))
	}

	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode %s request: %w", endpoint, err)
		}
		body = bytes.NewReader(payload)
	}

	hdr := http.Header{}
	hdr.Set("User-Agent", c.cfg.UserAgent)
	hdr.Set("Accept", "application/json")
	hdr.Set("Content-Type", "application/json")
	hdr.Set("X-Request-ID", requestID)
	if c.cfg.APIToken != "" {
		hdr.Set("Authorization", "Bearer "+c.cfg.APIToken)
	}

	reqCtx := colly.NewContext()
	reqCtx.Put(ctxEndpoint, endpoint)

	done := make(chan error, 1)
	go func() {
		done <- c.collector.Request(method, c.baseURL+path, body, reqCtx, hdr)
	}()

	var err error
	select {
	case <-ctx.Done():
		return c.fail(endpoint, requestID, classifyError(ctx.Err(), 0))
	case err = <-done:
	}

	resp, _ := reqCtx.GetAny(ctxResponse).(*colly.Response)
	status := 0
	if resp != nil {
		status = resp.StatusCode
	}

	if err != nil {
		return c.fail(endpoint, requestID, classifyError(fmt.Errorf("%s %s: %w", method, endpoint, err), status))
	}
	if resp == nil {
		return c.fail(endpoint, requestID, ErrConnection{Err: fmt.Errorf("%s: no response", endpoint)})
	}
	if status >= http.StatusBadRequest {
		apiErr := &APIError{Endpoint: endpoint, Status: status, Detail: parseDetail(resp.Body)}
		return c.fail(endpoint, requestID, classifyError(apiErr, status))
	}

	if out == nil || len(bytes.TrimSpace(resp.Body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.Body, out); err != nil {
		return c.fail(endpoint, requestID, ErrDecode{Err: fmt.Errorf("%s: %w", endpoint, err)})
	}
	return nil
}

func (c *Client) fail(endpoint, requestID string, err error) error {
	category := ErrorTypeLabel(err)
	c.Metrics.IncError(endpoint, category)
	slog.Debug("admin request failed",
		slog.String("endpoint", endpoint),
		slog.String("request_id", requestID),
		slog.String("category", category),
		slog.Any("error", err),
	)
	return err
}
