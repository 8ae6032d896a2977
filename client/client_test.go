package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"testing"

	"github.com/aluiziolira/go-admin-console/config"
	"github.com/aluiziolira/go-admin-console/models"
	"github.com/jarcoal/httpmock"
)

const testBase = "http://admin.test"

func newTestClient(t *testing.T) (*Client, *httpmock.MockTransport) {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.BaseURL = testBase
	c, err := New(cfg)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	transport := httpmock.NewMockTransport()
	c.WithTransport(transport)
	return c, transport
}

func TestAvailableTargets(t *testing.T) {
	c, transport := newTestClient(t)
	transport.RegisterResponder("GET", testBase+"/api/admin/available",
		httpmock.NewStringResponder(200, `{"spiders":["bumeran","zonajobs"],"countries":["AR","CL"]}`))

	targets, err := c.AvailableTargets(context.Background())
	if err != nil {
		t.Fatalf("available targets: %v", err)
	}
	if len(targets.Spiders) != 2 || targets.Spiders[0] != "bumeran" {
		t.Fatalf("spiders=%v", targets.Spiders)
	}
	if !targets.HasCountry("CL") || targets.HasCountry("MX") {
		t.Fatalf("countries=%v", targets.Countries)
	}
}

func TestStartScrapingSendsPayloadAndHeaders(t *testing.T) {
	c, transport := newTestClient(t)
	c.cfg.APIToken = "secret"

	var got models.StartRequest
	var requestID, auth, contentType string
	transport.RegisterResponder("POST", testBase+"/api/admin/scraping/start",
		func(req *http.Request) (*http.Response, error) {
			requestID = req.Header.Get("X-Request-ID")
			auth = req.Header.Get("Authorization")
			contentType = req.Header.Get("Content-Type")
			body, err := io.ReadAll(req.Body)
			if err != nil {
				return nil, err
			}
			if err := json.Unmarshal(body, &got); err != nil {
				return httpmock.NewStringResponse(400, `{"detail":"bad json"}`), nil
			}
			return httpmock.NewStringResponse(200, `{"task_ids":["t1","t2"],"status":"PENDING","message":"2 scraping task(s) enqueued"}`), nil
		})

	resp, err := c.StartScraping(context.Background(), &models.StartRequest{
		Spiders:   []string{"bumeran"},
		Countries: []string{"AR", "CL"},
		MaxJobs:   100,
		MaxPages:  10,
	})
	if err != nil {
		t.Fatalf("start scraping: %v", err)
	}
	if len(resp.IDs()) != 2 || resp.Status != models.TaskPending {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if got.MaxJobs != 100 || got.MaxPages != 10 || len(got.Countries) != 2 {
		t.Fatalf("payload=%+v", got)
	}
	if requestID == "" {
		t.Fatalf("expected X-Request-ID header")
	}
	if auth != "Bearer secret" {
		t.Fatalf("authorization=%q", auth)
	}
	if contentType != "application/json" {
		t.Fatalf("content-type=%q", contentType)
	}
}

func TestScrapingStatusNormalizesEmptyList(t *testing.T) {
	c, transport := newTestClient(t)
	transport.RegisterResponder("GET", testBase+"/api/admin/scraping/status",
		httpmock.NewStringResponder(200, `{"active_tasks":null,"total_active":0,"system_status":"operational"}`))

	snap, err := c.ScrapingStatus(context.Background())
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if snap.ActiveTasks == nil || len(snap.ActiveTasks) != 0 {
		t.Fatalf("active tasks should be an empty, non-nil slice: %#v", snap.ActiveTasks)
	}
	if !snap.SystemStatus.Operational() {
		t.Fatalf("system status=%q", snap.SystemStatus)
	}
}

func TestHTTPStatusClassification(t *testing.T) {
	tests := []struct {
		status     int
		body       string
		wantLabel  string
		wantDetail string
	}{
		{status: http.StatusNotFound, body: `{"detail":"Task zz not found"}`, wantLabel: "not_found", wantDetail: "Task zz not found"},
		{status: http.StatusForbidden, body: `{"error":"nope"}`, wantLabel: "forbidden", wantDetail: "nope"},
		{status: http.StatusUnauthorized, body: ``, wantLabel: "forbidden"},
		{status: http.StatusTooManyRequests, body: `slow down`, wantLabel: "rate_limited", wantDetail: "slow down"},
		{status: http.StatusUnprocessableEntity, body: `{"detail":[{"loc":["body","max_jobs"],"msg":"too large"}]}`, wantLabel: "rejected"},
		{status: http.StatusServiceUnavailable, body: `{"detail":"Celery workers not available"}`, wantLabel: "server", wantDetail: "Celery workers not available"},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("status_%d", tt.status), func(t *testing.T) {
			c, transport := newTestClient(t)
			transport.RegisterResponder("POST", testBase+"/api/admin/scraping/stop/zz",
				httpmock.NewStringResponder(tt.status, tt.body))

			_, err := c.StopScraping(context.Background(), "zz")
			if err == nil {
				t.Fatalf("expected error for status %d", tt.status)
			}
			if got := ErrorTypeLabel(err); got != tt.wantLabel {
				t.Fatalf("label=%q, want %q (err=%v)", got, tt.wantLabel, err)
			}
			var apiErr *APIError
			if !errors.As(err, &apiErr) {
				t.Fatalf("expected *APIError in chain, got %v", err)
			}
			if apiErr.Status != tt.status {
				t.Fatalf("status=%d, want %d", apiErr.Status, tt.status)
			}
			if tt.wantDetail != "" && Detail(err) != tt.wantDetail {
				t.Fatalf("detail=%q, want %q", Detail(err), tt.wantDetail)
			}
		})
	}
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		statusCode int
		expected   string
	}{
		{name: "nil", err: nil, statusCode: 0, expected: "unknown"},
		{name: "context timeout", err: context.DeadlineExceeded, statusCode: 0, expected: "timeout"},
		{name: "net timeout", err: &net.DNSError{IsTimeout: true}, statusCode: 0, expected: "timeout"},
		{name: "connection", err: &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}, statusCode: 0, expected: "connection"},
		{name: "canceled", err: context.Canceled, statusCode: 0, expected: "canceled"},
		{name: "bad request", err: nil, statusCode: http.StatusBadRequest, expected: "rejected"},
		{name: "bad gateway", err: nil, statusCode: http.StatusBadGateway, expected: "server"},
		{name: "other", err: errors.New("some other error"), statusCode: 0, expected: "other"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ErrorTypeLabel(classifyError(tt.err, tt.statusCode)); got != tt.expected {
				t.Fatalf("classifyError(%v, %d) = %q, want %q", tt.err, tt.statusCode, got, tt.expected)
			}
		})
	}
}

func TestConnectionFailure(t *testing.T) {
	c, transport := newTestClient(t)
	transport.RegisterResponder("GET", testBase+"/api/admin/llm/status",
		httpmock.NewErrorResponder(&net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}))

	_, err := c.LLMStatus(context.Background())
	if got := ErrorTypeLabel(err); got != "connection" {
		t.Fatalf("label=%q, want connection (err=%v)", got, err)
	}
}

func TestDecodeFailure(t *testing.T) {
	c, transport := newTestClient(t)
	transport.RegisterResponder("GET", testBase+"/api/admin/llm/status",
		httpmock.NewStringResponder(200, `<html>gateway</html>`))

	_, err := c.LLMStatus(context.Background())
	if got := ErrorTypeLabel(err); got != "decode" {
		t.Fatalf("label=%q, want decode (err=%v)", got, err)
	}
}

func TestCanceledContextSendsNothing(t *testing.T) {
	c, transport := newTestClient(t)
	transport.RegisterResponder("GET", testBase+"/api/admin/scraping/status",
		httpmock.NewStringResponder(200, `{"active_tasks":[],"total_active":0,"system_status":"operational"}`))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := c.ScrapingStatus(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if n := transport.GetTotalCallCount(); n != 0 {
		t.Fatalf("calls=%d, want 0", n)
	}
}

func TestTaskLogsPassesTail(t *testing.T) {
	c, transport := newTestClient(t)
	transport.RegisterResponderWithQuery("GET", testBase+"/api/admin/scraping/logs/ab12", "tail=50",
		httpmock.NewStringResponder(200, `{"task_id":"ab12","log_file":"x.log","lines":400,"tail":50,"content":"done\n"}`))

	logs, err := c.TaskLogs(context.Background(), "ab12", 50)
	if err != nil {
		t.Fatalf("task logs: %v", err)
	}
	if logs.Tail != 50 || logs.Content != "done\n" {
		t.Fatalf("logs=%+v", logs)
	}
}

func TestRunPipelineAndDownload(t *testing.T) {
	c, transport := newTestClient(t)
	transport.RegisterResponder("POST", testBase+"/api/admin/llm/download-gemma",
		httpmock.NewStringResponder(200, `{"status":"downloading","message":"download started","model_name":"gemma-3-4b-instruct","size_gb":2.8}`))
	transport.RegisterResponder("POST", testBase+"/api/admin/llm/run-pipeline-b",
		httpmock.NewStringResponder(200, `{"status":"started","task_id":"celery-1","message":"Pipeline B started","limit":25,"model":"gemma-3-4b-instruct","country":null}`))

	ack, err := c.DownloadModel(context.Background())
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	if ack.Status != models.DownloadStarted || ack.SizeGB != 2.8 {
		t.Fatalf("ack=%+v", ack)
	}

	task, err := c.RunPipeline(context.Background(), &models.PipelineRequest{Limit: 25, Model: "gemma-3-4b-instruct"})
	if err != nil {
		t.Fatalf("run pipeline: %v", err)
	}
	if task.TaskID != "celery-1" || task.Limit != 25 || task.Country != "" {
		t.Fatalf("task=%+v", task)
	}
}

func TestMetricsCountRequestsAndErrors(t *testing.T) {
	c, transport := newTestClient(t)
	transport.RegisterResponder("DELETE", testBase+"/api/admin/scraping/tasks/ab12",
		httpmock.NewStringResponder(400, `{"detail":"Cannot delete running task. Stop it first."}`))

	_, err := c.DeleteTask(context.Background(), "ab12")
	if Detail(err) != "Cannot delete running task. Stop it first." {
		t.Fatalf("detail=%q", Detail(err))
	}

	families, err := c.Metrics.Registry.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	seen := map[string]bool{}
	for _, f := range families {
		seen[f.GetName()] = true
	}
	for _, name := range []string{"console_requests_total", "console_errors_total"} {
		if !seen[name] {
			t.Fatalf("metric %s not recorded", name)
		}
	}
}
