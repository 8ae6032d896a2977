package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/aluiziolira/go-admin-console/client"
	"github.com/aluiziolira/go-admin-console/config"
	"github.com/aluiziolira/go-admin-console/console"
	"github.com/aluiziolira/go-admin-console/journal"
	"github.com/aluiziolira/go-admin-console/models"
	"github.com/aluiziolira/go-admin-console/recorder"
	"github.com/jarcoal/httpmock"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const upstream = "http://admin.test/api/admin"

const emptyStatus = `{"active_tasks":[],"total_active":0,"system_status":"operational"}`

type testApp struct {
	*app
	out       *bytes.Buffer
	transport *httpmock.MockTransport
	parent    *cobra.Command
}

// newTestApp builds a ready app whose client talks to a mock transport.
// input feeds confirmation prompts.
func newTestApp(t *testing.T, input string) *testApp {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.BaseURL = "http://admin.test"

	c, err := client.New(cfg)
	require.NoError(t, err)
	transport := httpmock.NewMockTransport()
	c.WithTransport(transport)

	j, err := journal.Open(":memory:")
	require.NoError(t, err)

	out := &bytes.Buffer{}
	a := newApp(bufio.NewReader(strings.NewReader(input)), out)
	a.prompter = &terminalPrompter{in: a.in, out: out}

	con, err := console.New(console.Options{
		Config:   cfg,
		API:      c,
		Prompter: a.prompter,
		Journal:  j,
		Metrics:  c.Metrics,
	})
	require.NoError(t, err)

	a.cfg = cfg
	a.client = c
	a.console = con
	a.journal = j
	a.ready = true
	t.Cleanup(a.close)

	parent := &cobra.Command{}
	parent.SetContext(context.Background())

	return &testApp{app: a, out: out, transport: transport, parent: parent}
}

func (ta *testApp) run(t *testing.T, line string) {
	t.Helper()
	if quit := runLine(ta.app, ta.parent, line); quit {
		t.Fatalf("line %q ended the shell", line)
	}
}

func captureStart(ta *testApp) *map[string]any {
	payload := map[string]any{}
	ta.transport.RegisterResponder("POST", upstream+"/scraping/start",
		func(req *http.Request) (*http.Response, error) {
			if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
				return nil, err
			}
			return httpmock.NewStringResponse(200, `{"task_ids":["t1"],"status":"PENDING","message":"ok"}`), nil
		})
	ta.transport.RegisterResponder("GET", upstream+"/scraping/status",
		httpmock.NewStringResponder(200, emptyStatus))
	return &payload
}

func TestShellFormPersistsAcrossLines(t *testing.T) {
	ta := newTestApp(t, "")
	payload := captureStart(ta)

	ta.run(t, "form spider Bumeran")
	ta.run(t, "form country ar uy")
	ta.run(t, "form country uy")
	ta.run(t, "form pages 3")
	ta.run(t, "form submit")

	assert.Equal(t, []any{"bumeran"}, (*payload)["spiders"])
	assert.Equal(t, []any{"AR"}, (*payload)["countries"])
	assert.Equal(t, float64(100), (*payload)["max_jobs"])
	assert.Equal(t, float64(3), (*payload)["max_pages"])
	assert.Contains(t, ta.out.String(), "Scraping started (t1)")

	// Submitting resets the form.
	assert.Empty(t, ta.console.Form().Spiders)
}

func TestStartFlagsFallBackToConfig(t *testing.T) {
	ta := newTestApp(t, "")
	payload := captureStart(ta)

	ta.run(t, "start -s bumeran -c ar,cl --max-jobs 7")

	assert.Equal(t, []any{"AR", "CL"}, (*payload)["countries"])
	assert.Equal(t, float64(7), (*payload)["max_jobs"])
	assert.Equal(t, float64(10), (*payload)["max_pages"])
}

func TestStartWithoutSelectionSendsNothing(t *testing.T) {
	ta := newTestApp(t, "")

	ta.run(t, "start -c ar")

	assert.Zero(t, ta.transport.GetTotalCallCount())
	assert.Contains(t, ta.out.String(), "Select at least one spider")
	assert.Contains(t, ta.out.String(), "error:")
}

func TestStopReadsConfirmation(t *testing.T) {
	ta := newTestApp(t, "n\ny\n")
	ta.transport.RegisterResponder("POST", upstream+"/scraping/stop/ab12",
		httpmock.NewStringResponder(200, `{"message":"Task ab12 stopped","task_id":"ab12"}`))
	ta.transport.RegisterResponder("GET", upstream+"/scraping/status",
		httpmock.NewStringResponder(200, emptyStatus))

	ta.run(t, "stop ab12")
	assert.Zero(t, ta.transport.GetCallCountInfo()["POST "+upstream+"/scraping/stop/ab12"])
	assert.NotContains(t, ta.out.String(), "error:")

	ta.run(t, "stop ab12")
	assert.Equal(t, 1, ta.transport.GetCallCountInfo()["POST "+upstream+"/scraping/stop/ab12"])
	assert.Contains(t, ta.out.String(), "Task stopped")

	ta.out.Reset()
	ta.run(t, "history")
	assert.Contains(t, ta.out.String(), "canceled")
	assert.Contains(t, ta.out.String(), "ok")
}

func TestYesFlagSkipsPromptForOneLine(t *testing.T) {
	ta := newTestApp(t, "")
	ta.transport.RegisterResponder("DELETE", upstream+"/scraping/tasks/ab12",
		httpmock.NewStringResponder(200, `{"message":"Task ab12 deleted"}`))
	ta.transport.RegisterResponder("GET", upstream+"/scraping/status",
		httpmock.NewStringResponder(200, emptyStatus))

	ta.run(t, "delete ab12 --yes")
	assert.Contains(t, ta.out.String(), "Task ab12 deleted")

	// The next line starts without --yes and reads the (empty) input.
	ta.run(t, "delete ab12")
	assert.False(t, ta.prompter.assumeYes)
	assert.Equal(t, 1, ta.transport.GetCallCountInfo()["DELETE "+upstream+"/scraping/tasks/ab12"])
}

func TestShellExitAndBlankLines(t *testing.T) {
	ta := newTestApp(t, "")

	assert.False(t, runLine(ta.app, ta.parent, "   "))
	assert.False(t, runLine(ta.app, ta.parent, "# comment"))
	assert.False(t, runLine(ta.app, ta.parent, `form spider "unterminated`))
	assert.Contains(t, ta.out.String(), "error:")
	assert.True(t, runLine(ta.app, ta.parent, "exit"))
	assert.True(t, runLine(ta.app, ta.parent, "QUIT"))
}

func TestWatcherRecordsTransitionsOnce(t *testing.T) {
	ta := newTestApp(t, "")

	path := filepath.Join(t.TempDir(), "transitions.csv")
	writer, err := recorder.NewWriter("csv", path)
	require.NoError(t, err)
	rec := recorder.New(writer, 1)
	rec.Start(1)

	snapshot := func(status models.TaskStatus) *models.StatusSnapshot {
		return &models.StatusSnapshot{
			ActiveTasks:  []models.ScrapingTask{{TaskID: "ab12", Status: status, Spiders: []string{"bumeran"}}},
			TotalActive:  1,
			SystemStatus: models.SystemOperational,
		}
	}

	w := newWatcher(ta.app, rec)
	now := time.Now()
	w.observe(console.State{Scraping: snapshot(models.TaskRunning), ScrapingSeq: 1, ScrapingAt: now, UpdatedAt: now})
	// Same sequence: nothing new to print or record.
	w.observe(console.State{Scraping: snapshot(models.TaskRunning), ScrapingSeq: 1, ScrapingAt: now, UpdatedAt: now})
	w.observe(console.State{Scraping: snapshot(models.TaskRunning), ScrapingSeq: 2, ScrapingAt: now, UpdatedAt: now})
	w.observe(console.State{Scraping: snapshot(models.TaskCompleted), ScrapingSeq: 3, ScrapingAt: now, UpdatedAt: now})

	require.NoError(t, rec.Close())
	require.NoError(t, writer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 3, string(data))
	assert.Contains(t, lines[1], "running")
	assert.Contains(t, lines[2], "completed")

	assert.Equal(t, 3, strings.Count(ta.out.String(), "Scraping status: operational"))
}

func TestWatcherPrintsErrorBanner(t *testing.T) {
	ta := newTestApp(t, "")
	w := newWatcher(ta.app, nil)

	w.observe(console.State{ScrapingErr: "Cannot connect to admin API", UpdatedAt: time.Now()})
	assert.Contains(t, ta.out.String(), "Status error: Cannot connect to admin API")
}

const runningStatus = `{"active_tasks":[{"task_id":"ab12","status":"running","spiders":["bumeran"],"countries":["AR"]}],"total_active":1,"system_status":"operational"}`

func registerBackend(ta *testApp) {
	ta.transport.RegisterResponder("GET", upstream+"/available",
		httpmock.NewStringResponder(200, `{"spiders":["bumeran"],"countries":["AR"]}`))
	ta.transport.RegisterResponder("GET", upstream+"/scraping/status",
		httpmock.NewStringResponder(200, runningStatus))
	ta.transport.RegisterResponder("GET", upstream+"/llm/status",
		httpmock.NewStringResponder(200, `{"model_name":"gemma-3-4b-instruct","downloaded":false,"size_gb":2.8,"ready":false}`))
}

func TestShellFetchesTargetsOnce(t *testing.T) {
	ta := newTestApp(t, "exit\n")
	registerBackend(ta)

	cmd := ShellCmd(ta.app)
	cmd.SetContext(context.Background())
	require.NoError(t, cmd.RunE(cmd, nil))

	assert.Equal(t, 1, ta.transport.GetCallCountInfo()["GET "+upstream+"/available"])
}

func TestWatchRecordsToNewFile(t *testing.T) {
	tests := []struct {
		format string
		file   string
		outs   []string
	}{
		{format: "csv", file: "obs.csv", outs: []string{"obs.csv"}},
		{format: "json", file: "obs.jsonl", outs: []string{"obs.jsonl"}},
		{format: "dual", file: "obs.csv", outs: []string{"obs.csv", "obs.jsonl"}},
	}

	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			ta := newTestApp(t, "")
			registerBackend(ta)
			dir := t.TempDir()

			ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
			defer cancel()
			ta.parent.SetContext(ctx)

			ta.run(t, "watch --record "+filepath.Join(dir, tt.file)+" --format "+tt.format)

			assert.NotContains(t, ta.out.String(), "error:")
			for _, name := range tt.outs {
				data, err := os.ReadFile(filepath.Join(dir, name))
				require.NoError(t, err, name)
				assert.Contains(t, string(data), "ab12", name)
			}
		})
	}
}

func TestWatchLeavesNoFileWhenMountFails(t *testing.T) {
	ta := newTestApp(t, "")
	require.NoError(t, ta.console.Close())

	path := filepath.Join(t.TempDir(), "obs.csv")
	ta.run(t, "watch --record "+path)

	assert.Contains(t, ta.out.String(), "error:")
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}
