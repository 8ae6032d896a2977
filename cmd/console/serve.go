package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/aluiziolira/go-admin-console/api"
	"github.com/aluiziolira/go-admin-console/console"
	"github.com/aluiziolira/go-admin-console/recorder"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 5 * time.Second

func ServeCmd(a *app) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the console over HTTP while polling the backend",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if addr == "" {
				addr = a.cfg.ListenAddr
			}
			if !a.cfg.Verbose {
				gin.SetMode(gin.ReleaseMode)
			}

			if err := a.mount(ctx); err != nil {
				return err
			}

			var history api.History
			if a.journal != nil {
				history = a.journal
			}
			router := api.SetupRouter(a.console, history, a.client.Metrics.Registry, a.cfg)

			srv := &http.Server{
				Addr:              addr,
				Handler:           router,
				ReadHeaderTimeout: 10 * time.Second,
			}
			slog.Info("console listening", slog.String("addr", addr))
			return runServer(ctx, srv)
		},
	}
	cmd.Flags().StringVar(&addr, "listen", "", "Listen address (default from config)")
	return cmd
}

func WatchCmd(a *app) *cobra.Command {
	var recordPath, format string
	var batchSize int
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Poll the backend and print every status change",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			w := newWatcher(a, nil)
			unsubscribe := a.console.Subscribe(w.observe)
			defer unsubscribe()

			if err := a.mount(ctx); err != nil {
				return err
			}

			if recordPath != "" {
				stop, err := startRecording(w, recordPath, format, batchSize)
				if err != nil {
					return err
				}
				defer func() {
					unsubscribe()
					stop()
				}()
			}

			if a.cfg.MetricsAddr != "" {
				mux := http.NewServeMux()
				mux.Handle("/metrics", promhttp.HandlerFor(a.client.Metrics.Registry, promhttp.HandlerOpts{}))
				metricsSrv := &http.Server{Addr: a.cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
				go func() {
					if err := runServer(ctx, metricsSrv); err != nil {
						slog.Error("metrics server failed", slog.Any("error", err))
					}
				}()
				slog.Info("metrics server listening", slog.String("addr", a.cfg.MetricsAddr))
			}

			<-ctx.Done()
			return nil
		},
	}
	cmd.Flags().StringVar(&recordPath, "record", "", "Append task status transitions to this file")
	cmd.Flags().StringVar(&format, "format", "csv", "Record format: csv, json or dual")
	cmd.Flags().IntVar(&batchSize, "batch-size", 1, "Observations per write")
	return cmd
}

// startRecording opens the output file and attaches a recorder to w. The
// returned func drains the recorder, checks the file and closes it.
func startRecording(w *watcher, path, format string, batchSize int) (func(), error) {
	writer, err := recorder.NewWriter(format, path)
	if err != nil {
		return nil, fmt.Errorf("failed to create writer: %w", err)
	}

	rec := recorder.New(writer, batchSize)
	rec.Start(1)
	rec.StartStatsReporting(30 * time.Second)
	w.attach(rec)

	return func() {
		w.attach(nil)
		if err := rec.Close(); err != nil {
			slog.Error("recorder close failed", slog.Any("error", err))
		}
		s := rec.Stats()
		if s.Recorded > 0 {
			if err := writer.Validate(); err != nil {
				slog.Error("output validation failed", slog.String("file", path), slog.Any("error", err))
			}
		}
		if err := writer.Close(); err != nil {
			slog.Error("failed to close writer", slog.Any("error", err))
		}
		slog.Info("recording finished",
			slog.String("file", path),
			slog.Int64("recorded", s.Recorded),
		)
	}, nil
}

// watcher prints a state whenever a poll lands and feeds newly applied
// scraping snapshots to the recorder.
type watcher struct {
	a   *app
	rec *recorder.Recorder

	mu          sync.Mutex
	scrapingSeq uint64
	llmSeq      uint64
	scrapingErr string
	llmErr      string
	last        *console.State
}

func newWatcher(a *app, rec *recorder.Recorder) *watcher {
	return &watcher{a: a, rec: rec}
}

// attach swaps the recorder. A newly attached recorder starts from the last
// applied scraping snapshot so polls that landed before it are not lost.
func (w *watcher) attach(rec *recorder.Recorder) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.rec = rec
	if rec == nil || w.last == nil || w.last.Scraping == nil {
		return
	}
	if err := rec.ObserveSnapshot(w.last.ScrapingSeq, w.last.ScrapingAt, w.last.Scraping); err != nil {
		slog.Warn("record snapshot", slog.Any("error", err))
	}
}

func (w *watcher) observe(s console.State) {
	w.mu.Lock()
	defer w.mu.Unlock()

	scraping := s.ScrapingSeq > w.scrapingSeq
	llm := s.LLMSeq > w.llmSeq
	banners := s.ScrapingErr != w.scrapingErr || s.LLMErr != w.llmErr
	if !scraping && !llm && !banners {
		return
	}
	w.scrapingSeq = max(w.scrapingSeq, s.ScrapingSeq)
	w.llmSeq = max(w.llmSeq, s.LLMSeq)
	w.scrapingErr, w.llmErr = s.ScrapingErr, s.LLMErr
	if scraping {
		w.last = &s
	}

	if scraping && w.rec != nil {
		if err := w.rec.ObserveSnapshot(s.ScrapingSeq, s.ScrapingAt, s.Scraping); err != nil {
			slog.Warn("record snapshot", slog.Any("error", err))
		}
	}

	fmt.Fprintf(w.a.out, "\n[%s]\n", s.UpdatedAt.Local().Format(time.TimeOnly))
	renderStatus(w.a.out, s)
	renderLLM(w.a.out, s)
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown %s: %w", srv.Addr, err)
	}
	return nil
}
