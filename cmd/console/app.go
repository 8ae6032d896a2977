package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/aluiziolira/go-admin-console/client"
	"github.com/aluiziolira/go-admin-console/config"
	"github.com/aluiziolira/go-admin-console/console"
	"github.com/aluiziolira/go-admin-console/journal"
)

// app carries everything the commands share. A shell reuses one app for
// every line it runs.
type app struct {
	in  *bufio.Reader
	out io.Writer

	// flag targets
	configPath string
	apiURL     string
	verbose    bool
	assumeYes  bool

	baseAssumeYes bool
	ready         bool

	cfg      *config.Config
	client   *client.Client
	console  *console.Console
	journal  *journal.Journal
	prompter *terminalPrompter
}

func newApp(in *bufio.Reader, out io.Writer) *app {
	return &app{in: in, out: out}
}

// setup loads configuration and builds the console once. Later calls only
// refresh the per-invocation --yes flag.
func (a *app) setup() error {
	if a.ready {
		a.prompter.assumeYes = a.baseAssumeYes || a.assumeYes
		return nil
	}

	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.apiURL != "" {
		cfg.BaseURL = a.apiURL
	}
	if a.verbose {
		cfg.Verbose = true
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger, level := newLogger(cfg.Verbose)
	slog.SetDefault(logger)
	slog.SetLogLoggerLevel(level.Level())

	c, err := client.New(cfg)
	if err != nil {
		return fmt.Errorf("initialising client: %w", err)
	}

	opts := console.Options{
		Config:  cfg,
		API:     c,
		Metrics: c.Metrics,
	}
	if cfg.JournalPath != "" {
		j, err := journal.Open(cfg.JournalPath)
		if err != nil {
			slog.Warn("journal disabled", slog.String("path", cfg.JournalPath), slog.Any("error", err))
		} else {
			a.journal = j
			opts.Journal = j
		}
	}

	a.baseAssumeYes = a.assumeYes
	a.prompter = &terminalPrompter{in: a.in, out: a.out, assumeYes: a.assumeYes}
	opts.Prompter = a.prompter

	con, err := console.New(opts)
	if err != nil {
		a.closeJournal()
		return err
	}

	a.cfg = cfg
	a.client = c
	a.console = con
	a.ready = true
	slog.Debug("console ready", slog.String("api_url", cfg.BaseURL))
	return nil
}

// mount starts polling unless it is already running.
func (a *app) mount(ctx context.Context) error {
	if err := a.console.Mount(ctx); err != nil && !errors.Is(err, console.ErrMounted) {
		return err
	}
	return nil
}

func (a *app) close() {
	if a.console != nil {
		_ = a.console.Close()
	}
	a.closeJournal()
}

func (a *app) closeJournal() {
	if a.journal == nil {
		return
	}
	if err := a.journal.Close(); err != nil {
		slog.Warn("close journal", slog.Any("error", err))
	}
	a.journal = nil
}

// terminalPrompter asks on the terminal. With assumeYes every confirmation
// is accepted without reading input.
type terminalPrompter struct {
	in        *bufio.Reader
	out       io.Writer
	assumeYes bool
}

func (p *terminalPrompter) Confirm(message string) bool {
	if p.assumeYes {
		fmt.Fprintf(p.out, "%s [y/N]: y\n", message)
		return true
	}
	fmt.Fprintf(p.out, "%s [y/N]: ", message)
	line, err := p.in.ReadString('\n')
	if err != nil && line == "" {
		fmt.Fprintln(p.out)
		return false
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	default:
		return false
	}
}

func (p *terminalPrompter) Alert(message string) {
	fmt.Fprintln(p.out, message)
}
