package main

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/aluiziolira/go-admin-console/console"
	"github.com/spf13/cobra"
)

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "console",
		Short:         "Operator console for the scraping admin API",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup()
		},
	}

	root.PersistentFlags().StringVar(&a.configPath, "config", "", "Path to a config file (yaml, json or env)")
	root.PersistentFlags().StringVar(&a.apiURL, "api-url", "", "Admin API base URL (overrides config)")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "Enable debug logging")
	root.PersistentFlags().BoolVarP(&a.assumeYes, "yes", "y", false, "Answer yes to every confirmation")

	root.AddCommand(
		TargetsCmd(a),
		StatusCmd(a),
		StartCmd(a),
		StopCmd(a),
		TaskCmd(a),
		LogsCmd(a),
		DeleteCmd(a),
		FormCmd(a),
		LLMCmd(a),
		HistoryCmd(a),
		WatchCmd(a),
		ServeCmd(a),
		ShellCmd(a),
	)
	return root
}

// declined turns an operator's "no" into a quiet success.
func declined(err error) error {
	if errors.Is(err, console.ErrCanceled) {
		return nil
	}
	return err
}

func TargetsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "targets",
		Short: "List the spiders and countries the backend accepts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			targets, err := a.console.ListAvailableTargets(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to load targets: %w", err)
			}
			renderTargets(a.out, targets)
			return nil
		},
	}
}

func StatusCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show active scraping tasks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			// The error is already part of the state banner.
			_, _ = a.console.RefreshStatus(cmd.Context())
			state := a.console.State()
			renderStatus(a.out, state)
			if recent, _ := cmd.Flags().GetBool("recent"); recent {
				renderRecent(a.out, a.console.Recent())
			}
			if state.ScrapingErr != "" && state.Scraping == nil {
				return errors.New(state.ScrapingErr)
			}
			return nil
		},
	}
	cmd.Flags().Bool("recent", false, "Also list recently seen tasks")
	return cmd
}

func StartCmd(a *app) *cobra.Command {
	var spiders, countries []string
	var maxJobs, maxPages int

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start scraping for the selected spiders and countries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("max-jobs") {
				maxJobs = a.cfg.DefaultMaxJobs
			}
			if !cmd.Flags().Changed("max-pages") {
				maxPages = a.cfg.DefaultMaxPages
			}
			_, err := a.console.StartTask(cmd.Context(), spiders, countries, maxJobs, maxPages)
			return err
		},
	}
	cmd.Flags().StringSliceVarP(&spiders, "spider", "s", nil, "Spider to run (repeatable)")
	cmd.Flags().StringSliceVarP(&countries, "country", "c", nil, "Country code to scrape (repeatable)")
	cmd.Flags().IntVar(&maxJobs, "max-jobs", 0, "Maximum jobs per spider (default from config)")
	cmd.Flags().IntVar(&maxPages, "max-pages", 0, "Maximum pages per spider (default from config)")
	return cmd
}

func StopCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "stop TASK_ID",
		Short: "Stop a running task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := a.console.StopTask(cmd.Context(), args[0])
			return declined(err)
		},
	}
}

func TaskCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "task TASK_ID",
		Short: "Show the progress of one task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			detail, err := a.console.TaskDetail(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("failed to load task: %w", err)
			}
			renderDetail(a.out, detail)
			return nil
		},
	}
}

func LogsCmd(a *app) *cobra.Command {
	var tail int
	cmd := &cobra.Command{
		Use:   "logs TASK_ID",
		Short: "Print the tail of a task's log",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logs, err := a.console.TaskLogs(cmd.Context(), args[0], tail)
			if err != nil {
				return fmt.Errorf("failed to load logs: %w", err)
			}
			renderLogs(a.out, logs)
			return nil
		},
	}
	cmd.Flags().IntVarP(&tail, "tail", "n", 0, "Number of lines to show (default 100)")
	return cmd
}

func DeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete TASK_ID",
		Short: "Remove a finished task from the backend",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := a.console.DeleteTask(cmd.Context(), args[0])
			return declined(err)
		},
	}
}

// FormCmd edits the pending start request. The form only outlives a single
// invocation inside the shell.
func FormCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "form",
		Short: "Edit and submit the pending start request",
		RunE: func(cmd *cobra.Command, args []string) error {
			renderForm(a.out, a.console.Form())
			return nil
		},
	}

	toggle := func(use, short string, fn func(string) (bool, error)) *cobra.Command {
		return &cobra.Command{
			Use:   use,
			Short: short,
			Args:  cobra.MinimumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				for _, v := range args {
					selected, err := fn(v)
					if err != nil {
						return err
					}
					state := "removed"
					if selected {
						state = "selected"
					}
					fmt.Fprintf(a.out, "%s %s\n", v, state)
				}
				return nil
			},
		}
	}

	limit := func(use, short string, fn func(int)) *cobra.Command {
		return &cobra.Command{
			Use:   use,
			Short: short,
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				n, err := strconv.Atoi(args[0])
				if err != nil {
					return fmt.Errorf("%q is not a number", args[0])
				}
				fn(n)
				return nil
			},
		}
	}

	cmd.AddCommand(
		// a.console only exists once setup has run, so bind late.
		toggle("spider NAME...", "Toggle spiders in the form", func(v string) (bool, error) {
			return a.console.ToggleSpider(v)
		}),
		toggle("country CODE...", "Toggle countries in the form", func(v string) (bool, error) {
			return a.console.ToggleCountry(v)
		}),
		limit("jobs N", "Set the max jobs per spider", func(n int) { a.console.SetMaxJobs(n) }),
		limit("pages N", "Set the max pages per spider", func(n int) { a.console.SetMaxPages(n) }),
		&cobra.Command{
			Use:   "reset",
			Short: "Restore the form defaults",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				a.console.ResetForm()
				renderForm(a.out, a.console.Form())
				return nil
			},
		},
		&cobra.Command{
			Use:   "submit",
			Short: "Start scraping with the form",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				_, err := a.console.SubmitForm(cmd.Context())
				return err
			},
		},
	)
	return cmd
}

func LLMCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "llm",
		Short: "Manage the extraction model and pipeline",
	}

	status := &cobra.Command{
		Use:   "status",
		Short: "Show whether the model is downloaded and ready",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, _ = a.console.CheckLLMStatus(cmd.Context())
			state := a.console.State()
			renderLLM(a.out, state)
			if state.LLM == nil && state.LLMErr != "" {
				return errors.New(state.LLMErr)
			}
			return nil
		},
	}

	download := &cobra.Command{
		Use:   "download",
		Short: "Download the extraction model",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			// Confirmation quotes the model size when it is known.
			_, _ = a.console.CheckLLMStatus(cmd.Context())
			_, err := a.console.DownloadModel(cmd.Context())
			return declined(err)
		},
	}

	var limit int
	var country, model string
	run := &cobra.Command{
		Use:   "run",
		Short: "Run the extraction pipeline over scraped jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.console.State().LLM == nil {
				_, _ = a.console.CheckLLMStatus(cmd.Context())
			}
			task, err := a.console.RunExtractionPipeline(cmd.Context(), limit, country, model)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Pipeline task %s (%s)\n", task.TaskID, task.Status)
			return nil
		},
	}
	run.Flags().IntVarP(&limit, "limit", "l", 100, "Number of jobs to process")
	run.Flags().StringVarP(&country, "country", "c", "", "Only process jobs from this country")
	run.Flags().StringVarP(&model, "model", "m", "", "Model to use (default from config)")

	cmd.AddCommand(status, download, run)
	return cmd
}

func HistoryCmd(a *app) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent operator actions from the journal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.journal == nil {
				return errors.New("journal is disabled")
			}
			entries, err := a.journal.Recent(cmd.Context(), limit)
			if err != nil {
				return fmt.Errorf("failed to read journal: %w", err)
			}
			renderHistory(a.out, entries)
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of entries to show")
	return cmd
}
