package main

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aluiziolira/go-admin-console/parser"
	"github.com/spf13/cobra"
)

const shellPrompt = "console> "

// ShellCmd runs commands line by line against one mounted console, so the
// form and recent tasks persist between lines while polling continues.
func ShellCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "shell",
		Short: "Interactive session with background polling",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := a.mount(ctx); err != nil {
				return err
			}
			if st := a.console.State(); st.TargetsErr != "" {
				fmt.Fprintf(a.out, "Targets unavailable: %s\n", st.TargetsErr)
			}
			fmt.Fprintln(a.out, "Type 'help' for commands, 'exit' to leave.")

			for ctx.Err() == nil {
				fmt.Fprint(a.out, shellPrompt)
				line, err := a.in.ReadString('\n')
				if err != nil && !errors.Is(err, io.EOF) {
					return err
				}
				if quit := runLine(a, cmd, line); quit {
					return nil
				}
				if errors.Is(err, io.EOF) {
					fmt.Fprintln(a.out)
					return nil
				}
			}
			return nil
		},
	}
}

// runLine executes one shell line and reports whether the shell should exit.
func runLine(a *app, parent *cobra.Command, line string) bool {
	tokens, err := parser.SplitCommandLine(line)
	if err != nil {
		fmt.Fprintf(a.out, "error: %v\n", err)
		return false
	}
	if len(tokens) == 0 {
		return false
	}
	switch strings.ToLower(tokens[0]) {
	case "exit", "quit":
		return true
	case "shell":
		fmt.Fprintln(a.out, "already in a shell")
		return false
	}

	// Flags bind into a fresh tree each line; the app keeps the console.
	root := newRootCmd(a)
	root.SetOut(a.out)
	root.SetErr(a.out)
	root.SetArgs(tokens)
	if err := root.ExecuteContext(parent.Context()); err != nil {
		fmt.Fprintf(a.out, "error: %v\n", err)
	}
	return false
}
