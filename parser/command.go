package parser

import (
	"fmt"
	"strings"

	"github.com/google/shlex"
)

// SplitCommandLine tokenizes one shell line with POSIX quoting rules.
// Blank lines and lines starting with '#' yield no tokens.
func SplitCommandLine(line string) ([]string, error) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" || strings.HasPrefix(trimmed, "#") {
		return nil, nil
	}
	args, err := shlex.Split(trimmed)
	if err != nil {
		return nil, fmt.Errorf("split command line: %w", err)
	}
	return args, nil
}
