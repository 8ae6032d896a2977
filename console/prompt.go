package console

import (
	"context"
	"log/slog"
)

// Prompter asks the operator to confirm destructive actions and shows
// blocking alerts.
type Prompter interface {
	Confirm(message string) bool
	Alert(message string)
}

// NopPrompter declines every confirmation and logs alerts.
type NopPrompter struct{}

func (NopPrompter) Confirm(message string) bool {
	slog.Info("confirmation declined", slog.String("prompt", message))
	return false
}

func (NopPrompter) Alert(message string) {
	slog.Info("alert", slog.String("message", message))
}

type confirmKey struct{}

// WithConfirmation answers confirmation prompts for calls made with ctx,
// bypassing the prompter. The HTTP surface uses it for ?confirm=true.
func WithConfirmation(ctx context.Context, confirmed bool) context.Context {
	return context.WithValue(ctx, confirmKey{}, confirmed)
}

func (c *Console) confirm(ctx context.Context, message string) bool {
	if confirmed, ok := ctx.Value(confirmKey{}).(bool); ok {
		return confirmed
	}
	return c.prompter.Confirm(message)
}

func (c *Console) alert(message string) {
	c.prompter.Alert(message)
}
