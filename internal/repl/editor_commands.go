package repl

import (
	"context"
	"fmt"
	"strings"

	"github.com/manash/stitchgen/pkg/models"
)

// SendCommand sends an edit instruction
type SendCommand struct{}

func (c *SendCommand) Name() string        { return "send" }
func (c *SendCommand) Aliases() []string   { return []string{"s"} }
func (c *SendCommand) Description() string { return "Describe a change to the current pattern" }
func (c *SendCommand) Usage() string       { return "send <instruction>" }

func (c *SendCommand) Execute(ctx context.Context, r *REPL, args []string) error {
	return c.ExecuteRaw(ctx, r, strings.Join(args, " "))
}

func (c *SendCommand) ExecuteRaw(ctx context.Context, r *REPL, rest string) error {
	if rest == "" {
		return fmt.Errorf("usage: %s", c.Usage())
	}
	return sendInstruction(ctx, r, rest)
}

func sendInstruction(ctx context.Context, r *REPL, text string) error {
	fmt.Fprintln(r.out, "Updating pattern...")

	reply, err := r.editor.Send(ctx, text)
	if err != nil {
		return err
	}

	if err := r.displayer.Show(ctx, reply.ImageURI); err != nil {
		fmt.Fprintf(r.err, "Warning: failed to display: %v\n", err)
	}
	fmt.Fprintf(r.out, "assistant: %s\n", reply.Content)
	return nil
}

// HistoryCommand prints the editor conversation
type HistoryCommand struct{}

func (c *HistoryCommand) Name() string        { return "history" }
func (c *HistoryCommand) Aliases() []string   { return []string{"h"} }
func (c *HistoryCommand) Description() string { return "Show the conversation so far" }
func (c *HistoryCommand) Usage() string       { return "history" }

func (c *HistoryCommand) Execute(_ context.Context, r *REPL, _ []string) error {
	for _, msg := range r.editor.Messages() {
		image := ""
		if msg.ImageURI != "" && msg.Role == models.RoleAssistant {
			image = " [image]"
		}
		fmt.Fprintf(r.out, "%s %s: %s%s\n", msg.Timestamp.Format("15:04:05"), msg.Role, msg.Content, image)
	}
	return nil
}

// BackCommand returns to the home screen
type BackCommand struct{}

func (c *BackCommand) Name() string        { return "back" }
func (c *BackCommand) Aliases() []string   { return []string{"done", "b"} }
func (c *BackCommand) Description() string { return "Close the editor and return home" }
func (c *BackCommand) Usage() string       { return "back" }

func (c *BackCommand) Execute(_ context.Context, r *REPL, _ []string) error {
	turns := (len(r.editor.Messages()) - 1) / 2
	r.editor = nil
	fmt.Fprintf(r.out, "Closed editor after %d edit(s). %d pattern(s) in history.\n", turns, r.results.Len())
	return nil
}
