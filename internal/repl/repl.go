package repl

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/manash/stitchgen/internal/display"
	"github.com/manash/stitchgen/internal/image"
	"github.com/manash/stitchgen/internal/logging"
	"github.com/manash/stitchgen/internal/pipeline"
	"github.com/manash/stitchgen/internal/selection"
	"github.com/manash/stitchgen/internal/store"
	"github.com/manash/stitchgen/pkg/models"
)

// EditorFactory opens an editor seeded with a stored result.
type EditorFactory func(seed models.GenerationResult) *pipeline.Editor

type REPL struct {
	in        io.Reader
	out       io.Writer
	err       io.Writer
	selection *selection.State
	results   *store.Results
	generator *pipeline.Generator
	newEditor EditorFactory
	displayer *display.Displayer
	saver     *image.Saver
	outputDir string
	verbose   bool
	terminal  bool

	scanner *bufio.Scanner
	source  string
	editor  *pipeline.Editor

	home    *commandSet
	editing *commandSet
	running bool
}

type Config struct {
	In        io.Reader
	Out       io.Writer
	Err       io.Writer
	Selection *selection.State
	Results   *store.Results
	Generator *pipeline.Generator
	NewEditor EditorFactory
	Displayer *display.Displayer
	Saver     *image.Saver
	OutputDir string
	Verbose   bool
	// IsTerminal reports whether In is interactive. Defaults to checking In.
	IsTerminal func() bool
}

func New(cfg *Config) *REPL {
	r := &REPL{
		in:        cfg.In,
		out:       cfg.Out,
		err:       cfg.Err,
		selection: cfg.Selection,
		results:   cfg.Results,
		generator: cfg.Generator,
		newEditor: cfg.NewEditor,
		displayer: cfg.Displayer,
		saver:     cfg.Saver,
		outputDir: cfg.OutputDir,
		verbose:   cfg.Verbose,
	}
	if cfg.IsTerminal != nil {
		r.terminal = cfg.IsTerminal()
	} else {
		r.terminal = isTerminal(cfg.In)
	}
	if r.outputDir == "" {
		r.outputDir = "."
	}
	r.registerCommands()
	return r
}

func (r *REPL) Run(ctx context.Context) error {
	r.running = true
	r.printWelcome()

	r.scanner = bufio.NewScanner(r.in)
	for r.running {
		r.printPrompt()
		if !r.scanner.Scan() {
			break
		}

		line := strings.TrimSpace(r.scanner.Text())
		if line == "" {
			continue
		}

		if err := r.execute(ctx, line); err != nil {
			r.printError(err)
		}
	}

	return r.scanner.Err()
}

func (r *REPL) execute(ctx context.Context, line string) error {
	parts := parseCommand(line)
	if len(parts) == 0 {
		return nil
	}

	cmdName := strings.ToLower(parts[0])
	args := parts[1:]

	cmds := r.commands()
	cmd, ok := cmds.lookup[cmdName]
	if !ok {
		if r.editor != nil {
			return sendInstruction(ctx, r, line)
		}
		return fmt.Errorf("unknown command: %s (type 'help' for available commands)", cmdName)
	}

	// In the editor a command word followed by more text is an instruction,
	// e.g. "show more detail on the petals". send takes text explicitly.
	if r.editor != nil && len(args) > 0 {
		if _, isSend := cmd.(*SendCommand); !isSend {
			return sendInstruction(ctx, r, line)
		}
	}

	if raw, ok := cmd.(rawCommand); ok {
		_, rest, _ := strings.Cut(line, " ")
		return raw.ExecuteRaw(ctx, r, strings.TrimSpace(rest))
	}
	return cmd.Execute(ctx, r, args)
}

func (r *REPL) commands() *commandSet {
	if r.editor != nil {
		return r.editing
	}
	return r.home
}

func (r *REPL) Stop() {
	r.running = false
}

// confirm asks a yes/no question on the REPL's input. Anything but y/yes is
// a no. Input that is not a terminal is never read for an answer, so scripted
// sessions cannot confirm by accident.
func (r *REPL) confirm(question string) bool {
	if !r.terminal {
		fmt.Fprintf(r.out, "%s Not confirmed: input is not a terminal.\n", question)
		return false
	}
	fmt.Fprintf(r.out, "%s [y/N] ", question)
	if r.scanner == nil || !r.scanner.Scan() {
		fmt.Fprintln(r.out)
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(r.scanner.Text()))
	return answer == "y" || answer == "yes"
}

func (r *REPL) printError(err error) {
	var ferr *pipeline.FlowError
	if r.verbose && errors.As(err, &ferr) {
		fmt.Fprintf(r.err, "Error: %s\n", ferr.Detail())
		return
	}
	fmt.Fprintf(r.err, "Error: %v\n", err)
}

func (r *REPL) printWelcome() {
	fmt.Fprintln(r.out, "stitchgen interactive mode")
	fmt.Fprintln(r.out, "Pick an image, choose a stitch style, then 'generate'.")
	fmt.Fprintln(r.out, "Type 'help' for available commands, 'quit' to exit.")
	fmt.Fprintln(r.out)
}

func (r *REPL) printPrompt() {
	if r.editor != nil {
		fmt.Fprintf(r.out, "stitchgen [edit %s]> ", shortID(r.editor.Seed().ID))
		return
	}
	fmt.Fprintf(r.out, "stitchgen [%s/%s]> ", r.selection.Style(), r.selection.Category())
}

func isTerminal(in io.Reader) bool {
	f, ok := in.(*os.File)
	return ok && logging.IsTerminal(f)
}

func parseCommand(line string) []string {
	var parts []string
	var current strings.Builder
	inQuotes := false
	quoteChar := rune(0)

	for _, ch := range line {
		switch {
		case ch == '"' || ch == '\'':
			if inQuotes && ch == quoteChar {
				inQuotes = false
				quoteChar = 0
			} else if !inQuotes {
				inQuotes = true
				quoteChar = ch
			} else {
				current.WriteRune(ch)
			}
		case ch == ' ' && !inQuotes:
			if current.Len() > 0 {
				parts = append(parts, current.String())
				current.Reset()
			}
		default:
			current.WriteRune(ch)
		}
	}

	if current.Len() > 0 {
		parts = append(parts, current.String())
	}

	return parts
}
