package repl

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/manash/stitchgen/internal/security"
	"github.com/manash/stitchgen/pkg/models"
)

var ErrResultNotFound = errors.New("no such pattern")

type Command interface {
	Name() string
	Aliases() []string
	Description() string
	Usage() string
	Execute(ctx context.Context, r *REPL, args []string) error
}

// rawCommand receives the rest of the line as typed, without quote handling.
type rawCommand interface {
	ExecuteRaw(ctx context.Context, r *REPL, rest string) error
}

type commandSet struct {
	ordered []Command
	lookup  map[string]Command
}

func newCommandSet(cmds ...Command) *commandSet {
	s := &commandSet{ordered: cmds, lookup: make(map[string]Command)}
	for _, cmd := range cmds {
		s.lookup[cmd.Name()] = cmd
		for _, alias := range cmd.Aliases() {
			s.lookup[alias] = cmd
		}
	}
	return s
}

func (r *REPL) registerCommands() {
	r.home = newCommandSet(
		&PickCommand{},
		&StyleCommand{},
		&CategoryCommand{},
		&FilterCommand{},
		&GenerateCommand{},
		&ResultsCommand{},
		&ClearCommand{},
		&EditCommand{},
		&SaveCommand{},
		&ShowCommand{},
		&HelpCommand{},
		&QuitCommand{},
	)
	r.editing = newCommandSet(
		&SendCommand{},
		&HistoryCommand{},
		&SaveCommand{},
		&ShowCommand{},
		&BackCommand{},
		&HelpCommand{},
		&QuitCommand{},
	)
}

// PickCommand selects the source image
type PickCommand struct{}

func (c *PickCommand) Name() string        { return "pick" }
func (c *PickCommand) Aliases() []string   { return []string{"source", "p"} }
func (c *PickCommand) Description() string { return "Choose the image to turn into a pattern" }
func (c *PickCommand) Usage() string       { return "pick <path|url>" }

func (c *PickCommand) Execute(_ context.Context, r *REPL, args []string) error {
	if len(args) == 0 {
		if r.source == "" {
			fmt.Fprintln(r.out, "No image picked.")
		} else {
			fmt.Fprintf(r.out, "Source image: %s\n", r.source)
		}
		return nil
	}

	ref := args[0]
	if !strings.Contains(ref, "://") && !strings.HasPrefix(ref, "data:") {
		if _, err := os.Stat(ref); err != nil {
			return fmt.Errorf("cannot read %s: %w", ref, err)
		}
	}

	r.source = ref
	fmt.Fprintf(r.out, "Source image: %s\n", ref)
	return nil
}

// StyleCommand gets or sets the stitch style
type StyleCommand struct{}

func (c *StyleCommand) Name() string        { return "style" }
func (c *StyleCommand) Aliases() []string   { return nil }
func (c *StyleCommand) Description() string { return "Get or set the stitch style" }
func (c *StyleCommand) Usage() string       { return "style [name]" }

func (c *StyleCommand) Execute(_ context.Context, r *REPL, args []string) error {
	if len(args) == 0 {
		current := r.selection.Style()
		fmt.Fprintln(r.out, "Stitch styles:")
		for _, s := range models.ValidStyles() {
			fmt.Fprintf(r.out, "  %s %-13s %s - %s\n", marker(s == current), s, s.Label(), s.Description())
		}
		return nil
	}

	style, err := models.ParseStyle(strings.ToLower(args[0]))
	if err != nil {
		return err
	}
	if err := r.selection.SetStyle(style); err != nil {
		return err
	}
	fmt.Fprintf(r.out, "Style set to: %s\n", style.Label())
	return nil
}

// CategoryCommand gets or sets the pattern category
type CategoryCommand struct{}

func (c *CategoryCommand) Name() string        { return "category" }
func (c *CategoryCommand) Aliases() []string   { return []string{"cat"} }
func (c *CategoryCommand) Description() string { return "Get or set what the image is (image, logo, font, tattoo)" }
func (c *CategoryCommand) Usage() string       { return "category [name]" }

func (c *CategoryCommand) Execute(_ context.Context, r *REPL, args []string) error {
	if len(args) == 0 {
		current := r.selection.Category()
		fmt.Fprintln(r.out, "Categories:")
		for _, cat := range models.ValidCategories() {
			fmt.Fprintf(r.out, "  %s %-8s %s - %s\n", marker(cat == current), cat, cat.Label(), cat.Description())
		}
		return nil
	}

	category, err := models.ParseCategory(strings.ToLower(args[0]))
	if err != nil {
		return err
	}
	if err := r.selection.SetCategory(category); err != nil {
		return err
	}
	fmt.Fprintf(r.out, "Category set to: %s\n", category.Label())
	return nil
}

// FilterCommand manages style preference filters
type FilterCommand struct{}

func (c *FilterCommand) Name() string        { return "filter" }
func (c *FilterCommand) Aliases() []string   { return []string{"f"} }
func (c *FilterCommand) Description() string { return "Show, set or clear style preferences" }
func (c *FilterCommand) Usage() string {
	return "filter [<style|color|complexity|size> <value|off>] | filter clear"
}

func (c *FilterCommand) Execute(_ context.Context, r *REPL, args []string) error {
	if len(args) == 0 {
		return c.list(r)
	}

	if len(args) == 1 && strings.EqualFold(args[0], "clear") {
		r.selection.ClearFilters()
		fmt.Fprintln(r.out, "Filters cleared")
		return nil
	}

	dim, err := models.ParseDimension(strings.ToLower(args[0]))
	if err != nil {
		return err
	}
	if len(args) < 2 {
		return fmt.Errorf("usage: %s", c.Usage())
	}

	value := strings.Join(args[1:], " ")
	if strings.EqualFold(value, "off") {
		if err := r.selection.UnsetFilter(dim); err != nil {
			return err
		}
		fmt.Fprintf(r.out, "%s filter removed\n", dim.Label())
		return nil
	}

	if err := r.selection.SetFilter(dim, value); err != nil {
		return err
	}
	fmt.Fprintf(r.out, "%s: %s\n", dim.Label(), r.selection.Filters()[dim])
	return nil
}

func (c *FilterCommand) list(r *REPL) error {
	active := r.selection.Filters()
	for _, dim := range models.ValidDimensions() {
		current, ok := active[dim]
		if !ok {
			current = "any"
		}
		fmt.Fprintf(r.out, "  %-11s %-12s (%s)\n", dim.Label()+":", current, strings.Join(models.FilterOptions(dim), ", "))
	}
	return nil
}

// GenerateCommand runs the new-pattern flow
type GenerateCommand struct{}

func (c *GenerateCommand) Name() string        { return "generate" }
func (c *GenerateCommand) Aliases() []string   { return []string{"gen", "g"} }
func (c *GenerateCommand) Description() string { return "Turn the picked image into an embroidery pattern" }
func (c *GenerateCommand) Usage() string       { return "generate [path|url]" }

func (c *GenerateCommand) Execute(ctx context.Context, r *REPL, args []string) error {
	if len(args) > 0 {
		if err := (&PickCommand{}).Execute(ctx, r, args[:1]); err != nil {
			return err
		}
	}
	if r.source == "" {
		return fmt.Errorf("no source image - use 'pick' first")
	}

	snap := r.selection.Snapshot()
	fmt.Fprintf(r.out, "Generating %s pattern...\n", snap.Style.Label())

	result, err := r.generator.Generate(ctx, r.source)
	if err != nil {
		return err
	}

	if err := r.displayer.Show(ctx, result.ImageURI); err != nil {
		fmt.Fprintf(r.err, "Warning: failed to display: %v\n", err)
	}
	fmt.Fprintf(r.out, "Pattern ready: %s (%d in history)\n", shortID(result.ID), r.results.Len())
	return nil
}

// ResultsCommand lists generated patterns
type ResultsCommand struct{}

func (c *ResultsCommand) Name() string        { return "results" }
func (c *ResultsCommand) Aliases() []string   { return []string{"ls", "list"} }
func (c *ResultsCommand) Description() string { return "List generated patterns, newest first" }
func (c *ResultsCommand) Usage() string       { return "results" }

func (c *ResultsCommand) Execute(_ context.Context, r *REPL, _ []string) error {
	all := r.results.All()
	if len(all) == 0 {
		fmt.Fprintln(r.out, "No patterns yet.")
		return nil
	}

	fmt.Fprintf(r.out, "%s pattern(s):\n", humanize.Comma(int64(len(all))))
	for i, res := range all {
		fmt.Fprintf(r.out, "  %2d. %s  %-12s %-7s %s%s\n",
			i+1, shortID(res.ID), res.Style, res.Category, humanize.Time(res.Timestamp), filterSummary(res.Filters))
	}
	return nil
}

// ClearCommand empties the result history
type ClearCommand struct{}

func (c *ClearCommand) Name() string        { return "clear" }
func (c *ClearCommand) Aliases() []string   { return nil }
func (c *ClearCommand) Description() string { return "Delete all generated patterns" }
func (c *ClearCommand) Usage() string       { return "clear [-y]" }

func (c *ClearCommand) Execute(_ context.Context, r *REPL, args []string) error {
	n := r.results.Len()
	if n == 0 {
		fmt.Fprintln(r.out, "No patterns to clear.")
		return nil
	}

	skip := len(args) > 0 && (args[0] == "-y" || args[0] == "--yes")
	if !skip && !r.confirm(fmt.Sprintf("Delete all %d embroidery patterns?", n)) {
		fmt.Fprintln(r.out, "Cancelled. Use 'clear -y' to skip the prompt.")
		return nil
	}

	r.results.Clear()
	fmt.Fprintln(r.out, "History cleared")
	return nil
}

// EditCommand opens the editor for a stored pattern
type EditCommand struct{}

func (c *EditCommand) Name() string        { return "edit" }
func (c *EditCommand) Aliases() []string   { return []string{"e"} }
func (c *EditCommand) Description() string { return "Refine a pattern with text instructions" }
func (c *EditCommand) Usage() string       { return "edit <number|id>" }

func (c *EditCommand) Execute(_ context.Context, r *REPL, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: %s", c.Usage())
	}

	seed, err := r.resolveResult(args[0])
	if err != nil {
		return err
	}

	r.editor = r.newEditor(seed)
	msgs := r.editor.Messages()
	fmt.Fprintf(r.out, "Editing %s %s pattern. Type instructions, 'back' when done.\n", shortID(seed.ID), seed.Style.Label())
	fmt.Fprintf(r.out, "assistant: %s\n", msgs[0].Content)
	return nil
}

// SaveCommand exports a pattern to a file
type SaveCommand struct{}

func (c *SaveCommand) Name() string        { return "save" }
func (c *SaveCommand) Aliases() []string   { return []string{"share"} }
func (c *SaveCommand) Description() string { return "Save a pattern to a file" }
func (c *SaveCommand) Usage() string       { return "save [number|id] [path]" }

func (c *SaveCommand) Execute(ctx context.Context, r *REPL, args []string) error {
	ref, name, path, err := c.target(r, args)
	if err != nil {
		return err
	}

	var saved string
	if path != "" {
		if err := security.ValidateExportPath(path); err != nil {
			return fmt.Errorf("invalid path %s: %w", path, err)
		}
		saved, err = r.saver.Save(ctx, ref, path)
	} else {
		saved, err = r.saver.SaveIn(ctx, ref, r.outputDir, security.SanitizeFilename(name))
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(r.out, "Saved: %s\n", saved)
	return nil
}

// target picks the image to save. In the editor it is the current image; at
// home it is a stored result.
func (c *SaveCommand) target(r *REPL, args []string) (ref, name, path string, err error) {
	if r.editor != nil {
		seed := r.editor.Seed()
		if len(args) > 0 {
			path = args[0]
		}
		return r.editor.CurrentImage(), fmt.Sprintf("%s-%s-edit", seed.Style, shortID(seed.ID)), path, nil
	}

	if len(args) == 0 {
		return "", "", "", fmt.Errorf("usage: %s", c.Usage())
	}
	res, err := r.resolveResult(args[0])
	if err != nil {
		return "", "", "", err
	}
	if len(args) > 1 {
		path = args[1]
	}
	return res.ImageURI, fmt.Sprintf("%s-%s", res.Style, shortID(res.ID)), path, nil
}

// ShowCommand renders a pattern in the terminal
type ShowCommand struct{}

func (c *ShowCommand) Name() string        { return "show" }
func (c *ShowCommand) Aliases() []string   { return []string{"view"} }
func (c *ShowCommand) Description() string { return "Display a pattern in the terminal" }
func (c *ShowCommand) Usage() string       { return "show [number|id]" }

func (c *ShowCommand) Execute(ctx context.Context, r *REPL, args []string) error {
	var ref string
	switch {
	case r.editor != nil:
		ref = r.editor.CurrentImage()
	case len(args) > 0:
		res, err := r.resolveResult(args[0])
		if err != nil {
			return err
		}
		ref = res.ImageURI
	case r.generator.Displayed() != "":
		ref = r.generator.Displayed()
	default:
		all := r.results.All()
		if len(all) == 0 {
			return fmt.Errorf("no patterns yet - use 'generate' first")
		}
		ref = all[0].ImageURI
	}

	return r.displayer.Show(ctx, ref)
}

// HelpCommand shows available commands
type HelpCommand struct{}

func (c *HelpCommand) Name() string        { return "help" }
func (c *HelpCommand) Aliases() []string   { return []string{"?"} }
func (c *HelpCommand) Description() string { return "Show available commands" }
func (c *HelpCommand) Usage() string       { return "help" }

func (c *HelpCommand) Execute(_ context.Context, r *REPL, _ []string) error {
	fmt.Fprintln(r.out, "Available commands:")
	fmt.Fprintln(r.out)

	for _, cmd := range r.commands().ordered {
		aliases := ""
		if len(cmd.Aliases()) > 0 {
			aliases = fmt.Sprintf(" (%s)", strings.Join(cmd.Aliases(), ", "))
		}
		fmt.Fprintf(r.out, "  %-20s%s\n", cmd.Name()+aliases, cmd.Description())
		fmt.Fprintf(r.out, "                      Usage: %s\n", cmd.Usage())
	}

	if r.editor != nil {
		fmt.Fprintln(r.out)
		fmt.Fprintln(r.out, "Any other text is sent as an edit instruction.")
	}
	return nil
}

// QuitCommand exits the REPL
type QuitCommand struct{}

func (c *QuitCommand) Name() string        { return "quit" }
func (c *QuitCommand) Aliases() []string   { return []string{"exit", "q"} }
func (c *QuitCommand) Description() string { return "Exit interactive mode" }
func (c *QuitCommand) Usage() string       { return "quit" }

func (c *QuitCommand) Execute(_ context.Context, r *REPL, _ []string) error {
	fmt.Fprintln(r.out, "Goodbye!")
	r.Stop()
	return nil
}

// resolveResult accepts a 1-based position in the results listing or a
// unique ID prefix.
func (r *REPL) resolveResult(arg string) (models.GenerationResult, error) {
	all := r.results.All()

	if n, err := strconv.Atoi(arg); err == nil {
		if n < 1 || n > len(all) {
			return models.GenerationResult{}, fmt.Errorf("%w: %d (have %d)", ErrResultNotFound, n, len(all))
		}
		return all[n-1], nil
	}

	var match *models.GenerationResult
	for i := range all {
		if strings.HasPrefix(all[i].ID, arg) {
			if match != nil {
				return models.GenerationResult{}, fmt.Errorf("ambiguous id prefix %q", arg)
			}
			match = &all[i]
		}
	}
	if match == nil {
		return models.GenerationResult{}, fmt.Errorf("%w: %s", ErrResultNotFound, arg)
	}
	return *match, nil
}

func filterSummary(f models.Filters) string {
	dims := f.Dimensions()
	if len(dims) == 0 {
		return ""
	}
	parts := make([]string, len(dims))
	for i, d := range dims {
		parts[i] = fmt.Sprintf("%s: %s", d, f[d])
	}
	return "  [" + strings.Join(parts, ", ") + "]"
}

func marker(active bool) string {
	if active {
		return "*"
	}
	return " "
}

func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}
