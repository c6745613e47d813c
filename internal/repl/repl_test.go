package repl

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/manash/stitchgen/internal/display"
	"github.com/manash/stitchgen/internal/image"
	"github.com/manash/stitchgen/internal/pipeline"
	"github.com/manash/stitchgen/internal/provider"
	"github.com/manash/stitchgen/internal/selection"
	"github.com/manash/stitchgen/internal/store"
	"github.com/manash/stitchgen/pkg/models"
)

type mockGenerator struct {
	mu      sync.Mutex
	prompts []string
	err     error
}

func (m *mockGenerator) Generate(_ context.Context, prompt string, _ models.EncodedImage, _ string) (*models.EncodedImage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prompts = append(m.prompts, prompt)
	if m.err != nil {
		return nil, m.err
	}
	return &models.EncodedImage{MIMEType: "image/png", Data: "UEFUVEVSTg=="}, nil
}

type testEnv struct {
	repl    *REPL
	out     *bytes.Buffer
	errOut  *bytes.Buffer
	results *store.Results
	sel     *selection.State
	client  *mockGenerator
	source  string
	dir     string
}

func testREPL(t *testing.T, input string, verbose bool) *testEnv {
	t.Helper()
	dir := t.TempDir()
	source := filepath.Join(dir, "photo.png")
	if err := os.WriteFile(source, []byte("source image"), 0644); err != nil {
		t.Fatalf("write source: %v", err)
	}

	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	results := store.New()
	sel := selection.New()
	client := &mockGenerator{}
	codec := image.NewCodec()

	displayer := display.New(out, codec)
	displayer.SetInline(false)

	r := New(&Config{
		In:        strings.NewReader(strings.ReplaceAll(input, "$SRC", source)),
		Out:       out,
		Err:       errOut,
		Selection: sel,
		Results:   results,
		Generator: pipeline.NewGenerator(client, codec, results, sel),
		NewEditor: func(seed models.GenerationResult) *pipeline.Editor {
			return pipeline.NewEditor(seed, client, codec, results)
		},
		Displayer: displayer,
		Saver:     image.NewSaver(codec),
		OutputDir:  filepath.Join(dir, "exports"),
		Verbose:    verbose,
		IsTerminal: func() bool { return true },
	})

	return &testEnv{repl: r, out: out, errOut: errOut, results: results, sel: sel, client: client, source: source, dir: dir}
}

func run(t *testing.T, env *testEnv) {
	t.Helper()
	if err := env.repl.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
}

func TestREPL_CommandsRegistered(t *testing.T) {
	env := testREPL(t, "", false)

	home := []string{
		"pick", "source", "p",
		"style", "category", "cat",
		"filter", "f",
		"generate", "gen", "g",
		"results", "ls", "list",
		"clear", "edit", "e",
		"save", "share", "show", "view",
		"help", "?", "quit", "exit", "q",
	}
	for _, name := range home {
		if _, ok := env.repl.home.lookup[name]; !ok {
			t.Errorf("home command %q not registered", name)
		}
	}

	editing := []string{"send", "s", "history", "h", "back", "done", "b", "save", "show", "help", "quit"}
	for _, name := range editing {
		if _, ok := env.repl.editing.lookup[name]; !ok {
			t.Errorf("editor command %q not registered", name)
		}
	}
}

func TestREPL_Run_Quit(t *testing.T) {
	env := testREPL(t, "quit\n", false)
	run(t, env)
	if !strings.Contains(env.out.String(), "Goodbye!") {
		t.Error("quit did not print Goodbye!")
	}
}

func TestREPL_Run_UnknownCommand(t *testing.T) {
	env := testREPL(t, "embroider\nquit\n", false)
	run(t, env)
	if !strings.Contains(env.errOut.String(), "unknown command: embroider") {
		t.Errorf("stderr = %q", env.errOut.String())
	}
}

func TestREPL_Run_Help(t *testing.T) {
	env := testREPL(t, "help\nquit\n", false)
	run(t, env)
	for _, want := range []string{"pick", "generate", "filter", "clear", "edit"} {
		if !strings.Contains(env.out.String(), want) {
			t.Errorf("help output missing %q", want)
		}
	}
}

func TestREPL_SelectionCommands(t *testing.T) {
	env := testREPL(t, "style Satin\ncategory logo\nfilter complexity simple\nfilter size extra large\nfilter size off\nstyle zigzag\nquit\n", false)
	run(t, env)

	if env.sel.Style() != models.StyleSatin || env.sel.Category() != models.CategoryLogo {
		t.Errorf("selection = %q/%q", env.sel.Style(), env.sel.Category())
	}
	filters := env.sel.Filters()
	if len(filters) != 1 || filters[models.DimensionComplexity] != "Simple" {
		t.Errorf("filters = %v", filters)
	}
	if !strings.Contains(env.errOut.String(), "invalid embroidery style") {
		t.Errorf("stderr = %q", env.errOut.String())
	}
	if !strings.Contains(env.out.String(), "stitchgen [satin/logo]> ") {
		t.Error("prompt does not reflect selection")
	}
}

func TestREPL_FilterList(t *testing.T) {
	env := testREPL(t, "filter color pastel\nfilter\nquit\n", false)
	run(t, env)

	out := env.out.String()
	if !strings.Contains(out, "Color:") || !strings.Contains(out, "Pastel") || !strings.Contains(out, "Intricate") {
		t.Errorf("filter listing = %q", out)
	}
}

func TestREPL_Generate(t *testing.T) {
	env := testREPL(t, "category logo\nfilter complexity Simple\npick $SRC\ngenerate\nresults\nquit\n", false)
	run(t, env)

	if env.errOut.Len() != 0 {
		t.Fatalf("stderr = %q", env.errOut.String())
	}
	if env.results.Len() != 1 {
		t.Fatalf("results = %d, want 1", env.results.Len())
	}

	if len(env.client.prompts) != 1 {
		t.Fatalf("prompts = %q", env.client.prompts)
	}
	p := env.client.prompts[0]
	if !strings.Contains(p, "This is a logo or brand design") || !strings.HasSuffix(p, " Style preferences: complexity: Simple.") {
		t.Errorf("prompt = %q", p)
	}

	out := env.out.String()
	if !strings.Contains(out, "Pattern ready:") || !strings.Contains(out, "[image/png, ") {
		t.Errorf("generate output = %q", out)
	}
	if !strings.Contains(out, "1 pattern(s):") || !strings.Contains(out, "[complexity: Simple]") {
		t.Errorf("results output = %q", out)
	}
}

func TestREPL_GenerateWithoutSource(t *testing.T) {
	env := testREPL(t, "generate\nquit\n", false)
	run(t, env)
	if !strings.Contains(env.errOut.String(), "no source image") {
		t.Errorf("stderr = %q", env.errOut.String())
	}
	if len(env.client.prompts) != 0 {
		t.Error("client called without a source image")
	}
}

func TestREPL_GenerateFailure(t *testing.T) {
	tests := []struct {
		name    string
		verbose bool
		want    string
	}{
		{"plain", false, "Error: failed to generate the image\n"},
		{"verbose", true, "Error: failed to generate the image: generation service unavailable: status 503"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := testREPL(t, "generate $SRC\nquit\n", tt.verbose)
			env.client.err = fmt.Errorf("%w: status 503", provider.ErrServiceUnavailable)
			run(t, env)

			if !strings.Contains(env.errOut.String(), tt.want) {
				t.Errorf("stderr = %q, want %q", env.errOut.String(), tt.want)
			}
			if env.results.Len() != 0 {
				t.Error("failed generation stored a result")
			}
		})
	}
}

func TestREPL_Clear(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		wantLeft  int
		wantPrint string
	}{
		{"confirmed", "generate $SRC\ngenerate\nclear\ny\nquit\n", 0, "History cleared"},
		{"declined", "generate $SRC\nclear\nn\nquit\n", 1, "Cancelled."},
		{"forced", "generate $SRC\nclear -y\nquit\n", 0, "History cleared"},
		{"empty", "clear\nquit\n", 0, "No patterns to clear."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := testREPL(t, tt.input, false)
			run(t, env)

			if env.results.Len() != tt.wantLeft {
				t.Errorf("results = %d, want %d", env.results.Len(), tt.wantLeft)
			}
			if !strings.Contains(env.out.String(), tt.wantPrint) {
				t.Errorf("output missing %q: %s", tt.wantPrint, env.out.String())
			}
		})
	}

	env := testREPL(t, "generate $SRC\ngenerate\nclear\ny\nquit\n", false)
	run(t, env)
	if !strings.Contains(env.out.String(), "Delete all 2 embroidery patterns? [y/N]") {
		t.Errorf("confirmation prompt missing: %s", env.out.String())
	}
}

func TestREPL_ClearNonTerminal(t *testing.T) {
	env := testREPL(t, "generate $SRC\nclear\nstyle satin\nclear -y\nquit\n", false)
	env.repl.terminal = false
	run(t, env)

	out := env.out.String()
	if !strings.Contains(out, "Not confirmed: input is not a terminal.") {
		t.Errorf("output = %s", out)
	}
	if env.sel.Style() != models.StyleSatin {
		t.Errorf("line after clear was consumed as an answer; style = %s", env.sel.Style())
	}
	if env.results.Len() != 0 {
		t.Errorf("results = %d, want 0 after clear -y", env.results.Len())
	}
	if !strings.Contains(out, "History cleared") {
		t.Errorf("clear -y did not clear: %s", out)
	}
}

func TestIsTerminal(t *testing.T) {
	if isTerminal(strings.NewReader("y\n")) {
		t.Error("isTerminal(strings.Reader) = true")
	}
	f, err := os.CreateTemp(t.TempDir(), "input")
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if isTerminal(f) {
		t.Error("isTerminal(regular file) = true")
	}
}

func TestREPL_EditorCommandWordsInInstructions(t *testing.T) {
	input := strings.Join([]string{
		"generate $SRC",
		"edit 1",
		"show more detail on the petals",
		"save the background but make it blue",
		"send help me add a frame",
		"history",
		"save",
		"back",
		"quit",
	}, "\n") + "\n"
	env := testREPL(t, input, false)
	run(t, env)

	if env.errOut.Len() != 0 {
		t.Fatalf("stderr = %q", env.errOut.String())
	}

	want := []string{
		"show more detail on the petals",
		"save the background but make it blue",
		"help me add a frame",
	}
	if len(env.client.prompts) != 4 {
		t.Fatalf("prompts = %q, want generate plus 3 edits", env.client.prompts)
	}
	for i, w := range want {
		if got := env.client.prompts[i+1]; got != w {
			t.Errorf("edit prompt %d = %q, want %q", i+1, got, w)
		}
	}

	if !strings.Contains(env.out.String(), "user: show more detail on the petals") {
		t.Errorf("bare history did not run: %s", env.out.String())
	}
	entries, err := os.ReadDir(filepath.Join(env.dir, "exports"))
	if err != nil || len(entries) != 1 {
		t.Errorf("bare save exports = %v, %v; want 1 file", entries, err)
	}
}

func TestREPL_EditFlow(t *testing.T) {
	input := strings.Join([]string{
		"style satin",
		"generate $SRC",
		"edit 1",
		"make the outline thicker, don't change colours",
		"history",
		"back",
		"results",
		"quit",
	}, "\n") + "\n"
	env := testREPL(t, input, false)
	run(t, env)

	if env.errOut.Len() != 0 {
		t.Fatalf("stderr = %q", env.errOut.String())
	}
	if env.results.Len() != 2 {
		t.Fatalf("results = %d, want 2", env.results.Len())
	}

	if got := env.client.prompts[1]; got != "make the outline thicker, don't change colours" {
		t.Errorf("edit prompt = %q", got)
	}
	edited := env.results.All()[0]
	if edited.Style != models.StyleSatin || edited.OriginalImageURI != env.source {
		t.Errorf("edited result = %+v", edited)
	}

	out := env.out.String()
	for _, want := range []string{
		"I'm ready to help you edit this embroidery pattern.",
		"I've updated the image based on your request.",
		"user: make the outline thicker",
		"Closed editor after 1 edit(s). 2 pattern(s) in history.",
		"stitchgen [edit ",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q", want)
		}
	}
}

func TestREPL_EditFailureKeepsHistory(t *testing.T) {
	env := testREPL(t, "generate $SRC\nedit 1\nquit\n", false)
	run(t, env)

	env.client.err = fmt.Errorf("%w: status 500", provider.ErrServiceUnavailable)
	if err := env.repl.execute(context.Background(), "send add a border"); err == nil || err.Error() != "failed to edit the image" {
		t.Errorf("send error = %v", err)
	}
	if n := len(env.repl.editor.Messages()); n != 1 {
		t.Errorf("messages after failed edit = %d, want 1", n)
	}
}

func TestREPL_Save(t *testing.T) {
	env := testREPL(t, "generate $SRC\nsave 1\nsave 1 /etc/pattern.png\nedit 1\nsave\nquit\n", false)
	run(t, env)

	entries, err := os.ReadDir(filepath.Join(env.dir, "exports"))
	if err != nil {
		t.Fatalf("read exports: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("exports = %d files, want 2", len(entries))
	}
	for _, e := range entries {
		if !strings.HasPrefix(e.Name(), "cross-stitch-") || filepath.Ext(e.Name()) != ".png" {
			t.Errorf("unexpected export name %q", e.Name())
		}
	}

	if !strings.Contains(env.errOut.String(), "absolute paths are not allowed") {
		t.Errorf("stderr = %q", env.errOut.String())
	}
}

func TestREPL_Show(t *testing.T) {
	env := testREPL(t, "show\ngenerate $SRC\nshow\nshow 2\nquit\n", false)
	run(t, env)

	errOut := env.errOut.String()
	if !strings.Contains(errOut, "no patterns yet") || !strings.Contains(errOut, "no such pattern: 2") {
		t.Errorf("stderr = %q", errOut)
	}
	if strings.Count(env.out.String(), "[image/png, ") != 2 {
		t.Errorf("output = %q", env.out.String())
	}
}

func TestREPL_resolveResult(t *testing.T) {
	env := testREPL(t, "", false)
	env.results.Append(models.GenerationResult{ID: "aaaa1111"})
	env.results.Append(models.GenerationResult{ID: "aaaa2222"})
	env.results.Append(models.GenerationResult{ID: "bbbb3333"})

	tests := []struct {
		arg     string
		want    string
		wantErr bool
	}{
		{"1", "bbbb3333", false},
		{"3", "aaaa1111", false},
		{"4", "", true},
		{"0", "", true},
		{"bbbb", "bbbb3333", false},
		{"aaaa2", "aaaa2222", false},
		{"aaaa", "", true},
		{"cccc", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.arg, func(t *testing.T) {
			got, err := env.repl.resolveResult(tt.arg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("resolveResult(%q) error = %v", tt.arg, err)
			}
			if got.ID != tt.want {
				t.Errorf("resolveResult(%q) = %q, want %q", tt.arg, got.ID, tt.want)
			}
		})
	}
}

func TestParseCommand(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{"simple", "pick photo.png", []string{"pick", "photo.png"}},
		{"multiple spaces", "filter   color    Bold", []string{"filter", "color", "Bold"}},
		{"double quotes", `pick "my photo.png"`, []string{"pick", "my photo.png"}},
		{"single quotes", "filter size 'Extra Large'", []string{"filter", "size", "Extra Large"}},
		{"nested quotes", `send "it's red"`, []string{"send", "it's red"}},
		{"empty", "", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseCommand(tt.input)
			if len(got) != len(tt.want) {
				t.Fatalf("parseCommand() = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("parseCommand()[%d] = %v, want %v", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestCommand_Interface(t *testing.T) {
	env := testREPL(t, "", false)
	for _, set := range []*commandSet{env.repl.home, env.repl.editing} {
		for _, cmd := range set.ordered {
			t.Run(cmd.Name(), func(t *testing.T) {
				if cmd.Description() == "" || cmd.Usage() == "" {
					t.Error("command missing description or usage")
				}
			})
		}
	}
}
