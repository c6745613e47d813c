package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/manash/stitchgen/internal/batch"
	"github.com/manash/stitchgen/internal/config"
	"github.com/manash/stitchgen/internal/display"
	"github.com/manash/stitchgen/internal/image"
	"github.com/manash/stitchgen/internal/logging"
	"github.com/manash/stitchgen/internal/pipeline"
	"github.com/manash/stitchgen/internal/provider"
	"github.com/manash/stitchgen/internal/provider/toolkit"
	"github.com/manash/stitchgen/internal/repl"
	"github.com/manash/stitchgen/internal/security"
	"github.com/manash/stitchgen/internal/selection"
	"github.com/manash/stitchgen/internal/server"
	"github.com/manash/stitchgen/internal/store"
	"github.com/manash/stitchgen/pkg/models"
)

var (
	version = "dev"
	commit  = "none"
)

var (
	flagConfig   string
	flagBaseURL  string
	flagTimeout  string
	flagVerbose  bool
	flagStyle    string
	flagCategory string
	flagFilters  []string
	flagOutput   string
	flagShow     bool
	flagAddr     string
	flagForce    bool

	flagParallel    int
	flagStopOnError bool
	flagDelay       int
	flagOutputDir   string
)

type App struct {
	In         io.Reader
	Out        io.Writer
	Err        io.Writer
	LoadConfig func(path string) (*config.Config, error)
	NewClient  func(cfg *provider.Config, logger zerolog.Logger) provider.Generator
	NewCodec   func() *image.Codec
	// PrettyLogs reports whether log output goes to a terminal.
	PrettyLogs func() bool
}

func DefaultApp() *App {
	return &App{
		In:         os.Stdin,
		Out:        os.Stdout,
		Err:        os.Stderr,
		LoadConfig: config.Load,
		NewClient: func(cfg *provider.Config, logger zerolog.Logger) provider.Generator {
			return toolkit.New(cfg, toolkit.WithLogger(logger))
		},
		NewCodec:   image.NewCodec,
		PrettyLogs: func() bool { return logging.IsTerminal(os.Stderr) },
	}
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	app := DefaultApp()
	rootCmd := newRootCmd(app)
	return rootCmd.Execute()
}

func newRootCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stitchgen",
		Short: "Turn photos into embroidery patterns",
		Long: `stitchgen turns a photo into an embroidery pattern image using an
AI image-editing service, and lets you refine the result conversationally.

Examples:
  stitchgen generate photo.jpg --style satin --category logo
  stitchgen generate photo.jpg -F complexity=Simple -F color=Pastel -o out/logo.png
  stitchgen batch photos.yaml --parallel 2
  stitchgen interactive
  stitchgen serve --addr :8080`,
		Version:       fmt.Sprintf("%s (commit: %s)", version, commit),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInteractive(cmd, app)
		},
	}
	cmd.SetIn(app.In)
	cmd.SetOut(app.Out)
	cmd.SetErr(app.Err)

	cmd.PersistentFlags().StringVarP(&flagConfig, "config", "c", "", "config file (defaults to the user config directory)")
	cmd.PersistentFlags().StringVar(&flagBaseURL, "base-url", "", "generation service base URL")
	cmd.PersistentFlags().StringVar(&flagTimeout, "timeout", "", "request timeout (e.g. 60s or 90)")
	cmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "show error details and debug logs")

	cmd.AddCommand(
		newGenerateCmd(app),
		newBatchCmd(app),
		newInteractiveCmd(app),
		newServeCmd(app),
		newStylesCmd(app),
		newConfigCmd(app),
	)
	return cmd
}

func newGenerateCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate <image>",
		Short: "Generate one embroidery pattern from an image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGenerate(cmd, args, app)
		},
	}
	cmd.Flags().StringVarP(&flagStyle, "style", "s", "", "stitch style (cross-stitch, satin, running, french-knot)")
	cmd.Flags().StringVarP(&flagCategory, "category", "C", "", "subject category (image, logo, font, tattoo)")
	cmd.Flags().StringArrayVarP(&flagFilters, "filter", "F", nil, "style preference as dimension=value (repeatable)")
	cmd.Flags().StringVarP(&flagOutput, "output", "o", "", "output file (defaults to a generated name in the output directory)")
	cmd.Flags().BoolVarP(&flagShow, "show", "S", false, "display the pattern in the terminal")
	return cmd
}

func newBatchCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "batch <file>",
		Short: "Generate patterns for every image listed in a file",
		Long: `Generate one pattern per image listed in a file.

A .txt file lists one image per line. A .json or .yaml file holds a list of
items with an image and optional style, category, filters and output.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBatch(cmd, args, app)
		},
	}
	cmd.Flags().StringVarP(&flagStyle, "style", "s", "", "default stitch style")
	cmd.Flags().StringVarP(&flagCategory, "category", "C", "", "default subject category")
	cmd.Flags().StringArrayVarP(&flagFilters, "filter", "F", nil, "default style preference as dimension=value (repeatable)")
	cmd.Flags().StringVarP(&flagOutputDir, "output-dir", "d", "", "directory for the patterns (defaults to the configured output directory)")
	cmd.Flags().IntVarP(&flagParallel, "parallel", "p", 1, "number of images processed at once")
	cmd.Flags().BoolVar(&flagStopOnError, "stop-on-error", false, "stop at the first failed image")
	cmd.Flags().IntVar(&flagDelay, "delay", 0, "pause between sequential requests in milliseconds")
	return cmd
}

func newInteractiveCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:     "interactive",
		Aliases: []string{"chat", "i"},
		Short:   "Start the interactive pattern studio",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInteractive(cmd, app)
		},
	}
}

func newServeCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the generation flows over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, app)
		},
	}
	cmd.Flags().StringVar(&flagAddr, "addr", "", "listen address (default :8080)")
	return cmd
}

func newStylesCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "styles",
		Short: "List stitch styles, categories and style preferences",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			printCatalog(app.Out)
			return nil
		},
	}
}

func newConfigCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect or create the configuration file",
	}

	show := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, app)
			if err != nil {
				return err
			}
			data, err := yaml.Marshal(cfg)
			if err != nil {
				return fmt.Errorf("failed to marshal config: %w", err)
			}
			_, err = app.Out.Write(data)
			return err
		},
	}

	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write a config file with default values",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigInit(app)
		},
	}
	initCmd.Flags().BoolVarP(&flagForce, "force", "f", false, "overwrite an existing file")

	cmd.AddCommand(show, initCmd)
	return cmd
}

// loadConfig reads the config file and environment, then applies the
// persistent flags that were set on the command line.
func loadConfig(cmd *cobra.Command, app *App) (*config.Config, error) {
	cfg, err := app.LoadConfig(flagConfig)
	if err != nil {
		return nil, err
	}

	if cmd.Flags().Changed("base-url") {
		cfg.BaseURL = flagBaseURL
	}
	if cmd.Flags().Changed("timeout") {
		d, err := config.ParseTimeout(flagTimeout)
		if err != nil {
			return nil, err
		}
		cfg.Timeout = d
	}
	if flagVerbose {
		cfg.Verbose = true
		cfg.LogLevel = "debug"
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

type deps struct {
	cfg       *config.Config
	logger    zerolog.Logger
	client    provider.Generator
	codec     *image.Codec
	results   *store.Results
	selection *selection.State
	generator *pipeline.Generator
	newEditor func(seed models.GenerationResult) *pipeline.Editor
}

func (app *App) wire(cmd *cobra.Command) (*deps, error) {
	cfg, err := loadConfig(cmd, app)
	if err != nil {
		return nil, err
	}

	logger := logging.New(app.Err, cfg.LogLevel, app.PrettyLogs())
	client := app.NewClient(cfg.Provider(), logger)
	codec := app.NewCodec()
	results := store.New()
	sel := selection.NewWithDefaults(cfg.DefaultCategory, cfg.DefaultStyle)

	return &deps{
		cfg:       cfg,
		logger:    logger,
		client:    client,
		codec:     codec,
		results:   results,
		selection: sel,
		generator: pipeline.NewGenerator(client, codec, results, sel, pipeline.WithLogger(logger)),
		newEditor: func(seed models.GenerationResult) *pipeline.Editor {
			return pipeline.NewEditor(seed, client, codec, results, pipeline.WithLogger(logger))
		},
	}, nil
}

func runGenerate(cmd *cobra.Command, args []string, app *App) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	d, err := app.wire(cmd)
	if err != nil {
		return err
	}

	if err := applySelectionFlags(d.selection); err != nil {
		return err
	}
	if flagOutput != "" {
		if err := security.ValidateExportPath(flagOutput); err != nil {
			return fmt.Errorf("invalid output path: %w", err)
		}
	}

	snap := d.selection.Snapshot()
	fmt.Fprintf(app.Out, "Generating a %s %s pattern...\n", strings.ToLower(snap.Style.Label()), strings.ToLower(snap.Category.Label()))

	result, err := d.generator.Generate(ctx, args[0])
	if err != nil {
		var ferr *pipeline.FlowError
		if d.cfg.Verbose && errors.As(err, &ferr) {
			return errors.New(ferr.Detail())
		}
		return err
	}

	saver := image.NewSaver(d.codec)
	var path string
	if flagOutput != "" {
		path, err = saver.Save(ctx, result.ImageURI, flagOutput)
	} else {
		stem := security.SanitizeFilename(result.Style.String() + "-" + shortID(result.ID))
		path, err = saver.SaveIn(ctx, result.ImageURI, d.cfg.OutputDir, stem)
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(app.Out, "Saved: %s\n", path)

	if flagShow {
		if err := display.New(app.Out, d.codec).Show(ctx, result.ImageURI); err != nil {
			fmt.Fprintf(app.Err, "Warning: failed to display image: %v\n", err)
		}
	}

	fmt.Fprintln(app.Out, "Done!")
	return nil
}

// applySelectionFlags sets the generate command's style, category and
// filter flags on sel. Nothing is applied when any flag is invalid.
func applySelectionFlags(sel *selection.State) error {
	filters := make(models.Filters)
	for _, f := range flagFilters {
		key, value, ok := strings.Cut(f, "=")
		if !ok {
			return fmt.Errorf("invalid filter %q: want dimension=value", f)
		}
		dim, err := models.ParseDimension(strings.ToLower(strings.TrimSpace(key)))
		if err != nil {
			return err
		}
		if err := filters.Set(dim, dim.CanonicalValue(value)); err != nil {
			return err
		}
	}

	var (
		style    models.Style
		category models.Category
		err      error
	)
	if flagStyle != "" {
		if style, err = models.ParseStyle(strings.ToLower(flagStyle)); err != nil {
			return err
		}
	}
	if flagCategory != "" {
		if category, err = models.ParseCategory(strings.ToLower(flagCategory)); err != nil {
			return err
		}
	}

	if style != "" {
		sel.SetStyle(style)
	}
	if category != "" {
		sel.SetCategory(category)
	}
	return sel.ReplaceFilters(filters)
}

func runBatch(cmd *cobra.Command, args []string, app *App) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if flagParallel < 1 {
		return fmt.Errorf("--parallel must be at least 1, got %d", flagParallel)
	}

	items, err := batch.ParseFile(args[0])
	if err != nil {
		return err
	}

	d, err := app.wire(cmd)
	if err != nil {
		return err
	}
	if err := applySelectionFlags(d.selection); err != nil {
		return err
	}
	snap := d.selection.Snapshot()

	outputDir := d.cfg.OutputDir
	if flagOutputDir != "" {
		outputDir = flagOutputDir
	}

	fmt.Fprintf(app.Out, "Processing %d image(s)...\n\n", len(items))

	proc := batch.NewProcessor(d.client, d.codec, d.results, image.NewSaver(d.codec), d.logger, app.Out, app.Err)
	results, err := proc.Process(ctx, items, &batch.Options{
		OutputDir:       outputDir,
		DefaultStyle:    snap.Style,
		DefaultCategory: snap.Category,
		DefaultFilters:  snap.Filters,
		Parallel:        flagParallel,
		StopOnError:     flagStopOnError,
		DelayMs:         flagDelay,
	})
	proc.PrintSummary(results, len(items))
	if err != nil {
		return err
	}

	if failed := countFailed(results); failed > 0 {
		return fmt.Errorf("%d of %d image(s) failed", failed, len(items))
	}
	return nil
}

func countFailed(results []batch.Result) int {
	n := 0
	for _, r := range results {
		if r.Error != nil {
			n++
		}
	}
	return n
}

func runInteractive(cmd *cobra.Command, app *App) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM)
	defer cancel()

	d, err := app.wire(cmd)
	if err != nil {
		return err
	}

	r := repl.New(&repl.Config{
		In:        app.In,
		Out:       app.Out,
		Err:       app.Err,
		Selection: d.selection,
		Results:   d.results,
		Generator: d.generator,
		NewEditor: d.newEditor,
		Displayer: display.New(app.Out, d.codec),
		Saver:     image.NewSaver(d.codec),
		OutputDir: d.cfg.OutputDir,
		Verbose:   d.cfg.Verbose,
	})
	return r.Run(ctx)
}

func runServe(cmd *cobra.Command, app *App) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	d, err := app.wire(cmd)
	if err != nil {
		return err
	}

	addr := d.cfg.Addr
	if flagAddr != "" {
		addr = flagAddr
	}

	srv := server.New(&server.Config{
		Selection: d.selection,
		Results:   d.results,
		Generator: d.generator,
		NewEditor: d.newEditor,
		Logger:    d.logger,
	})
	fmt.Fprintf(app.Out, "Serving on %s\n", addr)
	return server.ListenAndServe(ctx, addr, srv.Router(), d.logger)
}

func runConfigInit(app *App) error {
	path := flagConfig
	if path == "" {
		p, err := config.DefaultPath()
		if err != nil {
			return fmt.Errorf("failed to resolve config directory: %w", err)
		}
		path = p
	}

	if _, err := os.Stat(path); err == nil && !flagForce {
		return fmt.Errorf("config file %s already exists (use --force to overwrite)", path)
	}

	if err := config.Default().Save(path); err != nil {
		return err
	}
	fmt.Fprintf(app.Out, "Wrote %s\n", path)
	return nil
}

func printCatalog(w io.Writer) {
	fmt.Fprintln(w, "Stitch styles:")
	for _, s := range models.ValidStyles() {
		fmt.Fprintf(w, "  %-12s %s: %s\n", s, s.Label(), s.Description())
	}

	fmt.Fprintln(w, "\nCategories:")
	for _, c := range models.ValidCategories() {
		fmt.Fprintf(w, "  %-12s %s: %s\n", c, c.Label(), c.Description())
	}

	fmt.Fprintln(w, "\nStyle preferences (--filter dimension=value):")
	for _, d := range models.ValidDimensions() {
		fmt.Fprintf(w, "  %-12s %s\n", d.Label(), strings.Join(models.FilterOptions(d), ", "))
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
