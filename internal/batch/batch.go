package batch

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/manash/stitchgen/internal/image"
	"github.com/manash/stitchgen/internal/pipeline"
	"github.com/manash/stitchgen/internal/provider"
	"github.com/manash/stitchgen/internal/security"
	"github.com/manash/stitchgen/internal/selection"
	"github.com/manash/stitchgen/pkg/models"
)

type Result struct {
	Index    int
	Image    string
	ID       string
	Path     string
	Error    error
	Duration time.Duration
}

type Options struct {
	OutputDir       string
	DefaultStyle    models.Style
	DefaultCategory models.Category
	DefaultFilters  models.Filters
	Parallel        int
	StopOnError     bool
	DelayMs         int
}

// Processor runs the new-pattern flow once per item. Every item gets its own
// selection and Generator, so the single in-flight rule holds per item while
// workers run side by side. All results land in one store.
type Processor struct {
	client  provider.Generator
	encoder pipeline.Encoder
	store   pipeline.ResultStore
	saver   *image.Saver
	logger  zerolog.Logger
	out     io.Writer
	err     io.Writer
	outMu   sync.Mutex
}

func NewProcessor(client provider.Generator, encoder pipeline.Encoder, store pipeline.ResultStore, saver *image.Saver, logger zerolog.Logger, out, errOut io.Writer) *Processor {
	return &Processor{
		client:  client,
		encoder: encoder,
		store:   store,
		saver:   saver,
		logger:  logger,
		out:     out,
		err:     errOut,
	}
}

func (p *Processor) printf(format string, args ...interface{}) {
	p.outMu.Lock()
	fmt.Fprintf(p.out, format, args...)
	p.outMu.Unlock()
}

func (p *Processor) errorf(format string, args ...interface{}) {
	p.outMu.Lock()
	fmt.Fprintf(p.err, format, args...)
	p.outMu.Unlock()
}

func (p *Processor) Process(ctx context.Context, items []Item, opts *Options) ([]Result, error) {
	if opts.Parallel <= 1 {
		return p.processSequential(ctx, items, opts)
	}
	return p.processParallel(ctx, items, opts)
}

func (p *Processor) processSequential(ctx context.Context, items []Item, opts *Options) ([]Result, error) {
	results := make([]Result, len(items))
	total := len(items)

	for i, item := range items {
		select {
		case <-ctx.Done():
			return results[:i], ctx.Err()
		default:
		}

		result := p.processItem(ctx, item, opts, i+1, total)
		results[i] = result

		if result.Error != nil && opts.StopOnError {
			return results[:i+1], fmt.Errorf("stopped at item %d: %w", item.Index, result.Error)
		}

		if opts.DelayMs > 0 && i < len(items)-1 {
			select {
			case <-ctx.Done():
				return results[:i+1], ctx.Err()
			case <-time.After(time.Duration(opts.DelayMs) * time.Millisecond):
			}
		}
	}

	return results, nil
}

func (p *Processor) processParallel(ctx context.Context, items []Item, opts *Options) ([]Result, error) {
	results := make([]Result, len(items))
	total := len(items)

	type job struct {
		index int
		item  Item
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	jobs := make(chan job)
	var wg sync.WaitGroup
	var mu sync.Mutex
	var firstErr error
	done := make([]bool, len(items))

	workers := min(opts.Parallel, len(items))
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				result := p.processItem(ctx, j.item, opts, j.index+1, total)

				mu.Lock()
				results[j.index] = result
				done[j.index] = true
				if result.Error != nil && opts.StopOnError && firstErr == nil {
					firstErr = result.Error
					cancel()
				}
				mu.Unlock()
			}
		}()
	}

feed:
	for i, item := range items {
		select {
		case <-ctx.Done():
			break feed
		case jobs <- job{index: i, item: item}:
		}
	}
	close(jobs)
	wg.Wait()

	finished := results[:0:0]
	for i, ok := range done {
		if ok {
			finished = append(finished, results[i])
		}
	}

	if firstErr != nil {
		return finished, fmt.Errorf("batch stopped due to error: %w", firstErr)
	}
	return finished, ctx.Err()
}

func (p *Processor) processItem(ctx context.Context, item Item, opts *Options, current, total int) Result {
	start := time.Now()
	result := Result{
		Index: item.Index,
		Image: item.Image,
	}

	sel := p.selectionFor(item, opts)
	snap := sel.Snapshot()
	p.printf("[%d/%d] %s (%s, %s)\n", current, total, truncate(item.Image, 50), snap.Style, snap.Category)

	gen := pipeline.NewGenerator(p.client, p.encoder, p.store, sel,
		pipeline.WithLogger(p.logger.With().Int("item", item.Index).Logger()))

	res, err := gen.Generate(ctx, item.Image)
	if err != nil {
		result.Error = err
		result.Duration = time.Since(start)
		p.errorf("       Error: %v\n", err)
		return result
	}
	result.ID = res.ID

	path, err := p.save(ctx, item, res, opts)
	if err != nil {
		result.Error = fmt.Errorf("save failed: %w", err)
		result.Duration = time.Since(start)
		p.errorf("       Error: %v\n", result.Error)
		return result
	}

	result.Path = path
	result.Duration = time.Since(start)
	p.printf("       Saved: %s (%s)\n", path, result.Duration.Round(time.Millisecond))
	return result
}

func (p *Processor) selectionFor(item Item, opts *Options) *selection.State {
	style, category := opts.DefaultStyle, opts.DefaultCategory
	if item.Style != "" {
		style = item.Style
	}
	if item.Category != "" {
		category = item.Category
	}

	sel := selection.NewWithDefaults(category, style)
	filters := opts.DefaultFilters.Clone()
	for dim, v := range item.Filters {
		filters[dim] = v
	}
	sel.ReplaceFilters(filters)
	return sel
}

func (p *Processor) save(ctx context.Context, item Item, res models.GenerationResult, opts *Options) (string, error) {
	if item.Output != "" {
		if err := security.ValidateExportPath(item.Output); err != nil {
			return "", err
		}
		return p.saver.Save(ctx, res.ImageURI, filepath.Join(opts.OutputDir, item.Output))
	}
	return p.saver.SaveIn(ctx, res.ImageURI, opts.OutputDir, generateStem(item.Index, res.Style))
}

func generateStem(index int, style models.Style) string {
	return security.SanitizeFilename(fmt.Sprintf("%03d-%s", index, style))
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

func (p *Processor) PrintSummary(results []Result, total int) {
	var successful, failed int
	var elapsed time.Duration
	var errors []Result

	for _, r := range results {
		elapsed += r.Duration
		if r.Error != nil {
			failed++
			errors = append(errors, r)
		} else {
			successful++
		}
	}

	fmt.Fprintln(p.out)
	fmt.Fprintln(p.out, "Summary:")
	fmt.Fprintf(p.out, "  Successful: %d/%d patterns\n", successful, total)
	if failed > 0 {
		fmt.Fprintf(p.out, "  Failed: %d (see errors below)\n", failed)
	}
	if skipped := total - len(results); skipped > 0 {
		fmt.Fprintf(p.out, "  Skipped: %d\n", skipped)
	}
	fmt.Fprintf(p.out, "  Generation time: %s\n", elapsed.Round(time.Millisecond))

	if len(errors) > 0 {
		fmt.Fprintln(p.out)
		fmt.Fprintln(p.out, "Errors:")
		for _, e := range errors {
			fmt.Fprintf(p.out, "  [%d] %s: %v\n", e.Index, truncate(e.Image, 40), e.Error)
		}
	}
}
