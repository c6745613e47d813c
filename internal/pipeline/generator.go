package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/manash/stitchgen/internal/image"
	"github.com/manash/stitchgen/internal/prompt"
	"github.com/manash/stitchgen/internal/provider"
	"github.com/manash/stitchgen/internal/selection"
	"github.com/manash/stitchgen/pkg/models"
)

// Generator runs the new-pattern flow: one picked image plus the current
// selection in, one stored result out.
type Generator struct {
	client    provider.Generator
	encoder   Encoder
	decode    Decoder
	store     ResultStore
	selection *selection.State
	opts      options
	flow      *tracker

	mu        sync.RWMutex
	displayed string
}

func NewGenerator(client provider.Generator, encoder Encoder, store ResultStore, sel *selection.State, opts ...Option) *Generator {
	o := buildOptions(opts)
	return &Generator{
		client:    client,
		encoder:   encoder,
		decode:    image.DecodeImage,
		store:     store,
		selection: sel,
		opts:      o,
		flow:      newTracker(o.onChange),
	}
}

func (g *Generator) State() State {
	return g.flow.current()
}

// Displayed returns the image reference of the last successful generation.
func (g *Generator) Displayed() string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.displayed
}

// Generate turns sourceRef into an embroidery pattern using the selection as
// it is at call time. On failure nothing is stored and the displayed image
// stays as it was.
func (g *Generator) Generate(ctx context.Context, sourceRef string) (models.GenerationResult, error) {
	snap := g.selection.Snapshot()

	if err := g.flow.begin(); err != nil {
		return models.GenerationResult{}, err
	}

	log := g.opts.logger.With().Str("flow", "generate").Str("style", snap.Style.String()).Str("category", snap.Category.String()).Logger()
	log.Info().Msg("generation started")
	start := time.Now()

	p := prompt.Build(snap.Style, snap.Category, snap.Filters)
	ref, err := request(ctx, g.flow, g.client, g.encoder, g.decode, sourceRef, p)
	if err != nil {
		g.flow.finish(StateFailed)
		ferr := &FlowError{Action: ActionGenerate, Err: err}
		log.Warn().Err(err).Str("kind", ferr.Kind()).Dur("elapsed", time.Since(start)).Msg("generation failed")
		return models.GenerationResult{}, ferr
	}

	result := models.GenerationResult{
		ID:               g.opts.newID(),
		ImageURI:         ref,
		Category:         snap.Category,
		Style:            snap.Style,
		OriginalImageURI: sourceRef,
		Filters:          snap.Filters,
		Timestamp:        g.opts.now(),
	}

	g.mu.Lock()
	g.displayed = ref
	g.mu.Unlock()
	g.store.Append(result)

	g.flow.finish(StateSucceeded)
	log.Info().Str("result_id", result.ID).Dur("elapsed", time.Since(start)).Msg("generation succeeded")
	return result, nil
}
