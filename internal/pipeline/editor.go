package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/manash/stitchgen/internal/image"
	"github.com/manash/stitchgen/internal/prompt"
	"github.com/manash/stitchgen/internal/provider"
	"github.com/manash/stitchgen/internal/session"
	"github.com/manash/stitchgen/pkg/models"
)

const MaxInstructionLength = 1000

// Editor runs the iterative-edit flow for one seed result. Every successful
// turn replaces the current image and adds a result to the shared store.
type Editor struct {
	client  provider.Generator
	encoder Encoder
	decode  Decoder
	store   ResultStore
	conv    *session.Conversation
	opts    options
	flow    *tracker
}

func NewEditor(seed models.GenerationResult, client provider.Generator, encoder Encoder, store ResultStore, opts ...Option) *Editor {
	o := buildOptions(opts)
	return &Editor{
		client:  client,
		encoder: encoder,
		decode:  image.DecodeImage,
		store:   store,
		conv:    session.New(seed),
		opts:    o,
		flow:    newTracker(o.onChange),
	}
}

func (e *Editor) Seed() models.GenerationResult {
	return e.conv.Seed()
}

func (e *Editor) State() State {
	return e.flow.current()
}

func (e *Editor) Messages() []models.Message {
	return e.conv.Messages()
}

func (e *Editor) CurrentImage() string {
	return e.conv.CurrentImage()
}

// Send applies the free-text instruction to the current image and returns the
// assistant's reply. A failed turn leaves the history and current image as
// they were before the call.
func (e *Editor) Send(ctx context.Context, text string) (models.Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return models.Message{}, ErrEmptyInstruction
	}
	if n := utf8.RuneCountInString(text); n > MaxInstructionLength {
		return models.Message{}, fmt.Errorf("%w: %d characters, max %d", ErrInstructionTooLong, n, MaxInstructionLength)
	}

	if err := e.flow.begin(); err != nil {
		return models.Message{}, err
	}

	seed := e.conv.Seed()
	log := e.opts.logger.With().Str("flow", "edit").Str("seed_id", seed.ID).Logger()
	log.Info().Msg("edit started")
	start := time.Now()

	turn := e.conv.Begin(text)

	ref, err := request(ctx, e.flow, e.client, e.encoder, e.decode, e.conv.CurrentImage(), prompt.BuildEdit(text))
	if err != nil {
		e.conv.Rollback(turn)
		e.flow.finish(StateFailed)
		ferr := &FlowError{Action: ActionEdit, Err: err}
		log.Warn().Err(err).Str("kind", ferr.Kind()).Dur("elapsed", time.Since(start)).Msg("edit failed")
		return models.Message{}, ferr
	}

	reply, err := e.conv.Commit(turn, ref, session.UpdatedReply)
	if err != nil {
		e.flow.finish(StateFailed)
		return models.Message{}, &FlowError{Action: ActionEdit, Err: err}
	}

	result := models.GenerationResult{
		ID:               e.opts.newID(),
		ImageURI:         ref,
		Category:         seed.Category,
		Style:            seed.Style,
		OriginalImageURI: seed.OriginalImageURI,
		Filters:          models.Filters{},
		Timestamp:        e.opts.now(),
	}
	e.store.Append(result)

	e.flow.finish(StateSucceeded)
	log.Info().Str("result_id", result.ID).Dur("elapsed", time.Since(start)).Msg("edit succeeded")
	return reply, nil
}
