package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/manash/stitchgen/internal/provider"
	"github.com/manash/stitchgen/pkg/models"
)

// Encoder turns an image reference into the service's wire form.
type Encoder interface {
	Encode(ctx context.Context, ref string) (models.EncodedImage, error)
}

// Decoder turns a service payload back into an image reference.
type Decoder func(img *models.EncodedImage) (string, error)

// ResultStore is the append side of the result list.
type ResultStore interface {
	Append(result models.GenerationResult)
}

type options struct {
	logger   zerolog.Logger
	now      func() time.Time
	newID    func() string
	onChange func(State)
}

type Option func(*options)

func WithLogger(l zerolog.Logger) Option {
	return func(o *options) { o.logger = l }
}

func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

func WithIDGenerator(fn func() string) Option {
	return func(o *options) { o.newID = fn }
}

// OnStateChange registers fn to observe every state transition.
func OnStateChange(fn func(State)) Option {
	return func(o *options) { o.onChange = fn }
}

func buildOptions(opts []Option) options {
	o := options{
		logger: zerolog.Nop(),
		now:    time.Now,
		newID:  func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// request runs the encode and request stages shared by both flows.
func request(ctx context.Context, t *tracker, client provider.Generator, enc Encoder, dec Decoder, ref, prompt string) (string, error) {
	encoded, err := enc.Encode(ctx, ref)
	if err != nil {
		return "", err
	}

	t.set(StateRequesting)

	out, err := client.Generate(ctx, prompt, encoded, models.AspectSquare)
	if err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("%w: %v", provider.ErrServiceUnavailable, err)
	}

	return dec(out)
}
