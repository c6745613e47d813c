package provider

import (
	"context"
	"errors"
	"time"

	"github.com/manash/stitchgen/pkg/models"
)

var (
	// ErrSourceUnreadable means the local image reference could not be read
	// or encoded. It is always raised before any request is sent.
	ErrSourceUnreadable = errors.New("source image unreadable")
	// ErrServiceUnavailable covers transport errors and non-2xx statuses.
	ErrServiceUnavailable = errors.New("generation service unavailable")
	// ErrMalformedResponse means the service answered 2xx without a usable
	// image payload.
	ErrMalformedResponse = errors.New("malformed generation response")
)

const DefaultTimeout = 60 * time.Second

// Generator sends one prompt and one encoded image to the image-editing
// service. Calls are not idempotent and are never retried.
type Generator interface {
	Generate(ctx context.Context, prompt string, image models.EncodedImage, aspectRatio string) (*models.EncodedImage, error)
}

type Config struct {
	BaseURL string
	Timeout time.Duration
	Verbose bool
}

// IsUserFacing reports whether err belongs to the generation error taxonomy.
func IsUserFacing(err error) bool {
	return errors.Is(err, ErrSourceUnreadable) ||
		errors.Is(err, ErrServiceUnavailable) ||
		errors.Is(err, ErrMalformedResponse)
}
