package display

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
)

// ImageReader resolves an image reference to its bytes and MIME type.
type ImageReader interface {
	Read(ctx context.Context, ref string) ([]byte, string, error)
}

// Displayer shows image references in the terminal, inline when the terminal
// speaks the kitty graphics protocol and as a one-line summary otherwise.
type Displayer struct {
	out    io.Writer
	reader ImageReader
	inline bool
}

func New(out io.Writer, reader ImageReader) *Displayer {
	return &Displayer{
		out:    out,
		reader: reader,
		inline: IsTerminalSupported(),
	}
}

// SetInline overrides terminal detection.
func (d *Displayer) SetInline(inline bool) {
	d.inline = inline
}

func (d *Displayer) Inline() bool {
	return d.inline
}

func (d *Displayer) Show(ctx context.Context, ref string) error {
	data, mimeType, err := d.reader.Read(ctx, ref)
	if err != nil {
		return err
	}

	if d.inline {
		err := NewKittyEncoder(d.out).EncodeImage(data, mimeType)
		if err == nil {
			fmt.Fprintln(d.out)
			return nil
		}
		if !errors.Is(err, ErrUnsupportedFormat) {
			return fmt.Errorf("failed to encode image: %w", err)
		}
	}

	_, err = fmt.Fprintf(d.out, "[%s, %s]\n", mimeType, humanize.Bytes(uint64(len(data))))
	return err
}

func IsTerminalSupported() bool {
	termProgram := strings.ToLower(os.Getenv("TERM_PROGRAM"))
	for _, prog := range []string{"kitty", "ghostty", "wezterm"} {
		if termProgram == prog {
			return true
		}
	}

	if os.Getenv("KITTY_WINDOW_ID") != "" {
		return true
	}

	term := strings.ToLower(os.Getenv("TERM"))
	return strings.Contains(term, "kitty") || strings.Contains(term, "ghostty")
}
