package display

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"io"
)

const (
	escapeStart = "\x1b_G"
	escapeEnd   = "\x1b\\"
	chunkSize   = 4096
)

var ErrUnsupportedFormat = errors.New("image format cannot be shown inline")

// KittyEncoder writes images using the kitty graphics protocol. The protocol
// transmits PNG (f=100), so other formats are converted first.
type KittyEncoder struct {
	out io.Writer
}

func NewKittyEncoder(out io.Writer) *KittyEncoder {
	return &KittyEncoder{out: out}
}

// EncodeImage writes data of the given MIME type.
func (e *KittyEncoder) EncodeImage(data []byte, mimeType string) error {
	if mimeType != "image/png" {
		converted, err := toPNG(data)
		if err != nil {
			return err
		}
		data = converted
	}
	return e.Encode(data)
}

// Encode writes PNG bytes.
func (e *KittyEncoder) Encode(data []byte) error {
	if len(data) == 0 {
		return nil
	}

	payload := base64.StdEncoding.EncodeToString(data)
	chunks := splitIntoChunks(payload, chunkSize)

	for i, chunk := range chunks {
		if _, err := fmt.Fprintf(e.out, "%s%s;%s%s", escapeStart, chunkParams(i, len(chunks)), chunk, escapeEnd); err != nil {
			return err
		}
	}
	return nil
}

func chunkParams(i, total int) string {
	switch {
	case total == 1:
		return "a=T,f=100,q=2"
	case i == 0:
		return "a=T,f=100,q=2,m=1"
	case i == total-1:
		return "m=0"
	default:
		return "m=1"
	}
}

func toPNG(data []byte) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedFormat, err)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedFormat, err)
	}
	return buf.Bytes(), nil
}

func splitIntoChunks(s string, size int) []string {
	var chunks []string
	for len(s) > 0 {
		n := min(size, len(s))
		chunks = append(chunks, s[:n])
		s = s[n:]
	}
	return chunks
}
