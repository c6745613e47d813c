package display

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"strings"
	"testing"
)

func testJPEG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	img.Set(1, 1, color.RGBA{R: 200, A: 255})
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		t.Fatalf("jpeg.Encode: %v", err)
	}
	return buf.Bytes()
}

func TestKittyEncoder_Encode_Empty(t *testing.T) {
	var buf bytes.Buffer
	if err := NewKittyEncoder(&buf).Encode(nil); err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	if buf.Len() != 0 {
		t.Errorf("expected no output, got %q", buf.String())
	}
}

func TestKittyEncoder_Encode_Single(t *testing.T) {
	var buf bytes.Buffer
	if err := NewKittyEncoder(&buf).Encode([]byte("small png")); err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	out := buf.String()
	if !strings.HasPrefix(out, "\x1b_Ga=T,f=100,q=2;") {
		t.Errorf("unexpected header: %q", out)
	}
	if !strings.HasSuffix(out, "\x1b\\") {
		t.Error("output should end with escape terminator")
	}
	if strings.Count(out, "\x1b_G") != 1 {
		t.Errorf("expected one chunk, got %d", strings.Count(out, "\x1b_G"))
	}
}

func TestKittyEncoder_Encode_Chunked(t *testing.T) {
	var buf bytes.Buffer
	data := bytes.Repeat([]byte{0xAB}, chunkSize*2)
	if err := NewKittyEncoder(&buf).Encode(data); err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	out := buf.String()
	if n := strings.Count(out, "\x1b_G"); n < 3 {
		t.Errorf("expected at least 3 chunks, got %d", n)
	}
	if !strings.HasPrefix(out, "\x1b_Ga=T,f=100,q=2,m=1;") {
		t.Errorf("first chunk header wrong: %q", out[:30])
	}
	if !strings.Contains(out, "\x1b_Gm=0;") {
		t.Error("last chunk should carry m=0")
	}
}

func TestKittyEncoder_EncodeImage_ConvertsJPEG(t *testing.T) {
	var buf bytes.Buffer
	if err := NewKittyEncoder(&buf).EncodeImage(testJPEG(t), "image/jpeg"); err != nil {
		t.Fatalf("EncodeImage() error = %v", err)
	}
	if !strings.HasPrefix(buf.String(), "\x1b_G") {
		t.Error("expected kitty escape output")
	}
}

func TestToPNG(t *testing.T) {
	out, err := toPNG(testJPEG(t))
	if err != nil {
		t.Fatalf("toPNG() error = %v", err)
	}
	if _, err := png.Decode(bytes.NewReader(out)); err != nil {
		t.Errorf("toPNG() output is not PNG: %v", err)
	}

	if _, err := toPNG([]byte("RIFF....WEBPVP8 ")); !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("toPNG(webp) error = %v, want ErrUnsupportedFormat", err)
	}
}

func TestChunkParams(t *testing.T) {
	tests := []struct {
		i, total int
		want     string
	}{
		{0, 1, "a=T,f=100,q=2"},
		{0, 3, "a=T,f=100,q=2,m=1"},
		{1, 3, "m=1"},
		{2, 3, "m=0"},
	}
	for _, tt := range tests {
		if got := chunkParams(tt.i, tt.total); got != tt.want {
			t.Errorf("chunkParams(%d, %d) = %q, want %q", tt.i, tt.total, got, tt.want)
		}
	}
}

func TestSplitIntoChunks(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		size     int
		expected []string
	}{
		{"empty string", "", 10, nil},
		{"smaller than chunk", "hello", 10, []string{"hello"}},
		{"exact chunk size", "hello", 5, []string{"hello"}},
		{"multiple chunks", "hello world", 5, []string{"hello", " worl", "d"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := splitIntoChunks(tt.input, tt.size)
			if len(result) != len(tt.expected) {
				t.Fatalf("expected %d chunks, got %d", len(tt.expected), len(result))
			}
			for i, chunk := range result {
				if chunk != tt.expected[i] {
					t.Errorf("chunk %d: expected %q, got %q", i, tt.expected[i], chunk)
				}
			}
		})
	}
}

type errorWriter struct {
	err error
}

func (w *errorWriter) Write(p []byte) (int, error) {
	return 0, w.err
}

func TestKittyEncoder_WriteError(t *testing.T) {
	enc := NewKittyEncoder(&errorWriter{err: bytes.ErrTooLarge})
	if err := enc.Encode([]byte("test")); err == nil {
		t.Error("expected error from failing writer")
	}
}
