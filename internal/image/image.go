package image

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Saver exports image references to files. It is the CLI's share target.
type Saver struct {
	codec *Codec
}

func NewSaver(codec *Codec) *Saver {
	if codec == nil {
		codec = NewCodec()
	}
	return &Saver{codec: codec}
}

// Save writes the bytes behind ref to path. An empty path picks a
// timestamped filename in the working directory. It returns the written path.
func (s *Saver) Save(ctx context.Context, ref, path string) (string, error) {
	data, mimeType, err := s.codec.Read(ctx, ref)
	if err != nil {
		return "", fmt.Errorf("failed to read image: %w", err)
	}

	if path == "" {
		path = GenerateFilename(ExtensionFor(mimeType))
	}

	if err := s.ensureDir(path); err != nil {
		return "", fmt.Errorf("failed to create directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write file: %w", err)
	}

	return path, nil
}

// SaveIn writes ref into dir as <stem>.<ext>, the extension following the
// image's MIME type. An empty stem picks a timestamped name.
func (s *Saver) SaveIn(ctx context.Context, ref, dir, stem string) (string, error) {
	data, mimeType, err := s.codec.Read(ctx, ref)
	if err != nil {
		return "", fmt.Errorf("failed to read image: %w", err)
	}

	name := GenerateFilename(ExtensionFor(mimeType))
	if stem != "" {
		name = stem + "." + ExtensionFor(mimeType)
	}
	path := filepath.Join(dir, name)
	if err := s.ensureDir(path); err != nil {
		return "", fmt.Errorf("failed to create directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write file: %w", err)
	}
	return path, nil
}

func (s *Saver) ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "" || dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0755)
}

func GenerateFilename(ext string) string {
	return GenerateFilenameWithTime(ext, time.Now())
}

func GenerateFilenameWithTime(ext string, t time.Time) string {
	return fmt.Sprintf("pattern-%s.%s", t.Format("20060102-150405.000"), ext)
}
