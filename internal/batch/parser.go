package batch

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/manash/stitchgen/pkg/models"
)

// Item is one source image to turn into a pattern. Empty fields take the
// batch defaults.
type Item struct {
	Index    int
	Image    string
	Style    models.Style
	Category models.Category
	Filters  models.Filters
	Output   string
}

type fileItem struct {
	Image    string            `json:"image" yaml:"image"`
	Style    string            `json:"style,omitempty" yaml:"style,omitempty"`
	Category string            `json:"category,omitempty" yaml:"category,omitempty"`
	Filters  map[string]string `json:"filters,omitempty" yaml:"filters,omitempty"`
	Output   string            `json:"output,omitempty" yaml:"output,omitempty"`
}

func ParseFile(path string) ([]Item, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".json":
		return ParseJSON(file)
	case ".yaml", ".yml":
		return ParseYAML(file)
	case ".txt", "":
		return ParseText(file)
	default:
		return nil, fmt.Errorf("unsupported file format %q: use .txt, .json or .yaml", ext)
	}
}

// ParseText reads one image reference per line. Blank lines and lines
// starting with # are skipped.
func ParseText(r io.Reader) ([]Item, error) {
	var items []Item
	scanner := bufio.NewScanner(r)
	index := 0

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		index++
		items = append(items, Item{
			Index: index,
			Image: line,
		})
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	if len(items) == 0 {
		return nil, fmt.Errorf("no images found in file")
	}

	return items, nil
}

func ParseJSON(r io.Reader) ([]Item, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	var raw []fileItem
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse JSON: %w", err)
	}
	return convert(raw)
}

func ParseYAML(r io.Reader) ([]Item, error) {
	var raw []fileItem
	if err := yaml.NewDecoder(r).Decode(&raw); err != nil {
		if err == io.EOF {
			return nil, fmt.Errorf("no images found in file")
		}
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	return convert(raw)
}

func convert(raw []fileItem) ([]Item, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("no images found in file")
	}

	items := make([]Item, len(raw))
	for i, fi := range raw {
		if strings.TrimSpace(fi.Image) == "" {
			return nil, fmt.Errorf("item %d has no image", i+1)
		}

		item := Item{
			Index:  i + 1,
			Image:  strings.TrimSpace(fi.Image),
			Output: fi.Output,
		}

		if fi.Style != "" {
			style, err := models.ParseStyle(strings.ToLower(fi.Style))
			if err != nil {
				return nil, fmt.Errorf("item %d: %w", i+1, err)
			}
			item.Style = style
		}
		if fi.Category != "" {
			category, err := models.ParseCategory(strings.ToLower(fi.Category))
			if err != nil {
				return nil, fmt.Errorf("item %d: %w", i+1, err)
			}
			item.Category = category
		}
		if len(fi.Filters) > 0 {
			item.Filters = make(models.Filters, len(fi.Filters))
			for k, v := range fi.Filters {
				dim, err := models.ParseDimension(strings.ToLower(k))
				if err != nil {
					return nil, fmt.Errorf("item %d: %w", i+1, err)
				}
				if err := item.Filters.Set(dim, dim.CanonicalValue(v)); err != nil {
					return nil, fmt.Errorf("item %d: %w", i+1, err)
				}
			}
		}

		items[i] = item
	}

	return items, nil
}
