package models

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var (
	ErrInvalidStyle     = errors.New("invalid embroidery style")
	ErrInvalidCategory  = errors.New("invalid embroidery category")
	ErrInvalidDimension = errors.New("invalid filter dimension")
	ErrEmptyFilterValue = errors.New("filter value cannot be empty")
)

// AspectSquare is the only aspect ratio requested from the generation service.
const AspectSquare = "1:1"

type Style string

const (
	StyleCrossStitch Style = "cross-stitch"
	StyleSatin       Style = "satin"
	StyleRunning     Style = "running"
	StyleFrenchKnot  Style = "french-knot"
)

const DefaultStyle = StyleCrossStitch

func ValidStyles() []Style {
	return []Style{StyleCrossStitch, StyleSatin, StyleRunning, StyleFrenchKnot}
}

func (s Style) IsValid() bool {
	return slices.Contains(ValidStyles(), s)
}

func (s Style) String() string {
	return string(s)
}

func (s Style) Label() string {
	switch s {
	case StyleCrossStitch:
		return "Cross Stitch"
	case StyleSatin:
		return "Satin Stitch"
	case StyleRunning:
		return "Running Stitch"
	case StyleFrenchKnot:
		return "French Knot"
	default:
		return string(s)
	}
}

func (s Style) Description() string {
	switch s {
	case StyleCrossStitch:
		return "Classic pixelated pattern"
	case StyleSatin:
		return "Smooth, filled areas"
	case StyleRunning:
		return "Simple outline style"
	case StyleFrenchKnot:
		return "Textured dot pattern"
	default:
		return ""
	}
}

func ParseStyle(s string) (Style, error) {
	style := Style(s)
	if !style.IsValid() {
		return "", fmt.Errorf("%w: %q not in %v", ErrInvalidStyle, s, ValidStyles())
	}
	return style, nil
}

type Category string

const (
	CategoryImage  Category = "image"
	CategoryLogo   Category = "logo"
	CategoryFont   Category = "font"
	CategoryTattoo Category = "tattoo"
)

const DefaultCategory = CategoryImage

func ValidCategories() []Category {
	return []Category{CategoryImage, CategoryLogo, CategoryFont, CategoryTattoo}
}

func (c Category) IsValid() bool {
	return slices.Contains(ValidCategories(), c)
}

func (c Category) String() string {
	return string(c)
}

func (c Category) Label() string {
	switch c {
	case CategoryImage:
		return "Image Embroidery"
	case CategoryLogo:
		return "Logo Embroidery"
	case CategoryFont:
		return "Font Embroidery"
	case CategoryTattoo:
		return "Tattoo Embroidery"
	default:
		return string(c)
	}
}

func (c Category) Description() string {
	switch c {
	case CategoryImage:
		return "Convert photos to embroidery"
	case CategoryLogo:
		return "Brand and logo designs"
	case CategoryFont:
		return "Text and typography"
	case CategoryTattoo:
		return "Tattoo-style patterns"
	default:
		return ""
	}
}

func ParseCategory(s string) (Category, error) {
	category := Category(s)
	if !category.IsValid() {
		return "", fmt.Errorf("%w: %q not in %v", ErrInvalidCategory, s, ValidCategories())
	}
	return category, nil
}

type FilterDimension string

const (
	DimensionStyle      FilterDimension = "style"
	DimensionColor      FilterDimension = "color"
	DimensionComplexity FilterDimension = "complexity"
	DimensionSize       FilterDimension = "size"
)

// ValidDimensions returns the filter dimensions in canonical order.
func ValidDimensions() []FilterDimension {
	return []FilterDimension{DimensionStyle, DimensionColor, DimensionComplexity, DimensionSize}
}

func (d FilterDimension) IsValid() bool {
	return slices.Contains(ValidDimensions(), d)
}

func (d FilterDimension) String() string {
	return string(d)
}

// Label is the display name, e.g. "Complexity".
func (d FilterDimension) Label() string {
	return cases.Title(language.English).String(string(d))
}

// CanonicalValue returns the suggested option matching value case-insensitively,
// or value unchanged when it is not one of the suggestions.
func (d FilterDimension) CanonicalValue(value string) string {
	value = strings.TrimSpace(value)
	for _, opt := range FilterOptions(d) {
		if strings.EqualFold(opt, value) {
			return opt
		}
	}
	return value
}

func ParseDimension(s string) (FilterDimension, error) {
	dim := FilterDimension(s)
	if !dim.IsValid() {
		return "", fmt.Errorf("%w: %q not in %v", ErrInvalidDimension, s, ValidDimensions())
	}
	return dim, nil
}

// FilterOptions returns the suggested values for a dimension. Values outside
// the suggestions are still accepted.
func FilterOptions(d FilterDimension) []string {
	switch d {
	case DimensionStyle:
		return []string{"Modern", "Vintage", "Minimalist", "Ornate"}
	case DimensionColor:
		return []string{"Monochrome", "Colorful", "Pastel", "Bold"}
	case DimensionComplexity:
		return []string{"Simple", "Medium", "Detailed", "Intricate"}
	case DimensionSize:
		return []string{"Small", "Medium", "Large", "Extra Large"}
	default:
		return nil
	}
}

// Filters holds at most one value per dimension. A missing dimension means
// unconstrained.
type Filters map[FilterDimension]string

func (f Filters) Set(dim FilterDimension, value string) error {
	if !dim.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidDimension, dim)
	}
	if value == "" {
		return fmt.Errorf("%w: %s", ErrEmptyFilterValue, dim)
	}
	f[dim] = value
	return nil
}

// Dimensions returns the present dimensions in canonical order.
func (f Filters) Dimensions() []FilterDimension {
	dims := make([]FilterDimension, 0, len(f))
	for _, d := range ValidDimensions() {
		if _, ok := f[d]; ok {
			dims = append(dims, d)
		}
	}
	return dims
}

func (f Filters) Clone() Filters {
	out := make(Filters, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

func (f Filters) Validate() error {
	for k, v := range f {
		if !k.IsValid() {
			return fmt.Errorf("%w: %q", ErrInvalidDimension, k)
		}
		if v == "" {
			return fmt.Errorf("%w: %s", ErrEmptyFilterValue, k)
		}
	}
	return nil
}

// GenerationResult is one successful generation. It is never mutated after
// it has been appended to the result store.
type GenerationResult struct {
	ID               string    `json:"id"`
	ImageURI         string    `json:"imageUri"`
	Category         Category  `json:"category"`
	Style            Style     `json:"style"`
	OriginalImageURI string    `json:"originalImageUri,omitempty"`
	Filters          Filters   `json:"filters,omitempty"`
	Timestamp        time.Time `json:"timestamp"`
}

func (r GenerationResult) HasOriginal() bool {
	return r.OriginalImageURI != ""
}

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

func (r Role) IsValid() bool {
	return r == RoleUser || r == RoleAssistant
}

type Message struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	ImageURI  string    `json:"imageUri,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// EncodedImage is the wire form of an image: a MIME type and a base64
// payload without any data URI prefix.
type EncodedImage struct {
	MIMEType string
	Data     string
}
