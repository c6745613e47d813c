// Package prompt turns the selection state into the instruction sent to the
// image-editing service.
package prompt

import (
	"strings"

	"github.com/manash/stitchgen/pkg/models"
)

var styleTemplates = map[models.Style]string{
	models.StyleCrossStitch: "Transform this image into a cross-stitch embroidery pattern with visible grid squares, pixelated effect, and typical cross-stitch colors. Make it look like a handmade cross-stitch craft with clear X-shaped stitches.",
	models.StyleSatin:       "Convert this image into a satin stitch embroidery pattern with smooth, filled areas, elegant shading, and glossy thread appearance. Make it look luxurious and refined with parallel stitch lines.",
	models.StyleRunning:     "Transform this image into a running stitch embroidery pattern with simple continuous lines, outline style, and hand-stitched aesthetic. Use minimal, elegant linework.",
	models.StyleFrenchKnot:  "Convert this image into a French knot embroidery pattern with textured dot clusters, dimensional effect, and delicate knotted appearance. Create a stippled, tactile look.",
}

var categoryClauses = map[models.Category]string{
	models.CategoryImage:  "a photo or image",
	models.CategoryLogo:   "a logo or brand design with clean lines and solid shapes",
	models.CategoryFont:   "text or typography with decorative lettering",
	models.CategoryTattoo: "a tattoo-style design with bold linework and artistic details",
}

// Input is everything a prompt can be derived from. FreeText, when set,
// replaces the template output entirely.
type Input struct {
	Style    models.Style
	Category models.Category
	Filters  models.Filters
	FreeText string
}

func Prompt(in Input) string {
	if in.FreeText != "" {
		return BuildEdit(in.FreeText)
	}
	return Build(in.Style, in.Category, in.Filters)
}

// Build returns the style template, the category clause and, when any filter
// is set, a trailing "Style preferences" sentence.
func Build(style models.Style, category models.Category, filters models.Filters) string {
	var b strings.Builder
	b.WriteString(StyleTemplate(style))
	b.WriteString(" This is ")
	b.WriteString(CategoryClause(category))
	b.WriteString(".")

	if clause := FilterClause(filters); clause != "" {
		b.WriteString(" Style preferences: ")
		b.WriteString(clause)
		b.WriteString(".")
	}
	return b.String()
}

// BuildEdit returns the instruction for an editor turn: the user's text, as is.
func BuildEdit(freeText string) string {
	return freeText
}

func StyleTemplate(style models.Style) string {
	if tmpl, ok := styleTemplates[style]; ok {
		return tmpl
	}
	return styleTemplates[models.DefaultStyle]
}

func CategoryClause(category models.Category) string {
	if clause, ok := categoryClauses[category]; ok {
		return clause
	}
	return categoryClauses[models.DefaultCategory]
}

// FilterClause serializes filters as "dimension: value" pairs in canonical
// dimension order. It returns "" when no filter is set.
func FilterClause(filters models.Filters) string {
	dims := filters.Dimensions()
	if len(dims) == 0 {
		return ""
	}
	parts := make([]string, 0, len(dims))
	for _, d := range dims {
		parts = append(parts, d.String()+": "+filters[d])
	}
	return strings.Join(parts, ", ")
}
