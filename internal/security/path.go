package security

import (
	"errors"
	"path/filepath"
	"strings"
	"unicode"
)

var (
	ErrPathTraversal = errors.New("path traversal detected")
	ErrAbsolutePath  = errors.New("absolute paths are not allowed")
	ErrReservedName  = errors.New("reserved filename not allowed")
	ErrLeadingHyphen = errors.New("filename cannot start with hyphen")
)

// Device names Windows refuses as file names, with or without an extension.
var reservedStems = map[string]bool{
	"con": true, "prn": true, "aux": true, "nul": true,
	"com1": true, "com2": true, "com3": true, "com4": true,
	"com5": true, "com6": true, "com7": true, "com8": true, "com9": true,
	"lpt1": true, "lpt2": true, "lpt3": true, "lpt4": true,
	"lpt5": true, "lpt6": true, "lpt7": true, "lpt8": true, "lpt9": true,
}

// maxStemLen bounds generated pattern file names before the extension is added.
const maxStemLen = 96

// fallbackStem names an export whose label sanitizes to nothing.
const fallbackStem = "pattern"

// ValidateExportPath accepts relative paths that stay below the export
// directory. Every element is checked, so "out/../x.png" is refused even
// though it cleans to a harmless path.
func ValidateExportPath(path string) error {
	if filepath.IsAbs(path) || strings.HasPrefix(path, `\`) || filepath.VolumeName(path) != "" {
		return ErrAbsolutePath
	}

	elems := strings.FieldsFunc(path, func(r rune) bool { return r == '/' || r == '\\' })
	for _, elem := range elems {
		if elem == ".." {
			return ErrPathTraversal
		}
	}

	name := filepath.Base(filepath.Clean(path))
	switch {
	case isReserved(name):
		return ErrReservedName
	case strings.HasPrefix(name, "-"):
		return ErrLeadingHyphen
	}
	return nil
}

// SanitizeFilename turns a pattern label such as "cross-stitch 1a2b" into a
// file name. Separators and spaces become hyphens, runs of hyphens collapse,
// and characters Windows rejects are dropped.
func SanitizeFilename(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	var prev rune
	for _, r := range name {
		switch {
		case r == '/' || r == '\\' || r == ':' || unicode.IsSpace(r):
			r = '-'
		case strings.ContainsRune(`*?"<>|`, r) || unicode.IsControl(r):
			continue
		}
		if r == '-' && prev == '-' {
			continue
		}
		b.WriteRune(r)
		prev = r
	}

	out := strings.TrimLeft(b.String(), ".-")
	out = strings.TrimRight(out, ". -")
	if len(out) > maxStemLen {
		out = strings.ToValidUTF8(out[:maxStemLen], "")
		out = strings.TrimRight(out, ". -")
	}

	if out == "" {
		return fallbackStem
	}
	if isReserved(out) {
		out += "_"
	}
	return out
}

func isReserved(name string) bool {
	stem := strings.ToLower(name)
	stem = strings.TrimSuffix(stem, filepath.Ext(stem))
	return reservedStems[stem]
}
