package report

import (
	"strings"
	"time"
)

// Variant distinguishes how a PDF was produced
type Variant string

const (
	VariantNone     Variant = ""
	VariantPreview  Variant = "preview"
	VariantFallback Variant = "fallback"
)

// FilePrefix is the prefix of every generated artifact
const FilePrefix = "kantei"

// TimestampLayout is the timestamp part of artifact names
const TimestampLayout = "20060102_150405"

// Filename builds {prefix}_{identifier}_{YYYYMMDD_HHMMSS}[_{variant}].{ext}.
// The identifier is kept byte for byte except for path separators and NUL.
func Filename(prefix, identifier string, ts time.Time, variant Variant, ext string) string {
	var b strings.Builder
	b.WriteString(prefix)
	b.WriteByte('_')
	b.WriteString(SafeIdentifier(identifier))
	b.WriteByte('_')
	b.WriteString(ts.Format(TimestampLayout))
	if variant != VariantNone {
		b.WriteByte('_')
		b.WriteString(string(variant))
	}
	b.WriteByte('.')
	b.WriteString(strings.TrimPrefix(ext, "."))
	return b.String()
}

// SafeIdentifier keeps an identifier usable as one path element without touching any other character
func SafeIdentifier(s string) string {
	if s == "" || s == "." || s == ".." {
		return "unknown"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', 0:
			return '_'
		}
		return r
	}, s)
}
