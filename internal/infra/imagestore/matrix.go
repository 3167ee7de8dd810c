package imagestore

import (
	"path/filepath"
	"strings"

	"costume-rental/internal/domain/media"
)

// VariantSpec is one slot of the variant matrix.
type VariantSpec struct {
	Class   media.SizeClass
	Format  media.Format
	Width   int
	Height  int
	Quality int
}

// ClassSpec groups the formats generated for one bounding box.
type ClassSpec struct {
	Class   media.SizeClass
	Width   int
	Height  int
	Quality int
	Formats []media.Format
}

func (c ClassSpec) Slots() []VariantSpec {
	out := make([]VariantSpec, 0, len(c.Formats))
	for _, f := range c.Formats {
		out = append(out, VariantSpec{Class: c.Class, Format: f, Width: c.Width, Height: c.Height, Quality: c.Quality})
	}
	return out
}

// WebP comes first in every class so an AVIF fallback can reuse its bytes.
var DefaultMatrix = []ClassSpec{
	{Class: media.SizeThumb, Width: 200, Height: 200, Quality: 80, Formats: []media.Format{media.FormatWebP, media.FormatAVIF, media.FormatJPEG}},
	{Class: media.SizeMedium, Width: 800, Height: 800, Quality: 85, Formats: []media.Format{media.FormatWebP, media.FormatAVIF, media.FormatJPEG}},
	{Class: media.SizeLarge, Width: 1920, Height: 1920, Quality: 90, Formats: []media.Format{media.FormatWebP, media.FormatAVIF, media.FormatJPEG}},
}

// SanitizeFilename keeps only the base name of an uploaded file.
func SanitizeFilename(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = filepath.Base(strings.TrimSpace(name))
	if name == "." || name == "/" || name == ".." || name == "" {
		return "image"
	}
	if strings.HasPrefix(name, ".") && filepath.Ext(name) == name {
		return "image" + name
	}
	return name
}

// variantFileName builds "<stem>_<class>.<format>".
func variantFileName(original string, class media.SizeClass, format media.Format) string {
	stem := strings.TrimSuffix(original, filepath.Ext(original))
	return stem + "_" + string(class) + "." + string(format)
}

func contentTypeFor(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".webp":
		return "image/webp"
	case ".avif":
		return "image/avif"
	default:
		return "application/octet-stream"
	}
}
