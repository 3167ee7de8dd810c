package media

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

type Format string

const (
	FormatWebP Format = "webp"
	FormatAVIF Format = "avif"
	FormatJPEG Format = "jpg"
)

type SizeClass string

const (
	SizeThumb  SizeClass = "thumb"
	SizeMedium SizeClass = "medium"
	SizeLarge  SizeClass = "large"
)

// Variant is one generated rendition of an uploaded image.
//
// Format is the encoding actually written. When an AVIF slot falls back to WebP,
// Format is "webp" and Fallback is set, so a class may carry two webp records.
type Variant struct {
	Format       Format    `json:"format"`
	Width        int       `json:"width"`
	Height       int       `json:"height"`
	Quality      int       `json:"quality"`
	RelativePath string    `json:"path"`
	ByteSize     int64     `json:"size"`
	SizeClass    SizeClass `json:"size_class"`
	Fallback     bool      `json:"fallback,omitempty"`
}

// ImageDescriptor describes one ingested upload. It is embedded in exactly one costume;
// the hash directory it names belongs to the image store.
type ImageDescriptor struct {
	OriginalName         string    `json:"original_name"`
	ContentHash          string    `json:"hash"`
	OriginalRelativePath string    `json:"original_path"`
	Variants             []Variant `json:"variants"`
	TotalSize            int64     `json:"total_size"`
}

// Variant returns the record for the given class whose requested slot was format.
func (d ImageDescriptor) Variant(class SizeClass, format Format) (Variant, bool) {
	for _, v := range d.Variants {
		if v.SizeClass != class {
			continue
		}
		if v.Format == format && !v.Fallback {
			return v, true
		}
		if format == FormatAVIF && v.Fallback {
			return v, true
		}
	}
	return Variant{}, false
}

// ImageList is the JSON column holding a costume's images.
type ImageList []ImageDescriptor

func (l ImageList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	b, err := json.Marshal(l)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (l *ImageList) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*l = ImageList{}
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("media: cannot scan %T into ImageList", src)
	}
	if len(raw) == 0 {
		*l = ImageList{}
		return nil
	}
	return json.Unmarshal(raw, l)
}

func (ImageList) GormDBDataType(db *gorm.DB, _ *schema.Field) string {
	if db.Dialector.Name() == "postgres" {
		return "jsonb"
	}
	return "text"
}

// Hashes lists the content hashes in order.
func (l ImageList) Hashes() []string {
	out := make([]string, 0, len(l))
	for _, d := range l {
		out = append(out, d.ContentHash)
	}
	return out
}
