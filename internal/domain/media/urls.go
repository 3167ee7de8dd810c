package media

// URLSet is the public URL map for one image:
//
//	{"original": "/uploads/<hash>/a.jpg",
//	 "variants": {"thumb": {"webp": ..., "avif": ..., "jpg": ...}, "medium": {...}, "large": {...}}}
type URLSet struct {
	Original string                         `json:"original"`
	Variants map[SizeClass]map[Format]string `json:"variants"`
}

// Thumbnail picks the thumb URL, preferring webp, then avif, then jpg.
func (u URLSet) Thumbnail() string {
	thumb := u.Variants[SizeThumb]
	for _, f := range []Format{FormatWebP, FormatAVIF, FormatJPEG} {
		if url, ok := thumb[f]; ok && url != "" {
			return url
		}
	}
	return ""
}
