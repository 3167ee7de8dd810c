package imagestore

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"image"
	"mime"
	"net/url"
	"path"
	"strings"

	"costume-rental/internal/apperr"
	"costume-rental/internal/domain/media"

	"github.com/disintegration/imaging"
	"github.com/minio/sha256-simd"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const DefaultMaxBytes = 10 << 20

var allowedTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/webp": true,
	"image/avif": true,
}

type Options struct {
	URLPrefix string
	MaxBytes  int64
	Workers   int
	Matrix    []ClassSpec
}

// Upload is one file as received from the client.
type Upload struct {
	Filename    string
	ContentType string
	Data        []byte
}

type Store struct {
	backend   Backend
	avif      AVIFCodec
	pool      *Pool
	log       *logrus.Logger
	urlPrefix string
	maxBytes  int64
	matrix    []ClassSpec
}

func New(opts Options, backend Backend, avif AVIFCodec, log *logrus.Logger) *Store {
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = DefaultMaxBytes
	}
	if opts.URLPrefix == "" {
		opts.URLPrefix = "/uploads"
	}
	if len(opts.Matrix) == 0 {
		opts.Matrix = DefaultMatrix
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	if avif == nil {
		avif = &FFmpegAVIF{}
	}
	if !avif.Available() {
		log.Warn("[ImageStore] AVIF codec unavailable, AVIF slots will be written as WebP")
	}
	return &Store{
		backend:   backend,
		avif:      avif,
		pool:      NewPool(opts.Workers),
		log:       log,
		urlPrefix: strings.TrimSuffix(opts.URLPrefix, "/"),
		maxBytes:  opts.MaxBytes,
		matrix:    opts.Matrix,
	}
}

// Validate checks the declared type and size. It does no I/O.
func (s *Store) Validate(contentType string, size int64) error {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil || !allowedTypes[strings.ToLower(mt)] {
		return apperr.ErrInvalidMediaType.With("Invalid image type: %s", contentType)
	}
	if size > s.maxBytes {
		return apperr.ErrPayloadTooLarge.With("Image too large (max %dMB)", s.maxBytes>>20)
	}
	return nil
}

// ContentHash is the hex SHA-256 of data; it names the storage directory.
func ContentHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Ingest stores the original and every variant it can produce. A single variant
// failure is logged and skipped; only validation, decode and original-write errors fail.
func (s *Store) Ingest(ctx context.Context, up Upload) (media.ImageDescriptor, error) {
	if err := s.Validate(up.ContentType, int64(len(up.Data))); err != nil {
		return media.ImageDescriptor{}, err
	}

	var desc media.ImageDescriptor
	err := s.pool.Do(ctx, func() error {
		var err error
		desc, err = s.ingest(ctx, up)
		return err
	})
	return desc, err
}

func (s *Store) ingest(ctx context.Context, up Upload) (media.ImageDescriptor, error) {
	name := SanitizeFilename(up.Filename)
	hash := ContentHash(up.Data)
	entry := s.log.WithFields(logrus.Fields{"hash": hash, "file": name})

	img, err := s.decode(ctx, up)
	if err != nil {
		return media.ImageDescriptor{}, apperr.ErrUndecodableImage.With("Failed to process image: %v", err).Wrap(err)
	}

	originalKey := path.Join(hash, name)
	if err := s.backend.Put(ctx, originalKey, up.Data); err != nil {
		return media.ImageDescriptor{}, fmt.Errorf("store original: %w", err)
	}

	flat := flatten(img)
	results := make([][]media.Variant, len(s.matrix))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(len(s.matrix))
	for i, class := range s.matrix {
		g.Go(func() error {
			results[i] = s.renderClass(gctx, entry, flat, hash, name, class)
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return media.ImageDescriptor{}, err
	}

	desc := media.ImageDescriptor{
		OriginalName:         name,
		ContentHash:          hash,
		OriginalRelativePath: originalKey,
		Variants:             []media.Variant{},
	}
	for _, vs := range results {
		for _, v := range vs {
			desc.Variants = append(desc.Variants, v)
			desc.TotalSize += v.ByteSize
		}
	}
	entry.WithField("variants", len(desc.Variants)).Info("[ImageStore] image ingested")
	return desc, nil
}

func (s *Store) decode(ctx context.Context, up Upload) (image.Image, error) {
	switch {
	case isAVIF(up.Data):
		return s.avif.Decode(ctx, up.Data)
	case isWebP(up.Data):
		return decodeWebP(up.Data)
	}
	return imaging.Decode(bytes.NewReader(up.Data), imaging.AutoOrientation(true))
}

// renderClass resizes once for the class and encodes each format slot.
func (s *Store) renderClass(ctx context.Context, entry *logrus.Entry, flat image.Image, hash, name string, class ClassSpec) []media.Variant {
	resized := imaging.Fit(flat, class.Width, class.Height, imaging.Lanczos)
	w, h := resized.Bounds().Dx(), resized.Bounds().Dy()

	var out []media.Variant
	var webpBytes []byte
	var webpKey string

	for _, slot := range class.Slots() {
		if ctx.Err() != nil {
			return out
		}
		slotLog := entry.WithFields(logrus.Fields{"size_class": slot.Class, "format": slot.Format})

		enc, err := s.encodeSlot(ctx, slotLog, resized, slot, webpBytes)
		if err != nil {
			slotLog.WithError(apperr.ErrVariantFailed.Wrap(err)).Warn("[ImageStore] variant skipped")
			continue
		}

		key := path.Join(hash, variantFileName(name, slot.Class, enc.format))
		// the fallback reuses the WebP file already written for this class
		if !(enc.fallback && key == webpKey) {
			if err := s.backend.Put(ctx, key, enc.data); err != nil {
				slotLog.WithError(apperr.ErrVariantFailed.Wrap(err)).Warn("[ImageStore] variant skipped")
				continue
			}
		}
		if slot.Format == media.FormatWebP {
			webpBytes, webpKey = enc.data, key
		}

		out = append(out, media.Variant{
			Format:       enc.format,
			Width:        w,
			Height:       h,
			Quality:      slot.Quality,
			RelativePath: key,
			ByteSize:     int64(len(enc.data)),
			SizeClass:    slot.Class,
			Fallback:     enc.fallback,
		})
	}
	return out
}

type encoded struct {
	data     []byte
	format   media.Format
	fallback bool
}

func (s *Store) encodeSlot(ctx context.Context, slotLog *logrus.Entry, img image.Image, slot VariantSpec, webpBytes []byte) (encoded, error) {
	switch slot.Format {
	case media.FormatJPEG:
		data, err := encodeJPEG(img, slot.Quality)
		return encoded{data: data, format: media.FormatJPEG}, err
	case media.FormatWebP:
		data, err := encodeWebP(img, slot.Quality)
		return encoded{data: data, format: media.FormatWebP}, err
	case media.FormatAVIF:
		if s.avif.Available() {
			data, err := s.avif.Encode(ctx, img, slot.Quality)
			if err == nil {
				return encoded{data: data, format: media.FormatAVIF}, nil
			}
			slotLog.WithError(err).Warn("[ImageStore] AVIF encode failed, falling back to WebP")
		}
		if webpBytes != nil {
			return encoded{data: webpBytes, format: media.FormatWebP, fallback: true}, nil
		}
		data, err := encodeWebP(img, slot.Quality)
		return encoded{data: data, format: media.FormatWebP, fallback: true}, err
	default:
		return encoded{}, fmt.Errorf("unknown format %q", slot.Format)
	}
}

// DeleteByHash removes the hash directory. Missing directories report false, not an error.
func (s *Store) DeleteByHash(ctx context.Context, hash string) (bool, error) {
	if !isContentHash(hash) {
		return false, nil
	}
	return s.backend.DeletePrefix(ctx, hash)
}

// URLsFor builds the URL map for an image from its hash and original name. It does no I/O,
// so AVIF entries point at the designated .avif file even when ingest fell back to WebP;
// use URLsForDescriptor when the descriptor is at hand.
func (s *Store) URLsFor(hash, originalName string) media.URLSet {
	name := SanitizeFilename(originalName)
	set := media.URLSet{
		Original: s.urlFor(path.Join(hash, name)),
		Variants: make(map[media.SizeClass]map[media.Format]string, len(s.matrix)),
	}
	for _, class := range s.matrix {
		formats := make(map[media.Format]string, len(class.Formats))
		for _, f := range class.Formats {
			formats[f] = s.urlFor(path.Join(hash, variantFileName(name, class.Class, f)))
		}
		set.Variants[class.Class] = formats
	}
	return set
}

// URLsForDescriptor is URLsFor with fallback slots redirected to the file actually written.
func (s *Store) URLsForDescriptor(d media.ImageDescriptor) media.URLSet {
	set := s.URLsFor(d.ContentHash, d.OriginalName)
	for _, v := range d.Variants {
		if !v.Fallback {
			continue
		}
		if formats, ok := set.Variants[v.SizeClass]; ok {
			formats[media.FormatAVIF] = s.urlFor(v.RelativePath)
		}
	}
	return set
}

func (s *Store) urlFor(key string) string {
	dir, file := path.Split(key)
	return s.urlPrefix + "/" + dir + url.PathEscape(file)
}

func isContentHash(h string) bool {
	if len(h) != sha256.Size*2 {
		return false
	}
	_, err := hex.DecodeString(h)
	return err == nil
}
