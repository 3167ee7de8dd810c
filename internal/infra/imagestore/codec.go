package imagestore

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/disintegration/imaging"
	"github.com/kolesa-team/go-webp/encoder"
	"github.com/kolesa-team/go-webp/webp"
	xwebp "golang.org/x/image/webp"
)

// AVIFCodec encodes and decodes AVIF. Available is the capability probe; callers branch
// on it instead of treating an encode error as the signal that AVIF is missing.
type AVIFCodec interface {
	Available() bool
	Encode(ctx context.Context, img image.Image, quality int) ([]byte, error)
	Decode(ctx context.Context, data []byte) (image.Image, error)
}

// FFmpegAVIF shells out to ffmpeg.
type FFmpegAVIF struct {
	bin string
}

// NewFFmpegAVIF resolves bin on PATH. When it cannot be found the codec reports unavailable.
func NewFFmpegAVIF(bin string) *FFmpegAVIF {
	path, err := exec.LookPath(bin)
	if err != nil {
		return &FFmpegAVIF{}
	}
	return &FFmpegAVIF{bin: path}
}

func (f *FFmpegAVIF) Available() bool { return f != nil && f.bin != "" }

func (f *FFmpegAVIF) Encode(ctx context.Context, img image.Image, quality int) ([]byte, error) {
	if !f.Available() {
		return nil, fmt.Errorf("ffmpeg is not available for AVIF encoding")
	}

	tmp, err := os.MkdirTemp("", "avif-*")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(tmp)
	out := filepath.Join(tmp, "out.avif")

	var in bytes.Buffer
	if err := png.Encode(&in, img); err != nil {
		return nil, fmt.Errorf("encode png for ffmpeg: %w", err)
	}

	// yuv420p needs even dimensions
	cmd := exec.CommandContext(ctx, f.bin,
		"-hide_banner", "-loglevel", "error",
		"-f", "image2pipe", "-vcodec", "png", "-i", "pipe:0",
		"-vf", "pad=ceil(iw/2)*2:ceil(ih/2)*2",
		"-c:v", "libaom-av1", "-still-picture", "1",
		"-crf", fmt.Sprint(crfFor(quality)),
		"-pix_fmt", "yuv420p",
		"-y", out,
	)
	cmd.Stdin = &in
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffmpeg avif encode: %w: %s", err, stderr.String())
	}
	return os.ReadFile(out)
}

func (f *FFmpegAVIF) Decode(ctx context.Context, data []byte) (image.Image, error) {
	if !f.Available() {
		return nil, fmt.Errorf("ffmpeg is not available for AVIF decoding")
	}
	cmd := exec.CommandContext(ctx, f.bin,
		"-hide_banner", "-loglevel", "error",
		"-i", "pipe:0",
		"-frames:v", "1", "-f", "image2pipe", "-vcodec", "png", "pipe:1",
	)
	cmd.Stdin = bytes.NewReader(data)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffmpeg avif decode: %w: %s", err, stderr.String())
	}
	return png.Decode(&stdout)
}

// crfFor maps a 0..100 quality onto the AV1 0..63 CRF scale.
func crfFor(quality int) int {
	if quality < 0 {
		quality = 0
	}
	if quality > 100 {
		quality = 100
	}
	return int(math.Round(63 - float64(quality)*63/100))
}

func isAVIF(data []byte) bool {
	if len(data) < 12 {
		return false
	}
	brand := string(data[8:12])
	return string(data[4:8]) == "ftyp" && (brand == "avif" || brand == "avis")
}

func isWebP(data []byte) bool {
	return len(data) >= 12 && string(data[0:4]) == "RIFF" && string(data[8:12]) == "WEBP"
}

// decodeWebP uses the pure-Go decoder. Lossy files with alpha come back as *image.NYCbCrA.
func decodeWebP(data []byte) (image.Image, error) {
	return xwebp.Decode(bytes.NewReader(data))
}

// flatten composites img onto white so every variant is opaque RGB.
func flatten(img image.Image) *image.NRGBA {
	if o, ok := img.(interface{ Opaque() bool }); ok && o.Opaque() {
		return imaging.Clone(img)
	}
	b := img.Bounds()
	bg := imaging.New(b.Dx(), b.Dy(), color.White)
	return imaging.Overlay(bg, img, image.Pt(0, 0), 1.0)
}

func encodeJPEG(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func encodeWebP(img image.Image, quality int) ([]byte, error) {
	options, err := encoder.NewLossyEncoderOptions(encoder.PresetDefault, float32(quality))
	if err != nil {
		return nil, fmt.Errorf("webp encoder options: %w", err)
	}
	var buf bytes.Buffer
	if err := webp.Encode(&buf, img, options); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
