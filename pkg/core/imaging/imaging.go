// Package imaging bounds captured and uploaded images before they are sent to
// the AI backend.
//
// Images are decoded (JPEG, PNG, GIF, WebP), downscaled so the longest side is
// at most MaxDimension, and re-encoded as JPEG.
package imaging

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	"github.com/vango-go/nava/pkg/core"
	"github.com/vango-go/nava/pkg/core/types"
)

const (
	// MaxDimension bounds images sent for identification, planning and verification.
	MaxDimension = 1920
	// CaptureMaxDimension bounds camera stills.
	CaptureMaxDimension = 1440
	// FrameMaxDimension bounds live video frames.
	FrameMaxDimension = 640

	// PassthroughBytes is the size below which an already bounded JPEG is sent as is.
	PassthroughBytes = 512 * 1024

	// MaxPixels bounds the decoded size of any input image.
	MaxPixels = 50_000_000

	DefaultQuality = 95
	CaptureQuality = 90
	FrameQuality   = 60
)

// Options controls normalization. Zero fields take the package defaults.
type Options struct {
	MaxDimension     int
	Quality          int
	PassthroughBytes int
}

func (o Options) withDefaults() Options {
	if o.MaxDimension <= 0 {
		o.MaxDimension = MaxDimension
	}
	if o.Quality <= 0 || o.Quality > 100 {
		o.Quality = DefaultQuality
	}
	if o.PassthroughBytes < 0 {
		o.PassthroughBytes = 0
	} else if o.PassthroughBytes == 0 {
		o.PassthroughBytes = PassthroughBytes
	}
	return o
}

// Normalize returns img bounded to opts.MaxDimension and encoded as JPEG.
// Small JPEGs that already fit are returned unchanged apart from their
// dimensions being filled in.
func Normalize(img types.Image, opts Options) (types.Image, error) {
	opts = opts.withDefaults()
	if img.IsZero() {
		return types.Image{}, fmt.Errorf("imaging: empty image")
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(img.Data))
	if err != nil {
		return types.Image{}, fmt.Errorf("imaging: decode config: %w", err)
	}
	if int64(cfg.Width)*int64(cfg.Height) > MaxPixels {
		return types.Image{}, core.NewInvalidRequestErrorWithParam(
			fmt.Sprintf("image is %dx%d; at most %d pixels are accepted", cfg.Width, cfg.Height, MaxPixels), "image")
	}
	if format == "jpeg" && len(img.Data) < opts.PassthroughBytes && fits(cfg.Width, cfg.Height, opts.MaxDimension) {
		out := img
		out.MIMEType = "image/jpeg"
		out.Width, out.Height = cfg.Width, cfg.Height
		return out, nil
	}

	src, _, err := image.Decode(bytes.NewReader(img.Data))
	if err != nil {
		return types.Image{}, fmt.Errorf("imaging: decode: %w", err)
	}
	return Encode(src, opts.MaxDimension, opts.Quality)
}

// Encode downscales src to maxDim on its longest side and encodes it as JPEG.
func Encode(src image.Image, maxDim, quality int) (types.Image, error) {
	if src == nil {
		return types.Image{}, fmt.Errorf("imaging: nil image")
	}
	if quality <= 0 || quality > 100 {
		quality = DefaultQuality
	}
	b := src.Bounds()
	w, h := Fit(b.Dx(), b.Dy(), maxDim)
	if w == 0 || h == 0 {
		return types.Image{}, fmt.Errorf("imaging: empty bounds %v", b)
	}

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	// JPEG has no alpha; composite onto white like a canvas export does.
	draw.Draw(dst, dst.Bounds(), &image.Uniform{C: color.White}, image.Point{}, draw.Src)
	if w == b.Dx() && h == b.Dy() {
		draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Over)
	} else {
		draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Over, nil)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: quality}); err != nil {
		return types.Image{}, fmt.Errorf("imaging: encode: %w", err)
	}
	return types.Image{MIMEType: "image/jpeg", Data: buf.Bytes(), Width: w, Height: h}, nil
}

// Fit scales (w, h) so the longest side is at most maxDim, preserving aspect
// ratio. Dimensions already within bounds are returned unchanged.
func Fit(w, h, maxDim int) (int, int) {
	if w <= 0 || h <= 0 {
		return 0, 0
	}
	if maxDim <= 0 || fits(w, h, maxDim) {
		return w, h
	}
	if w >= h {
		nh := h * maxDim / w
		if nh < 1 {
			nh = 1
		}
		return maxDim, nh
	}
	nw := w * maxDim / h
	if nw < 1 {
		nw = 1
	}
	return nw, maxDim
}

func fits(w, h, maxDim int) bool {
	return w <= maxDim && h <= maxDim
}
