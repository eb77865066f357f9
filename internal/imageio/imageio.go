// Package imageio loads map images from disk or uploads and writes PNG
// output. Decoders for PNG, JPEG, GIF, BMP, TIFF and WebP are registered.
package imageio

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"io"
	"os"
	"path/filepath"

	"golang.org/x/image/draw"

	_ "golang.org/x/image/bmp"  // BMP decoder registration
	_ "golang.org/x/image/tiff" // TIFF decoder registration
	_ "golang.org/x/image/webp" // WebP decoder registration
)

// ErrTooLarge is returned when an image has more pixels than allowed.
var ErrTooLarge = errors.New("image too large")

// Load opens and decodes an image file.
func Load(path string) (*image.NRGBA, string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, "", errors.Join(errors.New("could not open image file"), err)
	}
	defer file.Close()
	return Decode(file, 0)
}

// Decode reads an image in any registered format and converts it to NRGBA.
// If maxPixels > 0, images with a larger area are rejected before the pixel
// data is decoded.
func Decode(r io.Reader, maxPixels int) (*image.NRGBA, string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, "", errors.Join(errors.New("could not read image"), err)
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, "", errors.Join(errors.New("could not decode image"), err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, format, fmt.Errorf("could not decode image: empty %s image", format)
	}
	if maxPixels > 0 && cfg.Width*cfg.Height > maxPixels {
		return nil, format, fmt.Errorf("%w: %dx%d exceeds %d pixels", ErrTooLarge, cfg.Width, cfg.Height, maxPixels)
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, format, errors.Join(errors.New("could not decode image"), err)
	}
	return ToNRGBA(img), format, nil
}

// ToNRGBA returns img as an NRGBA image with bounds starting at (0,0).
// An NRGBA image already at the origin is returned as is.
func ToNRGBA(img image.Image) *image.NRGBA {
	b := img.Bounds()
	if n, ok := img.(*image.NRGBA); ok && b.Min == (image.Point{}) {
		return n
	}
	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return dst
}

// EncodePNG writes img as PNG.
func EncodePNG(w io.Writer, img image.Image) error {
	if err := png.Encode(w, img); err != nil {
		return fmt.Errorf("encoding PNG: %w", err)
	}
	return nil
}

// SavePNG writes img to path, creating the parent directory if needed.
func SavePNG(path string, img image.Image) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating output dir: %w", err)
		}
	}

	file, err := os.Create(path)
	if err != nil {
		return errors.Join(errors.New("could not create output file"), err)
	}
	if err := EncodePNG(file, img); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}
