package walkmap

import (
	"errors"
	"fmt"
	"image"

	"github.com/Faultbox/waypath/pkg/geom"
)

// ErrNoSource is returned when Build is called without a pixel source.
var ErrNoSource = errors.New("no pixel source")

// Sampler supplies pixel colors in grid space. Pixel reading belongs to the
// host; the builder never decodes images itself.
type Sampler interface {
	// Size returns the grid dimensions of the source.
	Size() geom.Size
	// ColorAt returns the color at p. Callers only pass points inside Size.
	ColorAt(p geom.Point) Color
}

// ImageSampler adapts an image.Image to a Sampler. Grid coordinates are
// relative to the image bounds' minimum point.
type ImageSampler struct {
	img    image.Image
	bounds image.Rectangle
	nrgba  *image.NRGBA
}

// NewImageSampler wraps img.
func NewImageSampler(img image.Image) *ImageSampler {
	s := &ImageSampler{img: img, bounds: img.Bounds()}
	if n, ok := img.(*image.NRGBA); ok {
		s.nrgba = n
	}
	return s
}

// Image returns the wrapped image.
func (s *ImageSampler) Image() image.Image { return s.img }

// Size implements Sampler.
func (s *ImageSampler) Size() geom.Size {
	return geom.Size{Width: s.bounds.Dx(), Height: s.bounds.Dy()}
}

// ColorAt implements Sampler.
func (s *ImageSampler) ColorAt(p geom.Point) Color {
	x, y := s.bounds.Min.X+p.X, s.bounds.Min.Y+p.Y
	if s.nrgba != nil {
		i := s.nrgba.PixOffset(x, y)
		px := s.nrgba.Pix[i : i+4 : i+4]
		return Color{R: px[0], G: px[1], B: px[2], A: px[3]}
	}
	return FromColor(s.img.At(x, y))
}

// Build classifies every pixel of src against set and returns the grid.
// The result depends only on the pixels, the set and the policy.
// An empty set yields an all-blocked grid.
func Build(src Sampler, set *ColorSet, policy Policy) (*Grid, error) {
	if src == nil {
		return nil, ErrNoSource
	}
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	size := src.Size()
	if !size.Valid() {
		return nil, fmt.Errorf("%w: source %s", geom.ErrInvalidSize, size)
	}

	grid := NewGrid(size)
	if set.Len() == 0 {
		return grid, nil
	}

	m := newMatcher(set, policy)
	i := 0
	for y := 0; y < size.Height; y++ {
		for x := 0; x < size.Width; x++ {
			grid.cells[i] = m.match(src.ColorAt(geom.Point{X: x, Y: y}))
			i++
		}
	}
	return grid, nil
}
