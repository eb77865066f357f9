package walkmap

import (
	"errors"
	"fmt"
	"math"

	colorful "github.com/lucasb-eyer/go-colorful"
)

// Policy errors.
var (
	ErrUnknownMetric    = errors.New("unknown color metric")
	ErrInvalidThreshold = errors.New("threshold must be positive")
)

// Metric names a color distance formula.
type Metric string

// Supported metrics.
const (
	// MetricRGB is the Euclidean distance over R, G and B.
	MetricRGB Metric = "rgb"
	// MetricPairwise is the smallest Euclidean distance over the channel
	// pairs RG, GB and BR.
	MetricPairwise Metric = "pairwise"
	// MetricLab is the CIE76 delta E between the colors in L*a*b* space.
	MetricLab Metric = "lab"
)

// Default thresholds per metric, in the units of each metric.
const (
	DefaultRGBThreshold      = 30
	DefaultPairwiseThreshold = 50
	DefaultLabThreshold      = 10
)

// Policy decides how close a pixel must be to a walkable color.
// A pixel matches when its distance is strictly below Threshold.
type Policy struct {
	Metric    Metric  `yaml:"metric" json:"metric"`
	Threshold float64 `yaml:"threshold" json:"threshold"`
}

// DefaultPolicy returns RGB Euclidean distance with threshold 30.
func DefaultPolicy() Policy {
	return Policy{Metric: MetricRGB, Threshold: DefaultRGBThreshold}
}

// DefaultThreshold returns the default threshold for m, or 0 if m is unknown.
func DefaultThreshold(m Metric) float64 {
	switch m {
	case MetricRGB:
		return DefaultRGBThreshold
	case MetricPairwise:
		return DefaultPairwiseThreshold
	case MetricLab:
		return DefaultLabThreshold
	}
	return 0
}

// Validate checks the metric name and threshold.
func (p Policy) Validate() error {
	switch p.Metric {
	case MetricRGB, MetricPairwise, MetricLab:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownMetric, p.Metric)
	}
	if !(p.Threshold > 0) || math.IsInf(p.Threshold, 0) {
		return fmt.Errorf("%w: %v", ErrInvalidThreshold, p.Threshold)
	}
	return nil
}

// Distance returns the distance between a and b under the policy's metric.
// Alpha is ignored.
func (p Policy) Distance(a, b Color) float64 {
	switch p.Metric {
	case MetricPairwise:
		return math.Sqrt(float64(pairwiseSq(a, b)))
	case MetricLab:
		return labDistance(toLab(a), toLab(b))
	default:
		return math.Sqrt(float64(rgbSq(a, b)))
	}
}

// IsWalkable reports whether pixel is within the threshold of at least one
// color in set. An empty set matches nothing.
func IsWalkable(pixel Color, set *ColorSet, p Policy) bool {
	return newMatcher(set, p).match(pixel)
}

// matcher precomputes per-set state so the per-pixel check stays cheap.
type matcher struct {
	metric Metric
	refs   []Color
	labs   [][3]float64
	limit  float64 // squared threshold for rgb/pairwise, plain for lab
	sqLim  int

	// Adjacent pixels usually share a color.
	primed bool
	last   Color
	lastOK bool
}

func newMatcher(set *ColorSet, p Policy) *matcher {
	m := &matcher{
		metric: p.Metric,
		refs:   set.Colors(),
		limit:  p.Threshold,
	}
	switch p.Metric {
	case MetricLab:
		m.labs = make([][3]float64, len(m.refs))
		for i, c := range m.refs {
			m.labs[i] = toLab(c)
		}
	default:
		// Integer squared distances are exact; compare against ceil(t²)
		// so that d < t  <=>  d² < t²  <=>  d² < ceil(t²) for integer d².
		m.sqLim = int(math.Ceil(p.Threshold * p.Threshold))
	}
	return m
}

func (m *matcher) match(c Color) bool {
	if len(m.refs) == 0 {
		return false
	}
	if m.primed && c == m.last {
		return m.lastOK
	}
	ok := m.compute(c)
	m.primed, m.last, m.lastOK = true, c, ok
	return ok
}

func (m *matcher) compute(c Color) bool {
	switch m.metric {
	case MetricLab:
		lab := toLab(c)
		for _, ref := range m.labs {
			if labDistance(lab, ref) < m.limit {
				return true
			}
		}
	case MetricPairwise:
		for _, ref := range m.refs {
			if pairwiseSq(c, ref) < m.sqLim {
				return true
			}
		}
	default:
		for _, ref := range m.refs {
			if rgbSq(c, ref) < m.sqLim {
				return true
			}
		}
	}
	return false
}

func rgbSq(a, b Color) int {
	dr := int(a.R) - int(b.R)
	dg := int(a.G) - int(b.G)
	db := int(a.B) - int(b.B)
	return dr*dr + dg*dg + db*db
}

func pairwiseSq(a, b Color) int {
	dr := int(a.R) - int(b.R)
	dg := int(a.G) - int(b.G)
	db := int(a.B) - int(b.B)
	rg := dr*dr + dg*dg
	gb := dg*dg + db*db
	br := db*db + dr*dr
	return min(rg, gb, br)
}

func toLab(c Color) [3]float64 {
	l, a, b := colorful.Color{
		R: float64(c.R) / 255,
		G: float64(c.G) / 255,
		B: float64(c.B) / 255,
	}.Lab()
	// go-colorful reports L in [0,1]; scale to the usual delta E units.
	return [3]float64{l * 100, a * 100, b * 100}
}

func labDistance(x, y [3]float64) float64 {
	dl := x[0] - y[0]
	da := x[1] - y[1]
	db := x[2] - y[2]
	return math.Sqrt(dl*dl + da*da + db*db)
}
