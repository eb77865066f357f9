package walkmap

// ColorSet is an insertion-ordered set of walkable colors.
// Two colors are the same entry when all four channels are equal.
type ColorSet struct {
	colors []Color
}

// NewColorSet creates a set from the given colors, dropping duplicates.
func NewColorSet(colors ...Color) *ColorSet {
	s := &ColorSet{}
	for _, c := range colors {
		s.Add(c)
	}
	return s
}

// Len returns the number of colors.
func (s *ColorSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.colors)
}

// Contains reports whether c is in the set.
func (s *ColorSet) Contains(c Color) bool {
	return s.indexOf(c) >= 0
}

// Add appends c. Returns false if it was already present.
func (s *ColorSet) Add(c Color) bool {
	if s.Contains(c) {
		return false
	}
	s.colors = append(s.colors, c)
	return true
}

// Remove deletes c, keeping the order of the remaining colors.
// Returns false if c was not present.
func (s *ColorSet) Remove(c Color) bool {
	i := s.indexOf(c)
	if i < 0 {
		return false
	}
	s.colors = append(s.colors[:i], s.colors[i+1:]...)
	return true
}

// Toggle removes c if present, otherwise adds it.
// Returns true if c is in the set afterwards.
func (s *ColorSet) Toggle(c Color) bool {
	if s.Remove(c) {
		return false
	}
	s.colors = append(s.colors, c)
	return true
}

// Clear removes all colors.
func (s *ColorSet) Clear() {
	s.colors = s.colors[:0]
}

// Colors returns a copy of the colors in insertion order.
func (s *ColorSet) Colors() []Color {
	if s == nil {
		return nil
	}
	out := make([]Color, len(s.colors))
	copy(out, s.colors)
	return out
}

// Clone returns an independent copy.
func (s *ColorSet) Clone() *ColorSet {
	return &ColorSet{colors: s.Colors()}
}

func (s *ColorSet) indexOf(c Color) int {
	if s == nil {
		return -1
	}
	for i, existing := range s.colors {
		if existing == c {
			return i
		}
	}
	return -1
}
