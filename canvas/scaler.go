package canvas

// Transform is the design-to-viewport mapping applied to a surface.
type Transform struct {
	Ratio  float64
	Width  float64
	Height float64
}

// ScaleRatio is min(1, width/designWidth). Boards are never scaled up.
func ScaleRatio(width, designWidth float64) float64 {
	if width >= designWidth {
		return 1.0
	}
	return width / designWidth
}

// Scaler fits a fixed design resolution into a variable container width.
type Scaler struct {
	DesignWidth  float64
	DesignHeight float64
}

// Fit computes the transform for a container width. ok is false for a hidden or
// collapsed container (width <= 0), which must not be applied.
func (s Scaler) Fit(width float64) (t Transform, ok bool) {
	if width <= 0 || s.DesignWidth <= 0 {
		return Transform{}, false
	}
	ratio := ScaleRatio(width, s.DesignWidth)
	return Transform{
		Ratio:  ratio,
		Width:  s.DesignWidth * ratio,
		Height: s.DesignHeight * ratio,
	}, true
}

// Apply fits and writes the transform to the surface. Everything is derived from
// the design size, so applying the same width twice yields the same surface state.
func (s Scaler) Apply(surface Surface, width float64) (Transform, bool) {
	t, ok := s.Fit(width)
	if !ok {
		return Transform{}, false
	}
	surface.SetDimensions(t.Width, t.Height)
	surface.SetZoom(t.Ratio)
	return t, true
}

// ToScreen maps a design-space point to viewport pixels.
func (t Transform) ToScreen(p Point) Point {
	return Point{X: p.X * t.Ratio, Y: p.Y * t.Ratio}
}
