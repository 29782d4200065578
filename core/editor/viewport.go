package editor

import (
	"math"

	"github.com/trezcool/ripoti/core"
)

const (
	MinZoom  = 0.25
	MaxZoom  = 2.0
	ZoomStep = 0.1

	fitPadding = 40 // px kept around the page by FitToScreen
)

// clampZoom bounds v to [MinZoom, MaxZoom], rounded to 2 decimals.
func clampZoom(v float64) float64 {
	v = math.Max(MinZoom, math.Min(MaxZoom, v))
	return math.Round(v*100) / 100
}

// SetZoom sets the zoom level and returns the applied value. Zoom is not part of the undo history.
// NaN leaves the zoom unchanged.
func (s *Session) SetZoom(v float64) float64 {
	if math.IsNaN(v) {
		return s.doc.Zoom
	}
	z := clampZoom(v)
	if z != s.doc.Zoom {
		s.doc.Zoom = z
		s.touch()
	}
	return z
}

func (s *Session) ZoomIn() float64  { return s.SetZoom(s.doc.Zoom + ZoomStep) }
func (s *Session) ZoomOut() float64 { return s.SetZoom(s.doc.Zoom - ZoomStep) }

// FitToScreen picks the zoom at which the active page fits in a viewport of width x height px.
func (s *Session) FitToScreen(width, height float64) (float64, error) {
	if math.IsNaN(width) || math.IsNaN(height) || width <= 0 || height <= 0 {
		return s.doc.Zoom, core.NewValidationError(nil, core.FieldError{Field: "viewport", Error: "viewport must have a positive width and height"})
	}
	ps := s.page().Settings
	w := math.Max(width-2*fitPadding, 1)
	h := math.Max(height-2*fitPadding, 1)
	z := math.Min(w/float64(ps.Width), h/float64(ps.Height))
	return s.SetZoom(math.Max(math.Floor(z*100)/100, MinZoom)), nil
}

// ToggleGrid flips the grid overlay and returns its new state.
func (s *Session) ToggleGrid() bool {
	s.doc.ShowGrid = !s.doc.ShowGrid
	s.touch()
	return s.doc.ShowGrid
}
