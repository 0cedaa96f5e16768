package engine

import "sync"

// Surface is the drawable an instance renders into.
type Surface interface {
	Size() (width, height int)
	Resize(width, height int)
	Close() error
}

// OffscreenSurface is a surface with no backing display. Engines that own
// their framebuffer only need its size.
type OffscreenSurface struct {
	width  int
	height int
	closed bool
	mu     sync.Mutex
}

func NewOffscreenSurface(width, height int) *OffscreenSurface {
	return &OffscreenSurface{width: width, height: height}
}

func (s *OffscreenSurface) Size() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.width, s.height
}

func (s *OffscreenSurface) Resize(width, height int) {
	s.mu.Lock()
	s.width, s.height = width, height
	s.mu.Unlock()
}

func (s *OffscreenSurface) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

// Closed reports whether Close has been called.
func (s *OffscreenSurface) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// FitWidth clamps width to maxWidth and scales height by the same factor.
// A non-positive maxWidth disables clamping.
func FitWidth(width, height, maxWidth float64) (float64, float64) {
	if maxWidth <= 0 || width <= maxWidth {
		return width, height
	}
	return maxWidth, height / width * maxWidth
}
