package canvas

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"tactics-board/core"
)

type fakeSurface struct {
	mu         sync.Mutex
	mount      string
	width      float64
	height     float64
	zoom       float64
	background Image
	prims      map[string]Primitive
	order      []string
	disposed   bool
	resizes    int
}

func (s *fakeSurface) SetDimensions(width, height float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.width, s.height = width, height
	s.resizes++
}

func (s *fakeSurface) SetZoom(zoom float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.zoom = zoom
}

func (s *fakeSurface) SetBackground(img Image) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.background = img
}

func (s *fakeSurface) Draw(p Primitive) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.prims[p.ID]; !ok {
		s.order = append(s.order, p.ID)
	}
	s.prims[p.ID] = p
}

func (s *fakeSurface) Erase(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.prims, id)
	for i, o := range s.order {
		if o == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

func (s *fakeSurface) Dispose() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disposed = true
}

func (s *fakeSurface) drawn() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.order...)
}

func (s *fakeSurface) isDisposed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.disposed
}

func (s *fakeSurface) frame() (width, height, zoom float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.width, s.height, s.zoom
}

func (s *fakeSurface) bg() Image {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.background
}

// screen returns where the surface paints a primitive in viewport pixels.
func (s *fakeSurface) screen(id string) (Point, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.prims[id]
	if !ok {
		return Point{}, false
	}
	return Point{X: p.X * s.zoom, Y: p.Y * s.zoom}, true
}

type fakeFactory struct {
	mu       sync.Mutex
	surfaces []*fakeSurface
	err      error
}

func (f *fakeFactory) NewSurface(mount string, designWidth, designHeight float64) (Surface, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	s := &fakeSurface{mount: mount, width: designWidth, height: designHeight, zoom: 1, prims: make(map[string]Primitive)}
	f.surfaces = append(f.surfaces, s)
	return s, nil
}

func (f *fakeFactory) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.surfaces)
}

func (f *fakeFactory) last() *fakeSurface {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.surfaces) == 0 {
		return nil
	}
	return f.surfaces[len(f.surfaces)-1]
}

type fakeContainer struct {
	mu        sync.Mutex
	id        string
	mount     string
	width     float64
	listeners map[int]func(float64)
	next      int
}

func newContainer(id string, width float64) *fakeContainer {
	return &fakeContainer{id: id, mount: id + "-canvas", width: width, listeners: make(map[int]func(float64))}
}

func (c *fakeContainer) ID() string         { return c.id }
func (c *fakeContainer) MountPoint() string { return c.mount }

func (c *fakeContainer) Width() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.width
}

func (c *fakeContainer) OnResize(fn func(float64)) Subscription {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.next
	c.next++
	c.listeners[id] = fn
	return &fakeSubscription{c: c, id: id}
}

// Resize notifies listeners from the caller's goroutine.
func (c *fakeContainer) Resize(width float64) {
	c.mu.Lock()
	c.width = width
	fns := make([]func(float64), 0, len(c.listeners))
	for _, fn := range c.listeners {
		fns = append(fns, fn)
	}
	c.mu.Unlock()
	for _, fn := range fns {
		fn(width)
	}
}

func (c *fakeContainer) listenerCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.listeners)
}

type fakeSubscription struct {
	c  *fakeContainer
	id int
}

func (s *fakeSubscription) Unsubscribe() {
	s.c.mu.Lock()
	defer s.c.mu.Unlock()
	delete(s.c.listeners, s.id)
}

// gatedLoader blocks every load until release is closed or ctx ends.
type gatedLoader struct {
	release chan struct{}
	img     Image
	err     error
}

func newGatedLoader() *gatedLoader {
	return &gatedLoader{release: make(chan struct{})}
}

func (l *gatedLoader) Load(ctx context.Context, ref string) (Image, error) {
	select {
	case <-l.release:
		if l.err != nil {
			return Image{}, l.err
		}
		img := l.img
		img.Ref = ref
		return img, nil
	case <-ctx.Done():
		return Image{}, ctx.Err()
	}
}

func startHost(t *testing.T, cfg Config) (*Host, *fakeFactory) {
	t.Helper()
	factory := &fakeFactory{}
	if cfg.Factory == nil {
		cfg.Factory = factory
	}
	if cfg.Level == "" {
		cfg.Level = core.AccessEdit
	}
	host := NewHost(cfg)
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		err := host.Run(ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			t.Errorf("Run() returned %v", err)
		}
	}()
	t.Cleanup(func() {
		cancel()
		<-stopped
	})
	return host, factory
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func ball(id string, x, y float64) *Ball {
	return &Ball{
		Base: Base{
			UUID:     id,
			Type:     TypeQuadball,
			Position: Point{X: x, Y: y},
			Style:    Style{Fill: "#ffffff", Stroke: "#000000", StrokeWidth: 2},
		},
		Radius: BallRadius,
	}
}
