// Package preview renders boards server-side to SVG through the canvas host.
package preview

import (
	"bufio"
	"encoding/xml"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"tactics-board/canvas"
)

// Surface records primitives and writes them as one SVG document. The design
// space becomes the viewBox, so zoom only changes the outer width and height.
type Surface struct {
	mu           sync.Mutex
	designWidth  float64
	designHeight float64
	width        float64
	height       float64
	zoom         float64
	background   canvas.Image
	prims        map[string]canvas.Primitive
	order        []string
	disposed     bool
}

func NewSurface(designWidth, designHeight float64) *Surface {
	return &Surface{
		designWidth:  designWidth,
		designHeight: designHeight,
		width:        designWidth,
		height:       designHeight,
		zoom:         1,
		prims:        make(map[string]canvas.Primitive),
	}
}

func (s *Surface) SetDimensions(width, height float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.width, s.height = width, height
}

func (s *Surface) SetZoom(zoom float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.zoom = zoom
}

func (s *Surface) SetBackground(img canvas.Image) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.background = img
}

func (s *Surface) Draw(p canvas.Primitive) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.prims[p.ID]; !ok {
		s.order = append(s.order, p.ID)
	}
	s.prims[p.ID] = p
}

func (s *Surface) Erase(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.prims[id]; !ok {
		return
	}
	delete(s.prims, id)
	for i, o := range s.order {
		if o == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

// Dispose detaches the surface from its host. The recorded drawing stays
// available to WriteTo.
func (s *Surface) Dispose() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disposed = true
}

// Zoom returns the last zoom applied by the host.
func (s *Surface) Zoom() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.zoom
}

func num(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func attr(s string) string {
	var b strings.Builder
	xml.EscapeText(&b, []byte(s))
	return b.String()
}

func styleAttrs(st canvas.Style) string {
	fill := st.Fill
	if fill == "" {
		fill = "none"
	}
	out := ` fill="` + attr(fill) + `"`
	if st.Stroke != "" {
		out += ` stroke="` + attr(st.Stroke) + `"`
	}
	if st.StrokeWidth > 0 {
		out += ` stroke-width="` + num(st.StrokeWidth) + `"`
	}
	return out
}

// WriteTo writes the drawing in insertion order.
func (s *Surface) WriteTo(w io.Writer) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cw := &countingWriter{w: bufio.NewWriter(w)}
	fmt.Fprintf(cw, `<svg xmlns="http://www.w3.org/2000/svg" width="%s" height="%s" viewBox="0 0 %s %s">`+"\n",
		num(s.width), num(s.height), num(s.designWidth), num(s.designHeight))
	if s.background.Ref != "" {
		fmt.Fprintf(cw, `<image href="%s" x="0" y="0" width="%s" height="%s" preserveAspectRatio="none"/>`+"\n",
			attr(s.background.Ref), num(s.designWidth), num(s.designHeight))
	}
	for _, id := range s.order {
		writePrimitive(cw, s.prims[id])
	}
	fmt.Fprint(cw, "</svg>\n")

	if err := cw.w.Flush(); err != nil {
		return cw.n, err
	}
	return cw.n, cw.err
}

func writePrimitive(w io.Writer, p canvas.Primitive) {
	id := attr(p.ID)
	switch p.Kind {
	case canvas.PrimitiveCircle:
		fmt.Fprintf(w, `<circle id="%s" cx="%s" cy="%s" r="%s"%s/>`+"\n",
			id, num(p.X), num(p.Y), num(p.Radius), styleAttrs(p.Style))
	case canvas.PrimitiveRect:
		fmt.Fprintf(w, `<rect id="%s" x="%s" y="%s" width="%s" height="%s"%s/>`+"\n",
			id, num(p.X), num(p.Y), num(p.Width), num(p.Height), styleAttrs(p.Style))
	case canvas.PrimitiveText:
		fmt.Fprintf(w, `<text id="%s" x="%s" y="%s" font-size="%s"%s>%s</text>`+"\n",
			id, num(p.X), num(p.Y), num(p.FontSize), styleAttrs(p.Style), attr(p.Text))
	case canvas.PrimitivePolyline:
		points := make([]string, len(p.Points))
		for i, pt := range p.Points {
			points[i] = num(p.X+pt.X) + "," + num(p.Y+pt.Y)
		}
		st := p.Style
		st.Fill = ""
		fmt.Fprintf(w, `<polyline id="%s" points="%s"%s/>`+"\n", id, strings.Join(points, " "), styleAttrs(st))
	}
}

type countingWriter struct {
	w   *bufio.Writer
	n   int64
	err error
}

func (c *countingWriter) Write(p []byte) (int, error) {
	if c.err != nil {
		return 0, c.err
	}
	n, err := c.w.Write(p)
	c.n += int64(n)
	c.err = err
	return n, err
}

// Factory hands out one Surface per render. It is not shared between requests.
type Factory struct {
	mu      sync.Mutex
	surface *Surface
}

func (f *Factory) NewSurface(mountPoint string, designWidth, designHeight float64) (canvas.Surface, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.surface = NewSurface(designWidth, designHeight)
	return f.surface, nil
}

// Surface returns the most recently created surface, or nil.
func (f *Factory) Surface() *Surface {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.surface
}

// Container is a fixed-width mount point. It never resizes.
type Container struct {
	Name       string
	FixedWidth float64
}

func (c Container) ID() string         { return c.Name }
func (c Container) MountPoint() string { return c.Name }
func (c Container) Width() float64     { return c.FixedWidth }

func (c Container) OnResize(func(width float64)) canvas.Subscription {
	return noSubscription{}
}

type noSubscription struct{}

func (noSubscription) Unsubscribe() {}
