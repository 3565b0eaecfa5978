package canvas

import "context"

// PrimitiveKind is the drawing primitive a rendering surface understands.
type PrimitiveKind string

const (
	PrimitiveCircle   PrimitiveKind = "circle"
	PrimitiveRect     PrimitiveKind = "rect"
	PrimitiveText     PrimitiveKind = "text"
	PrimitivePolyline PrimitiveKind = "polyline"
)

type (
	// Primitive is what the host hands to a Surface. Coordinates are design space;
	// the surface applies its own zoom when painting.
	Primitive struct {
		ID         string
		Kind       PrimitiveKind
		X, Y       float64
		Radius     float64
		Width      float64
		Height     float64
		Text       string
		FontSize   float64
		Points     []Point
		Style      Style
		Resizable  bool
		Selectable bool
	}

	// Image is a decoded (or merely referenced) background image.
	Image struct {
		Ref    string
		Width  float64
		Height float64
	}

	// Surface is the external rendering library seen through a small adapter.
	// Implementations are used only from the host's event loop.
	Surface interface {
		// SetDimensions resizes the rendering frame in viewport pixels.
		SetDimensions(width, height float64)
		// SetZoom sets an absolute uniform zoom; it never compounds.
		SetZoom(zoom float64)
		SetBackground(img Image)
		// Draw adds or replaces the primitive with the same ID.
		Draw(p Primitive)
		Erase(id string)
		Dispose()
	}

	// SurfaceFactory creates a surface on a mount point at the design resolution.
	SurfaceFactory interface {
		NewSurface(mountPoint string, designWidth, designHeight float64) (Surface, error)
	}

	// Subscription is an explicit listener registration.
	Subscription interface {
		Unsubscribe()
	}

	// Container is the hosting page's size-tracking mount point.
	Container interface {
		ID() string
		// MountPoint names the element the surface is created on; empty means missing.
		MountPoint() string
		Width() float64
		OnResize(fn func(width float64)) Subscription
	}

	// ImageLoader resolves a background reference. Loading may be slow.
	ImageLoader interface {
		Load(ctx context.Context, ref string) (Image, error)
	}
)

// SurfaceFactoryFunc adapts a function to SurfaceFactory.
type SurfaceFactoryFunc func(mountPoint string, designWidth, designHeight float64) (Surface, error)

func (f SurfaceFactoryFunc) NewSurface(mountPoint string, designWidth, designHeight float64) (Surface, error) {
	return f(mountPoint, designWidth, designHeight)
}

// ImageLoaderFunc adapts a function to ImageLoader.
type ImageLoaderFunc func(ctx context.Context, ref string) (Image, error)

func (f ImageLoaderFunc) Load(ctx context.Context, ref string) (Image, error) {
	return f(ctx, ref)
}
