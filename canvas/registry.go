package canvas

import (
	"fmt"

	"github.com/google/uuid"
)

const (
	// BallRadius is the fixed radius of every ball token.
	BallRadius = 12.0

	defaultStroke      = "#000000"
	defaultStrokeWidth = 2.0
	defaultFontSize    = 24.0
	maxIDAttempts      = 8
)

// DefaultPosition is where objects land when the caller gives no hint.
var DefaultPosition = Point{X: 100, Y: 100}

var ballFills = map[ObjectType]string{
	TypeQuadball:   "#ffffff",
	TypeBludger:    "#ff8c00",
	TypeFlagRunner: "#ffd700",
}

// Registry builds typed objects, each stamped with a fresh uuid.
type Registry struct {
	newID func() string
	inUse func(id string) bool
}

type RegistryOption func(*Registry)

// WithIDSource replaces the uuid generator.
func WithIDSource(fn func() string) RegistryOption {
	return func(r *Registry) { r.newID = fn }
}

// WithInUse lets the registry skip ids already present on the board.
func WithInUse(fn func(id string) bool) RegistryOption {
	return func(r *Registry) { r.inUse = fn }
}

func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		newID: func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Registry) id() (string, error) {
	for i := 0; i < maxIDAttempts; i++ {
		id := r.newID()
		if id == "" {
			continue
		}
		if r.inUse == nil || !r.inUse(id) {
			return id, nil
		}
	}
	return "", fmt.Errorf("no free object id after %d attempts: %w", maxIDAttempts, ErrDuplicateID)
}

func position(hint *Point) Point {
	if hint != nil {
		return *hint
	}
	return DefaultPosition
}

// CreateBall builds a non-resizable ball of the given variant.
func (r *Registry) CreateBall(variant ObjectType, hint *Point) (*Ball, error) {
	fill, ok := ballFills[variant]
	if !ok {
		return nil, fmt.Errorf("unknown ball variant %q", variant)
	}
	id, err := r.id()
	if err != nil {
		return nil, err
	}
	return &Ball{
		Base: Base{
			UUID:     id,
			Type:     variant,
			Position: position(hint),
			Style:    Style{Fill: fill, Stroke: defaultStroke, StrokeWidth: defaultStrokeWidth},
		},
		Radius: BallRadius,
	}, nil
}

func (r *Registry) CreateShape(hint *Point, width, height float64) (*Shape, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("shape size must be positive, got %vx%v", width, height)
	}
	id, err := r.id()
	if err != nil {
		return nil, err
	}
	return &Shape{
		Base: Base{
			UUID:      id,
			Type:      TypeGenericShape,
			Position:  position(hint),
			Style:     Style{Fill: "transparent", Stroke: defaultStroke, StrokeWidth: defaultStrokeWidth},
			Resizable: true,
		},
		Width:  width,
		Height: height,
	}, nil
}

func (r *Registry) CreateText(hint *Point, content string) (*Text, error) {
	id, err := r.id()
	if err != nil {
		return nil, err
	}
	return &Text{
		Base: Base{
			UUID:      id,
			Type:      TypeText,
			Position:  position(hint),
			Style:     Style{Fill: defaultStroke},
			Resizable: true,
		},
		Content:  content,
		FontSize: defaultFontSize,
	}, nil
}

// CreateLine builds a polyline from at least two points relative to the position.
func (r *Registry) CreateLine(hint *Point, points []Point) (*Line, error) {
	if len(points) < 2 {
		return nil, fmt.Errorf("line needs at least 2 points, got %d", len(points))
	}
	id, err := r.id()
	if err != nil {
		return nil, err
	}
	return &Line{
		Base: Base{
			UUID:      id,
			Type:      TypeLine,
			Position:  position(hint),
			Style:     Style{Stroke: defaultStroke, StrokeWidth: defaultStrokeWidth},
			Resizable: true,
		},
		Points: append([]Point(nil), points...),
	}, nil
}
