package canvas

// ObjectType is the persisted type tag of a drawable object.
type ObjectType string

const (
	TypeQuadball     ObjectType = "quadball"
	TypeBludger      ObjectType = "bludger"
	TypeFlagRunner   ObjectType = "flag-runner"
	TypeGenericShape ObjectType = "generic-shape"
	TypeText         ObjectType = "text"
	TypeLine         ObjectType = "line"
)

// IsBall reports whether t is one of the fixed-size ball variants.
func (t ObjectType) IsBall() bool {
	switch t {
	case TypeQuadball, TypeBludger, TypeFlagRunner:
		return true
	}
	return false
}

func (t ObjectType) known() bool {
	switch t {
	case TypeGenericShape, TypeText, TypeLine:
		return true
	}
	return t.IsBall()
}

type (
	Point struct {
		X float64
		Y float64
	}

	Style struct {
		Fill        string
		Stroke      string
		StrokeWidth float64
	}

	// Base holds the fields every drawable object carries. Position is in design space.
	Base struct {
		UUID      string
		Type      ObjectType
		Position  Point
		Style     Style
		Resizable bool
		Locked    bool
	}

	// DrawableObject is the closed set of objects a board can hold:
	// *Ball, *Shape, *Text and *Line.
	DrawableObject interface {
		Common() *Base
		// Primitive maps the object to the rendering adapter's vocabulary.
		Primitive() Primitive
		Clone() DrawableObject
	}

	// Ball is a fixed-size round token.
	Ball struct {
		Base
		Radius float64
	}

	// Shape is an axis-aligned rectangle anchored at its top-left corner.
	Shape struct {
		Base
		Width  float64
		Height float64
	}

	Text struct {
		Base
		Content  string
		FontSize float64
	}

	// Line is a polyline; Points are relative to Position.
	Line struct {
		Base
		Points []Point
	}
)

func (b *Base) Common() *Base { return b }

func (b *Base) primitive(kind PrimitiveKind) Primitive {
	return Primitive{
		ID:         b.UUID,
		Kind:       kind,
		X:          b.Position.X,
		Y:          b.Position.Y,
		Style:      b.Style,
		Resizable:  b.Resizable,
		Selectable: !b.Locked,
	}
}

func (o *Ball) Primitive() Primitive {
	p := o.primitive(PrimitiveCircle)
	p.Radius = o.Radius
	return p
}

func (o *Ball) Clone() DrawableObject {
	c := *o
	return &c
}

func (o *Shape) Primitive() Primitive {
	p := o.primitive(PrimitiveRect)
	p.Width = o.Width
	p.Height = o.Height
	return p
}

func (o *Shape) Clone() DrawableObject {
	c := *o
	return &c
}

func (o *Text) Primitive() Primitive {
	p := o.primitive(PrimitiveText)
	p.Text = o.Content
	p.FontSize = o.FontSize
	return p
}

func (o *Text) Clone() DrawableObject {
	c := *o
	return &c
}

func (o *Line) Primitive() Primitive {
	p := o.primitive(PrimitivePolyline)
	p.Points = append([]Point(nil), o.Points...)
	return p
}

func (o *Line) Clone() DrawableObject {
	c := *o
	c.Points = append([]Point(nil), o.Points...)
	return &c
}
