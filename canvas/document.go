package canvas

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/sirupsen/logrus"

	"tactics-board/core"
)

// Fallback resolution for a board whose document could not be loaded.
const (
	DefaultDesignWidth  = 1200.0
	DefaultDesignHeight = 800.0
)

// Older documents used these type names.
var legacyTypes = map[string]ObjectType{
	"quaffle":       TypeQuadball,
	"snitch":        TypeFlagRunner,
	"snitch-runner": TypeFlagRunner,
	"shape":         TypeGenericShape,
	"rect":          TypeGenericShape,
}

func normalizeType(s string) (ObjectType, bool) {
	if t, ok := legacyTypes[s]; ok {
		return t, true
	}
	t := ObjectType(s)
	return t, t.known()
}

type (
	rawDocument struct {
		DesignWidth   *float64     `json:"designWidth"`
		DesignHeight  *float64     `json:"designHeight"`
		BackgroundURL string       `json:"backgroundUrl"`
		Objects       *[]rawObject `json:"objects"`
	}

	rawObject struct {
		UUID      *string              `json:"uuid"`
		Type      *string              `json:"type"`
		X         *float64             `json:"x"`
		Y         *float64             `json:"y"`
		Style     *core.DocumentStyle  `json:"style"`
		Radius    float64              `json:"radius"`
		Width     float64              `json:"width"`
		Height    float64              `json:"height"`
		Text      string               `json:"text"`
		FontSize  float64              `json:"fontSize"`
		Points    []core.DocumentPoint `json:"points"`
		Resizable bool                 `json:"resizable"`
		Locked    bool                 `json:"locked"`
	}
)

// DecodeDocument parses a stored document and checks that every required field
// is present. Semantic checks are left to ValidateDocument.
func DecodeDocument(data []byte) (core.BoardDocument, error) {
	var raw rawDocument
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&raw); err != nil {
		return core.BoardDocument{}, &ValidationError{Field: "document", Reason: err.Error()}
	}
	if dec.More() {
		return core.BoardDocument{}, &ValidationError{Field: "document", Reason: "trailing data after document"}
	}
	switch {
	case raw.DesignWidth == nil:
		return core.BoardDocument{}, &ValidationError{Field: "designWidth", Reason: "missing"}
	case raw.DesignHeight == nil:
		return core.BoardDocument{}, &ValidationError{Field: "designHeight", Reason: "missing"}
	case raw.Objects == nil:
		return core.BoardDocument{}, &ValidationError{Field: "objects", Reason: "missing"}
	}

	doc := core.BoardDocument{
		DesignWidth:   *raw.DesignWidth,
		DesignHeight:  *raw.DesignHeight,
		BackgroundURL: raw.BackgroundURL,
		Objects:       make([]core.DocumentObject, 0, len(*raw.Objects)),
	}
	for i, o := range *raw.Objects {
		field := func(name string) string { return fmt.Sprintf("objects[%d].%s", i, name) }
		switch {
		case o.UUID == nil:
			return core.BoardDocument{}, &ValidationError{Field: field("uuid"), Reason: "missing"}
		case o.Type == nil:
			return core.BoardDocument{}, &ValidationError{Field: field("type"), Reason: "missing"}
		case o.X == nil || o.Y == nil:
			return core.BoardDocument{}, &ValidationError{Field: field("x/y"), Reason: "missing"}
		case o.Style == nil:
			return core.BoardDocument{}, &ValidationError{Field: field("style"), Reason: "missing"}
		}
		doc.Objects = append(doc.Objects, core.DocumentObject{
			UUID:      *o.UUID,
			Type:      *o.Type,
			X:         *o.X,
			Y:         *o.Y,
			Style:     *o.Style,
			Radius:    o.Radius,
			Width:     o.Width,
			Height:    o.Height,
			Text:      o.Text,
			FontSize:  o.FontSize,
			Points:    o.Points,
			Resizable: o.Resizable,
			Locked:    o.Locked,
		})
	}
	return doc, nil
}

// EncodeDocument is the inverse of DecodeDocument.
func EncodeDocument(doc core.BoardDocument) ([]byte, error) {
	if doc.Objects == nil {
		doc.Objects = []core.DocumentObject{}
	}
	return json.Marshal(doc)
}

// ValidateDocument checks a decoded document without building anything.
func ValidateDocument(doc core.BoardDocument) error {
	_, err := objectsFromDocument(doc)
	return err
}

// CanonicalDocument validates doc and rewrites it in canonical form: legacy
// type names are replaced and ball geometry is dropped.
func CanonicalDocument(doc core.BoardDocument) (core.BoardDocument, error) {
	objects, err := objectsFromDocument(doc)
	if err != nil {
		return core.BoardDocument{}, err
	}
	return Serialize(BoardState{
		DesignWidth:   doc.DesignWidth,
		DesignHeight:  doc.DesignHeight,
		BackgroundURL: doc.BackgroundURL,
		Objects:       objects,
	}), nil
}

func objectsFromDocument(doc core.BoardDocument) ([]DrawableObject, error) {
	if doc.DesignWidth <= 0 {
		return nil, &ValidationError{Field: "designWidth", Reason: "must be positive"}
	}
	if doc.DesignHeight <= 0 {
		return nil, &ValidationError{Field: "designHeight", Reason: "must be positive"}
	}
	seen := make(map[string]struct{}, len(doc.Objects))
	objects := make([]DrawableObject, 0, len(doc.Objects))
	for i, o := range doc.Objects {
		obj, err := objectFromDocument(o)
		if err != nil {
			if ve, ok := err.(*ValidationError); ok {
				ve.Field = fmt.Sprintf("objects[%d].%s", i, ve.Field)
			}
			return nil, err
		}
		if _, dup := seen[o.UUID]; dup {
			return nil, &ValidationError{Field: fmt.Sprintf("objects[%d].uuid", i), Reason: "duplicate " + o.UUID}
		}
		seen[o.UUID] = struct{}{}
		objects = append(objects, obj)
	}
	return objects, nil
}

func objectFromDocument(o core.DocumentObject) (DrawableObject, error) {
	if o.UUID == "" {
		return nil, &ValidationError{Field: "uuid", Reason: "empty"}
	}
	t, ok := normalizeType(o.Type)
	if !ok {
		return nil, &ValidationError{Field: "type", Reason: fmt.Sprintf("unknown type %q", o.Type)}
	}
	base := Base{
		UUID:     o.UUID,
		Type:     t,
		Position: Point{X: o.X, Y: o.Y},
		Style: Style{
			Fill:        o.Style.Fill,
			Stroke:      o.Style.Stroke,
			StrokeWidth: o.Style.StrokeWidth,
		},
		Resizable: o.Resizable,
		Locked:    o.Locked,
	}

	switch {
	case t.IsBall():
		// balls are fixed size; an explicit radius is tolerated only when it
		// matches and is never written back
		if o.Radius != 0 && o.Radius != BallRadius {
			return nil, &ValidationError{Field: "radius", Reason: fmt.Sprintf("balls have a fixed radius of %v", BallRadius)}
		}
		if o.Resizable {
			return nil, &ValidationError{Field: "resizable", Reason: "balls cannot be resized"}
		}
		return &Ball{Base: base, Radius: BallRadius}, nil
	case t == TypeGenericShape:
		if o.Width <= 0 || o.Height <= 0 {
			return nil, &ValidationError{Field: "width/height", Reason: "must be positive"}
		}
		return &Shape{Base: base, Width: o.Width, Height: o.Height}, nil
	case t == TypeText:
		return &Text{Base: base, Content: o.Text, FontSize: o.FontSize}, nil
	default:
		if len(o.Points) < 2 {
			return nil, &ValidationError{Field: "points", Reason: "line needs at least 2 points"}
		}
		points := make([]Point, len(o.Points))
		for i, p := range o.Points {
			points[i] = Point{X: p.X, Y: p.Y}
		}
		return &Line{Base: base, Points: points}, nil
	}
}

func documentObject(obj DrawableObject) core.DocumentObject {
	b := obj.Common()
	out := core.DocumentObject{
		UUID: b.UUID,
		Type: string(b.Type),
		X:    b.Position.X,
		Y:    b.Position.Y,
		Style: core.DocumentStyle{
			Fill:        b.Style.Fill,
			Stroke:      b.Style.Stroke,
			StrokeWidth: b.Style.StrokeWidth,
		},
		Resizable: b.Resizable,
		Locked:    b.Locked,
	}
	switch o := obj.(type) {
	case *Ball:
		out.Resizable = false
	case *Shape:
		out.Width = o.Width
		out.Height = o.Height
	case *Text:
		out.Text = o.Content
		out.FontSize = o.FontSize
	case *Line:
		out.Points = make([]core.DocumentPoint, len(o.Points))
		for i, p := range o.Points {
			out.Points[i] = core.DocumentPoint{X: p.X, Y: p.Y}
		}
	}
	return out
}

// Serialize converts a board state to its document. Positions are the stored
// design-space coordinates, independent of whatever zoom is applied.
func Serialize(state BoardState) core.BoardDocument {
	doc := core.BoardDocument{
		DesignWidth:   state.DesignWidth,
		DesignHeight:  state.DesignHeight,
		BackgroundURL: state.BackgroundURL,
		Objects:       make([]core.DocumentObject, 0, len(state.Objects)),
	}
	for _, obj := range state.Objects {
		doc.Objects = append(doc.Objects, documentObject(obj))
	}
	return doc
}

// SerializeHost serializes the live board of host.
func SerializeHost(ctx context.Context, host *Host) (core.BoardDocument, error) {
	state, err := host.State(ctx)
	if err != nil {
		return core.BoardDocument{}, err
	}
	return Serialize(state), nil
}

// Deserialize rebuilds every object of doc, preserving uuid, style and order,
// and loads them into host on container. Nothing is loaded unless the whole
// document is valid.
func Deserialize(ctx context.Context, host *Host, doc core.BoardDocument, container Container) (*Handle, error) {
	objects, err := objectsFromDocument(doc)
	if err != nil {
		logrus.WithError(err).Warn("Rejected board document")
		return nil, err
	}
	return host.Load(ctx, container, BoardState{
		DesignWidth:   doc.DesignWidth,
		DesignHeight:  doc.DesignHeight,
		BackgroundURL: doc.BackgroundURL,
		Objects:       objects,
	})
}

// LoadOrEmpty decodes and loads data. A malformed document leaves the host with
// an empty board at the default resolution; the ValidationError is returned
// alongside the handle so the caller can show a warning.
func LoadOrEmpty(ctx context.Context, host *Host, data []byte, container Container) (*Handle, error) {
	doc, err := DecodeDocument(data)
	if err == nil {
		handle, err := Deserialize(ctx, host, doc, container)
		if err == nil || !IsValidation(err) {
			return handle, err
		}
		return fallback(ctx, host, container, err)
	}
	return fallback(ctx, host, container, err)
}

func fallback(ctx context.Context, host *Host, container Container, cause error) (*Handle, error) {
	logrus.WithError(cause).Warn("Falling back to an empty board")
	handle, err := host.Init(ctx, container, DefaultDesignWidth, DefaultDesignHeight, "")
	if err != nil {
		return nil, err
	}
	return handle, cause
}
