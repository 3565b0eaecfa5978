package canvas

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
)

// PaletteState is the visible state of the tool palette.
type PaletteState int

const (
	PaletteHidden PaletteState = iota
	PaletteIdle
	PaletteActionSelected
)

func (s PaletteState) String() string {
	switch s {
	case PaletteHidden:
		return "hidden"
	case PaletteIdle:
		return "visible-idle"
	case PaletteActionSelected:
		return "action-selected"
	}
	return "unknown"
}

// Action is an insertion tool.
type Action string

const (
	ActionQuadball   Action = "quadball"
	ActionBludger    Action = "bludger"
	ActionFlagRunner Action = "flag-runner"
	ActionShape      Action = "shape"
	ActionText       Action = "text"
	ActionLine       Action = "line"
)

var allActions = []Action{ActionQuadball, ActionBludger, ActionFlagRunner, ActionShape, ActionText, ActionLine}

const (
	defaultShapeSize = 80.0
	defaultLineSpan  = 120.0
	defaultText      = "Text"
)

// Inserter is the part of the host the palette needs.
type Inserter interface {
	AddObject(ctx context.Context, obj DrawableObject) error
}

// Palette exposes insertion actions while edit mode is on.
type Palette struct {
	mu       sync.Mutex
	host     Inserter
	registry *Registry
	state    PaletteState
	log      *logrus.Entry
}

func NewPalette(host Inserter, registry *Registry, editMode bool) *Palette {
	p := &Palette{
		host:     host,
		registry: registry,
		log:      logrus.WithField("component", "palette"),
	}
	p.SetEditMode(editMode)
	return p
}

// SetEditMode is the only way the palette becomes visible or hidden.
func (p *Palette) SetEditMode(on bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if on {
		if p.state == PaletteHidden {
			p.state = PaletteIdle
		}
		return
	}
	p.state = PaletteHidden
}

func (p *Palette) State() PaletteState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Actions lists the available tools; none while hidden.
func (p *Palette) Actions() []Action {
	if p.State() == PaletteHidden {
		return nil
	}
	return append([]Action(nil), allActions...)
}

// Select runs an action: build the object, add it to the host, return to idle.
// While hidden it does nothing. A host refusal for lack of permission is not
// reported to the caller.
func (p *Palette) Select(ctx context.Context, action Action, hint *Point) (DrawableObject, error) {
	p.mu.Lock()
	if p.state == PaletteHidden {
		p.mu.Unlock()
		return nil, nil
	}
	p.state = PaletteActionSelected
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		if p.state == PaletteActionSelected {
			p.state = PaletteIdle
		}
		p.mu.Unlock()
	}()

	obj, err := p.build(action, hint)
	if err != nil {
		return nil, err
	}
	if err := p.host.AddObject(ctx, obj); err != nil {
		if IsPermission(err) {
			p.log.WithError(err).WithField("action", action).Debug("Action blocked")
			return nil, nil
		}
		return nil, err
	}
	return obj, nil
}

func (p *Palette) build(action Action, hint *Point) (DrawableObject, error) {
	switch action {
	case ActionQuadball:
		return p.registry.CreateBall(TypeQuadball, hint)
	case ActionBludger:
		return p.registry.CreateBall(TypeBludger, hint)
	case ActionFlagRunner:
		return p.registry.CreateBall(TypeFlagRunner, hint)
	case ActionShape:
		return p.registry.CreateShape(hint, defaultShapeSize, defaultShapeSize)
	case ActionText:
		return p.registry.CreateText(hint, defaultText)
	case ActionLine:
		return p.registry.CreateLine(hint, []Point{{X: 0, Y: 0}, {X: defaultLineSpan, Y: 0}})
	}
	return nil, fmt.Errorf("unknown action %q", action)
}
