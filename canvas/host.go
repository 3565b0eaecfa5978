package canvas

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"tactics-board/core"
)

const (
	DefaultQueueSize   = 64
	DefaultInitTimeout = 10 * time.Second

	eventBacklog = 64
)

// Config carries everything the host needs explicitly; nothing is read from globals.
type Config struct {
	Level   core.AccessLevel
	Factory SurfaceFactory
	// Loader resolves background images. Without one the reference is handed to
	// the surface as is.
	Loader ImageLoader
	// QueueSize bounds adds buffered before the surface is ready.
	QueueSize int
	// InitTimeout bounds background loading and the lifetime of buffered adds.
	InitTimeout time.Duration
	Log         *logrus.Entry
}

// BoardState is the host's design-space view of a board.
type BoardState struct {
	DesignWidth   float64
	DesignHeight  float64
	BackgroundURL string
	Objects       []DrawableObject
}

// Handle identifies one live surface instance. Callbacks hold the handle they
// were created for and do nothing once it is no longer the live one.
type Handle struct {
	container   Container
	containerID string
	surface     Surface
	scaler      Scaler
	background  string
	sub         Subscription
	cancel      context.CancelFunc
	ready       bool
	disposed    bool
	transform   Transform
}

func (hd *Handle) ContainerID() string { return hd.containerID }

func (hd *Handle) Design() (width, height float64) {
	return hd.scaler.DesignWidth, hd.scaler.DesignHeight
}

// Host owns the rendering surface and the live object set of one board view.
// All state is confined to the goroutine running Run; public methods post work
// to it and wait, so operations apply strictly in arrival order.
type Host struct {
	cfg    Config
	log    *logrus.Entry
	events chan func()
	done   chan struct{}

	// owned by the event loop
	loopCtx    context.Context
	level      core.AccessLevel
	live       *Handle
	objects    []DrawableObject
	index      map[string]int
	pending    []DrawableObject
	pendingGen int
	timer      *time.Timer
	closed     bool
}

func NewHost(cfg Config) *Host {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	if cfg.InitTimeout <= 0 {
		cfg.InitTimeout = DefaultInitTimeout
	}
	log := cfg.Log
	if log == nil {
		log = logrus.WithField("component", "canvas")
	}
	return &Host{
		cfg:     cfg,
		log:     log,
		events:  make(chan func(), eventBacklog),
		done:    make(chan struct{}),
		level:   cfg.Level,
		index:   make(map[string]int),
		loopCtx: context.Background(),
	}
}

// Run processes host events until Teardown or until ctx is cancelled, which
// tears the host down as well.
func (h *Host) Run(ctx context.Context) error {
	h.loopCtx = ctx
	for {
		select {
		case fn := <-h.events:
			fn()
			if h.closed {
				close(h.done)
				return nil
			}
		case <-ctx.Done():
			h.teardown()
			h.closed = true
			close(h.done)
			return ctx.Err()
		}
	}
}

// do runs fn on the event loop and waits for its result.
func (h *Host) do(ctx context.Context, fn func() error) error {
	reply := make(chan error, 1)
	select {
	case h.events <- func() { reply <- fn() }:
	case <-h.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-reply:
		return err
	case <-h.done:
		select {
		case err := <-reply:
			return err
		default:
			return ErrClosed
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// post queues fn without waiting. Used by resize, image and timer callbacks.
func (h *Host) post(fn func()) {
	select {
	case h.events <- fn:
	case <-h.done:
	}
}

// Init creates a surface for container at the design resolution, disposing any
// previous live surface first.
func (h *Host) Init(ctx context.Context, container Container, designWidth, designHeight float64, backgroundRef string) (*Handle, error) {
	return h.Load(ctx, container, BoardState{
		DesignWidth:   designWidth,
		DesignHeight:  designHeight,
		BackgroundURL: backgroundRef,
	})
}

// Load is Init followed by population with state.Objects in one step. The
// objects are checked before the previous surface is touched.
func (h *Host) Load(ctx context.Context, container Container, state BoardState) (*Handle, error) {
	objects := make([]DrawableObject, 0, len(state.Objects))
	for _, obj := range state.Objects {
		if obj == nil {
			return nil, fmt.Errorf("load board: nil object")
		}
		objects = append(objects, obj.Clone())
	}
	state.Objects = objects

	var handle *Handle
	err := h.do(ctx, func() error {
		var err error
		handle, err = h.mount(container, state)
		return err
	})
	return handle, err
}

func (h *Host) mount(container Container, state BoardState) (*Handle, error) {
	if !h.level.CanView() {
		err := &PermissionError{Op: "render board", Level: h.level}
		h.log.WithError(err).Warn("Board not rendered")
		return nil, err
	}
	if container == nil {
		return nil, &InitializationError{Err: errors.New("no container")}
	}
	if container.MountPoint() == "" {
		return nil, &InitializationError{Container: container.ID(), Err: errors.New("missing mount point")}
	}
	if state.DesignWidth <= 0 || state.DesignHeight <= 0 {
		return nil, &InitializationError{
			Container: container.ID(),
			Err:       fmt.Errorf("design size must be positive, got %vx%v", state.DesignWidth, state.DesignHeight),
		}
	}
	index := make(map[string]int, len(state.Objects))
	for i, obj := range state.Objects {
		id := obj.Common().UUID
		if _, dup := index[id]; dup {
			return nil, fmt.Errorf("load board: %s: %w", id, ErrDuplicateID)
		}
		index[id] = i
	}

	if h.live != nil {
		h.dispose(h.live)
		h.live = nil
	}

	surface, err := h.cfg.Factory.NewSurface(container.MountPoint(), state.DesignWidth, state.DesignHeight)
	if err != nil {
		h.objects = nil
		h.index = make(map[string]int)
		err = &InitializationError{Container: container.ID(), Err: err}
		h.log.WithError(err).Error("Failed to create surface")
		return nil, err
	}

	handle := &Handle{
		container:   container,
		containerID: container.ID(),
		surface:     surface,
		scaler:      Scaler{DesignWidth: state.DesignWidth, DesignHeight: state.DesignHeight},
		background:  state.BackgroundURL,
	}
	h.live = handle
	h.objects = state.Objects
	h.index = index
	for _, obj := range h.objects {
		surface.Draw(obj.Primitive())
	}
	handle.sub = container.OnResize(func(width float64) {
		h.post(func() { h.onResize(handle, width) })
	})

	log := h.log.WithFields(logrus.Fields{
		"container":     handle.containerID,
		"design_width":  state.DesignWidth,
		"design_height": state.DesignHeight,
		"objects":       len(h.objects),
	})

	switch {
	case state.BackgroundURL == "":
		h.markReady(handle)
	case h.cfg.Loader == nil:
		surface.SetBackground(Image{Ref: state.BackgroundURL})
		h.markReady(handle)
	default:
		loadCtx, cancel := context.WithTimeout(h.loopCtx, h.cfg.InitTimeout)
		handle.cancel = cancel
		ref := state.BackgroundURL
		go func() {
			img, err := h.cfg.Loader.Load(loadCtx, ref)
			h.post(func() { h.onBackground(handle, img, err) })
		}()
		log = log.WithField("background", ref)
	}

	log.Info("Surface initialized")
	return handle, nil
}

func (h *Host) isLive(handle *Handle) bool {
	return h.live == handle && !handle.disposed
}

func (h *Host) onResize(handle *Handle, width float64) {
	if !h.isLive(handle) {
		return
	}
	h.refit(handle, width)
}

func (h *Host) onBackground(handle *Handle, img Image, err error) {
	if !h.isLive(handle) {
		h.log.WithField("background", handle.background).Debug("Disregarding background of disposed surface")
		return
	}
	if handle.cancel != nil {
		handle.cancel()
	}
	if err != nil {
		h.log.WithError(&ResourceError{Ref: handle.background, Err: err}).Warn("Rendering board without background")
	} else {
		handle.surface.SetBackground(img)
	}
	h.markReady(handle)
}

func (h *Host) refit(handle *Handle, width float64) {
	t, ok := handle.scaler.Apply(handle.surface, width)
	if !ok {
		h.log.WithField("width", width).Debug("Skipping scale for collapsed container")
		return
	}
	handle.transform = t
}

func (h *Host) markReady(handle *Handle) {
	handle.ready = true
	h.refit(handle, handle.container.Width())

	if len(h.pending) == 0 {
		return
	}
	h.stopTimer()
	queued := h.pending
	h.pending = nil
	for _, obj := range queued {
		if err := h.insert(obj); err != nil {
			h.log.WithError(err).WithField("object_id", obj.Common().UUID).Warn("Dropping buffered object")
		}
	}
	h.log.WithField("replayed", len(queued)).Debug("Replayed buffered objects")
}

func (h *Host) stopTimer() {
	if h.timer != nil {
		h.timer.Stop()
		h.timer = nil
	}
	h.pendingGen++
}

func (h *Host) expirePending(gen int) {
	if gen != h.pendingGen || len(h.pending) == 0 {
		return
	}
	h.log.WithField("dropped", len(h.pending)).Error("Surface never became ready, dropping buffered objects")
	h.pending = nil
	h.timer = nil
	h.pendingGen++
}

func (h *Host) requireEdit(op string) error {
	if h.level.CanEdit() {
		return nil
	}
	err := &PermissionError{Op: op, Level: h.level}
	h.log.WithError(err).Warn("Mutation blocked")
	return err
}

func (h *Host) contains(id string) bool {
	if _, ok := h.index[id]; ok {
		return true
	}
	for _, obj := range h.pending {
		if obj.Common().UUID == id {
			return true
		}
	}
	return false
}

// insert appends to the live set; the surface must be ready.
func (h *Host) insert(obj DrawableObject) error {
	id := obj.Common().UUID
	if _, ok := h.index[id]; ok {
		return fmt.Errorf("add object %s: %w", id, ErrDuplicateID)
	}
	h.index[id] = len(h.objects)
	h.objects = append(h.objects, obj)
	h.live.surface.Draw(obj.Primitive())
	return nil
}

// AddObject inserts obj into the live set. Edit access is checked here, not only
// by the palette. Before the surface is ready the object is buffered and replayed
// in order once it is.
func (h *Host) AddObject(ctx context.Context, obj DrawableObject) error {
	if obj == nil {
		return errors.New("add object: nil object")
	}
	obj = obj.Clone()
	return h.do(ctx, func() error {
		if err := h.requireEdit("add object"); err != nil {
			return err
		}
		id := obj.Common().UUID
		if id == "" {
			return errors.New("add object: missing uuid")
		}
		if h.contains(id) {
			return fmt.Errorf("add object %s: %w", id, ErrDuplicateID)
		}
		if h.live != nil && h.live.ready {
			return h.insert(obj)
		}

		if len(h.pending) >= h.cfg.QueueSize {
			return ErrQueueFull
		}
		h.pending = append(h.pending, obj)
		if h.timer == nil {
			gen := h.pendingGen
			h.timer = time.AfterFunc(h.cfg.InitTimeout, func() {
				h.post(func() { h.expirePending(gen) })
			})
		}
		h.log.WithField("object_id", id).Debug("Buffered object until surface is ready")
		return nil
	})
}

func (h *Host) RemoveObject(ctx context.Context, id string) error {
	return h.do(ctx, func() error {
		if err := h.requireEdit("remove object"); err != nil {
			return err
		}
		for i, obj := range h.pending {
			if obj.Common().UUID == id {
				h.pending = append(h.pending[:i], h.pending[i+1:]...)
				return nil
			}
		}
		i, ok := h.index[id]
		if !ok {
			return fmt.Errorf("remove object %s: %w", id, ErrObjectNotFound)
		}
		h.objects = append(h.objects[:i], h.objects[i+1:]...)
		delete(h.index, id)
		for j := i; j < len(h.objects); j++ {
			h.index[h.objects[j].Common().UUID] = j
		}
		if h.live != nil {
			h.live.surface.Erase(id)
		}
		return nil
	})
}

// MoveObject repositions an object in design space.
func (h *Host) MoveObject(ctx context.Context, id string, to Point) error {
	return h.do(ctx, func() error {
		if err := h.requireEdit("move object"); err != nil {
			return err
		}
		i, ok := h.index[id]
		if !ok {
			return fmt.Errorf("move object %s: %w", id, ErrObjectNotFound)
		}
		obj := h.objects[i]
		if obj.Common().Locked {
			return fmt.Errorf("move object %s: %w", id, ErrLocked)
		}
		obj.Common().Position = to
		if h.live != nil {
			h.live.surface.Draw(obj.Primitive())
		}
		return nil
	})
}

// SetLevel replaces the access level. Dropping to none disposes the surface.
func (h *Host) SetLevel(ctx context.Context, level core.AccessLevel) error {
	return h.do(ctx, func() error {
		h.level = level
		if !level.CanView() && h.live != nil {
			h.dispose(h.live)
			h.live = nil
			h.objects = nil
			h.index = make(map[string]int)
			h.pending = nil
			h.stopTimer()
		}
		return nil
	})
}

// Objects returns copies of the live objects in insertion order.
func (h *Host) Objects(ctx context.Context) ([]DrawableObject, error) {
	var out []DrawableObject
	err := h.do(ctx, func() error {
		out = make([]DrawableObject, 0, len(h.objects))
		for _, obj := range h.objects {
			out = append(out, obj.Clone())
		}
		return nil
	})
	return out, err
}

// State returns the design-space state of the live board.
func (h *Host) State(ctx context.Context) (BoardState, error) {
	var state BoardState
	err := h.do(ctx, func() error {
		if h.live == nil {
			return ErrNotMounted
		}
		state.DesignWidth, state.DesignHeight = h.live.Design()
		state.BackgroundURL = h.live.background
		state.Objects = make([]DrawableObject, 0, len(h.objects))
		for _, obj := range h.objects {
			state.Objects = append(state.Objects, obj.Clone())
		}
		return nil
	})
	return state, err
}

// Transform returns the transform currently applied to the live surface.
func (h *Host) Transform(ctx context.Context) (Transform, error) {
	var t Transform
	err := h.do(ctx, func() error {
		if h.live == nil {
			return ErrNotMounted
		}
		t = h.live.transform
		return nil
	})
	return t, err
}

// Pending returns the number of buffered adds.
func (h *Host) Pending(ctx context.Context) (int, error) {
	var n int
	err := h.do(ctx, func() error {
		n = len(h.pending)
		return nil
	})
	return n, err
}

// Ready reports whether the live surface accepts objects directly.
func (h *Host) Ready(ctx context.Context) (bool, error) {
	var ready bool
	err := h.do(ctx, func() error {
		ready = h.live != nil && h.live.ready
		return nil
	})
	return ready, err
}

// Teardown releases the surface and every listener and stops the event loop.
// It succeeds once; later calls return ErrClosed.
func (h *Host) Teardown(ctx context.Context) error {
	return h.do(ctx, func() error {
		h.teardown()
		h.closed = true
		return nil
	})
}

func (h *Host) teardown() {
	if h.live != nil {
		h.dispose(h.live)
		h.live = nil
	}
	h.stopTimer()
	h.pending = nil
	h.objects = nil
	h.index = make(map[string]int)
}

func (h *Host) dispose(handle *Handle) {
	if handle.disposed {
		return
	}
	handle.disposed = true
	if handle.sub != nil {
		handle.sub.Unsubscribe()
	}
	if handle.cancel != nil {
		handle.cancel()
	}
	handle.surface.Dispose()
	h.log.WithField("container", handle.containerID).Info("Surface disposed")
}
