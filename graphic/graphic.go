// Package graphic exposes an animation scene through the OGraf graphic
// control protocol.
//
// A Graphic owns at most one engine instance. Load creates it, Dispose
// releases it, and everything in between writes view-model properties or
// fires triggers on it:
//
//	g, err := graphic.New(a, graphic.Config{
//	    Width:    1920,
//	    Height:   1080,
//	    Triggers: riveograf.TriggerMap{Play: "playAction", Stop: "stopAction"},
//	})
//	res, err := g.Load(ctx, graphic.LoadParams{RenderType: graphic.RenderRealtime})
//	res, _ = g.UpdateAction(ctx, graphic.UpdateParams{Data: map[string]any{"title": "Hello"}})
//	res, _ = g.PlayAction(ctx, graphic.PlayParams{})
//
// Operations report failures through Result.StatusCode. Only Load with a
// non-realtime render type, GoToTime and SetActionsSchedule return errors.
package graphic

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"go.uber.org/zap"

	riveograf "github.com/wippyai/rive-ograf"
	"github.com/wippyai/rive-ograf/engine"
	"github.com/wippyai/rive-ograf/errors"
	"github.com/wippyai/rive-ograf/introspect"
)

// RenderRealtime is the only render type Load accepts.
const RenderRealtime = "realtime"

const (
	DefaultWidth        = 1920
	DefaultHeight       = 1080
	DefaultMaxWidth     = 500
	DefaultStateMachine = "State Machine 1"
)

const msgNoViewModel = "view model instance not found"

// State is the lifecycle state of a Graphic.
type State int

const (
	StateUninitialized State = iota
	StateLoading
	StateReady
	// StateUnbound means the instance loaded without a view model. Only
	// Dispose leaves it.
	StateUnbound
	StateDisposed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StateUnbound:
		return "unbound"
	case StateDisposed:
		return "disposed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Config configures a Graphic.
type Config struct {
	// Defaults are applied after every load. Unknown or unwritable entries
	// are logged and skipped.
	Defaults map[string]any
	// NewSurface creates the drawable for each load. Defaults to an
	// offscreen surface.
	NewSurface func(width, height int) engine.Surface
	Triggers   riveograf.TriggerMap
	// StateMachine is started with every instance.
	StateMachine string
	// Width and Height size the surface. Zero in either selects the
	// artboard's natural size.
	Width  float64
	Height float64
	// MaxWidth clamps the surface width, scaling height by the same factor.
	// Zero selects DefaultMaxWidth, negative disables clamping.
	MaxWidth float64
	// StrictTriggers turns a missing trigger into a 500 result.
	StrictTriggers bool
}

func (c Config) withDefaults() Config {
	if c.Width < 0 || c.Height < 0 {
		c.Width, c.Height = 0, 0
	}
	if c.MaxWidth == 0 {
		c.MaxWidth = DefaultMaxWidth
	}
	if c.StateMachine == "" {
		c.StateMachine = DefaultStateMachine
	}
	if c.NewSurface == nil {
		c.NewSurface = func(w, h int) engine.Surface { return engine.NewOffscreenSurface(w, h) }
	}
	return c
}

// API is the OGraf graphic control protocol.
type API interface {
	Load(ctx context.Context, p LoadParams) (Result, error)
	Dispose(ctx context.Context, p DisposeParams) (Result, error)
	UpdateAction(ctx context.Context, p UpdateParams) (Result, error)
	PlayAction(ctx context.Context, p PlayParams) (Result, error)
	StopAction(ctx context.Context, p StopParams) (Result, error)
	CustomAction(ctx context.Context, p CustomParams) (Result, error)
	GoToTime(ctx context.Context, p GoToTimeParams) (Result, error)
	SetActionsSchedule(ctx context.Context, p ScheduleParams) (Result, error)
}

type LoadParams struct {
	Data       map[string]any `json:"data,omitempty"`
	RenderType string         `json:"renderType"`
}

type DisposeParams struct{}

type UpdateParams struct {
	Data map[string]any `json:"data"`
}

type PlayParams struct {
	// Delta advances the step counter. Nil means 1.
	Delta *int `json:"delta,omitempty"`
}

type StopParams struct{}

type CustomParams struct {
	Payload any    `json:"payload,omitempty"`
	ID      string `json:"id"`
}

type GoToTimeParams struct {
	Timestamp float64 `json:"timestamp"`
}

type ScheduleParams struct {
	Schedule []any `json:"schedule"`
}

// Result is returned by every operation.
type Result struct {
	CurrentStep *int   `json:"currentStep,omitempty"`
	Message     string `json:"message,omitempty"`
	// MissingTrigger names a trigger the view model does not have. The
	// action still succeeds unless Config.StrictTriggers is set.
	MissingTrigger string `json:"missingTrigger,omitempty"`
	StatusCode     int    `json:"statusCode"`
}

func success() Result { return Result{StatusCode: errors.StatusOK} }

func notLoaded() Result {
	return Result{StatusCode: errors.StatusNotLoaded, Message: "not loaded"}
}

func failed(msg string) Result {
	return Result{StatusCode: errors.StatusInternal, Message: msg}
}

// Graphic adapts one scene to the control protocol.
type Graphic struct {
	src     introspect.SceneSource
	inst    engine.Instance
	surface engine.Surface
	intro   *introspect.Introspector
	loading chan struct{}
	cfg     Config
	// artboard size seen by the last load; only load touches it
	naturalW float64
	naturalH float64
	state    State
	step     int
	mu       sync.Mutex
}

var _ API = (*Graphic)(nil)

// New returns an uninitialized graphic over src. The scene is only needed
// once Load runs, so src may still be parsing.
func New(src introspect.SceneSource, cfg Config) (*Graphic, error) {
	if src == nil {
		return nil, errors.InvalidInput(errors.PhaseConfig, "graphic requires a scene source")
	}
	if err := cfg.Triggers.Validate(); err != nil {
		return nil, err
	}
	return &Graphic{src: src, cfg: cfg.withDefaults()}, nil
}

// State returns the lifecycle state.
func (g *Graphic) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Step returns the step counter.
func (g *Graphic) Step() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.step
}

// Properties returns the bindable properties of the loaded instance.
func (g *Graphic) Properties(ctx context.Context) ([]engine.Property, error) {
	_, intro, ok := g.ready()
	if !ok {
		return nil, errors.NotLoaded(errors.PhaseIntrospect, "graphic")
	}
	return intro.Properties(ctx)
}

// Load creates the engine instance and applies defaults and p.Data. On a
// loaded graphic it only applies p.Data.
func (g *Graphic) Load(ctx context.Context, p LoadParams) (res Result, err error) {
	if p.RenderType != RenderRealtime {
		err := errors.Unsupported(errors.PhaseLoad, fmt.Sprintf("render type %q is not supported, only %q", p.RenderType, RenderRealtime))
		return Result{StatusCode: errors.StatusUnsupported, Message: err.Message()}, err
	}
	defer g.recover("load", &res)

	for {
		g.mu.Lock()
		switch g.state {
		case StateReady:
			inst, intro := g.inst, g.intro
			g.mu.Unlock()
			return g.update(ctx, inst, intro, p.Data), nil
		case StateUnbound:
			g.mu.Unlock()
			return failed(msgNoViewModel), nil
		case StateLoading:
			wait := g.loading
			g.mu.Unlock()
			select {
			case <-wait:
				continue
			case <-ctx.Done():
				return failed("load: " + ctx.Err().Error()), nil
			}
		}

		done := make(chan struct{})
		g.state = StateLoading
		g.loading = done
		g.mu.Unlock()

		defer close(done)
		return g.load(ctx, p.Data), nil
	}
}

// load runs with the state set to StateLoading and always leaves it.
func (g *Graphic) load(ctx context.Context, data map[string]any) Result {
	committed := false
	defer func() {
		if !committed {
			g.mu.Lock()
			if g.state == StateLoading {
				g.state = StateUninitialized
			}
			g.mu.Unlock()
		}
	}()

	scene, err := g.src.Scene()
	if err != nil {
		Logger().Warn("load: scene unavailable", zap.Error(err))
		if errors.Status(err) == errors.StatusNotLoaded {
			return Result{StatusCode: errors.StatusNotLoaded, Message: errors.Message(err)}
		}
		return failed(errors.Message(err))
	}

	w, h := g.surfaceSize()
	surface := g.cfg.NewSurface(w, h)

	inst, err := g.instantiate(ctx, scene, surface)
	if err != nil {
		surface.Close()
		Logger().Warn("load: instance failed", zap.Error(err))
		return failed(errors.Message(err))
	}
	if w, h, err = g.fitArtboard(ctx, inst, surface, w, h); err != nil {
		release(ctx, inst, surface)
		Logger().Warn("load: resize failed", zap.Error(err))
		return failed(errors.Message(err))
	}

	g.mu.Lock()
	if g.state != StateLoading {
		// disposed while the engine was loading
		g.mu.Unlock()
		release(ctx, inst, surface)
		return failed("disposed during load")
	}
	g.inst, g.surface = inst, surface
	committed = true
	if _, ok := inst.ViewModel(); !ok {
		g.state = StateUnbound
		g.mu.Unlock()
		Logger().Warn("load: " + msgNoViewModel)
		return failed(msgNoViewModel)
	}
	intro := introspect.ForInstance(inst)
	g.intro = intro
	g.state = StateReady
	g.mu.Unlock()

	Logger().Debug("graphic loaded", zap.Int("width", w), zap.Int("height", h))

	g.applyDefaults(ctx, inst, intro)
	return g.update(ctx, inst, intro, data)
}

// surfaceSize returns the configured size, or the natural size seen by an
// earlier load, clamped to MaxWidth. Before the first load of an unsized
// graphic it falls back to DefaultWidth x DefaultHeight.
func (g *Graphic) surfaceSize() (int, int) {
	w, h := g.cfg.Width, g.cfg.Height
	if w == 0 || h == 0 {
		w, h = g.naturalW, g.naturalH
	}
	if w <= 0 || h <= 0 {
		w, h = DefaultWidth, DefaultHeight
	}
	w, h = engine.FitWidth(w, h, g.cfg.MaxWidth)
	return int(math.Round(w)), int(math.Round(h))
}

// fitArtboard resizes an unsized graphic's surface to the artboard's
// natural size once the instance reports it.
func (g *Graphic) fitArtboard(ctx context.Context, inst engine.Instance, surface engine.Surface, w, h int) (int, int, error) {
	if g.cfg.Width != 0 && g.cfg.Height != 0 {
		return w, h, nil
	}
	aw, ah := inst.ArtboardSize()
	if aw <= 0 || ah <= 0 {
		return w, h, nil
	}
	g.naturalW, g.naturalH = aw, ah
	fw, fh := engine.FitWidth(aw, ah, g.cfg.MaxWidth)
	nw, nh := int(math.Round(fw)), int(math.Round(fh))
	if nw == w && nh == h {
		return w, h, nil
	}
	surface.Resize(nw, nh)
	if err := inst.Resize(ctx, nw, nh); err != nil {
		return 0, 0, errors.Wrap(errors.PhaseLoad, errors.KindInternal, err, fmt.Sprintf("resize to %dx%d", nw, nh))
	}
	return nw, nh, nil
}

func (g *Graphic) instantiate(ctx context.Context, scene engine.Scene, surface engine.Surface) (engine.Instance, error) {
	inst, err := scene.Instantiate(ctx, surface, engine.InstanceOptions{
		StateMachine: g.cfg.StateMachine,
		Autoplay:     true,
		AutoBind:     true,
	})
	if err != nil {
		return nil, errors.Instantiation(err)
	}

	select {
	case <-inst.Ready():
	case <-ctx.Done():
		inst.Close(context.WithoutCancel(ctx))
		return nil, errors.Wrap(errors.PhaseLoad, errors.KindInternal, ctx.Err(), "wait for instance")
	}
	if err := inst.Err(); err != nil {
		inst.Close(ctx)
		return nil, errors.Wrap(errors.PhaseLoad, errors.KindInternal, err, "instance failed to load")
	}
	return inst, nil
}

func (g *Graphic) applyDefaults(ctx context.Context, inst engine.Instance, intro *introspect.Introspector) {
	if len(g.cfg.Defaults) == 0 {
		return
	}
	vm, ok := inst.ViewModel()
	if !ok {
		return
	}
	kinds, err := propertyKinds(ctx, intro)
	if err != nil {
		Logger().Warn("defaults: introspection failed", zap.Error(err))
		return
	}

	for _, name := range sortedKeys(g.cfg.Defaults) {
		kind, ok := kinds[name]
		if !ok {
			Logger().Warn("defaults: unknown property, skipped", zap.String("property", name))
			continue
		}
		v, err := Coerce(name, kind, g.cfg.Defaults[name])
		var set func(context.Context) error
		if err == nil {
			set, err = bind(ctx, vm, name, v)
		}
		if err == nil {
			err = set(ctx)
		}
		if err != nil {
			Logger().Warn("defaults: property skipped", zap.String("property", name), zap.Error(err))
		}
	}
}

// UpdateAction writes p.Data into the view model. Every key is resolved and
// coerced before the first write, so a bad key leaves all values untouched.
func (g *Graphic) UpdateAction(ctx context.Context, p UpdateParams) (res Result, _ error) {
	defer g.recover("updateAction", &res)

	inst, intro, ok := g.ready()
	if !ok {
		return notLoaded(), nil
	}
	return g.update(ctx, inst, intro, p.Data), nil
}

type pendingWrite struct {
	set  func(context.Context) error
	name string
}

func (g *Graphic) update(ctx context.Context, inst engine.Instance, intro *introspect.Introspector, data map[string]any) Result {
	if len(data) == 0 {
		return success()
	}
	vm, ok := inst.ViewModel()
	if !ok {
		return failed(msgNoViewModel)
	}
	kinds, err := propertyKinds(ctx, intro)
	if err != nil {
		return g.updateFailed(err)
	}

	batch := make([]pendingWrite, 0, len(data))
	for _, name := range sortedKeys(data) {
		kind, ok := kinds[name]
		if !ok {
			return g.updateFailed(errors.UnknownProperty(errors.PhaseUpdate, name))
		}
		v, err := Coerce(name, kind, data[name])
		if err != nil {
			return g.updateFailed(err)
		}
		set, err := bind(ctx, vm, name, v)
		if err != nil {
			return g.updateFailed(err)
		}
		batch = append(batch, pendingWrite{name: name, set: set})
	}

	for _, w := range batch {
		if err := w.set(ctx); err != nil {
			return g.updateFailed(err)
		}
	}
	return Result{StatusCode: errors.StatusOK}
}

// updateFailed reports every update failure as 500, including kinds the
// adapter cannot write.
func (g *Graphic) updateFailed(err error) Result {
	Logger().Warn("update failed", zap.Error(err))
	return failed(errors.Message(err))
}

// PlayAction advances the step counter by p.Delta and fires the play
// trigger.
func (g *Graphic) PlayAction(ctx context.Context, p PlayParams) (res Result, _ error) {
	defer g.recover("playAction", &res)

	delta := 1
	if p.Delta != nil {
		delta = *p.Delta
	}

	g.mu.Lock()
	if g.state != StateReady {
		step := g.step
		g.mu.Unlock()
		res := notLoaded()
		res.CurrentStep = &step
		return res, nil
	}
	g.step += delta
	step := g.step
	inst := g.inst
	g.mu.Unlock()

	res = g.fire(ctx, inst, g.cfg.Triggers.Play)
	res.CurrentStep = &step
	return res, nil
}

// StopAction fires the stop trigger. It succeeds without effect when no
// instance exists.
func (g *Graphic) StopAction(ctx context.Context, _ StopParams) (res Result, _ error) {
	defer g.recover("stopAction", &res)

	g.mu.Lock()
	state, inst := g.state, g.inst
	g.mu.Unlock()

	switch state {
	case StateReady:
		return g.fire(ctx, inst, g.cfg.Triggers.Stop), nil
	case StateUnbound:
		return notLoaded(), nil
	}
	return success(), nil
}

// CustomAction fires the trigger named p.ID. The payload is ignored.
func (g *Graphic) CustomAction(ctx context.Context, p CustomParams) (res Result, _ error) {
	defer g.recover("customAction", &res)

	inst, _, ok := g.ready()
	if !ok {
		return notLoaded(), nil
	}
	return g.fire(ctx, inst, p.ID), nil
}

func (g *Graphic) fire(ctx context.Context, inst engine.Instance, name string) Result {
	vm, ok := inst.ViewModel()
	if !ok {
		return notLoaded()
	}
	slot, ok := vm.Trigger(name)
	if !ok {
		Logger().Debug("trigger not found", zap.String("trigger", name))
		if g.cfg.StrictTriggers {
			return Result{
				StatusCode:     errors.StatusInternal,
				Message:        errors.NotFound(errors.PhaseAction, "trigger", name).Message(),
				MissingTrigger: name,
			}
		}
		return Result{StatusCode: errors.StatusOK, MissingTrigger: name}
	}
	if err := slot.Fire(ctx); err != nil {
		Logger().Warn("trigger failed", zap.String("trigger", name), zap.Error(err))
		return failed(errors.Wrap(errors.PhaseAction, errors.KindInternal, err, "fire "+name).Message())
	}
	return Result{StatusCode: errors.StatusOK}
}

// Dispose releases the instance and its surface. Disposing twice is fine.
func (g *Graphic) Dispose(ctx context.Context, _ DisposeParams) (res Result, _ error) {
	defer g.recover("dispose", &res)

	g.mu.Lock()
	inst, surface := g.inst, g.surface
	g.inst, g.surface, g.intro = nil, nil, nil
	g.state = StateDisposed
	g.mu.Unlock()

	if inst != nil {
		release(ctx, inst, surface)
	}
	return success(), nil
}

// GoToTime needs non-realtime rendering, which this adapter does not do.
func (g *Graphic) GoToTime(context.Context, GoToTimeParams) (Result, error) {
	return unsupported("goToTime")
}

// SetActionsSchedule needs non-realtime rendering, which this adapter does
// not do.
func (g *Graphic) SetActionsSchedule(context.Context, ScheduleParams) (Result, error) {
	return unsupported("setActionsSchedule")
}

func unsupported(op string) (Result, error) {
	err := errors.Unsupported(errors.PhaseAction, op+" requires non-realtime rendering")
	return Result{StatusCode: errors.StatusUnsupported, Message: err.Message()}, err
}

func (g *Graphic) ready() (engine.Instance, *introspect.Introspector, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state != StateReady {
		return nil, nil, false
	}
	return g.inst, g.intro, true
}

func (g *Graphic) recover(op string, res *Result) {
	if r := recover(); r != nil {
		Logger().Error("graphic operation panicked",
			zap.String("op", op),
			zap.Any("panic", r),
			zap.Stack("stack"))
		*res = failed(fmt.Sprintf("%s: %v", op, r))
	}
}

func release(ctx context.Context, inst engine.Instance, surface engine.Surface) {
	if err := inst.Close(ctx); err != nil {
		Logger().Warn("failed to close instance", zap.Error(err))
	}
	if surface != nil {
		if err := surface.Close(); err != nil {
			Logger().Warn("failed to close surface", zap.Error(err))
		}
	}
}

func propertyKinds(ctx context.Context, intro *introspect.Introspector) (map[string]engine.Kind, error) {
	props, err := intro.Properties(ctx)
	if err != nil {
		return nil, err
	}
	kinds := make(map[string]engine.Kind, len(props))
	for _, p := range props {
		kinds[p.Name] = p.Kind
	}
	return kinds, nil
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
