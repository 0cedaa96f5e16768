// Package introspect discovers the bindable properties of an animation
// instance once and caches them for the instance's lifetime.
package introspect

import (
	"context"
	stderrors "errors"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/wippyai/rive-ograf/engine"
	"github.com/wippyai/rive-ograf/errors"
)

// SceneSource yields a parsed scene once it is available. *asset.Asset
// implements it.
type SceneSource interface {
	Scene() (engine.Scene, error)
}

type staticScene struct {
	scene engine.Scene
}

func (s staticScene) Scene() (engine.Scene, error) { return s.scene, nil }

// Static wraps an already parsed scene.
func Static(scene engine.Scene) SceneSource {
	return staticScene{scene: scene}
}

type state int

const (
	stateNotStarted state = iota
	stateInFlight
	stateDone
)

// Introspector caches the property list of one engine instance.
//
// The first Properties call waits for the instance's ready signal; callers
// arriving while that wait is in flight share its outcome. A failed flight
// resets the cell so a later call can retry.
type Introspector struct {
	src     SceneSource
	inst    engine.Instance
	surface engine.Surface
	group   singleflight.Group
	props   []engine.Property
	opts    engine.InstanceOptions
	width   float64
	height  float64
	state   state
	owned   bool
	mu      sync.Mutex
}

// New returns an introspector that instantiates src on first use and owns
// that instance.
func New(src SceneSource, opts engine.InstanceOptions) *Introspector {
	opts.AutoBind = true
	return &Introspector{src: src, opts: opts, owned: true}
}

// ForInstance returns an introspector over an existing instance. The caller
// keeps ownership of inst.
func ForInstance(inst engine.Instance) *Introspector {
	return &Introspector{inst: inst}
}

// Properties returns the instance's view-model properties in engine order.
// Instances without a view model have none.
func (i *Introspector) Properties(ctx context.Context) ([]engine.Property, error) {
	i.mu.Lock()
	if i.state == stateDone {
		props := i.props
		i.mu.Unlock()
		return append([]engine.Property(nil), props...), nil
	}
	i.state = stateInFlight
	i.mu.Unlock()

	v, err, _ := i.group.Do("properties", func() (any, error) {
		return i.resolve(ctx)
	})
	if err != nil {
		i.mu.Lock()
		if i.state != stateDone {
			i.state = stateNotStarted
		}
		i.mu.Unlock()
		return nil, err
	}
	return append([]engine.Property(nil), v.([]engine.Property)...), nil
}

// Size returns the artboard's natural size once Properties succeeded.
func (i *Introspector) Size() (width, height float64, ok bool) {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.width, i.height, i.state == stateDone
}

// Done reports whether the property list is cached.
func (i *Introspector) Done() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.state == stateDone
}

func (i *Introspector) resolve(ctx context.Context) ([]engine.Property, error) {
	i.mu.Lock()
	if i.state == stateDone {
		props := i.props
		i.mu.Unlock()
		return props, nil
	}
	i.mu.Unlock()

	inst, err := i.instance(ctx)
	if err != nil {
		return nil, err
	}

	select {
	case <-inst.Ready():
	case <-ctx.Done():
		return nil, errors.Wrap(errors.PhaseIntrospect, errors.KindNotLoaded, ctx.Err(), "wait for instance")
	}
	if err := inst.Err(); err != nil {
		return nil, errors.Wrap(errors.PhaseIntrospect, errors.KindInternal, err, "instance failed to load")
	}

	props := []engine.Property{}
	if vm, ok := inst.ViewModel(); ok {
		props, err = vm.Properties(ctx)
		if err != nil {
			return nil, errors.Wrap(errors.PhaseIntrospect, errors.KindInternal, err, "read view model properties")
		}
	}
	width, height := inst.ArtboardSize()

	i.mu.Lock()
	i.props = props
	i.width, i.height = width, height
	i.state = stateDone
	i.mu.Unlock()
	return props, nil
}

func (i *Introspector) instance(ctx context.Context) (engine.Instance, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.inst != nil {
		return i.inst, nil
	}
	if i.src == nil {
		return nil, errors.NotLoaded(errors.PhaseIntrospect, "instance")
	}

	scene, err := i.src.Scene()
	if err != nil {
		var e *errors.Error
		if stderrors.As(err, &e) && e.Kind == errors.KindNotLoaded {
			return nil, errors.NotLoaded(errors.PhaseIntrospect, "asset")
		}
		return nil, errors.Wrap(errors.PhaseIntrospect, errors.KindInternal, err, "asset failed to load")
	}

	surface := engine.NewOffscreenSurface(1, 1)
	inst, err := scene.Instantiate(ctx, surface, i.opts)
	if err != nil {
		surface.Close()
		return nil, errors.Instantiation(err)
	}
	i.inst = inst
	i.surface = surface
	return inst, nil
}

// Close releases an owned instance and clears the cache. Introspectors built
// with ForInstance only clear the cache.
func (i *Introspector) Close(ctx context.Context) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	var err error
	if i.owned && i.inst != nil {
		err = i.inst.Close(ctx)
		i.surface.Close()
		i.inst = nil
		i.surface = nil
	}
	i.props = nil
	i.state = stateNotStarted
	return err
}
