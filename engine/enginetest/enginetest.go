// Package enginetest provides an in-memory engine.Engine for tests and dry
// runs. Scenes are described up front instead of parsed from bytes.
package enginetest

import (
	"context"
	"fmt"
	"sync"

	"github.com/wippyai/rive-ograf/engine"
)

// SceneSpec describes every scene the engine hands out.
type SceneSpec struct {
	Properties []engine.Property
	// Enums restricts the labels accepted by enum properties. Properties
	// without an entry accept any label.
	Enums          map[string][]string
	InstantiateErr error
	ReadyErr       error
	ResizeErr      error
	Width          float64
	Height         float64
	NoViewModel    bool
	// ManualReady keeps instances loading until MarkReady is called.
	ManualReady bool
}

// Engine is an in-memory engine.Engine.
type Engine struct {
	LoadErr error
	spec    SceneSpec
	scenes  []*Scene
	mu      sync.Mutex
}

func New(spec SceneSpec) *Engine {
	return &Engine{spec: spec}
}

func (e *Engine) LoadScene(ctx context.Context, data []byte) (engine.Scene, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.LoadErr != nil {
		return nil, e.LoadErr
	}
	s := &Scene{spec: e.spec, size: len(data)}
	e.scenes = append(e.scenes, s)
	return s, nil
}

func (e *Engine) Close(ctx context.Context) error { return nil }

// Scenes returns every scene loaded so far.
func (e *Engine) Scenes() []*Scene {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]*Scene(nil), e.scenes...)
}

// Scene is an in-memory engine.Scene.
type Scene struct {
	spec      SceneSpec
	instances []*Instance
	size      int
	closed    bool
	mu        sync.Mutex
}

// NewScene returns a scene that is not attached to an Engine.
func NewScene(spec SceneSpec) *Scene {
	return &Scene{spec: spec}
}

func (s *Scene) Instantiate(ctx context.Context, surface engine.Surface, opts engine.InstanceOptions) (engine.Instance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, fmt.Errorf("scene closed")
	}
	if s.spec.InstantiateErr != nil {
		return nil, s.spec.InstantiateErr
	}

	inst := &Instance{
		Surface: surface,
		Options: opts,
		ready:   make(chan struct{}),
		width:     s.spec.Width,
		height:    s.spec.Height,
		resizeErr: s.spec.ResizeErr,
	}
	if !s.spec.NoViewModel {
		inst.vm = newViewModel(s.spec)
	}
	if !s.spec.ManualReady {
		inst.finish(s.spec.ReadyErr)
	} else {
		inst.readyErr = s.spec.ReadyErr
	}
	s.instances = append(s.instances, inst)
	return inst, nil
}

func (s *Scene) Close(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

// Instances returns every instance created from the scene.
func (s *Scene) Instances() []*Instance {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Instance(nil), s.instances...)
}

// Closed reports whether Close has been called.
func (s *Scene) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Size returns the number of bytes the scene was loaded from.
func (s *Scene) Size() int { return s.size }

// Instance is an in-memory engine.Instance.
type Instance struct {
	Surface   engine.Surface
	readyErr  error
	resizeErr error
	err       error
	vm        *ViewModel
	ready     chan struct{}
	Options   engine.InstanceOptions
	width     float64
	height    float64
	once      sync.Once
	closed    bool
	mu        sync.Mutex
}

func (i *Instance) finish(err error) {
	i.once.Do(func() {
		i.err = err
		close(i.ready)
	})
}

// MarkReady signals load completion for a ManualReady instance.
func (i *Instance) MarkReady() {
	i.finish(i.readyErr)
}

func (i *Instance) Ready() <-chan struct{} { return i.ready }

func (i *Instance) Err() error { return i.err }

func (i *Instance) ArtboardSize() (float64, float64) { return i.width, i.height }

// Resize resizes the instance's surface. ResizeErr fails it instead.
func (i *Instance) Resize(ctx context.Context, width, height int) error {
	if i.resizeErr != nil {
		return i.resizeErr
	}
	i.Surface.Resize(width, height)
	return nil
}

func (i *Instance) ViewModel() (engine.ViewModel, bool) {
	if i.vm == nil {
		return nil, false
	}
	return i.vm, true
}

// Values exposes the view model for assertions; nil without a view model.
func (i *Instance) Values() *ViewModel { return i.vm }

func (i *Instance) Close(ctx context.Context) error {
	i.mu.Lock()
	i.closed = true
	i.mu.Unlock()
	return nil
}

func (i *Instance) Closed() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.closed
}
