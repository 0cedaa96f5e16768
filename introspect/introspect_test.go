package introspect

import (
	"context"
	stderrors "errors"
	"sync"
	"testing"
	"time"

	"github.com/wippyai/rive-ograf/engine"
	"github.com/wippyai/rive-ograf/engine/enginetest"
	"github.com/wippyai/rive-ograf/errors"
)

type staticSource struct {
	scene engine.Scene
	err   error
}

func (s staticSource) Scene() (engine.Scene, error) { return s.scene, s.err }

var testProps = []engine.Property{
	{Name: "title", Kind: engine.KindString},
	{Name: "playAction", Kind: engine.KindTrigger},
	{Name: "accent", Kind: engine.KindColor},
}

func TestProperties_CachedOnce(t *testing.T) {
	ctx := context.Background()
	scene := enginetest.NewScene(enginetest.SceneSpec{Properties: testProps, Width: 1920, Height: 1080})
	in := New(staticSource{scene: scene}, engine.InstanceOptions{})
	defer in.Close(ctx)

	if _, _, ok := in.Size(); ok {
		t.Error("Size reported ok before introspection")
	}

	for n := 0; n < 3; n++ {
		props, err := in.Properties(ctx)
		if err != nil {
			t.Fatalf("Properties: %v", err)
		}
		if len(props) != len(testProps) {
			t.Fatalf("got %d properties, want %d", len(props), len(testProps))
		}
		for i := range props {
			if props[i] != testProps[i] {
				t.Errorf("props[%d] = %+v, want %+v", i, props[i], testProps[i])
			}
		}
	}

	instances := scene.Instances()
	if len(instances) != 1 {
		t.Fatalf("created %d instances, want 1", len(instances))
	}
	if reads := instances[0].Values().PropertyReads(); reads != 1 {
		t.Errorf("engine asked for properties %d times, want 1", reads)
	}
	if !instances[0].Options.AutoBind {
		t.Error("introspection instance must auto-bind its view model")
	}

	w, h, ok := in.Size()
	if !ok || w != 1920 || h != 1080 {
		t.Errorf("Size() = (%v, %v, %v), want (1920, 1080, true)", w, h, ok)
	}
}

func TestProperties_ConcurrentCallersShareFlight(t *testing.T) {
	ctx := context.Background()
	scene := enginetest.NewScene(enginetest.SceneSpec{Properties: testProps, ManualReady: true})
	in := New(staticSource{scene: scene}, engine.InstanceOptions{})
	defer in.Close(ctx)

	const callers = 8
	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for n := 0; n < callers; n++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			props, err := in.Properties(ctx)
			if err == nil && len(props) != len(testProps) {
				err = stderrors.New("short property list")
			}
			errs <- err
		}()
	}

	deadline := time.Now().Add(2 * time.Second)
	for len(scene.Instances()) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("no instance created")
		}
		time.Sleep(time.Millisecond)
	}
	scene.Instances()[0].MarkReady()

	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Errorf("caller failed: %v", err)
		}
	}

	if n := len(scene.Instances()); n != 1 {
		t.Errorf("created %d instances, want 1", n)
	}
	if reads := scene.Instances()[0].Values().PropertyReads(); reads != 1 {
		t.Errorf("engine asked for properties %d times, want 1", reads)
	}
}

func TestProperties_AssetNotLoaded(t *testing.T) {
	ctx := context.Background()
	in := New(staticSource{err: errors.NotLoaded(errors.PhaseLoad, "asset")}, engine.InstanceOptions{})

	_, err := in.Properties(ctx)
	if !stderrors.Is(err, &errors.Error{Phase: errors.PhaseIntrospect, Kind: errors.KindNotLoaded}) {
		t.Fatalf("err = %v, want introspect not_loaded", err)
	}
	if in.Done() {
		t.Error("failed flight must not be cached")
	}
}

func TestProperties_RetryAfterFailure(t *testing.T) {
	ctx := context.Background()
	scene := enginetest.NewScene(enginetest.SceneSpec{Properties: testProps})
	src := &switchSource{err: errors.NotLoaded(errors.PhaseLoad, "asset")}
	in := New(src, engine.InstanceOptions{})
	defer in.Close(ctx)

	if _, err := in.Properties(ctx); err == nil {
		t.Fatal("expected not-loaded error")
	}

	src.set(scene, nil)
	props, err := in.Properties(ctx)
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if len(props) != len(testProps) {
		t.Errorf("got %d properties", len(props))
	}
}

func TestProperties_NoViewModel(t *testing.T) {
	ctx := context.Background()
	scene := enginetest.NewScene(enginetest.SceneSpec{NoViewModel: true, Width: 10, Height: 20})
	in := New(staticSource{scene: scene}, engine.InstanceOptions{})
	defer in.Close(ctx)

	props, err := in.Properties(ctx)
	if err != nil {
		t.Fatalf("Properties: %v", err)
	}
	if len(props) != 0 {
		t.Errorf("got %d properties, want none", len(props))
	}
}

func TestProperties_ContextCancelled(t *testing.T) {
	scene := enginetest.NewScene(enginetest.SceneSpec{Properties: testProps, ManualReady: true})
	in := New(staticSource{scene: scene}, engine.InstanceOptions{})
	defer in.Close(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	if _, err := in.Properties(ctx); err == nil {
		t.Fatal("expected error when the instance never becomes ready")
	}

	// the instance survives the failed wait and is reused
	scene.Instances()[0].MarkReady()
	if _, err := in.Properties(context.Background()); err != nil {
		t.Fatalf("Properties after ready: %v", err)
	}
	if n := len(scene.Instances()); n != 1 {
		t.Errorf("created %d instances, want 1", n)
	}
}

func TestForInstance(t *testing.T) {
	ctx := context.Background()
	scene := enginetest.NewScene(enginetest.SceneSpec{Properties: testProps})
	inst, err := scene.Instantiate(ctx, engine.NewOffscreenSurface(1, 1), engine.InstanceOptions{AutoBind: true})
	if err != nil {
		t.Fatal(err)
	}

	in := ForInstance(inst)
	if _, err := in.Properties(ctx); err != nil {
		t.Fatalf("Properties: %v", err)
	}
	if err := in.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if inst.(*enginetest.Instance).Closed() {
		t.Error("ForInstance introspector closed an instance it does not own")
	}
}

type switchSource struct {
	scene engine.Scene
	err   error
	mu    sync.Mutex
}

func (s *switchSource) set(scene engine.Scene, err error) {
	s.mu.Lock()
	s.scene, s.err = scene, err
	s.mu.Unlock()
}

func (s *switchSource) Scene() (engine.Scene, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scene, s.err
}
