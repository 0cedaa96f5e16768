package asset

import (
	"context"
	stderrors "errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/wippyai/rive-ograf/engine"
	"github.com/wippyai/rive-ograf/engine/enginetest"
	"github.com/wippyai/rive-ograf/errors"
)

// gatedEngine blocks LoadScene until release is closed.
type gatedEngine struct {
	*enginetest.Engine
	release chan struct{}
}

func (g *gatedEngine) LoadScene(ctx context.Context, data []byte) (engine.Scene, error) {
	<-g.release
	return g.Engine.LoadScene(ctx, data)
}

func TestParseHeader(t *testing.T) {
	h, err := ParseHeader(enginetest.FileBytes(1, 2, 3))
	if err != nil {
		t.Fatalf("ParseHeader: %v", err)
	}
	if h.Major != 7 || h.Minor != 0 || h.FileID != 1 {
		t.Errorf("header = %+v", h)
	}
	if h.String() != "v7.0 file 1" {
		t.Errorf("String() = %q", h.String())
	}
}

func TestParseHeader_Errors(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		kind errors.Kind
	}{
		{"no fingerprint", []byte("RIFF...."), errors.KindInvalidData},
		{"truncated", []byte("RIVE"), errors.KindInvalidData},
		{"old major", []byte{'R', 'I', 'V', 'E', 6, 0, 1}, errors.KindUnsupported},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseHeader(tt.data)
			if err == nil {
				t.Fatal("expected error")
			}
			if !stderrors.Is(err, &errors.Error{Phase: errors.PhaseLoad, Kind: tt.kind}) {
				t.Errorf("err = %v, want kind %s", err, tt.kind)
			}
		})
	}
}

func TestSourceValidation(t *testing.T) {
	ctx := context.Background()
	eng := enginetest.New(enginetest.SceneSpec{})

	if _, err := Load(ctx, eng, Source{}); err == nil {
		t.Error("expected error for empty source")
	}
	if _, err := Load(ctx, eng, Source{Path: "a.riv", Buffer: []byte("x")}); err == nil {
		t.Error("expected error for path and buffer")
	}
	if _, err := Load(ctx, eng, Source{Path: filepath.Join(t.TempDir(), "missing.riv")}); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLoad_FromBuffer(t *testing.T) {
	ctx := context.Background()
	eng := enginetest.New(enginetest.SceneSpec{})

	buf := enginetest.FileBytes(9, 9, 9)
	a, err := Load(ctx, eng, Source{Buffer: buf})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	defer a.Close(ctx)

	// the asset owns its own copy
	buf[len(buf)-1] = 0
	if got := a.Bytes(); got[len(got)-1] != 9 {
		t.Error("asset bytes changed with the caller's buffer")
	}

	if a.Len() != len(buf) {
		t.Errorf("Len() = %d, want %d", a.Len(), len(buf))
	}
	if a.Name() != "" {
		t.Errorf("Name() = %q, want empty for buffers", a.Name())
	}

	scene, err := a.Scene()
	if err != nil {
		t.Fatalf("Scene: %v", err)
	}
	if scene.(*enginetest.Scene).Size() != len(buf) {
		t.Error("engine did not receive the file bytes")
	}
}

func TestLoad_FromPath(t *testing.T) {
	ctx := context.Background()
	eng := enginetest.New(enginetest.SceneSpec{})

	path := filepath.Join(t.TempDir(), "lower-third.riv")
	if err := os.WriteFile(path, enginetest.FileBytes(), 0o644); err != nil {
		t.Fatal(err)
	}

	a, err := Load(ctx, eng, Source{Path: path})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	defer a.Close(ctx)

	if a.Name() != "lower-third" {
		t.Errorf("Name() = %q, want lower-third", a.Name())
	}
}

func TestStart_NotLoadedYet(t *testing.T) {
	ctx := context.Background()
	eng := &gatedEngine{Engine: enginetest.New(enginetest.SceneSpec{}), release: make(chan struct{})}

	a, err := Start(ctx, eng, Source{Buffer: enginetest.FileBytes()})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	if _, err := a.Scene(); !stderrors.Is(err, &errors.Error{Phase: errors.PhaseLoad, Kind: errors.KindNotLoaded}) {
		t.Errorf("Scene() before load err = %v, want not_loaded", err)
	}

	waitCtx, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
	defer cancel()
	if err := a.Wait(waitCtx); err == nil {
		t.Error("Wait should time out while the engine is blocked")
	}

	close(eng.release)
	if err := a.Wait(ctx); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if _, err := a.Scene(); err != nil {
		t.Errorf("Scene() after load: %v", err)
	}
	if err := a.Close(ctx); err != nil {
		t.Errorf("Close: %v", err)
	}
	if !eng.Scenes()[0].Closed() {
		t.Error("Close did not release the scene")
	}
}

func TestLoad_EngineError(t *testing.T) {
	ctx := context.Background()
	eng := enginetest.New(enginetest.SceneSpec{})
	eng.LoadErr = stderrors.New("corrupt artboard")

	_, err := Load(ctx, eng, Source{Buffer: enginetest.FileBytes()})
	if err == nil {
		t.Fatal("expected engine error")
	}
	if !stderrors.Is(err, &errors.Error{Phase: errors.PhaseLoad, Kind: errors.KindInvalidData}) {
		t.Errorf("err = %v, want load invalid_data", err)
	}
}
