// Package asset loads Rive files from disk or memory and hands them to an
// engine for parsing.
package asset

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/wippyai/rive-ograf/engine"
	"github.com/wippyai/rive-ograf/errors"
)

// Source selects where the file comes from. Exactly one field must be set.
type Source struct {
	Path   string
	Buffer []byte
}

func (s Source) validate() error {
	switch {
	case s.Path == "" && len(s.Buffer) == 0:
		return errors.InvalidInput(errors.PhaseLoad, "asset source requires a path or a buffer")
	case s.Path != "" && len(s.Buffer) > 0:
		return errors.InvalidInput(errors.PhaseLoad, "asset source takes a path or a buffer, not both")
	}
	return nil
}

// Asset is a loaded animation file. Its bytes never change after Start.
type Asset struct {
	err    error
	scene  engine.Scene
	done   chan struct{}
	path   string
	data   []byte
	header Header
}

// Start reads the source and begins parsing it on eng. The returned asset
// reports KindNotLoaded from Scene until parsing completes.
func Start(ctx context.Context, eng engine.Engine, src Source) (*Asset, error) {
	if err := src.validate(); err != nil {
		return nil, err
	}

	data := src.Buffer
	if src.Path != "" {
		b, err := os.ReadFile(src.Path)
		if err != nil {
			return nil, errors.Load("read "+src.Path, err)
		}
		data = b
	} else {
		data = append([]byte(nil), data...)
	}

	header, err := ParseHeader(data)
	if err != nil {
		return nil, err
	}

	a := &Asset{
		data:   data,
		header: header,
		path:   src.Path,
		done:   make(chan struct{}),
	}

	go func() {
		defer close(a.done)
		a.scene, a.err = eng.LoadScene(ctx, a.data)
		if a.err != nil {
			a.err = errors.Load("parse scene", a.err)
		}
	}()

	return a, nil
}

// Load is Start followed by Wait.
func Load(ctx context.Context, eng engine.Engine, src Source) (*Asset, error) {
	a, err := Start(ctx, eng, src)
	if err != nil {
		return nil, err
	}
	if err := a.Wait(ctx); err != nil {
		return nil, err
	}
	return a, nil
}

// Wait blocks until parsing finished and returns its error.
func (a *Asset) Wait(ctx context.Context) error {
	select {
	case <-a.done:
		return a.err
	case <-ctx.Done():
		return errors.Wrap(errors.PhaseLoad, errors.KindNotLoaded, ctx.Err(), "wait for asset")
	}
}

// Done is closed when parsing finished.
func (a *Asset) Done() <-chan struct{} { return a.done }

// Scene returns the parsed scene, or a KindNotLoaded error while parsing is
// still running.
func (a *Asset) Scene() (engine.Scene, error) {
	select {
	case <-a.done:
		if a.err != nil {
			return nil, a.err
		}
		return a.scene, nil
	default:
		return nil, errors.NotLoaded(errors.PhaseLoad, "asset")
	}
}

// Bytes returns a copy of the raw file.
func (a *Asset) Bytes() []byte {
	return append([]byte(nil), a.data...)
}

// Len returns the file size in bytes.
func (a *Asset) Len() int { return len(a.data) }

func (a *Asset) Header() Header { return a.header }

// Name returns the file name without extension, or "" for buffers.
func (a *Asset) Name() string {
	if a.path == "" {
		return ""
	}
	base := filepath.Base(a.path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Close waits for parsing and releases the scene.
func (a *Asset) Close(ctx context.Context) error {
	<-a.done
	if a.scene == nil {
		return nil
	}
	return a.scene.Close(ctx)
}
