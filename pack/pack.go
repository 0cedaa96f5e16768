// Package pack assembles OGraf packages: the generated adapter module and
// its manifest in one zip archive.
package pack

import (
	"archive/zip"
	"bytes"
	"context"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	riveograf "github.com/wippyai/rive-ograf"
	"github.com/wippyai/rive-ograf/asset"
	"github.com/wippyai/rive-ograf/codegen"
	"github.com/wippyai/rive-ograf/engine"
	"github.com/wippyai/rive-ograf/errors"
	"github.com/wippyai/rive-ograf/introspect"
	"github.com/wippyai/rive-ograf/manifest"
)

// entryTime stamps every archive entry so equal inputs give equal bytes.
var entryTime = time.Date(1980, time.January, 1, 0, 0, 0, 0, time.UTC)

// Input is everything Build needs.
type Input struct {
	Manifest *manifest.Manifest
	// Template defaults to codegen.Default().
	Template     *codegen.Template
	Triggers     riveograf.TriggerMap
	Asset        []byte
	StateMachine string
	RuntimeURL   string
	Width        float64
	Height       float64
}

// Package is a built OGraf package.
type Package struct {
	// Name is the archive file name, <id>.zip.
	Name     string
	Main     string
	Source   []byte
	Manifest []byte
	Archive  []byte
}

// Build renders the adapter and zips it with the manifest. The archive
// holds exactly two entries: the adapter under the manifest's main name,
// then manifest.ograf.json.
func Build(ctx context.Context, in Input) (*Package, error) {
	if len(in.Asset) == 0 {
		return nil, errors.InvalidInput(errors.PhasePackage, "no asset loaded")
	}
	if in.Manifest == nil {
		return nil, errors.InvalidInput(errors.PhasePackage, "no manifest")
	}
	if err := in.Triggers.Validate(); err != nil {
		return nil, err
	}
	if err := in.Manifest.Validate(); err != nil {
		return nil, err
	}

	tmpl := in.Template
	if tmpl == nil {
		tmpl = codegen.Default()
	}
	source, err := tmpl.Render(codegen.Params{
		Asset:        in.Asset,
		PlayTrigger:  in.Triggers.Play,
		StopTrigger:  in.Triggers.Stop,
		StateMachine: in.StateMachine,
		RuntimeURL:   in.RuntimeURL,
		Width:        in.Width,
		Height:       in.Height,
	})
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(errors.PhasePackage, errors.KindInternal, err, "build cancelled")
	}

	doc := in.Manifest.Bytes()
	archive, err := zipEntries([]entry{
		{name: in.Manifest.Main, data: source},
		{name: manifest.FileName, data: doc},
	})
	if err != nil {
		return nil, errors.Wrap(errors.PhasePackage, errors.KindInternal, err, "write archive")
	}

	pkg := &Package{
		Name:     in.Manifest.ID + ".zip",
		Main:     in.Manifest.Main,
		Source:   source,
		Manifest: doc,
		Archive:  archive,
	}
	Logger().Debug("package built",
		zap.String("name", pkg.Name),
		zap.Int("source_bytes", len(source)),
		zap.Int("archive_bytes", len(archive)))
	return pkg, nil
}

type entry struct {
	name string
	data []byte
}

func zipEntries(entries []entry) ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, e := range entries {
		fh := &zip.FileHeader{
			Name:     e.name,
			Method:   zip.Deflate,
			Modified: entryTime,
		}
		fh.SetMode(0o644)
		w, err := zw.CreateHeader(fh)
		if err != nil {
			return nil, err
		}
		if _, err := w.Write(e.data); err != nil {
			return nil, err
		}
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteFile writes the archive to dir/<id>.zip and returns its path.
func (p *Package) WriteFile(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", errors.Wrap(errors.PhasePackage, errors.KindInternal, err, "create "+dir)
	}

	path := filepath.Join(dir, p.Name)
	tmp, err := os.CreateTemp(dir, "."+p.Name+".*")
	if err != nil {
		return "", errors.Wrap(errors.PhasePackage, errors.KindInternal, err, "create temp file")
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(p.Archive); err != nil {
		tmp.Close()
		return "", errors.Wrap(errors.PhasePackage, errors.KindInternal, err, "write "+path)
	}
	if err := tmp.Close(); err != nil {
		return "", errors.Wrap(errors.PhasePackage, errors.KindInternal, err, "write "+path)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return "", errors.Wrap(errors.PhasePackage, errors.KindInternal, err, "chmod "+path)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", errors.Wrap(errors.PhasePackage, errors.KindInternal, err, "rename to "+path)
	}

	Logger().Info("package written", zap.String("path", path), zap.Int("bytes", len(p.Archive)))
	return path, nil
}

// Options tune FromAsset.
type Options struct {
	Manifest manifest.Options
	Template *codegen.Template
	// Introspector reuses an existing property cache. FromAsset creates and
	// closes its own when nil.
	Introspector *introspect.Introspector
	StateMachine string
	RuntimeURL   string
	// Width and Height override the artboard's natural size.
	Width  float64
	Height float64
}

// FromAsset runs the authoring flow for a loaded asset: introspect its
// properties, synthesize the manifest over template and build the package.
func FromAsset(ctx context.Context, a *asset.Asset, template []byte, triggers riveograf.TriggerMap, opts Options) (*Package, error) {
	if a == nil {
		return nil, errors.InvalidInput(errors.PhasePackage, "no asset loaded")
	}
	if err := triggers.Validate(); err != nil {
		return nil, err
	}
	if err := a.Wait(ctx); err != nil {
		return nil, err
	}

	intro := opts.Introspector
	if intro == nil {
		intro = introspect.New(a, engine.InstanceOptions{StateMachine: opts.StateMachine})
		defer intro.Close(context.WithoutCancel(ctx))
	}
	props, err := intro.Properties(ctx)
	if err != nil {
		return nil, err
	}

	width, height, _ := intro.Size()
	if opts.Width > 0 && opts.Height > 0 {
		width, height = opts.Width, opts.Height
	}

	tmpl := opts.Template
	if tmpl == nil {
		tmpl = codegen.Default()
	}
	mopts := opts.Manifest
	mopts.Contract = tmpl.Contract()

	m, err := manifest.Synthesize(template, props, triggers, mopts)
	if err != nil {
		return nil, err
	}

	return Build(ctx, Input{
		Manifest:     m,
		Template:     tmpl,
		Triggers:     triggers,
		Asset:        a.Bytes(),
		StateMachine: opts.StateMachine,
		RuntimeURL:   opts.RuntimeURL,
		Width:        width,
		Height:       height,
	})
}
