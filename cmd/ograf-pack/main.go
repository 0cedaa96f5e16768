package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	riveograf "github.com/wippyai/rive-ograf"
	"github.com/wippyai/rive-ograf/asset"
	"github.com/wippyai/rive-ograf/config"
	"github.com/wippyai/rive-ograf/engine"
	"github.com/wippyai/rive-ograf/introspect"
	"github.com/wippyai/rive-ograf/manifest"
	"github.com/wippyai/rive-ograf/pack"
	"github.com/wippyai/rive-ograf/watch"
)

func main() {
	var (
		configFile  = flag.String("config", "", "Project file (YAML)")
		assetFile   = flag.String("asset", "", "Animation file (.riv)")
		engineFile  = flag.String("engine", "", "Animation runtime wasm module")
		template    = flag.String("manifest", "", "Manifest template (default: built-in)")
		playTrigger = flag.String("play", "", "Trigger fired by playAction")
		stopTrigger = flag.String("stop", "", "Trigger fired by stopAction")
		outDir      = flag.String("out", "", "Output directory")
		id          = flag.String("id", "", "Graphic id (default: template id or asset name)")
		graphicVer  = flag.String("graphic-version", "", "Graphic version written to the manifest")
		showVersion = flag.Bool("version", false, "Print the converter version and exit")
		list        = flag.Bool("list", false, "List view-model properties and exit")
		interactive = flag.Bool("i", false, "Pick triggers interactively")
		watchMode   = flag.Bool("watch", false, "Rebuild when the asset or template changes")
		verbose     = flag.Bool("v", false, "Debug logging")
	)
	flag.Parse()

	if *showVersion {
		fmt.Println(riveograf.ConverterVersion())
		return
	}

	cfg, err := loadConfig(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	override(&cfg.Asset, *assetFile)
	override(&cfg.Engine, *engineFile)
	override(&cfg.Package.Template, *template)
	override(&cfg.Triggers.Play, *playTrigger)
	override(&cfg.Triggers.Stop, *stopTrigger)
	override(&cfg.Package.Out, *outDir)
	override(&cfg.Package.ID, *id)
	override(&cfg.Package.Version, *graphicVer)
	if *verbose {
		cfg.Log.Level = "debug"
	}

	if cfg.Asset == "" || cfg.Engine == "" {
		fmt.Fprintln(os.Stderr, "Usage: ograf-pack -asset <file.riv> -engine <rive.wasm> -play <trigger> -stop <trigger> [-out dir]")
		fmt.Fprintln(os.Stderr, "       ograf-pack -config ograf.yaml [-watch]")
		fmt.Fprintln(os.Stderr, "       ograf-pack -asset <file.riv> -engine <rive.wasm> -list")
		fmt.Fprintln(os.Stderr, "       ograf-pack -asset <file.riv> -engine <rive.wasm> -i  (interactive mode)")
		os.Exit(1)
	}

	logger, err := cfg.Log.Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()
	engine.SetLogger(logger)
	pack.SetLogger(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, cfg, *list, *interactive, *watchMode); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}

func override(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func run(ctx context.Context, logger *zap.Logger, cfg *config.Config, listOnly, interactive, watchMode bool) error {
	guest, err := os.ReadFile(cfg.Engine)
	if err != nil {
		return fmt.Errorf("read engine: %w", err)
	}
	eng, err := engine.NewWazeroEngine(ctx, guest, nil)
	if err != nil {
		return fmt.Errorf("create engine: %w", err)
	}
	defer eng.Close(context.WithoutCancel(ctx))

	if listOnly {
		return listProperties(ctx, eng, cfg)
	}

	if interactive {
		if err := pickTriggers(ctx, eng, cfg); err != nil {
			return err
		}
	}

	path, err := build(ctx, eng, cfg)
	if err != nil {
		return err
	}
	fmt.Printf("Wrote %s\n", path)

	if !watchMode {
		return nil
	}
	return rebuildOnChange(ctx, logger, eng, cfg)
}

func listProperties(ctx context.Context, eng engine.Engine, cfg *config.Config) error {
	a, err := asset.Load(ctx, eng, asset.Source{Path: cfg.Asset})
	if err != nil {
		return err
	}
	defer a.Close(context.WithoutCancel(ctx))

	intro := introspect.New(a, engine.InstanceOptions{StateMachine: cfg.Graphic.StateMachine})
	defer intro.Close(context.WithoutCancel(ctx))

	props, err := intro.Properties(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("Animation: %s (%s, %d bytes)\n", cfg.Asset, a.Header(), a.Len())
	if w, h, ok := intro.Size(); ok {
		fmt.Printf("Artboard: %gx%g\n", w, h)
	}
	fmt.Printf("\nView-model properties:\n")
	for _, p := range props {
		role := ""
		if cfg.Triggers.Claims(p.Name) {
			role = " (lifecycle)"
		}
		fmt.Printf("  %s: %s%s\n", p.Name, p.Kind, role)
	}
	return nil
}

func build(ctx context.Context, eng engine.Engine, cfg *config.Config) (string, error) {
	a, err := asset.Load(ctx, eng, asset.Source{Path: cfg.Asset})
	if err != nil {
		return "", err
	}
	defer a.Close(context.WithoutCancel(ctx))

	tmpl := manifest.DefaultTemplate()
	if cfg.Package.Template != "" {
		if tmpl, err = manifest.LoadTemplate(cfg.Package.Template); err != nil {
			return "", err
		}
	}

	id := cfg.Package.ID
	if id == "" && cfg.Package.Template == "" {
		id = a.Name()
	}

	pkg, err := pack.FromAsset(ctx, a, tmpl, cfg.Triggers, pack.Options{
		Manifest: manifest.Options{
			ID:             id,
			Main:           cfg.Package.Main,
			GraphicVersion: cfg.Package.Version,
			Indent:         cfg.Package.Indent,
		},
		StateMachine: cfg.Graphic.StateMachine,
		RuntimeURL:   cfg.Package.RuntimeURL,
		Width:        cfg.Graphic.Width,
		Height:       cfg.Graphic.Height,
	})
	if err != nil {
		return "", err
	}
	return pkg.WriteFile(cfg.Package.Out)
}

func rebuildOnChange(ctx context.Context, logger *zap.Logger, eng engine.Engine, cfg *config.Config) error {
	files := []string{cfg.Asset}
	if cfg.Package.Template != "" {
		files = append(files, cfg.Package.Template)
	}
	w, err := watch.New(0, files...)
	if err != nil {
		return err
	}
	defer w.Close()

	fmt.Printf("Watching %d file(s), press Ctrl+C to stop\n", len(files))
	for {
		select {
		case changed, ok := <-w.Events:
			if !ok {
				return nil
			}
			logger.Info("rebuilding", zap.Strings("changed", changed))
			path, err := build(ctx, eng, cfg)
			if err != nil {
				logger.Error("rebuild failed", zap.Error(err))
				continue
			}
			fmt.Printf("Wrote %s\n", path)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Warn("watch error", zap.Error(err))
		case <-ctx.Done():
			return nil
		}
	}
}
