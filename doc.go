// Package riveograf adapts Rive animations to the OGraf graphics contract.
//
// A Rive file carries artboards, a state machine and a bindable view model.
// This module drives such a file through the OGraf control protocol and
// packages a configured graphic as a standalone OGraf package.
//
// # Architecture Overview
//
// The library is organized into several packages with distinct responsibilities:
//
//	riveograf/          Root package with the shared TriggerMap type
//	├── engine/         Engine contract and the wazero-hosted animation runtime
//	├── asset/          Asset loading from a path or an in-memory buffer
//	├── introspect/     One-shot cached view-model property discovery
//	├── graphic/        OGraf lifecycle adapter and typed property binding
//	├── manifest/       Manifest synthesis from introspected properties
//	├── codegen/        Standalone adapter source generation
//	├── pack/           Package (zip) assembly
//	├── config/         YAML project configuration
//	├── control/        MQTT control bridge for remote hosts
//	├── watch/          Debounced file watching for rebuild-on-change
//	├── errors/         Structured error types and status codes
//	└── cmd/            ograf-pack packaging CLI and graphicd daemon
//
// # Quick Start
//
// Load an asset and drive it as a graphic:
//
//	eng, err := engine.NewWazeroEngine(ctx, runtimeWasm, nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer eng.Close(ctx)
//
//	a, err := asset.Load(ctx, eng, asset.Source{Path: "lower-third.riv"})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer a.Close(ctx)
//
//	g, err := graphic.New(a, graphic.Config{
//	    Width:    1920,
//	    Height:   1080,
//	    Triggers: riveograf.TriggerMap{Play: "in", Stop: "out"},
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	res, err := g.Load(ctx, graphic.LoadParams{RenderType: graphic.RenderRealtime})
//
// Package the same asset:
//
//	pkg, err := pack.FromAsset(ctx, a, templateJSON, triggers, pack.Options{})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	path, err := pkg.WriteFile("dist")
//
// # Thread Safety
//
// Graphic serializes its own state but hosts are expected to issue control
// calls sequentially. Two overlapping updates may interleave their writes.
package riveograf
