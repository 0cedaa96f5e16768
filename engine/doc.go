// Package engine defines the contract between rive-ograf and the animation
// runtime, and ships a runtime host built on wazero.
//
// The animation runtime is opaque: it parses files, evaluates state machines
// and renders. This package only describes what the adapter needs from it.
//
// # Architecture
//
// The contract has four layers:
//
//	Engine    - Parses binary files into scenes
//	Scene     - A parsed file; instantiates onto a Surface
//	Instance  - A live artboard + state machine; signals Ready
//	ViewModel - Typed property slots and triggers of an instance
//
// # Wazero Host
//
// WazeroEngine runs a WebAssembly build of the animation runtime. The guest
// must export linear memory and the functions described by GuestABI; the
// contract is checked once when the engine is created so a stale runtime
// build fails fast with every mismatch listed:
//
//	eng, err := engine.NewWazeroEngine(ctx, runtimeWasm, &engine.Config{
//	    MemoryLimitPages: 1024,
//	})
//
// Each LoadScene instantiates a fresh guest module; all instances of that
// scene share it. Guest calls are serialized per scene.
//
// # Kinds
//
// Property kinds follow the runtime's data type codes:
//
//	Code  Kind        Adapter support
//	─────────────────────────────────
//	1     string      write
//	2     number      write
//	3     boolean     write
//	4     color       write (0xAARRGGBB)
//	6     enum        write (label)
//	7     trigger     fire
//	other             listed, not writable
package engine
