package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
	"go.uber.org/zap"

	"github.com/wippyai/rive-ograf/errors"
)

// WazeroEngine implements Engine by hosting a WebAssembly build of the
// animation runtime.
type WazeroEngine struct {
	runtime  wazero.Runtime
	compiled wazero.CompiledModule
}

// Config holds configuration for engine creation
type Config struct {
	// MemoryLimitPages sets the maximum memory per scene in pages (64KB each).
	// 0 means default (65536 pages = 4GB).
	MemoryLimitPages uint32
}

// NewWazeroEngine compiles guest and checks it against GuestABI.
func NewWazeroEngine(ctx context.Context, guest []byte, cfg *Config) (*WazeroEngine, error) {
	contract, err := parseGuestABI(GuestABI)
	if err != nil {
		return nil, err
	}

	runtimeCfg := wazero.NewRuntimeConfig()
	if cfg != nil && cfg.MemoryLimitPages > 0 {
		runtimeCfg = runtimeCfg.WithMemoryLimitPages(cfg.MemoryLimitPages)
	}
	runtime := wazero.NewRuntimeWithConfig(ctx, runtimeCfg)

	if _, err := wasi_snapshot_preview1.Instantiate(ctx, runtime); err != nil {
		runtime.Close(ctx)
		return nil, errors.Wrap(errors.PhaseEngine, errors.KindInstantiation, err, "instantiate WASI")
	}

	compiled, err := runtime.CompileModule(ctx, guest)
	if err != nil {
		runtime.Close(ctx)
		return nil, errors.Wrap(errors.PhaseEngine, errors.KindInvalidData, err, "compile runtime module")
	}

	if err := checkExports(compiled, contract); err != nil {
		runtime.Close(ctx)
		return nil, err
	}

	return &WazeroEngine{runtime: runtime, compiled: compiled}, nil
}

// Close releases the wazero runtime and every scene still open.
func (e *WazeroEngine) Close(ctx context.Context) error {
	return e.runtime.Close(ctx)
}

// LoadScene instantiates a fresh guest and parses data inside it.
func (e *WazeroEngine) LoadScene(ctx context.Context, data []byte) (Scene, error) {
	modConfig := wazero.NewModuleConfig().
		WithName(""). // anonymous, one guest per scene
		WithStartFunctions("_initialize", "_start")

	mod, err := e.runtime.InstantiateModule(ctx, e.compiled, modConfig)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseLoad, errors.KindInstantiation, err, "instantiate runtime guest")
	}

	g := &guest{mod: mod, funcs: make(map[string]api.Function)}

	version, err := g.callU32(ctx, fnABIVersion)
	if err != nil {
		mod.Close(ctx)
		return nil, err
	}
	if version != ABIVersion {
		mod.Close(ctx)
		return nil, errors.New(errors.PhaseEngine, errors.KindContractMismatch).
			Detail("guest speaks ABI v%d, host speaks v%d", version, ABIVersion).
			Build()
	}

	file, err := g.withBytes(ctx, data, func(ptr, length uint32) (int32, error) {
		return g.callI32(ctx, fnFileLoad, api.EncodeU32(ptr), api.EncodeU32(length))
	})
	if err != nil {
		mod.Close(ctx)
		return nil, errors.Load("parse scene", err)
	}
	if file < 0 {
		mod.Close(ctx)
		return nil, errors.Load("parse scene", guestStatus(errors.PhaseLoad, file, "scene file"))
	}

	Logger().Debug("scene loaded", zap.Int("bytes", len(data)), zap.Int32("file", file))
	return &wazeroScene{guest: g, file: file}, nil
}

// guest wraps one instantiated runtime module. Calls are serialized.
type guest struct {
	mod   api.Module
	funcs map[string]api.Function
	mu    sync.Mutex
}

func (g *guest) fn(name string) (api.Function, error) {
	if f, ok := g.funcs[name]; ok {
		return f, nil
	}
	f := g.mod.ExportedFunction(name)
	if f == nil {
		return nil, errors.NotFound(errors.PhaseEngine, "guest export", name)
	}
	g.funcs[name] = f
	return f, nil
}

func (g *guest) call(ctx context.Context, name string, params ...uint64) ([]uint64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	f, err := g.fn(name)
	if err != nil {
		return nil, err
	}
	results, err := f.Call(ctx, params...)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseEngine, errors.KindInternal, err, "call "+name)
	}
	return results, nil
}

func (g *guest) callI32(ctx context.Context, name string, params ...uint64) (int32, error) {
	results, err := g.call(ctx, name, params...)
	if err != nil {
		return 0, err
	}
	if len(results) != 1 {
		return 0, errors.New(errors.PhaseEngine, errors.KindInternal).Detail("%s returned %d results", name, len(results)).Build()
	}
	return api.DecodeI32(results[0]), nil
}

func (g *guest) callU32(ctx context.Context, name string, params ...uint64) (uint32, error) {
	v, err := g.callI32(ctx, name, params...)
	return uint32(v), err
}

func (g *guest) callF32(ctx context.Context, name string, params ...uint64) (float64, error) {
	results, err := g.call(ctx, name, params...)
	if err != nil {
		return 0, err
	}
	if len(results) != 1 {
		return 0, errors.New(errors.PhaseEngine, errors.KindInternal).Detail("%s returned %d results", name, len(results)).Build()
	}
	return float64(api.DecodeF32(results[0])), nil
}

// withBytes copies data into guest memory for the duration of fn.
func (g *guest) withBytes(ctx context.Context, data []byte, fn func(ptr, length uint32) (int32, error)) (int32, error) {
	size := uint32(len(data))
	ptr, err := g.callU32(ctx, fnAlloc, api.EncodeU32(size))
	if err != nil {
		return 0, err
	}
	if ptr == 0 && size > 0 {
		return 0, errors.New(errors.PhaseEngine, errors.KindInternal).Detail("guest failed to allocate %d bytes", size).Build()
	}
	defer func() {
		if _, err := g.call(ctx, fnFree, api.EncodeU32(ptr), api.EncodeU32(size)); err != nil {
			Logger().Warn("guest free failed", zap.Uint32("ptr", ptr), zap.Uint32("size", size), zap.Error(err))
		}
	}()

	if size > 0 && !g.mod.Memory().Write(ptr, data) {
		return 0, errors.New(errors.PhaseEngine, errors.KindInternal).Detail("write %d bytes at %d out of range", size, ptr).Build()
	}
	return fn(ptr, size)
}

func (g *guest) readString(ptr, length uint32) (string, error) {
	b, ok := g.mod.Memory().Read(ptr, length)
	if !ok {
		return "", errors.New(errors.PhaseEngine, errors.KindInternal).Detail("read %d bytes at %d out of range", length, ptr).Build()
	}
	return string(b), nil
}

type wazeroScene struct {
	guest     *guest
	file      int32
	closeOnce sync.Once
}

func (s *wazeroScene) Instantiate(ctx context.Context, surface Surface, opts InstanceOptions) (Instance, error) {
	width, height := surface.Size()

	var flags uint32
	if opts.Autoplay {
		flags |= flagAutoplay
	}
	if opts.AutoBind {
		flags |= flagAutoBind
	}

	handle, err := s.guest.withBytes(ctx, []byte(opts.StateMachine), func(ptr, length uint32) (int32, error) {
		return s.guest.callI32(ctx, fnInstanceNew,
			api.EncodeI32(s.file),
			api.EncodeU32(uint32(width)),
			api.EncodeU32(uint32(height)),
			api.EncodeU32(ptr),
			api.EncodeU32(length),
			api.EncodeU32(flags))
	})
	if err != nil {
		return nil, errors.Instantiation(err)
	}
	if handle < 0 {
		return nil, errors.Instantiation(guestStatus(errors.PhaseLoad, handle, "state machine "+opts.StateMachine))
	}

	inst := &wazeroInstance{scene: s, handle: handle, ready: make(chan struct{})}
	inst.err = inst.load(ctx)
	close(inst.ready)
	return inst, nil
}

func (s *wazeroScene) Close(ctx context.Context) error {
	var err error
	s.closeOnce.Do(func() {
		if _, callErr := s.guest.call(ctx, fnFileFree, api.EncodeI32(s.file)); callErr != nil {
			Logger().Warn("free scene file failed", zap.Error(callErr))
		}
		err = s.guest.mod.Close(ctx)
	})
	return err
}

// wazeroInstance loads synchronously inside Instantiate, so Ready is closed
// before the caller sees it.
type wazeroInstance struct {
	err       error
	scene     *wazeroScene
	vm        *wazeroViewModel
	ready     chan struct{}
	width     float64
	height    float64
	handle    int32
	closeOnce sync.Once
}

func (i *wazeroInstance) load(ctx context.Context) error {
	g := i.scene.guest
	inst := api.EncodeI32(i.handle)

	var err error
	if i.width, err = g.callF32(ctx, fnArtboardWidth, inst); err != nil {
		return err
	}
	if i.height, err = g.callF32(ctx, fnArtboardHeight, inst); err != nil {
		return err
	}

	bound, err := g.callI32(ctx, fnVMBound, inst)
	if err != nil {
		return err
	}
	if bound == 0 {
		return nil
	}

	count, err := g.callU32(ctx, fnPropertyCount, inst)
	if err != nil {
		return err
	}

	vm := &wazeroViewModel{instance: i, index: make(map[string]uint32, count)}
	for idx := uint32(0); idx < count; idx++ {
		results, err := g.call(ctx, fnPropertyName, inst, api.EncodeU32(idx))
		if err != nil {
			return err
		}
		if len(results) != 1 {
			return fmt.Errorf("%s returned %d results", fnPropertyName, len(results))
		}
		name, err := g.readString(unpackPtrLen(results[0]))
		if err != nil {
			return err
		}
		kind, err := g.callU32(ctx, fnPropertyKind, inst, api.EncodeU32(idx))
		if err != nil {
			return err
		}
		vm.props = append(vm.props, Property{Name: name, Kind: Kind(kind)})
		vm.index[name] = idx
	}
	i.vm = vm
	return nil
}

func (i *wazeroInstance) Ready() <-chan struct{} { return i.ready }

func (i *wazeroInstance) Err() error { return i.err }

func (i *wazeroInstance) ArtboardSize() (float64, float64) { return i.width, i.height }

func (i *wazeroInstance) Resize(ctx context.Context, width, height int) error {
	code, err := i.scene.guest.callI32(ctx, fnInstanceResize,
		api.EncodeI32(i.handle), api.EncodeU32(uint32(width)), api.EncodeU32(uint32(height)))
	if err != nil {
		return err
	}
	if code < 0 {
		return guestStatus(errors.PhaseLoad, code, fmt.Sprintf("resize to %dx%d", width, height))
	}
	return nil
}

func (i *wazeroInstance) ViewModel() (ViewModel, bool) {
	if i.vm == nil {
		return nil, false
	}
	return i.vm, true
}

func (i *wazeroInstance) Close(ctx context.Context) error {
	var err error
	i.closeOnce.Do(func() {
		_, err = i.scene.guest.call(ctx, fnInstanceFree, api.EncodeI32(i.handle))
	})
	return err
}

type wazeroViewModel struct {
	instance *wazeroInstance
	index    map[string]uint32
	props    []Property
}

func (vm *wazeroViewModel) Properties(ctx context.Context) ([]Property, error) {
	out := make([]Property, len(vm.props))
	copy(out, vm.props)
	return out, nil
}

func (vm *wazeroViewModel) slot(name string, kind Kind) (*wazeroSlot, bool) {
	idx, ok := vm.index[name]
	if !ok || vm.props[idx].Kind != kind {
		return nil, false
	}
	return &wazeroSlot{vm: vm, name: name, index: idx}, true
}

func (vm *wazeroViewModel) String(name string) (StringSlot, bool) {
	s, ok := vm.slot(name, KindString)
	return s, ok
}

func (vm *wazeroViewModel) Number(name string) (NumberSlot, bool) {
	s, ok := vm.slot(name, KindNumber)
	return s, ok
}

func (vm *wazeroViewModel) Boolean(name string) (BooleanSlot, bool) {
	s, ok := vm.slot(name, KindBoolean)
	return s, ok
}

func (vm *wazeroViewModel) Color(name string) (ColorSlot, bool) {
	s, ok := vm.slot(name, KindColor)
	return s, ok
}

func (vm *wazeroViewModel) Enum(name string) (EnumSlot, bool) {
	s, ok := vm.slot(name, KindEnum)
	return s, ok
}

func (vm *wazeroViewModel) Trigger(name string) (TriggerSlot, bool) {
	s, ok := vm.slot(name, KindTrigger)
	return s, ok
}

// wazeroSlot implements every slot interface; the view model only hands out
// slots whose kind matches the requested interface.
type wazeroSlot struct {
	vm    *wazeroViewModel
	name  string
	index uint32
}

func (s *wazeroSlot) guest() *guest { return s.vm.instance.scene.guest }

func (s *wazeroSlot) args(extra ...uint64) []uint64 {
	return append([]uint64{api.EncodeI32(s.vm.instance.handle), api.EncodeU32(s.index)}, extra...)
}

func (s *wazeroSlot) status(code int32, err error) error {
	if err != nil {
		return err
	}
	if code < 0 {
		return guestStatus(errors.PhaseUpdate, code, "property "+s.name)
	}
	return nil
}

func (s *wazeroSlot) SetString(ctx context.Context, v string) error {
	return s.status(s.guest().withBytes(ctx, []byte(v), func(ptr, length uint32) (int32, error) {
		return s.guest().callI32(ctx, fnSetString, s.args(api.EncodeU32(ptr), api.EncodeU32(length))...)
	}))
}

func (s *wazeroSlot) SetNumber(ctx context.Context, v float64) error {
	return s.status(s.guest().callI32(ctx, fnSetNumber, s.args(api.EncodeF64(v))...))
}

func (s *wazeroSlot) SetBoolean(ctx context.Context, v bool) error {
	var b uint32
	if v {
		b = 1
	}
	return s.status(s.guest().callI32(ctx, fnSetBoolean, s.args(api.EncodeU32(b))...))
}

func (s *wazeroSlot) SetColor(ctx context.Context, argb uint32) error {
	return s.status(s.guest().callI32(ctx, fnSetColor, s.args(api.EncodeU32(argb))...))
}

func (s *wazeroSlot) SetEnum(ctx context.Context, label string) error {
	return s.status(s.guest().withBytes(ctx, []byte(label), func(ptr, length uint32) (int32, error) {
		return s.guest().callI32(ctx, fnSetEnum, s.args(api.EncodeU32(ptr), api.EncodeU32(length))...)
	}))
}

func (s *wazeroSlot) Labels(ctx context.Context) ([]string, error) {
	g := s.guest()
	count, err := g.callI32(ctx, fnEnumCount, s.args()...)
	if err := s.status(count, err); err != nil {
		return nil, err
	}
	labels := make([]string, 0, count)
	for v := uint32(0); v < uint32(count); v++ {
		results, err := g.call(ctx, fnEnumLabel, s.args(api.EncodeU32(v))...)
		if err != nil {
			return nil, err
		}
		if len(results) != 1 {
			return nil, fmt.Errorf("%s returned %d results", fnEnumLabel, len(results))
		}
		label, err := g.readString(unpackPtrLen(results[0]))
		if err != nil {
			return nil, err
		}
		labels = append(labels, label)
	}
	return labels, nil
}

func (s *wazeroSlot) Fire(ctx context.Context) error {
	return s.status(s.guest().callI32(ctx, fnFireTrigger, s.args()...))
}
