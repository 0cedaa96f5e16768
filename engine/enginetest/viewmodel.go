package enginetest

import (
	"context"
	"fmt"
	"sync"

	"github.com/wippyai/rive-ograf/engine"
)

// ViewModel is an in-memory engine.ViewModel that records writes.
type ViewModel struct {
	kinds  map[string]engine.Kind
	enums  map[string][]string
	values map[string]any
	fires  map[string]int
	props  []engine.Property
	reads  int
	mu     sync.Mutex
}

func newViewModel(spec SceneSpec) *ViewModel {
	vm := &ViewModel{
		kinds:  make(map[string]engine.Kind, len(spec.Properties)),
		enums:  spec.Enums,
		values: make(map[string]any),
		fires:  make(map[string]int),
		props:  append([]engine.Property(nil), spec.Properties...),
	}
	for _, p := range spec.Properties {
		vm.kinds[p.Name] = p.Kind
	}
	return vm
}

func (vm *ViewModel) Properties(ctx context.Context) ([]engine.Property, error) {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	vm.reads++
	return append([]engine.Property(nil), vm.props...), nil
}

// PropertyReads counts Properties calls.
func (vm *ViewModel) PropertyReads() int {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	return vm.reads
}

// Value returns the last value written to name.
func (vm *ViewModel) Value(name string) (any, bool) {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	v, ok := vm.values[name]
	return v, ok
}

// Fires counts how often trigger name fired.
func (vm *ViewModel) Fires(name string) int {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	return vm.fires[name]
}

func (vm *ViewModel) slot(name string, kind engine.Kind) (*slot, bool) {
	if k, ok := vm.kinds[name]; !ok || k != kind {
		return nil, false
	}
	return &slot{vm: vm, name: name}, true
}

func (vm *ViewModel) String(name string) (engine.StringSlot, bool) {
	s, ok := vm.slot(name, engine.KindString)
	return s, ok
}

func (vm *ViewModel) Number(name string) (engine.NumberSlot, bool) {
	s, ok := vm.slot(name, engine.KindNumber)
	return s, ok
}

func (vm *ViewModel) Boolean(name string) (engine.BooleanSlot, bool) {
	s, ok := vm.slot(name, engine.KindBoolean)
	return s, ok
}

func (vm *ViewModel) Color(name string) (engine.ColorSlot, bool) {
	s, ok := vm.slot(name, engine.KindColor)
	return s, ok
}

func (vm *ViewModel) Enum(name string) (engine.EnumSlot, bool) {
	s, ok := vm.slot(name, engine.KindEnum)
	return s, ok
}

func (vm *ViewModel) Trigger(name string) (engine.TriggerSlot, bool) {
	s, ok := vm.slot(name, engine.KindTrigger)
	return s, ok
}

type slot struct {
	vm   *ViewModel
	name string
}

func (s *slot) set(v any) error {
	s.vm.mu.Lock()
	s.vm.values[s.name] = v
	s.vm.mu.Unlock()
	return nil
}

func (s *slot) SetString(ctx context.Context, v string) error { return s.set(v) }

func (s *slot) SetNumber(ctx context.Context, v float64) error { return s.set(v) }

func (s *slot) SetBoolean(ctx context.Context, v bool) error { return s.set(v) }

func (s *slot) SetColor(ctx context.Context, argb uint32) error { return s.set(argb) }

// Labels returns the configured labels, or nil when the enum accepts any.
func (s *slot) Labels(ctx context.Context) ([]string, error) {
	return append([]string(nil), s.vm.enums[s.name]...), nil
}

func (s *slot) SetEnum(ctx context.Context, label string) error {
	if labels, ok := s.vm.enums[s.name]; ok {
		for _, l := range labels {
			if l == label {
				return s.set(label)
			}
		}
		return fmt.Errorf("enum %q has no value %q", s.name, label)
	}
	return s.set(label)
}

func (s *slot) Fire(ctx context.Context) error {
	s.vm.mu.Lock()
	s.vm.fires[s.name]++
	s.vm.mu.Unlock()
	return nil
}
