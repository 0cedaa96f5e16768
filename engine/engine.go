package engine

import (
	"context"
	"fmt"
)

// Engine parses binary animation files into scenes.
type Engine interface {
	LoadScene(ctx context.Context, data []byte) (Scene, error)
	Close(ctx context.Context) error
}

// Scene is a parsed animation file. It can be instantiated any number of
// times; each instance is independent.
type Scene interface {
	Instantiate(ctx context.Context, surface Surface, opts InstanceOptions) (Instance, error)
	Close(ctx context.Context) error
}

// InstanceOptions selects what an instance plays once created.
type InstanceOptions struct {
	// StateMachine names the state machine to run. Empty selects the
	// artboard's default.
	StateMachine string
	Autoplay     bool
	// AutoBind binds the artboard's default view-model instance.
	AutoBind bool
}

// Instance is a live binding of a scene to a drawable surface.
//
// Ready is closed once the engine finished loading the instance; Err reports
// the load outcome after that. ArtboardSize and ViewModel are only
// meaningful after Ready. Resize refits the artboard after the surface it
// renders into changed size.
type Instance interface {
	Ready() <-chan struct{}
	Err() error
	ArtboardSize() (width, height float64)
	Resize(ctx context.Context, width, height int) error
	ViewModel() (ViewModel, bool)
	Close(ctx context.Context) error
}

// ViewModel is the bindable data model of an instance. Slot lookups return
// false when the property is absent or has a different kind.
type ViewModel interface {
	Properties(ctx context.Context) ([]Property, error)
	String(name string) (StringSlot, bool)
	Number(name string) (NumberSlot, bool)
	Boolean(name string) (BooleanSlot, bool)
	Color(name string) (ColorSlot, bool)
	Enum(name string) (EnumSlot, bool)
	Trigger(name string) (TriggerSlot, bool)
}

type StringSlot interface {
	SetString(ctx context.Context, v string) error
}

type NumberSlot interface {
	SetNumber(ctx context.Context, v float64) error
}

type BooleanSlot interface {
	SetBoolean(ctx context.Context, v bool) error
}

// ColorSlot takes colours packed as 0xAARRGGBB.
type ColorSlot interface {
	SetColor(ctx context.Context, argb uint32) error
}

// EnumSlot takes the label of one of the enum's values. Labels lists them
// in declaration order.
type EnumSlot interface {
	Labels(ctx context.Context) ([]string, error)
	SetEnum(ctx context.Context, label string) error
}

type TriggerSlot interface {
	Fire(ctx context.Context) error
}

// Property describes one view-model property.
type Property struct {
	Name string `json:"name"`
	Kind Kind   `json:"type"`
}

// Kind is the data type of a view-model property. Values match the
// runtime's data type codes.
type Kind uint32

const (
	KindNone Kind = iota
	KindString
	KindNumber
	KindBoolean
	KindColor
	KindList
	KindEnum
	KindTrigger
	KindViewModel
	KindInteger
	KindListIndex
	KindImage
	KindArtboard
)

var kindNames = [...]string{
	KindNone:      "none",
	KindString:    "string",
	KindNumber:    "number",
	KindBoolean:   "boolean",
	KindColor:     "color",
	KindList:      "list",
	KindEnum:      "enum",
	KindTrigger:   "trigger",
	KindViewModel: "viewModel",
	KindInteger:   "integer",
	KindListIndex: "listIndex",
	KindImage:     "assetImage",
	KindArtboard:  "artboard",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", uint32(k))
}

// ParseKind returns the Kind named s.
func ParseKind(s string) (Kind, bool) {
	for i, name := range kindNames {
		if name == s {
			return Kind(i), true
		}
	}
	return KindNone, false
}

// MarshalText encodes the kind by name, which is what manifests use.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *Kind) UnmarshalText(b []byte) error {
	parsed, ok := ParseKind(string(b))
	if !ok {
		return fmt.Errorf("unknown property kind %q", b)
	}
	*k = parsed
	return nil
}
