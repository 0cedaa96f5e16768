package graphic

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/lucasb-eyer/go-colorful"

	"github.com/wippyai/rive-ograf/engine"
	"github.com/wippyai/rive-ograf/errors"
)

// Value is a property value coerced to the kind its property declares.
// The concrete types are StringValue, NumberValue, BooleanValue, ColorValue
// and EnumValue.
type Value interface {
	Kind() engine.Kind
	value()
}

type (
	StringValue  string
	NumberValue  float64
	BooleanValue bool
	ColorValue   uint32 // 0xAARRGGBB
	EnumValue    string
)

func (StringValue) Kind() engine.Kind  { return engine.KindString }
func (NumberValue) Kind() engine.Kind  { return engine.KindNumber }
func (BooleanValue) Kind() engine.Kind { return engine.KindBoolean }
func (ColorValue) Kind() engine.Kind   { return engine.KindColor }
func (EnumValue) Kind() engine.Kind    { return engine.KindEnum }

func (StringValue) value()  {}
func (NumberValue) value()  {}
func (BooleanValue) value() {}
func (ColorValue) value()   {}
func (EnumValue) value()    {}

// Coerce converts raw, as decoded from JSON or YAML, to the value type of
// kind. Kinds without a writable slot are rejected with KindUnsupported.
func Coerce(name string, kind engine.Kind, raw any) (Value, error) {
	switch kind {
	case engine.KindString:
		switch v := raw.(type) {
		case string:
			return StringValue(v), nil
		case bool:
			return StringValue(strconv.FormatBool(v)), nil
		}
		if f, ok := number(raw); ok {
			return StringValue(strconv.FormatFloat(f, 'f', -1, 64)), nil
		}
		return nil, errors.TypeMismatch(errors.PhaseUpdate, name, raw, "string")

	case engine.KindNumber:
		if f, ok := number(raw); ok {
			return NumberValue(f), nil
		}
		if s, ok := raw.(string); ok {
			if f, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
				return NumberValue(f), nil
			}
		}
		return nil, errors.TypeMismatch(errors.PhaseUpdate, name, raw, "number")

	case engine.KindBoolean:
		switch v := raw.(type) {
		case bool:
			return BooleanValue(v), nil
		case string:
			if b, err := strconv.ParseBool(v); err == nil {
				return BooleanValue(b), nil
			}
		}
		if f, ok := number(raw); ok {
			return BooleanValue(f != 0), nil
		}
		return nil, errors.TypeMismatch(errors.PhaseUpdate, name, raw, "boolean")

	case engine.KindColor:
		if s, ok := raw.(string); ok {
			c, err := ParseColor(s)
			if err != nil {
				return nil, errors.New(errors.PhaseUpdate, errors.KindTypeMismatch).
					Property(name).
					Value(raw).
					Cause(err).
					Detail("invalid color %q", s).
					Build()
			}
			return c, nil
		}
		if f, ok := number(raw); ok && f >= 0 && f <= 0xFFFFFFFF && f == float64(uint32(f)) {
			return ColorValue(uint32(f)), nil
		}
		return nil, errors.TypeMismatch(errors.PhaseUpdate, name, raw, "color")

	case engine.KindEnum:
		if s, ok := raw.(string); ok {
			return EnumValue(s), nil
		}
		return nil, errors.TypeMismatch(errors.PhaseUpdate, name, raw, "enum label")
	}
	return nil, errors.UnsupportedKind(errors.PhaseUpdate, name, kind.String())
}

// ParseColor reads "#rgb", "#rrggbb" or "#aarrggbb". Colors without an alpha
// component are opaque.
func ParseColor(s string) (ColorValue, error) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "#") || (len(s) != 4 && len(s) != 7 && len(s) != 9) {
		return 0, fmt.Errorf("color %q is not #rgb, #rrggbb or #aarrggbb", s)
	}
	alpha := uint32(0xff)
	if len(s) == 9 {
		a, err := strconv.ParseUint(s[1:3], 16, 8)
		if err != nil {
			return 0, fmt.Errorf("alpha %q: %w", s[1:3], err)
		}
		alpha = uint32(a)
		s = "#" + s[3:]
	}
	c, err := colorful.Hex(s)
	if err != nil {
		return 0, err
	}
	r, g, b := c.RGB255()
	return ColorValue(alpha<<24 | uint32(r)<<16 | uint32(g)<<8 | uint32(b)), nil
}

func number(raw any) (float64, bool) {
	switch v := raw.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case int32:
		return float64(v), true
	case uint:
		return float64(v), true
	case uint32:
		return float64(v), true
	case uint64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	}
	return 0, false
}

// bind resolves the slot of the same name and kind as v and returns a
// setter that stores v in it. Enum labels are checked against the enum's
// values here, so a rejected label fails before anything is written.
func bind(ctx context.Context, vm engine.ViewModel, name string, v Value) (func(context.Context) error, error) {
	var set func(context.Context) error
	switch v := v.(type) {
	case StringValue:
		s, ok := vm.String(name)
		if !ok {
			return nil, errors.UnknownProperty(errors.PhaseUpdate, name)
		}
		set = func(ctx context.Context) error { return s.SetString(ctx, string(v)) }
	case NumberValue:
		s, ok := vm.Number(name)
		if !ok {
			return nil, errors.UnknownProperty(errors.PhaseUpdate, name)
		}
		set = func(ctx context.Context) error { return s.SetNumber(ctx, float64(v)) }
	case BooleanValue:
		s, ok := vm.Boolean(name)
		if !ok {
			return nil, errors.UnknownProperty(errors.PhaseUpdate, name)
		}
		set = func(ctx context.Context) error { return s.SetBoolean(ctx, bool(v)) }
	case ColorValue:
		s, ok := vm.Color(name)
		if !ok {
			return nil, errors.UnknownProperty(errors.PhaseUpdate, name)
		}
		set = func(ctx context.Context) error { return s.SetColor(ctx, uint32(v)) }
	case EnumValue:
		s, ok := vm.Enum(name)
		if !ok {
			return nil, errors.UnknownProperty(errors.PhaseUpdate, name)
		}
		labels, err := s.Labels(ctx)
		if err != nil {
			return nil, errors.Wrap(errors.PhaseUpdate, errors.KindInternal, err, "list enum values of "+name)
		}
		// An empty list means the runtime does not enumerate its values.
		if len(labels) > 0 && !slices.Contains(labels, string(v)) {
			return nil, errors.New(errors.PhaseUpdate, errors.KindInvalidInput).
				Property(name).
				Value(string(v)).
				Detail("enum %s has no value %q (one of %s)", name, string(v), strings.Join(labels, ", ")).
				Build()
		}
		set = func(ctx context.Context) error { return s.SetEnum(ctx, string(v)) }
	default:
		return nil, errors.UnsupportedKind(errors.PhaseUpdate, name, fmt.Sprintf("%T", v))
	}

	return func(ctx context.Context) error {
		if err := set(ctx); err != nil {
			return errors.New(errors.PhaseUpdate, errors.KindInternal).
				Property(name).
				Value(v).
				Cause(err).
				Detail("write %s", v.Kind()).
				Build()
		}
		return nil
	}, nil
}
