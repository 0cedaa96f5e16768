package engine

import (
	"regexp"
	"strings"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.bytecodealliance.org/wit"

	"github.com/wippyai/rive-ograf/errors"
)

// ABIVersion is the guest ABI revision this host speaks. Guests report
// theirs through rive_abi_version.
const ABIVersion = 1

// GuestABI lists the functions a runtime guest must export. Names are
// kebab-case here and snake_case in the binary.
//
// Strings are passed as (ptr, len) pairs in guest memory allocated with
// rive-alloc. rive-vm-property-name and rive-vm-enum-label return
// ptr<<32 | len. Negative s32 results are guest status codes.
const GuestABI = `
rive-abi-version: func() -> u32;
rive-alloc: func(size: u32) -> u32;
rive-free: func(ptr: u32, size: u32);
rive-file-load: func(ptr: u32, len: u32) -> s32;
rive-file-free: func(file: s32);
rive-instance-new: func(file: s32, width: u32, height: u32, sm-ptr: u32, sm-len: u32, flags: u32) -> s32;
rive-instance-free: func(inst: s32);
rive-instance-resize: func(inst: s32, width: u32, height: u32) -> s32;
rive-artboard-width: func(inst: s32) -> f32;
rive-artboard-height: func(inst: s32) -> f32;
rive-vm-bound: func(inst: s32) -> bool;
rive-vm-property-count: func(inst: s32) -> u32;
rive-vm-property-name: func(inst: s32, index: u32) -> u64;
rive-vm-property-kind: func(inst: s32, index: u32) -> u32;
rive-vm-set-string: func(inst: s32, index: u32, ptr: u32, len: u32) -> s32;
rive-vm-set-number: func(inst: s32, index: u32, value: f64) -> s32;
rive-vm-set-boolean: func(inst: s32, index: u32, value: bool) -> s32;
rive-vm-set-color: func(inst: s32, index: u32, argb: u32) -> s32;
rive-vm-set-enum: func(inst: s32, index: u32, ptr: u32, len: u32) -> s32;
rive-vm-enum-count: func(inst: s32, index: u32) -> s32;
rive-vm-enum-label: func(inst: s32, index: u32, value: u32) -> u64;
rive-vm-fire-trigger: func(inst: s32, index: u32) -> s32;
`

// Guest export names.
const (
	fnABIVersion     = "rive_abi_version"
	fnAlloc          = "rive_alloc"
	fnFree           = "rive_free"
	fnFileLoad       = "rive_file_load"
	fnFileFree       = "rive_file_free"
	fnInstanceNew    = "rive_instance_new"
	fnInstanceFree   = "rive_instance_free"
	fnInstanceResize = "rive_instance_resize"
	fnArtboardWidth  = "rive_artboard_width"
	fnArtboardHeight = "rive_artboard_height"
	fnVMBound        = "rive_vm_bound"
	fnPropertyCount  = "rive_vm_property_count"
	fnPropertyName   = "rive_vm_property_name"
	fnPropertyKind   = "rive_vm_property_kind"
	fnSetString      = "rive_vm_set_string"
	fnSetNumber      = "rive_vm_set_number"
	fnSetBoolean     = "rive_vm_set_boolean"
	fnSetColor       = "rive_vm_set_color"
	fnSetEnum        = "rive_vm_set_enum"
	fnEnumCount      = "rive_vm_enum_count"
	fnEnumLabel      = "rive_vm_enum_label"
	fnFireTrigger    = "rive_vm_fire_trigger"

	guestMemory = "memory"
)

// rive-instance-new flags
const (
	flagAutoplay uint32 = 1 << iota
	flagAutoBind
)

// Guest status codes returned as negative s32.
const (
	guestErrNotFound     = -1
	guestErrTypeMismatch = -2
	guestErrInvalidValue = -3
	guestErrParse        = -4
)

// guestFunc is one contract entry flattened to core wasm types.
type guestFunc struct {
	name    string
	params  []api.ValueType
	results []api.ValueType
}

var witFuncPattern = regexp.MustCompile(`([a-zA-Z_][a-zA-Z0-9_-]*)\s*:\s*func\s*\(([^)]*)\)(?:\s*->\s*([^;]+))?`)

// parseGuestABI parses WIT function declarations into core signatures.
func parseGuestABI(witText string) ([]guestFunc, error) {
	var funcs []guestFunc

	for _, match := range witFuncPattern.FindAllStringSubmatch(witText, -1) {
		fn := guestFunc{name: exportName(match[1])}

		if params := strings.TrimSpace(match[2]); params != "" {
			for _, p := range strings.Split(params, ",") {
				typStr := p
				if idx := strings.LastIndex(p, ":"); idx != -1 {
					typStr = p[idx+1:]
				}
				vt, err := coreType(typStr)
				if err != nil {
					return nil, errors.Wrap(errors.PhaseEngine, errors.KindInvalidData, err, "parse param type of "+fn.name)
				}
				fn.params = append(fn.params, vt)
			}
		}

		if result := strings.TrimSpace(match[3]); result != "" {
			vt, err := coreType(result)
			if err != nil {
				return nil, errors.Wrap(errors.PhaseEngine, errors.KindInvalidData, err, "parse result type of "+fn.name)
			}
			fn.results = []api.ValueType{vt}
		}

		funcs = append(funcs, fn)
	}

	if len(funcs) == 0 {
		return nil, errors.InvalidInput(errors.PhaseEngine, "no functions found in WIT text")
	}
	return funcs, nil
}

// coreType maps a scalar WIT type onto its flat core representation.
func coreType(s string) (api.ValueType, error) {
	t, err := wit.ParseType(strings.TrimSpace(s))
	if err != nil {
		return 0, err
	}
	switch t.(type) {
	case wit.Bool, wit.U8, wit.S8, wit.U16, wit.S16, wit.U32, wit.S32, wit.Char:
		return api.ValueTypeI32, nil
	case wit.U64, wit.S64:
		return api.ValueTypeI64, nil
	case wit.F32:
		return api.ValueTypeF32, nil
	case wit.F64:
		return api.ValueTypeF64, nil
	}
	return 0, errors.Unsupported(errors.PhaseEngine, "non-scalar WIT type "+s)
}

// exportName converts a kebab-case WIT name to the guest's export name.
func exportName(kebab string) string {
	return strings.ReplaceAll(kebab, "-", "_")
}

// checkExports verifies that compiled satisfies every contract entry and
// reports all problems at once.
func checkExports(compiled wazero.CompiledModule, contract []guestFunc) error {
	var problems []errors.ExportProblem

	if _, ok := compiled.ExportedMemories()[guestMemory]; !ok {
		problems = append(problems, errors.ExportProblem{Function: guestMemory, Reason: "missing"})
	}

	defs := compiled.ExportedFunctions()
	for _, fn := range contract {
		def, ok := defs[fn.name]
		if !ok {
			problems = append(problems, errors.ExportProblem{Function: fn.name, Reason: "missing"})
			continue
		}
		if !sameTypes(def.ParamTypes(), fn.params) {
			problems = append(problems, errors.ExportProblem{
				Function: fn.name,
				Reason:   "params " + typeList(def.ParamTypes()) + ", want " + typeList(fn.params),
			})
		}
		if !sameTypes(def.ResultTypes(), fn.results) {
			problems = append(problems, errors.ExportProblem{
				Function: fn.name,
				Reason:   "results " + typeList(def.ResultTypes()) + ", want " + typeList(fn.results),
			})
		}
	}

	if len(problems) > 0 {
		return errors.NewMissingExportsError(problems)
	}
	return nil
}

func sameTypes(a, b []api.ValueType) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func typeList(types []api.ValueType) string {
	names := make([]string, len(types))
	for i, t := range types {
		names[i] = api.ValueTypeName(t)
	}
	return "[" + strings.Join(names, " ") + "]"
}

// guestStatus converts a negative guest status code into an error.
func guestStatus(phase errors.Phase, code int32, what string) error {
	switch code {
	case guestErrNotFound:
		return errors.NotFound(phase, "guest object", what)
	case guestErrTypeMismatch:
		return errors.New(phase, errors.KindTypeMismatch).Detail("guest rejected %s: wrong type", what).Build()
	case guestErrInvalidValue:
		return errors.New(phase, errors.KindInvalidInput).Detail("guest rejected %s: invalid value", what).Build()
	case guestErrParse:
		return errors.New(phase, errors.KindInvalidData).Detail("guest could not parse %s", what).Build()
	}
	return errors.New(phase, errors.KindInternal).Detail("guest status %d for %s", code, what).Build()
}

// unpackPtrLen splits a ptr<<32 | len result.
func unpackPtrLen(v uint64) (ptr, length uint32) {
	return uint32(v >> 32), uint32(v)
}
