// Package codegen renders the standalone adapter module of an OGraf package.
//
// The adapter is a text/template that receives its parameters as data.
// Every template declares the parameter contract it was written against in
// a "contract" block:
//
//	{{define "contract"}}1{{end}}
//
// Render refuses templates whose contract differs from ContractVersion and
// templates that reference parameters the contract does not provide.
package codegen

import (
	"bytes"
	_ "embed"
	"math"
	"strconv"
	"strings"
	"text/template"

	riveograf "github.com/wippyai/rive-ograf"
	"github.com/wippyai/rive-ograf/errors"
)

// ContractVersion is the parameter set Params provides to templates.
const ContractVersion = 1

const (
	DefaultRuntimeURL   = "https://unpkg.com/@rive-app/webgl@2.35.0"
	DefaultStateMachine = "State Machine 1"
)

const contractBlock = "contract"

//go:embed templates/graphic.mjs.tmpl
var defaultSource string

var defaultTemplate = mustParse("graphic.mjs", defaultSource)

// Params are the instance constants baked into the adapter.
type Params struct {
	// Asset is embedded as a decimal byte array.
	Asset        []byte
	PlayTrigger  string
	StopTrigger  string
	StateMachine string
	RuntimeURL   string
	Width        float64
	Height       float64
}

func (p Params) withDefaults() Params {
	if p.StateMachine == "" {
		p.StateMachine = DefaultStateMachine
	}
	if p.RuntimeURL == "" {
		p.RuntimeURL = DefaultRuntimeURL
	}
	return p
}

// Validate checks the parameters before rendering.
func (p Params) Validate() error {
	if len(p.Asset) == 0 {
		return errors.InvalidInput(errors.PhaseCodegen, "no asset bytes to embed")
	}
	if !(p.Width > 0) || !(p.Height > 0) || math.IsInf(p.Width, 0) || math.IsInf(p.Height, 0) {
		return errors.New(errors.PhaseCodegen, errors.KindInvalidInput).
			Detail("dimensions must be positive, got %vx%v", p.Width, p.Height).
			Build()
	}
	triggers := riveograf.TriggerMap{Play: p.PlayTrigger, Stop: p.StopTrigger}
	if err := triggers.Validate(); err != nil {
		return errors.Wrap(errors.PhaseCodegen, errors.KindInvalidInput, err, "trigger map")
	}
	return nil
}

// data is everything a contract v1 template can reference.
func (p Params) data() map[string]any {
	return map[string]any{
		"ContractVersion": ContractVersion,
		"Asset":           p.Asset,
		"PlayTrigger":     p.PlayTrigger,
		"StopTrigger":     p.StopTrigger,
		"StateMachine":    p.StateMachine,
		"RuntimeURL":      p.RuntimeURL,
		"Width":           p.Width,
		"Height":          p.Height,
	}
}

// Template is a parsed adapter template.
type Template struct {
	tmpl     *template.Template
	contract int
}

var funcs = template.FuncMap{
	"bytes": byteList,
	"num":   formatNumber,
}

// Parse parses an adapter template and reads its contract block.
func Parse(name, src string) (*Template, error) {
	tmpl, err := template.New(name).Funcs(funcs).Option("missingkey=error").Parse(src)
	if err != nil {
		return nil, errors.InvalidData(errors.PhaseCodegen, "parse template "+name, err)
	}
	if tmpl.Lookup(contractBlock) == nil {
		return nil, errors.InvalidData(errors.PhaseCodegen, "template "+name+" declares no contract block", nil)
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, contractBlock, nil); err != nil {
		return nil, errors.InvalidData(errors.PhaseCodegen, "read contract of "+name, err)
	}
	contract, err := strconv.Atoi(strings.TrimSpace(buf.String()))
	if err != nil {
		return nil, errors.InvalidData(errors.PhaseCodegen, "contract of "+name+" is not a number", err)
	}
	return &Template{tmpl: tmpl, contract: contract}, nil
}

func mustParse(name, src string) *Template {
	t, err := Parse(name, src)
	if err != nil {
		panic(err)
	}
	return t
}

// Default returns the built-in adapter template.
func Default() *Template { return defaultTemplate }

// Contract returns the contract version the template declares.
func (t *Template) Contract() int { return t.contract }

// Render executes the template with p.
func (t *Template) Render(p Params) ([]byte, error) {
	if t.contract != ContractVersion {
		return nil, errors.ContractMismatch(errors.PhaseCodegen, ContractVersion, t.contract)
	}
	p = p.withDefaults()
	if err := p.Validate(); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	buf.Grow(len(p.Asset)*4 + 8<<10)
	if err := t.tmpl.Execute(&buf, p.data()); err != nil {
		return nil, errors.Wrap(errors.PhaseCodegen, errors.KindInvalidData, err, "render "+t.tmpl.Name())
	}
	return buf.Bytes(), nil
}

// Render renders the built-in template.
func Render(p Params) ([]byte, error) {
	return defaultTemplate.Render(p)
}

// byteList writes data as comma separated decimals.
func byteList(data []byte) string {
	var b strings.Builder
	b.Grow(len(data) * 4)
	for i, v := range data {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.Itoa(int(v)))
	}
	return b.String()
}

func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
