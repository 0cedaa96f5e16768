// Package manifest derives an OGraf graphic manifest from an animation's
// bindable properties.
//
// The manifest is patched into a caller supplied template document, so
// fields the synthesizer does not own survive unchanged and keep their
// order.
package manifest

import (
	_ "embed"
	"encoding/json"
	"os"
	"path"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/pretty"
	"github.com/tidwall/sjson"

	riveograf "github.com/wippyai/rive-ograf"
	"github.com/wippyai/rive-ograf/engine"
	"github.com/wippyai/rive-ograf/errors"
)

// FileName is the manifest's name inside a package.
const FileName = "manifest.ograf.json"

const (
	DefaultVersionKey  = "v_riveConverterVersion"
	DefaultContractKey = "v_riveTemplateContract"
)

//go:embed templates/default.ograf.json
var defaultTemplate []byte

// DefaultTemplate returns a minimal realtime OGraf manifest.
func DefaultTemplate() []byte {
	return append([]byte(nil), defaultTemplate...)
}

// LoadTemplate reads a template manifest and checks that it is a JSON
// object.
func LoadTemplate(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseManifest, errors.KindNotFound, err, "read template "+path)
	}
	if err := validTemplate(data); err != nil {
		return nil, err
	}
	return data, nil
}

func validTemplate(data []byte) error {
	if !gjson.ValidBytes(data) {
		return errors.InvalidData(errors.PhaseManifest, "template is not valid JSON", nil)
	}
	if !gjson.ParseBytes(data).IsObject() {
		return errors.InvalidData(errors.PhaseManifest, "template must be a JSON object", nil)
	}
	return nil
}

// Options controls the fields stamped into the manifest.
type Options struct {
	// ID and Main replace the template's id and main when set.
	ID   string
	Main string
	// GraphicVersion replaces the template's version when set.
	GraphicVersion string
	// VersionKey names the converter version field. Defaults to
	// DefaultVersionKey. Empty Version stamps riveograf.ConverterVersion.
	VersionKey string
	Version    string
	// ContractKey names the adapter contract field. Defaults to
	// DefaultContractKey. Zero Contract skips the stamp.
	ContractKey string
	Contract    int
	// Indent pretty-prints the document.
	Indent bool
}

// SchemaProperty is one entry of schema.properties.
type SchemaProperty struct {
	Name        string `json:"-"`
	Type        string `json:"type"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

// CustomAction is one trigger-backed entry of customActions.
type CustomAction struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Manifest is a synthesized manifest document.
type Manifest struct {
	ID            string
	Main          string
	Properties    []SchemaProperty
	CustomActions []CustomAction
	doc           []byte
}

// Bytes returns the JSON document.
func (m *Manifest) Bytes() []byte {
	return append([]byte(nil), m.doc...)
}

// MarshalJSON returns the document unchanged.
func (m *Manifest) MarshalJSON() ([]byte, error) {
	return m.Bytes(), nil
}

// Get returns the value at a gjson path of the document.
func (m *Manifest) Get(path string) gjson.Result {
	return gjson.GetBytes(m.doc, path)
}

// Synthesize fills template with the schema and custom actions derived from
// props. Triggers claimed by triggers become neither. Other triggers become
// custom actions and the remaining properties become schema entries, both
// in the order of props.
func Synthesize(template []byte, props []engine.Property, triggers riveograf.TriggerMap, opts Options) (*Manifest, error) {
	if err := validTemplate(template); err != nil {
		return nil, err
	}

	m := &Manifest{
		Properties:    []SchemaProperty{},
		CustomActions: []CustomAction{},
	}
	for _, p := range props {
		if triggers.Claims(p.Name) {
			continue
		}
		if p.Kind == engine.KindTrigger {
			m.CustomActions = append(m.CustomActions, CustomAction{
				ID:          p.Name,
				Name:        p.Name,
				Description: "Auto-generated custom action for " + p.Name,
			})
			continue
		}
		m.Properties = append(m.Properties, SchemaProperty{
			Name:        p.Name,
			Type:        p.Kind.String(),
			Title:       p.Name,
			Description: "Auto-generated property for " + p.Name,
		})
	}

	schema, err := schemaJSON(m.Properties)
	if err != nil {
		return nil, errors.Internal(errors.PhaseManifest, err)
	}
	actions, err := json.Marshal(m.CustomActions)
	if err != nil {
		return nil, errors.Internal(errors.PhaseManifest, err)
	}

	doc := append([]byte(nil), template...)
	edits := []struct {
		path string
		raw  []byte
		skip bool
	}{
		{path: "customActions", raw: actions},
		{path: "schema", raw: schema},
		{path: "id", raw: quote(opts.ID), skip: opts.ID == ""},
		{path: "main", raw: quote(opts.Main), skip: opts.Main == ""},
		{path: "version", raw: quote(opts.GraphicVersion), skip: opts.GraphicVersion == ""},
		{path: gjson.Escape(orDefault(opts.VersionKey, DefaultVersionKey)), raw: quote(orDefault(opts.Version, riveograf.ConverterVersion()))},
		{path: gjson.Escape(orDefault(opts.ContractKey, DefaultContractKey)), raw: []byte(jsonInt(opts.Contract)), skip: opts.Contract == 0},
	}
	for _, e := range edits {
		if e.skip {
			continue
		}
		doc, err = sjson.SetRawBytes(doc, e.path, e.raw)
		if err != nil {
			return nil, errors.Wrap(errors.PhaseManifest, errors.KindInternal, err, "set "+e.path)
		}
	}
	if opts.Indent {
		doc = pretty.Pretty(doc)
	}

	m.doc = doc
	m.ID = gjson.GetBytes(doc, "id").String()
	m.Main = gjson.GetBytes(doc, "main").String()
	return m, nil
}

// Parse reads a manifest document.
func Parse(doc []byte) (*Manifest, error) {
	if err := validTemplate(doc); err != nil {
		return nil, err
	}
	root := gjson.ParseBytes(doc)
	m := &Manifest{
		ID:   root.Get("id").String(),
		Main: root.Get("main").String(),
		doc:  append([]byte(nil), doc...),
	}
	root.Get("schema.properties").ForEach(func(k, v gjson.Result) bool {
		m.Properties = append(m.Properties, SchemaProperty{
			Name:        k.String(),
			Type:        v.Get("type").String(),
			Title:       v.Get("title").String(),
			Description: v.Get("description").String(),
		})
		return true
	})
	root.Get("customActions").ForEach(func(_, v gjson.Result) bool {
		m.CustomActions = append(m.CustomActions, CustomAction{
			ID:          v.Get("id").String(),
			Name:        v.Get("name").String(),
			Description: v.Get("description").String(),
		})
		return true
	})
	return m, nil
}

// Validate checks the fields a package needs: an id usable as a file name
// and a main entry that is a plain file name other than FileName.
func (m *Manifest) Validate() error {
	switch {
	case m.ID == "":
		return errors.InvalidInput(errors.PhaseManifest, "manifest has no id")
	case strings.ContainsAny(m.ID, `/\`) || m.ID == "." || m.ID == "..":
		return errors.New(errors.PhaseManifest, errors.KindInvalidInput).
			Value(m.ID).
			Detail("manifest id %q is not a valid file name", m.ID).
			Build()
	case m.Main == "":
		return errors.InvalidInput(errors.PhaseManifest, "manifest has no main entry")
	case m.Main == FileName:
		return errors.InvalidInput(errors.PhaseManifest, "manifest main collides with "+FileName)
	case strings.ContainsAny(m.Main, `/\`) || path.Clean(m.Main) != m.Main || m.Main == "." || m.Main == "..":
		return errors.New(errors.PhaseManifest, errors.KindInvalidInput).
			Value(m.Main).
			Detail("manifest main %q must be a file name without a path", m.Main).
			Build()
	}
	return nil
}

// schemaJSON renders the schema object with properties in slice order.
func schemaJSON(props []SchemaProperty) ([]byte, error) {
	var b strings.Builder
	b.WriteString(`{"type":"object","properties":{`)
	for i, p := range props {
		if i > 0 {
			b.WriteByte(',')
		}
		key, err := json.Marshal(p.Name)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(p)
		if err != nil {
			return nil, err
		}
		b.Write(key)
		b.WriteByte(':')
		b.Write(val)
	}
	b.WriteString(`}}`)
	return []byte(b.String()), nil
}

func quote(s string) []byte {
	b, _ := json.Marshal(s)
	return b
}

func jsonInt(n int) string {
	b, _ := json.Marshal(n)
	return string(b)
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
