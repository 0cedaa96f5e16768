package manifest

import (
	"bytes"
	stderrors "errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/tidwall/gjson"

	riveograf "github.com/wippyai/rive-ograf"
	"github.com/wippyai/rive-ograf/engine"
	"github.com/wippyai/rive-ograf/errors"
)

var testTriggers = riveograf.TriggerMap{Play: "playAction", Stop: "stopAction"}

func TestSynthesize_ClaimedTriggersExcluded(t *testing.T) {
	props := []engine.Property{
		{Name: "title", Kind: engine.KindString},
		{Name: "playAction", Kind: engine.KindTrigger},
		{Name: "onTap", Kind: engine.KindTrigger},
	}

	m, err := Synthesize(DefaultTemplate(), props, testTriggers, Options{})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}

	schema := m.Get("schema.properties").Map()
	if len(schema) != 1 {
		t.Fatalf("schema.properties = %v, want only title", schema)
	}
	title := m.Get("schema.properties.title")
	if title.Get("type").String() != "string" {
		t.Errorf("title type = %q", title.Get("type").String())
	}
	if title.Get("title").String() != "title" {
		t.Errorf("title title = %q", title.Get("title").String())
	}
	if title.Get("description").String() != "Auto-generated property for title" {
		t.Errorf("title description = %q", title.Get("description").String())
	}

	actions := m.Get("customActions").Array()
	if len(actions) != 1 {
		t.Fatalf("customActions = %v, want only onTap", actions)
	}
	if actions[0].Get("id").String() != "onTap" || actions[0].Get("name").String() != "onTap" {
		t.Errorf("customActions[0] = %s", actions[0].Raw)
	}
	if actions[0].Get("description").String() != "Auto-generated custom action for onTap" {
		t.Errorf("description = %q", actions[0].Get("description").String())
	}

	if m.Get("playAction").Exists() || m.Get("schema.properties.playAction").Exists() {
		t.Error("claimed trigger leaked into the manifest")
	}
	if m.Get("schema.type").String() != "object" {
		t.Errorf("schema.type = %q, want object", m.Get("schema.type").String())
	}
}

func TestSynthesize_PreservesOrderAndTemplateFields(t *testing.T) {
	template := []byte(`{"name":"Lower third","id":"lt","main":"lt.mjs","author":{"name":"studio"},"schema":{"type":"object","properties":{"old":{}}},"customActions":[{"id":"stale"}]}`)
	props := []engine.Property{
		{Name: "zeta", Kind: engine.KindNumber},
		{Name: "alpha", Kind: engine.KindColor},
		{Name: "stopAction", Kind: engine.KindTrigger},
		{Name: "middle", Kind: engine.KindEnum},
		{Name: "b", Kind: engine.KindTrigger},
		{Name: "a", Kind: engine.KindTrigger},
	}

	m, err := Synthesize(template, props, testTriggers, Options{})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}

	var keys []string
	m.Get("schema.properties").ForEach(func(k, _ gjson.Result) bool {
		keys = append(keys, k.String())
		return true
	})
	want := []string{"zeta", "alpha", "middle"}
	if len(keys) != len(want) {
		t.Fatalf("schema keys = %v, want %v", keys, want)
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Errorf("schema key %d = %q, want %q", i, keys[i], want[i])
		}
	}

	if len(m.CustomActions) != 2 || m.CustomActions[0].ID != "b" || m.CustomActions[1].ID != "a" {
		t.Errorf("custom actions = %+v, want [b a]", m.CustomActions)
	}
	if m.Get("author.name").String() != "studio" {
		t.Error("template field lost")
	}
	if m.Get("schema.properties.old").Exists() || m.Get(`customActions.#(id=="stale")`).Exists() {
		t.Error("template schema or actions not replaced")
	}
	if m.ID != "lt" || m.Main != "lt.mjs" {
		t.Errorf("id/main = %q/%q", m.ID, m.Main)
	}
}

func TestSynthesize_Stamps(t *testing.T) {
	m, err := Synthesize(DefaultTemplate(), nil, testTriggers, Options{
		ID:       "news",
		Main:     "news.mjs",
		Version:  "0.4.0",
		Contract: 2,
	})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}

	if got := m.Get(DefaultVersionKey).String(); got != "0.4.0" {
		t.Errorf("%s = %q", DefaultVersionKey, got)
	}
	if got := m.Get(DefaultContractKey).Int(); got != 2 {
		t.Errorf("%s = %d", DefaultContractKey, got)
	}
	if m.ID != "news" || m.Main != "news.mjs" {
		t.Errorf("id/main = %q/%q", m.ID, m.Main)
	}

	custom, err := Synthesize(DefaultTemplate(), nil, testTriggers, Options{VersionKey: "v.build", Version: "x"})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if got := custom.Get(gjson.Escape("v.build")).String(); got != "x" {
		t.Errorf("escaped version key = %q", got)
	}
	if custom.Get(DefaultContractKey).Exists() {
		t.Error("zero contract was stamped")
	}
}

func TestSynthesize_DefaultVersions(t *testing.T) {
	m, err := Synthesize(DefaultTemplate(), nil, testTriggers, Options{})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if got := m.Get(DefaultVersionKey).String(); got != riveograf.ConverterVersion() {
		t.Errorf("%s = %q, want %q", DefaultVersionKey, got, riveograf.ConverterVersion())
	}
	if got := m.Get("version").String(); got != "1.0.0" {
		t.Errorf("template version = %q, want it kept", got)
	}

	m, err = Synthesize(DefaultTemplate(), nil, testTriggers, Options{GraphicVersion: "2.1.0"})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if got := m.Get("version").String(); got != "2.1.0" {
		t.Errorf("version = %q, want 2.1.0", got)
	}
	if m.Get(DefaultVersionKey).String() == "2.1.0" {
		t.Error("graphic version leaked into the converter stamp")
	}
}

func TestSynthesize_Deterministic(t *testing.T) {
	props := []engine.Property{
		{Name: "title", Kind: engine.KindString},
		{Name: "onTap", Kind: engine.KindTrigger},
	}
	opts := Options{Version: "1.0.0", Indent: true}

	a, err := Synthesize(DefaultTemplate(), props, testTriggers, opts)
	if err != nil {
		t.Fatal(err)
	}
	b, err := Synthesize(DefaultTemplate(), props, testTriggers, opts)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(a.Bytes(), b.Bytes()) {
		t.Error("identical inputs produced different manifests")
	}
	if !gjson.ValidBytes(a.Bytes()) {
		t.Error("indented manifest is not valid JSON")
	}
}

func TestSynthesize_InvalidTemplate(t *testing.T) {
	for _, tmpl := range []string{``, `[]`, `{"id":`, `"text"`} {
		_, err := Synthesize([]byte(tmpl), nil, testTriggers, Options{})
		if !stderrors.Is(err, &errors.Error{Phase: errors.PhaseManifest, Kind: errors.KindInvalidData}) {
			t.Errorf("template %q: err = %v, want manifest invalid_data", tmpl, err)
		}
	}
}

func TestParse_RoundTrip(t *testing.T) {
	props := []engine.Property{
		{Name: "title", Kind: engine.KindString},
		{Name: "count", Kind: engine.KindNumber},
		{Name: "onTap", Kind: engine.KindTrigger},
	}
	m, err := Synthesize(DefaultTemplate(), props, testTriggers, Options{})
	if err != nil {
		t.Fatal(err)
	}

	parsed, err := Parse(m.Bytes())
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if parsed.ID != m.ID || parsed.Main != m.Main {
		t.Errorf("id/main = %q/%q, want %q/%q", parsed.ID, parsed.Main, m.ID, m.Main)
	}
	if len(parsed.Properties) != 2 || parsed.Properties[1].Name != "count" || parsed.Properties[1].Type != "number" {
		t.Errorf("properties = %+v", parsed.Properties)
	}
	if len(parsed.CustomActions) != 1 || parsed.CustomActions[0].ID != "onTap" {
		t.Errorf("custom actions = %+v", parsed.CustomActions)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		m       Manifest
		wantErr bool
	}{
		{"ok", Manifest{ID: "news", Main: "news.mjs"}, false},
		{"no id", Manifest{Main: "news.mjs"}, true},
		{"id with path", Manifest{ID: "../news", Main: "news.mjs"}, true},
		{"no main", Manifest{ID: "news"}, true},
		{"main collides", Manifest{ID: "news", Main: FileName}, true},
		{"main with dir", Manifest{ID: "news", Main: "lib/news.mjs"}, true},
		{"main backslash", Manifest{ID: "news", Main: `lib\news.mjs`}, true},
		{"main dotdot", Manifest{ID: "news", Main: ".."}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.m.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoadTemplate(t *testing.T) {
	dir := t.TempDir()

	good := filepath.Join(dir, "manifest.ograf.json")
	if err := os.WriteFile(good, DefaultTemplate(), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadTemplate(good); err != nil {
		t.Errorf("LoadTemplate: %v", err)
	}

	bad := filepath.Join(dir, "bad.json")
	if err := os.WriteFile(bad, []byte("[1,2]"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadTemplate(bad); err == nil {
		t.Error("expected error for array template")
	}

	if _, err := LoadTemplate(filepath.Join(dir, "missing.json")); !stderrors.Is(err, &errors.Error{Phase: errors.PhaseManifest, Kind: errors.KindNotFound}) {
		t.Errorf("missing template err = %v", err)
	}
}
