// Package config loads rive-ograf project files.
//
// A project file names the animation, the trigger map and the settings of
// the packaging CLI and the graphic daemon:
//
//	version: 1
//	asset: lower-third.riv
//	engine: rive.wasm
//	triggers:
//	  play: playAction
//	  stop: stopAction
//	package:
//	  out: dist
//	mqtt:
//	  broker: tcp://localhost:1883
//	  topic: ograf/lower-third
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/coreos/go-semver/semver"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	riveograf "github.com/wippyai/rive-ograf"
	"github.com/wippyai/rive-ograf/errors"
)

// Version is the only project file version this package reads.
const Version = 1

type Config struct {
	Triggers riveograf.TriggerMap `yaml:"triggers"`
	Graphic  Graphic              `yaml:"graphic"`
	Package  Package              `yaml:"package"`
	MQTT     MQTT                 `yaml:"mqtt"`
	Log      Log                  `yaml:"log"`
	// Asset is the .riv file. Relative paths resolve against the project
	// file's directory, as do Engine and Package.Template.
	Asset string `yaml:"asset"`
	// Engine is the wasm build of the animation runtime.
	Engine  string `yaml:"engine"`
	Version int    `yaml:"version"`
}

type Graphic struct {
	Defaults       map[string]any `yaml:"defaults"`
	StateMachine   string         `yaml:"state_machine"`
	Width          float64        `yaml:"width"`
	Height         float64        `yaml:"height"`
	MaxWidth       float64        `yaml:"max_width"`
	StrictTriggers bool           `yaml:"strict_triggers"`
}

type Package struct {
	// Template is the manifest template. Empty uses the built-in one.
	Template string `yaml:"template"`
	ID       string `yaml:"id"`
	Main     string `yaml:"main"`
	Out      string `yaml:"out"`
	// Version is the graphic's version, written to the manifest's version
	// field. It must be a semantic version.
	Version    string `yaml:"version"`
	RuntimeURL string `yaml:"runtime_url"`
	Indent     bool   `yaml:"indent"`
}

type MQTT struct {
	Broker   string `yaml:"broker"`
	ClientID string `yaml:"client_id"`
	Topic    string `yaml:"topic"`
	Username string `yaml:"username"`
	// PasswordEnv names the environment variable holding the password.
	// PasswordEnv_FILE, when set, points at a file holding it instead.
	PasswordEnv string        `yaml:"password_env"`
	Timeout     time.Duration `yaml:"timeout"`
	QoS         byte          `yaml:"qos"`
}

type Log struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// Default returns the settings used for fields a project file leaves out.
func Default() *Config {
	return &Config{
		Version: Version,
		Package: Package{Out: "dist"},
		MQTT: MQTT{
			Broker:   "tcp://localhost:1883",
			ClientID: "graphicd",
			Topic:    "ograf/graphic",
			Timeout:  10 * time.Second,
			QoS:      1,
		},
		Log: Log{Level: "info"},
	}
}

// Load reads a project file over Default.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseConfig, errors.KindNotFound, err, "read "+path)
	}
	cfg, err := Parse(b)
	if err != nil {
		return nil, err
	}
	cfg.resolve(filepath.Dir(path))
	return cfg, nil
}

// Parse decodes a project file over Default.
func Parse(b []byte) (*Config, error) {
	cfg := Default()
	cfg.Version = 0
	if err := yaml.Unmarshal(b, cfg); err != nil {
		return nil, errors.InvalidData(errors.PhaseConfig, "decode project file", err)
	}
	if cfg.Version != Version {
		return nil, errors.New(errors.PhaseConfig, errors.KindUnsupported).
			Value(cfg.Version).
			Detail("unsupported project file version: %d", cfg.Version).
			Build()
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.MQTT.QoS > 2 {
		return errors.InvalidInput(errors.PhaseConfig, fmt.Sprintf("mqtt qos must be 0, 1 or 2, got %d", c.MQTT.QoS))
	}
	if c.Graphic.Width < 0 || c.Graphic.Height < 0 {
		return errors.InvalidInput(errors.PhaseConfig, "graphic size must not be negative")
	}
	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		return errors.InvalidData(errors.PhaseConfig, "log level", err)
	}
	if v := c.Package.Version; v != "" {
		if _, err := semver.NewVersion(v); err != nil {
			return errors.InvalidData(errors.PhaseConfig, "package version", err)
		}
	}
	return nil
}

func (c *Config) resolve(dir string) {
	for _, p := range []*string{&c.Asset, &c.Engine, &c.Package.Template} {
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(dir, *p)
		}
	}
}

// Password resolves the MQTT password from the environment.
func (m MQTT) Password() (string, error) {
	if m.PasswordEnv == "" {
		return "", nil
	}
	return ResolveSecret(m.PasswordEnv)
}

// ResolveSecret reads envName+"_FILE" if set, else envName.
func ResolveSecret(envName string) (string, error) {
	fileEnv := envName + "_FILE"
	if path := os.Getenv(fileEnv); path != "" {
		content, err := os.ReadFile(path)
		if err != nil {
			return "", errors.Wrap(errors.PhaseConfig, errors.KindNotFound, err, "read secret from "+fileEnv)
		}
		return strings.TrimSpace(string(content)), nil
	}
	return os.Getenv(envName), nil
}

// Build returns a zap logger for these settings.
func (l Log) Build() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(l.Level)
	if err != nil {
		return nil, errors.InvalidData(errors.PhaseConfig, "log level", err)
	}

	zc := zap.NewProductionConfig()
	if l.Development {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}
