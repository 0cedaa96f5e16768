package riveograf

import "github.com/wippyai/rive-ograf/errors"

// TriggerMap names the view-model triggers that back the two built-in
// lifecycle actions. Triggers named here are internal hooks and are never
// exposed as bindable properties or custom actions.
type TriggerMap struct {
	Play string `json:"playAction" yaml:"play"`
	Stop string `json:"stopAction" yaml:"stop"`
}

// Validate checks that both triggers are named and distinct.
func (t TriggerMap) Validate() error {
	if t.Play == "" {
		return errors.InvalidInput(errors.PhaseConfig, "play trigger name is empty")
	}
	if t.Stop == "" {
		return errors.InvalidInput(errors.PhaseConfig, "stop trigger name is empty")
	}
	if t.Play == t.Stop {
		return errors.InvalidInput(errors.PhaseConfig, "play and stop triggers must differ, both are "+t.Play)
	}
	return nil
}

// Claims reports whether name is one of the lifecycle triggers.
func (t TriggerMap) Claims(name string) bool {
	return name == t.Play || name == t.Stop
}
