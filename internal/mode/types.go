package mode

import (
	"fmt"
	"strings"
	"time"
)

// Mode is the scene a user is in.
type Mode string

// Capability is the behavior dimension combined with a Mode.
type Capability string

const (
	// ModeWork selects productivity actions.
	ModeWork Mode = "work"
	// ModeLife selects companion actions.
	ModeLife Mode = "life"

	// CapabilityMimic imitates the user's style.
	CapabilityMimic Capability = "mimic"
	// CapabilityAnalyze produces insights about the user.
	CapabilityAnalyze Capability = "analyze"
)

// Context is one entry of the switch history.
type Context struct {
	Mode       Mode       `json:"mode"`
	Capability Capability `json:"capability"`
	Timestamp  time.Time  `json:"timestamp"`
}

// State is the persisted (mode, capability) pair.
type State struct {
	Mode       Mode       `json:"currentMode"`
	Capability Capability `json:"currentCapability"`
}

// DefaultState is the state after a reset.
func DefaultState() State {
	return State{Mode: ModeWork, Capability: CapabilityMimic}
}

// ModeConfig describes a scene for display.
type ModeConfig struct {
	Mode        Mode   `json:"mode"`
	Label       string `json:"label"`
	Icon        string `json:"icon"`
	Description string `json:"description"`
	Color       string `json:"color"`
}

// CapabilityConfig describes a capability and the actions it offers in the current mode.
type CapabilityConfig struct {
	Type        Capability     `json:"type"`
	Label       string         `json:"label"`
	Icon        string         `json:"icon"`
	Description string         `json:"description"`
	Actions     []ActionConfig `json:"actions"`
}

// ActionConfig is a static action descriptor. Handler names the API operation
// that implements the action.
type ActionConfig struct {
	Key         string `json:"key"`
	Label       string `json:"label"`
	Icon        string `json:"icon"`
	Description string `json:"description"`
	Handler     string `json:"handler"`
}

// Modes lists the valid scenes in display order.
func Modes() []Mode {
	return []Mode{ModeWork, ModeLife}
}

// Capabilities lists the valid capabilities in display order.
func Capabilities() []Capability {
	return []Capability{CapabilityMimic, CapabilityAnalyze}
}

// ParseMode validates user input at the CLI boundary.
func ParseMode(value string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(value))) {
	case ModeWork:
		return ModeWork, nil
	case ModeLife:
		return ModeLife, nil
	}
	return "", fmt.Errorf("unknown mode %q (want work or life)", value)
}

// ParseCapability validates user input at the CLI boundary.
func ParseCapability(value string) (Capability, error) {
	switch Capability(strings.ToLower(strings.TrimSpace(value))) {
	case CapabilityMimic:
		return CapabilityMimic, nil
	case CapabilityAnalyze:
		return CapabilityAnalyze, nil
	}
	return "", fmt.Errorf("unknown capability %q (want mimic or analyze)", value)
}
