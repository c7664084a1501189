package tuning

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"gridpilot.ai/internal/sim/navigation"
)

type Tuning struct {
	ProtocolVersion string `yaml:"protocol_version"`

	Navigation Navigation `yaml:"navigation"`
	Session    Session    `yaml:"session"`
	Persist    Persist    `yaml:"persistence"`
}

type Navigation struct {
	// Path cells (origin included) walked before the route may cross another agent.
	AgentClearance int `yaml:"agent_clearance"`

	CongestionRadius int `yaml:"congestion_radius"`
	MaxExpanded      int `yaml:"max_expanded"`
}

type Session struct {
	HandshakeTimeoutMs int  `yaml:"handshake_timeout_ms"`
	ReadTimeoutMs      int  `yaml:"read_timeout_ms"`
	WriteTimeoutMs     int  `yaml:"write_timeout_ms"`
	ValidateSensor     bool `yaml:"validate_sensor"`
}

type Persist struct {
	DecisionLog bool `yaml:"decision_log"`
	Index       bool `yaml:"index"`
}

func Defaults() Tuning {
	return Tuning{
		ProtocolVersion: "1.0",
		Navigation: Navigation{
			AgentClearance:   navigation.DefaultAgentClearance,
			CongestionRadius: navigation.DefaultCongestionRadius,
			MaxExpanded:      navigation.DefaultMaxExpanded,
		},
		Session: Session{
			HandshakeTimeoutMs: 5000,
			ReadTimeoutMs:      60000,
			WriteTimeoutMs:     5000,
			ValidateSensor:     true,
		},
		Persist: Persist{
			DecisionLog: true,
			Index:       true,
		},
	}
}

// Load reads a tuning file. Keys missing from the file keep their defaults.
func Load(path string) (Tuning, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

// Validate rejects navigation values below 1: a zero would read as "unset"
// to navigation.Params and be replaced by the default.
func (t Tuning) Validate() error {
	if t.Navigation.AgentClearance < 1 {
		return fmt.Errorf("navigation.agent_clearance must be >= 1, got %d", t.Navigation.AgentClearance)
	}
	if t.Navigation.CongestionRadius < 1 {
		return fmt.Errorf("navigation.congestion_radius must be >= 1, got %d", t.Navigation.CongestionRadius)
	}
	if t.Navigation.MaxExpanded < 1 {
		return fmt.Errorf("navigation.max_expanded must be >= 1, got %d", t.Navigation.MaxExpanded)
	}
	if t.Session.ReadTimeoutMs < 0 || t.Session.WriteTimeoutMs < 0 || t.Session.HandshakeTimeoutMs < 0 {
		return fmt.Errorf("session timeouts must be >= 0")
	}
	return nil
}

func (t Tuning) NavigationParams() navigation.Params {
	return navigation.Params{
		AgentClearance:   t.Navigation.AgentClearance,
		CongestionRadius: t.Navigation.CongestionRadius,
		MaxExpanded:      t.Navigation.MaxExpanded,
	}
}
