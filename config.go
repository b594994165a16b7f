package gatekeeper

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/corpcraft/gatekeeper/policy"
	"github.com/corpcraft/gatekeeper/service/messaging"
)

// Config is the serialisable configuration of the subsystem. It can be
// populated from YAML or JSON; the zero value inherits package defaults.
type Config struct {
	Queue    QueueConfig         `json:"queue" yaml:"queue"`
	Audit    AuditConfig         `json:"audit" yaml:"audit"`
	Policies []*policy.Policy    `json:"policies" yaml:"policies"`
	Roles    map[string][]string `json:"roles" yaml:"roles"`

	// EmergencyActors may bypass approval through the EMP handler.
	EmergencyActors []string `json:"emergencyActors" yaml:"emergencyActors"`

	Metrics MetricsConfig `json:"metrics" yaml:"metrics"`
}

// QueueConfig selects the event bus queue backend.
type QueueConfig struct {
	Vendor messaging.Vendor `json:"vendor" yaml:"vendor"`

	// BaseURL is the afs location for fs-backed queues.
	BaseURL string `json:"baseURL,omitempty" yaml:"baseURL,omitempty"`
}

// AuditConfig selects the audit log durability backend.
type AuditConfig struct {
	Backend string `json:"backend" yaml:"backend"` // memory | fs

	// BaseURL is the afs location for the fs backend.
	BaseURL string `json:"baseURL,omitempty" yaml:"baseURL,omitempty"`
}

// MetricsConfig toggles Prometheus instrumentation.
type MetricsConfig struct {
	Enabled bool `json:"enabled" yaml:"enabled"`
}

// DefaultConfig returns an all-in-memory configuration.
func DefaultConfig() *Config {
	return &Config{
		Queue: QueueConfig{Vendor: messaging.VendorMemory},
		Audit: AuditConfig{Backend: "memory"},
	}
}

// LoadConfig decodes a YAML configuration document.
func LoadConfig(data []byte) (*Config, error) {
	ret := DefaultConfig()
	if err := yaml.Unmarshal(data, ret); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return ret, nil
}

// Validate returns the first invalid setting or nil.
func (c *Config) Validate() error {
	if c == nil {
		return nil
	}
	switch c.Queue.Vendor {
	case messaging.VendorMemory:
	case messaging.VendorFS:
		if c.Queue.BaseURL == "" {
			return fmt.Errorf("queue.baseURL is required for the fs vendor")
		}
	default:
		return fmt.Errorf("unsupported queue vendor: %s", c.Queue.Vendor)
	}
	switch c.Audit.Backend {
	case "memory":
	case "fs":
		if c.Audit.BaseURL == "" {
			return fmt.Errorf("audit.baseURL is required for the fs backend")
		}
	default:
		return fmt.Errorf("unsupported audit backend: %s", c.Audit.Backend)
	}
	for _, p := range c.Policies {
		if err := p.Validate(); err != nil {
			return err
		}
	}
	return nil
}
