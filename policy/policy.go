package policy

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrUnknownActionType is returned when no policy exists for the requested
// action type. Callers detect it via errors.Is.
var ErrUnknownActionType = errors.New("policy: unknown action type")

// Policy maps an action type to the role that must sign it off, the time
// budget a request may stay pending, and whether an emergency override is
// permitted. Policies are immutable once loaded.
type Policy struct {
	ActionType             string        `json:"actionType" yaml:"actionType"`
	RequiredRole           string        `json:"requiredRole" yaml:"requiredRole"`
	SLA                    time.Duration `json:"sla" yaml:"sla"`
	AllowEmergencyOverride bool          `json:"allowEmergencyOverride" yaml:"allowEmergencyOverride"`
}

// UnmarshalYAML decodes a policy accepting the SLA either as a Go duration
// string ("5s", "2m") or as an integer number of milliseconds.
func (p *Policy) UnmarshalYAML(node *yaml.Node) error {
	type raw struct {
		ActionType             string    `yaml:"actionType"`
		RequiredRole           string    `yaml:"requiredRole"`
		SLA                    yaml.Node `yaml:"sla"`
		AllowEmergencyOverride bool      `yaml:"allowEmergencyOverride"`
	}
	var r raw
	if err := node.Decode(&r); err != nil {
		return err
	}
	p.ActionType = r.ActionType
	p.RequiredRole = r.RequiredRole
	p.AllowEmergencyOverride = r.AllowEmergencyOverride
	if r.SLA.IsZero() {
		return nil
	}
	var ms int64
	if err := r.SLA.Decode(&ms); err == nil {
		p.SLA = time.Duration(ms) * time.Millisecond
		return nil
	}
	var text string
	if err := r.SLA.Decode(&text); err != nil {
		return err
	}
	d, err := time.ParseDuration(text)
	if err != nil {
		return fmt.Errorf("policy %s: invalid sla %q: %w", p.ActionType, text, err)
	}
	p.SLA = d
	return nil
}

// Validate reports the first structural problem with the policy.
func (p *Policy) Validate() error {
	if p.ActionType == "" {
		return fmt.Errorf("policy: actionType is required")
	}
	if p.RequiredRole == "" {
		return fmt.Errorf("policy %s: requiredRole is required", p.ActionType)
	}
	if p.SLA <= 0 {
		return fmt.Errorf("policy %s: sla must be positive", p.ActionType)
	}
	return nil
}

// Store holds approval policies keyed by action type. It is read-only after
// construction and therefore safe for unsynchronised concurrent reads.
type Store struct {
	policies map[string]Policy
}

// NewStore builds a store from the supplied policies. Duplicate action types
// are rejected so that configuration mistakes surface at startup rather than
// at request time.
func NewStore(policies ...*Policy) (*Store, error) {
	ret := &Store{policies: make(map[string]Policy, len(policies))}
	for _, p := range policies {
		if p == nil {
			continue
		}
		if err := p.Validate(); err != nil {
			return nil, err
		}
		if _, ok := ret.policies[p.ActionType]; ok {
			return nil, fmt.Errorf("policy %s: duplicate action type", p.ActionType)
		}
		ret.policies[p.ActionType] = *p
	}
	return ret, nil
}

// Load decodes a YAML document holding a list of policies and builds a store.
func Load(data []byte) (*Store, error) {
	var policies []*Policy
	if err := yaml.Unmarshal(data, &policies); err != nil {
		return nil, fmt.Errorf("failed to decode policies: %w", err)
	}
	return NewStore(policies...)
}

// Lookup returns the policy for the given action type. The result is a copy;
// mutating it has no effect on the store.
func (s *Store) Lookup(actionType string) (*Policy, error) {
	p, ok := s.policies[actionType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownActionType, actionType)
	}
	ret := p
	return &ret, nil
}

// ActionTypes lists the governed action types in lexical order.
func (s *Store) ActionTypes() []string {
	ret := make([]string, 0, len(s.policies))
	for k := range s.policies {
		ret = append(ret, k)
	}
	sort.Strings(ret)
	return ret
}

// Len returns the number of policies held by the store.
func (s *Store) Len() int { return len(s.policies) }
