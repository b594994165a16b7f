package gatekeeper

import (
	"github.com/corpcraft/gatekeeper/policy"
	"github.com/corpcraft/gatekeeper/service/approval"
	"github.com/corpcraft/gatekeeper/service/audit"
	"github.com/corpcraft/gatekeeper/service/emp"
	"github.com/corpcraft/gatekeeper/service/metrics"
)

// Option customises the Service.
type Option func(*Service)

// WithConfig replaces the default configuration.
func WithConfig(config *Config) Option {
	return func(s *Service) {
		if config != nil {
			s.config = config
		}
	}
}

// WithPolicyStore injects a pre-built policy store, bypassing Config.Policies.
func WithPolicyStore(store *policy.Store) Option {
	return func(s *Service) { s.policies = store }
}

// WithRoleResolver replaces the static role resolver built from Config.Roles.
func WithRoleResolver(roles approval.RoleResolver) Option {
	return func(s *Service) { s.roles = roles }
}

// WithAuthority replaces the static emergency authority built from
// Config.EmergencyActors.
func WithAuthority(authority emp.Authority) Option {
	return func(s *Service) { s.authority = authority }
}

// WithAuditStore injects a custom audit durability backend.
func WithAuditStore(store audit.Store) Option {
	return func(s *Service) { s.auditStore = store }
}

// WithMetrics injects a pre-built metrics instance, implying instrumentation
// regardless of Config.Metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}
