// Package approval defines the record model, events and engine contract for
// gating actions behind role-based sign-off. The in-memory engine lives in
// the memory subpackage.
package approval
