// Package idgen wraps the UUID generator behind a stubbable function. It
// lives under internal because callers must treat identifiers as opaque
// strings and never depend on their format.
package idgen
