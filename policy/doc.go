// Package policy holds the static approval rules of the subsystem: which
// action types require sign-off, by whom, within what time budget, and
// whether an emergency bypass is allowed. The store is pure lookup – it is
// populated once at construction and never mutated afterwards.
package policy
