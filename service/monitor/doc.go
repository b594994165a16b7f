// Package monitor expires approval records whose SLA deadline passed without
// a decision. The scheduling loop blocks on the earliest outstanding
// deadline, re-armed whenever a new minimum arrives, giving O(log n) insert
// and expire cost instead of scanning the pending set on a fixed tick.
package monitor
