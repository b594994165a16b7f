// Package clock centralises time access so that deadline and latency logic
// can be made deterministic in tests.
package clock

import "time"

// NowFunc returns the current time. Tests override it to freeze or advance
// the clock; production code never touches it.
var NowFunc = time.Now

// Now reports the current time via NowFunc.
func Now() time.Time { return NowFunc() }
