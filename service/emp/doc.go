// Package emp implements the emergency mandate handler: an out-of-band
// bypass of normal approval, limited to policies that allow it and to actors
// holding emergency authority, always flagged for post-hoc review.
package emp
