// Package verify provides out-of-band structural validation for heap
// regions.
//
// The engine's own debug checks panic on corruption; this package instead
// reports violations as errors, which makes it suitable for tests and for
// replay harnesses that want to keep going after a failure. AllInvariants
// runs every structural check in one call, and Ledger shadows the live set
// to catch double releases and payload clobbering that a structural scan
// cannot see.
package verify
