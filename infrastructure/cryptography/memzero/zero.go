// Package memzero best-effort overwrites mutable key buffers with zeros. Go
// provides no explicit_bzero or RtlSecureZeroMemory equivalent, so the write
// loop pairs with runtime.KeepAlive to block the compiler from eliding it as
// a dead store.
package memzero

import "runtime"

// Wiper implements application.Wiper.
type Wiper struct{}

// New returns a Wiper. It holds no state.
func New() *Wiper { return &Wiper{} }

// Zero overwrites b in place with 0x00. It returns false without modifying
// anything when b has zero length, since there is nothing to wipe and
// callers must not treat that as a failure.
func (w *Wiper) Zero(b []byte) bool {
	if len(b) == 0 {
		return false
	}
	for i := range b {
		b[i] = 0
	}
	runtime.KeepAlive(b)
	return true
}
