package application

import "time"

// Clock abstracts wall-clock time so rotation, replay, and freshness logic
// can be driven by a controllable clock in tests.
type Clock interface {
	Now() time.Time
}
