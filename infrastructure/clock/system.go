package clock

import "time"

// System is the production application.Clock, backed by time.Now.
type System struct{}

// New returns the system clock.
func New() System { return System{} }

func (System) Now() time.Time { return time.Now() }
