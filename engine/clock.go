package engine

import "time"

// Clock abstracts time so the trigger throttle is testable.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now().UTC() }

// NowUTC is the default wall clock.
var NowUTC Clock = realClock{}
