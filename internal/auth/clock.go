package auth

import "time"

// Clock abstracts the wall clock so expiry logic can be tested.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time {
	return f()
}

// SystemClock reads time.Now.
var SystemClock Clock = ClockFunc(time.Now)
