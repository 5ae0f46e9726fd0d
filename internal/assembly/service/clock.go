package service

import "time"

// Clock is the engine's time source. Production uses SystemClock; tests
// inject a fixed or stepping clock so time-window logic is deterministic.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

func SystemClock() Clock { return systemClock{} }
