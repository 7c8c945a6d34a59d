package tests

import "time"

const (
	NonExistingIntegerID = 9999
	ShortTimeout         = 100 * time.Millisecond
	DefaultTestTimeout   = time.Second
	// PollInterval is the tick of assertions waiting for an asynchronous condition.
	PollInterval = 10 * time.Millisecond
)
