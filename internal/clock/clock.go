// Package clock abstracts wall-clock time and tickers so time-driven code
// (throttling, freezes, digest cadences) can be driven by a virtual clock in tests.
package clock

import "time"

// Clock supplies the current instant and tickers
type Clock interface {
	// Now returns the current instant in UTC
	Now() time.Time
	// NewTicker returns a ticker firing every d
	NewTicker(d time.Duration) Ticker
	// After fires once after d has elapsed
	After(d time.Duration) <-chan time.Time
}

// Ticker is the subset of time.Ticker the workers rely on
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// Real returns a Clock backed by the time package
func Real() Clock {
	return realClock{}
}

type realClock struct{}

func (realClock) Now() time.Time {
	return time.Now().UTC()
}

func (realClock) After(d time.Duration) <-chan time.Time {
	return time.After(d)
}

func (realClock) NewTicker(d time.Duration) Ticker {
	return &realTicker{t: time.NewTicker(d)}
}

type realTicker struct {
	t *time.Ticker
}

func (r *realTicker) C() <-chan time.Time {
	return r.t.C
}

func (r *realTicker) Stop() {
	r.t.Stop()
}

// UTCDate truncates t to midnight of its UTC calendar day
func UTCDate(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
