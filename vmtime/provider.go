// Package vmtime provides an injectable clock so components can be driven
// by deterministic time in tests instead of the wall clock.
package vmtime

import "time"

// Provider is an interface for getting the current time and creating
// tickers/timers, so it can be swapped for a deterministic fake in tests.
type Provider interface {
	Now() time.Time
	NewTicker(d time.Duration) *time.Ticker
	NewTimer(d time.Duration) *time.Timer
}

// RealProvider implements Provider using the actual system clock.
type RealProvider struct{}

func (RealProvider) Now() time.Time                         { return time.Now() }
func (RealProvider) NewTicker(d time.Duration) *time.Ticker { return time.NewTicker(d) }
func (RealProvider) NewTimer(d time.Duration) *time.Timer   { return time.NewTimer(d) }

var defaultProvider Provider = RealProvider{}

// SetDefault sets the package-level default provider, primarily for tests.
func SetDefault(p Provider) {
	if p == nil {
		p = RealProvider{}
	}
	defaultProvider = p
}

// Get returns p if non-nil, otherwise the package-level default.
func Get(p Provider) Provider {
	if p != nil {
		return p
	}
	return defaultProvider
}
