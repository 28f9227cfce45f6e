// Package browser drives a headless Chrome through the login, inbox and
// thread pages of the classifieds site.
//
// A Session owns exactly one Page for its lifetime and moves through
// Uninitialized, Initialized, Authenticated and finally Closed (or Failed
// after an unsuccessful login). Every wait is bounded by Config.
package browser

import "time"

// Config holds browser and timing settings.
type Config struct {
	UserAgent      string
	ChromePath     string // optional explicit Chrome binary
	Headless       bool
	BlockResources bool // fail image, stylesheet, font and media requests
	Screenshots    bool // save a screenshot to the temp dir on login failure

	NavigationTimeout time.Duration
	ElementTimeout    time.Duration
	LoginProbe        time.Duration
	SendSettle        time.Duration
	PollInterval      time.Duration
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		UserAgent:         defaultUserAgent,
		Headless:          true,
		BlockResources:    true,
		NavigationTimeout: 30 * time.Second,
		ElementTimeout:    10 * time.Second,
		LoginProbe:        10 * time.Second,
		SendSettle:        2 * time.Second,
		PollInterval:      100 * time.Millisecond,
	}
}

// withDefaults fills zero durations and an empty user agent.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.UserAgent == "" {
		c.UserAgent = d.UserAgent
	}
	if c.NavigationTimeout <= 0 {
		c.NavigationTimeout = d.NavigationTimeout
	}
	if c.ElementTimeout <= 0 {
		c.ElementTimeout = d.ElementTimeout
	}
	if c.LoginProbe <= 0 {
		c.LoginProbe = d.LoginProbe
	}
	if c.SendSettle < 0 {
		c.SendSettle = 0
	}
	if c.PollInterval <= 0 {
		c.PollInterval = d.PollInterval
	}
	return c
}

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"
