// Package sdk holds the native SDK surface the bridge wraps: the
// process-wide runtime environment (API key, license, version), geometry
// and coordinate helpers, a REST feature service client and a credential
// cache.
package sdk

import (
	"sync"
	"time"
)

// APIVersion is the SDK version reported to the host.
const APIVersion = "100.15.0"

// Environment is the process-wide SDK state. It is created once and never
// torn down; every accessor is safe for concurrent use, and concurrent
// writers resolve last-writer-wins.
type Environment struct {
	mu      sync.RWMutex
	apiKey  string
	license LicenseResult
	now     func() time.Time
}

// NewEnvironment returns an environment with no API key and a developer
// license.
func NewEnvironment() *Environment {
	return &Environment{
		license: LicenseResult{Status: LicenseStatusValid, Level: LicenseLevelDeveloper},
		now:     time.Now,
	}
}

// SetClock overrides the clock used for license expiry checks.
func (e *Environment) SetClock(now func() time.Time) {
	e.mu.Lock()
	e.now = now
	e.mu.Unlock()
}

// SetAPIKey replaces the API key.
func (e *Environment) SetAPIKey(key string) {
	e.mu.Lock()
	e.apiKey = key
	e.mu.Unlock()
}

// APIKey returns the current API key, possibly empty.
func (e *Environment) APIKey() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.apiKey
}

// SetLicense validates key and records the outcome. An invalid key is a
// result, not an error.
func (e *Environment) SetLicense(key string) LicenseResult {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.license = CheckLicense(key, e.now())
	return e.license
}

// License returns the result of the last SetLicense call.
func (e *Environment) License() LicenseResult {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.license
}

// APIVersion returns the SDK version string.
func (e *Environment) APIVersion() string {
	return APIVersion
}
