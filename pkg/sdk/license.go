package sdk

import (
	"strings"
	"time"
)

// LicenseStatus is the outcome of a license check. The ordinal values are
// part of the wire contract.
type LicenseStatus int

const (
	LicenseStatusInvalid LicenseStatus = iota
	LicenseStatusExpired
	LicenseStatusLoginRequired
	LicenseStatusValid
)

func (s LicenseStatus) String() string {
	switch s {
	case LicenseStatusInvalid:
		return "invalid"
	case LicenseStatusExpired:
		return "expired"
	case LicenseStatusLoginRequired:
		return "loginRequired"
	case LicenseStatusValid:
		return "valid"
	default:
		return "unknown"
	}
}

// LicenseLevel is the functionality tier a license unlocks.
type LicenseLevel int

const (
	LicenseLevelDeveloper LicenseLevel = iota
	LicenseLevelLite
	LicenseLevelBasic
	LicenseLevelStandard
	LicenseLevelAdvanced
)

func (l LicenseLevel) String() string {
	switch l {
	case LicenseLevelLite:
		return "lite"
	case LicenseLevelBasic:
		return "basic"
	case LicenseLevelStandard:
		return "standard"
	case LicenseLevelAdvanced:
		return "advanced"
	default:
		return "developer"
	}
}

// LicenseResult describes the license in effect.
type LicenseResult struct {
	Status LicenseStatus
	Level  LicenseLevel
	// Expiry is zero for perpetual licenses.
	Expiry time.Time
}

var licenseLevels = map[string]LicenseLevel{
	"runtimelite":     LicenseLevelLite,
	"runtimebasic":    LicenseLevelBasic,
	"runtimestandard": LicenseLevelStandard,
	"runtimeadvanced": LicenseLevelAdvanced,
}

var expiryLayouts = []string{"20060102", "02-jan-2006", "2006-01-02"}

// CheckLicense validates a license key string of the form
//
//	<product>,<version>,<id>,<expiry|none>,<code>
//
// e.g. "runtimelite,1000,rud1234567890,none,ABCDEF123456".
func CheckLicense(key string, now time.Time) LicenseResult {
	invalid := LicenseResult{Status: LicenseStatusInvalid, Level: LicenseLevelDeveloper}

	parts := strings.Split(strings.TrimSpace(key), ",")
	if len(parts) != 5 {
		return invalid
	}
	level, ok := licenseLevels[strings.ToLower(parts[0])]
	if !ok {
		return invalid
	}
	if !isDigits(parts[1]) || parts[2] == "" || !isLicenseCode(parts[4]) {
		return invalid
	}

	result := LicenseResult{Status: LicenseStatusValid, Level: level}
	if expiry := strings.ToLower(parts[3]); expiry != "none" {
		t, ok := parseExpiry(expiry)
		if !ok {
			return invalid
		}
		result.Expiry = t
		if !now.Before(t.AddDate(0, 0, 1)) {
			result.Status = LicenseStatusExpired
			result.Level = LicenseLevelDeveloper
		}
	}
	return result
}

func parseExpiry(s string) (time.Time, bool) {
	for _, layout := range expiryLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func isLicenseCode(s string) bool {
	if len(s) < 8 {
		return false
	}
	for _, r := range s {
		if !(r >= 'A' && r <= 'Z') && !(r >= '0' && r <= '9') {
			return false
		}
	}
	return true
}
