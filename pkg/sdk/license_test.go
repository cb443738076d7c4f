package sdk

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCheckLicense(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name   string
		key    string
		status LicenseStatus
		level  LicenseLevel
	}{
		{"lite perpetual", "runtimelite,1000,rud1234567890,none,ABCDEF123456", LicenseStatusValid, LicenseLevelLite},
		{"standard case-insensitive product", "RuntimeStandard,1000,rud1,none,ABCDEFGH", LicenseStatusValid, LicenseLevelStandard},
		{"advanced future expiry", "runtimeadvanced,1000,rud1,20301231,ABCDEFGH", LicenseStatusValid, LicenseLevelAdvanced},
		{"expires today is still valid", "runtimelite,1000,rud1,20250601,ABCDEFGH", LicenseStatusValid, LicenseLevelLite},
		{"expired", "runtimelite,1000,rud1,31-dec-2024,ABCDEFGH", LicenseStatusExpired, LicenseLevelDeveloper},
		{"empty", "", LicenseStatusInvalid, LicenseLevelDeveloper},
		{"garbage", "not a license", LicenseStatusInvalid, LicenseLevelDeveloper},
		{"unknown product", "desktop,1000,rud1,none,ABCDEFGH", LicenseStatusInvalid, LicenseLevelDeveloper},
		{"non-numeric version", "runtimelite,v10,rud1,none,ABCDEFGH", LicenseStatusInvalid, LicenseLevelDeveloper},
		{"short code", "runtimelite,1000,rud1,none,ABC", LicenseStatusInvalid, LicenseLevelDeveloper},
		{"lowercase code", "runtimelite,1000,rud1,none,abcdefgh", LicenseStatusInvalid, LicenseLevelDeveloper},
		{"bad expiry", "runtimelite,1000,rud1,someday,ABCDEFGH", LicenseStatusInvalid, LicenseLevelDeveloper},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := CheckLicense(tt.key, now)
			assert.Equal(t, tt.status, res.Status)
			assert.Equal(t, tt.level, res.Level)
		})
	}
}

func TestLicenseStatusOrdinals(t *testing.T) {
	assert.Equal(t, 0, int(LicenseStatusInvalid))
	assert.Equal(t, 1, int(LicenseStatusExpired))
	assert.Equal(t, 2, int(LicenseStatusLoginRequired))
	assert.Equal(t, 3, int(LicenseStatusValid))
	assert.Equal(t, "valid", LicenseStatusValid.String())
	assert.Equal(t, "lite", LicenseLevelLite.String())
}
