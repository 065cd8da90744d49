package device

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/somalabs/darasa/core"
)

// Global device limit bounds. The live value is persisted and mutated only
// through Service.UpdateGlobalLimit.
const (
	MinLimit     = 1
	MaxLimit     = 10
	DefaultLimit = 2
)

// Device is one (account, fingerprint) registration. It moves
// unregistered -> active -> inactive; there is no automatic reactivation.
// Deactivated rows are kept for audit.
type Device struct {
	ID                 string     `json:"id"`
	AccountID          string     `json:"account_id"`
	Fingerprint        string     `json:"fingerprint"`
	Name               string     `json:"name"` // derived "<Browser> on <OS>"
	Platform           string     `json:"platform"`
	Browser            string     `json:"browser"`
	OS                 string     `json:"os"`
	ScreenResolution   string     `json:"screen_resolution"`
	Timezone           string     `json:"timezone"`
	UserAgent          string     `json:"user_agent"`
	IP                 string     `json:"ip,omitempty"`
	FirstSeen          time.Time  `json:"first_seen"`    // UTC
	LastActivity       time.Time  `json:"last_activity"` // UTC
	LoginCount         int        `json:"login_count"`
	IsActive           bool       `json:"is_active"`
	DeactivationReason string     `json:"deactivation_reason,omitempty"`
	DeactivatedAt      *time.Time `json:"deactivated_at,omitempty"`
}

// Registration is the device metadata a client submits when authenticating.
type Registration struct {
	Platform         string            `json:"platform" validate:"required"`
	ScreenResolution string            `json:"screen_resolution"`
	Timezone         string            `json:"timezone"`
	UserAgent        string            `json:"user_agent" validate:"required"`
	AdditionalInfo   map[string]string `json:"additional_info"`
	IP               string            `json:"-"` // set from the request, never trusted from the body
}

func (r *Registration) Validate(validate *validator.Validate) error {
	r.Platform = core.CleanString(r.Platform)
	r.UserAgent = core.CleanString(r.UserAgent)
	r.ScreenResolution = core.CleanString(r.ScreenResolution)
	r.Timezone = core.CleanString(r.Timezone)
	return validate.Struct(r)
}

// Fingerprint derives the stable device identity for an account from the
// submitted metadata. Same metadata, same fingerprint: re-registration is
// idempotent by construction.
func (r Registration) Fingerprint(accountID string) string {
	h := sha256.New()
	for _, part := range []string{accountID, r.Platform, r.ScreenResolution, r.Timezone, r.UserAgent} {
		h.Write([]byte(strings.ToLower(strings.TrimSpace(part))))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Browser and OS are classified from the user agent the client reported;
// this only normalizes client-supplied strings, it is not a full UA parser.
func (r Registration) BrowserOS() (browser, os string) {
	ua := strings.ToLower(r.UserAgent)
	switch {
	case strings.Contains(ua, "edg"):
		browser = "Edge"
	case strings.Contains(ua, "opr") || strings.Contains(ua, "opera"):
		browser = "Opera"
	case strings.Contains(ua, "chrome"):
		browser = "Chrome"
	case strings.Contains(ua, "safari"):
		browser = "Safari"
	case strings.Contains(ua, "firefox"):
		browser = "Firefox"
	default:
		browser = "Unknown"
	}
	switch {
	case strings.Contains(ua, "windows"):
		os = "Windows"
	case strings.Contains(ua, "android"):
		os = "Android"
	case strings.Contains(ua, "iphone") || strings.Contains(ua, "ipad") || strings.Contains(ua, "ios"):
		os = "iOS"
	case strings.Contains(ua, "mac os") || strings.Contains(ua, "macintosh"):
		os = "macOS"
	case strings.Contains(ua, "linux"):
		os = "Linux"
	default:
		os = core.CleanString(r.Platform)
		if os == "" {
			os = "Unknown"
		}
	}
	return browser, os
}

// DeviceName is the display name shown in the admin dashboard.
func (r Registration) DeviceName() string {
	browser, os := r.BrowserOS()
	return browser + " on " + os
}

// Admission is the outcome of an admission attempt, surfaced to the login
// flow so the client can branch on it.
type Admission struct {
	Authorized    bool    `json:"authorized"`
	Created       bool    `json:"created"` // a new registration was made
	LimitExceeded bool    `json:"limit_exceeded"`
	Degraded      bool    `json:"degraded"` // permissive mode let an unexpected failure through
	Device        *Device `json:"device,omitempty"`
}

// AccountSummary is the per-account device rollup for the admin listing.
type AccountSummary struct {
	AccountID    string     `json:"account_id"`
	Name         string     `json:"name"`
	Username     string     `json:"username"`
	Email        string     `json:"email"`
	TotalDevices int        `json:"total_devices"`
	ActiveCount  int        `json:"active_devices"`
	LastActivity *time.Time `json:"last_activity,omitempty"`
	Unlimited    bool       `json:"unlimited_devices"`
	OverLimit    bool       `json:"over_limit"`
}

// Device status filter values for the accounts listing.
const (
	FilterAll       = "all"
	FilterOverLimit = "over"
	FilterUnder     = "under"
)

type QueryFilter struct {
	Search       string `query:"search"`
	DeviceStatus string `query:"deviceStatus"` // all|over|under
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search, true /* lower */)
	qf.DeviceStatus = core.CleanString(qf.DeviceStatus, true /* lower */)
	if qf.DeviceStatus == "" {
		qf.DeviceStatus = FilterAll
	}
}

// Stats are the admin aggregate counters.
type Stats struct {
	TotalDevices      int            `json:"total_devices"`
	ActiveDevices     int            `json:"active_devices"`
	InactiveDevices   int            `json:"inactive_devices"`
	ByPlatform        map[string]int `json:"by_platform"`
	ByBrowser         map[string]int `json:"by_browser"`
	AccountsOverLimit int            `json:"accounts_over_limit"`
	CurrentLimit      int            `json:"current_limit"`
}

// LimitUpdate reports the impact of a global limit change.
type LimitUpdate struct {
	NewLimit        int `json:"new_limit"`
	ResetUsersCount int `json:"reset_users_count"`
}

// AccountAggregate is the raw per-account rollup a repository reports.
type AccountAggregate struct {
	AccountID    string
	Total        int
	Active       int
	LastActivity *time.Time
}
