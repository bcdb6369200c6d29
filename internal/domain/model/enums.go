package model

import "time"

// Platform identifies one of the integrated external platforms.
type Platform string

const (
	PlatformBilibili  Platform = "bilibili"
	PlatformDouban    Platform = "douban"
	PlatformGitHub    Platform = "github"
	PlatformHoYoverse Platform = "hoyoverse"
	PlatformJellyfin  Platform = "jellyfin"
	PlatformSteam     Platform = "steam"
)

// AllPlatforms lists every supported platform in stable sort order.
// Status aggregation iterates this slice so its output ordering is fixed.
var AllPlatforms = []Platform{
	PlatformBilibili,
	PlatformDouban,
	PlatformGitHub,
	PlatformHoYoverse,
	PlatformJellyfin,
	PlatformSteam,
}

// Valid reports whether p is a known platform.
func (p Platform) Valid() bool {
	switch p {
	case PlatformBilibili, PlatformDouban, PlatformGitHub,
		PlatformHoYoverse, PlatformJellyfin, PlatformSteam:
		return true
	}
	return false
}

// CredentialType distinguishes how a stored secret authenticates.
type CredentialType string

const (
	CredentialTypeAPIKey              CredentialType = "api_key"
	CredentialTypeCookie              CredentialType = "cookie"
	CredentialTypePersonalAccessToken CredentialType = "personal_access_token"
)

// Valid reports whether t is a known credential type.
func (t CredentialType) Valid() bool {
	switch t {
	case CredentialTypeAPIKey, CredentialTypeCookie, CredentialTypePersonalAccessToken:
		return true
	}
	return false
}

// SyncFrequency controls how often auto-sync fires for a credential.
type SyncFrequency string

const (
	FrequencyDaily          SyncFrequency = "daily"
	FrequencyTwiceDaily     SyncFrequency = "twice_daily"
	FrequencyFourTimesDaily SyncFrequency = "four_times_daily"
	FrequencySixTimesDaily  SyncFrequency = "six_times_daily"
)

// Interval returns the minimum spacing between auto-sync runs for the
// frequency. Unknown values fall back to daily.
func (f SyncFrequency) Interval() time.Duration {
	switch f {
	case FrequencyTwiceDaily:
		return 12 * time.Hour
	case FrequencyFourTimesDaily:
		return 6 * time.Hour
	case FrequencySixTimesDaily:
		return 4 * time.Hour
	default:
		return 24 * time.Hour
	}
}

// Valid reports whether f is a known sync frequency.
func (f SyncFrequency) Valid() bool {
	switch f {
	case FrequencyDaily, FrequencyTwiceDaily, FrequencyFourTimesDaily, FrequencySixTimesDaily:
		return true
	}
	return false
}

// JobStatus is the lifecycle state of a sync job.
// Transitions: pending -> running -> {success, failed, partial}.
type JobStatus string

const (
	JobStatusPending JobStatus = "pending"
	JobStatusRunning JobStatus = "running"
	JobStatusSuccess JobStatus = "success"
	JobStatusFailed  JobStatus = "failed"
	JobStatusPartial JobStatus = "partial"
)

// Terminal reports whether the status is a final state.
func (s JobStatus) Terminal() bool {
	return s == JobStatusSuccess || s == JobStatusFailed || s == JobStatusPartial
}

// TriggeredBy records what initiated a sync job.
type TriggeredBy string

const (
	TriggerManual TriggeredBy = "manual"
	TriggerAuto   TriggeredBy = "auto"
)
