package config

import "time"

// RCCheckEnabled toggles the rate-control probe/mark ("rc_check").
func RCCheckEnabled() bool {
	return GetEnv("RC_CHECK", "false") == "true"
}

// RCHostList returns the configured rate-control daemon hosts
// ("rc_host_list"), comma separated; the first is primary, the second
// (if present) is secondary.
func RCHostList() []string {
	return splitCSV(GetEnv("RC_HOST_LIST", ""))
}

func RCPort() string { return GetEnv("RC_PORT", "5555") }

func RCTimeout() time.Duration { return MustParseDuration("RC_TIMEOUT", "1s") }

func RCVerbose() bool { return GetEnv("RC_VERBOSE", "false") == "true" }

// RCFallback/RCReturn bound internal/hostswitch's primary-down fallback
// window and retry-primary interval for the rate-control client.
func RCFallback() time.Duration { return MustParseDuration("RC_FALLBACK", "10s") }
func RCReturn() time.Duration   { return MustParseDuration("RC_RETURN", "60s") }
