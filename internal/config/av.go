package config

import "time"

// AVCheckEnabled toggles the anti-virus check ("av_check").
func AVCheckEnabled() bool {
	return GetEnv("AV_CHECK", "false") == "true"
}

func AVPrimary() string   { return GetEnv("AV_PRIMARY", "") }
func AVSecondary() string { return GetEnv("AV_SECONDARY", "") }

func AVConnectTimeout() time.Duration {
	return MustParseDuration("AV_CONNECT_TIMEOUT", "2s")
}

func AVDataTimeout() time.Duration {
	return MustParseDuration("AV_DATA_TIMEOUT", "30s")
}

func AVTry() int { return parseIntEnv("AV_TRY", 2) }

func AVFallback() time.Duration { return MustParseDuration("AV_FALLBACK", "10s") }
func AVReturn() time.Duration   { return MustParseDuration("AV_RETURN", "60s") }

// ActionVirus is "reject" or "discard": what an infected/suspicious
// verdict does to the message ("action_virus").
func ActionVirus() string {
	return GetEnv("ACTION_VIRUS", "reject")
}
