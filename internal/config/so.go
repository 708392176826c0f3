package config

import "time"

// SOCheckEnabled toggles the spam scorer check ("so_check").
func SOCheckEnabled() bool {
	return GetEnv("SO_CHECK", "false") == "true"
}

func SOPrimary() string   { return GetEnv("SO_PRIMARY", "") }
func SOSecondary() string { return GetEnv("SO_SECONDARY", "") }

func SOConnectTimeout() time.Duration {
	return MustParseDuration("SO_CONNECT_TIMEOUT", "2s")
}

func SODataTimeout() time.Duration {
	return MustParseDuration("SO_DATA_TIMEOUT", "30s")
}

func SOTry() int { return parseIntEnv("SO_TRY", 2) }

func SOFallback() time.Duration { return MustParseDuration("SO_FALLBACK", "10s") }
func SOReturn() time.Duration   { return MustParseDuration("SO_RETURN", "60s") }

// SOTrustXYandexSpam mirrors "so_trust_xyandexspam": when true, an
// already-present X-Yandex-Spam header is trusted instead of re-scoring.
func SOTrustXYandexSpam() bool {
	return GetEnv("SO_TRUST_XYANDEXSPAM", "false") == "true"
}
