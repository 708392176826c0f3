package config

import "time"

func RelayConnectTimeout() time.Duration {
	return MustParseDuration("RELAY_CONNECT_TIMEOUT", "30s")
}

func RelayCmdTimeout() time.Duration {
	return MustParseDuration("RELAY_CMD_TIMEOUT", "1m")
}

func RelayDataTimeout() time.Duration {
	return MustParseDuration("RELAY_DATA_TIMEOUT", "5m")
}

// RelayFallback/RelayReturn bound internal/hostswitch's primary-down
// fallback window and retry-primary interval for the relay clients.
func RelayFallback() time.Duration { return MustParseDuration("RELAY_FALLBACK", "10s") }
func RelayReturn() time.Duration   { return MustParseDuration("RELAY_RETURN", "60s") }

// FallbackRelayHost is the fallback SMTP relay endpoint
// ("fallback_relay_host").
func FallbackRelayHost() string {
	return GetEnv("FALLBACK_RELAY_HOST", "")
}

// LocalRelayHost is the local LMTP delivery endpoint ("local_relay_host").
func LocalRelayHost() string {
	return GetEnv("LOCAL_RELAY_HOST", "")
}

// UseLocalRelay toggles attempting local LMTP delivery before the
// fallback relay ("use_local_relay").
func UseLocalRelay() bool {
	return GetEnv("USE_LOCAL_RELAY", "false") == "true"
}
