package config

import "time"

// GreylistingWindowBegin/End bound the retry window internal/greylist's
// Probe classifies a reply's age against: a replay before WindowBegin is
// too_early, one after WindowEnd is too_late and starts over.
func GreylistingWindowBegin() time.Duration {
	return MustParseDuration("GREYLISTING_WINDOW_BEGIN", "5m")
}

func GreylistingWindowEnd() time.Duration {
	return MustParseDuration("GREYLISTING_WINDOW_END", "24h")
}

// GreylistingTTL is how long a greylisting key's RC counters live.
func GreylistingTTL() time.Duration {
	return MustParseDuration("GREYLISTING_TTL", "864h") // 36 days
}

// GreylistingProbeTimeout bounds one greylisting GET round trip.
func GreylistingProbeTimeout() time.Duration {
	return MustParseDuration("GREYLISTING_PROBE_TIMEOUT", "1s")
}

// UseGreylisting toggles the greylisting probe/mark stage
// ("use_greylisting").
func UseGreylisting() bool {
	return GetEnv("USE_GREYLISTING", "false") == "true"
}

// GreylistingConfigFile names the field-toggle config for
// internal/greylist's key hash ("greylisting_config_file"); loading it
// is out of this core's scope, see AliasesPath.
func GreylistingConfigFile() string {
	return GetEnv("GREYLISTING_CONFIG_FILE", "")
}

// EnableSOAfterGreylisting runs the spam scorer even on a message
// already marked "spam" by greylisting ("enable_so_after_greylisting").
func EnableSOAfterGreylisting() bool {
	return GetEnv("ENABLE_SO_AFTER_GREYLISTING", "false") == "true"
}

// AddXYGAfterGreylisting stamps an X-Yandex-Greylisting header when a
// message was greylisted ("add_xyg_after_greylisting").
func AddXYGAfterGreylisting() bool {
	return GetEnv("ADD_XYG_AFTER_GREYLISTING", "false") == "true"
}
