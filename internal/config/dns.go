package config

import "time"

// DNSServerAddr is the resolver internal/dnsclient queries for RBL
// lookups ("host:port"); defaults to a public resolver since resolver
// discovery (e.g. reading /etc/resolv.conf) is out of this core's scope.
func DNSServerAddr() string {
	return GetEnv("DNS_SERVER_ADDR", "1.1.1.1:53")
}

// DNSAttemptTimeout bounds a single DNS send/receive attempt.
func DNSAttemptTimeout() time.Duration {
	return MustParseDuration("DNS_ATTEMPT_TIMEOUT", "2s")
}

// DNSRetries is the retry budget per outstanding query.
func DNSRetries() int {
	return parseIntEnv("DNS_RETRIES", 15)
}
