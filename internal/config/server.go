package config

import (
	"os"
	"strconv"
	"strings"
)

// MaxRequestBodyBytes bounds a single AUTH-backend HTTP field-map
// response body (internal/authbackend.RemoteBackend).
// Supports raw integers (bytes) or human-friendly values like "2MB", "512KB".
func MaxRequestBodyBytes() int64 {
	val := GetEnv("MAX_REQUEST_BODY_BYTES", "1MB")
	n, err := parseBytes(val)
	if err != nil || n <= 0 {
		return 1 << 20 // 1MB default
	}
	return n
}

// DNSWorkerCount controls the size of internal/manager's pool for
// DNS-backed checks ("workers", split per concern).
func DNSWorkerCount() int {
	return parseIntEnv("DNS_WORKER_COUNT", 8)
}

// ChecksWorkerCount controls the size of internal/manager's pool for
// greylisting/SO/AV round trips, shared by every session.
func ChecksWorkerCount() int {
	return parseIntEnv("CHECKS_WORKER_COUNT", 8)
}

// RelayWorkerCount controls the downstream-delivery pool.
func RelayWorkerCount() int {
	return parseIntEnv("RELAY_WORKER_COUNT", 4)
}

// WorkerQueueSize controls the queue size for each worker pool.
func WorkerQueueSize() int {
	return parseIntEnv("WORKER_QUEUE_SIZE", 1024)
}

// LogFilePath is where internal/logging.InitLogger writes its JSON sink.
func LogFilePath() string {
	return GetEnv("LOG_FILE", "ingressd.log")
}

// RecipientsDBPath is the SQLite file internal/recipientbackend.SQLiteBackend
// opens; cmd/ingressd opens it at startup whatever else is configured.
func RecipientsDBPath() string {
	return GetEnv("RECIPIENTS_DB_PATH", "ingressd_recipients.db")
}

func parseIntEnv(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil || i <= 0 {
		return def
	}
	return i
}

func parseBytes(s string) (int64, error) {
	s = strings.TrimSpace(strings.ToUpper(s))
	// If plain number, treat as bytes
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n, nil
	}
	mult := int64(1)
	switch {
	case strings.HasSuffix(s, "KB"):
		mult = 1 << 10
		s = strings.TrimSuffix(s, "KB")
	case strings.HasSuffix(s, "MB"):
		mult = 1 << 20
		s = strings.TrimSuffix(s, "MB")
	case strings.HasSuffix(s, "GB"):
		mult = 1 << 30
		s = strings.TrimSuffix(s, "GB")
	default:
		// bytes by default
		mult = 1
	}
	base := strings.TrimSpace(s)
	n, err := strconv.ParseFloat(base, 64)
	if err != nil {
		return 0, err
	}
	return int64(n * float64(mult)), nil
}
