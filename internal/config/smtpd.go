package config

import "time"

// SMTPDRecipientLimit caps recipients per message ("smtpd_recipient_limit").
func SMTPDRecipientLimit() int {
	return parseIntEnv("SMTPD_RECIPIENT_LIMIT", 100)
}

// SMTPDClientConnectionCountLimit caps concurrent connections from one
// client IP ("smtpd_client_connection_count_limit").
func SMTPDClientConnectionCountLimit() int {
	return parseIntEnv("SMTPD_CLIENT_CONNECTION_COUNT_LIMIT", 10)
}

// SMTPDConnectionCountLimit caps total concurrent connections
// ("smtpd_connection_count_limit").
func SMTPDConnectionCountLimit() int {
	return parseIntEnv("SMTPD_CONNECTION_COUNT_LIMIT", 1000)
}

// SMTPDHardErrorLimit is the per-session protocol-error budget
// ("smtpd_hard_error_limit") before the session is dropped with 421.
func SMTPDHardErrorLimit() int {
	return parseIntEnv("SMTPD_HARD_ERROR_LIMIT", 20)
}

// SMTPDCommandTimeout bounds waiting for the next command line.
func SMTPDCommandTimeout() time.Duration {
	return MustParseDuration("SMTPD_COMMAND_TIMEOUT", "30s")
}

// SMTPDDataTimeout bounds the whole DATA phase.
func SMTPDDataTimeout() time.Duration {
	return MustParseDuration("SMTPD_DATA_TIMEOUT", "5m")
}

// MaxRcptCount is the hard per-message recipient cap enforced by RCPT
// TO handling ("max_rcpt_count").
func MaxRcptCount() int {
	return parseIntEnv("MAX_RCPT_COUNT", 100)
}

// AllowPercentHack enables the "user%domain@host" -> "user@domain"
// rewrite during RCPT validation.
func AllowPercentHack() bool {
	return GetEnv("ALLOW_PERCENT_HACK", "false") == "true"
}

// MessageSizeLimit caps the declared/observed message size in bytes.
func MessageSizeLimit() int64 {
	n, err := parseBytes(GetEnv("MESSAGE_SIZE_LIMIT", "0"))
	if err != nil || n <= 0 {
		return 0 // 0 means "no limit"
	}
	return n
}

// RemoveHeaders toggles stripping a configured header list on ingestion.
func RemoveHeaders() bool {
	return GetEnv("REMOVE_HEADERS", "false") == "true"
}

// RemoveHeadersList is the comma-separated header-name list to strip
// when RemoveHeaders is enabled.
func RemoveHeadersList() []string {
	raw := GetEnv("REMOVE_HEADERS_LIST", "")
	if raw == "" {
		return nil
	}
	return splitCSV(raw)
}

// RemoveExtraCR toggles the CRLF-collapse normalisation pass.
func RemoveExtraCR() bool {
	return GetEnv("REMOVE_EXTRA_CR", "true") == "true"
}
