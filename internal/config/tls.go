package config

// UseTLS toggles STARTTLS/implicit-TLS support ("use_tls").
func UseTLS() bool { return GetEnv("USE_TLS", "false") == "true" }

func TLSKeyFile() string  { return GetEnv("TLS_KEY_FILE", "") }
func TLSCertFile() string { return GetEnv("TLS_CERT_FILE", "") }
func TLSCAFile() string   { return GetEnv("TLS_CA_FILE", "") }

// UseAuth toggles SASL AUTH support ("use_auth").
func UseAuth() bool { return GetEnv("USE_AUTH", "false") == "true" }

// UseAuthAfterTLS requires STARTTLS before AUTH is offered
// ("use_auth_after_tls").
func UseAuthAfterTLS() bool {
	return GetEnv("USE_AUTH_AFTER_TLS", "false") == "true"
}
