package config

import "time"

// CredentialTokenIssuer is the "iss" claim stamped on locally-issued
// SASL credential tokens (internal/authbackend's Ed25519/JWT tokens).
func CredentialTokenIssuer() string {
	return GetEnv("CREDENTIAL_TOKEN_ISSUER", "ingressd-auth")
}

// CredentialTokenExpiresIn bounds how long a credential token remains
// acceptable to AUTH PLAIN/LOGIN.
func CredentialTokenExpiresIn() time.Duration {
	return MustParseDuration("CREDENTIAL_TOKEN_EXPIRES_IN", "15m")
}
