package config

import "time"

// SPFTimeout bounds one envelope-SPF evaluation ("spf_timeout").
func SPFTimeout() time.Duration {
	return MustParseDuration("SPF_TIMEOUT", "15s")
}

// DKIMTimeout bounds one DKIM verification pass ("dkim_timeout").
func DKIMTimeout() time.Duration {
	return MustParseDuration("DKIM_TIMEOUT", "15s")
}

// AliasesPath is the path to the alias->destinations mapping file
// ("aliases"). Loading it is out of this core's scope; this core only
// consumes the resulting lookup via internal/aliases.Source.
func AliasesPath() string {
	return GetEnv("ALIASES_PATH", "")
}

// IPConfigFile is the per-IP recipient-limit override file
// ("ip_config_file"); loading it is out of scope, see AliasesPath.
func IPConfigFile() string {
	return GetEnv("IP_CONFIG_FILE", "")
}
