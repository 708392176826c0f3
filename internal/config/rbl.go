package config

// RBLCheckEnabled toggles the reverse-DNS blocklist check ("rbl_check").
func RBLCheckEnabled() bool {
	return GetEnv("RBL_CHECK", "false") == "true"
}

// RBLHosts returns the configured blocklist zones ("rbl_hosts"), comma
// separated in the environment.
func RBLHosts() []string {
	return splitCSV(GetEnv("RBL_HOSTS", ""))
}
