package config

// Sanitize returns a copy of cfg that is safe to log. The archive access
// key keeps its last four characters so operators can tell keys apart;
// the secret key is replaced outright.
func Sanitize(cfg *ServerConfig) *ServerConfig {
	c := *cfg
	c.Archive.AccessKey = maskSecret(c.Archive.AccessKey, 4)
	c.Archive.SecretKey = maskSecret(c.Archive.SecretKey, 0)
	return &c
}

const mask = "********"

// maskSecret hides s except for its last keep characters. Short values
// are hidden completely, and the mask length never reveals len(s).
func maskSecret(s string, keep int) string {
	if s == "" {
		return ""
	}
	if keep <= 0 || len(s) < 2*keep {
		return mask
	}
	return mask + s[len(s)-keep:]
}
