package anwdlclient

// Config holds the paths and flags an external loader (YAML, flags, env —
// out of scope for this module) populates before constructing a Client. No
// defaults are silently applied here; a zero Config is invalid for anything
// but inspection.
type Config struct {
	SessionCredentialsDBFilePath   string
	ContainerCredentialsDBFilePath string
	AccessTokenDBFilePath          string
	PublicRSAKeyFilePath           string
	PrivateRSAKeyFilePath          string
	EnableOnetimeRSAKeys           bool
}
