package config

// Config represents the full server configuration.
type Config struct {
	Version string       `json:"version"`
	Server  ServerConfig `json:"server"`
	Drive   DriveConfig  `json:"drive"`
	Cache   CacheConfig  `json:"cache"`
	Verbose bool         `json:"verbose,omitempty"`
}

// ServerConfig controls the HTTP(S) front-end (spec §4.D, §6).
type ServerConfig struct {
	Host         string   `json:"host"`
	Port         int      `json:"port"`
	AuthUser     string   `json:"auth_user,omitempty"`
	AuthPassword string   `json:"auth_password,omitempty"`
	Root         string   `json:"root"`
	StripPrefix  string   `json:"strip_prefix,omitempty"`
	TLS          *TLSPair `json:"tls,omitempty"`
}

// TLSPair is the optional cert+key pair for TLS termination.
type TLSPair struct {
	CertFile string `json:"cert_file"`
	KeyFile  string `json:"key_file"`
}

// DriveConfig holds everything the Drive Client needs to reach the
// remote API (spec §4.A, §6). Cookie is stored encrypted at rest.
type DriveConfig struct {
	APIBaseURL string        `json:"api_base_url"`
	Cookie     EncryptedData `json:"cookie"`
}

// EncryptedData mirrors the donor's at-rest secret envelope.
type EncryptedData struct {
	Encrypted string `json:"encrypted"`
	Salt      string `json:"salt"`
	Nonce     string `json:"nonce"`
	Algorithm string `json:"algorithm"`
}

// CacheConfig sizes the Directory Cache (spec §4.B, §6).
type CacheConfig struct {
	Capacity int `json:"capacity"`
	TTLSecs  int `json:"ttl_secs"`
}

// Constants for default configuration values.
const (
	DefaultVersion       = "1.0"
	DefaultHost          = "0.0.0.0"
	DefaultPort          = 8080
	DefaultRoot          = "/"
	DefaultAPIBaseURL    = "https://drive-pc.quark.cn"
	DefaultCacheCapacity = 4096
	DefaultCacheTTLSecs  = 300
	EncryptionAlgorithm  = "aes-256-gcm"
	PBKDF2Iterations     = 100000
	SaltSize             = 32
	NonceSize            = 12
)
