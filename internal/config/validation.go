package config

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// ValidateConfig validates the entire configuration structure
func ValidateConfig(config *Config) error {
	if config == nil {
		return fmt.Errorf("config cannot be nil")
	}

	if err := ValidateVersion(config.Version); err != nil {
		return fmt.Errorf("invalid version: %w", err)
	}

	if err := ValidateServerConfig(config.Server); err != nil {
		return fmt.Errorf("invalid server config: %w", err)
	}

	if err := ValidateDriveConfig(config.Drive); err != nil {
		return fmt.Errorf("invalid drive config: %w", err)
	}

	if err := ValidateCacheConfig(config.Cache); err != nil {
		return fmt.Errorf("invalid cache config: %w", err)
	}

	return nil
}

// ValidateVersion validates the configuration version
func ValidateVersion(version string) error {
	if version == "" {
		return fmt.Errorf("version cannot be empty")
	}

	versionPattern := `^(\d+)(?:\.(\d+))?(?:\.(\d+))?$`
	matched, err := regexp.MatchString(versionPattern, version)
	if err != nil {
		return fmt.Errorf("failed to validate version format: %w", err)
	}

	if !matched {
		return fmt.Errorf("version must be in version format (x.y.z or x.y)")
	}

	return nil
}

// ValidateServerConfig validates the HTTP front-end configuration
func ValidateServerConfig(server ServerConfig) error {
	if server.Host == "" {
		return fmt.Errorf("host cannot be empty")
	}

	if server.Port < 1 || server.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535")
	}

	if server.Root == "" {
		return fmt.Errorf("root cannot be empty")
	}
	if !strings.HasPrefix(server.Root, "/") {
		return fmt.Errorf("root must be an absolute path")
	}

	if (server.AuthUser == "") != (server.AuthPassword == "") {
		return fmt.Errorf("auth_user and auth_password must be set together")
	}

	if server.TLS != nil {
		if server.TLS.CertFile == "" || server.TLS.KeyFile == "" {
			return fmt.Errorf("tls requires both cert_file and key_file")
		}
	}

	return nil
}

// ValidateDriveConfig validates the Drive Client configuration
func ValidateDriveConfig(drive DriveConfig) error {
	if err := ValidateAPIBaseURL(drive.APIBaseURL); err != nil {
		return fmt.Errorf("invalid api_base_url: %w", err)
	}

	if err := ValidateEncryptedData(drive.Cookie); err != nil {
		return fmt.Errorf("invalid cookie: %w", err)
	}

	return nil
}

// ValidateAPIBaseURL validates the remote drive API base URL
func ValidateAPIBaseURL(apiBaseURL string) error {
	if apiBaseURL == "" {
		return fmt.Errorf("api_base_url cannot be empty")
	}

	parsedURL, err := url.Parse(apiBaseURL)
	if err != nil {
		return fmt.Errorf("failed to parse URL: %w", err)
	}

	if parsedURL.Scheme != "https" {
		return fmt.Errorf("api_base_url must use HTTPS")
	}

	if parsedURL.Host == "" {
		return fmt.Errorf("api_base_url must have a valid host")
	}

	return nil
}

// ValidateEncryptedData validates the encrypted cookie structure
func ValidateEncryptedData(data EncryptedData) error {
	if data.Encrypted == "" {
		return fmt.Errorf("encrypted data cannot be empty")
	}

	if data.Salt == "" {
		return fmt.Errorf("salt cannot be empty")
	}

	if data.Nonce == "" {
		return fmt.Errorf("nonce cannot be empty")
	}

	if data.Algorithm != EncryptionAlgorithm {
		return fmt.Errorf("unsupported encryption algorithm: %s", data.Algorithm)
	}

	return nil
}

// ValidateCacheConfig validates the Directory Cache sizing options
func ValidateCacheConfig(cache CacheConfig) error {
	if cache.Capacity < 0 {
		return fmt.Errorf("capacity cannot be negative")
	}

	if cache.TTLSecs < 0 {
		return fmt.Errorf("ttl_secs cannot be negative")
	}

	return nil
}

// ValidateStripPrefix validates the URL prefix stripped before filesystem resolution
func ValidateStripPrefix(prefix string) error {
	if prefix == "" {
		return nil
	}

	if !strings.HasPrefix(prefix, "/") {
		return fmt.Errorf("strip_prefix must start with '/'")
	}

	if strings.Contains(prefix, "..") {
		return fmt.Errorf("strip_prefix must not contain '..'")
	}

	return nil
}
