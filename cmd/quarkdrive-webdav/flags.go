package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/qkdrive/quarkdrive-webdav/internal/config"
)

// Global flags (spec §6 configuration surface).
var (
	host         = flag.String("host", "", "Bind address (overrides config)")
	port         = flag.Int("port", 0, "Bind port (overrides config)")
	authUser     = flag.String("auth-user", "", "HTTP Basic auth username (overrides config)")
	authPassword = flag.String("auth-password", "", "HTTP Basic auth password (overrides config)")
	cookie       = flag.String("cookie", "", "Plaintext drive session cookie; encrypted at rest on save")
	apiBaseURL   = flag.String("api-base-url", "", "Remote drive API base URL (overrides config)")
	root         = flag.String("root", "", "Root path exposed over WebDAV (overrides config)")
	stripPrefix  = flag.String("strip-prefix", "", "URL prefix stripped before filesystem resolution")
	tlsCert      = flag.String("tls-cert", "", "TLS certificate file (enables HTTPS)")
	tlsKey       = flag.String("tls-key", "", "TLS private key file")
	cacheCap     = flag.Int("cache-capacity", 0, "Directory cache entry capacity (overrides config)")
	cacheTTL     = flag.Int("cache-ttl", 0, "Directory cache entry TTL in seconds (overrides config)")
	configPath   = flag.String("config", "", "Config file path")
	verbose      = flag.Bool("verbose", false, "Detailed logging output")
	showVersion  = flag.Bool("version", false, "Show version information")
	showHelp     = flag.Bool("help", false, "Show help information")
)

// ParseAndValidate handles command-line argument parsing and loads the
// effective configuration, flags taking precedence over the config
// file (spec §6).
func ParseAndValidate() (*config.Config, error) {
	flag.Parse()

	if *showVersion {
		fmt.Printf("quarkdrive-webdav %s\n", version)
		os.Exit(0)
	}
	if *showHelp {
		showUsage()
		os.Exit(0)
	}

	path := *configPath
	if path == "" {
		path = config.GetDefaultConfigPath()
	}
	if path == "" {
		return nil, fmt.Errorf("could not determine a config file path; pass -config explicitly")
	}

	cfg, err := config.LoadOrCreateConfig(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	applyFlagOverrides(cfg)

	if *cookie != "" {
		encrypted, err := config.EncryptCookie(*cookie)
		if err != nil {
			return nil, fmt.Errorf("failed to encrypt cookie: %w", err)
		}
		cfg.Drive.Cookie = encrypted
		if err := config.SaveConfig(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to persist cookie: %w", err)
		}
	}

	if err := config.ValidateConfig(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if err := config.ValidateStripPrefix(cfg.Server.StripPrefix); err != nil {
		return nil, fmt.Errorf("invalid strip_prefix: %w", err)
	}

	return cfg, nil
}

// applyFlagOverrides copies any explicitly-set flags onto cfg.
func applyFlagOverrides(cfg *config.Config) {
	if *host != "" {
		cfg.Server.Host = *host
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}
	if *authUser != "" {
		cfg.Server.AuthUser = *authUser
	}
	if *authPassword != "" {
		cfg.Server.AuthPassword = *authPassword
	}
	if *root != "" {
		cfg.Server.Root = *root
	}
	if *stripPrefix != "" {
		cfg.Server.StripPrefix = *stripPrefix
	}
	if *tlsCert != "" && *tlsKey != "" {
		cfg.Server.TLS = &config.TLSPair{CertFile: *tlsCert, KeyFile: *tlsKey}
	}
	if *apiBaseURL != "" {
		cfg.Drive.APIBaseURL = *apiBaseURL
	}
	if *cacheCap != 0 {
		cfg.Cache.Capacity = *cacheCap
	}
	if *cacheTTL != 0 {
		cfg.Cache.TTLSecs = *cacheTTL
	}
	if *verbose {
		cfg.Verbose = true
	}
}

// IsVerbose returns whether verbose logging is enabled.
func IsVerbose() bool {
	return *verbose
}

// showUsage displays help information.
func showUsage() {
	fmt.Printf("quarkdrive-webdav %s\n\n", version)
	fmt.Println("Usage:")
	fmt.Println("  quarkdrive-webdav [options]")
	fmt.Println()
	fmt.Println("Options:")
	flag.PrintDefaults()
	fmt.Println()
	fmt.Printf("Default config path: %s\n", filepath.Clean(config.GetDefaultConfigPath()))
}
