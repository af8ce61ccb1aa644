// Command quarkdrive-webdav exposes a remote Quark Pan drive account as
// a WebDAV share (file content is read-only; directories can be created
// and entries removed or renamed), backed by a directory-listing cache
// that amortizes the remote API's pagination and rate limits.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/qkdrive/quarkdrive-webdav/internal/auth"
	"github.com/qkdrive/quarkdrive-webdav/internal/cache"
	"github.com/qkdrive/quarkdrive-webdav/internal/config"
	"github.com/qkdrive/quarkdrive-webdav/internal/drive"
	"github.com/qkdrive/quarkdrive-webdav/internal/metrics"
	"github.com/qkdrive/quarkdrive-webdav/internal/vfs"
	"github.com/qkdrive/quarkdrive-webdav/internal/webdavserver"
)

var version = "dev"

func main() {
	cfg, err := ParseAndValidate()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	log := newLogger(IsVerbose())

	if err := run(cfg, log); err != nil {
		log.WithError(err).Fatal("quarkdrive-webdav: exiting")
	}
}

func newLogger(verbose bool) *logrus.Logger {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if verbose {
		log.SetLevel(logrus.DebugLevel)
	} else {
		log.SetLevel(logrus.InfoLevel)
	}
	return log
}

func run(cfg *config.Config, log *logrus.Logger) error {
	cookiePlain, err := config.DecryptCookie(cfg.Drive.Cookie)
	if err != nil {
		return fmt.Errorf("failed to decrypt stored cookie (pass -cookie to set one): %w", err)
	}

	stats := metrics.New()

	driveClient := drive.New(cfg.Drive.APIBaseURL, cookiePlain, log).WithStats(stats)
	defer driveClient.Close()

	dirCache := cache.New(cfg.Cache.Capacity, time.Duration(cfg.Cache.TTLSecs)*time.Second, driveClient, log).WithStats(stats)

	fs := vfs.New(driveClient, dirCache, cfg.Server.Root, log)

	if used, total, err := driveClient.Quota(context.Background()); err != nil {
		log.WithError(err).Warn("quarkdrive-webdav: quota check failed")
	} else {
		log.WithFields(logrus.Fields{"used_bytes": used, "total_bytes": total}).Info("quarkdrive-webdav: account quota")
	}

	gate := auth.NewGate(cfg.Server.AuthUser, cfg.Server.AuthPassword)

	srv := webdavserver.New(fs, gate, dirCache, cfg.Server.Root, cfg.Server.StripPrefix, log)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	log.WithFields(logrus.Fields{
		"addr": addr,
		"root": cfg.Server.Root,
		"tls":  cfg.Server.TLS != nil,
	}).Info("quarkdrive-webdav: listening")

	if cfg.Server.TLS != nil {
		return http.ListenAndServeTLS(addr, cfg.Server.TLS.CertFile, cfg.Server.TLS.KeyFile, srv)
	}
	return http.ListenAndServe(addr, srv)
}
