package server

import (
	"errors"
	"log/slog"
	"time"

	"github.com/vestlabs/vest/vestd/pkg/vesting"
)

// VersionInfo contains build-time version information.
type VersionInfo struct {
	Version string `json:"version"`
	Commit  string `json:"commit"`
	Date    string `json:"date"`
}

type Config struct {
	Logger  *slog.Logger
	Service *vesting.Service

	ListenAddr        string
	ReadHeaderTimeout time.Duration
	ShutdownTimeout   time.Duration
	VersionInfo       VersionInfo

	// AdminToken gates schedule creation, recovery and configuration
	// changes. Presented as a bearer token and compared in constant time.
	AdminToken string

	// AllowedOrigins for CORS. Empty means same-origin only.
	AllowedOrigins []string

	// ClaimRatePerMinute and ClaimBurst bound per-IP claim attempts.
	// Zero values fall back to the defaults.
	ClaimRatePerMinute int
	ClaimBurst         int
}

func (cfg *Config) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Service == nil {
		return errors.New("vesting service is required")
	}
	if cfg.ListenAddr == "" {
		return errors.New("listen addr is required")
	}
	if cfg.AdminToken == "" {
		return errors.New("admin token is required")
	}
	if cfg.ReadHeaderTimeout == 0 {
		cfg.ReadHeaderTimeout = 10 * time.Second
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
	if cfg.ClaimRatePerMinute <= 0 {
		cfg.ClaimRatePerMinute = 30
	}
	if cfg.ClaimBurst <= 0 {
		cfg.ClaimBurst = 5
	}
	return nil
}
