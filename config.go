package hallpass

import (
	"errors"
	"math"
	"time"
)

// Config defines a public type used by hallpass APIs.
//
// Config instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Config struct {
	Credential CredentialConfig
	Session    SessionConfig
	Client     ClientConfig
	Cache      CacheConfig
	Routes     RoutesConfig
	Audit      AuditConfig
	Metrics    MetricsConfig
}

/*
====================================
CREDENTIAL CONFIG
====================================
*/

// CredentialConfig defines a public type used by hallpass APIs.
//
// CredentialConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type CredentialConfig struct {
	TTL        time.Duration
	Method     string // "ed25519" (default), "hs256" optional
	PrivateKey []byte
	PublicKey  []byte
	Issuer     string
	Audience   string
	Leeway     time.Duration
	KeyID      string
	VerifyKeys map[string][]byte
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig defines a public type used by hallpass APIs.
//
// SessionConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type SessionConfig struct {
	RedisPrefix             string
	SlidingExpiration       bool
	AbsoluteSessionLifetime time.Duration
	JitterEnabled           bool
	JitterRange             time.Duration
	RestoreFromCredential   bool
}

/*
====================================
CLIENT CONFIG
====================================
*/

// ClientConfig defines a public type used by hallpass APIs.
//
// ClientConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type ClientConfig struct {
	BaseURL         string
	Timeout         time.Duration
	UserAgent       string
	CurrentUserPath string
}

/*
====================================
CACHE CONFIG
====================================
*/

// CacheConfig defines a public type used by hallpass APIs.
//
// CacheConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type CacheConfig struct {
	MunicipalityTTL time.Duration
}

/*
====================================
ROUTES CONFIG
====================================
*/

// RoutesConfig defines a public type used by hallpass APIs.
//
// RoutesConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type RoutesConfig struct {
	Login     string
	Dashboard string
}

// AuditConfig defines a public type used by hallpass APIs.
//
// AuditConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig defines a public type used by hallpass APIs.
//
// MetricsConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns the configuration the engine starts from.
// Callers adjust the sections they need and pass the result to
// [Builder.WithConfig].
func DefaultConfig() Config {
	return cloneConfig(defaultConfig())
}

func defaultConfig() Config {
	return Config{
		Credential: CredentialConfig{
			TTL:    12 * time.Hour,
			Method: "ed25519",
			Leeway: 30 * time.Second,
		},
		Session: SessionConfig{
			RedisPrefix:             "hp",
			SlidingExpiration:       true,
			AbsoluteSessionLifetime: 12 * time.Hour,
			JitterEnabled:           true,
			JitterRange:             30 * time.Second,
			RestoreFromCredential:   true,
		},
		Client: ClientConfig{
			Timeout:         10 * time.Second,
			UserAgent:       "hallpass",
			CurrentUserPath: "/users/me",
		},
		Cache: CacheConfig{
			MunicipalityTTL: 30 * time.Second,
		},
		Routes: RoutesConfig{
			Login:     "login",
			Dashboard: "dashboard",
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.Credential.PrivateKey = cloneBytes(cfg.Credential.PrivateKey)
	out.Credential.PublicKey = cloneBytes(cfg.Credential.PublicKey)
	if len(cfg.Credential.VerifyKeys) > 0 {
		out.Credential.VerifyKeys = make(map[string][]byte, len(cfg.Credential.VerifyKeys))
		for kid, key := range cfg.Credential.VerifyKeys {
			out.Credential.VerifyKeys[kid] = cloneBytes(key)
		}
	}
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate describes the validate operation and its observable behavior.
//
// Validate may return an error when input validation, dependency calls, or security checks fail.
// Validate does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (c *Config) Validate() error {
	// Session
	if c.Session.AbsoluteSessionLifetime <= 0 {
		return errors.New("Session AbsoluteSessionLifetime must be > 0")
	}

	if c.Session.JitterRange < 0 {
		return errors.New("Session JitterRange must be >= 0")
	}
	if c.Session.JitterRange > time.Duration((math.MaxInt64-1)/2) {
		return errors.New("Session JitterRange is too large")
	}
	if c.Session.JitterEnabled && c.Session.JitterRange <= 0 {
		return errors.New("Session JitterRange must be > 0 when JitterEnabled is true")
	}

	// Credential checks only matter when sessions can be restored from one.
	if c.Session.RestoreFromCredential {
		if c.Credential.TTL <= 0 {
			return errors.New("Credential TTL must be > 0")
		}

		if c.Credential.Method != "ed25519" && c.Credential.Method != "hs256" {
			return errors.New("unsupported credential signing method")
		}

		if c.Credential.Method == "hs256" && len(c.Credential.PrivateKey) == 0 {
			return errors.New("hs256 requires PrivateKey")
		}
		if c.Credential.Method == "ed25519" && len(c.Credential.PublicKey) == 0 && len(c.Credential.VerifyKeys) == 0 {
			return errors.New("ed25519 requires PublicKey or VerifyKeys")
		}

		if c.Credential.Leeway < 0 {
			return errors.New("Credential Leeway must be >= 0")
		}
	}

	// Client
	if c.Client.Timeout < 0 {
		return errors.New("Client Timeout must be >= 0")
	}

	// Cache
	if c.Cache.MunicipalityTTL <= 0 {
		return errors.New("Cache MunicipalityTTL must be > 0")
	}

	// Routes
	if c.Routes.Login == "" {
		return errors.New("Routes Login must not be empty")
	}
	if c.Routes.Dashboard == "" {
		return errors.New("Routes Dashboard must not be empty")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when Enabled is true")
	}

	return nil
}
