package hallpass

import (
	"errors"

	"github.com/redis/go-redis/v9"

	"github.com/munihall/hallpass/client"
	"github.com/munihall/hallpass/credential"
	"github.com/munihall/hallpass/identity"
	internalaudit "github.com/munihall/hallpass/internal/audit"
	"github.com/munihall/hallpass/internal/flows"
	"github.com/munihall/hallpass/municipality"
	"github.com/munihall/hallpass/route"
	"github.com/munihall/hallpass/session"
)

// Builder defines a public type used by hallpass APIs.
//
// Builder instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	routes *route.Registry

	sessions  SessionStore
	users     UserProvider
	modules   ModuleRegistry
	api       APIClient
	router    Router
	auditSink AuditSink

	built bool
}

// New describes the new operation and its observable behavior.
//
// New may return an error when input validation, dependency calls, or security checks fail.
// New does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig describes the withconfig operation and its observable behavior.
//
// WithConfig may return an error when input validation, dependency calls, or security checks fail.
// WithConfig does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRoutes describes the withroutes operation and its observable behavior.
//
// WithRoutes may return an error when input validation, dependency calls, or security checks fail.
// WithRoutes does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithRoutes(r *route.Registry) *Builder {
	b.routes = r
	return b
}

// WithRedis describes the withredis operation and its observable behavior.
//
// WithRedis may return an error when input validation, dependency calls, or security checks fail.
// WithRedis does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithSessionStore describes the withsessionstore operation and its observable behavior.
//
// WithSessionStore may return an error when input validation, dependency calls, or security checks fail.
// WithSessionStore does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithSessionStore(s SessionStore) *Builder {
	b.sessions = s
	return b
}

// WithUserProvider describes the withuserprovider operation and its observable behavior.
//
// WithUserProvider may return an error when input validation, dependency calls, or security checks fail.
// WithUserProvider does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithUserProvider(up UserProvider) *Builder {
	b.users = up
	return b
}

// WithModuleRegistry describes the withmoduleregistry operation and its observable behavior.
//
// WithModuleRegistry may return an error when input validation, dependency calls, or security checks fail.
// WithModuleRegistry does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithModuleRegistry(m ModuleRegistry) *Builder {
	b.modules = m
	return b
}

// WithAPIClient describes the withapiclient operation and its observable behavior.
//
// WithAPIClient may return an error when input validation, dependency calls, or security checks fail.
// WithAPIClient does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithAPIClient(c APIClient) *Builder {
	b.api = c
	return b
}

// WithRouter describes the withrouter operation and its observable behavior.
//
// WithRouter may return an error when input validation, dependency calls, or security checks fail.
// WithRouter does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithRouter(r Router) *Builder {
	b.router = r
	return b
}

// WithAuditSink describes the withauditsink operation and its observable behavior.
//
// WithAuditSink may return an error when input validation, dependency calls, or security checks fail.
// WithAuditSink does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithMetricsEnabled describes the withmetricsenabled operation and its observable behavior.
//
// WithMetricsEnabled may return an error when input validation, dependency calls, or security checks fail.
// WithMetricsEnabled does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms describes the withlatencyhistograms operation and its observable behavior.
//
// WithLatencyHistograms may return an error when input validation, dependency calls, or security checks fail.
// WithLatencyHistograms does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build describes the build operation and its observable behavior.
//
// Build may return an error when input validation, dependency calls, or security checks fail.
// Build does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	// -------- ROUTE REGISTRY --------
	if b.routes == nil {
		return nil, errors.New("route registry required")
	}

	if err := b.routes.Freeze(); err != nil {
		return nil, err
	}

	if _, err := b.routes.Lookup(cfg.Routes.Login); err != nil {
		return nil, errors.New("Routes Login is not a registered route")
	}
	if _, err := b.routes.Lookup(cfg.Routes.Dashboard); err != nil {
		return nil, errors.New("Routes Dashboard is not a registered route")
	}

	// -------- BACKEND CLIENT --------
	api := b.api
	if api == nil {
		if cfg.Client.BaseURL == "" {
			return nil, errors.New("api client or Client BaseURL required")
		}

		c, err := client.New(client.Config{
			BaseURL:   cfg.Client.BaseURL,
			Timeout:   cfg.Client.Timeout,
			UserAgent: cfg.Client.UserAgent,
		})
		if err != nil {
			return nil, err
		}
		api = c
	}

	engine := &Engine{
		config:    cloneConfig(cfg),
		routes:    b.routes,
		api:       api,
		router:    b.router,
		userCache: make(map[string]*identity.Record),
		nav:       newNavTracker(),
	}

	// -------- SESSION SOURCE --------
	if b.sessions != nil {
		engine.sessions = b.sessions
	} else {
		if b.redis == nil {
			return nil, errors.New("redis client required")
		}

		store := session.NewStore(
			b.redis,
			cfg.Session.RedisPrefix,
			cfg.Session.SlidingExpiration,
			cfg.Session.JitterEnabled,
			cfg.Session.JitterRange,
		)

		src := &sessionSource{
			store:    store,
			lifetime: cfg.Session.AbsoluteSessionLifetime,
			restore:  cfg.Session.RestoreFromCredential,
			restored: engine.noteSessionRestored,
		}

		if cfg.Session.RestoreFromCredential {
			cm, err := credential.NewManager(credential.Config{
				TTL:        cfg.Credential.TTL,
				Method:     credential.Method(cfg.Credential.Method),
				PrivateKey: cloneBytes(cfg.Credential.PrivateKey),
				PublicKey:  cloneBytes(cfg.Credential.PublicKey),
				Issuer:     cfg.Credential.Issuer,
				Audience:   cfg.Credential.Audience,
				Leeway:     cfg.Credential.Leeway,
				KeyID:      cfg.Credential.KeyID,
				VerifyKeys: cfg.Credential.VerifyKeys,
			})
			if err != nil {
				return nil, err
			}
			src.credentials = cm
		}

		engine.sessions = src
	}

	// -------- USER PROVIDER --------
	if b.users != nil {
		engine.users = b.users
	} else {
		p, err := identity.NewProvider(api, cfg.Client.CurrentUserPath)
		if err != nil {
			return nil, err
		}
		engine.users = p
	}

	// -------- MODULE REGISTRY --------
	if b.modules != nil {
		engine.modules = b.modules
	} else {
		m, err := municipality.NewRegistry(api, cfg.Cache.MunicipalityTTL)
		if err != nil {
			return nil, err
		}
		engine.modules = m
	}

	engine.audit = internalaudit.NewDispatcher(internalaudit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
	}, b.auditSink)
	engine.metrics = NewMetrics(cfg.Metrics)
	engine.flows = flows.New(engine.flowDeps())

	b.built = true

	return engine, nil
}
