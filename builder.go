package authcore

import (
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/tessellated/authcore/internal/limiters"
	"github.com/tessellated/authcore/internal/rate"
	"github.com/tessellated/authcore/jwt"
	"github.com/tessellated/authcore/password"
	"github.com/tessellated/authcore/session"
)

// Builder defines a public type used by authcore APIs.
//
// Builder instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Builder struct {
	config Config
	redis  redis.UniversalClient
	db     *sql.DB

	accounts  AccountStore
	hasher    PasswordHasher
	auditSink AuditSink
	clock     Clock
	roles     []string

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

// WithRedis describes the withredis operation and its observable behavior.
//
// WithRedis may return an error when input validation, dependency calls, or security checks fail.
// WithRedis does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithDB supplies the SQL handle that backs the session store. The
// caller keeps ownership: the engine never closes it.
func (b *Builder) WithDB(db *sql.DB) *Builder {
	b.db = db
	return b
}

// WithAccountStore describes the withaccountstore operation and its observable behavior.
//
// WithAccountStore may return an error when input validation, dependency calls, or security checks fail.
// WithAccountStore does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithAccountStore(store AccountStore) *Builder {
	b.accounts = store
	return b
}

// WithPasswordHasher overrides the default Argon2id hasher.
func (b *Builder) WithPasswordHasher(h PasswordHasher) *Builder {
	b.hasher = h
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

// WithClock overrides the engine's time source. Defaults to time.Now.
func (b *Builder) WithClock(clock Clock) *Builder {
	b.clock = clock
	return b
}

// WithRoles restricts the role strings the engine will mint into access
// tokens. When never called, any role is accepted.
func (b *Builder) WithRoles(roles ...string) *Builder {
	b.roles = roles
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

	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	if b.db == nil {
		return nil, errors.New("database handle required")
	}
	if b.accounts == nil {
		return nil, errors.New("account store required")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	clock := b.clock
	if clock == nil {
		clock = time.Now
	}
	nowFunc := func() time.Time { return clock() }

	engine := &Engine{
		config:   cloneConfig(cfg),
		accounts: b.accounts,
		clock:    clock,
	}

	if len(b.roles) > 0 {
		engine.roles = make(map[string]struct{}, len(b.roles))
		for _, role := range b.roles {
			if role == "" {
				return nil, errors.New("role name must not be empty")
			}
			engine.roles[role] = struct{}{}
		}
	}

	// -------- SESSION STORE --------
	store, err := session.NewStore(b.db, nowFunc)
	if err != nil {
		return nil, err
	}
	engine.sessionStore = store

	// -------- LIMITERS --------
	engine.rateLimiter = rate.New(b.redis, rate.Config{
		EnableIPThrottle:        cfg.Security.EnableIPThrottle,
		EnableRefreshThrottle:   cfg.Security.EnableRefreshThrottle,
		MaxLoginAttempts:        cfg.Security.MaxLoginAttempts,
		LoginCooldownDuration:   cfg.Security.LoginCooldownDuration,
		MaxRefreshAttempts:      cfg.Security.MaxRefreshAttempts,
		RefreshCooldownDuration: cfg.Security.RefreshCooldownDuration,
	})
	engine.lockout = limiters.NewLockoutLimiter(b.redis, limiters.LockoutConfig{
		Enabled:   cfg.Security.LockoutThreshold > 0,
		Threshold: cfg.Security.LockoutThreshold,
		Duration:  cfg.Security.LockoutDuration,
	})

	if cfg.PasswordReset.Enabled {
		engine.resetStore = newPasswordResetStore(b.redis, nowFunc)
		engine.resetLimiter = newPasswordResetLimiter(b.redis, cfg.PasswordReset, cfg.Security)
	}

	// -------- OBSERVABILITY --------
	engine.audit = newAuditDispatcher(cfg.Audit, b.auditSink)
	engine.metrics = NewMetrics(cfg.Metrics)

	// -------- PASSWORD HASHER --------
	if b.hasher != nil {
		engine.passwordHash = b.hasher
	} else {
		ph, err := password.NewArgon2(password.Config{
			Memory:      cfg.Password.Memory,
			Time:        cfg.Password.Time,
			Parallelism: cfg.Password.Parallelism,
			SaltLength:  cfg.Password.SaltLength,
			KeyLength:   cfg.Password.KeyLength,
		})
		if err != nil {
			return nil, err
		}
		engine.passwordHash = ph
	}

	// Precompute the hash that unknown-account logins verify against.
	dummyHash, err := engine.passwordHash.Hash("authcore-dummy-" + uuid.NewString())
	if err != nil {
		return nil, err
	}
	engine.dummyHash = dummyHash

	// -------- JWT MANAGER --------
	jm, err := jwt.NewManager(jwt.Config{
		AccessTTL:     cfg.JWT.AccessTTL,
		SigningMethod: jwt.SigningMethod(cfg.JWT.SigningMethod),
		PrivateKey:    cloneBytes(cfg.JWT.PrivateKey),
		PublicKey:     cloneBytes(cfg.JWT.PublicKey),
		Issuer:        cfg.JWT.Issuer,
		Audience:      cfg.JWT.Audience,
		Leeway:        cfg.JWT.Leeway,
		Now:           nowFunc,
	})
	if err != nil {
		return nil, err
	}
	engine.jwtManager = jm

	b.built = true

	return engine, nil
}
