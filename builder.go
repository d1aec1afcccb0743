package authsec

import (
	"errors"

	"github.com/campuskit/authsec/codehash"
	internalaudit "github.com/campuskit/authsec/internal/audit"
	"github.com/campuskit/authsec/internal/rate"
	"github.com/campuskit/authsec/revoke"
	"github.com/campuskit/authsec/token"
	"github.com/redis/go-redis/v9"
)

// Builder assembles an [Engine]. All collaborators are injected here; the
// engine holds no ambient or global state, so isolated tests can run against
// miniredis and an in-memory [TwoFactorStore].
type Builder struct {
	config Config
	redis  redis.UniversalClient

	twoFactorStore TwoFactorStore
	userDirectory  UserDirectory
	auditSink      SecuritySink

	built bool
}

// New returns a Builder preloaded with [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the builder's configuration. The config is cloned;
// later mutation of the caller's copy has no effect.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis injects the shared ephemeral store client used for revocation
// records and rate-limit counters.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithTwoFactorStore injects the persistence layer for per-user two-factor
// state. Optional; without it the two-factor operations return
// [ErrEngineNotReady].
func (b *Builder) WithTwoFactorStore(store TwoFactorStore) *Builder {
	b.twoFactorStore = store
	return b
}

// WithUserDirectory injects the identity lookup used during refresh rotation
// to rebuild access-token claims. Optional; without it
// [Engine.RefreshAccessToken] returns [ErrEngineNotReady].
func (b *Builder) WithUserDirectory(dir UserDirectory) *Builder {
	b.userDirectory = dir
	return b
}

// WithAuditSink injects the external security event sink.
func (b *Builder) WithAuditSink(sink SecuritySink) *Builder {
	b.auditSink = sink
	return b
}

// WithMetricsEnabled toggles in-process metrics collection.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// Build validates the configuration and wires the engine. Signing-key
// misconfiguration surfaces here as a fatal [ErrSigningKeyMissing]; nothing
// downstream retries it.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}
	if b.redis == nil {
		return nil, errors.New("redis client is required")
	}
	if err := b.config.Validate(); err != nil {
		return nil, err
	}

	signer, err := token.NewSigner(token.Config{
		Method:           token.Method(b.config.Token.SigningMethod),
		AccessTTL:        b.config.Token.AccessTTL,
		RefreshTTL:       b.config.Token.RefreshTTL,
		AccessKey:        b.config.Token.AccessKey,
		RefreshKey:       b.config.Token.RefreshKey,
		AccessPublicKey:  b.config.Token.AccessPublicKey,
		RefreshPublicKey: b.config.Token.RefreshPublicKey,
		Issuer:           b.config.Token.Issuer,
		Leeway:           b.config.Token.Leeway,
	})
	if err != nil {
		if errors.Is(err, token.ErrKeyMissing) {
			return nil, errors.Join(ErrSigningKeyMissing, err)
		}
		return nil, err
	}

	hasher, err := codehash.New(codehash.Config{
		Memory:      b.config.TwoFactor.Hash.Memory,
		Time:        b.config.TwoFactor.Hash.Time,
		Parallelism: b.config.TwoFactor.Hash.Parallelism,
		SaltLength:  b.config.TwoFactor.Hash.SaltLength,
		KeyLength:   b.config.TwoFactor.Hash.KeyLength,
	})
	if err != nil {
		return nil, err
	}

	engine := &Engine{
		config:      b.config,
		signer:      signer,
		revocations: revoke.NewStore(b.redis, b.config.Revocation.KeyPrefix, b.config.Revocation.IndexPrefix),
		limiter:     rate.New(b.redis, b.config.RateLimit.KeyPrefix),
		hasher:      hasher,
		twoFactor:   b.twoFactorStore,
		users:       b.userDirectory,
		audit: internalaudit.NewDispatcher(internalaudit.Config{
			Enabled:    b.config.Audit.Enabled,
			BufferSize: b.config.Audit.BufferSize,
			DropIfFull: b.config.Audit.DropIfFull,
		}, b.auditSink),
		metrics: NewMetrics(b.config.Metrics),
	}

	b.built = true
	return engine, nil
}
