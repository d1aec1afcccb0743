package authsec

import (
	"errors"
	"time"
)

// Well-known rate-limit action names. The Actions table may carry any
// caller-defined action; these cover the portal's sensitive endpoints.
const (
	// ActionLogin is an exported constant or variable used by the security core.
	ActionLogin = "login"
	// ActionRegistration is an exported constant or variable used by the security core.
	ActionRegistration = "registration"
	// ActionVerification is an exported constant or variable used by the security core.
	ActionVerification = "verification"
	// ActionTwoFactorVerify is an exported constant or variable used by the security core.
	ActionTwoFactorVerify = "twofactor_verify"
	// ActionTwoFactorBackup is an exported constant or variable used by the security core.
	ActionTwoFactorBackup = "twofactor_backup"
)

// Config defines a public type used by authsec APIs.
//
// Config instances are intended to be configured during initialization and then
// treated as immutable unless documented otherwise.
type Config struct {
	Token      TokenConfig
	RateLimit  RateLimitConfig
	TwoFactor  TwoFactorConfig
	Revocation RevocationConfig
	Audit      AuditConfig
	Metrics    MetricsConfig

	// StoreTimeout bounds every shared-store round trip. Zero disables the
	// per-call deadline.
	StoreTimeout time.Duration
}

/*
====================================
TOKEN CONFIG
====================================
*/

// TokenConfig defines a public type used by authsec APIs.
//
// AccessKey and RefreshKey are independent signing keys: a leaked access
// secret must not let an attacker mint refresh tokens.
type TokenConfig struct {
	AccessTTL        time.Duration
	RefreshTTL       time.Duration
	SigningMethod    string // "hs256" (default), "ed25519" optional
	AccessKey        []byte
	RefreshKey       []byte
	AccessPublicKey  []byte // ed25519 only
	RefreshPublicKey []byte // ed25519 only
	Issuer           string
	Leeway           time.Duration
}

/*
====================================
RATE LIMIT CONFIG
====================================
*/

// ActionPolicy is the per-action attempt budget: MaxAttempts inside one
// fixed Window anchored at the first attempt.
type ActionPolicy struct {
	MaxAttempts int
	Window      time.Duration
}

// RateLimitConfig defines a public type used by authsec APIs.
type RateLimitConfig struct {
	Actions   map[string]ActionPolicy
	KeyPrefix string // Redis namespace, default "ratelimit"

	// FailOpen admits traffic when the shared store is unreachable instead of
	// blocking legitimate requests on an infrastructure outage. Every fail-open
	// decision is logged and audited as a degraded-mode event.
	FailOpen bool
}

/*
====================================
TWO FACTOR CONFIG
====================================
*/

// TwoFactorConfig defines a public type used by authsec APIs.
type TwoFactorConfig struct {
	CodeDigits        int
	CodeTTL           time.Duration
	MaxFailedAttempts int
	LockoutDuration   time.Duration
	BackupCodeCount   int
	BackupCodeLength  int
	Hash              CodeHashConfig
}

// CodeHashConfig carries the argon2id parameters used to salt-hash one-time
// codes and backup codes before they touch the user record.
type CodeHashConfig struct {
	Memory      uint32 // in KB
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// RevocationConfig defines a public type used by authsec APIs.
type RevocationConfig struct {
	KeyPrefix   string // default "refresh"
	IndexPrefix string // default "refreshidx"
}

// AuditConfig defines a public type used by authsec APIs.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig defines a public type used by authsec APIs.
type MetricsConfig struct {
	Enabled bool
}

/*
====================================
DEFAULT CONFIG
====================================
*/

func defaultConfig() Config {
	return Config{
		Token: TokenConfig{
			AccessTTL:     15 * time.Minute,
			RefreshTTL:    7 * 24 * time.Hour,
			SigningMethod: "hs256",
			Leeway:        30 * time.Second,
		},
		RateLimit: RateLimitConfig{
			Actions: map[string]ActionPolicy{
				ActionLogin:           {MaxAttempts: 5, Window: 15 * time.Minute},
				ActionRegistration:    {MaxAttempts: 5, Window: time.Hour},
				ActionVerification:    {MaxAttempts: 5, Window: 15 * time.Minute},
				ActionTwoFactorVerify: {MaxAttempts: 3, Window: 15 * time.Minute},
				ActionTwoFactorBackup: {MaxAttempts: 5, Window: 15 * time.Minute},
			},
			KeyPrefix: "ratelimit",
			FailOpen:  true,
		},
		TwoFactor: TwoFactorConfig{
			CodeDigits:        6,
			CodeTTL:           10 * time.Minute,
			MaxFailedAttempts: 3,
			LockoutDuration:   15 * time.Minute,
			BackupCodeCount:   10,
			BackupCodeLength:  10,
			Hash: CodeHashConfig{
				Memory:      16384,
				Time:        2,
				Parallelism: 1,
				SaltLength:  16,
				KeyLength:   32,
			},
		},
		Revocation: RevocationConfig{
			KeyPrefix:   "refresh",
			IndexPrefix: "refreshidx",
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: false,
		},
		StoreTimeout: 3 * time.Second,
	}
}

// DefaultConfig returns the library defaults: 15m access tokens, 7d refresh
// tokens, the standard portal rate-limit table, and 2FA knobs per policy
// (6-digit codes, 10m lifetime, 3 strikes, 15m lockout, 10 backup codes).
func DefaultConfig() Config {
	return defaultConfig()
}

// PresetProduction returns DefaultConfig with audit and metrics enabled.
// Signing keys must still be supplied by the caller.
func PresetProduction() Config {
	cfg := defaultConfig()
	cfg.Audit.Enabled = true
	cfg.Metrics.Enabled = true
	return cfg
}

// PresetDevelopment relaxes the limiter table for local iteration. Never use
// it in production.
func PresetDevelopment() Config {
	cfg := defaultConfig()
	cfg.Token.AccessTTL = time.Hour
	for name, policy := range cfg.RateLimit.Actions {
		policy.MaxAttempts = 100
		cfg.RateLimit.Actions[name] = policy
	}
	return cfg
}

// Validate describes the validate operation and its observable behavior.
//
// Validate may return an error when configuration values violate the
// invariants the engine depends on.
func (c Config) Validate() error {
	if c.Token.AccessTTL <= 0 || c.Token.RefreshTTL <= 0 {
		return errors.New("token TTLs must be positive")
	}
	if c.Token.RefreshTTL <= c.Token.AccessTTL {
		return errors.New("refresh TTL must exceed access TTL")
	}
	if c.Token.Leeway < 0 || c.Token.Leeway > 2*time.Minute {
		return errors.New("invalid leeway configuration")
	}
	for name, policy := range c.RateLimit.Actions {
		if name == "" {
			return errors.New("rate limit action name must not be empty")
		}
		if policy.MaxAttempts <= 0 {
			return errors.New("rate limit max attempts must be positive")
		}
		if policy.Window < time.Second {
			return errors.New("rate limit window must be at least one second")
		}
	}
	if c.TwoFactor.CodeDigits < 6 || c.TwoFactor.CodeDigits > 10 {
		return errors.New("two-factor code digits must be between 6 and 10")
	}
	if c.TwoFactor.CodeTTL <= 0 {
		return errors.New("two-factor code TTL must be positive")
	}
	if c.TwoFactor.MaxFailedAttempts <= 0 {
		return errors.New("two-factor failed-attempt threshold must be positive")
	}
	if c.TwoFactor.LockoutDuration <= 0 {
		return errors.New("two-factor lockout duration must be positive")
	}
	if c.TwoFactor.BackupCodeCount < 0 || c.TwoFactor.BackupCodeCount > 64 {
		return errors.New("backup code count out of range")
	}
	if c.TwoFactor.BackupCodeCount > 0 && c.TwoFactor.BackupCodeLength < 8 {
		return errors.New("backup codes must be at least 8 characters")
	}
	if c.StoreTimeout < 0 || c.StoreTimeout > 10*time.Second {
		return errors.New("store timeout must be within single-digit seconds")
	}
	return nil
}

func cloneConfig(cfg Config) Config {
	out := cfg

	if cfg.RateLimit.Actions != nil {
		out.RateLimit.Actions = make(map[string]ActionPolicy, len(cfg.RateLimit.Actions))
		for name, policy := range cfg.RateLimit.Actions {
			out.RateLimit.Actions[name] = policy
		}
	}

	out.Token.AccessKey = append([]byte(nil), cfg.Token.AccessKey...)
	out.Token.RefreshKey = append([]byte(nil), cfg.Token.RefreshKey...)
	out.Token.AccessPublicKey = append([]byte(nil), cfg.Token.AccessPublicKey...)
	out.Token.RefreshPublicKey = append([]byte(nil), cfg.Token.RefreshPublicKey...)

	return out
}
