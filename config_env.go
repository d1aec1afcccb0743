package authsec

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Environment variables recognized by [ConfigFromEnv]. Rate-limit actions use
// the AUTHSEC_RATELIMIT_<ACTION> form with a "maxAttempts/window" value, e.g.
// AUTHSEC_RATELIMIT_LOGIN=5/15m.
const (
	envAccessTTL        = "AUTHSEC_ACCESS_TTL"
	envRefreshTTL       = "AUTHSEC_REFRESH_TTL"
	envSigningMethod    = "AUTHSEC_SIGNING_METHOD"
	envAccessKey        = "AUTHSEC_ACCESS_KEY"
	envRefreshKey       = "AUTHSEC_REFRESH_KEY"
	envIssuer           = "AUTHSEC_ISSUER"
	envCodeTTL          = "AUTHSEC_CODE_TTL"
	envLockoutDuration  = "AUTHSEC_LOCKOUT_DURATION"
	envLockoutThreshold = "AUTHSEC_LOCKOUT_THRESHOLD"
	envBackupCodeCount  = "AUTHSEC_BACKUP_CODE_COUNT"
	envBackupCodeLength = "AUTHSEC_BACKUP_CODE_LENGTH"
	envStoreTimeout     = "AUTHSEC_STORE_TIMEOUT"
	envRateLimitPrefix  = "AUTHSEC_RATELIMIT_"
)

// ConfigFromEnv builds a [Config] from the process environment, optionally
// loading dotenv files first (missing files are ignored so production
// deployments can rely on real environment variables alone). Unset variables
// keep their [DefaultConfig] values.
func ConfigFromEnv(dotenvFiles ...string) (Config, error) {
	if len(dotenvFiles) > 0 {
		// Load does not override variables already present in the environment.
		if err := godotenv.Load(dotenvFiles...); err != nil && !os.IsNotExist(err) {
			return Config{}, fmt.Errorf("load dotenv: %w", err)
		}
	}

	cfg := defaultConfig()

	if err := envDuration(envAccessTTL, &cfg.Token.AccessTTL); err != nil {
		return Config{}, err
	}
	if err := envDuration(envRefreshTTL, &cfg.Token.RefreshTTL); err != nil {
		return Config{}, err
	}
	if v := os.Getenv(envSigningMethod); v != "" {
		cfg.Token.SigningMethod = strings.ToLower(strings.TrimSpace(v))
	}
	if v := os.Getenv(envAccessKey); v != "" {
		cfg.Token.AccessKey = []byte(v)
	}
	if v := os.Getenv(envRefreshKey); v != "" {
		cfg.Token.RefreshKey = []byte(v)
	}
	if v := os.Getenv(envIssuer); v != "" {
		cfg.Token.Issuer = v
	}

	if err := envDuration(envCodeTTL, &cfg.TwoFactor.CodeTTL); err != nil {
		return Config{}, err
	}
	if err := envDuration(envLockoutDuration, &cfg.TwoFactor.LockoutDuration); err != nil {
		return Config{}, err
	}
	if err := envInt(envLockoutThreshold, &cfg.TwoFactor.MaxFailedAttempts); err != nil {
		return Config{}, err
	}
	if err := envInt(envBackupCodeCount, &cfg.TwoFactor.BackupCodeCount); err != nil {
		return Config{}, err
	}
	if err := envInt(envBackupCodeLength, &cfg.TwoFactor.BackupCodeLength); err != nil {
		return Config{}, err
	}
	if err := envDuration(envStoreTimeout, &cfg.StoreTimeout); err != nil {
		return Config{}, err
	}

	for _, entry := range os.Environ() {
		name, value, ok := strings.Cut(entry, "=")
		if !ok || !strings.HasPrefix(name, envRateLimitPrefix) {
			continue
		}
		action := strings.ToLower(strings.TrimPrefix(name, envRateLimitPrefix))
		policy, err := parseActionPolicy(value)
		if err != nil {
			return Config{}, fmt.Errorf("%s: %w", name, err)
		}
		cfg.RateLimit.Actions[action] = policy
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func parseActionPolicy(value string) (ActionPolicy, error) {
	attempts, window, ok := strings.Cut(strings.TrimSpace(value), "/")
	if !ok {
		return ActionPolicy{}, fmt.Errorf("expected maxAttempts/window, got %q", value)
	}
	max, err := strconv.Atoi(strings.TrimSpace(attempts))
	if err != nil {
		return ActionPolicy{}, fmt.Errorf("invalid max attempts %q", attempts)
	}
	d, err := time.ParseDuration(strings.TrimSpace(window))
	if err != nil {
		return ActionPolicy{}, fmt.Errorf("invalid window %q", window)
	}
	return ActionPolicy{MaxAttempts: max, Window: d}, nil
}

func envDuration(name string, out *time.Duration) error {
	v := os.Getenv(name)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s: invalid duration %q", name, v)
	}
	*out = d
	return nil
}

func envInt(name string, out *int) error {
	v := os.Getenv(name)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s: invalid integer %q", name, v)
	}
	*out = n
	return nil
}
