package token

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Method defines a public type used by authsec APIs.
type Method string

const (
	// MethodHS256 is an exported constant or variable used by the security core.
	MethodHS256 Method = "hs256"
	// MethodEd25519 is an exported constant or variable used by the security core.
	MethodEd25519 Method = "ed25519"
)

// Claim kinds embedded in every token. A token presented with the wrong kind
// is rejected as invalid, never as expired.
const (
	KindAccess  = "access"
	KindRefresh = "refresh"
)

var (
	// ErrKeyMissing is returned by NewSigner on signing-key misconfiguration.
	// This is the one fatal, non-retryable failure of the token subsystem.
	ErrKeyMissing = errors.New("signing key missing or malformed")
	// ErrInvalid is an exported constant or variable used by the security core.
	ErrInvalid = errors.New("token malformed or signature invalid")
	// ErrExpired is an exported constant or variable used by the security core.
	ErrExpired = errors.New("token past expiry")
)

// Config defines a public type used by authsec APIs.
//
// Config instances are intended to be configured during initialization and
// then treated as immutable unless documented otherwise.
type Config struct {
	Method     Method
	AccessTTL  time.Duration
	RefreshTTL time.Duration

	// HS256: shared secrets. Ed25519: private keys (raw seed+key or PEM).
	AccessKey  []byte
	RefreshKey []byte

	// Ed25519 verify keys; ignored for HS256.
	AccessPublicKey  []byte
	RefreshPublicKey []byte

	Issuer string
	Leeway time.Duration
}

// Signer defines a public type used by authsec APIs.
//
// Signer instances are intended to be configured during initialization and
// then treated as immutable unless documented otherwise.
type Signer struct {
	config Config
}

// AccessClaims is the self-contained access-token claim set. Validity is
// entirely determined by signature and expiry; access tokens are never
// persisted or revoked individually.
type AccessClaims struct {
	UserID string `json:"uid"`
	Email  string `json:"email,omitempty"`
	Role   string `json:"role,omitempty"`
	Kind   string `json:"kind"`
	jwt.RegisteredClaims
}

// RefreshClaims is the refresh-token claim set. SessionID links the token to
// its revocation record in the shared store.
type RefreshClaims struct {
	UserID    string `json:"uid"`
	SessionID string `json:"sid"`
	Kind      string `json:"kind"`
	jwt.RegisteredClaims
}

// NewSigner validates key material for the configured method and returns an
// immutable Signer.
//
// NewSigner returns [ErrKeyMissing] on misconfiguration; callers should treat
// that as fatal at startup rather than retrying.
func NewSigner(cfg Config) (*Signer, error) {
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}

	switch cfg.Method {
	case MethodHS256:
		if len(cfg.AccessKey) == 0 || len(cfg.RefreshKey) == 0 {
			return nil, fmt.Errorf("%w: hs256 requires access and refresh secrets", ErrKeyMissing)
		}
	case MethodEd25519:
		if _, err := parseEdPrivateKey(cfg.AccessKey); err != nil {
			return nil, fmt.Errorf("%w: access key: %v", ErrKeyMissing, err)
		}
		if _, err := parseEdPrivateKey(cfg.RefreshKey); err != nil {
			return nil, fmt.Errorf("%w: refresh key: %v", ErrKeyMissing, err)
		}
		if _, err := parseEdPublicKey(cfg.AccessPublicKey); err != nil {
			return nil, fmt.Errorf("%w: access public key: %v", ErrKeyMissing, err)
		}
		if _, err := parseEdPublicKey(cfg.RefreshPublicKey); err != nil {
			return nil, fmt.Errorf("%w: refresh public key: %v", ErrKeyMissing, err)
		}
	default:
		return nil, fmt.Errorf("%w: unsupported signing method %q", ErrKeyMissing, cfg.Method)
	}

	return &Signer{config: cfg}, nil
}

// SignAccess mints an access token for the given identity. Returns the
// compact token and its expiry.
func (s *Signer) SignAccess(userID, email, role string) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(s.config.AccessTTL)

	claims := AccessClaims{
		UserID: userID,
		Email:  email,
		Role:   role,
		Kind:   KindAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    s.config.Issuer,
		},
	}

	signed, err := s.sign(claims, s.config.AccessKey)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// SignRefresh mints a refresh token bound to sessionID. Returns the compact
// token and its expiry; the engine persists the matching revocation record.
func (s *Signer) SignRefresh(userID, sessionID string) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(s.config.RefreshTTL)

	claims := RefreshClaims{
		UserID:    userID,
		SessionID: sessionID,
		Kind:      KindRefresh,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    s.config.Issuer,
		},
	}

	signed, err := s.sign(claims, s.config.RefreshKey)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// ParseAccess verifies signature, expiry, and claim kind. Pure and local,
// with no store access. Fails with [ErrExpired] or [ErrInvalid].
func (s *Signer) ParseAccess(tokenStr string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	if err := s.parse(tokenStr, claims, s.config.AccessKey, s.config.AccessPublicKey); err != nil {
		return nil, err
	}
	if claims.Kind != KindAccess {
		return nil, ErrInvalid
	}
	return claims, nil
}

// ParseRefresh verifies signature, expiry, and claim kind. The revocation
// record check belongs to the engine; a token accepted here may still be
// revoked.
func (s *Signer) ParseRefresh(tokenStr string) (*RefreshClaims, error) {
	claims := &RefreshClaims{}
	if err := s.parse(tokenStr, claims, s.config.RefreshKey, s.config.RefreshPublicKey); err != nil {
		return nil, err
	}
	if claims.Kind != KindRefresh || claims.SessionID == "" {
		return nil, ErrInvalid
	}
	return claims, nil
}

func (s *Signer) sign(claims jwt.Claims, key []byte) (string, error) {
	tok := jwt.NewWithClaims(s.method(), claims)

	signKey, err := s.signKey(key)
	if err != nil {
		return "", err
	}
	return tok.SignedString(signKey)
}

func (s *Signer) parse(tokenStr string, claims jwt.Claims, key, publicKey []byte) error {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{s.method().Alg()}),
		jwt.WithExpirationRequired(),
	}
	if s.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(s.config.Leeway))
	}
	if s.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(s.config.Issuer))
	}

	parser := jwt.NewParser(options...)
	parsed, err := parser.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != s.method().Alg() {
			return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
		}
		return s.verifyKey(key, publicKey)
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return ErrExpired
		}
		return ErrInvalid
	}
	if !parsed.Valid {
		return ErrInvalid
	}
	return nil
}

func (s *Signer) method() jwt.SigningMethod {
	switch s.config.Method {
	case MethodEd25519:
		return jwt.SigningMethodEdDSA
	default:
		return jwt.SigningMethodHS256
	}
}

func (s *Signer) signKey(key []byte) (interface{}, error) {
	switch s.config.Method {
	case MethodEd25519:
		return parseEdPrivateKey(key)
	default:
		return key, nil
	}
}

func (s *Signer) verifyKey(key, publicKey []byte) (interface{}, error) {
	switch s.config.Method {
	case MethodEd25519:
		return parseEdPublicKey(publicKey)
	default:
		return key, nil
	}
}

func parseEdPrivateKey(key []byte) (ed25519.PrivateKey, error) {
	if len(key) == ed25519.PrivateKeySize {
		return ed25519.PrivateKey(key), nil
	}
	parsed, err := jwt.ParseEdPrivateKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 private key")
	}
	edKey, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, errors.New("invalid ed25519 private key type")
	}
	return edKey, nil
}

func parseEdPublicKey(key []byte) (ed25519.PublicKey, error) {
	if len(key) == ed25519.PublicKeySize {
		return ed25519.PublicKey(key), nil
	}
	parsed, err := jwt.ParseEdPublicKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 public key")
	}
	edKey, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, errors.New("invalid ed25519 public key type")
	}
	return edKey, nil
}
