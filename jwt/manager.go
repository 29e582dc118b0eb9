package jwt

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SigningMethod selects the signature algorithm for the codec.
type SigningMethod string

const (
	// MethodEd25519 is the default asymmetric signing method.
	MethodEd25519 SigningMethod = "ed25519"
	// MethodHS256 is an optional symmetric method for single-process setups.
	MethodHS256 SigningMethod = "hs256"
)

var (
	// ErrTokenInvalid covers malformed tokens and missing or mistyped claims.
	ErrTokenInvalid = errors.New("invalid token")
	// ErrTokenExpired matches any expiry failure; the concrete error is
	// an [*ExpiredError] carrying the expired-at timestamp.
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenValidationFailed covers bad signatures and issuer/audience mismatches.
	ErrTokenValidationFailed = errors.New("token validation failed")
	// ErrTokenGeneration is returned when signing fails.
	ErrTokenGeneration = errors.New("token generation failed")
	// ErrKeyMismatch is returned by [NewManager] when the configured private
	// and public keys do not form a matching pair.
	ErrKeyMismatch = errors.New("signing key pair mismatch")
)

// ExpiredError reports a token whose signature verified but whose exp claim
// is in the past. errors.Is(err, ErrTokenExpired) matches it.
type ExpiredError struct {
	ExpiredAt time.Time
}

func (e *ExpiredError) Error() string {
	return fmt.Sprintf("token expired at %s", e.ExpiredAt.UTC().Format(time.RFC3339))
}

// Is makes the typed error match the [ErrTokenExpired] sentinel.
func (e *ExpiredError) Is(target error) bool {
	return target == ErrTokenExpired
}

// keyProbe is the fixed value signed at construction time to prove the
// configured private and public keys correspond.
var keyProbe = []byte("goToken.keypair.probe/v1")

// Config holds the codec's signing configuration.
//
// Config instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Config struct {
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	SigningMethod SigningMethod
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Audience      string
	Leeway        time.Duration
	RequireIAT    bool
	MaxFutureIAT  time.Duration
	KeyID         string
}

// Manager signs and verifies tokens. It is stateless after construction and
// safe for concurrent use.
type Manager struct {
	config Config
}

// NewManager validates the configuration, proves that the configured key
// pair actually matches (by signing a fixed probe with the private key and
// verifying with the public key), and returns a ready codec. A mismatched
// pair fails here, at startup, never at request time.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL < 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	if cfg.MaxFutureIAT == 0 {
		cfg.MaxFutureIAT = 10 * time.Minute
	}
	if cfg.MaxFutureIAT < 0 || cfg.MaxFutureIAT > 24*time.Hour {
		return nil, errors.New("invalid MaxFutureIAT configuration")
	}
	if cfg.Issuer == "" || cfg.Audience == "" {
		return nil, errors.New("issuer and audience are required")
	}
	cfg.KeyID = strings.TrimSpace(cfg.KeyID)

	switch cfg.SigningMethod {
	case MethodHS256:
		if len(cfg.PrivateKey) == 0 {
			return nil, errors.New("hs256 requires private key")
		}
	case MethodEd25519:
		var (
			priv ed25519.PrivateKey
			pub  ed25519.PublicKey
			err  error
		)
		if len(cfg.PrivateKey) > 0 {
			if priv, err = parseEdPrivateKey(cfg.PrivateKey); err != nil {
				return nil, err
			}
		}
		if len(cfg.PublicKey) == 0 {
			return nil, errors.New("ed25519 requires public key")
		}
		if pub, err = parseEdPublicKey(cfg.PublicKey); err != nil {
			return nil, err
		}
		if priv != nil {
			sig := ed25519.Sign(priv, keyProbe)
			if !ed25519.Verify(pub, keyProbe, sig) {
				return nil, ErrKeyMismatch
			}
		}
	default:
		return nil, errors.New("unsupported signing method")
	}

	return &Manager{config: cfg}, nil
}

// AccessTTL returns the configured default access-token lifetime.
func (m *Manager) AccessTTL() time.Duration { return m.config.AccessTTL }

// RefreshTTL returns the configured default refresh-token lifetime.
func (m *Manager) RefreshTTL() time.Duration { return m.config.RefreshTTL }

// Generate signs a token of the given type. Standard claims (iss, aud, iat,
// exp, jti, type, sub) are merged over the caller's extra set; reserved names
// in extra are rejected. ttl <= 0 falls back to the configured default for
// the token type.
func (m *Manager) Generate(typ TokenType, subject, jti string, extra map[string]any, ttl time.Duration) (string, error) {
	if err := validateExtra(extra); err != nil {
		return "", err
	}
	if jti == "" {
		return "", fmt.Errorf("%w: empty jti", ErrTokenGeneration)
	}

	if ttl <= 0 {
		switch typ {
		case TypeRefresh:
			ttl = m.config.RefreshTTL
		default:
			ttl = m.config.AccessTTL
		}
	}
	if ttl <= 0 {
		return "", fmt.Errorf("%w: no ttl configured for %s tokens", ErrTokenGeneration, typ)
	}

	now := time.Now()
	claims := wireClaims(Claims{
		Issuer:    m.config.Issuer,
		Audience:  m.config.Audience,
		Subject:   subject,
		IssuedAt:  now,
		ExpiresAt: now.Add(ttl),
		JTI:       jti,
		Type:      typ,
		Extra:     extra,
	})

	token := jwt.NewWithClaims(m.getMethod(), claims)
	if m.config.KeyID != "" {
		token.Header["kid"] = m.config.KeyID
	}

	signKey, err := m.getSignKey()
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTokenGeneration, err)
	}

	signed, err := token.SignedString(signKey)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTokenGeneration, err)
	}
	return signed, nil
}

// GenerateAccess signs an access token with the configured access TTL.
func (m *Manager) GenerateAccess(subject, jti string, extra map[string]any) (string, error) {
	return m.Generate(TypeAccess, subject, jti, extra, 0)
}

// GenerateRefresh signs a refresh token with the configured refresh TTL.
func (m *Manager) GenerateRefresh(subject, jti string, extra map[string]any) (string, error) {
	return m.Generate(TypeRefresh, subject, jti, extra, 0)
}

// Validate verifies the signature, checks issuer/audience/expiry against the
// configuration, enforces the required claim shape, and optionally checks the
// token type. expected == "" skips the type check.
//
// Failure modes: [ErrTokenInvalid] for malformed tokens and claim-shape
// violations, [*ExpiredError] (matching [ErrTokenExpired]) for a verified
// signature past exp, [ErrTokenValidationFailed] for everything
// signature/issuer/audience related.
func (m *Manager) Validate(tokenStr string, expected TokenType) (*Claims, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{m.getMethod().Alg()}),
		jwt.WithIssuer(m.config.Issuer),
		jwt.WithAudience(m.config.Audience),
		jwt.WithExpirationRequired(),
	}
	if m.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(m.config.Leeway))
	}
	if m.config.RequireIAT {
		options = append(options, jwt.WithIssuedAt())
	}

	parser := jwt.NewParser(options...)
	token, err := parser.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != m.getMethod().Alg() {
			return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
		}
		if m.config.KeyID != "" {
			kid, _ := t.Header["kid"].(string)
			if kid != "" && kid != m.config.KeyID {
				return nil, errors.New("unknown kid")
			}
		}
		return m.getVerifyKey()
	})
	if err != nil {
		return nil, m.classifyParseError(tokenStr, err)
	}

	payload, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("%w: unexpected claim payload", ErrTokenInvalid)
	}

	claims, err := liftClaims(payload, true)
	if err != nil {
		return nil, err
	}

	if m.config.MaxFutureIAT > 0 && !claims.IssuedAt.IsZero() &&
		claims.IssuedAt.After(time.Now().Add(m.config.MaxFutureIAT)) {
		return nil, fmt.Errorf("%w: iat too far in the future", ErrTokenValidationFailed)
	}

	if expected != "" && claims.Type != expected {
		return nil, fmt.Errorf("%w: unexpected token type %q", ErrTokenInvalid, claims.Type)
	}

	return claims, nil
}

// ParseUnsafe decodes the payload segment WITHOUT verifying the signature.
// It exists for diagnostics only (reading exp off a rejected token for
// logging) and must never be used to authorize anything.
func (m *Manager) ParseUnsafe(tokenStr string) (*Claims, error) {
	parser := jwt.NewParser()
	payload := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(tokenStr, payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	return liftClaims(payload, false)
}

// IsExpired reports whether the token's unverified exp claim is in the past.
// Undecodable tokens and tokens without a usable exp return an error instead
// of "not expired", so callers cannot mistake garbage for a live token.
func (m *Manager) IsExpired(tokenStr string) (bool, error) {
	exp, err := m.expiration(tokenStr)
	if err != nil {
		return false, err
	}
	return time.Now().After(exp), nil
}

// Expiration returns the unverified exp claim. The boolean is false when the
// token cannot be decoded or carries no usable expiry.
func (m *Manager) Expiration(tokenStr string) (time.Time, bool) {
	exp, err := m.expiration(tokenStr)
	if err != nil {
		return time.Time{}, false
	}
	return exp, true
}

func (m *Manager) expiration(tokenStr string) (time.Time, error) {
	claims, err := m.ParseUnsafe(tokenStr)
	if err != nil {
		return time.Time{}, err
	}
	if claims.ExpiresAt.IsZero() {
		return time.Time{}, fmt.Errorf("%w: no exp claim", ErrTokenInvalid)
	}
	return claims.ExpiresAt, nil
}

// classifyParseError maps library errors onto the codec taxonomy. Expiry is
// special-cased: the expired-at timestamp is recovered via ParseUnsafe so the
// caller can log it.
func (m *Manager) classifyParseError(tokenStr string, err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		expired := &ExpiredError{}
		if exp, ok := m.Expiration(tokenStr); ok {
			expired.ExpiredAt = exp
		}
		return expired
	case errors.Is(err, jwt.ErrTokenMalformed):
		return fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	default:
		return fmt.Errorf("%w: %v", ErrTokenValidationFailed, err)
	}
}

func (m *Manager) getMethod() jwt.SigningMethod {
	switch m.config.SigningMethod {
	case MethodHS256:
		return jwt.SigningMethodHS256
	default:
		return jwt.SigningMethodEdDSA
	}
}

func (m *Manager) getSignKey() (interface{}, error) {
	switch m.config.SigningMethod {
	case MethodHS256:
		return m.config.PrivateKey, nil
	default:
		return parseEdPrivateKey(m.config.PrivateKey)
	}
}

func (m *Manager) getVerifyKey() (interface{}, error) {
	switch m.config.SigningMethod {
	case MethodHS256:
		return m.config.PrivateKey, nil
	default:
		return parseEdPublicKey(m.config.PublicKey)
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
