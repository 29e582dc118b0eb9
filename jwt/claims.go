package jwt

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenType distinguishes access tokens from refresh tokens inside the
// signed payload ("type" claim).
type TokenType string

const (
	// TypeAccess marks short-lived tokens presented on every protected request.
	TypeAccess TokenType = "access"
	// TypeRefresh marks long-lived, single-use rotation tokens.
	TypeRefresh TokenType = "refresh"
)

// ErrClaimReserved is returned when a caller-supplied extra claim collides
// with a standard claim name.
var ErrClaimReserved = errors.New("reserved claim in extra set")

// reservedClaims are owned by the codec and may never appear in Extra.
var reservedClaims = map[string]struct{}{
	"iss": {}, "aud": {}, "sub": {}, "iat": {}, "exp": {}, "jti": {}, "type": {},
}

// Claims is the typed view of a token payload. Standard fields are explicit;
// everything else the caller supplied travels in Extra. Extra is validated at
// the signing boundary ([Manager.Generate]) and never trusted implicitly.
type Claims struct {
	Issuer    string
	Audience  string
	Subject   string
	IssuedAt  time.Time
	ExpiresAt time.Time
	JTI       string
	Type      TokenType

	Extra map[string]any
}

// validateExtra rejects reserved claim names before signing.
func validateExtra(extra map[string]any) error {
	for k := range extra {
		if _, reserved := reservedClaims[k]; reserved {
			return fmt.Errorf("%w: %q", ErrClaimReserved, k)
		}
	}
	return nil
}

// wireClaims flattens typed claims plus the extra bag into the map the
// signing library consumes. Standard claims always win over Extra.
func wireClaims(c Claims) jwt.MapClaims {
	m := make(jwt.MapClaims, len(c.Extra)+7)
	for k, v := range c.Extra {
		m[k] = v
	}
	m["iss"] = c.Issuer
	m["aud"] = c.Audience
	m["iat"] = jwt.NewNumericDate(c.IssuedAt)
	m["exp"] = jwt.NewNumericDate(c.ExpiresAt)
	m["jti"] = c.JTI
	m["type"] = string(c.Type)
	if c.Subject != "" {
		m["sub"] = c.Subject
	}
	return m
}

// requiredClaims is the minimum payload shape accepted by Validate.
var requiredClaims = []string{"iss", "aud", "iat", "exp", "jti", "type"}

// liftClaims converts a verified payload map into typed [Claims]. When strict
// is set, every required claim must be present and well-formed.
func liftClaims(m jwt.MapClaims, strict bool) (*Claims, error) {
	c := &Claims{}

	if strict {
		for _, name := range requiredClaims {
			if _, ok := m[name]; !ok {
				return nil, fmt.Errorf("%w: missing claim %q", ErrTokenInvalid, name)
			}
		}
	}

	if iss, err := m.GetIssuer(); err == nil {
		c.Issuer = iss
	} else if strict {
		return nil, fmt.Errorf("%w: malformed iss claim", ErrTokenInvalid)
	}

	if aud, err := m.GetAudience(); err == nil && len(aud) > 0 {
		c.Audience = aud[0]
	} else if strict {
		return nil, fmt.Errorf("%w: malformed aud claim", ErrTokenInvalid)
	}

	if sub, err := m.GetSubject(); err == nil {
		c.Subject = sub
	}

	if iat, err := m.GetIssuedAt(); err == nil && iat != nil {
		c.IssuedAt = iat.Time
	} else if strict {
		return nil, fmt.Errorf("%w: malformed iat claim", ErrTokenInvalid)
	}

	if exp, err := m.GetExpirationTime(); err == nil && exp != nil {
		c.ExpiresAt = exp.Time
	} else if strict {
		return nil, fmt.Errorf("%w: malformed exp claim", ErrTokenInvalid)
	}

	if jti, ok := m["jti"].(string); ok {
		c.JTI = jti
	}
	if strict && c.JTI == "" {
		return nil, fmt.Errorf("%w: malformed jti claim", ErrTokenInvalid)
	}

	if typ, ok := m["type"].(string); ok {
		c.Type = TokenType(typ)
	}
	if strict && c.Type != TypeAccess && c.Type != TypeRefresh {
		return nil, fmt.Errorf("%w: malformed type claim", ErrTokenInvalid)
	}

	for k, v := range m {
		if _, reserved := reservedClaims[k]; reserved {
			continue
		}
		if c.Extra == nil {
			c.Extra = make(map[string]any)
		}
		c.Extra[k] = v
	}

	return c, nil
}
