package auth

import (
	"crypto/rsa"
	"errors"
	"strings"

	"github.com/golang-jwt/jwt/v4"
)

const RoleSuperAdmin = "SUPER_ADMIN"

// Principal holds identity extracted from a validated token.
type Principal struct {
	UserID     string
	Roles      []string
	HospitalID string
	Claims     jwt.MapClaims
}

// IsSuperAdmin reports whether the principal may act on behalf of any hospital.
func (p *Principal) IsSuperAdmin() bool {
	for _, r := range p.Roles {
		if strings.EqualFold(r, RoleSuperAdmin) {
			return true
		}
	}
	return false
}

// Config holds token validation settings.
type Config struct {
	Issuer   string
	Audience string
}

var (
	ErrNoToken       = errors.New("no token provided")
	ErrInvalidToken  = errors.New("invalid token")
	ErrInvalidIssuer = errors.New("invalid issuer")
	ErrInvalidAud    = errors.New("invalid audience")
	ErrMissingSub    = errors.New("missing sub claim")
)

// KeySource resolves RSA public keys by kid.
type KeySource interface {
	Get(kid string) (*rsa.PublicKey, error)
}

// TokenVerifier turns a bearer token into a Principal.
type TokenVerifier interface {
	ParseAndVerifyToken(tokenString string) (*Principal, error)
}

type Verifier struct {
	cfg  Config
	keys KeySource
}

var _ TokenVerifier = (*Verifier)(nil)

// NewVerifier constructs a verifier with config and a key source.
func NewVerifier(cfg Config, keys KeySource) *Verifier {
	return &Verifier{cfg: cfg, keys: keys}
}

// ParseAndVerifyToken verifies a bearer token, validates issuer/exp/aud and returns Principal.
func (v *Verifier) ParseAndVerifyToken(tokenString string) (*Principal, error) {
	tokenString = strings.TrimSpace(tokenString)
	if tokenString == "" {
		return nil, ErrNoToken
	}
	parsed, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		// enforce RS256
		if _, ok := t.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, ErrInvalidToken
		}
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, ErrInvalidToken
		}
		return v.keys.Get(kid)
	})
	if err != nil || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidToken
	}
	if iss, _ := claims["iss"].(string); iss != v.cfg.Issuer {
		return nil, ErrInvalidIssuer
	}
	if !claims.VerifyExpiresAt(jwt.TimeFunc().Unix(), true) {
		return nil, ErrInvalidToken
	}
	if v.cfg.Audience != "" && !claims.VerifyAudience(v.cfg.Audience, true) {
		return nil, ErrInvalidAud
	}

	sub, _ := claims["sub"].(string)
	if sub == "" {
		return nil, ErrMissingSub
	}

	// realm_access.roles
	var roles []string
	if ra, ok := claims["realm_access"].(map[string]interface{}); ok {
		if rr, ok := ra["roles"].([]interface{}); ok {
			for _, r := range rr {
				if s, ok := r.(string); ok {
					roles = append(roles, s)
				}
			}
		}
	}

	hospitalID, _ := claims["hospitalId"].(string)

	return &Principal{
		UserID:     sub,
		Roles:      roles,
		HospitalID: hospitalID,
		Claims:     claims,
	}, nil
}
