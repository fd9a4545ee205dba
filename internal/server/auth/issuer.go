// Package auth mints and verifies the tokens handed to clients: signed JWT
// access tokens and opaque random refresh tokens.
package auth

import (
	"crypto/ed25519"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/sessionkeeper/internal/clock"
	"github.com/dmitrijs2005/sessionkeeper/internal/common"
	"github.com/dmitrijs2005/sessionkeeper/internal/server/models"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	MethodHS256 = "HS256"
	MethodEdDSA = "EdDSA"

	// ClaimsVersion is bumped whenever the claim layout changes.
	ClaimsVersion = 1

	// RefreshTokenBytes is the entropy of a raw refresh token.
	RefreshTokenBytes = 32
)

// Claims — фиксированный набор утверждений access-токена: стандартные
// утверждения JWT плюс версия, имя и роль пользователя.
type Claims struct {
	Version int         `json:"ver"`
	Name    string      `json:"name"`
	Role    models.Role `json:"role"`
	jwt.RegisteredClaims
}

// UserID returns the principal the token was issued to.
func (c *Claims) UserID() string {
	return c.Subject
}

type IssuerConfig struct {
	Method string
	// SecretKey is the HS256 shared secret.
	SecretKey []byte
	// PrivateKey / PublicKey are Ed25519 keys, raw or PEM. A verifier may
	// hold only the public key.
	PrivateKey []byte
	PublicKey  []byte
	Issuer     string
	Audience   string
	AccessTTL  time.Duration
	Leeway     time.Duration
	Clock      clock.Clock
}

type Issuer struct {
	cfg       IssuerConfig
	method    jwt.SigningMethod
	signKey   any
	verifyKey any
	clock     clock.Clock
}

// NewIssuer validates key material once. Every failure wraps
// common.ErrSigningConfiguration and should stop the process.
func NewIssuer(cfg IssuerConfig) (*Issuer, error) {
	if cfg.AccessTTL <= 0 {
		return nil, fmt.Errorf("%w: access ttl must be positive", common.ErrSigningConfiguration)
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}

	i := &Issuer{cfg: cfg, clock: cfg.Clock}

	switch cfg.Method {
	case MethodHS256:
		if len(cfg.SecretKey) == 0 {
			return nil, fmt.Errorf("%w: hs256 requires a secret key", common.ErrSigningConfiguration)
		}
		i.method = jwt.SigningMethodHS256
		i.signKey = cfg.SecretKey
		i.verifyKey = cfg.SecretKey
	case MethodEdDSA:
		i.method = jwt.SigningMethodEdDSA
		if len(cfg.PrivateKey) > 0 {
			priv, err := parseEdPrivateKey(cfg.PrivateKey)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", common.ErrSigningConfiguration, err)
			}
			i.signKey = priv
			i.verifyKey = priv.Public()
		}
		if len(cfg.PublicKey) > 0 {
			pub, err := parseEdPublicKey(cfg.PublicKey)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", common.ErrSigningConfiguration, err)
			}
			i.verifyKey = pub
		}
		if i.verifyKey == nil {
			return nil, fmt.Errorf("%w: ed25519 requires a private or public key", common.ErrSigningConfiguration)
		}
	default:
		return nil, fmt.Errorf("%w: unsupported signing method %q", common.ErrSigningConfiguration, cfg.Method)
	}

	return i, nil
}

// CanSign reports whether the issuer holds signing (not just verification) key material.
func (i *Issuer) CanSign() bool {
	return i.signKey != nil
}

// IssueAccessToken signs a fresh access token for u.
func (i *Issuer) IssueAccessToken(u *models.User) (string, time.Time, error) {
	if i.signKey == nil {
		return "", time.Time{}, fmt.Errorf("%w: no signing key loaded", common.ErrSigningConfiguration)
	}

	now := i.clock.Now()
	expiresAt := now.Add(i.cfg.AccessTTL)

	claims := Claims{
		Version: ClaimsVersion,
		Name:    u.UserName,
		Role:    u.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   u.ID,
			Issuer:    i.cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	if i.cfg.Audience != "" {
		claims.Audience = jwt.ClaimStrings{i.cfg.Audience}
	}

	signed, err := jwt.NewWithClaims(i.method, claims).SignedString(i.signKey)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// IssueRefreshToken returns a new opaque refresh token (256 bits, base64url).
// The raw value must only ever be handed to the client.
func (i *Issuer) IssueRefreshToken() (string, error) {
	b, err := common.RandomBytes(RefreshTokenBytes)
	if err != nil {
		return "", err
	}
	defer common.WipeByteArray(b)
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// ParseAccessToken fully validates token: signature, algorithm, exp,
// iss, aud and claims version. An expired but otherwise valid token yields
// common.ErrTokenExpired; anything else yields common.ErrInvalidToken.
func (i *Issuer) ParseAccessToken(token string) (*Claims, error) {
	options := i.parserOptions()
	options = append(options, jwt.WithExpirationRequired())
	if i.cfg.Issuer != "" {
		options = append(options, jwt.WithIssuer(i.cfg.Issuer))
	}
	if i.cfg.Audience != "" {
		options = append(options, jwt.WithAudience(i.cfg.Audience))
	}
	if i.cfg.Leeway > 0 {
		options = append(options, jwt.WithLeeway(i.cfg.Leeway))
	}

	claims, err := i.parse(token, options)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) && onlyExpired(err) {
			return nil, common.ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", common.ErrInvalidToken, err)
	}
	return claims, nil
}

// ParseAccessTokenAllowExpired checks signature, algorithm, iss, aud and
// version but ignores expiry. Rotation uses it to tie an old access token
// to the refresh token being presented.
func (i *Issuer) ParseAccessTokenAllowExpired(token string) (*Claims, error) {
	options := append(i.parserOptions(), jwt.WithoutClaimsValidation())

	claims, err := i.parse(token, options)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrInvalidToken, err)
	}
	if i.cfg.Issuer != "" && claims.Issuer != i.cfg.Issuer {
		return nil, fmt.Errorf("%w: unexpected issuer", common.ErrInvalidToken)
	}
	if i.cfg.Audience != "" && !hasAudience(claims.Audience, i.cfg.Audience) {
		return nil, fmt.Errorf("%w: unexpected audience", common.ErrInvalidToken)
	}
	return claims, nil
}

func (i *Issuer) parserOptions() []jwt.ParserOption {
	return []jwt.ParserOption{
		jwt.WithValidMethods([]string{i.method.Alg()}),
		jwt.WithTimeFunc(i.clock.Now),
	}
}

func (i *Issuer) parse(token string, options []jwt.ParserOption) (*Claims, error) {
	claims := &Claims{}

	parsed, err := jwt.NewParser(options...).ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return i.verifyKey, nil
	})
	if err != nil {
		return nil, err
	}
	if !parsed.Valid {
		return nil, common.ErrInvalidToken
	}
	if claims.Version != ClaimsVersion {
		return nil, fmt.Errorf("unsupported claims version %d", claims.Version)
	}
	if claims.Subject == "" {
		return nil, errors.New("missing subject")
	}
	return claims, nil
}

// onlyExpired reports whether expiry is the sole validation failure.
func onlyExpired(err error) bool {
	for _, other := range []error{
		jwt.ErrTokenSignatureInvalid,
		jwt.ErrTokenMalformed,
		jwt.ErrTokenUnverifiable,
		jwt.ErrTokenInvalidIssuer,
		jwt.ErrTokenInvalidAudience,
		jwt.ErrTokenNotValidYet,
		jwt.ErrTokenUsedBeforeIssued,
	} {
		if errors.Is(err, other) {
			return false
		}
	}
	return true
}

func hasAudience(aud jwt.ClaimStrings, want string) bool {
	for _, a := range aud {
		if a == want {
			return true
		}
	}
	return false
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
