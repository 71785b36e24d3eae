// Package token signs, verifies, and revokes the short-lived access tokens
// that prove identity without a database lookup. Refresh tokens are opaque
// random strings handled by the refreshtokens repository, not here.
package token

import (
	"context"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/voyagerhq/auth-service/internal/common"
	"github.com/voyagerhq/auth-service/internal/server/models"
)

// Claims is the access-token payload. Subject carries the internal numeric
// user id; UserUUID is the external-facing identifier.
type Claims struct {
	UserUUID string `json:"uuid"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// UserID parses the numeric user id out of the subject claim.
func (c *Claims) UserID() (int64, error) {
	return strconv.ParseInt(c.Subject, 10, 64)
}

// Codec issues and verifies HMAC-signed access tokens. The signing algorithm
// is fixed at HS256: verification rejects any token whose alg header
// differs, closing algorithm-confusion attacks.
type Codec struct {
	secret    []byte
	issuer    string
	audience  string
	ttl       time.Duration
	blacklist Blacklist

	// now is swapped out in tests to drive expiry.
	now func() time.Time
}

// NewCodec constructs a Codec. blacklist may be nil when post-logout access
// token revocation is not wanted (tests, tooling).
func NewCodec(secret []byte, issuer, audience string, ttl time.Duration, blacklist Blacklist) *Codec {
	return &Codec{
		secret:    secret,
		issuer:    issuer,
		audience:  audience,
		ttl:       ttl,
		blacklist: blacklist,
		now:       time.Now,
	}
}

// Issue mints a signed token for the user with a fresh random jti. The TTL
// is short (minutes): natural expiry is the primary defense against stolen
// access tokens.
func (c *Codec) Issue(user *models.User) (string, error) {
	now := c.now()
	claims := Claims{
		UserUUID: user.UUID.String(),
		Role:     string(user.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(user.ID, 10),
			Issuer:    c.issuer,
			Audience:  jwt.ClaimStrings{c.audience},
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.ttl)),
		},
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
}

// Verify checks signature, algorithm, issuer, audience, and expiry, then the
// blacklist. Every failure collapses to common.ErrTokenInvalid; callers get
// no hint which check fired.
func (c *Codec) Verify(ctx context.Context, tokenString string) (*Claims, error) {
	claims := &Claims{}

	tok, err := jwt.ParseWithClaims(tokenString, claims,
		func(t *jwt.Token) (interface{}, error) { return c.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(c.issuer),
		jwt.WithAudience(c.audience),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(func() time.Time { return c.now() }),
	)
	if err != nil || !tok.Valid {
		return nil, common.ErrTokenInvalid
	}

	if c.blacklist != nil && c.blacklist.Contains(ctx, claims.ID) {
		return nil, common.ErrTokenInvalid
	}

	return claims, nil
}

// decodeUnverified extracts claims without checking the signature. Good
// enough for blacklisting: the caller already holds the token it wants to
// kill, so authenticity of the jti does not matter.
func decodeUnverified(tokenString string) (*Claims, error) {
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tokenString, claims); err != nil {
		return nil, common.ErrTokenInvalid
	}
	return claims, nil
}
