// Package auth issues and verifies stateless session tokens (HS256 JWTs).
// The server keeps no session table: a correctly signed, unexpired token
// is proof of the user id it carries.
package auth

import (
	"errors"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/timex"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Issuer is the iss claim written into every session token.
const Issuer = "authkeeper"

// Claims holds the standard registered claims plus the user id.
type Claims struct {
	jwt.RegisteredClaims
	UserID string `json:"uid"`
}

// TokenIssuer signs and verifies session tokens with one process-wide key.
type TokenIssuer struct {
	secretKey []byte
	validity  time.Duration
	now       timex.Clock
}

func NewTokenIssuer(secretKey []byte, validity time.Duration) *TokenIssuer {
	return &TokenIssuer{secretKey: secretKey, validity: validity, now: timex.UTCNow}
}

// WithClock returns a copy of the issuer that reads time from now.
func (i *TokenIssuer) WithClock(now timex.Clock) *TokenIssuer {
	c := *i
	c.now = now
	return &c
}

// Validity is the lifetime of freshly issued tokens.
func (i *TokenIssuer) Validity() time.Duration {
	return i.validity
}

// Issue signs a token for userID expiring validity from now.
func (i *TokenIssuer) Issue(userID string) (string, error) {
	if userID == "" {
		return "", errors.New("empty user id")
	}
	issuedAt := i.now()
	return GenerateToken(userID, i.secretKey, issuedAt, issuedAt.Add(i.validity))
}

// Verify returns the user id carried by tokenString. Failures are reported
// as common.ErrTokenExpired, common.ErrTokenSignatureInvalid or
// common.ErrTokenMalformed.
func (i *TokenIssuer) Verify(tokenString string) (string, error) {
	return GetUserIDFromToken(tokenString, i.secretKey, i.now)
}

// GenerateToken builds and signs the JWT.
func GenerateToken(userID string, secretKey []byte, issuedAt, expiresAt time.Time) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    Issuer,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		UserID: userID,
	})

	tokenString, err := token.SignedString(secretKey)
	if err != nil {
		return "", err
	}

	return tokenString, nil
}

func GetUserIDFromToken(tokenString string, secretKey []byte, now timex.Clock) (string, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims,
		func(t *jwt.Token) (interface{}, error) {
			return secretKey, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(now),
	)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return "", common.ErrTokenExpired
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return "", common.ErrTokenSignatureInvalid
		default:
			return "", common.ErrTokenMalformed
		}
	}

	if !token.Valid || claims.UserID == "" {
		return "", common.ErrTokenMalformed
	}

	return claims.UserID, nil
}
