package middleware

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"offerwall/pkg/errutil"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const userIDKey = "user_id"

// MinSecretLength is the shortest HS256 signing key accepted.
const MinSecretLength = 32

var (
	errInvalidToken = errors.New("invalid token")

	ErrWeakSecret = fmt.Errorf("jwt secret must be at least %d bytes", MinSecretLength)
)

// CheckSecret reports whether secret is usable as a signing key.
func CheckSecret(secret string) error {
	if len(secret) < MinSecretLength {
		return ErrWeakSecret
	}
	return nil
}

// Auth validates an HS256 bearer token and stores its subject as the caller's
// user id. Token issuance belongs to the identity service.
func Auth(secret, issuer string) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || raw == "" {
			_ = c.Error(errutil.Unauthorized("authorization header missing or malformed", nil))
			c.Abort()
			return
		}

		id, err := ParseToken(secret, issuer, raw)
		if err != nil {
			_ = c.Error(errutil.Unauthorized("invalid or expired token", err))
			c.Abort()
			return
		}

		c.Set(userIDKey, id)
		c.Next()
	}
}

// ParseToken returns the user id carried in the subject claim. A weak secret
// rejects every token.
func ParseToken(secret, issuer, raw string) (snowflake.ID, error) {
	if err := CheckSecret(secret); err != nil {
		return 0, err
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}

	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, opts...)
	if err != nil {
		return 0, err
	}
	if !token.Valid {
		return 0, errInvalidToken
	}

	id, err := snowflake.ParseString(claims.Subject)
	if err != nil || id <= 0 {
		return 0, errInvalidToken
	}
	return id, nil
}

// SignToken mints a token for local tooling and tests.
func SignToken(secret, issuer string, userID snowflake.ID, ttl time.Duration) (string, error) {
	if err := CheckSecret(secret); err != nil {
		return "", err
	}
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   userID.String(),
		Issuer:    issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// UserID returns the authenticated caller set by Auth.
func UserID(c *gin.Context) (snowflake.ID, bool) {
	v, ok := c.Get(userIDKey)
	if !ok {
		return 0, false
	}
	id, ok := v.(snowflake.ID)
	return id, ok
}
