package services

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"go.pilab.hu/accord/domain"
)

// TokenSigner mints structured, signed token ids. The resulting id is well
// past the hash threshold, so the token store keys it by content hash while
// the caller keeps the signed form. Signing is HS256 with a process-wide
// secret; the id stays opaque to validation, which goes through the store,
// not the signature.
type TokenSigner struct {
	key    []byte
	issuer string
}

// NewTokenSigner creates a signer from the configured secret and issuer.
func NewTokenSigner(secret, issuer string) *TokenSigner {
	return &TokenSigner{
		key:    []byte(secret),
		issuer: issuer,
	}
}

// MintTokenID builds a signed id for the token. The token's scope and
// expiry must already be populated.
func (s *TokenSigner) MintTokenID(t *domain.Token) (string, error) {
	aud := t.ProjectID
	if aud == "" {
		aud = t.DomainID
	}
	claims := jwt.MapClaims{
		"iss": s.issuer,
		"sub": t.UserID,
		"exp": jwt.NewNumericDate(t.ExpiresAt).Unix(),
		"iat": jwt.NewNumericDate(t.IssuedAt).Unix(),
		"jti": uuid.NewString(),
	}
	if aud != "" {
		claims["aud"] = jwt.ClaimStrings{aud}
	}
	if len(t.Roles) > 0 {
		claims["roles"] = t.Roles
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
	if err != nil {
		return "", fmt.Errorf("cannot sign token id: %w", err)
	}
	return signed, nil
}

// Verify parses a signed token id and returns its registered claims. Used
// by operational tooling; the validation path never needs it.
func (s *TokenSigner) Verify(id string) (jwt.MapClaims, error) {
	parsed, err := jwt.Parse(id, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return s.key, nil
	}, jwt.WithExpirationRequired(), jwt.WithLeeway(time.Second))
	if err != nil {
		return nil, fmt.Errorf("invalid token id: %w", err)
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("unexpected claims type")
	}
	return claims, nil
}
