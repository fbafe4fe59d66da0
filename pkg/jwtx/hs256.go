package jwtx

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrInvalidToken reports a token that failed to parse or whose
	// signature did not verify.
	ErrInvalidToken = errors.New("jwtx: invalid token")

	// ErrExpired reports a structurally valid token past its exp claim.
	ErrExpired = errors.New("jwtx: token expired")

	// ErrIssuer reports an unexpected iss claim.
	ErrIssuer = errors.New("jwtx: unexpected issuer")
)

// Signer mints HS256 tokens with a shared secret. The access and refresh
// paths each hold their own Signer with a distinct secret.
type Signer struct {
	Secret []byte
	Issuer string
}

// Sign serializes and signs the claims.
func (s Signer) Sign(c Claims) (string, error) {
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	return tok.SignedString(s.Secret)
}

// Verifier validates HS256 tokens minted by the matching Signer.
type Verifier struct {
	Secret []byte
	Issuer string
}

// Verify parses raw, checks the signature, expiry and issuer, and returns
// the claims.
func (v Verifier) Verify(raw string) (Claims, error) {
	var claims Claims
	tok, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return v.Secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Claims{}, ErrExpired
		}
		return Claims{}, ErrInvalidToken
	}
	if !tok.Valid {
		return Claims{}, ErrInvalidToken
	}
	if v.Issuer != "" && claims.Issuer != v.Issuer {
		return Claims{}, ErrIssuer
	}
	return claims, nil
}

// ExpiryUnverified extracts the exp claim without validating the signature.
// Revocation needs the expiry of tokens it is about to blacklist even when
// they were signed with the other secret.
func ExpiryUnverified(raw string) (time.Time, error) {
	var claims Claims
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(raw, &claims); err != nil {
		return time.Time{}, ErrInvalidToken
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, ErrInvalidToken
	}
	return claims.ExpiresAt.Time, nil
}
