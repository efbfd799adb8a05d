// Package attest signs certainty snapshots so the certificate service can
// check they were produced by this core and are still fresh.
package attest

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"certproof/internal/proof/registry"
	id "certproof/pkg/domain"
	dErrors "certproof/pkg/domain-errors"
)

// Audience of every attestation.
const Audience = "certificate-service"

// Claims is the attestation payload.
type Claims struct {
	SessionID string   `json:"sid"`
	Certainty float64  `json:"cert_coef"`
	Sources   []string `json:"sources"`
	jwt.RegisteredClaims
}

// Signer issues and validates HS256 attestations.
type Signer struct {
	signingKey []byte
	issuer     string
	ttl        time.Duration
}

func NewSigner(signingKey, issuer string, ttl time.Duration) *Signer {
	return &Signer{
		signingKey: []byte(signingKey),
		issuer:     issuer,
		ttl:        ttl,
	}
}

// Sign attests the verified sources and coefficient of snap. The token expires after the signer TTL.
func (s *Signer) Sign(snap registry.Snapshot, sessionID id.SessionID, now time.Time) (string, time.Time, error) {
	verified := snap.Verified()
	sources := make([]string, 0, len(verified))
	for _, t := range verified {
		sources = append(sources, string(t))
	}
	expiresAt := now.Add(s.ttl)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		SessionID: sessionID.String(),
		Certainty: snap.CertaintyCoefficient,
		Sources:   sources,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    s.issuer,
			Subject:   sessionID.String(),
			Audience:  []string{Audience},
			ID:        uuid.NewString(),
		},
	})

	signed, err := token.SignedString(s.signingKey)
	if err != nil {
		return "", time.Time{}, dErrors.Wrap(err, dErrors.CodeInternal, "sign attestation")
	}
	return signed, expiresAt, nil
}

// Verify parses and validates an attestation at time now.
//
// Errors: CodeExpired for an expired token; CodeUnauthorized otherwise.
func (s *Signer) Verify(tokenString string, now time.Time) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return s.signingKey, nil
	},
		jwt.WithTimeFunc(func() time.Time { return now }),
		jwt.WithIssuer(s.issuer),
		jwt.WithAudience(Audience),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, dErrors.New(dErrors.CodeExpired, "attestation has expired")
		}
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid attestation")
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid attestation claims")
	}
	return claims, nil
}
