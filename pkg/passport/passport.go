package passport

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// RevocationChecker is the minimal view of the revocation registry (C2)
// that Verify needs: a snapshot-consistent membership test, no I/O.
type RevocationChecker interface {
	Contains(jti string) bool
}

// tokenClaims is the wire shape signed into the JWT, combining standard
// registered claims with the governance claims block under "ag" (spec §6).
type tokenClaims struct {
	jwt.RegisteredClaims
	Governance Claims `json:"ag"`
}

// Service is the Passport Service (C1): mint, verify, rotate, revoke, and
// DNA fingerprinting. It holds only a KeySet and a pointer to the locally
// held revocation snapshot — no other state, per spec §4.1.
type Service struct {
	keys       KeySet
	revocation RevocationChecker
	issuer     string
	clock      func() time.Time
}

// NewService constructs a passport Service. revocation may be nil for an
// issuer-only instance (the control plane composes with the live registry;
// a gateway composes with its locally synced snapshot).
func NewService(keys KeySet, revocation RevocationChecker) *Service {
	return &Service{
		keys:       keys,
		revocation: revocation,
		issuer:     "agentgovern/passport",
		clock:      time.Now,
	}
}

// WithClock overrides the clock for deterministic tests.
func (s *Service) WithClock(clock func() time.Time) *Service {
	s.clock = clock
	return s
}

// Issue mints a signed passport for the given data, embedding the claims
// block of spec §3. It never touches the revocation set.
func (s *Service) Issue(data Data) (string, error) {
	for _, env := range data.AllowedEnvironments {
		if !ValidEnvironments[env] {
			return "", fmt.Errorf("%w: unknown environment %q", ErrInvalidConfig, env)
		}
	}
	if len(data.AllowedEnvironments) == 0 {
		return "", fmt.Errorf("%w: allowed_environments must be non-empty", ErrInvalidConfig)
	}

	ttl := data.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if ttl <= 0 {
		return "", fmt.Errorf("%w: exp must be after iat", ErrInvalidConfig)
	}

	now := s.clock().UTC()
	jti := uuid.NewString()

	claims := tokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Subject:   data.AgentID,
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Governance: Claims{
			Role:                data.Role,
			Tier:                TierForTrustScore(data.TrustScore),
			TrustScore:          data.TrustScore,
			AuthorityLimit:      data.AuthorityLimit,
			AllowedEnvironments: data.AllowedEnvironments,
			DNAFingerprint:      ComputeDNAFingerprint(data.Genes),
		},
	}

	return s.keys.Sign(claims)
}

// Verify checks signature, expiry, and revocation (spec §4.1). No network
// I/O: revocation is checked against the locally held snapshot only.
func (s *Service) Verify(token string) (*VerifiedClaims, error) {
	parsed, err := jwt.ParseWithClaims(token, &tokenClaims{}, s.keys.KeyFunc())
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrExpired
		case errors.Is(err, jwt.ErrTokenSignatureInvalid),
			errors.Is(err, jwt.ErrSignatureInvalid),
			errors.Is(err, jwt.ErrTokenUnverifiable):
			return nil, ErrBadSignature
		default:
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
	}

	claims, ok := parsed.Claims.(*tokenClaims)
	if !ok || !parsed.Valid {
		return nil, ErrMalformed
	}

	if s.revocation != nil && s.revocation.Contains(claims.ID) {
		return nil, ErrRevoked
	}

	var issuedAt, expiresAt time.Time
	if claims.IssuedAt != nil {
		issuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		expiresAt = claims.ExpiresAt.Time
	}

	return &VerifiedClaims{
		Claims:    claims.Governance,
		JTI:       claims.ID,
		Subject:   claims.Subject,
		IssuedAt:  issuedAt,
		ExpiresAt: expiresAt,
	}, nil
}

// Revoker is the minimal write surface onto the revocation registry that
// Rotate needs.
type Revoker interface {
	Add(jti string)
}

// Rotate decodes old_token (even if expired), revokes its jti, and issues a
// replacement passport. The new token is returned only after the old jti
// has been revoked, so the operation is atomic from the caller's
// perspective (spec §4.1).
func (s *Service) Rotate(oldToken string, revoker Revoker, newData Data) (string, error) {
	oldJTI, err := s.decodeJTIIgnoringExpiry(oldToken)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	revoker.Add(oldJTI)

	return s.Issue(newData)
}

func (s *Service) decodeJTIIgnoringExpiry(token string) (string, error) {
	parser := jwt.NewParser(jwt.WithoutClaimsValidation())
	parsed, _, err := parser.ParseUnverified(token, &tokenClaims{})
	if err != nil {
		return "", err
	}
	claims, ok := parsed.Claims.(*tokenClaims)
	if !ok || claims.ID == "" {
		return "", fmt.Errorf("missing jti")
	}
	return claims.ID, nil
}
