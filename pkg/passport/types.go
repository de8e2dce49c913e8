// Package passport implements the identity subsystem (spec §4.1): issuance,
// verification, rotation, revocation, and DNA-fingerprint binding for agent
// credentials.
package passport

import "time"

// Tier is an agent's ordered authority tier. T1 is the highest.
type Tier string

const (
	TierT4 Tier = "T4"
	TierT3 Tier = "T3"
	TierT2 Tier = "T2"
	TierT1 Tier = "T1"
)

var tierRank = map[Tier]int{
	TierT4: 1,
	TierT3: 2,
	TierT2: 3,
	TierT1: 4,
}

// Rank returns the tier's ordinal rank, T4=1 .. T1=4, per spec §4.4
// tier_minimum semantics. Unknown tiers rank 0.
func Rank(t Tier) int {
	return tierRank[t]
}

// TierForTrustScore derives the tier from a trust score per spec §3.
func TierForTrustScore(trustScore float64) Tier {
	switch {
	case trustScore >= 0.90:
		return TierT1
	case trustScore >= 0.75:
		return TierT2
	case trustScore >= 0.60:
		return TierT3
	default:
		return TierT4
	}
}

// Environment is a deployment locus an agent's passport may be scoped to.
type Environment string

const (
	EnvCloud      Environment = "cloud"
	EnvEdge       Environment = "edge"
	EnvClient     Environment = "client"
	EnvOnPremise  Environment = "on-premise"
)

// ValidEnvironments is the full closed set of known environments.
var ValidEnvironments = map[Environment]bool{
	EnvCloud:     true,
	EnvEdge:      true,
	EnvClient:    true,
	EnvOnPremise: true,
}

// Gene is a single capability gene considered for the DNA fingerprint.
type Gene struct {
	Name     string  `json:"gene_name"`
	Type     string  `json:"gene_type"`
	Strength float64 `json:"strength"`
}

// DominantThreshold is the strength at or above which a gene is "dominant"
// and contributes to the DNA fingerprint (spec §3).
const DominantThreshold = 0.85

// Claims is the governance claims block carried under the "ag" key of the
// signed token (spec §6 "Token format").
type Claims struct {
	Role                string        `json:"role"`
	Tier                Tier          `json:"tier"`
	TrustScore          float64       `json:"trust_score"`
	AuthorityLimit      float64       `json:"authority_limit"`
	AllowedEnvironments []Environment `json:"allowed_environments"`
	DNAFingerprint      string        `json:"dna_fingerprint"`
}

// AllowsEnvironment reports whether env is in the claims' allowed set.
func (c Claims) AllowsEnvironment(env Environment) bool {
	for _, e := range c.AllowedEnvironments {
		if e == env {
			return true
		}
	}
	return false
}

// Data is the input to Issue: everything needed to mint a passport.
type Data struct {
	AgentID             string
	Role                string
	TrustScore          float64
	AuthorityLimit      float64
	AllowedEnvironments []Environment
	Genes               []Gene
	TTL                 time.Duration
}

// DefaultTTL is the default passport lifetime (spec §3).
const DefaultTTL = 24 * time.Hour

// VerifiedClaims is what Verify returns on success: the governance claims
// plus the registered JWT fields a caller needs (jti, subject, expiry).
type VerifiedClaims struct {
	Claims
	JTI       string
	Subject   string
	IssuedAt  time.Time
	ExpiresAt time.Time
}
