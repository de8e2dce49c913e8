package passport

import (
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/hkdf"
)

// KeySet manages active signing material and verification lookup, the same
// rotation-without-downtime shape as the reference identity keyset: a
// current key signs, a small ring of recent keys (indexed by "kid") still
// verify.
type KeySet interface {
	SigningMethod() jwt.SigningMethod
	Sign(claims jwt.Claims) (string, error)
	KeyFunc() jwt.Keyfunc
	Rotate() (kid string, err error)
}

// HMACKeySet derives per-rotation HMAC keys from a root secret via HKDF
// (spec §6: "dev" mode uses HS256). Deriving rather than reusing the root
// secret directly bounds the blast radius of a single leaked signing key.
type HMACKeySet struct {
	mu         sync.RWMutex
	rootSecret []byte
	currentKID string
	keys       map[string][]byte
	maxKeys    int
}

// NewHMACKeySet creates an HKDF-derived HMAC key set from rootSecret.
func NewHMACKeySet(rootSecret []byte) (*HMACKeySet, error) {
	ks := &HMACKeySet{
		rootSecret: rootSecret,
		keys:       make(map[string][]byte),
		maxKeys:    8,
	}
	if _, err := ks.Rotate(); err != nil {
		return nil, err
	}
	return ks, nil
}

func (ks *HMACKeySet) SigningMethod() jwt.SigningMethod { return jwt.SigningMethodHS256 }

// Rotate derives a fresh subkey via HKDF-SHA256(rootSecret, salt=kid) and
// makes it the active signing key, evicting the oldest key once maxKeys is
// exceeded.
func (ks *HMACKeySet) Rotate() (string, error) {
	ks.mu.Lock()
	defer ks.mu.Unlock()

	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("passport: keyset salt: %w", err)
	}
	kid := fmt.Sprintf("k-%d", time.Now().UnixNano())

	derived := make([]byte, 32)
	kdf := hkdf.New(sha256.New, ks.rootSecret, salt, []byte("agentgovern/passport/"+kid))
	if _, err := io.ReadFull(kdf, derived); err != nil {
		return "", fmt.Errorf("passport: hkdf derive: %w", err)
	}

	ks.keys[kid] = derived
	ks.currentKID = kid

	if len(ks.keys) > ks.maxKeys {
		for k := range ks.keys {
			if k != kid {
				delete(ks.keys, k)
				break
			}
		}
	}
	return kid, nil
}

func (ks *HMACKeySet) Sign(claims jwt.Claims) (string, error) {
	ks.mu.RLock()
	kid := ks.currentKID
	key := ks.keys[kid]
	ks.mu.RUnlock()

	if key == nil {
		return "", fmt.Errorf("passport: no active signing key")
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	token.Header["kid"] = kid
	return token.SignedString(key)
}

func (ks *HMACKeySet) KeyFunc() jwt.Keyfunc {
	return func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("passport: unexpected signing method %v", token.Header["alg"])
		}
		kid, ok := token.Header["kid"].(string)
		if !ok {
			return nil, fmt.Errorf("passport: missing kid")
		}
		ks.mu.RLock()
		defer ks.mu.RUnlock()
		key, ok := ks.keys[kid]
		if !ok {
			return nil, fmt.Errorf("passport: unknown kid %q", kid)
		}
		return key, nil
	}
}

// DeriveEnvironmentKey derives a read-only verification key scoped to a
// single environment from the current signing key, for distribution to an
// edge gateway that should not hold keys for environments it doesn't serve.
func (ks *HMACKeySet) DeriveEnvironmentKey(env Environment) ([]byte, string, error) {
	ks.mu.RLock()
	kid := ks.currentKID
	key := ks.keys[kid]
	ks.mu.RUnlock()

	if key == nil {
		return nil, "", fmt.Errorf("passport: no active signing key")
	}

	derived := make([]byte, 32)
	kdf := hkdf.New(sha256.New, key, nil, []byte("agentgovern/env/"+string(env)))
	if _, err := io.ReadFull(kdf, derived); err != nil {
		return nil, "", fmt.Errorf("passport: hkdf derive env key: %w", err)
	}
	return derived, kid, nil
}
