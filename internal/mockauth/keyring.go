package mockauth

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"fmt"
	"math/big"
	"sync"
)

// KeyRing manages the RSA key pair used to sign access tokens. The
// resource server verifies with the same ring, which is how the two mock
// servers agree on token validity without sharing state.
type KeyRing struct {
	mu        sync.RWMutex
	keys      map[string]*rsa.PrivateKey
	activeKid string
}

// JWK is a single JSON Web Key.
type JWK struct {
	Kty string `json:"kty"`
	Use string `json:"use"`
	Kid string `json:"kid"`
	Alg string `json:"alg"`
	N   string `json:"n"`
	E   string `json:"e"`
}

// JWKS is a JSON Web Key Set.
type JWKS struct {
	Keys []JWK `json:"keys"`
}

// NewKeyRing generates a ring with one 2048-bit RSA key.
func NewKeyRing() (*KeyRing, error) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, fmt.Errorf("failed to generate RSA key: %w", err)
	}
	return &KeyRing{
		keys:      map[string]*rsa.PrivateKey{"key-1": key},
		activeKid: "key-1",
	}, nil
}

// ActiveKey returns the signing key and its ID.
func (kr *KeyRing) ActiveKey() (string, *rsa.PrivateKey) {
	kr.mu.RLock()
	defer kr.mu.RUnlock()
	return kr.activeKid, kr.keys[kr.activeKid]
}

// PublicKey returns the verification key for a key ID.
func (kr *KeyRing) PublicKey(kid string) (*rsa.PublicKey, bool) {
	kr.mu.RLock()
	defer kr.mu.RUnlock()
	key, ok := kr.keys[kid]
	if !ok {
		return nil, false
	}
	return &key.PublicKey, true
}

// ActivePublicKey returns the public half of the active key.
func (kr *KeyRing) ActivePublicKey() *rsa.PublicKey {
	kr.mu.RLock()
	defer kr.mu.RUnlock()
	if key, ok := kr.keys[kr.activeKid]; ok {
		return &key.PublicKey
	}
	return nil
}

// JWKS returns the public keys in JWK Set form.
func (kr *KeyRing) JWKS() *JWKS {
	kr.mu.RLock()
	defer kr.mu.RUnlock()

	set := &JWKS{Keys: make([]JWK, 0, len(kr.keys))}
	for kid, key := range kr.keys {
		set.Keys = append(set.Keys, JWK{
			Kty: "RSA",
			Use: "sig",
			Kid: kid,
			Alg: "RS256",
			N:   base64.RawURLEncoding.EncodeToString(key.N.Bytes()),
			E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.E)).Bytes()),
		})
	}
	return set
}
