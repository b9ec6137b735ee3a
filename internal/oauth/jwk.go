package oauth

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
)

// jwk is the minimal JSON Web Key shape needed for ES256 DPoP keys.
type jwk struct {
	Kty string `json:"kty"`
	Crv string `json:"crv"`
	X   string `json:"x"`
	Y   string `json:"y"`
	D   string `json:"d,omitempty"`
}

// GenerateDPoPKey creates a fresh P-256 key for DPoP proof signing. A new key
// is generated per authorization flow and persisted alongside the grant.
func GenerateDPoPKey() (*ecdsa.PrivateKey, error) {
	return ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
}

// MarshalJWK serializes a private key as a JWK JSON string for storage.
func MarshalJWK(key *ecdsa.PrivateKey) (string, error) {
	j := jwk{
		Kty: "EC",
		Crv: "P-256",
		X:   base64.RawURLEncoding.EncodeToString(key.X.FillBytes(make([]byte, 32))),
		Y:   base64.RawURLEncoding.EncodeToString(key.Y.FillBytes(make([]byte, 32))),
		D:   base64.RawURLEncoding.EncodeToString(key.D.FillBytes(make([]byte, 32))),
	}
	b, err := json.Marshal(j)
	if err != nil {
		return "", fmt.Errorf("marshaling JWK: %w", err)
	}
	return string(b), nil
}

// parseJWK deserializes a private key stored by MarshalJWK.
func parseJWK(s string) (*ecdsa.PrivateKey, error) {
	var j jwk
	if err := json.Unmarshal([]byte(s), &j); err != nil {
		return nil, fmt.Errorf("unmarshaling JWK: %w", err)
	}
	if j.Kty != "EC" || j.Crv != "P-256" || j.D == "" {
		return nil, fmt.Errorf("unsupported JWK: kty=%q crv=%q", j.Kty, j.Crv)
	}

	x, err := base64.RawURLEncoding.DecodeString(j.X)
	if err != nil {
		return nil, fmt.Errorf("decoding JWK x: %w", err)
	}
	y, err := base64.RawURLEncoding.DecodeString(j.Y)
	if err != nil {
		return nil, fmt.Errorf("decoding JWK y: %w", err)
	}
	d, err := base64.RawURLEncoding.DecodeString(j.D)
	if err != nil {
		return nil, fmt.Errorf("decoding JWK d: %w", err)
	}

	key := &ecdsa.PrivateKey{
		PublicKey: ecdsa.PublicKey{
			Curve: elliptic.P256(),
			X:     new(big.Int).SetBytes(x),
			Y:     new(big.Int).SetBytes(y),
		},
		D: new(big.Int).SetBytes(d),
	}
	return key, nil
}

// publicJWKMap returns the public portion of the key for embedding in a DPoP
// proof header.
func publicJWKMap(key *ecdsa.PrivateKey) map[string]string {
	return map[string]string{
		"kty": "EC",
		"crv": "P-256",
		"x":   base64.RawURLEncoding.EncodeToString(key.X.FillBytes(make([]byte, 32))),
		"y":   base64.RawURLEncoding.EncodeToString(key.Y.FillBytes(make([]byte, 32))),
	}
}
