package oauth

import (
	"crypto/ecdsa"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"net/url"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// SignDPoP creates a DPoP proof JWT binding the request method and URL to the
// given key. nonce is included when the server has issued one; accessToken,
// when non-empty, is hashed into the "ath" claim for resource-server calls.
func SignDPoP(key *ecdsa.PrivateKey, method, rawURL, nonce, accessToken string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parsing DPoP htu: %w", err)
	}
	u.RawQuery = ""
	u.Fragment = ""

	claims := jwt.MapClaims{
		"jti": uuid.NewString(),
		"htm": method,
		"htu": u.String(),
		"iat": time.Now().Unix(),
	}
	if nonce != "" {
		claims["nonce"] = nonce
	}
	if accessToken != "" {
		sum := sha256.Sum256([]byte(accessToken))
		claims["ath"] = base64.RawURLEncoding.EncodeToString(sum[:])
	}

	tok := jwt.NewWithClaims(jwt.SigningMethodES256, claims)
	tok.Header["typ"] = "dpop+jwt"
	tok.Header["jwk"] = publicJWKMap(key)

	signed, err := tok.SignedString(key)
	if err != nil {
		return "", fmt.Errorf("signing DPoP proof: %w", err)
	}
	return signed, nil
}
