// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package auth

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

// TestKeySet is an RSA key served as a JSON Web Key Set from an httptest server.
// It is used by tests that exercise JWKS-backed token validation.
type TestKeySet struct {
	KeyID    string
	server   *httptest.Server
	key      *rsa.PrivateKey
	requests atomic.Int32
}

// NewTestKeySet generates a key and starts the JWKS server; the server is closed on cleanup.
func NewTestKeySet(t testing.TB, keyID string) *TestKeySet {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	ks := &TestKeySet{KeyID: keyID, key: key}
	ks.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ks.requests.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"keys": []map[string]string{{
				"kty": "RSA",
				"use": "sig",
				"kid": keyID,
				"n":   base64.RawURLEncoding.EncodeToString(key.PublicKey.N.Bytes()),
				"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.PublicKey.E)).Bytes()),
			}},
		})
	}))
	t.Cleanup(ks.server.Close)

	return ks
}

// URL returns the JWKS endpoint.
func (ks *TestKeySet) URL() string {
	return ks.server.URL + "/.well-known/jwks"
}

// Requests returns how many times the key set was downloaded.
func (ks *TestKeySet) Requests() int {
	return int(ks.requests.Load())
}

// Sign mints a token signed with the key set's private key.
func (ks *TestKeySet) Sign(t testing.TB, method jwt.SigningMethod, claims jwt.MapClaims) string {
	t.Helper()

	token := jwt.NewWithClaims(method, claims)
	token.Header["kid"] = ks.KeyID
	signed, err := token.SignedString(ks.key)
	require.NoError(t, err)
	return signed
}
