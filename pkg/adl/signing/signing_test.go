package signing

import (
	"context"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"

	jose "github.com/go-jose/go-jose/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var document = []byte("version: \"0.5\"\nrun:\n  workflow: main\n")

func TestJWSVerifier_Algorithms(t *testing.T) {
	_, edKey, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	ecKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	tests := []struct {
		name string
		alg  jose.SignatureAlgorithm
		key  any
	}{
		{"EdDSA", jose.EdDSA, edKey},
		{"ES256", jose.ES256, ecKey},
		{"HS256", jose.HS256, []byte("0123456789abcdef0123456789abcdef")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sig, err := Sign(tt.alg, tt.key, document)
			require.NoError(t, err)

			v, err := NewJWSVerifier(tt.key)
			require.NoError(t, err)

			assert.NoError(t, Gate(context.Background(), v, document, sig))

			tampered := append([]byte{}, document...)
			tampered[0] = 'V'
			assert.ErrorIs(t, Gate(context.Background(), v, tampered, sig), ErrRejected)
		})
	}
}

func TestGate_FailsClosed(t *testing.T) {
	_, key, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	v, err := NewJWSVerifier(key)
	require.NoError(t, err)

	t.Run("no verifier", func(t *testing.T) {
		err := Gate(context.Background(), nil, document, []byte("sig"))
		assert.ErrorIs(t, err, ErrRejected)
		assert.ErrorIs(t, err, ErrNoVerifier)
	})

	t.Run("no signature", func(t *testing.T) {
		err := Gate(context.Background(), v, document, nil)
		assert.ErrorIs(t, err, ErrRejected)
		assert.ErrorIs(t, err, ErrNoSignature)
	})

	t.Run("garbage signature", func(t *testing.T) {
		assert.ErrorIs(t, Gate(context.Background(), v, document, []byte("not-a-jws")), ErrRejected)
	})

	t.Run("wrong key", func(t *testing.T) {
		_, other, err := ed25519.GenerateKey(rand.Reader)
		require.NoError(t, err)
		sig, err := Sign(jose.EdDSA, other, document)
		require.NoError(t, err)
		assert.ErrorIs(t, Gate(context.Background(), v, document, sig), ErrRejected)
	})

	t.Run("algorithm not allowed", func(t *testing.T) {
		sig, err := Sign(jose.HS256, []byte("0123456789abcdef0123456789abcdef"), document)
		require.NoError(t, err)
		assert.ErrorIs(t, Gate(context.Background(), v, document, sig), ErrRejected)
	})
}

func TestGate_Insecure(t *testing.T) {
	assert.NoError(t, Gate(context.Background(), Insecure{}, document, nil))
}

func TestNewJWSVerifier_UnsupportedKey(t *testing.T) {
	_, err := NewJWSVerifier("secret")
	assert.ErrorIs(t, err, ErrUnsupportedKey)

	p384, err := ecdsa.GenerateKey(elliptic.P384(), rand.Reader)
	require.NoError(t, err)
	_, err = NewJWSVerifier(p384)
	assert.ErrorIs(t, err, ErrUnsupportedKey)
}

func TestLoadVerifier_PEM(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	der, err := x509.MarshalPKIXPublicKey(pub)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "key.pem")
	require.NoError(t, os.WriteFile(path, pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}), 0o600))

	v, err := LoadVerifier(path)
	require.NoError(t, err)

	sig, err := Sign(jose.EdDSA, priv, document)
	require.NoError(t, err)
	assert.NoError(t, v.Verify(context.Background(), document, sig))
}

func TestParseVerifier_JWK(t *testing.T) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	data, err := json.Marshal(jose.JSONWebKey{Key: &key.PublicKey, Algorithm: string(jose.ES256), Use: "sig"})
	require.NoError(t, err)

	v, err := ParseVerifier(data)
	require.NoError(t, err)

	sig, err := Sign(jose.ES256, key, document)
	require.NoError(t, err)
	assert.NoError(t, v.Verify(context.Background(), document, sig))
}

func TestParseVerifier_Garbage(t *testing.T) {
	_, err := ParseVerifier([]byte("hello"))
	assert.ErrorIs(t, err, ErrUnsupportedKey)

	_, err = LoadVerifier(filepath.Join(t.TempDir(), "missing.pem"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
