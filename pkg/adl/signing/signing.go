// Package signing gates document execution on a detached JWS signature.
//
// The gate fails closed: a missing verifier, a missing signature or any
// verification failure rejects the document. Skipping verification requires
// the explicit Insecure verifier.
package signing

import (
	"context"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"strings"

	jose "github.com/go-jose/go-jose/v4"
)

var (
	// ErrRejected is returned by Gate for every document it refuses.
	ErrRejected = errors.New("document signature rejected")

	// ErrNoSignature indicates an empty signature.
	ErrNoSignature = errors.New("no signature")

	// ErrNoVerifier indicates the gate was given no verifier.
	ErrNoVerifier = errors.New("no verifier configured")

	// ErrUnsupportedKey indicates a key type with no matching algorithm.
	ErrUnsupportedKey = errors.New("unsupported key")
)

// Verifier checks a detached signature over document bytes.
type Verifier interface {
	Verify(ctx context.Context, document, signature []byte) error
}

// Gate verifies signature over document with v and wraps every failure in
// ErrRejected.
func Gate(ctx context.Context, v Verifier, document, signature []byte) error {
	if v == nil {
		return fmt.Errorf("%w: %w", ErrRejected, ErrNoVerifier)
	}
	if _, insecure := v.(Insecure); !insecure && len(strings.TrimSpace(string(signature))) == 0 {
		return fmt.Errorf("%w: %w", ErrRejected, ErrNoSignature)
	}
	if err := v.Verify(ctx, document, signature); err != nil {
		return fmt.Errorf("%w: %w", ErrRejected, err)
	}
	return nil
}

// Insecure accepts every document. It must be selected explicitly.
type Insecure struct{}

// Verify implements Verifier.
func (Insecure) Verify(context.Context, []byte, []byte) error {
	return nil
}

// JWSVerifier verifies detached JWS compact serializations.
type JWSVerifier struct {
	key  any
	algs []jose.SignatureAlgorithm
}

// NewJWSVerifier creates a verifier for key. With no algs, the algorithm is
// chosen from the key type: Ed25519 uses EdDSA, P-256 uses ES256 and a byte
// slice uses HS256.
func NewJWSVerifier(key any, algs ...jose.SignatureAlgorithm) (*JWSVerifier, error) {
	if len(algs) == 0 {
		alg, err := algorithmFor(key)
		if err != nil {
			return nil, err
		}
		algs = []jose.SignatureAlgorithm{alg}
	}
	return &JWSVerifier{key: publicKey(key), algs: algs}, nil
}

// Verify implements Verifier.
func (v *JWSVerifier) Verify(_ context.Context, document, signature []byte) error {
	jws, err := jose.ParseDetached(strings.TrimSpace(string(signature)), document, v.algs)
	if err != nil {
		return fmt.Errorf("parse signature: %w", err)
	}
	if _, err := jws.Verify(v.key); err != nil {
		return fmt.Errorf("verify signature: %w", err)
	}
	return nil
}

// Sign returns the detached JWS compact serialization of document signed
// with key.
func Sign(alg jose.SignatureAlgorithm, key any, document []byte) ([]byte, error) {
	signer, err := jose.NewSigner(jose.SigningKey{Algorithm: alg, Key: key}, nil)
	if err != nil {
		return nil, fmt.Errorf("create signer: %w", err)
	}
	jws, err := signer.Sign(document)
	if err != nil {
		return nil, fmt.Errorf("sign: %w", err)
	}
	compact, err := jws.DetachedCompactSerialize()
	if err != nil {
		return nil, fmt.Errorf("serialize: %w", err)
	}
	return []byte(compact), nil
}

// LoadVerifier builds a JWSVerifier from a key file holding either a JWK
// (JSON) or a PEM-encoded public key.
func LoadVerifier(path string) (*JWSVerifier, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read key %s: %w", path, err)
	}
	return ParseVerifier(data)
}

// ParseVerifier is LoadVerifier over key bytes.
func ParseVerifier(data []byte) (*JWSVerifier, error) {
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "{") {
		var jwk jose.JSONWebKey
		if err := json.Unmarshal([]byte(trimmed), &jwk); err != nil {
			return nil, fmt.Errorf("parse jwk: %w", err)
		}
		if jwk.Algorithm != "" {
			return NewJWSVerifier(jwk.Key, jose.SignatureAlgorithm(jwk.Algorithm))
		}
		return NewJWSVerifier(jwk.Key)
	}

	block, _ := pem.Decode([]byte(trimmed))
	if block == nil {
		return nil, fmt.Errorf("%w: key is neither a JWK nor PEM", ErrUnsupportedKey)
	}
	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse public key: %w", err)
	}
	return NewJWSVerifier(pub)
}

func algorithmFor(key any) (jose.SignatureAlgorithm, error) {
	switch k := key.(type) {
	case ed25519.PublicKey, ed25519.PrivateKey:
		return jose.EdDSA, nil
	case *ecdsa.PublicKey:
		return ecdsaAlgorithm(k)
	case *ecdsa.PrivateKey:
		return ecdsaAlgorithm(&k.PublicKey)
	case []byte:
		return jose.HS256, nil
	default:
		return "", fmt.Errorf("%w: %T", ErrUnsupportedKey, key)
	}
}

func ecdsaAlgorithm(k *ecdsa.PublicKey) (jose.SignatureAlgorithm, error) {
	if k.Curve.Params().Name != "P-256" {
		return "", fmt.Errorf("%w: curve %s", ErrUnsupportedKey, k.Curve.Params().Name)
	}
	return jose.ES256, nil
}

// publicKey reduces private keys to their public half.
func publicKey(key any) any {
	switch k := key.(type) {
	case ed25519.PrivateKey:
		return k.Public()
	case *ecdsa.PrivateKey:
		return &k.PublicKey
	default:
		return key
	}
}
