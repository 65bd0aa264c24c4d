// Package signing issues and checks capability signatures over file paths,
// so a diff file can be handed out without exposing the filesystem.
package signing

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
)

// DefaultBits is the key size used by GenerateKey callers.
const DefaultBits = 2048

var ErrNoKey = errors.New("no RSA private key found in PEM data")

// Signer signs path strings with an RSA private key (PKCS#1 v1.5, SHA-256).
type Signer struct {
	key *rsa.PrivateKey
}

// Verifier checks signatures made by the matching Signer.
type Verifier struct {
	key *rsa.PublicKey
}

// GenerateKey returns a new PKCS#8 PEM encoded RSA private key.
func GenerateKey(bits int) ([]byte, error) {
	key, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return nil, err
	}
	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return nil, err
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}), nil
}

// ParsePrivateKey reads a PKCS#8 or PKCS#1 PEM private key.
func ParsePrivateKey(data []byte) (*Signer, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, ErrNoKey
	}
	if key, err := x509.ParsePKCS8PrivateKey(block.Bytes); err == nil {
		rsaKey, ok := key.(*rsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("%w: key is %T", ErrNoKey, key)
		}
		return &Signer{key: rsaKey}, nil
	}
	key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoKey, err)
	}
	return &Signer{key: key}, nil
}

// LoadPrivateKey reads the key at path.
func LoadPrivateKey(path string) (*Signer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("could not read signing key: %w", err)
	}
	s, err := ParsePrivateKey(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// Sign returns the base64 (standard alphabet) signature of str.
func (s *Signer) Sign(str string) (string, error) {
	digest := sha256.Sum256([]byte(str))
	sig, err := rsa.SignPKCS1v15(rand.Reader, s.key, crypto.SHA256, digest[:])
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(sig), nil
}

// Verifier returns the verifier for this signer's public key.
func (s *Signer) Verifier() *Verifier {
	return &Verifier{key: &s.key.PublicKey}
}

// Verify reports whether sig is a valid signature of str. Malformed
// signatures are simply invalid.
func (v *Verifier) Verify(str, sig string) bool {
	raw, err := base64.StdEncoding.DecodeString(sig)
	if err != nil {
		return false
	}
	digest := sha256.Sum256([]byte(str))
	return rsa.VerifyPKCS1v15(v.key, crypto.SHA256, digest[:], raw) == nil
}
