// Package cryptoenvelope implements the RSA envelope shared by the hub and
// every prover node: OAEP-SHA256 for request/response confidentiality and
// PSS-SHA256 for task-dispatch signatures, with ciphertext and signatures
// always framed as base85 text on the wire.
package cryptoenvelope

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/ascii85"
	"encoding/hex"
	"encoding/pem"
	"errors"
	"fmt"
)

// ErrDecryptionFailed is returned for every decrypt failure — malformed
// base85, OAEP failure, or an empty plaintext. Callers must not attempt to
// distinguish these cases; doing so would create a decryption oracle.
var ErrDecryptionFailed = errors.New("cryptoenvelope: decryption failed")

// Envelope wraps one RSA key pair and exposes the encrypt/decrypt/sign/verify
// surface spec.md §4.1 requires. A zero-value Envelope is not usable; build
// one with NewEnvelope or LoadEnvelope.
type Envelope struct {
	priv *rsa.PrivateKey
	pub  *rsa.PublicKey
}

// NewEnvelope builds an envelope from already-parsed keys. Either key may be
// nil if the caller only needs one direction (e.g. a node's session envelope
// only ever verifies, never signs).
func NewEnvelope(priv *rsa.PrivateKey, pub *rsa.PublicKey) *Envelope {
	return &Envelope{priv: priv, pub: pub}
}

// LoadEnvelope reads a PEM-encoded PKCS#1 private key and/or PKIX public key
// from disk and builds an Envelope. Either path may be empty to build a
// one-directional envelope.
func LoadEnvelope(privPath, pubPath string) (*Envelope, error) {
	var priv *rsa.PrivateKey
	var pub *rsa.PublicKey
	var err error

	if privPath != "" {
		priv, err = readPrivateKey(privPath)
		if err != nil {
			return nil, err
		}
	}
	if pubPath != "" {
		pub, err = readPublicKey(pubPath)
		if err != nil {
			return nil, err
		}
	}
	return &Envelope{priv: priv, pub: pub}, nil
}

func readPrivateKey(path string) (*rsa.PrivateKey, error) {
	raw, err := readPEMFile(path)
	if err != nil {
		return nil, fmt.Errorf("cryptoenvelope: read private key %s: %w", path, err)
	}
	block, _ := pem.Decode(raw)
	if block == nil {
		return nil, fmt.Errorf("cryptoenvelope: no PEM block in %s", path)
	}
	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	keyAny, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("cryptoenvelope: parse private key %s: %w", path, err)
	}
	rsaKey, ok := keyAny.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("cryptoenvelope: %s is not an RSA private key", path)
	}
	return rsaKey, nil
}

func readPublicKey(path string) (*rsa.PublicKey, error) {
	raw, err := readPEMFile(path)
	if err != nil {
		return nil, fmt.Errorf("cryptoenvelope: read public key %s: %w", path, err)
	}
	block, _ := pem.Decode(raw)
	if block == nil {
		return nil, fmt.Errorf("cryptoenvelope: no PEM block in %s", path)
	}
	keyAny, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("cryptoenvelope: parse public key %s: %w", path, err)
	}
	rsaKey, ok := keyAny.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("cryptoenvelope: %s is not an RSA public key", path)
	}
	return rsaKey, nil
}

// readPEMFile is split out so tests can stub key loading without touching disk.
var readPEMFile = defaultReadPEMFile

// Encrypt OAEP-SHA256-encrypts plain under the envelope's public key and
// returns the ciphertext framed as base85 text.
func (e *Envelope) Encrypt(plain []byte) (string, error) {
	if e.pub == nil {
		return "", fmt.Errorf("cryptoenvelope: no public key loaded")
	}
	cipher, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, e.pub, plain, nil)
	if err != nil {
		return "", fmt.Errorf("cryptoenvelope: encrypt: %w", err)
	}
	return toBase85(cipher), nil
}

// Decrypt reverses Encrypt. Every failure mode — malformed base85, OAEP
// failure, or a successfully-decrypted-but-empty plaintext — collapses to
// ErrDecryptionFailed so callers can't distinguish "wrong key" from
// "garbage input" (spec.md §4.1's no-oracle requirement).
func (e *Envelope) Decrypt(cipherText string) ([]byte, error) {
	if e.priv == nil {
		return nil, fmt.Errorf("cryptoenvelope: no private key loaded")
	}
	cipher, err := fromBase85(cipherText)
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	plain, err := rsa.DecryptOAEP(sha256.New(), rand.Reader, e.priv, cipher, nil)
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	if len(plain) == 0 {
		return nil, ErrDecryptionFailed
	}
	return plain, nil
}

// Sign PSS-SHA256-signs msg under the envelope's private key with
// salt length set to the maximum the modulus allows, and frames the
// signature as base85 text.
func (e *Envelope) Sign(msg []byte) (string, error) {
	if e.priv == nil {
		return "", fmt.Errorf("cryptoenvelope: no private key loaded")
	}
	digest := sha256.Sum256(msg)
	sig, err := rsa.SignPSS(rand.Reader, e.priv, crypto.SHA256, digest[:], &rsa.PSSOptions{
		SaltLength: rsa.PSSSaltLengthAuto,
		Hash:       crypto.SHA256,
	})
	if err != nil {
		return "", fmt.Errorf("cryptoenvelope: sign: %w", err)
	}
	return toBase85(sig), nil
}

// Verify checks a PSS-SHA256 signature against msg. It never returns an
// error; any failure — malformed base85, wrong key, tampered message —
// collapses to false.
func (e *Envelope) Verify(msg []byte, sigText string) bool {
	if e.pub == nil {
		return false
	}
	sig, err := fromBase85(sigText)
	if err != nil {
		return false
	}
	digest := sha256.Sum256(msg)
	err = rsa.VerifyPSS(e.pub, crypto.SHA256, digest[:], sig, &rsa.PSSOptions{
		SaltLength: rsa.PSSSaltLengthAuto,
		Hash:       crypto.SHA256,
	})
	return err == nil
}

// Fingerprint returns the hex SHA-256 digest of the DER-encoded public key,
// returned by the node's GET /public_key and RPC GetPublicKey.
func (e *Envelope) Fingerprint() (string, error) {
	if e.pub == nil {
		return "", fmt.Errorf("cryptoenvelope: no public key loaded")
	}
	der, err := x509.MarshalPKIXPublicKey(e.pub)
	if err != nil {
		return "", fmt.Errorf("cryptoenvelope: marshal public key: %w", err)
	}
	sum := sha256.Sum256(der)
	return hex.EncodeToString(sum[:]), nil
}

func toBase85(raw []byte) string {
	buf := make([]byte, ascii85.MaxEncodedLen(len(raw)))
	n := ascii85.Encode(buf, raw)
	return string(buf[:n])
}

func fromBase85(text string) ([]byte, error) {
	buf := make([]byte, len(text))
	n, _, err := ascii85.Decode(buf, []byte(text), true)
	if err != nil {
		return nil, err
	}
	return buf[:n], nil
}
