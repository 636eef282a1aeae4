// Package ecc implements secp256k1 keys and signatures in the string formats
// used by EOSIO chains and signing requests.
package ecc

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/sha512"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/crypto/ecies"
)

const (
	// PrivateKeySize is the size of a raw secp256k1 private key
	PrivateKeySize = 32

	// PublicKeySize is the size of a compressed secp256k1 public key
	PublicKeySize = 33
)

// PrivateKey is a K1 private key
type PrivateKey struct {
	key *ecdsa.PrivateKey
}

// GeneratePrivateKey creates a new random K1 private key
func GeneratePrivateKey() (PrivateKey, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return PrivateKey{}, fmt.Errorf("failed to generate key: %w", err)
	}
	return PrivateKey{key: key}, nil
}

// PrivateKeyFromBytes creates a private key from its raw 32 byte representation
func PrivateKeyFromBytes(data []byte) (PrivateKey, error) {
	key, err := crypto.ToECDSA(data)
	if err != nil {
		return PrivateKey{}, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	return PrivateKey{key: key}, nil
}

// ParsePrivateKey parses a PVT_K1_ or legacy WIF private key string
func ParsePrivateKey(s string) (PrivateKey, error) {
	var (
		data []byte
		err  error
	)
	if rest, ok := strings.CutPrefix(s, "PVT_K1_"); ok {
		data, err = decodeK1(rest, PrivateKeySize)
	} else {
		data, err = decodeWIF(s)
	}
	if err != nil {
		return PrivateKey{}, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	return PrivateKeyFromBytes(data)
}

// MustParsePrivateKey is like ParsePrivateKey but panics on error
func MustParsePrivateKey(s string) PrivateKey {
	key, err := ParsePrivateKey(s)
	if err != nil {
		panic(err)
	}
	return key
}

// IsZero reports whether the key is unset
func (k PrivateKey) IsZero() bool {
	return k.key == nil
}

// Bytes returns the raw 32 byte private key
func (k PrivateKey) Bytes() []byte {
	return crypto.FromECDSA(k.key)
}

// PublicKey returns the public key for this private key
func (k PrivateKey) PublicKey() PublicKey {
	return PublicKey{data: crypto.CompressPubkey(&k.key.PublicKey)}
}

// String returns the PVT_K1_ representation of the key
func (k PrivateKey) String() string {
	return encodeK1("PVT", k.Bytes())
}

// WIF returns the legacy wallet import format of the key
func (k PrivateKey) WIF() string {
	return encodeWIF(k.Bytes())
}

// SharedSecret derives the ECDH shared secret with the given public key,
// the SHA512 hash of the shared point's x coordinate.
func (k PrivateKey) SharedSecret(pub PublicKey) ([]byte, error) {
	ecdsaPub, err := pub.ecdsa()
	if err != nil {
		return nil, err
	}
	x, err := ecies.ImportECDSA(k.key).GenerateShared(ecies.ImportECDSAPublic(ecdsaPub), 32, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to derive shared secret: %w", err)
	}
	secret := sha512.Sum512(x)
	return secret[:], nil
}

// SignDigest signs a 32 byte digest
func (k PrivateKey) SignDigest(digest []byte) (Signature, error) {
	sig, err := crypto.Sign(digest, k.key)
	if err != nil {
		return Signature{}, fmt.Errorf("failed to sign digest: %w", err)
	}
	return signatureFromEthereum(sig), nil
}

// MarshalText implements encoding.TextMarshaler
func (k PrivateKey) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (k *PrivateKey) UnmarshalText(text []byte) error {
	parsed, err := ParsePrivateKey(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// PublicKey is a compressed K1 public key
type PublicKey struct {
	data []byte
}

// PublicKeyFromBytes creates a public key from its 33 byte compressed form
func PublicKeyFromBytes(data []byte) (PublicKey, error) {
	if len(data) != PublicKeySize {
		return PublicKey{}, fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidKey, PublicKeySize, len(data))
	}
	if _, err := crypto.DecompressPubkey(data); err != nil {
		return PublicKey{}, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	return PublicKey{data: append([]byte{}, data...)}, nil
}

// ParsePublicKey parses a PUB_K1_ key or a legacy key with an EOS or FIO prefix
func ParsePublicKey(s string) (PublicKey, error) {
	var (
		data []byte
		err  error
	)
	switch {
	case strings.HasPrefix(s, "PUB_K1_"):
		data, err = decodeK1(s[len("PUB_K1_"):], PublicKeySize)
	case strings.HasPrefix(s, "EOS"), strings.HasPrefix(s, "FIO"):
		data, err = decodeLegacyPublic(s[3:])
	default:
		return PublicKey{}, fmt.Errorf("%w: unknown format %q", ErrInvalidKey, s)
	}
	if err != nil {
		return PublicKey{}, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	return PublicKeyFromBytes(data)
}

// MustParsePublicKey is like ParsePublicKey but panics on error
func MustParsePublicKey(s string) PublicKey {
	key, err := ParsePublicKey(s)
	if err != nil {
		panic(err)
	}
	return key
}

// IsZero reports whether the key is unset
func (k PublicKey) IsZero() bool {
	return len(k.data) == 0
}

// Bytes returns the compressed key
func (k PublicKey) Bytes() []byte {
	return append([]byte{}, k.data...)
}

// Equal reports whether both keys are the same point
func (k PublicKey) Equal(other PublicKey) bool {
	return bytes.Equal(k.data, other.data)
}

// String returns the PUB_K1_ representation of the key
func (k PublicKey) String() string {
	if k.IsZero() {
		return ""
	}
	return encodeK1("PUB", k.data)
}

// LegacyString returns the EOS prefixed representation of the key
func (k PublicKey) LegacyString() string {
	return encodeLegacyPublic("EOS", k.data)
}

func (k PublicKey) ecdsa() (*ecdsa.PublicKey, error) {
	pub, err := crypto.DecompressPubkey(k.data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	return pub, nil
}

// MarshalJSON implements json.Marshaler
func (k PublicKey) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

// UnmarshalJSON implements json.Unmarshaler
func (k *PublicKey) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParsePublicKey(s)
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// NormalizePublicKey converts any supported public key string to the PUB_K1_ format
func NormalizePublicKey(s string) (string, error) {
	key, err := ParsePublicKey(s)
	if err != nil {
		return "", err
	}
	return key.String(), nil
}

// PublicKeysEqual reports whether two public key strings, possibly in
// different formats, denote the same key.
func PublicKeysEqual(a, b string) bool {
	ka, err := ParsePublicKey(a)
	if err != nil {
		return false
	}
	kb, err := ParsePublicKey(b)
	if err != nil {
		return false
	}
	return ka.Equal(kb)
}
