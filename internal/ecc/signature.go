package ecc

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
)

// SignatureSize is the size of a recoverable K1 signature
const SignatureSize = 65

// Signature is a recoverable K1 signature laid out as header || r || s,
// where header = 27 + 4 + recovery id.
type Signature struct {
	data []byte
}

func signatureFromEthereum(sig []byte) Signature {
	data := make([]byte, SignatureSize)
	data[0] = 27 + 4 + sig[64]
	copy(data[1:], sig[:64])
	return Signature{data: data}
}

// SignatureFromBytes creates a signature from its 65 byte form
func SignatureFromBytes(data []byte) (Signature, error) {
	if len(data) != SignatureSize {
		return Signature{}, fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidSignature, SignatureSize, len(data))
	}
	if data[0] < 27 || data[0] > 34 {
		return Signature{}, fmt.Errorf("%w: bad recovery header %d", ErrInvalidSignature, data[0])
	}
	return Signature{data: append([]byte{}, data...)}, nil
}

// ParseSignature parses a SIG_K1_ signature string
func ParseSignature(s string) (Signature, error) {
	rest, ok := strings.CutPrefix(s, "SIG_K1_")
	if !ok {
		return Signature{}, fmt.Errorf("%w: unknown format %q", ErrInvalidSignature, s)
	}
	data, err := decodeK1(rest, SignatureSize)
	if err != nil {
		return Signature{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return SignatureFromBytes(data)
}

// Bytes returns the 65 byte signature
func (s Signature) Bytes() []byte {
	return append([]byte{}, s.data...)
}

// String returns the SIG_K1_ representation of the signature
func (s Signature) String() string {
	return encodeK1("SIG", s.data)
}

// RecoverDigest recovers the public key that produced this signature over digest
func (s Signature) RecoverDigest(digest []byte) (PublicKey, error) {
	if len(s.data) != SignatureSize {
		return PublicKey{}, ErrInvalidSignature
	}
	recID := (s.data[0] - 27) & 3
	sig := make([]byte, SignatureSize)
	copy(sig, s.data[1:])
	sig[64] = recID
	pub, err := crypto.SigToPub(digest, sig)
	if err != nil {
		return PublicKey{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return PublicKey{data: crypto.CompressPubkey(pub)}, nil
}

// VerifyDigest reports whether the signature over digest was made by key
func (s Signature) VerifyDigest(digest []byte, key PublicKey) bool {
	recovered, err := s.RecoverDigest(digest)
	if err != nil {
		return false
	}
	return recovered.Equal(key)
}

// MarshalJSON implements json.Marshaler
func (s Signature) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON implements json.Unmarshaler
func (s *Signature) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	parsed, err := ParseSignature(str)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
