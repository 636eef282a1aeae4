package ecc

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"fmt"

	"github.com/mr-tron/base58"
	"golang.org/x/crypto/ripemd160" //nolint:staticcheck // EOSIO key checksums are ripemd160
)

var (
	// ErrInvalidKey is returned when a key string or buffer can not be decoded
	ErrInvalidKey = errors.New("invalid key")

	// ErrInvalidSignature is returned when a signature string or buffer can not be decoded
	ErrInvalidSignature = errors.New("invalid signature")

	// ErrChecksumMismatch is returned when the checksum of an encoded value does not match
	ErrChecksumMismatch = errors.New("checksum mismatch")
)

// keyType suffix used in the checksum of PUB_K1_, PVT_K1_ and SIG_K1_ strings.
const k1Suffix = "K1"

func ripemd(data ...[]byte) []byte {
	h := ripemd160.New()
	for _, d := range data {
		h.Write(d)
	}
	return h.Sum(nil)
}

// encodeK1 encodes data in the modern PREFIX_K1_ format.
func encodeK1(prefix string, data []byte) string {
	checksum := ripemd(data, []byte(k1Suffix))[:4]
	return prefix + "_" + k1Suffix + "_" + base58.Encode(append(append([]byte{}, data...), checksum...))
}

// decodeK1 decodes the base58 part of a PREFIX_K1_ string and verifies its checksum.
func decodeK1(encoded string, size int) ([]byte, error) {
	raw, err := base58.Decode(encoded)
	if err != nil {
		return nil, err
	}
	if len(raw) != size+4 {
		return nil, fmt.Errorf("expected %d bytes, got %d", size+4, len(raw))
	}
	data, checksum := raw[:size], raw[size:]
	if !bytes.Equal(ripemd(data, []byte(k1Suffix))[:4], checksum) {
		return nil, ErrChecksumMismatch
	}
	return data, nil
}

// encodeLegacyPublic encodes a compressed public key in the EOS prefixed format.
func encodeLegacyPublic(prefix string, data []byte) string {
	checksum := ripemd(data)[:4]
	return prefix + base58.Encode(append(append([]byte{}, data...), checksum...))
}

func decodeLegacyPublic(encoded string) ([]byte, error) {
	raw, err := base58.Decode(encoded)
	if err != nil {
		return nil, err
	}
	if len(raw) != PublicKeySize+4 {
		return nil, fmt.Errorf("expected %d bytes, got %d", PublicKeySize+4, len(raw))
	}
	data, checksum := raw[:PublicKeySize], raw[PublicKeySize:]
	if !bytes.Equal(ripemd(data)[:4], checksum) {
		return nil, ErrChecksumMismatch
	}
	return data, nil
}

// decodeWIF decodes a legacy wallet import format private key.
func decodeWIF(encoded string) ([]byte, error) {
	raw, err := base58.Decode(encoded)
	if err != nil {
		return nil, err
	}
	if len(raw) != 1+PrivateKeySize+4 || raw[0] != 0x80 {
		return nil, errors.New("not a wif key")
	}
	payload, checksum := raw[:1+PrivateKeySize], raw[1+PrivateKeySize:]
	first := sha256.Sum256(payload)
	second := sha256.Sum256(first[:])
	if !bytes.Equal(second[:4], checksum) {
		return nil, ErrChecksumMismatch
	}
	return payload[1:], nil
}

func encodeWIF(data []byte) string {
	payload := append([]byte{0x80}, data...)
	first := sha256.Sum256(payload)
	second := sha256.Sum256(first[:])
	return base58.Encode(append(payload, second[:4]...))
}
