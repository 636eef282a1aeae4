// Package seal encrypts payloads between two K1 keys using an ECDH derived
// AES-256-CBC key, the format link channels expect.
package seal

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/layer-3/esrlink/internal/ecc"
)

// ErrMalformed is returned when a sealed message can not be decoded
var ErrMalformed = errors.New("malformed sealed message")

// Message is an encrypted payload together with what the recipient
// needs to derive the decryption key.
type Message struct {
	From       ecc.PublicKey
	Nonce      uint64
	Ciphertext []byte
	Checksum   uint32
}

// Seal encrypts plaintext from sk to pk. A random nonce is drawn when nonce is nil.
func Seal(plaintext []byte, sk ecc.PrivateKey, pk ecc.PublicKey, nonce *uint64) (Message, error) {
	var n uint64
	if nonce != nil {
		n = *nonce
	} else {
		var buf [8]byte
		if _, err := rand.Read(buf[:]); err != nil {
			return Message{}, fmt.Errorf("failed to generate nonce: %w", err)
		}
		n = binary.LittleEndian.Uint64(buf[:])
	}

	key, err := deriveKey(sk, pk, n)
	if err != nil {
		return Message{}, err
	}

	block, err := aes.NewCipher(key[:32])
	if err != nil {
		return Message{}, fmt.Errorf("failed to create cipher: %w", err)
	}
	padded := pad(plaintext, aes.BlockSize)
	ciphertext := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, key[32:48]).CryptBlocks(ciphertext, padded)

	return Message{
		From:       sk.PublicKey(),
		Nonce:      n,
		Ciphertext: ciphertext,
		Checksum:   checksum(key),
	}, nil
}

// Open decrypts a message addressed to sk.
func Open(msg Message, sk ecc.PrivateKey) ([]byte, error) {
	key, err := deriveKey(sk, msg.From, msg.Nonce)
	if err != nil {
		return nil, err
	}
	if checksum(key) != msg.Checksum {
		return nil, fmt.Errorf("%w: checksum mismatch", ErrMalformed)
	}
	if len(msg.Ciphertext) == 0 || len(msg.Ciphertext)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("%w: bad ciphertext length", ErrMalformed)
	}

	block, err := aes.NewCipher(key[:32])
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	plaintext := make([]byte, len(msg.Ciphertext))
	cipher.NewCBCDecrypter(block, key[32:48]).CryptBlocks(plaintext, msg.Ciphertext)
	return unpad(plaintext, aes.BlockSize)
}

// deriveKey returns SHA512(LE64(nonce) || sharedSecret).
func deriveKey(sk ecc.PrivateKey, pk ecc.PublicKey, nonce uint64) ([]byte, error) {
	secret, err := sk.SharedSecret(pk)
	if err != nil {
		return nil, err
	}
	h := sha512.New()
	_ = binary.Write(h, binary.LittleEndian, nonce)
	h.Write(secret)
	return h.Sum(nil), nil
}

func checksum(key []byte) uint32 {
	sum := sha256.Sum256(key)
	return binary.LittleEndian.Uint32(sum[:4])
}

func pad(data []byte, size int) []byte {
	n := size - len(data)%size
	return append(append([]byte{}, data...), bytes.Repeat([]byte{byte(n)}, n)...)
}

func unpad(data []byte, size int) ([]byte, error) {
	n := int(data[len(data)-1])
	if n == 0 || n > size || n > len(data) {
		return nil, fmt.Errorf("%w: bad padding", ErrMalformed)
	}
	for _, b := range data[len(data)-n:] {
		if int(b) != n {
			return nil, fmt.Errorf("%w: bad padding", ErrMalformed)
		}
	}
	return data[:len(data)-n], nil
}
