package seal

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/layer-3/esrlink/internal/ecc"
)

// keyTypeK1 is the variant index of a K1 key in the binary public_key type.
const keyTypeK1 = 0

// MarshalBinary encodes the message as the sealed_message struct:
// public_key, uint64 nonce, bytes ciphertext, uint32 checksum.
func (m Message) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte(keyTypeK1)
	buf.Write(m.From.Bytes())
	_ = binary.Write(&buf, binary.LittleEndian, m.Nonce)
	writeVarUint32(&buf, uint32(len(m.Ciphertext)))
	buf.Write(m.Ciphertext)
	_ = binary.Write(&buf, binary.LittleEndian, m.Checksum)
	return buf.Bytes(), nil
}

// UnmarshalBinary decodes a sealed_message struct.
func (m *Message) UnmarshalBinary(data []byte) error {
	r := bytes.NewReader(data)

	keyType, err := r.ReadByte()
	if err != nil || keyType != keyTypeK1 {
		return fmt.Errorf("%w: unsupported key type", ErrMalformed)
	}
	keyData := make([]byte, ecc.PublicKeySize)
	if _, err := io.ReadFull(r, keyData); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	from, err := ecc.PublicKeyFromBytes(keyData)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	var nonce uint64
	if err := binary.Read(r, binary.LittleEndian, &nonce); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	size, err := readVarUint32(r)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if int(size) > r.Len() {
		return fmt.Errorf("%w: ciphertext length %d exceeds message", ErrMalformed, size)
	}
	ciphertext := make([]byte, size)
	if _, err := io.ReadFull(r, ciphertext); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	var sum uint32
	if err := binary.Read(r, binary.LittleEndian, &sum); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	*m = Message{From: from, Nonce: nonce, Ciphertext: ciphertext, Checksum: sum}
	return nil
}

func writeVarUint32(buf *bytes.Buffer, v uint32) {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			b |= 0x80
		}
		buf.WriteByte(b)
		if v == 0 {
			return
		}
	}
}

func readVarUint32(r io.ByteReader) (uint32, error) {
	var v uint32
	for shift := uint(0); shift < 35; shift += 7 {
		b, err := r.ReadByte()
		if err != nil {
			return 0, err
		}
		v |= uint32(b&0x7f) << shift
		if b&0x80 == 0 {
			return v, nil
		}
	}
	return 0, fmt.Errorf("varuint32 too long")
}
