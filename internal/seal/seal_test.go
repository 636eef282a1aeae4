package seal

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/layer-3/esrlink/internal/ecc"
)

var (
	k1 = ecc.MustParsePrivateKey("5KGNiwTYdDWVBc9RCC28hsi7tqHGUsikn9Gs8Yii93fXbkYzxGi")
	k2 = ecc.MustParsePrivateKey("5Kik3tbLSn24ScHFsj6GwLkgd1H4Wecxkzt1VX7PBBRDQUCdGFa")
)

func TestSealVector(t *testing.T) {
	requireT := require.New(t)

	nonce := uint64(42)
	msg, err := Seal([]byte("The hovercraft is full of eels"), k1, k2.PublicKey(), &nonce)
	requireT.NoError(err)

	requireT.Equal("a26b34e0fe70e2d624da9fddf3ba574c5b827d729d0edc172641f44ea3739ab0", hex.EncodeToString(msg.Ciphertext))
	requireT.Equal(uint32(2660735416), msg.Checksum)
	requireT.Equal(uint64(42), msg.Nonce)
	requireT.True(msg.From.Equal(k1.PublicKey()))

	again, err := Seal([]byte("The hovercraft is full of eels"), k1, k2.PublicKey(), &nonce)
	requireT.NoError(err)
	requireT.Equal(msg, again)
}

func TestSealDerivesSameKeyBothWays(t *testing.T) {
	requireT := require.New(t)

	for _, nonce := range []uint64{0, 1, 42, 1 << 63} {
		a, err := deriveKey(k1, k2.PublicKey(), nonce)
		requireT.NoError(err)
		b, err := deriveKey(k2, k1.PublicKey(), nonce)
		requireT.NoError(err)
		requireT.Equal(a, b)
	}
}

func TestSealOpen(t *testing.T) {
	requireT := require.New(t)

	recipient, err := ecc.GeneratePrivateKey()
	requireT.NoError(err)

	msg, err := Seal([]byte("esr:gmNgZGBY1mTC_MoglIGBIVzX5uxZRqAQGMBoExgDAjRiYGBg"), k1, recipient.PublicKey(), nil)
	requireT.NoError(err)

	opened, err := Open(msg, recipient)
	requireT.NoError(err)
	requireT.Equal("esr:gmNgZGBY1mTC_MoglIGBIVzX5uxZRqAQGMBoExgDAjRiYGBg", string(opened))

	_, err = Open(msg, k2)
	requireT.ErrorIs(err, ErrMalformed)
}

func TestMessageBinary(t *testing.T) {
	requireT := require.New(t)

	nonce := uint64(42)
	msg, err := Seal([]byte("The hovercraft is full of eels"), k1, k2.PublicKey(), &nonce)
	requireT.NoError(err)

	data, err := msg.MarshalBinary()
	requireT.NoError(err)
	// key type + key + nonce + length prefix + ciphertext + checksum
	requireT.Len(data, 1+33+8+1+32+4)
	requireT.Equal(byte(0), data[0])
	requireT.Equal(byte(42), data[34])
	requireT.Equal(byte(32), data[42])

	var decoded Message
	requireT.NoError(decoded.UnmarshalBinary(data))
	requireT.Equal(msg.Nonce, decoded.Nonce)
	requireT.Equal(msg.Ciphertext, decoded.Ciphertext)
	requireT.Equal(msg.Checksum, decoded.Checksum)
	requireT.True(msg.From.Equal(decoded.From))

	requireT.ErrorIs(decoded.UnmarshalBinary(data[:20]), ErrMalformed)
}
