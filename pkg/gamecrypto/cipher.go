// Package gamecrypto implements the voice session's wire encryption: a
// single fixed AES-128-CBC scheme with PKCS#7 padding and a random
// per-packet IV, plus the client-sent/server-sent framing layered on top
// of it.
//
// The voice-chat protocol does not negotiate a cipher. The secret handed
// out by the game server is always an AES-128 key used in CBC mode, so
// there is no cipher suite selection to make here.
package gamecrypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"

	"github.com/NicolasHaas/discordvoicebridge/pkg/wire"
)

// ErrCryptoFailure covers padding and ciphertext-length errors on decrypt.
var ErrCryptoFailure = errors.New("gamecrypto: decryption failed")

// ErrInvalidSecret is returned when a decrypted payload's leading secret
// echo does not match the session secret.
var ErrInvalidSecret = errors.New("gamecrypto: secret mismatch")

// ErrUnknownSender is returned by DecodeClientSent when the framing's
// sender UUID has no known secret.
var ErrUnknownSender = errors.New("gamecrypto: unknown sender")

const ivSize = 16
const blockSize = aes.BlockSize // 16

// Secret is the 16-byte AES-128 key shared by server and client for a
// voice session, echoed inside every inner payload for integrity.
type Secret [16]byte

// Encrypt PKCS#7-pads plaintext to the AES block size, generates a fresh
// random 16-byte IV, and returns IV || ciphertext under AES-128-CBC.
func Encrypt(secret Secret, plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(secret[:])
	if err != nil {
		return nil, fmt.Errorf("gamecrypto: new cipher: %w", err)
	}

	padded := pkcs7Pad(plaintext, blockSize)

	iv := make([]byte, ivSize)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return nil, fmt.Errorf("gamecrypto: generate iv: %w", err)
	}

	out := make([]byte, ivSize+len(padded))
	copy(out, iv)

	enc := cipher.NewCBCEncrypter(block, iv)
	enc.CryptBlocks(out[ivSize:], padded)

	return out, nil
}

// Decrypt splits the leading 16 bytes of data as the IV, AES-128-CBC
// decrypts the remainder, and strips PKCS#7 padding.
func Decrypt(secret Secret, data []byte) ([]byte, error) {
	if len(data) < ivSize {
		return nil, fmt.Errorf("%w: buffer shorter than iv", ErrCryptoFailure)
	}
	iv := data[:ivSize]
	ciphertext := data[ivSize:]
	if len(ciphertext) == 0 || len(ciphertext)%blockSize != 0 {
		return nil, fmt.Errorf("%w: ciphertext not block-aligned", ErrCryptoFailure)
	}

	block, err := aes.NewCipher(secret[:])
	if err != nil {
		return nil, fmt.Errorf("gamecrypto: new cipher: %w", err)
	}

	padded := make([]byte, len(ciphertext))
	dec := cipher.NewCBCDecrypter(block, iv)
	dec.CryptBlocks(padded, ciphertext)

	return pkcs7Unpad(padded)
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	padLen := blockSize - (len(data) % blockSize)
	padded := make([]byte, len(data)+padLen)
	copy(padded, data)
	for i := len(data); i < len(padded); i++ {
		padded[i] = byte(padLen)
	}
	return padded
}

func pkcs7Unpad(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty padded payload", ErrCryptoFailure)
	}
	padLen := int(data[len(data)-1])
	if padLen == 0 || padLen > blockSize || padLen > len(data) {
		return nil, fmt.Errorf("%w: invalid pkcs7 padding", ErrCryptoFailure)
	}
	for _, b := range data[len(data)-padLen:] {
		if int(b) != padLen {
			return nil, fmt.Errorf("%w: invalid pkcs7 padding", ErrCryptoFailure)
		}
	}
	return data[:len(data)-padLen], nil
}

// EncodeClientSent builds a client-to-server framed packet:
//
//	sender_uuid(16) || varint(len(enc)) || enc
//
// where enc = Encrypt(secret, secret(16) || packet_id(1) || payload).
func EncodeClientSent(packetID byte, payload []byte, sender uuid.UUID, secret Secret) ([]byte, error) {
	enc, err := encodeInner(packetID, payload, secret)
	if err != nil {
		return nil, err
	}

	out := wire.NewWriteBuffer()
	out.WriteUUID(sender)
	out.WriteVarInt(int32(len(enc)))
	out.WriteBytes(enc)
	return out.Bytes(), nil
}

// EncodeServerSent builds a server-to-client framed packet, which is just
// the encrypted inner payload with no outer sender/length prefix.
func EncodeServerSent(packetID byte, payload []byte, secret Secret) ([]byte, error) {
	return encodeInner(packetID, payload, secret)
}

func encodeInner(packetID byte, payload []byte, secret Secret) ([]byte, error) {
	inner := wire.NewWriteBuffer()
	inner.WriteBytes(secret[:])
	inner.WriteU8(packetID)
	inner.WriteBytes(payload)
	return Encrypt(secret, inner.Bytes())
}

// DecodeServerSent decrypts data, verifies the leading secret echo, and
// returns a Buffer positioned at the packet-id byte.
func DecodeServerSent(data []byte, secret Secret) (*wire.Buffer, error) {
	plain, err := Decrypt(secret, data)
	if err != nil {
		return nil, err
	}

	buf := wire.NewBuffer(plain)
	given, err := buf.ReadBytes(16)
	if err != nil {
		return nil, err
	}
	if Secret(*(*[16]byte)(given)) != secret {
		return nil, ErrInvalidSecret
	}
	return buf, nil
}

// DecodeClientSent reads the sender UUID, looks up its secret in secrets,
// reads the varint-prefixed encrypted payload, and delegates to
// DecodeServerSent. It returns the sender and the decoded buffer.
func DecodeClientSent(data []byte, secrets map[uuid.UUID]Secret) (uuid.UUID, *wire.Buffer, error) {
	buf := wire.NewBuffer(data)

	sender, err := buf.ReadUUID()
	if err != nil {
		return uuid.Nil, nil, err
	}

	secret, ok := secrets[sender]
	if !ok {
		return uuid.Nil, nil, ErrUnknownSender
	}

	payloadLen, err := buf.ReadVarInt()
	if err != nil {
		return uuid.Nil, nil, err
	}
	enc, err := buf.ReadBytes(int(payloadLen))
	if err != nil {
		return uuid.Nil, nil, err
	}

	inner, err := DecodeServerSent(enc, secret)
	if err != nil {
		return uuid.Nil, nil, err
	}
	return sender, inner, nil
}
