package gamecrypto_test

import (
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/NicolasHaas/discordvoicebridge/pkg/gamecrypto"
)

func testSecret() gamecrypto.Secret {
	var s gamecrypto.Secret
	copy(s[:], []byte("0123456789abcdef"))
	return s
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	t.Parallel()

	secret := testSecret()
	plaintexts := map[string][]byte{
		"empty":       {},
		"short":       []byte("hi"),
		"block_sized": make([]byte, 32),
		"odd_length":  []byte("the quick brown fox jumps"),
	}

	for name, plaintext := range plaintexts {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			enc, err := gamecrypto.Encrypt(secret, plaintext)
			if err != nil {
				t.Fatalf("Encrypt: unexpected error: %v", err)
			}

			dec, err := gamecrypto.Decrypt(secret, enc)
			if err != nil {
				t.Fatalf("Decrypt: unexpected error: %v", err)
			}
			if string(dec) != string(plaintext) {
				t.Errorf("round trip mismatch: got %q, want %q", dec, plaintext)
			}
		})
	}
}

func TestEncryptFreshIVEachCall(t *testing.T) {
	t.Parallel()

	secret := testSecret()
	a, err := gamecrypto.Encrypt(secret, []byte("same plaintext"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, err := gamecrypto.Encrypt(secret, []byte("same plaintext"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(a[:16]) == string(b[:16]) {
		t.Errorf("expected distinct IVs across calls, got identical prefixes")
	}
}

func TestServerSentSecretEchoIntegrity(t *testing.T) {
	t.Parallel()

	secret := testSecret()
	var other gamecrypto.Secret
	copy(other[:], []byte("ffffffffffffffff"))

	payload := []byte{0xAA, 0xBB}
	enc, err := gamecrypto.EncodeServerSent(voicepacketTagPing, payload, secret)
	if err != nil {
		t.Fatalf("EncodeServerSent: unexpected error: %v", err)
	}

	buf, err := gamecrypto.DecodeServerSent(enc, secret)
	if err != nil {
		t.Fatalf("DecodeServerSent with correct secret: unexpected error: %v", err)
	}
	tag, _ := buf.ReadU8()
	if tag != voicepacketTagPing {
		t.Errorf("got tag %#x, want %#x", tag, voicepacketTagPing)
	}

	if _, err := gamecrypto.DecodeServerSent(enc, other); err == nil {
		t.Fatal("expected decode with wrong secret to fail")
	}
}

func TestClientSentUnknownSender(t *testing.T) {
	t.Parallel()

	secret := testSecret()
	sender := uuid.New()
	enc, err := gamecrypto.EncodeClientSent(voicepacketTagPing, nil, sender, secret)
	if err != nil {
		t.Fatalf("EncodeClientSent: unexpected error: %v", err)
	}

	_, _, err = gamecrypto.DecodeClientSent(enc, map[uuid.UUID]gamecrypto.Secret{})
	if !errors.Is(err, gamecrypto.ErrUnknownSender) {
		t.Fatalf("got err %v, want ErrUnknownSender", err)
	}

	sender2, buf, err := gamecrypto.DecodeClientSent(enc, map[uuid.UUID]gamecrypto.Secret{sender: secret})
	if err != nil {
		t.Fatalf("DecodeClientSent with known sender: unexpected error: %v", err)
	}
	if sender2 != sender {
		t.Errorf("got sender %s, want %s", sender2, sender)
	}
	if buf.Remaining() != 1 {
		t.Errorf("expected buffer positioned at tag byte, remaining=%d", buf.Remaining())
	}
}

// voicepacketTagPing mirrors voicepacket.TagPing without importing that
// package, to keep this test package focused on the crypto framing alone.
const voicepacketTagPing = 0x07
