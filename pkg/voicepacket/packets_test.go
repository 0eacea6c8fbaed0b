package voicepacket_test

import (
	"testing"

	"github.com/google/uuid"

	"github.com/NicolasHaas/discordvoicebridge/pkg/voicepacket"
	"github.com/NicolasHaas/discordvoicebridge/pkg/wire"
)

func TestMicRoundTrip(t *testing.T) {
	t.Parallel()

	want := voicepacket.Mic{Data: []byte{1, 2, 3}, Sequence: 42, Whispering: true}
	buf := wire.NewBuffer(voicepacket.Encode(want))
	got, err := voicepacket.DecodeMic(buf)
	if err != nil {
		t.Fatalf("DecodeMic: unexpected error: %v", err)
	}
	if string(got.Data) != string(want.Data) || got.Sequence != want.Sequence || got.Whispering != want.Whispering {
		t.Errorf("Mic round trip mismatch: got %+v, want %+v", got, want)
	}
}

func TestGroupSoundRoundTrip(t *testing.T) {
	t.Parallel()

	want := voicepacket.GroupSound{Sender: uuid.New(), Data: []byte{9, 9}, Sequence: 7}
	buf := wire.NewBuffer(voicepacket.Encode(want))
	got, err := voicepacket.DecodeGroupSound(buf)
	if err != nil {
		t.Fatalf("DecodeGroupSound: unexpected error: %v", err)
	}
	if got.Sender != want.Sender || string(got.Data) != string(want.Data) || got.Sequence != want.Sequence {
		t.Errorf("GroupSound round trip mismatch: got %+v, want %+v", got, want)
	}
}

func TestPingEcho(t *testing.T) {
	t.Parallel()

	id := uuid.New()
	received := voicepacket.Ping{ID: id, Timestamp: 123456}

	// S5: a received Ping produces an identical Ping in reply.
	reply := voicepacket.Ping{ID: received.ID, Timestamp: received.Timestamp}
	if reply != received {
		t.Fatalf("expected echoed ping to equal received ping")
	}

	buf := wire.NewBuffer(voicepacket.Encode(reply))
	got, err := voicepacket.DecodePing(buf)
	if err != nil {
		t.Fatalf("DecodePing: unexpected error: %v", err)
	}
	if got != received {
		t.Errorf("decoded echoed ping mismatch: got %+v, want %+v", got, received)
	}
}

func TestKeepAliveHasEmptyBody(t *testing.T) {
	t.Parallel()

	encoded := voicepacket.Encode(voicepacket.KeepAlive{})
	if len(encoded) != 0 {
		t.Errorf("expected empty KeepAlive body, got %d bytes", len(encoded))
	}
}

func TestDecodeDispatchByTag(t *testing.T) {
	t.Parallel()

	ack := voicepacket.AuthenticateAck{}
	buf := wire.NewBuffer(voicepacket.Encode(ack))
	decoded, err := voicepacket.Decode(voicepacket.TagAuthenticateAck, buf)
	if err != nil {
		t.Fatalf("Decode: unexpected error: %v", err)
	}
	if _, ok := decoded.(voicepacket.AuthenticateAck); !ok {
		t.Errorf("Decode dispatched to wrong type: %T", decoded)
	}
}

func TestDecodeUnknownTag(t *testing.T) {
	t.Parallel()

	buf := wire.NewBuffer(nil)
	if _, err := voicepacket.Decode(0xFF, buf); err == nil {
		t.Fatal("expected error for unknown tag")
	}
}
