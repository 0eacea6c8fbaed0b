package audio

import (
	"bytes"
	"testing"
)

// S1: upmix 1->3, then downmix the result 3->1 back to the original.
func TestRemixUpmixDownmixScenario(t *testing.T) {
	t.Parallel()

	input := []byte{0xAB, 0xCD, 0xEF, 0x12}
	wantUpmixed := []byte{0xAB, 0xCD, 0xAB, 0xCD, 0xAB, 0xCD, 0xEF, 0x12, 0xEF, 0x12, 0xEF, 0x12}

	upmixed := remix(input, 1, 3)
	if !bytes.Equal(upmixed, wantUpmixed) {
		t.Fatalf("upmix 1->3: got %x, want %x", upmixed, wantUpmixed)
	}

	downmixed := remix(upmixed, 3, 1)
	if !bytes.Equal(downmixed, input) {
		t.Fatalf("downmix 3->1 of upmixed: got %x, want %x", downmixed, input)
	}
}

func TestRemixFrameSizeInvariant(t *testing.T) {
	t.Parallel()

	source := make([]byte, FrameBytes(1))
	for i := range source {
		source[i] = byte(i)
	}

	sink := remix(source, 1, 2)
	if len(sink) != FrameBytes(2) {
		t.Fatalf("remix(1->2) length = %d, want %d", len(sink), FrameBytes(2))
	}

	roundTrip := remix(sink, 2, 1)
	if !bytes.Equal(roundTrip, source) {
		t.Fatalf("remix(remix(x,1->2),2->1) != x")
	}
}

func TestWorkerStereoSilenceRoundTripsThroughBothDirections(t *testing.T) {
	t.Parallel()

	// S6: a 20ms stereo silence frame through chat->game, then the
	// resulting Opus frame through game->chat, yields a stereo Opus frame
	// that decodes to a full stereo PCM frame.
	chatToGame, err := NewWorker(2, 1, false)
	if err != nil {
		t.Fatalf("NewWorker(chat->game): unexpected error: %v", err)
	}
	gameToChat, err := NewWorker(1, 2, true)
	if err != nil {
		t.Fatalf("NewWorker(game->chat): unexpected error: %v", err)
	}

	var monoOpus []byte
	chatToGame.Sink = func(frame []byte) { monoOpus = frame }
	chatToGame.process(make([]byte, FrameBytes(2)))
	if len(monoOpus) == 0 {
		t.Fatal("expected chat->game worker to produce an encoded frame")
	}

	var stereoOpus []byte
	gameToChat.Sink = func(frame []byte) { stereoOpus = frame }
	gameToChat.process(monoOpus)

	stereoDecoder, err := NewDecoder(2)
	if err != nil {
		t.Fatalf("NewDecoder(2): unexpected error: %v", err)
	}
	stereoPCM, err := stereoDecoder.Decode(stereoOpus)
	if err != nil {
		t.Fatalf("decode game->chat output: unexpected error: %v", err)
	}
	if len(stereoPCM) != FrameBytes(2) {
		t.Fatalf("got stereo PCM length %d, want %d", len(stereoPCM), FrameBytes(2))
	}
}

func TestDecoderPLCProducesFullFrame(t *testing.T) {
	t.Parallel()

	dec, err := NewDecoder(1)
	if err != nil {
		t.Fatalf("NewDecoder: unexpected error: %v", err)
	}

	pcm, err := dec.Decode(nil)
	if err != nil {
		t.Fatalf("Decode(nil) (PLC): unexpected error: %v", err)
	}
	if len(pcm) != FrameBytes(1) {
		t.Fatalf("PLC frame length = %d, want %d", len(pcm), FrameBytes(1))
	}
}
