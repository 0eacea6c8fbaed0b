// Package audio implements the Opus transcoding pipeline: per-direction
// workers that decode, remix between mono and stereo, and re-encode audio
// frames at a fixed 48 kHz / 20 ms cadence.
package audio

import (
	"encoding/binary"
	"fmt"

	"github.com/hraban/opus"
)

const (
	SampleRateHz       = 48000
	FrameMillis        = 20
	SamplesPerFrame    = SampleRateHz * FrameMillis / 1000 // 960
	bytesPerSample     = 2
	opusBitrate        = 64000
	opusPacketLossPerc = 10
)

// FrameBytes returns the PCM byte length of one SamplesPerFrame frame at
// the given channel count (signed 16-bit interleaved samples).
func FrameBytes(channels int) int {
	return SamplesPerFrame * channels * bytesPerSample
}

// Encoder wraps an Opus encoder fixed to SamplesPerFrame-sample frames.
type Encoder struct {
	enc      *opus.Encoder
	channels int
	buf      []byte
}

// NewEncoder creates an Opus encoder for the voice-over-IP application
// profile at the given channel count (1 or 2).
func NewEncoder(channels int) (*Encoder, error) {
	enc, err := opus.NewEncoder(SampleRateHz, channels, opus.AppVoIP)
	if err != nil {
		return nil, fmt.Errorf("audio: new encoder: %w", err)
	}

	_ = enc.SetBitrate(opusBitrate)
	_ = enc.SetInBandFEC(true)
	_ = enc.SetPacketLossPerc(opusPacketLossPerc)
	_ = enc.SetDTX(true)

	return &Encoder{enc: enc, channels: channels, buf: make([]byte, 4000)}, nil
}

// Encode Opus-encodes one SamplesPerFrame frame of interleaved PCM bytes.
func (e *Encoder) Encode(pcm []byte) ([]byte, error) {
	samples := bytesToInt16(pcm)
	n, err := e.enc.Encode(samples, e.buf)
	if err != nil {
		return nil, fmt.Errorf("audio: encode: %w", err)
	}
	out := make([]byte, n)
	copy(out, e.buf[:n])
	return out, nil
}

// Decoder wraps an Opus decoder fixed to SamplesPerFrame-sample frames.
type Decoder struct {
	dec      *opus.Decoder
	channels int
}

// NewDecoder creates an Opus decoder at the given channel count (1 or 2).
func NewDecoder(channels int) (*Decoder, error) {
	dec, err := opus.NewDecoder(SampleRateHz, channels)
	if err != nil {
		return nil, fmt.Errorf("audio: new decoder: %w", err)
	}
	return &Decoder{dec: dec, channels: channels}, nil
}

// Decode decodes one Opus packet to a full SamplesPerFrame interleaved PCM
// frame. An empty opusData triggers packet-loss concealment, synthesizing
// a frame instead of failing.
func (d *Decoder) Decode(opusData []byte) ([]byte, error) {
	pcm := make([]int16, SamplesPerFrame*d.channels)

	if len(opusData) == 0 {
		if err := d.dec.DecodePLC(pcm); err != nil {
			return nil, fmt.Errorf("audio: decode plc: %w", err)
		}
		return int16ToBytes(pcm), nil
	}

	n, err := d.dec.Decode(opusData, pcm)
	if err != nil {
		return nil, fmt.Errorf("audio: decode: %w", err)
	}

	return int16ToBytes(pcm[:n*d.channels]), nil
}

func bytesToInt16(b []byte) []int16 {
	out := make([]int16, len(b)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(b[i*2:]))
	}
	return out
}

func int16ToBytes(s []int16) []byte {
	out := make([]byte, len(s)*2)
	for i, v := range s {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(v))
	}
	return out
}
