// Package voicepacket implements the inner payloads carried inside the
// encrypted voice datagrams: mic/player/group/location sound, the
// authenticate handshake, and keep-alive/ping.
package voicepacket

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/NicolasHaas/discordvoicebridge/pkg/wire"
)

// Packet type tags, matching the byte dispatched on by gamecrypto's inner
// framing (the byte following the secret echo).
const (
	TagMic             byte = 0x01
	TagPlayerSound     byte = 0x02
	TagGroupSound      byte = 0x03
	TagLocationSound   byte = 0x04
	TagAuthenticate    byte = 0x05
	TagAuthenticateAck byte = 0x06
	TagPing            byte = 0x07
	TagKeepAlive       byte = 0x08
)

// Mic is sent client -> server: this bridge's own captured audio.
type Mic struct {
	Data       []byte
	Sequence   int64
	Whispering bool
}

func (p Mic) Tag() byte { return TagMic }

func (p Mic) Encode(b *wire.Buffer) {
	b.WriteVarInt(int32(len(p.Data)))
	b.WriteBytes(p.Data)
	b.WriteI64BE(p.Sequence)
	b.WriteBool(p.Whispering)
}

func DecodeMic(b *wire.Buffer) (Mic, error) {
	n, err := b.ReadVarInt()
	if err != nil {
		return Mic{}, err
	}
	data, err := b.ReadBytes(int(n))
	if err != nil {
		return Mic{}, err
	}
	seq, err := b.ReadI64BE()
	if err != nil {
		return Mic{}, err
	}
	whisper, err := b.ReadBool()
	if err != nil {
		return Mic{}, err
	}
	return Mic{Data: data, Sequence: seq, Whispering: whisper}, nil
}

// PlayerSound is sent server -> client: another player's direct voice audio.
type PlayerSound struct {
	Sender     uuid.UUID
	Data       []byte
	Sequence   int64
	Whispering bool
}

func (p PlayerSound) Tag() byte { return TagPlayerSound }

func (p PlayerSound) Encode(b *wire.Buffer) {
	b.WriteUUID(p.Sender)
	b.WriteVarInt(int32(len(p.Data)))
	b.WriteBytes(p.Data)
	b.WriteI64BE(p.Sequence)
	b.WriteBool(p.Whispering)
}

func DecodePlayerSound(b *wire.Buffer) (PlayerSound, error) {
	sender, err := b.ReadUUID()
	if err != nil {
		return PlayerSound{}, err
	}
	n, err := b.ReadVarInt()
	if err != nil {
		return PlayerSound{}, err
	}
	data, err := b.ReadBytes(int(n))
	if err != nil {
		return PlayerSound{}, err
	}
	seq, err := b.ReadI64BE()
	if err != nil {
		return PlayerSound{}, err
	}
	whisper, err := b.ReadBool()
	if err != nil {
		return PlayerSound{}, err
	}
	return PlayerSound{Sender: sender, Data: data, Sequence: seq, Whispering: whisper}, nil
}

// GroupSound is sent server -> client: audio from a fellow group member.
// Unlike PlayerSound, there is no whispering flag.
type GroupSound struct {
	Sender   uuid.UUID
	Data     []byte
	Sequence int64
}

func (p GroupSound) Tag() byte { return TagGroupSound }

func (p GroupSound) Encode(b *wire.Buffer) {
	b.WriteUUID(p.Sender)
	b.WriteVarInt(int32(len(p.Data)))
	b.WriteBytes(p.Data)
	b.WriteI64BE(p.Sequence)
}

func DecodeGroupSound(b *wire.Buffer) (GroupSound, error) {
	sender, err := b.ReadUUID()
	if err != nil {
		return GroupSound{}, err
	}
	n, err := b.ReadVarInt()
	if err != nil {
		return GroupSound{}, err
	}
	data, err := b.ReadBytes(int(n))
	if err != nil {
		return GroupSound{}, err
	}
	seq, err := b.ReadI64BE()
	if err != nil {
		return GroupSound{}, err
	}
	return GroupSound{Sender: sender, Data: data, Sequence: seq}, nil
}

// LocationSound is sent server -> client: positional audio with no
// associated player (e.g. a recorded sound source).
type LocationSound struct {
	Sender   uuid.UUID
	X, Y, Z  float64
	Data     []byte
	Sequence int64
}

func (p LocationSound) Tag() byte { return TagLocationSound }

func (p LocationSound) Encode(b *wire.Buffer) {
	b.WriteUUID(p.Sender)
	b.WriteF64BE(p.X)
	b.WriteF64BE(p.Y)
	b.WriteF64BE(p.Z)
	b.WriteVarInt(int32(len(p.Data)))
	b.WriteBytes(p.Data)
	b.WriteI64BE(p.Sequence)
}

func DecodeLocationSound(b *wire.Buffer) (LocationSound, error) {
	sender, err := b.ReadUUID()
	if err != nil {
		return LocationSound{}, err
	}
	x, err := b.ReadF64BE()
	if err != nil {
		return LocationSound{}, err
	}
	y, err := b.ReadF64BE()
	if err != nil {
		return LocationSound{}, err
	}
	z, err := b.ReadF64BE()
	if err != nil {
		return LocationSound{}, err
	}
	n, err := b.ReadVarInt()
	if err != nil {
		return LocationSound{}, err
	}
	data, err := b.ReadBytes(int(n))
	if err != nil {
		return LocationSound{}, err
	}
	seq, err := b.ReadI64BE()
	if err != nil {
		return LocationSound{}, err
	}
	return LocationSound{Sender: sender, X: x, Y: y, Z: z, Data: data, Sequence: seq}, nil
}

// Authenticate opens the UDP voice session: raw player UUID plus the
// secret handed out over the game's TCP connection, both unprefixed.
type Authenticate struct {
	Player uuid.UUID
	Secret uuid.UUID
}

func (p Authenticate) Tag() byte { return TagAuthenticate }

func (p Authenticate) Encode(b *wire.Buffer) {
	b.WriteUUID(p.Player)
	b.WriteUUID(p.Secret)
}

func DecodeAuthenticate(b *wire.Buffer) (Authenticate, error) {
	player, err := b.ReadUUID()
	if err != nil {
		return Authenticate{}, err
	}
	secret, err := b.ReadUUID()
	if err != nil {
		return Authenticate{}, err
	}
	return Authenticate{Player: player, Secret: secret}, nil
}

// AuthenticateAck has no body; its arrival is the signal itself.
type AuthenticateAck struct{}

func (p AuthenticateAck) Tag() byte          { return TagAuthenticateAck }
func (p AuthenticateAck) Encode(*wire.Buffer) {}

func DecodeAuthenticateAck(*wire.Buffer) (AuthenticateAck, error) {
	return AuthenticateAck{}, nil
}

// Ping carries an opaque id that must be echoed back unchanged.
type Ping struct {
	ID        uuid.UUID
	Timestamp int64
}

func (p Ping) Tag() byte { return TagPing }

func (p Ping) Encode(b *wire.Buffer) {
	b.WriteUUID(p.ID)
	b.WriteI64BE(p.Timestamp)
}

func DecodePing(b *wire.Buffer) (Ping, error) {
	id, err := b.ReadUUID()
	if err != nil {
		return Ping{}, err
	}
	ts, err := b.ReadI64BE()
	if err != nil {
		return Ping{}, err
	}
	return Ping{ID: id, Timestamp: ts}, nil
}

// KeepAlive has no body and must be echoed back to the sender unchanged.
type KeepAlive struct{}

func (p KeepAlive) Tag() byte          { return TagKeepAlive }
func (p KeepAlive) Encode(*wire.Buffer) {}

func DecodeKeepAlive(*wire.Buffer) (KeepAlive, error) {
	return KeepAlive{}, nil
}

// Encode serializes any packet variant's body. The tag byte is not
// included; callers frame it separately (see gamecrypto.EncodeClientSent).
func Encode(p interface {
	Tag() byte
	Encode(*wire.Buffer)
}) []byte {
	b := wire.NewWriteBuffer()
	p.Encode(b)
	return b.Bytes()
}

// Decode dispatches on tag and decodes buf (positioned just past the tag
// byte) into the matching variant, returned as an any.
func Decode(tag byte, buf *wire.Buffer) (any, error) {
	switch tag {
	case TagMic:
		return DecodeMic(buf)
	case TagPlayerSound:
		return DecodePlayerSound(buf)
	case TagGroupSound:
		return DecodeGroupSound(buf)
	case TagLocationSound:
		return DecodeLocationSound(buf)
	case TagAuthenticate:
		return DecodeAuthenticate(buf)
	case TagAuthenticateAck:
		return DecodeAuthenticateAck(buf)
	case TagPing:
		return DecodePing(buf)
	case TagKeepAlive:
		return DecodeKeepAlive(buf)
	default:
		return nil, fmt.Errorf("voicepacket: unknown tag 0x%02x", tag)
	}
}
