package gameproto

import (
	"bufio"
	"fmt"
	"io"

	"github.com/NicolasHaas/discordvoicebridge/pkg/wire"
)

// Minecraft's VarInt-length-prefixed packet framing caps a single packet
// at 2 MiB, well above anything this client sends or expects to receive.
const maxPacketSize = 2 * 1024 * 1024

// Packet ids this client needs on the wire. Real servers vary these by
// protocol version; these match the 1.21.x generation the voice-chat mod
// targets (see DESIGN.md for the version-pinning decision).
const (
	PacketOutHandshake     int32 = 0x00
	PacketOutLoginStart    int32 = 0x00
	PacketOutLoginAck      int32 = 0x03
	PacketOutPluginMessage int32 = 0x0D
	PacketOutKeepAlive     int32 = 0x1C
	PacketOutClientStatus  int32 = 0x09

	PacketInLoginSuccess   int32 = 0x02
	PacketInLoginPluginReq int32 = 0x04
	PacketInPluginMessage  int32 = 0x18
	PacketInKeepAlive      int32 = 0x28
	PacketInUpdateHealth   int32 = 0x61
)

// HandshakeNextState values.
const (
	HandshakeNextStatus = 1
	HandshakeNextLogin  = 2
)

// ReadPacket reads one VarInt-length-prefixed packet from r, returning its
// id and remaining body as a Buffer positioned at the start of the body.
func ReadPacket(r *bufio.Reader) (id int32, body *wire.Buffer, err error) {
	length, err := readVarIntFromReader(r)
	if err != nil {
		return 0, nil, fmt.Errorf("gameproto: read packet length: %w", err)
	}
	if length < 0 || length > maxPacketSize {
		return 0, nil, fmt.Errorf("gameproto: packet length %d out of bounds", length)
	}

	raw := make([]byte, length)
	if _, err := io.ReadFull(r, raw); err != nil {
		return 0, nil, fmt.Errorf("gameproto: read packet body: %w", err)
	}

	buf := wire.NewBuffer(raw)
	id, err = buf.ReadVarInt()
	if err != nil {
		return 0, nil, fmt.Errorf("gameproto: read packet id: %w", err)
	}
	return id, buf, nil
}

// WritePacket frames id and body as a VarInt-length-prefixed packet and
// writes it to w.
func WritePacket(w io.Writer, id int32, body []byte) error {
	payload := wire.NewWriteBuffer()
	payload.WriteVarInt(id)
	payload.WriteBytes(body)
	raw := payload.Bytes()

	frame := wire.NewWriteBuffer()
	frame.WriteVarInt(int32(len(raw)))
	frame.WriteBytes(raw)

	_, err := w.Write(frame.Bytes())
	return err
}

// readVarIntFromReader mirrors Buffer.ReadVarInt but reads directly from a
// byte-at-a-time io.Reader, since packet length prefixes precede the
// length-delimited body a Buffer would otherwise wrap.
func readVarIntFromReader(r *bufio.Reader) (int32, error) {
	var result int32
	for i := 0; i < 5; i++ {
		by, err := r.ReadByte()
		if err != nil {
			return 0, err
		}
		result |= int32(by&0x7F) << (7 * i)
		if by&0x80 == 0 {
			return result, nil
		}
	}
	return 0, wire.ErrMalformedVarInt
}

// PluginMessage is the body shape shared by both inbound and outbound
// minecraft:* plugin-channel packets: a string channel name followed by
// raw bytes whose meaning depends on the channel.
type PluginMessage struct {
	Channel string
	Data    []byte
}

func (p PluginMessage) Encode() []byte {
	b := wire.NewWriteBuffer()
	b.WriteString(p.Channel)
	b.WriteBytes(p.Data)
	return b.Bytes()
}

func DecodePluginMessage(body *wire.Buffer) (PluginMessage, error) {
	channel, err := body.ReadString()
	if err != nil {
		return PluginMessage{}, err
	}
	data, err := body.ReadBytes(body.Remaining())
	if err != nil {
		return PluginMessage{}, err
	}
	return PluginMessage{Channel: channel, Data: data}, nil
}

// Handshake is the first packet sent on any connection, selecting the
// next protocol phase.
type Handshake struct {
	ProtocolVersion int32
	ServerAddress   string
	ServerPort      uint16
	NextState       int32
}

func (p Handshake) Encode() []byte {
	b := wire.NewWriteBuffer()
	b.WriteVarInt(p.ProtocolVersion)
	b.WriteString(p.ServerAddress)
	b.WriteU8(byte(p.ServerPort >> 8))
	b.WriteU8(byte(p.ServerPort))
	b.WriteVarInt(p.NextState)
	return b.Bytes()
}

// LoginStart begins login after a handshake with NextState = login.
type LoginStart struct {
	Name string
	UUID [16]byte
}

func (p LoginStart) Encode() []byte {
	b := wire.NewWriteBuffer()
	b.WriteString(p.Name)
	b.WriteBytes(p.UUID[:])
	return b.Bytes()
}

// ClientStatus is sent to request a respawn after death.
type ClientStatus struct {
	Action int32 // 0 = perform respawn
}

func (p ClientStatus) Encode() []byte {
	b := wire.NewWriteBuffer()
	b.WriteVarInt(p.Action)
	return b.Bytes()
}
