// Package gameclient implements the game's login/play TCP session: enough
// of the handshake to reach the play phase, the plugin-channel gate that
// confirms the voice-chat mod is present, and the secret/health/respawn
// bookkeeping the voice handshake depends on.
package gameclient

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"

	"github.com/google/uuid"

	"github.com/NicolasHaas/discordvoicebridge/pkg/gameproto"
	"github.com/NicolasHaas/discordvoicebridge/pkg/wire"
)

// ErrUnsupportedServer is returned (and also delivered to OnClose) when the
// server's register message is missing a required voice-chat channel.
var ErrUnsupportedServer = gameproto.ErrUnsupportedServer

// ProtocolVersion is the handshake protocol version advertised on connect.
// Real servers pin packet ids to a specific game version; this targets the
// 1.21.x generation (see DESIGN.md for the version-pinning decision).
const ProtocolVersion = 767

// Session is a connected game client in the play phase.
type Session struct {
	conn   net.Conn
	reader *bufio.Reader

	writeMu sync.Mutex

	host string // TCP host, used as the UDP fallback when Secret.VoiceHost is empty

	// OnSecret fires when the server hands out a voice secret. The
	// orchestrator uses it to (re)create the UDP voice client.
	OnSecret func(gameproto.Secret)
	// OnClose fires exactly once when the session's read loop exits, with
	// nil for a clean peer-initiated close.
	OnClose func(error)

	closeOnce sync.Once
	done      chan struct{}
}

// Connect dials host:port, performs the handshake and login, and returns a
// Session positioned at the start of the play phase. Call Run to begin
// processing play packets.
func Connect(host string, port uint16, playerName string, playerUUID uuid.UUID) (*Session, error) {
	addr := net.JoinHostPort(host, fmt.Sprintf("%d", port))
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("gameclient: dial %s: %w", addr, err)
	}

	s := &Session{
		conn:   conn,
		reader: bufio.NewReader(conn),
		host:   host,
		done:   make(chan struct{}),
	}

	if err := s.login(host, port, playerName, playerUUID); err != nil {
		conn.Close()
		return nil, err
	}

	return s, nil
}

func (s *Session) login(host string, port uint16, playerName string, playerUUID uuid.UUID) error {
	handshake := gameproto.Handshake{
		ProtocolVersion: ProtocolVersion,
		ServerAddress:   host,
		ServerPort:      port,
		NextState:       gameproto.HandshakeNextLogin,
	}
	if err := s.writePacket(gameproto.PacketOutHandshake, handshake.Encode()); err != nil {
		return fmt.Errorf("gameclient: send handshake: %w", err)
	}

	loginStart := gameproto.LoginStart{Name: playerName, UUID: playerUUID}
	if err := s.writePacket(gameproto.PacketOutLoginStart, loginStart.Encode()); err != nil {
		return fmt.Errorf("gameclient: send login start: %w", err)
	}

	for {
		id, body, err := gameproto.ReadPacket(s.reader)
		if err != nil {
			return fmt.Errorf("gameclient: read login packet: %w", err)
		}
		switch id {
		case gameproto.PacketInLoginSuccess:
			if err := s.writePacket(gameproto.PacketOutLoginAck, nil); err != nil {
				return fmt.Errorf("gameclient: send login ack: %w", err)
			}
			return nil
		case gameproto.PacketInLoginPluginReq:
			messageID, err := body.ReadVarInt()
			if err != nil {
				return fmt.Errorf("gameclient: read login plugin request: %w", err)
			}
			// Not understood: respond that it was not handled.
			reply := wire.NewWriteBuffer()
			reply.WriteVarInt(messageID)
			reply.WriteBool(false)
			if err := s.writePacket(0x02, reply.Bytes()); err != nil {
				return fmt.Errorf("gameclient: send login plugin response: %w", err)
			}
		default:
			slog.Debug("gameclient: ignoring login-phase packet", "id", id)
		}
	}
}

// Run processes play-phase packets until the connection closes or a
// plugin message ends the session. It blocks; callers run it in its own
// goroutine.
func (s *Session) Run() {
	var closeErr error
	defer func() {
		s.closeOnce.Do(func() {
			close(s.done)
			if s.OnClose != nil {
				s.OnClose(closeErr)
			}
		})
	}()

	for {
		id, body, err := gameproto.ReadPacket(s.reader)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				closeErr = err
			}
			return
		}

		switch id {
		case gameproto.PacketInPluginMessage:
			msg, err := gameproto.DecodePluginMessage(body)
			if err != nil {
				slog.Warn("gameclient: malformed plugin message", "err", err)
				continue
			}
			if err := s.handlePluginMessage(msg); err != nil {
				closeErr = err
				return
			}
		case gameproto.PacketInUpdateHealth:
			health, err := body.ReadF32BE()
			if err != nil {
				slog.Warn("gameclient: malformed update_health packet", "err", err)
				continue
			}
			if health == 0 {
				s.respawn()
			}
		case gameproto.PacketInKeepAlive:
			id, err := body.ReadI64BE()
			if err != nil {
				slog.Warn("gameclient: malformed keep_alive packet", "err", err)
				continue
			}
			reply := wire.NewWriteBuffer()
			reply.WriteI64BE(id)
			if err := s.writePacket(gameproto.PacketOutKeepAlive, reply.Bytes()); err != nil {
				slog.Warn("gameclient: keep_alive echo failed", "err", err)
			}
		default:
			// Uninteresting play packet; ignored.
		}
	}
}

func (s *Session) handlePluginMessage(msg gameproto.PluginMessage) error {
	switch msg.Channel {
	case "minecraft:register":
		channels, supported := gameproto.ParseRegisterChannels(msg.Data)
		if !supported {
			slog.Error("gameclient: server missing required voice-chat channels", "channels", channels)
			s.conn.Close()
			return ErrUnsupportedServer
		}
	case "minecraft:brand":
		req := gameproto.RequestSecret{CompatibilityVersion: gameproto.CompatibilityVersion}
		if err := s.SendPluginMessage(gameproto.ChannelRequestSec, req.Encode()); err != nil {
			slog.Error("gameclient: request_secret failed", "err", err)
		}
	case gameproto.ChannelSecret:
		secret, err := gameproto.DecodeSecret(msg.Data)
		if err != nil {
			slog.Warn("gameclient: malformed secret packet", "err", err)
			return nil
		}
		if s.OnSecret != nil {
			s.OnSecret(secret)
		}
	default:
		// Other voicechat:* channels (player_state, player_states,
		// joined_group) carry no information this bridge needs to act on.
	}
	return nil
}

func (s *Session) respawn() {
	status := gameproto.ClientStatus{Action: 0}
	if err := s.writePacket(gameproto.PacketOutClientStatus, status.Encode()); err != nil {
		slog.Warn("gameclient: respawn request failed", "err", err)
	}
}

// VoiceHost returns the host the UDP voice client should connect to: the
// secret's own host override if non-empty, otherwise this session's TCP host.
func (s *Session) VoiceHost(secretHost string) string {
	if secretHost != "" {
		return secretHost
	}
	return s.host
}

// OnVoiceConnected is called by the UDP voice client once authentication
// completes; it announces this bridge as enabled and creates its group.
func (s *Session) OnVoiceConnected() {
	update := gameproto.UpdateState{Disabled: false, Disconnected: false}
	if err := s.SendPluginMessage(gameproto.ChannelUpdateState, update.Encode()); err != nil {
		slog.Error("gameclient: update_state failed", "err", err)
		return
	}

	create := gameproto.CreateGroup{Name: "Discord Bridge"}
	if err := s.SendPluginMessage(gameproto.ChannelCreateGroup, create.Encode()); err != nil {
		slog.Error("gameclient: create_group failed", "err", err)
	}
}

// SendPluginMessage frames and sends a plugin-channel packet.
func (s *Session) SendPluginMessage(channel string, data []byte) error {
	msg := gameproto.PluginMessage{Channel: channel, Data: data}
	return s.writePacket(gameproto.PacketOutPluginMessage, msg.Encode())
}

func (s *Session) writePacket(id int32, body []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return gameproto.WritePacket(s.conn, id, body)
}

// Close closes the underlying TCP connection.
func (s *Session) Close() error {
	return s.conn.Close()
}

// Done returns a channel closed once the session's read loop has exited.
func (s *Session) Done() <-chan struct{} {
	return s.done
}
