// Package gameproto implements the Minecraft-side plugin-channel messages
// this bridge exchanges during login/play: the secret-request handshake,
// voice-chat server metadata, and group/state management.
package gameproto

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/NicolasHaas/discordvoicebridge/pkg/wire"
)

// Plugin channel names this client registers and dispatches on.
const (
	ChannelSecret       = "voicechat:secret"
	ChannelRequestSec   = "voicechat:request_secret"
	ChannelPlayerState  = "voicechat:player_state"
	ChannelPlayerStates = "voicechat:player_states"
	ChannelUpdateState  = "voicechat:update_state"
	ChannelCreateGroup  = "voicechat:create_group"
	ChannelSetGroup     = "voicechat:set_group"
	ChannelLeaveGroup   = "voicechat:leave_group"
	ChannelJoinedGroup  = "voicechat:joined_group"
)

// RequiredChannels is the exact set this client must see echoed back in
// the server's register message before it trusts the voice-chat mod is
// present; anything short of this set is an unsupported server.
var RequiredChannels = []string{
	ChannelPlayerState,
	ChannelSecret,
	ChannelLeaveGroup,
	ChannelCreateGroup,
	ChannelRequestSec,
	ChannelSetGroup,
	ChannelJoinedGroup,
	ChannelUpdateState,
	ChannelPlayerStates,
}

// CompatibilityVersion is this client's voice-chat mod compat version,
// sent in RequestSecret.
const CompatibilityVersion = 14

// RequestSecret is sent on the voicechat:request_secret channel when the
// server's minecraft:brand plugin message arrives.
type RequestSecret struct {
	CompatibilityVersion int32
}

func (p RequestSecret) Encode() []byte {
	b := wire.NewWriteBuffer()
	b.WriteI32BE(p.CompatibilityVersion)
	return b.Bytes()
}

// Secret describes the voice-chat server this player should connect to,
// delivered on the voicechat:secret channel in response to RequestSecret.
type Secret struct {
	SecretID          uuid.UUID
	ServerPort        int32
	PlayerID          uuid.UUID
	Codec             byte
	MTUSize           int32
	VoiceChatDistance float64
	FadeDistance      float64
	CrouchDistance    float64
	WhisperDistance   float64
	KeepAlive         int32
	GroupsEnabled     bool
	VoiceHost         string
	AllowRecording    bool
}

func DecodeSecret(data []byte) (Secret, error) {
	b := wire.NewBuffer(data)
	var s Secret
	var err error
	if s.SecretID, err = b.ReadUUID(); err != nil {
		return Secret{}, err
	}
	if s.ServerPort, err = b.ReadI32BE(); err != nil {
		return Secret{}, err
	}
	if s.PlayerID, err = b.ReadUUID(); err != nil {
		return Secret{}, err
	}
	if s.Codec, err = b.ReadU8(); err != nil {
		return Secret{}, err
	}
	if s.MTUSize, err = b.ReadI32BE(); err != nil {
		return Secret{}, err
	}
	if s.VoiceChatDistance, err = b.ReadF64BE(); err != nil {
		return Secret{}, err
	}
	if s.FadeDistance, err = b.ReadF64BE(); err != nil {
		return Secret{}, err
	}
	if s.CrouchDistance, err = b.ReadF64BE(); err != nil {
		return Secret{}, err
	}
	if s.WhisperDistance, err = b.ReadF64BE(); err != nil {
		return Secret{}, err
	}
	if s.KeepAlive, err = b.ReadI32BE(); err != nil {
		return Secret{}, err
	}
	if s.GroupsEnabled, err = b.ReadBool(); err != nil {
		return Secret{}, err
	}
	if s.VoiceHost, err = b.ReadString(); err != nil {
		return Secret{}, err
	}
	if s.AllowRecording, err = b.ReadBool(); err != nil {
		return Secret{}, err
	}
	return s, nil
}

// ClientGroup names the group a player belongs to, nested inside both
// JoinedGroup and PlayerState whenever a group membership is present.
type ClientGroup struct {
	ID          uuid.UUID
	Name        string
	HasPassword bool
}

func decodeClientGroup(b *wire.Buffer) (ClientGroup, error) {
	var g ClientGroup
	var err error
	if g.ID, err = b.ReadUUID(); err != nil {
		return ClientGroup{}, err
	}
	if g.Name, err = b.ReadString(); err != nil {
		return ClientGroup{}, err
	}
	if g.HasPassword, err = b.ReadBool(); err != nil {
		return ClientGroup{}, err
	}
	return g, nil
}

// PlayerState is one entry of a PlayerStates broadcast, or the body of a
// lone voicechat:player_state message.
type PlayerState struct {
	Disabled     bool
	Disconnected bool
	Player       uuid.UUID
	Name         string
	Group        *ClientGroup
}

func decodePlayerState(b *wire.Buffer) (PlayerState, error) {
	var s PlayerState
	var err error
	if s.Disabled, err = b.ReadBool(); err != nil {
		return PlayerState{}, err
	}
	if s.Disconnected, err = b.ReadBool(); err != nil {
		return PlayerState{}, err
	}
	if s.Player, err = b.ReadUUID(); err != nil {
		return PlayerState{}, err
	}
	if s.Name, err = b.ReadString(); err != nil {
		return PlayerState{}, err
	}
	hasGroup, err := b.ReadBool()
	if err != nil {
		return PlayerState{}, err
	}
	if hasGroup {
		group, err := decodeClientGroup(b)
		if err != nil {
			return PlayerState{}, err
		}
		s.Group = &group
	}
	return s, nil
}

// DecodePlayerState decodes a single voicechat:player_state message.
func DecodePlayerState(data []byte) (PlayerState, error) {
	return decodePlayerState(wire.NewBuffer(data))
}

// UpdateState is sent by this client to announce its own mic/disabled
// state; the bridge always reports itself as enabled and connected.
type UpdateState struct {
	Disabled     bool
	Disconnected bool
}

func (p UpdateState) Encode() []byte {
	b := wire.NewWriteBuffer()
	b.WriteBool(p.Disabled)
	b.WriteBool(p.Disconnected)
	return b.Bytes()
}

// CreateGroup asks the voice-chat server to create a named group and
// places the sender into it; Password is only sent when non-empty.
type CreateGroup struct {
	Name     string
	Password string
}

func (p CreateGroup) Encode() []byte {
	b := wire.NewWriteBuffer()
	b.WriteString(p.Name)
	b.WriteBool(p.Password != "")
	if p.Password != "" {
		b.WriteString(p.Password)
	}
	return b.Bytes()
}

// JoinedGroup is the server's reply to CreateGroup/SetGroup, naming the
// group the player now belongs to. Group is nil when the player left every
// group; WrongPassword is set when a join attempt was rejected.
type JoinedGroup struct {
	Group         *ClientGroup
	WrongPassword bool
}

func DecodeJoinedGroup(data []byte) (JoinedGroup, error) {
	b := wire.NewBuffer(data)
	hasGroup, err := b.ReadBool()
	if err != nil {
		return JoinedGroup{}, err
	}
	var group *ClientGroup
	if hasGroup {
		g, err := decodeClientGroup(b)
		if err != nil {
			return JoinedGroup{}, err
		}
		group = &g
	}
	wrongPassword, err := b.ReadBool()
	if err != nil {
		return JoinedGroup{}, err
	}
	return JoinedGroup{Group: group, WrongPassword: wrongPassword}, nil
}

// DecodePlayerStates decodes a voicechat:player_states broadcast: a 4-byte
// count followed by that many PlayerState entries.
func DecodePlayerStates(data []byte) ([]PlayerState, error) {
	b := wire.NewBuffer(data)
	n, err := b.ReadI32BE()
	if err != nil {
		return nil, err
	}
	out := make([]PlayerState, 0, n)
	for i := int32(0); i < n; i++ {
		state, err := decodePlayerState(b)
		if err != nil {
			return nil, err
		}
		out = append(out, state)
	}
	return out, nil
}

// ParseRegisterChannels splits a minecraft:register payload (NUL-separated
// channel names) and reports whether every RequiredChannels entry is
// present.
func ParseRegisterChannels(payload []byte) (channels []string, supported bool) {
	start := 0
	for i, c := range payload {
		if c == 0 {
			channels = append(channels, string(payload[start:i]))
			start = i + 1
		}
	}
	if start < len(payload) {
		channels = append(channels, string(payload[start:]))
	}

	present := make(map[string]bool, len(channels))
	for _, c := range channels {
		present[c] = true
	}
	for _, required := range RequiredChannels {
		if !present[required] {
			return channels, false
		}
	}
	return channels, true
}

// EncodeRegisterChannels is the inverse of ParseRegisterChannels, used by
// tests and by any future server-facing re-registration.
func EncodeRegisterChannels(channels []string) []byte {
	out := make([]byte, 0, 64)
	for i, c := range channels {
		if i > 0 {
			out = append(out, 0)
		}
		out = append(out, []byte(c)...)
	}
	return out
}

// ErrUnsupportedServer is returned when the server's register message is
// missing one or more of the voice-chat plugin channels this bridge needs.
var ErrUnsupportedServer = fmt.Errorf("gameproto: server does not support required voice-chat channels")
