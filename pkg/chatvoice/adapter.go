// Package chatvoice implements the chat-service voice collaborator
// contract against a real backend: a Discord guild voice channel, joined
// via discordgo.
package chatvoice

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/bwmarrin/discordgo"
	"github.com/google/uuid"

	"github.com/NicolasHaas/discordvoicebridge/pkg/audio"
)

// chatChannels is the channel count Discord's own voice wire format uses;
// the bridge always decodes/encodes stereo on this side of the pipeline.
const chatChannels = 2

// Adapter joins one Discord guild voice channel and exposes the capture/
// playback contract the bridge orchestrator drives.
type Adapter struct {
	session *discordgo.Session
	conn    *discordgo.VoiceConnection

	// CaptureSink receives decoded PCM for every inbound Discord speaker,
	// called from the adapter's own receive goroutine.
	CaptureSink func(pcm []byte, userID string)

	mu       sync.Mutex
	decoders map[uint32]*audio.Decoder

	done chan struct{}
}

// Join logs in a bot with token, joins channelID within guildID, and
// starts forwarding inbound audio to CaptureSink once ready.
func Join(token, guildID, channelID string) (*Adapter, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("chatvoice: new session: %w", err)
	}

	if err := session.Open(); err != nil {
		return nil, fmt.Errorf("chatvoice: open session: %w", err)
	}

	conn, err := session.ChannelVoiceJoin(guildID, channelID, false, false)
	if err != nil {
		session.Close()
		return nil, fmt.Errorf("chatvoice: join channel: %w", err)
	}

	a := &Adapter{
		session:  session,
		conn:     conn,
		decoders: make(map[uint32]*audio.Decoder),
		done:     make(chan struct{}),
	}

	go a.receive()

	return a, nil
}

// IsConnected reports whether the voice connection is currently up.
func (a *Adapter) IsConnected() bool {
	return a.conn != nil && a.conn.Ready
}

// SendEncoded pushes an already Opus-encoded stereo frame onto Discord's
// send channel. discordgo never re-encodes frames taken from OpusSend, so
// this satisfies the "encode=false" contract structurally.
func (a *Adapter) SendEncoded(frame []byte) error {
	if !a.IsConnected() {
		return fmt.Errorf("chatvoice: not connected")
	}
	select {
	case a.conn.OpusSend <- frame:
		return nil
	default:
		return fmt.Errorf("chatvoice: send queue full, dropping frame")
	}
}

func (a *Adapter) receive() {
	defer close(a.done)
	for pkt := range a.conn.OpusRecv {
		dec := a.decoderFor(pkt.SSRC)
		if dec == nil {
			continue
		}
		pcm, err := dec.Decode(pkt.Opus)
		if err != nil {
			slog.Debug("chatvoice: dropping frame, decode failed", "ssrc", pkt.SSRC, "err", err)
			continue
		}
		if a.CaptureSink != nil {
			a.CaptureSink(pcm, speakerID(pkt.SSRC))
		}
	}
}

func (a *Adapter) decoderFor(ssrc uint32) *audio.Decoder {
	a.mu.Lock()
	defer a.mu.Unlock()

	dec, ok := a.decoders[ssrc]
	if !ok {
		var err error
		dec, err = audio.NewDecoder(chatChannels)
		if err != nil {
			slog.Error("chatvoice: failed to allocate decoder", "ssrc", ssrc, "err", err)
			return nil
		}
		a.decoders[ssrc] = dec
	}
	return dec
}

// speakerID gives discordgo's numeric SSRC a stable string identity; real
// user IDs arrive separately over the guild voice-state gateway events,
// which this bridge does not need since it only forwards audio.
func speakerID(ssrc uint32) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(fmt.Sprintf("ssrc:%d", ssrc))).String()
}

// Close leaves the voice channel and closes the bot session.
func (a *Adapter) Close() error {
	if a.conn != nil {
		_ = a.conn.Disconnect()
	}
	if a.session != nil {
		_ = a.session.Close()
	}
	<-a.done
	return nil
}
