// Package voiceudp implements the encrypted UDP voice endpoint: it
// authenticates against a secret handed out by the game server, answers
// keep-alives and pings, and carries Mic audio out / group-sound audio in.
package voiceudp

import (
	"fmt"
	"log/slog"
	"net"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/NicolasHaas/discordvoicebridge/pkg/gamecrypto"
	"github.com/NicolasHaas/discordvoicebridge/pkg/voicepacket"
)

const maxDatagramSize = 2048

// Client is one authenticated UDP voice session. It owns a single socket
// connected to the voice server; a new Secret always means a new Client
// (see bridge.Orchestrator's reset-on-new-secret handling).
type Client struct {
	conn   *net.UDPConn
	player uuid.UUID
	secret gamecrypto.Secret

	sequence atomic.Int64

	// OnVoiceConnected fires exactly once, when the AuthenticateAck
	// arrives.
	OnVoiceConnected func()
	// OnVoiceData fires for every inbound GroupSound/PlayerSound/
	// LocationSound packet, with the packet's opaque Opus payload.
	OnVoiceData func(data []byte)

	done chan struct{}
}

// Dial resolves host, connects a UDP socket to (host, port), and sends the
// initial Authenticate packet. The caller must call Receive in its own
// goroutine to begin processing inbound datagrams.
func Dial(host string, port int32, player uuid.UUID, secret gamecrypto.Secret) (*Client, error) {
	addr, err := net.ResolveUDPAddr("udp", net.JoinHostPort(host, fmt.Sprintf("%d", port)))
	if err != nil {
		return nil, fmt.Errorf("voiceudp: resolve %s:%d: %w", host, port, err)
	}

	conn, err := net.DialUDP("udp", nil, addr)
	if err != nil {
		return nil, fmt.Errorf("voiceudp: dial %s: %w", addr, err)
	}

	c := &Client{
		conn:   conn,
		player: player,
		secret: secret,
		done:   make(chan struct{}),
	}

	if err := c.sendAuthenticate(); err != nil {
		conn.Close()
		return nil, err
	}

	return c, nil
}

func (c *Client) sendAuthenticate() error {
	pkt := voicepacket.Authenticate{Player: c.player, Secret: uuid.UUID(c.secret)}
	return c.sendFramed(pkt.Tag(), voicepacket.Encode(pkt))
}

// SendVoice emits the next Mic packet carrying opusData, incrementing this
// client's monotonic sequence counter.
func (c *Client) SendVoice(opusData []byte) error {
	seq := c.sequence.Add(1) - 1
	pkt := voicepacket.Mic{Data: opusData, Sequence: seq, Whispering: false}
	return c.sendFramed(pkt.Tag(), voicepacket.Encode(pkt))
}

func (c *Client) sendFramed(tag byte, body []byte) error {
	framed, err := gamecrypto.EncodeClientSent(tag, body, c.player, c.secret)
	if err != nil {
		return fmt.Errorf("voiceudp: encode %02x: %w", tag, err)
	}
	_, err = c.conn.Write(framed)
	return err
}

// Receive reads and dispatches inbound datagrams until the socket closes.
// Callers run it in its own goroutine.
func (c *Client) Receive() {
	defer close(c.done)

	buf := make([]byte, maxDatagramSize)
	acked := false

	for {
		n, err := c.conn.Read(buf)
		if err != nil {
			select {
			case <-c.done:
				return
			default:
				slog.Debug("voiceudp: read error, stopping", "err", err)
				return
			}
		}

		body, err := gamecrypto.DecodeServerSent(buf[:n], c.secret)
		if err != nil {
			slog.Debug("voiceudp: dropping undecryptable datagram", "err", err)
			continue
		}

		tag, err := body.ReadU8()
		if err != nil {
			continue
		}

		decoded, err := voicepacket.Decode(tag, body)
		if err != nil {
			continue
		}

		switch pkt := decoded.(type) {
		case voicepacket.AuthenticateAck:
			if !acked {
				acked = true
				if c.OnVoiceConnected != nil {
					c.OnVoiceConnected()
				}
			}
		case voicepacket.GroupSound:
			c.deliverVoiceData(pkt.Data)
		case voicepacket.PlayerSound:
			c.deliverVoiceData(pkt.Data)
		case voicepacket.LocationSound:
			c.deliverVoiceData(pkt.Data)
		case voicepacket.KeepAlive:
			if err := c.sendFramed(voicepacket.TagKeepAlive, nil); err != nil {
				slog.Warn("voiceudp: keep_alive echo failed", "err", err)
			}
		case voicepacket.Ping:
			reply := voicepacket.Ping{ID: pkt.ID, Timestamp: pkt.Timestamp}
			if err := c.sendFramed(voicepacket.TagPing, voicepacket.Encode(reply)); err != nil {
				slog.Warn("voiceudp: ping echo failed", "err", err)
			}
		default:
			// Unknown or uninteresting packet kind: dropped silently.
		}
	}
}

func (c *Client) deliverVoiceData(data []byte) {
	if c.OnVoiceData != nil {
		c.OnVoiceData(data)
	}
}

// Close stops the receive loop and releases the socket.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Done returns a channel closed once the receive loop has exited.
func (c *Client) Done() <-chan struct{} {
	return c.done
}
