// Package bridge wires the game client session, the UDP voice client, the
// two audio pipeline workers, and the chat-service voice adapter into one
// running bridge.
package bridge

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/NicolasHaas/discordvoicebridge/pkg/audio"
	"github.com/NicolasHaas/discordvoicebridge/pkg/chatvoice"
	"github.com/NicolasHaas/discordvoicebridge/pkg/gameclient"
	"github.com/NicolasHaas/discordvoicebridge/pkg/gamecrypto"
	"github.com/NicolasHaas/discordvoicebridge/pkg/gameproto"
	"github.com/NicolasHaas/discordvoicebridge/pkg/voiceudp"
)

const (
	gameChannels = 1 // the voice-chat mod's audio is mono
	chatChannels = 2 // Discord's audio is stereo
)

// State is the orchestrator's lifecycle state.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

// Config names the game server and the Discord collaborator to bridge.
type Config struct {
	Host       string
	Port       uint16
	PlayerName string
	PlayerUUID uuid.UUID

	BotToken  string
	GuildID   string
	ChannelID string
}

// Orchestrator owns the bridge's full lifecycle: one game session, at most
// one live UDP voice client (replaced whenever a new secret arrives), two
// audio workers, and one chat voice adapter.
type Orchestrator struct {
	cfg Config

	mu      sync.RWMutex
	state   State
	session *gameclient.Session
	voice   *voiceudp.Client
	chat    *chatvoice.Adapter

	gameToChat *audio.Worker
	chatToGame *audio.Worker

	// loop serializes actions that must run as if on a single network
	// event loop, matching the concurrency model's "post to loop"
	// primitive for work handed off from a worker thread.
	loop     chan func()
	loopDone chan struct{}

	OnStateChange func(State)
	OnError       func(error)
}

// New constructs an Orchestrator. Call Start to connect everything.
func New(cfg Config) *Orchestrator {
	return &Orchestrator{
		cfg:      cfg,
		loop:     make(chan func(), 64),
		loopDone: make(chan struct{}),
	}
}

// Start builds both audio workers, joins the Discord voice channel, and
// connects to the game server. It returns once the game session's login
// phase completes; steady-state work continues on background goroutines.
func (o *Orchestrator) Start() error {
	o.setState(StateConnecting)

	gameToChat, err := audio.NewWorker(gameChannels, chatChannels, true)
	if err != nil {
		o.setState(StateDisconnected)
		return fmt.Errorf("bridge: game->chat worker: %w", err)
	}
	chatToGame, err := audio.NewWorker(chatChannels, gameChannels, false)
	if err != nil {
		o.setState(StateDisconnected)
		return fmt.Errorf("bridge: chat->game worker: %w", err)
	}

	gameToChat.Sink = o.onGameAudioEncoded
	chatToGame.Sink = o.onChatAudioEncoded

	go gameToChat.Run()
	go chatToGame.Run()
	go o.runLoop()

	o.mu.Lock()
	o.gameToChat = gameToChat
	o.chatToGame = chatToGame
	o.mu.Unlock()

	chat, err := chatvoice.Join(o.cfg.BotToken, o.cfg.GuildID, o.cfg.ChannelID)
	if err != nil {
		o.Shutdown()
		return fmt.Errorf("bridge: join chat voice channel: %w", err)
	}
	chat.CaptureSink = o.onChatCaptured

	o.mu.Lock()
	o.chat = chat
	o.mu.Unlock()

	session, err := gameclient.Connect(o.cfg.Host, o.cfg.Port, o.cfg.PlayerName, o.cfg.PlayerUUID)
	if err != nil {
		o.Shutdown()
		return fmt.Errorf("bridge: connect to game server: %w", err)
	}
	session.OnSecret = o.onSecret
	session.OnClose = o.onSessionClosed

	o.mu.Lock()
	o.session = session
	o.mu.Unlock()

	go session.Run()

	o.setState(StateConnected)
	return nil
}

// onSecret implements reset-on-new-secret: the previous UDP voice client
// (if any) is stopped before the new one is dialed and bound.
func (o *Orchestrator) onSecret(secret gameproto.Secret) {
	o.mu.Lock()
	old := o.voice
	host := o.session.VoiceHost(secret.VoiceHost)
	o.mu.Unlock()

	if old != nil {
		_ = old.Close()
		<-old.Done()
	}

	voice, err := voiceudp.Dial(host, secret.ServerPort, secret.PlayerID, gamecrypto.Secret(secret.SecretID))
	if err != nil {
		slog.Error("bridge: dial voice udp failed", "err", err)
		if o.OnError != nil {
			o.OnError(err)
		}
		return
	}
	voice.OnVoiceConnected = o.onVoiceConnected
	voice.OnVoiceData = o.onGameAudioReceived

	o.mu.Lock()
	o.voice = voice
	o.mu.Unlock()

	go voice.Receive()
}

// onVoiceConnected fires once the AuthenticateAck arrives, from the UDP
// client's own receive goroutine; it hands the game session announcement
// back to the network event loop.
func (o *Orchestrator) onVoiceConnected() {
	o.postToLoop(func() {
		o.mu.RLock()
		session := o.session
		o.mu.RUnlock()
		if session != nil {
			session.OnVoiceConnected()
		}
	})
}

// onGameAudioReceived is called from the UDP client's receive goroutine
// with a raw Opus payload from a GroupSound/PlayerSound/LocationSound
// packet; it is handed to the game->chat worker for decode/remix/encode.
func (o *Orchestrator) onGameAudioReceived(opus []byte) {
	o.mu.RLock()
	w := o.gameToChat
	o.mu.RUnlock()
	if w != nil {
		w.Enqueue(opus)
	}
}

// onGameAudioEncoded runs on the game->chat worker's own goroutine once a
// stereo Opus frame is ready for Discord.
func (o *Orchestrator) onGameAudioEncoded(frame []byte) {
	o.mu.RLock()
	chat := o.chat
	o.mu.RUnlock()
	if chat == nil || !chat.IsConnected() {
		return
	}
	if err := chat.SendEncoded(frame); err != nil {
		slog.Debug("bridge: discord send failed", "err", err)
	}
}

// onChatCaptured is called from discordgo's receive goroutine with
// decoded PCM for one Discord speaker; it is handed to the chat->game
// worker for downmix/encode.
func (o *Orchestrator) onChatCaptured(pcm []byte, _ string) {
	o.mu.RLock()
	w := o.chatToGame
	o.mu.RUnlock()
	if w != nil {
		w.Enqueue(pcm)
	}
}

// onChatAudioEncoded runs on the chat->game worker's own goroutine once a
// mono Opus frame is ready for the game server; sending it must happen on
// the network event loop, so the frame is posted across.
func (o *Orchestrator) onChatAudioEncoded(frame []byte) {
	o.postToLoop(func() {
		o.mu.RLock()
		voice := o.voice
		o.mu.RUnlock()
		if voice == nil {
			return
		}
		if err := voice.SendVoice(frame); err != nil {
			slog.Debug("bridge: voice send failed", "err", err)
		}
	})
}

func (o *Orchestrator) onSessionClosed(err error) {
	if err != nil {
		slog.Warn("bridge: game session closed", "err", err)
		if o.OnError != nil {
			o.OnError(err)
		}
	}
	o.Shutdown()
}

// postToLoop queues fn to run on the orchestrator's network event loop.
func (o *Orchestrator) postToLoop(fn func()) {
	select {
	case o.loop <- fn:
	case <-o.loopDone:
	}
}

func (o *Orchestrator) runLoop() {
	for {
		select {
		case fn := <-o.loop:
			fn()
		case <-o.loopDone:
			return
		}
	}
}

// Shutdown tears the bridge down: stops both workers, closes the UDP
// voice client and game session, and leaves the chat voice channel.
func (o *Orchestrator) Shutdown() {
	o.mu.Lock()
	if o.state == StateDisconnected {
		o.mu.Unlock()
		return
	}
	o.state = StateDisconnected
	session, voice, chat := o.session, o.voice, o.chat
	gameToChat, chatToGame := o.gameToChat, o.chatToGame
	o.session, o.voice, o.chat = nil, nil, nil
	o.mu.Unlock()

	close(o.loopDone)

	if gameToChat != nil {
		gameToChat.Stop()
	}
	if chatToGame != nil {
		chatToGame.Stop()
	}
	if voice != nil {
		_ = voice.Close()
	}
	if session != nil {
		_ = session.Close()
	}
	if chat != nil {
		_ = chat.Close()
	}

	o.notifyStateChange(StateDisconnected)
}

func (o *Orchestrator) setState(s State) {
	o.mu.Lock()
	o.state = s
	o.mu.Unlock()
	o.notifyStateChange(s)
}

func (o *Orchestrator) notifyStateChange(s State) {
	if o.OnStateChange != nil {
		o.OnStateChange(s)
	}
}

// State returns the orchestrator's current lifecycle state.
func (o *Orchestrator) State() State {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.state
}
