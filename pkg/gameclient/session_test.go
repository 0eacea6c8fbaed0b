package gameclient_test

import (
	"bufio"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/NicolasHaas/discordvoicebridge/pkg/gameclient"
	"github.com/NicolasHaas/discordvoicebridge/pkg/gameproto"
	"github.com/NicolasHaas/discordvoicebridge/pkg/wire"
)

func encodeSecretForTest(s gameproto.Secret) []byte {
	b := wire.NewWriteBuffer()
	b.WriteUUID(s.SecretID)
	b.WriteI32BE(s.ServerPort)
	b.WriteUUID(s.PlayerID)
	b.WriteU8(s.Codec)
	b.WriteI32BE(s.MTUSize)
	b.WriteF64BE(s.VoiceChatDistance)
	b.WriteF64BE(s.FadeDistance)
	b.WriteF64BE(s.CrouchDistance)
	b.WriteF64BE(s.WhisperDistance)
	b.WriteI32BE(s.KeepAlive)
	b.WriteBool(s.GroupsEnabled)
	b.WriteString(s.VoiceHost)
	b.WriteBool(s.AllowRecording)
	return b.Bytes()
}

// S3: login, then register/brand/secret handshake order.
func TestSessionHandshakeOrder(t *testing.T) {
	t.Parallel()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	wantSecret := gameproto.Secret{
		SecretID:   uuid.New(),
		ServerPort: 24454,
		PlayerID:   uuid.New(),
		MTUSize:    1024,
		KeepAlive:  1000,
	}

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- runFakeServer(ln, wantSecret)
	}()

	addr := ln.Addr().(*net.TCPAddr)
	playerUUID := uuid.New()

	secretCh := make(chan gameproto.Secret, 1)
	sess, err := gameclient.Connect("127.0.0.1", uint16(addr.Port), "Bridge", playerUUID)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer sess.Close()

	sess.OnSecret = func(s gameproto.Secret) { secretCh <- s }
	go sess.Run()

	select {
	case got := <-secretCh:
		if got != wantSecret {
			t.Errorf("OnSecret: got %+v, want %+v", got, wantSecret)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for OnSecret")
	}

	select {
	case err := <-serverErr:
		if err != nil {
			t.Errorf("fake server: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for fake server")
	}
}

func runFakeServer(ln net.Listener, secret gameproto.Secret) error {
	conn, err := ln.Accept()
	if err != nil {
		return err
	}
	defer conn.Close()

	r := bufio.NewReader(conn)

	// Handshake, then LoginStart.
	if _, _, err := gameproto.ReadPacket(r); err != nil {
		return err
	}
	if _, _, err := gameproto.ReadPacket(r); err != nil {
		return err
	}

	if err := gameproto.WritePacket(conn, gameproto.PacketInLoginSuccess, nil); err != nil {
		return err
	}

	// LoginAck.
	if _, _, err := gameproto.ReadPacket(r); err != nil {
		return err
	}

	registerMsg := gameproto.PluginMessage{
		Channel: "minecraft:register",
		Data:    gameproto.EncodeRegisterChannels(gameproto.RequiredChannels),
	}
	if err := gameproto.WritePacket(conn, gameproto.PacketInPluginMessage, registerMsg.Encode()); err != nil {
		return err
	}

	brandMsg := gameproto.PluginMessage{Channel: "minecraft:brand", Data: []byte("vanilla")}
	if err := gameproto.WritePacket(conn, gameproto.PacketInPluginMessage, brandMsg.Encode()); err != nil {
		return err
	}

	id, body, err := gameproto.ReadPacket(r)
	if err != nil {
		return err
	}
	if id != gameproto.PacketOutPluginMessage {
		return fmt.Errorf("unexpected packet id %#x", id)
	}
	reqMsg, err := gameproto.DecodePluginMessage(body)
	if err != nil {
		return err
	}
	if reqMsg.Channel != gameproto.ChannelRequestSec {
		return fmt.Errorf("unexpected channel %q", reqMsg.Channel)
	}
	reqBody := wire.NewBuffer(reqMsg.Data)
	version, err := reqBody.ReadI32BE()
	if err != nil {
		return err
	}
	if version != gameproto.CompatibilityVersion {
		return fmt.Errorf("unexpected compatibility version %d", version)
	}

	secretMsg := gameproto.PluginMessage{
		Channel: gameproto.ChannelSecret,
		Data:    encodeSecretForTest(secret),
	}
	return gameproto.WritePacket(conn, gameproto.PacketInPluginMessage, secretMsg.Encode())
}

func TestSessionUnsupportedServerClosesConnection(t *testing.T) {
	t.Parallel()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		r := bufio.NewReader(conn)
		gameproto.ReadPacket(r)
		gameproto.ReadPacket(r)
		gameproto.WritePacket(conn, gameproto.PacketInLoginSuccess, nil)
		gameproto.ReadPacket(r)

		registerMsg := gameproto.PluginMessage{
			Channel: "minecraft:register",
			Data:    gameproto.EncodeRegisterChannels(gameproto.RequiredChannels[1:]),
		}
		gameproto.WritePacket(conn, gameproto.PacketInPluginMessage, registerMsg.Encode())
	}()

	addr := ln.Addr().(*net.TCPAddr)
	sess, err := gameclient.Connect("127.0.0.1", uint16(addr.Port), "Bridge", uuid.New())
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer sess.Close()

	closedCh := make(chan error, 1)
	sess.OnClose = func(err error) { closedCh <- err }
	go sess.Run()

	select {
	case err := <-closedCh:
		if err != gameclient.ErrUnsupportedServer {
			t.Errorf("OnClose err = %v, want ErrUnsupportedServer", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for OnClose")
	}
}
