// Command bridge connects a Minecraft-style game server's voice chat to a
// Discord guild voice channel.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/NicolasHaas/discordvoicebridge/pkg/bridge"
	"github.com/NicolasHaas/discordvoicebridge/pkg/logging"
	"github.com/NicolasHaas/discordvoicebridge/pkg/msalogin"
	"github.com/NicolasHaas/discordvoicebridge/pkg/version"
)

var (
	port      uint16
	guildID   string
	channelID string
)

func main() {
	root := &cobra.Command{
		Use:     "bridge <host>",
		Short:   "Bridge a game server's voice chat into a Discord voice channel",
		Version: version.Full(),
		Args:    cobra.ExactArgs(1),
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return logging.Setup(logging.Options{
				Level:  envOr("BRIDGE_LOG_LEVEL", "info"),
				Format: envOr("BRIDGE_LOG_FORMAT", "text"),
			})
		},
		RunE: run,
	}

	root.Flags().Uint16VarP(&port, "port", "p", 25565, "game server port")
	root.Flags().StringVar(&guildID, "guild", "", "Discord guild ID")
	root.Flags().StringVar(&channelID, "channel", "", "Discord voice channel ID")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	host := args[0]

	botToken := os.Getenv("BOT_TOKEN")
	if botToken == "" {
		return fmt.Errorf("BOT_TOKEN environment variable is required")
	}

	identity, err := resolveIdentity()
	if err != nil {
		return err
	}

	orch := bridge.New(bridge.Config{
		Host:       host,
		Port:       port,
		PlayerName: identity.Name,
		PlayerUUID: identity.UUID,
		BotToken:   botToken,
		GuildID:    guildID,
		ChannelID:  channelID,
	})
	orch.OnError = func(err error) {
		cmd.PrintErrln("bridge error:", err)
	}

	if err := orch.Start(); err != nil {
		return fmt.Errorf("starting bridge: %w", err)
	}
	defer orch.Shutdown()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	return nil
}

// resolveIdentity produces the (uuid, name) pair the game login uses.
// Without MSA_CLIENT_ID it returns an offline profile. With MSA_CLIENT_ID
// set it loads the persisted .auth.json but does not refresh it, since no
// Authenticator is wired in: it returns an error when the file is missing
// and ErrAuthRefreshFailed when it is present.
func resolveIdentity() (msalogin.Identity, error) {
	if os.Getenv("MSA_CLIENT_ID") == "" {
		return msalogin.OfflineAuthenticator{Username: "DiscordBridge"}.Identity(), nil
	}

	auth, found, err := msalogin.LoadAuthFile()
	if err != nil {
		return msalogin.Identity{}, err
	}
	if !found {
		return msalogin.Identity{}, fmt.Errorf("MSA_CLIENT_ID is set but no .auth.json was found; log in first")
	}

	// The interactive device-code exchange itself is an external
	// collaborator (see msalogin.Authenticator); without a concrete
	// implementation wired in, a stale token cannot be refreshed.
	_ = auth
	return msalogin.Identity{}, fmt.Errorf("%w: no Authenticator configured to refresh .auth.json", msalogin.ErrAuthRefreshFailed)
}

func envOr(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}
