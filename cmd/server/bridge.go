package main

import (
	"fmt"
	"log/slog"

	"github.com/ashureev/points-bridge/internal/api"
	"github.com/ashureev/points-bridge/internal/config"
	"github.com/ashureev/points-bridge/internal/discord"
	"github.com/ashureev/points-bridge/internal/feed"
	"github.com/ashureev/points-bridge/internal/store"
	"github.com/bwmarrin/discordgo"
)

// bridge holds the Discord side of the service. conn and session are nil
// when Discord is not configured; notifications then fail with
// discord.ErrNotConnected and the rest of the API keeps working.
type bridge struct {
	session  *discordgo.Session
	conn     *discord.ConnectionManager
	notifier *discord.Notifier
	router   *discord.Router
}

func newBridge(cfg *config.Config, repo store.Repository, hub *feed.Hub, logger *slog.Logger) (*bridge, error) {
	b := &bridge{}
	logger = logger.With("component", "discord")

	var (
		connector discord.Connector = discord.Offline{}
		messages  discord.MessageAPI
	)
	if err := cfg.Discord.Validate(); err != nil {
		logger.Warn("Discord bridge disabled", "error", err)
	} else {
		session, err := discordgo.New("Bot " + cfg.Discord.Token)
		if err != nil {
			return nil, fmt.Errorf("create discord session: %w", err)
		}
		// Reconnects are owned by the connection manager.
		session.ShouldReconnectOnError = false
		session.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildMessages

		b.session = session
		b.conn = discord.NewConnectionManager(session, discord.ConnectionConfig{
			MaxAttempts:  cfg.Discord.MaxAttempts,
			RetryDelay:   cfg.Discord.RetryDelay,
			PollInterval: cfg.Discord.PollInterval,
			PollAttempts: cfg.Discord.PollAttempts,
		}, logger)
		connector, messages = b.conn, session
	}

	b.notifier = discord.NewNotifier(connector, messages, repo, cfg.Discord.ChannelID, logger)
	updater := discord.NewUpdater(connector, messages, cfg.Discord.ChannelID, logger)
	b.router = discord.NewRouter(repo, updater, b.notifier, hub, cfg.Discord.CustomPointSet, logger)

	if b.session != nil {
		listener := discord.NewListener(b.router, b.session, cfg.HandlerTimeout, logger)
		b.session.AddHandler(listener.OnInteractionCreate)
	}
	return b, nil
}

// status returns the health reporter, or nil when the bridge is disabled.
func (b *bridge) status() api.DiscordStatus {
	if b.conn == nil {
		return nil
	}
	return b.conn
}
