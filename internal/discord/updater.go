package discord

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bwmarrin/discordgo"
)

// Updater edits posted messages to reflect subject state.
type Updater struct {
	conn      Connector
	api       MessageAPI
	channelID string
	logger    *slog.Logger
}

// NewUpdater creates an updater for messages in channelID.
func NewUpdater(conn Connector, api MessageAPI, channelID string, logger *slog.Logger) *Updater {
	if logger == nil {
		logger = slog.Default()
	}
	return &Updater{conn: conn, api: api, channelID: channelID, logger: logger}
}

// UpdateMessage rewrites the status line, title glyph and color of a message
// and optionally disables its buttons. It returns the edited message id.
func (u *Updater) UpdateMessage(ctx context.Context, messageID, statusText string, success, disableButtons bool) (string, error) {
	msg, err := u.fetch(ctx, messageID)
	if err != nil {
		return "", err
	}

	color, glyph := statusStyle(statusText, success)
	embeds := make([]*discordgo.MessageEmbed, 0, len(msg.Embeds))
	if len(msg.Embeds) == 0 {
		embeds = append(embeds, &discordgo.MessageEmbed{
			Title:       glyph,
			Description: statusLine(statusText),
			Color:       color,
		})
	} else {
		first := *msg.Embeds[0]
		first.Color = color
		first.Title = setTitleGlyph(first.Title, glyph)
		first.Description = setStatusLine(first.Description, statusText)
		embeds = append(embeds, &first)
		embeds = append(embeds, msg.Embeds[1:]...)
	}

	edit := discordgo.NewMessageEdit(u.channelID, messageID)
	edit.Embeds = &embeds
	if disableButtons {
		components := disableComponents(msg.Components)
		edit.Components = &components
	}

	edited, err := u.api.ChannelMessageEditComplex(edit, discordgo.WithContext(ctx))
	if err != nil {
		u.logger.Error("Failed to edit message", "error", err, "message_id", messageID, "status", statusText)
		return "", fmt.Errorf("edit message %s: %w", messageID, err)
	}
	u.logger.Info("Message updated", "message_id", messageID, "status", statusText, "buttons_disabled", disableButtons)
	return edited.ID, nil
}

// CollapseMessage replaces a message with plain content and strips its
// embeds and components.
func (u *Updater) CollapseMessage(ctx context.Context, messageID, content string) error {
	if _, err := u.fetch(ctx, messageID); err != nil {
		return err
	}

	embeds := []*discordgo.MessageEmbed{}
	components := []discordgo.MessageComponent{}
	edit := discordgo.NewMessageEdit(u.channelID, messageID).SetContent(content)
	edit.Embeds = &embeds
	edit.Components = &components

	if _, err := u.api.ChannelMessageEditComplex(edit, discordgo.WithContext(ctx)); err != nil {
		u.logger.Error("Failed to collapse message", "error", err, "message_id", messageID)
		return fmt.Errorf("collapse message %s: %w", messageID, err)
	}
	return nil
}

func (u *Updater) fetch(ctx context.Context, messageID string) (*discordgo.Message, error) {
	if messageID == "" {
		return nil, ErrNoMessage
	}
	if !u.conn.EnsureConnected(ctx) {
		return nil, ErrNotConnected
	}
	if _, err := u.api.Channel(u.channelID, discordgo.WithContext(ctx)); err != nil {
		u.logger.Error("Review channel not found", "error", err, "channel_id", u.channelID)
		return nil, fmt.Errorf("fetch channel %s: %w", u.channelID, err)
	}
	msg, err := u.api.ChannelMessage(u.channelID, messageID, discordgo.WithContext(ctx))
	if err != nil {
		u.logger.Error("Message not found", "error", err, "message_id", messageID)
		return nil, fmt.Errorf("fetch message %s: %w", messageID, err)
	}
	return msg, nil
}
