package discord

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ashureev/points-bridge/internal/domain"
	"github.com/bwmarrin/discordgo"
)

// Handler routes decoded interactions. *Router implements it.
type Handler interface {
	Handle(ctx context.Context, in Interaction) (Ack, error)
}

// Decode turns a component interaction into a typed Interaction.
func Decode(i *discordgo.Interaction) (Interaction, error) {
	if i == nil || i.Type != discordgo.InteractionMessageComponent {
		return Interaction{}, fmt.Errorf("%w: not a component interaction", domain.ErrInvalidAction)
	}
	data, ok := i.Data.(discordgo.MessageComponentInteractionData)
	if !ok {
		return Interaction{}, fmt.Errorf("%w: missing component data", domain.ErrInvalidAction)
	}
	action, err := domain.ParseAction(data.CustomID)
	if err != nil {
		return Interaction{}, err
	}
	in := Interaction{Action: action, Actor: actorName(i)}
	if i.Message != nil {
		in.MessageID = i.Message.ID
	}
	return in, nil
}

func actorName(i *discordgo.Interaction) string {
	switch {
	case i.Member != nil && i.Member.User != nil:
		return i.Member.User.Username
	case i.User != nil:
		return i.User.Username
	default:
		return ""
	}
}

// Listener handles button clicks that arrive over the gateway. Each click is
// acknowledged with a deferred update before any work happens so the
// three-second response window is never missed.
type Listener struct {
	handler   Handler
	responder InteractionResponder
	timeout   time.Duration
	logger    *slog.Logger
}

// NewListener creates a gateway listener. timeout bounds the work done for
// a single click.
func NewListener(handler Handler, responder InteractionResponder, timeout time.Duration, logger *slog.Logger) *Listener {
	if logger == nil {
		logger = slog.Default()
	}
	return &Listener{handler: handler, responder: responder, timeout: timeout, logger: logger}
}

// OnInteractionCreate is registered with discordgo's AddHandler.
func (l *Listener) OnInteractionCreate(_ *discordgo.Session, ic *discordgo.InteractionCreate) {
	if ic.Interaction == nil || ic.Type != discordgo.InteractionMessageComponent {
		return
	}

	if err := l.responder.InteractionRespond(ic.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredMessageUpdate,
	}); err != nil {
		l.logger.Warn("Failed to acknowledge interaction", "error", err, "interaction_id", ic.ID)
	}

	in, err := Decode(ic.Interaction)
	if err != nil {
		l.logger.Warn("Ignoring malformed interaction", "error", err, "interaction_id", ic.ID)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), l.timeout)
	defer cancel()

	ack, err := l.handler.Handle(ctx, in)
	if err != nil {
		l.logger.Warn("Gateway interaction failed", "error", err, "interaction_id", ic.ID)
		return
	}
	l.logger.Info("Gateway interaction handled",
		"interaction_id", ic.ID, "subject_id", ack.SubjectID, "status", ack.Status)
}
