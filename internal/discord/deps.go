package discord

import (
	"context"
	"errors"

	"github.com/ashureev/points-bridge/internal/domain"
	"github.com/ashureev/points-bridge/internal/feed"
	"github.com/bwmarrin/discordgo"
)

var (
	// ErrNotConnected is returned when no ready session could be obtained.
	ErrNotConnected = errors.New("discord session not connected")
	// ErrAlreadyNotified is returned with the existing message id when a
	// subject has been posted before.
	ErrAlreadyNotified = errors.New("subject already notified")
	// ErrMissingImage is returned for receipts without an image reference.
	ErrMissingImage = errors.New("receipt has no image")
	// ErrNoMessage is returned when a subject has no remote message to edit.
	ErrNoMessage = errors.New("no remote message")
)

// Connector hands out a ready session. *ConnectionManager implements it.
type Connector interface {
	EnsureConnected(ctx context.Context) bool
}

// MessageAPI is the REST surface of *discordgo.Session used for messages.
type MessageAPI interface {
	Channel(channelID string, options ...discordgo.RequestOption) (*discordgo.Channel, error)
	ChannelMessage(channelID, messageID string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageEditComplex(m *discordgo.MessageEdit, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// InteractionResponder acknowledges gateway interactions.
type InteractionResponder interface {
	InteractionRespond(interaction *discordgo.Interaction, resp *discordgo.InteractionResponse, options ...discordgo.RequestOption) error
}

// Store is the persistence the bridge needs. store.Repository satisfies it.
type Store interface {
	GetUser(ctx context.Context, id string) (*domain.User, error)
	GetReceipt(ctx context.Context, id string) (*domain.Receipt, error)
	SetReceiptMessageID(ctx context.Context, id, messageID string) error
	ApproveReceipt(ctx context.Context, id string, points int) (*domain.Receipt, error)
	RejectReceipt(ctx context.Context, id string) (*domain.Receipt, error)
	GetOrder(ctx context.Context, id string) (*domain.Order, error)
	SetOrderMessageID(ctx context.Context, id, messageID string) error
	TransitionOrder(ctx context.Context, id string, from, to domain.OrderStatus) (*domain.Order, error)
}

// Publisher receives status changes. *feed.Hub implements it.
type Publisher interface {
	Publish(ev feed.Event)
}

type nopPublisher struct{}

func (nopPublisher) Publish(feed.Event) {}

// Offline is the Connector used when the bridge is not configured. It never
// yields a session, so sends and edits fail with ErrNotConnected.
type Offline struct{}

// EnsureConnected always returns false.
func (Offline) EnsureConnected(context.Context) bool { return false }
