package discord

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ashureev/points-bridge/internal/domain"
	"github.com/ashureev/points-bridge/internal/store"
	"github.com/bwmarrin/discordgo"
)

// Notifier posts review messages for new subjects.
type Notifier struct {
	conn      Connector
	api       MessageAPI
	store     Store
	channelID string
	logger    *slog.Logger
	now       func() time.Time
}

// NewNotifier creates a notifier that posts into channelID.
func NewNotifier(conn Connector, api MessageAPI, store Store, channelID string, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{
		conn:      conn,
		api:       api,
		store:     store,
		channelID: channelID,
		logger:    logger,
		now:       time.Now,
	}
}

// NotifyReceipt posts the review message for a receipt and records its id.
// Decided receipts are refused with store.ErrInvalidTransition. A receipt that already has a message is not posted again; its id is
// returned with ErrAlreadyNotified.
func (n *Notifier) NotifyReceipt(ctx context.Context, receiptID string) (string, error) {
	r, err := n.store.GetReceipt(ctx, receiptID)
	if err != nil {
		return "", fmt.Errorf("load receipt: %w", err)
	}
	if r.MessageID != "" {
		return r.MessageID, ErrAlreadyNotified
	}
	if r.Status.IsTerminal() {
		return "", fmt.Errorf("receipt %s is %s: %w", r.ID, r.Status, store.ErrInvalidTransition)
	}
	if r.ImageURL == "" {
		return "", ErrMissingImage
	}
	owner, err := n.store.GetUser(ctx, r.UserID)
	if err != nil {
		return "", fmt.Errorf("resolve receipt owner: %w", err)
	}
	if !n.conn.EnsureConnected(ctx) {
		return "", ErrNotConnected
	}

	return n.post(ctx, receiptMessage(r, owner, n.now()), func(messageID string) error {
		return n.store.SetReceiptMessageID(ctx, r.ID, messageID)
	}, "receipt_id", r.ID)
}

// NotifyOrder posts the fulfilment message for an order and records its id.
func (n *Notifier) NotifyOrder(ctx context.Context, orderID string) (string, error) {
	o, err := n.store.GetOrder(ctx, orderID)
	if err != nil {
		return "", fmt.Errorf("load order: %w", err)
	}
	if o.MessageID != "" {
		return o.MessageID, ErrAlreadyNotified
	}
	if o.Status.IsTerminal() {
		return "", fmt.Errorf("order %s is %s: %w", o.ID, o.Status, store.ErrInvalidTransition)
	}
	owner, err := n.store.GetUser(ctx, o.UserID)
	if err != nil {
		return "", fmt.Errorf("resolve order owner: %w", err)
	}
	if !n.conn.EnsureConnected(ctx) {
		return "", ErrNotConnected
	}

	return n.post(ctx, orderMessage(o, owner, n.now()), func(messageID string) error {
		return n.store.SetOrderMessageID(ctx, o.ID, messageID)
	}, "order_id", o.ID)
}

// SendCustomPointsMenu posts the point selection message for a receipt.
func (n *Notifier) SendCustomPointsMenu(ctx context.Context, r *domain.Receipt, values []int) (string, error) {
	if len(values) == 0 {
		return "", errors.New("no custom point values configured")
	}
	if !n.conn.EnsureConnected(ctx) {
		return "", ErrNotConnected
	}
	msg, err := n.api.ChannelMessageSendComplex(n.channelID, customPointsMessage(r, values), discordgo.WithContext(ctx))
	if err != nil {
		n.logger.Error("Failed to send custom points menu", "error", err, "receipt_id", r.ID)
		return "", fmt.Errorf("send custom points menu: %w", err)
	}
	n.logger.Info("Custom points menu sent", "receipt_id", r.ID, "message_id", msg.ID)
	return msg.ID, nil
}

func (n *Notifier) post(ctx context.Context, send *discordgo.MessageSend, record func(string) error, idKey, id string) (string, error) {
	msg, err := n.api.ChannelMessageSendComplex(n.channelID, send, discordgo.WithContext(ctx))
	if err != nil {
		n.logger.Error("Failed to send notification", "error", err, idKey, id, "channel_id", n.channelID)
		return "", fmt.Errorf("send notification: %w", err)
	}
	if err := record(msg.ID); err != nil {
		n.logger.Error("Notification sent but message id not stored",
			"error", err, idKey, id, "message_id", msg.ID)
		return msg.ID, fmt.Errorf("store message id: %w", err)
	}
	n.logger.Info("Notification sent", idKey, id, "message_id", msg.ID)
	return msg.ID, nil
}
