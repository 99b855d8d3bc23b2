package discord

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ashureev/points-bridge/internal/domain"
	"github.com/ashureev/points-bridge/internal/feed"
	"github.com/ashureev/points-bridge/internal/store"
)

// Interaction is a decoded button click. MessageID is the message the button
// was on, which differs from the subject's own message for the custom
// points menu.
type Interaction struct {
	Action    domain.Action
	MessageID string
	Actor     string
}

// Ack describes the outcome of a handled interaction.
type Ack struct {
	Kind           domain.ActionKind `json:"kind"`
	SubjectID      string            `json:"subject_id"`
	Status         string            `json:"status"`
	Points         int               `json:"points,omitempty"`
	MessageID      string            `json:"message_id,omitempty"`
	MessageUpdated bool              `json:"message_updated"`
	Message        string            `json:"message"`
}

// MessageUpdater edits remote messages. *Updater implements it.
type MessageUpdater interface {
	UpdateMessage(ctx context.Context, messageID, statusText string, success, disableButtons bool) (string, error)
	CollapseMessage(ctx context.Context, messageID, content string) error
}

// MenuSender posts the custom points selection. *Notifier implements it.
type MenuSender interface {
	SendCustomPointsMenu(ctx context.Context, r *domain.Receipt, values []int) (string, error)
}

// Router applies button actions to subjects and mirrors the result onto the
// remote messages. Store mutations are committed before any message edit;
// a failed edit is logged and never rolls the mutation back.
type Router struct {
	store     Store
	updater   MessageUpdater
	menu      MenuSender
	publisher Publisher
	points    []int
	logger    *slog.Logger

	mu    sync.Mutex
	menus map[string]string // receipt id -> open custom points menu
}

// NewRouter creates a router. publisher may be nil.
func NewRouter(st Store, updater MessageUpdater, menu MenuSender, publisher Publisher, customPoints []int, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	if publisher == nil {
		publisher = nopPublisher{}
	}
	return &Router{
		store:     st,
		updater:   updater,
		menu:      menu,
		publisher: publisher,
		points:    customPoints,
		logger:    logger,
		menus:     make(map[string]string),
	}
}

// Handle performs the action in in. Errors wrap domain.ErrInvalidAction,
// store.ErrNotFound or store.ErrInvalidTransition where they apply.
func (rt *Router) Handle(ctx context.Context, in Interaction) (Ack, error) {
	a := in.Action
	if err := a.Validate(); err != nil {
		return Ack{}, err
	}

	logger := rt.logger.With("action", a.Kind, "subject_id", a.SubjectID, "actor", in.Actor)
	logger.Info("Handling interaction", "message_id", in.MessageID)

	var (
		ack Ack
		err error
	)
	if a.IsOrderAction() {
		ack, err = rt.handleOrder(ctx, logger, in)
	} else {
		ack, err = rt.handleReceipt(ctx, logger, in)
	}
	if err != nil {
		logger.Warn("Interaction rejected", "error", err)
		return Ack{}, err
	}
	ack.Kind = a.Kind
	ack.SubjectID = a.SubjectID
	return ack, nil
}

func (rt *Router) handleReceipt(ctx context.Context, logger *slog.Logger, in Interaction) (Ack, error) {
	switch in.Action.Kind {
	case domain.ActionApproveReceipt:
		return rt.approve(ctx, logger, in, false)
	case domain.ActionApproveCustom:
		return rt.approve(ctx, logger, in, true)
	case domain.ActionRejectReceipt:
		return rt.reject(ctx, logger, in)
	case domain.ActionCustomPoints:
		return rt.customPoints(ctx, logger, in)
	case domain.ActionCancelCustom:
		return rt.cancelCustom(ctx, logger, in)
	}
	return Ack{}, fmt.Errorf("%w: %s", domain.ErrInvalidAction, in.Action.Kind)
}

func (rt *Router) handleOrder(ctx context.Context, logger *slog.Logger, in Interaction) (Ack, error) {
	switch in.Action.Kind {
	case domain.ActionProcessOrder:
		return rt.transitionOrder(ctx, logger, in, domain.OrderPending, domain.OrderProcessing)
	case domain.ActionCompleteOrder:
		return rt.transitionOrder(ctx, logger, in, domain.OrderProcessing, domain.OrderCompleted)
	}
	return Ack{}, fmt.Errorf("%w: %s", domain.ErrInvalidAction, in.Action.Kind)
}

func (rt *Router) approve(ctx context.Context, logger *slog.Logger, in Interaction, fromMenu bool) (Ack, error) {
	r, err := rt.store.ApproveReceipt(ctx, in.Action.SubjectID, in.Action.Points)
	if err != nil {
		return Ack{}, err
	}
	rt.publishReceipt(r)

	target := subjectMessage(r.MessageID, in.MessageID, fromMenu)
	ack := Ack{
		Status:    string(r.Status),
		Points:    r.PointsAwarded,
		MessageID: target,
		Message:   fmt.Sprintf("Receipt approved with %s.", formatPoints(r.PointsAwarded)),
	}
	ack.MessageUpdated = rt.render(ctx, logger, target, domain.ReceiptPending.DisplayState(), r.DisplayState(), r.PointsAwarded)

	done := fmt.Sprintf("%s Receipt `%s` approved with %s.", glyphSuccess, r.ID, formatPoints(r.PointsAwarded))
	open := rt.takeMenu(r.ID)
	if fromMenu && in.MessageID != "" && in.MessageID != target {
		rt.collapse(ctx, logger, in.MessageID, done)
	}
	if open != "" && open != in.MessageID {
		rt.collapse(ctx, logger, open, done)
	}
	return ack, nil
}

func (rt *Router) reject(ctx context.Context, logger *slog.Logger, in Interaction) (Ack, error) {
	r, err := rt.store.RejectReceipt(ctx, in.Action.SubjectID)
	if err != nil {
		return Ack{}, err
	}
	rt.publishReceipt(r)

	target := subjectMessage(r.MessageID, in.MessageID, false)
	ack := Ack{
		Status:    string(r.Status),
		MessageID: target,
		Message:   "Receipt rejected.",
	}
	ack.MessageUpdated = rt.render(ctx, logger, target, domain.ReceiptPending.DisplayState(), r.DisplayState(), 0)

	if open := rt.takeMenu(r.ID); open != "" {
		rt.collapse(ctx, logger, open, fmt.Sprintf("%s Receipt `%s` rejected.", glyphFailure, r.ID))
	}
	return ack, nil
}

func (rt *Router) customPoints(ctx context.Context, logger *slog.Logger, in Interaction) (Ack, error) {
	r, err := rt.store.GetReceipt(ctx, in.Action.SubjectID)
	if err != nil {
		return Ack{}, err
	}
	if !r.IsMultiProduct() {
		return Ack{}, fmt.Errorf("%w: custom points need a multi-product receipt", domain.ErrInvalidAction)
	}
	if r.Status.IsTerminal() {
		return Ack{}, fmt.Errorf("receipt %s is %s: %w", r.ID, r.Status, store.ErrInvalidTransition)
	}

	menuID, err := rt.menu.SendCustomPointsMenu(ctx, r, rt.points)
	if err != nil {
		return Ack{}, err
	}
	if prev := rt.swapMenu(r.ID, menuID); prev != "" {
		rt.collapse(ctx, logger, prev, fmt.Sprintf("%s Custom points selection for receipt `%s` replaced by a newer one.", glyphFailure, r.ID))
	}

	ack := Ack{
		Status:    string(r.Status),
		MessageID: menuID,
		Message:   "Choose the points to award.",
	}
	// The receipt stays pending, so this is a note on the message rather
	// than a display transition.
	target := subjectMessage(r.MessageID, in.MessageID, false)
	ack.MessageUpdated = rt.update(ctx, logger, target, "Awaiting custom points selection", true, false)
	return ack, nil
}

func (rt *Router) cancelCustom(ctx context.Context, logger *slog.Logger, in Interaction) (Ack, error) {
	r, err := rt.store.GetReceipt(ctx, in.Action.SubjectID)
	if err != nil {
		return Ack{}, err
	}

	ack := Ack{
		Status:    string(r.Status),
		MessageID: in.MessageID,
		Message:   "Custom points selection cancelled.",
	}
	if in.MessageID != "" {
		rt.dropMenu(r.ID, in.MessageID)
		content := fmt.Sprintf("%s Custom points selection for receipt `%s` cancelled.", glyphFailure, r.ID)
		ack.MessageUpdated = rt.collapse(ctx, logger, in.MessageID, content)
	}
	return ack, nil
}

func (rt *Router) transitionOrder(ctx context.Context, logger *slog.Logger, in Interaction, from, to domain.OrderStatus) (Ack, error) {
	o, err := rt.store.TransitionOrder(ctx, in.Action.SubjectID, from, to)
	if err != nil {
		return Ack{}, err
	}
	rt.publisher.Publish(feed.Event{
		Kind:      feed.KindOrder,
		SubjectID: o.ID,
		Status:    string(o.Status),
		Points:    o.TotalPoints,
		MessageID: o.MessageID,
		At:        time.Now().UTC(),
	})

	target := subjectMessage(o.MessageID, in.MessageID, false)
	ack := Ack{
		Status:    string(o.Status),
		MessageID: target,
		Message:   fmt.Sprintf("Order marked %s.", o.Status),
	}
	ack.MessageUpdated = rt.render(ctx, logger, target, from.DisplayState(), o.DisplayState(), o.TotalPoints)
	return ack, nil
}

// render mirrors a display transition onto a message. Terminal states
// disable the buttons; transitions that would move the display backwards
// are not applied.
func (rt *Router) render(ctx context.Context, logger *slog.Logger, messageID string, from, to domain.DisplayState, points int) bool {
	if !from.CanAdvanceTo(to) {
		logger.Warn("Display transition refused", "from", from, "to", to, "message_id", messageID)
		return false
	}
	return rt.update(ctx, logger, messageID, displayText(to, points), to != domain.DisplayRejected, to.IsTerminal())
}

// update edits a message and reports whether it succeeded.
func (rt *Router) update(ctx context.Context, logger *slog.Logger, messageID, statusText string, success, disable bool) bool {
	if messageID == "" {
		logger.Warn("Subject has no message to update", "status", statusText)
		return false
	}
	if _, err := rt.updater.UpdateMessage(ctx, messageID, statusText, success, disable); err != nil {
		logger.Error("Message update failed, state change kept", "error", err, "message_id", messageID)
		return false
	}
	return true
}

func (rt *Router) collapse(ctx context.Context, logger *slog.Logger, messageID, content string) bool {
	if err := rt.updater.CollapseMessage(ctx, messageID, content); err != nil {
		logger.Error("Failed to collapse custom points menu", "error", err, "message_id", messageID)
		return false
	}
	return true
}

// swapMenu records menuID as the open menu for a receipt and returns the
// one it replaces.
func (rt *Router) swapMenu(receiptID, menuID string) string {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	prev := rt.menus[receiptID]
	rt.menus[receiptID] = menuID
	return prev
}

func (rt *Router) takeMenu(receiptID string) string {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	id := rt.menus[receiptID]
	delete(rt.menus, receiptID)
	return id
}

func (rt *Router) dropMenu(receiptID, menuID string) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if rt.menus[receiptID] == menuID {
		delete(rt.menus, receiptID)
	}
}

func (rt *Router) publishReceipt(r *domain.Receipt) {
	rt.publisher.Publish(feed.Event{
		Kind:      feed.KindReceipt,
		SubjectID: r.ID,
		Status:    string(r.Status),
		Points:    r.PointsAwarded,
		MessageID: r.MessageID,
		At:        time.Now().UTC(),
	})
}

// subjectMessage picks the message showing the subject: its stored id, or
// the clicked message when none is stored and the click did not come from
// the custom points menu.
func subjectMessage(stored, clicked string, fromMenu bool) string {
	if stored != "" || fromMenu {
		return stored
	}
	return clicked
}
