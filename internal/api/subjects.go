package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/ashureev/points-bridge/internal/discord"
	"github.com/ashureev/points-bridge/internal/domain"
	"github.com/ashureev/points-bridge/internal/feed"
	"github.com/go-chi/chi/v5"
)

// SubjectRepository is the persistence used by the intake endpoints.
type SubjectRepository interface {
	CreateReceipt(ctx context.Context, receipt *domain.Receipt) error
	GetReceipt(ctx context.Context, receiptID string) (*domain.Receipt, error)
	CreateOrder(ctx context.Context, order *domain.Order) error
	GetOrder(ctx context.Context, orderID string) (*domain.Order, error)
	CancelOrder(ctx context.Context, orderID string) (*domain.Order, error)
}

// Notifier announces new subjects. *discord.Notifier implements it.
type Notifier interface {
	NotifyReceipt(ctx context.Context, receiptID string) (string, error)
	NotifyOrder(ctx context.Context, orderID string) (string, error)
}

// SubjectHandler accepts receipts and orders from the web app and posts them
// for review.
type SubjectHandler struct {
	repo      SubjectRepository
	notifier  Notifier
	publisher discord.Publisher
	timeout   time.Duration
	logger    *slog.Logger
}

// NewSubjectHandler creates the intake handler. publisher may be nil.
func NewSubjectHandler(repo SubjectRepository, notifier Notifier, publisher discord.Publisher, timeout time.Duration, logger *slog.Logger) *SubjectHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &SubjectHandler{
		repo:      repo,
		notifier:  notifier,
		publisher: publisher,
		timeout:   timeout,
		logger:    logger,
	}
}

// RegisterRoutes registers intake routes.
func (h *SubjectHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Post("/receipts", h.CreateReceipt)
		r.Get("/receipts/{id}", h.GetReceipt)
		r.Post("/receipts/{id}/notify", h.NotifyReceipt)
		r.Post("/orders", h.CreateOrder)
		r.Get("/orders/{id}", h.GetOrder)
	})
}

type itemRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type receiptRequest struct {
	UserID   string        `json:"user_id"`
	ImageURL string        `json:"image_url"`
	Items    []itemRequest `json:"items"`
}

type orderRequest struct {
	UserID string        `json:"user_id"`
	Items  []itemRequest `json:"items"`
}

func lineItems(items []itemRequest) ([]domain.LineItem, error) {
	if len(items) == 0 {
		return nil, errors.New("items are required")
	}
	out := make([]domain.LineItem, 0, len(items))
	for i, item := range items {
		if strings.TrimSpace(item.ProductID) == "" {
			return nil, fmt.Errorf("items[%d]: product_id is required", i)
		}
		if item.Quantity <= 0 {
			return nil, fmt.Errorf("items[%d]: quantity must be positive", i)
		}
		out = append(out, domain.LineItem{Product: domain.Product{ID: item.ProductID}, Quantity: item.Quantity})
	}
	return out, nil
}

// CreateReceipt stores a pending receipt and posts it for review. When the
// post fails the receipt stays pending without a message and 502 is returned.
func (h *SubjectHandler) CreateReceipt(w http.ResponseWriter, r *http.Request) {
	var req receiptRequest
	if err := decodeJSON(w, r, &req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.UserID == "" || strings.TrimSpace(req.ImageURL) == "" {
		Error(w, http.StatusBadRequest, "user_id and image_url are required")
		return
	}
	items, err := lineItems(req.Items)
	if err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	receipt := &domain.Receipt{UserID: req.UserID, ImageURL: req.ImageURL, Items: items}
	if err := h.repo.CreateReceipt(ctx, receipt); err != nil {
		h.fail(w, "Failed to create receipt", err)
		return
	}
	h.publish(feed.KindReceipt, receipt.ID, string(receipt.Status), 0)

	if _, err := h.notifier.NotifyReceipt(ctx, receipt.ID); err != nil {
		h.logger.Error("Receipt stored but review notification failed", "error", err, "receipt_id", receipt.ID)
		JSON(w, http.StatusBadGateway, map[string]string{
			"error":      "receipt stored but review notification failed",
			"receipt_id": receipt.ID,
		})
		return
	}

	h.respondReceipt(ctx, w, http.StatusCreated, receipt.ID)
}

// GetReceipt returns a receipt.
func (h *SubjectHandler) GetReceipt(w http.ResponseWriter, r *http.Request) {
	h.respondReceipt(r.Context(), w, http.StatusOK, chi.URLParam(r, "id"))
}

// NotifyReceipt posts a receipt that has no review message yet, such as one
// whose first post failed. Receipts already posted are not posted again.
func (h *SubjectHandler) NotifyReceipt(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	messageID, err := h.notifier.NotifyReceipt(ctx, id)
	switch {
	case errors.Is(err, discord.ErrAlreadyNotified):
		JSON(w, http.StatusOK, map[string]interface{}{"message_id": messageID, "already_notified": true})
	case err != nil:
		status := StatusFor(err)
		if status == http.StatusInternalServerError || status == http.StatusServiceUnavailable {
			h.logger.Error("Receipt notification failed", "error", err, "receipt_id", id)
			Error(w, http.StatusBadGateway, "review notification failed")
			return
		}
		Error(w, status, messageFor(err))
	default:
		JSON(w, http.StatusOK, map[string]interface{}{"message_id": messageID, "already_notified": false})
	}
}

// CreateOrder debits the user, stores a pending order and posts it for
// fulfilment. When the post fails the order is cancelled and refunded.
func (h *SubjectHandler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req orderRequest
	if err := decodeJSON(w, r, &req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.UserID == "" {
		Error(w, http.StatusBadRequest, "user_id is required")
		return
	}
	items, err := lineItems(req.Items)
	if err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	order := &domain.Order{UserID: req.UserID, Items: items}
	if err := h.repo.CreateOrder(ctx, order); err != nil {
		h.fail(w, "Failed to create order", err)
		return
	}
	h.publish(feed.KindOrder, order.ID, string(order.Status), order.TotalPoints)

	if _, err := h.notifier.NotifyOrder(ctx, order.ID); err != nil {
		h.logger.Error("Order notification failed, cancelling", "error", err, "order_id", order.ID)

		// The request context may be exhausted; the refund must still run.
		cancelCtx, cancelFn := context.WithTimeout(context.WithoutCancel(ctx), h.timeout)
		defer cancelFn()
		if cancelled, cerr := h.repo.CancelOrder(cancelCtx, order.ID); cerr != nil {
			h.logger.Error("Failed to cancel order after notification failure", "error", cerr, "order_id", order.ID)
		} else {
			h.publish(feed.KindOrder, cancelled.ID, string(cancelled.Status), cancelled.TotalPoints)
		}
		JSON(w, http.StatusBadGateway, map[string]string{
			"error":    "order cancelled: review notification failed",
			"order_id": order.ID,
		})
		return
	}

	h.respondOrder(ctx, w, http.StatusCreated, order.ID)
}

// GetOrder returns an order.
func (h *SubjectHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	h.respondOrder(r.Context(), w, http.StatusOK, chi.URLParam(r, "id"))
}

func (h *SubjectHandler) respondReceipt(ctx context.Context, w http.ResponseWriter, status int, id string) {
	receipt, err := h.repo.GetReceipt(ctx, id)
	if err != nil {
		h.fail(w, "Failed to load receipt", err)
		return
	}
	JSON(w, status, receipt)
}

func (h *SubjectHandler) respondOrder(ctx context.Context, w http.ResponseWriter, status int, id string) {
	order, err := h.repo.GetOrder(ctx, id)
	if err != nil {
		h.fail(w, "Failed to load order", err)
		return
	}
	JSON(w, status, order)
}

func (h *SubjectHandler) fail(w http.ResponseWriter, msg string, err error) {
	status := StatusFor(err)
	if status == http.StatusInternalServerError {
		h.logger.Error(msg, "error", err)
	}
	Error(w, status, messageFor(err))
}

func (h *SubjectHandler) publish(kind, id, status string, points int) {
	if h.publisher == nil {
		return
	}
	h.publisher.Publish(feed.Event{
		Kind:      kind,
		SubjectID: id,
		Status:    status,
		Points:    points,
		At:        time.Now().UTC(),
	})
}
