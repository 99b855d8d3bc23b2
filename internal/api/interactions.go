package api

import (
	"context"
	"crypto/ed25519"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/ashureev/points-bridge/internal/discord"
	"github.com/ashureev/points-bridge/internal/domain"
	"github.com/bwmarrin/discordgo"
	"github.com/go-chi/chi/v5"
)

// InteractionsHandler receives button clicks from the web app relay and
// from Discord's interaction webhook.
type InteractionsHandler struct {
	router    discord.Handler
	publicKey ed25519.PublicKey
	timeout   time.Duration
	logger    *slog.Logger

	inflight sync.WaitGroup
}

// NewInteractionsHandler creates the handler. A nil publicKey disables the
// webhook endpoint.
func NewInteractionsHandler(router discord.Handler, publicKey ed25519.PublicKey, timeout time.Duration, logger *slog.Logger) *InteractionsHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &InteractionsHandler{
		router:    router,
		publicKey: publicKey,
		timeout:   timeout,
		logger:    logger,
	}
}

// RegisterRoutes registers interaction routes. relayAuth guards the relay.
func (h *InteractionsHandler) RegisterRoutes(r chi.Router, relayAuth func(http.Handler) http.Handler) {
	r.Route("/api/discord/interactions", func(r chi.Router) {
		r.Post("/", h.Webhook)
		r.With(relayAuth).Post("/relay", h.Relay)
	})
}

type relayRequest struct {
	ActionID           string `json:"actionId"`
	CustomActionString string `json:"customActionString"`
	RemoteMessageID    string `json:"remoteMessageId"`
}

type relayResponse struct {
	OK      bool         `json:"ok"`
	Status  string       `json:"status"`
	Message string       `json:"message"`
	Ack     *discord.Ack `json:"ack,omitempty"`
}

// Relay handles a click forwarded by the web app and answers synchronously.
func (h *InteractionsHandler) Relay(w http.ResponseWriter, r *http.Request) {
	var req relayRequest
	if err := decodeJSON(w, r, &req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	action, err := domain.ParseAction(req.CustomActionString)
	if err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	ack, err := h.router.Handle(ctx, discord.Interaction{
		Action:    action,
		MessageID: req.RemoteMessageID,
		Actor:     "relay:" + req.ActionID,
	})
	if err != nil {
		status := StatusFor(err)
		if status == http.StatusInternalServerError {
			h.logger.Error("Relay interaction failed", "error", err, "action_id", req.ActionID)
		}
		Error(w, status, messageFor(err))
		return
	}

	JSON(w, http.StatusOK, relayResponse{OK: true, Status: ack.Status, Message: ack.Message, Ack: &ack})
}

// Webhook handles Discord's signed interaction callbacks. Component clicks
// are answered with a deferred update at once and handled in the background.
func (h *InteractionsHandler) Webhook(w http.ResponseWriter, r *http.Request) {
	if h.publicKey == nil {
		Error(w, http.StatusServiceUnavailable, "interaction webhook not configured")
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if !discordgo.VerifyInteraction(r, h.publicKey) {
		Error(w, http.StatusUnauthorized, "invalid request signature")
		return
	}

	var interaction discordgo.Interaction
	if err := json.NewDecoder(r.Body).Decode(&interaction); err != nil {
		Error(w, http.StatusBadRequest, "invalid interaction payload")
		return
	}

	switch interaction.Type {
	case discordgo.InteractionPing:
		JSON(w, http.StatusOK, discordgo.InteractionResponse{Type: discordgo.InteractionResponsePong})
	case discordgo.InteractionMessageComponent:
		in, err := discord.Decode(&interaction)
		if err != nil {
			h.logger.Warn("Ignoring malformed interaction", "error", err, "interaction_id", interaction.ID)
			JSON(w, http.StatusOK, discordgo.InteractionResponse{
				Type: discordgo.InteractionResponseChannelMessageWithSource,
				Data: &discordgo.InteractionResponseData{
					Content: "This button is not recognised.",
					Flags:   discordgo.MessageFlagsEphemeral,
				},
			})
			return
		}
		JSON(w, http.StatusOK, discordgo.InteractionResponse{Type: discordgo.InteractionResponseDeferredMessageUpdate})

		h.inflight.Add(1)
		go h.dispatch(in, interaction.ID)
	default:
		Error(w, http.StatusBadRequest, "unsupported interaction type")
	}
}

func (h *InteractionsHandler) dispatch(in discord.Interaction, interactionID string) {
	defer h.inflight.Done()

	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()

	ack, err := h.router.Handle(ctx, in)
	if err != nil {
		h.logger.Warn("Webhook interaction failed", "error", err, "interaction_id", interactionID)
		return
	}
	h.logger.Info("Webhook interaction handled",
		"interaction_id", interactionID, "subject_id", ack.SubjectID, "status", ack.Status)
}

// Wait blocks until background interaction work has finished.
func (h *InteractionsHandler) Wait() {
	h.inflight.Wait()
}
