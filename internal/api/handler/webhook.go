package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/Rrens/devin-relay/internal/api/response"
	"github.com/Rrens/devin-relay/internal/domain"
	"github.com/Rrens/devin-relay/internal/service"
	"github.com/Rrens/devin-relay/internal/telegram"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"
)

var validate = validator.New()

// Dispatcher handles one inbound chat event
type Dispatcher interface {
	Dispatch(ctx context.Context, in service.Inbound)
}

// BotInfo reports the bot's own account
type BotInfo interface {
	GetMe(ctx context.Context) (*telegram.User, error)
}

// WebhookHandler receives Telegram updates
type WebhookHandler struct {
	dispatcher    Dispatcher
	bot           BotInfo
	updates       domain.UpdateDeduper
	updateTimeout time.Duration
}

// NewWebhookHandler creates a new webhook handler. A nil updates deduper
// handles every delivery, including redeliveries.
func NewWebhookHandler(dispatcher Dispatcher, bot BotInfo, updates domain.UpdateDeduper, updateTimeout time.Duration) *WebhookHandler {
	if updateTimeout <= 0 {
		updateTimeout = time.Minute
	}
	return &WebhookHandler{
		dispatcher:    dispatcher,
		bot:           bot,
		updates:       updates,
		updateTimeout: updateTimeout,
	}
}

// Receive handles an incoming update
func (h *WebhookHandler) Receive(w http.ResponseWriter, r *http.Request) {
	var update telegram.Update
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		response.BadRequest(w, "invalid request body")
		return
	}

	if err := validate.Struct(update); err != nil {
		if validationErrors, ok := err.(validator.ValidationErrors); ok {
			response.BadRequest(w, formatValidationErrors(validationErrors))
			return
		}
		response.BadRequest(w, err.Error())
		return
	}

	in, ok := update.Inbound()
	if !ok {
		log.Debug().Int64("update_id", update.UpdateID).Msg("Ignoring non-text update")
		response.OK(w, map[string]bool{"ok": true})
		return
	}

	// Telegram may drop the connection; the update is still handled to the end
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), h.updateTimeout)
	defer cancel()

	if !h.firstDelivery(ctx, update.UpdateID) {
		log.Info().Int64("update_id", update.UpdateID).Msg("Dropping redelivered update")
		response.OK(w, map[string]bool{"ok": true})
		return
	}

	h.dispatcher.Dispatch(ctx, in)

	response.OK(w, map[string]bool{"ok": true})
}

// firstDelivery reports false only for an update already handled. Deduper
// failures let the update through.
func (h *WebhookHandler) firstDelivery(ctx context.Context, updateID int64) bool {
	if h.updates == nil {
		return true
	}
	first, err := h.updates.FirstSeen(ctx, updateID)
	if err != nil {
		log.Warn().Err(err).Int64("update_id", updateID).Msg("Update deduplication unavailable")
		return true
	}
	return first
}

// Info reports which bot the webhook belongs to
func (h *WebhookHandler) Info(w http.ResponseWriter, r *http.Request) {
	me, err := h.bot.GetMe(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("Failed to get bot info")
		response.BadGateway(w, "failed to reach telegram")
		return
	}

	response.OK(w, map[string]any{
		"status":   "webhook ready",
		"bot":      me.Username,
		"bot_id":   me.ID,
		"is_bot":   me.IsBot,
		"bot_name": me.FirstName,
	})
}

func formatValidationErrors(errs validator.ValidationErrors) map[string]string {
	errors := make(map[string]string)
	for _, e := range errs {
		switch e.Tag() {
		case "required":
			errors[e.Namespace()] = "field is required"
		case "gte":
			errors[e.Namespace()] = "must be at least " + e.Param()
		default:
			errors[e.Namespace()] = "validation failed on " + e.Tag()
		}
	}
	return errors
}
