// AngelaMos | 2026
// notify.go

package bot

import (
	"encoding/json"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/carterperez-dev/tg-sso/internal/core"
)

const notifySecretHeader = "X-Auth-Callback-Secret"

// NotifyHandler exposes the bot's outbound side to trusted backend
// callers: plain messages, photos, and a connectivity test. The shared
// secret gates every action.
type NotifyHandler struct {
	client        *Client
	validate      *validator.Validate
	sharedSecret  string
	defaultChatID string
}

func NewNotifyHandler(client *Client, sharedSecret, defaultChatID string) *NotifyHandler {
	return &NotifyHandler{
		client:        client,
		validate:      validator.New(validator.WithRequiredStructEnabled()),
		sharedSecret:  sharedSecret,
		defaultChatID: defaultChatID,
	}
}

type SendRequest struct {
	ChatID string `json:"chat_id" validate:"omitempty,max=32"`
	Text   string `json:"text"    validate:"required,max=4096"`
}

type SendPhotoRequest struct {
	ChatID  string `json:"chat_id" validate:"omitempty,max=32"`
	Photo   string `json:"photo"   validate:"required,max=512"`
	Caption string `json:"caption" validate:"omitempty,max=1024"`
}

func (h *NotifyHandler) Notify(w http.ResponseWriter, r *http.Request) {
	if !core.SecretsEqual(r.Header.Get(notifySecretHeader), h.sharedSecret) {
		core.Unauthorized(w, "invalid shared secret")
		return
	}

	switch r.URL.Query().Get("action") {
	case "send":
		h.handleSend(w, r)
	case "send-photo":
		h.handleSendPhoto(w, r)
	case "test":
		h.handleTest(w, r)
	default:
		core.BadRequest(w, "unknown action")
	}
}

func (h *NotifyHandler) handleSend(w http.ResponseWriter, r *http.Request) {
	var req SendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		core.BadRequest(w, "invalid request body")
		return
	}

	if err := h.validate.Struct(req); err != nil {
		core.BadRequest(w, core.FormatValidationError(err))
		return
	}

	chatID := h.resolveChatID(req.ChatID)
	if chatID == "" {
		core.BadRequest(w, "chat_id is required")
		return
	}

	if err := h.client.SendMessage(r.Context(), chatID, req.Text, nil); err != nil {
		core.InternalServerError(w, err)
		return
	}

	core.OK(w, map[string]bool{"success": true})
}

func (h *NotifyHandler) handleSendPhoto(w http.ResponseWriter, r *http.Request) {
	var req SendPhotoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		core.BadRequest(w, "invalid request body")
		return
	}

	if err := h.validate.Struct(req); err != nil {
		core.BadRequest(w, core.FormatValidationError(err))
		return
	}

	chatID := h.resolveChatID(req.ChatID)
	if chatID == "" {
		core.BadRequest(w, "chat_id is required")
		return
	}

	if err := h.client.SendPhoto(r.Context(), chatID, req.Photo, req.Caption); err != nil {
		core.InternalServerError(w, err)
		return
	}

	core.OK(w, map[string]bool{"success": true})
}

func (h *NotifyHandler) handleTest(w http.ResponseWriter, r *http.Request) {
	chatID := h.resolveChatID("")
	if chatID == "" {
		core.BadRequest(w, "no default chat configured")
		return
	}

	if err := h.client.SendMessage(
		r.Context(),
		chatID,
		"Test notification: bot connectivity OK.",
		nil,
	); err != nil {
		core.InternalServerError(w, err)
		return
	}

	core.OK(w, map[string]bool{"success": true})
}

func (h *NotifyHandler) resolveChatID(requested string) string {
	if requested != "" {
		return requested
	}
	return h.defaultChatID
}
