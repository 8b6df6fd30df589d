// AngelaMos | 2026
// webhook.go

package bot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/carterperez-dev/tg-sso/internal/core"
	"github.com/carterperez-dev/tg-sso/internal/exchange"
)

const webhookSecretHeader = "X-Telegram-Bot-Api-Secret-Token"

// IdentityAttacher binds a Telegram identity to a login attempt.
type IdentityAttacher interface {
	AttachIdentity(ctx context.Context, plaintext string, profile exchange.Profile) error
}

// Update is the slice of a Telegram update the webhook cares about.
type Update struct {
	UpdateID int64    `json:"update_id"`
	Message  *Message `json:"message"`
}

type Message struct {
	MessageID int64   `json:"message_id"`
	From      *TgUser `json:"from"`
	Chat      Chat    `json:"chat"`
	Text      string  `json:"text"`
}

type TgUser struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

type Chat struct {
	ID int64 `json:"id"`
}

// WebhookHandler receives Telegram updates. Its only job is the /start
// deep link that completes a login handshake; everything else gets a
// usage hint. It always answers 200 so Telegram does not retry.
type WebhookHandler struct {
	client        *Client
	attacher      IdentityAttacher
	webhookSecret string
	siteURL       string
}

func NewWebhookHandler(
	client *Client,
	attacher IdentityAttacher,
	webhookSecret, siteURL string,
) *WebhookHandler {
	return &WebhookHandler{
		client:        client,
		attacher:      attacher,
		webhookSecret: webhookSecret,
		siteURL:       siteURL,
	}
}

func (h *WebhookHandler) Webhook(w http.ResponseWriter, r *http.Request) {
	if !core.SecretsEqual(r.Header.Get(webhookSecretHeader), h.webhookSecret) {
		core.Unauthorized(w, "invalid webhook secret")
		return
	}

	var update Update
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		slog.Warn("webhook: malformed update", "error", err)
		w.WriteHeader(http.StatusOK)
		return
	}

	if update.Message != nil && update.Message.From != nil {
		h.handleMessage(r.Context(), update.Message)
	}

	w.WriteHeader(http.StatusOK)
}

func (h *WebhookHandler) handleMessage(ctx context.Context, msg *Message) {
	chatID := strconv.FormatInt(msg.Chat.ID, 10)

	text := strings.TrimSpace(msg.Text)
	if !strings.HasPrefix(text, "/start") {
		h.reply(ctx, chatID,
			"Open the site and tap \"Log in with Telegram\" to get a login link.")
		return
	}

	token := strings.TrimSpace(strings.TrimPrefix(text, "/start"))
	if token == "" {
		h.reply(ctx, chatID,
			"This bot signs you in to the site. Start from the site's login page.")
		return
	}

	profile := exchange.Profile{
		TelegramID: strconv.FormatInt(msg.From.ID, 10),
		Username:   msg.From.Username,
		FirstName:  msg.From.FirstName,
		LastName:   msg.From.LastName,
	}

	if err := h.attacher.AttachIdentity(ctx, token, profile); err != nil {
		h.replyAttachError(ctx, chatID, err)
		return
	}

	name := profile.FirstName
	if name == "" {
		name = profile.Username
	}
	confirmation := "✅ You're logged in"
	if name != "" {
		confirmation = fmt.Sprintf("✅ You're logged in, %s", name)
	}
	confirmation += ". Head back to the site — it will pick up your session automatically."

	var keyboard *InlineKeyboardMarkup
	if h.siteURL != "" {
		keyboard = &InlineKeyboardMarkup{
			InlineKeyboard: [][]InlineKeyboardButton{
				{{Text: "Back to site", URL: h.siteURL}},
			},
		}
	}

	if err := h.client.SendMessage(ctx, chatID, confirmation, keyboard); err != nil {
		slog.Error("webhook: confirmation send failed",
			"chat_id", chatID,
			"error", err,
		)
	}
}

func (h *WebhookHandler) replyAttachError(ctx context.Context, chatID string, err error) {
	var text string
	switch {
	case errors.Is(err, core.ErrTokenExpired):
		text = "That login link has expired. Request a new one from the site."
	case errors.Is(err, core.ErrTokenUsed):
		text = "That login link was already used. Request a new one from the site."
	case errors.Is(err, core.ErrNotFound):
		text = "That login link is not valid. Request a new one from the site."
	default:
		slog.Error("webhook: attach identity failed", "error", err)
		text = "Something went wrong on our side. Please try again."
	}

	h.reply(ctx, chatID, text)
}

func (h *WebhookHandler) reply(ctx context.Context, chatID, text string) {
	if err := h.client.SendMessage(ctx, chatID, text, nil); err != nil {
		slog.Error("webhook: reply failed", "chat_id", chatID, "error", err)
	}
}
