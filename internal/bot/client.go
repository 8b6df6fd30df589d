// AngelaMos | 2026
// client.go

package bot

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
	"unicode/utf8"

	"github.com/carterperez-dev/tg-sso/internal/config"
)

// MaxMessageLength is the Bot API limit for a single text message.
const MaxMessageLength = 4096

// Client is a minimal Telegram Bot API client covering the handful of
// methods this service calls. Requests are plain JSON POSTs to
// <base>/bot<token>/<method>.
type Client struct {
	httpClient *http.Client
	baseURL    string
	botToken   string
}

func NewClient(cfg config.TelegramConfig) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		baseURL:    cfg.APIBaseURL,
		botToken:   cfg.BotToken,
	}
}

type InlineKeyboardButton struct {
	Text string `json:"text"`
	URL  string `json:"url,omitempty"`
}

type InlineKeyboardMarkup struct {
	InlineKeyboard [][]InlineKeyboardButton `json:"inline_keyboard"`
}

type sendMessageRequest struct {
	ChatID      string                `json:"chat_id"`
	Text        string                `json:"text"`
	ParseMode   string                `json:"parse_mode,omitempty"`
	ReplyMarkup *InlineKeyboardMarkup `json:"reply_markup,omitempty"`
}

type sendPhotoRequest struct {
	ChatID  string `json:"chat_id"`
	Photo   string `json:"photo"`
	Caption string `json:"caption,omitempty"`
}

type apiResponse struct {
	OK          bool            `json:"ok"`
	Description string          `json:"description"`
	Result      json.RawMessage `json:"result"`
}

// SendMessage posts a text message, optionally with an inline keyboard.
// Text beyond the Bot API limit is truncated rather than rejected.
func (c *Client) SendMessage(
	ctx context.Context,
	chatID, text string,
	keyboard *InlineKeyboardMarkup,
) error {
	text = truncateMessage(text)

	return c.call(ctx, "sendMessage", sendMessageRequest{
		ChatID:      chatID,
		Text:        text,
		ParseMode:   "HTML",
		ReplyMarkup: keyboard,
	})
}

// truncateMessage cuts text down to the Bot API limit without splitting
// a multi-byte rune; the API rejects messages that are not valid UTF-8.
func truncateMessage(text string) string {
	if len(text) <= MaxMessageLength {
		return text
	}
	cut := MaxMessageLength
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut]
}

// SendPhoto posts a photo by URL or file id with an optional caption.
func (c *Client) SendPhoto(ctx context.Context, chatID, photo, caption string) error {
	return c.call(ctx, "sendPhoto", sendPhotoRequest{
		ChatID:  chatID,
		Photo:   photo,
		Caption: caption,
	})
}

func (c *Client) call(ctx context.Context, method string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("telegram %s: marshal: %w", method, err)
	}

	url := fmt.Sprintf("%s/bot%s/%s", c.baseURL, c.botToken, method)
	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		url,
		bytes.NewReader(body),
	)
	if err != nil {
		return fmt.Errorf("telegram %s: build request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("telegram %s: %w", method, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("telegram %s: read response: %w", method, err)
	}

	var apiResp apiResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return fmt.Errorf(
			"telegram %s: decode response (status %d): %w",
			method, resp.StatusCode, err,
		)
	}

	if !apiResp.OK {
		return fmt.Errorf(
			"telegram %s: api error (status %d): %s",
			method, resp.StatusCode, apiResp.Description,
		)
	}

	return nil
}
