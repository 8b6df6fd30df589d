// AngelaMos | 2026
// webhook_test.go

package bot_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carterperez-dev/tg-sso/internal/bot"
	"github.com/carterperez-dev/tg-sso/internal/config"
	"github.com/carterperez-dev/tg-sso/internal/core"
	"github.com/carterperez-dev/tg-sso/internal/exchange"
)

const testWebhookSecret = "webhook-secret"

type attachCall struct {
	token   string
	profile exchange.Profile
}

type fakeAttacher struct {
	mu    sync.Mutex
	calls []attachCall
	err   error
}

func (f *fakeAttacher) AttachIdentity(
	_ context.Context,
	plaintext string,
	profile exchange.Profile,
) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, attachCall{token: plaintext, profile: profile})
	return f.err
}

// botAPIRecorder fakes the Bot API endpoint and records sendMessage
// payloads.
type botAPIRecorder struct {
	mu       sync.Mutex
	messages []map[string]any
}

func (rec *botAPIRecorder) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]any
		//nolint:errcheck // test server accepts whatever arrives
		_ = json.NewDecoder(r.Body).Decode(&payload)

		rec.mu.Lock()
		rec.messages = append(rec.messages, payload)
		rec.mu.Unlock()

		fmt.Fprint(w, `{"ok":true,"result":{}}`)
	}
}

func (rec *botAPIRecorder) lastText() string {
	rec.mu.Lock()
	defer rec.mu.Unlock()

	if len(rec.messages) == 0 {
		return ""
	}
	text, _ := rec.messages[len(rec.messages)-1]["text"].(string)
	return text
}

func newWebhookFixture(
	t *testing.T,
	attacher *fakeAttacher,
) (*bot.WebhookHandler, *botAPIRecorder) {
	t.Helper()

	recorder := &botAPIRecorder{}
	apiServer := httptest.NewServer(recorder.handler())
	t.Cleanup(apiServer.Close)

	client := bot.NewClient(config.TelegramConfig{
		BotToken:   "test-token",
		APIBaseURL: apiServer.URL,
	})

	handler := bot.NewWebhookHandler(
		client,
		attacher,
		testWebhookSecret,
		"https://example.com",
	)
	return handler, recorder
}

func postUpdate(
	handler *bot.WebhookHandler,
	secret, body string,
) *httptest.ResponseRecorder {
	req := httptest.NewRequest(
		http.MethodPost,
		"/v1/bot/webhook",
		strings.NewReader(body),
	)
	if secret != "" {
		req.Header.Set("X-Telegram-Bot-Api-Secret-Token", secret)
	}

	rec := httptest.NewRecorder()
	handler.Webhook(rec, req)
	return rec
}

func updateJSON(text string) string {
	return fmt.Sprintf(`{
		"update_id": 1,
		"message": {
			"message_id": 10,
			"from": {"id": 555, "username": "bob", "first_name": "Bob"},
			"chat": {"id": 555},
			"text": %q
		}
	}`, text)
}

func TestWebhookRejectsBadSecret(t *testing.T) {
	handler, _ := newWebhookFixture(t, &fakeAttacher{})

	rec := postUpdate(handler, "wrong", updateJSON("/start tok"))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = postUpdate(handler, "", updateJSON("/start tok"))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestWebhookStartAttachesIdentity(t *testing.T) {
	attacher := &fakeAttacher{}
	handler, recorder := newWebhookFixture(t, attacher)

	rec := postUpdate(handler, testWebhookSecret, updateJSON("/start extok-1"))
	assert.Equal(t, http.StatusOK, rec.Code)

	require.Len(t, attacher.calls, 1)
	call := attacher.calls[0]
	assert.Equal(t, "extok-1", call.token)
	assert.Equal(t, "555", call.profile.TelegramID)
	assert.Equal(t, "bob", call.profile.Username)
	assert.Equal(t, "Bob", call.profile.FirstName)

	assert.Contains(t, recorder.lastText(), "logged in")
}

func TestWebhookBareStartSendsHint(t *testing.T) {
	attacher := &fakeAttacher{}
	handler, recorder := newWebhookFixture(t, attacher)

	rec := postUpdate(handler, testWebhookSecret, updateJSON("/start"))
	assert.Equal(t, http.StatusOK, rec.Code)

	assert.Empty(t, attacher.calls)
	assert.Contains(t, recorder.lastText(), "login page")
}

func TestWebhookExpiredTokenStillAnswers200(t *testing.T) {
	attacher := &fakeAttacher{
		err: fmt.Errorf("attach identity: %w", core.ErrTokenExpired),
	}
	handler, recorder := newWebhookFixture(t, attacher)

	rec := postUpdate(handler, testWebhookSecret, updateJSON("/start extok-1"))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, recorder.lastText(), "expired")
}

func TestWebhookMalformedUpdateAnswers200(t *testing.T) {
	handler, _ := newWebhookFixture(t, &fakeAttacher{})

	rec := postUpdate(handler, testWebhookSecret, "{not json")
	assert.Equal(t, http.StatusOK, rec.Code)
}
