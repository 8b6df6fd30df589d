// AngelaMos | 2026
// notify_test.go

package bot_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carterperez-dev/tg-sso/internal/bot"
	"github.com/carterperez-dev/tg-sso/internal/config"
)

const testNotifySecret = "notify-secret"

func newNotifyFixture(t *testing.T) (*bot.NotifyHandler, *botAPIRecorder) {
	t.Helper()

	recorder := &botAPIRecorder{}
	apiServer := httptest.NewServer(recorder.handler())
	t.Cleanup(apiServer.Close)

	client := bot.NewClient(config.TelegramConfig{
		BotToken:   "test-token",
		APIBaseURL: apiServer.URL,
	})

	return bot.NewNotifyHandler(client, testNotifySecret, "999"), recorder
}

func postNotify(
	handler *bot.NotifyHandler,
	secret, action, body string,
) *httptest.ResponseRecorder {
	req := httptest.NewRequest(
		http.MethodPost,
		"/v1/bot?action="+action,
		strings.NewReader(body),
	)
	if secret != "" {
		req.Header.Set("X-Auth-Callback-Secret", secret)
	}

	rec := httptest.NewRecorder()
	handler.Notify(rec, req)
	return rec
}

func TestNotifyRejectsBadSecret(t *testing.T) {
	handler, _ := newNotifyFixture(t)

	rec := postNotify(handler, "wrong", "send", `{"text":"hi"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestNotifySendUsesDefaultChat(t *testing.T) {
	handler, recorder := newNotifyFixture(t)

	rec := postNotify(handler, testNotifySecret, "send", `{"text":"hi there"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	require.Len(t, recorder.messages, 1)
	assert.Equal(t, "999", recorder.messages[0]["chat_id"])
	assert.Equal(t, "hi there", recorder.messages[0]["text"])
}

func TestNotifySendRejectsOversizedText(t *testing.T) {
	handler, _ := newNotifyFixture(t)

	oversized := `{"text":"` + strings.Repeat("a", bot.MaxMessageLength+1) + `"}`
	rec := postNotify(handler, testNotifySecret, "send", oversized)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestNotifyTestAction(t *testing.T) {
	handler, recorder := newNotifyFixture(t)

	rec := postNotify(handler, testNotifySecret, "test", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, recorder.lastText(), "Test notification")
}

func TestNotifyUnknownAction(t *testing.T) {
	handler, _ := newNotifyFixture(t)

	rec := postNotify(handler, testNotifySecret, "blast", `{"text":"hi"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
