// AngelaMos | 2026
// client_test.go

package bot_test

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carterperez-dev/tg-sso/internal/bot"
	"github.com/carterperez-dev/tg-sso/internal/config"
)

func newTestClient(t *testing.T) (*bot.Client, *botAPIRecorder) {
	t.Helper()

	recorder := &botAPIRecorder{}
	apiServer := httptest.NewServer(recorder.handler())
	t.Cleanup(apiServer.Close)

	client := bot.NewClient(config.TelegramConfig{
		BotToken:   "test-token",
		APIBaseURL: apiServer.URL,
	})
	return client, recorder
}

func TestSendMessageTruncatesOnRuneBoundary(t *testing.T) {
	client, recorder := newTestClient(t)

	// 3-byte runes guarantee the byte limit lands inside a rune.
	text := strings.Repeat("€", 1500)
	require.Greater(t, len(text), bot.MaxMessageLength)

	require.NoError(t, client.SendMessage(context.Background(), "555", text, nil))

	sent := recorder.lastText()
	assert.LessOrEqual(t, len(sent), bot.MaxMessageLength)
	assert.True(t, utf8.ValidString(sent))
	assert.NotContains(t, sent, string(utf8.RuneError))
	assert.Equal(t, 4095, len(sent))
}

func TestSendMessageShortTextUnchanged(t *testing.T) {
	client, recorder := newTestClient(t)

	require.NoError(t, client.SendMessage(context.Background(), "555", "hi €", nil))
	assert.Equal(t, "hi €", recorder.lastText())
}
