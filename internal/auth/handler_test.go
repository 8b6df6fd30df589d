// AngelaMos | 2026
// handler_test.go

package auth_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carterperez-dev/tg-sso/internal/auth"
)

const testCallbackSecret = "callback-secret"

func newTestHandler(t *testing.T) (*auth.Handler, *brokerFixture) {
	t.Helper()

	f := newBrokerFixture(t)
	return auth.NewHandler(f.svc, testCallbackSecret), f
}

func doRequest(
	handler *auth.Handler,
	method, target, body string,
	headers map[string]string,
) *httptest.ResponseRecorder {
	var reader *strings.Reader
	if body != "" {
		reader = strings.NewReader(body)
	} else {
		reader = strings.NewReader("")
	}

	req := httptest.NewRequest(method, target, reader)
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	rec := httptest.NewRecorder()
	handler.Telegram(rec, req)
	return rec
}

func beginLogin(t *testing.T, handler *auth.Handler) auth.BeginLoginResponse {
	t.Helper()

	rec := doRequest(
		handler,
		http.MethodGet,
		"/v1/auth/telegram?action=auth-url",
		"",
		nil,
	)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp auth.BeginLoginResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestUnknownAction(t *testing.T) {
	handler, _ := newTestHandler(t)

	rec := doRequest(
		handler,
		http.MethodGet,
		"/v1/auth/telegram?action=nonsense",
		"",
		nil,
	)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestActionMethodMismatch(t *testing.T) {
	handler, _ := newTestHandler(t)

	rec := doRequest(
		handler,
		http.MethodPost,
		"/v1/auth/telegram?action=auth-url",
		"",
		nil,
	)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestAuthURLReturnsTokenAndDeepLink(t *testing.T) {
	handler, _ := newTestHandler(t)

	resp := beginLogin(t, handler)
	assert.NotEmpty(t, resp.Token)
	assert.Equal(t, "https://t.me/tg_sso_bot?start="+resp.Token, resp.BotURL)
}

func TestBotCallbackRejectsBadSecret(t *testing.T) {
	handler, _ := newTestHandler(t)

	resp := beginLogin(t, handler)
	body := `{"token":"` + resp.Token + `","telegram_id":"555"}`

	rec := doRequest(
		handler,
		http.MethodPost,
		"/v1/auth/telegram?action=bot-callback",
		body,
		map[string]string{"X-Auth-Callback-Secret": "wrong"},
	)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doRequest(
		handler,
		http.MethodPost,
		"/v1/auth/telegram?action=bot-callback",
		body,
		nil,
	)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestBotCallbackValidatesBody(t *testing.T) {
	handler, _ := newTestHandler(t)

	rec := doRequest(
		handler,
		http.MethodPost,
		"/v1/auth/telegram?action=bot-callback",
		`{"token":"x"}`,
		map[string]string{"X-Auth-Callback-Secret": testCallbackSecret},
	)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCheckAuthFlow(t *testing.T) {
	handler, f := newTestHandler(t)

	resp := beginLogin(t, handler)

	rec := doRequest(
		handler,
		http.MethodGet,
		"/v1/auth/telegram?action=check-auth&token="+resp.Token,
		"",
		nil,
	)
	require.Equal(t, http.StatusOK, rec.Code)

	var status auth.StatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, auth.StatusPending, status.Status)
	assert.Empty(t, status.AccessToken)

	require.NoError(t, f.svc.IdentityCallback(
		context.Background(),
		auth.BotCallbackRequest{
			Token:      resp.Token,
			TelegramID: "555",
			Username:   "bob",
		},
	))

	rec = doRequest(
		handler,
		http.MethodGet,
		"/v1/auth/telegram?action=check-auth&token="+resp.Token,
		"",
		nil,
	)
	require.Equal(t, http.StatusOK, rec.Code)

	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, auth.StatusAuthenticated, status.Status)
	assert.NotEmpty(t, status.AccessToken)
	assert.NotEmpty(t, status.RefreshToken)
	require.NotNil(t, status.User)
	assert.Equal(t, "bob", status.User.Name)

	// A consumed token is terminal: pollers must stop.
	rec = doRequest(
		handler,
		http.MethodGet,
		"/v1/auth/telegram?action=check-auth&token="+resp.Token,
		"",
		nil,
	)
	assert.Equal(t, http.StatusGone, rec.Code)
}

func TestCheckAuthRequiresToken(t *testing.T) {
	handler, _ := newTestHandler(t)

	rec := doRequest(
		handler,
		http.MethodGet,
		"/v1/auth/telegram?action=check-auth",
		"",
		nil,
	)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCheckAuthUnknownToken(t *testing.T) {
	handler, _ := newTestHandler(t)

	rec := doRequest(
		handler,
		http.MethodGet,
		"/v1/auth/telegram?action=check-auth&token=never-issued",
		"",
		nil,
	)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCheckAuthExpiredToken(t *testing.T) {
	handler, f := newTestHandler(t)

	resp := beginLogin(t, handler)
	f.exchange.expire(resp.Token)

	rec := doRequest(
		handler,
		http.MethodGet,
		"/v1/auth/telegram?action=check-auth&token="+resp.Token,
		"",
		nil,
	)
	assert.Equal(t, http.StatusGone, rec.Code)

	var wire struct {
		Success bool `json:"success"`
		Error   struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &wire))
	assert.False(t, wire.Success)
	assert.Equal(t, "TOKEN_EXPIRED", wire.Error.Code)
}

func TestCallbackPostVariant(t *testing.T) {
	handler, f := newTestHandler(t)

	resp := beginLogin(t, handler)
	require.NoError(t, f.svc.IdentityCallback(
		context.Background(),
		auth.BotCallbackRequest{Token: resp.Token, TelegramID: "555"},
	))

	rec := doRequest(
		handler,
		http.MethodPost,
		"/v1/auth/telegram?action=callback",
		`{"token":"`+resp.Token+`"}`,
		nil,
	)
	require.Equal(t, http.StatusOK, rec.Code)

	var status auth.StatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, auth.StatusAuthenticated, status.Status)
}

func TestRefreshEndpoint(t *testing.T) {
	handler, f := newTestHandler(t)

	session := login(t, f)

	rec := doRequest(
		handler,
		http.MethodPost,
		"/v1/auth/telegram?action=refresh",
		`{"refresh_token":"`+session.RefreshToken+`"}`,
		nil,
	)
	require.Equal(t, http.StatusOK, rec.Code)

	var rotated auth.SessionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rotated))
	assert.NotEmpty(t, rotated.AccessToken)
	assert.NotEqual(t, session.RefreshToken, rotated.RefreshToken)

	// Reuse of the rotated-out token is a 401.
	rec = doRequest(
		handler,
		http.MethodPost,
		"/v1/auth/telegram?action=refresh",
		`{"refresh_token":"`+session.RefreshToken+`"}`,
		nil,
	)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRefreshRaceLoserGets401(t *testing.T) {
	exchanges := newFakeExchange()
	users := newFakeUsers()
	tokens := newMemTokens()
	jwtManager := newTestJWTManager(t)

	var barrier sync.WaitGroup
	barrier.Add(2)
	gated := &gatedTokens{memTokens: tokens, barrier: &barrier}

	f := &brokerFixture{
		svc:      auth.NewService(exchanges, users, jwtManager, gated, "tg_sso_bot"),
		exchange: exchanges,
		users:    users,
		tokens:   tokens,
		jwt:      jwtManager,
	}
	handler := auth.NewHandler(f.svc, testCallbackSecret)
	session := login(t, f)

	body := `{"refresh_token":"` + session.RefreshToken + `"}`
	recs := make(chan *httptest.ResponseRecorder, 2)
	for range 2 {
		go func() {
			recs <- doRequest(
				handler,
				http.MethodPost,
				"/v1/auth/telegram?action=refresh",
				body,
				nil,
			)
		}()
	}

	codes := map[int]int{}
	for range 2 {
		rec := <-recs
		codes[rec.Code]++
		if rec.Code != http.StatusOK {
			var wire struct {
				Error struct {
					Code string `json:"code"`
				} `json:"error"`
			}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &wire))
			assert.Equal(t, "TOKEN_USED", wire.Error.Code)
		}
	}
	assert.Equal(t, 1, codes[http.StatusOK])
	assert.Equal(t, 1, codes[http.StatusUnauthorized])
}

func TestLogoutAlwaysSucceeds(t *testing.T) {
	handler, _ := newTestHandler(t)

	rec := doRequest(
		handler,
		http.MethodPost,
		"/v1/auth/telegram?action=logout",
		`{"refresh_token":"never-issued"}`,
		nil,
	)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(
		handler,
		http.MethodPost,
		"/v1/auth/telegram?action=logout",
		"",
		nil,
	)
	assert.Equal(t, http.StatusOK, rec.Code)
}
