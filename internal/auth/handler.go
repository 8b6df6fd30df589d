// AngelaMos | 2026
// handler.go

package auth

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/carterperez-dev/tg-sso/internal/core"
	"github.com/carterperez-dev/tg-sso/internal/exchange"
)

// command is the parsed form of the action query parameter. Parsing
// happens exactly once, at the top of the dispatcher; each command then
// has its own handler with its own auth and error mapping.
type command int

const (
	cmdUnknown command = iota
	cmdAuthURL
	cmdBotCallback
	cmdCheckAuth
	cmdCallback
	cmdRefresh
	cmdLogout
)

var commands = map[string]struct {
	cmd    command
	method string
}{
	"auth-url":     {cmdAuthURL, http.MethodGet},
	"bot-callback": {cmdBotCallback, http.MethodPost},
	"check-auth":   {cmdCheckAuth, http.MethodGet},
	"callback":     {cmdCallback, http.MethodPost},
	"refresh":      {cmdRefresh, http.MethodPost},
	"logout":       {cmdLogout, http.MethodPost},
}

const callbackSecretHeader = "X-Auth-Callback-Secret"

type Handler struct {
	service        *Service
	validate       *validator.Validate
	callbackSecret string
}

func NewHandler(service *Service, callbackSecret string) *Handler {
	return &Handler{
		service:        service,
		validate:       validator.New(validator.WithRequiredStructEnabled()),
		callbackSecret: callbackSecret,
	}
}

// Telegram is the single /v1/auth/telegram endpoint. Everything hangs
// off the action parameter.
func (h *Handler) Telegram(w http.ResponseWriter, r *http.Request) {
	action := r.URL.Query().Get("action")

	entry, ok := commands[action]
	if !ok {
		core.BadRequest(w, "unknown action")
		return
	}

	if r.Method != entry.method {
		core.JSONError(w, core.NewAppError(
			core.ErrInvalidInput,
			"method not allowed for action "+action,
			http.StatusMethodNotAllowed,
			"METHOD_NOT_ALLOWED",
		))
		return
	}

	switch entry.cmd {
	case cmdAuthURL:
		h.handleAuthURL(w, r)
	case cmdBotCallback:
		h.handleBotCallback(w, r)
	case cmdCheckAuth:
		h.handleCheckAuth(w, r)
	case cmdCallback:
		h.handleCallback(w, r)
	case cmdRefresh:
		h.handleRefresh(w, r)
	case cmdLogout:
		h.handleLogout(w, r)
	default:
		core.BadRequest(w, "unknown action")
	}
}

func (h *Handler) handleAuthURL(w http.ResponseWriter, r *http.Request) {
	resp, err := h.service.BeginLogin(r.Context())
	if err != nil {
		core.InternalServerError(w, err)
		return
	}

	core.OK(w, resp)
}

// handleBotCallback is the only caller-authenticated action: the bot
// proves itself with the shared secret before any body is read.
func (h *Handler) handleBotCallback(w http.ResponseWriter, r *http.Request) {
	if !core.SecretsEqual(r.Header.Get(callbackSecretHeader), h.callbackSecret) {
		core.Unauthorized(w, "invalid callback secret")
		return
	}

	var req BotCallbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		core.BadRequest(w, "invalid request body")
		return
	}

	if err := h.validate.Struct(req); err != nil {
		core.BadRequest(w, core.FormatValidationError(err))
		return
	}

	if err := h.service.IdentityCallback(r.Context(), req); err != nil {
		h.writeExchangeError(w, err)
		return
	}

	core.OK(w, map[string]bool{"success": true})
}

func (h *Handler) handleCheckAuth(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		core.BadRequest(w, "token is required")
		return
	}

	h.exchange(w, r, token)
}

func (h *Handler) handleCallback(w http.ResponseWriter, r *http.Request) {
	var req ExchangeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		core.BadRequest(w, "invalid request body")
		return
	}

	if err := h.validate.Struct(req); err != nil {
		core.BadRequest(w, core.FormatValidationError(err))
		return
	}

	h.exchange(w, r, req.Token)
}

func (h *Handler) exchange(w http.ResponseWriter, r *http.Request, token string) {
	resp, err := h.service.Exchange(r.Context(), token)
	if err != nil {
		h.writeExchangeError(w, err)
		return
	}

	core.OK(w, resp)
}

func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		core.BadRequest(w, "invalid request body")
		return
	}

	if err := h.validate.Struct(req); err != nil {
		core.BadRequest(w, core.FormatValidationError(err))
		return
	}

	resp, err := h.service.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		h.writeRefreshError(w, err)
		return
	}

	core.OK(w, resp)
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	var req LogoutRequest
	//nolint:errcheck // logout tolerates an empty or malformed body
	_ = json.NewDecoder(r.Body).Decode(&req)

	if err := h.service.Logout(r.Context(), req.RefreshToken); err != nil {
		core.InternalServerError(w, err)
		return
	}

	core.OK(w, map[string]bool{"success": true})
}

// writeExchangeError maps exchange-token failures. Expired and used are
// 410 so pollers know the attempt is dead; unknown tokens are 404.
func (h *Handler) writeExchangeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, exchange.ErrPending):
		core.OK(w, &StatusResponse{Status: StatusPending})
	case errors.Is(err, core.ErrNotFound):
		core.NotFound(w, "token")
	case errors.Is(err, core.ErrTokenExpired):
		core.JSONError(w, core.TokenExpiredError())
	case errors.Is(err, core.ErrTokenUsed):
		core.JSONError(w, core.TokenUsedError())
	case errors.Is(err, core.ErrTokenInvalid):
		core.JSONError(w, core.TokenInvalidError())
	case errors.Is(err, core.ErrInvalidInput):
		core.BadRequest(w, "invalid request")
	default:
		core.InternalServerError(w, err)
	}
}

// writeRefreshError maps refresh failures; everything token-shaped is a
// 401 so clients fall back to a fresh login.
func (h *Handler) writeRefreshError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, core.ErrTokenRevoked):
		core.JSONError(w, core.TokenRevokedError())
	case errors.Is(err, core.ErrTokenExpired):
		core.JSONError(w, core.NewAppError(
			core.ErrTokenExpired,
			"refresh token expired",
			http.StatusUnauthorized,
			"TOKEN_EXPIRED",
		))
	case errors.Is(err, core.ErrTokenUsed):
		core.JSONError(w, core.NewAppError(
			core.ErrTokenUsed,
			"refresh token already used",
			http.StatusUnauthorized,
			"TOKEN_USED",
		))
	case errors.Is(err, core.ErrTokenInvalid):
		core.JSONError(w, core.TokenInvalidError())
	default:
		core.InternalServerError(w, err)
	}
}
