// AngelaMos | 2026
// dto.go

package auth

import (
	"github.com/carterperez-dev/tg-sso/internal/user"
)

type BeginLoginResponse struct {
	Token  string `json:"token"`
	BotURL string `json:"bot_url"`
}

// BotCallbackRequest is the server-to-server payload the bot posts after
// it has verified the Telegram user. Token is the exchange-token
// plaintext the user relayed via /start.
type BotCallbackRequest struct {
	Token      string `json:"token"       validate:"required"`
	TelegramID string `json:"telegram_id" validate:"required,max=32"`
	Username   string `json:"username"    validate:"omitempty,max=64"`
	FirstName  string `json:"first_name"  validate:"omitempty,max=128"`
	LastName   string `json:"last_name"   validate:"omitempty,max=128"`
	PhotoURL   string `json:"photo_url"   validate:"omitempty,url,max=512"`
}

type ExchangeRequest struct {
	Token string `json:"token" validate:"required"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

// LogoutRequest may carry an empty token; logout is idempotent either way.
type LogoutRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type UserResponse struct {
	ID         string `json:"id"`
	TelegramID string `json:"telegram_id,omitempty"`
	Name       string `json:"name"`
	AvatarURL  string `json:"avatar_url,omitempty"`
}

func NewUserResponse(u *user.User) *UserResponse {
	resp := &UserResponse{
		ID:   u.ID,
		Name: u.Name,
	}
	if u.TelegramID != nil {
		resp.TelegramID = *u.TelegramID
	}
	if u.AvatarURL != nil {
		resp.AvatarURL = *u.AvatarURL
	}
	return resp
}

type SessionResponse struct {
	AccessToken  string        `json:"access_token"`
	RefreshToken string        `json:"refresh_token"`
	TokenType    string        `json:"token_type"`
	ExpiresIn    int64         `json:"expires_in"`
	User         *UserResponse `json:"user,omitempty"`
}

// StatusResponse is the polling answer. Session fields are present only
// when Status is authenticated; a pending answer carries nothing else.
type StatusResponse struct {
	Status       string        `json:"status"`
	AccessToken  string        `json:"access_token,omitempty"`
	RefreshToken string        `json:"refresh_token,omitempty"`
	TokenType    string        `json:"token_type,omitempty"`
	ExpiresIn    int64         `json:"expires_in,omitempty"`
	User         *UserResponse `json:"user,omitempty"`
}

const (
	StatusPending       = "pending"
	StatusAuthenticated = "authenticated"
)
