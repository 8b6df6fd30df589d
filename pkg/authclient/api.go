// AngelaMos | 2026
// api.go

package authclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// Terminal errors end a login attempt; the controller stops polling when
// it sees one. Anything else coming back from the API is treated as
// transient and retried until the attempt's deadline.
var (
	ErrAttemptExpired = errors.New("login attempt expired")
	ErrAttemptUsed    = errors.New("login attempt already used")
	ErrAttemptInvalid = errors.New("login attempt invalid")
	ErrUnauthorized   = errors.New("unauthorized")
)

func IsTerminal(err error) bool {
	return errors.Is(err, ErrAttemptExpired) ||
		errors.Is(err, ErrAttemptUsed) ||
		errors.Is(err, ErrAttemptInvalid) ||
		errors.Is(err, ErrUnauthorized)
}

type User struct {
	ID         string `json:"id"`
	TelegramID string `json:"telegram_id,omitempty"`
	Name       string `json:"name"`
	AvatarURL  string `json:"avatar_url,omitempty"`
}

type Session struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
	User         *User  `json:"user,omitempty"`
}

type LoginStart struct {
	Token  string `json:"token"`
	BotURL string `json:"bot_url"`
}

// PollResult is one check-auth answer: either still pending, or a
// complete session.
type PollResult struct {
	Pending bool
	Session *Session
}

// API is the server surface the controller drives. The HTTP
// implementation below talks to /v1/auth/telegram; tests substitute
// their own.
type API interface {
	BeginLogin(ctx context.Context) (*LoginStart, error)
	CheckAuth(ctx context.Context, token string) (*PollResult, error)
	Refresh(ctx context.Context, refreshToken string) (*Session, error)
	Logout(ctx context.Context, refreshToken string) error
}

type HTTPAPI struct {
	httpClient *http.Client
	baseURL    string
}

func NewHTTPAPI(baseURL string) *HTTPAPI {
	return &HTTPAPI{
		httpClient: &http.Client{Timeout: 15 * time.Second},
		baseURL:    baseURL,
	}
}

func (a *HTTPAPI) BeginLogin(ctx context.Context) (*LoginStart, error) {
	var start LoginStart
	if err := a.do(ctx, http.MethodGet, "auth-url", nil, nil, &start); err != nil {
		return nil, err
	}
	return &start, nil
}

func (a *HTTPAPI) CheckAuth(
	ctx context.Context,
	token string,
) (*PollResult, error) {
	query := url.Values{"token": {token}}

	var status struct {
		Status string `json:"status"`
		Session
	}
	if err := a.do(ctx, http.MethodGet, "check-auth", query, nil, &status); err != nil {
		return nil, err
	}

	if status.Status != "authenticated" {
		return &PollResult{Pending: true}, nil
	}

	session := status.Session
	return &PollResult{Session: &session}, nil
}

func (a *HTTPAPI) Refresh(
	ctx context.Context,
	refreshToken string,
) (*Session, error) {
	body := map[string]string{"refresh_token": refreshToken}

	var session Session
	if err := a.do(ctx, http.MethodPost, "refresh", nil, body, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

func (a *HTTPAPI) Logout(ctx context.Context, refreshToken string) error {
	body := map[string]string{"refresh_token": refreshToken}
	return a.do(ctx, http.MethodPost, "logout", nil, body, nil)
}

type wireError struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (a *HTTPAPI) do(
	ctx context.Context,
	method, action string,
	query url.Values,
	body, out any,
) error {
	endpoint, err := url.Parse(a.baseURL + "/v1/auth/telegram")
	if err != nil {
		return fmt.Errorf("auth api: parse url: %w", err)
	}

	if query == nil {
		query = url.Values{}
	}
	query.Set("action", action)
	endpoint.RawQuery = query.Encode()

	var reqBody io.Reader
	if body != nil {
		encoded, marshalErr := json.Marshal(body)
		if marshalErr != nil {
			return fmt.Errorf("auth api: marshal body: %w", marshalErr)
		}
		reqBody = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint.String(), reqBody)
	if err != nil {
		return fmt.Errorf("auth api: build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("auth api %s: %w", action, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("auth api %s: read response: %w", action, err)
	}

	if resp.StatusCode >= 400 {
		return classifyAPIError(action, resp.StatusCode, respBody)
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("auth api %s: decode response: %w", action, err)
		}
	}

	return nil
}

func classifyAPIError(action string, status int, body []byte) error {
	var wire wireError
	//nolint:errcheck // non-JSON error bodies fall through to status mapping
	_ = json.Unmarshal(body, &wire)

	switch wire.Error.Code {
	case "TOKEN_EXPIRED":
		return fmt.Errorf("auth api %s: %w", action, ErrAttemptExpired)
	case "TOKEN_USED":
		return fmt.Errorf("auth api %s: %w", action, ErrAttemptUsed)
	case "TOKEN_INVALID", "TOKEN_REVOKED":
		return fmt.Errorf("auth api %s: %w", action, ErrAttemptInvalid)
	case "NOT_FOUND":
		return fmt.Errorf("auth api %s: %w", action, ErrAttemptInvalid)
	}

	switch status {
	case http.StatusNotFound, http.StatusGone:
		return fmt.Errorf("auth api %s: %w", action, ErrAttemptInvalid)
	case http.StatusUnauthorized:
		return fmt.Errorf("auth api %s: %w", action, ErrUnauthorized)
	default:
		return fmt.Errorf(
			"auth api %s: unexpected status %d: %s",
			action, status, wire.Error.Message,
		)
	}
}
