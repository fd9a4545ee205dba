package api

import "time"

// TokenTypeBearer is the only token type handed out.
const TokenTypeBearer = "Bearer"

type RegisterRequest struct {
	Username    string `json:"username"`
	Password    string `json:"password"`
	DeviceLabel string `json:"deviceLabel,omitempty"`
}

type LoginRequest struct {
	Username    string `json:"username"`
	Password    string `json:"password"`
	DeviceLabel string `json:"deviceLabel,omitempty"`
}

// RefreshRequest presents the caller's current pair. AccessToken may be
// expired and may be omitted.
type RefreshRequest struct {
	AccessToken  string `json:"accessToken,omitempty"`
	RefreshToken string `json:"refreshToken"`
	DeviceLabel  string `json:"deviceLabel,omitempty"`
}

// TokenResponse is returned by register, login and refresh. ExpiresAt is the
// access token expiry.
type TokenResponse struct {
	AccessToken      string    `json:"accessToken"`
	RefreshToken     string    `json:"refreshToken"`
	TokenType        string    `json:"tokenType"`
	ExpiresAt        time.Time `json:"expiresAt"`
	RefreshExpiresAt time.Time `json:"refreshExpiresAt"`
}

type LogoutRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type LogoutAllRequest struct{}

type LogoutAllResponse struct {
	Revoked int64 `json:"revoked"`
}

type Empty struct{}

type ListSessionsRequest struct{}

type Session struct {
	ID          string    `json:"id"`
	DeviceLabel string    `json:"deviceLabel,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	LastUsedAt  time.Time `json:"lastUsedAt"`
	ExpiresAt   time.Time `json:"expiresAt"`
	State       string    `json:"state"`
}

type ListSessionsResponse struct {
	Sessions []Session `json:"sessions"`
}

type WhoAmIRequest struct{}

type WhoAmIResponse struct {
	UserID    string    `json:"userId"`
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type PingRequest struct{}

type PingResponse struct {
	Status string `json:"status"`
}

// ErrorResponse is the HTTP error envelope.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
