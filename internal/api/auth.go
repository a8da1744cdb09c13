package api

import (
	"context"
	"net/http"
)

// TokenPair is the response from the credential and refresh endpoints.
// Refresh is empty when the server did not rotate the refresh token.
type TokenPair struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

// User is the authenticated user's profile from /users/me/.
type User struct {
	ID          int    `json:"id"`
	Username    string `json:"username"`
	Email       string `json:"email"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	PhoneNumber string `json:"phone_number,omitempty"`
}

// RegisterRequest is the payload for account creation.
type RegisterRequest struct {
	Username    string `json:"username"`
	Email       string `json:"email"`
	Password    string `json:"password"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	PhoneNumber string `json:"phone_number,omitempty"`
}

// LoginTokens exchanges credentials for an access/refresh token pair.
// It does not touch the client's stored bearer token; the session layer
// decides what to persist.
func (c *Client) LoginTokens(ctx context.Context, username, password string) (*TokenPair, error) {
	body := map[string]string{
		"username": username,
		"password": password,
	}
	var pair TokenPair
	if err := c.doJSONNoReplay(ctx, http.MethodPost, "/auth/token/", body, &pair); err != nil {
		return nil, err
	}
	return &pair, nil
}

// RefreshTokens exchanges a refresh token for a new token pair.
func (c *Client) RefreshTokens(ctx context.Context, refreshToken string) (*TokenPair, error) {
	body := map[string]string{"refresh": refreshToken}
	var pair TokenPair
	if err := c.doJSONNoReplay(ctx, http.MethodPost, "/auth/token/refresh/", body, &pair); err != nil {
		return nil, err
	}
	return &pair, nil
}

// Me fetches the authenticated user's profile.
func (c *Client) Me(ctx context.Context) (*User, error) {
	var user User
	if err := c.GetJSON(ctx, "/users/me/", nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// Register creates a new account.
func (c *Client) Register(ctx context.Context, req RegisterRequest) error {
	return c.doJSONNoReplay(ctx, http.MethodPost, "/auth/register/", req, nil)
}
