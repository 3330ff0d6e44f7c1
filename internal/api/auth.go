package api

import (
	"context"
	"net/http"
	"net/url"
)

// Login exchanges credentials for a bearer token. The server expects a
// form-encoded body.
func (c *Client) Login(ctx context.Context, username, password string) (*TokenResponse, error) {
	form := url.Values{}
	form.Set("username", username)
	form.Set("password", password)

	var tok TokenResponse
	if err := c.sendForm(ctx, "/api/auth/login", form, &tok); err != nil {
		return nil, err
	}
	if tok.AccessToken == "" {
		return nil, &Error{Kind: KindServer, Status: http.StatusOK, Detail: "empty access token"}
	}
	return &tok, nil
}

func (c *Client) Register(ctx context.Context, username, password string) (*User, error) {
	var u User
	req := RegisterRequest{Username: username, Password: password}
	if err := c.sendJSON(ctx, http.MethodPost, "/api/auth/register", req, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// Me returns the user the active credential belongs to.
func (c *Client) Me(ctx context.Context) (*User, error) {
	var u User
	if err := c.get(ctx, "/api/auth/me", &u); err != nil {
		return nil, err
	}
	return &u, nil
}
