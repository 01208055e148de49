package api

import (
	"context"

	"github.com/nft-marketplace/client/internal/models"
)

// SignInRequest is the payload for login and account linking.
type SignInRequest struct {
	Address       string `json:"address"`
	SignedMessage string `json:"signedMessage"`
	LayerID       string `json:"layerId"`
	Pubkey        string `json:"pubkey,omitempty"`
}

type LoginResponse struct {
	User      models.User      `json:"user"`
	UserLayer models.UserLayer `json:"userLayer"`
	Auth      models.Tokens    `json:"auth"`
}

type LinkAccountResponse struct {
	User                              *models.User     `json:"user,omitempty"`
	UserLayer                         models.UserLayer `json:"userLayer"`
	HasAlreadyBeenLinkedToAnotherUser bool             `json:"hasAlreadyBeenLinkedToAnotherUser"`
}

// GenerateMessage requests a one-time sign-in challenge bound to address.
func (c *Client) GenerateMessage(ctx context.Context, address string) (string, error) {
	var out struct {
		Message string `json:"message"`
	}
	err := c.postJSON(ctx, "/api/v1/users/generate-message", map[string]string{"address": address}, &out)
	if err != nil {
		return "", err
	}
	return out.Message, nil
}

func (c *Client) Login(ctx context.Context, req SignInRequest) (*LoginResponse, error) {
	var out LoginResponse
	if err := c.postJSON(ctx, "/api/v1/users/login", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// LinkAccount attaches another layer to the authenticated user.
func (c *Client) LinkAccount(ctx context.Context, req SignInRequest) (*LinkAccountResponse, error) {
	var out LinkAccountResponse
	if err := c.postJSON(ctx, "/api/v1/users/link-account", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// LinkAccountToAnotherUser moves an address already owned by another user
// over to the authenticated user.
func (c *Client) LinkAccountToAnotherUser(ctx context.Context, req SignInRequest) (*LinkAccountResponse, error) {
	var out LinkAccountResponse
	if err := c.postJSON(ctx, "/api/v1/users/link-account-to-another-user", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) RefreshToken(ctx context.Context, refreshToken string) (*models.Tokens, error) {
	r, err := jsonRequest("POST", refreshPath, map[string]string{"refreshToken": refreshToken})
	if err != nil {
		return nil, err
	}
	r.noRefresh = true

	var out models.Tokens
	if err := c.do(ctx, r, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
