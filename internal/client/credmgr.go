package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	api "github.com/meshbed/testbed-manager/api/v1alpha1"
)

// TokenType selects which token a revocation targets.
type TokenType string

const (
	TokenTypeIdentity TokenType = "identity"
	TokenTypeRefresh  TokenType = "refresh"
)

// DefaultTokenScope requests tokens valid for every service.
const DefaultTokenScope = "all"

// Credmgr talks to the credential manager's token endpoints.
type Credmgr struct {
	r *requester
}

// NewCredmgr builds a credential manager client. Bare hosts are
// normalized to https://<host>/credmgr/.
func NewCredmgr(host string, opts ...Option) *Credmgr {
	return &Credmgr{r: newRequester("credmgr", baseURL(host, "credmgr/"), opts...)}
}

// RefreshRequest carries the parameters of a token refresh.
type RefreshRequest struct {
	RefreshToken string
	Scope        string
	ProjectID    string
	ProjectName  string
}

// Refresh exchanges a refresh token for a fresh token pair bound to the
// given project and scope. Scope defaults to DefaultTokenScope.
func (c *Credmgr) Refresh(ctx context.Context, req RefreshRequest) (*api.Token, error) {
	if req.RefreshToken == "" {
		return nil, fmt.Errorf("refresh token must be specified")
	}
	scope := req.Scope
	if scope == "" {
		scope = DefaultTokenScope
	}
	params := url.Values{}
	params.Set("scope", scope)
	if req.ProjectID != "" {
		params.Set("project_id", req.ProjectID)
	}
	if req.ProjectName != "" {
		params.Set("project_name", req.ProjectName)
	}

	raw, err := c.r.do(ctx, request{
		method: http.MethodPost,
		path:   "tokens/refresh",
		params: params,
		body:   map[string]string{"refresh_token": req.RefreshToken},
	})
	if err != nil {
		return nil, err
	}
	var tokens []api.Token
	if err := unmarshalData(raw, &tokens); err != nil {
		return nil, err
	}
	if len(tokens) == 0 {
		return nil, ErrEmptyResponse
	}
	return &tokens[0], nil
}

// Revoke invalidates a token. The identity token authorizes the call,
// tokenType selects whether the identity or the refresh token is being
// revoked.
func (c *Credmgr) Revoke(ctx context.Context, idToken string, tokenType TokenType, token string) error {
	if token == "" {
		return fmt.Errorf("token must be specified")
	}
	_, err := c.r.do(ctx, request{
		method: http.MethodPost,
		path:   "tokens/revokes",
		token:  idToken,
		body:   map[string]string{"type": string(tokenType), "token": token},
	})
	return err
}

// Validate asks the credential manager to verify an identity token and
// returns its decoded claims.
func (c *Credmgr) Validate(ctx context.Context, idToken string) (map[string]any, error) {
	if idToken == "" {
		return nil, fmt.Errorf("identity token must be specified")
	}
	raw, err := c.r.do(ctx, request{
		method: http.MethodPost,
		path:   "tokens/validate",
		body:   map[string]string{"type": string(TokenTypeIdentity), "token": idToken},
	})
	if err != nil {
		return nil, err
	}
	var payload struct {
		Token map[string]any `json:"token"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("failed to decode token claims: %w", err)
	}
	return payload.Token, nil
}

// ListTokensOptions narrows a token listing.
type ListTokensOptions struct {
	Limit  int
	Offset int
	States []string
}

// Tokens lists the caller's issued tokens. Replies carry token metadata
// only, never token material.
func (c *Credmgr) Tokens(ctx context.Context, idToken string, opts ListTokensOptions) ([]api.Token, error) {
	if idToken == "" {
		return nil, fmt.Errorf("identity token must be specified")
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = defaultPageSize
	}
	params := url.Values{}
	params.Set("limit", strconv.Itoa(limit))
	params.Set("offset", strconv.Itoa(opts.Offset))
	for _, state := range opts.States {
		params.Add("states", state)
	}

	raw, err := c.r.do(ctx, request{
		method: http.MethodGet,
		path:   "tokens",
		token:  idToken,
		params: params,
	})
	if err != nil {
		return nil, err
	}
	var tokens []api.Token
	if err := unmarshalData(raw, &tokens); err != nil {
		return nil, err
	}
	return tokens, nil
}
