package fineract

import (
	"context"
	"errors"
	"net/http"
)

var ErrNotAuthenticated = errors.New("fineract rejected the credentials")

type authRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Authenticate checks username/password against the tenant. The client's own
// basic-auth credentials are not sent.
func (c *APIClient) Authenticate(ctx context.Context, username, password string) (AuthResult, error) {
	anon := *c
	anon.username = ""
	anon.password = ""

	var res AuthResult
	if err := anon.sendJSON(ctx, http.MethodPost, "/authentication", authRequest{Username: username, Password: password}, &res); err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && (apiErr.StatusCode == http.StatusUnauthorized || apiErr.StatusCode == http.StatusForbidden) {
			return res, ErrNotAuthenticated
		}
		return res, err
	}
	if !res.Authenticated {
		return res, ErrNotAuthenticated
	}
	return res, nil
}
