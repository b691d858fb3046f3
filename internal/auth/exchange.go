package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/fieldscan/fieldscan/internal/errors"
	"github.com/fieldscan/fieldscan/internal/httpclient"
)

// Exchanger trades an SSO token or a refresh token for credentials
type Exchanger interface {
	Exchange(ctx context.Context, ssoToken string) (*Credentials, error)
	Refresh(ctx context.Context, refreshToken string) (*Credentials, error)
}

const (
	pathExchange = "/api/auth/sso"
	pathRefresh  = "/api/auth/refresh"
)

// HTTPExchanger implements Exchanger against the backend auth endpoints
type HTTPExchanger struct {
	http    *httpclient.Client
	baseURL string
	now     func() time.Time
}

// NewHTTPExchanger returns an exchanger for baseURL
func NewHTTPExchanger(baseURL string, hc *httpclient.Client) *HTTPExchanger {
	if hc == nil {
		hc = httpclient.New(nil)
	}
	return &HTTPExchanger{http: hc, baseURL: strings.TrimRight(baseURL, "/"), now: time.Now}
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
	Subject      string `json:"subject"`
}

// Exchange trades an SSO token for credentials
func (e *HTTPExchanger) Exchange(ctx context.Context, ssoToken string) (*Credentials, error) {
	return e.post(ctx, pathExchange, map[string]string{"sso_token": ssoToken})
}

// Refresh trades a refresh token for new credentials. A response without a
// refresh token keeps the old one.
func (e *HTTPExchanger) Refresh(ctx context.Context, refreshToken string) (*Credentials, error) {
	c, err := e.post(ctx, pathRefresh, map[string]string{"refresh_token": refreshToken})
	if err != nil {
		return nil, err
	}
	if c.RefreshToken == "" {
		c.RefreshToken = refreshToken
	}
	return c, nil
}

func (e *HTTPExchanger) post(ctx context.Context, path string, body any) (*Credentials, error) {
	resp, err := e.http.DoJSON(ctx, http.MethodPost, e.baseURL+path, nil, body)
	if err != nil {
		return nil, errors.New(err).
			Component("auth").
			Category(errors.CategoryNetwork).
			Context("path", path).
			Build()
	}
	if resp.StatusCode != http.StatusOK {
		category := errors.CategoryHTTP
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			category = errors.CategoryAuth
		}
		return nil, errors.New(fmt.Errorf("token endpoint returned status %d", resp.StatusCode)).
			Component("auth").
			Category(category).
			Context("path", path).
			Context("status", resp.StatusCode).
			Build()
	}

	var tr tokenResponse
	if err := json.Unmarshal(resp.Body, &tr); err != nil || tr.AccessToken == "" {
		if err == nil {
			err = fmt.Errorf("token response has no access token")
		}
		return nil, errors.New(err).
			Component("auth").
			Category(errors.CategoryFileParsing).
			Context("path", path).
			Build()
	}

	c := &Credentials{AccessToken: tr.AccessToken, RefreshToken: tr.RefreshToken, Subject: tr.Subject}
	if exp, ok := tokenExpiry(tr.AccessToken); ok {
		c.ExpiresAt = exp
	} else if tr.ExpiresIn > 0 {
		c.ExpiresAt = e.now().Add(time.Duration(tr.ExpiresIn) * time.Second)
	}
	return c, nil
}
