package stac

import (
	"context"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// Auth holds Earthdata credentials. A static bearer token wins over client
// credentials; with neither, requests are anonymous.
type Auth struct {
	Token        string
	ClientID     string
	ClientSecret string
	TokenURL     string
}

// TokenSource returns the token source for the configured credentials, or
// nil for anonymous access.
func (a Auth) TokenSource(ctx context.Context) oauth2.TokenSource {
	switch {
	case a.Token != "":
		return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: a.Token, TokenType: "Bearer"})
	case a.ClientID != "":
		cfg := &clientcredentials.Config{
			ClientID:     a.ClientID,
			ClientSecret: a.ClientSecret,
			TokenURL:     a.TokenURL,
		}
		return oauth2.ReuseTokenSource(nil, cfg.TokenSource(ctx))
	default:
		return nil
	}
}

// NewHTTPClient returns an HTTP client that authenticates with ts when it is
// not nil.
func NewHTTPClient(ctx context.Context, ts oauth2.TokenSource, timeout time.Duration) *http.Client {
	if ts == nil {
		return &http.Client{Timeout: timeout}
	}
	c := oauth2.NewClient(ctx, ts)
	c.Timeout = timeout
	return c
}
