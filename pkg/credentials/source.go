package credentials

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// DefaultTTL is assumed when the token endpoint omits expires_in.
const DefaultTTL = 1500 * time.Second

// Token is a bearer token together with the lifetime the provider granted.
type Token struct {
	AccessToken string
	TTL         time.Duration
}

// Source fetches a fresh token from a remote provider.
type Source interface {
	Fetch(ctx context.Context) (*Token, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context) (*Token, error)

func (f SourceFunc) Fetch(ctx context.Context) (*Token, error) { return f(ctx) }

// ClientCredentialsConfig configures an OAuth2 client-credentials source.
type ClientCredentialsConfig struct {
	Name         string
	ClientID     string
	ClientSecret string
	TokenURL     string
	Scopes       []string
	// HTTPClient is used for the token request; http.DefaultClient when nil.
	HTTPClient *http.Client
}

// ClientCredentials fetches tokens with the OAuth2 client-credentials grant,
// sending client_id and client_secret as form parameters.
type ClientCredentials struct {
	name       string
	config     clientcredentials.Config
	httpClient *http.Client
}

// NewClientCredentials creates a client-credentials source.
func NewClientCredentials(cfg ClientCredentialsConfig) *ClientCredentials {
	return &ClientCredentials{
		name: cfg.Name,
		config: clientcredentials.Config{
			ClientID:       cfg.ClientID,
			ClientSecret:   cfg.ClientSecret,
			TokenURL:       cfg.TokenURL,
			Scopes:         cfg.Scopes,
			AuthStyle:      oauth2.AuthStyleInParams,
			EndpointParams: url.Values{},
		},
		httpClient: cfg.HTTPClient,
	}
}

// Fetch requests a new token. It never consults or fills a cache.
func (c *ClientCredentials) Fetch(ctx context.Context) (*Token, error) {
	if c.config.ClientID == "" || c.config.ClientSecret == "" {
		return nil, ErrNotConfigured
	}
	if c.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
	}

	tok, err := c.config.Token(ctx)
	if err != nil {
		fetchErr := &FetchError{Name: c.name, Err: err}
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) && retrieveErr.Response != nil {
			fetchErr.StatusCode = retrieveErr.Response.StatusCode
		}
		return nil, fetchErr
	}

	ttl := DefaultTTL
	if !tok.Expiry.IsZero() {
		ttl = time.Until(tok.Expiry)
	}
	return &Token{AccessToken: tok.AccessToken, TTL: ttl}, nil
}
