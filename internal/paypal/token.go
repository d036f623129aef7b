package paypal

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/sync/singleflight"
)

const tokenExpiryBuffer = time.Minute

// tokenSource caches the client-credentials bearer token. Refreshes are
// collapsed with singleflight so concurrent callers hitting an expired token
// trigger a single token request.
type tokenSource struct {
	cfg        clientcredentials.Config
	httpClient *http.Client
	group      singleflight.Group
	now        func() time.Time

	mu     sync.Mutex
	token  string
	expiry time.Time
}

func newTokenSource(baseURL, clientID, clientSecret string, httpClient *http.Client) *tokenSource {
	return &tokenSource{
		cfg: clientcredentials.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			TokenURL:     baseURL + "/v1/oauth2/token",
			AuthStyle:    oauth2.AuthStyleInHeader,
		},
		httpClient: httpClient,
		now:        time.Now,
	}
}

func (s *tokenSource) Token(ctx context.Context) (string, error) {
	if tok, ok := s.cached(); ok {
		return tok, nil
	}

	v, err, _ := s.group.Do("token", func() (any, error) {
		if tok, ok := s.cached(); ok {
			return tok, nil
		}
		return s.fetch(ctx)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (s *tokenSource) cached() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.token != "" && s.now().Before(s.expiry) {
		return s.token, true
	}
	return "", false
}

func (s *tokenSource) fetch(ctx context.Context) (string, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, s.httpClient)
	tok, err := s.cfg.Token(ctx)
	if err != nil {
		return "", fmt.Errorf("fetch access token: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = tok.AccessToken
	// A token without expires_in is used once and never cached.
	s.expiry = s.now()
	if !tok.Expiry.IsZero() {
		s.expiry = tok.Expiry.Add(-tokenExpiryBuffer)
	}
	return tok.AccessToken, nil
}
