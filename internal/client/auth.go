package client

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2/clientcredentials"
)

// tokenFunc supplies a bearer token for each request. Nil means
// unauthenticated.
type tokenFunc func() (string, error)

// WithBearerToken sends a static bearer token on every request.
func WithBearerToken(token string) Option {
	return func(c *Client) {
		c.token = func() (string, error) { return token, nil }
	}
}

// WithJWTSecret mints short-lived HS256 tokens locally from a shared
// secret. Tokens are reused until close to expiry.
func WithJWTSecret(secret string) Option {
	m := &jwtMinter{secret: []byte(secret)}
	return func(c *Client) {
		c.token = m.Token
	}
}

// WithOAuth fetches tokens via the OAuth2 client-credentials flow.
func WithOAuth(tokenURL, clientID, clientSecret string) Option {
	cfg := &clientcredentials.Config{
		TokenURL:     tokenURL,
		ClientID:     clientID,
		ClientSecret: clientSecret,
	}
	src := cfg.TokenSource(context.Background())
	return func(c *Client) {
		c.token = func() (string, error) {
			tok, err := src.Token()
			if err != nil {
				return "", fmt.Errorf("oauth token: %w", err)
			}
			return tok.AccessToken, nil
		}
	}
}

type jwtMinter struct {
	secret []byte

	mu    sync.Mutex
	token string
	exp   time.Time
}

func (m *jwtMinter) Token() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.token != "" && time.Until(m.exp) > time.Minute {
		return m.token, nil
	}

	now := time.Now()
	exp := now.Add(time.Hour)
	claims := jwt.MapClaims{
		"iss": "savesbench",
		"iat": now.Unix(),
		"exp": exp.Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("sign jwt: %w", err)
	}

	m.token = signed
	m.exp = exp
	return signed, nil
}
