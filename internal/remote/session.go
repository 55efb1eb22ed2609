package remote

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
)

// Session holds the bearer token and the credentials used to renew it.
// It is not safe for concurrent use.
type Session struct {
	authURL  string
	username string
	password string
	token    string
	http     *http.Client
	logger   *slog.Logger
}

func newSession(authURL, username, password, token string, hc *http.Client, logger *slog.Logger) *Session {
	return &Session{
		authURL:  authURL,
		username: username,
		password: password,
		token:    token,
		http:     hc,
		logger:   logger,
	}
}

// Authenticate exchanges the credentials for a new bearer token.
func (s *Session) Authenticate(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.authURL, nil)
	if err != nil {
		return fmt.Errorf("building auth request: %w", err)
	}
	req.SetBasicAuth(s.username, s.password)

	resp, err := s.http.Do(req)
	if err != nil {
		return fmt.Errorf("requesting token: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading token: %w", err)
	}
	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return fmt.Errorf("%w: credentials rejected for user %q", ErrAuthentication, s.username)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return newStatusError(resp.StatusCode, body)
	}

	s.token = strings.TrimSpace(string(body))
	s.logger.Debug("token acquired", "user", s.username)
	return nil
}

// CanRenew reports whether credentials are available to replace a rejected token.
func (s *Session) CanRenew() bool {
	return s.username != "" && s.password != ""
}

func (s *Session) renew(ctx context.Context) error {
	if !s.CanRenew() {
		return fmt.Errorf("%w: token rejected and no credentials to renew it", ErrAuthentication)
	}
	s.logger.Info("token rejected, re-authenticating", "user", s.username)
	return s.Authenticate(ctx)
}

// Token returns the current bearer token.
func (s *Session) Token() string {
	return s.token
}

// Headers returns the JSON content type and bearer authorization headers.
func (s *Session) Headers() http.Header {
	h := http.Header{}
	h.Set("Content-Type", "application/json")
	h.Set("Authorization", "Bearer "+s.token)
	return h
}
