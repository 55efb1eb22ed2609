package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"
)

// Config identifies the analytics server, the organization and the project to work on.
type Config struct {
	// BaseURL is scheme and host, e.g. https://cube.example.
	BaseURL string
	// DesignCenterPort and EnginePort are appended to BaseURL when set.
	DesignCenterPort string
	EnginePort       string
	Organization     string
	ProjectID        string
	Token            string
	Username         string
	Password         string
	Timeout          time.Duration
	HTTPClient       *http.Client
	Logger           *slog.Logger
}

// Client issues authenticated calls against the design center and engine endpoints.
// It is not safe for concurrent use.
type Client struct {
	designURL string
	engineURL string
	org       string
	projectID string
	http      *http.Client
	session   *Session
	logger    *slog.Logger
}

// New creates a client, authenticating first when no token is supplied.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" || cfg.Organization == "" {
		return nil, errors.New("remote: base url and organization are required")
	}
	if cfg.Token == "" && (cfg.Username == "" || cfg.Password == "") {
		return nil, fmt.Errorf("%w: a token or a username and password are required", ErrAuthentication)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	hc := cfg.HTTPClient
	if hc == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = 60 * time.Second
		}
		hc = &http.Client{Timeout: timeout}
	}

	base := strings.TrimRight(cfg.BaseURL, "/")
	c := &Client{
		designURL: withPort(base, cfg.DesignCenterPort),
		engineURL: withPort(base, cfg.EnginePort),
		org:       cfg.Organization,
		projectID: cfg.ProjectID,
		http:      hc,
		logger:    logger,
	}
	authURL := c.designURL + "/" + url.PathEscape(cfg.Organization) + "/auth"
	c.session = newSession(authURL, cfg.Username, cfg.Password, cfg.Token, hc, logger)

	if cfg.Token == "" {
		if err := c.session.Authenticate(ctx); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func withPort(base, port string) string {
	if port == "" {
		return base
	}
	return base + ":" + port
}

// Session returns the client's session.
func (c *Client) Session() *Session {
	return c.session
}

// Organization returns the organization id.
func (c *Client) Organization() string {
	return c.org
}

// ProjectID returns the id of the project the client operates on.
func (c *Client) ProjectID() string {
	return c.projectID
}

// SetProjectID switches the client to another project.
func (c *Client) SetProjectID(id string) {
	c.projectID = id
}

type call struct {
	method      string
	url         string
	body        []byte
	contentType string
	// retryOn lists statuses healed by one re-authentication; 401 when empty.
	retryOn []int
}

type response struct {
	status int
	body   []byte
}

// send performs the call and returns the body of a 2xx response.
func (c *Client) send(ctx context.Context, cl call) ([]byte, error) {
	codes := cl.retryOn
	if len(codes) == 0 {
		codes = []int{http.StatusUnauthorized}
	}

	resp, err := c.retryOnce(ctx, codes, func() (response, error) {
		return c.attempt(ctx, cl)
	})
	if err != nil {
		return nil, err
	}
	if resp.status == http.StatusUnauthorized {
		return nil, fmt.Errorf("%w: %s %s rejected after re-authentication", ErrAuthentication, cl.method, pathOf(cl.url))
	}
	if resp.status < 200 || resp.status > 299 {
		return nil, newStatusError(resp.status, resp.body)
	}
	return resp.body, nil
}

// retryOnce runs attempt and, when its status is one of codes, renews the
// token and runs it exactly one more time.
func (c *Client) retryOnce(ctx context.Context, codes []int, attempt func() (response, error)) (response, error) {
	resp, err := attempt()
	if err != nil || !slices.Contains(codes, resp.status) {
		return resp, err
	}
	if err := c.session.renew(ctx); err != nil {
		return response{}, err
	}
	return attempt()
}

func (c *Client) attempt(ctx context.Context, cl call) (response, error) {
	var body io.Reader
	if cl.body != nil {
		body = bytes.NewReader(cl.body)
	}
	req, err := http.NewRequestWithContext(ctx, cl.method, cl.url, body)
	if err != nil {
		return response{}, fmt.Errorf("building request: %w", err)
	}
	req.Header = c.session.Headers()
	if cl.contentType != "" {
		req.Header.Set("Content-Type", cl.contentType)
	}

	res, err := c.http.Do(req)
	if err != nil {
		return response{}, fmt.Errorf("%s %s: %w", cl.method, pathOf(cl.url), err)
	}
	defer res.Body.Close()

	data, err := io.ReadAll(res.Body)
	if err != nil {
		return response{}, fmt.Errorf("reading %s response: %w", pathOf(cl.url), err)
	}
	c.logger.Debug("remote call", "method", cl.method, "path", pathOf(cl.url), "status", res.StatusCode)
	return response{status: res.StatusCode, body: data}, nil
}

func pathOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	return u.Path
}
