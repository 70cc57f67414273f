// Package ranger implements a thin client for the policy admin server's
// public v2 service API. It covers the two calls provisioning needs,
// looking a service up by name and creating one, plus a reachability probe.
package ranger

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/net/http2"
	"golang.org/x/time/rate"

	"github.com/rangertools/rangerprov/internal/catalog"
	pkglog "github.com/rangertools/rangerprov/pkg/log"
)

const (
	servicePath    = "/service/public/v2/api/service"
	maxErrBodySize = 8 << 10
)

// Sentinel errors let callers classify lookup failures without string
// matching. A malformed 2xx body is reported distinctly because the
// provisioner treats it the same as an absent service.
var (
	ErrNotFound          = errors.New("service not found")
	ErrMalformedResponse = errors.New("malformed response body")
)

// Doer abstracts the HTTP client so tests can stub transport behaviour.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Options configure a Client.
type Options struct {
	// BaseURL is the admin server root, e.g. http://ranger:6080.
	BaseURL string

	// Username and Password are sent as basic auth unless Token is set.
	Username string
	Password string

	// Token, when non-empty, is sent as a bearer credential instead of
	// basic auth.
	Token string

	// Timeout bounds each request. Zero selects a 30s default.
	Timeout time.Duration

	// InsecureSkipVerify disables TLS certificate verification for
	// https admin endpoints with self-signed certificates.
	InsecureSkipVerify bool

	// RateLimit caps outgoing requests per second when positive.
	// RateBurst sets the limiter burst and defaults to 1.
	RateLimit rate.Limit
	RateBurst int

	// HTTPClient overrides the built-in client, mainly for tests.
	HTTPClient Doer
}

// Client talks to one policy admin server.
type Client struct {
	base     *url.URL
	username string
	password string
	token    string
	http     Doer
	limiter  *rate.Limiter
}

// NewClient validates opts and returns a ready client.
func NewClient(opts Options) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(opts.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("base url %q must use http or https", opts.BaseURL)
	}
	if base.Host == "" {
		return nil, fmt.Errorf("base url %q has no host", opts.BaseURL)
	}

	doer := opts.HTTPClient
	if doer == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		transport := &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			ForceAttemptHTTP2:   true,
			MaxIdleConnsPerHost: 4,
		}
		if opts.InsecureSkipVerify {
			transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
		}
		if err := http2.ConfigureTransport(transport); err != nil {
			pkglog.Logger().Warnw("http2 transport configuration failed", "error", err)
		}
		doer = &http.Client{Transport: transport, Timeout: timeout}
	}

	var limiter *rate.Limiter
	if opts.RateLimit > 0 {
		burst := opts.RateBurst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(opts.RateLimit, burst)
	}

	return &Client{
		base:     base,
		username: opts.Username,
		password: opts.Password,
		token:    opts.Token,
		http:     doer,
		limiter:  limiter,
	}, nil
}

// GetService looks a service definition up by name. It returns ErrNotFound
// when the server reports 404 and ErrMalformedResponse when a 2xx body does
// not decode.
func (c *Client) GetService(ctx context.Context, name string) (*catalog.Service, error) {
	endpoint := c.base.JoinPath(servicePath, "name", name).String()

	resp, err := c.do(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("lookup %s: %w", name, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		drain(resp.Body)
		return nil, fmt.Errorf("lookup %s: %w", name, ErrNotFound)
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		var svc catalog.Service
		if err := json.NewDecoder(resp.Body).Decode(&svc); err != nil {
			pkglog.Logger().Debugw("undecodable lookup response", "name", name, "error", err)
			return nil, fmt.Errorf("lookup %s: %w", name, ErrMalformedResponse)
		}
		return &svc, nil
	default:
		return nil, fmt.Errorf("lookup %s: %s", name, describeFailure(resp))
	}
}

// CreateService registers a new service definition and returns the created
// object as echoed back by the server.
func (c *Client) CreateService(ctx context.Context, svc catalog.Service) (*catalog.Service, error) {
	body, err := json.Marshal(svc)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", svc.Name, err)
	}

	endpoint := c.base.JoinPath(servicePath).String()
	resp, err := c.do(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", svc.Name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("create %s: %s", svc.Name, describeFailure(resp))
	}

	var created catalog.Service
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return nil, fmt.Errorf("create %s: %w", svc.Name, ErrMalformedResponse)
	}
	return &created, nil
}

// Ping probes the admin server root and reports nil on a 2xx answer.
func (c *Client) Ping(ctx context.Context) error {
	resp, err := c.do(ctx, http.MethodGet, c.base.String()+"/", nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	drain(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("admin server answered %s", resp.Status)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, endpoint string, body []byte) (*http.Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-Id", uuid.NewString())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	} else if c.username != "" {
		req.SetBasicAuth(c.username, c.password)
	}

	return c.http.Do(req)
}

// apiError is the error envelope the admin server returns on rejections.
type apiError struct {
	StatusCode int    `json:"statusCode"`
	MsgDesc    string `json:"msgDesc"`
}

// describeFailure summarises a non-2xx response, preferring the server's
// msgDesc over raw body bytes. It consumes resp.Body.
func describeFailure(resp *http.Response) string {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrBodySize))

	var apiErr apiError
	if err := json.Unmarshal(raw, &apiErr); err == nil && apiErr.MsgDesc != "" {
		return fmt.Sprintf("server answered %s: %s", resp.Status, apiErr.MsgDesc)
	}

	detail := strings.TrimSpace(string(raw))
	if detail == "" {
		return fmt.Sprintf("server answered %s", resp.Status)
	}
	if len(detail) > 200 {
		detail = detail[:200] + "..."
	}
	return fmt.Sprintf("server answered %s: %s", resp.Status, detail)
}

func drain(r io.Reader) {
	_, _ = io.Copy(io.Discard, io.LimitReader(r, maxErrBodySize))
}
