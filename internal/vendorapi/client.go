package vendorapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/fulfillsync/mirror/internal/ratelimit"
	"github.com/rs/zerolog/log"
)

// Client issues authenticated GETs against the vendor API. Every
// request is serialized through the shared rate limiter; one Client
// (and one limiter) exists per upstream host.
type Client struct {
	baseURL   string
	apiKey    string
	userAgent string
	pageLimit int
	http      *http.Client
	limiter   *ratelimit.Limiter
}

// Options configures a Client.
type Options struct {
	BaseURL   string
	APIKey    string
	UserAgent string
	PageLimit int           // default 100
	Timeout   time.Duration // default 30s
	Limiter   *ratelimit.Limiter
	// HTTPClient overrides the transport; used by tests.
	HTTPClient *http.Client
}

// New creates a Client.
func New(opts Options) *Client {
	if opts.PageLimit <= 0 {
		opts.PageLimit = 100
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: opts.Timeout}
	}
	return &Client{
		baseURL:   strings.TrimRight(opts.BaseURL, "/"),
		apiKey:    opts.APIKey,
		userAgent: opts.UserAgent,
		pageLimit: opts.PageLimit,
		http:      hc,
		limiter:   opts.Limiter,
	}
}

// PageLimit is the configured page size.
func (c *Client) PageLimit() int { return c.pageLimit }

// get performs one rate-limited GET and returns the raw body.
func (c *Client) get(ctx context.Context, path string, params url.Values) ([]byte, error) {
	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	var body []byte
	call := func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return &Error{Kind: KindTransport, Op: path, Err: err}
		}
		// Basic auth: username is the API key, password empty.
		req.SetBasicAuth(c.apiKey, "")
		req.Header.Set("User-Agent", c.userAgent)

		resp, err := c.http.Do(req)
		if err != nil {
			return &Error{Kind: KindTransport, Op: path, Err: err}
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusTooManyRequests {
			io.Copy(io.Discard, resp.Body)
			return &Error{Kind: KindRateLimited, Status: resp.StatusCode, Op: path}
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			io.Copy(io.Discard, resp.Body)
			return &Error{Kind: KindHTTP, Status: resp.StatusCode, Op: path}
		}

		body, err = io.ReadAll(resp.Body)
		if err != nil {
			return &Error{Kind: KindTransport, Op: path, Err: err}
		}
		return nil
	}

	var err error
	if c.limiter != nil {
		err = c.limiter.Execute(ctx, call)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return nil, err
	}
	return body, nil
}

// listEnvelope accepts the {"data": [...]} wrapper form.
type listEnvelope struct {
	Data []map[string]any `json:"data"`
}

// Records GETs a list endpoint and decodes it. The upstream is
// observed to answer with either a top-level array or a {data: [...]}
// envelope; both are accepted.
func (c *Client) Records(ctx context.Context, path string, params url.Values) ([]Record, error) {
	body, err := c.get(ctx, path, params)
	if err != nil {
		return nil, err
	}

	trimmed := strings.TrimLeft(string(body), " \t\r\n")
	if strings.HasPrefix(trimmed, "[") {
		var raw []map[string]any
		if err := json.Unmarshal(body, &raw); err != nil {
			return nil, &Error{Kind: KindDecode, Op: path, Err: err}
		}
		return toRecords(raw), nil
	}

	var env listEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, &Error{Kind: KindDecode, Op: path, Err: err}
	}
	if env.Data == nil {
		log.Debug().Str("path", path).Msg("list response without data envelope, treating as empty")
	}
	return toRecords(env.Data), nil
}

// Record GETs a detail endpoint and decodes a single object, with or
// without a {data: {...}} envelope.
func (c *Client) Record(ctx context.Context, path string, params url.Values) (Record, error) {
	body, err := c.get(ctx, path, params)
	if err != nil {
		return nil, err
	}

	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, &Error{Kind: KindDecode, Op: path, Err: err}
	}
	if inner, ok := raw["data"].(map[string]any); ok && len(raw) == 1 {
		return Record(inner), nil
	}
	return Record(raw), nil
}

func toRecords(raw []map[string]any) []Record {
	recs := make([]Record, len(raw))
	for i, m := range raw {
		recs[i] = Record(m)
	}
	return recs
}
