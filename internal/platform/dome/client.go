// Package dome is the REST client for the Dome market-data API. Every GET is
// routed through a domain.ResponseCache so identical requests inside the TTL
// window reach the network once.
package dome

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/alanyoungcy/polyview/internal/domain"
)

// DefaultBaseURL is the production API root.
const DefaultBaseURL = "https://api.domeapi.io/v1"

// ClientConfig holds the Dome client parameters.
type ClientConfig struct {
	BaseURL string
	Timeout time.Duration
}

// Client issues authenticated requests against the Dome API. The API key is
// supplied per call and never retained.
//
// Every network request counts against the caller's upstream quota; cache
// hits do not.
type Client struct {
	baseURL    string
	httpClient *http.Client
	cache      domain.ResponseCache
	logger     *slog.Logger
}

// NewClient creates a Dome client that reads through cache.
func NewClient(cfg ClientConfig, cache domain.ResponseCache, logger *slog.Logger) *Client {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		cache:  cache,
		logger: logger,
	}
}

// Param is one query parameter. Params keep the order they are passed in so
// that the cache key is stable for a given call site.
type Param struct {
	Key   string
	Value any
}

// P is shorthand for building a Param.
func P(key string, value any) Param {
	return Param{Key: key, Value: value}
}

// Request performs GET {baseURL}{path}?{query} with a bearer token and
// returns the raw JSON body. Failures are one of domain.ErrRateLimited (429),
// *domain.UpstreamError (other non-2xx) or *domain.TransportError.
func (c *Client) Request(ctx context.Context, path, apiKey string, params ...Param) (json.RawMessage, error) {
	key := path + EncodeQuery(params)

	body, err := c.cache.GetOrFetch(ctx, key, func(ctx context.Context) ([]byte, error) {
		return c.doGet(ctx, key, apiKey)
	})
	if err != nil {
		return nil, err
	}
	return body, nil
}

// EncodeQuery renders params as "?k=v&k2=v2" in the given order. Params with
// a nil value (including typed nil pointers) are skipped. It returns "" when
// nothing remains.
func EncodeQuery(params []Param) string {
	var sb strings.Builder
	for _, p := range params {
		v, ok := formatValue(p.Value)
		if !ok {
			continue
		}
		if sb.Len() == 0 {
			sb.WriteByte('?')
		} else {
			sb.WriteByte('&')
		}
		sb.WriteString(escape(p.Key))
		sb.WriteByte('=')
		sb.WriteString(escape(v))
	}
	return sb.String()
}

func formatValue(v any) (string, bool) {
	switch x := v.(type) {
	case nil:
		return "", false
	case string:
		return x, true
	case *string:
		if x == nil {
			return "", false
		}
		return *x, true
	case int:
		return strconv.Itoa(x), true
	case *int:
		if x == nil {
			return "", false
		}
		return strconv.Itoa(*x), true
	case int64:
		return strconv.FormatInt(x, 10), true
	case *int64:
		if x == nil {
			return "", false
		}
		return strconv.FormatInt(*x, 10), true
	case bool:
		return strconv.FormatBool(x), true
	case fmt.Stringer:
		return x.String(), true
	default:
		return fmt.Sprint(x), true
	}
}

// escape percent-encodes s, using %20 for spaces.
func escape(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}

// --------------------------------------------------------------------------
// Internal helpers
// --------------------------------------------------------------------------

// doGet sends an authenticated GET request. pathAndQuery is relative to the
// base URL.
func (c *Client) doGet(ctx context.Context, pathAndQuery, apiKey string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+pathAndQuery, nil)
	if err != nil {
		return nil, fmt.Errorf("dome: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+apiKey)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &domain.TransportError{Path: pathAndQuery, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &domain.TransportError{Path: pathAndQuery, Err: fmt.Errorf("read response: %w", err)}
	}

	c.logger.DebugContext(ctx, "dome: upstream request",
		slog.String("path", pathAndQuery),
		slog.Int("status", resp.StatusCode),
		slog.Duration("duration", time.Since(start)),
	)

	if err := checkHTTPStatus(pathAndQuery, resp); err != nil {
		return nil, err
	}
	return body, nil
}

// checkHTTPStatus maps non-2xx responses to domain errors.
func checkHTTPStatus(path string, resp *http.Response) error {
	code := resp.StatusCode
	if code >= 200 && code < 300 {
		return nil
	}
	if code == http.StatusTooManyRequests {
		return fmt.Errorf("dome: %s: %w", path, domain.ErrRateLimited)
	}
	return &domain.UpstreamError{
		Path:       path,
		Status:     code,
		StatusText: statusText(resp),
	}
}

// statusText returns the reason phrase from resp.Status ("404 Not Found" ->
// "Not Found"), falling back to the canonical text for the code.
func statusText(resp *http.Response) string {
	text := strings.TrimSpace(strings.TrimPrefix(resp.Status, strconv.Itoa(resp.StatusCode)))
	if text == "" {
		text = http.StatusText(resp.StatusCode)
	}
	return text
}
