package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/kiranshivaraju/pulseboard/internal/metrics"
)

// Sentinel errors for backend transport failures.
var (
	ErrBackendUnreachable     = errors.New("backend unreachable")
	ErrBackendStatus          = errors.New("backend returned error status")
	ErrBackendTimeout         = errors.New("backend request timeout")
	ErrInvalidResponse        = errors.New("backend returned invalid response")
	ErrCredentialsUnavailable = errors.New("backend credentials unavailable")
)

// IsTransportFailure reports whether err came from the transport boundary.
func IsTransportFailure(err error) bool {
	return errors.Is(err, ErrBackendUnreachable) ||
		errors.Is(err, ErrBackendStatus) ||
		errors.Is(err, ErrBackendTimeout) ||
		errors.Is(err, ErrInvalidResponse) ||
		errors.Is(err, ErrCredentialsUnavailable)
}

// AuthScheme prefixes the token in the Authorization header.
const AuthScheme = "Token"

// Client is the interface for talking to the analytics backend.
type Client interface {
	CreateSearchQuery(ctx context.Context, query string, maxItems int) (string, error)
	StartCollection(ctx context.Context, jobID string) error
	CollectPosts(ctx context.Context, jobID string) error
	GetSearchQuery(ctx context.Context, jobID string) (*SearchQuery, error)
	AnalyzePosts(ctx context.Context, jobID string) (*AnalysisResponse, error)
	ListPosts(ctx context.Context, jobID string) ([]json.RawMessage, error)
	ListAnalyses(ctx context.Context, jobID string) ([]AnalysisResponse, error)
	Suggestions(ctx context.Context, prefix string) []string
	Ready(ctx context.Context) error
}

// CredentialProvider supplies the backend token at request-build time.
type CredentialProvider interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a CredentialProvider with a fixed token. An empty token
// sends no Authorization header.
type StaticToken string

func (t StaticToken) Token(_ context.Context) (string, error) { return string(t), nil }

// CredentialFunc adapts a function to CredentialProvider.
type CredentialFunc func(ctx context.Context) (string, error)

func (f CredentialFunc) Token(ctx context.Context) (string, error) { return f(ctx) }

// FallbackNotifier is told whenever canned data replaced a failed response.
type FallbackNotifier func(op string, err error)

// DefaultSuggestions are served when the suggestions endpoint fails.
var DefaultSuggestions = []string{
	"elections",
	"climate",
	"football",
	"technology",
	"economy",
}

// HTTPClient implements Client using the backend's REST API.
type HTTPClient struct {
	baseURL  string
	creds    CredentialProvider
	client   *http.Client
	fallback []string
	notify   FallbackNotifier
}

// Option configures an HTTPClient.
type Option func(*HTTPClient)

// WithFallbackSuggestions replaces the canned suggestions.
func WithFallbackSuggestions(s []string) Option {
	return func(c *HTTPClient) { c.fallback = s }
}

// WithFallbackNotifier registers a hook called whenever fallback data is served.
func WithFallbackNotifier(n FallbackNotifier) Option {
	return func(c *HTTPClient) { c.notify = n }
}

// NewHTTPClient creates a new backend client. A zero timeout leaves requests
// unbounded; callers bound them through ctx.
func NewHTTPClient(baseURL string, creds CredentialProvider, timeout time.Duration, opts ...Option) *HTTPClient {
	if creds == nil {
		creds = StaticToken("")
	}
	c := &HTTPClient{
		baseURL:  strings.TrimRight(baseURL, "/"),
		creds:    creds,
		client:   &http.Client{Timeout: timeout},
		fallback: DefaultSuggestions,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *HTTPClient) CreateSearchQuery(ctx context.Context, query string, maxItems int) (string, error) {
	body := createSearchQueryRequest{
		Query:      query,
		SearchType: "social",
		Parameters: searchParameters{MaxItems: maxItems, Sort: "Top"},
		Status:     StatusPending,
	}

	var created SearchQuery
	if err := c.doJSON(ctx, "create_search", http.MethodPost, "/searchqueries/", body, &created); err != nil {
		return "", err
	}
	return string(created.ID), nil
}

func (c *HTTPClient) StartCollection(ctx context.Context, jobID string) error {
	return c.doJSON(ctx, "start_collection", http.MethodPost, jobPath(jobID, "start_collection"), nil, nil)
}

func (c *HTTPClient) CollectPosts(ctx context.Context, jobID string) error {
	return c.doJSON(ctx, "collect_tweets", http.MethodPost, jobPath(jobID, "collect_tweets"), nil, nil)
}

func (c *HTTPClient) GetSearchQuery(ctx context.Context, jobID string) (*SearchQuery, error) {
	var q SearchQuery
	if err := c.doJSON(ctx, "get_search", http.MethodGet, jobPath(jobID, ""), nil, &q); err != nil {
		return nil, err
	}
	return &q, nil
}

func (c *HTTPClient) AnalyzePosts(ctx context.Context, jobID string) (*AnalysisResponse, error) {
	var a AnalysisResponse
	if err := c.doJSON(ctx, "analyze_tweets", http.MethodPost, jobPath(jobID, "analyze_tweets"), nil, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

func (c *HTTPClient) ListPosts(ctx context.Context, jobID string) ([]json.RawMessage, error) {
	var raw json.RawMessage
	path := "/tweets/?" + url.Values{"search_query": {jobID}}.Encode()
	if err := c.doJSON(ctx, "list_tweets", http.MethodGet, path, nil, &raw); err != nil {
		return nil, err
	}
	items, err := listItems(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: decoding tweets: %v", ErrInvalidResponse, err)
	}
	return items, nil
}

func (c *HTTPClient) ListAnalyses(ctx context.Context, jobID string) ([]AnalysisResponse, error) {
	var raw json.RawMessage
	path := "/analysis/?" + url.Values{"search_query": {jobID}}.Encode()
	if err := c.doJSON(ctx, "list_analysis", http.MethodGet, path, nil, &raw); err != nil {
		return nil, err
	}
	items, err := listItems(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: decoding analyses: %v", ErrInvalidResponse, err)
	}

	analyses := make([]AnalysisResponse, 0, len(items))
	for _, item := range items {
		var a AnalysisResponse
		if err := json.Unmarshal(item, &a); err != nil {
			continue
		}
		analyses = append(analyses, a)
	}
	return analyses, nil
}

// Suggestions returns autocomplete suggestions for prefix. It is the only
// call that degrades to canned data: failures are logged, reported to the
// fallback notifier, and answered with the fallback list.
func (c *HTTPClient) Suggestions(ctx context.Context, prefix string) []string {
	var raw json.RawMessage
	path := "/searchqueries/suggestions/?" + url.Values{"q": {prefix}}.Encode()
	err := c.doJSON(ctx, "suggestions", http.MethodGet, path, nil, &raw)
	if err == nil {
		var list TextList
		lenient(raw, &list)
		if len(list) == 0 {
			var wrapped struct {
				Suggestions TextList `json:"suggestions"`
				Results     TextList `json:"results"`
			}
			lenient(raw, &wrapped)
			list = append(wrapped.Suggestions, wrapped.Results...)
		}
		if len(list) > 0 {
			return list
		}
		err = fmt.Errorf("%w: no suggestions in response", ErrInvalidResponse)
	}

	slog.Warn("serving fallback suggestions", "prefix", prefix, "error", err)
	if c.notify != nil {
		c.notify("suggestions", err)
	}
	return filterPrefix(c.fallback, prefix)
}

func (c *HTTPClient) Ready(ctx context.Context) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/", nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	if err := c.setHeaders(ctx, httpReq); err != nil {
		return err
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnreachable, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("%w: backend not ready (status %d)", ErrBackendUnreachable, resp.StatusCode)
	}
	return nil
}

// doJSON issues one request. A nil out discards the response body after the
// status check.
func (c *HTTPClient) doJSON(ctx context.Context, op, method, path string, body, out any) error {
	start := time.Now()
	status := "error"
	defer func() {
		metrics.ObserveBackendRequest(op, status, time.Since(start))
	}()

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding %s request: %w", op, err)
		}
		reader = bytes.NewReader(b)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	httpReq.Header.Set("Accept", "application/json")
	if err := c.setHeaders(ctx, httpReq); err != nil {
		return err
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return classifyError(err)
	}
	defer resp.Body.Close()
	status = strconv.Itoa(resp.StatusCode)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("%w: %s status %d", ErrBackendStatus, op, resp.StatusCode)
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decoding %s response: %v", ErrInvalidResponse, op, err)
	}
	return nil
}

func (c *HTTPClient) setHeaders(ctx context.Context, req *http.Request) error {
	token, err := c.creds.Token(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCredentialsUnavailable, err)
	}
	if token != "" {
		req.Header.Set("Authorization", AuthScheme+" "+token)
	}
	return nil
}

// classifyError maps transport-level errors to sentinel errors.
func classifyError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %v", ErrBackendTimeout, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrBackendTimeout, err)
	}

	return fmt.Errorf("%w: %v", ErrBackendUnreachable, err)
}

func jobPath(jobID, action string) string {
	p := "/searchqueries/" + url.PathEscape(jobID) + "/"
	if action != "" {
		p += action + "/"
	}
	return p
}

func filterPrefix(list []string, prefix string) []string {
	prefix = strings.ToLower(strings.TrimSpace(prefix))
	out := make([]string, 0, len(list))
	for _, s := range list {
		if prefix == "" || strings.HasPrefix(strings.ToLower(s), prefix) {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return append(out, list...)
	}
	return out
}

// Compile-time check that HTTPClient implements Client.
var _ Client = (*HTTPClient)(nil)
