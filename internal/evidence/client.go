// Package evidence is the single point of contact with the external
// text-generation service. It owns credential rotation, response caching,
// rate-limit recovery, and citation extraction.
package evidence

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"time"
)

const (
	DefaultBaseURL = "https://api.perplexity.ai"
	DefaultModel   = "sonar-pro"

	cacheTTL       = time.Hour
	cacheKeyPrefix = 500
)

var (
	// ErrNoCredentials is raised at first use, not at construction.
	ErrNoCredentials = errors.New("no generation-service credentials configured")

	inlineCitationRe = regexp.MustCompile(`\[(\d+)\]`)
)

// APIError is a non-429 HTTP failure from the generation service.
// It is surfaced immediately without credential rotation.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("generation service error (status %d): %s", e.StatusCode, e.Body)
}

// RateLimitError is recoverable by rotating to the next credential.
type RateLimitError struct {
	Body string
}

func (e *RateLimitError) Error() string { return "rate limited: " + e.Body }

type Options struct {
	Model              string
	Temperature        float64
	MaxTokens          int
	DisableCache       bool
	SearchDomainFilter []string
	ReturnCitations    bool
}

type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

// Citation is the adapter-level source record. The pipeline converts these
// into report citations.
type Citation struct {
	ID          string    `json:"id"`
	Source      string    `json:"source"`
	URL         string    `json:"url,omitempty"`
	Title       string    `json:"title"`
	RetrievedAt time.Time `json:"retrieved_at"`
}

type Response struct {
	Content   string     `json:"content"`
	Citations []Citation `json:"citations"`
	Model     string     `json:"model"`
	Usage     Usage      `json:"usage"`
}

type Config struct {
	BaseURL     string
	Credentials []string
	HTTPClient  *http.Client
}

type cacheEntry struct {
	response Response
	storedAt time.Time
}

// Client rotates through its credential pool round-robin on every call,
// regardless of the outcome of the previous call.
type Client struct {
	cfg Config

	mu      sync.Mutex
	nextKey int
	cache   map[string]cacheEntry

	now func() time.Time
}

func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 60 * time.Second}
	}
	creds := make([]string, 0, len(cfg.Credentials))
	for _, c := range cfg.Credentials {
		if strings.TrimSpace(c) != "" {
			creds = append(creds, strings.TrimSpace(c))
		}
	}
	cfg.Credentials = creds
	return &Client{cfg: cfg, cache: map[string]cacheEntry{}, now: time.Now}
}

// Query issues one generation request, combining the system and user
// instructions into a two-turn chat request. On a rate-limit response it
// advances to the next credential, at most one attempt per credential in the
// pool; any other HTTP error is surfaced immediately.
func (c *Client) Query(ctx context.Context, systemPrompt, userPrompt string, opts Options) (*Response, error) {
	if opts.Model == "" {
		opts.Model = DefaultModel
	}
	if opts.Temperature == 0 {
		opts.Temperature = 0.2
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 4000
	}

	key := cacheKey(opts.Model, systemPrompt+"\n\n"+userPrompt)
	if !opts.DisableCache {
		if cached, ok := c.cacheGet(key); ok {
			return &cached, nil
		}
	}

	var lastErr error
	pool := len(c.cfg.Credentials)
	if pool == 0 {
		return nil, ErrNoCredentials
	}
	for attempt := 0; attempt < pool; attempt++ {
		cred := c.rotateCredential()
		resp, err := c.queryOnce(ctx, cred, systemPrompt, userPrompt, opts)
		if err == nil {
			if !opts.DisableCache {
				c.cachePut(key, *resp)
			}
			return resp, nil
		}
		var rl *RateLimitError
		if !errors.As(err, &rl) {
			return nil, err
		}
		lastErr = err
		log.Printf("evidence rate_limited attempt=%d pool=%d", attempt+1, pool)
	}
	return nil, lastErr
}

func (c *Client) rotateCredential() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	cred := c.cfg.Credentials[c.nextKey%len(c.cfg.Credentials)]
	c.nextKey++
	return cred
}

func (c *Client) queryOnce(ctx context.Context, credential, systemPrompt, userPrompt string, opts Options) (*Response, error) {
	body := map[string]any{
		"model": opts.Model,
		"messages": []map[string]string{
			{"role": "system", "content": systemPrompt},
			{"role": "user", "content": userPrompt},
		},
		"temperature":      opts.Temperature,
		"max_tokens":       opts.MaxTokens,
		"return_citations": opts.ReturnCitations,
	}
	if len(opts.SearchDomainFilter) > 0 {
		body["search_domain_filter"] = opts.SearchDomainFilter
	}
	payload, _ := json.Marshal(body)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(c.cfg.BaseURL, "/")+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+credential)
	req.Header.Set("Content-Type", "application/json")

	res, err := c.cfg.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	blob, _ := io.ReadAll(io.LimitReader(res.Body, 2<<20))

	if res.StatusCode == http.StatusTooManyRequests {
		return nil, &RateLimitError{Body: string(blob)}
	}
	if res.StatusCode >= 400 {
		return nil, &APIError{StatusCode: res.StatusCode, Body: string(blob)}
	}

	var parsed struct {
		Model   string `json:"model"`
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
		Citations []structuredSource `json:"citations"`
		Usage     struct {
			PromptTokens     int `json:"prompt_tokens"`
			CompletionTokens int `json:"completion_tokens"`
		} `json:"usage"`
	}
	if err := json.Unmarshal(blob, &parsed); err != nil {
		return nil, fmt.Errorf("decode generation response: %w", err)
	}

	content := ""
	if len(parsed.Choices) > 0 {
		content = parsed.Choices[0].Message.Content
	}
	out := &Response{
		Content:   content,
		Citations: c.parseCitations(content, parsed.Citations),
		Model:     parsed.Model,
		Usage:     Usage{PromptTokens: parsed.Usage.PromptTokens, CompletionTokens: parsed.Usage.CompletionTokens},
	}
	if out.Model == "" {
		out.Model = opts.Model
	}
	return out, nil
}

type structuredSource struct {
	URL   string `json:"url"`
	Title string `json:"title"`
}

// parseCitations builds citations from the structured source list, then adds
// placeholder citations for inline bracketed references not already covered.
func (c *Client) parseCitations(content string, sources []structuredSource) []Citation {
	citations := []Citation{}
	now := c.now()

	for i, src := range sources {
		title := src.Title
		if title == "" {
			title = src.URL
		}
		citations = append(citations, Citation{
			ID:          fmt.Sprintf("citation-%d", i+1),
			Source:      hostnameOf(src.URL),
			URL:         src.URL,
			Title:       title,
			RetrievedAt: now,
		})
	}

	for _, m := range inlineCitationRe.FindAllStringSubmatch(content, -1) {
		id := "citation-" + m[1]
		if hasCitation(citations, id) {
			continue
		}
		citations = append(citations, Citation{
			ID:          id,
			Source:      "inline",
			Title:       "Reference " + m[1],
			RetrievedAt: now,
		})
	}
	return citations
}

func hasCitation(citations []Citation, id string) bool {
	for _, c := range citations {
		if c.ID == id {
			return true
		}
	}
	return false
}

func hostnameOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Hostname() == "" {
		return raw
	}
	return strings.TrimPrefix(u.Hostname(), "www.")
}

func cacheKey(model, prompt string) string {
	if len(prompt) > cacheKeyPrefix {
		prompt = prompt[:cacheKeyPrefix]
	}
	return model + ":" + prompt
}

func (c *Client) cacheGet(key string) (Response, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.cache[key]
	if !ok || c.now().Sub(entry.storedAt) >= cacheTTL {
		return Response{}, false
	}
	return entry.response, true
}

func (c *Client) cachePut(key string, resp Response) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache[key] = cacheEntry{response: resp, storedAt: c.now()}
}

// CacheStats exposes cache size and keys for operational introspection.
func (c *Client) CacheStats() (int, []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	keys := make([]string, 0, len(c.cache))
	for k := range c.cache {
		keys = append(keys, k)
	}
	return len(c.cache), keys
}

func (c *Client) ClearCache() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache = map[string]cacheEntry{}
}
