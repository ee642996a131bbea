// Package embed adapts a remote OpenAI-compatible embedding endpoint:
// batched single/multi requests, retry on transient failure, and a
// hot-swappable endpoint/model configuration. Grounded on the teacher's
// embedding adapter (HTTP POST, context-scoped timeout, retry-with-
// backoff, Dimensions()/ModelName() accessors), generalized from the
// teacher's Ollama-native wire shape to the OpenAI-compatible
// {input, model} / {data:[{embedding,index}]} shape this spec requires.
package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/andkenn/notevault/internal/errs"
	"github.com/andkenn/notevault/internal/logging"
)

const (
	maxInputChars  = 8000
	truncateMarker = "…"
	softTimeout    = 30 * time.Second
	longTimeout    = 60 * time.Second
)

// Client is the EmbeddingClient: an adapter to a remote embedding
// endpoint speaking the OpenAI-compatible wire shape.
type Client struct {
	mu       sync.RWMutex
	endpoint string
	model    string
	apiKey   string
	http     *http.Client

	dimMu     sync.RWMutex
	dimension int

	log *logging.Sink
}

// New builds a Client targeting endpoint/model.
func New(endpoint, model, apiKey string, log *logging.Sink) *Client {
	if log == nil {
		log = logging.Noop()
	}
	return &Client{
		endpoint: endpoint,
		model:    model,
		apiKey:   apiKey,
		http:     &http.Client{},
		log:      log,
	}
}

// UpdateConfig hot-swaps the endpoint and model without restarting the
// host.
func (c *Client) UpdateConfig(endpoint, model string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.endpoint = endpoint
	c.model = model
}

// ModelName returns the currently configured model.
func (c *Client) ModelName() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.model
}

// Dimensions returns the embedding length observed so far, or 0 if no
// successful embed call has completed yet.
func (c *Client) Dimensions() int {
	c.dimMu.RLock()
	defer c.dimMu.RUnlock()
	return c.dimension
}

func (c *Client) setDimension(n int) {
	c.dimMu.Lock()
	defer c.dimMu.Unlock()
	c.dimension = n
}

// cleanAndTruncate normalizes whitespace and caps text at maxInputChars,
// appending an ellipsis marker when truncation occurs.
func cleanAndTruncate(text string) string {
	cleaned := strings.Join(strings.Fields(text), " ")
	if len(cleaned) <= maxInputChars {
		return cleaned
	}
	return cleaned[:maxInputChars] + truncateMarker
}

type embedRequest struct {
	Input any    `json:"input"`
	Model string `json:"model"`
}

type embedDatum struct {
	Embedding []float32 `json:"embedding"`
	Index     int       `json:"index"`
}

type embedResponse struct {
	Data  []embedDatum `json:"data"`
	Model string       `json:"model"`
	Usage any          `json:"usage,omitempty"`
}

// EmbedOne embeds a single string.
func (c *Client) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	vecs, err := c.embed(ctx, []string{cleanAndTruncate(text)}, softTimeout)
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedMany embeds a batch of strings, re-ordering the server's response
// (tagged by input index) back into input order before returning.
func (c *Client) EmbedMany(ctx context.Context, texts []string) ([][]float32, error) {
	cleaned := make([]string, len(texts))
	for i, t := range texts {
		cleaned[i] = cleanAndTruncate(t)
	}
	timeout := softTimeout
	if len(cleaned) > 16 {
		timeout = longTimeout
	}
	return c.embed(ctx, cleaned, timeout)
}

// Test embeds the literal string "test" and reports the observed
// dimension.
func (c *Client) Test(ctx context.Context) (ok bool, dimension int, err error) {
	vec, err := c.EmbedOne(ctx, "test")
	if err != nil {
		return false, 0, err
	}
	return true, len(vec), nil
}

func (c *Client) embed(ctx context.Context, texts []string, timeout time.Duration) ([][]float32, error) {
	c.mu.RLock()
	endpoint, model, apiKey := c.endpoint, c.model, c.apiKey
	c.mu.RUnlock()

	var input any = texts
	if len(texts) == 1 {
		input = texts[0]
	}

	reqBody, err := json.Marshal(embedRequest{Input: input, Model: model})
	if err != nil {
		return nil, errs.New(errs.EmbeddingProtocol, "marshal embedding request", err)
	}

	var result *embedResponse
	var permanentErr error
	retryCfg := errs.DefaultRetryConfig()
	err = errs.Retry(ctx, retryCfg, func() error {
		callCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		resp, callErr := c.doRequest(callCtx, endpoint, apiKey, reqBody)
		if callErr != nil {
			if !errs.Retryable(callErr) {
				// Only transient failures are retried; anything else is
				// surfaced unchanged.
				permanentErr = callErr
				return nil
			}
			return callErr
		}
		result = resp
		return nil
	})
	if err == nil {
		err = permanentErr
	}
	if err != nil {
		return nil, err
	}

	out := make([][]float32, len(texts))
	for _, d := range result.Data {
		if d.Index < 0 || d.Index >= len(out) {
			return nil, errs.New(errs.EmbeddingProtocol, "embedding index out of range", nil).
				WithDetail("index", fmt.Sprintf("%d", d.Index))
		}
		out[d.Index] = d.Embedding
	}
	for i, v := range out {
		if v == nil {
			return nil, errs.New(errs.EmbeddingProtocol, "missing embedding for input", nil).
				WithDetail("index", fmt.Sprintf("%d", i))
		}
	}
	if len(out) > 0 {
		c.setDimension(len(out[0]))
	}
	return out, nil
}

func (c *Client) doRequest(ctx context.Context, endpoint, apiKey string, body []byte) (*embedResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, errs.New(errs.EmbeddingProtocol, "build embedding request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, errs.New(errs.Cancelled, "embedding request cancelled", ctx.Err())
		}
		return nil, errs.New(errs.EmbeddingTransient, "embedding request failed", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errs.New(errs.EmbeddingTransient, "read embedding response", err)
	}

	if resp.StatusCode >= 500 {
		return nil, errs.New(errs.EmbeddingTransient, "embedding endpoint returned server error", nil).
			WithDetail("status", fmt.Sprintf("%d", resp.StatusCode)).
			WithDetail("body", string(respBody))
	}
	if resp.StatusCode >= 400 {
		return nil, errs.New(errs.EmbeddingProtocol, "embedding endpoint rejected request", nil).
			WithDetail("status", fmt.Sprintf("%d", resp.StatusCode)).
			WithDetail("body", string(respBody))
	}

	var parsed embedResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, errs.New(errs.EmbeddingProtocol, "malformed embedding response", err)
	}
	return &parsed, nil
}
