// Package vision adapts a remote vision-model endpoint that transcribes
// images into text. It has no teacher equivalent (the teacher repo has no
// vision adapter); it is grounded on the EmbeddingClient's HTTP-call
// shape and timeout conventions, with an LRU-cached capability probe in
// the style of the teacher's CachedEmbedder. Vision calls are not retried.
package vision

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/andkenn/notevault/internal/errs"
	"github.com/andkenn/notevault/internal/logging"
)

// Capability describes whether the configured endpoint/model supports
// image input at all.
type Capability int

const (
	// Unknown means probe has not run since the last configuration
	// change.
	Unknown Capability = iota
	Supported
	Unsupported
)

var noSupportSentinels = []string{
	"cannot see",
	"does not support vision",
	"no image",
	"no picture",
	"i am unable to view images",
	"i cannot view images",
}

var nothingFoundSentinels = []string{
	"nothing found",
	"no text found",
	"no text detected",
	"unable to read any text",
	"i don't see any text",
}

// one fixed tiny opaque PNG (1x1 transparent pixel) used for the
// capability probe so no real image needs to ship with the binary.
const probeImageBase64 = "iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAQAAAC1HAwCAAAAC0lEQVR42mNk+A8AAQUBAScY42YAAAAASUVORK5CYII="

const probePrompt = "Describe this image in one short sentence."
const extractPrompt = "Transcribe all readable text from this image, verbatim. If there is no text, say so."

// Extractor is the VisionExtractor.
type Extractor struct {
	mu       sync.RWMutex
	endpoint string
	model    string
	apiKey   string
	http     *http.Client
	log      *logging.Sink

	probeCache *lru.Cache[string, Capability]
}

// New builds an Extractor targeting endpoint/model.
func New(endpoint, model, apiKey string, log *logging.Sink) *Extractor {
	if log == nil {
		log = logging.Noop()
	}
	cache, _ := lru.New[string, Capability](1)
	return &Extractor{
		endpoint:   endpoint,
		model:      model,
		apiKey:     apiKey,
		http:       &http.Client{Timeout: 30 * time.Second},
		log:        log,
		probeCache: cache,
	}
}

// UpdateConfig hot-swaps the endpoint/model and invalidates the cached
// capability probe, since a different endpoint may have different
// support.
func (e *Extractor) UpdateConfig(endpoint, model string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.endpoint = endpoint
	e.model = model
	e.probeCache.Purge()
}

func (e *Extractor) probeKey() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.endpoint + "\x00" + e.model
}

// Probe sends one fixed tiny prompt and image, caching the result until
// configuration changes.
func (e *Extractor) Probe(ctx context.Context) (Capability, error) {
	key := e.probeKey()
	if cap, ok := e.probeCache.Get(key); ok {
		return cap, nil
	}

	reply, err := e.call(ctx, probePrompt, mustDecode(probeImageBase64), "png")
	if err != nil {
		return Unknown, err
	}

	cap := Supported
	lower := strings.ToLower(reply)
	for _, sentinel := range noSupportSentinels {
		if strings.Contains(lower, sentinel) {
			cap = Unsupported
			break
		}
	}
	e.probeCache.Add(key, cap)
	return cap, nil
}

// Extract sends imageBytes plus a fixed extraction prompt. A "nothing
// found" sentinel in the reply yields ok=false with empty text and a nil
// error; no reason is returned. Otherwise the trimmed text is returned.
func (e *Extractor) Extract(ctx context.Context, imageBytes []byte, extension string) (ok bool, text string, err error) {
	reply, callErr := e.call(ctx, extractPrompt, imageBytes, extension)
	if callErr != nil {
		return false, "", callErr
	}

	lower := strings.ToLower(reply)
	for _, sentinel := range nothingFoundSentinels {
		if strings.Contains(lower, sentinel) {
			return false, "", nil
		}
	}
	return true, strings.TrimSpace(reply), nil
}

func mustDecode(b64 string) []byte {
	b, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		panic(err)
	}
	return b
}

// mimeType infers a MIME type from a file extension over the fixed set
// §4.4 names, defaulting to image/png.
func mimeType(extension string) string {
	switch strings.ToLower(strings.TrimPrefix(extension, ".")) {
	case "png":
		return "image/png"
	case "jpg", "jpeg":
		return "image/jpeg"
	case "gif":
		return "image/gif"
	case "webp":
		return "image/webp"
	case "svg":
		return "image/svg+xml"
	case "bmp":
		return "image/bmp"
	case "tif", "tiff":
		return "image/tiff"
	default:
		return "image/png"
	}
}

type chatMessageContent struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type chatMessage struct {
	Role    string                `json:"role"`
	Content []chatMessageContent  `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatChoice struct {
	Message struct {
		Content string `json:"content"`
	} `json:"message"`
}

type chatResponse struct {
	Choices []chatChoice `json:"choices"`
}

func (e *Extractor) call(ctx context.Context, prompt string, imageBytes []byte, extension string) (string, error) {
	e.mu.RLock()
	endpoint, model, apiKey := e.endpoint, e.model, e.apiKey
	e.mu.RUnlock()

	dataURL := fmt.Sprintf("data:%s;base64,%s", mimeType(extension), base64.StdEncoding.EncodeToString(imageBytes))

	reqBody, err := json.Marshal(chatRequest{
		Model: model,
		Messages: []chatMessage{{
			Role: "user",
			Content: []chatMessageContent{
				{Type: "text", Text: prompt},
				{Type: "image_url", ImageURL: &imageURL{URL: dataURL}},
			},
		}},
	})
	if err != nil {
		return "", errs.New(errs.EmbeddingProtocol, "marshal vision request", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, endpoint, bytes.NewReader(reqBody))
	if err != nil {
		return "", errs.New(errs.EmbeddingProtocol, "build vision request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}

	resp, err := e.http.Do(req)
	if err != nil {
		if callCtx.Err() != nil {
			return "", errs.New(errs.Cancelled, "vision request cancelled", callCtx.Err())
		}
		return "", errs.New(errs.EmbeddingTransient, "vision request failed", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", errs.New(errs.EmbeddingTransient, "read vision response", err)
	}
	if resp.StatusCode >= 400 {
		return "", errs.New(errs.VisionUnsupported, "vision endpoint rejected request", nil).
			WithDetail("status", fmt.Sprintf("%d", resp.StatusCode))
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", errs.New(errs.EmbeddingProtocol, "malformed vision response", err)
	}
	if len(parsed.Choices) == 0 {
		return "", errs.New(errs.EmbeddingProtocol, "vision response had no choices", nil)
	}
	return parsed.Choices[0].Message.Content, nil
}
