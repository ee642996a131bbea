package embed

import "context"

// Embedder is the interface the Indexer and QueryEngine depend on, so
// either a bare Client or a Cached wrapper can be injected interchangeably.
type Embedder interface {
	EmbedOne(ctx context.Context, text string) ([]float32, error)
	EmbedMany(ctx context.Context, texts []string) ([][]float32, error)
	Test(ctx context.Context) (bool, int, error)
	UpdateConfig(endpoint, model string)
	Dimensions() int
	ModelName() string
}

var (
	_ Embedder = (*Client)(nil)
	_ Embedder = (*Cached)(nil)
)
