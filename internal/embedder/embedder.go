// Package embedder turns query text into dense vectors for the vector retrieval source.
package embedder

import "context"

// Embedder defines the interface for text embedding services.
type Embedder interface {
	// Embed generates an embedding vector for a single text input.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dimension returns the dimensionality of the embedding vectors.
	Dimension() int

	// ModelName returns the name of the embedding model being used.
	ModelName() string
}

// knownDimensions maps embedding model names to their vector sizes.
var knownDimensions = map[string]int{
	"nomic-embed-text":       768,
	"mxbai-embed-large":      1024,
	"all-minilm":             384,
	"snowflake-arctic-embed": 1024,
	"bge-m3":                 1024,
}

// DimensionFor returns the vector size of a known model, or 768 for unknown ones.
func DimensionFor(modelName string) int {
	if d, ok := knownDimensions[modelName]; ok {
		return d
	}
	return 768
}
