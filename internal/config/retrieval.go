package config

// RetrievalConfig configures the retrieval index and embedding engine.
type RetrievalConfig struct {
	// Capacity bounds the number of stored documents; the oldest are
	// evicted past it.
	Capacity int `json:"capacity" yaml:"capacity"`

	// MinScore filters query results below this cosine similarity.
	MinScore float64 `json:"min_score" yaml:"min_score"`

	// CacheSize bounds the embedding cache (entries).
	CacheSize int `json:"cache_size" yaml:"cache_size"`

	// CacheKeyPrefixLen is how many leading characters of the text form
	// the cache key.
	CacheKeyPrefixLen int `json:"cache_key_prefix_len" yaml:"cache_key_prefix_len"`

	// Embedding selects the embedding backend: "ollama", "genai" or
	// "hash" (deterministic, offline).
	Embedding EmbeddingConfig `json:"embedding" yaml:"embedding"`
}

// EmbeddingConfig selects and configures the embedding backend.
type EmbeddingConfig struct {
	Provider string `json:"provider" yaml:"provider"` // ollama, genai, hash

	// Ollama configuration
	OllamaEndpoint string `json:"ollama_endpoint" yaml:"ollama_endpoint"`
	OllamaModel    string `json:"ollama_model" yaml:"ollama_model"`

	// GenAI configuration
	GenAIAPIKey string `json:"genai_api_key" yaml:"genai_api_key"`
	GenAIModel  string `json:"genai_model" yaml:"genai_model"`

	// Dimensions used by the deterministic hash engine.
	HashDimensions int `json:"hash_dimensions" yaml:"hash_dimensions"`
}

// DefaultRetrievalConfig returns sensible defaults.
func DefaultRetrievalConfig() RetrievalConfig {
	return RetrievalConfig{
		Capacity:          512,
		MinScore:          0.15,
		CacheSize:         256,
		CacheKeyPrefixLen: 128,
		Embedding: EmbeddingConfig{
			Provider:       "hash", // offline-safe default; real engines opt-in
			OllamaEndpoint: "http://localhost:11434",
			OllamaModel:    "embeddinggemma",
			GenAIModel:     "gemini-embedding-001",
			HashDimensions: 256,
		},
	}
}
