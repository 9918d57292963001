// manifold/config.go

package config

// EmbeddingConfig configures the HTTP embedding endpoint used by
// internal/embedding and the rag embedder client backend.
type EmbeddingConfig struct {
	BaseURL   string            `yaml:"baseURL"`
	Model     string            `yaml:"model"`
	APIKey    string            `yaml:"apiKey"`
	APIHeader string            `yaml:"apiHeader"`
	Path      string            `yaml:"path"`
	Headers   map[string]string `yaml:"headers,omitempty"`
	Timeout   int               `yaml:"timeoutSeconds"`
}
