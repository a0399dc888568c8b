package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"complaintrag/internal/domain"
)

// LogConfig selects the zap preset and level.
type LogConfig struct {
	Mode  string `yaml:"mode" validate:"omitempty,oneof=development production dev prod"`
	Level string `yaml:"level"`
}

// DataConfig points at the complaints CSV and names its columns.
type DataConfig struct {
	ComplaintsCSV string `yaml:"complaints_csv"`
	IDColumn      string `yaml:"id_column" validate:"required"`
	ProductColumn string `yaml:"product_column" validate:"required"`
	TextColumn    string `yaml:"text_column" validate:"required"`
}

// ChunkerConfig configures how narratives are split into excerpts.
type ChunkerConfig struct {
	ChunkSize    int `yaml:"chunk_size" validate:"gt=0"`
	ChunkOverlap int `yaml:"chunk_overlap" validate:"gte=0,ltfield=ChunkSize"`
}

// OpenAIEmbedderConfig holds configuration for an OpenAI-compatible embeddings endpoint.
type OpenAIEmbedderConfig struct {
	BaseURL     string `yaml:"base_url" validate:"omitempty,url"`
	APIKeyEnv   string `yaml:"api_key_env"`
	TimeoutSecs int    `yaml:"timeout_secs" validate:"gte=0"`
	BatchSize   int    `yaml:"batch_size" validate:"gte=0"`
	Concurrency int    `yaml:"concurrency" validate:"gte=0"`
	MaxRetries  int    `yaml:"max_retries" validate:"gte=0"`
}

// EmbedderConfig selects the embedder. Model has no default: the same value
// must be used to build and to query an index.
type EmbedderConfig struct {
	Type      string                `yaml:"type" validate:"oneof=hashing openai"`
	Model     string                `yaml:"model" validate:"required"`
	Dimension int                   `yaml:"dimension" validate:"gte=0"`
	OpenAI    *OpenAIEmbedderConfig `yaml:"openai,omitempty"`
}

// IndexConfig holds the two files that form one index unit.
type IndexConfig struct {
	IndexPath    string `yaml:"index_path" validate:"required"`
	MetadataPath string `yaml:"metadata_path" validate:"required,nefield=IndexPath"`
}

// QdrantConfig contains connection details for a Qdrant mirror of the index.
type QdrantConfig struct {
	Host        string `yaml:"host" validate:"required"`
	Port        int    `yaml:"port" validate:"gt=0"`
	APIKeyEnv   string `yaml:"api_key_env"`
	UseTLS      bool   `yaml:"use_tls"`
	Collection  string `yaml:"collection" validate:"required"`
	TimeoutSecs int    `yaml:"timeout_secs" validate:"gte=0"`
}

// VectorStoreConfig selects where nearest-neighbour search runs at query time.
type VectorStoreConfig struct {
	Type   string        `yaml:"type" validate:"oneof=flat qdrant"`
	Qdrant *QdrantConfig `yaml:"qdrant,omitempty"`
}

type RetrieverConfig struct {
	TopK int `yaml:"top_k" validate:"gt=0"`
}

// PipelineConfig controls how much retrieved text reaches the generator.
// PromptExcerpts == 0 means every retrieved excerpt.
type PipelineConfig struct {
	PromptExcerpts int `yaml:"prompt_excerpts" validate:"gte=0"`
}

// GeneratorConfig configures the OpenAI-compatible chat completion backend.
type GeneratorConfig struct {
	Type        string  `yaml:"type" validate:"oneof=openai"`
	Model       string  `yaml:"model" validate:"required"`
	BaseURL     string  `yaml:"base_url" validate:"omitempty,url"`
	APIKeyEnv   string  `yaml:"api_key_env" validate:"required"`
	TimeoutSecs int     `yaml:"timeout_secs" validate:"gt=0"`
	Temperature float32 `yaml:"temperature" validate:"gte=0,lte=2"`
	MaxTokens   int     `yaml:"max_tokens" validate:"gte=0"`
}

// EvaluationConfig configures the question-set evaluation run.
type EvaluationConfig struct {
	HistoryDB    string `yaml:"history_db"`
	ReportPath   string `yaml:"report_path"`
	SourcesShown int    `yaml:"sources_shown" validate:"gte=0"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	Log         LogConfig         `yaml:"log"`
	Data        DataConfig        `yaml:"data"`
	Chunker     ChunkerConfig     `yaml:"chunker"`
	Embedder    EmbedderConfig    `yaml:"embedder"`
	Index       IndexConfig       `yaml:"index"`
	VectorStore VectorStoreConfig `yaml:"vector_store"`
	Retriever   RetrieverConfig   `yaml:"retriever"`
	Pipeline    PipelineConfig    `yaml:"pipeline"`
	Generator   GeneratorConfig   `yaml:"generator"`
	Evaluation  EvaluationConfig  `yaml:"evaluation"`
}

// Load reads a config from a specified path, expanding ${ENV} references.
// If the file does not exist, defaults are returned; note that defaults carry
// no embedder model, so validation still fails until one is configured.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			cfg := defaultConfig()
			if err := cfg.Validate(); err != nil {
				return nil, err
			}
			return cfg, nil
		}
		return nil, domain.ConfigurationErrorf("read config %s: %v", path, err)
	}
	return Parse(data)
}

// Parse decodes YAML config bytes, applies defaults and validates the result.
func Parse(data []byte) (*AppConfig, error) {
	expanded := os.ExpandEnv(string(data))
	cfg := defaultConfig()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, domain.ConfigurationErrorf("parse YAML: %v", err)
	}
	applyConfigDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDefault tries ./config.yaml first, then ~/.config/complaintrag/config.yaml.
func LoadDefault() (*AppConfig, string, error) {
	cwdPath := "config.yaml"
	if _, err := os.Stat(cwdPath); err == nil {
		cfg, err := Load(cwdPath)
		return cfg, cwdPath, err
	}
	userPath, err := defaultUserConfigPath()
	if err != nil {
		return nil, "", domain.ConfigurationErrorf("resolve home dir: %v", err)
	}
	cfg, err := Load(userPath)
	return cfg, userPath, err
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks struct tags plus the cross-section rules.
func (c *AppConfig) Validate() error {
	if err := validate.Struct(c); err != nil {
		return domain.ConfigurationErrorf("invalid config: %v", err)
	}
	if c.Embedder.Type == "openai" && c.Embedder.OpenAI == nil {
		return domain.ConfigurationErrorf("embedder.openai section missing")
	}
	if c.VectorStore.Type == "qdrant" && c.VectorStore.Qdrant == nil {
		return domain.ConfigurationErrorf("vector_store.qdrant section missing")
	}
	return nil
}

// GeneratorTimeout bounds a single generation call.
func (c *AppConfig) GeneratorTimeout() time.Duration {
	return time.Duration(c.Generator.TimeoutSecs) * time.Second
}

func defaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "complaintrag", "config.yaml"), nil
}

func defaultConfig() *AppConfig {
	return &AppConfig{
		Log: LogConfig{Mode: "development", Level: "info"},
		Data: DataConfig{
			ComplaintsCSV: "data/filtered_complaints.csv",
			IDColumn:      "Complaint ID",
			ProductColumn: "Product",
			TextColumn:    "Cleaned_Narrative",
		},
		Chunker:     ChunkerConfig{ChunkSize: 500, ChunkOverlap: 50},
		Embedder:    EmbedderConfig{Type: "hashing", Dimension: 384},
		Index:       IndexConfig{IndexPath: "vector_store/index.bin", MetadataPath: "vector_store/metadata.gob"},
		VectorStore: VectorStoreConfig{Type: "flat"},
		Retriever:   RetrieverConfig{TopK: 5},
		Pipeline:    PipelineConfig{PromptExcerpts: 2},
		Generator: GeneratorConfig{
			Type:        "openai",
			Model:       "gemini-2.5-pro",
			BaseURL:     "https://generativelanguage.googleapis.com/v1beta/openai",
			APIKeyEnv:   "GEMINI_API_KEY",
			TimeoutSecs: 60,
			Temperature: 0.2,
		},
		Evaluation: EvaluationConfig{
			HistoryDB:    "data/evaluation.db",
			ReportPath:   "report/rag_eval_report.md",
			SourcesShown: 2,
		},
	}
}

func applyConfigDefaults(cfg *AppConfig) {
	if cfg.Embedder.Type == "" {
		cfg.Embedder.Type = "hashing"
	}
	if cfg.Embedder.Type == "openai" && cfg.Embedder.OpenAI != nil {
		o := cfg.Embedder.OpenAI
		if o.BaseURL == "" {
			o.BaseURL = "https://api.openai.com/v1"
		}
		if o.APIKeyEnv == "" {
			o.APIKeyEnv = "OPENAI_API_KEY"
		}
		if o.TimeoutSecs == 0 {
			o.TimeoutSecs = 30
		}
		if o.BatchSize == 0 {
			o.BatchSize = 64
		}
		if o.Concurrency == 0 {
			o.Concurrency = 4
		}
		if o.MaxRetries == 0 {
			o.MaxRetries = 3
		}
	}
	if cfg.VectorStore.Type == "" {
		cfg.VectorStore.Type = "flat"
	}
	if q := cfg.VectorStore.Qdrant; q != nil {
		if q.Host == "" {
			q.Host = "localhost"
		}
		if q.Port == 0 {
			q.Port = 6334
		}
		if q.Collection == "" {
			q.Collection = "complaints"
		}
		if q.TimeoutSecs == 0 {
			q.TimeoutSecs = 15
		}
	}
	if cfg.Generator.Type == "" {
		cfg.Generator.Type = "openai"
	}
}

// String renders a short one-line description for startup logs.
func (c *AppConfig) String() string {
	return fmt.Sprintf("embedder=%s/%s dim=%d store=%s top_k=%d prompt_excerpts=%d generator=%s",
		c.Embedder.Type, c.Embedder.Model, c.Embedder.Dimension, c.VectorStore.Type,
		c.Retriever.TopK, c.Pipeline.PromptExcerpts, c.Generator.Model)
}
