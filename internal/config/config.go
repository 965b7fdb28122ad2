// Package config loads storytrace settings from defaults, an optional YAML
// file and the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the complete storytrace configuration.
type Config struct {
	Model      ModelConfig      `yaml:"model"`
	Pipeline   PipelineConfig   `yaml:"pipeline"`
	Retrieval  RetrievalConfig  `yaml:"retrieval"`
	Compliance ComplianceConfig `yaml:"compliance"`
	Profile    ProfileConfig    `yaml:"profile"`
	Output     OutputConfig     `yaml:"output"`
}

// ModelConfig selects the language model and embedder.
type ModelConfig struct {
	// Name is "provider:model", e.g. "openai:gpt-4o-mini".
	Name string `yaml:"name"`
	// Embed names the embedder, e.g. "openai:text-embedding-3-small" or "lexical".
	Embed       string        `yaml:"embed"`
	Temperature float64       `yaml:"temperature"`
	MaxTokens   int           `yaml:"max_tokens"`
	Timeout     time.Duration `yaml:"timeout"`
}

// PipelineConfig controls story generation and post-processing.
type PipelineConfig struct {
	Dedupe        bool    `yaml:"dedupe"`
	DupThreshold  float64 `yaml:"dup_threshold"`
	BatchLLMSize  int     `yaml:"batch_llm_size"`
	LLMInnerBatch int     `yaml:"llm_inner_batch"`
	MinAlignment  float64 `yaml:"min_alignment"`
	TestMode      bool    `yaml:"test_mode"`
	TestModeLimit int     `yaml:"test_mode_limit"`
}

// RetrievalConfig controls the page chunk index.
type RetrievalConfig struct {
	ChunkSize    int `yaml:"chunk_size"`
	ChunkOverlap int `yaml:"chunk_overlap"`
	TopK         int `yaml:"top_k"`
	SnippetChars int `yaml:"snippet_chars"`
}

// ComplianceConfig controls the gap analysis.
type ComplianceConfig struct {
	TopK          int  `yaml:"top_k"`
	EvidenceChars int  `yaml:"evidence_chars"`
	UseEmbeddings bool `yaml:"use_embeddings"`
}

// ProfileConfig selects the constraint profile and optional overrides.
type ProfileConfig struct {
	Name        string            `yaml:"name"`
	Constraints string            `yaml:"constraints"`
	Glossary    map[string]string `yaml:"glossary"`
	Actors      map[string]string `yaml:"actors"`
}

// OutputConfig controls where and how artifacts are written.
type OutputConfig struct {
	Dir            string `yaml:"dir"`
	Format         string `yaml:"format"`
	FeaturePerEpic bool   `yaml:"feature_per_epic"`
	MetricsPath    string `yaml:"metrics_path"`
}

// DefaultConfig returns a Config with every default filled in.
func DefaultConfig() *Config {
	return &Config{
		Model: ModelConfig{
			Name:        "openai:gpt-4o-mini",
			Embed:       "openai:text-embedding-3-small",
			Temperature: 0.2,
			Timeout:     60 * time.Second,
		},
		Pipeline: PipelineConfig{
			Dedupe:        true,
			DupThreshold:  0.99,
			BatchLLMSize:  20,
			LLMInnerBatch: 5,
			MinAlignment:  0.15,
			TestModeLimit: 10,
		},
		Retrieval: RetrievalConfig{
			ChunkSize:    1500,
			ChunkOverlap: 200,
			TopK:         3,
			SnippetChars: 500,
		},
		Compliance: ComplianceConfig{
			TopK:          4,
			EvidenceChars: 2000,
			UseEmbeddings: true,
		},
		Profile: ProfileConfig{Name: "general"},
		Output: OutputConfig{
			Dir:            "out",
			Format:         "json",
			FeaturePerEpic: true,
		},
	}
}

// LoadFromFile layers the YAML file at path over the defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return cfg, nil
}

// Load returns the defaults, overlaid by the YAML file at path when path is
// non-empty, then by the environment.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		var err error
		if cfg, err = LoadFromFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDotEnv loads KEY=VALUE pairs from the named files (".env" when none is
// given) into the process environment without overriding variables that are
// already set. Missing files are ignored.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("loading %s: %w", f, err)
		}
	}
	return nil
}

// ApplyEnv overrides settings from environment variables.
func (c *Config) ApplyEnv() error {
	if v := os.Getenv("STORYTRACE_MODEL"); v != "" {
		c.Model.Name = v
	}
	if v := os.Getenv("STORYTRACE_EMBED_MODEL"); v != "" {
		c.Model.Embed = v
	}
	if v := os.Getenv("STORYTRACE_PROFILE"); v != "" {
		c.Profile.Name = v
	}
	if err := envBool("DEDUPE", &c.Pipeline.Dedupe); err != nil {
		return err
	}
	if err := envFloat("DUP_THRESHOLD", &c.Pipeline.DupThreshold); err != nil {
		return err
	}
	if err := envInt("BATCH_LLM_SIZE", &c.Pipeline.BatchLLMSize); err != nil {
		return err
	}
	if err := envInt("LLM_INNER_BATCH", &c.Pipeline.LLMInnerBatch); err != nil {
		return err
	}
	if err := envFloat("MIN_ALIGNMENT", &c.Pipeline.MinAlignment); err != nil {
		return err
	}
	return envBool("TEST_MODE", &c.Pipeline.TestMode)
}

// Validate rejects out-of-range settings.
func (c *Config) Validate() error {
	switch {
	case c.Model.Name == "":
		return fmt.Errorf("model.name is required")
	case c.Model.Temperature < 0 || c.Model.Temperature > 2:
		return fmt.Errorf("model.temperature must be between 0 and 2")
	case c.Model.Timeout <= 0:
		return fmt.Errorf("model.timeout must be positive")
	case c.Pipeline.DupThreshold < 0 || c.Pipeline.DupThreshold > 1:
		return fmt.Errorf("pipeline.dup_threshold must be between 0 and 1")
	case c.Pipeline.MinAlignment < 0 || c.Pipeline.MinAlignment > 1:
		return fmt.Errorf("pipeline.min_alignment must be between 0 and 1")
	case c.Pipeline.BatchLLMSize <= 0:
		return fmt.Errorf("pipeline.batch_llm_size must be positive")
	case c.Pipeline.LLMInnerBatch <= 0:
		return fmt.Errorf("pipeline.llm_inner_batch must be positive")
	case c.Pipeline.TestModeLimit <= 0:
		return fmt.Errorf("pipeline.test_mode_limit must be positive")
	case c.Retrieval.ChunkSize <= 0:
		return fmt.Errorf("retrieval.chunk_size must be positive")
	case c.Retrieval.ChunkOverlap < 0 || c.Retrieval.ChunkOverlap >= c.Retrieval.ChunkSize:
		return fmt.Errorf("retrieval.chunk_overlap must be at least 0 and below chunk_size")
	case c.Retrieval.TopK <= 0:
		return fmt.Errorf("retrieval.top_k must be positive")
	case c.Retrieval.SnippetChars <= 0:
		return fmt.Errorf("retrieval.snippet_chars must be positive")
	case c.Compliance.TopK <= 0:
		return fmt.Errorf("compliance.top_k must be positive")
	case c.Compliance.EvidenceChars <= 0:
		return fmt.Errorf("compliance.evidence_chars must be positive")
	case c.Output.Format != "json" && c.Output.Format != "md":
		return fmt.Errorf("output.format %q: supported formats are json, md", c.Output.Format)
	}
	return nil
}

func envBool(key string, dst *bool) error {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return nil
	}
	switch strings.ToLower(v) {
	case "1", "true", "yes", "on":
		*dst = true
	case "0", "false", "no", "off":
		*dst = false
	default:
		return fmt.Errorf("%s=%q: expected a boolean", key, v)
	}
	return nil
}

func envInt(key string, dst *int) error {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s=%q: expected an integer", key, v)
	}
	*dst = n
	return nil
}

func envFloat(key string, dst *float64) error {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fmt.Errorf("%s=%q: expected a number", key, v)
	}
	*dst = f
	return nil
}
