// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


// Package config loads application settings. Values come from defaults,
// then an optional YAML file, then the environment (optionally seeded from
// a .env file). Command-line flags are applied last by the caller.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strings"

	"github.com/joho/godotenv"
	"github.com/poiesic/retailrag/ai"
	"github.com/poiesic/retailrag/blob"
	"github.com/poiesic/retailrag/core"
	"github.com/poiesic/retailrag/storage"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for retailrag.
type Config struct {
	Database  DatabaseConfig  `yaml:"database"`
	Catalog   CatalogConfig   `yaml:"catalog"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	LLM       LLMConfig       `yaml:"llm"`
	Index     IndexConfig     `yaml:"index"`
	Ingest    IngestConfig    `yaml:"ingest"`
	Server    ServerConfig    `yaml:"server"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// DatabaseConfig locates the catalog database.
type DatabaseConfig struct {
	// InstanceURI is a postgres:// URI without a password. Its user is the
	// IAM principal unless Password is set.
	InstanceURI string   `yaml:"instance_uri"`
	Name        string   `yaml:"name"`
	Password    string   `yaml:"password"`
	ReadUsers   []string `yaml:"read_users"`
	WriteUsers  []string `yaml:"write_users"`
}

// CatalogConfig locates the raw catalog and the ingested table.
type CatalogConfig struct {
	Table       string `yaml:"table"`
	DataBucket  string `yaml:"data_bucket"`
	FileName    string `yaml:"file_name"`
	ImageFolder string `yaml:"image_folder"`
}

// EmbeddingConfig holds the three embedding endpoints.
type EmbeddingConfig struct {
	TextEndpoint       string `yaml:"text_endpoint"`
	ImageEndpoint      string `yaml:"image_endpoint"`
	MultimodalEndpoint string `yaml:"multimodal_endpoint"`
	Dimension          int    `yaml:"dimension"`
	ProbeImageURI      string `yaml:"probe_image_uri"`
	// CachePath is a badger directory reused across ingestion runs.
	// Empty disables the cache.
	CachePath string `yaml:"cache_path"`
}

// LLMConfig holds the re-ranking model endpoint.
type LLMConfig struct {
	Endpoint string `yaml:"endpoint"`
	Model    string `yaml:"model"`
	APIKey   string `yaml:"api_key"`
}

// IndexConfig selects the ANN index.
type IndexConfig struct {
	Method    string `yaml:"method"` // "scann" or "ivfflat"
	NumLeaves int    `yaml:"num_leaves"`
}

// IngestConfig tunes the ingestion pipeline.
type IngestConfig struct {
	Workers             int `yaml:"workers"`
	ImageWorkers        int `yaml:"image_workers"`
	ChunkSize           int `yaml:"chunk_size"`
	MaxImagesPerProduct int `yaml:"max_images_per_product"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	ListenAddr string `yaml:"listen_addr"`
	TopK       int    `yaml:"top_k"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Name: "catalog",
		},
		Catalog: CatalogConfig{
			Table:       "catalog",
			ImageFolder: "images",
		},
		Embedding: EmbeddingConfig{
			Dimension: core.DefaultEmbeddingDimension,
		},
		LLM: LLMConfig{
			Model: "default",
		},
		Index: IndexConfig{
			Method:    string(storage.IndexScaNN),
			NumLeaves: 100,
		},
		Ingest: IngestConfig{
			Workers:             32,
			ImageWorkers:        16,
			ChunkSize:           200,
			MaxImagesPerProduct: 1,
		},
		Server: ServerConfig{
			ListenAddr: ":8080",
			TopK:       5,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load builds the configuration from defaults, the YAML file at path (if
// path is not empty) and the process environment.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidConfig, path, err)
		}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDotEnv loads variables from the given .env files into the process
// environment without overriding variables that are already set. Missing
// files are ignored.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("loading %s: %w", p, err)
		}
	}
	return nil
}

// Save writes the configuration as YAML.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// Validate checks values that every command relies on.
func (c *Config) Validate() error {
	if _, err := c.LogLevel(); err != nil {
		return err
	}
	if c.Embedding.Dimension <= 0 {
		return fmt.Errorf("%w: %s must be positive", ErrInvalidConfig, EnvEmbeddingDimension)
	}
	if _, err := c.IndexMethod(); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidConfig, EnvIndexMethod, err)
	}
	if c.Index.NumLeaves < 1 {
		return fmt.Errorf("%w: %s must be at least 1", ErrInvalidConfig, EnvNumLeaves)
	}
	if c.Ingest.Workers < 1 || c.Ingest.ImageWorkers < 1 || c.Ingest.ChunkSize < 1 || c.Ingest.MaxImagesPerProduct < 1 {
		return fmt.Errorf("%w: ingest workers, chunk size and images per product must be positive", ErrInvalidConfig)
	}
	if c.Server.TopK < 1 {
		return fmt.Errorf("%w: %s must be at least 1", ErrInvalidConfig, EnvTopK)
	}
	for _, id := range []struct{ env, value string }{
		{EnvCatalogDB, c.Database.Name},
		{EnvCatalogTable, c.Catalog.Table},
	} {
		if err := storage.ValidateIdentifier(id.value); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalidConfig, id.env, err)
		}
	}
	if c.Embedding.ProbeImageURI != "" && !core.IsGSURI(c.Embedding.ProbeImageURI) {
		return fmt.Errorf("%w: %s must be a gs:// URI", ErrInvalidConfig, EnvProbeImageURI)
	}
	return nil
}

// RequireDatabase checks the settings needed to connect to the store.
func (c *Config) RequireDatabase() error {
	return require(map[string]string{EnvInstanceURI: c.Database.InstanceURI})
}

// RequireEmbedding checks the settings needed to embed.
func (c *Config) RequireEmbedding() error {
	return require(map[string]string{
		EnvEmbeddingText:       c.Embedding.TextEndpoint,
		EnvEmbeddingImage:      c.Embedding.ImageEndpoint,
		EnvEmbeddingMultimodal: c.Embedding.MultimodalEndpoint,
	})
}

// RequireLLM checks the settings needed to re-rank.
func (c *Config) RequireLLM() error {
	return require(map[string]string{EnvLLMEndpoint: c.LLM.Endpoint})
}

// RequireProbe checks the settings needed to verify embedding dimensions
// at startup.
func (c *Config) RequireProbe() error {
	return require(map[string]string{EnvProbeImageURI: c.Embedding.ProbeImageURI})
}

// RequireIngest checks the settings needed to ingest a catalog.
func (c *Config) RequireIngest() error {
	return require(map[string]string{
		EnvDataBucket:  c.Catalog.DataBucket,
		EnvCatalogFile: c.Catalog.FileName,
	})
}

func require(values map[string]string) error {
	var missing []string
	for env, v := range values {
		if strings.TrimSpace(v) == "" {
			missing = append(missing, env)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	slices.Sort(missing)
	return fmt.Errorf("%w: %s", ErrMissingConfig, strings.Join(missing, ", "))
}

// CatalogSource returns the raw catalog location: a gs:// URI in the data
// bucket, or the file name itself when no bucket is set.
func (c *Config) CatalogSource() string {
	if c.Catalog.DataBucket == "" {
		return c.Catalog.FileName
	}
	return blob.Join(c.Catalog.DataBucket, c.Catalog.FileName)
}

// IndexMethod returns the configured ANN method.
func (c *Config) IndexMethod() (storage.IndexMethod, error) {
	return storage.ParseIndexMethod(strings.ToLower(c.Index.Method))
}

// LogLevel parses the configured log level.
func (c *Config) LogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Logging.Level)); err != nil {
		return slog.LevelInfo, fmt.Errorf("%w: log level %q", ErrInvalidConfig, c.Logging.Level)
	}
	return level, nil
}

// AIConfig returns the provider configuration for the embedding and chat
// endpoints.
func (c *Config) AIConfig() *ai.Config {
	opts := []ai.ConfigOption{
		ai.WithEmbeddingEndpoints(c.Embedding.TextEndpoint, c.Embedding.ImageEndpoint, c.Embedding.MultimodalEndpoint),
		ai.WithDimension(c.Embedding.Dimension),
		ai.WithMaxConnsPerHost(max(64, c.Ingest.Workers)),
		ai.WithProbeImageURI(c.Embedding.ProbeImageURI),
	}
	if c.LLM.Endpoint != "" {
		opts = append(opts, ai.WithChat(c.LLM.Endpoint, c.LLM.Model))
	}
	if c.LLM.APIKey != "" {
		opts = append(opts, ai.WithChatAPIKey(c.LLM.APIKey))
	}
	return ai.NewConfig(opts...)
}
