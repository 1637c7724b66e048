package config

import (
	"fmt"
	"strconv"
	"strings"
)

// Environment variables read by ApplyEnv.
const (
	EnvInstanceURI         = "MLP_DB_INSTANCE_URI"
	EnvCatalogDB           = "CATALOG_DB"
	EnvDBPassword          = "DB_PASSWORD"
	EnvDBReadUsers         = "DB_READ_USERS"
	EnvDBWriteUsers        = "DB_WRITE_USERS"
	EnvCatalogTable        = "CATALOG_TABLE_NAME"
	EnvDataBucket          = "PROCESSED_DATA_BUCKET"
	EnvCatalogFile         = "MASTER_CATALOG_FILE_NAME"
	EnvImageFolder         = "IMAGE_FOLDER"
	EnvEmbeddingText       = "EMBEDDING_ENDPOINT_TEXT"
	EnvEmbeddingImage      = "EMBEDDING_ENDPOINT_IMAGE"
	EnvEmbeddingMultimodal = "EMBEDDING_ENDPOINT_MULTIMODAL"
	EnvEmbeddingDimension  = "EMBEDDING_DIMENSION"
	EnvProbeImageURI       = "EMBEDDING_PROBE_IMAGE_URI"
	EnvEmbeddingCache      = "EMBEDDING_CACHE_PATH"
	EnvLLMEndpoint         = "LLM_ENDPOINT"
	EnvLLMModel            = "LLM_MODEL"
	EnvLLMAPIKey           = "LLM_API_KEY"
	EnvIndexMethod         = "ANN_INDEX_METHOD"
	EnvNumLeaves           = "NUM_LEAVES_VALUE"
	EnvIngestWorkers       = "INGEST_WORKERS"
	EnvImageWorkers        = "INGEST_IMAGE_WORKERS"
	EnvChunkSize           = "INGEST_CHUNK_SIZE"
	EnvMaxImages           = "INGEST_MAX_IMAGES_PER_PRODUCT"
	EnvListenAddr          = "LISTEN_ADDR"
	EnvTopK                = "TOP_K"
	EnvLogLevel            = "LOG_LEVEL"
)

type binding struct {
	env   string
	apply func(c *Config, v string) error
}

func str(dst func(*Config) *string) func(*Config, string) error {
	return func(c *Config, v string) error {
		*dst(c) = v
		return nil
	}
}

func integer(dst func(*Config) *int) func(*Config, string) error {
	return func(c *Config, v string) error {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return err
		}
		*dst(c) = n
		return nil
	}
}

func list(dst func(*Config) *[]string) func(*Config, string) error {
	return func(c *Config, v string) error {
		*dst(c) = SplitList(v)
		return nil
	}
}

var bindings = []binding{
	{EnvInstanceURI, str(func(c *Config) *string { return &c.Database.InstanceURI })},
	{EnvCatalogDB, str(func(c *Config) *string { return &c.Database.Name })},
	{EnvDBPassword, str(func(c *Config) *string { return &c.Database.Password })},
	{EnvDBReadUsers, list(func(c *Config) *[]string { return &c.Database.ReadUsers })},
	{EnvDBWriteUsers, list(func(c *Config) *[]string { return &c.Database.WriteUsers })},
	{EnvCatalogTable, str(func(c *Config) *string { return &c.Catalog.Table })},
	{EnvDataBucket, str(func(c *Config) *string { return &c.Catalog.DataBucket })},
	{EnvCatalogFile, str(func(c *Config) *string { return &c.Catalog.FileName })},
	{EnvImageFolder, str(func(c *Config) *string { return &c.Catalog.ImageFolder })},
	{EnvEmbeddingText, str(func(c *Config) *string { return &c.Embedding.TextEndpoint })},
	{EnvEmbeddingImage, str(func(c *Config) *string { return &c.Embedding.ImageEndpoint })},
	{EnvEmbeddingMultimodal, str(func(c *Config) *string { return &c.Embedding.MultimodalEndpoint })},
	{EnvEmbeddingDimension, integer(func(c *Config) *int { return &c.Embedding.Dimension })},
	{EnvProbeImageURI, str(func(c *Config) *string { return &c.Embedding.ProbeImageURI })},
	{EnvEmbeddingCache, str(func(c *Config) *string { return &c.Embedding.CachePath })},
	{EnvLLMEndpoint, str(func(c *Config) *string { return &c.LLM.Endpoint })},
	{EnvLLMModel, str(func(c *Config) *string { return &c.LLM.Model })},
	{EnvLLMAPIKey, str(func(c *Config) *string { return &c.LLM.APIKey })},
	{EnvIndexMethod, str(func(c *Config) *string { return &c.Index.Method })},
	{EnvNumLeaves, integer(func(c *Config) *int { return &c.Index.NumLeaves })},
	{EnvIngestWorkers, integer(func(c *Config) *int { return &c.Ingest.Workers })},
	{EnvImageWorkers, integer(func(c *Config) *int { return &c.Ingest.ImageWorkers })},
	{EnvChunkSize, integer(func(c *Config) *int { return &c.Ingest.ChunkSize })},
	{EnvMaxImages, integer(func(c *Config) *int { return &c.Ingest.MaxImagesPerProduct })},
	{EnvListenAddr, str(func(c *Config) *string { return &c.Server.ListenAddr })},
	{EnvTopK, integer(func(c *Config) *int { return &c.Server.TopK })},
	{EnvLogLevel, str(func(c *Config) *string { return &c.Logging.Level })},
}

// ApplyEnv overlays every variable that lookup reports as set and
// non-empty.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	for _, b := range bindings {
		v, ok := lookup(b.env)
		if !ok || v == "" {
			continue
		}
		if err := b.apply(c, v); err != nil {
			return fmt.Errorf("%w: %s=%q: %v", ErrInvalidConfig, b.env, v, err)
		}
	}
	return nil
}

// SplitList splits a comma-separated list, dropping blanks.
func SplitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
