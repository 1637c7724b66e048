package recommend

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/poiesic/retailrag/ai"
	"github.com/poiesic/retailrag/core"
	"github.com/poiesic/retailrag/prompt"
	"github.com/poiesic/retailrag/storage"
	"github.com/tmc/langchaingo/llms"
)

const (
	// DefaultTopK is how many products ground each prompt.
	DefaultTopK = 5
	// DefaultTable is the catalog table queried when none is configured.
	DefaultTable = "catalog"
)

// Service turns shopper queries into re-ranked product recommendations.
// It is stateless after construction and safe for concurrent use.
type Service struct {
	store    storage.CatalogStore
	embedder ai.Embedder
	chat     llms.Model
	builder  *prompt.Builder
	table    string
	topK     int
	callOpts []llms.CallOption
	logger   *slog.Logger
}

// Option configures a Service.
type Option func(*Service) error

// WithTable sets the catalog table to search.
func WithTable(name string) Option {
	return func(s *Service) error {
		if err := storage.ValidateIdentifier(name); err != nil {
			return err
		}
		s.table = name
		return nil
	}
}

// WithTopK sets how many products ground the prompt. Default is 5.
func WithTopK(k int) Option {
	return func(s *Service) error {
		if k < 1 {
			return fmt.Errorf("top k must be at least 1, got %d", k)
		}
		s.topK = k
		return nil
	}
}

// WithPromptBuilder replaces the default prompt builder.
func WithPromptBuilder(b *prompt.Builder) Option {
	return func(s *Service) error {
		if b != nil {
			s.builder = b
		}
		return nil
	}
}

// WithCallOptions adds options to every model call.
func WithCallOptions(opts ...llms.CallOption) Option {
	return func(s *Service) error {
		s.callOpts = append(s.callOpts, opts...)
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) error {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger
		return nil
	}
}

// NewService creates a recommendation service over store.
func NewService(store storage.CatalogStore, provider ai.AIProvider, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, ErrStoreRequired
	}
	if provider == nil {
		return nil, ErrAIProviderRequired
	}
	chat := provider.ChatModel()
	if chat == nil {
		return nil, ErrChatModelRequired
	}

	builder, err := prompt.NewBuilder()
	if err != nil {
		return nil, err
	}
	s := &Service{
		store:    store,
		embedder: provider.Embedder(),
		chat:     chat,
		builder:  builder,
		table:    DefaultTable,
		topK:     DefaultTopK,
		logger:   slog.Default(),
	}

	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	s.logger = s.logger.With("component", "recommend")
	return s, nil
}

// Recommend answers a shopper query with the model's re-ranked selection.
func (s *Service) Recommend(ctx context.Context, q core.Query) (string, error) {
	return s.RecommendWithMonitor(ctx, q, nil)
}

// RecommendWithMonitor answers a query and reports each step to monitor.
func (s *Service) RecommendWithMonitor(ctx context.Context, q core.Query, monitor Monitor) (string, error) {
	if monitor == nil {
		monitor = &noopMonitor{}
	}
	monitor.Start(q)

	modality, err := core.ValidateQuery(q)
	if err != nil {
		return "", err
	}

	vector, err := ai.Embed(ctx, s.embedder, modality, q.Text, q.ImageURI)
	if err != nil {
		s.logger.Error("error embedding query", "modality", modality, "err", err)
		return "", err
	}
	monitor.AfterEmbedding(modality, len(vector))

	column := modality.Column()
	hits, err := s.store.Search(ctx, s.table, column, s.topK, vector)
	if err != nil {
		s.logger.Error("error searching catalog", "table", s.table, "column", column, "err", err)
		return "", err
	}
	monitor.AfterSearch(column, hits)
	if len(hits) == 0 {
		s.logger.Info("no matching products", "table", s.table, "modality", modality)
		return "", core.ErrNoMatches
	}

	p, err := s.builder.Build(q, hits)
	if err != nil {
		return "", fmt.Errorf("building prompt: %w", err)
	}
	monitor.AfterPrompt(p)

	answer, err := llms.GenerateFromSinglePrompt(ctx, s.chat, p, s.callOpts...)
	if err != nil {
		s.logger.Error("error generating recommendation", "err", err)
		return "", err
	}
	s.logger.Debug("recommendation generated", "modality", modality, "hits", len(hits))
	monitor.Finish(answer)
	return answer, nil
}

// Ping checks that the catalog store is reachable.
func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}
