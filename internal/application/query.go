package application

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/jobrunner/blobloader/internal/domain"
	"github.com/jobrunner/blobloader/internal/ports/input"
	"github.com/jobrunner/blobloader/internal/ports/output"
)

// QueryService answers read queries over the loaded collection.
type QueryService struct {
	querier output.DocumentQuerier
	logger  *slog.Logger
}

// NewQueryService creates a new query service.
func NewQueryService(querier output.DocumentQuerier, logger *slog.Logger) *QueryService {
	return &QueryService{
		querier: querier,
		logger:  logger,
	}
}

var _ input.QueryService = (*QueryService)(nil)

// Count implements input.QueryService.
func (s *QueryService) Count(ctx context.Context, filterJSON string) (int64, error) {
	filter, err := ParseFilter(filterJSON)
	if err != nil {
		return 0, err
	}

	n, err := s.querier.Count(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("counting documents: %w", err)
	}
	s.logger.Debug("count completed", "filter", filterJSON, "count", n)
	return n, nil
}

// Find implements input.QueryService.
func (s *QueryService) Find(ctx context.Context, filterJSON string, limit int64) ([]domain.Document, error) {
	filter, err := ParseFilter(filterJSON)
	if err != nil {
		return nil, err
	}

	docs, err := s.querier.Find(ctx, filter, limit)
	if err != nil {
		return nil, fmt.Errorf("finding documents: %w", err)
	}
	s.logger.Debug("find completed", "filter", filterJSON, "documents", len(docs))
	return docs, nil
}

// ParseFilter decodes a relaxed Extended JSON filter such as
// {"total_mapped_reads": {"$gt": 500}}. An empty string matches everything.
func ParseFilter(filterJSON string) (bson.D, error) {
	if strings.TrimSpace(filterJSON) == "" {
		return bson.D{}, nil
	}

	var filter bson.D
	if err := bson.UnmarshalExtJSON([]byte(filterJSON), false, &filter); err != nil {
		return nil, &domain.ConfigError{Field: "filter", Message: err.Error()}
	}
	return filter, nil
}
