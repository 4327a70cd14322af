package postgres

import (
	"context"
	"fmt"

	"github.com/castpipe/castpipe/internal/models"
)

// GetStats retrieves ingest statistics for the admin dashboard.
func (s *Store) GetStats(ctx context.Context) (*models.IngestStatsResponse, error) {
	query := `
		SELECT
			(SELECT COUNT(*) FROM podcasts),
			(SELECT COUNT(*) FROM episodes)
	`

	var stats models.IngestStatsResponse
	if err := s.pool.QueryRow(ctx, query).Scan(&stats.TotalPodcasts, &stats.TotalEpisodes); err != nil {
		return nil, fmt.Errorf("get ingest stats: %w", err)
	}
	return &stats, nil
}
