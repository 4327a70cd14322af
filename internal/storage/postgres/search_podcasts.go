package postgres

import (
	"context"
	"fmt"

	"github.com/castpipe/castpipe/internal/models"
)

// SearchPodcasts finds podcasts whose title or author matches the query,
// case-insensitively.
func (s *Store) SearchPodcasts(ctx context.Context, query string) ([]models.Podcast, error) {
	sql := `
		SELECT ` + podcastColumns + `
		FROM podcasts
		WHERE title ILIKE '%' || $1 || '%' OR author ILIKE '%' || $1 || '%'
		ORDER BY title ASC
		LIMIT 100
	`

	rows, err := s.pool.Query(ctx, sql, query)
	if err != nil {
		return nil, fmt.Errorf("search podcasts %q: %w", query, err)
	}
	defer rows.Close()

	return scanPodcasts(rows)
}
