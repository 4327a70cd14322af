package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/castpipe/castpipe/internal/models"
	"github.com/castpipe/castpipe/internal/storage"
)

// GetPodcast retrieves a podcast by its ID.
func (s *Store) GetPodcast(ctx context.Context, id int64) (*models.Podcast, error) {
	query := `SELECT ` + podcastColumns + ` FROM podcasts WHERE podcast_id = $1`

	var p models.Podcast
	err := s.pool.QueryRow(ctx, query, id).Scan(
		&p.PodcastID, &p.Title, &p.Description, &p.Link, &p.LastBuildDate,
		&p.Language, &p.Copyright, &p.ImageURL, &p.RSSFeedURL,
		&p.Categories, &p.Author, &p.OwnerName, &p.OwnerEmail, &p.Keywords,
		&p.Explicit, &p.Summary, &p.Subtitle, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, storage.ErrPodcastNotFound
		}
		return nil, fmt.Errorf("get podcast %d: %w", id, err)
	}
	return &p, nil
}
