package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/castpipe/castpipe/internal/models"
)

const podcastColumns = `
	podcast_id, title, description, link, last_build_date, language,
	copyright, image_url, rss_feed_url, categories, author, owner_name,
	owner_email, keywords, explicit, summary, subtitle, created_at, updated_at
`

// ListPodcasts returns every stored podcast ordered by title.
func (s *Store) ListPodcasts(ctx context.Context) ([]models.Podcast, error) {
	query := `SELECT ` + podcastColumns + ` FROM podcasts ORDER BY title ASC`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list podcasts: %w", err)
	}
	defer rows.Close()

	return scanPodcasts(rows)
}

func scanPodcasts(rows pgx.Rows) ([]models.Podcast, error) {
	var podcasts []models.Podcast
	for rows.Next() {
		var p models.Podcast
		err := rows.Scan(
			&p.PodcastID, &p.Title, &p.Description, &p.Link, &p.LastBuildDate,
			&p.Language, &p.Copyright, &p.ImageURL, &p.RSSFeedURL,
			&p.Categories, &p.Author, &p.OwnerName, &p.OwnerEmail, &p.Keywords,
			&p.Explicit, &p.Summary, &p.Subtitle, &p.CreatedAt, &p.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan podcast: %w", err)
		}
		podcasts = append(podcasts, p)
	}
	return podcasts, rows.Err()
}
