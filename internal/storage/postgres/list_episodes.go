package postgres

import (
	"context"
	"fmt"

	"github.com/castpipe/castpipe/internal/models"
)

// ListEpisodes returns one page of a podcast's episodes, newest first.
// Pages are 1-based.
func (s *Store) ListEpisodes(ctx context.Context, podcastID int64, page, perPage int) ([]models.Episode, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 20
	}

	query := `
		SELECT
			episode_id, podcast_id, title, description, link, pub_date, guid,
			enclosure_url, enclosure_type, enclosure_length, episode_image_url,
			explicit, subtitle, author, summary, keywords, categories
		FROM episodes
		WHERE podcast_id = $1
		ORDER BY pub_date DESC NULLS LAST, episode_id DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := s.pool.Query(ctx, query, podcastID, perPage, (page-1)*perPage)
	if err != nil {
		return nil, fmt.Errorf("list episodes for podcast %d: %w", podcastID, err)
	}
	defer rows.Close()

	var episodes []models.Episode
	for rows.Next() {
		var e models.Episode
		err := rows.Scan(
			&e.EpisodeID, &e.PodcastID, &e.Title, &e.Description, &e.Link,
			&e.PubDate, &e.GUID, &e.EnclosureURL, &e.EnclosureType,
			&e.EnclosureLength, &e.EpisodeImageURL, &e.Explicit, &e.Subtitle,
			&e.Author, &e.Summary, &e.Keywords, &e.Categories,
		)
		if err != nil {
			return nil, fmt.Errorf("scan episode: %w", err)
		}
		episodes = append(episodes, e)
	}
	return episodes, rows.Err()
}
