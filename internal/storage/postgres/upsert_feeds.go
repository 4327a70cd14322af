package postgres

import (
	"context"
	"fmt"

	"github.com/castpipe/castpipe/internal/models"
)

// UpsertFeeds inserts or updates a batch of parsed feeds inside one
// transaction. Podcasts are keyed on rss_feed_url, episodes on guid, so
// re-ingesting the same feed never produces duplicate rows.
func (s *Store) UpsertFeeds(ctx context.Context, feeds []*models.ParsedFeed) error {
	if len(feeds) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin upsert transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	const podcastQuery = `
		INSERT INTO podcasts (
			title, description, link, last_build_date, language, copyright,
			image_url, rss_feed_url, categories, author, owner_name,
			owner_email, keywords, explicit, summary, subtitle, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, NOW())
		ON CONFLICT (rss_feed_url) DO UPDATE SET
			title = EXCLUDED.title,
			description = EXCLUDED.description,
			link = EXCLUDED.link,
			last_build_date = EXCLUDED.last_build_date,
			language = EXCLUDED.language,
			copyright = EXCLUDED.copyright,
			image_url = EXCLUDED.image_url,
			categories = EXCLUDED.categories,
			author = EXCLUDED.author,
			owner_name = EXCLUDED.owner_name,
			owner_email = EXCLUDED.owner_email,
			keywords = EXCLUDED.keywords,
			explicit = EXCLUDED.explicit,
			summary = EXCLUDED.summary,
			subtitle = EXCLUDED.subtitle,
			updated_at = NOW()
		RETURNING podcast_id
	`

	const episodeQuery = `
		INSERT INTO episodes (
			podcast_id, title, description, link, pub_date, guid,
			enclosure_url, enclosure_type, enclosure_length, episode_image_url,
			explicit, subtitle, author, summary, keywords, categories
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (guid) DO UPDATE SET
			podcast_id = EXCLUDED.podcast_id,
			title = EXCLUDED.title,
			description = EXCLUDED.description,
			link = EXCLUDED.link,
			pub_date = EXCLUDED.pub_date,
			enclosure_url = EXCLUDED.enclosure_url,
			enclosure_type = EXCLUDED.enclosure_type,
			enclosure_length = EXCLUDED.enclosure_length,
			episode_image_url = EXCLUDED.episode_image_url,
			explicit = EXCLUDED.explicit,
			subtitle = EXCLUDED.subtitle,
			author = EXCLUDED.author,
			summary = EXCLUDED.summary,
			keywords = EXCLUDED.keywords,
			categories = EXCLUDED.categories
	`

	for _, feed := range feeds {
		p := feed.Podcast
		var podcastID int64
		err := tx.QueryRow(ctx, podcastQuery,
			p.Title, p.Description, p.Link, p.LastBuildDate, p.Language,
			p.Copyright, p.ImageURL, p.RSSFeedURL, p.Categories, p.Author,
			p.OwnerName, p.OwnerEmail, p.Keywords, p.Explicit, p.Summary,
			p.Subtitle,
		).Scan(&podcastID)
		if err != nil {
			return fmt.Errorf("upsert podcast %s: %w", p.RSSFeedURL, err)
		}

		for _, ep := range feed.Episodes {
			_, err := tx.Exec(ctx, episodeQuery,
				podcastID, ep.Title, ep.Description, ep.Link, ep.PubDate,
				ep.GUID, ep.EnclosureURL, ep.EnclosureType, ep.EnclosureLength,
				ep.EpisodeImageURL, ep.Explicit, ep.Subtitle, ep.Author,
				ep.Summary, ep.Keywords, ep.Categories,
			)
			if err != nil {
				return fmt.Errorf("upsert episode %s: %w", ep.GUID, err)
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit upsert transaction: %w", err)
	}
	return nil
}
