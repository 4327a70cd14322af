package storage

import (
	"context"
	"errors"

	"github.com/castpipe/castpipe/internal/models"
)

// Common errors
var (
	ErrPodcastNotFound = errors.New("podcast not found")
)

// Store defines the interface for podcast persistence operations
// This allows for different implementations (PostgreSQL, in-memory, etc.)
type Store interface {
	// UpsertFeeds transactionally inserts or updates a batch of parsed
	// feeds, keyed on rss_feed_url for podcasts and guid for episodes
	UpsertFeeds(ctx context.Context, feeds []*models.ParsedFeed) error

	// ListPodcasts returns all stored podcasts
	ListPodcasts(ctx context.Context) ([]models.Podcast, error)

	// GetPodcast retrieves a podcast by its ID
	GetPodcast(ctx context.Context, id int64) (*models.Podcast, error)

	// ListEpisodes returns one page of a podcast's episodes, newest first
	ListEpisodes(ctx context.Context, podcastID int64, page, perPage int) ([]models.Episode, error)

	// SearchPodcasts finds podcasts whose title or author matches the query
	SearchPodcasts(ctx context.Context, query string) ([]models.Podcast, error)

	// GetStats retrieves ingest statistics for the admin surface
	GetStats(ctx context.Context) (*models.IngestStatsResponse, error)
}
