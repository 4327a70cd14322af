package models

import "time"

// Podcast is one feed-level record, keyed for upserts by its RSS feed URL.
type Podcast struct {
	PodcastID     int64      `json:"podcast_id" db:"podcast_id"`
	Title         string     `json:"title" db:"title"`
	Description   *string    `json:"description,omitempty" db:"description"`
	Link          *string    `json:"link,omitempty" db:"link"`
	LastBuildDate *time.Time `json:"last_build_date,omitempty" db:"last_build_date"`
	Language      *string    `json:"language,omitempty" db:"language"`
	Copyright     *string    `json:"copyright,omitempty" db:"copyright"`
	ImageURL      *string    `json:"image_url,omitempty" db:"image_url"`
	RSSFeedURL    string     `json:"rss_feed_url" db:"rss_feed_url"`
	Categories    []string   `json:"categories,omitempty" db:"categories"`
	Author        *string    `json:"author,omitempty" db:"author"`
	OwnerName     *string    `json:"owner_name,omitempty" db:"owner_name"`
	OwnerEmail    *string    `json:"owner_email,omitempty" db:"owner_email"`
	Keywords      []string   `json:"keywords,omitempty" db:"keywords"`
	Explicit      *bool      `json:"explicit,omitempty" db:"explicit"`
	Summary       *string    `json:"summary,omitempty" db:"summary"`
	Subtitle      *string    `json:"subtitle,omitempty" db:"subtitle"`
	CreatedAt     time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at" db:"updated_at"`
}

// Episode is one item-level record, keyed for upserts by its GUID.
type Episode struct {
	EpisodeID       int64      `json:"episode_id" db:"episode_id"`
	PodcastID       int64      `json:"podcast_id" db:"podcast_id"`
	Title           string     `json:"title" db:"title"`
	Description     *string    `json:"description,omitempty" db:"description"`
	Link            *string    `json:"link,omitempty" db:"link"`
	PubDate         *time.Time `json:"pub_date,omitempty" db:"pub_date"`
	GUID            string     `json:"guid" db:"guid"`
	EnclosureURL    *string    `json:"enclosure_url,omitempty" db:"enclosure_url"`
	EnclosureType   *string    `json:"enclosure_type,omitempty" db:"enclosure_type"`
	EnclosureLength *int64     `json:"enclosure_length,omitempty" db:"enclosure_length"`
	EpisodeImageURL *string    `json:"episode_image_url,omitempty" db:"episode_image_url"`
	Explicit        *bool      `json:"explicit,omitempty" db:"explicit"`
	Subtitle        *string    `json:"subtitle,omitempty" db:"subtitle"`
	Author          *string    `json:"author,omitempty" db:"author"`
	Summary         *string    `json:"summary,omitempty" db:"summary"`
	Keywords        []string   `json:"keywords,omitempty" db:"keywords"`
	Categories      []string   `json:"categories,omitempty" db:"categories"`
}

// ParsedFeed is the parser output for one feed: the podcast plus its
// episodes, not yet assigned database ids.
type ParsedFeed struct {
	Podcast  Podcast   `json:"podcast"`
	Episodes []Episode `json:"episodes"`
}

// AddTaskRequest is the admin API request to ingest one feed.
type AddTaskRequest struct {
	RSSURL string `json:"rss_url" binding:"required"`
}

// AddTaskResponse acknowledges an accepted ingestion request.
type AddTaskResponse struct {
	Status string `json:"status"`
}

// IngestStatsResponse summarises what has been persisted.
type IngestStatsResponse struct {
	TotalPodcasts int64 `json:"total_podcasts"`
	TotalEpisodes int64 `json:"total_episodes"`
}
