// Package parser turns raw feed bytes into podcast and episode records.
package parser

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/mmcdole/gofeed"

	"github.com/castpipe/castpipe/internal/models"
)

// RSSParser parses RSS/Atom feed content. Deterministic, no I/O; errors are
// classified as non-retryable by the scheduler core.
type RSSParser struct{}

// New creates a parser.
func New() *RSSParser {
	return &RSSParser{}
}

// Parse consumes the fetched bytes and returns the podcast plus its episodes.
func (p *RSSParser) Parse(content []byte, url string) (*models.ParsedFeed, error) {
	feed, err := gofeed.NewParser().Parse(bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("parse feed %s: %w", url, err)
	}
	if feed.Title == "" {
		return nil, fmt.Errorf("parse feed %s: feed has no title", url)
	}

	podcast := models.Podcast{
		Title:      feed.Title,
		RSSFeedURL: url,
	}
	podcast.Description = optional(feed.Description)
	podcast.Link = optional(feed.Link)
	podcast.Language = optional(feed.Language)
	podcast.Copyright = optional(feed.Copyright)
	podcast.Categories = feed.Categories
	if feed.UpdatedParsed != nil {
		podcast.LastBuildDate = feed.UpdatedParsed
	} else if feed.PublishedParsed != nil {
		podcast.LastBuildDate = feed.PublishedParsed
	}
	if feed.Image != nil {
		podcast.ImageURL = optional(feed.Image.URL)
	}
	if feed.Author != nil {
		podcast.Author = optional(feed.Author.Name)
	}
	if itunes := feed.ITunesExt; itunes != nil {
		if podcast.Author == nil {
			podcast.Author = optional(itunes.Author)
		}
		podcast.Summary = optional(itunes.Summary)
		podcast.Subtitle = optional(itunes.Subtitle)
		if itunes.Keywords != "" {
			podcast.Keywords = splitKeywords(itunes.Keywords)
		}
		if itunes.Explicit != "" {
			explicit := itunes.Explicit == "yes" || itunes.Explicit == "true"
			podcast.Explicit = &explicit
		}
		if itunes.Owner != nil {
			podcast.OwnerName = optional(itunes.Owner.Name)
			podcast.OwnerEmail = optional(itunes.Owner.Email)
		}
		if podcast.ImageURL == nil {
			podcast.ImageURL = optional(itunes.Image)
		}
	}

	episodes := make([]models.Episode, 0, len(feed.Items))
	for _, item := range feed.Items {
		if item == nil || item.Title == "" {
			continue
		}
		ep := models.Episode{
			Title: item.Title,
			GUID:  item.GUID,
		}
		if ep.GUID == "" {
			// a missing guid falls back to the item link, the next-best
			// stable key for upserts
			ep.GUID = item.Link
		}
		if ep.GUID == "" {
			continue
		}
		ep.Description = optional(item.Description)
		ep.Link = optional(item.Link)
		ep.PubDate = item.PublishedParsed
		ep.Categories = item.Categories
		if item.Image != nil {
			ep.EpisodeImageURL = optional(item.Image.URL)
		}
		if item.Author != nil {
			ep.Author = optional(item.Author.Name)
		}
		if len(item.Enclosures) > 0 && item.Enclosures[0] != nil {
			enc := item.Enclosures[0]
			ep.EnclosureURL = optional(enc.URL)
			ep.EnclosureType = optional(enc.Type)
			if n, err := strconv.ParseInt(enc.Length, 10, 64); err == nil {
				ep.EnclosureLength = &n
			}
		}
		if itunes := item.ITunesExt; itunes != nil {
			if ep.Author == nil {
				ep.Author = optional(itunes.Author)
			}
			ep.Summary = optional(itunes.Summary)
			ep.Subtitle = optional(itunes.Subtitle)
			if itunes.Keywords != "" {
				ep.Keywords = splitKeywords(itunes.Keywords)
			}
			if itunes.Explicit != "" {
				explicit := itunes.Explicit == "yes" || itunes.Explicit == "true"
				ep.Explicit = &explicit
			}
			if ep.EpisodeImageURL == nil {
				ep.EpisodeImageURL = optional(itunes.Image)
			}
		}
		episodes = append(episodes, ep)
	}

	return &models.ParsedFeed{Podcast: podcast, Episodes: episodes}, nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func splitKeywords(s string) []string {
	var out []string
	for _, word := range strings.Split(s, ",") {
		if word = strings.TrimSpace(word); word != "" {
			out = append(out, word)
		}
	}
	return out
}
