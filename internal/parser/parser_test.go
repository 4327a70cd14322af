package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleFeed = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0" xmlns:itunes="http://www.itunes.com/dtds/podcast-1.0.dtd">
  <channel>
    <title>Go Time</title>
    <link>https://example.com/gotime</link>
    <description>A podcast about Go</description>
    <language>en-us</language>
    <copyright>Example Media</copyright>
    <itunes:author>Example Media</itunes:author>
    <itunes:subtitle>Weekly Go news</itunes:subtitle>
    <itunes:summary>Conversations about the Go programming language</itunes:summary>
    <itunes:explicit>no</itunes:explicit>
    <itunes:keywords>go, golang, programming</itunes:keywords>
    <itunes:owner>
      <itunes:name>Jo Host</itunes:name>
      <itunes:email>host@example.com</itunes:email>
    </itunes:owner>
    <item>
      <title>Episode 1: Channels</title>
      <link>https://example.com/gotime/1</link>
      <description>All about channels</description>
      <guid>gotime-ep-1</guid>
      <pubDate>Mon, 06 Jan 2025 10:00:00 GMT</pubDate>
      <enclosure url="https://example.com/gotime/1.mp3" type="audio/mpeg" length="12345678"/>
    </item>
    <item>
      <title>Episode 2: Goroutines</title>
      <link>https://example.com/gotime/2</link>
      <guid>gotime-ep-2</guid>
      <enclosure url="https://example.com/gotime/2.mp3" type="audio/mpeg" length="not-a-number"/>
    </item>
  </channel>
</rss>`

func TestParse_FullFeed(t *testing.T) {
	feed, err := New().Parse([]byte(sampleFeed), "https://example.com/gotime/rss")
	require.NoError(t, err)

	p := feed.Podcast
	assert.Equal(t, "Go Time", p.Title)
	assert.Equal(t, "https://example.com/gotime/rss", p.RSSFeedURL)
	require.NotNil(t, p.Description)
	assert.Equal(t, "A podcast about Go", *p.Description)
	require.NotNil(t, p.Language)
	assert.Equal(t, "en-us", *p.Language)
	require.NotNil(t, p.Author)
	assert.Equal(t, "Example Media", *p.Author)
	require.NotNil(t, p.OwnerName)
	assert.Equal(t, "Jo Host", *p.OwnerName)
	require.NotNil(t, p.OwnerEmail)
	assert.Equal(t, "host@example.com", *p.OwnerEmail)
	require.NotNil(t, p.Explicit)
	assert.False(t, *p.Explicit)
	assert.Equal(t, []string{"go", "golang", "programming"}, p.Keywords)

	require.Len(t, feed.Episodes, 2)

	ep := feed.Episodes[0]
	assert.Equal(t, "Episode 1: Channels", ep.Title)
	assert.Equal(t, "gotime-ep-1", ep.GUID)
	require.NotNil(t, ep.PubDate)
	require.NotNil(t, ep.EnclosureURL)
	assert.Equal(t, "https://example.com/gotime/1.mp3", *ep.EnclosureURL)
	require.NotNil(t, ep.EnclosureLength)
	assert.Equal(t, int64(12345678), *ep.EnclosureLength)

	// an unparsable enclosure length is dropped, not an error
	assert.Nil(t, feed.Episodes[1].EnclosureLength)
}

func TestParse_Deterministic(t *testing.T) {
	p := New()
	first, err := p.Parse([]byte(sampleFeed), "https://example.com/gotime/rss")
	require.NoError(t, err)
	second, err := p.Parse([]byte(sampleFeed), "https://example.com/gotime/rss")
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestParse_GUIDFallsBackToLink(t *testing.T) {
	const feed = `<?xml version="1.0"?>
<rss version="2.0"><channel><title>T</title>
<item><title>No guid</title><link>https://example.com/ep</link></item>
</channel></rss>`

	parsed, err := New().Parse([]byte(feed), "https://example.com/rss")
	require.NoError(t, err)
	require.Len(t, parsed.Episodes, 1)
	assert.Equal(t, "https://example.com/ep", parsed.Episodes[0].GUID)
}

func TestParse_SkipsUnkeyedItems(t *testing.T) {
	const feed = `<?xml version="1.0"?>
<rss version="2.0"><channel><title>T</title>
<item><title>No key at all</title></item>
<item><description>no title either</description></item>
</channel></rss>`

	parsed, err := New().Parse([]byte(feed), "https://example.com/rss")
	require.NoError(t, err)
	assert.Empty(t, parsed.Episodes)
}

func TestParse_MalformedContent(t *testing.T) {
	_, err := New().Parse([]byte("this is not xml"), "https://example.com/rss")
	assert.Error(t, err)
}

func TestParse_MissingTitle(t *testing.T) {
	const feed = `<?xml version="1.0"?><rss version="2.0"><channel></channel></rss>`
	_, err := New().Parse([]byte(feed), "https://example.com/rss")
	assert.Error(t, err)
}
