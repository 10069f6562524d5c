package subscriptions

import (
	"context"
	"encoding/xml"
	"fmt"
	"regexp"
	"strings"

	lru "github.com/hashicorp/golang-lru"

	"github.com/vesperbot/vesper/vesper/database/models"
	"github.com/vesperbot/vesper/vesper/errs"
)

const handleCacheSize = 256

var (
	canonicalRe = regexp.MustCompile(`<link\s+rel="canonical"\s+href="https://www\.youtube\.com/channel/(UC[0-9A-Za-z_-]{22})"`)
	handleURLRe = regexp.MustCompile(`/@([0-9A-Za-z._-]+)`)
	channelIDRe = regexp.MustCompile(`^UC[0-9A-Za-z_-]{22}$`)
)

// YouTubeSource polls channel upload feeds. Handles resolve to channel
// ids through the channel page's canonical link; resolutions are
// cached.
type YouTubeSource struct {
	fetcher *Fetcher
	handles *lru.Cache // handle -> channel id
}

var _ Source = (*YouTubeSource)(nil)

func NewYouTubeSource(fetcher *Fetcher) *YouTubeSource {
	cache, _ := lru.New(handleCacheSize)
	return &YouTubeSource{fetcher: fetcher, handles: cache}
}

// Normalize accepts a channel id, an @handle, or any URL containing
// /@handle, and returns the canonical channel id.
func (s *YouTubeSource) Normalize(ctx context.Context, identifier string) (string, error) {
	identifier = strings.TrimSpace(identifier)
	if channelIDRe.MatchString(identifier) {
		return identifier, nil
	}

	handle := identifier
	if m := handleURLRe.FindStringSubmatch(identifier); m != nil {
		handle = m[1]
	}
	handle = strings.TrimPrefix(handle, "@")
	if handle == "" {
		return "", errs.New(errs.InvalidArgument, "empty channel identifier")
	}

	if v, ok := s.handles.Get(handle); ok {
		return v.(string), nil
	}

	page, err := s.fetcher.TextWithFallback(ctx, "https://www.youtube.com/@"+handle, canonicalRe)
	if err != nil {
		return "", err
	}
	m := canonicalRe.FindStringSubmatch(page)
	if m == nil {
		return "", errs.Newf(errs.NotFound, "no channel found for @%s", handle)
	}
	s.handles.Add(handle, m[1])
	return m[1], nil
}

// Thumbnail scrapes the channel page's og:image.
func (s *YouTubeSource) Thumbnail(ctx context.Context, channelID string) (string, error) {
	page, err := s.fetcher.Text(ctx, "https://www.youtube.com/channel/"+channelID)
	if err != nil {
		return "", err
	}
	return OGImage(page), nil
}

// uploadsPlaylistID derives the uploads playlist from a channel id.
// YouTube pairs every UC... channel with a UU... playlist.
func uploadsPlaylistID(channelID string) string {
	return "UU" + strings.TrimPrefix(channelID, "UC")
}

type feedEntry struct {
	VideoID string `xml:"videoId"`
	Title   string `xml:"title"`
	Author  struct {
		Name string `xml:"name"`
	} `xml:"author"`
	Link struct {
		Href string `xml:"href"`
	} `xml:"link"`
}

type videoFeed struct {
	Entries []feedEntry `xml:"entry"`
}

// Latest fetches the newest upload from the channel's uploads playlist
// feed. The playlist id is cached on the subscription.
func (s *YouTubeSource) Latest(ctx context.Context, sub *models.Subscription) (*Item, error) {
	if sub.UploadsPlaylist == "" {
		sub.UploadsPlaylist = uploadsPlaylistID(sub.NormalizedID)
	}
	raw, err := s.fetcher.Text(ctx,
		"https://www.youtube.com/feeds/videos.xml?playlist_id="+sub.UploadsPlaylist)
	if err != nil {
		return nil, err
	}
	var feed videoFeed
	if err := xml.Unmarshal([]byte(raw), &feed); err != nil {
		return nil, errs.Wrap(errs.Upstream, "parse upload feed", err)
	}
	if len(feed.Entries) == 0 {
		return nil, nil
	}
	e := feed.Entries[0]
	url := e.Link.Href
	if url == "" {
		url = fmt.Sprintf("https://www.youtube.com/watch?v=%s", e.VideoID)
	}
	return &Item{
		ID:      e.VideoID,
		Title:   e.Title,
		Channel: e.Author.Name,
		URL:     url,
	}, nil
}
