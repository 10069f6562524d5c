package subscriptions

import (
	"context"

	"github.com/vesperbot/vesper/vesper/database/models"
)

// Item is the newest piece of content a source produced: a video upload
// or a live stream going up.
type Item struct {
	// ID is the de-duplication key compared against last_seen.
	ID      string
	Title   string
	Channel string
	// URL is the upstream-canonical link; posts always carry it.
	URL string
}

// Source is one upstream platform. Implementations are safe for
// concurrent use by the sweep.
type Source interface {
	// Normalize resolves a user-supplied identifier (handle, URL,
	// channel id) to the canonical id used for polling. It fails when
	// the upstream source does not exist.
	Normalize(ctx context.Context, identifier string) (string, error)
	// Thumbnail returns an image URL for the source, or "".
	Thumbnail(ctx context.Context, normalizedID string) (string, error)
	// Latest returns the newest item, or nil when the source has none
	// (no uploads yet, stream offline). It may fill cacheable lookup
	// results into sub; the caller persists them.
	Latest(ctx context.Context, sub *models.Subscription) (*Item, error)
}
