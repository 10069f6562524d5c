package subscriptions

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/vesperbot/vesper/vesper/database/models"
	"github.com/vesperbot/vesper/vesper/database/repositories"
	"github.com/vesperbot/vesper/vesper/errs"
	"github.com/vesperbot/vesper/vesper/platform"
)

// DefaultTemplate renders a post when a subscription has no custom
// message.
const DefaultTemplate = "{channel} just posted: {title}\n{url}"

// Thumbnailer mirrors an upstream image and returns a stable URL.
// Optional; without one the upstream URL is stored as-is.
type Thumbnailer interface {
	Mirror(ctx context.Context, imageURL string) (string, error)
}

// Registry manages which upstream sources each guild follows.
type Registry struct {
	repo    repositories.SubscriptionRepository
	sources map[string]Source
	client  platform.Client
	thumbs  Thumbnailer
}

func NewRegistry(
	repo repositories.SubscriptionRepository,
	sources map[string]Source,
	client platform.Client,
	thumbs Thumbnailer,
) *Registry {
	return &Registry{repo: repo, sources: sources, client: client, thumbs: thumbs}
}

// SubscriptionID builds the unique id for a (platform, identifier,
// destination) triple.
func SubscriptionID(platformName, normalizedID, channelID string) string {
	return fmt.Sprintf("%s:%s:%s", platformName, normalizedID, channelID)
}

// FollowRequest is the registration input.
type FollowRequest struct {
	GuildID       string
	Platform      string
	Identifier    string
	PostChannelID string
	Message       string
	PingPolicy    string
	PingRoleID    string
}

// Follow normalizes and validates the identifier, fetches a thumbnail,
// and registers the subscription. The same triple cannot be followed
// twice.
func (r *Registry) Follow(ctx context.Context, req FollowRequest) (*models.Subscription, error) {
	source, ok := r.sources[req.Platform]
	if !ok {
		return nil, errs.Newf(errs.InvalidArgument, "unknown platform %q", req.Platform)
	}
	switch req.PingPolicy {
	case "", models.PingNone:
		req.PingPolicy = models.PingNone
	case models.PingEveryone:
	case models.PingRole:
		if req.PingRoleID == "" {
			return nil, errs.New(errs.InvalidArgument, "role ping needs a role")
		}
	default:
		return nil, errs.Newf(errs.InvalidArgument, "unknown ping policy %q", req.PingPolicy)
	}
	if !r.client.CanSend(ctx, req.PostChannelID) {
		return nil, errs.New(errs.InvalidArgument, "I can't post in that channel")
	}

	normalized, err := source.Normalize(ctx, req.Identifier)
	if err != nil {
		return nil, err
	}

	id := SubscriptionID(req.Platform, normalized, req.PostChannelID)
	if existing, err := r.repo.Get(ctx, id); err != nil {
		return nil, errs.Wrap(errs.Internal, "look up subscription", err)
	} else if existing != nil {
		return nil, errs.New(errs.Conflict, "that channel already follows this source")
	}

	sub := &models.Subscription{
		ID:            id,
		GuildID:       req.GuildID,
		Platform:      req.Platform,
		Identifier:    strings.TrimSpace(req.Identifier),
		NormalizedID:  normalized,
		PostChannelID: req.PostChannelID,
		Message:       req.Message,
		PingPolicy:    req.PingPolicy,
		PingRoleID:    req.PingRoleID,
	}
	// Confirm the source is actually pollable before registering.
	if _, err := source.Latest(ctx, sub); err != nil {
		return nil, err
	}

	if thumb, err := source.Thumbnail(ctx, normalized); err == nil && thumb != "" {
		sub.Thumbnail = thumb
		if r.thumbs != nil {
			if mirrored, err := r.thumbs.Mirror(ctx, thumb); err == nil {
				sub.Thumbnail = mirrored
			} else {
				slog.Warn("Thumbnail mirror failed",
					slog.String("type", "feed"),
					slog.String("subscription", id),
					slog.Any("error", err))
			}
		}
	}

	if err := r.repo.Add(ctx, sub); err != nil {
		return nil, errs.Wrap(errs.Internal, "save subscription", err)
	}
	slog.Info("Subscription registered",
		slog.String("type", "feed"),
		slog.String("id", id),
		slog.String("guild_id", req.GuildID))
	return sub, nil
}

// Unfollow removes a subscription by id. Removing twice reports
// NotFound the second time.
func (r *Registry) Unfollow(ctx context.Context, id string) error {
	ok, err := r.repo.Remove(ctx, id)
	if err != nil {
		return errs.Wrap(errs.Internal, "remove subscription", err)
	}
	if !ok {
		return errs.Newf(errs.NotFound, "no subscription %q", id)
	}
	slog.Info("Subscription removed",
		slog.String("type", "feed"),
		slog.String("id", id))
	return nil
}

// ListByGuild returns a guild's subscriptions.
func (r *Registry) ListByGuild(ctx context.Context, guildID string) ([]*models.Subscription, error) {
	subs, err := r.repo.ListByGuild(ctx, guildID)
	if err != nil {
		return nil, errs.Wrap(errs.Internal, "list subscriptions", err)
	}
	return subs, nil
}
