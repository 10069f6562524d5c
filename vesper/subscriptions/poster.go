package subscriptions

import (
	"context"
	"regexp"
	"strings"

	"github.com/vesperbot/vesper/vesper/database/models"
	"github.com/vesperbot/vesper/vesper/errs"
	"github.com/vesperbot/vesper/vesper/pkg/lock"
	"github.com/vesperbot/vesper/vesper/platform"
)

// mentionRe detects user/role mentions and leading @everyone/@here/@word
// in a rendered body; a body that already pings suppresses the policy
// prefix.
var mentionRe = regexp.MustCompile(`<@[!&]?\d+>|(^|\s)@\w+`)

// Poster delivers subscription posts. Per destination channel, the
// (ping, body) pair goes out under a mutex so two subscriptions cannot
// interleave their messages.
type Poster struct {
	client platform.Client
	locks  *lock.KeyedLock
}

func NewPoster(client platform.Client) *Poster {
	return &Poster{client: client, locks: lock.New()}
}

// render fills the subscription's template. When the result lacks the
// item's canonical URL, the URL is appended so the post always links
// upstream.
func render(sub *models.Subscription, item *Item) string {
	tmpl := sub.Message
	if strings.TrimSpace(tmpl) == "" {
		tmpl = DefaultTemplate
	}
	body := strings.NewReplacer(
		"{url}", item.URL,
		"{title}", item.Title,
		"{channel}", item.Channel,
	).Replace(tmpl)
	if item.URL != "" && !strings.Contains(body, item.URL) {
		body += "\n" + item.URL
	}
	return body
}

// pingPrefix resolves the subscription's ping policy to a message, or
// "" when the body already mentions someone.
func pingPrefix(sub *models.Subscription, body string) string {
	if mentionRe.MatchString(body) {
		return ""
	}
	switch sub.PingPolicy {
	case models.PingEveryone:
		return "@everyone"
	case models.PingRole:
		if sub.PingRoleID == "" {
			return ""
		}
		return "<@&" + sub.PingRoleID + ">"
	default:
		return ""
	}
}

// Post sends the item to the subscription's destination: optional ping
// first, then the rendered body, atomically per channel.
func (p *Poster) Post(ctx context.Context, sub *models.Subscription, item *Item) error {
	if !p.client.CanSend(ctx, sub.PostChannelID) {
		return errs.Newf(errs.NotFound, "destination channel %s is gone or unpostable", sub.PostChannelID)
	}
	body := render(sub, item)
	ping := pingPrefix(sub, body)

	return p.locks.WithLock(sub.PostChannelID, func() error {
		if ping != "" {
			if _, err := p.client.SendMessage(ctx, sub.PostChannelID, platform.Message{Content: ping}); err != nil {
				return errs.Wrap(errs.Upstream, "send ping", err)
			}
		}
		if _, err := p.client.SendMessage(ctx, sub.PostChannelID, platform.Message{Content: body}); err != nil {
			return errs.Wrap(errs.Upstream, "send post", err)
		}
		return nil
	})
}
