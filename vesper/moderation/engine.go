package moderation

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru"

	"github.com/vesperbot/vesper/vesper/database/models"
	"github.com/vesperbot/vesper/vesper/database/repositories"
	"github.com/vesperbot/vesper/vesper/errs"
	"github.com/vesperbot/vesper/vesper/platform"
	"github.com/vesperbot/vesper/vesper/scheduler"
)

// MutedRoleName is the punishment role applied by mute rules.
const MutedRoleName = "Muted"

const patternCacheSize = 512

// Engine evaluates phrase rules against guild messages and owns the
// mute lifecycle.
type Engine struct {
	rules    repositories.PhraseRuleRepository
	mutes    repositories.MuteScheduleRepository
	guildCfg repositories.GuildConfigRepository
	client   platform.Client
	sched    *scheduler.Scheduler

	// ownerID is the global bot owner; empty disables that clause of
	// the bot-admin predicate.
	ownerID string

	patterns *lru.Cache // phrase -> *regexp.Regexp
	now      func() time.Time
}

func NewEngine(
	rules repositories.PhraseRuleRepository,
	mutes repositories.MuteScheduleRepository,
	guildCfg repositories.GuildConfigRepository,
	client platform.Client,
	sched *scheduler.Scheduler,
	ownerID string,
) *Engine {
	cache, _ := lru.New(patternCacheSize)
	return &Engine{
		rules:    rules,
		mutes:    mutes,
		guildCfg: guildCfg,
		client:   client,
		sched:    sched,
		ownerID:  ownerID,
		patterns: cache,
		now:      time.Now,
	}
}

// SetNow overrides the clock for tests.
func (e *Engine) SetNow(now func() time.Time) { e.now = now }

func (e *Engine) compiled(phrase string) *regexp.Regexp {
	if v, ok := e.patterns.Get(phrase); ok {
		return v.(*regexp.Regexp)
	}
	re := compilePhrase(phrase)
	if re != nil {
		e.patterns.Add(phrase, re)
	}
	return re
}

func (e *Engine) rulesFor(ctx context.Context, kind, guildID string) ([]rule, error) {
	stored, err := e.rules.ListForGuild(ctx, kind, guildID)
	if err != nil {
		return nil, err
	}
	out := make([]rule, 0, len(stored))
	for _, m := range stored {
		out = append(out, rule{
			phrase:   m.Phrase,
			reason:   m.Reason,
			duration: m.DurationSeconds,
			pattern:  e.compiled(m.Phrase),
		})
	}
	return out, nil
}

// HandleMessage runs the auto-moderation pipeline on one guild message:
// ban rules first, then kick, then mute. It reports whether a rule
// fired.
func (e *Engine) HandleMessage(ctx context.Context, msg platform.IncomingMessage) (bool, error) {
	if msg.AuthorBot {
		return false, nil
	}
	for _, kind := range []string{models.RuleKindBan, models.RuleKindKick, models.RuleKindMute} {
		rules, err := e.rulesFor(ctx, kind, msg.GuildID)
		if err != nil {
			return false, errs.Wrap(errs.Internal, "load phrase rules", err)
		}
		for _, r := range rules {
			if !r.matches(msg.Content) {
				continue
			}
			e.punish(ctx, kind, r, msg)
			return true, nil
		}
	}
	return false, nil
}

func (e *Engine) punish(ctx context.Context, kind string, r rule, msg platform.IncomingMessage) {
	if err := e.client.DeleteMessage(ctx, msg.ChannelID, msg.MessageID); err != nil {
		slog.Warn("Failed to delete flagged message",
			slog.String("type", "mod"),
			slog.String("guild_id", msg.GuildID),
			slog.String("channel_id", msg.ChannelID),
			slog.Any("error", err))
	}

	if r.reason != "" {
		dm := platform.Message{Embed: &platform.Embed{
			Title:       fmt.Sprintf("You were %s from %s", pastTense(kind), e.client.GuildName(ctx, msg.GuildID)),
			Description: "Reason: " + r.reason,
		}}
		if err := e.client.SendDM(ctx, msg.AuthorID, dm); err != nil {
			slog.Debug("Author DM failed",
				slog.String("type", "mod"),
				slog.String("user_id", msg.AuthorID),
				slog.Any("error", err))
		}
	}

	var err error
	switch kind {
	case models.RuleKindBan:
		err = e.client.BanMember(ctx, msg.GuildID, msg.AuthorID, r.reason)
	case models.RuleKindKick:
		err = e.client.KickMember(ctx, msg.GuildID, msg.AuthorID, r.reason)
	case models.RuleKindMute:
		err = e.Mute(ctx, msg.GuildID, msg.AuthorID, time.Duration(r.duration)*time.Second, msg.ChannelID)
	}
	if err != nil {
		slog.Error("Auto-moderation action failed",
			slog.String("type", "mod"),
			slog.String("kind", kind),
			slog.String("guild_id", msg.GuildID),
			slog.String("user_id", msg.AuthorID),
			slog.Any("error", err))
		return
	}

	caseNo, err := e.guildCfg.NextTicket(ctx, msg.GuildID)
	if err != nil {
		slog.Warn("Case number allocation failed",
			slog.String("type", "mod"),
			slog.String("guild_id", msg.GuildID),
			slog.Any("error", err))
	}

	// Bans and kicks always announce; mutes only when there is a
	// reason to cite.
	if kind != models.RuleKindMute || r.reason != "" {
		text := fmt.Sprintf("<@%s> was %s.", msg.AuthorID, pastTense(kind))
		if r.reason != "" {
			text = fmt.Sprintf("<@%s> was %s: %s", msg.AuthorID, pastTense(kind), r.reason)
		}
		if caseNo > 0 {
			text = fmt.Sprintf("Case #%d: %s", caseNo, text)
		}
		if _, err := e.client.SendMessage(ctx, msg.ChannelID, platform.Message{Content: text}); err != nil {
			slog.Debug("Punishment announcement failed",
				slog.String("type", "mod"),
				slog.String("channel_id", msg.ChannelID),
				slog.Any("error", err))
		}
	}

	slog.Info("Auto-moderation rule fired",
		slog.String("type", "mod"),
		slog.String("kind", kind),
		slog.String("guild_id", msg.GuildID),
		slog.String("user_id", msg.AuthorID),
		slog.String("phrase", r.phrase),
		slog.Int64("case", caseNo))
}

func pastTense(kind string) string {
	switch kind {
	case models.RuleKindBan:
		return "banned"
	case models.RuleKindKick:
		return "kicked"
	default:
		return "muted"
	}
}

// AddRule stores a phrase rule. Phrases are lowercased; duration only
// applies to mute rules.
func (e *Engine) AddRule(ctx context.Context, kind, guildID, phrase, reason string, duration time.Duration) error {
	phrase = strings.ToLower(strings.TrimSpace(phrase))
	if phrase == "" {
		return errs.New(errs.InvalidArgument, "phrase must not be empty")
	}
	if kind != models.RuleKindBan && kind != models.RuleKindKick && kind != models.RuleKindMute {
		return errs.Newf(errs.InvalidArgument, "unknown rule kind %q", kind)
	}
	if duration < 0 {
		return errs.New(errs.InvalidArgument, "duration must not be negative")
	}
	if kind != models.RuleKindMute {
		duration = 0
	}
	err := e.rules.Add(ctx, &models.PhraseRule{
		Kind:            kind,
		Phrase:          phrase,
		Reason:          reason,
		DurationSeconds: int64(duration / time.Second),
		GuildID:         guildID,
	})
	if err != nil {
		return errs.Wrap(errs.Internal, "save phrase rule", err)
	}
	return nil
}

// RemoveRule deletes a guild's phrase rule.
func (e *Engine) RemoveRule(ctx context.Context, kind, guildID, phrase string) error {
	phrase = strings.ToLower(strings.TrimSpace(phrase))
	ok, err := e.rules.Remove(ctx, kind, guildID, phrase)
	if err != nil {
		return errs.Wrap(errs.Internal, "remove phrase rule", err)
	}
	if !ok {
		return errs.Newf(errs.NotFound, "no %s rule for %q", kind, phrase)
	}
	return nil
}

// ListRules returns the rules that apply in a guild, global entries
// included.
func (e *Engine) ListRules(ctx context.Context, kind, guildID string) ([]*models.PhraseRule, error) {
	rules, err := e.rules.ListForGuild(ctx, kind, guildID)
	if err != nil {
		return nil, errs.Wrap(errs.Internal, "load phrase rules", err)
	}
	return rules, nil
}

// IsBotAdmin reports whether the actor may use the privileged command
// surface: guild administrators, holders of a configured permissions
// role, the guild owner and the global bot owner qualify.
func (e *Engine) IsBotAdmin(ctx context.Context, guildID, userID string) (bool, error) {
	if e.ownerID != "" && userID == e.ownerID {
		return true, nil
	}
	if admin, err := e.client.IsAdministrator(ctx, guildID, userID); err == nil && admin {
		return true, nil
	}
	if owner, err := e.client.GuildOwner(ctx, guildID); err == nil && owner == userID {
		return true, nil
	}
	cfg, err := e.guildCfg.Get(ctx, guildID)
	if err != nil {
		return false, errs.Wrap(errs.Internal, "load guild config", err)
	}
	if len(cfg.PermissionsRoles) == 0 {
		return false, nil
	}
	roles, err := e.client.MemberRoles(ctx, guildID, userID)
	if err != nil {
		return false, errs.Wrap(errs.Upstream, "load member roles", err)
	}
	allowed := make(map[string]bool, len(cfg.PermissionsRoles))
	for _, r := range cfg.PermissionsRoles {
		allowed[r] = true
	}
	for _, r := range roles {
		if allowed[r] {
			return true, nil
		}
	}
	return false, nil
}
