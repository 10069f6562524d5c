// Package counting implements counting channels: members count upward
// one at a time, never twice in a row, with a mistake tally and an
// optional punishment role for repeat offenders.
package counting

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"

	"github.com/vesperbot/vesper/vesper/database/models"
	"github.com/vesperbot/vesper/vesper/database/repositories"
	"github.com/vesperbot/vesper/vesper/errs"
	"github.com/vesperbot/vesper/vesper/pkg/lock"
	"github.com/vesperbot/vesper/vesper/platform"
)

// DefaultCannotCountRole is the punishment role name unless the guild
// configures another.
const DefaultCannotCountRole = "cannot count"

// Engine processes counting-channel messages. Per-channel processing is
// serialized so near-simultaneous posts cannot both be accepted.
type Engine struct {
	repo     repositories.CountingRepository
	guildCfg repositories.GuildConfigRepository
	client   platform.Client
	locks    *lock.KeyedLock

	roleIDs sync.Map // guildID -> punishment role id
}

func NewEngine(
	repo repositories.CountingRepository,
	guildCfg repositories.GuildConfigRepository,
	client platform.Client,
) *Engine {
	return &Engine{
		repo:     repo,
		guildCfg: guildCfg,
		client:   client,
		locks:    lock.New(),
	}
}

// parseCount accepts only strictly numeric content. ParseInt alone
// would also take signs and "+5" style input, so digits are checked
// first and ParseInt only guards the int64 range.
func parseCount(content string) (int64, bool) {
	if content == "" {
		return 0, false
	}
	for i := 0; i < len(content); i++ {
		if content[i] < '0' || content[i] > '9' {
			return 0, false
		}
	}
	n, err := strconv.ParseInt(content, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

func (e *Engine) roleName(ctx context.Context, guildID string) string {
	if cfg, err := e.guildCfg.Get(ctx, guildID); err == nil && cfg.CannotCountRole != "" {
		return cfg.CannotCountRole
	}
	return DefaultCannotCountRole
}

func (e *Engine) punishmentRoleID(ctx context.Context, guildID string) (string, error) {
	if v, ok := e.roleIDs.Load(guildID); ok {
		return v.(string), nil
	}
	id, err := e.client.EnsureRole(ctx, guildID, e.roleName(ctx, guildID))
	if err != nil {
		return "", err
	}
	e.roleIDs.Store(guildID, id)
	return id, nil
}

// HandleMessage applies the counting rules to one message. It reports
// whether the message belonged to a counting channel.
func (e *Engine) HandleMessage(ctx context.Context, msg platform.IncomingMessage) (bool, error) {
	if msg.AuthorBot {
		return false, nil
	}
	value, ok := parseCount(msg.Content)
	if !ok {
		return false, nil
	}

	var handled bool
	err := e.locks.WithLock(msg.ChannelID, func() error {
		state, err := e.repo.Get(ctx, msg.ChannelID)
		if err != nil {
			return errs.Wrap(errs.Internal, "load counting state", err)
		}
		if state == nil {
			return nil
		}
		handled = true
		return e.process(ctx, state, msg, value)
	})
	return handled, err
}

func (e *Engine) process(ctx context.Context, state *models.CountingChannel, msg platform.IncomingMessage, value int64) error {
	roleID, err := e.punishmentRoleID(ctx, msg.GuildID)
	if err == nil {
		if has, hErr := e.client.HasRole(ctx, msg.GuildID, msg.AuthorID, roleID); hErr == nil && has {
			// Silenced counters get their messages removed without
			// touching the state.
			if dErr := e.client.DeleteMessage(ctx, msg.ChannelID, msg.MessageID); dErr != nil {
				slog.Debug("Failed to delete silenced counter's message",
					slog.String("type", "mod"),
					slog.String("channel_id", msg.ChannelID),
					slog.Any("error", dErr))
			}
			return nil
		}
	}

	switch {
	case value == state.LastCount && state.LastCount > 0 && msg.AuthorID != state.LastUser:
		// A duplicate of the number that was just counted: the poster
		// lost the race, not the count. Tally the mistake but keep the
		// chain alive.
		return e.rejectKeepCount(ctx, state, msg)
	case state.LastUser != "" && msg.AuthorID == state.LastUser:
		return e.reject(ctx, state, msg, "You can't count twice in a row! The count resets to 0.")
	case value == state.LastCount+1:
		return e.accept(ctx, state, msg, value)
	default:
		return e.reject(ctx, state, msg,
			fmt.Sprintf("Wrong number! The next count was %d. The count resets to 0.", state.LastCount+1))
	}
}

func (e *Engine) rejectKeepCount(ctx context.Context, state *models.CountingChannel, msg platform.IncomingMessage) error {
	if state.Mistakes == nil {
		state.Mistakes = make(map[string]int64)
	}
	state.Mistakes[msg.AuthorID]++
	if err := e.repo.Save(ctx, state); err != nil {
		return errs.Wrap(errs.Internal, "save counting state", err)
	}
	if err := e.client.React(ctx, msg.ChannelID, msg.MessageID, "❌"); err != nil {
		slog.Debug("Count reaction failed",
			slog.String("type", "sys"),
			slog.String("channel_id", msg.ChannelID),
			slog.Any("error", err))
	}
	return nil
}

func (e *Engine) accept(ctx context.Context, state *models.CountingChannel, msg platform.IncomingMessage, value int64) error {
	state.LastCount = value
	state.LastUser = msg.AuthorID
	if err := e.repo.Save(ctx, state); err != nil {
		return errs.Wrap(errs.Internal, "save counting state", err)
	}
	if err := e.client.React(ctx, msg.ChannelID, msg.MessageID, "✅"); err != nil {
		slog.Debug("Count reaction failed",
			slog.String("type", "sys"),
			slog.String("channel_id", msg.ChannelID),
			slog.Any("error", err))
	}
	return nil
}

func (e *Engine) reject(ctx context.Context, state *models.CountingChannel, msg platform.IncomingMessage, announce string) error {
	if state.Mistakes == nil {
		state.Mistakes = make(map[string]int64)
	}
	state.Mistakes[msg.AuthorID]++
	state.LastCount = 0
	state.LastUser = ""
	if err := e.repo.Save(ctx, state); err != nil {
		return errs.Wrap(errs.Internal, "save counting state", err)
	}

	if err := e.client.React(ctx, msg.ChannelID, msg.MessageID, "❌"); err != nil {
		slog.Debug("Count reaction failed",
			slog.String("type", "sys"),
			slog.String("channel_id", msg.ChannelID),
			slog.Any("error", err))
	}

	if state.Chances != nil {
		remaining := *state.Chances - state.Mistakes[msg.AuthorID]
		if remaining < 0 {
			remaining = 0
		}
		announce = fmt.Sprintf("%s <@%s> has %d chance(s) left.", announce, msg.AuthorID, remaining)
	}
	if _, err := e.client.SendMessage(ctx, msg.ChannelID, platform.Message{Content: announce}); err != nil {
		slog.Debug("Count reset announcement failed",
			slog.String("type", "sys"),
			slog.String("channel_id", msg.ChannelID),
			slog.Any("error", err))
	}

	if state.Chances != nil && state.Mistakes[msg.AuthorID] >= *state.Chances {
		roleID, err := e.punishmentRoleID(ctx, msg.GuildID)
		if err != nil {
			slog.Error("Failed to provision punishment role",
				slog.String("type", "mod"),
				slog.String("guild_id", msg.GuildID),
				slog.Any("error", err))
			return nil
		}
		if err := e.client.AddRole(ctx, msg.GuildID, msg.AuthorID, roleID); err != nil {
			slog.Error("Failed to assign punishment role",
				slog.String("type", "mod"),
				slog.String("guild_id", msg.GuildID),
				slog.String("user_id", msg.AuthorID),
				slog.Any("error", err))
		}
	}
	return nil
}

// Configure enables counting in a channel, or updates its chance limit.
// Existing counts and tallies are preserved. chances nil means
// unlimited mistakes.
func (e *Engine) Configure(ctx context.Context, guildID, channelID string, chances *int64) error {
	if chances != nil && *chances < 1 {
		return errs.New(errs.InvalidArgument, "chances must be at least 1")
	}
	return e.locks.WithLock(channelID, func() error {
		state, err := e.repo.Get(ctx, channelID)
		if err != nil {
			return errs.Wrap(errs.Internal, "load counting state", err)
		}
		if state == nil {
			state = &models.CountingChannel{
				ChannelID: channelID,
				GuildID:   guildID,
				Mistakes:  make(map[string]int64),
			}
		}
		state.Chances = chances
		if err := e.repo.Save(ctx, state); err != nil {
			return errs.Wrap(errs.Internal, "save counting state", err)
		}
		return nil
	})
}

// Disable turns a counting channel back into a normal one.
func (e *Engine) Disable(ctx context.Context, channelID string) error {
	return e.locks.WithLock(channelID, func() error {
		ok, err := e.repo.Delete(ctx, channelID)
		if err != nil {
			return errs.Wrap(errs.Internal, "delete counting state", err)
		}
		if !ok {
			return errs.New(errs.NotFound, "that channel is not a counting channel")
		}
		return nil
	})
}

// State returns the channel's counting state, or NotFound.
func (e *Engine) State(ctx context.Context, channelID string) (*models.CountingChannel, error) {
	state, err := e.repo.Get(ctx, channelID)
	if err != nil {
		return nil, errs.Wrap(errs.Internal, "load counting state", err)
	}
	if state == nil {
		return nil, errs.New(errs.NotFound, "that channel is not a counting channel")
	}
	return state, nil
}
