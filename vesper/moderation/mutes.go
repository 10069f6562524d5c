package moderation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/vesperbot/vesper/vesper/database/models"
	"github.com/vesperbot/vesper/vesper/errs"
	"github.com/vesperbot/vesper/vesper/platform"
)

func unmuteTimerID(guildID, userID string) string {
	return "unmute:" + guildID + "/" + userID
}

// Mute applies the muted role. A positive duration persists an unmute
// schedule and arms its timer; zero means the mute holds until a manual
// unmute.
func (e *Engine) Mute(ctx context.Context, guildID, userID string, duration time.Duration, sourceChannelID string) error {
	roleID, err := e.client.EnsureMutedRole(ctx, guildID)
	if err != nil {
		return errs.Wrap(errs.Upstream, "provision muted role", err)
	}
	if err := e.client.AddRole(ctx, guildID, userID, roleID); err != nil {
		return errs.Wrap(errs.Forbidden, "apply muted role", err)
	}
	if duration <= 0 {
		return nil
	}

	unmuteAt := e.now().Add(duration)
	err = e.mutes.Add(ctx, &models.MuteSchedule{
		GuildID:         guildID,
		UserID:          userID,
		UnmuteAt:        unmuteAt,
		DurationSeconds: int64(duration / time.Second),
		ChannelID:       sourceChannelID,
	})
	if err != nil {
		return errs.Wrap(errs.Internal, "persist unmute schedule", err)
	}
	e.armUnmute(guildID, userID, duration, sourceChannelID)

	slog.Info("Member muted",
		slog.String("type", "mod"),
		slog.String("guild_id", guildID),
		slog.String("user_id", userID),
		slog.Duration("duration", duration))
	return nil
}

func (e *Engine) armUnmute(guildID, userID string, d time.Duration, sourceChannelID string) {
	e.sched.Once(unmuteTimerID(guildID, userID), d, func(ctx context.Context) {
		e.autoUnmute(ctx, guildID, userID, sourceChannelID)
	})
}

// Unmute is the manual path: removes the role if present and drops any
// pending schedule. Safe to call for users who are not muted; it never
// emits the auto-unmute announcement.
func (e *Engine) Unmute(ctx context.Context, guildID, userID string) error {
	e.sched.Cancel(unmuteTimerID(guildID, userID))
	if err := e.mutes.Remove(ctx, guildID, userID); err != nil {
		return errs.Wrap(errs.Internal, "drop unmute schedule", err)
	}
	return e.removeMutedRole(ctx, guildID, userID)
}

func (e *Engine) removeMutedRole(ctx context.Context, guildID, userID string) error {
	roleID, err := e.client.EnsureMutedRole(ctx, guildID)
	if err != nil {
		return errs.Wrap(errs.Upstream, "resolve muted role", err)
	}
	has, err := e.client.HasRole(ctx, guildID, userID, roleID)
	if err != nil {
		return errs.Wrap(errs.Upstream, "check muted role", err)
	}
	if !has {
		return nil
	}
	if err := e.client.RemoveRole(ctx, guildID, userID, roleID); err != nil {
		return errs.Wrap(errs.Forbidden, "remove muted role", err)
	}
	return nil
}

// autoUnmute is the timer path: removes the role, drops the persisted
// entry and announces in the source channel, falling back to any
// postable guild channel.
func (e *Engine) autoUnmute(ctx context.Context, guildID, userID, sourceChannelID string) {
	if err := e.removeMutedRole(ctx, guildID, userID); err != nil {
		slog.Error("Scheduled unmute failed",
			slog.String("type", "mod"),
			slog.String("guild_id", guildID),
			slog.String("user_id", userID),
			slog.Any("error", err))
		return
	}
	if err := e.mutes.Remove(ctx, guildID, userID); err != nil {
		slog.Error("Failed to drop unmute schedule",
			slog.String("type", "mod"),
			slog.String("guild_id", guildID),
			slog.Any("error", err))
	}

	channelID := sourceChannelID
	if channelID == "" || !e.client.CanSend(ctx, channelID) {
		fallback, err := e.client.FallbackChannel(ctx, guildID)
		if err != nil {
			slog.Debug("No channel for unmute announcement",
				slog.String("type", "mod"),
				slog.String("guild_id", guildID))
			return
		}
		channelID = fallback
	}
	text := fmt.Sprintf("<@%s> is no longer muted.", userID)
	if _, err := e.client.SendMessage(ctx, channelID, platform.Message{Content: text}); err != nil {
		slog.Debug("Unmute announcement failed",
			slog.String("type", "mod"),
			slog.String("channel_id", channelID),
			slog.Any("error", err))
	}
	slog.Info("Member unmuted on schedule",
		slog.String("type", "mod"),
		slog.String("guild_id", guildID),
		slog.String("user_id", userID))
}

// RearmSchedules restores unmute timers from the persisted schedule.
// Entries already past due unmute immediately. Called once on startup.
func (e *Engine) RearmSchedules(ctx context.Context) error {
	schedules, err := e.mutes.List(ctx)
	if err != nil {
		return errs.Wrap(errs.Internal, "load unmute schedules", err)
	}
	now := e.now()
	var rearmed, expired int
	for _, s := range schedules {
		if !s.UnmuteAt.After(now) {
			e.autoUnmute(ctx, s.GuildID, s.UserID, s.ChannelID)
			expired++
			continue
		}
		e.armUnmute(s.GuildID, s.UserID, s.UnmuteAt.Sub(now), s.ChannelID)
		rearmed++
	}
	if rearmed > 0 || expired > 0 {
		slog.Info("Unmute schedules restored",
			slog.String("type", "mod"),
			slog.Int("rearmed", rearmed),
			slog.Int("expired", expired))
	}
	return nil
}
