package handlers

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/disgoorg/disgo/handler"

	"github.com/vesperbot/vesper/vesper/config"
)

// WrapWithLogging wraps a command handler with start/finish logging and
// a hard execution timeout.
func WrapWithLogging(name string, h handler.CommandHandler) handler.CommandHandler {
	return func(e *handler.CommandEvent) error {
		start := time.Now()

		slog.Info("Command started",
			slog.String("type", "cmd"),
			slog.String("name", name),
			slog.String("user_id", e.User().ID.String()),
			slog.String("user_name", e.User().Username),
			slog.String("guild_id", guildIDString(e)),
			slog.String("channel_id", e.ChannelID().String()),
		)

		done := make(chan error, 1)
		go func() {
			done <- h(e)
		}()

		select {
		case err := <-done:
			duration := time.Since(start)

			attrs := []any{
				slog.String("type", "cmd"),
				slog.String("name", name),
				slog.String("user_id", e.User().ID.String()),
				slog.String("user_name", e.User().Username),
				slog.Duration("took", duration),
			}

			if err != nil {
				slog.Error("Command failed", append(attrs,
					slog.Any("error", err),
					slog.String("status", "failed"),
				)...)
			} else if duration > 2*time.Second {
				slog.Warn("Command executed slowly", append(attrs,
					slog.String("status", "slow"),
				)...)
			} else {
				slog.Info("Command completed", append(attrs,
					slog.String("status", "success"),
				)...)
			}
			return err

		case <-time.After(config.CommandExecutionTimeout):
			slog.Error("Command timed out",
				slog.String("type", "cmd"),
				slog.String("name", name),
				slog.String("user_id", e.User().ID.String()),
				slog.String("status", "timeout"),
				slog.Duration("timeout", config.CommandExecutionTimeout),
			)
			return fmt.Errorf("command timed out after %s", config.CommandExecutionTimeout)
		}
	}
}

// WrapComponentWithLogging wraps a component handler with the same
// logging and timeout treatment.
func WrapComponentWithLogging(name string, h handler.ComponentHandler) handler.ComponentHandler {
	return func(e *handler.ComponentEvent) error {
		start := time.Now()

		slog.Info("Component interaction started",
			slog.String("type", "component"),
			slog.String("name", name),
			slog.String("user_id", e.User().ID.String()),
			slog.String("user_name", e.User().Username),
		)

		done := make(chan error, 1)
		go func() {
			done <- h(e)
		}()

		select {
		case err := <-done:
			duration := time.Since(start)

			attrs := []any{
				slog.String("type", "component"),
				slog.String("name", name),
				slog.String("user_id", e.User().ID.String()),
				slog.Duration("took", duration),
			}

			if err != nil {
				slog.Error("Component interaction failed", append(attrs,
					slog.Any("error", err),
					slog.String("status", "failed"),
				)...)
			} else {
				slog.Info("Component interaction completed", append(attrs,
					slog.String("status", "success"),
				)...)
			}
			return err

		case <-time.After(config.CommandExecutionTimeout):
			slog.Error("Component interaction timed out",
				slog.String("type", "component"),
				slog.String("name", name),
				slog.String("user_id", e.User().ID.String()),
				slog.String("status", "timeout"),
			)
			return fmt.Errorf("component interaction timed out after %s", config.CommandExecutionTimeout)
		}
	}
}

func guildIDString(e *handler.CommandEvent) string {
	if id := e.GuildID(); id != nil {
		return id.String()
	}
	return ""
}
