package utils

import (
	"fmt"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/handler"

	"github.com/vesperbot/vesper/vesper/config"
	"github.com/vesperbot/vesper/vesper/errs"
)

// ResponseHandler provides standardized response methods for commands
// and components.
type ResponseHandler struct{}

var EH = &ResponseHandler{}

// errorPrefix returns the emoji prefix for an error kind.
func errorPrefix(kind errs.Kind) string {
	switch kind {
	case errs.InvalidArgument:
		return "⚠️"
	case errs.InsufficientFunds, errs.Conflict:
		return "⏰"
	case errs.NotFound:
		return "🔍"
	case errs.Forbidden:
		return "🚫"
	case errs.Upstream:
		return "📡"
	default:
		return "🔧"
	}
}

func errorColor(kind errs.Kind) int {
	switch kind {
	case errs.InvalidArgument, errs.InsufficientFunds, errs.Conflict:
		return config.WarningColor
	case errs.NotFound:
		return config.InfoColor
	default:
		return config.ErrorColor
	}
}

// CreateKindError renders a domain error as an ephemeral embed using
// its kind for color and prefix. Internal errors get a generic message
// so internals never leak into chat.
func (h *ResponseHandler) CreateKindError(event *handler.CommandEvent, err error) error {
	kind := errs.KindOf(err)
	message := errs.Message(err)
	if kind == errs.Internal || message == "" {
		message = "Something went wrong. Please try again later."
	}
	return event.CreateMessage(discord.MessageCreate{
		Embeds: []discord.Embed{{
			Description: errorPrefix(kind) + " " + message,
			Color:       errorColor(kind),
		}},
		Flags: discord.MessageFlagEphemeral,
	})
}

// CreateErrorEmbed creates a standard error embed for command events.
func (h *ResponseHandler) CreateErrorEmbed(event *handler.CommandEvent, message string) error {
	return event.CreateMessage(discord.MessageCreate{
		Embeds: []discord.Embed{{
			Description: message,
			Color:       config.ErrorColor,
		}},
	})
}

// CreateSuccessEmbed creates a standard success embed for command events.
func (h *ResponseHandler) CreateSuccessEmbed(event *handler.CommandEvent, message string) error {
	return event.CreateMessage(discord.MessageCreate{
		Embeds: []discord.Embed{{
			Description: message,
			Color:       config.SuccessColor,
		}},
	})
}

// CreateInfoEmbed creates a standard info embed for command events.
func (h *ResponseHandler) CreateInfoEmbed(event *handler.CommandEvent, message string) error {
	return event.CreateMessage(discord.MessageCreate{
		Embeds: []discord.Embed{{
			Description: message,
			Color:       config.InfoColor,
		}},
	})
}

// CreateEphemeralError creates an ephemeral error message for component
// events.
func (h *ResponseHandler) CreateEphemeralError(event *handler.ComponentEvent, message string) error {
	return event.CreateMessage(discord.MessageCreate{
		Content: "❌ " + message,
		Flags:   discord.MessageFlagEphemeral,
	})
}

// CreateEphemeralKindError renders a domain error for component events.
func (h *ResponseHandler) CreateEphemeralKindError(event *handler.ComponentEvent, err error) error {
	kind := errs.KindOf(err)
	message := errs.Message(err)
	if kind == errs.Internal || message == "" {
		message = "Something went wrong. Please try again later."
	}
	return h.CreateEphemeralError(event, message)
}

// HandleError provides centralized error handling for different event
// types.
func (h *ResponseHandler) HandleError(event interface{}, err error) error {
	switch e := event.(type) {
	case *handler.CommandEvent:
		return h.CreateKindError(e, err)
	case *handler.ComponentEvent:
		return h.CreateEphemeralKindError(e, err)
	default:
		return fmt.Errorf("unsupported event type for error handling")
	}
}
