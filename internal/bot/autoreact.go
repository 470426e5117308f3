package bot

import (
	"context"
	"log/slog"

	"github.com/rg/reactor/internal/messaging"
	"github.com/rg/reactor/internal/reaction"
)

func (h *Handler) isMonitored(msg *messaging.IncomingMessage) bool {
	for _, ref := range h.monitored {
		if ref.Matches(msg.ChatID, msg.ChatUsername) {
			return true
		}
	}
	return false
}

// autoReact fans the default emoji out to a new post in a monitored chat.
// The target is addressed by numeric chat id, so a channel renaming its
// handle does not break reactions. Nothing is posted back to the channel.
func (h *Handler) autoReact(ctx context.Context, msg *messaging.IncomingMessage) error {
	req := reaction.Request{
		Target: reaction.NewTarget(reaction.ChatID(msg.ChatID), msg.MessageID),
		Emoji:  h.defaultEmoji,
	}

	slog.Info("New post in monitored chat", "chat_id", msg.ChatID, "message_id", msg.MessageID)

	outcome, err := h.dispatcher.Dispatch(ctx, req)
	if err != nil {
		slog.Error("Auto-react dispatch failed", "chat_id", msg.ChatID, "message_id", msg.MessageID, "error", err)
		return nil
	}

	slog.Info("Auto-react finished",
		"chat_id", msg.ChatID,
		"message_id", msg.MessageID,
		"dispatch_id", outcome.ID,
		"applied", outcome.SuccessCount(),
		"accounts", len(outcome.Results))
	return nil
}
