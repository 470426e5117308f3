package telegram

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/url"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/rg/reactor/internal/reaction"
)

// Bot API descriptions that mean the chat or message is not visible to the
// calling identity.
var notFoundMarkers = []string{
	"not found",
	"message_id_invalid",
	"peer_id_invalid",
	"channel_invalid",
	"chat_invalid",
}

// Descriptions that mean the identity lacks rights in the chat.
var forbiddenMarkers = []string{
	"not enough rights",
	"chat_admin_required",
	"have no rights",
	"not a member",
	"bot was kicked",
	"user_not_participant",
}

func classify(err error) error {
	if err == nil {
		return nil
	}

	var apiErr *tgbotapi.Error
	if errors.As(err, &apiErr) {
		return reaction.NewFailure(apiFailureKind(apiErr), err)
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return reaction.NewFailure(reaction.FailureTransport, err)
	}

	var urlErr *url.Error
	var netErr net.Error
	if errors.As(err, &urlErr) || errors.As(err, &netErr) {
		return reaction.NewFailure(reaction.FailureTransport, err)
	}

	return reaction.NewFailure(reaction.FailureUnknown, err)
}

func apiFailureKind(e *tgbotapi.Error) reaction.FailureKind {
	if e.Code == http.StatusTooManyRequests || e.RetryAfter > 0 {
		return reaction.FailureRateLimited
	}

	switch e.Code {
	case http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
		// 401 and 404 come back for revoked tokens.
		return reaction.FailureUnauthorized
	}

	desc := strings.ToLower(e.Message)
	for _, m := range forbiddenMarkers {
		if strings.Contains(desc, m) {
			return reaction.FailureUnauthorized
		}
	}
	for _, m := range notFoundMarkers {
		if strings.Contains(desc, m) {
			return reaction.FailureNotFound
		}
	}

	if e.Code >= http.StatusInternalServerError {
		return reaction.FailureTransport
	}
	return reaction.FailureUnknown
}
