package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/time/rate"

	"github.com/rg/reactor/internal/accounts"
	"github.com/rg/reactor/internal/reaction"
)

const sessionRequestTimeout = 15 * time.Second

type reactionType struct {
	Type  string `json:"type"`
	Emoji string `json:"emoji"`
}

// Session is one authenticated Bot API identity. Calls on a Session run one
// at a time; different Sessions never share state.
type Session struct {
	bot     *tgbotapi.BotAPI
	ident   accounts.Identity
	limiter *rate.Limiter
	sem     chan struct{}
}

// SessionOptions tunes every Session opened from the same configuration.
type SessionOptions struct {
	Options
	// RatePerSec throttles calls client-side. Zero disables throttling.
	RatePerSec int
}

// NewSession authenticates token with getMe and captures the identity.
func NewSession(token string, opts SessionOptions) (*Session, error) {
	bot, err := newBotAPI(token, opts.Options, &http.Client{Timeout: sessionRequestTimeout})
	if err != nil {
		return nil, fmt.Errorf("failed to authenticate telegram session: %w", err)
	}

	s := &Session{
		bot:   bot,
		ident: accounts.Identity{ID: bot.Self.ID, Username: bot.Self.UserName},
		sem:   make(chan struct{}, 1),
	}
	if opts.RatePerSec > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(opts.RatePerSec), opts.RatePerSec)
	}

	slog.Debug("Telegram session authorized", "username", s.ident.Username, "user_id", s.ident.ID)
	return s, nil
}

// Opener adapts NewSession to accounts.Open.
func Opener(opts SessionOptions) accounts.Opener {
	return func(ctx context.Context, token string) (accounts.Session, error) {
		return NewSession(token, opts)
	}
}

func (s *Session) Identity() accounts.Identity {
	return s.ident
}

// SetReaction replaces this identity's reactions on the target message with
// the single given emoji.
func (s *Session) SetReaction(ctx context.Context, target reaction.Target, emoji string) error {
	params := tgbotapi.Params{}
	params["chat_id"] = target.Chat.String()
	params.AddNonZero("message_id", target.MessageID)
	if err := params.AddInterface("reaction", []reactionType{{Type: "emoji", Emoji: emoji}}); err != nil {
		return reaction.NewFailure(reaction.FailureUnknown, fmt.Errorf("failed to encode reaction: %w", err))
	}

	return classify(s.call(ctx, "setMessageReaction", params))
}

// Promote grants userID administrator rights in chat. Only meaningful on a
// session that is itself an administrator allowed to add admins.
func (s *Session) Promote(ctx context.Context, chat reaction.ChatRef, userID int64, rights accounts.Rights) error {
	params := tgbotapi.Params{}
	params["chat_id"] = chat.String()
	params.AddNonZero64("user_id", userID)
	params.AddBool("can_manage_chat", rights.ManageChat)
	params.AddBool("can_post_messages", rights.PostMessages)
	params.AddBool("can_edit_messages", rights.EditMessages)
	params.AddBool("can_delete_messages", rights.DeleteMessages)
	params.AddBool("can_invite_users", rights.InviteUsers)
	params.AddBool("can_pin_messages", rights.PinMessages)

	return classify(s.call(ctx, "promoteChatMember", params))
}

// call serializes requests on this session and returns early when ctx ends.
// The HTTP request itself is bounded by the session's client timeout and
// keeps the session busy until it returns.
func (s *Session) call(ctx context.Context, endpoint string, params tgbotapi.Params) error {
	select {
	case s.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}

	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			<-s.sem
			return err
		}
	}

	done := make(chan error, 1)
	go func() {
		defer func() { <-s.sem }()
		_, err := s.bot.MakeRequest(endpoint, params)
		done <- redactToken(err, s.bot.Token)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
