package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/rg/reactor/internal/messaging"
)

// ListenerOptions selects how updates reach the bot.
type ListenerOptions struct {
	Options
	Mode       string // ModePolling or ModeWebhook
	ListenAddr string // serves /healthz, and the webhook in webhook mode
	WebhookURL string
}

// Client receives updates for the primary account and sends replies.
type Client struct {
	bot  *tgbotapi.BotAPI
	opts ListenerOptions

	server   *http.Server
	done     chan struct{}
	stopOnce sync.Once
	handlers sync.WaitGroup
}

func NewClient(token string, opts ListenerOptions) (*Client, error) {
	bot, err := newBotAPI(token, opts.Options, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}

	slog.Info("Authorized on Telegram account", "username", bot.Self.UserName)

	return &Client{
		bot:  bot,
		opts: opts,
		done: make(chan struct{}),
	}, nil
}

func (c *Client) Username() string {
	return c.bot.Self.UserName
}

// SendMessage sends plain text. Handles and usage strings are full of
// underscores, which Markdown would treat as entities.
func (c *Client) SendMessage(msg *messaging.OutgoingMessage) error {
	for i, chunk := range SplitMessage(msg.Text, MaxMessageLength) {
		out := tgbotapi.NewMessage(msg.ChatID, chunk)
		if i == 0 {
			out.ReplyToMessageID = msg.ReplyToMessageID
		}
		if _, err := c.bot.Send(out); err != nil {
			return fmt.Errorf("failed to send message: %w", redactToken(err, c.bot.Token))
		}
	}
	return nil
}

// Start delivers updates to handler until ctx ends or Stop is called. Each
// update is handled on its own goroutine; Start waits for in-flight
// handlers before returning.
func (c *Client) Start(ctx context.Context, handler messaging.MessageHandler) error {
	var updates <-chan tgbotapi.Update
	var err error

	if c.opts.Mode == ModeWebhook {
		updates, err = c.startWebhook()
	} else {
		updates, err = c.startPolling()
	}
	if err != nil {
		return err
	}
	if c.opts.Mode != ModeWebhook && c.opts.ListenAddr != "" {
		c.serve(http.NewServeMux())
	}

	slog.Info("Telegram bot started, listening for messages", "mode", c.mode(), "listen_addr", c.opts.ListenAddr)

	defer c.handlers.Wait()
	for {
		select {
		case <-ctx.Done():
			c.Stop()
			return nil
		case <-c.done:
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			msg := convertUpdate(update)
			if msg == nil {
				continue
			}
			c.handlers.Add(1)
			go func() {
				defer c.handlers.Done()
				if err := handler(ctx, msg); err != nil {
					slog.Error("Error handling message", "chat_id", msg.ChatID, "error", err)
				}
			}()
		}
	}
}

func (c *Client) Stop() {
	c.stopOnce.Do(func() {
		close(c.done)
		if c.opts.Mode != ModeWebhook {
			c.bot.StopReceivingUpdates()
		}
		if c.server != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := c.server.Shutdown(ctx); err != nil {
				slog.Warn("Failed to shut down http server", "error", err)
			}
		}
	})
}

func (c *Client) mode() string {
	if c.opts.Mode == ModeWebhook {
		return ModeWebhook
	}
	return ModePolling
}

func (c *Client) startPolling() (<-chan tgbotapi.Update, error) {
	if _, err := c.bot.Request(tgbotapi.DeleteWebhookConfig{}); err != nil {
		return nil, fmt.Errorf("failed to remove webhook: %w", redactToken(err, c.bot.Token))
	}

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	u.AllowedUpdates = []string{"message", "channel_post"}

	return c.bot.GetUpdatesChan(u), nil
}

func (c *Client) startWebhook() (<-chan tgbotapi.Update, error) {
	if c.opts.WebhookURL == "" || c.opts.ListenAddr == "" {
		return nil, errors.New("webhook mode requires webhook_url and listen_addr")
	}
	hookURL, err := url.Parse(c.opts.WebhookURL)
	if err != nil {
		return nil, fmt.Errorf("invalid webhook url: %w", err)
	}

	wh, err := tgbotapi.NewWebhook(c.opts.WebhookURL)
	if err != nil {
		return nil, fmt.Errorf("invalid webhook url: %w", err)
	}
	wh.AllowedUpdates = []string{"message", "channel_post"}
	if _, err := c.bot.Request(wh); err != nil {
		return nil, fmt.Errorf("failed to register webhook: %w", redactToken(err, c.bot.Token))
	}

	updates := make(chan tgbotapi.Update, 100)
	path := hookURL.Path
	if path == "" {
		path = "/"
	}

	mux := http.NewServeMux()
	mux.HandleFunc(path, c.webhookHandler(updates))
	c.serve(mux)

	return updates, nil
}

func (c *Client) webhookHandler(updates chan<- tgbotapi.Update) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		update, err := c.bot.HandleUpdate(r)
		if err != nil {
			slog.Warn("Rejected webhook request", "error", err)
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		select {
		case updates <- *update:
			w.WriteHeader(http.StatusOK)
		case <-c.done:
			http.Error(w, "shutting down", http.StatusServiceUnavailable)
		case <-r.Context().Done():
		}
	}
}

func (c *Client) serve(mux *http.ServeMux) {
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	c.server = &http.Server{
		Addr:              c.opts.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := c.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server stopped", "addr", c.opts.ListenAddr, "error", err)
		}
	}()
}

func convertUpdate(update tgbotapi.Update) *messaging.IncomingMessage {
	switch {
	case update.Message != nil:
		return convertMessage(update.Message, false)
	case update.ChannelPost != nil:
		return convertMessage(update.ChannelPost, true)
	default:
		return nil
	}
}

func convertMessage(tgMsg *tgbotapi.Message, channelPost bool) *messaging.IncomingMessage {
	msg := &messaging.IncomingMessage{
		MessageID:     tgMsg.MessageID,
		Text:          tgMsg.Text,
		Timestamp:     time.Unix(int64(tgMsg.Date), 0),
		IsChannelPost: channelPost,
	}
	if msg.Text == "" {
		msg.Text = tgMsg.Caption
	}
	if tgMsg.Chat != nil {
		msg.ChatID = tgMsg.Chat.ID
		msg.ChatType = convertChatType(tgMsg.Chat.Type)
		msg.ChatUsername = tgMsg.Chat.UserName
	}
	// Channel posts carry no sender.
	if tgMsg.From != nil {
		msg.From = messaging.User{
			ID:        tgMsg.From.ID,
			Username:  tgMsg.From.UserName,
			FirstName: tgMsg.From.FirstName,
			LastName:  tgMsg.From.LastName,
		}
	}
	return msg
}

func convertChatType(tgType string) messaging.ChatType {
	switch tgType {
	case "private":
		return messaging.ChatTypePrivate
	case "group", "supergroup":
		return messaging.ChatTypeGroup
	case "channel":
		return messaging.ChatTypeChannel
	default:
		return messaging.ChatTypePrivate
	}
}
