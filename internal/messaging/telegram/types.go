package telegram

import (
	"errors"
	"net/http"
	"net/url"
	"strings"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const (
	MaxMessageLength = 4096

	ModePolling = "polling"
	ModeWebhook = "webhook"
)

// Options configures how a client reaches the Bot API.
type Options struct {
	// APIEndpoint is a format string with two %s verbs (token, method).
	// Empty means the public Bot API.
	APIEndpoint string
	HTTPClient  *http.Client
}

func (o Options) endpoint() string {
	if o.APIEndpoint == "" {
		return tgbotapi.APIEndpoint
	}
	return o.APIEndpoint
}

func newBotAPI(token string, opts Options, client *http.Client) (*tgbotapi.BotAPI, error) {
	if opts.HTTPClient != nil {
		client = opts.HTTPClient
	}
	if client == nil {
		client = &http.Client{}
	}
	bot, err := tgbotapi.NewBotAPIWithClient(token, opts.endpoint(), client)
	if err != nil {
		return nil, redactToken(err, token)
	}
	bot.Debug = false
	return bot, nil
}

// redactToken removes token from the request URL carried by transport
// errors, so callers can log them as is.
func redactToken(err error, token string) error {
	var urlErr *url.Error
	if token != "" && errors.As(err, &urlErr) {
		urlErr.URL = strings.ReplaceAll(urlErr.URL, token, "<token>")
	}
	return err
}

// SplitMessage cuts text into chunks of at most maxLength bytes, preferring
// line breaks and never splitting a UTF-8 sequence.
func SplitMessage(text string, maxLength int) []string {
	if len(text) <= maxLength {
		return []string{text}
	}

	var chunks []string
	remaining := text

	for len(remaining) > 0 {
		if len(remaining) <= maxLength {
			chunks = append(chunks, remaining)
			break
		}

		splitIndex := maxLength
		for i := maxLength - 1; i >= maxLength-200 && i > 0; i-- {
			if remaining[i] == '\n' {
				splitIndex = i
				break
			}
		}
		for splitIndex > 0 && !utf8.RuneStart(remaining[splitIndex]) {
			splitIndex--
		}
		if splitIndex == 0 {
			splitIndex = maxLength
		}

		chunks = append(chunks, remaining[:splitIndex])
		remaining = remaining[splitIndex:]
	}

	return chunks
}
