package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/rg/reactor/internal/accounts"
	"github.com/rg/reactor/internal/dispatch"
	"github.com/rg/reactor/internal/messaging"
	"github.com/rg/reactor/internal/provision"
	"github.com/rg/reactor/internal/reaction"
	"github.com/rg/reactor/internal/storage"
)

const (
	// maxTelegramMessageLen is Telegram's maximum message length
	maxTelegramMessageLen = 4000
	// maxCommandSize bounds the text the router is willing to parse
	maxCommandSize = 1000
)

type Dispatcher interface {
	Dispatch(ctx context.Context, req reaction.Request) (*reaction.Outcome, error)
}

type Provisioner interface {
	Provision(ctx context.Context, chat reaction.ChatRef, requestedBy int64, force bool) (*provision.Report, error)
	Grants(chat reaction.ChatRef) ([]*storage.Grant, error)
	Forget(chat reaction.ChatRef, userID int64) error
	Run(id string) (*storage.Run, error)
}

// Options holds the startup settings the handler reads but never changes.
type Options struct {
	DefaultEmoji      string
	AllowedChatIDs    []string
	AdminUserIDs      []string
	MonitoredChannels []reaction.ChatRef
}

type Handler struct {
	platform    messaging.Platform
	dispatcher  Dispatcher
	provisioner Provisioner
	identities  []accounts.Identity
	formatter   *ResponseFormatter

	defaultEmoji   string
	allowedChatIDs map[string]bool
	adminIDs       map[string]bool
	monitored      []reaction.ChatRef
}

// NewHandler builds the command router. provisioner may be nil, which
// disables /provision, /grants and /run. When opts.AdminUserIDs is empty the whitelist is
// also the admin list.
func NewHandler(
	platform messaging.Platform,
	dispatcher Dispatcher,
	provisioner Provisioner,
	identities []accounts.Identity,
	opts Options,
) *Handler {
	// Build allowed chat IDs map for O(1) lookup
	allowedMap := make(map[string]bool)
	for _, chatID := range opts.AllowedChatIDs {
		allowedMap[strings.TrimSpace(chatID)] = true
	}

	adminMap := make(map[string]bool)
	adminIDs := opts.AdminUserIDs
	if len(adminIDs) == 0 {
		adminIDs = opts.AllowedChatIDs
	}
	for _, id := range adminIDs {
		adminMap[strings.TrimSpace(id)] = true
	}

	ids := make([]accounts.Identity, len(identities))
	copy(ids, identities)

	return &Handler{
		platform:       platform,
		dispatcher:     dispatcher,
		provisioner:    provisioner,
		identities:     ids,
		formatter:      NewResponseFormatter(maxTelegramMessageLen),
		defaultEmoji:   opts.DefaultEmoji,
		allowedChatIDs: allowedMap,
		adminIDs:       adminMap,
		monitored:      append([]reaction.ChatRef(nil), opts.MonitoredChannels...),
	}
}

func (h *Handler) HandleMessage(ctx context.Context, msg *messaging.IncomingMessage) error {
	if h.isMonitored(msg) {
		return h.autoReact(ctx, msg)
	}
	if msg.IsChannelPost {
		return nil
	}

	slog.Info("Received message",
		"chat_id", msg.ChatID,
		"user_id", msg.From.ID,
		"text", truncateText(msg.Text, 100))

	// Check whitelist - can contain both user IDs and chat/group IDs
	if !h.isAllowed(msg) {
		slog.Warn("Ignoring non-whitelisted message",
			"chat_id", msg.ChatID,
			"user_id", msg.From.ID)
		return h.reply(msg, "🚫 Access denied. This bot is restricted to authorized users only.")
	}

	if len(msg.Text) > maxCommandSize {
		slog.Warn("Message too large", "chat_id", msg.ChatID, "size", len(msg.Text), "max", maxCommandSize)
		return h.reply(msg, h.formatter.FormatWarning(
			fmt.Sprintf("Message too long (%d characters). Maximum is %d characters.", len(msg.Text), maxCommandSize)))
	}

	fields := strings.Fields(msg.Text)
	if len(fields) == 0 {
		return nil
	}

	// A bare permalink behaves like /react <link> [emoji].
	if reaction.LooksLikeLink(fields[0]) {
		return h.handleReactCommand(ctx, msg, fields)
	}

	if !strings.HasPrefix(fields[0], "/") {
		if msg.ChatType == messaging.ChatTypePrivate {
			return h.reply(msg, h.formatter.FormatInfo("Send me a message link, or use /help to see the commands."))
		}
		return nil
	}

	cmd, args := commandName(fields[0]), fields[1:]
	switch cmd {
	case "/start", "/help":
		return h.reply(msg, getHelpText(h.defaultEmoji))
	case "/react":
		return h.handleReactCommand(ctx, msg, args)
	case "/accounts":
		return h.handleAccountsCommand(msg)
	case "/provision":
		return h.handleProvisionCommand(ctx, msg, args)
	case "/grants":
		return h.handleGrantsCommand(msg, args)
	case "/run":
		return h.handleRunCommand(msg, args)
	default:
		// Unknown slash command - return helpful message
		return h.reply(msg, fmt.Sprintf("❓ Unknown command: %s\n\n%s", cmd, commandList))
	}
}

func (h *Handler) handleReactCommand(ctx context.Context, msg *messaging.IncomingMessage, args []string) error {
	req, err := h.parseReactArgs(args)
	if err != nil {
		slog.Info("Rejected /react arguments", "chat_id", msg.ChatID, "error", err)
		var perr *reaction.ParseError
		if errors.As(err, &perr) {
			return h.reply(msg, h.formatter.FormatError(err))
		}
		return h.reply(msg, fmt.Sprintf("%s\n\n%s", h.formatter.FormatWarning(err.Error()), reactUsage))
	}

	slog.Info("Processing /react command", "chat_id", msg.ChatID, "target", req.Target.String(), "emoji", req.Emoji)

	outcome, err := h.dispatcher.Dispatch(ctx, req)
	if err != nil {
		slog.Error("Dispatch failed", "chat_id", msg.ChatID, "target", req.Target.String(), "error", err)
		if errors.Is(err, dispatch.ErrCancelled) {
			return h.reply(msg, h.formatter.FormatError(errors.New("reaction dispatch was cancelled before every account answered")))
		}
		return h.reply(msg, h.formatter.FormatError(err))
	}

	return h.reply(msg, h.formatter.FormatReactions(outcome))
}

// parseReactArgs accepts "<link> [emoji]" or "<chat_id|@handle> <message_id> <emoji>".
func (h *Handler) parseReactArgs(args []string) (reaction.Request, error) {
	switch len(args) {
	case 1, 2:
		target, err := reaction.ParseLink(args[0])
		if err != nil {
			return reaction.Request{}, err
		}
		emoji := h.defaultEmoji
		if len(args) == 2 {
			emoji = args[1]
		}
		return reaction.Request{Target: target, Emoji: emoji}, nil
	case 3:
		chat, err := reaction.ParseChatRef(args[0])
		if err != nil {
			return reaction.Request{}, err
		}
		id, err := strconv.ParseUint(args[1], 10, 31)
		if err != nil {
			return reaction.Request{}, fmt.Errorf("invalid message id %q", args[1])
		}
		return reaction.Request{Target: reaction.NewTarget(chat, int(id)), Emoji: args[2]}, nil
	default:
		return reaction.Request{}, fmt.Errorf("expected a link or a chat id and message id")
	}
}

func (h *Handler) handleAccountsCommand(msg *messaging.IncomingMessage) error {
	slog.Info("Processing /accounts command", "chat_id", msg.ChatID)
	return h.reply(msg, h.formatter.FormatAccounts(h.identities))
}

func (h *Handler) handleProvisionCommand(ctx context.Context, msg *messaging.IncomingMessage, args []string) error {
	slog.Info("Processing /provision command", "chat_id", msg.ChatID, "user_id", msg.From.ID)

	if denial, ok := h.checkAdmin(msg, "/provision"); !ok {
		return h.reply(msg, denial)
	}

	if len(args) == 0 || len(args) > 2 || (len(args) == 2 && args[1] != "force") {
		return h.reply(msg, provisionUsage)
	}
	chat, err := reaction.ParseChatRef(args[0])
	if err != nil {
		return h.reply(msg, fmt.Sprintf("%s\n\n%s", h.formatter.FormatWarning(err.Error()), provisionUsage))
	}
	force := len(args) == 2

	report, err := h.provisioner.Provision(ctx, chat, msg.From.ID, force)
	if err != nil {
		slog.Error("Provisioning failed", "chat_id", msg.ChatID, "channel", chat.String(), "error", err)
		return h.reply(msg, h.formatter.FormatError(err))
	}

	return h.reply(msg, h.formatter.FormatProvision(report))
}

// handleGrantsCommand lists the ledger for a chat, or with "forget <user_id>"
// drops one entry so the next /provision promotes that account again.
func (h *Handler) handleGrantsCommand(msg *messaging.IncomingMessage, args []string) error {
	slog.Info("Processing /grants command", "chat_id", msg.ChatID, "user_id", msg.From.ID)

	if denial, ok := h.checkAdmin(msg, "/grants"); !ok {
		return h.reply(msg, denial)
	}

	if len(args) != 1 && (len(args) != 3 || args[1] != "forget") {
		return h.reply(msg, grantsUsage)
	}
	chat, err := reaction.ParseChatRef(args[0])
	if err != nil {
		return h.reply(msg, fmt.Sprintf("%s\n\n%s", h.formatter.FormatWarning(err.Error()), grantsUsage))
	}

	if len(args) == 3 {
		userID, err := strconv.ParseInt(args[2], 10, 64)
		if err != nil {
			return h.reply(msg, fmt.Sprintf("%s\n\n%s", h.formatter.FormatWarning(fmt.Sprintf("invalid user id %q", args[2])), grantsUsage))
		}
		if err := h.provisioner.Forget(chat, userID); err != nil {
			slog.Error("Failed to forget grant", "channel", chat.String(), "user_id", userID, "error", err)
			return h.reply(msg, h.formatter.FormatError(err))
		}
		return h.reply(msg, h.formatter.FormatSuccess(
			fmt.Sprintf("Forgot grant for %d in %s. The next /provision will promote it again.", userID, chat)))
	}

	grants, err := h.provisioner.Grants(chat)
	if err != nil {
		slog.Error("Failed to list grants", "channel", chat.String(), "error", err)
		return h.reply(msg, h.formatter.FormatError(err))
	}
	return h.reply(msg, h.formatter.FormatGrants(chat, grants))
}

func (h *Handler) handleRunCommand(msg *messaging.IncomingMessage, args []string) error {
	slog.Info("Processing /run command", "chat_id", msg.ChatID, "user_id", msg.From.ID)

	if denial, ok := h.checkAdmin(msg, "/run"); !ok {
		return h.reply(msg, denial)
	}
	if len(args) != 1 {
		return h.reply(msg, runUsage)
	}

	run, err := h.provisioner.Run(args[0])
	if err != nil {
		slog.Error("Failed to load provision run", "run_id", args[0], "error", err)
		return h.reply(msg, h.formatter.FormatError(err))
	}
	if run == nil {
		return h.reply(msg, h.formatter.FormatWarning(fmt.Sprintf("No provisioning run %s.", args[0])))
	}
	return h.reply(msg, h.formatter.FormatRun(run))
}

// checkAdmin gates the provisioning commands. On refusal it returns the
// reply to send.
func (h *Handler) checkAdmin(msg *messaging.IncomingMessage, cmd string) (string, bool) {
	if h.provisioner == nil {
		return h.formatter.FormatInfo("Provisioning is disabled: no admin token is configured."), false
	}
	if !h.adminIDs[strconv.FormatInt(msg.From.ID, 10)] {
		slog.Warn("Non-admin attempted "+cmd, "chat_id", msg.ChatID, "user_id", msg.From.ID)
		return "🚫 Only administrators can manage provisioning.", false
	}
	return "", true
}

func (h *Handler) isAllowed(msg *messaging.IncomingMessage) bool {
	if len(h.allowedChatIDs) == 0 {
		return true
	}
	return h.allowedChatIDs[strconv.FormatInt(msg.ChatID, 10)] ||
		h.allowedChatIDs[strconv.FormatInt(msg.From.ID, 10)]
}

func (h *Handler) reply(msg *messaging.IncomingMessage, text string) error {
	if err := h.platform.SendMessage(&messaging.OutgoingMessage{
		ChatID:           msg.ChatID,
		Text:             text,
		ReplyToMessageID: msg.MessageID,
	}); err != nil {
		return fmt.Errorf("failed to send reply: %w", err)
	}
	return nil
}

// commandName strips the "@botname" suffix Telegram appends in groups.
func commandName(word string) string {
	if i := strings.IndexByte(word, '@'); i > 0 {
		word = word[:i]
	}
	return strings.ToLower(word)
}

func truncateText(text string, maxLen int) string {
	if len(text) <= maxLen {
		return text
	}
	return text[:maxLen] + "..."
}

const reactUsage = `Usage:
/react <link> [emoji]
/react <chat_id|@channel> <message_id> <emoji>

Example: /react https://t.me/channel/123 👍`

const provisionUsage = `Usage: /provision <chat_id|@channel> [force]`

const grantsUsage = `Usage:
/grants <chat_id|@channel>
/grants <chat_id|@channel> forget <user_id>`

const runUsage = `Usage: /run <run_id>`

const commandList = `Available commands:
/react - React to a message from every account
/accounts - List the reacting accounts
/provision - Grant the accounts admin rights in a channel
/grants - Show or forget recorded grants for a channel
/run - Show a provisioning run
/help - Show help message`

func getHelpText(defaultEmoji string) string {
	return fmt.Sprintf(`🤖 Reactor Bot

Send me a message link and every account will react to it.

%s

💡 Usage Tips
• A bare link uses the default emoji (%s)
• Links look like https://t.me/channel/123
• Accounts need admin rights in the channel, see /provision`, commandList, defaultEmoji) + "\n\n" + reactUsage
}
