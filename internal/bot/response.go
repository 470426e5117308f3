package bot

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rg/reactor/internal/accounts"
	"github.com/rg/reactor/internal/provision"
	"github.com/rg/reactor/internal/reaction"
	"github.com/rg/reactor/internal/storage"
)

type ResponseFormatter struct {
	maxLength int
}

func NewResponseFormatter(maxLength int) *ResponseFormatter {
	return &ResponseFormatter{
		maxLength: maxLength,
	}
}

func (rf *ResponseFormatter) Format(text string) string {
	text = strings.TrimSpace(text)

	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	lines := strings.Split(text, "\n")
	var cleaned []string
	for _, line := range lines {
		if strings.TrimSpace(line) != "" || len(cleaned) > 0 {
			cleaned = append(cleaned, line)
		}
	}

	for len(cleaned) > 0 && strings.TrimSpace(cleaned[len(cleaned)-1]) == "" {
		cleaned = cleaned[:len(cleaned)-1]
	}

	return rf.Truncate(strings.Join(cleaned, "\n"))
}

func (rf *ResponseFormatter) FormatError(err error) string {
	return fmt.Sprintf("❌ Error: %v", err)
}

func (rf *ResponseFormatter) FormatSuccess(message string) string {
	return fmt.Sprintf("✅ %s", message)
}

func (rf *ResponseFormatter) FormatWarning(message string) string {
	return fmt.Sprintf("⚠️ %s", message)
}

func (rf *ResponseFormatter) FormatInfo(message string) string {
	return fmt.Sprintf("ℹ️ %s", message)
}

// Truncate cuts text to maxLength bytes without splitting a rune.
func (rf *ResponseFormatter) Truncate(text string) string {
	if rf.maxLength <= 0 || len(text) <= rf.maxLength {
		return text
	}
	cut := rf.maxLength - 3
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut] + "..."
}

func (rf *ResponseFormatter) FormatList(items []string) string {
	var sb strings.Builder
	for i, item := range items {
		sb.WriteString(fmt.Sprintf("%d. %s\n", i+1, item))
	}
	return sb.String()
}

// FormatReactions is the reply to a finished dispatch.
func (rf *ResponseFormatter) FormatReactions(outcome *reaction.Outcome) string {
	return fmt.Sprintf("Added %d reactions with %s!", outcome.SuccessCount(), outcome.Request.Emoji)
}

func (rf *ResponseFormatter) FormatAccounts(identities []accounts.Identity) string {
	if len(identities) == 0 {
		return rf.FormatWarning("No accounts are authenticated.")
	}

	items := make([]string, len(identities))
	for i, ident := range identities {
		items[i] = fmt.Sprintf("%s (id %d)", ident, ident.ID)
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("🤖 Accounts (%d)\n\n", len(identities)))
	sb.WriteString(rf.FormatList(items))
	return rf.Format(sb.String())
}

// FormatProvision summarizes a provisioning run. Accounts skipped because
// they were already granted count as provisioned.
func (rf *ResponseFormatter) FormatProvision(report *provision.Report) string {
	granted := report.Count(provision.StatusGranted)
	skipped := report.Count(provision.StatusSkipped)

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Provisioned %d of %d accounts in %s", granted+skipped, len(report.Results), report.Chat))
	if skipped > 0 {
		sb.WriteString(fmt.Sprintf(" (%d already granted)", skipped))
	}
	sb.WriteString("\n")

	var failed []string
	for _, res := range report.Results {
		if res.Status != provision.StatusFailed {
			continue
		}
		kind := reaction.FailureUnknown
		if f := reaction.AsFailure(res.Err); f != nil {
			kind = f.Kind
		}
		failed = append(failed, fmt.Sprintf("%s: %s", res.Identity, kind))
	}
	if len(failed) > 0 {
		sb.WriteString("\nFailed:\n")
		sb.WriteString(rf.FormatList(failed))
	}
	if report.RunID != "" {
		sb.WriteString(fmt.Sprintf("\nRun: %s\n", report.RunID))
	}

	return rf.Format(sb.String())
}

func (rf *ResponseFormatter) FormatGrants(chat reaction.ChatRef, grants []*storage.Grant) string {
	if len(grants) == 0 {
		return rf.FormatInfo(fmt.Sprintf("No grants recorded for %s.", chat))
	}

	items := make([]string, len(grants))
	for i, g := range grants {
		name := strconv.FormatInt(g.UserID, 10)
		if g.Username != "" {
			name = fmt.Sprintf("@%s (id %d)", g.Username, g.UserID)
		}
		items[i] = fmt.Sprintf("%s, %s, run %s", name, g.CreatedAt.UTC().Format(time.DateTime), g.RunID)
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("📋 Grants in %s (%d)\n\n", chat, len(grants)))
	sb.WriteString(rf.FormatList(items))
	return rf.Format(sb.String())
}

func (rf *ResponseFormatter) FormatRun(run *storage.Run) string {
	return rf.Format(fmt.Sprintf(
		"Run %s\nChat: %s\nRequested by: %d\nAt: %s UTC\nGranted: %d, skipped: %d, failed: %d",
		run.ID, run.Chat, run.RequestedBy, run.CreatedAt.UTC().Format(time.DateTime),
		run.Granted, run.Skipped, run.Failed))
}
