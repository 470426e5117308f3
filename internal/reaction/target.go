package reaction

import (
	"fmt"
	"strconv"
	"strings"
)

// ChatRef identifies a chat either by numeric id or by public @handle.
// The zero value identifies nothing.
type ChatRef struct {
	id     int64
	handle string
}

func ChatID(id int64) ChatRef {
	return ChatRef{id: id}
}

// ChatHandle builds a handle reference. A missing "@" prefix is added.
func ChatHandle(handle string) ChatRef {
	if !strings.HasPrefix(handle, "@") {
		handle = "@" + handle
	}
	return ChatRef{handle: handle}
}

// ParseChatRef accepts a signed base-10 chat id or an @handle.
func ParseChatRef(s string) (ChatRef, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return ChatRef{}, fmt.Errorf("empty chat reference")
	}
	if strings.HasPrefix(s, "@") {
		if len(s) == 1 {
			return ChatRef{}, fmt.Errorf("empty chat handle")
		}
		return ChatRef{handle: s}, nil
	}
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return ChatRef{}, fmt.Errorf("invalid chat id %q: %w", s, err)
	}
	return ChatRef{id: id}, nil
}

func (c ChatRef) IsHandle() bool { return c.handle != "" }

func (c ChatRef) IsZero() bool { return c.handle == "" && c.id == 0 }

func (c ChatRef) ID() int64 { return c.id }

// String renders the reference the way the Bot API expects chat_id.
func (c ChatRef) String() string {
	if c.handle != "" {
		return c.handle
	}
	return strconv.FormatInt(c.id, 10)
}

// Matches reports whether a chat with the given id and public username is
// the chat this reference points to. Handles compare case-insensitively.
func (c ChatRef) Matches(id int64, username string) bool {
	if c.handle != "" {
		return username != "" && strings.EqualFold(c.handle[1:], username)
	}
	return c.id != 0 && c.id == id
}

// Target is the message a reaction is applied to.
type Target struct {
	Chat      ChatRef
	MessageID int
}

func NewTarget(chat ChatRef, messageID int) Target {
	return Target{Chat: chat, MessageID: messageID}
}

func (t Target) String() string {
	return fmt.Sprintf("%s/%d", t.Chat, t.MessageID)
}

// Request asks every account to set Emoji as its only reaction on Target.
type Request struct {
	Target Target
	Emoji  string
}
