package reaction

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

const (
	linkScheme = "https"
	linkHost   = "t.me"
)

var (
	ErrInvalidLink      = errors.New("invalid link")
	ErrMalformedPath    = errors.New("malformed link path")
	ErrInvalidMessageID = errors.New("invalid message id")
)

// ParseError is returned by ParseLink. Kind is one of the Err* sentinels
// above, so callers can match it with errors.Is.
type ParseError struct {
	Kind error
	Link string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%v: %q", e.Kind, e.Link)
}

func (e *ParseError) Unwrap() error {
	return e.Kind
}

// ParseLink turns a public message permalink such as
// https://t.me/channel/123 into a Target addressed by @channel.
func ParseLink(link string) (Target, error) {
	u, err := url.Parse(link)
	if err != nil || u.Scheme != linkScheme || u.User != nil || u.Host != linkHost {
		return Target{}, &ParseError{Kind: ErrInvalidLink, Link: link}
	}

	// Split the path as written: an escaped "/" is not a separator, and
	// no percent-encoding is valid inside a handle or message id.
	segments := strings.Split(strings.Trim(u.EscapedPath(), "/"), "/")
	if len(segments) != 2 || segments[0] == "" || segments[1] == "" ||
		strings.Contains(segments[0], "%") {
		return Target{}, &ParseError{Kind: ErrMalformedPath, Link: link}
	}

	// ParseUint rejects signs, unlike Atoi.
	id, err := strconv.ParseUint(segments[1], 10, 31)
	if err != nil {
		return Target{}, &ParseError{Kind: ErrInvalidMessageID, Link: link}
	}

	return Target{
		Chat:      ChatHandle(segments[0]),
		MessageID: int(id),
	}, nil
}

// LooksLikeLink is a cheap pre-check used to route bare messages to the
// link parser.
func LooksLikeLink(s string) bool {
	return strings.HasPrefix(s, linkScheme+"://"+linkHost+"/")
}
