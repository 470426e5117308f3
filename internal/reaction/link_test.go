package reaction

import (
	"errors"
	"testing"
)

func TestParseLink(t *testing.T) {
	tests := []struct {
		name      string
		link      string
		wantChat  string
		wantMsgID int
		wantErr   error
	}{
		{"canonical", "https://t.me/chatterbox_family/123", "@chatterbox_family", 123, nil},
		{"trailing slash", "https://t.me/chatterbox_family/123/", "@chatterbox_family", 123, nil},
		{"query ignored", "https://t.me/news/7?single", "@news", 7, nil},
		{"zero id", "https://t.me/news/0", "@news", 0, nil},
		{"leading zeros", "https://t.me/news/007", "@news", 7, nil},

		{"http scheme", "http://t.me/news/7", "", 0, ErrInvalidLink},
		{"other host", "https://telegram.me/news/7", "", 0, ErrInvalidLink},
		{"subdomain", "https://www.t.me/news/7", "", 0, ErrInvalidLink},
		{"host with port", "https://t.me:443/news/7", "", 0, ErrInvalidLink},
		{"no scheme", "t.me/news/7", "", 0, ErrInvalidLink},
		{"empty", "", "", 0, ErrInvalidLink},
		{"garbage", "%zz", "", 0, ErrInvalidLink},
		{"userinfo", "https://evil@t.me/chatterbox_family/123", "", 0, ErrInvalidLink},
		{"userinfo with password", "https://user:pw@t.me/chatterbox_family/123", "", 0, ErrInvalidLink},
		{"empty userinfo", "https://@t.me/news/7", "", 0, ErrInvalidLink},

		{"no path", "https://t.me", "", 0, ErrMalformedPath},
		{"one segment", "https://t.me/news", "", 0, ErrMalformedPath},
		{"three segments", "https://t.me/c/1234567/89", "", 0, ErrMalformedPath},
		{"empty middle segment", "https://t.me/news//89", "", 0, ErrMalformedPath},
		{"encoded separator", "https://t.me/chatterbox_family%2F123", "", 0, ErrMalformedPath},
		{"encoded separator lowercase", "https://t.me/chatterbox_family%2f123", "", 0, ErrMalformedPath},
		{"encoded handle", "https://t.me/a%2Fb/5", "", 0, ErrMalformedPath},
		{"encoded letter in handle", "https://t.me/new%73/5", "", 0, ErrMalformedPath},

		{"encoded message id", "https://t.me/news/%35", "", 0, ErrInvalidMessageID},

		{"letters", "https://t.me/news/abc", "", 0, ErrInvalidMessageID},
		{"negative", "https://t.me/news/-5", "", 0, ErrInvalidMessageID},
		{"plus sign", "https://t.me/news/+5", "", 0, ErrInvalidMessageID},
		{"decimal", "https://t.me/news/1.5", "", 0, ErrInvalidMessageID},
		{"overflow", "https://t.me/news/99999999999999999999", "", 0, ErrInvalidMessageID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseLink(tt.link)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("ParseLink(%q) error = %v, want %v", tt.link, err, tt.wantErr)
				}
				var perr *ParseError
				if !errors.As(err, &perr) {
					t.Fatalf("error should be *ParseError, got %T", err)
				}
				if perr.Link != tt.link {
					t.Errorf("ParseError.Link = %q, want %q", perr.Link, tt.link)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseLink(%q) unexpected error: %v", tt.link, err)
			}
			if got.Chat.String() != tt.wantChat {
				t.Errorf("chat = %q, want %q", got.Chat.String(), tt.wantChat)
			}
			if !got.Chat.IsHandle() {
				t.Error("parsed chat should be a handle reference")
			}
			if got.MessageID != tt.wantMsgID {
				t.Errorf("message id = %d, want %d", got.MessageID, tt.wantMsgID)
			}
		})
	}
}

func TestLooksLikeLink(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"https://t.me/news/1", true},
		{"https://t.me/", true},
		{"http://t.me/news/1", false},
		{"hello", false},
		{"/react", false},
	}

	for _, tt := range tests {
		if got := LooksLikeLink(tt.in); got != tt.want {
			t.Errorf("LooksLikeLink(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
