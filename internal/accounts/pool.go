package accounts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/rg/reactor/internal/reaction"
)

// ErrNoAccounts is returned by Open when no credential authenticated.
var ErrNoAccounts = errors.New("no account authenticated")

// Reactor sets the calling identity's reaction on a message. The call
// replaces any reaction previously set by the same identity.
type Reactor interface {
	SetReaction(ctx context.Context, target reaction.Target, emoji string) error
}

// Identity is the platform user behind an account.
type Identity struct {
	ID       int64
	Username string
}

func (i Identity) String() string {
	if i.Username != "" {
		return "@" + i.Username
	}
	return strconv.FormatInt(i.ID, 10)
}

// Session is an authenticated client owned by exactly one Account.
type Session interface {
	Reactor
	Identity() Identity
}

// Account never changes after Open returns.
type Account struct {
	index   int
	ident   Identity
	session Session
}

// Index is the position of the account's credential in the configured list.
func (a *Account) Index() int { return a.index }

func (a *Account) Identity() Identity { return a.ident }

func (a *Account) Name() string { return a.ident.String() }

func (a *Account) SetReaction(ctx context.Context, target reaction.Target, emoji string) error {
	return a.session.SetReaction(ctx, target, emoji)
}

// Pool is the ordered, read-only set of accounts used for fan-out.
type Pool struct {
	accounts []*Account
}

// NewPool wraps already authenticated sessions. Credential indexes follow
// argument order.
func NewPool(sessions ...Session) *Pool {
	p := &Pool{accounts: make([]*Account, 0, len(sessions))}
	for i, s := range sessions {
		p.accounts = append(p.accounts, &Account{index: i, ident: s.Identity(), session: s})
	}
	return p
}

// Opener authenticates one credential.
type Opener func(ctx context.Context, token string) (Session, error)

// Open authenticates every credential in order. Credentials that fail are
// logged and left out; the pool is unusable only when none succeed.
func Open(ctx context.Context, tokens []string, open Opener) (*Pool, error) {
	p := &Pool{accounts: make([]*Account, 0, len(tokens))}

	for i, token := range tokens {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		s, err := open(ctx, token)
		if err != nil {
			slog.Error("Failed to authenticate account", "index", i, "error", err)
			continue
		}
		acc := &Account{index: i, ident: s.Identity(), session: s}
		p.accounts = append(p.accounts, acc)
		slog.Info("Account authenticated", "index", i, "account", acc.Name(), "user_id", acc.ident.ID)
	}

	if len(p.accounts) == 0 {
		return nil, fmt.Errorf("%w (%d configured)", ErrNoAccounts, len(tokens))
	}
	return p, nil
}

func (p *Pool) Len() int {
	if p == nil {
		return 0
	}
	return len(p.accounts)
}

// Accounts returns the accounts in dispatch order. The slice is a copy.
func (p *Pool) Accounts() []*Account {
	if p == nil {
		return nil
	}
	out := make([]*Account, len(p.accounts))
	copy(out, p.accounts)
	return out
}

// Primary is the first authenticated account; its credential drives the
// inbound listener.
func (p *Pool) Primary() (*Account, bool) {
	if p.Len() == 0 {
		return nil, false
	}
	return p.accounts[0], true
}

// Identities snapshots the identity of every account in pool order.
func (p *Pool) Identities() []Identity {
	if p == nil {
		return nil
	}
	out := make([]Identity, len(p.accounts))
	for i, a := range p.accounts {
		out[i] = a.ident
	}
	return out
}
