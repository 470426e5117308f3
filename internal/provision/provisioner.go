package provision

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/rg/reactor/internal/accounts"
	"github.com/rg/reactor/internal/reaction"
	"github.com/rg/reactor/internal/storage"
)

// Promoter is a privileged session able to add chat administrators.
type Promoter interface {
	Promote(ctx context.Context, chat reaction.ChatRef, userID int64, rights accounts.Rights) error
}

// Ledger remembers which accounts were already granted rights in a chat.
type Ledger interface {
	IsGranted(chat string, userID int64) (bool, error)
	RecordGrant(chat string, userID int64, username, runID string) error
	ListGrants(chat string) ([]*storage.Grant, error)
	DeleteGrant(chat string, userID int64) error
	SaveRun(run *storage.Run) error
	GetRun(id string) (*storage.Run, error)
}

var ErrNoLedger = errors.New("grant ledger is not configured")

// Redactor scrubs secrets out of text before it is logged.
type Redactor interface {
	Sanitize(text string) string
}

type Status string

const (
	StatusGranted Status = "granted"
	StatusSkipped Status = "skipped"
	StatusFailed  Status = "failed"
)

type Result struct {
	Identity accounts.Identity
	Status   Status
	Err      error
}

type Report struct {
	RunID   string
	Chat    reaction.ChatRef
	Results []Result
}

func (r *Report) Count(status Status) int {
	n := 0
	for _, res := range r.Results {
		if res.Status == status {
			n++
		}
	}
	return n
}

type Provisioner struct {
	admin      Promoter
	identities []accounts.Identity
	ledger     Ledger
	rights     accounts.Rights
	redactor   Redactor
}

// New takes the pool identities resolved at startup. The slice is copied.
// ledger may be nil, in which case every run promotes every account.
func New(admin Promoter, identities []accounts.Identity, ledger Ledger, rights accounts.Rights) *Provisioner {
	ids := make([]accounts.Identity, len(identities))
	copy(ids, identities)
	return &Provisioner{
		admin:      admin,
		identities: ids,
		ledger:     ledger,
		rights:     rights,
	}
}

func (p *Provisioner) SetRedactor(r Redactor) {
	p.redactor = r
}

// Provision promotes every pool account in chat. One account failing does
// not stop the others. Accounts already in the ledger are skipped unless
// force is set.
func (p *Provisioner) Provision(ctx context.Context, chat reaction.ChatRef, requestedBy int64, force bool) (*Report, error) {
	if chat.IsZero() {
		return nil, fmt.Errorf("chat is required")
	}

	report := &Report{
		RunID:   uuid.NewString(),
		Chat:    chat,
		Results: make([]Result, len(p.identities)),
	}
	key := ledgerKey(chat)

	start := time.Now()
	slog.Info("Provisioning accounts", "run_id", report.RunID, "chat", chat.String(), "accounts", len(p.identities), "force", force)

	var g errgroup.Group
	for i, ident := range p.identities {
		i, ident := i, ident
		g.Go(func() error {
			report.Results[i] = p.provisionOne(ctx, report.RunID, chat, key, ident, force)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("provisioning cancelled: %w", err)
	}

	if p.ledger != nil {
		run := &storage.Run{
			ID:          report.RunID,
			Chat:        key,
			RequestedBy: requestedBy,
			Granted:     report.Count(StatusGranted),
			Skipped:     report.Count(StatusSkipped),
			Failed:      report.Count(StatusFailed),
		}
		if err := p.ledger.SaveRun(run); err != nil {
			slog.Warn("Failed to save provision run", "run_id", report.RunID, "error", err)
		}
	}

	slog.Info("Provisioning finished",
		"run_id", report.RunID,
		"granted", report.Count(StatusGranted),
		"skipped", report.Count(StatusSkipped),
		"failed", report.Count(StatusFailed),
		"duration", time.Since(start))

	return report, nil
}

func (p *Provisioner) provisionOne(ctx context.Context, runID string, chat reaction.ChatRef, key string, ident accounts.Identity, force bool) Result {
	res := Result{Identity: ident}

	if p.ledger != nil && !force {
		granted, err := p.ledger.IsGranted(key, ident.ID)
		if err != nil {
			slog.Warn("Failed to read grant ledger", "run_id", runID, "account", ident.String(), "error", err)
		} else if granted {
			res.Status = StatusSkipped
			return res
		}
	}

	if err := p.admin.Promote(ctx, chat, ident.ID, p.rights); err != nil {
		res.Status = StatusFailed
		res.Err = err
		slog.Warn("Failed to promote account",
			"run_id", runID,
			"account", ident.String(),
			"error", p.redact(err.Error()))
		return res
	}

	res.Status = StatusGranted
	if p.ledger != nil {
		if err := p.ledger.RecordGrant(key, ident.ID, ident.Username, runID); err != nil {
			slog.Warn("Failed to record grant", "run_id", runID, "account", ident.String(), "error", err)
		}
	}
	return res
}

// Grants lists the ledger entries for chat, oldest first.
func (p *Provisioner) Grants(chat reaction.ChatRef) ([]*storage.Grant, error) {
	if p.ledger == nil {
		return nil, ErrNoLedger
	}
	return p.ledger.ListGrants(ledgerKey(chat))
}

// Forget drops the ledger entry for one account so the next run promotes
// it again. Rights already held in the chat are left alone.
func (p *Provisioner) Forget(chat reaction.ChatRef, userID int64) error {
	if p.ledger == nil {
		return ErrNoLedger
	}
	if err := p.ledger.DeleteGrant(ledgerKey(chat), userID); err != nil {
		return err
	}
	slog.Info("Forgot grant", "chat", ledgerKey(chat), "user_id", userID)
	return nil
}

// Run returns a saved run, or nil when id is unknown.
func (p *Provisioner) Run(id string) (*storage.Run, error) {
	if p.ledger == nil {
		return nil, ErrNoLedger
	}
	return p.ledger.GetRun(id)
}

func (p *Provisioner) redact(text string) string {
	if p.redactor == nil {
		return text
	}
	return p.redactor.Sanitize(text)
}

// ledgerKey normalizes handles so @News and @news share grants.
func ledgerKey(chat reaction.ChatRef) string {
	return strings.ToLower(chat.String())
}
