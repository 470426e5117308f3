package provision

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/rg/reactor/internal/accounts"
	"github.com/rg/reactor/internal/reaction"
	"github.com/rg/reactor/internal/storage"
)

type fakePromoter struct {
	mu      sync.Mutex
	failFor map[int64]error
	calls   []int64
	chats   []string
	rights  []accounts.Rights
}

func (f *fakePromoter) Promote(ctx context.Context, chat reaction.ChatRef, userID int64, rights accounts.Rights) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, userID)
	f.chats = append(f.chats, chat.String())
	f.rights = append(f.rights, rights)
	return f.failFor[userID]
}

func (f *fakePromoter) promoted(userID int64) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range f.calls {
		if id == userID {
			return true
		}
	}
	return false
}

func testIdentities() []accounts.Identity {
	return []accounts.Identity{
		{ID: 1, Username: "one_bot"},
		{ID: 2, Username: "two_bot"},
		{ID: 3, Username: "three_bot"},
	}
}

func TestProvision_IsolatesFailures(t *testing.T) {
	admin := &fakePromoter{failFor: map[int64]error{2: errors.New("Bad Request: USER_NOT_MUTUAL_CONTACT")}}
	p := New(admin, testIdentities(), nil, accounts.ReactionRights())

	report, err := p.Provision(context.Background(), reaction.ChatHandle("news"), 99, false)
	if err != nil {
		t.Fatalf("Provision failed: %v", err)
	}

	if len(report.Results) != 3 {
		t.Fatalf("results = %d, want 3", len(report.Results))
	}
	want := []Status{StatusGranted, StatusFailed, StatusGranted}
	for i, st := range want {
		if report.Results[i].Status != st {
			t.Errorf("result %d status = %s, want %s", i, report.Results[i].Status, st)
		}
	}
	if report.Results[1].Err == nil {
		t.Error("failed result should carry its error")
	}
	if report.Count(StatusGranted) != 2 {
		t.Errorf("granted = %d, want 2", report.Count(StatusGranted))
	}
	for _, id := range []int64{1, 2, 3} {
		if !admin.promoted(id) {
			t.Errorf("account %d was never attempted", id)
		}
	}
	for _, chat := range admin.chats {
		if chat != "@news" {
			t.Errorf("promoted in %s, want @news", chat)
		}
	}
	if !admin.rights[0].PostMessages || !admin.rights[0].ManageChat {
		t.Errorf("rights = %+v, want reaction rights", admin.rights[0])
	}
}

func TestProvision_RequiresChat(t *testing.T) {
	p := New(&fakePromoter{}, testIdentities(), nil, accounts.ReactionRights())
	if _, err := p.Provision(context.Background(), reaction.ChatRef{}, 0, false); err == nil {
		t.Fatal("expected error for empty chat")
	}
}

func TestProvision_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := New(&fakePromoter{}, testIdentities(), nil, accounts.ReactionRights())
	if _, err := p.Provision(ctx, reaction.ChatID(-100), 0, false); !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
}

func TestNew_CopiesIdentities(t *testing.T) {
	ids := testIdentities()
	admin := &fakePromoter{}
	p := New(admin, ids, nil, accounts.ReactionRights())
	ids[0].ID = 1000

	if _, err := p.Provision(context.Background(), reaction.ChatID(-100), 0, false); err != nil {
		t.Fatalf("Provision failed: %v", err)
	}
	if admin.promoted(1000) {
		t.Error("provisioner must not observe later changes to the caller's slice")
	}
}

func setupLedger(t *testing.T) *storage.Storage {
	t.Helper()

	t.Setenv("MIGRATION_PATH", filepath.Join("..", "..", "migrations", "001_initial_schema.sql"))
	store, err := storage.NewStorage(filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Fatalf("Failed to create storage: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestProvision_SkipsRecordedGrants(t *testing.T) {
	store := setupLedger(t)

	first := &fakePromoter{failFor: map[int64]error{3: errors.New("boom")}}
	report, err := New(first, testIdentities(), store, accounts.ReactionRights()).
		Provision(context.Background(), reaction.ChatHandle("News"), 99, false)
	if err != nil {
		t.Fatalf("first Provision failed: %v", err)
	}
	if report.Count(StatusGranted) != 2 || report.Count(StatusFailed) != 1 {
		t.Fatalf("first run granted/failed = %d/%d, want 2/1", report.Count(StatusGranted), report.Count(StatusFailed))
	}

	run, err := store.GetRun(report.RunID)
	if err != nil || run == nil {
		t.Fatalf("run not saved: %v", err)
	}
	if run.Chat != "@news" || run.RequestedBy != 99 || run.Granted != 2 || run.Failed != 1 {
		t.Errorf("saved run = %+v", run)
	}

	// Handle case differs; the ledger still matches.
	second := &fakePromoter{}
	report, err = New(second, testIdentities(), store, accounts.ReactionRights()).
		Provision(context.Background(), reaction.ChatHandle("news"), 99, false)
	if err != nil {
		t.Fatalf("second Provision failed: %v", err)
	}
	if report.Count(StatusSkipped) != 2 || report.Count(StatusGranted) != 1 {
		t.Errorf("second run skipped/granted = %d/%d, want 2/1", report.Count(StatusSkipped), report.Count(StatusGranted))
	}
	if second.promoted(1) || second.promoted(2) || !second.promoted(3) {
		t.Errorf("second run promoted %v, want only account 3", second.calls)
	}

	forced := &fakePromoter{}
	report, err = New(forced, testIdentities(), store, accounts.ReactionRights()).
		Provision(context.Background(), reaction.ChatHandle("news"), 99, true)
	if err != nil {
		t.Fatalf("forced Provision failed: %v", err)
	}
	if report.Count(StatusGranted) != 3 {
		t.Errorf("forced run granted = %d, want 3", report.Count(StatusGranted))
	}
}

type recordingRedactor struct {
	mu   sync.Mutex
	seen int
}

func (r *recordingRedactor) Sanitize(text string) string {
	r.mu.Lock()
	r.seen++
	r.mu.Unlock()
	return text
}

func TestProvision_RedactsFailures(t *testing.T) {
	red := &recordingRedactor{}
	p := New(&fakePromoter{failFor: map[int64]error{1: errors.New("x"), 3: errors.New("y")}}, testIdentities(), nil, accounts.ReactionRights())
	p.SetRedactor(red)

	if _, err := p.Provision(context.Background(), reaction.ChatID(-100), 0, false); err != nil {
		t.Fatalf("Provision failed: %v", err)
	}
	if red.seen != 2 {
		t.Errorf("redactor called %d times, want 2", red.seen)
	}
}

func TestProvisioner_LedgerQueries(t *testing.T) {
	store := setupLedger(t)
	p := New(&fakePromoter{}, testIdentities(), store, accounts.ReactionRights())

	report, err := p.Provision(context.Background(), reaction.ChatHandle("News"), 99, false)
	if err != nil {
		t.Fatalf("Provision failed: %v", err)
	}

	grants, err := p.Grants(reaction.ChatHandle("news"))
	if err != nil {
		t.Fatalf("Grants failed: %v", err)
	}
	if len(grants) != 3 {
		t.Fatalf("grants = %d, want 3", len(grants))
	}
	for _, g := range grants {
		if g.RunID != report.RunID {
			t.Errorf("grant %d run = %q, want %q", g.UserID, g.RunID, report.RunID)
		}
	}

	run, err := p.Run(report.RunID)
	if err != nil || run == nil {
		t.Fatalf("Run(%q) = %v, %v", report.RunID, run, err)
	}
	if run.Granted != 3 || run.RequestedBy != 99 {
		t.Errorf("run = %+v", run)
	}
	if missing, err := p.Run("no-such-run"); err != nil || missing != nil {
		t.Errorf("Run(unknown) = %v, %v, want nil, nil", missing, err)
	}

	if err := p.Forget(reaction.ChatHandle("NEWS"), 2); err != nil {
		t.Fatalf("Forget failed: %v", err)
	}
	if grants, _ := p.Grants(reaction.ChatHandle("news")); len(grants) != 2 {
		t.Errorf("grants after forget = %d, want 2", len(grants))
	}

	// The forgotten account is promoted again, the others are skipped.
	again := &fakePromoter{}
	report, err = New(again, testIdentities(), store, accounts.ReactionRights()).
		Provision(context.Background(), reaction.ChatHandle("news"), 99, false)
	if err != nil {
		t.Fatalf("second Provision failed: %v", err)
	}
	if report.Count(StatusGranted) != 1 || !again.promoted(2) {
		t.Errorf("second run promoted %v, want only account 2", again.calls)
	}
}

func TestProvisioner_WithoutLedger(t *testing.T) {
	p := New(&fakePromoter{}, testIdentities(), nil, accounts.ReactionRights())

	if _, err := p.Grants(reaction.ChatHandle("news")); !errors.Is(err, ErrNoLedger) {
		t.Errorf("Grants error = %v, want ErrNoLedger", err)
	}
	if err := p.Forget(reaction.ChatHandle("news"), 1); !errors.Is(err, ErrNoLedger) {
		t.Errorf("Forget error = %v, want ErrNoLedger", err)
	}
	if _, err := p.Run("x"); !errors.Is(err, ErrNoLedger) {
		t.Errorf("Run error = %v, want ErrNoLedger", err)
	}
}
