package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jengahub/be-gl-governance/internal/apperrors"
	"github.com/jengahub/be-gl-governance/internal/logger"
	"github.com/jengahub/be-gl-governance/internal/repository"
	"github.com/jengahub/be-gl-governance/internal/repository/memory"
)

// conflictingJournalStore fails the first n Commit calls with a conflict,
// simulating concurrent balance writes, then delegates.
type conflictingJournalStore struct {
	repository.JournalStore
	mu        sync.Mutex
	remaining int
}

func (s *conflictingJournalStore) Commit(ctx context.Context, entry *repository.JournalEntry, deltas []repository.BalanceDelta) error {
	s.mu.Lock()
	if s.remaining > 0 {
		s.remaining--
		s.mu.Unlock()
		return apperrors.New(apperrors.ErrCodeConflict, "account was modified concurrently")
	}
	s.mu.Unlock()
	return s.JournalStore.Commit(ctx, entry, deltas)
}

func newRetryEnv(t *testing.T, conflicts int) (*PostingService, *memory.Store) {
	t.Helper()
	store := memory.NewStore()
	journals := &conflictingJournalStore{JournalStore: store, remaining: conflicts}
	posting := NewPostingService(store, journals, store, nil, logger.Nop())
	return posting, store
}

func seedRetryFixture(t *testing.T, store *memory.Store) (cash, expense string) {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, store.CreatePeriod(ctx, &repository.FiscalPeriod{
		TenantID:  "tenant-1",
		Name:      "FY2026",
		StartDate: date("2026-01-01"),
		EndDate:   date("2026-12-31"),
		Status:    repository.PeriodStatusOpen,
	}))

	a := &repository.Account{
		TenantID: "tenant-1", Code: "1000", Name: "Cash",
		Type: repository.AccountTypeAsset, Balance: decimal.Zero, IsActive: true,
	}
	require.NoError(t, store.CreateAccount(ctx, a))
	b := &repository.Account{
		TenantID: "tenant-1", Code: "5000", Name: "Expense",
		Type: repository.AccountTypeExpense, Balance: decimal.Zero, IsActive: true,
	}
	require.NoError(t, store.CreateAccount(ctx, b))
	return a.ID, b.ID
}

func postOnce(posting *PostingService, cash, expense string) (*repository.JournalEntry, error) {
	return posting.PostEntry(context.Background(), &PostEntryRequest{
		TenantID:      "tenant-1",
		Description:   "Contended posting",
		EffectiveDate: date("2026-05-05"),
		Lines: []*PostLineRequest{
			{AccountID: expense, Side: repository.SideDebit, Amount: dec("10")},
			{AccountID: cash, Side: repository.SideCredit, Amount: dec("10")},
		},
	})
}

// Two transient conflicts fit inside the retry budget.
func TestPostEntry_RetriesTransientConflicts(t *testing.T) {
	t.Parallel()

	posting, store := newRetryEnv(t, 2)
	cash, expense := seedRetryFixture(t, store)

	start := time.Now()
	entry, err := postOnce(posting, cash, expense)
	require.NoError(t, err)
	assert.NotEmpty(t, entry.ID)
	assert.Less(t, time.Since(start), 30*time.Second)

	account, err := store.GetAccountByID(context.Background(), "tenant-1", expense)
	require.NoError(t, err)
	assert.True(t, account.Balance.Equal(dec("10")))
}

// Persistent contention surfaces the conflict instead of retrying forever.
func TestPostEntry_SurfacesConflictAfterRetryBudget(t *testing.T) {
	t.Parallel()

	posting, store := newRetryEnv(t, 100)
	cash, expense := seedRetryFixture(t, store)

	_, err := postOnce(posting, cash, expense)
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeConflict, apperrors.Code(err))

	// Nothing was applied.
	account, err := store.GetAccountByID(context.Background(), "tenant-1", expense)
	require.NoError(t, err)
	assert.True(t, account.Balance.IsZero())
}
