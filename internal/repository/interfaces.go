package repository

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Store interfaces implemented by the Postgres repositories in this package
// and by the in-memory store in repository/memory. Services depend only on
// these interfaces. Method names are distinct across interfaces so a single
// implementation can satisfy all of them.

// BalanceDelta is one account's pending balance change within a journal
// commit. ExpectedVersion is the version observed when the delta was
// computed; the commit fails with a conflict when it no longer matches.
type BalanceDelta struct {
	AccountID       string
	Delta           decimal.Decimal
	ExpectedVersion int64
}

// AccountStore persists the chart of accounts. Balance mutation is excluded
// on purpose: balances change only through JournalStore.Commit.
type AccountStore interface {
	CreateAccount(ctx context.Context, account *Account) error
	GetAccountByID(ctx context.Context, tenantID, id string) (*Account, error)
	GetAccountByCode(ctx context.Context, tenantID, code string) (*Account, error)
	ListAccounts(ctx context.Context, tenantID string, activeOnly bool) ([]*Account, error)
	SetAccountActive(ctx context.Context, tenantID, id string, active bool) error
}

// JournalStore persists immutable journal entries and applies the matching
// balance deltas. Commit is atomic: the entry, its lines and every balance
// update succeed or fail together, and a stale ExpectedVersion fails the
// whole commit with ErrCodeConflict.
type JournalStore interface {
	Commit(ctx context.Context, entry *JournalEntry, deltas []BalanceDelta) error
	GetEntryByID(ctx context.Context, tenantID, id string) (*JournalEntry, error)
	ListEntries(ctx context.Context, tenantID string, limit, offset int) ([]*JournalEntry, error)
	// SumByAccount returns the signed sum of committed line amounts for one
	// account with effective dates inside [from, to].
	SumByAccount(ctx context.Context, tenantID, accountID string, from, to time.Time) (decimal.Decimal, error)
}

// BudgetStore persists ceiling allocations.
type BudgetStore interface {
	UpsertAllocation(ctx context.Context, allocation *BudgetAllocation) error
	GetAllocation(ctx context.Context, tenantID, periodID, accountID string) (*BudgetAllocation, error)
	ListAllocationsByPeriod(ctx context.Context, tenantID, periodID string) ([]*BudgetAllocation, error)
}

// PeriodStore persists fiscal periods.
type PeriodStore interface {
	CreatePeriod(ctx context.Context, period *FiscalPeriod) error
	GetPeriodByID(ctx context.Context, tenantID, id string) (*FiscalPeriod, error)
	// FindCovering returns the period whose date range contains date, or nil
	// when the tenant has no period covering it.
	FindCovering(ctx context.Context, tenantID string, date time.Time) (*FiscalPeriod, error)
	ListPeriods(ctx context.Context, tenantID string) ([]*FiscalPeriod, error)
	UpdatePeriodStatus(ctx context.Context, tenantID, id, status string) error
}

// ApprovalStore persists approval requests and their decision trails.
type ApprovalStore interface {
	CreateRequest(ctx context.Context, request *ApprovalRequest) error
	GetRequestByID(ctx context.Context, tenantID, id string) (*ApprovalRequest, error)
	ListPending(ctx context.Context, tenantID string) ([]*ApprovalRequest, error)
	ListByRequester(ctx context.Context, tenantID, userID string) ([]*ApprovalRequest, error)
	// Advance records a decision and moves the request from
	// (status=pending, current_level=fromLevel) to (toStatus, toLevel) in one
	// atomic step. When the precondition no longer holds — another decider
	// won the race, or the request is already terminal — it fails with
	// ErrCodeConflict and records nothing.
	Advance(ctx context.Context, tenantID, requestID string, fromLevel int,
		decision *ApprovalDecision, toStatus string, toLevel int, completedAt *time.Time) error
}

// PolicyStore persists tenant policy configurations.
type PolicyStore interface {
	GetPolicy(ctx context.Context, tenantID string) (*PolicyConfig, error)
	UpsertPolicy(ctx context.Context, policy *PolicyConfig) error
}
