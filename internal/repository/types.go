package repository

import (
	"time"

	"github.com/shopspring/decimal"
)

// ── Domain types for the governance & ledger engine ──────────────────────────
//
// Every entity belongs to exactly one tenant. No cross-tenant reference is
// ever created, and every store operation takes the tenant ID as its first
// discriminator.

// Account types (chart-of-accounts classification).
const (
	AccountTypeAsset     = "asset"
	AccountTypeLiability = "liability"
	AccountTypeEquity    = "equity"
	AccountTypeIncome    = "income"
	AccountTypeExpense   = "expense"
)

// Journal line sides.
const (
	SideDebit  = "debit"
	SideCredit = "credit"
)

// Approval request statuses. Approved and Rejected are terminal.
const (
	ApprovalStatusPending  = "pending"
	ApprovalStatusApproved = "approved"
	ApprovalStatusRejected = "rejected"
)

// Approval decision values.
const (
	DecisionApprove = "approve"
	DecisionReject  = "reject"
)

// Fiscal period statuses.
const (
	PeriodStatusOpen   = "open"
	PeriodStatusClosed = "closed"
)

// Budget enforcement modes.
const (
	EnforcementAdvisory = "advisory"
	EnforcementStrict   = "strict"
)

// Account is one row in a tenant's chart of accounts. Balance is written only
// through JournalStore.Commit; Version guards the read-modify-write cycle.
type Account struct {
	ID                 string
	TenantID           string
	Code               string // unique within tenant
	Name               string
	Type               string // asset | liability | equity | income | expense
	Subtype            *string
	Balance            decimal.Decimal
	IsActive           bool
	IsTrackedForBudget bool
	Version            int64
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// JournalLine is one leg of a journal entry. Amount is always positive; the
// sign comes from Side.
type JournalLine struct {
	ID        string
	EntryID   string
	AccountID string
	Side      string // debit | credit
	Amount    decimal.Decimal
}

// SignedAmount returns the amount with the debit(+)/credit(−) convention.
func (l *JournalLine) SignedAmount() decimal.Decimal {
	if l.Side == SideCredit {
		return l.Amount.Neg()
	}
	return l.Amount
}

// JournalEntry is one immutable balanced posting. Corrections are made with
// new reversing entries, never edits.
type JournalEntry struct {
	ID            string
	TenantID      string
	Description   string
	Reference     *string // opaque number from the sequence collaborator
	EffectiveDate time.Time
	ReversalOf    *string // entry ID this entry reverses, if any
	Lines         []*JournalLine
	CreatedAt     time.Time
}

// BudgetAllocation is a per-tenant, per-period, per-account spending ceiling.
// Actual spend is never stored here; it is recomputed from journal lines.
type BudgetAllocation struct {
	ID        string
	TenantID  string
	PeriodID  string
	AccountID string
	Limit     decimal.Decimal
	CreatedAt time.Time
	UpdatedAt time.Time
}

// BudgetVarianceRow is one row of the derived actual-vs-ceiling view.
type BudgetVarianceRow struct {
	AccountID   string          `json:"account_id"`
	AccountCode string          `json:"account_code"`
	Limit       decimal.Decimal `json:"limit"`
	Actual      decimal.Decimal `json:"actual"`
	Utilization decimal.Decimal `json:"utilization"` // actual / limit, 0 when limit is 0
	Breached    bool            `json:"breached"`    // utilization > 1
}

// FiscalPeriod is a bounded date range that can be open or closed.
type FiscalPeriod struct {
	ID        string
	TenantID  string
	Name      string
	StartDate time.Time
	EndDate   time.Time
	Status    string // open | closed
	CreatedAt time.Time
	UpdatedAt time.Time
}

// DayOf truncates t to its UTC calendar day. Effective dates and period
// bounds are stored at this granularity so period containment and actuals
// summation always agree on which day an entry belongs to.
func DayOf(t time.Time) time.Time {
	return t.UTC().Truncate(24 * time.Hour)
}

// Contains reports whether t falls inside [StartDate, EndDate] by calendar day.
func (p *FiscalPeriod) Contains(t time.Time) bool {
	day := DayOf(t)
	return !day.Before(DayOf(p.StartDate)) && !day.After(DayOf(p.EndDate))
}

// ApprovalDecision is one immutable entry in a request's decision trail.
type ApprovalDecision struct {
	ID        string
	RequestID string
	Level     int
	UserID    string
	Decision  string // approve | reject
	Comment   *string
	DecidedAt time.Time
}

// ApprovalRequest is a gated mutation frozen behind a maker-checker chain.
// Payload holds the serialized mutation intent replayed on full approval.
// Requests are never deleted; terminal ones form the audit trail.
type ApprovalRequest struct {
	ID           string
	TenantID     string
	Module       string
	Action       string
	Status       string // pending | approved | rejected
	CurrentLevel int
	TotalLevels  int
	Amount       decimal.Decimal
	RequestedBy  string
	Reason       string // which policy rule gated it
	Payload      []byte
	Decisions    []*ApprovalDecision
	CompletedAt  *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Terminal reports whether the request can accept no further decisions.
func (r *ApprovalRequest) Terminal() bool {
	return r.Status == ApprovalStatusApproved || r.Status == ApprovalStatusRejected
}

// ModulePolicy is one entry in a tenant's per-module policy list, stored as a
// JSONB array on the policy row.
type ModulePolicy struct {
	Module   string           `json:"module"`
	Levels   int              `json:"levels,omitempty"`    // approval chain length override
	MaxRatio *decimal.Decimal `json:"max_ratio,omitempty"` // e.g. max discount fraction
}

// PolicyConfig is a tenant's data-driven gating ruleset.
type PolicyConfig struct {
	TenantID          string
	AbsoluteCeiling   *decimal.Decimal // any single mutation above this is gated; nil = none
	BudgetEnforcement string           // advisory | strict
	BudgetThreshold   decimal.Decimal  // projected-utilization ratio that triggers the budget rule
	DefaultLevels     int              // chain length when no module override applies
	ModulePolicies    []ModulePolicy
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// LevelsFor returns the approval chain length for a module.
func (p *PolicyConfig) LevelsFor(module string) int {
	for _, mp := range p.ModulePolicies {
		if mp.Module == module && mp.Levels > 0 {
			return mp.Levels
		}
	}
	if p.DefaultLevels > 0 {
		return p.DefaultLevels
	}
	return 1
}

// MaxRatioFor returns the module's ratio ceiling, or nil when none is set.
func (p *PolicyConfig) MaxRatioFor(module string) *decimal.Decimal {
	for _, mp := range p.ModulePolicies {
		if mp.Module == module {
			return mp.MaxRatio
		}
	}
	return nil
}
