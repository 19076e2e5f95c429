// Package memory is an in-memory implementation of the repository store
// interfaces. It backs the test suite and local development without Postgres.
// All state is guarded by one mutex and keyed tenant-first, preserving the
// same tenant partitioning the Postgres schema enforces.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/jengahub/be-gl-governance/internal/apperrors"
	"github.com/jengahub/be-gl-governance/internal/repository"
)

// Store holds every collection in memory.
type Store struct {
	mu          sync.Mutex
	accounts    map[string]map[string]*repository.Account          // tenant → account ID → account
	entries     map[string][]*repository.JournalEntry              // tenant → ordered entries
	allocations map[string]map[string]*repository.BudgetAllocation // tenant → period|account → allocation
	periods     map[string]map[string]*repository.FiscalPeriod     // tenant → period ID → period
	approvals   map[string]map[string]*repository.ApprovalRequest  // tenant → request ID → request
	policies    map[string]*repository.PolicyConfig                // tenant → policy
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{
		accounts:    make(map[string]map[string]*repository.Account),
		entries:     make(map[string][]*repository.JournalEntry),
		allocations: make(map[string]map[string]*repository.BudgetAllocation),
		periods:     make(map[string]map[string]*repository.FiscalPeriod),
		approvals:   make(map[string]map[string]*repository.ApprovalRequest),
		policies:    make(map[string]*repository.PolicyConfig),
	}
}

// ── AccountStore ──────────────────────────────────────────────────────────────

func (s *Store) CreateAccount(ctx context.Context, account *repository.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tenant := s.accounts[account.TenantID]
	if tenant == nil {
		tenant = make(map[string]*repository.Account)
		s.accounts[account.TenantID] = tenant
	}
	for _, existing := range tenant {
		if existing.Code == account.Code {
			return apperrors.Newf(apperrors.ErrCodeConflict,
				"account code %q already exists", account.Code)
		}
	}

	account.ID = uuid.New().String()
	account.Version = 0
	account.CreatedAt = time.Now()
	account.UpdatedAt = account.CreatedAt
	tenant[account.ID] = cloneAccount(account)
	return nil
}

func (s *Store) GetAccountByID(ctx context.Context, tenantID, id string) (*repository.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	account, ok := s.accounts[tenantID][id]
	if !ok {
		return nil, apperrors.NotFound("account", id)
	}
	return cloneAccount(account), nil
}

func (s *Store) GetAccountByCode(ctx context.Context, tenantID, code string) (*repository.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, account := range s.accounts[tenantID] {
		if account.Code == code {
			return cloneAccount(account), nil
		}
	}
	return nil, apperrors.NotFound("account", code)
}

func (s *Store) ListAccounts(ctx context.Context, tenantID string, activeOnly bool) ([]*repository.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var accounts []*repository.Account
	for _, account := range s.accounts[tenantID] {
		if activeOnly && !account.IsActive {
			continue
		}
		accounts = append(accounts, cloneAccount(account))
	}
	sort.Slice(accounts, func(i, j int) bool { return accounts[i].Code < accounts[j].Code })
	return accounts, nil
}

func (s *Store) SetAccountActive(ctx context.Context, tenantID, id string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	account, ok := s.accounts[tenantID][id]
	if !ok {
		return apperrors.NotFound("account", id)
	}
	account.IsActive = active
	// Invalidate commits that read the account before the toggle.
	account.Version++
	account.UpdatedAt = time.Now()
	return nil
}

// ── JournalStore ──────────────────────────────────────────────────────────────

func (s *Store) Commit(ctx context.Context, entry *repository.JournalEntry, deltas []repository.BalanceDelta) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tenant := s.accounts[entry.TenantID]
	// Validate preconditions before touching anything so the commit stays
	// all-or-nothing.
	for _, delta := range deltas {
		account, ok := tenant[delta.AccountID]
		if !ok {
			return apperrors.NotFound("account", delta.AccountID)
		}
		if account.Version != delta.ExpectedVersion {
			return apperrors.Newf(apperrors.ErrCodeConflict,
				"account %s was modified concurrently", delta.AccountID)
		}
	}

	for _, delta := range deltas {
		account := tenant[delta.AccountID]
		account.Balance = account.Balance.Add(delta.Delta)
		account.Version++
		account.UpdatedAt = time.Now()
	}

	entry.ID = uuid.New().String()
	entry.CreatedAt = time.Now()
	for _, line := range entry.Lines {
		line.ID = uuid.New().String()
		line.EntryID = entry.ID
	}
	s.entries[entry.TenantID] = append(s.entries[entry.TenantID], cloneEntry(entry))
	return nil
}

func (s *Store) GetEntryByID(ctx context.Context, tenantID, id string) (*repository.JournalEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, entry := range s.entries[tenantID] {
		if entry.ID == id {
			return cloneEntry(entry), nil
		}
	}
	return nil, apperrors.NotFound("journal_entry", id)
}

func (s *Store) ListEntries(ctx context.Context, tenantID string, limit, offset int) ([]*repository.JournalEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all := s.entries[tenantID]
	// Newest first, matching the SQL repository.
	var out []*repository.JournalEntry
	for i := len(all) - 1 - offset; i >= 0 && len(out) < limit; i-- {
		out = append(out, cloneEntry(all[i]))
	}
	return out, nil
}

func (s *Store) SumByAccount(ctx context.Context, tenantID, accountID string, from, to time.Time) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sum := decimal.Zero
	for _, entry := range s.entries[tenantID] {
		if entry.EffectiveDate.Before(from) || entry.EffectiveDate.After(to) {
			continue
		}
		for _, line := range entry.Lines {
			if line.AccountID == accountID {
				sum = sum.Add(line.SignedAmount())
			}
		}
	}
	return sum, nil
}

// ── BudgetStore ───────────────────────────────────────────────────────────────

func allocationKey(periodID, accountID string) string {
	return periodID + "|" + accountID
}

func (s *Store) UpsertAllocation(ctx context.Context, allocation *repository.BudgetAllocation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tenant := s.allocations[allocation.TenantID]
	if tenant == nil {
		tenant = make(map[string]*repository.BudgetAllocation)
		s.allocations[allocation.TenantID] = tenant
	}

	key := allocationKey(allocation.PeriodID, allocation.AccountID)
	now := time.Now()
	if existing, ok := tenant[key]; ok {
		existing.Limit = allocation.Limit
		existing.UpdatedAt = now
		*allocation = *existing
		return nil
	}

	allocation.ID = uuid.New().String()
	allocation.CreatedAt = now
	allocation.UpdatedAt = now
	clone := *allocation
	tenant[key] = &clone
	return nil
}

func (s *Store) GetAllocation(ctx context.Context, tenantID, periodID, accountID string) (*repository.BudgetAllocation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	allocation, ok := s.allocations[tenantID][allocationKey(periodID, accountID)]
	if !ok {
		return nil, apperrors.NotFound("budget_allocation", accountID)
	}
	clone := *allocation
	return &clone, nil
}

func (s *Store) ListAllocationsByPeriod(ctx context.Context, tenantID, periodID string) ([]*repository.BudgetAllocation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var allocations []*repository.BudgetAllocation
	for _, allocation := range s.allocations[tenantID] {
		if allocation.PeriodID == periodID {
			clone := *allocation
			allocations = append(allocations, &clone)
		}
	}
	sort.Slice(allocations, func(i, j int) bool {
		return allocations[i].AccountID < allocations[j].AccountID
	})
	return allocations, nil
}

// ── PeriodStore ───────────────────────────────────────────────────────────────

func (s *Store) CreatePeriod(ctx context.Context, period *repository.FiscalPeriod) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tenant := s.periods[period.TenantID]
	if tenant == nil {
		tenant = make(map[string]*repository.FiscalPeriod)
		s.periods[period.TenantID] = tenant
	}

	period.ID = uuid.New().String()
	period.CreatedAt = time.Now()
	period.UpdatedAt = period.CreatedAt
	clone := *period
	tenant[period.ID] = &clone
	return nil
}

func (s *Store) GetPeriodByID(ctx context.Context, tenantID, id string) (*repository.FiscalPeriod, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	period, ok := s.periods[tenantID][id]
	if !ok {
		return nil, apperrors.NotFound("fiscal_period", id)
	}
	clone := *period
	return &clone, nil
}

func (s *Store) FindCovering(ctx context.Context, tenantID string, date time.Time) (*repository.FiscalPeriod, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var found *repository.FiscalPeriod
	for _, period := range s.periods[tenantID] {
		if period.Contains(date) {
			if found == nil || period.StartDate.After(found.StartDate) {
				found = period
			}
		}
	}
	if found == nil {
		return nil, nil
	}
	clone := *found
	return &clone, nil
}

func (s *Store) ListPeriods(ctx context.Context, tenantID string) ([]*repository.FiscalPeriod, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var periods []*repository.FiscalPeriod
	for _, period := range s.periods[tenantID] {
		clone := *period
		periods = append(periods, &clone)
	}
	sort.Slice(periods, func(i, j int) bool { return periods[i].StartDate.Before(periods[j].StartDate) })
	return periods, nil
}

func (s *Store) UpdatePeriodStatus(ctx context.Context, tenantID, id, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	period, ok := s.periods[tenantID][id]
	if !ok {
		return apperrors.NotFound("fiscal_period", id)
	}
	period.Status = status
	period.UpdatedAt = time.Now()
	return nil
}

// ── ApprovalStore ─────────────────────────────────────────────────────────────

func (s *Store) CreateRequest(ctx context.Context, request *repository.ApprovalRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tenant := s.approvals[request.TenantID]
	if tenant == nil {
		tenant = make(map[string]*repository.ApprovalRequest)
		s.approvals[request.TenantID] = tenant
	}

	request.ID = uuid.New().String()
	request.CreatedAt = time.Now()
	request.UpdatedAt = request.CreatedAt
	tenant[request.ID] = cloneRequest(request)
	return nil
}

func (s *Store) GetRequestByID(ctx context.Context, tenantID, id string) (*repository.ApprovalRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	request, ok := s.approvals[tenantID][id]
	if !ok {
		return nil, apperrors.NotFound("approval_request", id)
	}
	return cloneRequest(request), nil
}

func (s *Store) ListPending(ctx context.Context, tenantID string) ([]*repository.ApprovalRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var requests []*repository.ApprovalRequest
	for _, request := range s.approvals[tenantID] {
		if request.Status == repository.ApprovalStatusPending {
			requests = append(requests, cloneRequest(request))
		}
	}
	sort.Slice(requests, func(i, j int) bool { return requests[i].CreatedAt.Before(requests[j].CreatedAt) })
	return requests, nil
}

func (s *Store) ListByRequester(ctx context.Context, tenantID, userID string) ([]*repository.ApprovalRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var requests []*repository.ApprovalRequest
	for _, request := range s.approvals[tenantID] {
		if request.RequestedBy == userID {
			requests = append(requests, cloneRequest(request))
		}
	}
	sort.Slice(requests, func(i, j int) bool { return requests[i].CreatedAt.After(requests[j].CreatedAt) })
	return requests, nil
}

func (s *Store) Advance(
	ctx context.Context,
	tenantID, requestID string,
	fromLevel int,
	decision *repository.ApprovalDecision,
	toStatus string,
	toLevel int,
	completedAt *time.Time,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	request, ok := s.approvals[tenantID][requestID]
	if !ok {
		return apperrors.NotFound("approval_request", requestID)
	}
	if request.Status != repository.ApprovalStatusPending || request.CurrentLevel != fromLevel {
		return apperrors.New(apperrors.ErrCodeConflict,
			"approval request was decided concurrently or is already terminal")
	}

	request.Status = toStatus
	request.CurrentLevel = toLevel
	request.CompletedAt = completedAt
	request.UpdatedAt = time.Now()

	decision.ID = uuid.New().String()
	decision.RequestID = requestID
	decision.DecidedAt = time.Now()
	clone := *decision
	request.Decisions = append(request.Decisions, &clone)
	return nil
}

// ── PolicyStore ───────────────────────────────────────────────────────────────

func (s *Store) GetPolicy(ctx context.Context, tenantID string) (*repository.PolicyConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	policy, ok := s.policies[tenantID]
	if !ok {
		return nil, apperrors.NotFound("policy_config", tenantID)
	}
	clone := *policy
	clone.ModulePolicies = append([]repository.ModulePolicy(nil), policy.ModulePolicies...)
	return &clone, nil
}

func (s *Store) UpsertPolicy(ctx context.Context, policy *repository.PolicyConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	if existing, ok := s.policies[policy.TenantID]; ok {
		policy.CreatedAt = existing.CreatedAt
	} else {
		policy.CreatedAt = now
	}
	policy.UpdatedAt = now

	clone := *policy
	clone.ModulePolicies = append([]repository.ModulePolicy(nil), policy.ModulePolicies...)
	s.policies[policy.TenantID] = &clone
	return nil
}

// ── clone helpers ─────────────────────────────────────────────────────────────

func cloneAccount(a *repository.Account) *repository.Account {
	clone := *a
	return &clone
}

func cloneEntry(e *repository.JournalEntry) *repository.JournalEntry {
	clone := *e
	clone.Lines = make([]*repository.JournalLine, len(e.Lines))
	for i, line := range e.Lines {
		lineClone := *line
		clone.Lines[i] = &lineClone
	}
	return &clone
}

func cloneRequest(r *repository.ApprovalRequest) *repository.ApprovalRequest {
	clone := *r
	clone.Payload = append([]byte(nil), r.Payload...)
	clone.Decisions = make([]*repository.ApprovalDecision, len(r.Decisions))
	for i, decision := range r.Decisions {
		decisionClone := *decision
		clone.Decisions[i] = &decisionClone
	}
	return &clone
}
