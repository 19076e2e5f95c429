package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jengahub/be-gl-governance/internal/apperrors"
	"github.com/jengahub/be-gl-governance/internal/client"
	"github.com/jengahub/be-gl-governance/internal/logger"
	"github.com/jengahub/be-gl-governance/internal/repository"
	"github.com/jengahub/be-gl-governance/internal/service"
)

// HTTPHandler handles HTTP requests for the governance engine.
type HTTPHandler struct {
	governance *service.GovernanceService
	posting    *service.PostingService
	budgets    *service.BudgetService
	policy     *service.PolicyService
	workflow   *service.WorkflowService
	advisory   *client.AdvisoryClient
	log        *logger.Logger
}

// NewHTTPHandler creates a new HTTP handler. advisory may be nil.
func NewHTTPHandler(
	governance *service.GovernanceService,
	posting *service.PostingService,
	budgets *service.BudgetService,
	policy *service.PolicyService,
	workflow *service.WorkflowService,
	advisory *client.AdvisoryClient,
	log *logger.Logger,
) *HTTPHandler {
	return &HTTPHandler{
		governance: governance,
		posting:    posting,
		budgets:    budgets,
		policy:     policy,
		workflow:   workflow,
		advisory:   advisory,
		log:        log,
	}
}

// Register wires every route onto the mux.
func (h *HTTPHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/health", h.Health)

	mux.HandleFunc("/api/v1/accounts", h.Accounts)
	mux.HandleFunc("/api/v1/accounts/get", h.GetAccount)
	mux.HandleFunc("/api/v1/accounts/active", h.SetAccountActive)

	mux.HandleFunc("/api/v1/journal-entries", h.JournalEntries)
	mux.HandleFunc("/api/v1/journal-entries/get", h.GetJournalEntry)
	mux.HandleFunc("/api/v1/journal-entries/reverse", h.ReverseJournalEntry)

	mux.HandleFunc("/api/v1/mutations", h.SubmitMutation)
	mux.HandleFunc("/api/v1/mutations/decide", h.DecideMutation)

	mux.HandleFunc("/api/v1/approvals/pending", h.ListPendingApprovals)
	mux.HandleFunc("/api/v1/approvals/get", h.GetApproval)
	mux.HandleFunc("/api/v1/approvals", h.ListApprovalsByRequester)
	mux.HandleFunc("/api/v1/approvals/suggestions", h.ApprovalSuggestions)

	mux.HandleFunc("/api/v1/budgets/allocations", h.SetAllocation)
	mux.HandleFunc("/api/v1/budgets/variance", h.GetVariance)

	mux.HandleFunc("/api/v1/periods", h.Periods)
	mux.HandleFunc("/api/v1/periods/close", h.ClosePeriod)

	mux.HandleFunc("/api/v1/policy", h.Policy)
}

// statusForCode maps error codes onto HTTP statuses.
func statusForCode(code string) int {
	switch code {
	case apperrors.ErrCodeInvalidInput, apperrors.ErrCodeUnbalanced, apperrors.ErrCodeUnknownAccount:
		return http.StatusBadRequest
	case apperrors.ErrCodeNotFound:
		return http.StatusNotFound
	case apperrors.ErrCodeConflict, apperrors.ErrCodeAlreadyTerminal:
		return http.StatusConflict
	case apperrors.ErrCodePeriodLocked, apperrors.ErrCodeStrictBudgetBlock,
		apperrors.ErrCodeWrongLevel, apperrors.ErrCodeSelfApproval:
		return http.StatusUnprocessableEntity
	case apperrors.ErrCodeUnauthorized:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

func (h *HTTPHandler) writeError(w http.ResponseWriter, err error) {
	code := apperrors.Code(err)
	status := statusForCode(code)
	if status == http.StatusInternalServerError {
		h.log.Error().Err(err).Msg("Request failed")
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{
		"error": err.Error(),
		"code":  code,
	})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, apperrors.InvalidInput("date", "date is required")
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, apperrors.InvalidInput("date", "invalid date format, expected YYYY-MM-DD")
	}
	return t, nil
}

// tenantID resolves the tenant from the query string or X-Tenant-ID header.
func tenantID(r *http.Request) string {
	if id := r.URL.Query().Get("tenant_id"); id != "" {
		return id
	}
	return r.Header.Get("X-Tenant-ID")
}

// Health handles health check requests.
func (h *HTTPHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Accounts handles POST (register) and GET (list) on the accounts resource.
func (h *HTTPHandler) Accounts(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		var req struct {
			TenantID           string  `json:"tenant_id"`
			Code               string  `json:"code"`
			Name               string  `json:"name"`
			Type               string  `json:"type"`
			Subtype            *string `json:"subtype,omitempty"`
			IsTrackedForBudget bool    `json:"is_tracked_for_budget"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
		account, err := h.posting.RegisterAccount(r.Context(), &service.RegisterAccountRequest{
			TenantID:           req.TenantID,
			Code:               req.Code,
			Name:               req.Name,
			Type:               req.Type,
			Subtype:            req.Subtype,
			IsTrackedForBudget: req.IsTrackedForBudget,
		})
		if err != nil {
			h.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, account)

	case http.MethodGet:
		tenant := tenantID(r)
		if tenant == "" {
			http.Error(w, "Tenant ID is required", http.StatusBadRequest)
			return
		}
		activeOnly := r.URL.Query().Get("active_only") == "true"
		accounts, err := h.posting.ListAccounts(r.Context(), tenant, activeOnly)
		if err != nil {
			h.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"accounts": accounts})

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// GetAccount handles get account HTTP requests.
func (h *HTTPHandler) GetAccount(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	tenant := tenantID(r)
	id := r.URL.Query().Get("id")
	if tenant == "" || id == "" {
		http.Error(w, "Tenant ID and account ID are required", http.StatusBadRequest)
		return
	}
	account, err := h.posting.GetAccount(r.Context(), tenant, id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, account)
}

// SetAccountActive handles activate/deactivate requests.
func (h *HTTPHandler) SetAccountActive(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		TenantID  string `json:"tenant_id"`
		AccountID string `json:"account_id"`
		Active    bool   `json:"active"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := h.posting.SetAccountActive(r.Context(), req.TenantID, req.AccountID, req.Active); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

type journalLinePayload struct {
	AccountID string          `json:"account_id"`
	Side      string          `json:"side"`
	Amount    decimal.Decimal `json:"amount"`
}

// JournalEntries handles POST (direct posting) and GET (list) on the
// journal resource.
func (h *HTTPHandler) JournalEntries(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		var req struct {
			TenantID      string                `json:"tenant_id"`
			Description   string                `json:"description"`
			EffectiveDate string                `json:"effective_date"`
			Lines         []*journalLinePayload `json:"lines"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
		date, err := parseDate(req.EffectiveDate)
		if err != nil {
			h.writeError(w, err)
			return
		}
		lines := make([]*service.PostLineRequest, 0, len(req.Lines))
		for _, l := range req.Lines {
			lines = append(lines, &service.PostLineRequest{AccountID: l.AccountID, Side: l.Side, Amount: l.Amount})
		}
		entry, err := h.posting.PostEntry(r.Context(), &service.PostEntryRequest{
			TenantID:      req.TenantID,
			Description:   req.Description,
			EffectiveDate: date,
			Lines:         lines,
		})
		if err != nil {
			h.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, entry)

	case http.MethodGet:
		tenant := tenantID(r)
		if tenant == "" {
			http.Error(w, "Tenant ID is required", http.StatusBadRequest)
			return
		}
		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		pageSize, _ := strconv.Atoi(r.URL.Query().Get("page_size"))
		entries, err := h.posting.ListEntries(r.Context(), tenant, page, pageSize)
		if err != nil {
			h.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"entries": entries})

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// GetJournalEntry handles get journal entry HTTP requests.
func (h *HTTPHandler) GetJournalEntry(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	tenant := tenantID(r)
	id := r.URL.Query().Get("id")
	if tenant == "" || id == "" {
		http.Error(w, "Tenant ID and entry ID are required", http.StatusBadRequest)
		return
	}
	entry, err := h.posting.GetEntry(r.Context(), tenant, id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

// ReverseJournalEntry handles reversal posting requests.
func (h *HTTPHandler) ReverseJournalEntry(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		TenantID    string `json:"tenant_id"`
		EntryID     string `json:"entry_id"`
		Description string `json:"description"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	entry, err := h.posting.ReverseEntry(r.Context(), req.TenantID, req.EntryID, req.Description)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

// SubmitMutation handles governed mutation submissions.
func (h *HTTPHandler) SubmitMutation(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		TenantID    string          `json:"tenant_id"`
		RequestedBy string          `json:"requested_by"`
		Intent      *service.Intent `json:"intent"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Intent == nil {
		http.Error(w, "Intent is required", http.StatusBadRequest)
		return
	}

	result, err := h.governance.Submit(r.Context(), req.TenantID, req.RequestedBy, req.Intent)
	if err != nil {
		h.writeError(w, err)
		return
	}

	body := map[string]interface{}{}
	status := http.StatusOK
	if result.Executed {
		body["status"] = "executed"
		if result.Entry != nil {
			body["entry"] = result.Entry
		}
		if result.Account != nil {
			body["account"] = result.Account
		}
	} else {
		status = http.StatusAccepted
		body["status"] = "queued"
		body["approval_request_id"] = result.RequestID
		body["reason"] = result.Reason
	}
	if result.Warning != "" {
		body["warning"] = result.Warning
	}
	writeJSON(w, status, body)
}

// DecideMutation handles approval decision submissions.
func (h *HTTPHandler) DecideMutation(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		TenantID  string  `json:"tenant_id"`
		RequestID string  `json:"request_id"`
		Level     int     `json:"level"`
		UserID    string  `json:"user_id"`
		Decision  string  `json:"decision"`
		Comment   *string `json:"comment,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	result, err := h.governance.Decide(r.Context(), &service.DecideRequest{
		TenantID:  req.TenantID,
		RequestID: req.RequestID,
		Level:     req.Level,
		UserID:    req.UserID,
		Decision:  req.Decision,
		Comment:   req.Comment,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}

	body := map[string]interface{}{
		"request":  result.Request,
		"executed": result.Executed,
	}
	if result.Entry != nil {
		body["entry"] = result.Entry
	}
	if result.Account != nil {
		body["account"] = result.Account
	}
	writeJSON(w, http.StatusOK, body)
}

// ListPendingApprovals handles pending approval list requests.
func (h *HTTPHandler) ListPendingApprovals(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	tenant := tenantID(r)
	if tenant == "" {
		http.Error(w, "Tenant ID is required", http.StatusBadRequest)
		return
	}
	requests, err := h.workflow.ListPending(r.Context(), tenant)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"requests": requests})
}

// GetApproval handles get approval request HTTP requests.
func (h *HTTPHandler) GetApproval(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	tenant := tenantID(r)
	id := r.URL.Query().Get("id")
	if tenant == "" || id == "" {
		http.Error(w, "Tenant ID and request ID are required", http.StatusBadRequest)
		return
	}
	request, err := h.workflow.GetRequest(r.Context(), tenant, id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, request)
}

// ListApprovalsByRequester handles requester history requests.
func (h *HTTPHandler) ListApprovalsByRequester(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	tenant := tenantID(r)
	requestedBy := r.URL.Query().Get("requested_by")
	if tenant == "" || requestedBy == "" {
		http.Error(w, "Tenant ID and requester are required", http.StatusBadRequest)
		return
	}
	requests, err := h.workflow.ListByRequester(r.Context(), tenant, requestedBy)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"requests": requests})
}

// ApprovalSuggestions proxies advisory suggestions for a pending request.
func (h *HTTPHandler) ApprovalSuggestions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	tenant := tenantID(r)
	module := r.URL.Query().Get("module")
	if tenant == "" {
		http.Error(w, "Tenant ID is required", http.StatusBadRequest)
		return
	}
	if h.advisory == nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{"suggestions": []interface{}{}})
		return
	}
	suggestions, err := h.advisory.GetSuggestions(r.Context(), tenant, module, nil)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"suggestions": suggestions})
}

// SetAllocation handles budget allocation writes.
func (h *HTTPHandler) SetAllocation(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		TenantID  string          `json:"tenant_id"`
		PeriodID  string          `json:"period_id"`
		AccountID string          `json:"account_id"`
		Limit     decimal.Decimal `json:"limit"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	allocation, err := h.budgets.SetAllocation(r.Context(), &service.SetAllocationRequest{
		TenantID:  req.TenantID,
		PeriodID:  req.PeriodID,
		AccountID: req.AccountID,
		Limit:     req.Limit,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, allocation)
}

// GetVariance handles budget variance reads.
func (h *HTTPHandler) GetVariance(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	tenant := tenantID(r)
	periodID := r.URL.Query().Get("period_id")
	if tenant == "" || periodID == "" {
		http.Error(w, "Tenant ID and period ID are required", http.StatusBadRequest)
		return
	}
	rows, err := h.budgets.GetVariance(r.Context(), tenant, periodID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"variance": rows})
}

// Periods handles POST (create) and GET (list) on the fiscal period
// resource.
func (h *HTTPHandler) Periods(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		var req struct {
			TenantID  string `json:"tenant_id"`
			Name      string `json:"name"`
			StartDate string `json:"start_date"`
			EndDate   string `json:"end_date"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
		start, err := parseDate(req.StartDate)
		if err != nil {
			h.writeError(w, err)
			return
		}
		end, err := parseDate(req.EndDate)
		if err != nil {
			h.writeError(w, err)
			return
		}
		period, err := h.budgets.CreatePeriod(r.Context(), &service.CreatePeriodRequest{
			TenantID:  req.TenantID,
			Name:      req.Name,
			StartDate: start,
			EndDate:   end,
		})
		if err != nil {
			h.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, period)

	case http.MethodGet:
		tenant := tenantID(r)
		if tenant == "" {
			http.Error(w, "Tenant ID is required", http.StatusBadRequest)
			return
		}
		periods, err := h.budgets.ListPeriods(r.Context(), tenant)
		if err != nil {
			h.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"periods": periods})

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// ClosePeriod handles period close requests.
func (h *HTTPHandler) ClosePeriod(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		TenantID string `json:"tenant_id"`
		PeriodID string `json:"period_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	period, err := h.budgets.ClosePeriod(r.Context(), req.TenantID, req.PeriodID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, period)
}

// Policy handles GET and PUT on the tenant policy resource.
func (h *HTTPHandler) Policy(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		tenant := tenantID(r)
		if tenant == "" {
			http.Error(w, "Tenant ID is required", http.StatusBadRequest)
			return
		}
		policy, err := h.policy.GetPolicy(r.Context(), tenant)
		if err != nil {
			h.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, policy)

	case http.MethodPut, http.MethodPost:
		var req struct {
			TenantID          string                    `json:"tenant_id"`
			AbsoluteCeiling   *decimal.Decimal          `json:"absolute_ceiling,omitempty"`
			BudgetEnforcement string                    `json:"budget_enforcement"`
			BudgetThreshold   decimal.Decimal           `json:"budget_threshold"`
			DefaultLevels     int                       `json:"default_levels"`
			ModulePolicies    []repository.ModulePolicy `json:"module_policies,omitempty"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
		policy, err := h.policy.UpsertPolicy(r.Context(), &repository.PolicyConfig{
			TenantID:          req.TenantID,
			AbsoluteCeiling:   req.AbsoluteCeiling,
			BudgetEnforcement: req.BudgetEnforcement,
			BudgetThreshold:   req.BudgetThreshold,
			DefaultLevels:     req.DefaultLevels,
			ModulePolicies:    req.ModulePolicies,
		})
		if err != nil {
			h.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, policy)

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}
