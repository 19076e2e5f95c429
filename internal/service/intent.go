package service

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jengahub/be-gl-governance/internal/apperrors"
)

// Intent kinds accepted by the governed mutation façade.
const (
	IntentTransferFunds       = "transfer_funds"
	IntentRegisterAccount     = "register_account"
	IntentCreatePurchaseOrder = "create_purchase_order"
	IntentWriteOffStock       = "write_off_stock"
	IntentFinalizeInvoice     = "finalize_invoice"
	IntentFileTaxReturn       = "file_tax_return"
)

// Module tags under which intents are evaluated and gated.
const (
	ModuleTreasury    = "treasury"
	ModuleAccounts    = "accounts"
	ModuleProcurement = "procurement"
	ModuleInventory   = "inventory"
	ModuleSales       = "sales"
	ModuleTax         = "tax"
)

// Intent is a serializable mutation request. Exactly one of the typed
// fields matching Kind is set. The same encoded form is stored on gated
// approval requests and replayed verbatim after full approval, so Clear and
// Approved mutations run through identical code.
type Intent struct {
	Kind string `json:"kind"`

	TransferFunds       *TransferFundsIntent       `json:"transfer_funds,omitempty"`
	RegisterAccount     *RegisterAccountIntent     `json:"register_account,omitempty"`
	CreatePurchaseOrder *CreatePurchaseOrderIntent `json:"create_purchase_order,omitempty"`
	WriteOffStock       *WriteOffStockIntent       `json:"write_off_stock,omitempty"`
	FinalizeInvoice     *FinalizeInvoiceIntent     `json:"finalize_invoice,omitempty"`
	FileTaxReturn       *FileTaxReturnIntent       `json:"file_tax_return,omitempty"`
}

// TransferFundsIntent moves an amount between two accounts of the same
// tenant.
type TransferFundsIntent struct {
	FromAccountID string          `json:"from_account_id"`
	ToAccountID   string          `json:"to_account_id"`
	Amount        decimal.Decimal `json:"amount"`
	Description   string          `json:"description"`
	EffectiveDate time.Time       `json:"effective_date"`
}

// RegisterAccountIntent adds an account to the chart of accounts.
type RegisterAccountIntent struct {
	Code               string  `json:"code"`
	Name               string  `json:"name"`
	Type               string  `json:"type"`
	Subtype            *string `json:"subtype,omitempty"`
	IsTrackedForBudget bool    `json:"is_tracked_for_budget"`
}

// CreatePurchaseOrderIntent commits a purchase: expense debit against a
// payable credit.
type CreatePurchaseOrderIntent struct {
	ExpenseAccountID string          `json:"expense_account_id"`
	PayableAccountID string          `json:"payable_account_id"`
	Amount           decimal.Decimal `json:"amount"`
	Supplier         string          `json:"supplier"`
	Description      string          `json:"description"`
	EffectiveDate    time.Time       `json:"effective_date"`
}

// WriteOffStockIntent records an inventory shrinkage: the quantity
// adjustment and its shrinkage journal entry commit as one mutation.
type WriteOffStockIntent struct {
	InventoryAccountID string          `json:"inventory_account_id"`
	ShrinkageAccountID string          `json:"shrinkage_account_id"`
	Amount             decimal.Decimal `json:"amount"`
	Quantity           decimal.Decimal `json:"quantity"`
	ItemName           string          `json:"item_name"`
	EffectiveDate      time.Time       `json:"effective_date"`
}

// FinalizeInvoiceIntent posts a sales invoice: receivable debit against a
// revenue credit. DiscountRatio, when present, is the discount as a
// fraction of the gross amount and feeds the module ratio rule.
type FinalizeInvoiceIntent struct {
	ReceivableAccountID string           `json:"receivable_account_id"`
	RevenueAccountID    string           `json:"revenue_account_id"`
	Amount              decimal.Decimal  `json:"amount"`
	DiscountRatio       *decimal.Decimal `json:"discount_ratio,omitempty"`
	InvoiceNumber       string           `json:"invoice_number"`
	EffectiveDate       time.Time        `json:"effective_date"`
}

// FileTaxReturnIntent posts a tax liability: tax expense debit against a
// tax payable credit.
type FileTaxReturnIntent struct {
	TaxExpenseAccountID string          `json:"tax_expense_account_id"`
	TaxPayableAccountID string          `json:"tax_payable_account_id"`
	Amount              decimal.Decimal `json:"amount"`
	ReturnPeriod        string          `json:"return_period"`
	EffectiveDate       time.Time       `json:"effective_date"`
}

// Validate checks that the intent is well-formed: the kind is known, the
// matching typed field is set, and its amounts are positive.
func (i *Intent) Validate() error {
	switch i.Kind {
	case IntentTransferFunds:
		t := i.TransferFunds
		if t == nil {
			return apperrors.InvalidInput("transfer_funds", "intent body is required")
		}
		if t.FromAccountID == "" || t.ToAccountID == "" {
			return apperrors.InvalidInput("transfer_funds", "both accounts are required")
		}
		if t.FromAccountID == t.ToAccountID {
			return apperrors.InvalidInput("transfer_funds", "accounts must differ")
		}
		if !t.Amount.IsPositive() {
			return apperrors.InvalidInput("amount", "amount must be positive")
		}
	case IntentRegisterAccount:
		if i.RegisterAccount == nil {
			return apperrors.InvalidInput("register_account", "intent body is required")
		}
	case IntentCreatePurchaseOrder:
		t := i.CreatePurchaseOrder
		if t == nil {
			return apperrors.InvalidInput("create_purchase_order", "intent body is required")
		}
		if t.ExpenseAccountID == "" || t.PayableAccountID == "" {
			return apperrors.InvalidInput("create_purchase_order", "both accounts are required")
		}
		if !t.Amount.IsPositive() {
			return apperrors.InvalidInput("amount", "amount must be positive")
		}
	case IntentWriteOffStock:
		t := i.WriteOffStock
		if t == nil {
			return apperrors.InvalidInput("write_off_stock", "intent body is required")
		}
		if t.InventoryAccountID == "" || t.ShrinkageAccountID == "" {
			return apperrors.InvalidInput("write_off_stock", "both accounts are required")
		}
		if !t.Amount.IsPositive() {
			return apperrors.InvalidInput("amount", "amount must be positive")
		}
		if !t.Quantity.IsPositive() {
			return apperrors.InvalidInput("quantity", "quantity must be positive")
		}
	case IntentFinalizeInvoice:
		t := i.FinalizeInvoice
		if t == nil {
			return apperrors.InvalidInput("finalize_invoice", "intent body is required")
		}
		if t.ReceivableAccountID == "" || t.RevenueAccountID == "" {
			return apperrors.InvalidInput("finalize_invoice", "both accounts are required")
		}
		if !t.Amount.IsPositive() {
			return apperrors.InvalidInput("amount", "amount must be positive")
		}
		if t.DiscountRatio != nil && t.DiscountRatio.IsNegative() {
			return apperrors.InvalidInput("discount_ratio", "discount ratio cannot be negative")
		}
	case IntentFileTaxReturn:
		t := i.FileTaxReturn
		if t == nil {
			return apperrors.InvalidInput("file_tax_return", "intent body is required")
		}
		if t.TaxExpenseAccountID == "" || t.TaxPayableAccountID == "" {
			return apperrors.InvalidInput("file_tax_return", "both accounts are required")
		}
		if !t.Amount.IsPositive() {
			return apperrors.InvalidInput("amount", "amount must be positive")
		}
	default:
		return apperrors.InvalidInput("kind", "unknown intent kind")
	}
	return nil
}

// Module returns the module tag the intent is evaluated under.
func (i *Intent) Module() string {
	switch i.Kind {
	case IntentTransferFunds:
		return ModuleTreasury
	case IntentRegisterAccount:
		return ModuleAccounts
	case IntentCreatePurchaseOrder:
		return ModuleProcurement
	case IntentWriteOffStock:
		return ModuleInventory
	case IntentFinalizeInvoice:
		return ModuleSales
	case IntentFileTaxReturn:
		return ModuleTax
	}
	return ""
}

// Amount returns the monetary size the policy rules evaluate.
func (i *Intent) Amount() decimal.Decimal {
	switch i.Kind {
	case IntentTransferFunds:
		return i.TransferFunds.Amount
	case IntentCreatePurchaseOrder:
		return i.CreatePurchaseOrder.Amount
	case IntentWriteOffStock:
		return i.WriteOffStock.Amount
	case IntentFinalizeInvoice:
		return i.FinalizeInvoice.Amount
	case IntentFileTaxReturn:
		return i.FileTaxReturn.Amount
	}
	return decimal.Zero
}

// Ratio returns the caller-supplied fraction for the module ratio rule, or
// nil when the intent carries none.
func (i *Intent) Ratio() *decimal.Decimal {
	if i.Kind == IntentFinalizeInvoice {
		return i.FinalizeInvoice.DiscountRatio
	}
	return nil
}

// BudgetAccountID returns the account whose allocation the budget rule
// projects against, or empty when no single account is targeted.
func (i *Intent) BudgetAccountID() string {
	switch i.Kind {
	case IntentTransferFunds:
		return i.TransferFunds.ToAccountID
	case IntentCreatePurchaseOrder:
		return i.CreatePurchaseOrder.ExpenseAccountID
	case IntentWriteOffStock:
		return i.WriteOffStock.ShrinkageAccountID
	case IntentFileTaxReturn:
		return i.FileTaxReturn.TaxExpenseAccountID
	}
	return ""
}

// EffectiveDate returns the ledger date the intent posts under. Intents
// without a posting date report the current time.
func (i *Intent) EffectiveDate() time.Time {
	var t time.Time
	switch i.Kind {
	case IntentTransferFunds:
		t = i.TransferFunds.EffectiveDate
	case IntentCreatePurchaseOrder:
		t = i.CreatePurchaseOrder.EffectiveDate
	case IntentWriteOffStock:
		t = i.WriteOffStock.EffectiveDate
	case IntentFinalizeInvoice:
		t = i.FinalizeInvoice.EffectiveDate
	case IntentFileTaxReturn:
		t = i.FileTaxReturn.EffectiveDate
	}
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t
}

// EncodeIntent serializes an intent for storage on an approval request.
func EncodeIntent(i *Intent) ([]byte, error) {
	data, err := json.Marshal(i)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to encode intent")
	}
	return data, nil
}

// DecodeIntent restores an intent from a stored approval request payload.
func DecodeIntent(data []byte) (*Intent, error) {
	var i Intent
	if err := json.Unmarshal(data, &i); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to decode intent payload")
	}
	if err := i.Validate(); err != nil {
		return nil, err
	}
	return &i, nil
}
