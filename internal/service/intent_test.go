package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jengahub/be-gl-governance/internal/apperrors"
)

func TestIntentCodec_RoundTripPreservesAmountPrecision(t *testing.T) {
	t.Parallel()

	original := &Intent{
		Kind: IntentWriteOffStock,
		WriteOffStock: &WriteOffStockIntent{
			InventoryAccountID: "inv-1",
			ShrinkageAccountID: "shr-1",
			Amount:             dec("1234.5678"),
			Quantity:           dec("3"),
			ItemName:           "50kg maize flour",
			EffectiveDate:      date("2026-03-01"),
		},
	}

	payload, err := EncodeIntent(original)
	require.NoError(t, err)

	decoded, err := DecodeIntent(payload)
	require.NoError(t, err)
	require.NotNil(t, decoded.WriteOffStock)
	assert.Equal(t, original.Kind, decoded.Kind)
	assert.True(t, decoded.WriteOffStock.Amount.Equal(dec("1234.5678")))
	assert.Equal(t, "50kg maize flour", decoded.WriteOffStock.ItemName)
}

func TestDecodeIntent_RejectsMalformedPayloads(t *testing.T) {
	t.Parallel()

	_, err := DecodeIntent([]byte("{not json"))
	require.Error(t, err)

	// Valid JSON, unknown kind.
	_, err = DecodeIntent([]byte(`{"kind":"mint_money"}`))
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeInvalidInput, apperrors.Code(err))

	// Known kind, missing body.
	_, err = DecodeIntent([]byte(`{"kind":"transfer_funds"}`))
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeInvalidInput, apperrors.Code(err))
}

func TestIntentValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		intent  *Intent
		wantErr bool
	}{
		{
			name: "transfer to same account fails",
			intent: &Intent{
				Kind: IntentTransferFunds,
				TransferFunds: &TransferFundsIntent{
					FromAccountID: "a", ToAccountID: "a", Amount: dec("10"),
				},
			},
			wantErr: true,
		},
		{
			name: "zero amount fails",
			intent: &Intent{
				Kind: IntentTransferFunds,
				TransferFunds: &TransferFundsIntent{
					FromAccountID: "a", ToAccountID: "b", Amount: dec("0"),
				},
			},
			wantErr: true,
		},
		{
			name: "valid transfer",
			intent: &Intent{
				Kind: IntentTransferFunds,
				TransferFunds: &TransferFundsIntent{
					FromAccountID: "a", ToAccountID: "b", Amount: dec("10"),
				},
			},
		},
		{
			name: "negative discount ratio fails",
			intent: &Intent{
				Kind: IntentFinalizeInvoice,
				FinalizeInvoice: &FinalizeInvoiceIntent{
					ReceivableAccountID: "a", RevenueAccountID: "b",
					Amount: dec("10"), DiscountRatio: decPtr("-0.1"),
				},
			},
			wantErr: true,
		},
		{
			name: "tax return valid",
			intent: &Intent{
				Kind: IntentFileTaxReturn,
				FileTaxReturn: &FileTaxReturnIntent{
					TaxExpenseAccountID: "a", TaxPayableAccountID: "b",
					Amount: dec("10"), ReturnPeriod: "2026-Q1",
				},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.intent.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestIntentModuleAndBudgetAccount(t *testing.T) {
	t.Parallel()

	po := &Intent{
		Kind: IntentCreatePurchaseOrder,
		CreatePurchaseOrder: &CreatePurchaseOrderIntent{
			ExpenseAccountID: "exp-1", PayableAccountID: "pay-1", Amount: dec("10"),
		},
	}
	assert.Equal(t, ModuleProcurement, po.Module())
	assert.Equal(t, "exp-1", po.BudgetAccountID())

	invoice := &Intent{
		Kind: IntentFinalizeInvoice,
		FinalizeInvoice: &FinalizeInvoiceIntent{
			ReceivableAccountID: "ar-1", RevenueAccountID: "rev-1", Amount: dec("10"),
		},
	}
	assert.Equal(t, ModuleSales, invoice.Module())
	// Invoices do not project against a budget account.
	assert.Empty(t, invoice.BudgetAccountID())
	assert.Nil(t, invoice.Ratio())
}
