package wallet

import (
	"github.com/tapcard/tapcard-api/internal/domain/balance"
)

// CheckFunding enforces which balance may fund which purpose.
// Wallet funds anything; loan funds only purchases and repayments.
func CheckFunding(purpose Purpose, source balance.Kind) error {
	if source != balance.KindLoan {
		return nil
	}
	switch purpose {
	case PurposePurchase, PurposeRepayment:
		return nil
	default:
		return ErrLoanNotTransferable
	}
}
