package ledger

import (
	"bytes"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Amount is an integer amount in minor currency units.
// The ledger may encode it as a JSON number, a decimal string or a float.
type Amount int64

func (a *Amount) UnmarshalJSON(data []byte) error {
	data = bytes.Trim(bytes.TrimSpace(data), `"`)
	if len(data) == 0 || string(data) == "null" {
		*a = 0
		return nil
	}

	d, err := decimal.NewFromString(string(data))
	if err != nil {
		return fmt.Errorf("invalid ledger amount %q: %w", data, err)
	}
	*a = Amount(d.IntPart())
	return nil
}

func (a Amount) Int64() int64 {
	return int64(a)
}

type Ledger struct {
	LedgerID  string                 `json:"ledger_id"`
	Name      string                 `json:"name"`
	CreatedAt time.Time              `json:"created_at"`
	MetaData  map[string]interface{} `json:"meta_data,omitempty"`
}

type BalanceRequest struct {
	LedgerID   string                 `json:"ledger_id"`
	IdentityID string                 `json:"identity_id,omitempty"`
	Currency   string                 `json:"currency"`
	MetaData   map[string]interface{} `json:"meta_data,omitempty"`
}

type Balance struct {
	BalanceID     string                 `json:"balance_id"`
	LedgerID      string                 `json:"ledger_id"`
	IdentityID    string                 `json:"identity_id,omitempty"`
	Currency      string                 `json:"currency"`
	Balance       Amount                 `json:"balance"`
	CreditBalance Amount                 `json:"credit_balance"`
	DebitBalance  Amount                 `json:"debit_balance"`
	CreatedAt     time.Time              `json:"created_at"`
	MetaData      map[string]interface{} `json:"meta_data,omitempty"`
}

type TransactionRequest struct {
	Amount         int64                  `json:"amount"`
	Precision      int64                  `json:"precision"`
	Currency       string                 `json:"currency"`
	Source         string                 `json:"source"`
	Destination    string                 `json:"destination"`
	Reference      string                 `json:"reference"`
	Description    string                 `json:"description,omitempty"`
	AllowOverdraft bool                   `json:"allow_overdraft,omitempty"`
	MetaData       map[string]interface{} `json:"meta_data,omitempty"`
}

type Transaction struct {
	TransactionID string                 `json:"transaction_id"`
	Source        string                 `json:"source"`
	Destination   string                 `json:"destination"`
	Reference     string                 `json:"reference"`
	Amount        Amount                 `json:"amount"`
	Currency      string                 `json:"currency"`
	Status        string                 `json:"status"`
	Description   string                 `json:"description,omitempty"`
	CreatedAt     time.Time              `json:"created_at"`
	MetaData      map[string]interface{} `json:"meta_data,omitempty"`
}
