package tokens

import (
	"context"
	"encoding/json"
	"errors"
)

var (
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrInvalidRecipient    = errors.New("invalid recipient")
	// The token refused the transfer and no funds moved
	ErrRejected = errors.New("transfer rejected")
)

// Maximum memo length accepted by SIP-010 style transfers
const MaxMemoLength = 34

type (
	TransferRequest struct {
		// Token contract the transfer is executed against
		Contract string
		// Amount in the token base unit
		Amount uint64
		// Account debited
		Sender string
		// Account credited
		Recipient string
		// Optional memo attached to the transfer
		Memo []byte
	}
	Transfer struct {
		// Identifier of the transaction
		TxId string
		// Account debited
		Sender string
		// Account credited
		Recipient string
		// Amount transfered
		Amount uint64
	}
	BalanceRequest struct {
		// Token contract to query
		Contract string
		// Account to query
		Owner string
	}
	Balance struct {
		// Account queried
		Owner string
		// Amount held by the account
		Amount uint64
	}
)

// Token is a fungible token the ledger moves funds with
type Token interface {
	// Moves Amount from Sender to Recipient
	Transfer(ctx context.Context, req TransferRequest) (transfer Transfer, err error)

	// Returns the balance of an account
	Balance(ctx context.Context, req BalanceRequest) (balance Balance, err error)
}

// Validate rejects requests no token implementation can execute
func (r *TransferRequest) Validate() (err error) {
	if r.Amount == 0 {
		return ErrInvalidAmount
	}
	if r.Sender == "" || r.Recipient == "" || r.Sender == r.Recipient {
		return ErrInvalidRecipient
	}
	if len(r.Memo) > MaxMemoLength {
		return errors.New("memo too long")
	}
	return nil
}

// Rejected reports whether err proves the transfer was not executed. Any other error leaves the
// outcome unknown.
func Rejected(err error) (ok bool) {
	return errors.Is(err, ErrRejected) ||
		errors.Is(err, ErrInsufficientBalance) ||
		errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrInvalidRecipient)
}

func (t *Transfer) String() (s string) {
	contents, _ := json.Marshal(t)
	return string(contents)
}
