package icp

import (
	"context"
	"fmt"
	"math/big"

	"github.com/aviate-labs/agent-go/candid/idl"
	"github.com/aviate-labs/agent-go/principal"

	x402 "github.com/ldclabs/x402-icp-go"
)

// Ledger is the slice of the ICRC-1/ICRC-2 interface the payment flow
// needs: metadata, balances, allowances, approvals, and direct transfers.
type Ledger interface {
	Metadata(ctx context.Context) (*x402.TokenInfo, error)
	BalanceOf(ctx context.Context, owner principal.Principal) (*big.Int, error)
	Allowance(ctx context.Context, owner, spender principal.Principal) (*x402.Allowance, error)
	Approve(ctx context.Context, spender principal.Principal, amount *big.Int, expiresAt uint64) (*big.Int, error)
	Transfer(ctx context.Context, to principal.Principal, amount *big.Int) (*big.Int, error)
}

// account is the candid ICRC-1 Account record.
type account struct {
	Owner      principal.Principal `ic:"owner"`
	Subaccount *[]byte             `ic:"subaccount"`
}

// metadataValue is the candid ICRC-1 MetadataValue variant.
type metadataValue struct {
	Nat  *idl.Nat `ic:"Nat,variant"`
	Int  *idl.Int `ic:"Int,variant"`
	Text *string  `ic:"Text,variant"`
	Blob *[]byte  `ic:"Blob,variant"`
}

// metadataEntry is one (key, value) pair of icrc1_metadata.
type metadataEntry struct {
	Key   string        `ic:"0"`
	Value metadataValue `ic:"1"`
}

// allowanceReply is the candid icrc2_allowance reply record.
type allowanceReply struct {
	Allowance idl.Nat `ic:"allowance"`
	ExpiresAt *uint64 `ic:"expires_at"`
}

type allowanceArgs struct {
	Account account `ic:"account"`
	Spender account `ic:"spender"`
}

type approveArgs struct {
	FromSubaccount    *[]byte  `ic:"from_subaccount"`
	Spender           account  `ic:"spender"`
	Amount            idl.Nat  `ic:"amount"`
	ExpectedAllowance *idl.Nat `ic:"expected_allowance"`
	ExpiresAt         *uint64  `ic:"expires_at"`
	Fee               *idl.Nat `ic:"fee"`
	Memo              *[]byte  `ic:"memo"`
	CreatedAtTime     *uint64  `ic:"created_at_time"`
}

type transferArgs struct {
	FromSubaccount *[]byte  `ic:"from_subaccount"`
	To             account  `ic:"to"`
	Amount         idl.Nat  `ic:"amount"`
	Fee            *idl.Nat `ic:"fee"`
	Memo           *[]byte  `ic:"memo"`
	CreatedAtTime  *uint64  `ic:"created_at_time"`
}

// transferError is the candid ICRC-1 TransferError variant. ICRC-2's
// ApproveError is a superset, so one type decodes both.
type transferError struct {
	BadFee *struct {
		ExpectedFee idl.Nat `ic:"expected_fee"`
	} `ic:"BadFee,variant"`
	BadBurn *struct {
		MinBurnAmount idl.Nat `ic:"min_burn_amount"`
	} `ic:"BadBurn,variant"`
	InsufficientFunds *struct {
		Balance idl.Nat `ic:"balance"`
	} `ic:"InsufficientFunds,variant"`
	AllowanceChanged *struct {
		CurrentAllowance idl.Nat `ic:"current_allowance"`
	} `ic:"AllowanceChanged,variant"`
	Expired *struct {
		LedgerTime uint64 `ic:"ledger_time"`
	} `ic:"Expired,variant"`
	TooOld          *idl.Null `ic:"TooOld,variant"`
	CreatedInFuture *struct {
		LedgerTime uint64 `ic:"ledger_time"`
	} `ic:"CreatedInFuture,variant"`
	Duplicate *struct {
		DuplicateOf idl.Nat `ic:"duplicate_of"`
	} `ic:"Duplicate,variant"`
	TemporarilyUnavailable *idl.Null `ic:"TemporarilyUnavailable,variant"`
	GenericError           *struct {
		ErrorCode idl.Nat `ic:"error_code"`
		Message   string  `ic:"message"`
	} `ic:"GenericError,variant"`
}

func (e transferError) message() string {
	switch {
	case e.BadFee != nil:
		return fmt.Sprintf("bad fee, expected %s", e.BadFee.ExpectedFee.BigInt())
	case e.BadBurn != nil:
		return fmt.Sprintf("bad burn, minimum %s", e.BadBurn.MinBurnAmount.BigInt())
	case e.InsufficientFunds != nil:
		return fmt.Sprintf("insufficient funds, balance %s", e.InsufficientFunds.Balance.BigInt())
	case e.AllowanceChanged != nil:
		return fmt.Sprintf("allowance changed, current %s", e.AllowanceChanged.CurrentAllowance.BigInt())
	case e.Expired != nil:
		return fmt.Sprintf("approval expired at ledger time %d", e.Expired.LedgerTime)
	case e.TooOld != nil:
		return "transaction too old"
	case e.CreatedInFuture != nil:
		return fmt.Sprintf("created in future, ledger time %d", e.CreatedInFuture.LedgerTime)
	case e.Duplicate != nil:
		return fmt.Sprintf("duplicate of block %s", e.Duplicate.DuplicateOf.BigInt())
	case e.TemporarilyUnavailable != nil:
		return "ledger temporarily unavailable"
	case e.GenericError != nil:
		return e.GenericError.Message
	default:
		return "unknown ledger error"
	}
}

// transferResult is the candid Result of icrc1_transfer and icrc2_approve.
type transferResult struct {
	Ok  *idl.Nat       `ic:"Ok,variant"`
	Err *transferError `ic:"Err,variant"`
}

func (r transferResult) unwrap(method string) (*big.Int, error) {
	switch {
	case r.Ok != nil:
		return r.Ok.BigInt(), nil
	case r.Err != nil:
		return nil, &RemoteError{Kind: RemoteGeneric, Method: method, Message: r.Err.message()}
	default:
		return nil, fmt.Errorf("icp: malformed %s reply: neither Ok nor Err set", method)
	}
}

// icrcLedger binds Ledger to one token ledger canister through a Caller.
type icrcLedger struct {
	caller     Caller
	canisterID principal.Principal
}

// NewLedger creates an ICRC-1/ICRC-2 ledger binding for the given
// canister.
func NewLedger(caller Caller, canisterID principal.Principal) Ledger {
	return &icrcLedger{caller: caller, canisterID: canisterID}
}

// Metadata resolves the well-known icrc1:* metadata keys into a TokenInfo.
// Unknown keys are ignored.
func (l *icrcLedger) Metadata(ctx context.Context) (*x402.TokenInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var entries []metadataEntry
	if err := l.caller.Query(l.canisterID, "icrc1_metadata", []any{}, []any{&entries}); err != nil {
		return nil, fmt.Errorf("icrc1_metadata: %w", err)
	}

	info := &x402.TokenInfo{CanisterID: l.canisterID}
	for _, entry := range entries {
		switch entry.Key {
		case "icrc1:name":
			if entry.Value.Text != nil {
				info.Name = *entry.Value.Text
			}
		case "icrc1:symbol":
			if entry.Value.Text != nil {
				info.Symbol = *entry.Value.Text
			}
		case "icrc1:decimals":
			if entry.Value.Nat != nil {
				info.Decimals = int(entry.Value.Nat.BigInt().Int64())
			}
		case "icrc1:fee":
			if entry.Value.Nat != nil {
				info.Fee = entry.Value.Nat.BigInt()
			}
		case "icrc1:logo":
			if entry.Value.Text != nil {
				info.Logo = *entry.Value.Text
			}
		}
	}
	if info.Symbol == "" {
		return nil, fmt.Errorf("icrc1_metadata: ledger %s reports no symbol", l.canisterID.Encode())
	}
	return info, nil
}

func (l *icrcLedger) BalanceOf(ctx context.Context, owner principal.Principal) (*big.Int, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var balance idl.Nat
	err := l.caller.Query(l.canisterID, "icrc1_balance_of",
		[]any{account{Owner: owner}}, []any{&balance})
	if err != nil {
		return nil, fmt.Errorf("icrc1_balance_of: %w", err)
	}
	return balance.BigInt(), nil
}

func (l *icrcLedger) Allowance(ctx context.Context, owner, spender principal.Principal) (*x402.Allowance, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var reply allowanceReply
	err := l.caller.Query(l.canisterID, "icrc2_allowance",
		[]any{allowanceArgs{
			Account: account{Owner: owner},
			Spender: account{Owner: spender},
		}}, []any{&reply})
	if err != nil {
		return nil, fmt.Errorf("icrc2_allowance: %w", err)
	}

	out := &x402.Allowance{Allowance: reply.Allowance.BigInt()}
	if reply.ExpiresAt != nil {
		out.ExpiresAt = *reply.ExpiresAt
	}
	return out, nil
}

// Approve grants the spender an allowance of amount, expiring at expiresAt
// (nanoseconds since epoch, zero for no expiry). Returns the block index.
func (l *icrcLedger) Approve(ctx context.Context, spender principal.Principal, amount *big.Int, expiresAt uint64) (*big.Int, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	args := approveArgs{
		Spender: account{Owner: spender},
		Amount:  idl.NewBigNat(amount),
	}
	if expiresAt > 0 {
		args.ExpiresAt = &expiresAt
	}

	var result transferResult
	if err := l.caller.Call(l.canisterID, "icrc2_approve", []any{args}, []any{&result}); err != nil {
		return nil, fmt.Errorf("icrc2_approve: %w", err)
	}
	return result.unwrap("icrc2_approve")
}

// Transfer moves amount to the recipient's default account. Returns the
// block index.
func (l *icrcLedger) Transfer(ctx context.Context, to principal.Principal, amount *big.Int) (*big.Int, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	args := transferArgs{
		To:     account{Owner: to},
		Amount: idl.NewBigNat(amount),
	}

	var result transferResult
	if err := l.caller.Call(l.canisterID, "icrc1_transfer", []any{args}, []any{&result}); err != nil {
		return nil, fmt.Errorf("icrc1_transfer: %w", err)
	}
	return result.unwrap("icrc1_transfer")
}
