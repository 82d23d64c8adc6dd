package icp

import (
	"context"
	"fmt"
	"math/big"

	"github.com/aviate-labs/agent-go/candid/idl"
	"github.com/aviate-labs/agent-go/principal"

	x402 "github.com/ldclabs/x402-icp-go"
)

// Caller dispatches candid calls to canisters. agent.Agent satisfies it;
// tests substitute fakes.
type Caller interface {
	// Query performs a read-only query call.
	Query(canisterID principal.Principal, methodName string, args []any, values []any) error

	// Call performs a state-changing update call.
	Call(canisterID principal.Principal, methodName string, args []any, values []any) error
}

// Facilitator is the payer-facing interface of an x402 facilitator
// canister: advertised state, nonce allocation, and the payer's own
// settlement history.
type Facilitator interface {
	Info(ctx context.Context) (*x402.StateInfo, error)
	NextNonce(ctx context.Context) (uint64, error)
	MyInfo(ctx context.Context) (*PayerState, error)
	MyPaymentLogs(ctx context.Context, take uint32, prev *uint64) ([]x402.PaymentLogInfo, error)
}

// PayerState is the facilitator's view of the calling payer: the next
// nonce it will accept, total amounts sent per asset, and settled log ids.
type PayerState struct {
	NextNonce uint64
	TotalSent map[string]*big.Int
	Logs      []uint64
}

// Candid record shapes of the facilitator canister interface.

type supportedKindCan struct {
	X402Version uint8  `ic:"x402_version"`
	Scheme      string `ic:"scheme"`
	Network     string `ic:"network"`
}

type assetInfoCan struct {
	Name        string  `ic:"name"`
	Symbol      string  `ic:"symbol"`
	Decimals    uint8   `ic:"decimals"`
	TransferFee idl.Nat `ic:"transfer_fee"`
	PaymentFee  idl.Nat `ic:"payment_fee"`
	Logo        *string `ic:"logo"`
}

type assetEntry struct {
	Principal principal.Principal `ic:"0"`
	Info      assetInfoCan        `ic:"1"`
}

type feeEntry struct {
	Principal principal.Principal `ic:"0"`
	Amount    idl.Nat             `ic:"1"`
}

type stateInfoCan struct {
	Name               string               `ic:"name"`
	SupportedPayments  []supportedKindCan   `ic:"supported_payments"`
	SupportedAssets    []assetEntry         `ic:"supported_assets"`
	TotalCollectedFees []feeEntry           `ic:"total_collected_fees"`
	TotalWithdrawnFees []feeEntry           `ic:"total_withdrawn_fees"`
	GovernanceCanister *principal.Principal `ic:"governance_canister"`
	KeyName            string               `ic:"key_name"`
}

type payerStateCan struct {
	NextNonce uint64     `ic:"next_nonce"`
	TotalSent []feeEntry `ic:"total_sent"`
	Logs      []uint64   `ic:"logs"`
}

type paymentLogCan struct {
	ID        uint64              `ic:"id"`
	Scheme    string              `ic:"scheme"`
	Asset     principal.Principal `ic:"asset"`
	From      principal.Principal `ic:"from"`
	To        principal.Principal `ic:"to"`
	Value     string              `ic:"value"`
	Fee       string              `ic:"fee"`
	ExpiresAt uint64              `ic:"expires_at"`
	Nonce     uint64              `ic:"nonce"`
	Timestamp uint64              `ic:"timestamp"`
}

// CanisterFacilitator binds Facilitator to an x402 facilitator canister
// through a Caller.
type CanisterFacilitator struct {
	caller     Caller
	canisterID principal.Principal
}

// NewCanisterFacilitator creates a facilitator binding for the given
// canister.
func NewCanisterFacilitator(caller Caller, canisterID principal.Principal) *CanisterFacilitator {
	return &CanisterFacilitator{caller: caller, canisterID: canisterID}
}

// CanisterID returns the bound facilitator canister.
func (f *CanisterFacilitator) CanisterID() principal.Principal {
	return f.canisterID
}

// Network returns the x402 network identifier of this facilitator.
func (f *CanisterFacilitator) Network() string {
	return x402.ToNetwork(f.canisterID)
}

// Info fetches the facilitator-advertised state.
func (f *CanisterFacilitator) Info(ctx context.Context) (*x402.StateInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var result Result[stateInfoCan]
	if err := f.caller.Query(f.canisterID, "info", []any{}, []any{&result}); err != nil {
		return nil, fmt.Errorf("info: %w", err)
	}
	state, err := result.Unwrap("info")
	if err != nil {
		return nil, err
	}

	info := &x402.StateInfo{
		Name:               state.Name,
		KeyName:            state.KeyName,
		SupportedPayments:  make([]x402.SupportedKind, 0, len(state.SupportedPayments)),
		SupportedAssets:    make(map[string]x402.AssetInfo, len(state.SupportedAssets)),
		TotalCollectedFees: feeMap(state.TotalCollectedFees),
		TotalWithdrawnFees: feeMap(state.TotalWithdrawnFees),
	}
	for _, kind := range state.SupportedPayments {
		info.SupportedPayments = append(info.SupportedPayments, x402.SupportedKind{
			X402Version: int(kind.X402Version),
			Scheme:      kind.Scheme,
			Network:     kind.Network,
		})
	}
	for _, entry := range state.SupportedAssets {
		asset := x402.AssetInfo{
			Name:        entry.Info.Name,
			Symbol:      entry.Info.Symbol,
			Decimals:    int(entry.Info.Decimals),
			TransferFee: entry.Info.TransferFee.BigInt(),
			PaymentFee:  entry.Info.PaymentFee.BigInt(),
		}
		if entry.Info.Logo != nil {
			asset.Logo = *entry.Info.Logo
		}
		info.SupportedAssets[entry.Principal.Encode()] = asset
	}
	if state.GovernanceCanister != nil {
		info.GovernanceCanister = state.GovernanceCanister.Encode()
	}
	return info, nil
}

// NextNonce fetches the next nonce the facilitator will accept from the
// calling payer. The value is never cached; each authorization fetches it
// fresh.
func (f *CanisterFacilitator) NextNonce(ctx context.Context) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	var result Result[uint64]
	if err := f.caller.Query(f.canisterID, "next_nonce", []any{}, []any{&result}); err != nil {
		return 0, fmt.Errorf("next_nonce: %w", err)
	}
	return result.Unwrap("next_nonce")
}

// MyInfo fetches the facilitator's state for the calling payer.
func (f *CanisterFacilitator) MyInfo(ctx context.Context) (*PayerState, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var result Result[payerStateCan]
	if err := f.caller.Query(f.canisterID, "my_info", []any{}, []any{&result}); err != nil {
		return nil, fmt.Errorf("my_info: %w", err)
	}
	state, err := result.Unwrap("my_info")
	if err != nil {
		return nil, err
	}

	return &PayerState{
		NextNonce: state.NextNonce,
		TotalSent: feeMap(state.TotalSent),
		Logs:      state.Logs,
	}, nil
}

// MyPaymentLogs pages through the calling payer's settlement history. The
// facilitator clamps take to [2, 100]; prev resumes after a log id.
func (f *CanisterFacilitator) MyPaymentLogs(ctx context.Context, take uint32, prev *uint64) ([]x402.PaymentLogInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var result Result[[]paymentLogCan]
	if err := f.caller.Query(f.canisterID, "my_payment_logs", []any{take, prev}, []any{&result}); err != nil {
		return nil, fmt.Errorf("my_payment_logs: %w", err)
	}
	logs, err := result.Unwrap("my_payment_logs")
	if err != nil {
		return nil, err
	}

	out := make([]x402.PaymentLogInfo, 0, len(logs))
	for _, log := range logs {
		out = append(out, x402.PaymentLogInfo{
			ID:        log.ID,
			Scheme:    log.Scheme,
			Asset:     log.Asset.Encode(),
			From:      log.From.Encode(),
			To:        log.To.Encode(),
			Value:     log.Value,
			Fee:       log.Fee,
			ExpiresAt: log.ExpiresAt,
			Nonce:     log.Nonce,
			Timestamp: log.Timestamp,
		})
	}
	return out, nil
}

func feeMap(entries []feeEntry) map[string]*big.Int {
	out := make(map[string]*big.Int, len(entries))
	for _, entry := range entries {
		out[entry.Principal.Encode()] = entry.Amount.BigInt()
	}
	return out
}
