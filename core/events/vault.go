package events

import (
	"math/big"
	"strconv"

	"slotvault/core/types"
	"slotvault/crypto"
)

const (
	// TypeVaultCreated is emitted when an owner's slot is allocated by its
	// first write.
	TypeVaultCreated = "vault.created"
	// TypeVaultUpdated is emitted for every subsequent write, including
	// writes that leave capacity unchanged.
	TypeVaultUpdated = "vault.updated"
)

// VaultCreated captures the first write to an owner's slot.
type VaultCreated struct {
	Owner    [32]byte
	Address  [32]byte
	Capacity uint64
	Balance  *big.Int
}

func (VaultCreated) EventType() string { return TypeVaultCreated }

func (e VaultCreated) Event() *types.Event {
	return &types.Event{Type: TypeVaultCreated, Attributes: map[string]string{
		"owner":    crypto.MustNewAddress(crypto.OwnerPrefix, e.Owner[:]).String(),
		"address":  crypto.MustNewAddress(crypto.SlotPrefix, e.Address[:]).String(),
		"capacity": strconv.FormatUint(e.Capacity, 10),
		"balance":  formatAmount(e.Balance),
	}}
}

// VaultUpdated captures a resize-and-write against an existing slot. Funded
// and Refunded report the rent reconciliation; at most one of them is
// non-zero.
type VaultUpdated struct {
	Owner       [32]byte
	Address     [32]byte
	OldCapacity uint64
	NewCapacity uint64
	Funded      *big.Int
	Refunded    *big.Int
}

func (VaultUpdated) EventType() string { return TypeVaultUpdated }

func (e VaultUpdated) Event() *types.Event {
	attrs := map[string]string{
		"owner":       crypto.MustNewAddress(crypto.OwnerPrefix, e.Owner[:]).String(),
		"address":     crypto.MustNewAddress(crypto.SlotPrefix, e.Address[:]).String(),
		"oldCapacity": strconv.FormatUint(e.OldCapacity, 10),
		"newCapacity": strconv.FormatUint(e.NewCapacity, 10),
	}
	if e.Funded != nil && e.Funded.Sign() > 0 {
		attrs["funded"] = formatAmount(e.Funded)
	}
	if e.Refunded != nil && e.Refunded.Sign() > 0 {
		attrs["refunded"] = formatAmount(e.Refunded)
	}
	return &types.Event{Type: TypeVaultUpdated, Attributes: attrs}
}

func formatAmount(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
