package types

import "math/big"

// Account is an owner's funding account. Its balance is debited when the
// owner's storage slot needs a rent top-up and credited when a shrink frees
// surplus.
type Account struct {
	Nonce   uint64   `json:"nonce"`
	Balance *big.Int `json:"balance"`
}

// Clone returns a deep copy of the account.
func (a *Account) Clone() *Account {
	if a == nil {
		return &Account{Balance: big.NewInt(0)}
	}
	clone := &Account{Nonce: a.Nonce, Balance: big.NewInt(0)}
	if a.Balance != nil {
		clone.Balance = new(big.Int).Set(a.Balance)
	}
	return clone
}

// VaultAccount is the storage slot owned by a single identity. Capacity is
// implicit: len(Data) always equals the length of the last written payload.
type VaultAccount struct {
	Address [32]byte `json:"address"`
	Owner   [32]byte `json:"owner"`
	Bump    uint8    `json:"bump"`
	Balance *big.Int `json:"balance"`
	Data    []byte   `json:"data"`
}

// Capacity returns the byte capacity of the slot's data region.
func (v *VaultAccount) Capacity() uint64 {
	if v == nil {
		return 0
	}
	return uint64(len(v.Data))
}

// Clone returns a deep copy of the slot record.
func (v *VaultAccount) Clone() *VaultAccount {
	if v == nil {
		return nil
	}
	clone := &VaultAccount{
		Address: v.Address,
		Owner:   v.Owner,
		Bump:    v.Bump,
		Balance: big.NewInt(0),
		Data:    append([]byte(nil), v.Data...),
	}
	if v.Balance != nil {
		clone.Balance = new(big.Int).Set(v.Balance)
	}
	return clone
}
