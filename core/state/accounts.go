package state

import (
	"math/big"

	"github.com/ethereum/go-ethereum/rlp"

	"slotvault/core/types"
)

func ensureAccountDefaults(account *types.Account) {
	if account.Balance == nil {
		account.Balance = big.NewInt(0)
	}
}

// GetAccount loads the funding account stored under the owner key. Missing
// accounts come back zero-valued, never nil.
func (m *Manager) GetAccount(owner [32]byte) (*types.Account, error) {
	data, err := m.trie.Get(accountKey(owner))
	if err != nil {
		return nil, err
	}
	account := &types.Account{Balance: big.NewInt(0)}
	if len(data) == 0 {
		return account, nil
	}
	if err := rlp.DecodeBytes(data, account); err != nil {
		return nil, err
	}
	ensureAccountDefaults(account)
	return account, nil
}

// PutAccount persists the funding account under the owner key.
func (m *Manager) PutAccount(owner [32]byte, account *types.Account) error {
	if account == nil {
		account = &types.Account{}
	}
	ensureAccountDefaults(account)
	encoded, err := rlp.EncodeToBytes(account)
	if err != nil {
		return err
	}
	return m.trie.Update(accountKey(owner), encoded)
}
