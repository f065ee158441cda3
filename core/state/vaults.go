package state

import (
	"bytes"
	"fmt"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/rlp"

	"slotvault/core/types"
)

// VaultGet loads the storage slot record for the provided owner. The boolean
// reports whether the slot exists yet.
func (m *Manager) VaultGet(owner [32]byte) (*types.VaultAccount, bool, error) {
	data, err := m.trie.Get(vaultSlotKey(owner))
	if err != nil {
		return nil, false, err
	}
	if len(data) == 0 {
		return nil, false, nil
	}
	slot := new(types.VaultAccount)
	if err := rlp.DecodeBytes(data, slot); err != nil {
		return nil, false, err
	}
	if slot.Balance == nil {
		slot.Balance = big.NewInt(0)
	}
	return slot, true, nil
}

// VaultPut persists the storage slot record for the provided owner and keeps
// the owner index current.
func (m *Manager) VaultPut(owner [32]byte, slot *types.VaultAccount) error {
	if slot == nil {
		return fmt.Errorf("state: nil vault record")
	}
	if slot.Balance == nil {
		slot.Balance = big.NewInt(0)
	}
	encoded, err := rlp.EncodeToBytes(slot)
	if err != nil {
		return err
	}
	if err := m.trie.Update(vaultSlotKey(owner), encoded); err != nil {
		return err
	}
	return m.indexOwner(owner)
}

// VaultOwners returns every owner with an allocated slot, sorted by key. The
// ledger walks this index when replaying durable records into a fresh trie.
func (m *Manager) VaultOwners() ([][32]byte, error) {
	data, err := m.trie.Get(vaultIndexKey)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, nil
	}
	var raw [][]byte
	if err := rlp.DecodeBytes(data, &raw); err != nil {
		return nil, err
	}
	owners := make([][32]byte, 0, len(raw))
	for _, entry := range raw {
		if len(entry) != 32 {
			return nil, fmt.Errorf("state: malformed owner index entry of %d bytes", len(entry))
		}
		var owner [32]byte
		copy(owner[:], entry)
		owners = append(owners, owner)
	}
	return owners, nil
}

func (m *Manager) indexOwner(owner [32]byte) error {
	owners, err := m.VaultOwners()
	if err != nil {
		return err
	}
	for _, existing := range owners {
		if existing == owner {
			return nil
		}
	}
	owners = append(owners, owner)
	sort.Slice(owners, func(i, j int) bool {
		return bytes.Compare(owners[i][:], owners[j][:]) < 0
	})
	raw := make([][]byte, len(owners))
	for i := range owners {
		raw[i] = append([]byte(nil), owners[i][:]...)
	}
	encoded, err := rlp.EncodeToBytes(raw)
	if err != nil {
		return err
	}
	return m.trie.Update(vaultIndexKey, encoded)
}
