package state

import (
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"slotvault/storage/trie"
)

// Manager reads and writes ledger records in the state trie. It implements the
// state interface consumed by the vault engine.
type Manager struct {
	trie *trie.Trie
}

// NewManager creates a state manager operating on the provided trie.
func NewManager(tr *trie.Trie) *Manager {
	return &Manager{trie: tr}
}

var (
	accountPrefix   = []byte("vault-acct:")
	vaultSlotPrefix = []byte("vault-slot:")
	vaultIndexKey   = ethcrypto.Keccak256([]byte("vault-index"))
)

func accountKey(owner [32]byte) []byte {
	buf := make([]byte, len(accountPrefix)+len(owner))
	copy(buf, accountPrefix)
	copy(buf[len(accountPrefix):], owner[:])
	return ethcrypto.Keccak256(buf)
}

func vaultSlotKey(owner [32]byte) []byte {
	buf := make([]byte, len(vaultSlotPrefix)+len(owner))
	copy(buf, vaultSlotPrefix)
	copy(buf[len(vaultSlotPrefix):], owner[:])
	return ethcrypto.Keccak256(buf)
}
