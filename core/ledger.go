package core

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/google/uuid"

	"slotvault/config"
	"slotvault/core/events"
	"slotvault/core/state"
	"slotvault/core/types"
	"slotvault/crypto"
	"slotvault/native/vault"
	"slotvault/observability/metrics"
	"slotvault/storage"
	"slotvault/storage/trie"
)

// ErrVaultNotFound is returned by reads against owners without a slot.
var ErrVaultNotFound = errors.New("ledger: vault not found")

// Flat store keys. Trie nodes are not durable on their own; the ledger writes
// committed records through to the flat store and replays them on open.
var (
	metaRootKey   = []byte("meta/root")
	metaHeightKey = []byte("meta/height")
	ownerIndexKey = []byte("meta/owners")
)

func flatAccountKey(owner [32]byte) []byte {
	return []byte("acct/" + hex.EncodeToString(owner[:]))
}

func flatSlotKey(owner [32]byte) []byte {
	return []byte("slot/" + hex.EncodeToString(owner[:]))
}

// Ledger is the enclosing transaction mechanism around the vault engine. It
// serialises instruction applies, commits the trie on success, resets it to
// the last committed root on failure, and keeps the flat store in sync so a
// reopened ledger replays to the identical root.
type Ledger struct {
	mu sync.Mutex

	db      storage.Database
	trie    *trie.Trie
	manager *state.Manager
	engine  *vault.Engine

	log     *slog.Logger
	emitter events.Emitter
	metrics *metrics.VaultMetrics

	committedRoot common.Hash
	height        uint64
	totalCapacity uint64
	pending       []events.Event
}

// collectorEmitter buffers engine events until the apply commits.
type collectorEmitter struct {
	ledger *Ledger
}

func (c collectorEmitter) Emit(evt events.Event) {
	c.ledger.pending = append(c.ledger.pending, evt)
}

// Open builds a ledger over the provided database, replaying any durable
// records and applying genesis allocations on a fresh store.
func Open(cfg *config.Config, db storage.Database, log *slog.Logger) (*Ledger, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if log == nil {
		log = slog.Default()
	}
	tr, err := trie.NewTrie(db, nil)
	if err != nil {
		return nil, err
	}

	l := &Ledger{
		db:      db,
		trie:    tr,
		manager: state.NewManager(tr),
		log:     log,
		emitter: events.NoopEmitter{},
		metrics: metrics.Vault(),
	}

	engine := vault.NewEngine()
	engine.SetState(l.manager)
	engine.SetEmitter(collectorEmitter{ledger: l})
	engine.SetRentParams(cfg.RentParams())
	engine.SetMaxPayloadBytes(cfg.MaxPayloadBytes)
	l.engine = engine

	initialized, err := db.Has(metaRootKey)
	if err != nil {
		return nil, err
	}
	if initialized {
		if err := l.replay(); err != nil {
			return nil, err
		}
	} else if err := l.applyGenesis(cfg); err != nil {
		return nil, err
	}
	l.metrics.SetCapacityBytes(float64(l.totalCapacity))
	l.log.Info("ledger opened",
		"root", l.committedRoot.Hex(),
		"height", l.height,
		"capacityBytes", l.totalCapacity,
	)
	return l, nil
}

// SetEmitter configures where committed events are flushed. Passing nil
// resets to a no-op emitter.
func (l *Ledger) SetEmitter(emitter events.Emitter) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	l.emitter = emitter
}

// replay loads every durable record into the fresh trie and verifies the
// recomputed root matches the stored one.
func (l *Ledger) replay() error {
	owners, err := l.readOwnerIndex()
	if err != nil {
		return err
	}
	for _, owner := range owners {
		if data, err := l.db.Get(flatAccountKey(owner)); err == nil && len(data) > 0 {
			account := new(types.Account)
			if err := rlp.DecodeBytes(data, account); err != nil {
				return fmt.Errorf("ledger: decode account %x: %w", owner[:4], err)
			}
			if err := l.manager.PutAccount(owner, account); err != nil {
				return err
			}
		}
		if data, err := l.db.Get(flatSlotKey(owner)); err == nil && len(data) > 0 {
			slot := new(types.VaultAccount)
			if err := rlp.DecodeBytes(data, slot); err != nil {
				return fmt.Errorf("ledger: decode slot %x: %w", owner[:4], err)
			}
			if err := l.manager.VaultPut(owner, slot); err != nil {
				return err
			}
			l.totalCapacity += slot.Capacity()
		}
	}

	heightRaw, err := l.db.Get(metaHeightKey)
	if err != nil {
		return err
	}
	var height uint64
	if err := rlp.DecodeBytes(heightRaw, &height); err != nil {
		return fmt.Errorf("ledger: decode height: %w", err)
	}
	l.height = height

	root, err := l.trie.Commit(common.Hash{}, height)
	if err != nil {
		return err
	}
	storedRaw, err := l.db.Get(metaRootKey)
	if err != nil {
		return err
	}
	stored := common.BytesToHash(storedRaw)
	if stored != root {
		return fmt.Errorf("ledger: replayed root %s does not match stored root %s", root.Hex(), stored.Hex())
	}
	l.committedRoot = root
	return nil
}

// applyGenesis seeds configured funding accounts into an empty store.
func (l *Ledger) applyGenesis(cfg *config.Config) error {
	allocations, err := cfg.Allocations()
	if err != nil {
		return err
	}
	owners := make([][32]byte, 0, len(allocations))
	for owner := range allocations {
		owners = append(owners, owner)
	}
	sort.Slice(owners, func(i, j int) bool {
		return bytes.Compare(owners[i][:], owners[j][:]) < 0
	})
	for _, owner := range owners {
		account := &types.Account{Balance: allocations[owner]}
		if err := l.manager.PutAccount(owner, account); err != nil {
			return err
		}
	}

	root, err := l.trie.Commit(common.Hash{}, 0)
	if err != nil {
		return err
	}

	batch := make([]storage.KV, 0, len(owners)+3)
	for _, owner := range owners {
		account, err := l.manager.GetAccount(owner)
		if err != nil {
			return err
		}
		encoded, err := rlp.EncodeToBytes(account)
		if err != nil {
			return err
		}
		batch = append(batch, storage.KV{Key: flatAccountKey(owner), Value: encoded})
	}
	if len(owners) > 0 {
		encoded, err := encodeOwnerIndex(owners)
		if err != nil {
			return err
		}
		batch = append(batch, storage.KV{Key: ownerIndexKey, Value: encoded})
	}
	meta, err := metaBatch(root, 0)
	if err != nil {
		return err
	}
	if err := l.db.WriteBatch(append(batch, meta...)); err != nil {
		return err
	}
	l.committedRoot = root
	return nil
}

// Apply executes one instruction atomically: on any failure the trie is reset
// to the last committed root and nothing is durable; on success the new root
// is committed, records are written through, and buffered events flush.
func (l *Ledger) Apply(ix vault.Instruction) (*vault.Receipt, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	applyID := uuid.NewString()
	ownerAddr := crypto.MustNewAddress(crypto.OwnerPrefix, ix.Owner.Key[:])

	receipt, err := l.engine.Process(ix)
	if err != nil {
		l.rollback()
		l.metrics.ObserveRejected(vault.Reason(err))
		l.log.Warn("instruction rejected",
			"applyId", applyID,
			"owner", ownerAddr.String(),
			"reason", vault.Reason(err),
			"err", err,
		)
		return nil, err
	}

	newRoot, err := l.trie.Commit(l.committedRoot, l.height+1)
	if err != nil {
		l.rollback()
		l.metrics.ObserveRejected("internal")
		l.log.Error("commit failed", "applyId", applyID, "err", err)
		return nil, err
	}

	// The durable write-through is part of the transaction: nothing is
	// advanced or flushed until the flat store holds the full transition.
	batch, err := l.ownerBatch(ix.Owner.Key, newRoot, l.height+1)
	if err == nil {
		err = l.db.WriteBatch(batch)
	}
	if err != nil {
		l.rollback()
		l.metrics.ObserveRejected("internal")
		l.log.Error("durable write failed", "applyId", applyID, "err", err)
		return nil, err
	}

	l.height++
	l.committedRoot = newRoot
	l.totalCapacity = l.totalCapacity - receipt.OldCapacity + receipt.NewCapacity

	l.flushEvents()
	l.observe(receipt)
	l.log.Info("instruction applied",
		"applyId", applyID,
		"owner", ownerAddr.String(),
		"created", receipt.Created,
		"oldCapacity", receipt.OldCapacity,
		"newCapacity", receipt.NewCapacity,
		"funded", receipt.Funded.String(),
		"refunded", receipt.Refunded.String(),
		"root", newRoot.Hex(),
		"height", l.height,
	)
	return receipt, nil
}

// Credit adds funds to an owner's funding account. Used for genesis top-ups
// and operator faucets.
func (l *Ledger) Credit(owner [32]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("ledger: credit amount must be positive")
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	account, err := l.manager.GetAccount(owner)
	if err != nil {
		return err
	}
	account.Balance = new(big.Int).Add(account.Balance, amount)
	if err := l.manager.PutAccount(owner, account); err != nil {
		l.rollback()
		return err
	}
	newRoot, err := l.trie.Commit(l.committedRoot, l.height+1)
	if err != nil {
		l.rollback()
		return err
	}
	batch, err := l.ownerBatch(owner, newRoot, l.height+1)
	if err == nil {
		err = l.db.WriteBatch(batch)
	}
	if err != nil {
		l.rollback()
		return err
	}
	l.height++
	l.committedRoot = newRoot
	l.log.Info("owner credited",
		"owner", crypto.MustNewAddress(crypto.OwnerPrefix, owner[:]).String(),
		"amount", amount.String(),
		"height", l.height,
	)
	return nil
}

// Payload returns the owner's stored payload byte-for-byte.
func (l *Ledger) Payload(owner [32]byte) ([]byte, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	slot, ok, err := l.manager.VaultGet(owner)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrVaultNotFound
	}
	return append([]byte(nil), slot.Data...), nil
}

// Slot returns a copy of the owner's full slot record.
func (l *Ledger) Slot(owner [32]byte) (*types.VaultAccount, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	slot, ok, err := l.manager.VaultGet(owner)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrVaultNotFound
	}
	return slot.Clone(), nil
}

// AccountBalance returns the owner's funding balance; missing accounts read
// as zero.
func (l *Ledger) AccountBalance(owner [32]byte) (*big.Int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	account, err := l.manager.GetAccount(owner)
	if err != nil {
		return nil, err
	}
	return new(big.Int).Set(account.Balance), nil
}

// Owners lists every owner with an allocated slot, sorted by key. The listing
// comes from the state trie, so it is covered by the committed root.
func (l *Ledger) Owners() ([][32]byte, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.manager.VaultOwners()
}

// Root returns the last committed state root.
func (l *Ledger) Root() common.Hash {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.committedRoot
}

// Height returns the number of committed state transitions.
func (l *Ledger) Height() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.height
}

func (l *Ledger) rollback() {
	l.pending = nil
	if err := l.trie.Reset(l.committedRoot); err != nil {
		// The committed root always exists in the node database; failing
		// to reload it leaves the ledger unusable.
		l.log.Error("trie reset failed", "root", l.committedRoot.Hex(), "err", err)
	}
}

func (l *Ledger) flushEvents() {
	for _, evt := range l.pending {
		l.emitter.Emit(evt)
	}
	l.pending = nil
}

func (l *Ledger) observe(receipt *vault.Receipt) {
	switch {
	case receipt.Created:
		l.metrics.ObserveWrite("created")
	case receipt.OldCapacity != receipt.NewCapacity:
		l.metrics.ObserveWrite("resized")
	default:
		l.metrics.ObserveWrite("rewritten")
	}
	l.metrics.ObserveFunding("topup", bigToFloat(receipt.Funded))
	l.metrics.ObserveFunding("refund", bigToFloat(receipt.Refunded))
	l.metrics.SetCapacityBytes(float64(l.totalCapacity))
}

func bigToFloat(v *big.Int) float64 {
	if v == nil {
		return 0
	}
	f, _ := new(big.Float).SetInt(v).Float64()
	return f
}

// ownerBatch stages every durable record one state transition touches: the
// owner's funding account, its slot when present, the owner index when it
// grows, and the new root and height. The caller writes the batch atomically
// before advancing any in-memory state.
func (l *Ledger) ownerBatch(owner [32]byte, root common.Hash, height uint64) ([]storage.KV, error) {
	account, err := l.manager.GetAccount(owner)
	if err != nil {
		return nil, err
	}
	encoded, err := rlp.EncodeToBytes(account)
	if err != nil {
		return nil, err
	}
	batch := []storage.KV{{Key: flatAccountKey(owner), Value: encoded}}

	slot, ok, err := l.manager.VaultGet(owner)
	if err != nil {
		return nil, err
	}
	if ok {
		encoded, err := rlp.EncodeToBytes(slot)
		if err != nil {
			return nil, err
		}
		batch = append(batch, storage.KV{Key: flatSlotKey(owner), Value: encoded})
	}

	index, grown, err := l.indexWith(owner)
	if err != nil {
		return nil, err
	}
	if grown {
		batch = append(batch, storage.KV{Key: ownerIndexKey, Value: index})
	}

	meta, err := metaBatch(root, height)
	if err != nil {
		return nil, err
	}
	return append(batch, meta...), nil
}

func metaBatch(root common.Hash, height uint64) ([]storage.KV, error) {
	encodedHeight, err := rlp.EncodeToBytes(height)
	if err != nil {
		return nil, err
	}
	return []storage.KV{
		{Key: metaRootKey, Value: root.Bytes()},
		{Key: metaHeightKey, Value: encodedHeight},
	}, nil
}

// indexWith returns the encoded flat owner index extended with owner, or
// grown=false when the owner is already present.
func (l *Ledger) indexWith(owner [32]byte) (index []byte, grown bool, err error) {
	owners, err := l.readOwnerIndex()
	if err != nil {
		return nil, false, err
	}
	for _, existing := range owners {
		if existing == owner {
			return nil, false, nil
		}
	}
	owners = append(owners, owner)
	sort.Slice(owners, func(i, j int) bool {
		return bytes.Compare(owners[i][:], owners[j][:]) < 0
	})
	encoded, err := encodeOwnerIndex(owners)
	if err != nil {
		return nil, false, err
	}
	return encoded, true, nil
}

func encodeOwnerIndex(owners [][32]byte) ([]byte, error) {
	raw := make([][]byte, len(owners))
	for i := range owners {
		raw[i] = append([]byte(nil), owners[i][:]...)
	}
	return rlp.EncodeToBytes(raw)
}

func (l *Ledger) readOwnerIndex() ([][32]byte, error) {
	ok, err := l.db.Has(ownerIndexKey)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	data, err := l.db.Get(ownerIndexKey)
	if err != nil {
		return nil, err
	}
	var raw [][]byte
	if err := rlp.DecodeBytes(data, &raw); err != nil {
		return nil, err
	}
	owners := make([][32]byte, 0, len(raw))
	for _, entry := range raw {
		if len(entry) != 32 {
			return nil, fmt.Errorf("ledger: malformed owner index entry of %d bytes", len(entry))
		}
		var owner [32]byte
		copy(owner[:], entry)
		owners = append(owners, owner)
	}
	return owners, nil
}
