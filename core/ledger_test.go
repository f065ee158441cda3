package core

import (
	"bytes"
	"errors"
	"math/big"
	"testing"

	"slotvault/config"
	"slotvault/core/events"
	"slotvault/crypto"
	"slotvault/native/vault"
	"slotvault/storage"
)

func testOwner(fill byte) [32]byte {
	var owner [32]byte
	for i := range owner {
		owner[i] = fill
	}
	return owner
}

func mkInstruction(t *testing.T, owner [32]byte, payload []byte) vault.Instruction {
	t.Helper()
	address, _, err := vault.Derive(owner, vault.ProgramID)
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	ix, err := vault.ParseInstruction([]vault.AccountMeta{
		{Key: owner, Signer: true, Writable: true},
		{Key: address, Writable: true},
		{Key: vault.SystemAllocatorID},
		{Key: vault.RentParamsID},
	}, payload)
	if err != nil {
		t.Fatalf("parse instruction: %v", err)
	}
	return ix
}

func openTestLedger(t *testing.T) *Ledger {
	t.Helper()
	db := storage.NewMemDB()
	t.Cleanup(db.Close)
	ledger, err := Open(config.Default(), db, nil)
	if err != nil {
		t.Fatalf("open ledger: %v", err)
	}
	return ledger
}

type capturingEmitter struct {
	events []events.Event
}

func (c *capturingEmitter) Emit(evt events.Event) {
	c.events = append(c.events, evt)
}

func TestLedgerCreateAndRead(t *testing.T) {
	ledger := openTestLedger(t)
	owner := testOwner(0x31)

	if err := ledger.Credit(owner, big.NewInt(100_000_000)); err != nil {
		t.Fatalf("credit: %v", err)
	}
	payload := []byte("ledger payload")
	receipt, err := ledger.Apply(mkInstruction(t, owner, payload))
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if !receipt.Created {
		t.Fatal("expected creation")
	}

	got, err := ledger.Payload(owner)
	if err != nil {
		t.Fatalf("payload: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("payload %q, want %q", got, payload)
	}

	slot, err := ledger.Slot(owner)
	if err != nil {
		t.Fatalf("slot: %v", err)
	}
	required, err := vault.DefaultRentParams().MinimumBalance(uint64(len(payload)))
	if err != nil {
		t.Fatalf("minimum balance: %v", err)
	}
	if slot.Balance.Cmp(required) != 0 {
		t.Fatalf("slot balance %s, want %s", slot.Balance, required)
	}

	balance, err := ledger.AccountBalance(owner)
	if err != nil {
		t.Fatalf("account balance: %v", err)
	}
	want := new(big.Int).Sub(big.NewInt(100_000_000), required)
	if balance.Cmp(want) != 0 {
		t.Fatalf("owner balance %s, want %s", balance, want)
	}
	if ledger.Height() != 2 {
		t.Fatalf("height %d, want 2 (credit + apply)", ledger.Height())
	}
}

func TestLedgerReadMissingVault(t *testing.T) {
	ledger := openTestLedger(t)

	if _, err := ledger.Payload(testOwner(0x32)); !errors.Is(err, ErrVaultNotFound) {
		t.Fatalf("expected ErrVaultNotFound, got %v", err)
	}
}

func TestLedgerRejectionRollsBack(t *testing.T) {
	ledger := openTestLedger(t)
	owner := testOwner(0x33)

	if err := ledger.Credit(owner, big.NewInt(2_000_000)); err != nil {
		t.Fatalf("credit: %v", err)
	}
	payload := []byte("small")
	if _, err := ledger.Apply(mkInstruction(t, owner, payload)); err != nil {
		t.Fatalf("apply: %v", err)
	}

	rootBefore := ledger.Root()
	heightBefore := ledger.Height()
	balanceBefore, err := ledger.AccountBalance(owner)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}

	// Growing to 9000 bytes needs more rent than the owner still holds.
	_, err = ledger.Apply(mkInstruction(t, owner, make([]byte, 9000)))
	if !errors.Is(err, vault.ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}

	if ledger.Root() != rootBefore {
		t.Fatal("root changed on rejected instruction")
	}
	if ledger.Height() != heightBefore {
		t.Fatal("height changed on rejected instruction")
	}
	got, err := ledger.Payload(owner)
	if err != nil {
		t.Fatalf("payload after rejection: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatal("payload changed on rejected instruction")
	}
	balanceAfter, err := ledger.AccountBalance(owner)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balanceAfter.Cmp(balanceBefore) != 0 {
		t.Fatal("owner balance changed on rejected instruction")
	}
}

// faultyDB simulates a flat store whose batched writes start failing, as a
// full disk would.
type faultyDB struct {
	*storage.MemDB
	failWrites bool
}

func (db *faultyDB) WriteBatch(batch []storage.KV) error {
	if db.failWrites {
		return errors.New("write batch: disk full")
	}
	return db.MemDB.WriteBatch(batch)
}

func TestLedgerDurableWriteFailureRollsBack(t *testing.T) {
	db := &faultyDB{MemDB: storage.NewMemDB()}
	t.Cleanup(db.Close)
	ledger, err := Open(config.Default(), db, nil)
	if err != nil {
		t.Fatalf("open ledger: %v", err)
	}
	emitter := &capturingEmitter{}
	ledger.SetEmitter(emitter)
	owner := testOwner(0x37)

	if err := ledger.Credit(owner, big.NewInt(100_000_000)); err != nil {
		t.Fatalf("credit: %v", err)
	}
	payload := []byte("committed")
	if _, err := ledger.Apply(mkInstruction(t, owner, payload)); err != nil {
		t.Fatalf("apply: %v", err)
	}
	rootBefore := ledger.Root()
	heightBefore := ledger.Height()

	db.failWrites = true
	if _, err := ledger.Apply(mkInstruction(t, owner, []byte("lost"))); err == nil {
		t.Fatal("expected error when the durable write fails")
	}

	// The failed apply must not be visible anywhere: not in reads, not in
	// the committed root, not as a buffered event.
	got, err := ledger.Payload(owner)
	if err != nil {
		t.Fatalf("payload: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("payload %q visible after failed durable write, want %q", got, payload)
	}
	if ledger.Root() != rootBefore {
		t.Fatal("root advanced despite failed durable write")
	}
	if ledger.Height() != heightBefore {
		t.Fatal("height advanced despite failed durable write")
	}

	db.failWrites = false
	if _, err := ledger.Apply(mkInstruction(t, owner, []byte("recovered"))); err != nil {
		t.Fatalf("apply after recovery: %v", err)
	}
	// One created event from the first apply, one updated event from the
	// recovery apply; the failed apply contributed nothing.
	if len(emitter.events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(emitter.events))
	}
	if emitter.events[1].EventType() != events.TypeVaultUpdated {
		t.Fatalf("unexpected second event: %v", emitter.events[1].EventType())
	}
}

func TestLedgerOwnersEnumeration(t *testing.T) {
	ledger := openTestLedger(t)
	ownerB := testOwner(0x39)
	ownerA := testOwner(0x38)

	for _, owner := range [][32]byte{ownerB, ownerA} {
		if err := ledger.Credit(owner, big.NewInt(10_000_000)); err != nil {
			t.Fatalf("credit: %v", err)
		}
		if _, err := ledger.Apply(mkInstruction(t, owner, []byte("x"))); err != nil {
			t.Fatalf("apply: %v", err)
		}
	}

	owners, err := ledger.Owners()
	if err != nil {
		t.Fatalf("owners: %v", err)
	}
	if len(owners) != 2 {
		t.Fatalf("expected 2 owners, got %d", len(owners))
	}
	if owners[0] != ownerA || owners[1] != ownerB {
		t.Fatalf("unexpected owner order: %x, %x", owners[0][:4], owners[1][:4])
	}
}

func TestLedgerFlushesEventsOnlyOnCommit(t *testing.T) {
	ledger := openTestLedger(t)
	emitter := &capturingEmitter{}
	ledger.SetEmitter(emitter)
	owner := testOwner(0x34)

	// Unfunded owner: the apply fails and nothing may be emitted.
	if _, err := ledger.Apply(mkInstruction(t, owner, []byte("x"))); err == nil {
		t.Fatal("expected failure for unfunded owner")
	}
	if len(emitter.events) != 0 {
		t.Fatalf("events emitted for failed apply: %d", len(emitter.events))
	}

	if err := ledger.Credit(owner, big.NewInt(10_000_000)); err != nil {
		t.Fatalf("credit: %v", err)
	}
	if _, err := ledger.Apply(mkInstruction(t, owner, []byte("x"))); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if len(emitter.events) != 1 || emitter.events[0].EventType() != events.TypeVaultCreated {
		t.Fatalf("unexpected events after commit: %+v", emitter.events)
	}
}

func TestLedgerReopenReplaysToSameRoot(t *testing.T) {
	dir := t.TempDir()
	owner := testOwner(0x35)
	payload := []byte("durable bytes")

	db, err := storage.NewLevelDB(dir)
	if err != nil {
		t.Fatalf("open leveldb: %v", err)
	}
	ledger, err := Open(config.Default(), db, nil)
	if err != nil {
		t.Fatalf("open ledger: %v", err)
	}
	if err := ledger.Credit(owner, big.NewInt(50_000_000)); err != nil {
		t.Fatalf("credit: %v", err)
	}
	if _, err := ledger.Apply(mkInstruction(t, owner, payload)); err != nil {
		t.Fatalf("apply: %v", err)
	}
	root := ledger.Root()
	height := ledger.Height()
	balance, err := ledger.AccountBalance(owner)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	db.Close()

	db2, err := storage.NewLevelDB(dir)
	if err != nil {
		t.Fatalf("reopen leveldb: %v", err)
	}
	defer db2.Close()
	reopened, err := Open(config.Default(), db2, nil)
	if err != nil {
		t.Fatalf("reopen ledger: %v", err)
	}

	if reopened.Root() != root {
		t.Fatalf("replayed root %s, want %s", reopened.Root().Hex(), root.Hex())
	}
	if reopened.Height() != height {
		t.Fatalf("replayed height %d, want %d", reopened.Height(), height)
	}
	got, err := reopened.Payload(owner)
	if err != nil {
		t.Fatalf("payload after reopen: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatal("payload not replayed byte-exact")
	}
	replayedBalance, err := reopened.AccountBalance(owner)
	if err != nil {
		t.Fatalf("balance after reopen: %v", err)
	}
	if replayedBalance.Cmp(balance) != 0 {
		t.Fatal("owner balance not replayed")
	}
	owners, err := reopened.Owners()
	if err != nil {
		t.Fatalf("owners after reopen: %v", err)
	}
	if len(owners) != 1 || owners[0] != owner {
		t.Fatalf("owner enumeration not replayed: %x", owners)
	}

	// The replayed ledger keeps accepting writes.
	if _, err := reopened.Apply(mkInstruction(t, owner, []byte("post-reopen"))); err != nil {
		t.Fatalf("apply after reopen: %v", err)
	}
}

func TestLedgerGenesisAllocations(t *testing.T) {
	owner := testOwner(0x36)
	cfg := config.Default()
	cfg.Genesis = []config.Allocation{{
		Owner:   crypto.MustNewAddress(crypto.OwnerPrefix, owner[:]).String(),
		Balance: "123456789",
	}}

	db := storage.NewMemDB()
	defer db.Close()
	ledger, err := Open(cfg, db, nil)
	if err != nil {
		t.Fatalf("open ledger: %v", err)
	}

	balance, err := ledger.AccountBalance(owner)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance.Cmp(big.NewInt(123_456_789)) != 0 {
		t.Fatalf("genesis balance %s, want 123456789", balance)
	}

	// Genesis funds are spendable immediately.
	if _, err := ledger.Apply(mkInstruction(t, owner, []byte("seeded"))); err != nil {
		t.Fatalf("apply: %v", err)
	}
}
