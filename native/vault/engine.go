package vault

import (
	"errors"
	"fmt"
	"math/big"

	"slotvault/core/events"
	"slotvault/core/types"
)

// DefaultMaxPayloadBytes is the default write ceiling. The platform maximum
// (MaxAccountSize) still applies; the ceiling exists to stop a single owner
// from consuming unbounded resources in one instruction.
const DefaultMaxPayloadBytes = 10 * 1024

var errNilState = errors.New("vault engine: state not configured")

type engineState interface {
	GetAccount(owner [32]byte) (*types.Account, error)
	PutAccount(owner [32]byte, account *types.Account) error
	VaultGet(owner [32]byte) (*types.VaultAccount, bool, error)
	VaultPut(owner [32]byte, slot *types.VaultAccount) error
}

// Engine executes the single vault instruction: validate the account set,
// create or resize the owner's slot to the payload length, reconcile its
// balance against the minimum-balance rule, and write the payload. All checks
// run before any state mutation, so a failed instruction leaves the state
// backend untouched.
type Engine struct {
	state      engineState
	emitter    events.Emitter
	program    [32]byte
	rent       RentParams
	maxPayload uint64
}

// NewEngine creates a vault engine with the platform defaults and a no-op
// emitter.
func NewEngine() *Engine {
	return &Engine{
		emitter:    events.NoopEmitter{},
		program:    ProgramID,
		rent:       DefaultRentParams(),
		maxPayload: DefaultMaxPayloadBytes,
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetEmitter configures the event emitter. Passing nil resets it to a no-op
// implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetRentParams overrides the minimum-balance parameters.
func (e *Engine) SetRentParams(params RentParams) { e.rent = params }

// RentParams returns the minimum-balance parameters in effect.
func (e *Engine) RentParams() RentParams { return e.rent }

// SetMaxPayloadBytes overrides the payload ceiling. Zero disables the ceiling
// and leaves only the platform maximum in force.
func (e *Engine) SetMaxPayloadBytes(limit uint64) { e.maxPayload = limit }

// SetProgramID overrides the program identity used for address derivation.
func (e *Engine) SetProgramID(program [32]byte) { e.program = program }

func (e *Engine) emit(event events.Event) {
	if e == nil || e.emitter == nil || event == nil {
		return
	}
	e.emitter.Emit(event)
}

// Process validates and applies one instruction, returning a receipt of what
// changed. On error no state has been written; the enclosing ledger still
// resets the trie in case a backend write failed midway.
func (e *Engine) Process(ix Instruction) (*Receipt, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if err := validateRoles(ix); err != nil {
		return nil, err
	}

	derived, bump, err := Derive(ix.Owner.Key, e.program)
	if err != nil {
		return nil, err
	}
	if derived != ix.Slot.Key {
		return nil, ErrAddressMismatch
	}

	newCapacity := uint64(len(ix.Payload))
	if e.maxPayload > 0 && newCapacity > e.maxPayload {
		return nil, fmt.Errorf("%w: %d > %d", ErrPayloadTooLarge, newCapacity, e.maxPayload)
	}

	ownerAccount, err := e.state.GetAccount(ix.Owner.Key)
	if err != nil {
		return nil, err
	}
	ownerAccount = ownerAccount.Clone()

	existing, exists, err := e.state.VaultGet(ix.Owner.Key)
	if err != nil {
		return nil, err
	}
	if exists && existing.Address != derived {
		// A stored record that disagrees with derivation means the state
		// itself is corrupt, not the caller.
		return nil, fmt.Errorf("%w: stored slot address diverges from derivation", ErrAddressMismatch)
	}

	slot, oldCapacity, err := e.ensureSized(existing, ix.Owner.Key, derived, bump, newCapacity)
	if err != nil {
		return nil, err
	}

	funded, refunded, err := e.reconcile(slot, ownerAccount, newCapacity)
	if err != nil {
		return nil, err
	}

	if err := e.writePayload(slot, ix.Payload); err != nil {
		return nil, err
	}

	ownerAccount.Nonce++
	if err := e.state.VaultPut(ix.Owner.Key, slot); err != nil {
		return nil, err
	}
	if err := e.state.PutAccount(ix.Owner.Key, ownerAccount); err != nil {
		return nil, err
	}

	receipt := &Receipt{
		Owner:       ix.Owner.Key,
		Address:     derived,
		Bump:        bump,
		Created:     !exists,
		OldCapacity: oldCapacity,
		NewCapacity: newCapacity,
		Funded:      funded,
		Refunded:    refunded,
	}
	if receipt.Created {
		e.emit(events.VaultCreated{
			Owner:    receipt.Owner,
			Address:  receipt.Address,
			Capacity: receipt.NewCapacity,
			Balance:  new(big.Int).Set(slot.Balance),
		})
	} else {
		e.emit(events.VaultUpdated{
			Owner:       receipt.Owner,
			Address:     receipt.Address,
			OldCapacity: receipt.OldCapacity,
			NewCapacity: receipt.NewCapacity,
			Funded:      new(big.Int).Set(funded),
			Refunded:    new(big.Int).Set(refunded),
		})
	}
	return receipt, nil
}

// validateRoles checks the fixed account order carries the required
// permissions and that the read-only references name the platform facilities.
func validateRoles(ix Instruction) error {
	if !ix.Owner.Signer {
		return ErrMissingSignature
	}
	if !ix.Owner.Writable {
		return fmt.Errorf("%w: owner", ErrPermissionDenied)
	}
	if !ix.Slot.Writable {
		return fmt.Errorf("%w: slot", ErrPermissionDenied)
	}
	if ix.System.Key != SystemAllocatorID {
		return fmt.Errorf("%w: system allocator", ErrWrongSystemAccount)
	}
	if ix.Rent.Key != RentParamsID {
		return fmt.Errorf("%w: rent parameters", ErrWrongSystemAccount)
	}
	return nil
}

// ensureSized stages the slot at the new capacity: a fresh program-owned
// record on first write, a truncated or extended clone otherwise. The data
// region's content is undefined until writePayload runs; the two are a single
// unit from the caller's perspective.
func (e *Engine) ensureSized(existing *types.VaultAccount, owner, address [32]byte, bump uint8, newCapacity uint64) (*types.VaultAccount, uint64, error) {
	if newCapacity > MaxAccountSize {
		return nil, 0, fmt.Errorf("%w: %d > %d", ErrInvalidSize, newCapacity, uint64(MaxAccountSize))
	}
	if existing == nil {
		return &types.VaultAccount{
			Address: address,
			Owner:   owner,
			Bump:    bump,
			Balance: big.NewInt(0),
			Data:    make([]byte, newCapacity),
		}, 0, nil
	}
	slot := existing.Clone()
	oldCapacity := slot.Capacity()
	slot.Data = make([]byte, newCapacity)
	return slot, oldCapacity, nil
}

// reconcile moves funds between the owner and the slot so the slot holds
// exactly the minimum balance for its new capacity. All deltas come out of
// checked arithmetic; a negative intermediate is an invariant breach, never
// silently wrapped.
func (e *Engine) reconcile(slot *types.VaultAccount, owner *types.Account, newCapacity uint64) (funded, refunded *big.Int, err error) {
	required, err := e.rent.MinimumBalance(newCapacity)
	if err != nil {
		return nil, nil, err
	}
	current := slot.Balance
	funded = big.NewInt(0)
	refunded = big.NewInt(0)

	switch required.Cmp(current) {
	case 1:
		need := new(big.Int).Sub(required, current)
		if need.Sign() < 0 {
			return nil, nil, fmt.Errorf("%w: negative top-up", ErrArithmeticFault)
		}
		if owner.Balance.Cmp(need) < 0 {
			return nil, nil, fmt.Errorf("%w: need %s, owner holds %s", ErrInsufficientFunds, need, owner.Balance)
		}
		owner.Balance = new(big.Int).Sub(owner.Balance, need)
		if owner.Balance.Sign() < 0 {
			return nil, nil, fmt.Errorf("%w: owner balance underflow", ErrArithmeticFault)
		}
		funded = need
	case -1:
		surplus := new(big.Int).Sub(current, required)
		if surplus.Sign() < 0 {
			return nil, nil, fmt.Errorf("%w: negative refund", ErrArithmeticFault)
		}
		owner.Balance = new(big.Int).Add(owner.Balance, surplus)
		refunded = surplus
	}
	slot.Balance = required
	return funded, refunded, nil
}

// writePayload copies the payload into the slot's data region verbatim.
func (e *Engine) writePayload(slot *types.VaultAccount, payload []byte) error {
	if slot.Capacity() != uint64(len(payload)) {
		return fmt.Errorf("vault: slot capacity %d does not match payload length %d", slot.Capacity(), len(payload))
	}
	copy(slot.Data, payload)
	return nil
}
