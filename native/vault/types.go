package vault

import (
	"fmt"
	"math/big"

	"lukechampine.com/blake3"
)

// Well-known platform identities. Reference accounts supplied with an
// instruction are identity-checked against these constants.
var (
	// ProgramID owns every derived storage slot.
	ProgramID = wellKnownID("slotvault/program/v1")
	// SystemAllocatorID identifies the platform's account allocation
	// facility.
	SystemAllocatorID = wellKnownID("slotvault/system/allocator")
	// RentParamsID identifies the platform's minimum-balance parameter
	// source.
	RentParamsID = wellKnownID("slotvault/system/rent-params")
)

func wellKnownID(label string) [32]byte {
	return blake3.Sum256([]byte(label))
}

// AccountMeta describes one account supplied with an instruction.
type AccountMeta struct {
	Key      [32]byte
	Signer   bool
	Writable bool
}

// Instruction is the single operation the engine executes: write the payload
// into the owner's slot, creating or resizing it as needed. Accounts follow
// the platform's fixed order: owner, slot, system allocator reference, rent
// parameter reference.
type Instruction struct {
	Owner   AccountMeta
	Slot    AccountMeta
	System  AccountMeta
	Rent    AccountMeta
	Payload []byte
}

// instructionAccountCount is the exact number of accounts an instruction
// carries.
const instructionAccountCount = 4

// ParseInstruction builds an Instruction from the flat account list and the
// raw payload. The payload is the instruction data verbatim: no opcode, no
// length prefix.
func ParseInstruction(accounts []AccountMeta, payload []byte) (Instruction, error) {
	if len(accounts) != instructionAccountCount {
		return Instruction{}, fmt.Errorf("vault: expected %d accounts, got %d", instructionAccountCount, len(accounts))
	}
	return Instruction{
		Owner:   accounts[0],
		Slot:    accounts[1],
		System:  accounts[2],
		Rent:    accounts[3],
		Payload: append([]byte(nil), payload...),
	}, nil
}

// Receipt reports what a successful apply did. The ledger feeds it into logs,
// metrics and events.
type Receipt struct {
	Owner       [32]byte
	Address     [32]byte
	Bump        uint8
	Created     bool
	OldCapacity uint64
	NewCapacity uint64
	Funded      *big.Int
	Refunded    *big.Int
}
