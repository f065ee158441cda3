package vault

import (
	"testing"

	"filippo.io/edwards25519"
)

func testKey(fill byte) [32]byte {
	var key [32]byte
	for i := range key {
		key[i] = fill
	}
	return key
}

func TestDeriveDeterministic(t *testing.T) {
	owner := testKey(0x11)

	addr1, bump1, err := Derive(owner, ProgramID)
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	addr2, bump2, err := Derive(owner, ProgramID)
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	if addr1 != addr2 || bump1 != bump2 {
		t.Fatalf("derivation not deterministic: (%x,%d) vs (%x,%d)", addr1[:4], bump1, addr2[:4], bump2)
	}
}

func TestDeriveAddressIsOffCurve(t *testing.T) {
	for fill := byte(0); fill < 32; fill++ {
		addr, _, err := Derive(testKey(fill), ProgramID)
		if err != nil {
			t.Fatalf("derive(fill=%d): %v", fill, err)
		}
		if _, err := new(edwards25519.Point).SetBytes(addr[:]); err == nil {
			t.Fatalf("derived address for fill=%d decodes as a curve point", fill)
		}
	}
}

func TestDeriveVariesWithInputs(t *testing.T) {
	base, _, err := Derive(testKey(0x01), ProgramID)
	if err != nil {
		t.Fatalf("derive: %v", err)
	}

	otherOwner, _, err := Derive(testKey(0x02), ProgramID)
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	if otherOwner == base {
		t.Fatal("different owners derived the same address")
	}

	otherProgram, _, err := Derive(testKey(0x01), testKey(0x77))
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	if otherProgram == base {
		t.Fatal("different programs derived the same address")
	}
}
