package vault

import (
	"filippo.io/edwards25519"
	"lukechampine.com/blake3"
)

// derivationTag domain-separates slot address derivation from every other use
// of the combination hash.
const derivationTag = "SlotVaultDerivedAddress"

// maxBump is the highest disambiguator tried; the search walks downward so
// the canonical bump for a given owner is the largest off-curve one.
const maxBump = 255

// Derive maps an owner identity and a program identity to the owner's slot
// address and its canonical bump. The first candidate hash that is not a
// valid ed25519 curve point wins: an off-curve address has no corresponding
// signing key, so only program logic can ever authorise changes to the slot.
//
// Pure function: same inputs always yield the same (address, bump) pair.
// ErrBumpExhausted means no bump in [0, 255] produced an off-curve point,
// which is a fatal configuration error rather than a runtime condition.
func Derive(owner, program [32]byte) ([32]byte, uint8, error) {
	buf := make([]byte, 0, len(owner)+len(program)+1+len(derivationTag))
	buf = append(buf, owner[:]...)
	buf = append(buf, program[:]...)
	bumpIdx := len(buf)
	buf = append(buf, 0)
	buf = append(buf, derivationTag...)

	for bump := maxBump; bump >= 0; bump-- {
		buf[bumpIdx] = byte(bump)
		candidate := blake3.Sum256(buf)
		if offCurve(candidate) {
			return candidate, uint8(bump), nil
		}
	}
	return [32]byte{}, 0, ErrBumpExhausted
}

// offCurve reports whether the candidate bytes fail to decode as an ed25519
// point, i.e. whether no signing key can control the address.
func offCurve(candidate [32]byte) bool {
	_, err := new(edwards25519.Point).SetBytes(candidate[:])
	return err != nil
}
