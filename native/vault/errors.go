package vault

import "errors"

var (
	// ErrMissingSignature is returned when the owner role did not sign the
	// instruction.
	ErrMissingSignature = errors.New("vault: owner signature required")
	// ErrPermissionDenied is returned when a writable role was supplied
	// read-only.
	ErrPermissionDenied = errors.New("vault: account not writable")
	// ErrWrongSystemAccount is returned when the system allocator or rent
	// parameter reference does not match the platform's well-known identity.
	ErrWrongSystemAccount = errors.New("vault: unexpected system account")
	// ErrAddressMismatch is returned when the supplied slot address is not
	// the derived address for the owner.
	ErrAddressMismatch = errors.New("vault: slot address mismatch")
	// ErrInvalidSize is returned when the requested capacity exceeds the
	// platform maximum account size.
	ErrInvalidSize = errors.New("vault: capacity exceeds platform maximum")
	// ErrPayloadTooLarge is returned when the payload exceeds the configured
	// ceiling.
	ErrPayloadTooLarge = errors.New("vault: payload exceeds configured ceiling")
	// ErrInsufficientFunds is returned when the owner cannot cover the rent
	// top-up for the new capacity.
	ErrInsufficientFunds = errors.New("vault: insufficient owner funds")
	// ErrArithmeticFault signals an internal invariant breach: checked
	// arithmetic would have overflowed or underflowed.
	ErrArithmeticFault = errors.New("vault: arithmetic bounds exceeded")
	// ErrBumpExhausted is returned when no disambiguator in the bump range
	// yields an off-curve address. Not expected in practice.
	ErrBumpExhausted = errors.New("vault: bump seed range exhausted")
)

// Reason maps an engine error to a stable label for metrics and logs.
func Reason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrMissingSignature):
		return "missing_signature"
	case errors.Is(err, ErrPermissionDenied):
		return "permission_denied"
	case errors.Is(err, ErrWrongSystemAccount):
		return "wrong_system_account"
	case errors.Is(err, ErrAddressMismatch):
		return "address_mismatch"
	case errors.Is(err, ErrInvalidSize):
		return "invalid_size"
	case errors.Is(err, ErrPayloadTooLarge):
		return "payload_too_large"
	case errors.Is(err, ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, ErrArithmeticFault):
		return "arithmetic_fault"
	case errors.Is(err, ErrBumpExhausted):
		return "bump_exhausted"
	default:
		return "internal"
	}
}
