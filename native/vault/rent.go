package vault

import (
	"fmt"
	"math/big"

	"github.com/holiman/uint256"
)

// MaxAccountSize is the platform's absolute ceiling on slot capacity.
const MaxAccountSize = 10 * 1024 * 1024

// RentParams are the platform-wide minimum-balance parameters. An account
// must hold at least MinimumBalance(capacity) to avoid reclamation.
type RentParams struct {
	// RatePerByteYear is charged per byte of capacity per year.
	RatePerByteYear uint64
	// ExemptionYears is the number of prepaid years that makes an account
	// exempt from collection.
	ExemptionYears uint64
	// StorageOverhead is the fixed per-account byte overhead added to the
	// capacity before rating.
	StorageOverhead uint64
}

// DefaultRentParams returns the platform's stock minimum-balance parameters.
func DefaultRentParams() RentParams {
	return RentParams{
		RatePerByteYear: 3480,
		ExemptionYears:  2,
		StorageOverhead: 128,
	}
}

// MinimumBalance returns the balance a slot of the given capacity must hold.
// Monotonically non-decreasing in capacity. The product is computed in
// 256-bit arithmetic so the intermediate can never wrap; a result that does
// not fit the platform's 64-bit balance units reports ErrArithmeticFault.
func (p RentParams) MinimumBalance(capacity uint64) (*big.Int, error) {
	rated := new(uint256.Int).Add(uint256.NewInt(p.StorageOverhead), uint256.NewInt(capacity))
	total := new(uint256.Int).Mul(rated, uint256.NewInt(p.RatePerByteYear))
	total.Mul(total, uint256.NewInt(p.ExemptionYears))
	if !total.IsUint64() {
		return nil, fmt.Errorf("%w: minimum balance exceeds 64-bit balance units", ErrArithmeticFault)
	}
	return total.ToBig(), nil
}
