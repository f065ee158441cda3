package config

import (
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"slotvault/crypto"
	"slotvault/native/vault"
)

// Config carries the ledger's operational parameters.
type Config struct {
	DataDir         string       `toml:"DataDir"`
	Environment     string       `toml:"Environment"`
	MaxPayloadBytes uint64       `toml:"MaxPayloadBytes"`
	Rent            RentConfig   `toml:"Rent"`
	Genesis         []Allocation `toml:"Genesis"`
}

// RentConfig overrides the platform minimum-balance parameters. Zero values
// fall back to the defaults.
type RentConfig struct {
	RatePerByteYear uint64 `toml:"RatePerByteYear"`
	ExemptionYears  uint64 `toml:"ExemptionYears"`
	StorageOverhead uint64 `toml:"StorageOverhead"`
}

// Allocation seeds an owner funding account when the ledger is first opened.
type Allocation struct {
	Owner   string `toml:"Owner"`
	Balance string `toml:"Balance"`
}

// Load reads the configuration at path, creating a default file when none
// exists yet.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	cfg := &Config{}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// applyDefaults fills unset fields. A zero MaxPayloadBytes is treated as
// unset rather than as "no ceiling": the write ceiling cannot be disabled
// through configuration, only programmatically via Engine.SetMaxPayloadBytes.
func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.DataDir) == "" {
		c.DataDir = "./slotvault-data"
	}
	if strings.TrimSpace(c.Environment) == "" {
		c.Environment = "local"
	}
	if c.MaxPayloadBytes == 0 {
		c.MaxPayloadBytes = vault.DefaultMaxPayloadBytes
	}
	defaults := vault.DefaultRentParams()
	if c.Rent.RatePerByteYear == 0 {
		c.Rent.RatePerByteYear = defaults.RatePerByteYear
	}
	if c.Rent.ExemptionYears == 0 {
		c.Rent.ExemptionYears = defaults.ExemptionYears
	}
	if c.Rent.StorageOverhead == 0 {
		c.Rent.StorageOverhead = defaults.StorageOverhead
	}
}

// Validate rejects configurations the engine cannot honour.
func (c *Config) Validate() error {
	if c.MaxPayloadBytes > vault.MaxAccountSize {
		return fmt.Errorf("config: MaxPayloadBytes %d exceeds platform maximum %d", c.MaxPayloadBytes, uint64(vault.MaxAccountSize))
	}
	for i, alloc := range c.Genesis {
		if _, _, err := parseAllocation(alloc); err != nil {
			return fmt.Errorf("config: genesis allocation %d: %w", i, err)
		}
	}
	return nil
}

// RentParams converts the configured rent section into engine parameters.
func (c *Config) RentParams() vault.RentParams {
	return vault.RentParams{
		RatePerByteYear: c.Rent.RatePerByteYear,
		ExemptionYears:  c.Rent.ExemptionYears,
		StorageOverhead: c.Rent.StorageOverhead,
	}
}

// Allocations returns the parsed genesis balances keyed by raw owner key.
func (c *Config) Allocations() (map[[32]byte]*big.Int, error) {
	out := make(map[[32]byte]*big.Int, len(c.Genesis))
	for i, alloc := range c.Genesis {
		owner, balance, err := parseAllocation(alloc)
		if err != nil {
			return nil, fmt.Errorf("config: genesis allocation %d: %w", i, err)
		}
		out[owner] = balance
	}
	return out, nil
}

func parseAllocation(alloc Allocation) ([32]byte, *big.Int, error) {
	var owner [32]byte
	addr, err := crypto.DecodeAddress(strings.TrimSpace(alloc.Owner))
	if err != nil {
		return owner, nil, err
	}
	if addr.Prefix() != crypto.OwnerPrefix {
		return owner, nil, fmt.Errorf("owner address has prefix %q, want %q", addr.Prefix(), crypto.OwnerPrefix)
	}
	copy(owner[:], addr.Bytes())
	balance, ok := new(big.Int).SetString(strings.TrimSpace(alloc.Balance), 10)
	if !ok || balance.Sign() < 0 {
		return owner, nil, fmt.Errorf("invalid balance %q", alloc.Balance)
	}
	return owner, balance, nil
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := Default()
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return toml.NewEncoder(f).Encode(cfg)
}
