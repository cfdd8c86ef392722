// Package load defines the fixed protocol parameters of the Load Network.
//
// This package provides:
//   - Network identification constants (mainnet, devnet)
//   - The data-availability budget (blobs per block, per transaction, fee curve)
//   - The fixed prevRandao constant substituted for beacon randomness
//   - Fork activation helpers keyed by block timestamp
//
// Params is derived once from a genesis description (see Derive) and is
// shared read-only by every other component for the lifetime of the process.

package load

import (
	"encoding/json"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core"
	ethparams "github.com/ethereum/go-ethereum/params"
)

// Network identification constants
const (
	// MainNetworkID is the chain ID of the Load mainnet ("load").
	MainNetworkID uint64 = 16888

	// DevNetworkID is the chain ID of the local development network ("load-dev").
	DevNetworkID uint64 = 16383
)

// Data-availability budget. These values replace whatever the genesis
// description carries for the Cancun and Prague blob schedule entries.
const (
	// MaxBlobCount is the hard cap on blobs in a single block.
	MaxBlobCount uint64 = 1024

	// TargetBlobCount is the per-block blob target driving the blob fee curve.
	TargetBlobCount uint64 = 512

	// MaxBlobsPerTx is the cap on blobs carried by a single transaction.
	MaxBlobsPerTx uint64 = 32

	// BlobUpdateFraction is the EIP-4844 blob base fee update denominator.
	BlobUpdateFraction uint64 = 5_007_716

	// MinBlobFee is the floor of the blob base fee in wei (Cancun default).
	MinBlobFee uint64 = ethparams.BlobTxMinBlobGasprice

	// BlobBaseCost is the execution gas charged per blob (Cancun default, 2^13).
	BlobBaseCost uint64 = 1 << 13
)

// Block production limits.
const (
	// ExecutionGasLimit is the default block gas limit used when the
	// builder is not configured with an explicit one.
	ExecutionGasLimit uint64 = 2_000_000_000

	// MaxRLPBlockSize is the maximum RLP-encoded block size enforced once
	// Osaka is active: 10 MiB less a 2 MiB safety margin.
	MaxRLPBlockSize uint64 = 8_388_608
)

// PrevRandao is the constant every Load block carries in its prevRandao
// (mixHash) field: 32 bytes with only the last byte set to 0x01.
var PrevRandao = common.Hash{31: 0x01}

// BlobBudget groups the data-availability parameters of the network.
type BlobBudget struct {
	// Max is the maximum number of blobs allowed in a block.
	Max uint64 `json:"max"`

	// Target is the number of blobs per block the fee curve steers toward.
	Target uint64 `json:"target"`

	// MaxPerTx is the maximum number of blobs a single transaction may carry.
	// Enforced at pool ingestion and again by the assembly loop.
	MaxPerTx uint64 `json:"maxPerTx"`

	// UpdateFraction controls how fast the blob base fee reacts to excess blob gas.
	UpdateFraction uint64 `json:"baseFeeUpdateFraction"`

	// MinFee is the minimum blob base fee in wei.
	MinFee uint64 `json:"minFee"`

	// BaseCost is the execution gas cost charged per blob.
	BaseCost uint64 `json:"baseCost"`
}

// DefaultBlobBudget returns the Load data-availability budget.
func DefaultBlobBudget() BlobBudget {
	return BlobBudget{
		Max:            MaxBlobCount,
		Target:         TargetBlobCount,
		MaxPerTx:       MaxBlobsPerTx,
		UpdateFraction: BlobUpdateFraction,
		MinFee:         MinBlobFee,
		BaseCost:       BlobBaseCost,
	}
}

// blobConfig converts the budget into the go-ethereum blob schedule entry.
func (b BlobBudget) blobConfig() *ethparams.BlobConfig {
	return &ethparams.BlobConfig{
		Target:         int(b.Target),
		Max:            int(b.Max),
		UpdateFraction: b.UpdateFraction,
	}
}

// Fork names a timestamp-activated protocol upgrade.
type Fork string

const (
	Shanghai Fork = "shanghai"
	Cancun   Fork = "cancun"
	Prague   Fork = "prague"
	Osaka    Fork = "osaka"
)

// ForkActivation pairs a fork with its activation timestamp. A nil Time
// means the fork is not scheduled.
type ForkActivation struct {
	Fork Fork    `json:"fork"`
	Time *uint64 `json:"time,omitempty"`
}

// Params is the immutable parameter set of a Load network. All fields are
// unexported; accessors return copies so holders cannot mutate shared state.
type Params struct {
	name       string
	chainID    *big.Int
	blobs      BlobBudget
	forks      []ForkActivation // ordered Shanghai, Cancun, Prague, Osaka
	prevRandao common.Hash
	extraData  []byte
	genesis    *core.Genesis // normalized copy handed to the chain backend
}

// Name returns the chain name the parameters were derived for.
func (p *Params) Name() string { return p.name }

// ChainID returns a copy of the chain identifier.
func (p *Params) ChainID() *big.Int { return new(big.Int).Set(p.chainID) }

// Blobs returns the data-availability budget.
func (p *Params) Blobs() BlobBudget { return p.blobs }

// PrevRandao returns the fixed randomness constant.
func (p *Params) PrevRandao() common.Hash { return p.prevRandao }

// ExtraData returns a copy of the genesis extra data, reused by built blocks.
func (p *Params) ExtraData() []byte { return common.CopyBytes(p.extraData) }

// Forks returns the ordered fork activation schedule.
func (p *Params) Forks() []ForkActivation {
	out := make([]ForkActivation, len(p.forks))
	for i, f := range p.forks {
		out[i] = ForkActivation{Fork: f.Fork}
		if f.Time != nil {
			t := *f.Time
			out[i].Time = &t
		}
	}
	return out
}

// IsActive reports whether fork is active at timestamp ts.
func (p *Params) IsActive(fork Fork, ts uint64) bool {
	for _, f := range p.forks {
		if f.Fork == fork {
			return f.Time != nil && *f.Time <= ts
		}
	}
	return false
}

func (p *Params) IsShanghai(ts uint64) bool { return p.IsActive(Shanghai, ts) }
func (p *Params) IsCancun(ts uint64) bool   { return p.IsActive(Cancun, ts) }
func (p *Params) IsPrague(ts uint64) bool   { return p.IsActive(Prague, ts) }
func (p *Params) IsOsaka(ts uint64) bool    { return p.IsActive(Osaka, ts) }

// ScheduleMaxBlobs returns the max blob count the fork schedule allows at
// ts, and false when no blob-enabled fork is active.
func (p *Params) ScheduleMaxBlobs(ts uint64) (uint64, bool) {
	sched := p.genesis.Config.BlobScheduleConfig
	if sched == nil {
		return 0, false
	}
	var cfg *ethparams.BlobConfig
	switch {
	case p.IsOsaka(ts):
		cfg = sched.Osaka
	case p.IsPrague(ts):
		cfg = sched.Prague
	case p.IsCancun(ts):
		cfg = sched.Cancun
	}
	if cfg == nil {
		return 0, false
	}
	return uint64(cfg.Max), true
}

// BlobCap returns the effective per-block blob cap at ts: the schedule
// maximum clamped to the network hard cap. The hard cap is never raised.
func (p *Params) BlobCap(ts uint64) uint64 {
	limit, ok := p.ScheduleMaxBlobs(ts)
	if !ok || limit > p.blobs.Max {
		return p.blobs.Max
	}
	return limit
}

// ChainConfig returns a copy of the go-ethereum chain configuration.
func (p *Params) ChainConfig() *ethparams.ChainConfig {
	cfg := *p.genesis.Config
	return &cfg
}

// Genesis returns a copy of the normalized genesis description.
func (p *Params) Genesis() *core.Genesis {
	g := *p.genesis
	g.Config = p.ChainConfig()
	return &g
}

// WithOverrides returns a copy of p with the given fork activation times
// replaced, the way go-ethereum's --override.* flags reschedule a fork on a
// running network. The genesis policy of Derive is not re-applied.
func (p *Params) WithOverrides(overrides ...ForkActivation) *Params {
	cfg := *p.genesis.Config
	g := *p.genesis
	g.Config = &cfg

	cp := *p
	cp.genesis = &g
	cp.forks = p.Forks()
	for _, o := range overrides {
		var t *uint64
		if o.Time != nil {
			v := *o.Time
			t = &v
		}
		for i := range cp.forks {
			if cp.forks[i].Fork == o.Fork {
				cp.forks[i].Time = t
			}
		}
		switch o.Fork {
		case Shanghai:
			cfg.ShanghaiTime = t
		case Cancun:
			cfg.CancunTime = t
		case Prague:
			cfg.PragueTime = t
		case Osaka:
			cfg.OsakaTime = t
		}
	}
	return &cp
}

// String returns the parameter set as JSON.
func (p *Params) String() string {
	b, _ := json.Marshal(struct {
		Name       string           `json:"name"`
		ChainID    *big.Int         `json:"chainId"`
		Blobs      BlobBudget       `json:"blobs"`
		Forks      []ForkActivation `json:"forks"`
		PrevRandao common.Hash      `json:"prevRandao"`
	}{p.name, p.chainID, p.blobs, p.forks, p.prevRandao})
	return string(b)
}
