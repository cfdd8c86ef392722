package load

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core"
	ethparams "github.com/ethereum/go-ethereum/params"
	"github.com/hashicorp/go-multierror"
)

var (
	ErrNoGenesis = errors.New("genesis description is missing")
	ErrNoConfig  = errors.New("genesis has no chain config")
	ErrNoChainID = errors.New("genesis chain config has no chainId")
)

// Derive validates a genesis description against the Load Network policy
// and returns the immutable parameter set.
//
// Policy:
//   - cancunTime must be exactly 0
//   - terminalTotalDifficulty must be 0 (missing defaults to 0)
//   - mergeNetsplitBlock must be 0 (missing defaults to 0)
//   - every pre-Cancun block fork must be 0 (missing defaults to 0)
//   - shanghaiTime and pragueTime must be 0 (missing defaults to 0)
//
// The Cancun and Prague blob schedule entries are overwritten with the Load
// budget regardless of what the genesis carries; Osaka keeps the upstream
// default. Every violation is reported; the input is never modified.
func Derive(name string, genesis *core.Genesis) (*Params, error) {
	if genesis == nil {
		return nil, ErrNoGenesis
	}
	if genesis.Config == nil {
		return nil, ErrNoConfig
	}
	cfg := *genesis.Config

	var result *multierror.Error
	if cfg.ChainID == nil {
		result = multierror.Append(result, ErrNoChainID)
	}

	if cfg.CancunTime == nil || *cfg.CancunTime != 0 {
		result = multierror.Append(result, fmt.Errorf("Load Network requires Cancun hardfork at genesis (cancunTime = 0), got %s", fmtTime(cfg.CancunTime)))
	}

	switch {
	case cfg.TerminalTotalDifficulty == nil:
		cfg.TerminalTotalDifficulty = new(big.Int)
	case cfg.TerminalTotalDifficulty.Sign() != 0:
		result = multierror.Append(result, fmt.Errorf("Load Network PoS mode requires terminalTotalDifficulty = 0, got %v", cfg.TerminalTotalDifficulty))
	}

	if err := zeroBlock("mergeNetsplitBlock", &cfg.MergeNetsplitBlock); err != nil {
		result = multierror.Append(result, err)
	}

	preCancun := []struct {
		name string
		ptr  **big.Int
	}{
		{"homesteadBlock", &cfg.HomesteadBlock},
		{"daoForkBlock", &cfg.DAOForkBlock},
		{"eip150Block", &cfg.EIP150Block},
		{"eip155Block", &cfg.EIP155Block},
		{"eip158Block", &cfg.EIP158Block},
		{"byzantiumBlock", &cfg.ByzantiumBlock},
		{"constantinopleBlock", &cfg.ConstantinopleBlock},
		{"petersburgBlock", &cfg.PetersburgBlock},
		{"istanbulBlock", &cfg.IstanbulBlock},
		{"muirGlacierBlock", &cfg.MuirGlacierBlock},
		{"berlinBlock", &cfg.BerlinBlock},
		{"londonBlock", &cfg.LondonBlock},
		{"arrowGlacierBlock", &cfg.ArrowGlacierBlock},
		{"grayGlacierBlock", &cfg.GrayGlacierBlock},
	}
	for _, fork := range preCancun {
		if err := zeroBlock(fork.name, fork.ptr); err != nil {
			result = multierror.Append(result, err)
		}
	}

	if err := zeroTime("shanghaiTime", &cfg.ShanghaiTime); err != nil {
		result = multierror.Append(result, err)
	}
	if err := zeroTime("pragueTime", &cfg.PragueTime); err != nil {
		result = multierror.Append(result, err)
	}

	if err := result.ErrorOrNil(); err != nil {
		return nil, fmt.Errorf("invalid Load genesis: %w", err)
	}

	budget := DefaultBlobBudget()
	sched := &ethparams.BlobScheduleConfig{
		Cancun: budget.blobConfig(),
		Prague: budget.blobConfig(),
		Osaka:  ethparams.DefaultOsakaBlobConfig,
	}
	if genesis.Config.BlobScheduleConfig != nil && genesis.Config.BlobScheduleConfig.Osaka != nil {
		sched.Osaka = genesis.Config.BlobScheduleConfig.Osaka
	}
	cfg.BlobScheduleConfig = sched

	normalized := *genesis
	normalized.Config = &cfg
	if normalized.Difficulty == nil {
		normalized.Difficulty = new(big.Int)
	}
	if normalized.GasLimit == 0 {
		normalized.GasLimit = ExecutionGasLimit
	}

	return &Params{
		name:    name,
		chainID: new(big.Int).Set(cfg.ChainID),
		blobs:   budget,
		forks: []ForkActivation{
			{Fork: Shanghai, Time: cfg.ShanghaiTime},
			{Fork: Cancun, Time: cfg.CancunTime},
			{Fork: Prague, Time: cfg.PragueTime},
			{Fork: Osaka, Time: cfg.OsakaTime},
		},
		prevRandao: PrevRandao,
		extraData:  common.CopyBytes(genesis.ExtraData),
		genesis:    &normalized,
	}, nil
}

// zeroBlock enforces a block-number fork at 0, filling a missing value.
func zeroBlock(name string, ptr **big.Int) error {
	if *ptr == nil {
		*ptr = new(big.Int)
		return nil
	}
	if (*ptr).Sign() != 0 {
		return fmt.Errorf("Load Network requires %s = 0 (active at genesis), got %v", name, *ptr)
	}
	return nil
}

// zeroTime enforces a timestamp fork at 0, filling a missing value.
func zeroTime(name string, ptr **uint64) error {
	if *ptr == nil {
		zero := uint64(0)
		*ptr = &zero
		return nil
	}
	if **ptr != 0 {
		return fmt.Errorf("Load Network requires %s = 0 (active at genesis), got %d", name, **ptr)
	}
	return nil
}

func fmtTime(t *uint64) string {
	if t == nil {
		return "none"
	}
	return fmt.Sprintf("%d", *t)
}
