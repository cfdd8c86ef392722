// Package genesis ships the built-in Load genesis descriptions and resolves
// a chain argument (a built-in name or a JSON file path) into validated
// network parameters.
//
// Built-in chains:
//   - "load":     mainnet, chain ID 16888
//   - "load-dev": local development network, chain ID 16383 (default)
//
// Usage:
//
//	params, err := genesis.Load("load-dev")
//	params, err := genesis.Load("/etc/load/genesis.json")

package genesis

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/params"

	"github.com/rony4d/go-load/load"
)

const (
	MainnetName = "load"
	DevName     = "load-dev"
)

// SupportedChains lists the built-in chain names accepted by Load.
var SupportedChains = []string{MainnetName, DevName}

var (
	//go:embed load.json
	mainnetJSON []byte

	//go:embed load-dev.json
	devJSON []byte
)

// Load resolves nameOrPath into network parameters. An empty argument
// selects the development network.
func Load(nameOrPath string) (*load.Params, error) {
	name, g, err := Resolve(nameOrPath)
	if err != nil {
		return nil, err
	}
	return load.Derive(name, g)
}

// Resolve returns the raw genesis description for nameOrPath with the
// required system contracts predeployed.
func Resolve(nameOrPath string) (string, *core.Genesis, error) {
	var (
		name = nameOrPath
		raw  []byte
	)
	switch nameOrPath {
	case MainnetName:
		raw = mainnetJSON
	case DevName, "":
		name, raw = DevName, devJSON
	default:
		data, err := os.ReadFile(nameOrPath)
		if err != nil {
			return "", nil, fmt.Errorf("read genesis file %s: %w", nameOrPath, err)
		}
		raw = data
	}
	g, err := Decode(raw)
	if err != nil {
		return "", nil, fmt.Errorf("decode genesis %s: %w", name, err)
	}
	return name, g, nil
}

// Decode parses a genesis JSON document and predeploys missing system contracts.
func Decode(raw []byte) (*core.Genesis, error) {
	g := new(core.Genesis)
	if err := json.Unmarshal(raw, g); err != nil {
		return nil, err
	}
	WithSystemContracts(g)
	return g, nil
}

// Mainnet returns the built-in mainnet genesis description.
func Mainnet() *core.Genesis { return mustDecode(mainnetJSON) }

// Dev returns the built-in development genesis description.
func Dev() *core.Genesis { return mustDecode(devJSON) }

func mustDecode(raw []byte) *core.Genesis {
	g, err := Decode(raw)
	if err != nil {
		panic(fmt.Errorf("built-in genesis is malformed: %w", err))
	}
	return g
}

// WithSystemContracts installs the beacon roots, history storage, withdrawal
// queue and consolidation queue contracts into the allocation when absent.
// Load activates Cancun and Prague at genesis, so their system calls need
// code at block 1.
func WithSystemContracts(g *core.Genesis) {
	alloc := make(types.GenesisAlloc, len(g.Alloc)+4)
	for addr, acc := range g.Alloc {
		alloc[addr] = acc
	}
	for addr, code := range map[common.Address][]byte{
		params.BeaconRootsAddress:        params.BeaconRootsCode,
		params.HistoryStorageAddress:     params.HistoryStorageCode,
		params.WithdrawalQueueAddress:    params.WithdrawalQueueCode,
		params.ConsolidationQueueAddress: params.ConsolidationQueueCode,
	} {
		if _, ok := alloc[addr]; ok {
			continue
		}
		alloc[addr] = types.Account{Nonce: 1, Code: code, Balance: common.Big0}
	}
	g.Alloc = alloc
}
