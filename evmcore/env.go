package evmcore

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core"
	"github.com/ethereum/go-ethereum/core/state"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/core/vm"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/params"

	"github.com/rony4d/go-load/builder"
)

// buildEnv executes candidate transactions for one block build. It owns
// its StateDB; nothing else reads or writes it.
type buildEnv struct {
	chain  *core.BlockChain
	config *params.ChainConfig
	header *types.Header
	state  *state.StateDB
	evm    *vm.EVM
	signer types.Signer
	gp     *core.GasPool

	txIndex int
	gasUsed uint64
}

func newBuildEnv(chain *core.BlockChain, config *params.ChainConfig, st *state.StateDB, header *types.Header) *buildEnv {
	blockCtx := core.NewEVMBlockContext(header, chain, nil)
	evm := vm.NewEVM(blockCtx, st, config, vm.Config{})

	if header.ParentBeaconRoot != nil {
		core.ProcessBeaconBlockRoot(*header.ParentBeaconRoot, evm)
	}
	if config.IsPrague(header.Number, header.Time) {
		core.ProcessParentBlockHash(header.ParentHash, evm)
	}
	return &buildEnv{
		chain:  chain,
		config: config,
		header: header,
		state:  st,
		evm:    evm,
		signer: types.MakeSigner(config, header.Number, header.Time),
		gp:     new(core.GasPool).AddGas(header.GasLimit),
	}
}

// Apply implements builder.Env. State changes of a rejected transaction
// are rolled back.
func (e *buildEnv) Apply(tx *types.Transaction) (*types.Receipt, error) {
	msg, err := core.TransactionToMessage(tx, e.signer, e.header.BaseFee)
	if err != nil {
		return nil, &builder.InvalidTxError{Err: err}
	}

	snap, gas := e.state.Snapshot(), e.gp.Gas()
	e.state.SetTxContext(tx.Hash(), e.txIndex)
	e.evm.SetTxContext(core.NewEVMTxContext(msg))

	result, err := core.ApplyMessage(e.evm, msg, e.gp)
	if dbErr := e.state.Error(); dbErr != nil {
		return nil, fmt.Errorf("state access failed: %w", dbErr)
	}
	if err != nil {
		e.state.RevertToSnapshot(snap)
		e.gp.SetGas(gas)
		if errors.Is(err, core.ErrNonceTooLow) {
			return nil, err
		}
		return nil, &builder.InvalidTxError{Err: err}
	}
	e.state.Finalise(true)

	e.gasUsed += result.UsedGas
	receipt := &types.Receipt{
		Type:              tx.Type(),
		CumulativeGasUsed: e.gasUsed,
		TxHash:            tx.Hash(),
		GasUsed:           result.UsedGas,
		Logs:              e.state.GetLogs(tx.Hash(), e.header.Number.Uint64(), common.Hash{}, e.header.Time),
		BlockNumber:       e.header.Number,
		TransactionIndex:  uint(e.txIndex),
		EffectiveGasPrice: msg.GasPrice,
	}
	if result.Failed() {
		receipt.Status = types.ReceiptStatusFailed
	} else {
		receipt.Status = types.ReceiptStatusSuccessful
	}
	if tx.Type() == types.BlobTxType {
		receipt.BlobGasUsed = uint64(len(tx.BlobHashes())) * params.BlobTxBlobGasPerBlob
		receipt.BlobGasPrice = e.evm.Context.BlobBaseFee
	}
	if msg.To == nil {
		receipt.ContractAddress = crypto.CreateAddress(msg.From, tx.Nonce())
	}
	receipt.Bloom = types.CreateBloom(receipt)

	e.txIndex++
	return receipt, nil
}

// Finalize implements builder.Env. It gathers the Prague execution
// requests, then lets the beacon engine credit withdrawals and assemble
// the block.
func (e *buildEnv) Finalize(header *types.Header, txs types.Transactions, receipts []*types.Receipt, withdrawals types.Withdrawals) (*types.Block, [][]byte, error) {
	var requests [][]byte
	if e.config.IsPrague(header.Number, header.Time) {
		requests = [][]byte{}
		var logs []*types.Log
		for _, r := range receipts {
			logs = append(logs, r.Logs...)
		}
		if err := core.ParseDepositLogs(&requests, logs, e.config); err != nil {
			return nil, nil, fmt.Errorf("failed to parse deposit logs: %w", err)
		}
		if err := core.ProcessWithdrawalQueue(&requests, e.evm); err != nil {
			return nil, nil, fmt.Errorf("failed to process withdrawal queue: %w", err)
		}
		if err := core.ProcessConsolidationQueue(&requests, e.evm); err != nil {
			return nil, nil, fmt.Errorf("failed to process consolidation queue: %w", err)
		}
		hash := types.CalcRequestsHash(requests)
		header.RequestsHash = &hash
	}

	body := &types.Body{Transactions: txs, Withdrawals: withdrawals}
	block, err := e.chain.Engine().FinalizeAndAssemble(e.chain, header, e.state, body, receipts)
	if err != nil {
		return nil, nil, err
	}
	return block, requests, nil
}
