// Package ethapi serves the public eth_ methods wallets and load
// generators need: chain identity, head number, nonces, transaction
// submission and receipts.
package ethapi

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/event"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/sirupsen/logrus"
)

// Namespace is the JSON-RPC namespace of the public API.
const Namespace = "eth"

// receiptLookback bounds how many canonical blocks a receipt lookup scans.
const receiptLookback = 1000

// Chain is the chain view the public API reads.
type Chain interface {
	CurrentHeader() *types.Header
	BlockByNumber(number uint64) *types.Block
	Receipts(hash common.Hash) types.Receipts
	Nonce(addr common.Address) (uint64, error)
	SubscribeHeads(ch chan<- *types.Block) event.Subscription
}

// TxPool accepts transactions and reports pending nonces.
type TxPool interface {
	Add(tx *types.Transaction) error
	Nonce(addr common.Address) (uint64, error)
}

// Config bounds eth_sendRawTransactionSync.
type Config struct {
	SyncTimeout    time.Duration `toml:",omitempty"`
	MaxSyncTimeout time.Duration `toml:",omitempty"`
}

func DefaultConfig() Config {
	return Config{
		SyncTimeout:    2 * time.Second,
		MaxSyncTimeout: 10 * time.Second,
	}
}

// PublicAPI is the eth_ namespace.
type PublicAPI struct {
	chainID *big.Int
	signer  types.Signer
	chain   Chain
	pool    TxPool
	cfg     Config
	log     logrus.FieldLogger
}

func NewPublicAPI(chainID *big.Int, chain Chain, pool TxPool, cfg Config, log logrus.FieldLogger) *PublicAPI {
	if cfg.SyncTimeout <= 0 {
		cfg.SyncTimeout = DefaultConfig().SyncTimeout
	}
	if cfg.MaxSyncTimeout < cfg.SyncTimeout {
		cfg.MaxSyncTimeout = cfg.SyncTimeout
	}
	return &PublicAPI{
		chainID: new(big.Int).Set(chainID),
		signer:  types.LatestSignerForChainID(chainID),
		chain:   chain,
		pool:    pool,
		cfg:     cfg,
		log:     log.WithField("component", "ethapi"),
	}
}

// ChainId returns the chain ID.
func (api *PublicAPI) ChainId() *hexutil.Big {
	return (*hexutil.Big)(new(big.Int).Set(api.chainID))
}

// BlockNumber returns the current block number.
func (api *PublicAPI) BlockNumber() hexutil.Uint64 {
	header := api.chain.CurrentHeader()
	if header == nil {
		return 0
	}
	return hexutil.Uint64(header.Number.Uint64())
}

// GetTransactionCount returns the nonce of address at the latest block, or
// the next nonce counting pooled transactions for "pending".
func (api *PublicAPI) GetTransactionCount(address common.Address, blockNr *rpc.BlockNumber) (hexutil.Uint64, error) {
	number := rpc.LatestBlockNumber
	if blockNr != nil {
		number = *blockNr
	}
	var (
		nonce uint64
		err   error
	)
	switch number {
	case rpc.PendingBlockNumber:
		nonce, err = api.pool.Nonce(address)
	case rpc.LatestBlockNumber, rpc.SafeBlockNumber, rpc.FinalizedBlockNumber:
		nonce, err = api.chain.Nonce(address)
	default:
		return 0, fmt.Errorf("block %d not supported, use latest or pending", number)
	}
	if err != nil {
		return 0, err
	}
	return hexutil.Uint64(nonce), nil
}

// SendRawTransaction adds the signed transaction to the pool and returns
// its hash.
func (api *PublicAPI) SendRawTransaction(input hexutil.Bytes) (common.Hash, error) {
	tx := new(types.Transaction)
	if err := tx.UnmarshalBinary(input); err != nil {
		return common.Hash{}, err
	}
	if err := api.pool.Add(tx); err != nil {
		return common.Hash{}, err
	}
	api.log.WithFields(logrus.Fields{
		"hash":  tx.Hash(),
		"nonce": tx.Nonce(),
		"type":  tx.Type(),
	}).Debug("Received raw transaction")
	return tx.Hash(), nil
}

// SendRawTransactionSync submits the transaction and waits for the
// receipt. timeoutMs defaults to the configured timeout and is capped at
// the configured maximum.
func (api *PublicAPI) SendRawTransactionSync(ctx context.Context, input hexutil.Bytes, timeoutMs *hexutil.Uint64) (map[string]interface{}, error) {
	timeout := api.cfg.SyncTimeout
	if timeoutMs != nil && *timeoutMs > 0 {
		timeout = time.Duration(*timeoutMs) * time.Millisecond
	}
	if timeout > api.cfg.MaxSyncTimeout {
		timeout = api.cfg.MaxSyncTimeout
	}

	heads := make(chan *types.Block, 16)
	sub := api.chain.SubscribeHeads(heads)
	defer sub.Unsubscribe()

	hash, err := api.SendRawTransaction(input)
	if err != nil {
		return nil, err
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		select {
		case block := <-heads:
			if receipt := api.receiptIn(block, hash); receipt != nil {
				return receipt, nil
			}
		case err := <-sub.Err():
			return nil, err
		case <-timer.C:
			return nil, &txSyncTimeoutError{hash: hash, timeout: timeout}
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// GetTransactionReceipt returns the receipt of a transaction included in
// one of the recent canonical blocks, or null.
func (api *PublicAPI) GetTransactionReceipt(hash common.Hash) (map[string]interface{}, error) {
	head := api.chain.CurrentHeader()
	if head == nil {
		return nil, nil
	}
	number := head.Number.Uint64()
	for i := number; i > 0 && number-i < receiptLookback; i-- {
		block := api.chain.BlockByNumber(i)
		if block == nil {
			continue
		}
		if receipt := api.receiptIn(block, hash); receipt != nil {
			return receipt, nil
		}
	}
	return nil, nil
}

func (api *PublicAPI) receiptIn(block *types.Block, hash common.Hash) map[string]interface{} {
	for idx, tx := range block.Transactions() {
		if tx.Hash() != hash {
			continue
		}
		receipts := api.chain.Receipts(block.Hash())
		if len(receipts) <= idx {
			return nil
		}
		return api.marshalReceipt(block, tx, receipts[idx], idx)
	}
	return nil
}

func (api *PublicAPI) marshalReceipt(block *types.Block, tx *types.Transaction, receipt *types.Receipt, idx int) map[string]interface{} {
	from, _ := types.Sender(api.signer, tx)
	logs := receipt.Logs
	if logs == nil {
		logs = []*types.Log{}
	}
	fields := map[string]interface{}{
		"transactionHash":   tx.Hash(),
		"transactionIndex":  hexutil.Uint64(idx),
		"blockHash":         block.Hash(),
		"blockNumber":       (*hexutil.Big)(block.Number()),
		"from":              from,
		"to":                tx.To(),
		"cumulativeGasUsed": hexutil.Uint64(receipt.CumulativeGasUsed),
		"gasUsed":           hexutil.Uint64(receipt.GasUsed),
		"contractAddress":   nil,
		"logs":              logs,
		"logsBloom":         receipt.Bloom,
		"status":            hexutil.Uint(receipt.Status),
		"effectiveGasPrice": (*hexutil.Big)(effectiveGasPrice(tx, block.BaseFee())),
		"type":              hexutil.Uint(tx.Type()),
	}
	if receipt.ContractAddress != (common.Address{}) {
		fields["contractAddress"] = receipt.ContractAddress
	}
	if tx.Type() == types.BlobTxType {
		fields["blobGasUsed"] = hexutil.Uint64(receipt.BlobGasUsed)
		if receipt.BlobGasPrice != nil {
			fields["blobGasPrice"] = (*hexutil.Big)(receipt.BlobGasPrice)
		}
	}
	return fields
}

// effectiveGasPrice is baseFee plus the tip the sender actually pays.
func effectiveGasPrice(tx *types.Transaction, baseFee *big.Int) *big.Int {
	if baseFee == nil {
		return tx.GasPrice()
	}
	tip := new(big.Int).Sub(tx.GasFeeCap(), baseFee)
	if tip.Cmp(tx.GasTipCap()) > 0 {
		tip = tx.GasTipCap()
	}
	return tip.Add(tip, baseFee)
}

// txSyncTimeoutError is returned when a synchronously submitted
// transaction is still pending after the timeout.
type txSyncTimeoutError struct {
	hash    common.Hash
	timeout time.Duration
}

func (e *txSyncTimeoutError) Error() string {
	return fmt.Sprintf("transaction was added to the pool but not included within %v", e.timeout)
}

func (e *txSyncTimeoutError) ErrorCode() int { return 4 }

func (e *txSyncTimeoutError) ErrorData() interface{} { return e.hash }

var errTxSyncTimeout *txSyncTimeoutError

// IsSyncTimeout reports whether err is the timeout of
// eth_sendRawTransactionSync.
func IsSyncTimeout(err error) bool {
	return errors.As(err, &errTxSyncTimeout)
}
