// Copyright 2015 The go-ethereum Authors
// This file is part of the go-ethereum library.
//
// The go-ethereum library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The go-ethereum library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the go-ethereum library. If not, see <http://www.gnu.org/licenses/>.

// This file converts between the consensus-layer execution payload and the
// go-ethereum block format.
//
// Key concepts:
//   - ExecutableData: the Engine API view of a block (transactions as opaque bytes)
//   - types.Block: the execution view, hashed and validated by the chain
//
// Usage:
//
//	data := BlockToPayload(block)
//	block, err := PayloadToBlock(data, beaconRoot, requests)

package evmcore

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/beacon/engine"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/params"
	"github.com/ethereum/go-ethereum/trie"
)

var (
	ErrBlockHashMismatch = errors.New("block hash mismatch")
	ErrBadExtraData      = errors.New("invalid extradata length")
	ErrBadLogsBloom      = errors.New("invalid logsBloom length")
)

// BlockToPayload converts block to its Engine API representation. Blob
// side-cars are not part of the payload; envelopes carry them separately.
func BlockToPayload(block *types.Block) (*engine.ExecutableData, error) {
	txs := make([][]byte, len(block.Transactions()))
	for i, tx := range block.Transactions() {
		enc, err := tx.MarshalBinary()
		if err != nil {
			return nil, fmt.Errorf("failed to encode tx %d: %w", i, err)
		}
		txs[i] = enc
	}
	header := block.Header()
	return &engine.ExecutableData{
		ParentHash:    header.ParentHash,
		FeeRecipient:  header.Coinbase,
		StateRoot:     header.Root,
		ReceiptsRoot:  header.ReceiptHash,
		LogsBloom:     header.Bloom.Bytes(),
		Random:        header.MixDigest,
		Number:        header.Number.Uint64(),
		GasLimit:      header.GasLimit,
		GasUsed:       header.GasUsed,
		Timestamp:     header.Time,
		ExtraData:     header.Extra,
		BaseFeePerGas: header.BaseFee,
		BlockHash:     block.Hash(),
		Transactions:  txs,
		Withdrawals:   block.Withdrawals(),
		BlobGasUsed:   header.BlobGasUsed,
		ExcessBlobGas: header.ExcessBlobGas,
	}, nil
}

// PayloadToBlock rebuilds the block described by data and checks that it
// hashes to data.BlockHash. beaconRoot and requests are the fork-specific
// fields carried next to the payload; nil means absent.
//
// Field presence is not checked against the fork schedule here. The chain
// rejects a block whose header shape does not match its fork on import.
func PayloadToBlock(data *engine.ExecutableData, beaconRoot *common.Hash, requests [][]byte) (*types.Block, error) {
	if len(data.ExtraData) > int(params.MaximumExtraDataSize) {
		return nil, fmt.Errorf("%w: %d", ErrBadExtraData, len(data.ExtraData))
	}
	if len(data.LogsBloom) != types.BloomByteLength {
		return nil, fmt.Errorf("%w: %d", ErrBadLogsBloom, len(data.LogsBloom))
	}
	txs := make(types.Transactions, len(data.Transactions))
	for i, enc := range data.Transactions {
		tx := new(types.Transaction)
		if err := tx.UnmarshalBinary(enc); err != nil {
			return nil, fmt.Errorf("transaction %d is not valid: %w", i, err)
		}
		txs[i] = tx
	}

	header := &types.Header{
		ParentHash:       data.ParentHash,
		UncleHash:        types.EmptyUncleHash,
		Coinbase:         data.FeeRecipient,
		Root:             data.StateRoot,
		TxHash:           types.DeriveSha(txs, trie.NewListHasher()),
		ReceiptHash:      data.ReceiptsRoot,
		Bloom:            types.BytesToBloom(data.LogsBloom),
		Difficulty:       new(big.Int),
		Number:           new(big.Int).SetUint64(data.Number),
		GasLimit:         data.GasLimit,
		GasUsed:          data.GasUsed,
		Time:             data.Timestamp,
		BaseFee:          data.BaseFeePerGas,
		Extra:            data.ExtraData,
		MixDigest:        data.Random,
		BlobGasUsed:      data.BlobGasUsed,
		ExcessBlobGas:    data.ExcessBlobGas,
		ParentBeaconRoot: beaconRoot,
	}
	if data.Withdrawals != nil {
		h := types.DeriveSha(types.Withdrawals(data.Withdrawals), trie.NewListHasher())
		header.WithdrawalsHash = &h
	}
	if requests != nil {
		h := types.CalcRequestsHash(requests)
		header.RequestsHash = &h
	}

	block := types.NewBlockWithHeader(header).WithBody(types.Body{Transactions: txs, Withdrawals: data.Withdrawals})
	if block.Hash() != data.BlockHash {
		return nil, fmt.Errorf("%w: want %x, have %x", ErrBlockHashMismatch, data.BlockHash, block.Hash())
	}
	return block, nil
}
