package builder

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// CandidateSource yields pending transactions best-first. Ordering by fee
// and sender nonce is the source's responsibility.
type CandidateSource interface {
	// Next returns the best remaining candidate, or nil once exhausted.
	Next() *types.Transaction

	// MarkInvalid excludes tx and every later transaction of its sender
	// from the rest of this iteration.
	MarkInvalid(tx *types.Transaction, reason error)

	// SkipBlobs stops the source from offering blob transactions.
	SkipBlobs()

	// Sidecar returns the blob side-car of tx, or nil if it is unknown.
	Sidecar(tx *types.Transaction) *types.BlobTxSidecar
}

// Env is a mutable state view on top of a parent block. One build owns it
// exclusively and discards it when the build ends.
type Env interface {
	// Apply executes tx at the next transaction index. An error wrapping
	// core.ErrNonceTooLow, or an *InvalidTxError, rejects only tx. Any other
	// error is fatal for the build.
	Apply(tx *types.Transaction) (*types.Receipt, error)

	// Finalize runs the post-execution system logic and assembles the
	// block. The returned request list is nil when Prague is inactive.
	Finalize(header *types.Header, txs types.Transactions, receipts []*types.Receipt, withdrawals types.Withdrawals) (*types.Block, [][]byte, error)
}

// Chain resolves parent headers and opens state views.
type Chain interface {
	HeaderByHash(hash common.Hash) *types.Header

	// OpenEnv opens a state view at parent for building pending. It applies
	// the pre-execution system calls of the active forks.
	OpenEnv(parent *types.Header, pending *types.Header) (Env, error)
}

// SourceFunc hands out a fresh candidate iterator for a pending header.
type SourceFunc func(pending *types.Header) CandidateSource

// emptySource never yields a candidate. Building over it produces the
// minimal block for the attributes.
type emptySource struct{}

func (emptySource) Next() *types.Transaction                        { return nil }
func (emptySource) MarkInvalid(*types.Transaction, error)           {}
func (emptySource) SkipBlobs()                                      {}
func (emptySource) Sidecar(*types.Transaction) *types.BlobTxSidecar { return nil }

// EmptySource returns a source without candidates.
func EmptySource() CandidateSource { return emptySource{} }
