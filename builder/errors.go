package builder

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownParent  = errors.New("unknown parent block")
	ErrUnknownPayload = errors.New("unknown payload")

	// candidate rejections
	ErrGasLimitExceeded  = errors.New("transaction exceeds remaining block gas")
	ErrBlockSizeExceeded = errors.New("transaction exceeds maximum block size")
	ErrMissingSidecar    = errors.New("missing blob sidecar")

	// ErrBlockTooLarge is fatal: the sealed block is over the encoding limit.
	ErrBlockTooLarge = errors.New("sealed block exceeds maximum RLP size")
)

// InvalidTxError marks an execution failure that only disqualifies the
// transaction, such as an insufficient balance or a nonce gap.
type InvalidTxError struct {
	Err error
}

func (e *InvalidTxError) Error() string { return "invalid transaction: " + e.Err.Error() }
func (e *InvalidTxError) Unwrap() error { return e.Err }

// BlobLimitError rejects a blob transaction that does not fit the block.
type BlobLimitError struct {
	Have      uint64
	Permitted uint64
	PerTx     bool
}

func (e *BlobLimitError) Error() string {
	if e.PerTx {
		return fmt.Sprintf("too many blobs in transaction: have %d, permitted %d", e.Have, e.Permitted)
	}
	return fmt.Sprintf("too many blobs in block: have %d, permitted %d", e.Have, e.Permitted)
}
