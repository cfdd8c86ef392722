package txpool

import (
	"errors"
	"fmt"
)

var (
	ErrAlreadyKnown       = errors.New("already known")
	ErrInvalidSender      = errors.New("invalid sender")
	ErrUnderpriced        = errors.New("transaction underpriced")
	ErrReplaceUnderpriced = errors.New("replacement transaction underpriced")
	ErrPoolFull           = errors.New("txpool is full")
	ErrAccountFull        = errors.New("account limit exceeded")
	ErrNonceTooLow        = errors.New("nonce too low")

	ErrNoBlobs         = errors.New("blob transaction without blobs")
	ErrTooManyBlobs    = errors.New("too many blobs in transaction")
	ErrMissingSidecar  = errors.New("blob transaction without sidecar")
	ErrSidecarMismatch = errors.New("sidecar does not match blob hashes")
	ErrInvalidProof    = errors.New("invalid blob proof")
)

func tooManyBlobs(have, max uint64) error {
	return fmt.Errorf("%w: have %d, permitted %d", ErrTooManyBlobs, have, max)
}
