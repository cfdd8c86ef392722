package catalyst

import (
	"errors"
	"fmt"

	"github.com/rony4d/go-load/guard"
)

var errInvalidVersionedHashes = errors.New("invalid versioned hashes")

func errUnsupportedPayloadVersion(version guard.WireVersion, ts uint64) error {
	return fmt.Errorf("getPayloadV%d not supported for payload timestamp %d", version, ts)
}
