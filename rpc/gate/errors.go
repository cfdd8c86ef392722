package gate

import "fmt"

const (
	overloadCode    = -32005
	overloadMessage = "go-load RPC overload: method concurrency limit reached"

	batchTooLargeCode = -32011
)

// OverloadError rejects a call whose method is at its in-flight limit.
// Callers should back off and retry.
type OverloadError struct {
	Method string
	Limit  uint64
}

type overloadData struct {
	Method string `json:"method"`
	Limit  uint64 `json:"limit"`
}

func (e *OverloadError) Error() string  { return overloadMessage }
func (e *OverloadError) ErrorCode() int { return overloadCode }
func (e *OverloadError) ErrorData() interface{} {
	return overloadData{Method: e.Method, Limit: e.Limit}
}

// batchTooLargeError replaces a batch response that outgrew the ceiling.
type batchTooLargeError struct {
	limit uint64
}

func (e *batchTooLargeError) Error() string {
	return fmt.Sprintf("batch response exceeds the %d byte limit", e.limit)
}

func (e *batchTooLargeError) ErrorCode() int { return batchTooLargeCode }
