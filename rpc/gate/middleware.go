package gate

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"

	"github.com/ethereum/go-ethereum/rpc"
)

// maxRequestContentLength matches the go-ethereum HTTP server limit.
const maxRequestContentLength = 5 * 1024 * 1024

type jsonError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

type jsonResponse struct {
	Version string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Error   *jsonError      `json:"error"`
}

// call is the part of a JSON-RPC request the gate looks at.
type call struct {
	ID     json.RawMessage `json:"id"`
	Method string          `json:"method"`
}

func (c *call) isNotification() bool { return len(c.ID) == 0 }

func errorResponse(id json.RawMessage, err rpc.Error) []byte {
	if len(id) == 0 {
		id = json.RawMessage("null")
	}
	je := &jsonError{Code: err.ErrorCode(), Message: err.Error()}
	if de, ok := err.(rpc.DataError); ok {
		je.Data = de.ErrorData()
	}
	out, _ := json.Marshal(&jsonResponse{Version: "2.0", ID: id, Error: je})
	return out
}

// Middleware gates the JSON-RPC requests reaching next. Requests that are
// not well-formed JSON-RPC are forwarded untouched for next to answer.
func (g *Gate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || len(g.methods) == 0 {
			next.ServeHTTP(w, r)
			return
		}
		body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestContentLength+1))
		r.Body.Close()
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(body))

		trimmed := bytes.TrimLeft(body, " \t\r\n")
		if len(trimmed) > 0 && trimmed[0] == '[' {
			g.serveBatch(w, r, next, body)
			return
		}
		var c call
		if err := json.Unmarshal(body, &c); err != nil || !g.Guarded(c.Method) {
			next.ServeHTTP(w, r)
			return
		}
		permit, err := g.TryAcquire(c.Method)
		if err != nil {
			writeJSON(w, errorResponse(c.ID, err.(rpc.Error)))
			return
		}
		defer permit.Release()
		next.ServeHTTP(w, r)
	})
}

// serveBatch forwards batches without guarded calls as they are. Other
// batches are expanded: every entry is dispatched on its own, guarded ones
// through the gate, and the answers are joined again.
func (g *Gate) serveBatch(w http.ResponseWriter, r *http.Request, next http.Handler, body []byte) {
	var entries []json.RawMessage
	if err := json.Unmarshal(body, &entries); err != nil || len(entries) == 0 {
		next.ServeHTTP(w, r)
		return
	}
	calls := make([]call, len(entries))
	guarded := false
	for i, raw := range entries {
		if json.Unmarshal(raw, &calls[i]) == nil && g.Guarded(calls[i].Method) {
			guarded = true
		}
	}
	if !guarded {
		next.ServeHTTP(w, r)
		return
	}

	limit := uint64(g.cfg.BatchResponseLimit)
	var out bytes.Buffer
	out.WriteByte('[')
	n := 0
	for i, raw := range entries {
		resp := g.dispatch(r, next, raw, &calls[i])
		if calls[i].isNotification() || len(resp) == 0 {
			continue
		}
		if n > 0 {
			out.WriteByte(',')
		}
		out.Write(resp)
		n++
		if limit > 0 && uint64(out.Len())+1 > limit {
			g.metrics.BatchTooLarge()
			g.log.WithField("limit", g.cfg.BatchResponseLimit.HumanReadable()).Warn("Batch response too large")
			writeJSON(w, errorResponse(nil, &batchTooLargeError{limit: limit}))
			return
		}
	}
	if n == 0 {
		w.WriteHeader(http.StatusOK)
		return
	}
	out.WriteByte(']')
	writeJSON(w, out.Bytes())
}

// dispatch runs one batch entry through next and returns its response.
func (g *Gate) dispatch(r *http.Request, next http.Handler, raw json.RawMessage, c *call) []byte {
	permit, err := g.TryAcquire(c.Method)
	if err != nil {
		return errorResponse(c.ID, err.(rpc.Error))
	}
	defer permit.Release()

	sub := r.Clone(r.Context())
	sub.Body = io.NopCloser(bytes.NewReader(raw))
	sub.ContentLength = int64(len(raw))
	rec := &bufferedResponse{header: make(http.Header), status: http.StatusOK}
	next.ServeHTTP(rec, sub)
	if rec.status != http.StatusOK {
		return errorResponse(c.ID, &httpStatusError{status: rec.status, body: rec.body.String()})
	}
	return bytes.TrimSpace(rec.body.Bytes())
}

func writeJSON(w http.ResponseWriter, b []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(b)
}

// bufferedResponse collects the answer of next to a single batch entry.
type bufferedResponse struct {
	header http.Header
	status int
	body   bytes.Buffer
}

func (b *bufferedResponse) Header() http.Header         { return b.header }
func (b *bufferedResponse) Write(p []byte) (int, error) { return b.body.Write(p) }
func (b *bufferedResponse) WriteHeader(status int)      { b.status = status }

type httpStatusError struct {
	status int
	body   string
}

func (e *httpStatusError) Error() string {
	return http.StatusText(e.status) + ": " + string(bytes.TrimSpace([]byte(e.body)))
}

func (e *httpStatusError) ErrorCode() int { return -32603 }
