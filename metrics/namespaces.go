package metrics

const namespaceLoad = "load"

const (
	subsystemBuilder = "builder"
	subsystemTxPool  = "txpool"
	subsystemEngine  = "engine"
	subsystemRPC     = "rpc"
)

// LabelMethod is the label carrying a JSON-RPC method name.
const LabelMethod = "method"
