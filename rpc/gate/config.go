package gate

import (
	"os"
	"strconv"

	"github.com/c2h5oh/datasize"
	"github.com/sirupsen/logrus"
)

// Guarded methods.
const (
	MethodSendRawTransaction     = "eth_sendRawTransaction"
	MethodGetTransactionCount    = "eth_getTransactionCount"
	MethodSendRawTransactionSync = "eth_sendRawTransactionSync"
)

// Environment overrides of the defaults.
const (
	EnvSendRawTxLimit           = "LOAD_RPC_SEND_RAW_TX_LIMIT"
	EnvGetTransactionCountLimit = "LOAD_RPC_GET_TRANSACTION_COUNT_LIMIT"
	EnvSendRawTxSyncLimit       = "LOAD_RPC_SEND_RAW_TX_SYNC_LIMIT"
	EnvBatchResponseLimitMB     = "LOAD_RPC_BATCH_RESPONSE_LIMIT_MB"
)

// Config holds the in-flight limit of every guarded method. A zero limit
// leaves the method unguarded.
type Config struct {
	SendRawTxLimit           uint64
	GetTransactionCountLimit uint64
	SendRawTxSyncLimit       uint64

	// BatchResponseLimit caps the joined response of a batch the gate
	// had to expand.
	BatchResponseLimit datasize.ByteSize
}

func DefaultConfig() Config {
	return Config{
		SendRawTxLimit:           1024,
		GetTransactionCountLimit: 2048,
		SendRawTxSyncLimit:       256,
		BatchResponseLimit:       200 * datasize.MB,
	}
}

// Limits returns the limit of every guarded method, disabled ones included.
func (c Config) Limits() map[string]uint64 {
	return map[string]uint64{
		MethodSendRawTransaction:     c.SendRawTxLimit,
		MethodGetTransactionCount:    c.GetTransactionCountLimit,
		MethodSendRawTransactionSync: c.SendRawTxSyncLimit,
	}
}

// ConfigFromEnv applies the LOAD_RPC_* overrides to the defaults. Values
// that do not parse are logged and ignored.
func ConfigFromEnv(log logrus.FieldLogger) Config {
	cfg := DefaultConfig()
	cfg.SendRawTxLimit = envUint(log, EnvSendRawTxLimit, cfg.SendRawTxLimit)
	cfg.GetTransactionCountLimit = envUint(log, EnvGetTransactionCountLimit, cfg.GetTransactionCountLimit)
	cfg.SendRawTxSyncLimit = envUint(log, EnvSendRawTxSyncLimit, cfg.SendRawTxSyncLimit)
	mb := envUint(log, EnvBatchResponseLimitMB, uint64(cfg.BatchResponseLimit/datasize.MB))
	cfg.BatchResponseLimit = datasize.ByteSize(mb) * datasize.MB

	log.WithFields(logrus.Fields{
		"send_raw_tx":       cfg.SendRawTxLimit,
		"get_tx_count":      cfg.GetTransactionCountLimit,
		"send_raw_tx_sync":  cfg.SendRawTxSyncLimit,
		"batch_response_mb": mb,
	}).Info("Configured RPC admission limits")
	return cfg
}

func envUint(log logrus.FieldLogger, name string, def uint64) uint64 {
	raw, ok := os.LookupEnv(name)
	if !ok {
		return def
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		log.WithFields(logrus.Fields{
			"env":      name,
			"value":    raw,
			"fallback": def,
		}).WithError(err).Warn("Invalid RPC admission limit, using default")
		return def
	}
	return v
}
