package launcher

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/c2h5oh/datasize"
	"github.com/pelletier/go-toml/v2"
	"github.com/sirupsen/logrus"
	"gopkg.in/urfave/cli.v1"

	"github.com/rony4d/go-load/builder"
	"github.com/rony4d/go-load/ethapi"
	"github.com/rony4d/go-load/integration"
	"github.com/rony4d/go-load/load/genesis"
	"github.com/rony4d/go-load/rpc/gate"
	"github.com/rony4d/go-load/txpool"
)

// Config aggregates every subsystem's configuration the launcher needs. It
// is what --config files contain and what dumpconfig prints.
type Config struct {
	Node    NodeConfig
	Logging LoggingConfig
	HTTP    HTTPConfig
	Engine  EngineConfig
	Metrics MetricsConfig
	Builder BuilderConfig
	TxPool  TxPoolConfig
	Gate    GateConfig
}

type NodeConfig struct {
	DataDir string
	Name    string
	Chain   string
	Preset  string `toml:",omitempty"`
}

type LoggingConfig struct {
	Verbosity int
	Format    string
	Color     bool
	SentryDSN string `toml:",omitempty"`
}

type HTTPConfig struct {
	Enabled        bool
	Addr           string
	Port           int
	CORSDomains    []string
	SyncTimeout    Duration
	MaxSyncTimeout Duration
}

type EngineConfig struct {
	Addr      string
	Port      int
	JWTSecret string `toml:",omitempty"`
}

type MetricsConfig struct {
	Enabled bool
	Addr    string
	Port    int
}

type BuilderConfig struct {
	GasLimit         uint64
	ExtraData        string `toml:",omitempty"`
	Interval         Duration
	Deadline         Duration
	PayloadStoreSize int
}

type TxPoolConfig struct {
	PriceLimit    uint64
	PriceBump     uint64
	GlobalSlots   int
	AccountSlots  int
	BlobCacheSize int
	VerifyKZG     bool
}

type GateConfig struct {
	SendRawTxLimit           uint64
	GetTransactionCountLimit uint64
	SendRawTxSyncLimit       uint64
	BatchResponseLimit       datasize.ByteSize
}

// Duration is a time.Duration written as a string ("1.5s") in TOML.
type Duration struct {
	time.Duration
}

func (d Duration) MarshalText() ([]byte, error) { return []byte(d.String()), nil }

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// -----------------------------------------------------------------------------
// Default config + builders
// -----------------------------------------------------------------------------

func defaultConfig(log logrus.FieldLogger) Config {
	pool := txpool.DefaultConfig()
	bld := builder.DefaultConfig()
	svc := builder.DefaultServiceConfig()
	eth := ethapi.DefaultConfig()
	gt := gate.ConfigFromEnv(log)
	return Config{
		Node: NodeConfig{
			DataDir: filepath.Join(GuessHomeDir(), ".go-load"),
			Name:    "go-load",
			Chain:   genesis.DevName,
		},
		Logging: LoggingConfig{
			Verbosity: 3,
			Format:    "text",
		},
		HTTP: HTTPConfig{
			Enabled:        false,
			Addr:           "127.0.0.1",
			Port:           8545,
			SyncTimeout:    Duration{eth.SyncTimeout},
			MaxSyncTimeout: Duration{eth.MaxSyncTimeout},
		},
		Engine: EngineConfig{
			Addr: "127.0.0.1",
			Port: 8551,
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Addr:    "127.0.0.1",
			Port:    9001,
		},
		Builder: BuilderConfig{
			GasLimit:         bld.GasLimit,
			Interval:         Duration{svc.Interval},
			Deadline:         Duration{svc.Deadline},
			PayloadStoreSize: svc.StoreSize,
		},
		TxPool: TxPoolConfig{
			PriceLimit:    pool.PriceLimit,
			PriceBump:     pool.PriceBump,
			GlobalSlots:   pool.GlobalSlots,
			AccountSlots:  pool.AccountSlots,
			BlobCacheSize: pool.BlobCacheSize,
			VerifyKZG:     pool.VerifyKZG,
		},
		Gate: GateConfig{
			SendRawTxLimit:           gt.SendRawTxLimit,
			GetTransactionCountLimit: gt.GetTransactionCountLimit,
			SendRawTxSyncLimit:       gt.SendRawTxSyncLimit,
			BatchResponseLimit:       gt.BatchResponseLimit,
		},
	}
}

// MakeAllConfigs merges defaults, the preset, config-file values and CLI
// overrides into a single config struct, in that order of precedence.
func MakeAllConfigs(ctx *cli.Context) (Config, error) {
	log := logrus.StandardLogger()
	cfg := defaultConfig(log)

	file := ctx.GlobalString("config")
	preset := ""
	if file != "" {
		probe := defaultConfig(log)
		if err := loadConfigFile(file, &probe); err != nil {
			return Config{}, err
		}
		preset = probe.Node.Preset
	}
	if ctx.GlobalIsSet("preset") {
		preset = ctx.GlobalString("preset")
	}
	if preset != "" {
		p, err := integration.GetPresetByName(preset)
		if err != nil {
			return Config{}, err
		}
		applyPreset(&cfg, p)
	}
	if file != "" {
		if err := loadConfigFile(file, &cfg); err != nil {
			return Config{}, err
		}
	}
	if err := applyCLIOverrides(ctx, &cfg); err != nil {
		return Config{}, err
	}
	cfg.Node.Preset = preset
	return cfg, nil
}

// applyPreset copies the preset sizing into cfg.
func applyPreset(cfg *Config, p integration.PresetConfig) {
	current := integration.PresetConfig{
		PoolGlobalSlots:  cfg.TxPool.GlobalSlots,
		PoolAccountSlots: cfg.TxPool.AccountSlots,
		BlobCacheSize:    cfg.TxPool.BlobCacheSize,
		PayloadStoreSize: cfg.Builder.PayloadStoreSize,
		BuildInterval:    cfg.Builder.Interval.Duration,
		EnableMetrics:    cfg.Metrics.Enabled,
	}
	integration.ApplyPreset(&current, p)
	cfg.TxPool.GlobalSlots = current.PoolGlobalSlots
	cfg.TxPool.AccountSlots = current.PoolAccountSlots
	cfg.TxPool.BlobCacheSize = current.BlobCacheSize
	cfg.Builder.PayloadStoreSize = current.PayloadStoreSize
	cfg.Builder.Interval = Duration{current.BuildInterval}
	cfg.Metrics.Enabled = current.EnableMetrics
}

// -----------------------------------------------------------------------------
// Config-file / CLI wiring
// -----------------------------------------------------------------------------

func loadConfigFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		var strict *toml.StrictMissingError
		if errors.As(err, &strict) {
			return fmt.Errorf("%s: %s", path, strict.String())
		}
		var derr *toml.DecodeError
		if errors.As(err, &derr) {
			row, col := derr.Position()
			return fmt.Errorf("%s:%d:%d: %w", path, row, col, err)
		}
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}

func applyCLIOverrides(ctx *cli.Context, cfg *Config) error {
	if ctx.GlobalIsSet("datadir") {
		cfg.Node.DataDir = resolvePath(ctx.GlobalString("datadir"))
	}
	if ctx.GlobalIsSet("identity") {
		cfg.Node.Name = ctx.GlobalString("identity")
	}
	if ctx.GlobalIsSet("chain") {
		cfg.Node.Chain = ctx.GlobalString("chain")
	}

	if ctx.GlobalIsSet("log.format") {
		cfg.Logging.Format = ctx.GlobalString("log.format")
	}
	if ctx.GlobalIsSet("log.verbosity") {
		cfg.Logging.Verbosity = ctx.GlobalInt("log.verbosity")
	}
	if ctx.GlobalIsSet("log.color") {
		cfg.Logging.Color = ctx.GlobalBool("log.color")
	}
	if ctx.GlobalIsSet("sentry.dsn") {
		cfg.Logging.SentryDSN = ctx.GlobalString("sentry.dsn")
	}

	if ctx.GlobalBool("http") {
		cfg.HTTP.Enabled = true
	}
	if ctx.GlobalIsSet("http.addr") {
		cfg.HTTP.Addr = ctx.GlobalString("http.addr")
	}
	if ctx.GlobalIsSet("http.port") {
		cfg.HTTP.Port = ctx.GlobalInt("http.port")
	}
	if ctx.GlobalIsSet("http.corsdomain") {
		cfg.HTTP.CORSDomains = splitCSV(ctx.GlobalString("http.corsdomain"))
	}
	if ctx.GlobalIsSet("rpc.synctimeout") {
		cfg.HTTP.SyncTimeout = Duration{ctx.GlobalDuration("rpc.synctimeout")}
	}

	if ctx.GlobalIsSet("authrpc.addr") {
		cfg.Engine.Addr = ctx.GlobalString("authrpc.addr")
	}
	if ctx.GlobalIsSet("authrpc.port") {
		cfg.Engine.Port = ctx.GlobalInt("authrpc.port")
	}
	if ctx.GlobalIsSet("authrpc.jwtsecret") {
		cfg.Engine.JWTSecret = resolvePath(ctx.GlobalString("authrpc.jwtsecret"))
	}

	if ctx.GlobalBool("metrics") {
		cfg.Metrics.Enabled = true
	}
	if ctx.GlobalIsSet("metrics.addr") {
		cfg.Metrics.Addr = ctx.GlobalString("metrics.addr")
	}
	if ctx.GlobalIsSet("metrics.port") {
		cfg.Metrics.Port = ctx.GlobalInt("metrics.port")
	}

	if ctx.GlobalIsSet("builder.gaslimit") {
		cfg.Builder.GasLimit = ctx.GlobalUint64("builder.gaslimit")
	}
	if ctx.GlobalIsSet("builder.extradata") {
		cfg.Builder.ExtraData = ctx.GlobalString("builder.extradata")
	}
	if ctx.GlobalIsSet("builder.interval") {
		cfg.Builder.Interval = Duration{ctx.GlobalDuration("builder.interval")}
	}
	if ctx.GlobalIsSet("builder.deadline") {
		cfg.Builder.Deadline = Duration{ctx.GlobalDuration("builder.deadline")}
	}
	if ctx.GlobalIsSet("builder.payloads") {
		cfg.Builder.PayloadStoreSize = ctx.GlobalInt("builder.payloads")
	}

	if ctx.GlobalIsSet("txpool.pricelimit") {
		cfg.TxPool.PriceLimit = ctx.GlobalUint64("txpool.pricelimit")
	}
	if ctx.GlobalIsSet("txpool.pricebump") {
		cfg.TxPool.PriceBump = ctx.GlobalUint64("txpool.pricebump")
	}
	if ctx.GlobalIsSet("txpool.accountslots") {
		cfg.TxPool.AccountSlots = ctx.GlobalInt("txpool.accountslots")
	}
	if ctx.GlobalIsSet("txpool.globalslots") {
		cfg.TxPool.GlobalSlots = ctx.GlobalInt("txpool.globalslots")
	}
	if ctx.GlobalIsSet("txpool.blobcache") {
		cfg.TxPool.BlobCacheSize = ctx.GlobalInt("txpool.blobcache")
	}
	if ctx.GlobalBool("txpool.nokzg") {
		cfg.TxPool.VerifyKZG = false
	}

	if ctx.GlobalIsSet("rpc.sendrawtx.limit") {
		cfg.Gate.SendRawTxLimit = ctx.GlobalUint64("rpc.sendrawtx.limit")
	}
	if ctx.GlobalIsSet("rpc.txcount.limit") {
		cfg.Gate.GetTransactionCountLimit = ctx.GlobalUint64("rpc.txcount.limit")
	}
	if ctx.GlobalIsSet("rpc.sendrawtxsync.limit") {
		cfg.Gate.SendRawTxSyncLimit = ctx.GlobalUint64("rpc.sendrawtxsync.limit")
	}
	if ctx.GlobalIsSet("rpc.batchlimit") {
		var size datasize.ByteSize
		if err := size.UnmarshalText([]byte(ctx.GlobalString("rpc.batchlimit"))); err != nil {
			return fmt.Errorf("invalid --rpc.batchlimit: %w", err)
		}
		cfg.Gate.BatchResponseLimit = size
	}
	return nil
}

// dumpConfig renders cfg as TOML.
func dumpConfig(cfg Config) ([]byte, error) {
	var buf bytes.Buffer
	enc := toml.NewEncoder(&buf)
	enc.SetIndentTables(true)
	if err := enc.Encode(cfg); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// -----------------------------------------------------------------------------
// Helpers
// -----------------------------------------------------------------------------

func ensureDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create datadir %s: %w", dir, err)
	}
	return nil
}

func resolvePath(p string) string {
	if strings.HasPrefix(p, "~") {
		return filepath.Join(GuessHomeDir(), strings.TrimPrefix(p, "~"))
	}
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(GuessWorkDir(), p)
}

func splitCSV(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func GuessWorkDir() string {
	if wd, err := os.Getwd(); err == nil {
		return wd
	}
	return "."
}

func GuessHomeDir() string {
	if dir, err := os.UserHomeDir(); err == nil {
		return dir
	}
	return "."
}
