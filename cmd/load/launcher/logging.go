package launcher

import (
	"fmt"
	"os"
	"time"

	"github.com/evalphobia/logrus_sentry"
	"github.com/sirupsen/logrus"

	"github.com/rony4d/go-load/version"
)

// newLogger builds the node logger from cfg. Verbosity 0..5 maps onto
// fatal..trace.
func newLogger(cfg LoggingConfig) (*logrus.Logger, error) {
	log := logrus.New()
	log.SetOutput(os.Stderr)

	switch cfg.Format {
	case "", "text":
		log.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
			ForceColors:   cfg.Color,
			DisableColors: !cfg.Color,
		})
	case "json":
		log.SetFormatter(&logrus.JSONFormatter{})
	default:
		return nil, fmt.Errorf("unknown log format %q (valid: text, json)", cfg.Format)
	}

	if cfg.Verbosity < 0 || cfg.Verbosity > 5 {
		return nil, fmt.Errorf("log verbosity %d out of range 0..5", cfg.Verbosity)
	}
	log.SetLevel(logrus.Level(cfg.Verbosity + 1))

	if cfg.SentryDSN != "" {
		hook, err := logrus_sentry.NewSentryHook(cfg.SentryDSN, []logrus.Level{
			logrus.PanicLevel,
			logrus.FatalLevel,
			logrus.ErrorLevel,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create sentry hook: %w", err)
		}
		hook.SetRelease(version.String())
		hook.Timeout = 5 * time.Second
		hook.StacktraceConfiguration.Enable = true
		log.AddHook(hook)
	}
	return log, nil
}
