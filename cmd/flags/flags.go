package flags

import (
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/ruteri/shamir-custody/common"
	"github.com/ruteri/shamir-custody/httpserver"
	"github.com/urfave/cli/v2"
)

func SetupLogger(cCtx *cli.Context) (log *slog.Logger) {
	logJSON := cCtx.Bool(LogJsonFlag.Name)
	logDebug := cCtx.Bool(LogDebugFlag.Name)
	logUID := cCtx.Bool(LogUidFlag.Name)
	logService := cCtx.String("log-service")

	logger := common.SetupLogger(&common.LoggingOpts{
		Debug:   logDebug,
		JSON:    logJSON,
		Service: logService,
		Version: common.Version,
	})

	if logUID {
		id := uuid.Must(uuid.NewRandom())
		logger = logger.With("uid", id.String())
	}
	return logger
}

func ConfigureServer(cCtx *cli.Context, logger *slog.Logger, listenAddr string) *httpserver.HTTPServerConfig {
	metricsAddr := cCtx.String(MetricsAddrFlag.Name)
	enablePprof := cCtx.Bool(PprofFlag.Name)
	drainDuration := time.Duration(cCtx.Int64(DrainSecondsFlag.Name)) * time.Second

	return &httpserver.HTTPServerConfig{
		ListenAddr:               listenAddr,
		MetricsAddr:              metricsAddr,
		Log:                      logger,
		EnablePprof:              enablePprof,
		DrainDuration:            drainDuration,
		GracefulShutdownDuration: 30 * time.Second,
		ReadTimeout:              60 * time.Second,
		WriteTimeout:             30 * time.Second,
	}
}

var LogJsonFlag = &cli.BoolFlag{
	Name:    "log-json",
	Value:   false,
	Usage:   "log in JSON format",
	EnvVars: []string{"SHAMIR_LOG_JSON"},
}
var LogDebugFlag = &cli.BoolFlag{
	Name:    "log-debug",
	Value:   false,
	Usage:   "log debug messages",
	EnvVars: []string{"SHAMIR_LOG_DEBUG"},
}
var LogUidFlag = &cli.BoolFlag{
	Name:    "log-uid",
	Value:   false,
	Usage:   "generate a uuid and add to all log messages",
	EnvVars: []string{"SHAMIR_LOG_UID"},
}

var LogServiceFlagFn = func(service string) *cli.StringFlag {
	return &cli.StringFlag{
		Name:    "log-service",
		Value:   service,
		Usage:   "add 'service' tag to logs",
		EnvVars: []string{"SHAMIR_LOG_SERVICE"},
	}
}

var PprofFlag = &cli.BoolFlag{
	Name:    "pprof",
	Value:   false,
	Usage:   "enable pprof debug endpoint",
	EnvVars: []string{"SHAMIR_PPROF"},
}
var DrainSecondsFlag = &cli.Int64Flag{
	Name:    "drain-seconds",
	Value:   45,
	Usage:   "seconds to wait in drain HTTP request",
	EnvVars: []string{"SHAMIR_DRAIN_SECONDS"},
}
var MetricsAddrFlag = &cli.StringFlag{
	Name:    "metrics-addr",
	Value:   "127.0.0.1:8090",
	Usage:   "address to listen on for Prometheus metrics",
	EnvVars: []string{"SHAMIR_METRICS_ADDR"},
}

// Share handling flags shared by the CLI and the custody server.

var MACKeyFileFlag = &cli.StringFlag{
	Name:    "mac-key-file",
	Usage:   "file holding the raw HMAC key for shares (at least 32 bytes)",
	EnvVars: []string{"SHAMIR_MAC_KEY_FILE"},
}
var MACPassphraseFlag = &cli.StringFlag{
	Name:    "mac-passphrase",
	Usage:   "derive the HMAC key for shares from this passphrase (argon2id)",
	EnvVars: []string{"SHAMIR_MAC_PASSPHRASE"},
}
var MACSaltFlag = &cli.StringFlag{
	Name:    "mac-salt",
	Value:   "shamir-custody",
	Usage:   "salt used with --mac-passphrase",
	EnvVars: []string{"SHAMIR_MAC_SALT"},
}
var StoreURIFlag = &cli.StringSliceFlag{
	Name:    "store-uri",
	Usage:   "storage backend URI for share sets (file://, s3://, ipfs://, vault://); repeat for redundancy",
	EnvVars: []string{"SHAMIR_STORE_URI"},
}

var CommonFlags = []cli.Flag{
	LogJsonFlag,
	LogDebugFlag,
	LogUidFlag,
	PprofFlag,
	DrainSecondsFlag,
	MetricsAddrFlag,
}

var MACFlags = []cli.Flag{
	MACKeyFileFlag,
	MACPassphraseFlag,
	MACSaltFlag,
}
