package flags

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ruteri/trustmesh-backend/api"
	"github.com/ruteri/trustmesh-backend/common"
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

// SetupTracing installs the tracer provider selected by --trace-exporter.
func SetupTracing(cCtx *cli.Context) (shutdown func(context.Context) error, err error) {
	return common.SetupTracing(cCtx.Context, &common.TracingOpts{
		Exporter:     cCtx.String(TraceExporterFlag.Name),
		OTLPEndpoint: cCtx.String(OTLPEndpointFlag.Name),
		Service:      cCtx.String("log-service"),
		Version:      common.Version,
	})
}

// ConfigureServer builds the server configuration. writeTimeout must cover
// a full publish including the receipt wait.
func ConfigureServer(cCtx *cli.Context, logger *slog.Logger, listenAddr string, writeTimeout time.Duration) *api.HTTPServerConfig {
	metricsAddr := cCtx.String(MetricsAddrFlag.Name)
	enablePprof := cCtx.Bool(PprofFlag.Name)
	drainDuration := time.Duration(cCtx.Int64(DrainSecondsFlag.Name)) * time.Second

	var origins []string
	for _, origin := range strings.Split(cCtx.String(CorsOriginsFlag.Name), ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			origins = append(origins, origin)
		}
	}

	return &api.HTTPServerConfig{
		ListenAddr:               listenAddr,
		MetricsAddr:              metricsAddr,
		Log:                      logger,
		EnablePprof:              enablePprof,
		AllowedOrigins:           origins,
		DrainDuration:            drainDuration,
		GracefulShutdownDuration: 30 * time.Second,
		ReadTimeout:              60 * time.Second,
		WriteTimeout:             writeTimeout,
	}
}

var BackendURLFlag = &cli.StringFlag{
	Name:    "backend-url",
	Value:   "http://127.0.0.1:4000",
	Usage:   "base URL of the registration backend",
	EnvVars: []string{"TRUSTMESH_BACKEND_URL"},
}

var LedgerFlag = &cli.StringFlag{
	Name:  "ledger",
	Value: "onchain",
	Usage: "ledger implementation: 'onchain' (RPC_URL, CONTRACT_ADDRESS) or 'memory' for local development",
}

var CorsOriginsFlag = &cli.StringFlag{
	Name:  "cors-origins",
	Value: "",
	Usage: "comma-separated origins allowed by CORS, empty allows any origin",
}

var TraceExporterFlag = &cli.StringFlag{
	Name:  "trace-exporter",
	Value: common.TraceExporterNone,
	Usage: "OpenTelemetry span exporter: 'none', 'stdout' or 'otlp'",
}

var OTLPEndpointFlag = &cli.StringFlag{
	Name:    "otlp-endpoint",
	Value:   "",
	Usage:   "OTLP/HTTP collector URL, e.g. http://localhost:4318",
	EnvVars: []string{"OTEL_EXPORTER_OTLP_ENDPOINT"},
}

var LogJsonFlag = &cli.BoolFlag{
	Name:  "log-json",
	Value: false,
	Usage: "log in JSON format",
}
var LogDebugFlag = &cli.BoolFlag{
	Name:  "log-debug",
	Value: false,
	Usage: "log debug messages",
}
var LogUidFlag = &cli.BoolFlag{
	Name:  "log-uid",
	Value: false,
	Usage: "generate a uuid and add to all log messages",
}

var LogServiceFlagFn = func(service string) *cli.StringFlag {
	return &cli.StringFlag{
		Name:  "log-service",
		Value: service,
		Usage: "add 'service' tag to logs",
	}
}

var PprofFlag = &cli.BoolFlag{
	Name:  "pprof",
	Value: false,
	Usage: "enable pprof debug endpoint",
}
var DrainSecondsFlag = &cli.Int64Flag{
	Name:  "drain-seconds",
	Value: 45,
	Usage: "seconds to wait in drain HTTP request",
}
var MetricsAddrFlag = &cli.StringFlag{
	Name:  "metrics-addr",
	Value: "127.0.0.1:8090",
	Usage: "address to listen on for Prometheus metrics",
}

var CommonFlags = []cli.Flag{
	LogJsonFlag,
	LogDebugFlag,
	LogUidFlag,
	PprofFlag,
	DrainSecondsFlag,
	MetricsAddrFlag,
	TraceExporterFlag,
	OTLPEndpointFlag,
}
