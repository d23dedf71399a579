package main

import (
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"bigdipper/pkg/broker"
	"bigdipper/pkg/config"
	"bigdipper/pkg/dipper"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg := config.New()
	logger := newLogger(cfg.LogLevel)
	defer logger.Sync()
	log := logger.Sugar()

	if err := cfg.Validate(); err != nil {
		log.Errorf("❌ Invalid configuration: %v", err)
		os.Exit(1)
	}

	alpaca := broker.NewAlpaca(cfg.AlpacaKey, cfg.AlpacaSecret, cfg.Paper)

	go serveMetrics(cfg.MetricsAddr, log)

	d := dipper.New(cfg, alpaca, log)
	if err := d.Run(); err != nil {
		log.Errorf("❌ Fatal: %v", err)
		os.Exit(1)
	}
}

// newLogger builds a console logger whose line format the downstream
// dashboard parses: "2006-01-02 15:04:05 [LEVEL] message".
func newLogger(level string) *zap.Logger {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		lvl = zapcore.InfoLevel
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "time"
	encoderCfg.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05")
	encoderCfg.EncodeLevel = func(l zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
		enc.AppendString("[" + l.CapitalString() + "]")
	}
	encoderCfg.ConsoleSeparator = " "

	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encoderCfg),
		zapcore.Lock(os.Stdout),
		lvl,
	)
	return zap.New(core)
}

func serveMetrics(addr string, log *zap.SugaredLogger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	log.Infof("📈 Metrics listening on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Warnf("Metrics server stopped: %v", err)
	}
}
