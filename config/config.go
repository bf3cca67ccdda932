package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"strconv"
)

var ErrInvalidConfig = errors.New("config: invalid configuration")

type Config struct {
	Addr      string
	TLSAddr   string
	TLSCert   string
	TLSKey    string
	QUICAddr  string
	ReusePort bool

	UploadDir string
	StaticDir string

	LogLevel     slog.Level
	ServiceName  string
	OTLPEndpoint string
}

// Load reads the configuration. Flags override the environment, which
// overrides the defaults.
func Load(args []string, getenv func(string) string) (Config, error) {
	env := func(key, fallback string) string {
		if value := getenv(key); value != "" {
			return value
		}
		return fallback
	}

	reusePort, err := strconv.ParseBool(env("LOAM_REUSE_PORT", "false"))
	if err != nil {
		return Config{}, fmt.Errorf("%w: LOAM_REUSE_PORT: %w", ErrInvalidConfig, err)
	}

	var config Config
	var level string

	flags := flag.NewFlagSet("loam", flag.ContinueOnError)
	flags.SetOutput(io.Discard)

	flags.StringVar(&config.Addr, "addr", env("LOAM_ADDR", ":8080"), "plain HTTP listen address, empty to disable")
	flags.StringVar(&config.TLSAddr, "tls-addr", env("LOAM_TLS_ADDR", ""), "HTTPS listen address")
	flags.StringVar(&config.TLSCert, "tls-cert", env("LOAM_TLS_CERT", ""), "PEM certificate file")
	flags.StringVar(&config.TLSKey, "tls-key", env("LOAM_TLS_KEY", ""), "PEM private key file")
	flags.StringVar(&config.QUICAddr, "quic-addr", env("LOAM_QUIC_ADDR", ""), "QUIC listen address")
	flags.BoolVar(&config.ReusePort, "reuse-port", reusePort, "set SO_REUSEPORT on TCP listeners")
	flags.StringVar(&config.UploadDir, "upload-dir", env("LOAM_UPLOAD_DIR", "upload"), "directory receiving uploads")
	flags.StringVar(&config.StaticDir, "static-dir", env("LOAM_STATIC_DIR", ""), "directory served under /static")
	flags.StringVar(&level, "log-level", env("LOAM_LOG_LEVEL", "info"), "debug, info, warn or error")
	flags.StringVar(&config.ServiceName, "service-name", env("OTEL_SERVICE_NAME", "loam"), "service name reported to OpenTelemetry")
	flags.StringVar(&config.OTLPEndpoint, "otlp-endpoint", env("OTEL_EXPORTER_OTLP_ENDPOINT", ""), "OTLP/gRPC collector URL")

	if err := flags.Parse(args); err != nil {
		return Config{}, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	if err := config.LogLevel.UnmarshalText([]byte(level)); err != nil {
		return Config{}, fmt.Errorf("%w: log level: %w", ErrInvalidConfig, err)
	}

	if err := config.Validate(); err != nil {
		return Config{}, err
	}

	return config, nil
}

func (config Config) Validate() error {
	if config.Addr == "" && config.TLSAddr == "" && config.QUICAddr == "" {
		return fmt.Errorf("%w: no listen address", ErrInvalidConfig)
	}

	if (config.TLSAddr != "" || config.QUICAddr != "") && (config.TLSCert == "" || config.TLSKey == "") {
		return fmt.Errorf("%w: TLS and QUIC listeners need a certificate and key", ErrInvalidConfig)
	}

	if config.UploadDir == "" {
		return fmt.Errorf("%w: empty upload directory", ErrInvalidConfig)
	}

	return nil
}
