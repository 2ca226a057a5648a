package config

import "time"

const (
	// DefaultListenPath is the Unix socket path the router listens on
	// when none is configured.
	DefaultListenPath = "/run/protoipc/router.sock"

	// DefaultSocketType selects stream framing (record-marked, chunked
	// body writes) over datagram framing.
	DefaultSocketType = "stream"

	// DefaultMaxHandlesPerMessage is the default cap on handles carried by
	// a single Message.
	DefaultMaxHandlesPerMessage = 128

	// DefaultMsgMaxSize is the largest chunk written per send() on a
	// stream Port.
	DefaultMsgMaxSize = 8 * 1024

	// DefaultShutdownTimeout bounds how long the daemon waits for the
	// metrics HTTP server to shut down on SIGINT/SIGTERM. The router and
	// its ports are closed without waiting.
	DefaultShutdownTimeout = 5 * time.Second

	// DefaultMetricsListenAddr is where the Prometheus exporter listens
	// when metrics are enabled.
	DefaultMetricsListenAddr = "127.0.0.1:9090"
)

// DefaultConfig returns a Config populated with the daemon's defaults,
// used when no configuration file is present.
func DefaultConfig() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills zero-valued fields of cfg with defaults. It is
// applied after unmarshaling so that a partial config file only overrides
// the keys it sets.
func ApplyDefaults(cfg *Config) {
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "INFO"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}

	if cfg.Router.ListenPath == "" {
		cfg.Router.ListenPath = DefaultListenPath
	}
	if cfg.Router.SocketType == "" {
		cfg.Router.SocketType = DefaultSocketType
	}
	if cfg.Router.MaxHandlesPerMessage == 0 {
		cfg.Router.MaxHandlesPerMessage = DefaultMaxHandlesPerMessage
	}
	if cfg.Router.MsgMaxSize == 0 {
		cfg.Router.MsgMaxSize = DefaultMsgMaxSize
	}

	if cfg.Metrics.ListenAddr == "" {
		cfg.Metrics.ListenAddr = DefaultMetricsListenAddr
	}

	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = DefaultShutdownTimeout
	}
}
