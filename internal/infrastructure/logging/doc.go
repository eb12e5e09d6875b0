// Package logging provides structured logging for blegate.
//
// It wraps log/slog so every entry carries the service name and version:
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr, file
//	  file:
//	    path: "/var/log/blegate/blegate.log"
//
// # Usage
//
//	logger := logging.New(cfg.Logging, version)
//	logger.Component("presence").Info("device home", "key", key)
//
// Packages below cmd/ that should not import this package (presence, mqtt,
// influxdb) accept a small Logger interface instead; *Logger satisfies it.
//
// Never log broker passwords or InfluxDB tokens.
package logging
