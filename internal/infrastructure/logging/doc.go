// Package logging provides structured logging and the console stream for
// the telemetry agent.
//
// This package wraps Go's standard log/slog package to provide
// consistent, structured logging across the agent, and a Console for the
// plain status lines an operator watches on a serial-style terminal.
//
// # Features
//
//   - Text output by default, JSON for log shippers
//   - Default fields (service, version) on all log entries
//   - Level-based filtering (debug, info, warn, error)
//   - Logs go to stderr so stdout carries only the console stream
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "text"     # json, text
//	  output: "stderr"   # stdout, stderr
//
// # Usage
//
//	logger := logging.New(cfg.Logging, "1.0.0")
//	logger.Info("broker reachable", "broker", cfg.MQTT.BrokerAddress())
//
//	console := logging.NewConsole(os.Stdout)
//	console.Println("Publishing message")
//
// # Security
//
// Never log the network passphrase, broker credentials or key material.
package logging
