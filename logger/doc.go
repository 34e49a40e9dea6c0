// Package logger provides structured logging for the tile processing engine
// using zerolog.
//
// It supports multiple output formats (JSON, console), log level
// configuration, and component-scoped loggers with structured fields.
//
// # Configuration
//
//	logging:
//	  level: "info"
//	  format: "json"
//
// # Usage
//
//	log := logger.Get("engine")
//	log.Info("batch finished", logger.Fields("zoom", 5, "tiles", 128))
package logger
