// Package logging provides structured logging for strand.
//
// This package wraps Go's log/slog to produce JSON-formatted logs with
// persistent attributes, so scheduler internals and the demo tooling can
// emit filterable, machine-readable diagnostics. Logs go to a size-rotated
// file or to stderr.
//
// # Thread Safety
//
// All types in this package are safe for concurrent use. The [Logger] type
// uses slog internally, which is designed for concurrent access, and the
// [RotatingWriter] type guards file operations with a mutex. Child loggers
// created via With* methods share the underlying writer safely.
//
// # Basic Usage
//
// Create a logger that writes to a directory:
//
//	logger, err := logging.NewLogger("/path/to/logs", "INFO")
//	if err != nil {
//	    return err
//	}
//	defer logger.Close()
//
//	logger.Debug("selected work queue", "queue", "render", "kind", "delayed")
//	logger.Info("scheduler started", "queues", 4)
//
// Pass an empty directory to log to stderr instead.
//
// # Persistent Attributes
//
// Child loggers carry attributes on every entry they emit:
//
//	queueLog := logger.WithQueue("render")
//	queueLog.Debug("fence inserted") // includes queue=render
//
// Use [Logger.WithComponent] to tag a subsystem ("selector", "runner") and
// [Logger.With] for arbitrary key-value pairs.
//
// # Rotation
//
// For long-running schedulers, [NewLoggerWithRotation] bounds disk usage:
//
//	cfg := logging.RotationConfig{MaxSizeMB: 10, MaxBackups: 3, Compress: true}
//	logger, err := logging.NewLoggerWithRotation("/path/to/logs", "INFO", cfg)
//
// Rotated files are named strand.log.1, strand.log.2, and so on, where .1 is
// the newest backup; compressed backups get a .gz suffix.
//
// # Testing
//
// Use [NopLogger] to discard all output:
//
//	s := sched.New(sched.WithLogger(logging.NopLogger()))
package logging
