/*
Package log provides structured logging for Burrow using zerolog.

The log package wraps the zerolog library to provide JSON-structured logging
with component-specific loggers, configurable log levels, optional rolling
file output, and helper functions for common logging patterns. All logs
include timestamps and support filtering by severity level.

# Architecture

Burrow's logging system provides structured JSON logging with minimal
overhead:

	┌──────────────────── LOGGING SYSTEM ──────────────────────┐
	│                                                            │
	│  ┌────────────────────────────────────────────┐          │
	│  │            Global Logger                    │          │
	│  │  - Zerolog instance                         │          │
	│  │  - Initialized via log.Init()               │          │
	│  │  - Thread-safe for concurrent use           │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │           Configuration                     │          │
	│  │  - Level: debug/info/warn/error             │          │
	│  │  - Format: JSON or console (human)          │          │
	│  │  - Output: stdout, rolling file, writer     │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │         Component Loggers                   │          │
	│  │  - WithComponent("block-walker")            │          │
	│  │  - WithDID("did:arweave:abc...")            │          │
	│  │  - WithPeer("https://peer.example")         │          │
	│  │  - WithJobID("b2f1c0...")                   │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │            Log Output                       │          │
	│  │                                              │          │
	│  │  JSON Format:                               │          │
	│  │  {                                           │          │
	│  │    "level": "info",                         │          │
	│  │    "component": "block-walker",             │          │
	│  │    "time": "2026-05-02T10:30:00Z",         │          │
	│  │    "message": "pass complete"               │          │
	│  │  }                                           │          │
	│  │                                              │          │
	│  │  Console Format:                            │          │
	│  │  10:30AM INF pass complete component=block-walker │    │
	│  └────────────────────────────────────────────┘           │
	└────────────────────────────────────────────────────────┘

# Core Components

Global Logger:
  - Package-level zerolog.Logger instance
  - Initialized once via log.Init()
  - Accessible from all Burrow packages
  - Thread-safe concurrent writes

Log Levels:
  - Debug: Detailed debugging information (per-record sync decisions)
  - Info: General informational messages (pass summaries, publishes)
  - Warn: Warning messages (validation skips, unknown config keys)
  - Error: Error messages (upstream failures, store errors)
  - Fatal: Critical errors (process exits)

Configuration:
  - Level: Filter messages below threshold
  - JSONOutput: JSON vs human-readable console
  - Output: io.Writer for log destination
  - File: rolling file path; rotation handled by lumberjack

Context Loggers:
  - WithComponent: Add component name to all logs
  - WithDID: Add record DID context
  - WithPeer: Add peer URL context
  - WithJobID: Add publish job context

# Usage

Initializing the Logger:

	import "github.com/cuemby/burrow/pkg/log"

	// JSON output (production)
	log.Init(log.Config{
		Level:      log.InfoLevel,
		JSONOutput: true,
		Output:     os.Stdout,
	})

	// Console output (development)
	log.Init(log.Config{
		Level:      log.DebugLevel,
		JSONOutput: false,
		Output:     os.Stdout,
	})

	// Rolling file output
	log.Init(log.Config{
		Level:     log.InfoLevel,
		File:      "/var/log/burrow/burrow.log",
		MaxSizeMB: 100,
	})

Simple Logging:

	log.Info("daemon started")
	log.Debug("checking peer registry")
	log.Warn("record failed template validation, skipping")
	log.Error("blockchain gateway unreachable")
	log.Fatal("cannot open index store") // Exits process

Structured Logging:

	log.Logger.Info().
		Str("did", string(rec.Meta.DID)).
		Int64("block", rec.Meta.InArweaveBlock).
		Msg("record indexed")

	log.Logger.Error().
		Err(err).
		Str("peer", peerURL).
		Msg("registry fetch failed")

Component Loggers:

	walkerLog := log.WithComponent("block-walker")
	walkerLog.Info().Msg("starting sync loop")
	walkerLog.Debug().Int64("cursor", cursor).Msg("pass starting")

# Rolling Files

When Config.File is set, output goes through lumberjack: files rotate at
MaxSizeMB (default 100), old files are pruned past MaxBackups (default 5)
and compressed. Rolling files are always JSON so they stay parseable by
log shippers; the console writer is reserved for interactive runs.

# Integration Points

This package integrates with:

  - pkg/daemon: logs supervisor lifecycle
  - pkg/sync: logs block-walk and peer-sync passes
  - pkg/publish: logs publish pipeline steps
  - pkg/api: logs HTTP requests and errors
  - pkg/gun, pkg/arweave: log adapter failures

# Design Patterns

Global Logger Pattern:
  - Single package-level Logger instance
  - Initialized once at application start
  - Accessible from all packages without passing

Context Logger Pattern:
  - Create child loggers with context fields
  - Automatically includes context in all logs
  - Avoids repetitive field specification

Error Logging Pattern:
  - Always use .Err(err) for error objects
  - Consistent error format across codebase

# Performance Characteristics

Logging Overhead:
  - Disabled level: 0ns (compile-time optimization)
  - JSON encode: ~500ns per log line
  - Console format: ~1µs per log line

Log Level Impact:
  - Debug: per-record volume during sync, development only
  - Info: pass-level volume, suitable for production
  - Warn/Error: low volume, minimal impact

# Security

Log Content:
  - Never log private record payloads or key material
  - Public keys and DIDs are safe to log
  - Bearer tokens must never appear in logs

# See Also

  - Zerolog documentation: https://github.com/rs/zerolog
  - Lumberjack rotation: https://github.com/natefinch/lumberjack
  - 12-Factor App Logs: https://12factor.net/logs
*/
package log
