/*
Package log provides structured logging for the data-object lifecycle core
using zerolog.

The log package wraps the zerolog library to provide JSON-structured logging with
component-specific loggers, configurable log levels, and helper functions for
common logging patterns. All logs include timestamps and support filtering by
severity level for production debugging.

# Architecture

This module's logging system provides structured JSON logging with minimal overhead:

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
	│  │  - Output: stdout, file, or custom writer   │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │         Component Loggers                   │          │
	│  │  - WithComponent("resolver")                │          │
	│  │  - WithDataID(4021)                         │          │
	│  │  - WithLogicalPath("/zone/home/file")       │          │
	│  │  - WithReplicaNumber(2)                     │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │            Log Output                       │          │
	│  │                                              │          │
	│  │  JSON Format:                               │          │
	│  │  {                                           │          │
	│  │    "level": "info",                         │          │
	│  │    "component": "finalize",                 │          │
	│  │    "time": "2024-10-13T10:30:00Z",         │          │
	│  │    "message": "replica finalized"           │          │
	│  │  }                                           │          │
	│  │                                              │          │
	│  │  Console Format:                            │          │
	│  │  10:30AM INF replica finalized component=finalize │   │
	│  └────────────────────────────────────────────┘           │
	└────────────────────────────────────────────────────────┘

# Core Components

Global Logger:
  - Package-level zerolog.Logger instance
  - Initialized once via log.Init()
  - Accessible from all packages in this module
  - Thread-safe concurrent writes

Log Levels:
  - Debug: Detailed debugging information
  - Info: General informational messages
  - Warn: Warning messages (potential issues)
  - Error: Error messages (operation failed)
  - Fatal: Critical errors (process exits)

Configuration:
  - Level: Filter messages below threshold
  - JSONOutput: JSON vs human-readable console
  - Output: io.Writer for log destination (stdout, file)

Context Loggers:
  - WithComponent: Add component name to all logs
  - WithDataID: Add data_id context
  - WithLogicalPath: Add logical_path context
  - WithReplicaNumber: Add replica_number context

# Log Levels

Debug Level:
  - Purpose: Detailed debugging information
  - Usage: Development and troubleshooting
  - Performance: Verbose, may impact production
  - Example: "evaluating resource plugin vote: weight=0.8"

Info Level:
  - Purpose: General informational messages
  - Usage: Default production level
  - Performance: Moderate volume
  - Example: "replica opened: resc_hier=demoResc;archive data_id=4021"

Warn Level:
  - Purpose: Potential issues or unexpected conditions
  - Usage: Situations that may require attention
  - Performance: Low volume
  - Example: "orphaned INTERMEDIATE replica recovered by sweeper"

Error Level:
  - Purpose: Operation failures that need investigation
  - Usage: Failed operations, exceptions
  - Performance: Low volume
  - Example: "catalog commit failed: resc_id=3 data_id=4021"

Fatal Level:
  - Purpose: Critical errors causing process termination
  - Usage: Unrecoverable errors only
  - Behavior: Logs message and exits process (os.Exit(1))
  - Example: "failed to bootstrap catalog raft group: %v"

# Usage

Initializing the Logger:

	import "github.com/dataforge/objectcore/pkg/log"

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

	// Custom output (file)
	file, _ := os.OpenFile("/var/log/dataobjd.log", os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	log.Init(log.Config{
		Level:      log.InfoLevel,
		JSONOutput: true,
		Output:     file,
	})

Simple Logging:

	log.Info("catalog bootstrapped")
	log.Debug("checking sibling replica status")
	log.Warn("descriptor table nearing capacity")
	log.Error("failed to open physical replica")
	log.Fatal("cannot start without catalog data dir") // Exits process

Structured Logging:

	log.Logger.Info().
		Int64("data_id", 4021).
		Int("data_repl_num", 1).
		Msg("replica opened")

	log.Logger.Error().
		Err(err).
		Str("logical_path", "/tempZone/home/rods/foo").
		Msg("resolve failed")

Component Loggers:

	// Create component-specific logger
	resolverLog := log.WithComponent("resolver")
	resolverLog.Info().Msg("starting vote collection")
	resolverLog.Debug().Int64("data_id", 4021).Msg("resolving hierarchy")

	// Multiple context fields
	finalizeLog := log.WithComponent("finalize").
		With().Int64("data_id", 4021).
		Int("data_repl_num", 0).Logger()
	finalizeLog.Info().Msg("starting close")
	finalizeLog.Error().Err(err).Msg("close failed")

Context Logger Helpers:

	// Data-object-specific logs
	dataLog := log.WithDataID(4021)
	dataLog.Info().Msg("object locked for write")

	// Logical-path-specific logs
	pathLog := log.WithLogicalPath("/tempZone/home/rods/foo")
	pathLog.Info().Msg("replica created")

	// Replica-specific logs
	replLog := log.WithReplicaNumber(2)
	replLog.Info().Msg("replica finalized")

Complete Example:

	package main

	import (
		"errors"
		"os"
		"github.com/dataforge/objectcore/pkg/log"
	)

	func main() {
		// Initialize logger
		log.Init(log.Config{
			Level:      log.InfoLevel,
			JSONOutput: true,
			Output:     os.Stdout,
		})

		log.Info("agent starting")

		// Component-specific logging
		resolverLog := log.WithComponent("resolver")
		resolverLog.Info().
			Int64("data_id", 4021).
			Int("candidate_count", 3).
			Msg("resolving hierarchy")

		// Error logging
		err := errors.New("no resource plugin voted")
		log.Logger.Error().
			Err(err).
			Str("component", "resolver").
			Msg("resolve failed")

		log.Info("agent stopped")
	}

# Integration Points

This package integrates with:

  - pkg/resolver: Logs hierarchy resolution and plugin votes
  - pkg/locking: Logs rejected lock acquisitions (sibling already locked)
  - pkg/finalize: Logs close-time finalize steps
  - pkg/catalog: Logs raft shutdown errors
  - pkg/sweeper: Logs orphaned-lock recovery sweeps
  - pkg/session: Logs per-agent session lifecycle

# Log Output Examples

JSON Format (Production):

	{"level":"info","component":"catalog","time":"2024-10-13T10:30:00Z","message":"catalog bootstrapped"}
	{"level":"info","component":"resolver","data_id":4021,"time":"2024-10-13T10:30:01Z","message":"hierarchy resolved"}
	{"level":"error","component":"finalize","data_id":4021,"error":"checksum mismatch","time":"2024-10-13T10:30:02Z","message":"close failed"}

Console Format (Development):

	10:30:00 INF catalog bootstrapped component=catalog
	10:30:01 INF hierarchy resolved component=resolver data_id=4021
	10:30:02 ERR close failed component=finalize data_id=4021 error="checksum mismatch"

# Design Patterns

Global Logger Pattern:
  - Single package-level Logger instance
  - Initialized once at application start
  - Accessible from all packages without passing
  - Simplifies logging in deeply nested calls

Context Logger Pattern:
  - Create child loggers with context fields
  - Pass context loggers to functions
  - Automatically includes context in all logs
  - Avoids repetitive field specification

Structured Logging Pattern:
  - Use typed fields (.Str, .Int, .Err)
  - Enables log aggregation and querying
  - Better than string concatenation
  - Parseable by log analysis tools

Error Logging Pattern:
  - Always use .Err(err) for error objects
  - Provides stack trace information
  - Enables error tracking and alerting
  - Consistent error format across codebase

# Performance Characteristics

Logging Overhead:
  - Disabled level: 0ns (compile-time optimization)
  - JSON encode: ~500ns per log line
  - Console format: ~1µs per log line
  - String field: +50ns per field
  - Int field: +30ns per field

Memory Allocation:
  - Zero allocation for disabled levels
  - ~100 bytes per log line (JSON)
  - ~200 bytes per log line (console)
  - Amortized by buffer pooling

Throughput:
  - JSON: ~2M log lines per second
  - Console: ~1M log lines per second
  - Bottleneck: I/O write speed
  - Async writes recommended for high volume

Log Level Impact:
  - Debug: High volume, use in development only
  - Info: Moderate volume, suitable for production
  - Warn/Error: Low volume, minimal impact
  - Recommendation: Info level in production

# Troubleshooting

Common Issues:

No Log Output:
  - Symptom: No logs appearing
  - Check: log.Init() called before logging
  - Check: Log level set appropriately (Debug < Info < Warn < Error)
  - Solution: Initialize logger in main() before any logging

Excessive Log Volume:
  - Symptom: Disk space fills quickly
  - Cause: Debug level in production
  - Check: Log level configuration
  - Solution: Use Info level in production, rotate logs

Missing Context Fields:
  - Symptom: Logs missing component or ID fields
  - Cause: Using global Logger instead of context logger
  - Solution: Use WithComponent() or create child loggers

Log Parsing Fails:
  - Symptom: Cannot parse JSON logs
  - Cause: Invalid JSON in message field
  - Check: Embedded quotes or control characters
  - Solution: Use .Str() instead of string interpolation

Performance Degradation:
  - Symptom: Slow application performance
  - Cause: Excessive logging in hot path
  - Check: Log statements in tight loops
  - Solution: Reduce log frequency, use sampling

# Log Rotation

File-Based Logging:

This package doesn't include built-in log rotation. Use external tools:

Logrotate (Linux):
	# /etc/logrotate.d/dataobjd
	/var/log/dataobjd/*.log {
	    daily
	    rotate 7
	    compress
	    delaycompress
	    missingok
	    notifempty
	    copytruncate
	}

Systemd Journal:
	# Automatic rotation by systemd
	journalctl -u dataobjd -f

Docker/Kubernetes:
	# Use container runtime log drivers
	# JSON logs to stdout (already implemented)

# Log Aggregation

Recommended Tools:

Elasticsearch + Filebeat:
  - Filebeat ships logs to Elasticsearch
  - Kibana for visualization and search
  - Query: component:"finalize" AND level:"error"

Loki + Promtail:
  - Lightweight log aggregation
  - Grafana integration
  - Query: {component="resolver"} |= "error"

CloudWatch Logs:
  - AWS native log aggregation
  - Metric filters for alerting
  - Query: fields @message | filter component = "catalog"

Datadog:
  - Full-stack observability
  - APM and log correlation
  - Query: service:dataobjd component:catalog status:error

# Monitoring

Log-Based Alerts:

High Error Rate:
  - Query: rate(log entries with level="error"[5m]) > 10
  - Description: More than 10 errors per second
  - Action: Check recent errors, investigate root cause

No Logs:
  - Query: absent(log entries[1m])
  - Description: No logs received in 1 minute
  - Action: Check agent process, log pipeline

Specific Error Pattern:
  - Query: log entries containing "catalog commit failed"
  - Description: Catalog commit issues
  - Action: Check raft leader, bbolt data directory

# Security

Log Content:
  - Never log secrets or sensitive data
  - Redact access tokens and credentials
  - Use log scrubbing for compliance (GDPR, PCI)
  - Review logs before sharing externally

Log Access:
  - Restrict log file permissions (0640)
  - Limit log aggregation access (RBAC)
  - Audit log access in production
  - Encrypt logs at rest and in transit

Log Injection:
  - Use structured logging (prevents injection)
  - Never concatenate user input into log messages
  - Use typed fields (.Str, .Int) for user data
  - Validate/sanitize before logging if necessary

# Best Practices

Do:
  - Use Info level for production
  - Use structured fields for queryable data
  - Create component-specific loggers
  - Log errors with .Err() for stack traces
  - Include context (data_id, logical_path, replica_number)

Don't:
  - Log sensitive data (access tokens, credentials)
  - Use Debug level in production
  - Log in tight loops (use sampling)
  - Concatenate strings (use .Str, .Int)
  - Block on log writes (use buffered output)

# See Also

  - Zerolog documentation: https://github.com/rs/zerolog
  - Structured logging: https://www.thoughtworks.com/radar/techniques/structured-logging
  - 12-Factor App Logs: https://12factor.net/logs
  - Log aggregation: https://www.elastic.co/what-is/log-aggregation
*/
package log
