package svcfields

import (
	"strings"

	"pkt.systems/pslog"
)

// SubsystemKey is the canonical key for subsystem tags.
const SubsystemKey = pslog.TrustedString("sys")

// Subsystem names shared across packages.
const (
	ClientSDK    = "client.sdk"
	ClientSocket = "client.socket"
	ClientBlob   = "client.blob"
	MCPTools     = "mcp.tools"
	MCPTransport = "mcp.transport"
	CLIRoot      = "cli.root"
	Telemetry    = "telemetry"
)

// Subsystem joins non-empty parts into a dot-delimited subsystem path.
func Subsystem(parts ...string) string {
	filtered := make([]string, 0, len(parts))
	for _, part := range parts {
		if part = strings.Trim(part, ". "); part != "" {
			filtered = append(filtered, part)
		}
	}
	return strings.Join(filtered, ".")
}

// WithSubsystem tags every entry emitted by logger with subsystem. A nil
// logger is replaced by pslog.NoopLogger().
func WithSubsystem(logger pslog.Logger, subsystem string) pslog.Logger {
	if logger == nil {
		logger = pslog.NoopLogger()
	}
	subsystem = strings.Trim(subsystem, ". ")
	if subsystem == "" {
		return logger
	}
	return logger.With(SubsystemKey, subsystem)
}

// Base narrows a pslog.Base to a full pslog.Logger tagged with subsystem.
// Loggers that only implement pslog.Base are returned untagged.
func Base(logger pslog.Base, subsystem string) pslog.Base {
	if logger == nil {
		return pslog.NoopLogger()
	}
	if full, ok := logger.(pslog.Logger); ok {
		return WithSubsystem(full, subsystem)
	}
	return logger
}
