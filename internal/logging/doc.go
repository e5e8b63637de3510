// Package logging configures structured slog output for pagegenie.
// With --debug, JSON logs are written to a rotating file under
// ~/.pagegenie/logs/ in addition to stderr. The stdio MCP server writes to
// the file only, since stdout carries the protocol.
package logging
