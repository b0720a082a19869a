// Package mcp implements the core of a Model Context Protocol (MCP) client:
// a JSON-RPC 2.0 message engine, a stdio subprocess transport, and the
// initialize/version-negotiation handshake, per
// https://spec.modelcontextprotocol.io/specification/.
//
// Higher-level concerns — HTTP/SSE transports, CLI entry points, config file
// loading, and per-feature convenience wrappers — build on the interfaces
// this package exposes, but are not required to use this package's internal
// machinery.
package mcp
