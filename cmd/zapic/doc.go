// Package main runs the host core headless.
//
// The process fetches and caches the web app, runs it in the embedded
// runtime and completes the bridge handshake exactly as an embedding game
// would. With the debug server enabled the bridge can be observed and driven
// over a WebSocket.
//
// Configuration:
//   - Environment variables prefixed ZAPIC_
//   - An optional TOML file (-config)
//   - CLI flags (override both)
//
// Usage:
//
//	# Run against staging with the debug server on
//	./zapic -url https://staging.zapic.net -debug
//
//	# Development mode (colored logs, debug level)
//	./zapic -dev -page profile
//
// Signals:
//   - SIGINT, SIGTERM: graceful shutdown, persisting undelivered events
package main
