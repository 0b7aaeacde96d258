/*
Package server provides the optional debug HTTP server.

Routes:

	GET /health   liveness
	GET /state    session status and counters
	GET /page     the cached page as loaded into the web view
	GET /metrics  Prometheus exposition
	GET /bridge   WebSocket tap on the bridge
	GET /loglevel current log level, PUT to change it (WithLogLevel)

Browsers may only reach the server from pages on a loopback origin.

The /bridge socket receives every script the host evaluates in the web view
as a text frame. Text frames sent by the client are treated as messages from
the web app, so a developer can drive the host by hand:

	{"type":"LOGIN"}
*/
package server
