/*
Package monitoring provides Prometheus metrics for the host core.

# Overview

Metrics are registered on a registry owned by the Metrics value rather than
the process-wide default, so several sessions (and tests) can coexist.

# Tracked

- Page fetch attempts by result and attempt latency
- Cache store operations by entry, operation and result
- Bridge messages by direction and type, flush batch sizes, state
- Pending event backlog length and overflow drops
- Web runtime restarts by reason
- Connectivity
- Debug server requests and bridge tap connections

# Usage

	metrics := monitoring.NewMetrics()
	router.Use(monitoring.Middleware(metrics))
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(metrics.Registry(), promhttp.HandlerOpts{})))

A nil *Metrics is valid and records nothing.
*/
package monitoring
