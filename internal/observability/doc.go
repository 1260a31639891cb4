// Package observability holds the logging, metrics and context plumbing
// shared by the paper tracker processes.
//
// A single zerolog logger is built in main with NewLogger and handed to
// every component; helpers such as WithComponent and WithSource add the
// standard fields:
//
//   - component: emitting subsystem (server, coordinator, scheduler, ...)
//   - source: arxiv, biorxiv or chemrxiv
//   - poll_id: identifier of one update run
//   - request_id: HTTP request identifier
//
// Metrics are Prometheus collectors created once per process:
//
//	metrics := observability.NewMetrics(observability.DefaultNamespace)
//	metrics.RecordPoll("arxiv", 120, 7, false, elapsed)
//
// *Metrics also satisfies papersources.RequestObserver so adapters report
// upstream request outcomes without importing this package.
package observability
