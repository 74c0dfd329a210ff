/*
Package metrics defines Burrow's Prometheus instrumentation and the
collector that keeps gauge families current.

Counters and histograms are incremented inline by the packages doing
the work. Gauges that mirror stored state (record counts, template and
creator totals) cannot be incremented inline without drifting from the
index, so a Collector periodically re-reads the store and overwrites
them.

# Architecture

	  inline instrumentation              periodic collection
	┌─────────────────────────┐       ┌─────────────────────────┐
	│ pkg/sync    pass timers │       │       Collector         │
	│ pkg/publish outcomes    │       │   every 15s:            │
	│ pkg/api     req counts  │       │   StatsSource.Stats() ──┼──▶ records/templates/
	│ pkg/httppool recycles   │       │   JobCounter.Count    ──┼──▶ creators/jobs gauges
	└───────────┬─────────────┘       └───────────┬─────────────┘
	            ▼                                 ▼
	      ┌─────────────────────────────────────────────┐
	      │        prometheus.DefaultRegisterer         │
	      └──────────────────────┬──────────────────────┘
	                             ▼
	                   GET /metrics (pkg/api)

# Metric Families

All metrics carry the burrow_ prefix:

  - burrow_records_total{storage}, burrow_records_by_type{record_type},
    burrow_templates_total, burrow_creators_total: index size, set by
    the Collector from store stats.
  - burrow_sync_cursor_block, burrow_gateway_height: chain progress;
    their difference is the indexing lag.
  - burrow_sync_pass_duration_seconds{loop},
    burrow_sync_records_indexed_total{source},
    burrow_sync_records_skipped_total{source,reason},
    burrow_sync_pass_errors_total{loop}: sync loop behavior.
  - burrow_publish_total{destination,status}: publish outcomes.
  - burrow_jobs_total{status}: tracked jobs, set by the Collector.
  - burrow_http_client_recycles_total{client},
    burrow_buffer_pool_gets_total, burrow_buffer_pool_puts_total:
    outbound HTTP resource churn.
  - burrow_query_duration_seconds,
    burrow_api_requests_total{method,status},
    burrow_api_request_duration_seconds{method}: serving latency.

# Usage

	collector := metrics.NewCollector(store, tracker)
	collector.Start()
	defer collector.Stop()

	// Inline, at the call site doing the work:
	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.SyncPassDuration, "walker")

Registration happens in this package's init, so importing any
instrumented package is enough to expose its families.

# Limitations

  - Collector gauges lag the store by up to one 15s collection tick.
  - Everything registers on the global default registry; two daemons
    in one process would need per-instance registries this package
    does not provide.

# See Also

  - pkg/api - Serves the /metrics endpoint
  - pkg/storage - Implements StatsSource over the bolt index
  - pkg/jobs - Implements JobCounter for job gauges
*/
package metrics
