/*
Package health provides health check mechanisms for monitoring the daemon's
upstream dependencies.

This package implements two types of health checks, HTTP and Store, plus a
registry that runs them on a schedule and tracks rolling status per
dependency. The API layer reads the registry to answer /health, so operators
and load balancers can see at a glance whether the gateway, the configured
peers, and the index store are reachable.

# Architecture

The health system follows a modular checker design:

	┌─────────────────────────────────────────────────────────────┐
	│                        Registry                              │
	│  • Register(name, checker)                                   │
	│  • RunAll(ctx) → results, rolling Status per dependency      │
	│  • Healthy() / Snapshot()                                    │
	└────────┬────────────────────────────────────────────────────┘
	         │
	    ┌────┴────────┐
	    ▼             ▼
	┌─────────┐  ┌─────────┐
	│  HTTP   │  │  Store  │
	│ Checker │  │ Checker │
	└────┬────┘  └────┬────┘
	     │            │
	     ▼            ▼
	  GET /height   Stats(ctx)
	  GET /get      on the index
	  (gateway,     store
	   peers)

## Health Check Flow

 1. Daemon boots → registers store, gateway, and each peer checker
 2. Wait for StartPeriod (grace period while upstreams warm up)
 3. Every Interval: Registry.RunAll executes all checks in parallel
 4. If a check fails: increment that dependency's consecutive failures
 5. If failures >= Retries: mark the dependency unhealthy
 6. /health reports the snapshot; readiness flips when the store degrades

# Health Check Types

## HTTP Health Checks

HTTP checks probe gateway and peer endpoints:

	Check Type: HTTP
	Configuration:
	├── URL: https://arweave.net/height
	├── Method: GET, POST, HEAD
	├── Headers: Custom HTTP headers
	├── Expected Status: 200-399 (configurable)
	└── Timeout: 10 seconds

Example responses:
  - 200 OK → Healthy
  - 503 Service Unavailable → Unhealthy
  - Connection timeout → Unhealthy
  - Connection refused → Unhealthy

Probes run on their own small HTTP client rather than the shared transport
governor, so a wedged sync transport cannot mask itself from monitoring.

## Store Health Checks

Store checks read index stats to verify the store answers queries:

	Check Type: Store
	Configuration:
	├── Source: the index store (its Stats method)
	├── Healthy → "1523 records, 12 templates indexed"
	└── Unhealthy → "stats read failed: <error>"

A failing store is the one dependency the daemon cannot degrade around, so
readiness follows it directly.

# Core Components

## Checker Interface

All health checkers implement this interface:

	type Checker interface {
		Check(ctx context.Context) Result
		Type() CheckType
	}

The registry does not need to know the check type, it just calls Check()
and interprets the Result.

## Result Structure

All checks return a standardized Result:

	type Result struct {
		Healthy   bool          // Check passed?
		Message   string        // Human-readable message
		CheckedAt time.Time     // When check ran
		Duration  time.Duration // How long check took
	}

## Status Tracking

Status tracks health over time:

	type Status struct {
		ConsecutiveFailures  int    // Failure streak
		ConsecutiveSuccesses int    // Success streak
		LastCheck            time.Time
		LastResult           Result
		Healthy              bool   // Current health state
		StartedAt            time.Time
	}

The status implements hysteresis - multiple failures required before marking
unhealthy, preventing flapping when a gateway drops a single request.

## Registry

The registry owns the named checker set and their statuses:

	registry := health.NewRegistry(health.DefaultConfig())
	registry.Register("store", health.NewStoreChecker(store))
	registry.Register("gateway", health.NewHTTPChecker(gatewayURL+"/height"))

	results := registry.RunAll(ctx)  // parallel, each bounded by Timeout
	healthy := registry.Healthy()    // all dependencies healthy?
	snapshot := registry.Snapshot()  // per-dependency rolling status

Peers may come and go as configuration is reloaded; Unregister removes a
dropped peer along with its status.

## Configuration

	type Config struct {
		Interval    time.Duration  // Time between checks (default: 30s)
		Timeout     time.Duration  // Max check duration (default: 10s)
		Retries     int            // Failures before unhealthy (default: 3)
		StartPeriod time.Duration  // Grace period after boot (default: 0)
	}

# Usage Examples

## Probing a Gateway

	import "github.com/cuemby/burrow/pkg/health"

	checker := health.NewHTTPChecker("https://arweave.net/height")

	// Customize (optional)
	checker.WithMethod("GET").
		WithStatusRange(200, 299).
		WithTimeout(5 * time.Second)

	result := checker.Check(ctx)

	if result.Healthy {
		fmt.Printf("gateway up: %s (took %v)\n", result.Message, result.Duration)
	} else {
		fmt.Printf("gateway down: %s\n", result.Message)
	}

## Probing the Index Store

	checker := health.NewStoreChecker(store)

	result := checker.Check(ctx)
	// Healthy: "1523 records, 12 templates indexed"

## Running the Registry Loop

	config := health.DefaultConfig()
	config.StartPeriod = 30 * time.Second

	registry := health.NewRegistry(config)
	registry.Register("store", health.NewStoreChecker(store))
	registry.Register("gateway", health.NewHTTPChecker(cfg.GatewayURL+"/height"))
	for i, peer := range cfg.Peers {
		registry.Register(fmt.Sprintf("peer-%d", i),
			health.NewHTTPChecker(peer+"/registry?recordType=template"))
	}

	ticker := time.NewTicker(config.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			registry.RunAll(ctx)
		case <-stopCh:
			return
		}
	}

# Integration Points

## API Integration

The /health endpoint reads the registry snapshot:

  - Healthy() == true → 200 with per-dependency detail
  - store unhealthy → 503 (the daemon cannot serve queries)
  - gateway or a peer unhealthy → 200 degraded (sync pauses, queries work)

## Daemon Integration

The daemon registers checkers at boot and reconciles peer checkers when the
peer list changes on configuration reload.

## Sync Integration

Sync loops do not gate on health. They discover upstream failure themselves
through typed errors and back off independently; the registry exists for
operators, not for control flow.

# Design Patterns

## Strategy Pattern

Different checkers implement the Checker interface:

	Checker (interface)
	├── HTTPChecker (probe a URL)
	└── StoreChecker (read index stats)

This allows runtime composition of the monitored set without code changes.

## Builder Pattern

The HTTP checker uses a fluent builder for configuration:

	checker := NewHTTPChecker(url).
		WithMethod("HEAD").
		WithHeader("X-Probe-Token", token).
		WithTimeout(5 * time.Second)

## Hysteresis Pattern

Status tracking implements hysteresis to prevent flapping:

	Healthy → 1 failure → Still healthy
	Healthy → 2 failures → Still healthy
	Healthy → 3 failures → Unhealthy!

	Unhealthy → 1 success → Healthy!

Gateways rate-limit and peers restart; a single failed probe means little.

# Performance Characteristics

HTTP checks are network-bound:

  - Latency: 1-500ms depending on gateway distance
  - Memory: ~10KB per check (HTTP client)
  - CPU: minimal, mostly waiting for I/O

Store checks are local reads:

  - Latency: microseconds against the in-memory index
  - No network involved

RunAll executes checks in parallel, so a slow peer never delays the store
check. The registry holds its lock only to copy the checker set and to
write statuses, never across network calls.

# Limitations

  - No per-checker interval; all dependencies share the registry cadence.
  - Status history is one result deep. Trend analysis belongs in Prometheus,
    which scrapes the same dependencies through pkg/metrics.
  - HTTP checks verify reachability, not correctness. A gateway serving
    garbage at /height passes the probe and fails in the sync loop.

# See Also

  - pkg/api - Serves /health from the registry snapshot
  - pkg/daemon - Registers checkers and runs the periodic loop
  - pkg/metrics - Prometheus counterparts for trend monitoring
*/
package health
