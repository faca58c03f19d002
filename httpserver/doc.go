/*
Package httpserver hosts the custody service's HTTP APIs.

The server owns a chi router. API handlers implement RouteRegistrar and are
mounted behind the structured access-log middleware. Every server also
exposes the operational endpoints:

  - GET /livez: liveness probe
  - GET /readyz: readiness probe, 503 while draining
  - GET /drain: mark the server not ready, for load balancer draining
  - GET /undrain: mark the server ready again
  - /debug/pprof: profiling, only when EnablePprof is set

Prometheus metrics are served by a separate listener on MetricsAddr so they
can stay on a private interface.

Usage:

	srv, err := httpserver.New(cfg, adminHandler)
	if err != nil {
		return err
	}
	srv.RunInBackground()
	defer srv.Shutdown()
*/
package httpserver
