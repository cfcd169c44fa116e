/*
Package httpserver runs the TrustMesh registration API.

It wires the api/handlers routes behind request logging, tracing and CORS
and adds the operational endpoints:

  - GET /livez - Liveness check
  - GET /readyz - Readiness check
  - GET /drain - Gracefully mark server as not ready
  - GET /undrain - Mark server as ready
  - /debug/pprof - Profiling, when enabled

Prometheus metrics are served from a separate listener (see package metrics).
*/
package httpserver
