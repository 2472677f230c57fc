// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package api

import (
	"net/http"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
)

// otelHTTP wraps the router with automatic request span creation, so every
// call into the ops/control surface gets a server span without the handlers
// having to open one themselves (§6).
func otelHTTP(serviceName string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return otelhttp.NewHandler(
			next,
			serviceName,
			otelhttp.WithTracerProvider(otel.GetTracerProvider()),
			otelhttp.WithFilter(shouldTraceRequest),
		)
	}
}

// shouldTraceRequest skips the health probe so liveness polling doesn't
// flood the trace backend.
func shouldTraceRequest(r *http.Request) bool {
	return r.URL.Path != "/healthz"
}
