// LinkScope - IoT Device Diagnostic Log Analytics
// Copyright 2026 ProbeLab
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/probelab/linkscope

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/probelab/linkscope/internal/authz"
)

// Router wires handlers, middleware, and the authorization gate into the
// chi route tree.
type Router struct {
	handler *Handler
	mw      *Middleware
	gate    *authz.Middleware
}

// NewRouter creates the router. gate may be a disabled middleware.
func NewRouter(handler *Handler, mw *Middleware, gate *authz.Middleware) *Router {
	if mw == nil {
		mw = NewMiddleware(nil)
	}
	if gate == nil {
		gate = authz.NewMiddleware(nil, false)
	}
	return &Router{handler: handler, mw: mw, gate: gate}
}

// Setup configures all HTTP routes.
func (rt *Router) Setup() http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDWithLogging())
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(rt.mw.CORS())

	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	r.Route("/api/v1/health", func(r chi.Router) {
		r.Get("/", rt.handler.Health)
		r.Get("/live", rt.handler.HealthLive)
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(rt.mw.RateLimit())
		r.Use(PrometheusMetrics)

		// Ingestion
		r.With(rt.mw.RateLimitWrite(), rt.gate.Authorize("ingest", "write")).
			Post("/files/{fileID}/ingest", rt.handler.IngestFile)

		// Event scans
		r.Group(func(r chi.Router) {
			r.Use(rt.gate.Authorize("events", "read"))
			r.Get("/events", rt.handler.Events)
			r.Get("/events/groups", rt.handler.EventGroups)
		})

		// Session reconstruction and quality reports
		r.Group(func(r chi.Router) {
			r.Use(rt.gate.Authorize("reports", "read"))
			r.Get("/sessions/{linkCode}", rt.handler.Session)
			r.Get("/reports/coverage", rt.handler.CoverageReport)
			r.Get("/reports/transport", rt.handler.TransportReport)
			r.Get("/reports/continuity", rt.handler.ContinuityReport)
			r.Get("/reports/streams", rt.handler.StreamReport)
			r.Get("/reports/snapshot", rt.handler.SnapshotReport)
		})

		// Assertion rules
		r.Route("/rules", func(r chi.Router) {
			r.With(rt.gate.Authorize("rules", "read")).Get("/", rt.handler.ListRules)
			r.With(rt.gate.Authorize("rules", "read")).Get("/{ruleID}", rt.handler.GetRule)
			r.With(rt.mw.RateLimitWrite(), rt.gate.Authorize("rules", "write")).Post("/", rt.handler.SaveRule)
			r.With(rt.mw.RateLimitWrite(), rt.gate.Authorize("rules", "write")).Post("/defaults", rt.handler.InstallDefaultRules)
			r.With(rt.mw.RateLimitWrite(), rt.gate.Authorize("rules", "write")).Delete("/{ruleID}", rt.handler.DeleteRule)
		})

		// Assertion runs
		r.Route("/runs", func(r chi.Router) {
			r.With(rt.gate.Authorize("runs", "read")).Get("/", rt.handler.ListRuns)
			r.With(rt.gate.Authorize("runs", "read")).Get("/{runID}", rt.handler.GetRun)
			r.With(rt.mw.RateLimitWrite(), rt.gate.Authorize("runs", "write")).Post("/", rt.handler.TriggerRun)
		})

		// Regression baselines
		r.Route("/baselines", func(r chi.Router) {
			r.With(rt.gate.Authorize("baselines", "read")).Get("/", rt.handler.ListBaselines)
			r.With(rt.gate.Authorize("baselines", "read")).Get("/{baselineID}", rt.handler.GetBaseline)
			r.With(rt.gate.Authorize("baselines", "read")).Post("/{baselineID}/evaluate", rt.handler.EvaluateBaseline)
			r.With(rt.mw.RateLimitWrite(), rt.gate.Authorize("baselines", "write")).Post("/", rt.handler.CreateBaseline)
			r.With(rt.mw.RateLimitWrite(), rt.gate.Authorize("baselines", "write")).Delete("/{baselineID}", rt.handler.DeleteBaseline)
		})
	})

	return r
}
