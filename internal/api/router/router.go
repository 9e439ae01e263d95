// Package router wires the research API routes and applies the middleware
// chain.
package router

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Adithya-Monish-Kumar-K/Local-Research-Engine/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/Local-Research-Engine/internal/api/handler"
	apimw "github.com/Adithya-Monish-Kumar-K/Local-Research-Engine/internal/api/middleware"
	"github.com/Adithya-Monish-Kumar-K/Local-Research-Engine/internal/api/ratelimit"
	"github.com/Adithya-Monish-Kumar-K/Local-Research-Engine/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/Local-Research-Engine/pkg/metrics"
	pkgmw "github.com/Adithya-Monish-Kumar-K/Local-Research-Engine/pkg/middleware"
)

// Deps are the collaborators of the router. Analytics, Metrics, Gatherer
// and Limiter are optional.
type Deps struct {
	Handler        *handler.Handler
	Health         *health.Checker
	Analytics      *analytics.Handler
	Metrics        *metrics.Metrics
	Gatherer       prometheus.Gatherer
	Limiter        *ratelimit.Limiter
	RateLimit      int
	RequestTimeout time.Duration
}

// New builds the HTTP handler.
//
// Route table:
//
//	POST   /api/v1/research     run a research request
//	GET    /api/v1/runs         list recent runs
//	GET    /api/v1/runs/{id}    fetch one run
//	GET    /api/v1/stats        file statistics of ?directory=
//	GET    /api/v1/analytics    aggregated run analytics
//	GET    /health/live
//	GET    /health/ready
//	GET    /metrics
//
// Middleware chain, outermost first:
//
//	RequestID → CORS → Metrics → RateLimit → Timeout → mux
func New(d Deps) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health/live", d.Health.LiveHandler())
	mux.HandleFunc("GET /health/ready", d.Health.ReadyHandler())
	if d.Gatherer != nil {
		mux.Handle("GET /metrics", metrics.Handler(d.Gatherer))
	}

	mux.HandleFunc("POST /api/v1/research", d.Handler.Research)
	mux.HandleFunc("GET /api/v1/runs", d.Handler.ListRuns)
	mux.HandleFunc("GET /api/v1/runs/{id}", d.Handler.GetRun)
	mux.HandleFunc("GET /api/v1/stats", d.Handler.Stats)
	if d.Analytics != nil {
		mux.HandleFunc("GET /api/v1/analytics", d.Analytics.Stats)
	}

	mws := []func(http.Handler) http.Handler{
		pkgmw.RequestID,
		apimw.CORS(apimw.DefaultCORSConfig()),
	}
	if d.Metrics != nil {
		mws = append(mws, pkgmw.Metrics(d.Metrics))
	}
	mws = append(mws,
		apimw.RateLimit(d.Limiter, d.RateLimit),
		pkgmw.Timeout(d.RequestTimeout),
	)
	return pkgmw.Chain(mux, mws...)
}
