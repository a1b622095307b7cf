package http

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/artpar/meterd/app"
	"github.com/artpar/meterd/domain/usage"
	"github.com/artpar/meterd/pkg/jsonapi"
	"github.com/artpar/meterd/ports"
)

// AdminHandler exposes the reporting and regeneration API over the
// monthly aggregator.
type AdminHandler struct {
	aggregator *app.Aggregator
	logger     zerolog.Logger
}

// NewAdminHandler creates the admin API handler.
func NewAdminHandler(aggregator *app.Aggregator, logger zerolog.Logger) *AdminHandler {
	return &AdminHandler{aggregator: aggregator, logger: logger}
}

// Routes returns the admin API router.
func (h *AdminHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Route("/customers/{customerID}/summaries", func(r chi.Router) {
		r.Get("/", h.listSummaries)
		r.Get("/{year}/{month}", h.getSummary)
		r.Post("/{year}/{month}/regenerate", h.regenerateSummary)
	})

	return r
}

// listSummaries returns all summaries for one customer, newest first.
// With from/to query params (YYYY-MM) the result is bounded to that
// inclusive period range.
func (h *AdminHandler) listSummaries(w http.ResponseWriter, r *http.Request) {
	customerID := chi.URLParam(r, "customerID")

	fromStr := r.URL.Query().Get("from")
	toStr := r.URL.Query().Get("to")

	var (
		summaries []usage.Summary
		err       error
	)
	if fromStr != "" || toStr != "" {
		from, perr := parsePeriodParam(fromStr)
		if perr != nil {
			jsonapi.WriteError(w, jsonapi.ErrBadRequest("invalid 'from' period, want YYYY-MM"))
			return
		}
		to, perr := parsePeriodParam(toStr)
		if perr != nil {
			jsonapi.WriteError(w, jsonapi.ErrBadRequest("invalid 'to' period, want YYYY-MM"))
			return
		}
		summaries, err = h.aggregator.SummariesInRange(r.Context(), customerID, from, to)
	} else {
		summaries, err = h.aggregator.SummariesByCustomer(r.Context(), customerID)
	}

	if err != nil {
		h.logger.Error().Err(err).Str("customer_id", customerID).Msg("listing summaries failed")
		jsonapi.WriteError(w, jsonapi.ErrInternal(""))
		return
	}

	resources := make([]jsonapi.Resource, 0, len(summaries))
	for _, s := range summaries {
		resources = append(resources, summaryResource(s))
	}
	jsonapi.WriteCollection(w, http.StatusOK, resources)
}

func (h *AdminHandler) getSummary(w http.ResponseWriter, r *http.Request) {
	customerID := chi.URLParam(r, "customerID")

	p, err := parsePeriodParts(chi.URLParam(r, "year"), chi.URLParam(r, "month"))
	if err != nil {
		jsonapi.WriteError(w, jsonapi.ErrBadRequest(err.Error()))
		return
	}

	s, err := h.aggregator.SummaryByPeriod(r.Context(), customerID, p)
	if errors.Is(err, ports.ErrNotFound) {
		jsonapi.WriteError(w, jsonapi.ErrNotFoundWithID("summary", customerID))
		return
	}
	if err != nil {
		h.logger.Error().Err(err).Str("customer_id", customerID).Msg("fetching summary failed")
		jsonapi.WriteError(w, jsonapi.ErrInternal(""))
		return
	}

	jsonapi.WriteResource(w, http.StatusOK, summaryResource(s))
}

func (h *AdminHandler) regenerateSummary(w http.ResponseWriter, r *http.Request) {
	customerID := chi.URLParam(r, "customerID")

	p, err := parsePeriodParts(chi.URLParam(r, "year"), chi.URLParam(r, "month"))
	if err != nil {
		jsonapi.WriteError(w, jsonapi.ErrBadRequest(err.Error()))
		return
	}

	if err := h.aggregator.Regenerate(r.Context(), customerID, p); err != nil {
		if errors.Is(err, ports.ErrNotFound) {
			jsonapi.WriteError(w, jsonapi.ErrNotFoundWithID("customer", customerID))
			return
		}
		h.logger.Error().Err(err).
			Str("customer_id", customerID).
			Int("year", p.Year).Int("month", p.Month).
			Msg("summary regeneration failed")
		jsonapi.WriteError(w, jsonapi.ErrInternal(""))
		return
	}

	s, err := h.aggregator.SummaryByPeriod(r.Context(), customerID, p)
	if err != nil {
		jsonapi.WriteError(w, jsonapi.ErrInternal(""))
		return
	}
	jsonapi.WriteResource(w, http.StatusOK, summaryResource(s))
}

func summaryResource(s usage.Summary) jsonapi.Resource {
	return jsonapi.Resource{
		Type: "summaries",
		ID:   s.ID,
		Attributes: map[string]any{
			"customer_id":     s.CustomerID,
			"year":            s.Year,
			"month":           s.Month,
			"plan_name":       s.PlanName,
			"total_api_calls": s.TotalAPICalls,
			"price_per_call":  s.PricePerCall,
			"total_cost":      s.TotalCost,
			"endpoint_usage":  s.EndpointUsage,
			"created_at":      s.CreatedAt,
			"updated_at":      s.UpdatedAt,
		},
	}
}

func parsePeriodParam(v string) (usage.Period, error) {
	t, err := time.Parse("2006-01", v)
	if err != nil {
		return usage.Period{}, err
	}
	return usage.Period{Year: t.Year(), Month: int(t.Month())}, nil
}

func parsePeriodParts(yearStr, monthStr string) (usage.Period, error) {
	year, err := strconv.Atoi(yearStr)
	if err != nil {
		return usage.Period{}, errors.New("invalid year")
	}
	month, err := strconv.Atoi(monthStr)
	if err != nil {
		return usage.Period{}, errors.New("invalid month")
	}
	p := usage.Period{Year: year, Month: month}
	if !p.Valid() {
		return usage.Period{}, errors.New("period out of range")
	}
	return p, nil
}

// HealthHandler provides health check endpoints.
type HealthHandler struct {
	pinger Pinger
}

// Pinger reports backing-store health.
type Pinger interface {
	Ping() error
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(pinger Pinger) *HealthHandler {
	return &HealthHandler{pinger: pinger}
}

// Liveness returns a simple liveness check.
func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	jsonapi.WriteMeta(w, http.StatusOK, jsonapi.Meta{"status": "ok"})
}

// Readiness checks if the service is ready to handle traffic.
func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	if h.pinger != nil {
		if err := h.pinger.Ping(); err != nil {
			jsonapi.WriteMeta(w, http.StatusServiceUnavailable, jsonapi.Meta{
				"status": "unhealthy",
				"error":  err.Error(),
			})
			return
		}
	}
	jsonapi.WriteMeta(w, http.StatusOK, jsonapi.Meta{"status": "ok"})
}

// Version returns the service version.
func Version(w http.ResponseWriter, r *http.Request) {
	jsonapi.WriteMeta(w, http.StatusOK, jsonapi.Meta{
		"version": "dev",
		"service": "meterd",
	})
}

// RouterConfig holds optional configuration for the router.
type RouterConfig struct {
	AdminHandler   http.Handler // reporting/regeneration API, mounted at /admin
	APIHandler     http.Handler // metered application routes, mounted at /api
	Meter          func(next http.Handler) http.Handler
	MetricsEnabled bool
	MetricsPath    string
}

// NewRouter creates the main HTTP router.
func NewRouter(healthHandler *HealthHandler, logger zerolog.Logger, cfg RouterConfig) chi.Router {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(NewLoggingMiddleware(logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	// Health endpoints (no auth required)
	r.Get("/health", healthHandler.Liveness)
	r.Get("/health/live", healthHandler.Liveness)
	r.Get("/health/ready", healthHandler.Readiness)

	if cfg.MetricsEnabled {
		path := cfg.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		r.Handle(path, promhttp.Handler())
	}

	// Version endpoint
	r.Get("/version", Version)

	// Admin API (if enabled)
	if cfg.AdminHandler != nil {
		r.Mount("/admin", cfg.AdminHandler)
	}

	// Metered application routes
	if cfg.APIHandler != nil {
		r.Group(func(r chi.Router) {
			if cfg.Meter != nil {
				r.Use(cfg.Meter)
			}
			r.Mount("/api", cfg.APIHandler)
		})
	}

	return r
}
