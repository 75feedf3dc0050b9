package handler

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/mir00r/stand-router/internal/middleware"
)

// Routes collects the handlers mounted by NewRouter
type Routes struct {
	Dispatch *DispatchHandler
	Health   *HealthHandler
	// Admin is optional
	Admin       *AdminHandler
	AdminPrefix string
	// AdminAuth guards the admin subrouter when set
	AdminAuth func(http.Handler) http.Handler
	// DispatchMiddleware wraps only the dispatch endpoints
	DispatchMiddleware []func(http.Handler) http.Handler
}

// NewRouter mounts dispatch, health, metrics and admin routes
func NewRouter(rt Routes) *mux.Router {
	r := mux.NewRouter()

	dispatch := middleware.Chain(rt.Dispatch, rt.DispatchMiddleware...)
	r.Handle("/", dispatch).Methods(http.MethodPost)
	r.Handle("/dispatch", dispatch).Methods(http.MethodPost)

	r.HandleFunc("/health", rt.Health.HealthHandler).Methods(http.MethodGet)
	r.HandleFunc("/readiness", rt.Health.ReadinessHandler).Methods(http.MethodGet)
	r.HandleFunc("/liveness", rt.Health.LivenessHandler).Methods(http.MethodGet)
	r.HandleFunc("/metrics", rt.Dispatch.MetricsHandler).Methods(http.MethodGet)

	if rt.Admin != nil {
		prefix := rt.AdminPrefix
		if prefix == "" {
			prefix = "/admin"
		}
		admin := r.PathPrefix(prefix).Subrouter()
		if rt.AdminAuth != nil {
			admin.Use(mux.MiddlewareFunc(rt.AdminAuth))
		}
		rt.Admin.RegisterRoutes(admin)
	}

	return r
}

// subjectOf returns the authenticated admin subject for audit logs
func subjectOf(r *http.Request) string {
	if sub := middleware.SubjectFromContext(r.Context()); sub != "" {
		return sub
	}
	return "anonymous"
}
