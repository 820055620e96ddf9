package main

import (
	"net/http"

	"github.com/CoraReneeOfficial/pawfection-testing-sub000/libs/auth"
)

type routeRegistrar interface {
	Register(mux *http.ServeMux, wrap func(http.Handler) http.Handler)
}

// registerRoutes mounts the API behind bearer auth. The webhook stays open;
// Google authenticates it by channel token and headers.
func registerRoutes(mux *http.ServeMux, verifier *auth.Verifier, adminRoles []string, webhook http.Handler, appts, calendar routeRegistrar) {
	requireAuth := auth.RequireAuth(verifier)
	requireAdmin := auth.RequireRole(adminRoles...)

	appts.Register(mux, requireAuth)
	calendar.Register(mux, func(h http.Handler) http.Handler {
		return requireAuth(requireAdmin(h))
	})
	mux.Handle("POST /google_calendar/webhook", webhook)
}
