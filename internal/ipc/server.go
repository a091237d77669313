package ipc

import (
	"context"
	"net/http"
)

// Server wraps an HTTP server with engine-specific routing.
type Server struct {
	httpServer *http.Server
}

// NewServer creates a Server that binds to the given address.
func NewServer(h *Handler, listenAddr string) *Server {
	mux := http.NewServeMux()

	// Health endpoint.
	mux.HandleFunc("GET /api/v1/health", h.Health)

	// State endpoints.
	mux.HandleFunc("GET /api/v1/state", h.GetState)
	mux.HandleFunc("GET /api/v1/gate", h.GetGate)
	mux.HandleFunc("GET /api/v1/projections", h.GetProjections)

	// Pipeline endpoints.
	mux.HandleFunc("POST /api/v1/score", h.ScoreTask)
	mux.HandleFunc("POST /api/v1/expand", h.ExpandTask)
	mux.HandleFunc("POST /api/v1/cycle", h.TriggerCycle)
	mux.HandleFunc("POST /api/v1/verify", h.VerifySubtask)

	// Journal endpoints.
	mux.HandleFunc("GET /api/v1/cycles", h.ListCycles)
	mux.HandleFunc("GET /api/v1/cycles/stream", h.StreamCycles)
	mux.HandleFunc("GET /api/v1/cycles/{cycleID}/runs", h.ListCycleRuns)
	mux.HandleFunc("GET /api/v1/cycles/{cycleID}/publications", h.ListCyclePublications)

	srv := &http.Server{
		Addr:    listenAddr,
		Handler: corsMiddleware(mux),
	}

	return &Server{
		httpServer: srv,
	}
}

// Start begins listening for HTTP connections. Blocks until the server stops.
func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// corsMiddleware adds CORS headers for local tooling access.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
